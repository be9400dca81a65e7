package identity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)

	token, err := iss.Issue("user-1", "s1", "p1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID() != "user-1" {
		t.Errorf("user = %q", claims.UserID())
	}
	if got := claims.ParticipantIn("s1"); got != "p1" {
		t.Errorf("participant in s1 = %q, want p1", got)
	}
	if got := claims.ParticipantIn("s2"); got != "" {
		t.Errorf("participant in s2 = %q, want empty", got)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	iss := NewIssuer("secret", time.Hour)
	iss.now = func() time.Time { return now }

	valid, err := iss.Issue("user-1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	other := NewIssuer("other-secret", time.Hour)
	other.now = iss.now
	forged, _ := other.Issue("user-1", "", "")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1", "iss": issuer}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("none token: %v", err)
	}

	tests := []struct {
		name  string
		token string
		at    time.Time
		want  error
	}{
		{"expired", valid, now.Add(2 * time.Hour), ErrExpiredToken},
		{"wrong secret", forged, now, ErrInvalidSignature},
		{"garbage", "not.a.token", now, ErrInvalidToken},
		{"tampered", valid[:strings.LastIndex(valid, ".")] + ".AAAA", now, ErrInvalidSignature},
	}
	if _, err := iss.Verify(none); err == nil {
		t.Error("unsigned token accepted")
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.at
			iss.now = func() time.Time { return at }
			_, err := iss.Verify(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	if _, err := NewIssuer("secret", time.Hour).Issue("", "", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}
