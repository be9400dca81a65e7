package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/tasting/internal/coordinator"
	"github.com/playperu/tasting/internal/identity"
)

type ctxKey int

const ctxKeyClaims ctxKey = iota

// tokenFromRequest reads a bearer token, falling back to the token query
// parameter that EventSource and browser sockets have to use.
func tokenFromRequest(r *http.Request) string {
	if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found && token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// authenticate attaches verified claims to the request. Anonymous requests
// pass through; a token that fails verification is rejected.
func authenticate(issuer *identity.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := issuer.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claimsFrom(r) == nil {
			writeError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func claimsFrom(r *http.Request) *identity.Claims {
	claims, _ := r.Context().Value(ctxKeyClaims).(*identity.Claims)
	return claims
}

// actorFor resolves the caller for the session in the URL.
func actorFor(r *http.Request) (coordinator.Actor, string) {
	sessionID := chi.URLParam(r, "sessionID")
	claims := claimsFrom(r)
	if claims == nil {
		return coordinator.Actor{}, sessionID
	}
	return coordinator.Actor{
		UserID:        claims.UserID(),
		ParticipantID: claims.ParticipantIn(sessionID),
	}, sessionID
}
