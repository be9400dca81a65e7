package coordinator

import (
	"crypto/rand"
	"io"
	"strings"
)

// inviteAlphabet leaves out 0/O and 1/I/L.
const inviteAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const InviteCodeLength = 8

// inviteByteLimit is the largest multiple of the alphabet size that fits a
// byte. Random bytes at or above it are redrawn so every symbol is equally
// likely.
const inviteByteLimit = 256 - 256%len(inviteAlphabet)

// NewInviteCode returns a random code over an alphabet that survives being
// read aloud.
func NewInviteCode() (string, error) {
	return inviteCodeFrom(rand.Reader)
}

func inviteCodeFrom(r io.Reader) (string, error) {
	var b strings.Builder
	b.Grow(InviteCodeLength)
	buf := make([]byte, InviteCodeLength)
	for b.Len() < InviteCodeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, v := range buf {
			if int(v) >= inviteByteLimit || b.Len() == InviteCodeLength {
				continue
			}
			b.WriteByte(inviteAlphabet[int(v)%len(inviteAlphabet)])
		}
	}
	return b.String(), nil
}

// NormalizeInviteCode uppercases code and strips separators. It returns
// the empty string when code cannot be an invite code.
func NormalizeInviteCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.NewReplacer("-", "", " ", "").Replace(code)
	if len(code) != InviteCodeLength {
		return ""
	}
	for _, r := range code {
		if !strings.ContainsRune(inviteAlphabet, r) {
			return ""
		}
	}
	return code
}
