package tasting

import (
	"errors"
	"fmt"
)

// Authorization and state errors. Handlers treat these as final outcomes:
// they are never retried and never mutate state.
var (
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
)

// Domain validation errors.
var (
	ErrOutOfRangeRating     = errors.New("rating out of range")
	ErrAlreadyLocked        = errors.New("score already locked")
	ErrDuplicateParticipant = errors.New("participant already joined")
	ErrInvalidInviteCode    = errors.New("invalid invite code")
	ErrSessionNotJoinable   = errors.New("session is not joinable")
	ErrPhaseNotScoring      = errors.New("session is not scoring this whiskey")
	ErrInvalidInput         = errors.New("invalid input")
)

// ErrNotAllReady is an ErrInvalidTransition raised when a session requiring
// readiness is started early.
var ErrNotAllReady = fmt.Errorf("%w: not all participants are ready", ErrInvalidTransition)

// ErrStaleState reports that a transition was requested against a phase
// epoch that has already been superseded. The coordinator swallows it.
var ErrStaleState = errors.New("stale state")

// Infrastructure errors reported by the persistence collaborator.
var (
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrConstraintViolation = errors.New("constraint violation")
)

// IsRetryable reports whether the caller may safely retry the command.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
