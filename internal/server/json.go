package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/playperu/tasting/internal/coordinator"
	"github.com/playperu/tasting/internal/tasting"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// readJSON decodes the body into v. An empty body leaves v untouched.
func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the domain error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tasting.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, tasting.ErrNotFound), errors.Is(err, tasting.ErrInvalidInviteCode):
		return http.StatusNotFound
	case errors.Is(err, tasting.ErrOutOfRangeRating):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tasting.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, tasting.ErrInvalidTransition),
		errors.Is(err, tasting.ErrAlreadyLocked),
		errors.Is(err, tasting.ErrDuplicateParticipant),
		errors.Is(err, tasting.ErrSessionNotJoinable),
		errors.Is(err, tasting.ErrPhaseNotScoring):
		return http.StatusConflict
	case tasting.IsRetryable(err), errors.Is(err, coordinator.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErr reports a command failure to its caller only.
func writeErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", "error", err)
		writeError(w, status, "internal error")
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		writeError(w, status, "temporarily unavailable, retry")
	default:
		writeError(w, status, err.Error())
	}
}
