package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/playperu/tasting/internal/coordinator"
	"github.com/playperu/tasting/internal/identity"
)

type CreateSessionRequest = coordinator.CreateSessionInput

type SessionResponse struct {
	Token    string               `json:"token"`
	Snapshot coordinator.Snapshot `json:"snapshot"`
}

// handleCreateSession makes the caller the moderator. Callers without a
// token get a fresh user identity.
func handleCreateSession(logger *slog.Logger, c *coordinator.Coordinator, issuer *identity.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		userID := uuid.NewString()
		if claims := claimsFrom(r); claims != nil {
			userID = claims.UserID()
		}

		res, err := c.CreateSession(r.Context(), coordinator.Actor{UserID: userID}, req)
		if err != nil {
			writeErr(w, logger, err)
			return
		}
		token, err := issuer.Issue(userID, res.Snapshot.SessionID, "")
		if err != nil {
			writeErr(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, SessionResponse{Token: token, Snapshot: res.Snapshot})
	}
}

type AddWhiskeyRequest = coordinator.AddWhiskeyInput

func handleAddWhiskey(logger *slog.Logger, c *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddWhiskeyRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		actor, sessionID := actorFor(r)
		res, err := c.AddWhiskey(r.Context(), actor, sessionID, req)
		if err != nil {
			writeErr(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

type AdvanceRequest struct {
	// Epoch is the phase epoch the caller saw. It is required.
	Epoch int64 `json:"epoch"`
}

func handleAdvance(logger *slog.Logger, c *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdvanceRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		actor, sessionID := actorFor(r)
		res, err := c.AdvancePhase(r.Context(), actor, sessionID, req.Epoch)
		if err != nil {
			writeErr(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleCommand serves a body-less session command.
func handleCommand(logger *slog.Logger, run func(r *http.Request, actor coordinator.Actor, sessionID string) (coordinator.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, sessionID := actorFor(r)
		res, err := run(r, actor, sessionID)
		if err != nil {
			writeErr(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleOpen(logger *slog.Logger, c *coordinator.Coordinator) http.HandlerFunc {
	return handleCommand(logger, func(r *http.Request, a coordinator.Actor, id string) (coordinator.Result, error) {
		return c.Open(r.Context(), a, id)
	})
}

func handleStart(logger *slog.Logger, c *coordinator.Coordinator) http.HandlerFunc {
	return handleCommand(logger, func(r *http.Request, a coordinator.Actor, id string) (coordinator.Result, error) {
		return c.Start(r.Context(), a, id)
	})
}

func handleEndReveal(logger *slog.Logger, c *coordinator.Coordinator) http.HandlerFunc {
	return handleCommand(logger, func(r *http.Request, a coordinator.Actor, id string) (coordinator.Result, error) {
		return c.EndReveal(r.Context(), a, id)
	})
}

func handleCancel(logger *slog.Logger, c *coordinator.Coordinator) http.HandlerFunc {
	return handleCommand(logger, func(r *http.Request, a coordinator.Actor, id string) (coordinator.Result, error) {
		return c.Cancel(r.Context(), a, id)
	})
}

func handleLeave(logger *slog.Logger, c *coordinator.Coordinator) http.HandlerFunc {
	return handleCommand(logger, func(r *http.Request, a coordinator.Actor, id string) (coordinator.Result, error) {
		return c.Leave(r.Context(), a, id)
	})
}

func handleState(logger *slog.Logger, c *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, sessionID := actorFor(r)
		snap, err := c.Snapshot(r.Context(), actor, sessionID)
		if err != nil {
			writeErr(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleResults(logger *slog.Logger, c *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, sessionID := actorFor(r)
		res, err := c.Results(r.Context(), actor, sessionID)
		if err != nil {
			writeErr(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
