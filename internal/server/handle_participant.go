package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/tasting/internal/coordinator"
	"github.com/playperu/tasting/internal/tasting"
)

type ReadyRequest struct {
	// Ready defaults to true when omitted.
	Ready *bool `json:"ready"`
}

func handleReady(logger *slog.Logger, c *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReadyRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		ready := req.Ready == nil || *req.Ready

		actor, sessionID := actorFor(r)
		res, err := c.SetReady(r.Context(), actor, sessionID, ready)
		if err != nil {
			writeErr(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type ScoreRequest = tasting.ScoreInput

func handleSubmitScore(logger *slog.Logger, c *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScoreRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		actor, sessionID := actorFor(r)
		res, err := c.SubmitScore(r.Context(), actor, sessionID, req)
		if err != nil {
			writeErr(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}
