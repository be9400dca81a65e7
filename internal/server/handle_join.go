package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/playperu/tasting/internal/coordinator"
	"github.com/playperu/tasting/internal/identity"
)

type JoinRequest = coordinator.JoinInput

type JoinResponse struct {
	Token         string               `json:"token"`
	SessionID     string               `json:"sessionId"`
	ParticipantID string               `json:"participantId"`
	Snapshot      coordinator.Snapshot `json:"snapshot"`
}

func handleJoin(logger *slog.Logger, c *coordinator.Coordinator, issuer *identity.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		userID := uuid.NewString()
		if claims := claimsFrom(r); claims != nil {
			userID = claims.UserID()
		}

		res, err := c.Join(r.Context(), coordinator.Actor{UserID: userID}, req)
		if err != nil {
			writeErr(w, logger, err)
			return
		}

		sessionID := res.Snapshot.SessionID
		token, err := issuer.Issue(userID, sessionID, res.Participant.ID)
		if err != nil {
			writeErr(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, JoinResponse{
			Token:         token,
			SessionID:     sessionID,
			ParticipantID: res.Participant.ID,
			Snapshot:      res.Snapshot,
		})
	}
}
