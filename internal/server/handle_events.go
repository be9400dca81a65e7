package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/tasting/internal/broadcast"
	"github.com/playperu/tasting/internal/coordinator"
)

const ssePingInterval = 30 * time.Second

// snapshotEvent wraps the initial state a connection starts from.
func snapshotEvent(snap coordinator.Snapshot) coordinator.Event {
	return coordinator.Event{
		Name:      coordinator.EventSessionSnapshot,
		SessionID: snap.SessionID,
		Epoch:     snap.Epoch,
		Payload:   snap,
	}
}

// attach subscribes before taking the snapshot so no event committed in
// between is lost. The caller must call the returned detach.
func attach(ctx context.Context, c *coordinator.Coordinator, broker *broadcast.Broker, actor coordinator.Actor, sessionID string) (*broadcast.Subscription, coordinator.Snapshot, func(), error) {
	sub := broker.Subscribe(sessionID, uuid.NewString())
	snap, err := c.Connect(ctx, actor, sessionID)
	if err != nil {
		broker.Unsubscribe(sessionID, sub.ConnectionID)
		return nil, coordinator.Snapshot{}, nil, err
	}
	detach := func() {
		broker.Unsubscribe(sessionID, sub.ConnectionID)
		// The request context is gone by now.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Disconnect(ctx, actor, sessionID)
	}
	return sub, snap, detach, nil
}

func handleEvents(logger *slog.Logger, c *coordinator.Coordinator, broker *broadcast.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		actor, sessionID := actorFor(r)
		sub, snap, detach, err := attach(r.Context(), c, broker, actor, sessionID)
		if err != nil {
			writeErr(w, logger, err)
			return
		}
		defer detach()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		first, err := json.Marshal(snapshotEvent(snap))
		if err != nil {
			logger.Error("encoding snapshot", "session_id", sessionID, "error", err)
			return
		}
		writeSSE(w, coordinator.EventSessionSnapshot, first)
		flusher.Flush()

		ping := time.NewTicker(ssePingInterval)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case data, ok := <-sub.C:
				if !ok {
					// Fell behind or the broker shut down. The client
					// reconnects and starts from a fresh snapshot.
					return
				}
				var head struct {
					Event string `json:"event"`
				}
				json.Unmarshal(data, &head)
				writeSSE(w, head.Event, data)
				flusher.Flush()
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data []byte) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
