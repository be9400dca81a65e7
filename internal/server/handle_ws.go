package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/playperu/tasting/internal/broadcast"
	"github.com/playperu/tasting/internal/coordinator"
)

// Reply event names on the socket.
const (
	EventCommandResult = "command:result"
	EventCommandError  = "command:error"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 64 << 10
)

// WSRequest is one inbound socket command. The session is the one the
// socket was opened for.
type WSRequest struct {
	RequestID string             `json:"requestId"`
	Action    coordinator.Action `json:"action"`
	Payload   json.RawMessage    `json:"payload,omitempty"`
}

// WSReply answers a WSRequest and goes to its sender only.
type WSReply struct {
	Event     string              `json:"event"`
	RequestID string              `json:"requestId,omitempty"`
	Status    int                 `json:"status"`
	Result    *coordinator.Result `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func errorReply(requestID string, status int, msg string) WSReply {
	return WSReply{Event: EventCommandError, RequestID: requestID, Status: status, Error: msg}
}

func handleWS(logger *slog.Logger, c *coordinator.Coordinator, broker *broadcast.Broker, limit rate.Limit, burst int) http.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	return func(w http.ResponseWriter, r *http.Request) {
		actor, sessionID := actorFor(r)
		sub, snap, detach, err := attach(r.Context(), c, broker, actor, sessionID)
		if err != nil {
			writeErr(w, logger, err)
			return
		}
		defer detach()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(wsReadLimit)

		log := logger.With("session_id", sessionID, "connection_id", sub.ConnectionID)

		first, err := json.Marshal(snapshotEvent(snap))
		if err != nil {
			log.Error("encoding snapshot", "error", err)
			return
		}

		replies := make(chan []byte, 16)
		g, ctx := errgroup.WithContext(r.Context())

		g.Go(func() error {
			if err := wsWrite(ctx, conn, first); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case data, ok := <-sub.C:
					if !ok {
						conn.Close(websocket.StatusTryAgainLater, "resync required")
						return errSubscriberClosed
					}
					if err := wsWrite(ctx, conn, data); err != nil {
						return err
					}
				case data := <-replies:
					if err := wsWrite(ctx, conn, data); err != nil {
						return err
					}
				}
			}
		})

		g.Go(func() error {
			limiter := rate.NewLimiter(limit, burst)
			if limit <= 0 {
				limiter = rate.NewLimiter(rate.Inf, 0)
			}
			for {
				_, msg, err := conn.Read(ctx)
				if err != nil {
					return err
				}
				reply := handleWSMessage(ctx, log, c, limiter, actor, sessionID, msg)
				data, err := json.Marshal(reply)
				if err != nil {
					return fmt.Errorf("encoding reply: %w", err)
				}
				select {
				case replies <- data:
				case <-ctx.Done():
					return nil
				}
			}
		})

		err = g.Wait()
		if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			return
		}
		log.Debug("websocket ended", "error", err)
	}
}

var errSubscriberClosed = errors.New("subscription closed")

func handleWSMessage(ctx context.Context, logger *slog.Logger, c *coordinator.Coordinator, limiter *rate.Limiter, actor coordinator.Actor, sessionID string, msg []byte) WSReply {
	var req WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return errorReply("", http.StatusBadRequest, "invalid command")
	}
	if !limiter.Allow() {
		return errorReply(req.RequestID, http.StatusTooManyRequests, "too many commands")
	}
	if req.Action == coordinator.ActionJoin || req.Action == coordinator.ActionCreateSession {
		return errorReply(req.RequestID, http.StatusBadRequest, fmt.Sprintf("%s is not available on a session socket", req.Action))
	}

	res, err := c.Dispatch(ctx, coordinator.Command{
		Actor:     actor,
		SessionID: sessionID,
		Action:    req.Action,
		Payload:   req.Payload,
	})
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		switch status {
		case http.StatusInternalServerError:
			logger.Error("socket command failed", "action", req.Action, "error", err)
			msg = "internal error"
		case http.StatusServiceUnavailable:
			msg = "temporarily unavailable, retry"
		}
		return errorReply(req.RequestID, status, msg)
	}
	return WSReply{Event: EventCommandResult, RequestID: req.RequestID, Status: http.StatusOK, Result: &res}
}

func wsWrite(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
