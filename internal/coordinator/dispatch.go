package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playperu/tasting/internal/tasting"
)

// Action names a command. The same names are accepted over the socket.
type Action string

const (
	ActionCreateSession Action = "createSession"
	ActionAddWhiskey    Action = "addWhiskey"
	ActionOpen          Action = "open"
	ActionJoin          Action = "join"
	ActionSetReady      Action = "setReady"
	ActionLeave         Action = "leave"
	ActionStart         Action = "start"
	ActionAdvance       Action = "advancePhase"
	ActionEndReveal     Action = "endReveal"
	ActionCancel        Action = "cancel"
	ActionSubmitScore   Action = "submitScore"
	ActionConnect       Action = "connect"
	ActionDisconnect    Action = "disconnect"
)

// Command is the transport-neutral form of a session action.
type Command struct {
	Actor     Actor           `json:"-"`
	SessionID string          `json:"sessionId"`
	Action    Action          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type readyPayload struct {
	Ready *bool `json:"ready"`
}

type advancePayload struct {
	Epoch int64 `json:"epoch"`
}

// Dispatch decodes the payload of cmd and runs the matching operation.
func (c *Coordinator) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Action {
	case ActionAddWhiskey:
		var in AddWhiskeyInput
		if err := decodePayload(cmd.Payload, &in); err != nil {
			return Result{}, err
		}
		return c.AddWhiskey(ctx, cmd.Actor, cmd.SessionID, in)
	case ActionOpen:
		return c.Open(ctx, cmd.Actor, cmd.SessionID)
	case ActionJoin:
		var in JoinInput
		if err := decodePayload(cmd.Payload, &in); err != nil {
			return Result{}, err
		}
		return c.Join(ctx, cmd.Actor, in)
	case ActionSetReady:
		var in readyPayload
		if err := decodePayload(cmd.Payload, &in); err != nil {
			return Result{}, err
		}
		ready := in.Ready == nil || *in.Ready
		return c.SetReady(ctx, cmd.Actor, cmd.SessionID, ready)
	case ActionLeave:
		return c.Leave(ctx, cmd.Actor, cmd.SessionID)
	case ActionStart:
		return c.Start(ctx, cmd.Actor, cmd.SessionID)
	case ActionAdvance:
		var in advancePayload
		if err := decodePayload(cmd.Payload, &in); err != nil {
			return Result{}, err
		}
		return c.AdvancePhase(ctx, cmd.Actor, cmd.SessionID, in.Epoch)
	case ActionEndReveal:
		return c.EndReveal(ctx, cmd.Actor, cmd.SessionID)
	case ActionCancel:
		return c.Cancel(ctx, cmd.Actor, cmd.SessionID)
	case ActionSubmitScore:
		var in tasting.ScoreInput
		if err := decodePayload(cmd.Payload, &in); err != nil {
			return Result{}, err
		}
		return c.SubmitScore(ctx, cmd.Actor, cmd.SessionID, in)
	default:
		return Result{}, fmt.Errorf("%w: unknown action %q", tasting.ErrInvalidInput, cmd.Action)
	}
}

// decodePayload accepts an empty payload as the zero value.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: payload: %v", tasting.ErrInvalidInput, err)
	}
	return nil
}
