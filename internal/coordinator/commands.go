package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playperu/tasting/internal/tasting"
)

// Actor is the resolved identity behind a command.
type Actor struct {
	UserID        string
	ParticipantID string
}

// IsModeratorOf reports whether a is the moderator of s.
func (a Actor) IsModeratorOf(s tasting.Session) bool {
	return a.UserID != "" && a.UserID == s.ModeratorID
}

// participant resolves a to a present participant of t.
func (a Actor) participant(t *tasting.Tasting) (tasting.Participant, bool) {
	var p tasting.Participant
	var ok bool
	if a.ParticipantID != "" {
		p, ok = t.Participants.Get(a.ParticipantID)
	} else {
		p, ok = t.Participants.ByUser(a.UserID)
	}
	if !ok || !p.Present() {
		return tasting.Participant{}, false
	}
	return p, true
}

func requireModerator(actor Actor, t *tasting.Tasting) error {
	if !actor.IsModeratorOf(t.Session) {
		return fmt.Errorf("%w: moderator only", tasting.ErrForbidden)
	}
	return nil
}

func requireParticipant(actor Actor, t *tasting.Tasting) (tasting.Participant, error) {
	p, ok := actor.participant(t)
	if !ok {
		return tasting.Participant{}, fmt.Errorf("%w: not a participant of this session", tasting.ErrForbidden)
	}
	return p, nil
}

// Result is returned to the originating caller of a command.
type Result struct {
	// Applied is false when the command was a harmless duplicate of a
	// transition that had already happened.
	Applied     bool                 `json:"applied"`
	Snapshot    Snapshot             `json:"snapshot"`
	Participant *tasting.Participant `json:"participant,omitempty"`
	Whiskey     *tasting.Whiskey     `json:"whiskey,omitempty"`
	Score       *tasting.Score       `json:"score,omitempty"`
}

type CreateSessionInput struct {
	Name                   string     `json:"name"`
	Theme                  string     `json:"theme"`
	ScheduledAt            *time.Time `json:"scheduledAt"`
	RequireAllReady        bool       `json:"requireAllReady"`
	AutoAdvanceOnAllScored bool       `json:"autoAdvanceOnAllScored"`
}

const inviteCodeAttempts = 3

// CreateSession creates a draft session moderated by actor.
func (c *Coordinator) CreateSession(ctx context.Context, actor Actor, in CreateSessionInput) (Result, error) {
	if actor.UserID == "" {
		c.metrics.command(ActionCreateSession, tasting.ErrForbidden)
		return Result{}, fmt.Errorf("%w: an identified user is required", tasting.ErrForbidden)
	}

	var lastErr error
	for range inviteCodeAttempts {
		code, err := c.newCode()
		if err != nil {
			return Result{}, fmt.Errorf("generating invite code: %w", err)
		}
		s, err := tasting.NewSession(c.newID(), actor.UserID, in.Name, in.Theme, code, in.ScheduledAt, c.clock.Now())
		if err != nil {
			c.metrics.command(ActionCreateSession, err)
			return Result{}, err
		}
		s.RequireAllReady = in.RequireAllReady
		s.AutoAdvanceOnAllScored = in.AutoAdvanceOnAllScored

		err = c.store.Atomic(ctx, func(tx Store) error { return tx.SaveSession(ctx, s) })
		if errors.Is(err, tasting.ErrConstraintViolation) {
			lastErr = err
			continue
		}
		if err != nil {
			c.metrics.command(ActionCreateSession, err)
			return Result{}, fmt.Errorf("saving session: %w", err)
		}

		t := tasting.NewTasting(s, nil, nil)
		if err := c.register(t); err != nil {
			return Result{}, err
		}
		c.metrics.command(ActionCreateSession, nil)
		c.logger.Info("session created", "session_id", s.ID, "moderator_id", s.ModeratorID)
		return Result{Applied: true, Snapshot: buildSnapshot(t, actor, c.clock.Now())}, nil
	}
	c.metrics.command(ActionCreateSession, lastErr)
	return Result{}, fmt.Errorf("allocating invite code: %w", lastErr)
}

type AddWhiskeyInput struct {
	Name       string  `json:"name"`
	Distillery string  `json:"distillery"`
	Region     string  `json:"region"`
	Age        int     `json:"age"`
	Proof      float64 `json:"proof"`
	Cask       string  `json:"cask"`
	PourSize   string  `json:"pourSize"`
	Notes      string  `json:"notes"`
}

func (c *Coordinator) AddWhiskey(ctx context.Context, actor Actor, sessionID string, in AddWhiskeyInput) (Result, error) {
	var added tasting.Whiskey
	t, err := c.exec(ctx, sessionID, ActionAddWhiskey, func(t *tasting.Tasting, m *mutation) error {
		if err := requireModerator(actor, t); err != nil {
			return err
		}
		w, err := t.Session.AddWhiskey(tasting.Whiskey{
			ID:         c.newID(),
			Name:       in.Name,
			Distillery: strings.TrimSpace(in.Distillery),
			Region:     strings.TrimSpace(in.Region),
			Age:        in.Age,
			Proof:      in.Proof,
			Cask:       strings.TrimSpace(in.Cask),
			PourSize:   strings.TrimSpace(in.PourSize),
			Notes:      in.Notes,
		})
		if err != nil {
			return err
		}
		added = w
		m.session = true
		m.emit(sessionUpdated(t))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Applied: true, Snapshot: buildSnapshot(t, actor, c.clock.Now()), Whiskey: &added}, nil
}

// Open moves a draft session to waiting.
func (c *Coordinator) Open(ctx context.Context, actor Actor, sessionID string) (Result, error) {
	return c.moderatorTransition(ctx, actor, sessionID, ActionOpen, func(t *tasting.Tasting, m *mutation) error {
		if err := t.Session.Open(); err != nil {
			return err
		}
		m.emit(sessionUpdated(t))
		return nil
	})
}

type JoinInput struct {
	InviteCode  string `json:"inviteCode"`
	DisplayName string `json:"displayName"`
}

// Join registers actor in the session the invite code resolves to.
func (c *Coordinator) Join(ctx context.Context, actor Actor, in JoinInput) (Result, error) {
	code := NormalizeInviteCode(in.InviteCode)
	if code == "" {
		c.metrics.command(ActionJoin, tasting.ErrInvalidInviteCode)
		return Result{}, tasting.ErrInvalidInviteCode
	}
	sessionID, err := c.store.SessionIDByInviteCode(ctx, code)
	if errors.Is(err, tasting.ErrNotFound) {
		c.metrics.command(ActionJoin, tasting.ErrInvalidInviteCode)
		return Result{}, tasting.ErrInvalidInviteCode
	}
	if err != nil {
		c.metrics.command(ActionJoin, err)
		return Result{}, fmt.Errorf("resolving invite code: %w", err)
	}

	var joined tasting.Participant
	t, err := c.exec(ctx, sessionID, ActionJoin, func(t *tasting.Tasting, m *mutation) error {
		p, err := t.Participants.Join(&t.Session, c.newID(), actor.UserID, in.DisplayName, c.clock.Now())
		if err != nil {
			return err
		}
		joined = p
		m.touch(p)
		m.emit(participantEvent(EventParticipantJoined, p, t))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	viewer := Actor{UserID: actor.UserID, ParticipantID: joined.ID}
	return Result{Applied: true, Snapshot: buildSnapshot(t, viewer, c.clock.Now()), Participant: &joined}, nil
}

// SetReady records the actor's readiness.
func (c *Coordinator) SetReady(ctx context.Context, actor Actor, sessionID string, ready bool) (Result, error) {
	var updated tasting.Participant
	t, err := c.exec(ctx, sessionID, ActionSetReady, func(t *tasting.Tasting, m *mutation) error {
		p, err := requireParticipant(actor, t)
		if err != nil {
			return err
		}
		p, err = t.Participants.SetReady(&t.Session, p.ID, ready)
		if err != nil {
			return err
		}
		updated = p
		m.touch(p)
		m.emit(participantEvent(EventParticipantReady, p, t))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Applied: true, Snapshot: buildSnapshot(t, actor, c.clock.Now()), Participant: &updated}, nil
}

// Leave marks the actor as departed. Locked scores stay in the ledger.
func (c *Coordinator) Leave(ctx context.Context, actor Actor, sessionID string) (Result, error) {
	var left tasting.Participant
	t, err := c.exec(ctx, sessionID, ActionLeave, func(t *tasting.Tasting, m *mutation) error {
		p, err := requireParticipant(actor, t)
		if err != nil {
			return err
		}
		p, err = t.Participants.Leave(&t.Session, p.ID, c.clock.Now())
		if err != nil {
			return err
		}
		left = p
		m.touch(p)
		m.emit(participantEvent(EventParticipantLeft, p, t))
		return c.autoAdvanceIfAllScored(t, m)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Applied: true, Snapshot: buildSnapshot(t, actor, c.clock.Now()), Participant: &left}, nil
}

// Start begins the tasting of the first whiskey.
func (c *Coordinator) Start(ctx context.Context, actor Actor, sessionID string) (Result, error) {
	return c.moderatorTransition(ctx, actor, sessionID, ActionStart, func(t *tasting.Tasting, m *mutation) error {
		if t.Session.RequireAllReady && !t.Participants.AllReady() {
			return tasting.ErrNotAllReady
		}
		if err := t.Session.Start(t.Participants.Count(), c.clock.Now(), c.cfg.Durations); err != nil {
			return err
		}
		m.touch(t.Participants.BeginTasting()...)
		m.emit(Event{Name: EventSessionStarted, Payload: sessionPayload(t)})
		return nil
	})
}

// AdvancePhase moves to the next phase. The epoch the moderator saw is
// required. A mismatch means another trigger already advanced this phase
// and the call is acknowledged without effect.
func (c *Coordinator) AdvancePhase(ctx context.Context, actor Actor, sessionID string, epoch int64) (Result, error) {
	return c.advance(ctx, sessionID, &actor, epoch)
}

// advance is shared by moderator and timer triggers. A nil actor is the
// system timer.
func (c *Coordinator) advance(ctx context.Context, sessionID string, actor *Actor, epoch int64) (Result, error) {
	t, err := c.exec(ctx, sessionID, ActionAdvance, func(t *tasting.Tasting, m *mutation) error {
		if actor != nil {
			if err := requireModerator(*actor, t); err != nil {
				return err
			}
			if epoch <= 0 {
				return fmt.Errorf("%w: epoch is required", tasting.ErrInvalidInput)
			}
		}
		if err := t.Session.CheckEpoch(epoch); err != nil {
			return err
		}
		return c.applyAdvance(t, m)
	})
	viewer := Actor{}
	if actor != nil {
		viewer = *actor
	}
	if errors.Is(err, tasting.ErrStaleState) && actor != nil {
		return Result{Applied: false, Snapshot: buildSnapshot(t, viewer, c.clock.Now())}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Applied: true, Snapshot: buildSnapshot(t, viewer, c.clock.Now())}, nil
}

func (c *Coordinator) applyAdvance(t *tasting.Tasting, m *mutation) error {
	tr, err := t.Session.AdvancePhase(c.clock.Now(), c.cfg.Durations)
	if err != nil {
		return err
	}
	m.session = true
	switch tr.Kind {
	case tasting.TransitionPhase:
		m.emit(advancedEvent(t, tr))
	case tasting.TransitionWhiskey:
		m.touch(t.Participants.FollowCursor(tr.WhiskeyIndex)...)
		m.emit(advancedEvent(t, tr))
	case tasting.TransitionReveal:
		m.touch(t.Participants.CompleteAll(t.Session.LastWhiskeyIndex())...)
		m.emit(revealEvent(t))
	default:
		return fmt.Errorf("unhandled transition kind %q", tr.Kind)
	}
	return nil
}

// EndReveal completes a revealed session.
func (c *Coordinator) EndReveal(ctx context.Context, actor Actor, sessionID string) (Result, error) {
	return c.moderatorTransition(ctx, actor, sessionID, ActionEndReveal, func(t *tasting.Tasting, m *mutation) error {
		if err := t.Session.EndReveal(c.clock.Now()); err != nil {
			return err
		}
		m.emit(endedEvent(t))
		return nil
	})
}

// Cancel terminates the session early.
func (c *Coordinator) Cancel(ctx context.Context, actor Actor, sessionID string) (Result, error) {
	return c.moderatorTransition(ctx, actor, sessionID, ActionCancel, func(t *tasting.Tasting, m *mutation) error {
		if err := t.Session.Cancel(c.clock.Now()); err != nil {
			return err
		}
		m.emit(endedEvent(t))
		return nil
	})
}

func (c *Coordinator) moderatorTransition(ctx context.Context, actor Actor, sessionID string, action Action, fn func(t *tasting.Tasting, m *mutation) error) (Result, error) {
	t, err := c.exec(ctx, sessionID, action, func(t *tasting.Tasting, m *mutation) error {
		if err := requireModerator(actor, t); err != nil {
			return err
		}
		if err := fn(t, m); err != nil {
			return err
		}
		m.session = true
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Applied: true, Snapshot: buildSnapshot(t, actor, c.clock.Now())}, nil
}

// SubmitScore locks the actor's score for the current whiskey.
func (c *Coordinator) SubmitScore(ctx context.Context, actor Actor, sessionID string, in tasting.ScoreInput) (Result, error) {
	var locked tasting.Score
	t, err := c.exec(ctx, sessionID, ActionSubmitScore, func(t *tasting.Tasting, m *mutation) error {
		p, err := requireParticipant(actor, t)
		if err != nil {
			return err
		}
		score, err := t.Scores.Submit(&t.Session, p, c.newID(), in, c.clock.Now())
		if err != nil {
			return err
		}
		locked = score
		m.scores = append(m.scores, score)
		if t.Session.CurrentWhiskeyIndex == t.Session.LastWhiskeyIndex() {
			done, err := t.Participants.MarkCompleted(p.ID, t.Session.LastWhiskeyIndex())
			if err != nil {
				return err
			}
			m.touch(done)
		}
		m.emit(scoreLockedEvent(t, score))
		return c.autoAdvanceIfAllScored(t, m)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Applied: true, Snapshot: buildSnapshot(t, actor, c.clock.Now()), Score: &locked}, nil
}

// autoAdvanceIfAllScored closes the scoring phase once every present
// participant has locked, for sessions that opted in.
func (c *Coordinator) autoAdvanceIfAllScored(t *tasting.Tasting, m *mutation) error {
	s := &t.Session
	if !s.AutoAdvanceOnAllScored || s.Status != tasting.StatusActive || s.CurrentPhase != tasting.PhaseScoring {
		return nil
	}
	w, ok := s.CurrentWhiskey()
	if !ok || !t.Scores.AllLocked(w.ID, t.Participants.Present()) {
		return nil
	}
	return c.applyAdvance(t, m)
}

// Connect registers an open connection of actor and returns the state the
// connection should start from. Reconnecting clients get a fresh snapshot
// rather than a replay.
func (c *Coordinator) Connect(ctx context.Context, actor Actor, sessionID string) (Snapshot, error) {
	t, err := c.exec(ctx, sessionID, ActionConnect, func(t *tasting.Tasting, m *mutation) error {
		if err := authorizeViewer(actor, t); err != nil {
			return err
		}
		if !actor.IsModeratorOf(t.Session) {
			return nil
		}
		a := c.lookup(sessionID)
		m.onCommit(func() { a.moderators++ })
		if c.cfg.PauseOnModeratorDisconnect && t.Session.Paused {
			if err := t.Session.Resume(c.clock.Now()); err != nil {
				return err
			}
			m.session = true
			m.emit(sessionUpdated(t))
			c.logger.Info("moderator reconnected, timer resumed", "session_id", sessionID)
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return buildSnapshot(t, actor, c.clock.Now()), nil
}

// Disconnect is the counterpart of Connect.
func (c *Coordinator) Disconnect(ctx context.Context, actor Actor, sessionID string) error {
	_, err := c.exec(ctx, sessionID, ActionDisconnect, func(t *tasting.Tasting, m *mutation) error {
		if !actor.IsModeratorOf(t.Session) {
			return nil
		}
		a := c.lookup(sessionID)
		if a.moderators > 0 {
			a.moderators--
		}
		if c.cfg.PauseOnModeratorDisconnect && a.moderators == 0 &&
			t.Session.Status == tasting.StatusActive && t.Session.PhaseDeadline != nil {
			if err := t.Session.Pause(c.clock.Now()); err != nil {
				return err
			}
			m.session = true
			m.emit(sessionUpdated(t))
			c.logger.Info("moderator disconnected, timer paused", "session_id", sessionID)
		}
		return nil
	})
	return err
}

// Snapshot returns the current state as actor may see it.
func (c *Coordinator) Snapshot(ctx context.Context, actor Actor, sessionID string) (Snapshot, error) {
	a, err := c.acquire(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	a.mu.Lock()
	t := a.state
	a.mu.Unlock()
	if err := authorizeViewer(actor, t); err != nil {
		return Snapshot{}, err
	}
	return buildSnapshot(t, actor, c.clock.Now()), nil
}

// Results returns rankings and every score once the session is revealed.
func (c *Coordinator) Results(ctx context.Context, actor Actor, sessionID string) (Results, error) {
	a, err := c.acquire(ctx, sessionID)
	if err != nil {
		return Results{}, err
	}
	a.mu.Lock()
	t := a.state
	a.mu.Unlock()
	if err := authorizeViewer(actor, t); err != nil {
		return Results{}, err
	}
	if !t.Session.Status.Revealed() {
		return Results{}, fmt.Errorf("%w: results are published at reveal", tasting.ErrInvalidTransition)
	}
	return buildResults(t), nil
}

// lookup returns an already acquired actor. Callers run inside exec.
func (c *Coordinator) lookup(sessionID string) *actor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[sessionID]
}

// authorizeViewer admits the moderator and anyone who ever joined.
func authorizeViewer(actor Actor, t *tasting.Tasting) error {
	if actor.IsModeratorOf(t.Session) {
		return nil
	}
	if actor.ParticipantID != "" {
		if _, ok := t.Participants.Get(actor.ParticipantID); ok {
			return nil
		}
	}
	if _, ok := t.Participants.ByUser(actor.UserID); ok {
		return nil
	}
	return fmt.Errorf("%w: not a member of this session", tasting.ErrForbidden)
}
