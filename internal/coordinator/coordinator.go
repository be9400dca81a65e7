// Package coordinator serializes every command against a tasting session,
// persists the result and fans the resulting events out in order.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/tasting/internal/clock"
	"github.com/playperu/tasting/internal/tasting"
)

var ErrClosed = errors.New("coordinator closed")

// Store is the persistence collaborator. Implementations report transient
// failures as tasting.ErrStorageUnavailable, missing records as
// tasting.ErrNotFound and unique-key clashes as tasting.ErrConstraintViolation.
type Store interface {
	LoadSession(ctx context.Context, id string) (tasting.Session, error)
	SaveSession(ctx context.Context, s tasting.Session) error
	LoadParticipants(ctx context.Context, sessionID string) ([]tasting.Participant, error)
	SaveParticipant(ctx context.Context, p tasting.Participant) error
	LoadScores(ctx context.Context, sessionID string) ([]tasting.Score, error)
	SaveScore(ctx context.Context, s tasting.Score) error
	SessionIDByInviteCode(ctx context.Context, code string) (string, error)
	// Atomic runs fn so that every save made through the given Store
	// commits together or not at all.
	Atomic(ctx context.Context, fn func(Store) error) error
}

// Publisher is the broadcast collaborator.
type Publisher interface {
	Publish(sessionID string, ev Event)
	// Resync disconnects every subscriber of the session so each reconnects
	// and starts over from a fresh snapshot. It is called after events were
	// lost on the way out.
	Resync(sessionID string)
}

type Config struct {
	Durations tasting.PhaseDurations
	// TimerRetryBackoff is the delay before a failed timer-fired advance
	// is tried a second and last time.
	TimerRetryBackoff time.Duration
	// TimerTimeout bounds the persistence of a timer-fired advance.
	TimerTimeout time.Duration
	// PauseOnModeratorDisconnect suspends the running phase timer while
	// the moderator has no open connection.
	PauseOnModeratorDisconnect bool
	OutboxSize                 int
}

func DefaultConfig() Config {
	return Config{
		Durations:         tasting.DefaultDurations(),
		TimerRetryBackoff: 2 * time.Second,
		TimerTimeout:      10 * time.Second,
		OutboxSize:        256,
	}
}

type Coordinator struct {
	store   Store
	pub     Publisher
	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics
	cfg     Config

	newID   func() string
	newCode func() (string, error)

	mu       sync.Mutex
	sessions map[string]*actor
	closed   bool
}

type Option func(*Coordinator)

func WithClock(c clock.Clock) Option { return func(co *Coordinator) { co.clock = c } }

func WithMetrics(m *Metrics) Option { return func(co *Coordinator) { co.metrics = m } }

func WithIDGenerator(f func() string) Option { return func(co *Coordinator) { co.newID = f } }

func WithInviteCodes(f func() (string, error)) Option { return func(co *Coordinator) { co.newCode = f } }

func New(store Store, pub Publisher, logger *slog.Logger, cfg Config, opts ...Option) *Coordinator {
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = DefaultConfig().OutboxSize
	}
	if cfg.TimerTimeout <= 0 {
		cfg.TimerTimeout = DefaultConfig().TimerTimeout
	}
	c := &Coordinator{
		store:    store,
		pub:      pub,
		clock:    clock.Real{},
		logger:   logger.With("component", "coordinator"),
		cfg:      cfg,
		newID:    uuid.NewString,
		newCode:  NewInviteCode,
		sessions: make(map[string]*actor),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// actor owns one session. Its mutex is the session's single-writer region.
type actor struct {
	id string

	loaded  chan struct{}
	loadErr error

	mu         sync.Mutex
	state      *tasting.Tasting
	timer      clock.Timer
	timerEpoch int64
	moderators int
	closed     bool
	overflowed bool

	outbox chan Event
	done   chan struct{}
}

// mutation lists what a command changed. Only these records are written.
type mutation struct {
	session      bool
	participants []tasting.Participant
	scores       []tasting.Score
	events       []Event
	committed    []func()
}

func (m *mutation) empty() bool {
	return !m.session && len(m.participants) == 0 && len(m.scores) == 0
}

func (m *mutation) touch(ps ...tasting.Participant) {
	m.participants = append(m.participants, ps...)
}

func (m *mutation) emit(ev Event) { m.events = append(m.events, ev) }

// onCommit defers f until the command's changes are persisted. It runs
// under the session lock.
func (m *mutation) onCommit(f func()) { m.committed = append(m.committed, f) }

func (c *Coordinator) newActor(id string) *actor {
	return &actor{
		id:     id,
		loaded: make(chan struct{}),
		outbox: make(chan Event, c.cfg.OutboxSize),
		done:   make(chan struct{}),
	}
}

// acquire returns the loaded actor for id, loading it from the store on
// first use. Loading one session never blocks commands on another.
func (c *Coordinator) acquire(ctx context.Context, id string) (*actor, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	a, ok := c.sessions[id]
	if !ok {
		a = c.newActor(id)
		c.sessions[id] = a
	}
	c.mu.Unlock()

	if !ok {
		a.loadErr = c.load(ctx, a)
		if a.loadErr != nil {
			c.mu.Lock()
			delete(c.sessions, id)
			c.mu.Unlock()
		}
		close(a.loaded)
	}

	select {
	case <-a.loaded:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if a.loadErr != nil {
		return nil, a.loadErr
	}
	return a, nil
}

func (c *Coordinator) load(ctx context.Context, a *actor) error {
	s, err := c.store.LoadSession(ctx, a.id)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", a.id, err)
	}
	ps, err := c.store.LoadParticipants(ctx, a.id)
	if err != nil {
		return fmt.Errorf("loading participants of %s: %w", a.id, err)
	}
	scores, err := c.store.LoadScores(ctx, a.id)
	if err != nil {
		return fmt.Errorf("loading scores of %s: %w", a.id, err)
	}

	a.mu.Lock()
	a.state = tasting.NewTasting(s, ps, scores)
	c.syncTimer(a)
	a.mu.Unlock()

	go c.pump(a)
	c.metrics.sessionLoaded()
	c.logger.Debug("session loaded", "session_id", a.id, "status", s.Status, "epoch", s.Epoch)
	return nil
}

// Warm loads the given sessions so their phase timers are armed again
// after a restart. It stops at the first failure.
func (c *Coordinator) Warm(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if _, err := c.acquire(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// register installs a freshly created session without a store round trip.
func (c *Coordinator) register(t *tasting.Tasting) error {
	a := c.newActor(t.Session.ID)
	a.state = t
	close(a.loaded)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.sessions[a.id] = a
	go c.pump(a)
	c.metrics.sessionLoaded()
	return nil
}

// exec runs fn on a copy of the session state under the session lock. The
// copy replaces the live state only once its changes are persisted, then
// its events are queued in application order.
func (c *Coordinator) exec(ctx context.Context, sessionID string, action Action, fn func(t *tasting.Tasting, m *mutation) error) (*tasting.Tasting, error) {
	a, err := c.acquire(ctx, sessionID)
	if err != nil {
		c.metrics.command(action, err)
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	next := a.state.Clone()
	m := &mutation{}
	if err := fn(next, m); err != nil {
		c.metrics.command(action, err)
		if errors.Is(err, tasting.ErrStaleState) {
			c.logger.Debug("stale transition ignored", "session_id", sessionID, "action", action, "error", err)
			return a.state, err
		}
		c.logger.Debug("command rejected", "session_id", sessionID, "action", action, "error", err)
		return nil, err
	}

	if !m.empty() {
		if err := c.persist(ctx, next, m); err != nil {
			c.metrics.command(action, err)
			c.logger.Warn("command not persisted", "session_id", sessionID, "action", action, "error", err)
			return nil, err
		}
	}

	a.state = next
	for _, f := range m.committed {
		f()
	}
	c.syncTimer(a)
	for _, ev := range m.events {
		ev.SessionID = sessionID
		ev.Epoch = next.Session.Epoch
		c.enqueue(a, ev)
	}
	c.metrics.command(action, nil)
	return next, nil
}

func (c *Coordinator) persist(ctx context.Context, next *tasting.Tasting, m *mutation) error {
	err := c.store.Atomic(ctx, func(tx Store) error {
		for _, s := range m.scores {
			if err := tx.SaveScore(ctx, s); err != nil {
				if errors.Is(err, tasting.ErrConstraintViolation) {
					return tasting.ErrAlreadyLocked
				}
				return fmt.Errorf("saving score %s: %w", s.ID, err)
			}
		}
		for _, p := range m.participants {
			if err := tx.SaveParticipant(ctx, p); err != nil {
				return fmt.Errorf("saving participant %s: %w", p.ID, err)
			}
		}
		if m.session {
			if err := tx.SaveSession(ctx, next.Session); err != nil {
				return fmt.Errorf("saving session: %w", err)
			}
		}
		return nil
	})
	return err
}

// enqueue hands ev to the pump without blocking. Once the outbox is full
// the session's events are dropped until the pump has drained it, then its
// subscribers are resynced. Callers hold a.mu.
func (c *Coordinator) enqueue(a *actor, ev Event) {
	if !a.overflowed {
		select {
		case a.outbox <- ev:
			return
		default:
			a.overflowed = true
			c.logger.Warn("outbox full, dropping events until subscribers resync", "session_id", a.id, "event", ev.Name)
		}
	}
	c.metrics.droppedEvent(ev.Name)
}

func (c *Coordinator) pump(a *actor) {
	defer close(a.done)
	for ev := range a.outbox {
		c.pub.Publish(a.id, ev)
		c.metrics.published(ev.Name)
		if len(a.outbox) == 0 && c.drained(a) {
			c.logger.Info("resyncing subscribers after dropped events", "session_id", a.id)
			c.pub.Resync(a.id)
		}
	}
}

// drained reports whether the outbox overflowed and is now empty, clearing
// the overflow so later events flow again.
func (c *Coordinator) drained(a *actor) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.overflowed || len(a.outbox) > 0 {
		return false
	}
	a.overflowed = false
	return true
}

// Close stops every timer and waits for queued events to be published.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	actors := make([]*actor, 0, len(c.sessions))
	for _, a := range c.sessions {
		actors = append(actors, a)
	}
	c.mu.Unlock()

	for _, a := range actors {
		<-a.loaded
		if a.loadErr != nil {
			continue
		}
		a.mu.Lock()
		if a.timer != nil {
			a.timer.Stop()
			a.timer = nil
		}
		a.closed = true
		close(a.outbox)
		a.mu.Unlock()
		<-a.done
	}
}
