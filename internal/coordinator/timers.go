package coordinator

import (
	"context"
	"errors"

	"github.com/playperu/tasting/internal/tasting"
)

// syncTimer keeps at most one armed timer per session, bound to the epoch
// it was armed for. Callers hold a.mu.
func (c *Coordinator) syncTimer(a *actor) {
	s := a.state.Session
	if a.timer != nil && a.timerEpoch == s.Epoch {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if s.Status != tasting.StatusActive || s.Paused || s.PhaseDeadline == nil {
		return
	}

	d := s.PhaseDeadline.Sub(c.clock.Now())
	if d < 0 {
		d = 0
	}
	epoch := s.Epoch
	a.timerEpoch = epoch
	a.timer = c.clock.AfterFunc(d, func() { c.onTimer(a.id, epoch, false) })
}

// onTimer advances the phase the timer was armed for. A timer whose epoch
// was superseded is a no-op. A failed advance is retried once after the
// configured backoff.
func (c *Coordinator) onTimer(sessionID string, epoch int64, retry bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TimerTimeout)
	defer cancel()

	log := c.logger.With("session_id", sessionID, "epoch", epoch)

	_, err := c.advance(ctx, sessionID, nil, epoch)
	switch {
	case err == nil:
		c.metrics.timerFired("applied")
		log.Debug("timer advanced phase")
		return
	case errors.Is(err, tasting.ErrStaleState), errors.Is(err, tasting.ErrInvalidTransition), errors.Is(err, ErrClosed):
		c.metrics.timerFired("stale")
		return
	case retry:
		c.metrics.timerFired("abandoned")
		log.Error("timer advance failed after retry", "error", err)
		return
	}

	c.metrics.timerFired("retry")
	log.Warn("timer advance failed, retrying", "error", err, "backoff", c.cfg.TimerRetryBackoff)

	c.mu.Lock()
	a, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.state.Session.Epoch != epoch {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timerEpoch = epoch
	a.timer = c.clock.AfterFunc(c.cfg.TimerRetryBackoff, func() { c.onTimer(sessionID, epoch, true) })
}
