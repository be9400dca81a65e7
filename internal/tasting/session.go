package tasting

import (
	"fmt"
	"strings"
	"time"
)

// TransitionKind classifies the effect of AdvancePhase.
type TransitionKind string

const (
	// TransitionPhase moved to the next phase of the same whiskey.
	TransitionPhase TransitionKind = "phase"
	// TransitionWhiskey wrapped from palate-reset to the next whiskey's pour.
	TransitionWhiskey TransitionKind = "whiskey"
	// TransitionReveal ended the last whiskey and entered reveal.
	TransitionReveal TransitionKind = "reveal"
)

type Transition struct {
	Kind         TransitionKind
	FromPhase    Phase
	ToPhase      Phase
	WhiskeyIndex int
}

// NewSession builds a draft session owned by moderatorID.
func NewSession(id, moderatorID, name, theme, inviteCode string, scheduledAt *time.Time, now time.Time) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if moderatorID == "" {
		return Session{}, fmt.Errorf("%w: moderator is required", ErrInvalidInput)
	}
	return Session{
		ID:          id,
		Name:        name,
		Theme:       strings.TrimSpace(theme),
		ScheduledAt: scheduledAt,
		InviteCode:  inviteCode,
		ModeratorID: moderatorID,
		Status:      StatusDraft,
		Whiskeys:    []Whiskey{},
		CreatedAt:   now,
	}, nil
}

// CurrentWhiskey returns the whiskey under the cursor while active or in
// reveal.
func (s *Session) CurrentWhiskey() (Whiskey, bool) {
	if s.Status != StatusActive && s.Status != StatusReveal {
		return Whiskey{}, false
	}
	if s.CurrentWhiskeyIndex < 0 || s.CurrentWhiskeyIndex >= len(s.Whiskeys) {
		return Whiskey{}, false
	}
	return s.Whiskeys[s.CurrentWhiskeyIndex], true
}

func (s *Session) Whiskey(id string) (Whiskey, bool) {
	for _, w := range s.Whiskeys {
		if w.ID == id {
			return w, true
		}
	}
	return Whiskey{}, false
}

func (s *Session) LastWhiskeyIndex() int { return len(s.Whiskeys) - 1 }

// AddWhiskey appends w to the lineup. The lineup is frozen once the
// session leaves draft.
func (s *Session) AddWhiskey(w Whiskey) (Whiskey, error) {
	if s.Status != StatusDraft {
		return Whiskey{}, fmt.Errorf("%w: whiskeys are read-only once the session is %s", ErrInvalidTransition, s.Status)
	}
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return Whiskey{}, fmt.Errorf("%w: whiskey name is required", ErrInvalidInput)
	}
	if w.Proof < 0 || w.Age < 0 {
		return Whiskey{}, fmt.Errorf("%w: proof and age must not be negative", ErrInvalidInput)
	}
	w.DisplayNumber = len(s.Whiskeys) + 1
	s.Whiskeys = append(s.Whiskeys, w)
	return w, nil
}

// Open publishes a draft session so the lineup is fixed and the moderator
// can start once participants are in.
func (s *Session) Open() error {
	if s.Status != StatusDraft {
		return fmt.Errorf("%w: cannot open a %s session", ErrInvalidTransition, s.Status)
	}
	if len(s.Whiskeys) == 0 {
		return fmt.Errorf("%w: at least one whiskey is required", ErrInvalidTransition)
	}
	s.moveTo(StatusWaiting)
	s.Epoch++
	return nil
}

// Start begins the first whiskey.
func (s *Session) Start(participants int, now time.Time, d PhaseDurations) error {
	if s.Status != StatusWaiting {
		return fmt.Errorf("%w: cannot start a %s session", ErrInvalidTransition, s.Status)
	}
	if participants < 1 {
		return fmt.Errorf("%w: at least one participant is required", ErrInvalidTransition)
	}
	if len(s.Whiskeys) == 0 {
		return fmt.Errorf("%w: at least one whiskey is required", ErrInvalidTransition)
	}
	s.moveTo(StatusActive)
	s.CurrentWhiskeyIndex = 0
	s.StartedAt = &now
	s.enterPhase(PhasePour, now, d)
	return nil
}

// moveTo sets the status. The lifecycle only runs forward; moving back is
// a programming error.
func (s *Session) moveTo(next Status) {
	if next.order() < s.Status.order() {
		panic(fmt.Sprintf("tasting: status %s cannot follow %s", next, s.Status))
	}
	s.Status = next
}

// Validate rejects a stored session whose status or phase this version
// does not know.
func (s *Session) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s.Status)
	}
	if s.CurrentPhase != "" && !s.CurrentPhase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidInput, s.CurrentPhase)
	}
	return nil
}

// CheckEpoch returns ErrStaleState when expected differs from the current
// epoch.
func (s *Session) CheckEpoch(expected int64) error {
	if expected != s.Epoch {
		return fmt.Errorf("%w: epoch %d superseded by %d", ErrStaleState, expected, s.Epoch)
	}
	return nil
}

// AdvancePhase moves the phase cursor forward, wrapping to the next
// whiskey after palate-reset, or entering reveal after the last whiskey.
func (s *Session) AdvancePhase(now time.Time, d PhaseDurations) (Transition, error) {
	if s.Status != StatusActive {
		return Transition{}, fmt.Errorf("%w: cannot advance a %s session", ErrInvalidTransition, s.Status)
	}
	from := s.CurrentPhase
	if next, ok := from.Next(); ok {
		s.enterPhase(next, now, d)
		return Transition{Kind: TransitionPhase, FromPhase: from, ToPhase: next, WhiskeyIndex: s.CurrentWhiskeyIndex}, nil
	}
	if s.CurrentWhiskeyIndex < s.LastWhiskeyIndex() {
		s.CurrentWhiskeyIndex++
		s.enterPhase(PhasePour, now, d)
		return Transition{Kind: TransitionWhiskey, FromPhase: from, ToPhase: PhasePour, WhiskeyIndex: s.CurrentWhiskeyIndex}, nil
	}
	s.moveTo(StatusReveal)
	s.CurrentPhase = ""
	s.clearTimer()
	s.Epoch++
	return Transition{Kind: TransitionReveal, FromPhase: from, WhiskeyIndex: s.CurrentWhiskeyIndex}, nil
}

// EndReveal closes a revealed session.
func (s *Session) EndReveal(now time.Time) error {
	if s.Status != StatusReveal {
		return fmt.Errorf("%w: cannot end reveal of a %s session", ErrInvalidTransition, s.Status)
	}
	s.moveTo(StatusCompleted)
	s.EndedAt = &now
	s.Epoch++
	return nil
}

// Cancel terminates the session early from any non-terminal state.
func (s *Session) Cancel(now time.Time) error {
	if s.Status.Terminal() {
		return fmt.Errorf("%w: session already completed", ErrInvalidTransition)
	}
	s.moveTo(StatusCompleted)
	s.Cancelled = true
	s.CurrentPhase = ""
	s.clearTimer()
	s.EndedAt = &now
	s.Epoch++
	return nil
}

// Pause suspends the running phase timer, keeping its remaining duration.
func (s *Session) Pause(now time.Time) error {
	if s.Status != StatusActive || s.Paused || s.PhaseDeadline == nil {
		return fmt.Errorf("%w: no running timer to pause", ErrInvalidTransition)
	}
	remaining := s.PhaseDeadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	s.Paused = true
	s.PausedRemaining = remaining
	s.PhaseDeadline = nil
	s.Epoch++
	return nil
}

// Resume re-arms a paused timer with its remaining duration.
func (s *Session) Resume(now time.Time) error {
	if s.Status != StatusActive || !s.Paused {
		return fmt.Errorf("%w: session is not paused", ErrInvalidTransition)
	}
	deadline := now.Add(s.PausedRemaining)
	s.Paused = false
	s.PausedRemaining = 0
	s.PhaseDeadline = &deadline
	s.Epoch++
	return nil
}

func (s *Session) enterPhase(p Phase, now time.Time, d PhaseDurations) {
	s.CurrentPhase = p
	s.clearTimer()
	if dur := d.For(p); dur > 0 {
		deadline := now.Add(dur)
		s.PhaseDeadline = &deadline
	}
	s.Epoch++
}

func (s *Session) clearTimer() {
	s.PhaseDeadline = nil
	s.Paused = false
	s.PausedRemaining = 0
}
