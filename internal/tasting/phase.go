package tasting

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusReveal    Status = "reveal"
	StatusCompleted Status = "completed"
)

// order returns the position of s in the forward-only lifecycle.
func (s Status) order() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusWaiting:
		return 1
	case StatusActive:
		return 2
	case StatusReveal:
		return 3
	case StatusCompleted:
		return 4
	}
	panic(fmt.Sprintf("tasting: unknown status %q", string(s)))
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusWaiting, StatusActive, StatusReveal, StatusCompleted:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusCompleted }

// Joinable reports whether participants may still join.
func (s Status) Joinable() bool { return s == StatusDraft || s == StatusWaiting }

// Revealed reports whether whiskey identities are public.
func (s Status) Revealed() bool { return s == StatusReveal || s == StatusCompleted }

// Phase is a step within the tasting of one whiskey.
type Phase string

const (
	PhasePour         Phase = "pour"
	PhaseNosing       Phase = "nosing"
	PhaseTastingNeat  Phase = "tasting-neat"
	PhaseTastingWater Phase = "tasting-water"
	PhaseScoring      Phase = "scoring"
	PhasePalateReset  Phase = "palate-reset"
)

// Phases is the fixed order every whiskey goes through.
var Phases = []Phase{
	PhasePour,
	PhaseNosing,
	PhaseTastingNeat,
	PhaseTastingWater,
	PhaseScoring,
	PhasePalateReset,
}

func (p Phase) Valid() bool {
	switch p {
	case PhasePour, PhaseNosing, PhaseTastingNeat, PhaseTastingWater, PhaseScoring, PhasePalateReset:
		return true
	}
	return false
}

// Next returns the successor of p within one whiskey. The second result is
// false when p is the terminal phase.
func (p Phase) Next() (Phase, bool) {
	switch p {
	case PhasePour:
		return PhaseNosing, true
	case PhaseNosing:
		return PhaseTastingNeat, true
	case PhaseTastingNeat:
		return PhaseTastingWater, true
	case PhaseTastingWater:
		return PhaseScoring, true
	case PhaseScoring:
		return PhasePalateReset, true
	case PhasePalateReset:
		return "", false
	}
	panic(fmt.Sprintf("tasting: unknown phase %q", string(p)))
}

// PhaseDurations holds the timer length of the timed phases. Phases not
// listed here have no timer and wait for an explicit trigger.
type PhaseDurations struct {
	Nosing      time.Duration
	PalateReset time.Duration
}

func DefaultDurations() PhaseDurations {
	return PhaseDurations{
		Nosing:      60 * time.Second,
		PalateReset: 180 * time.Second,
	}
}

// For returns the timer length of p, zero for untimed phases.
func (d PhaseDurations) For(p Phase) time.Duration {
	switch p {
	case PhaseNosing:
		return d.Nosing
	case PhasePalateReset:
		return d.PalateReset
	case PhasePour, PhaseTastingNeat, PhaseTastingWater, PhaseScoring:
		return 0
	}
	panic(fmt.Sprintf("tasting: unknown phase %q", string(p)))
}
