package coordinator

import (
	"time"

	"github.com/playperu/tasting/internal/tasting"
)

// Event names pushed to subscribers of a session.
const (
	EventSessionSnapshot   = "session:snapshot"
	EventSessionUpdated    = "session:updated"
	EventSessionStarted    = "session:started"
	EventSessionAdvanced   = "session:advanced"
	EventSessionReveal     = "session:reveal"
	EventSessionEnded      = "session:ended"
	EventParticipantJoined = "participant:joined"
	EventParticipantLeft   = "participant:left"
	EventParticipantReady  = "participant:ready"
	EventScoreLocked       = "score:locked"
)

// Event is one broadcast delta. Payloads are safe for every subscriber:
// whiskey identities stay redacted before reveal.
type Event struct {
	Name      string `json:"event"`
	SessionID string `json:"sessionId"`
	Epoch     int64  `json:"epoch"`
	Payload   any    `json:"payload"`
}

// SessionPayload is the public head of a session.
type SessionPayload struct {
	Status              tasting.Status       `json:"status"`
	CurrentWhiskeyIndex int                  `json:"currentWhiskeyIndex"`
	CurrentPhase        tasting.Phase        `json:"currentPhase,omitempty"`
	PhaseDeadline       *time.Time           `json:"phaseDeadline,omitempty"`
	Paused              bool                 `json:"paused"`
	PausedRemainingMs   int64                `json:"pausedRemainingMs,omitempty"`
	Cancelled           bool                 `json:"cancelled"`
	WhiskeyCount        int                  `json:"whiskeyCount"`
	CurrentWhiskey      *tasting.WhiskeyView `json:"currentWhiskey,omitempty"`
}

func sessionPayload(t *tasting.Tasting) SessionPayload {
	s := &t.Session
	p := SessionPayload{
		Status:              s.Status,
		CurrentWhiskeyIndex: s.CurrentWhiskeyIndex,
		CurrentPhase:        s.CurrentPhase,
		PhaseDeadline:       s.PhaseDeadline,
		Paused:              s.Paused,
		PausedRemainingMs:   s.PausedRemaining.Milliseconds(),
		Cancelled:           s.Cancelled,
		WhiskeyCount:        len(s.Whiskeys),
	}
	if s.Status == tasting.StatusActive {
		if w, ok := s.CurrentWhiskey(); ok {
			v := w.View(false)
			p.CurrentWhiskey = &v
		}
	}
	return p
}

func sessionUpdated(t *tasting.Tasting) Event {
	return Event{Name: EventSessionUpdated, Payload: sessionPayload(t)}
}

type AdvancedPayload struct {
	SessionPayload
	FromPhase  tasting.Phase `json:"fromPhase"`
	NewWhiskey bool          `json:"newWhiskey"`
}

func advancedEvent(t *tasting.Tasting, tr tasting.Transition) Event {
	return Event{Name: EventSessionAdvanced, Payload: AdvancedPayload{
		SessionPayload: sessionPayload(t),
		FromPhase:      tr.FromPhase,
		NewWhiskey:     tr.Kind == tasting.TransitionWhiskey,
	}}
}

type RevealPayload struct {
	SessionPayload
	Whiskeys []tasting.WhiskeyView `json:"whiskeys"`
	Rankings []tasting.Ranking     `json:"rankings"`
}

func revealEvent(t *tasting.Tasting) Event {
	return Event{Name: EventSessionReveal, Payload: RevealPayload{
		SessionPayload: sessionPayload(t),
		Whiskeys:       t.Session.WhiskeyViews(false),
		Rankings:       tasting.Rank(t.Session.Whiskeys, t.Scores.All()),
	}}
}

func endedEvent(t *tasting.Tasting) Event {
	return Event{Name: EventSessionEnded, Payload: sessionPayload(t)}
}

type ParticipantPayload struct {
	Participant  tasting.ParticipantView `json:"participant"`
	PresentCount int                     `json:"presentCount"`
}

func participantEvent(name string, p tasting.Participant, t *tasting.Tasting) Event {
	return Event{Name: name, Payload: ParticipantPayload{
		Participant:  p.View(),
		PresentCount: t.Participants.Count(),
	}}
}

// ScoreLockedPayload carries no ratings or notes.
type ScoreLockedPayload struct {
	ParticipantID string `json:"participantId"`
	WhiskeyID     string `json:"whiskeyId"`
	WhiskeyIndex  int    `json:"whiskeyIndex"`
	LockedCount   int    `json:"lockedCount"`
	PresentCount  int    `json:"presentCount"`
}

func scoreLockedEvent(t *tasting.Tasting, score tasting.Score) Event {
	w, _ := t.Session.Whiskey(score.WhiskeyID)
	return Event{Name: EventScoreLocked, Payload: ScoreLockedPayload{
		ParticipantID: score.ParticipantID,
		WhiskeyID:     score.WhiskeyID,
		WhiskeyIndex:  w.DisplayNumber - 1,
		LockedCount:   len(t.Scores.ForWhiskey(score.WhiskeyID)),
		PresentCount:  t.Participants.Count(),
	}}
}
