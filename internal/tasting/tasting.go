// Package tasting defines the blind-tasting domain: the session state
// machine, the participant registry, the score ledger and the scoring
// engine. It performs no I/O.
package tasting

import "time"

type Session struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Theme       string     `json:"theme"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	InviteCode  string     `json:"inviteCode"`
	ModeratorID string     `json:"moderatorId"`

	Status              Status     `json:"status"`
	CurrentWhiskeyIndex int        `json:"currentWhiskeyIndex"`
	CurrentPhase        Phase      `json:"currentPhase,omitempty"`
	PhaseDeadline       *time.Time `json:"phaseDeadline,omitempty"`
	// Epoch increments on every applied transition. Timers and clients
	// quote it to detect that the phase they saw has been superseded.
	Epoch int64 `json:"epoch"`

	Paused          bool          `json:"paused,omitempty"`
	PausedRemaining time.Duration `json:"pausedRemaining,omitempty"`
	Cancelled       bool          `json:"cancelled,omitempty"`

	RequireAllReady        bool `json:"requireAllReady"`
	AutoAdvanceOnAllScored bool `json:"autoAdvanceOnAllScored"`

	Whiskeys []Whiskey `json:"whiskeys"`

	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

type Whiskey struct {
	ID            string  `json:"id"`
	DisplayNumber int     `json:"displayNumber"`
	Name          string  `json:"name"`
	Distillery    string  `json:"distillery"`
	Region        string  `json:"region,omitempty"`
	Age           int     `json:"age,omitempty"`
	Proof         float64 `json:"proof,omitempty"`
	Cask          string  `json:"cask,omitempty"`
	PourSize      string  `json:"pourSize"`
	Notes         string  `json:"notes,omitempty"`
}

type ParticipantStatus string

const (
	ParticipantWaiting   ParticipantStatus = "waiting"
	ParticipantTasting   ParticipantStatus = "tasting"
	ParticipantCompleted ParticipantStatus = "completed"
)

type Participant struct {
	ID                  string            `json:"id"`
	SessionID           string            `json:"sessionId"`
	UserID              string            `json:"userId,omitempty"`
	DisplayName         string            `json:"displayName"`
	Status              ParticipantStatus `json:"status"`
	IsReady             bool              `json:"isReady"`
	CurrentWhiskeyIndex int               `json:"currentWhiskeyIndex"`
	JoinedAt            time.Time         `json:"joinedAt"`
	LeftAt              *time.Time        `json:"leftAt,omitempty"`
}

// Present reports whether p has not left the session.
func (p Participant) Present() bool { return p.LeftAt == nil }

type Score struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	ParticipantID string    `json:"participantId"`
	WhiskeyID     string    `json:"whiskeyId"`
	Nose          int       `json:"nose"`
	Palate        int       `json:"palate"`
	Finish        int       `json:"finish"`
	Overall       int       `json:"overall"`
	TotalScore    float64   `json:"totalScore"`
	NoseNotes     string    `json:"noseNotes,omitempty"`
	PalateNotes   string    `json:"palateNotes,omitempty"`
	FinishNotes   string    `json:"finishNotes,omitempty"`
	OverallNotes  string    `json:"overallNotes,omitempty"`
	IdentityGuess string    `json:"identityGuess,omitempty"`
	LockedAt      time.Time `json:"lockedAt"`
}

// ScoreInput is a participant's submission for one whiskey.
type ScoreInput struct {
	WhiskeyID     string `json:"whiskeyId"`
	Nose          int    `json:"nose"`
	Palate        int    `json:"palate"`
	Finish        int    `json:"finish"`
	Overall       int    `json:"overall"`
	NoseNotes     string `json:"noseNotes"`
	PalateNotes   string `json:"palateNotes"`
	FinishNotes   string `json:"finishNotes"`
	OverallNotes  string `json:"overallNotes"`
	IdentityGuess string `json:"identityGuess"`
}

// Tasting is the aggregate of one session and its children. Every command
// works on a Clone and the coordinator swaps it in only after persistence
// succeeded.
type Tasting struct {
	Session      Session
	Participants *Registry
	Scores       *Ledger
}

func NewTasting(s Session, participants []Participant, scores []Score) *Tasting {
	return &Tasting{
		Session:      s,
		Participants: NewRegistry(participants),
		Scores:       NewLedger(scores),
	}
}

func (t *Tasting) Clone() *Tasting {
	s := t.Session
	s.Whiskeys = append([]Whiskey(nil), t.Session.Whiskeys...)
	return &Tasting{
		Session:      s,
		Participants: t.Participants.clone(),
		Scores:       t.Scores.clone(),
	}
}
