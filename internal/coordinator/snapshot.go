package coordinator

import (
	"time"

	"github.com/playperu/tasting/internal/tasting"
)

// Viewer roles of a snapshot.
const (
	RoleModerator   = "moderator"
	RoleParticipant = "participant"
	RoleObserver    = "observer"
)

// Snapshot is the full state of a session as one viewer may see it.
type Snapshot struct {
	SessionID              string                    `json:"sessionId"`
	Name                   string                    `json:"name"`
	Theme                  string                    `json:"theme,omitempty"`
	ScheduledAt            *time.Time                `json:"scheduledAt,omitempty"`
	InviteCode             string                    `json:"inviteCode,omitempty"`
	Epoch                  int64                     `json:"epoch"`
	Session                SessionPayload            `json:"session"`
	RequireAllReady        bool                      `json:"requireAllReady"`
	AutoAdvanceOnAllScored bool                      `json:"autoAdvanceOnAllScored"`
	Whiskeys               []tasting.WhiskeyView     `json:"whiskeys"`
	Participants           []tasting.ParticipantView `json:"participants"`
	LockedCount            int                       `json:"lockedCount"`
	Role                   string                    `json:"role"`
	Me                     *tasting.ParticipantView  `json:"me,omitempty"`
	MyScores               []tasting.Score           `json:"myScores"`
	Rankings               []tasting.Ranking         `json:"rankings,omitempty"`
	ServerTime             time.Time                 `json:"serverTime"`
}

func buildSnapshot(t *tasting.Tasting, viewer Actor, now time.Time) Snapshot {
	s := &t.Session
	moderator := viewer.IsModeratorOf(*s)

	snap := Snapshot{
		SessionID:              s.ID,
		Name:                   s.Name,
		Theme:                  s.Theme,
		ScheduledAt:            s.ScheduledAt,
		Epoch:                  s.Epoch,
		Session:                sessionPayload(t),
		RequireAllReady:        s.RequireAllReady,
		AutoAdvanceOnAllScored: s.AutoAdvanceOnAllScored,
		Whiskeys:               s.WhiskeyViews(moderator),
		Participants:           tasting.ParticipantViews(t.Participants.All()),
		Role:                   RoleObserver,
		MyScores:               []tasting.Score{},
		ServerTime:             now,
	}
	if moderator {
		snap.Role = RoleModerator
		snap.InviteCode = s.InviteCode
	}
	if w, ok := s.CurrentWhiskey(); ok && s.Status == tasting.StatusActive {
		snap.LockedCount = len(t.Scores.ForWhiskey(w.ID))
	}
	if p, ok := viewer.participant(t); ok {
		if !moderator {
			snap.Role = RoleParticipant
		}
		v := p.View()
		snap.Me = &v
		snap.MyScores = append(snap.MyScores, t.Scores.ForParticipant(p.ID)...)
	}
	if s.Status.Revealed() {
		snap.Rankings = tasting.Rank(s.Whiskeys, t.Scores.All())
	}
	return snap
}

// Results is the published outcome of a revealed session.
type Results struct {
	SessionID    string                    `json:"sessionId"`
	Status       tasting.Status            `json:"status"`
	Cancelled    bool                      `json:"cancelled"`
	Whiskeys     []tasting.WhiskeyView     `json:"whiskeys"`
	Rankings     []tasting.Ranking         `json:"rankings"`
	Participants []tasting.ParticipantView `json:"participants"`
	Scores       []tasting.Score           `json:"scores"`
}

func buildResults(t *tasting.Tasting) Results {
	s := &t.Session
	return Results{
		SessionID:    s.ID,
		Status:       s.Status,
		Cancelled:    s.Cancelled,
		Whiskeys:     s.WhiskeyViews(true),
		Rankings:     tasting.Rank(s.Whiskeys, t.Scores.All()),
		Participants: tasting.ParticipantViews(t.Participants.All()),
		Scores:       t.Scores.All(),
	}
}
