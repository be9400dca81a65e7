package tasting

import (
	"fmt"
	"time"
)

type scoreKey struct {
	participantID string
	whiskeyID     string
}

// Ledger holds the locked scores of one session. A score is written once
// and never changes afterwards.
type Ledger struct {
	scores map[scoreKey]Score
	order  []scoreKey
}

func NewLedger(scores []Score) *Ledger {
	l := &Ledger{scores: make(map[scoreKey]Score, len(scores))}
	for _, s := range scores {
		k := scoreKey{s.ParticipantID, s.WhiskeyID}
		if _, ok := l.scores[k]; ok {
			continue
		}
		l.scores[k] = s
		l.order = append(l.order, k)
	}
	return l
}

func (l *Ledger) clone() *Ledger { return NewLedger(l.All()) }

// All returns the scores in lock order.
func (l *Ledger) All() []Score {
	out := make([]Score, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, l.scores[k])
	}
	return out
}

func (l *Ledger) Get(participantID, whiskeyID string) (Score, bool) {
	s, ok := l.scores[scoreKey{participantID, whiskeyID}]
	return s, ok
}

func (l *Ledger) ForWhiskey(whiskeyID string) []Score {
	var out []Score
	for _, k := range l.order {
		if k.whiskeyID == whiskeyID {
			out = append(out, l.scores[k])
		}
	}
	return out
}

func (l *Ledger) ForParticipant(participantID string) []Score {
	var out []Score
	for _, k := range l.order {
		if k.participantID == participantID {
			out = append(out, l.scores[k])
		}
	}
	return out
}

// AllLocked reports whether every participant in ps has a score for
// whiskeyID. It is false for an empty ps.
func (l *Ledger) AllLocked(whiskeyID string, ps []Participant) bool {
	if len(ps) == 0 {
		return false
	}
	for _, p := range ps {
		if _, ok := l.Get(p.ID, whiskeyID); !ok {
			return false
		}
	}
	return true
}

// Submit locks p's score for the session's current whiskey.
func (l *Ledger) Submit(s *Session, p Participant, id string, in ScoreInput, now time.Time) (Score, error) {
	if _, ok := l.Get(p.ID, in.WhiskeyID); ok {
		return Score{}, ErrAlreadyLocked
	}
	if s.Status != StatusActive || s.CurrentPhase != PhaseScoring {
		return Score{}, ErrPhaseNotScoring
	}
	current, ok := s.CurrentWhiskey()
	if !ok || current.ID != in.WhiskeyID || p.CurrentWhiskeyIndex != s.CurrentWhiskeyIndex {
		return Score{}, ErrPhaseNotScoring
	}
	for _, r := range []struct {
		name  string
		value int
	}{
		{"nose", in.Nose},
		{"palate", in.Palate},
		{"finish", in.Finish},
		{"overall", in.Overall},
	} {
		if !validRating(r.value) {
			return Score{}, fmt.Errorf("%w: %s=%d, want %d..%d", ErrOutOfRangeRating, r.name, r.value, MinRating, MaxRating)
		}
	}

	score := Score{
		ID:            id,
		SessionID:     s.ID,
		ParticipantID: p.ID,
		WhiskeyID:     in.WhiskeyID,
		Nose:          in.Nose,
		Palate:        in.Palate,
		Finish:        in.Finish,
		Overall:       in.Overall,
		TotalScore:    TotalScore(in.Nose, in.Palate, in.Finish, in.Overall),
		NoseNotes:     in.NoseNotes,
		PalateNotes:   in.PalateNotes,
		FinishNotes:   in.FinishNotes,
		OverallNotes:  in.OverallNotes,
		IdentityGuess: in.IdentityGuess,
		LockedAt:      now,
	}
	k := scoreKey{p.ID, in.WhiskeyID}
	l.scores[k] = score
	l.order = append(l.order, k)
	return score, nil
}
