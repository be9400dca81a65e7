package tasting

import (
	"fmt"
	"strings"
	"time"
)

// Registry tracks the participants of one session in join order.
type Registry struct {
	participants []Participant
}

func NewRegistry(ps []Participant) *Registry {
	return &Registry{participants: append([]Participant(nil), ps...)}
}

func (r *Registry) clone() *Registry { return NewRegistry(r.participants) }

// All returns every participant, including those who left.
func (r *Registry) All() []Participant {
	return append([]Participant(nil), r.participants...)
}

// Present returns the participants who have not left.
func (r *Registry) Present() []Participant {
	var out []Participant
	for _, p := range r.participants {
		if p.Present() {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) Count() int { return len(r.Present()) }

func (r *Registry) Get(id string) (Participant, bool) {
	if i := r.index(id); i >= 0 {
		return r.participants[i], true
	}
	return Participant{}, false
}

// ByUser finds the participant joined under userID.
func (r *Registry) ByUser(userID string) (Participant, bool) {
	if userID == "" {
		return Participant{}, false
	}
	for _, p := range r.participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// Join registers a participant. Authenticated users are unique per
// session; anonymous joins are unique per display name.
func (r *Registry) Join(s *Session, id, userID, displayName string, now time.Time) (Participant, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return Participant{}, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	if !s.Status.Joinable() {
		return Participant{}, fmt.Errorf("%w: session is %s", ErrSessionNotJoinable, s.Status)
	}
	for _, p := range r.participants {
		if userID != "" && p.UserID == userID {
			return Participant{}, ErrDuplicateParticipant
		}
		if userID == "" && p.UserID == "" && strings.EqualFold(p.DisplayName, displayName) {
			return Participant{}, ErrDuplicateParticipant
		}
	}
	p := Participant{
		ID:          id,
		SessionID:   s.ID,
		UserID:      userID,
		DisplayName: displayName,
		Status:      ParticipantWaiting,
		JoinedAt:    now,
	}
	r.participants = append(r.participants, p)
	return p, nil
}

// SetReady records readiness. It only matters before the session starts.
func (r *Registry) SetReady(s *Session, id string, ready bool) (Participant, error) {
	if !s.Status.Joinable() {
		return Participant{}, fmt.Errorf("%w: readiness is fixed once the session is %s", ErrInvalidTransition, s.Status)
	}
	i, err := r.present(id)
	if err != nil {
		return Participant{}, err
	}
	r.participants[i].IsReady = ready
	return r.participants[i], nil
}

// AllReady reports whether at least one participant is present and every
// present participant is ready.
func (r *Registry) AllReady() bool {
	present := r.Present()
	if len(present) == 0 {
		return false
	}
	for _, p := range present {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// Leave marks departure. Historical scores are kept.
func (r *Registry) Leave(s *Session, id string, now time.Time) (Participant, error) {
	if s.Status.Terminal() {
		return Participant{}, fmt.Errorf("%w: session already completed", ErrInvalidTransition)
	}
	i, err := r.present(id)
	if err != nil {
		return Participant{}, err
	}
	r.participants[i].LeftAt = &now
	r.participants[i].IsReady = false
	return r.participants[i], nil
}

// BeginTasting moves every present participant onto the first whiskey.
func (r *Registry) BeginTasting() []Participant {
	return r.update(func(p *Participant) bool {
		p.Status = ParticipantTasting
		p.CurrentWhiskeyIndex = 0
		return true
	})
}

// FollowCursor moves every tasting participant to the session's whiskey
// index. A participant never leads the session.
func (r *Registry) FollowCursor(index int) []Participant {
	return r.update(func(p *Participant) bool {
		if p.Status != ParticipantTasting || p.CurrentWhiskeyIndex >= index {
			return false
		}
		p.CurrentWhiskeyIndex = index
		return true
	})
}

// MarkCompleted finishes a participant whose cursor reached finalIndex.
func (r *Registry) MarkCompleted(id string, finalIndex int) (Participant, error) {
	i, err := r.present(id)
	if err != nil {
		return Participant{}, err
	}
	p := &r.participants[i]
	if p.Status == ParticipantCompleted {
		return *p, nil
	}
	if p.Status != ParticipantTasting || p.CurrentWhiskeyIndex < finalIndex {
		return Participant{}, fmt.Errorf("%w: participant is on whiskey %d of %d", ErrInvalidTransition, p.CurrentWhiskeyIndex, finalIndex)
	}
	p.Status = ParticipantCompleted
	return *p, nil
}

// CompleteAll finishes every present participant still tasting, used when
// the session enters reveal.
func (r *Registry) CompleteAll(finalIndex int) []Participant {
	return r.update(func(p *Participant) bool {
		if p.Status != ParticipantTasting {
			return false
		}
		p.Status = ParticipantCompleted
		p.CurrentWhiskeyIndex = finalIndex
		return true
	})
}

func (r *Registry) update(fn func(*Participant) bool) []Participant {
	var changed []Participant
	for i := range r.participants {
		if !r.participants[i].Present() {
			continue
		}
		if fn(&r.participants[i]) {
			changed = append(changed, r.participants[i])
		}
	}
	return changed
}

func (r *Registry) index(id string) int {
	for i, p := range r.participants {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) present(id string) (int, error) {
	i := r.index(id)
	if i < 0 || !r.participants[i].Present() {
		return -1, fmt.Errorf("participant %s: %w", id, ErrNotFound)
	}
	return i, nil
}
