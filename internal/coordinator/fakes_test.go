package coordinator

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/playperu/tasting/internal/tasting"
)

// memStore is an in-memory Store. Setting fail makes every save fail.
type memStore struct {
	mu           sync.Mutex
	sessions     map[string]tasting.Session
	participants map[string]tasting.Participant
	scores       map[string]tasting.Score
	fail         error
	commits      int
}

func newMemStore() *memStore {
	return &memStore{
		sessions:     make(map[string]tasting.Session),
		participants: make(map[string]tasting.Participant),
		scores:       make(map[string]tasting.Score),
	}
}

func (s *memStore) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *memStore) session(id string) tasting.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *memStore) scoreCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scores)
}

func (s *memStore) LoadSession(ctx context.Context, id string) (tasting.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.LoadSession(ctx, id)
}

func (s *memStore) SaveSession(ctx context.Context, sess tasting.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.SaveSession(ctx, sess)
}

func (s *memStore) LoadParticipants(ctx context.Context, sessionID string) ([]tasting.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.LoadParticipants(ctx, sessionID)
}

func (s *memStore) SaveParticipant(ctx context.Context, p tasting.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.SaveParticipant(ctx, p)
}

func (s *memStore) LoadScores(ctx context.Context, sessionID string) ([]tasting.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.LoadScores(ctx, sessionID)
}

func (s *memStore) SaveScore(ctx context.Context, sc tasting.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.SaveScore(ctx, sc)
}

func (s *memStore) SessionIDByInviteCode(ctx context.Context, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.SessionIDByInviteCode(ctx, code)
}

func (s *memStore) Atomic(_ context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := maps.Clone(s.sessions)
	participants := maps.Clone(s.participants)
	scores := maps.Clone(s.scores)
	if err := fn(memTx{s}); err != nil {
		s.sessions, s.participants, s.scores = sessions, participants, scores
		return err
	}
	s.commits++
	return nil
}

// memTx operates on a memStore whose lock is held.
type memTx struct{ s *memStore }

func (tx memTx) LoadSession(_ context.Context, id string) (tasting.Session, error) {
	sess, ok := tx.s.sessions[id]
	if !ok {
		return tasting.Session{}, tasting.ErrNotFound
	}
	sess.Whiskeys = append([]tasting.Whiskey(nil), sess.Whiskeys...)
	return sess, nil
}

func (tx memTx) SaveSession(_ context.Context, sess tasting.Session) error {
	if tx.s.fail != nil {
		return tx.s.fail
	}
	for id, other := range tx.s.sessions {
		if id != sess.ID && other.InviteCode == sess.InviteCode {
			return tasting.ErrConstraintViolation
		}
	}
	sess.Whiskeys = append([]tasting.Whiskey(nil), sess.Whiskeys...)
	tx.s.sessions[sess.ID] = sess
	return nil
}

func (tx memTx) LoadParticipants(_ context.Context, sessionID string) ([]tasting.Participant, error) {
	var out []tasting.Participant
	for _, p := range tx.s.participants {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	sortByJoin(out)
	return out, nil
}

func (tx memTx) SaveParticipant(_ context.Context, p tasting.Participant) error {
	if tx.s.fail != nil {
		return tx.s.fail
	}
	tx.s.participants[p.ID] = p
	return nil
}

func (tx memTx) LoadScores(_ context.Context, sessionID string) ([]tasting.Score, error) {
	var out []tasting.Score
	for _, sc := range tx.s.scores {
		if sc.SessionID == sessionID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (tx memTx) SaveScore(_ context.Context, sc tasting.Score) error {
	if tx.s.fail != nil {
		return tx.s.fail
	}
	for _, other := range tx.s.scores {
		if other.ParticipantID == sc.ParticipantID && other.WhiskeyID == sc.WhiskeyID {
			return tasting.ErrConstraintViolation
		}
	}
	tx.s.scores[sc.ID] = sc
	return nil
}

func (tx memTx) SessionIDByInviteCode(_ context.Context, code string) (string, error) {
	for id, sess := range tx.s.sessions {
		if sess.InviteCode == code {
			return id, nil
		}
	}
	return "", tasting.ErrNotFound
}

func (tx memTx) Atomic(ctx context.Context, fn func(Store) error) error { return fn(tx) }

func sortByJoin(ps []tasting.Participant) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].JoinedAt.Before(ps[j-1].JoinedAt); j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

// recorder is a Publisher that keeps every event it was handed.
type recorder struct {
	mu      sync.Mutex
	events  []Event
	resyncs []string
	// gate, when set, holds every Publish until it is closed.
	gate chan struct{}
}

func (r *recorder) Publish(_ string, ev Event) {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Resync(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resyncs = append(r.resyncs, sessionID)
}

func (r *recorder) resynced() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.resyncs...)
}

func (r *recorder) hold() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
	return r.gate
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) names() []string {
	var out []string
	for _, ev := range r.all() {
		out = append(out, ev.Name)
	}
	return out
}

func (r *recorder) count(name string) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Name == name {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.all()) >= n }, time.Second, time.Millisecond,
		"want %d events, have %v", n, r.names())
	return r.all()
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s-%d", prefix, n.Add(1)) }
}
