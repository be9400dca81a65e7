// Package store persists tasting sessions in libSQL. Each record is a JSONB
// document next to the columns that carry constraints and lookups.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/playperu/tasting/internal/coordinator"
	"github.com/playperu/tasting/internal/tasting"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DocStore implements coordinator.Store.
type DocStore struct {
	db *sql.DB
	q  querier
	// inTx is set on the copy handed to an Atomic callback.
	inTx bool
}

var _ coordinator.Store = (*DocStore)(nil)

func New(db *sql.DB) *DocStore {
	return &DocStore{db: db, q: db}
}

// Atomic runs fn in a transaction. Nested calls join the outer one.
func (s *DocStore) Atomic(ctx context.Context, fn func(coordinator.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return classify(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(&DocStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("committing: %w", err))
	}
	return nil
}

func (s *DocStore) LoadSession(ctx context.Context, id string) (tasting.Session, error) {
	var sess tasting.Session
	if err := s.get(ctx, `SELECT json(data) FROM sessions WHERE id = ?`, &sess, id); err != nil {
		return tasting.Session{}, fmt.Errorf("session %s: %w", id, err)
	}
	if err := sess.Validate(); err != nil {
		return tasting.Session{}, fmt.Errorf("session %s: %w", id, err)
	}
	return sess, nil
}

func (s *DocStore) SaveSession(ctx context.Context, sess tasting.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO sessions (id, invite_code, moderator_id, status, data) VALUES (?, ?, ?, ?, jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		sess.ID, sess.InviteCode, sess.ModeratorID, string(sess.Status), string(data),
	)
	return classify(err)
}

func (s *DocStore) SessionIDByInviteCode(ctx context.Context, code string) (string, error) {
	var id string
	err := s.q.QueryRowContext(ctx, `SELECT id FROM sessions WHERE invite_code = ?`, code).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", tasting.ErrNotFound
	}
	if err != nil {
		return "", classify(err)
	}
	return id, nil
}

func (s *DocStore) LoadParticipants(ctx context.Context, sessionID string) ([]tasting.Participant, error) {
	return list[tasting.Participant](ctx, s.q,
		`SELECT json(data) FROM participants WHERE session_id = ? ORDER BY rowid`, sessionID)
}

func (s *DocStore) SaveParticipant(ctx context.Context, p tasting.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO participants (id, session_id, user_id, data) VALUES (?, ?, NULLIF(?, ''), jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		p.ID, p.SessionID, p.UserID, string(data),
	)
	return classify(err)
}

func (s *DocStore) LoadScores(ctx context.Context, sessionID string) ([]tasting.Score, error) {
	return list[tasting.Score](ctx, s.q,
		`SELECT json(data) FROM scores WHERE session_id = ? ORDER BY rowid`, sessionID)
}

// SaveScore inserts a locked score. Scores are never updated.
func (s *DocStore) SaveScore(ctx context.Context, sc tasting.Score) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO scores (id, session_id, participant_id, whiskey_id, data) VALUES (?, ?, ?, ?, jsonb(?))`,
		sc.ID, sc.SessionID, sc.ParticipantID, sc.WhiskeyID, string(data),
	)
	return classify(err)
}

// SessionIDs lists stored sessions in the given statuses.
func (s *DocStore) SessionIDs(ctx context.Context, statuses ...tasting.Status) ([]string, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT id FROM sessions WHERE status IN (?`+strings.Repeat(", ?", len(statuses)-1)+`) ORDER BY rowid`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify(err)
		}
		ids = append(ids, id)
	}
	return ids, classify(rows.Err())
}

// Check pings the database for the health endpoint.
func (s *DocStore) Check(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DocStore) get(ctx context.Context, query string, dest any, args ...any) error {
	var data string
	err := s.q.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return tasting.ErrNotFound
	}
	if err != nil {
		return classify(err)
	}
	return json.Unmarshal([]byte(data), dest)
}

func list[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, classify(err)
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, classify(rows.Err())
}

// classify maps driver errors onto the persistence error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "PRIMARY KEY constraint"):
		return fmt.Errorf("%w: %v", tasting.ErrConstraintViolation, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", tasting.ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %v", tasting.ErrStorageUnavailable, err)
	}
}
