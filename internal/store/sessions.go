package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gzhole/migclean/internal/inventory"
	"github.com/gzhole/migclean/internal/session"
)

const sessionColumns = `id, created_at, updated_at, status, app_version`

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt), string(sess.Status), sess.AppVersion)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *Store) CurrentSession(ctx context.Context) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY rowid DESC LIMIT 1`)
	return scanSession(row)
}

func (s *Store) UpdateSession(ctx context.Context, sess *session.Session) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ?, status = ?, app_version = ? WHERE id = ?`,
		formatTime(sess.UpdatedAt), string(sess.Status), sess.AppVersion, sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return requireAffected(res, session.ErrNotFound)
}

func scanSession(row *sql.Row) (*session.Session, error) {
	var (
		sess             session.Session
		status           string
		created, updated string
	)
	if err := row.Scan(&sess.ID, &created, &updated, &status, &sess.AppVersion); err != nil {
		return nil, notFound(err, session.ErrNotFound)
	}
	var err error
	if sess.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	sess.Status = session.Status(status)
	return &sess, nil
}

func (s *Store) AddFact(ctx context.Context, f *inventory.UserFact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_facts (session_id, key, value, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.SessionID, f.Key, f.Value, string(f.Source), formatTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

func (s *Store) ListFacts(ctx context.Context, sessionID string) ([]inventory.UserFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, key, value, source, created_at FROM user_facts WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []inventory.UserFact
	for rows.Next() {
		var (
			f       inventory.UserFact
			source  string
			created string
		)
		if err := rows.Scan(&f.SessionID, &f.Key, &f.Value, &source, &created); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.Source = inventory.FactSource(source)
		if f.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse fact created_at: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
