package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gzhole/migclean/internal/execution"
)

const actionColumns = `id, queue_id, ord, action_type, target_id, display_name, status, command, output, error_message, started_at, completed_at`

func (s *Store) CreateQueue(ctx context.Context, q *execution.Queue) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO action_queues (id, session_id, created_at, mode, status) VALUES (?, ?, ?, ?, ?)`,
			q.ID, q.SessionID, formatTime(q.CreatedAt), string(q.Mode), string(q.Status)); err != nil {
			return fmt.Errorf("insert queue: %w", err)
		}
		for i := range q.Actions {
			a := &q.Actions[i]
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ID, q.ID, a.Order, string(a.Type), a.TargetID, a.DisplayName, string(a.Status),
				nullString(a.Command), nullString(a.Output), nullString(a.ErrorMessage),
				formatOptTime(a.StartedAt), formatOptTime(a.CompletedAt)); err != nil {
				return fmt.Errorf("insert action %d: %w", a.Order, err)
			}
		}
		return nil
	})
}

func (s *Store) GetQueue(ctx context.Context, id string) (*execution.Queue, error) {
	var (
		q                     execution.Queue
		created, mode, status string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, created_at, mode, status FROM action_queues WHERE id = ?`, id).
		Scan(&q.ID, &q.SessionID, &created, &mode, &status)
	if err != nil {
		return nil, notFound(err, execution.ErrNotFound)
	}
	if q.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	q.Mode = execution.Mode(mode)
	q.Status = execution.Status(status)

	rows, err := s.db.QueryContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE queue_id = ? ORDER BY ord`, id)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		q.Actions = append(q.Actions, a)
	}
	return &q, rows.Err()
}

// LatestQueue returns the most recently created queue of a session.
func (s *Store) LatestQueue(ctx context.Context, sessionID string) (*execution.Queue, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM action_queues WHERE session_id = ? ORDER BY rowid DESC LIMIT 1`, sessionID).Scan(&id)
	if err != nil {
		return nil, notFound(err, execution.ErrNotFound)
	}
	return s.GetQueue(ctx, id)
}

func (s *Store) UpdateQueueStatus(ctx context.Context, id string, status execution.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE action_queues SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update queue: %w", err)
	}
	return requireAffected(res, execution.ErrNotFound)
}

func (s *Store) UpdateAction(ctx context.Context, a *execution.Action) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, command = ?, output = ?, error_message = ?, started_at = ?, completed_at = ?
		 WHERE id = ?`,
		string(a.Status), nullString(a.Command), nullString(a.Output), nullString(a.ErrorMessage),
		formatOptTime(a.StartedAt), formatOptTime(a.CompletedAt), a.ID)
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	return requireAffected(res, execution.ErrNotFound)
}

func scanAction(rows *sql.Rows) (execution.Action, error) {
	var (
		a                       execution.Action
		typ, status             string
		command, output, errMsg sql.NullString
		startedAt, completedAt  sql.NullString
	)
	if err := rows.Scan(&a.ID, &a.QueueID, &a.Order, &typ, &a.TargetID, &a.DisplayName, &status,
		&command, &output, &errMsg, &startedAt, &completedAt); err != nil {
		return a, fmt.Errorf("scan action: %w", err)
	}
	a.Type = execution.ActionType(typ)
	a.Status = execution.Status(status)
	a.Command, a.Output, a.ErrorMessage = command.String, output.String, errMsg.String
	var err error
	if a.StartedAt, err = parseOptTime(startedAt); err != nil {
		return a, fmt.Errorf("parse started_at: %w", err)
	}
	if a.CompletedAt, err = parseOptTime(completedAt); err != nil {
		return a, fmt.Errorf("parse completed_at: %w", err)
	}
	return a, nil
}
