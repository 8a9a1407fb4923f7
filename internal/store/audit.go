package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gzhole/migclean/internal/audit"
)

// AppendAudit inserts an entry. There is no update or delete path for
// the audit_log table.
func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, session_id, action_id, action_type, target_id, status, timestamp, output, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, nullString(e.ActionID), nullString(e.ActionType), nullString(e.TargetID),
		e.Status, formatTime(e.Timestamp), nullString(e.Output), nullString(e.ErrorMessage))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, sessionID string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, action_id, action_type, target_id, status, timestamp, output, error_message
		 FROM audit_log WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e                            audit.Entry
			actionID, actionType, target sql.NullString
			output, errMsg               sql.NullString
			ts                           string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &actionID, &actionType, &target, &e.Status, &ts, &output, &errMsg); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ActionID, e.ActionType, e.TargetID = actionID.String, actionType.String, target.String
		e.Output, e.ErrorMessage = output.String, errMsg.String
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
