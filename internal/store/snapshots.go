package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/gzhole/migclean/internal/inventory"
)

const snapshotColumns = `id, session_id, created_at, summary_json, items_json`

func (s *Store) CreateSnapshot(ctx context.Context, snap *inventory.Snapshot) error {
	summary, err := marshal(snap.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	items, err := marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (`+snapshotColumns+`) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.SessionID, formatTime(snap.CreatedAt), summary, items)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *Store) LatestSnapshot(ctx context.Context, sessionID string) (*inventory.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE session_id = ? ORDER BY rowid DESC LIMIT 1`, sessionID)
	return scanSnapshot(row)
}

func (s *Store) GetSnapshot(ctx context.Context, id string) (*inventory.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

// ListSnapshots returns a session's snapshots oldest first, without items.
func (s *Store) ListSnapshots(ctx context.Context, sessionID string) ([]inventory.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, created_at, summary_json FROM snapshots WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []inventory.Snapshot
	for rows.Next() {
		var (
			snap             inventory.Snapshot
			created, summary string
		)
		if err := rows.Scan(&snap.ID, &snap.SessionID, &created, &summary); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if snap.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(summary), &snap.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanSnapshot(row *sql.Row) (*inventory.Snapshot, error) {
	var (
		snap                    inventory.Snapshot
		created, summary, items string
	)
	if err := row.Scan(&snap.ID, &snap.SessionID, &created, &summary, &items); err != nil {
		return nil, notFound(err, inventory.ErrNoSnapshot)
	}
	var err error
	if snap.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(summary), &snap.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &snap.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return &snap, nil
}
