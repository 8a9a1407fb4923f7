package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/gzhole/migclean/internal/plan"
)

// CreatePlan inserts the plan and all its items in one transaction.
func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO plans (id, session_id, created_at) VALUES (?, ?, ?)`,
			p.ID, p.SessionID, formatTime(p.CreatedAt)); err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO plan_items (plan_id, item_id, position, item_json) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare plan item: %w", err)
		}
		defer stmt.Close()
		for i, item := range p.Items {
			data, err := marshal(item)
			if err != nil {
				return fmt.Errorf("marshal plan item %s: %w", item.ItemID, err)
			}
			if _, err := stmt.ExecContext(ctx, p.ID, item.ItemID, i, data); err != nil {
				return fmt.Errorf("insert plan item %s: %w", item.ItemID, err)
			}
		}
		return nil
	})
}

// CurrentPlan returns the most recently created plan of a session.
func (s *Store) CurrentPlan(ctx context.Context, sessionID string) (*plan.Plan, error) {
	var (
		p       plan.Plan
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, created_at FROM plans WHERE session_id = ? ORDER BY rowid DESC LIMIT 1`, sessionID).
		Scan(&p.ID, &p.SessionID, &created)
	if err != nil {
		return nil, notFound(err, plan.ErrNotFound)
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT item_json FROM plan_items WHERE plan_id = ? ORDER BY position`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("query plan items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan plan item: %w", err)
		}
		var item plan.Item
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, fmt.Errorf("unmarshal plan item: %w", err)
		}
		p.Items = append(p.Items, item)
	}
	return &p, rows.Err()
}

func (s *Store) UpdatePlanItem(ctx context.Context, planID string, item plan.Item) error {
	data, err := marshal(item)
	if err != nil {
		return fmt.Errorf("marshal plan item %s: %w", item.ItemID, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE plan_items SET item_json = ? WHERE plan_id = ? AND item_id = ?`, data, planID, item.ItemID)
	if err != nil {
		return fmt.Errorf("update plan item: %w", err)
	}
	return requireAffected(res, plan.ErrNotFound)
}
