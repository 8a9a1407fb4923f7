package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gzhole/migclean/internal/proposal"
)

const proposalColumns = `id, session_id, title, status, risk, created_at, updated_at, changes_json, evidence_json`

func (s *Store) CreateProposal(ctx context.Context, p *proposal.Proposal) error {
	changes, err := marshal(p.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	var evidence sql.NullString
	if len(p.Evidence) > 0 {
		data, err := marshal(p.Evidence)
		if err != nil {
			return fmt.Errorf("marshal evidence: %w", err)
		}
		evidence = nullString(data)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO proposals (`+proposalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SessionID, p.Title, string(p.Status), string(p.Risk),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt), changes, evidence)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func (s *Store) GetProposal(ctx context.Context, id string) (*proposal.Proposal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id)
	return scanProposal(row.Scan)
}

// ListProposals returns a session's proposals in creation order.
func (s *Store) ListProposals(ctx context.Context, sessionID string) ([]*proposal.Proposal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query proposals: %w", err)
	}
	defer rows.Close()

	var out []*proposal.Proposal
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProposalStatus(ctx context.Context, id string, from, to proposal.Status, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), formatTime(at), id, string(from))
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM proposals WHERE id = ?`, id).Scan(&current)
	if err != nil {
		return notFound(err, proposal.ErrNotFound)
	}
	return fmt.Errorf("%w: proposal %s is %s, not %s", proposal.ErrInvalidTransition, id, current, from)
}

func scanProposal(scan func(...any) error) (*proposal.Proposal, error) {
	var (
		p                         proposal.Proposal
		status, risk              string
		created, updated, changes string
		evidence                  sql.NullString
	)
	if err := scan(&p.ID, &p.SessionID, &p.Title, &status, &risk, &created, &updated, &changes, &evidence); err != nil {
		return nil, notFound(err, proposal.ErrNotFound)
	}
	p.Status = proposal.Status(status)
	p.Risk = proposal.Risk(risk)
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(changes), &p.Changes); err != nil {
		return nil, fmt.Errorf("unmarshal changes: %w", err)
	}
	if evidence.Valid {
		if err := json.Unmarshal([]byte(evidence.String), &p.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
	}
	return &p, nil
}
