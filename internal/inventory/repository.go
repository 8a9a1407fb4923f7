package inventory

import (
	"context"
	"errors"
)

var ErrNoSnapshot = errors.New("no snapshot found")

// SnapshotRepository persists snapshots. LatestSnapshot returns the most
// recent snapshot of a session.
type SnapshotRepository interface {
	CreateSnapshot(ctx context.Context, s *Snapshot) error
	LatestSnapshot(ctx context.Context, sessionID string) (*Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
}
