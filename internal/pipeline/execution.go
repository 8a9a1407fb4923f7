package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gzhole/migclean/internal/audit"
	"github.com/gzhole/migclean/internal/execution"
	"github.com/gzhole/migclean/internal/inventory"
	"github.com/gzhole/migclean/internal/plan"
	"github.com/gzhole/migclean/internal/session"
)

// QueueRequest selects what BuildQueue includes.
type QueueRequest struct {
	Mode execution.Mode
	// Confirm lists REVIEW item ids the user chose to remove.
	Confirm []string
}

// BuildQueue turns the current plan into a PENDING action queue. App
// uninstall commands come from the latest snapshot. The session moves to
// READY_TO_EXECUTE.
func (s *Service) BuildQueue(ctx context.Context, sessionID string, req QueueRequest) (*execution.Queue, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(sess, session.StatusReadyToExecute); err != nil {
		return nil, err
	}
	p, err := s.store.CurrentPlan(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	confirmed := make(map[string]bool, len(req.Confirm))
	for _, id := range req.Confirm {
		id = strings.TrimSpace(id)
		if p.Item(id) == nil {
			return nil, fmt.Errorf("confirmed item %s is not in the current plan", id)
		}
		confirmed[id] = true
	}

	commands, err := s.uninstallCommands(ctx, sessionID, p)
	if err != nil {
		return nil, err
	}

	q := execution.BuildQueue(p, execution.BuildOptions{
		Mode:      req.Mode,
		Confirmed: confirmed,
		Commands:  commands,
	})
	if err := s.store.CreateQueue(ctx, q); err != nil {
		return nil, fmt.Errorf("save queue: %w", err)
	}
	if _, err := s.sessions.Transition(ctx, sessionID, session.StatusReadyToExecute); err != nil {
		return nil, err
	}
	s.log.Info("queue built",
		zap.String("session", sessionID),
		zap.String("queue", q.ID),
		zap.String("mode", string(q.Mode)),
		zap.Int("actions", len(q.Actions)))
	return q, nil
}

func (s *Service) uninstallCommands(ctx context.Context, sessionID string, p *plan.Plan) (map[string]string, error) {
	snap, err := s.store.LatestSnapshot(ctx, sessionID)
	if errors.Is(err, inventory.ErrNoSnapshot) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	commands := make(map[string]string)
	for _, it := range snap.Items {
		if it.Type == inventory.TypeApp && it.UninstallCommand != "" && p.Item(it.ID) != nil {
			commands[it.ID] = it.UninstallCommand
		}
	}
	return commands, nil
}

func (s *Service) GetQueue(ctx context.Context, id string) (*execution.Queue, error) {
	return s.store.GetQueue(ctx, id)
}

func (s *Service) LatestQueue(ctx context.Context, sessionID string) (*execution.Queue, error) {
	return s.store.LatestQueue(ctx, sessionID)
}

// Execute runs a PENDING queue. A LIVE run moves the session through
// EXECUTING to COMPLETED, or FAILED when any action failed or the run was
// cancelled. Dry runs leave the session status alone so that a live queue
// can follow.
func (s *Service) Execute(ctx context.Context, queueID string) (*execution.Queue, error) {
	q, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if q.Status != execution.StatusPending {
		return nil, fmt.Errorf("%w: queue %s is %s", execution.ErrQueueNotPending, q.ID, q.Status)
	}
	live := q.Mode == execution.ModeLive
	if live {
		if _, err := s.sessions.Transition(ctx, q.SessionID, session.StatusExecuting); err != nil {
			return nil, err
		}
	}

	result, runErr := s.engine.Execute(ctx, queueID)
	if !live {
		return result, runErr
	}

	final := session.StatusCompleted
	if runErr != nil || result == nil || result.Status != execution.StatusCompleted {
		final = session.StatusFailed
	}
	// The run is over even if the caller went away.
	if _, err := s.sessions.Transition(context.WithoutCancel(ctx), q.SessionID, final); err != nil {
		return result, errors.Join(runErr, err)
	}
	return result, runErr
}

// AuditLog returns a session's audit entries in append order.
func (s *Service) AuditLog(ctx context.Context, sessionID string) ([]audit.Entry, error) {
	return s.audit.List(ctx, sessionID)
}

// DeltaReport compares the latest snapshot with a baseline. With an empty
// baselineID the snapshot taken before the latest one is used.
func (s *Service) DeltaReport(ctx context.Context, sessionID, baselineID string) (*inventory.DeltaReport, error) {
	if baselineID == "" {
		snaps, err := s.store.ListSnapshots(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if len(snaps) < 2 {
			return nil, ErrNoBaseline
		}
		baselineID = snaps[len(snaps)-2].ID
	}
	pre, err := s.store.GetSnapshot(ctx, baselineID)
	if err != nil {
		return nil, fmt.Errorf("baseline snapshot %s: %w", baselineID, err)
	}
	if pre.SessionID != sessionID {
		return nil, fmt.Errorf("baseline snapshot %s belongs to another session", baselineID)
	}
	post, err := s.store.LatestSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if post.ID == pre.ID {
		return nil, ErrNoBaseline
	}
	return inventory.Compare(sessionID, pre, post), nil
}
