package execution

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/gzhole/migclean/internal/audit"
)

// Recorder appends audit entries.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) (*audit.Entry, error)
}

// ProgressSink receives progress notifications. current is 1-based.
type ProgressSink interface {
	ActionStarting(a Action, current, total int)
	ActionCompleted(a Action, current, total int)
}

type nopProgress struct{}

func (nopProgress) ActionStarting(Action, int, int)  {}
func (nopProgress) ActionCompleted(Action, int, int) {}

// Engine runs queues one action at a time.
type Engine struct {
	repo     Repository
	audit    Recorder
	handlers Registry
	log      *zap.Logger
	progress ProgressSink
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithProgress(p ProgressSink) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.progress = p
		}
	}
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(repo Repository, rec Recorder, handlers Registry, log *zap.Logger, opts ...EngineOption) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		repo:     repo,
		audit:    rec,
		handlers: handlers,
		log:      log.Named("execution"),
		progress: nopProgress{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute runs every action of a PENDING queue in order and returns the
// final queue. Cancelling ctx stops the run at the next action boundary;
// the action in flight is not interrupted. Each status change is persisted
// and audited before the next action starts.
func (e *Engine) Execute(ctx context.Context, queueID string) (*Queue, error) {
	q, err := e.repo.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if q.Status != StatusPending {
		return nil, fmt.Errorf("%w: queue %s is %s", ErrQueueNotPending, q.ID, q.Status)
	}

	// Persistence and handlers must outlive a cancelled caller.
	work := context.WithoutCancel(ctx)

	e.log.Info("starting queue",
		zap.String("queue", q.ID), zap.Int("actions", len(q.Actions)), zap.String("mode", string(q.Mode)))
	if err := e.repo.UpdateQueueStatus(work, q.ID, StatusRunning); err != nil {
		return nil, fmt.Errorf("mark queue running: %w", err)
	}
	q.Status = StatusRunning

	sort.SliceStable(q.Actions, func(i, j int) bool { return q.Actions[i].Order < q.Actions[j].Order })
	total := len(q.Actions)
	restoreFailed, anyFailed := false, false

	for i := range q.Actions {
		a := &q.Actions[i]

		if ctx.Err() != nil {
			if err := e.cancelRemaining(work, q, i); err != nil {
				return nil, err
			}
			return e.finish(work, q, StatusCancelled)
		}

		if restoreFailed && a.Type != ActionCreateRestorePoint {
			if err := e.settle(work, q, a, StatusCancelled); err != nil {
				return nil, err
			}
			continue
		}

		e.progress.ActionStarting(*a, i+1, total)

		h, ok := e.handlers[a.Type]
		if !ok {
			a.ErrorMessage = fmt.Sprintf("No handler registered for action type %s.", a.Type)
			e.stamp(&a.CompletedAt)
			if err := e.settle(work, q, a, StatusFailed); err != nil {
				return nil, err
			}
			anyFailed = true
			e.progress.ActionCompleted(*a, i+1, total)
			continue
		}

		a.Status = StatusRunning
		e.stamp(&a.StartedAt)
		if err := e.repo.UpdateAction(work, a); err != nil {
			return nil, fmt.Errorf("update action %s: %w", a.ID, err)
		}
		if err := e.record(work, q, a); err != nil {
			return nil, err
		}

		res := h.Execute(work, a, q.Mode)
		if res.Command != "" {
			a.Command = res.Command
		}
		a.Output = res.Output
		e.stamp(&a.CompletedAt)

		status := StatusCompleted
		switch {
		case !res.Success:
			status = StatusFailed
			a.ErrorMessage = res.Error
			if a.ErrorMessage == "" {
				a.ErrorMessage = "Unknown error"
			}
		case q.Mode == ModeDryRun:
			status = StatusDryRun
		}
		if err := e.settle(work, q, a, status); err != nil {
			return nil, err
		}

		if status == StatusFailed {
			anyFailed = true
			if a.Type == ActionCreateRestorePoint {
				restoreFailed = true
				e.log.Warn("restore point failed; cancelling remaining actions", zap.String("queue", q.ID))
			}
		}
		e.progress.ActionCompleted(*a, i+1, total)
	}

	final := StatusCompleted
	switch {
	case anyFailed:
		final = StatusFailed
	case q.Mode == ModeDryRun:
		final = StatusDryRun
	}
	return e.finish(work, q, final)
}

func (e *Engine) cancelRemaining(ctx context.Context, q *Queue, from int) error {
	for i := from; i < len(q.Actions); i++ {
		a := &q.Actions[i]
		if a.Status == StatusPending || a.Status == StatusRunning {
			if err := e.settle(ctx, q, a, StatusCancelled); err != nil {
				return err
			}
		}
	}
	return nil
}

// settle moves a to a terminal status, persists it and writes the audit
// entry.
func (e *Engine) settle(ctx context.Context, q *Queue, a *Action, status Status) error {
	a.Status = status
	if err := e.repo.UpdateAction(ctx, a); err != nil {
		return fmt.Errorf("update action %s: %w", a.ID, err)
	}
	actionsTotal.WithLabelValues(string(a.Type), string(status)).Inc()
	e.log.Info("action finished",
		zap.String("action", a.ID), zap.String("type", string(a.Type)),
		zap.String("target", a.TargetID), zap.String("status", string(status)))
	return e.record(ctx, q, a)
}

func (e *Engine) record(ctx context.Context, q *Queue, a *Action) error {
	entry := audit.Entry{
		SessionID:  q.SessionID,
		ActionID:   a.ID,
		ActionType: string(a.Type),
		TargetID:   a.TargetID,
		Status:     string(a.Status),
	}
	if a.Status.Terminal() {
		entry.Output = a.Output
		entry.ErrorMessage = a.ErrorMessage
	}
	if _, err := e.audit.Record(ctx, entry); err != nil {
		return fmt.Errorf("audit action %s: %w", a.ID, err)
	}
	return nil
}

func (e *Engine) finish(ctx context.Context, q *Queue, status Status) (*Queue, error) {
	if err := e.repo.UpdateQueueStatus(ctx, q.ID, status); err != nil {
		return nil, fmt.Errorf("mark queue %s: %w", status, err)
	}
	q.Status = status
	queuesTotal.WithLabelValues(string(status)).Inc()
	e.log.Info("queue finished", zap.String("queue", q.ID), zap.String("status", string(status)))
	return q, nil
}

func (e *Engine) stamp(t **time.Time) {
	now := e.now().UTC()
	*t = &now
}
