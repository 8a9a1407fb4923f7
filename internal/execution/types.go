// Package execution turns a decision plan into an ordered action queue
// and runs it. The restore point is always the first action and gates
// every destructive action after it.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActionType names the system effect an action performs.
type ActionType string

const (
	ActionCreateRestorePoint     ActionType = "CREATE_RESTORE_POINT"
	ActionUninstallDriverPackage ActionType = "UNINSTALL_DRIVER_PACKAGE"
	ActionDisableService         ActionType = "DISABLE_SERVICE"
	ActionUninstallProgram       ActionType = "UNINSTALL_PROGRAM"
)

// Status is shared by actions and by the queue's overall status.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
	StatusDryRun    Status = "DRY_RUN"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusDryRun, StatusCancelled:
		return true
	}
	return false
}

// Mode selects between real effects and command preview.
type Mode string

const (
	ModeLive   Mode = "LIVE"
	ModeDryRun Mode = "DRY_RUN"
)

// ParseMode accepts "live" or "dry_run"/"dry-run" in any case.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_")); m {
	case ModeLive, ModeDryRun:
		return m, nil
	}
	return "", fmt.Errorf("unknown execution mode %q", s)
}

var (
	ErrNotFound        = errors.New("action queue not found")
	ErrQueueNotPending = errors.New("queue is not pending")
)

// Action is one step of a queue. It is mutated in place by the engine.
type Action struct {
	ID           string     `json:"id"`
	QueueID      string     `json:"queueId"`
	Order        int        `json:"order"`
	Type         ActionType `json:"actionType"`
	TargetID     string     `json:"targetId"`
	DisplayName  string     `json:"displayName"`
	Status       Status     `json:"status"`
	Command      string     `json:"command,omitempty"`
	Output       string     `json:"output,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Queue is the ordered action list of one execution attempt.
type Queue struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	Mode      Mode      `json:"mode"`
	Status    Status    `json:"overallStatus"`
	Actions   []Action  `json:"actions"`
}

// Repository persists queues and their actions. GetQueue returns actions
// sorted by order.
type Repository interface {
	CreateQueue(ctx context.Context, q *Queue) error
	GetQueue(ctx context.Context, id string) (*Queue, error)
	UpdateQueueStatus(ctx context.Context, id string, status Status) error
	UpdateAction(ctx context.Context, a *Action) error
}
