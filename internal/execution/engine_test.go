package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func queueOf(mode Mode, types ...ActionType) *Queue {
	q := &Queue{ID: "q1", SessionID: "s1", Mode: mode, Status: StatusPending}
	for i, typ := range types {
		q.Actions = append(q.Actions, Action{
			ID: string(rune('a' + i)), QueueID: "q1", Order: i, Type: typ,
			TargetID: "drv:x" + string(rune('0'+i)), Status: StatusPending,
		})
	}
	return q
}

type harness struct {
	repo     *memQueues
	audit    *memAudit
	progress *recordingProgress
	handlers map[ActionType]*countingHandler
	engine   *Engine
}

func newHarness(t *testing.T, q *Queue, results map[ActionType]Result) *harness {
	t.Helper()
	h := &harness{repo: newMemQueues(), audit: &memAudit{}, progress: &recordingProgress{}, handlers: map[ActionType]*countingHandler{}}
	require.NoError(t, h.repo.CreateQueue(context.Background(), q))
	var hs []Handler
	for typ, res := range results {
		ch := &countingHandler{typ: typ, result: res}
		h.handlers[typ] = ch
		hs = append(hs, ch)
	}
	h.engine = NewEngine(h.repo, h.audit, NewRegistry(hs...), nil, WithProgress(h.progress))
	return h
}

func statuses(q *Queue) []Status {
	out := make([]Status, len(q.Actions))
	for i, a := range q.Actions {
		out[i] = a.Status
	}
	return out
}

func TestEngine_RestorePointFailureCancelsEverything(t *testing.T) {
	q := queueOf(ModeLive, ActionCreateRestorePoint, ActionUninstallDriverPackage, ActionDisableService)
	h := newHarness(t, q, map[ActionType]Result{
		ActionCreateRestorePoint:     {Error: "restore disabled"},
		ActionUninstallDriverPackage: {Success: true},
		ActionDisableService:         {Success: true},
	})

	got, err := h.engine.Execute(context.Background(), "q1")
	require.NoError(t, err)

	assert.Equal(t, []Status{StatusFailed, StatusCancelled, StatusCancelled}, statuses(got))
	assert.Equal(t, StatusFailed, got.Status)
	assert.Zero(t, h.handlers[ActionUninstallDriverPackage].calls)
	assert.Zero(t, h.handlers[ActionDisableService].calls)
	assert.Equal(t, "restore disabled", got.Actions[0].ErrorMessage)

	stored, _ := h.repo.GetQueue(context.Background(), "q1")
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, []Status{StatusFailed, StatusCancelled, StatusCancelled}, statuses(stored))

	assert.Equal(t, []string{"RUNNING", "FAILED"}, h.audit.statuses("a"))
	assert.Equal(t, []string{"CANCELLED"}, h.audit.statuses("b"))
	assert.Equal(t, []string{"CANCELLED"}, h.audit.statuses("c"))
}

func TestEngine_LiveSuccess(t *testing.T) {
	q := queueOf(ModeLive, ActionCreateRestorePoint, ActionDisableService)
	h := newHarness(t, q, map[ActionType]Result{
		ActionCreateRestorePoint: {Success: true, Command: "checkpoint", Output: "done"},
		ActionDisableService:     {Success: true, Output: "SUCCESS"},
	})

	got, err := h.engine.Execute(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, []Status{StatusCompleted, StatusCompleted}, statuses(got))
	assert.Equal(t, "checkpoint", got.Actions[0].Command)
	assert.NotNil(t, got.Actions[1].StartedAt)
	assert.NotNil(t, got.Actions[1].CompletedAt)
	assert.Equal(t, []int{1, 2}, h.progress.started)
	assert.Equal(t, []int{1, 2}, h.progress.completed)
	assert.Equal(t, []string{"RUNNING", "COMPLETED"}, h.audit.statuses("b"))
	assert.Equal(t, "SUCCESS", h.audit.entries[3].Output)
}

func TestEngine_DryRun(t *testing.T) {
	q := queueOf(ModeDryRun, ActionCreateRestorePoint, ActionUninstallDriverPackage)
	h := newHarness(t, q, map[ActionType]Result{
		ActionCreateRestorePoint:     {Success: true, Output: "[DRY RUN] Would create system restore point."},
		ActionUninstallDriverPackage: {Success: true, Output: "[DRY RUN] Would execute: pnputil"},
	})

	got, err := h.engine.Execute(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, StatusDryRun, got.Status)
	assert.Equal(t, []Status{StatusDryRun, StatusDryRun}, statuses(got))
}

func TestEngine_DryRunHandlerFailureFailsQueue(t *testing.T) {
	q := queueOf(ModeDryRun, ActionCreateRestorePoint, ActionUninstallProgram)
	h := newHarness(t, q, map[ActionType]Result{
		ActionCreateRestorePoint: {Success: true},
		ActionUninstallProgram:   {Error: "No uninstall command available for 'app:x'."},
	})

	got, err := h.engine.Execute(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, []Status{StatusDryRun, StatusFailed}, statuses(got))
}

func TestEngine_NonRestoreFailureDoesNotCascade(t *testing.T) {
	q := queueOf(ModeLive, ActionCreateRestorePoint, ActionUninstallDriverPackage, ActionDisableService)
	h := newHarness(t, q, map[ActionType]Result{
		ActionCreateRestorePoint:     {Success: true},
		ActionUninstallDriverPackage: {Error: "in use"},
		ActionDisableService:         {Success: true},
	})

	got, err := h.engine.Execute(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusCompleted, StatusFailed, StatusCompleted}, statuses(got))
	assert.Equal(t, StatusFailed, got.Status)
}

func TestEngine_MissingHandler(t *testing.T) {
	q := queueOf(ModeLive, ActionCreateRestorePoint, ActionUninstallProgram)
	h := newHarness(t, q, map[ActionType]Result{ActionCreateRestorePoint: {Success: true}})

	got, err := h.engine.Execute(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Actions[1].Status)
	assert.Equal(t, "No handler registered for action type UNINSTALL_PROGRAM.", got.Actions[1].ErrorMessage)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, []string{"FAILED"}, h.audit.statuses("b"))
}

func TestEngine_CancellationAtActionBoundary(t *testing.T) {
	q := queueOf(ModeLive, ActionCreateRestorePoint, ActionUninstallDriverPackage, ActionDisableService)
	h := newHarness(t, q, map[ActionType]Result{
		ActionCreateRestorePoint:     {Success: true},
		ActionUninstallDriverPackage: {Success: true},
		ActionDisableService:         {Success: true},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.handlers[ActionCreateRestorePoint].onRun = cancel

	got, err := h.engine.Execute(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusCompleted, StatusCancelled, StatusCancelled}, statuses(got))
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Zero(t, h.handlers[ActionUninstallDriverPackage].calls)

	stored, _ := h.repo.GetQueue(context.Background(), "q1")
	assert.Equal(t, StatusCancelled, stored.Status)
}

func TestEngine_RequiresPendingQueue(t *testing.T) {
	q := queueOf(ModeLive, ActionCreateRestorePoint)
	q.Status = StatusCompleted
	h := newHarness(t, q, map[ActionType]Result{})

	_, err := h.engine.Execute(context.Background(), "q1")
	assert.True(t, errors.Is(err, ErrQueueNotPending))

	_, err = h.engine.Execute(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEngine_RunsInOrderRegardlessOfStorage(t *testing.T) {
	q := queueOf(ModeLive, ActionCreateRestorePoint, ActionDisableService)
	q.Actions[0], q.Actions[1] = q.Actions[1], q.Actions[0]
	h := newHarness(t, q, map[ActionType]Result{
		ActionCreateRestorePoint: {Error: "nope"},
		ActionDisableService:     {Success: true},
	})

	got, err := h.engine.Execute(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, ActionCreateRestorePoint, got.Actions[0].Type)
	assert.Equal(t, []Status{StatusFailed, StatusCancelled}, statuses(got))
}
