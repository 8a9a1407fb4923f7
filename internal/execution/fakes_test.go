package execution

import (
	"context"
	"sync"

	"github.com/gzhole/migclean/internal/audit"
)

type call struct {
	name string
	args []string
}

// fakeRunner answers by executable name and records each invocation.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	results map[string]RunResult
	errs    map[string]error
	block   bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, args: args})
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return RunResult{ExitCode: -1}, ctx.Err()
	}
	key := name
	if len(args) > 0 {
		key = name + " " + args[0]
	}
	if err, ok := f.errs[key]; ok {
		return RunResult{ExitCode: -1}, err
	}
	if r, ok := f.results[key]; ok {
		return r, nil
	}
	return RunResult{Stdout: "ok"}, nil
}

type memQueues struct {
	mu     sync.Mutex
	queues map[string]*Queue
	writes []Status
}

func newMemQueues() *memQueues { return &memQueues{queues: map[string]*Queue{}} }

func (m *memQueues) CreateQueue(_ context.Context, q *Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *q
	cp.Actions = append([]Action(nil), q.Actions...)
	m.queues[q.ID] = &cp
	return nil
}

func (m *memQueues) GetQueue(_ context.Context, id string) (*Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	cp.Actions = append([]Action(nil), q.Actions...)
	return &cp, nil
}

func (m *memQueues) UpdateQueueStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[id]
	if !ok {
		return ErrNotFound
	}
	q.Status = status
	return nil
}

func (m *memQueues) UpdateAction(_ context.Context, a *Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[a.QueueID]
	if !ok {
		return ErrNotFound
	}
	for i := range q.Actions {
		if q.Actions[i].ID == a.ID {
			q.Actions[i] = *a
			m.writes = append(m.writes, a.Status)
			return nil
		}
	}
	return ErrNotFound
}

type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memAudit) Record(_ context.Context, e audit.Entry) (*audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return &e, nil
}

func (m *memAudit) statuses(actionID string) []string {
	var out []string
	for _, e := range m.entries {
		if e.ActionID == actionID {
			out = append(out, e.Status)
		}
	}
	return out
}

// countingHandler records invocations and returns a fixed result.
type countingHandler struct {
	typ    ActionType
	result Result
	calls  int
	onRun  func()
}

func (h *countingHandler) Type() ActionType { return h.typ }

func (h *countingHandler) Execute(_ context.Context, _ *Action, _ Mode) Result {
	h.calls++
	if h.onRun != nil {
		h.onRun()
	}
	return h.result
}

type recordingProgress struct {
	started, completed []int
}

func (p *recordingProgress) ActionStarting(_ Action, current, _ int) {
	p.started = append(p.started, current)
}

func (p *recordingProgress) ActionCompleted(_ Action, current, _ int) {
	p.completed = append(p.completed, current)
}
