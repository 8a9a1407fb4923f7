package proposal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestComputeRisk(t *testing.T) {
	note := Change{Type: ChangeNoteAdd, TargetID: "drv:a", Reason: "r"}
	tests := []struct {
		name    string
		changes []Change
		want    Risk
	}{
		{"single note", []Change{note}, RiskLow},
		{"small delta", []Change{{Type: ChangeScoreDelta, Delta: intPtr(15)}}, RiskLow},
		{"large delta", []Change{{Type: ChangeScoreDelta, Delta: intPtr(-16)}}, RiskHigh},
		{"stage 1", []Change{{Type: ChangeRecommendation, Value: "REMOVE_STAGE_1"}}, RiskHigh},
		{"stage 1 lower case", []Change{{Type: ChangeRecommendation, Value: " remove_stage_1 "}}, RiskHigh},
		{"stage 2", []Change{{Type: ChangeRecommendation, Value: "remove_stage_2"}}, RiskLow},
		{"three changes", []Change{note, note, note}, RiskMedium},
		{"action add", []Change{{Type: ChangeActionAdd}}, RiskMedium},
	}
	for _, tt := range tests {
		if got := ComputeRisk(tt.changes); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

type memRepo struct {
	mu    sync.Mutex
	items map[string]*Proposal
}

func newMemRepo() *memRepo { return &memRepo{items: map[string]*Proposal{}} }

func (m *memRepo) CreateProposal(ctx context.Context, p *Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *memRepo) GetProposal(ctx context.Context, id string) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) ListProposals(ctx context.Context, sessionID string) ([]*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Proposal
	for _, p := range m.items {
		if p.SessionID == sessionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateProposalStatus(ctx context.Context, id string, from, to Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != from {
		return ErrInvalidTransition
	}
	p.Status = to
	p.UpdatedAt = at
	return nil
}

func TestService_CreateAndApprove(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo())

	p, err := svc.Create(ctx, "s1", CreateRequest{
		Title:   "  Raise Intel MEI  ",
		Changes: []Change{{Type: ChangeScoreDelta, TargetID: "drv:mei", Delta: intPtr(20), Reason: "old platform"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Raise Intel MEI", p.Title)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, RiskHigh, p.Risk)

	approved, err := svc.Approve(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)

	_, err = svc.Reject(ctx, p.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Approve(ctx, p.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestService_RejectIsFinal(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo())
	p, err := svc.Create(ctx, "s1", CreateRequest{
		Title:   "note",
		Changes: []Change{{Type: ChangeNoteAdd, TargetID: "app:x", Reason: "r"}},
	})
	require.NoError(t, err)

	_, err = svc.Reject(ctx, p.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_ConcurrentDecisionsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo())
	p, err := svc.Create(ctx, "s1", CreateRequest{
		Title:   "note",
		Changes: []Change{{Type: ChangeNoteAdd, TargetID: "app:x", Reason: "r"}},
	})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			var err error
			if approve {
				_, err = svc.Approve(ctx, p.ID)
			} else {
				_, err = svc.Reject(ctx, p.ID)
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}(i%2 == 0)
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo())
	six := make([]Change, 6)
	for i := range six {
		six[i] = Change{Type: ChangeNoteAdd, TargetID: "app:x", Reason: "r"}
	}

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"blank title", CreateRequest{Title: "   ", Changes: six[:1]}},
		{"no changes", CreateRequest{Title: "t"}},
		{"too many changes", CreateRequest{Title: "t", Changes: six}},
		{"change without target", CreateRequest{Title: "t", Changes: []Change{{Type: ChangeNoteAdd, Reason: "r"}}}},
		{"evidence without kind", CreateRequest{Title: "t", Changes: six[:1], Evidence: []Evidence{{Path: "HKLM"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "s1", tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest), "got %v", err)
		})
	}
}

func TestService_MissingProposal(t *testing.T) {
	svc := NewService(newMemRepo())
	_, err := svc.Approve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
