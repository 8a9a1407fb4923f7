package advisor

import (
	"context"
	"errors"
	"time"

	"github.com/gzhole/migclean/internal/inventory"
	"github.com/gzhole/migclean/internal/plan"
	"github.com/gzhole/migclean/internal/proposal"
	"github.com/gzhole/migclean/internal/rules"
	"github.com/gzhole/migclean/internal/scoring"
	"github.com/gzhole/migclean/internal/session"
)

// scriptedModel returns its responses in order and records every request.
type scriptedModel struct {
	responses []*Response
	err       error
	requests  [][]Message
}

func (m *scriptedModel) Complete(_ context.Context, messages []Message, _ []ToolSpec) (*Response, error) {
	m.requests = append(m.requests, messages)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	r := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return r, nil
}

type fakeBackend struct {
	sessions  map[string]*session.Session
	snapshot  *inventory.Snapshot
	plan      *plan.Plan
	proposals []*proposal.Proposal
	createErr error
}

func newFakeBackend() *fakeBackend {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := &fakeBackend{
		sessions: map[string]*session.Session{
			"s1": {ID: "s1", Status: session.StatusPlanned, CreatedAt: now, UpdatedAt: now},
		},
	}
	b.snapshot = &inventory.Snapshot{
		ID:        "snap1",
		SessionID: "s1",
		CreatedAt: now,
		Items: []inventory.Item{
			{ID: "drv:oem12.inf", Type: inventory.TypeDriver, DisplayName: "Intel Audio", Vendor: "Intel"},
			{ID: "drv:inbox", Type: inventory.TypeDriver, DisplayName: "Inbox Storage", Vendor: "Microsoft"},
		},
	}
	b.snapshot.Summary = inventory.Summarize(b.snapshot.Items, inventory.Platform{})
	b.plan = &plan.Plan{
		ID:        "p1",
		SessionID: "s1",
		CreatedAt: now,
		Items: []plan.Item{
			{ItemID: "drv:oem12.inf", BaselineScore: 55, FinalScore: 55, Recommendation: rules.RecommendReview},
			{
				ItemID:         "drv:inbox",
				Recommendation: rules.RecommendBlocked,
				HardBlocks:     []scoring.HardBlock{{Code: "MICROSOFT_INBOX", Message: "Microsoft inbox driver"}},
			},
		},
	}
	return b
}

func (b *fakeBackend) GetSession(_ context.Context, id string) (*session.Session, error) {
	s, ok := b.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return s, nil
}

func (b *fakeBackend) LatestSnapshot(_ context.Context, sessionID string) (*inventory.Snapshot, error) {
	if b.snapshot == nil || b.snapshot.SessionID != sessionID {
		return nil, inventory.ErrNoSnapshot
	}
	return b.snapshot, nil
}

func (b *fakeBackend) CurrentPlan(_ context.Context, sessionID string) (*plan.Plan, error) {
	if b.plan == nil || b.plan.SessionID != sessionID {
		return nil, plan.ErrNotFound
	}
	return b.plan, nil
}

func (b *fakeBackend) CreateProposal(_ context.Context, sessionID string, req proposal.CreateRequest) (*proposal.Proposal, error) {
	if b.createErr != nil {
		return nil, b.createErr
	}
	p := &proposal.Proposal{
		ID:        "prop-1",
		SessionID: sessionID,
		Title:     req.Title,
		Status:    proposal.StatusPending,
		Changes:   req.Changes,
	}
	b.proposals = append(b.proposals, p)
	return p, nil
}

func (b *fakeBackend) ListProposals(_ context.Context, sessionID string) ([]*proposal.Proposal, error) {
	var out []*proposal.Proposal
	for _, p := range b.proposals {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (b *fakeBackend) GetProposal(_ context.Context, id string) (*proposal.Proposal, error) {
	for _, p := range b.proposals {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, proposal.ErrNotFound
}
