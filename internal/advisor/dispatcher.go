package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gzhole/migclean/internal/guard"
	"github.com/gzhole/migclean/internal/inventory"
	"github.com/gzhole/migclean/internal/plan"
	"github.com/gzhole/migclean/internal/proposal"
	"github.com/gzhole/migclean/internal/scoring"
	"github.com/gzhole/migclean/internal/session"
)

// Backend is the read and propose surface the dispatcher exposes.
type Backend interface {
	GetSession(ctx context.Context, id string) (*session.Session, error)
	LatestSnapshot(ctx context.Context, sessionID string) (*inventory.Snapshot, error)
	CurrentPlan(ctx context.Context, sessionID string) (*plan.Plan, error)
	CreateProposal(ctx context.Context, sessionID string, req proposal.CreateRequest) (*proposal.Proposal, error)
	ListProposals(ctx context.Context, sessionID string) ([]*proposal.Proposal, error)
	GetProposal(ctx context.Context, id string) (*proposal.Proposal, error)
}

// Dispatcher executes allowed tool calls against a Backend. Every result,
// including failures, is a JSON document; failures have an "error" key.
type Dispatcher struct {
	backend Backend
	policy  guard.Policy
}

func NewDispatcher(backend Backend, policy guard.Policy) *Dispatcher {
	return &Dispatcher{backend: backend, policy: policy}
}

type errorResult struct {
	Error      string   `json:"error"`
	Violations []string `json:"violations,omitempty"`
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(b)
}

func fail(format string, args ...any) string {
	return encode(errorResult{Error: fmt.Sprintf(format, args...)})
}

// Dispatch runs tool name with its JSON arguments for sessionID.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, name, args string) string {
	if !d.policy.IsAllowedTool(name) {
		return fail("Tool '%s' is not allowed.", name)
	}
	switch name {
	case guard.ToolGetSession:
		return d.getSession(ctx, sessionID)
	case guard.ToolGetInventoryLatest:
		return d.inventoryLatest(ctx, sessionID)
	case guard.ToolGetInventoryItem:
		return d.inventoryItem(ctx, sessionID, args)
	case guard.ToolGetPlanCurrent:
		return d.planCurrent(ctx, sessionID)
	case guard.ToolGetHardBlocks:
		return d.hardBlocks(ctx, sessionID, args)
	case guard.ToolCreateProposal:
		return d.createProposal(ctx, sessionID, args)
	case guard.ToolListProposals:
		return d.listProposals(ctx, sessionID)
	case guard.ToolGetProposal:
		return d.getProposal(ctx, sessionID, args)
	}
	return fail("Unknown tool: %s", name)
}

func decodeArgs(args string, v any) error {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (d *Dispatcher) getSession(ctx context.Context, sessionID string) string {
	s, err := d.backend.GetSession(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return fail("Session not found.")
	}
	if err != nil {
		return fail("%s", err)
	}
	return encode(s)
}

func (d *Dispatcher) latestSnapshot(ctx context.Context, sessionID string) (*inventory.Snapshot, string) {
	snap, err := d.backend.LatestSnapshot(ctx, sessionID)
	if errors.Is(err, inventory.ErrNoSnapshot) {
		return nil, fail("No snapshot found.")
	}
	if err != nil {
		return nil, fail("%s", err)
	}
	return snap, ""
}

func (d *Dispatcher) inventoryLatest(ctx context.Context, sessionID string) string {
	snap, errJSON := d.latestSnapshot(ctx, sessionID)
	if snap == nil {
		return errJSON
	}
	return encode(struct {
		SnapshotID string            `json:"snapshotId"`
		SessionID  string            `json:"sessionId"`
		CreatedAt  time.Time         `json:"createdAt"`
		Summary    inventory.Summary `json:"summary"`
	}{snap.ID, snap.SessionID, snap.CreatedAt, snap.Summary})
}

type itemArg struct {
	ItemID string `json:"itemId"`
}

func (d *Dispatcher) inventoryItem(ctx context.Context, sessionID, args string) string {
	var a itemArg
	if err := decodeArgs(args, &a); err != nil {
		return fail("%s", err)
	}
	if strings.TrimSpace(a.ItemID) == "" {
		return fail("Missing itemId parameter.")
	}
	snap, errJSON := d.latestSnapshot(ctx, sessionID)
	if snap == nil {
		return errJSON
	}
	item, ok := snap.Item(a.ItemID)
	if !ok {
		return fail("Item %s not found.", a.ItemID)
	}
	return encode(item)
}

func (d *Dispatcher) currentPlan(ctx context.Context, sessionID string) (*plan.Plan, error) {
	p, err := d.backend.CurrentPlan(ctx, sessionID)
	if errors.Is(err, plan.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (d *Dispatcher) planCurrent(ctx context.Context, sessionID string) string {
	p, err := d.currentPlan(ctx, sessionID)
	if err != nil {
		return fail("%s", err)
	}
	if p == nil {
		return fail("No current plan.")
	}
	return encode(p)
}

func (d *Dispatcher) hardBlocks(ctx context.Context, sessionID, args string) string {
	var a itemArg
	if err := decodeArgs(args, &a); err != nil {
		return fail("%s", err)
	}
	if strings.TrimSpace(a.ItemID) == "" {
		return fail("Missing itemId parameter.")
	}
	p, err := d.currentPlan(ctx, sessionID)
	if err != nil {
		return fail("%s", err)
	}
	blocks := []scoring.HardBlock{}
	if p != nil {
		if it := p.Item(a.ItemID); it != nil && len(it.HardBlocks) > 0 {
			blocks = it.HardBlocks
		}
	}
	return encode(struct {
		ItemID     string              `json:"itemId"`
		HardBlocks []scoring.HardBlock `json:"hardBlocks"`
	}{a.ItemID, blocks})
}

func (d *Dispatcher) createProposal(ctx context.Context, sessionID, args string) string {
	var req proposal.CreateRequest
	if err := decodeArgs(args, &req); err != nil {
		return fail("%s", err)
	}
	if strings.TrimSpace(req.Title) == "" {
		return fail("Missing title.")
	}
	if len(req.Changes) == 0 {
		return fail("Missing changes.")
	}

	p, err := d.currentPlan(ctx, sessionID)
	if err != nil {
		return fail("%s", err)
	}
	if v := d.policy.ValidateProposal(req.Changes, p); len(v) > 0 {
		return encode(errorResult{Error: "Proposal validation failed.", Violations: v})
	}

	created, err := d.backend.CreateProposal(ctx, sessionID, req)
	if err != nil {
		var verr *guard.ValidationError
		if errors.As(err, &verr) {
			return encode(errorResult{Error: "Proposal validation failed.", Violations: verr.Violations})
		}
		return fail("%s", err)
	}
	return encode(struct {
		ProposalID string          `json:"proposalId"`
		Status     proposal.Status `json:"status"`
		Message    string          `json:"message"`
	}{created.ID, created.Status, "Proposal created. Awaiting user approval."})
}

func (d *Dispatcher) listProposals(ctx context.Context, sessionID string) string {
	list, err := d.backend.ListProposals(ctx, sessionID)
	if err != nil {
		return fail("%s", err)
	}
	if list == nil {
		list = []*proposal.Proposal{}
	}
	return encode(list)
}

func (d *Dispatcher) getProposal(ctx context.Context, sessionID, args string) string {
	var a struct {
		ProposalID string `json:"proposalId"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return fail("%s", err)
	}
	if strings.TrimSpace(a.ProposalID) == "" {
		return fail("Missing proposalId parameter.")
	}
	p, err := d.backend.GetProposal(ctx, a.ProposalID)
	if errors.Is(err, proposal.ErrNotFound) || (err == nil && p.SessionID != sessionID) {
		return fail("Proposal not found.")
	}
	if err != nil {
		return fail("%s", err)
	}
	return encode(p)
}
