package plan

import (
	"context"
	"errors"
	"time"

	"github.com/gzhole/migclean/internal/rules"
	"github.com/gzhole/migclean/internal/scoring"
)

var ErrNotFound = errors.New("plan not found")

// Item is the decision for one inventory item. After generation it is
// mutated only by the merge engine.
type Item struct {
	ItemID          string               `json:"itemId"`
	BaselineScore   int                  `json:"baselineScore"`
	AIScoreDelta    int                  `json:"aiScoreDelta"`
	FinalScore      int                  `json:"finalScore"`
	Recommendation  rules.Recommendation `json:"recommendation"`
	HardBlocks      []scoring.HardBlock  `json:"hardBlocks,omitempty"`
	EngineRationale []string             `json:"engineRationale"`
	AIRationale     []string             `json:"aiRationale,omitempty"`
	Notes           []string             `json:"notes,omitempty"`
	BlockedReason   string               `json:"blockedReason,omitempty"`
}

// Blocked reports whether any hard block applies.
func (i *Item) Blocked() bool { return len(i.HardBlocks) > 0 }

// Plan is the per-session set of decisions.
type Plan struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	Items     []Item    `json:"items"`
}

// Item returns a pointer into the plan for id, or nil.
func (p *Plan) Item(id string) *Item {
	for i := range p.Items {
		if p.Items[i].ItemID == id {
			return &p.Items[i]
		}
	}
	return nil
}

// HardBlockCodes returns the codes blocking id, or nil when the item is
// unknown or unblocked.
func (p *Plan) HardBlockCodes(id string) []string {
	it := p.Item(id)
	if it == nil {
		return nil
	}
	codes := make([]string, 0, len(it.HardBlocks))
	for _, hb := range it.HardBlocks {
		codes = append(codes, hb.Code)
	}
	return codes
}

// Repository persists plans. CurrentPlan returns the most recent plan of a
// session; UpdatePlanItem rewrites one item of an existing plan.
type Repository interface {
	CreatePlan(ctx context.Context, p *Plan) error
	CurrentPlan(ctx context.Context, sessionID string) (*Plan, error)
	UpdatePlanItem(ctx context.Context, planID string, item Item) error
}
