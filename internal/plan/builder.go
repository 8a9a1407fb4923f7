package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gzhole/migclean/internal/inventory"
	"github.com/gzhole/migclean/internal/rules"
	"github.com/gzhole/migclean/internal/scoring"
)

// Builder turns a snapshot into a fully formed decision plan.
type Builder struct {
	scorer *scoring.Scorer
	blocks *scoring.BlockEvaluator
}

func NewBuilder(rs *rules.RuleSet) *Builder {
	return &Builder{scorer: scoring.NewScorer(rs), blocks: scoring.NewBlockEvaluator(rs)}
}

// Build scores and hard-blocks every snapshot item. Any triggered hard block
// forces BLOCKED regardless of score.
func (b *Builder) Build(sessionID string, snap *inventory.Snapshot, facts []inventory.UserFact) *Plan {
	p := &Plan{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
		Items:     make([]Item, 0, len(snap.Items)),
	}
	for _, it := range snap.Items {
		p.Items = append(p.Items, b.BuildItem(it, facts))
	}
	scoredItems.Add(float64(len(snap.Items)))
	return p
}

// BuildItem produces the plan item for a single inventory item.
func (b *Builder) BuildItem(it inventory.Item, facts []inventory.UserFact) Item {
	res := b.scorer.Score(it, facts)
	blocks := b.blocks.Evaluate(it)

	item := Item{
		ItemID:          it.ID,
		BaselineScore:   res.Score,
		FinalScore:      res.Score,
		Recommendation:  res.Recommendation,
		HardBlocks:      blocks,
		EngineRationale: res.Rationale,
	}
	if len(blocks) > 0 {
		codes := make([]string, len(blocks))
		reasons := make([]string, len(blocks))
		for i, hb := range blocks {
			codes[i] = hb.Code
			reasons[i] = fmt.Sprintf("%s: %s", hb.Code, hb.Message)
		}
		item.Recommendation = rules.RecommendBlocked
		item.BlockedReason = strings.Join(reasons, "; ")
		item.EngineRationale = append(item.EngineRationale, "BLOCKED by: "+strings.Join(codes, ", "))
		blockedItems.Inc()
	}
	return item
}
