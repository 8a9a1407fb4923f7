package scoring

import (
	"github.com/gzhole/migclean/internal/inventory"
	"github.com/gzhole/migclean/internal/rules"
)

// HardBlock is a triggered non-overridable protection.
type HardBlock struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BlockEvaluator applies hard-block definitions independently of scoring.
type BlockEvaluator struct {
	rules *rules.RuleSet
	eval  *rules.Evaluator
}

func NewBlockEvaluator(rs *rules.RuleSet) *BlockEvaluator {
	return &BlockEvaluator{rules: rs, eval: rules.NewEvaluator(rs)}
}

// Evaluate returns every triggered block for item. An empty result means
// the item is not blocked.
func (b *BlockEvaluator) Evaluate(item inventory.Item) []HardBlock {
	var blocks []HardBlock
	for _, def := range b.rules.HardBlocks {
		if !def.AppliesTo(string(item.Type)) {
			continue
		}
		if b.eval.Match(def.When, item) {
			blocks = append(blocks, HardBlock{Code: def.Code, Message: def.Message})
		}
	}
	return blocks
}
