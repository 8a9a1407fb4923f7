// Package scoring computes baseline scores and hard blocks for inventory
// items. Both evaluators are pure and safe for concurrent use.
package scoring

import (
	"fmt"

	"github.com/gzhole/migclean/internal/inventory"
	"github.com/gzhole/migclean/internal/rules"
)

// DefaultRationale is emitted when no signal matches.
const DefaultRationale = "No signals matched; default baseline 0"

// MatchedSignal is a signal that contributed to a score.
type MatchedSignal struct {
	ID        string
	Weight    int
	Rationale string
}

// Result is the outcome of scoring one item.
type Result struct {
	Score          int
	Matched        []MatchedSignal
	Rationale      []string
	Recommendation rules.Recommendation
}

// Scorer applies a rule set's signals to items.
type Scorer struct {
	rules *rules.RuleSet
	eval  *rules.Evaluator
}

// NewScorer creates a scorer over rs.
func NewScorer(rs *rules.RuleSet) *Scorer {
	return &Scorer{rules: rs, eval: rules.NewEvaluator(rs)}
}

// Signals returns every signal matching item given facts, in rule order.
func (s *Scorer) Signals(item inventory.Item, facts []inventory.UserFact) []MatchedSignal {
	var matched []MatchedSignal
	for _, sig := range s.rules.Signals {
		if !sig.AppliesTo(string(item.Type)) {
			continue
		}
		if sig.RequiresUserFact != nil && !rules.MatchFacts(*sig.RequiresUserFact, facts) {
			continue
		}
		if s.eval.Match(sig.When, item) {
			matched = append(matched, MatchedSignal{ID: sig.ID, Weight: sig.Weight, Rationale: sig.Rationale})
		}
	}
	return matched
}

// Score sums matched weights, clamps the total and looks up its band.
func (s *Scorer) Score(item inventory.Item, facts []inventory.UserFact) Result {
	matched := s.Signals(item, facts)
	total := 0
	rationale := make([]string, 0, len(matched))
	for _, m := range matched {
		total += m.Weight
		rationale = append(rationale, fmt.Sprintf("%s: %s (%+d)", m.ID, m.Rationale, m.Weight))
	}
	if len(matched) == 0 {
		rationale = append(rationale, DefaultRationale)
	}
	score := s.rules.Limits.Clamp(total)
	return Result{
		Score:          score,
		Matched:        matched,
		Rationale:      rationale,
		Recommendation: s.rules.Recommend(score),
	}
}

// Recommend maps a score to its band label.
func (s *Scorer) Recommend(score int) rules.Recommendation {
	return s.rules.Recommend(score)
}
