// Package guard enforces the safety limits on advisor output: proposal
// shape and delta ceilings, hard-block protection, forbidden phrases,
// the tool allow-list and the advisory round limit.
package guard

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gzhole/migclean/internal/inventory"
	"github.com/gzhole/migclean/internal/plan"
	"github.com/gzhole/migclean/internal/proposal"
	"github.com/gzhole/migclean/internal/rules"
)

// Names of the operations an advisor may call.
const (
	ToolGetSession         = "get_session"
	ToolGetInventoryLatest = "get_inventory_latest"
	ToolGetInventoryItem   = "get_inventory_item"
	ToolGetPlanCurrent     = "get_plan_current"
	ToolGetHardBlocks      = "get_hardblocks"
	ToolCreateProposal     = "create_proposal"
	ToolListProposals      = "list_proposals"
	ToolGetProposal        = "get_proposal"
)

var defaultForbiddenPhrases = []string{
	"auto-approve",
	"approve automatically",
	"executing now",
	"i will execute",
	"i executed",
	"i'm going to run the uninstall",
	"i am going to run the uninstall",
}

var defaultAllowedTools = []string{
	ToolGetSession,
	ToolGetInventoryLatest,
	ToolGetInventoryItem,
	ToolGetPlanCurrent,
	ToolGetHardBlocks,
	ToolCreateProposal,
	ToolListProposals,
	ToolGetProposal,
}

// Policy holds the safety constants. It is a value: copies are
// independent and there is no way to mutate the phrase or tool lists
// after construction.
type Policy struct {
	MaxChanges   int
	MaxDelta     int
	FactMaxDelta int
	MaxRounds    int

	forbidden []string
	allowed   map[string]bool
}

// DefaultPolicy returns the standard limits: 5 changes, deltas of 25
// (40 with user facts), 10 advisory rounds.
func DefaultPolicy() Policy {
	return newPolicy(proposal.MaxChanges, 25, 40, 10)
}

// PolicyForLimits derives delta ceilings from a rule set's limits.
func PolicyForLimits(l rules.Limits) Policy {
	return newPolicy(proposal.MaxChanges, l.AIDeltaMax, l.AIDeltaMaxWithUserFact, 10)
}

func newPolicy(maxChanges, maxDelta, factMaxDelta, maxRounds int) Policy {
	allowed := make(map[string]bool, len(defaultAllowedTools))
	for _, t := range defaultAllowedTools {
		allowed[t] = true
	}
	return Policy{
		MaxChanges:   maxChanges,
		MaxDelta:     maxDelta,
		FactMaxDelta: factMaxDelta,
		MaxRounds:    maxRounds,
		forbidden:    append([]string(nil), defaultForbiddenPhrases...),
		allowed:      allowed,
	}
}

// ForbiddenPhrases returns a copy of the phrase list.
func (p Policy) ForbiddenPhrases() []string {
	return append([]string(nil), p.forbidden...)
}

// AllowedTools returns the sorted allow-list.
func (p Policy) AllowedTools() []string {
	out := make([]string, 0, len(p.allowed))
	for t := range p.allowed {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IsAllowedTool reports whether name is on the allow-list. Matching is
// exact.
func (p Policy) IsAllowedTool(name string) bool {
	return p.allowed[name]
}

// DetectForbiddenPhrases scans advisory text and returns one violation per
// phrase found. Hidden characters and look-alike letters are normalised
// away before matching.
func (p Policy) DetectForbiddenPhrases(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	normalized, _ := normalizeText(text)
	var violations []string
	for _, phrase := range p.forbidden {
		if strings.Contains(normalized, phrase) {
			violations = append(violations, fmt.Sprintf("Forbidden phrase detected: %q", phrase))
		}
	}
	return violations
}

// HiddenCharacters lists invisible or control code points in text.
func HiddenCharacters(text string) []string {
	_, hidden := normalizeText(text)
	return hidden
}

// ValidateProposal checks a change set and returns every violation; an
// empty result means the set is acceptable. The delta ceiling applied here
// is always the fact-backed one, whether or not the change is fact-backed.
// When current is non-nil, score and recommendation changes targeting
// hard-blocked items are rejected.
func (p Policy) ValidateProposal(changes []proposal.Change, current *plan.Plan) []string {
	var violations []string
	if len(changes) > p.MaxChanges {
		violations = append(violations, fmt.Sprintf("Too many changes: %d exceeds max of %d.", len(changes), p.MaxChanges))
	}
	if len(changes) == 0 {
		violations = append(violations, "Proposal must have at least one change.")
	}

	for _, c := range changes {
		if strings.TrimSpace(c.Reason) == "" {
			violations = append(violations, fmt.Sprintf("Change for %s (%s) missing reason.", c.TargetID, c.Type))
		}
		if strings.TrimSpace(c.TargetID) == "" {
			violations = append(violations, fmt.Sprintf("Change of type %s missing target ID.", c.Type))
		}
		if !inventory.ValidID(c.TargetID) {
			violations = append(violations, fmt.Sprintf("Invalid item ID format: %s", c.TargetID))
		}
		if c.Type == proposal.ChangeScoreDelta {
			d := c.DeltaValue()
			if math.Abs(float64(d)) > float64(p.FactMaxDelta) {
				violations = append(violations,
					fmt.Sprintf("Score delta %d for %s exceeds absolute max of ±%d.", d, c.TargetID, p.FactMaxDelta))
			}
		}
		if c.Type == proposal.ChangeRecommendation {
			if _, ok := rules.ParseRecommendation(c.Value); !ok {
				violations = append(violations,
					fmt.Sprintf("Invalid recommendation value %q for %s.", c.Value, c.TargetID))
			}
		}
		if current != nil && c.Type.TouchesScore() {
			if codes := current.HardBlockCodes(c.TargetID); len(codes) > 0 {
				violations = append(violations,
					fmt.Sprintf("Cannot modify hard-blocked item %s (blocks: %s).", c.TargetID, strings.Join(codes, ", ")))
			}
		}
	}
	return violations
}

// ValidationError carries guard violations as an error.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "proposal rejected: " + strings.Join(e.Violations, " ")
}

// Check wraps ValidateProposal, returning a *ValidationError on violations.
func (p Policy) Check(changes []proposal.Change, current *plan.Plan) error {
	if v := p.ValidateProposal(changes, current); len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}
