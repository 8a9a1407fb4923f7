package rules

import "strings"

// Recommendation is the label a plan item carries.
type Recommendation string

const (
	RecommendKeep         Recommendation = "KEEP"
	RecommendReview       Recommendation = "REVIEW"
	RecommendRemoveStage1 Recommendation = "REMOVE_STAGE_1"
	RecommendRemoveStage2 Recommendation = "REMOVE_STAGE_2"
	RecommendBlocked      Recommendation = "BLOCKED"
)

// ParseRecommendation parses a label case-insensitively.
func ParseRecommendation(s string) (Recommendation, bool) {
	r := Recommendation(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RecommendKeep, RecommendReview, RecommendRemoveStage1, RecommendRemoveStage2, RecommendBlocked:
		return r, true
	}
	return "", false
}

// RuleSet is the scoring configuration. It is validated at load time and
// must be treated as read-only afterwards; evaluators share it across
// goroutines without locking.
type RuleSet struct {
	Version     int                 `yaml:"version"`
	Limits      Limits              `yaml:"limits"`
	Bands       []Band              `yaml:"recommendation_bands"`
	HardBlocks  []HardBlockDef      `yaml:"hard_blocks"`
	KeywordSets map[string][]string `yaml:"keyword_sets"`
	Signals     []Signal            `yaml:"signals"`
	PostRules   PostRules           `yaml:"post_rules"`
}

// Limits bound scores and advisor deltas.
type Limits struct {
	ScoreMin               int `yaml:"score_min"`
	ScoreMax               int `yaml:"score_max"`
	AIDeltaMin             int `yaml:"ai_delta_min"`
	AIDeltaMax             int `yaml:"ai_delta_max"`
	AIDeltaMaxWithUserFact int `yaml:"ai_delta_max_with_user_fact"`
}

// DefaultLimits are applied for any limit the YAML omits.
func DefaultLimits() Limits {
	return Limits{
		ScoreMin:               0,
		ScoreMax:               100,
		AIDeltaMin:             -25,
		AIDeltaMax:             25,
		AIDeltaMaxWithUserFact: 40,
	}
}

// Clamp restricts score to [ScoreMin, ScoreMax].
func (l Limits) Clamp(score int) int {
	return min(max(score, l.ScoreMin), l.ScoreMax)
}

// Band maps an inclusive score range to a recommendation.
type Band struct {
	Min            int            `yaml:"min"`
	Max            int            `yaml:"max"`
	Recommendation Recommendation `yaml:"recommendation"`
}

// HardBlockDef is a non-overridable protection rule.
type HardBlockDef struct {
	Code           string         `yaml:"code"`
	When           ConditionGroup `yaml:"when"`
	Message        string         `yaml:"message"`
	AppliesToTypes []string       `yaml:"applies_to_types,omitempty"`
}

// Signal is a weighted contributor to an item's baseline score.
type Signal struct {
	ID               string          `yaml:"id"`
	Weight           int             `yaml:"weight"`
	When             ConditionGroup  `yaml:"when"`
	Rationale        string          `yaml:"rationale"`
	AppliesToTypes   []string        `yaml:"applies_to_types,omitempty"`
	RequiresUserFact *ConditionGroup `yaml:"requires_user_fact,omitempty"`
}

// ConditionGroup is either an AND (All) or an OR (Any) of conditions.
// When both are set, All takes precedence.
type ConditionGroup struct {
	All []Condition `yaml:"all,omitempty"`
	Any []Condition `yaml:"any,omitempty"`
}

func (g ConditionGroup) empty() bool {
	return g.All == nil && g.Any == nil
}

// Condition is an atomic predicate. Item conditions use Path/Op/Value
// (Keywords names a keyword set for matches_keywords); fact conditions use
// Key/EqualsI.
type Condition struct {
	Path     string `yaml:"path,omitempty"`
	Op       string `yaml:"op,omitempty"`
	Value    any    `yaml:"value,omitempty"`
	Keywords string `yaml:"keywords,omitempty"`
	Key      string `yaml:"key,omitempty"`
	EqualsI  string `yaml:"equals_i,omitempty"`
}

type PostRules struct {
	ClampScore        bool `yaml:"clamp_score"`
	ComputeFinalScore bool `yaml:"compute_final_score"`
}

// Recommend returns the label of the first band containing score, or KEEP.
func (rs *RuleSet) Recommend(score int) Recommendation {
	for _, b := range rs.Bands {
		if score >= b.Min && score <= b.Max {
			return b.Recommendation
		}
	}
	return RecommendKeep
}

// appliesTo reports whether a type filter admits itemType. An empty filter
// admits everything.
func appliesTo(filter []string, itemType string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, t := range filter {
		if strings.EqualFold(t, itemType) {
			return true
		}
	}
	return false
}

// AppliesTo reports whether the hard block applies to itemType.
func (h HardBlockDef) AppliesTo(itemType string) bool { return appliesTo(h.AppliesToTypes, itemType) }

// AppliesTo reports whether the signal applies to itemType.
func (s Signal) AppliesTo(itemType string) bool { return appliesTo(s.AppliesToTypes, itemType) }
