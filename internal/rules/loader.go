package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRuleSet is returned when a rule set fails validation.
var ErrInvalidRuleSet = errors.New("invalid rule set")

//go:embed default_rules.yaml
var defaultRules []byte

// Parse decodes and validates a YAML rule set. Omitted limits take their
// defaults.
func Parse(data []byte) (*RuleSet, error) {
	rs := &RuleSet{Limits: DefaultLimits()}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	if rs.KeywordSets == nil {
		rs.KeywordSets = map[string][]string{}
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Load reads a rule set from path.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// LoadOrDefault loads path, falling back to the built-in rules when the
// file does not exist.
func LoadOrDefault(path string) (*RuleSet, error) {
	if path == "" {
		return Default(), nil
	}
	rs, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return rs, err
}

// Default returns a fresh copy of the built-in rule set.
func Default() *RuleSet {
	rs, err := Parse(defaultRules)
	if err != nil {
		panic("built-in rules: " + err.Error())
	}
	return rs
}

// Validate checks structural invariants. All problems are reported at once.
func (rs *RuleSet) Validate() error {
	var problems []string
	l := rs.Limits
	if l.ScoreMin > l.ScoreMax {
		problems = append(problems, fmt.Sprintf("score_min (%d) > score_max (%d)", l.ScoreMin, l.ScoreMax))
	}
	if l.AIDeltaMin > l.AIDeltaMax {
		problems = append(problems, fmt.Sprintf("ai_delta_min (%d) > ai_delta_max (%d)", l.AIDeltaMin, l.AIDeltaMax))
	}
	if l.AIDeltaMaxWithUserFact < l.AIDeltaMax {
		problems = append(problems, "ai_delta_max_with_user_fact must be >= ai_delta_max")
	}

	if len(rs.Bands) == 0 {
		problems = append(problems, "at least one recommendation band is required")
	}
	for i, b := range rs.Bands {
		if b.Min > b.Max {
			problems = append(problems, fmt.Sprintf("band %d: min (%d) > max (%d)", i, b.Min, b.Max))
		}
		r, ok := ParseRecommendation(string(b.Recommendation))
		if !ok || r == RecommendBlocked {
			problems = append(problems, fmt.Sprintf("band %d: invalid recommendation %q", i, b.Recommendation))
			continue
		}
		rs.Bands[i].Recommendation = r
	}

	for i, h := range rs.HardBlocks {
		if strings.TrimSpace(h.Code) == "" {
			problems = append(problems, fmt.Sprintf("hard block %d: missing code", i))
		}
		if h.When.empty() {
			problems = append(problems, fmt.Sprintf("hard block %d (%s): missing when", i, h.Code))
		}
	}

	if len(rs.Signals) == 0 {
		problems = append(problems, "at least one signal is required")
	}
	seen := make(map[string]bool)
	for i, s := range rs.Signals {
		if strings.TrimSpace(s.ID) == "" {
			problems = append(problems, fmt.Sprintf("signal %d: missing id", i))
		} else if seen[s.ID] {
			problems = append(problems, fmt.Sprintf("signal %s: duplicate id", s.ID))
		}
		seen[s.ID] = true
		if s.When.empty() {
			problems = append(problems, fmt.Sprintf("signal %d (%s): missing when", i, s.ID))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRuleSet, strings.Join(problems, "; "))
	}
	return nil
}
