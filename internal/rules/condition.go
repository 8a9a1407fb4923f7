package rules

import (
	"fmt"
	"strings"

	"github.com/gzhole/migclean/internal/inventory"
)

// Supported condition operators.
const (
	OpEq              = "eq"
	OpContainsI       = "contains_i"
	OpMatchesKeywords = "matches_keywords"
	OpMissingOrEmpty  = "missing_or_empty"
)

// Evaluator evaluates condition groups against items and fact sets.
// It never fails: unknown operators and type mismatches evaluate to false.
type Evaluator struct {
	keywords map[string][]string
}

// NewEvaluator returns an evaluator using the rule set's keyword sets.
func NewEvaluator(rs *RuleSet) *Evaluator {
	return &Evaluator{keywords: rs.KeywordSets}
}

// Match evaluates g against item.
func (e *Evaluator) Match(g ConditionGroup, item inventory.Item) bool {
	switch {
	case g.All != nil:
		for _, c := range g.All {
			if !e.MatchCondition(c, item) {
				return false
			}
		}
		return true
	case g.Any != nil:
		for _, c := range g.Any {
			if e.MatchCondition(c, item) {
				return true
			}
		}
		return false
	}
	return false
}

// MatchCondition evaluates a single condition against item.
func (e *Evaluator) MatchCondition(c Condition, item inventory.Item) bool {
	field := ResolveField(c.Path, item)
	switch strings.ToLower(c.Op) {
	case OpEq:
		return equalValues(field, c.Value)
	case OpContainsI:
		s, ok := field.(string)
		sub, ok2 := c.Value.(string)
		return ok && ok2 && strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	case OpMatchesKeywords:
		return e.matchesKeywords(field, c.Keywords)
	case OpMissingOrEmpty:
		if field == nil {
			return true
		}
		s, ok := field.(string)
		return ok && strings.TrimSpace(s) == ""
	}
	return false
}

func (e *Evaluator) matchesKeywords(field any, set string) bool {
	s, ok := field.(string)
	if !ok || strings.TrimSpace(set) == "" {
		return false
	}
	words, ok := e.keywords[set]
	if !ok {
		return false
	}
	lower := strings.ToLower(s)
	for _, w := range words {
		if strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// MatchFacts evaluates a fact requirement group: every (All) or some (Any)
// {key, equals_i} entry must match a fact by case-insensitive key and value.
func MatchFacts(g ConditionGroup, facts []inventory.UserFact) bool {
	switch {
	case g.Any != nil:
		for _, c := range g.Any {
			if factPresent(c, facts) {
				return true
			}
		}
		return false
	case g.All != nil:
		for _, c := range g.All {
			if !factPresent(c, facts) {
				return false
			}
		}
		return true
	}
	return false
}

func factPresent(c Condition, facts []inventory.UserFact) bool {
	if c.Key == "" || c.EqualsI == "" {
		return false
	}
	for _, f := range facts {
		if strings.EqualFold(f.Key, c.Key) && strings.EqualFold(f.Value, c.EqualsI) {
			return true
		}
	}
	return false
}

// ResolveField maps a dot path ("item.signature.isMicrosoft") onto the
// allow-listed item fields. Unmapped paths and unset optional fields
// resolve to nil.
func ResolveField(path string, item inventory.Item) any {
	field := strings.ToLower(strings.TrimSpace(path))
	if field == "" {
		return nil
	}
	field = strings.TrimPrefix(field, "item.")

	switch field {
	case "present":
		return derefBool(item.Present)
	case "running":
		return derefBool(item.Running)
	case "vendor":
		return item.Vendor
	case "displayname":
		return item.DisplayName
	case "provider":
		return item.Provider
	case "version":
		return item.Version
	case "itemtype":
		return string(item.Type)
	case "starttype":
		if item.StartType == nil {
			return nil
		}
		return *item.StartType
	case "driverinf":
		return item.DriverInf
	case "tags.bootcriticalinuse":
		// No tag source exists yet.
		return false
	}

	if strings.HasPrefix(field, "signature.") {
		if item.Signature == nil {
			return nil
		}
		switch strings.TrimPrefix(field, "signature.") {
		case "ismicrosoft":
			return item.Signature.IsMicrosoft
		case "signed":
			return item.Signature.Signed
		case "signer":
			return item.Signature.Signer
		case "iswhql":
			return item.Signature.IsWHQL
		}
	}
	return nil
}

func derefBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func equalValues(field, expected any) bool {
	if field == nil || expected == nil {
		return field == nil && expected == nil
	}
	if eb, ok := expected.(bool); ok {
		fb, ok := field.(bool)
		return ok && fb == eb
	}
	if en, ok := asNumber(expected); ok {
		fn, ok := asNumber(field)
		return ok && fn == en
	}
	return strings.EqualFold(fmt.Sprint(field), fmt.Sprint(expected))
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
