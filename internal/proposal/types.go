package proposal

import (
	"time"

	"github.com/gzhole/migclean/internal/rules"
)

// ChangeType names a kind of plan adjustment.
type ChangeType string

const (
	ChangeScoreDelta     ChangeType = "score_delta"
	ChangeRecommendation ChangeType = "recommendation"
	ChangePinProtect     ChangeType = "pin_protect"
	ChangeNoteAdd        ChangeType = "note_add"
	ChangeFactRequest    ChangeType = "fact_request"
	ChangeActionAdd      ChangeType = "action_add"
	ChangeActionRemove   ChangeType = "action_remove"
)

// TouchesScore reports whether the change type alters an item's score or
// label, and is therefore forbidden on hard-blocked targets.
func (t ChangeType) TouchesScore() bool {
	return t == ChangeScoreDelta || t == ChangeRecommendation
}

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Risk is the estimated impact of applying a proposal.
type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

type FactRequest struct {
	FactKey string `json:"factKey,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}

// Change is one suggested adjustment. Changes are immutable once the
// proposal is created.
type Change struct {
	Type        ChangeType   `json:"type" validate:"required"`
	TargetID    string       `json:"targetId" validate:"required"`
	Delta       *int         `json:"delta,omitempty"`
	Value       string       `json:"value,omitempty"`
	Note        string       `json:"note,omitempty"`
	Reason      string       `json:"reason"`
	FactRequest *FactRequest `json:"factRequest,omitempty"`
}

// DeltaValue returns Delta or 0.
func (c Change) DeltaValue() int {
	if c.Delta == nil {
		return 0
	}
	return *c.Delta
}

// Evidence backs a proposal with an observation (registry value, file path, ...).
type Evidence struct {
	Kind  string `json:"kind" validate:"required"`
	Path  string `json:"path,omitempty"`
	Value any    `json:"value,omitempty"`
	Note  string `json:"note,omitempty"`
}

// Proposal is a bounded set of suggested plan changes awaiting approval.
type Proposal struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	Title     string     `json:"title"`
	Status    Status     `json:"status"`
	Risk      Risk       `json:"risk"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Changes   []Change   `json:"changes"`
	Evidence  []Evidence `json:"evidence,omitempty"`
}

// ComputeRisk estimates risk: HIGH when any score delta exceeds 15 in
// magnitude or a change recommends REMOVE_STAGE_1 (in any letter case); MEDIUM for more than two
// changes or any action_add; otherwise LOW.
func ComputeRisk(changes []Change) Risk {
	for _, c := range changes {
		if c.Type == ChangeScoreDelta && abs(c.DeltaValue()) > 15 {
			return RiskHigh
		}
		if c.Type == ChangeRecommendation {
			if r, ok := rules.ParseRecommendation(c.Value); ok && r == rules.RecommendRemoveStage1 {
				return RiskHigh
			}
		}
	}
	if len(changes) > 2 {
		return RiskMedium
	}
	for _, c := range changes {
		if c.Type == ChangeActionAdd {
			return RiskMedium
		}
	}
	return RiskLow
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
