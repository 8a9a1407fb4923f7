package execution

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gzhole/migclean/internal/plan"
	"github.com/gzhole/migclean/internal/rules"
)

// BuildOptions control which plan items become actions.
type BuildOptions struct {
	Mode Mode
	// Confirmed holds REVIEW item ids the user explicitly chose to remove.
	Confirmed map[string]bool
	// Commands maps app: item ids to their stored uninstall command line.
	Commands map[string]string
	Now      func() time.Time
}

// ActionTypeFor maps an item id prefix to its action type.
func ActionTypeFor(itemID string) (ActionType, bool) {
	id := strings.ToLower(itemID)
	switch {
	case strings.HasPrefix(id, "drv:"), strings.HasPrefix(id, "pkg:"):
		return ActionUninstallDriverPackage, true
	case strings.HasPrefix(id, "svc:"):
		return ActionDisableService, true
	case strings.HasPrefix(id, "app:"):
		return ActionUninstallProgram, true
	}
	return "", false
}

// BuildQueue creates a PENDING queue for p. The restore point is always
// order 0. REMOVE_STAGE_1 and REMOVE_STAGE_2 items are included; REVIEW
// items only when confirmed; BLOCKED and KEEP items never.
func BuildQueue(p *plan.Plan, opts BuildOptions) *Queue {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeLive
	}

	q := &Queue{
		ID:        uuid.NewString(),
		SessionID: p.SessionID,
		CreatedAt: now().UTC(),
		Mode:      mode,
		Status:    StatusPending,
	}
	q.Actions = append(q.Actions, Action{
		ID:          uuid.NewString(),
		QueueID:     q.ID,
		Order:       0,
		Type:        ActionCreateRestorePoint,
		TargetID:    "session:" + p.SessionID,
		DisplayName: "Create system restore point",
		Status:      StatusPending,
	})

	for _, item := range p.Items {
		if !eligible(item, opts.Confirmed) {
			continue
		}
		typ, ok := ActionTypeFor(item.ItemID)
		if !ok {
			continue
		}
		a := Action{
			ID:          uuid.NewString(),
			QueueID:     q.ID,
			Order:       len(q.Actions),
			Type:        typ,
			TargetID:    item.ItemID,
			DisplayName: fmt.Sprintf("%s: %s", typ, item.ItemID),
			Status:      StatusPending,
		}
		if typ == ActionUninstallProgram {
			a.Command = opts.Commands[item.ItemID]
		}
		q.Actions = append(q.Actions, a)
	}
	return q
}

func eligible(item plan.Item, confirmed map[string]bool) bool {
	switch item.Recommendation {
	case rules.RecommendRemoveStage1, rules.RecommendRemoveStage2:
		return true
	case rules.RecommendReview:
		return confirmed[item.ItemID]
	}
	return false
}
