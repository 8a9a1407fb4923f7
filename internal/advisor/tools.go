package advisor

import "github.com/gzhole/migclean/internal/guard"

// ToolSpec describes an operation offered to the model. Parameters is a
// JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var itemIDParam = map[string]any{
	"itemId": map[string]any{"type": "string", "description": "Inventory item id such as drv:oem12.inf or svc:IntelAudioService."},
}

// Tools returns the specs of the eight read/propose operations.
func Tools() []ToolSpec {
	changeSchema := objectSchema(map[string]any{
		"type": map[string]any{"type": "string", "enum": []string{
			"score_delta", "recommendation", "pin_protect", "note_add", "fact_request",
		}},
		"targetId": map[string]any{"type": "string"},
		"delta":    map[string]any{"type": "integer"},
		"value":    map[string]any{"type": "string"},
		"note":     map[string]any{"type": "string"},
		"reason":   map[string]any{"type": "string"},
		"factRequest": objectSchema(map[string]any{
			"factKey": map[string]any{"type": "string"},
			"prompt":  map[string]any{"type": "string"},
		}),
	}, "type", "targetId", "reason")

	return []ToolSpec{
		{Name: guard.ToolGetSession, Description: "Get the current cleanup session.", Parameters: objectSchema(map[string]any{})},
		{Name: guard.ToolGetInventoryLatest, Description: "Get the summary of the latest inventory snapshot.", Parameters: objectSchema(map[string]any{})},
		{Name: guard.ToolGetInventoryItem, Description: "Get one inventory item from the latest snapshot.", Parameters: objectSchema(itemIDParam, "itemId")},
		{Name: guard.ToolGetPlanCurrent, Description: "Get the current decision plan.", Parameters: objectSchema(map[string]any{})},
		{Name: guard.ToolGetHardBlocks, Description: "Get the hard blocks that apply to an item.", Parameters: objectSchema(itemIDParam, "itemId")},
		{Name: guard.ToolCreateProposal, Description: "Propose up to five plan changes for user approval.", Parameters: objectSchema(map[string]any{
			"title":   map[string]any{"type": "string"},
			"changes": map[string]any{"type": "array", "items": changeSchema, "minItems": 1, "maxItems": 5},
			"evidence": map[string]any{"type": "array", "items": objectSchema(map[string]any{
				"kind":  map[string]any{"type": "string"},
				"path":  map[string]any{"type": "string"},
				"value": map[string]any{},
				"note":  map[string]any{"type": "string"},
			}, "kind")},
		}, "title", "changes")},
		{Name: guard.ToolListProposals, Description: "List proposals of the current session.", Parameters: objectSchema(map[string]any{})},
		{Name: guard.ToolGetProposal, Description: "Get a proposal by id.", Parameters: objectSchema(map[string]any{
			"proposalId": map[string]any{"type": "string"},
		}, "proposalId")},
	}
}

// DefaultSystemPrompt frames the advisor's role.
const DefaultSystemPrompt = `You are a driver and software cleanup advisor for a machine that was migrated to new hardware.
You can inspect the session, the latest inventory, the current decision plan and hard blocks, and you can create proposals.
Proposals are suggestions: the user approves or rejects them, and only the user starts execution.
Never claim to approve, execute or uninstall anything yourself. Hard-blocked items cannot be changed.
Keep each proposal to at most five changes and give a reason for every change.`
