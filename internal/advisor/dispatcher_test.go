package advisor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/migclean/internal/guard"
	"github.com/gzhole/migclean/internal/proposal"
)

func dispatch(t *testing.T, b *fakeBackend, sessionID, name, args string) map[string]any {
	t.Helper()
	d := NewDispatcher(b, guard.DefaultPolicy())
	out := d.Dispatch(context.Background(), sessionID, name, args)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

func TestDispatch_Errors(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		tool      string
		args      string
		want      string
	}{
		{"not allowed", "s1", "run_uninstall", "", "Tool 'run_uninstall' is not allowed."},
		{"unknown session", "nope", guard.ToolGetSession, "", "Session not found."},
		{"no snapshot", "s2", guard.ToolGetInventoryLatest, "", "No snapshot found."},
		{"missing item id", "s1", guard.ToolGetInventoryItem, `{}`, "Missing itemId parameter."},
		{"unknown item", "s1", guard.ToolGetInventoryItem, `{"itemId":"drv:ghost"}`, "Item drv:ghost not found."},
		{"no plan", "s2", guard.ToolGetPlanCurrent, "", "No current plan."},
		{"hardblocks missing id", "s1", guard.ToolGetHardBlocks, "", "Missing itemId parameter."},
		{"missing title", "s1", guard.ToolCreateProposal, `{"changes":[]}`, "Missing title."},
		{"missing changes", "s1", guard.ToolCreateProposal, `{"title":"x"}`, "Missing changes."},
		{"missing proposal id", "s1", guard.ToolGetProposal, `{}`, "Missing proposalId parameter."},
		{"unknown proposal", "s1", guard.ToolGetProposal, `{"proposalId":"zzz"}`, "Proposal not found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dispatch(t, newFakeBackend(), tt.sessionID, tt.tool, tt.args)
			assert.Equal(t, tt.want, got["error"])
		})
	}
}

func TestDispatch_InvalidJSON(t *testing.T) {
	got := dispatch(t, newFakeBackend(), "s1", guard.ToolGetInventoryItem, `{not json`)
	assert.Contains(t, got["error"], "invalid arguments")
}

func TestDispatch_InventoryLatest(t *testing.T) {
	got := dispatch(t, newFakeBackend(), "s1", guard.ToolGetInventoryLatest, "")
	assert.Equal(t, "snap1", got["snapshotId"])
	assert.Equal(t, "s1", got["sessionId"])
	summary, ok := got["summary"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, summary["drivers"])
	assert.NotContains(t, got, "items")
}

func TestDispatch_InventoryItem(t *testing.T) {
	got := dispatch(t, newFakeBackend(), "s1", guard.ToolGetInventoryItem, `{"itemId":"drv:oem12.inf"}`)
	assert.Equal(t, "drv:oem12.inf", got["itemId"])
	assert.Equal(t, "Intel", got["vendor"])
}

func TestDispatch_HardBlocksDefaultsEmpty(t *testing.T) {
	got := dispatch(t, newFakeBackend(), "s1", guard.ToolGetHardBlocks, `{"itemId":"drv:oem12.inf"}`)
	assert.Equal(t, "drv:oem12.inf", got["itemId"])
	assert.Equal(t, []any{}, got["hardBlocks"])
}

func TestDispatch_CreateProposal(t *testing.T) {
	b := newFakeBackend()
	got := dispatch(t, b, "s1", guard.ToolCreateProposal,
		`{"title":"Raise audio","changes":[{"type":"score_delta","targetId":"drv:oem12.inf","delta":10,"reason":"old platform"}]}`)
	assert.Equal(t, "prop-1", got["proposalId"])
	assert.Equal(t, "PENDING", got["status"])
	assert.Equal(t, "Proposal created. Awaiting user approval.", got["message"])
	require.Len(t, b.proposals, 1)

	list := NewDispatcher(b, guard.DefaultPolicy()).Dispatch(context.Background(), "s1", guard.ToolListProposals, "")
	assert.Contains(t, list, "Raise audio")
}

func TestDispatch_CreateProposalRejectsHardBlockedTarget(t *testing.T) {
	b := newFakeBackend()
	got := dispatch(t, b, "s1", guard.ToolCreateProposal,
		`{"title":"Remove inbox","changes":[{"type":"score_delta","targetId":"drv:inbox","delta":30,"reason":"unused"}]}`)
	assert.Equal(t, "Proposal validation failed.", got["error"])
	violations, ok := got["violations"].([]any)
	require.True(t, ok)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "hard-blocked item drv:inbox")
	assert.Empty(t, b.proposals)
}

func TestDispatch_CreateProposalBackendValidationError(t *testing.T) {
	b := newFakeBackend()
	b.createErr = &guard.ValidationError{Violations: []string{"Too many changes"}}
	got := dispatch(t, b, "s1", guard.ToolCreateProposal,
		`{"title":"x","changes":[{"type":"note_add","targetId":"drv:oem12.inf","note":"n","reason":"r"}]}`)
	assert.Equal(t, "Proposal validation failed.", got["error"])
	assert.Equal(t, []any{"Too many changes"}, got["violations"])
}

func TestDispatch_ListProposalsEmptyArray(t *testing.T) {
	d := NewDispatcher(newFakeBackend(), guard.DefaultPolicy())
	assert.Equal(t, "[]", d.Dispatch(context.Background(), "s1", guard.ToolListProposals, ""))
}

func TestDispatch_GetProposalScopedToSession(t *testing.T) {
	b := newFakeBackend()
	_, err := b.CreateProposal(context.Background(), "s1", proposal.CreateRequest{Title: "mine"})
	require.NoError(t, err)

	own := dispatch(t, b, "s1", guard.ToolGetProposal, `{"proposalId":"prop-1"}`)
	assert.Equal(t, "mine", own["title"])

	other := dispatch(t, b, "s2", guard.ToolGetProposal, `{"proposalId":"prop-1"}`)
	assert.Equal(t, "Proposal not found.", other["error"])
}
