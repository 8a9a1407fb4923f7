package advisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/migclean/internal/guard"
)

func newAdvisor(model ModelClient, backend Backend) *Advisor {
	policy := guard.DefaultPolicy()
	return New(model, NewDispatcher(backend, policy), policy, "", nil)
}

func TestChat_PlainAnswer(t *testing.T) {
	model := &scriptedModel{responses: []*Response{{Content: "The Intel audio driver looks safe to review."}}}
	a := newAdvisor(model, newFakeBackend())

	res, err := a.Chat(context.Background(), "s1", "what about audio?")
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, "The Intel audio driver looks safe to review.", res.Content)
	assert.Empty(t, res.ToolCalls)
	assert.Empty(t, res.Violations)

	hist := a.History()
	require.Len(t, hist, 3)
	assert.Equal(t, RoleSystem, hist[0].Role)
	assert.Equal(t, DefaultSystemPrompt, hist[0].Content)
	assert.Equal(t, RoleUser, hist[1].Role)
	assert.Equal(t, RoleAssistant, hist[2].Role)
}

func TestChat_ToolRoundTrip(t *testing.T) {
	model := &scriptedModel{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "c1", Name: guard.ToolGetHardBlocks, Arguments: `{"itemId":"drv:inbox"}`}}},
		{Content: "That driver is protected."},
	}}
	a := newAdvisor(model, newFakeBackend())

	res, err := a.Chat(context.Background(), "s1", "can I remove drv:inbox?")
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, "That driver is protected.", res.Content)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "c1", res.ToolCalls[0].ID)
	assert.Contains(t, res.ToolCalls[0].Result, "MICROSOFT_INBOX")

	// Second request carries the assistant tool call and the tool result.
	require.Len(t, model.requests, 2)
	second := model.requests[1]
	last := second[len(second)-1]
	assert.Equal(t, RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	prev := second[len(second)-2]
	assert.Equal(t, RoleAssistant, prev.Role)
	require.Len(t, prev.ToolCalls, 1)
}

func TestChat_ForbiddenPhraseBlocks(t *testing.T) {
	model := &scriptedModel{responses: []*Response{{Content: "Done. I executed the uninstall for you."}}}
	a := newAdvisor(model, newFakeBackend())

	res, err := a.Chat(context.Background(), "s1", "clean it up")
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Equal(t, "Done. I executed the uninstall for you.", res.Content)
	require.NotEmpty(t, res.Violations)
	assert.Contains(t, res.Violations[0], "i executed")

	hist := a.History()
	assert.Equal(t, RoleAssistant, hist[len(hist)-1].Role)
}

func TestChat_DisallowedTool(t *testing.T) {
	model := &scriptedModel{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "execute_queue", Arguments: `{}`}}},
		{Content: "I cannot do that."},
	}}
	backend := newFakeBackend()
	a := newAdvisor(model, backend)

	res, err := a.Chat(context.Background(), "s1", "run it")
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, []string{"AI attempted to call disallowed tool: execute_queue"}, res.Violations)
	require.Len(t, res.ToolCalls, 1)
	assert.JSONEq(t, `{"error":"Tool 'execute_queue' is not allowed."}`, res.ToolCalls[0].Result)
}

func TestChat_RoundLimit(t *testing.T) {
	loop := &Response{ToolCalls: []ToolCall{{ID: "c", Name: guard.ToolGetSession, Arguments: `{}`}}}
	model := &scriptedModel{responses: []*Response{loop}}
	a := newAdvisor(model, newFakeBackend())

	res, err := a.Chat(context.Background(), "s1", "keep going")
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Equal(t, roundsExceededMessage, res.Content)
	assert.Equal(t, []string{"Max tool call rounds exceeded."}, res.Violations)
	assert.Len(t, model.requests, guard.DefaultPolicy().MaxRounds)
	assert.Len(t, res.ToolCalls, guard.DefaultPolicy().MaxRounds)
}

func TestChat_RoundLimitKeepsEarlierViolations(t *testing.T) {
	model := &scriptedModel{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "execute_queue", Arguments: `{}`}}},
		{ToolCalls: []ToolCall{{ID: "c", Name: guard.ToolGetSession, Arguments: `{}`}}},
	}}
	a := newAdvisor(model, newFakeBackend())

	res, err := a.Chat(context.Background(), "s1", "keep going")
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Equal(t, []string{
		"AI attempted to call disallowed tool: execute_queue",
		"Max tool call rounds exceeded.",
	}, res.Violations)
}

func TestChat_ModelError(t *testing.T) {
	model := &scriptedModel{err: errors.New("boom")}
	a := newAdvisor(model, newFakeBackend())

	_, err := a.Chat(context.Background(), "s1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestReset(t *testing.T) {
	model := &scriptedModel{responses: []*Response{{Content: "ok"}}}
	a := newAdvisor(model, newFakeBackend())

	_, err := a.Chat(context.Background(), "s1", "hi")
	require.NoError(t, err)
	a.Reset()
	hist := a.History()
	require.Len(t, hist, 1)
	assert.Equal(t, RoleSystem, hist[0].Role)
}

func TestTools_MatchAllowList(t *testing.T) {
	policy := guard.DefaultPolicy()
	specs := Tools()
	require.Len(t, specs, len(policy.AllowedTools()))
	for _, s := range specs {
		assert.True(t, policy.IsAllowedTool(s.Name), s.Name)
		assert.Equal(t, "object", s.Parameters["type"], s.Name)
	}
}
