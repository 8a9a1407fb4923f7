// Package advisor runs the bounded advisory loop: a language model may
// inspect the session through eight read/propose tools and suggest plan
// changes, but never approve or execute them.
package advisor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gzhole/migclean/internal/guard"
)

// Response is one model turn.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// ModelClient sends the conversation and the tool specs to a model.
type ModelClient interface {
	Complete(ctx context.Context, messages []Message, tools []ToolSpec) (*Response, error)
}

// ToolCallRecord is an executed (or refused) tool call.
type ToolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
}

// Result is the outcome of one Chat call. Blocked means the response must
// not be acted on: a forbidden phrase was found or the round limit hit.
type Result struct {
	Content    string           `json:"content"`
	ToolCalls  []ToolCallRecord `json:"toolCalls"`
	Violations []string         `json:"violations"`
	Blocked    bool             `json:"blocked"`
}

const roundsExceededMessage = "I've reached the maximum number of tool call rounds. Please try again with a simpler request."

// Advisor holds one conversation. It is not safe for concurrent use.
type Advisor struct {
	model      ModelClient
	dispatcher *Dispatcher
	policy     guard.Policy
	conv       *Conversation
	tools      []ToolSpec
	log        *zap.Logger
}

func New(model ModelClient, dispatcher *Dispatcher, policy guard.Policy, systemPrompt string, log *zap.Logger) *Advisor {
	if log == nil {
		log = zap.NewNop()
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Advisor{
		model:      model,
		dispatcher: dispatcher,
		policy:     policy,
		conv:       NewConversation(systemPrompt),
		tools:      Tools(),
		log:        log.Named("advisor"),
	}
}

// Chat sends a user message and runs tool rounds until the model answers
// in text, a forbidden phrase appears, or policy.MaxRounds is reached.
func (a *Advisor) Chat(ctx context.Context, sessionID, userMessage string) (*Result, error) {
	a.conv.AddUser(userMessage)
	res := &Result{ToolCalls: []ToolCallRecord{}, Violations: []string{}}

	for round := 0; round < a.policy.MaxRounds; round++ {
		resp, err := a.model.Complete(ctx, a.conv.Messages(), a.tools)
		if err != nil {
			return nil, fmt.Errorf("model round %d: %w", round+1, err)
		}

		if resp.Content != "" {
			if hidden := guard.HiddenCharacters(resp.Content); len(hidden) > 0 {
				a.log.Warn("hidden characters in model output", zap.Strings("codepoints", hidden))
			}
			if v := a.policy.DetectForbiddenPhrases(resp.Content); len(v) > 0 {
				a.log.Warn("forbidden phrase in model output", zap.Strings("violations", v))
				res.Violations = append(res.Violations, v...)
				a.conv.AddAssistant(resp.Content)
				res.Content = resp.Content
				res.Blocked = true
				return res, nil
			}
		}

		if len(resp.ToolCalls) == 0 {
			a.conv.AddAssistant(resp.Content)
			res.Content = resp.Content
			return res, nil
		}

		a.conv.AddAssistantToolCalls(resp.ToolCalls)
		for _, call := range resp.ToolCalls {
			var result string
			if !a.policy.IsAllowedTool(call.Name) {
				result = fail("Tool '%s' is not allowed.", call.Name)
				res.Violations = append(res.Violations, "AI attempted to call disallowed tool: "+call.Name)
				a.log.Warn("disallowed tool call", zap.String("tool", call.Name))
			} else {
				result = a.dispatcher.Dispatch(ctx, sessionID, call.Name, call.Arguments)
				a.log.Debug("tool call", zap.String("tool", call.Name), zap.Int("round", round+1))
			}
			res.ToolCalls = append(res.ToolCalls, ToolCallRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments, Result: result})
			a.conv.AddToolResult(call.ID, result)
		}
	}

	a.log.Warn("advisory round limit reached", zap.Int("rounds", a.policy.MaxRounds))
	res.Content = roundsExceededMessage
	res.Violations = append(res.Violations, "Max tool call rounds exceeded.")
	res.Blocked = true
	return res, nil
}

// History returns the conversation so far.
func (a *Advisor) History() []Message {
	return a.conv.Messages()
}

// Reset starts a fresh conversation with the same system prompt.
func (a *Advisor) Reset() {
	a.conv.Reset()
}
