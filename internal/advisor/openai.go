package advisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/gzhole/migclean/internal/retry"
)

// ModelError is a failed model call. Transient is set for rate limiting
// and server-side failures that survived the retries.
type ModelError struct {
	Transient bool
	Err       error
}

func (e *ModelError) Error() string { return "chat completion: " + e.Err.Error() }

func (e *ModelError) Unwrap() error { return e.Err }

// OpenAIConfig configures the OpenAI-compatible model client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Retries int
}

// OpenAIClient implements ModelClient over the chat completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	retry  retry.Policy
	log    *zap.Logger
}

func NewOpenAIClient(cfg OpenAIConfig, log *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	c := &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		model:  model,
		log:    log.Named("openai"),
	}
	c.retry = retry.Policy{
		MaxRetries: cfg.Retries,
		BaseDelay:  retry.Default().BaseDelay,
		Retryable:  isTransient,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.log.Warn("retrying model call", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		},
	}
	return c, nil
}

// Complete sends one chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, tools []ToolSpec) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
		Tools:    toOpenAITools(tools),
	}

	var resp openai.ChatCompletionResponse
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return nil, &ModelError{Transient: isTransient(err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion: no choices returned")
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// isTransient reports rate limiting and server-side failures.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
