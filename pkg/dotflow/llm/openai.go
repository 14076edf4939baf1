package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI implements Client against the OpenAI chat completion API
// (or any compatible endpoint via WithBaseURL).
type OpenAI struct {
	client *openai.Client
	model  string
}

// OpenAIOption configures OpenAI.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	apiKey  string
	baseURL string
	model   string
}

// WithAPIKey sets the API key. When unset, OPENAI_API_KEY is used.
func WithAPIKey(key string) OpenAIOption {
	return func(c *openAIConfig) { c.apiKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithOpenAIModel sets the default model for requests that name none.
func WithOpenAIModel(model string) OpenAIOption {
	return func(c *openAIConfig) { c.model = model }
}

// NewOpenAI creates an OpenAI-backed client. Construction fails when
// no API key is configured or present in the environment.
func NewOpenAI(opts ...OpenAIOption) (*OpenAI, error) {
	cfg := &openAIConfig{model: openai.GPT4oMini}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.apiKey == "" {
		return nil, NewError("init", fmt.Errorf("no API key: set OPENAI_API_KEY or use WithAPIKey"), false)
	}

	clientCfg := openai.DefaultConfig(cfg.apiKey)
	if cfg.baseURL != "" {
		clientCfg.BaseURL = cfg.baseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.model,
	}, nil
}

// Complete implements Client.
func (o *OpenAI) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := o.client.CreateChatCompletion(ctx, o.buildRequest(req))
	if err != nil {
		return nil, NewError("complete", err, isRetryableAPIError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, NewError("complete", fmt.Errorf("response contained no choices"), false)
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Duration:     time.Since(start),
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

// Stream implements Client.
func (o *OpenAI) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, o.buildRequest(req))
	if err != nil {
		return nil, NewError("stream", err, isRetryableAPIError(err))
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				ch <- StreamChunk{Done: true}
				return
			}
			if err != nil {
				ch <- StreamChunk{Error: NewError("stream", err, isRetryableAPIError(err))}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				if !send(ctx, ch, StreamChunk{Content: delta}) {
					return
				}
			}
		}
	}()

	return ch, nil
}

// buildRequest maps a CompletionRequest onto the OpenAI wire shape.
// The system prompt becomes the leading system message.
func (o *OpenAI) buildRequest(req CompletionRequest) openai.ChatCompletionRequest {
	model := o.model
	if req.Model != "" {
		model = req.Model
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(msg.Role),
			Content: msg.Content,
			Name:    msg.Name,
		})
	}

	out := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		out.MaxCompletionTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = float32(req.Temperature)
	}
	if req.ReasoningEffort != "" {
		out.ReasoningEffort = req.ReasoningEffort
	}
	return out
}

func openAIRole(role Role) string {
	switch role {
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

// isRetryableAPIError reports whether err is a transient API failure:
// a rate limit, an overloaded backend, or a 5xx.
func isRetryableAPIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 529:
			return true
		}
	}
	return false
}
