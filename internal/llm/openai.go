package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/remedyhq/remedy/internal/gateway"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient implements Generator via langchaingo's OpenAI adapter.
type OpenAIClient struct {
	model llms.Model
}

// NewOpenAIClient creates the OpenAI backend. An empty API key defers to
// the OPENAI_API_KEY environment variable.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if model == "" {
		model = defaultOpenAIModel
	}
	opts := []openai.Option{openai.WithModel(model)}
	if apiKey != "" {
		opts = append(opts, openai.WithToken(apiKey))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	return &OpenAIClient{model: m}, nil
}

// Provider returns "openai".
func (c *OpenAIClient) Provider() string { return "openai" }

// Generate issues a plain completion.
func (c *OpenAIClient) Generate(ctx context.Context, msgs []Message, opts *Options) (*Result, error) {
	content := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Content))
	}

	callOpts := []llms.CallOption{}
	if opts != nil && opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts != nil && opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}

	resp, err := c.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("openai API call: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	choice := resp.Choices[0]
	return &Result{
		Content: choice.Content,
		Usage: Usage{
			InputTokens:  generationInfoInt(choice.GenerationInfo, "PromptTokens"),
			OutputTokens: generationInfoInt(choice.GenerationInfo, "CompletionTokens"),
		},
	}, nil
}

// GenerateWithTools is a documented capability gap on this backend: the
// OpenAI adapter has no gateway connector, so the call falls back to a
// plain completion.
func (c *OpenAIClient) GenerateWithTools(ctx context.Context, msgs []Message, _ gateway.Credentials, opts *Options) (*Result, error) {
	return c.Generate(ctx, msgs, opts)
}

func generationInfoInt(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	if v, ok := info[key].(int); ok {
		return v
	}
	return 0
}
