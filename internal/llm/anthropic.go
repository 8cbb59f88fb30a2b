package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/remedyhq/remedy/internal/gateway"
)

const (
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultMaxTokens      = 4096
)

// AnthropicClient implements Generator over the Anthropic Messages API.
type AnthropicClient struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewAnthropicClient creates the Anthropic backend. An empty API key
// defers to the SDK's environment lookup.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// Provider returns "anthropic".
func (c *AnthropicClient) Provider() string { return "anthropic" }

// splitMessages separates system turns (Anthropic takes them as a
// top-level param) from the conversation turns.
func splitMessages(msgs []Message) (system string, turns []Message) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}

func maxTokens(opts *Options) int {
	if opts != nil && opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return defaultMaxTokens
}

// Generate issues a plain completion.
func (c *AnthropicClient) Generate(ctx context.Context, msgs []Message, opts *Options) (*Result, error) {
	system, turns := splitMessages(msgs)

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(maxTokens(opts)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if opts != nil && opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return &Result{
		Content: text,
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// GenerateWithTools routes the completion through the session's tool
// gateway using the MCP connector, so the model may call gateway tools
// mid-generation.
func (c *AnthropicClient) GenerateWithTools(ctx context.Context, msgs []Message, creds gateway.Credentials, opts *Options) (*Result, error) {
	system, turns := splitMessages(msgs)

	mcpServer := anthropic.BetaRequestMCPServerURLDefinitionParam{
		Name: "tool-gateway",
		URL:  creds.URL,
	}
	if creds.Token != "" {
		mcpServer.AuthorizationToken = anthropic.String(creds.Token)
	}

	params := anthropic.BetaMessageNewParams{
		Model:      c.model,
		MaxTokens:  int64(maxTokens(opts)),
		MCPServers: []anthropic.BetaRequestMCPServerURLDefinitionParam{mcpServer},
		Betas:      []anthropic.AnthropicBeta{anthropic.AnthropicBetaMCPClient2025_04_04},
	}
	if system != "" {
		params.System = []anthropic.BetaTextBlockParam{{Text: system}}
	}
	if opts != nil && opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	for _, m := range turns {
		block := anthropic.NewBetaTextBlock(m.Content)
		role := anthropic.BetaMessageParamRoleUser
		if m.Role == RoleAssistant {
			role = anthropic.BetaMessageParamRoleAssistant
		}
		params.Messages = append(params.Messages, anthropic.BetaMessageParam{
			Role:    role,
			Content: []anthropic.BetaContentBlockParamUnion{block},
		})
	}

	msg, err := c.api.Beta.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API call (mcp): %w", err)
	}

	// Tool-use and MCP blocks are interleaved with text; only the text
	// is surfaced to the caller.
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return &Result{
		Content: text,
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}
