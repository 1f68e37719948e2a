package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/cogents/memu-go/core"
)

// AnthropicConfig configures the Claude-backed completer.
type AnthropicConfig struct {
	// Model defaults to a current Sonnet.
	Model string

	// MaxTokens defaults to 4096.
	MaxTokens int64

	// Timeout applies per completion call. Default: 60s.
	Timeout time.Duration
}

// AnthropicCompleter implements Completer against the Claude Messages
// API.
type AnthropicCompleter struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	logger    *zap.Logger
}

// NewAnthropicCompleter wraps an Anthropic client.
func NewAnthropicCompleter(client *anthropic.Client, cfg AnthropicConfig, logger *zap.Logger) *AnthropicCompleter {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicCompleter{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		logger:    logger.With(zap.String("component", "llm_anthropic")),
	}
}

// Complete issues one Messages call. The first tool_use block of the
// response wins; the model is prompted to emit at most one.
func (c *AnthropicCompleter) Complete(ctx context.Context, system string, messages []Message, tools []Tool) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  toAnthropicMessages(messages),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &core.UpstreamTimeoutError{Op: "llm complete", Err: err}
		}
		return nil, fmt.Errorf("claude api: %w", err)
	}

	out := &Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			if out.ToolCall != nil {
				c.logger.Warn("model emitted more than one tool call, keeping the first",
					zap.String("dropped", block.Name))
				continue
			}
			out.ToolCall = &ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			}
		}
	}
	return out, nil
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.ToolResult != nil:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolResult.CallID, m.ToolResult.Content, m.ToolResult.IsError)))
		case m.ToolCall != nil:
			out = append(out, anthropic.NewAssistantMessage(
				anthropic.NewToolUseBlock(m.ToolCall.ID, m.ToolCall.Arguments, m.ToolCall.Name)))
		case m.Role == core.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			// System turns inside the window ride along as user text;
			// the real system prompt travels separately.
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func toAnthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.Properties,
					Required:   t.Required,
				},
			},
		})
	}
	return out
}
