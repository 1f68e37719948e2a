// Package llm abstracts the language-model capability the memory agent
// consumes: a completion call that, given messages and tool schemas,
// answers with either exactly one tool call or a final text.
//
// The orchestrator only ever talks to the Completer interface; the
// Anthropic adapter in this package is the production implementation
// and tests substitute a scripted one.
package llm

import (
	"context"
	"encoding/json"
)

// Tool is one callable tool schema, passed to the model verbatim.
type Tool struct {
	Name        string
	Description string
	// Properties is the JSON-schema properties object of the input.
	Properties map[string]interface{}
	// Required lists mandatory property names.
	Required []string
}

// ToolCall is the model's request to invoke one named tool.
type ToolCall struct {
	// ID correlates the eventual tool result back to this call.
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult reports the outcome of a tool call back to the model.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// Message is one conversational message in a completion request.
// Exactly one of Content, ToolCall, ToolResult is meaningful:
// role user/system carry Content, role assistant carries Content or
// ToolCall, and a ToolResult is delivered with role user.
type Message struct {
	Role       string
	Content    string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// Response is a completion outcome: a tool call to execute, or final
// text when ToolCall is nil.
type Response struct {
	Text     string
	ToolCall *ToolCall
}

// Completer is the language-model capability.
type Completer interface {
	Complete(ctx context.Context, system string, messages []Message, tools []Tool) (*Response, error)
}
