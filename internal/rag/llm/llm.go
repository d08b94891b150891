// Package llm defines the provider-neutral tool-calling chat surface the
// agent loop runs against.
package llm

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to run a named tool. Input carries the
// arguments as a JSON object string.
type ToolCall struct {
	ID    string
	Name  string
	Input string
}

// ToolResult is the outcome of one tool call, fed back to the model.
type ToolResult struct {
	CallID string
	Name   string
	Output string
}

// Message is one conversation entry. Exactly one of the optional slices is
// set: assistant messages may carry ToolCalls, tool messages carry
// ToolResults, user messages carry neither.
type Message struct {
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolSpec describes a callable tool to the model. Tools here take at most
// one string argument; an empty ParamName declares a no-argument tool.
type ToolSpec struct {
	Name        string
	Description string
	ParamName   string
	ParamDesc   string
}

// Reply is one model turn: either final text or a set of tool calls to
// satisfy before the model can continue.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// Provider is a chat model with function calling.
type Provider interface {
	Chat(ctx context.Context, system string, msgs []Message, tools []ToolSpec) (Reply, error)
}
