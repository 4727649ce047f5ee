// Package models defines the chat-model boundary consumed by the bridge and
// the providers that implement it. A model turn is atomic: one request
// carrying the full ordered history plus tool declarations, one assistant
// message back, optionally asking for tool invocations.
package models

import "context"

// Role identifies the author of a conversation message.
type Role string

// Conversation roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-issued request to invoke a named tool with a JSON
// argument object.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Message is one entry in the conversation history. ToolCalls only appears on
// assistant messages; ToolCallID only on tool messages, linking a result back
// to the call that produced it.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolSpec declares a callable tool to the model: name, description, and a
// JSON-schema argument description.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ChatRequest is one chat-completion request.
type ChatRequest struct {
	Model            string
	Messages         []Message
	Tools            []ToolSpec
	DisableReasoning bool
}

// ChatResponse carries the single assistant message a provider produced.
type ChatResponse struct {
	Message Message
}

// ChatModel is implemented by every provider.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
