// Package domain holds the core types of the orchestration layer: chat
// messages, caller-owned conversation history, call traces, evaluation
// cases and their positional scoring.
//
// Nothing in this package performs I/O. Types are plain values that can be
// copied between goroutines without synchronization as long as callers treat
// them as immutable once built.
package domain

import (
	"encoding/json"
)

// Role identifies the author of a Message within a conversation.
type Role string

// Conversation roles understood by every ChatModel provider.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured invocation request produced by a language model.
// Arguments hold the raw JSON object emitted by the model; they are
// validated against the tool's schema before the handler runs.
type ToolCall struct {
	// ID correlates the call with its tool-result message. Providers that do
	// not issue IDs get a synthesized one.
	ID string `json:"id"`

	// Name is the tool the model selected.
	Name string `json:"name"`

	// Arguments is the JSON object of argument values.
	Arguments json.RawMessage `json:"arguments"`
}

// DecodeArguments unmarshals the call arguments into a generic map.
// An empty payload decodes to an empty map.
func (c ToolCall) DecodeArguments() (map[string]any, error) {
	args := make(map[string]any)
	if len(c.Arguments) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(c.Arguments, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// Message is one role-tagged entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tool invocations.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name are set on tool-result messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// HasToolCalls reports whether the message asks for at least one tool call.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// UserMessage builds a user-authored message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds a plain-text assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage builds the message that feeds a tool result back to the
// model for the call identified by callID.
func ToolResultMessage(callID, toolName, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
		Name:       toolName,
	}
}
