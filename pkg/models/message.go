package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole is the author type of a persisted message.
type MessageRole string

const (
	MessageRoleUser       MessageRole = "user"
	MessageRoleAssistant  MessageRole = "assistant"
	MessageRoleToolCall   MessageRole = "tool_call"
	MessageRoleToolResult MessageRole = "tool_result"
	MessageRoleSystem     MessageRole = "system"
)

// TokenUsage is the optional per-message token accounting reported by the
// LLM subprocess on message_start/message_delta. Not named by the base
// spec, but the stream reports it for free and dropping it would discard
// information callers may want for cost accounting.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Message is one turn of conversation, persisted in created_at order.
// Sequence is kept for forward compatibility only — see the Open Question
// in the design notes — and must never be relied on for ordering.
type Message struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Role           MessageRole
	Content        string
	ToolUseID      *string
	Sequence       int
	Metadata       map[string]any
	AgentID        *string
	AgentName      *string
	FromInstanceID *uuid.UUID
	ResponseID     *string
	Usage          *TokenUsage
	CreatedAt      time.Time
}

// MessageSender attributes an enqueued message to the session and agent
// that sent it, letting the recipient's history render "From: <name>"
// without the sender needing write access to the recipient's store.
type MessageSender struct {
	Name      *string
	SessionID *uuid.UUID
	AgentID   *string
}

// ActivityLog is an append-only record of a domain event, never mutated
// after insertion.
type ActivityLog struct {
	ID        uuid.UUID
	SessionID *uuid.UUID
	EventType string
	EventData map[string]any
	CreatedAt time.Time
}
