package contract

import (
	"time"

	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
)

type AgentType string

const (
	AgentTypeSales   AgentType = "sales"
	AgentTypeSupport AgentType = "support"
)

// Scope is threaded into every tool call. Tools never read identity from
// process-wide state.
type Scope struct {
	ConversationID string
	UserID         *int
}

func (s Scope) HasUser() bool {
	return s.UserID != nil
}

type AgentRequest struct {
	Messages []statex.Message `json:"messages"`
	Now      time.Time        `json:"now"`
}

// AssistantTurn is what a generation collaborator returns: either plain
// content, tool calls, or both.
type AssistantTurn struct {
	Content   string            `json:"content"`
	ToolCalls []statex.ToolCall `json:"tool_calls,omitempty"`
}

func (t AssistantTurn) Message() statex.Message {
	return statex.AssistantMessage(t.Content, t.ToolCalls...)
}
