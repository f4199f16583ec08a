package contract

import (
	"context"

	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
)

type Agent interface {
	Generate(ctx context.Context, req AgentRequest) (AssistantTurn, error)
}

type Registry interface {
	Sales() Agent
	Support() Agent
}

type ToolGateway interface {
	Execute(ctx context.Context, agentType AgentType, scope Scope, calls []statex.ToolCall) []statex.Message
}

// ApprovalNotifier is told when a run suspends for supervisor input.
type ApprovalNotifier interface {
	NotifyApproval(ctx context.Context, conversationID string, pending statex.Interrupt) error
}
