package nodes

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
)

// RunTools answers every tool call of the latest assistant message, one
// result per call in call order.
func RunTools(ctx context.Context, in Input, tools contractx.ToolGateway, agentType contractx.AgentType) (Output, error) {
	last, ok := in.State.LastMessage()
	if !ok || !last.HasToolCalls() {
		return Output{}, fmt.Errorf("%w: %s tools reached without pending tool calls", contractx.ErrValidation, agentType)
	}

	results := tools.Execute(ctx, agentType, in.Scope, last.ToolCalls)
	if len(results) != len(last.ToolCalls) {
		return Output{}, fmt.Errorf("%w: got %d tool results for %d calls", contractx.ErrToolFault, len(results), len(last.ToolCalls))
	}
	return Output{Delta: statex.AppendMessages(results...)}, nil
}
