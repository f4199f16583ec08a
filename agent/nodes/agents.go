package nodes

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
)

// RunSalesAgent asks the sales agent for its next turn. The first sales turn
// of a conversation seeds the dialog stack with sales_rep.
func RunSalesAgent(ctx context.Context, in Input, agent contractx.Agent) (Output, error) {
	msg, err := generate(ctx, in, agent, contractx.AgentTypeSales)
	if err != nil {
		return Output{}, err
	}

	delta := statex.AppendMessages(msg)
	if _, ok := in.State.TopDialog(); !ok {
		delta.Dialog = string(statex.ModeSales)
	}
	return Output{Delta: delta}, nil
}

func RunSupportAgent(ctx context.Context, in Input, agent contractx.Agent) (Output, error) {
	msg, err := generate(ctx, in, agent, contractx.AgentTypeSupport)
	if err != nil {
		return Output{}, err
	}
	return Output{Delta: statex.AppendMessages(msg)}, nil
}

func generate(ctx context.Context, in Input, agent contractx.Agent, agentType contractx.AgentType) (statex.Message, error) {
	if in.State == nil {
		return statex.Message{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if agent == nil {
		return statex.Message{}, fmt.Errorf("%w: %s agent is not configured", contractx.ErrValidation, agentType)
	}

	turn, err := agent.Generate(ctx, contractx.AgentRequest{
		Messages: in.State.Messages,
		Now:      in.Now,
	})
	if err != nil {
		return statex.Message{}, err
	}
	return turn.Message(), nil
}
