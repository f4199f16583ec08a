package specialist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	logx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/logger"
)

// agentImpl is a tool-bound chat model behind the agent's system prompt.
type agentImpl struct {
	agentType    contractx.AgentType
	runner       compose.Runnable[contractx.AgentRequest, *schema.Message]
	allowedTools map[string]struct{}
}

var _ contractx.Agent = (*agentImpl)(nil)

func newAgent(
	ctx context.Context,
	agentType contractx.AgentType,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	tools []*schema.ToolInfo,
) (*agentImpl, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: agent=%s", contractx.ErrPromptMissing, agentType)
	}

	toolModel, err := chatModel.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools for agent=%s: %v", contractx.ErrModelInvoke, agentType, err)
	}
	runner, err := compileAgentGraph(ctx, agentType, toolModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	allowed := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			continue
		}
		allowed[t.Name] = struct{}{}
	}

	return &agentImpl{
		agentType:    agentType,
		runner:       runner,
		allowedTools: allowed,
	}, nil
}

func (a *agentImpl) Generate(ctx context.Context, req contractx.AgentRequest) (contractx.AssistantTurn, error) {
	if req.Now.IsZero() {
		req.Now = time.Now()
	}

	msg, err := a.runner.Invoke(ctx, req)
	if err != nil {
		if errors.Is(err, contractx.ErrInvalidMessage) {
			return contractx.AssistantTurn{}, err
		}
		return contractx.AssistantTurn{}, fmt.Errorf("%w: agent=%s: %v", contractx.ErrModelInvoke, a.agentType, err)
	}
	turn, err := toTurn(msg)
	if err != nil {
		return contractx.AssistantTurn{}, err
	}
	for _, call := range turn.ToolCalls {
		if _, ok := a.allowedTools[call.Name]; !ok {
			logx.Warn().
				Str("agent", string(a.agentType)).
				Str("tool", call.Name).
				Str("tool_call_id", call.ID).
				Msg("model called a tool outside its bound set")
		}
	}
	return turn, nil
}
