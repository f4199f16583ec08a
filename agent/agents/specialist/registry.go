package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	llmx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/llm"
	promptx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/prompt"
)

// ToolCatalog supplies the tool schemas bound on each agent's model.
type ToolCatalog interface {
	Infos(agentType contractx.AgentType) []*schema.ToolInfo
}

type registryImpl struct {
	sales   contractx.Agent
	support contractx.Agent
}

func (r *registryImpl) Sales() contractx.Agent {
	return r.sales
}

func (r *registryImpl) Support() contractx.Agent {
	return r.support
}

func NewRegistry(ctx context.Context, cfg llmx.Config, tools ToolCatalog) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	salesModelCfg := cfg.OpenRouterFor(contractx.AgentTypeSales)
	salesModel, err := salesModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create sales model: %v", contractx.ErrModelInvoke, err)
	}
	supportModelCfg := cfg.OpenRouterFor(contractx.AgentTypeSupport)
	supportModel, err := supportModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create support model: %v", contractx.ErrModelInvoke, err)
	}

	return newRegistry(ctx, salesModel, supportModel, promptx.LoadPromptSet(), tools)
}

func newRegistry(
	ctx context.Context,
	salesModel, supportModel einomodel.ToolCallingChatModel,
	prompts promptx.PromptSet,
	tools ToolCatalog,
) (*registryImpl, error) {
	sales, err := newAgent(ctx, contractx.AgentTypeSales, salesModel, prompts.Sales, tools.Infos(contractx.AgentTypeSales))
	if err != nil {
		return nil, err
	}
	support, err := newAgent(ctx, contractx.AgentTypeSupport, supportModel, prompts.Support, tools.Infos(contractx.AgentTypeSupport))
	if err != nil {
		return nil, err
	}
	return &registryImpl{sales: sales, support: support}, nil
}
