package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	promptx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/prompt"
)

const (
	nodePrepare = "prepare"
	nodePrompt  = "prompt"
	nodeModel   = "model"
)

// compileAgentGraph wires prepare -> prompt -> model. The prompt renders the
// system template and appends the transcript through the messages placeholder.
func compileAgentGraph(
	ctx context.Context,
	agentType contractx.AgentType,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[contractx.AgentRequest, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.MessagesPlaceholder("messages", false),
	)

	graph := compose.NewGraph[contractx.AgentRequest, *schema.Message]()
	if err := graph.AddLambdaNode(nodePrepare,
		compose.InvokableLambda(func(ctx context.Context, req contractx.AgentRequest) (map[string]any, error) {
			msgs, err := toSchemaMessages(req.Messages)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"time":     req.Now.Format(promptx.TimeLayout),
				"messages": msgs,
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add prepare node: %w", err)
	}
	if err := graph.AddChatTemplateNode(nodePrompt, template); err != nil {
		return nil, fmt.Errorf("add prompt node: %w", err)
	}
	if err := graph.AddChatModelNode(nodeModel, chatModel); err != nil {
		return nil, fmt.Errorf("add model node: %w", err)
	}

	if err := graph.AddEdge(compose.START, nodePrepare); err != nil {
		return nil, fmt.Errorf("add edge start->prepare: %w", err)
	}
	if err := graph.AddEdge(nodePrepare, nodePrompt); err != nil {
		return nil, fmt.Errorf("add edge prepare->prompt: %w", err)
	}
	if err := graph.AddEdge(nodePrompt, nodeModel); err != nil {
		return nil, fmt.Errorf("add edge prompt->model: %w", err)
	}
	if err := graph.AddEdge(nodeModel, compose.END); err != nil {
		return nil, fmt.Errorf("add edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(string(agentType)+".agent_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile %s agent graph: %w", agentType, err)
	}
	return runner, nil
}
