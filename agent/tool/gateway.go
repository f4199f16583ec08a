package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	cartx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/cart"
	catalogx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/catalog"
	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	searchx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/search"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
	logx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/logger"
	metricsx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/metrics"
)

const defaultSearchTopK = 5

type Deps struct {
	Catalog    *catalogx.Catalog
	Carts      *cartx.Store
	Searcher   searchx.Searcher
	SearchTopK int
}

// Gateway is the tool dispatcher. Every call gets exactly one result message
// carrying the call id, whatever the tool does.
type Gateway struct {
	deps  Deps
	defs  map[contractx.AgentType]map[string]toolDef
	order map[contractx.AgentType][]string
}

var _ contractx.ToolGateway = (*Gateway)(nil)

func NewGateway(deps Deps) (*Gateway, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("cart store is required")
	}
	if deps.SearchTopK <= 0 {
		deps.SearchTopK = defaultSearchTopK
	}

	g := &Gateway{
		deps:  deps,
		defs:  make(map[contractx.AgentType]map[string]toolDef, 2),
		order: make(map[contractx.AgentType][]string, 2),
	}

	runs := map[string]runFunc{
		ToolRouteToSupport:   runRouteToSupport,
		ToolSearch:           g.runSearch,
		ToolStructuredSearch: g.runStructuredSearch,
		ToolCart:             g.runCart,
		ToolViewCart:         g.runViewCart,
		ToolEscalateToHuman:  runEscalateToHuman,
	}
	register := func(agentType contractx.AgentType, infos []*schema.ToolInfo) {
		g.defs[agentType] = make(map[string]toolDef, len(infos))
		for _, info := range infos {
			g.defs[agentType][info.Name] = toolDef{info: info, run: runs[info.Name]}
			g.order[agentType] = append(g.order[agentType], info.Name)
		}
	}
	register(contractx.AgentTypeSales, salesInfos(deps.Catalog.Departments()))
	register(contractx.AgentTypeSupport, supportInfos())

	return g, nil
}

// Execute runs the calls through the agent's tools node and maps every
// result back onto the call it answers.
func (g *Gateway) Execute(
	ctx context.Context,
	agentType contractx.AgentType,
	scope contractx.Scope,
	calls []statex.ToolCall,
) []statex.Message {
	out := make([]statex.Message, len(calls))
	if len(calls) == 0 {
		return out
	}

	failed := &failedCalls{ids: make(map[string]struct{})}
	sent := make([]int, 0, len(calls))
	schemaCalls := make([]schema.ToolCall, 0, len(calls))
	for i, call := range calls {
		args, err := argumentsJSON(call)
		if err != nil {
			out[i] = statex.ToolErrorMessage(call.ID, call.Name, errorContent(err))
			continue
		}
		sent = append(sent, i)
		schemaCalls = append(schemaCalls, schema.ToolCall{
			ID:       call.ID,
			Type:     "function",
			Function: schema.FunctionCall{Name: call.Name, Arguments: args},
		})
	}

	var results []*schema.Message
	var nodeErr error
	if len(schemaCalls) > 0 {
		node, err := g.NewToolsNode(ctx, agentType, scope)
		if err == nil {
			results, err = node.Invoke(withFailedCalls(ctx, failed), schema.AssistantMessage("", schemaCalls))
		}
		nodeErr = err
	}

	for j, i := range sent {
		call := calls[i]
		switch {
		case nodeErr != nil || j >= len(results) || results[j] == nil:
			err := fmt.Errorf("%w: tools node: %v", contractx.ErrToolFault, nodeErr)
			out[i] = statex.ToolErrorMessage(call.ID, call.Name, errorContent(err))
		case failed.has(call.ID):
			out[i] = statex.ToolErrorMessage(call.ID, call.Name, results[j].Content)
		default:
			out[i] = statex.ToolMessage(call.ID, call.Name, results[j].Content)
		}
	}

	for i, msg := range out {
		call := calls[i]
		status := "ok"
		if msg.IsError {
			status = "error"
			logx.Warn().
				Str("conversation_id", scope.ConversationID).
				Str("agent", string(agentType)).
				Str("tool", call.Name).
				Str("tool_call_id", call.ID).
				Str("result", msg.Content).
				Msg("tool call failed")
		} else {
			logx.Debug().
				Str("conversation_id", scope.ConversationID).
				Str("agent", string(agentType)).
				Str("tool", call.Name).
				Str("tool_call_id", call.ID).
				Msg("tool call done")
		}
		metricsx.ToolCallsTotal.WithLabelValues(string(agentType), call.Name, status).Inc()
	}
	return out
}

// argumentsJSON returns the arguments as the model sent them when they could
// not be decoded, otherwise the re-encoded map.
func argumentsJSON(call statex.ToolCall) (string, error) {
	if call.RawArgs != "" {
		return call.RawArgs, nil
	}
	if len(call.Args) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(call.Args)
	if err != nil {
		return "", fmt.Errorf("%w: encode args: %v", contractx.ErrValidation, err)
	}
	return string(raw), nil
}

// shopTool serves one tool definition as an eino invokable tool. Failures are
// returned as error content and recorded against the tool call id.
type shopTool struct {
	def   toolDef
	scope contractx.Scope
}

var _ einotool.InvokableTool = (*shopTool)(nil)

func (t *shopTool) Info(context.Context) (*schema.ToolInfo, error) {
	return t.def.info, nil
}

func (t *shopTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...einotool.Option) (string, error) {
	content, err := runSafely(ctx, t.scope, t.def.info.Name, argumentsInJSON, t.def.run)
	if err != nil {
		markFailed(ctx)
		return errorContent(err), nil
	}
	return content, nil
}

func runSafely(ctx context.Context, scope contractx.Scope, name, args string, run runFunc) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in tool=%s: %v", contractx.ErrToolFault, name, r)
		}
	}()

	out, err := run(ctx, scope, args)
	if err != nil {
		return "", err
	}
	return renderOutput(out)
}

type failedCalls struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

type failedCallsKey struct{}

func withFailedCalls(ctx context.Context, f *failedCalls) context.Context {
	return context.WithValue(ctx, failedCallsKey{}, f)
}

func markFailed(ctx context.Context) {
	f, ok := ctx.Value(failedCallsKey{}).(*failedCalls)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[compose.GetToolCallID(ctx)] = struct{}{}
}

func (f *failedCalls) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ids[id]
	return ok
}

func renderOutput(out any) (string, error) {
	switch v := out.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: encode tool output: %v", contractx.ErrToolFault, err)
		}
		return string(raw), nil
	}
}

func errorContent(err error) string {
	return "Error: " + strings.TrimSpace(err.Error()) + "\nPlease fix your mistake."
}
