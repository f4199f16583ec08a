package tool

import (
	"context"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
)

const (
	ToolSearch           = "search"
	ToolStructuredSearch = "structured_search"
	ToolCart             = "cart"
	ToolViewCart         = "view_cart"
	ToolRouteToSupport   = "route_to_support"
	ToolEscalateToHuman  = "escalate_to_human"
)

// runFunc is a tool body over the raw JSON arguments. A returned string is
// used verbatim; anything else is JSON encoded.
type runFunc func(ctx context.Context, scope contractx.Scope, args string) (any, error)

type toolDef struct {
	info *schema.ToolInfo
	run  runFunc
}

// BuildForAgent returns the tool infos to bind on the agent's model and the
// eino tools serving them for one conversation scope.
func (g *Gateway) BuildForAgent(agentType contractx.AgentType, scope contractx.Scope) ([]*schema.ToolInfo, []einotool.BaseTool) {
	defs := g.defs[agentType]
	tools := make([]einotool.BaseTool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, &shopTool{def: def, scope: scope})
	}
	return g.Infos(agentType), tools
}

func (g *Gateway) Infos(agentType contractx.AgentType) []*schema.ToolInfo {
	defs := g.defs[agentType]
	infos := make([]*schema.ToolInfo, 0, len(defs))
	for _, name := range g.order[agentType] {
		infos = append(infos, defs[name].info)
	}
	return infos
}

// NewToolsNode wraps the agent's tools in an eino tools node. Calls run in
// order; unknown tools get an error result instead of failing the node.
func (g *Gateway) NewToolsNode(ctx context.Context, agentType contractx.AgentType, scope contractx.Scope) (*compose.ToolsNode, error) {
	_, tools := g.BuildForAgent(agentType, scope)
	return compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:                tools,
		UnknownToolsHandler:  unknownToolHandler(agentType),
		ToolArgumentsHandler: normalizeArguments,
		ExecuteSequentially:  true,
	})
}

// unknownToolHandler answers calls to tools the agent does not have.
func unknownToolHandler(agentType contractx.AgentType) func(ctx context.Context, name, input string) (string, error) {
	return func(ctx context.Context, name, _ string) (string, error) {
		markFailed(ctx)
		err := fmt.Errorf("%w: tool=%s is unavailable for agent=%s", contractx.ErrUnknownTool, name, agentType)
		return errorContent(err), nil
	}
}

func salesInfos(departments []string) []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: ToolRouteToSupport,
			Desc: "Hand the conversation to customer support when the user has a problem beyond sales, such as a refund request or a broken product.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"reason": {Type: schema.String, Desc: "Why the customer needs support, in the user's words.", Required: true},
			}),
		},
		{
			Name: ToolSearch,
			Desc: "Semantic product search over the grocery catalog for free-form requests.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Natural language product query.", Required: true},
			}),
		},
		{
			Name: ToolStructuredSearch,
			Desc: "Filtered catalog browsing and purchase history analysis. Returns JSON rows, grouped counts, or an error record.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"product_name": {Type: schema.String, Desc: "Case-insensitive substring of the product name."},
				"department":   {Type: schema.String, Desc: "Exact department name.", Enum: departments},
				"aisle":        {Type: schema.String, Desc: "Aisle name, case-insensitive."},
				"reordered":    {Type: schema.Boolean, Desc: "History only: true for products reordered at least once, false for never reordered."},
				"min_orders":   {Type: schema.Integer, Desc: "History only: minimum times purchased."},
				"order_by":     {Type: schema.String, Desc: "History only: sort key.", Enum: []string{"count", "add_to_cart_order"}},
				"ascending":    {Type: schema.Boolean, Desc: "Sort ascending instead of descending."},
				"top_k":        {Type: schema.Integer, Desc: "Keep only the first K results after sorting."},
				"group_by":     {Type: schema.String, Desc: "Return counts per department or aisle.", Enum: []string{"department", "aisle"}},
				"history_only": {Type: schema.Boolean, Desc: "Restrict to products the current user has purchased."},
			}),
		},
		{
			Name: ToolCart,
			Desc: "Modify the user's cart: add, update, remove, remove_all, or buy.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"operation":  {Type: schema.String, Desc: "Cart operation.", Enum: []string{"add", "update", "remove", "remove_all", "buy"}, Required: true},
				"product_id": {Type: schema.Integer, Desc: "Product id for add, update, and remove."},
				"quantity":   {Type: schema.Integer, Desc: "Quantity for add, update, and remove. Defaults to 1."},
			}),
		},
		{
			Name:        ToolViewCart,
			Desc:        "Show the products and quantities currently in the user's cart.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
	}
}

func supportInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: ToolEscalateToHuman,
			Desc: "Request human supervisor approval for refunds, manager requests, or issues you cannot resolve.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"severity": {Type: schema.String, Desc: "Severity of the issue.", Enum: []string{"low", "medium", "high"}, Required: true},
				"summary":  {Type: schema.String, Desc: "Brief summary of the customer's issue.", Required: true},
			}),
		},
	}
}
