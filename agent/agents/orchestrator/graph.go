package orchestrator

import (
	"context"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	nodex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/nodes"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
	logx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/logger"
	metricsx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/metrics"
)

const dialogGraphName = "dialog"

// step flows along the graph edges. The pre-handler fills In from the local
// state, the node fills Out, the post-handler reduces Out into the state.
type step struct {
	In  nodex.Input
	Out nodex.Output
}

// runState is the graph local state of one run.
type runState struct {
	st     *statex.ConversationState
	scope  contractx.Scope
	resume *string
}

type runStateKey struct{}

func withRunState(ctx context.Context, rs *runState) context.Context {
	return context.WithValue(ctx, runStateKey{}, rs)
}

func runStateFrom(ctx context.Context) *runState {
	if rs, ok := ctx.Value(runStateKey{}).(*runState); ok {
		return rs
	}
	return &runState{st: statex.NewConversationState("", time.Now())}
}

type nodeFunc func(ctx context.Context, in nodex.Input) (nodex.Output, error)

type routeFunc func(st *statex.ConversationState) string

type node struct {
	name    string
	run     nodeFunc
	route   routeFunc
	targets []string

	// suspendable nodes end the run while the conversation awaits approval
	suspendable bool
}

func (o *Orchestrator) dialogNodes() []node {
	models := o.models
	tools := o.tools

	return []node{
		{
			name: nodex.SalesAgent,
			run: func(ctx context.Context, in nodex.Input) (nodex.Output, error) {
				return nodex.RunSalesAgent(ctx, in, models.Sales())
			},
			route:   nodex.RouteAfterSalesAgent,
			targets: []string{nodex.SalesTools, nodex.End},
		},
		{
			name: nodex.SupportAgent,
			run: func(ctx context.Context, in nodex.Input) (nodex.Output, error) {
				return nodex.RunSupportAgent(ctx, in, models.Support())
			},
			route:   nodex.RouteAfterSupportAgent,
			targets: []string{nodex.SupportTools, nodex.End},
		},
		{
			name: nodex.SalesTools,
			run: func(ctx context.Context, in nodex.Input) (nodex.Output, error) {
				return nodex.RunTools(ctx, in, tools, contractx.AgentTypeSales)
			},
			route:   nodex.RouteAfterSalesTools,
			targets: []string{nodex.AfterSalesTool},
		},
		{
			name: nodex.SupportTools,
			run: func(ctx context.Context, in nodex.Input) (nodex.Output, error) {
				return nodex.RunTools(ctx, in, tools, contractx.AgentTypeSupport)
			},
			route:   nodex.RouteAfterSupportTools,
			targets: []string{nodex.AfterSupportTool},
		},
		{
			name: nodex.AfterSalesTool,
			run: func(ctx context.Context, in nodex.Input) (nodex.Output, error) {
				return nodex.RunAfterSalesTool(in), nil
			},
			route:   nodex.RouteAfterSalesTool,
			targets: []string{nodex.SalesAgent, nodex.SupportAgent},
		},
		{
			name: nodex.AfterSupportTool,
			run: func(ctx context.Context, in nodex.Input) (nodex.Output, error) {
				return nodex.RunAfterSupportTool(in), nil
			},
			route:   nodex.RouteAfterSupportTool,
			targets: []string{nodex.HumanApproval, nodex.SupportAgent, nodex.End},
		},
		{
			name: nodex.HumanApproval,
			run: func(ctx context.Context, in nodex.Input) (nodex.Output, error) {
				return nodex.RunHumanApproval(in), nil
			},
			route:       nodex.RouteAfterHumanApproval,
			targets:     []string{nodex.SupportAgent},
			suspendable: true,
		},
	}
}

// compileDialogGraph turns the node table into an eino graph. The conversation
// lives in the graph local state and every routing function becomes a branch.
func (o *Orchestrator) compileDialogGraph(ctx context.Context, nodes []node) (compose.Runnable[*step, *step], error) {
	g := compose.NewGraph[*step, *step](
		compose.WithGenLocalState(runStateFrom),
	)

	for _, n := range nodes {
		run := n.run
		lambda := compose.InvokableLambda(func(ctx context.Context, s *step) (*step, error) {
			out, err := run(ctx, s.In)
			if err != nil {
				return nil, err
			}
			s.Out = out
			return s, nil
		})
		err := g.AddLambdaNode(n.name, lambda,
			compose.WithNodeName(n.name),
			compose.WithStatePreHandler(o.prepare),
			compose.WithStatePostHandler(o.reduce(n.name)),
		)
		if err != nil {
			return nil, err
		}
	}

	err := g.AddBranch(compose.START, newRouteBranch(compose.START, nodex.RouteStart,
		[]string{nodex.SalesAgent, nodex.SupportAgent, nodex.HumanApproval}, false))
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if err := g.AddBranch(n.name, newRouteBranch(n.name, n.route, n.targets, n.suspendable)); err != nil {
			return nil, err
		}
	}

	return g.Compile(ctx,
		compose.WithGraphName(dialogGraphName),
		compose.WithMaxRunSteps(o.maxSteps),
	)
}

// newRouteBranch wraps a routing function. At START a pending resume value
// enters the approval gate directly.
func newRouteBranch(from string, route routeFunc, targets []string, suspendable bool) *compose.GraphBranch {
	ends := make(map[string]bool, len(targets)+1)
	for _, target := range targets {
		ends[graphKey(target)] = true
	}
	if suspendable {
		ends[compose.END] = true
	}

	return compose.NewGraphBranch(func(ctx context.Context, _ *step) (string, error) {
		var next string
		err := compose.ProcessState(ctx, func(_ context.Context, rs *runState) error {
			switch {
			case suspendable && rs.st.AwaitingApproval():
				next = nodex.End
			case from == compose.START && rs.resume != nil:
				next = nodex.HumanApproval
			default:
				next = route(rs.st)
			}
			logx.Debug().
				Str("conversation_id", rs.st.ConversationID).
				Str("node", from).
				Str("next", next).
				Msg("node step")
			return nil
		})
		return graphKey(next), err
	}, ends)
}

func graphKey(name string) string {
	if name == nodex.End {
		return compose.END
	}
	return name
}

func (o *Orchestrator) prepare(ctx context.Context, _ *step, rs *runState) (*step, error) {
	return &step{In: nodex.Input{
		State:  rs.st,
		Scope:  rs.scope,
		Now:    o.now(),
		Resume: rs.resume,
	}}, nil
}

// reduce merges a node output into the local state. A suspension flips the
// conversation to awaiting approval instead of applying a delta.
func (o *Orchestrator) reduce(name string) compose.StatePostHandler[*step, *runState] {
	return func(ctx context.Context, s *step, rs *runState) (*step, error) {
		metricsx.NodeStepsTotal.WithLabelValues(name).Inc()

		if s.Out.Interrupt != nil {
			pending := *s.Out.Interrupt
			rs.st.Status = statex.StatusAwaitingApproval
			rs.st.Pending = &pending
			metricsx.InterruptsTotal.WithLabelValues(string(pending.Severity)).Inc()
			logx.Info().
				Str("conversation_id", rs.st.ConversationID).
				Str("node", name).
				Str("severity", string(pending.Severity)).
				Msg("run suspended for supervisor approval")
			return s, nil
		}

		if name == nodex.HumanApproval {
			rs.resume = nil
		}
		if err := rs.st.Apply(s.Out.Delta); err != nil {
			return nil, err
		}
		return s, nil
	}
}
