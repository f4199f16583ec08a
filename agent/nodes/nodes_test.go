package nodes

import (
	"context"
	"errors"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
)

type fakeAgent struct {
	turn contractx.AssistantTurn
	err  error
	reqs []contractx.AgentRequest
}

func (f *fakeAgent) Generate(ctx context.Context, req contractx.AgentRequest) (contractx.AssistantTurn, error) {
	f.reqs = append(f.reqs, req)
	return f.turn, f.err
}

type echoGateway struct {
	calls []statex.ToolCall
}

func (g *echoGateway) Execute(ctx context.Context, agentType contractx.AgentType, scope contractx.Scope, calls []statex.ToolCall) []statex.Message {
	g.calls = append(g.calls, calls...)
	out := make([]statex.Message, 0, len(calls))
	for _, c := range calls {
		out = append(out, statex.ToolMessage(c.ID, c.Name, "ok:"+c.Name))
	}
	return out
}

func newState(t *testing.T, msgs ...statex.Message) *statex.ConversationState {
	t.Helper()
	st := statex.NewConversationState("conv", time.Now())
	if err := st.Apply(statex.AppendMessages(msgs...)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	return st
}

func TestRunSalesAgentSeedsDialogStack(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{turn: contractx.AssistantTurn{Content: "hello"}}
	st := newState(t, statex.UserMessage("hi"))

	out, err := RunSalesAgent(context.Background(), Input{State: st}, agent)
	if err != nil {
		t.Fatalf("RunSalesAgent() error = %v", err)
	}
	if out.Delta.Dialog != string(statex.ModeSales) {
		t.Fatalf("dialog = %q, want sales_rep push", out.Delta.Dialog)
	}
	if len(out.Delta.Messages) != 1 || out.Delta.Messages[0].Content != "hello" {
		t.Fatalf("messages = %#v", out.Delta.Messages)
	}
	if len(agent.reqs) != 1 || len(agent.reqs[0].Messages) != 1 {
		t.Fatalf("agent requests = %#v", agent.reqs)
	}

	st.DialogState = []statex.DialogMode{statex.ModeSales}
	out, err = RunSalesAgent(context.Background(), Input{State: st}, agent)
	if err != nil {
		t.Fatalf("RunSalesAgent() error = %v", err)
	}
	if out.Delta.Dialog != "" {
		t.Fatalf("dialog = %q, want no push on non-empty stack", out.Delta.Dialog)
	}
}

func TestRunSupportAgentPropagatesErrors(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{err: contractx.ErrModelInvoke}
	_, err := RunSupportAgent(context.Background(), Input{State: newState(t)}, agent)
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("RunSupportAgent() error = %v", err)
	}
}

func TestRunToolsAnswersEveryCall(t *testing.T) {
	t.Parallel()

	gw := &echoGateway{}
	st := newState(t,
		statex.UserMessage("add bananas"),
		statex.AssistantMessage("",
			statex.ToolCall{ID: "a", Name: "search"},
			statex.ToolCall{ID: "b", Name: "cart"},
		),
	)

	out, err := RunTools(context.Background(), Input{State: st}, gw, contractx.AgentTypeSales)
	if err != nil {
		t.Fatalf("RunTools() error = %v", err)
	}
	if len(out.Delta.Messages) != 2 {
		t.Fatalf("results = %#v", out.Delta.Messages)
	}
	if out.Delta.Messages[0].ToolCallID != "a" || out.Delta.Messages[1].ToolCallID != "b" {
		t.Fatalf("call ids out of order: %#v", out.Delta.Messages)
	}

	if _, err := RunTools(context.Background(), Input{State: newState(t, statex.UserMessage("x"))}, gw, contractx.AgentTypeSales); err == nil {
		t.Fatal("expected error without pending tool calls")
	}
}

func TestRunAfterSalesTool(t *testing.T) {
	t.Parallel()

	routed := newState(t,
		statex.AssistantMessage("", statex.ToolCall{ID: "r", Name: routeToolName}, statex.ToolCall{ID: "s", Name: "search"}),
		statex.ToolMessage("r", routeToolName, "Routing to customer support: broken item"),
		statex.ToolMessage("s", "search", "results"),
	)
	if out := RunAfterSalesTool(Input{State: routed}); out.Delta.Dialog != string(statex.ModeSupport) {
		t.Fatalf("dialog = %q, want customer_support", out.Delta.Dialog)
	}

	failed := newState(t,
		statex.AssistantMessage("", statex.ToolCall{ID: "r", Name: routeToolName}),
		statex.ToolErrorMessage("r", routeToolName, "Error: reason is required\nPlease fix your mistake."),
	)
	if out := RunAfterSalesTool(Input{State: failed}); !out.Delta.IsEmpty() {
		t.Fatalf("failed route must not switch dialog: %#v", out.Delta)
	}

	other := newState(t,
		statex.AssistantMessage("", statex.ToolCall{ID: "s", Name: "search"}),
		statex.ToolMessage("s", "search", "results"),
	)
	if out := RunAfterSalesTool(Input{State: other}); !out.Delta.IsEmpty() {
		t.Fatalf("unexpected delta %#v", out.Delta)
	}
}

func TestRunAfterSupportToolParsesEscalation(t *testing.T) {
	t.Parallel()

	st := newState(t,
		statex.AssistantMessage("", statex.ToolCall{ID: "e", Name: escalateToolName}),
		statex.ToolMessage("e", escalateToolName, "Escalated to a human supervisor with severity='high' summary='refund request'"),
	)
	out := RunAfterSupportTool(Input{State: st})
	if !out.Delta.SetApproval || out.Delta.Approval == nil {
		t.Fatalf("delta = %#v, want approval", out.Delta)
	}
	if out.Delta.Approval.Severity != statex.SeverityHigh || out.Delta.Approval.Summary != "refund request" {
		t.Fatalf("approval = %#v", out.Delta.Approval)
	}
	if out.Delta.Approval.ToolCallID != "e" {
		t.Fatalf("tool call id = %q", out.Delta.Approval.ToolCallID)
	}
}

func TestParseEscalationDefaults(t *testing.T) {
	t.Parallel()

	severity, summary := parseEscalation("Escalated without tokens")
	if severity != defaultSeverity || summary != defaultSummary {
		t.Fatalf("parseEscalation() = %q, %q", severity, summary)
	}

	severity, summary = parseEscalation("severity='low' summary='it's broken'")
	if severity != "low" || summary != "it's broken" {
		t.Fatalf("parseEscalation() = %q, %q", severity, summary)
	}
}

func TestRunAfterSupportToolIgnoresErrors(t *testing.T) {
	t.Parallel()

	st := newState(t,
		statex.AssistantMessage("", statex.ToolCall{ID: "e", Name: escalateToolName}),
		statex.ToolErrorMessage("e", escalateToolName, "Error: severity is required\nPlease fix your mistake."),
	)
	if out := RunAfterSupportTool(Input{State: st}); !out.Delta.IsEmpty() {
		t.Fatalf("unexpected delta %#v", out.Delta)
	}
}

func TestRunHumanApproval(t *testing.T) {
	t.Parallel()

	st := newState(t)
	if out := RunHumanApproval(Input{State: st}); out.Interrupt != nil || !out.Delta.IsEmpty() {
		t.Fatalf("pass-through expected, got %#v", out)
	}

	st.NeedHumanApproval = &statex.EscalationRequest{ToolCallID: "e", Severity: statex.SeverityHigh, Summary: "refund request"}
	out := RunHumanApproval(Input{State: st})
	if out.Interrupt == nil {
		t.Fatal("expected interrupt")
	}
	if out.Interrupt.Question != ApprovalQuestion || out.Interrupt.Severity != statex.SeverityHigh || out.Interrupt.Summary != "refund request" {
		t.Fatalf("interrupt = %#v", out.Interrupt)
	}

	decision := "approved, $10 refund"
	out = RunHumanApproval(Input{State: st, Resume: &decision})
	if out.Interrupt != nil {
		t.Fatal("resume must not interrupt")
	}
	if err := st.Apply(out.Delta); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if st.NeedHumanApproval != nil {
		t.Fatal("approval must be cleared on resume")
	}
	last, _ := st.LastMessage()
	if !last.Supervisor || last.Content != statex.SupervisorTag+" "+decision {
		t.Fatalf("last message = %#v", last)
	}
	if st.SupervisorResponse == nil || *st.SupervisorResponse != decision {
		t.Fatalf("supervisor response = %v", st.SupervisorResponse)
	}
}

func TestRoutesAreDeterministic(t *testing.T) {
	t.Parallel()

	support := newState(t, statex.UserMessage("hi"))
	support.DialogState = []statex.DialogMode{statex.ModeSales, statex.ModeSupport}

	withCalls := newState(t, statex.AssistantMessage("", statex.ToolCall{ID: "1", Name: "search"}))
	plain := newState(t, statex.AssistantMessage("done"))
	ack := newState(t, statex.AssistantMessage(statex.SupervisorTag+" approved"))
	pending := newState(t)
	pending.NeedHumanApproval = &statex.EscalationRequest{Severity: statex.SeverityLow}

	cases := []struct {
		name  string
		route func(*statex.ConversationState) string
		st    *statex.ConversationState
		want  string
	}{
		{"start empty", RouteStart, newState(t), SalesAgent},
		{"start support", RouteStart, support, SupportAgent},
		{"sales with calls", RouteAfterSalesAgent, withCalls, SalesTools},
		{"sales plain", RouteAfterSalesAgent, plain, End},
		{"support with calls", RouteAfterSupportAgent, withCalls, SupportTools},
		{"support plain", RouteAfterSupportAgent, plain, End},
		{"sales tools", RouteAfterSalesTools, plain, AfterSalesTool},
		{"support tools", RouteAfterSupportTools, plain, AfterSupportTool},
		{"after sales tool in support", RouteAfterSalesTool, support, SupportAgent},
		{"after sales tool in sales", RouteAfterSalesTool, plain, SalesAgent},
		{"after support tool pending", RouteAfterSupportTool, pending, HumanApproval},
		{"after support tool ack", RouteAfterSupportTool, ack, SupportAgent},
		{"after support tool plain", RouteAfterSupportTool, plain, End},
		{"after approval", RouteAfterHumanApproval, plain, SupportAgent},
	}
	for _, tc := range cases {
		first := tc.route(tc.st)
		for i := 0; i < 5; i++ {
			if got := tc.route(tc.st); got != first {
				t.Fatalf("%s: route changed between calls: %q vs %q", tc.name, first, got)
			}
		}
		if first != tc.want {
			t.Fatalf("%s: route = %q, want %q", tc.name, first, tc.want)
		}
	}
}
