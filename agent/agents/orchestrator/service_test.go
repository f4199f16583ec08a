package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	cartx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/cart"
	catalogx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/catalog"
	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	nodex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/nodes"
	searchx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/search"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
	toolx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/tool"
)

type scriptedAgent struct {
	mu    sync.Mutex
	turns []contractx.AssistantTurn
	err   error
	reqs  []contractx.AgentRequest

	// repeat is returned once turns run out
	repeat *contractx.AssistantTurn
}

func (a *scriptedAgent) Generate(ctx context.Context, req contractx.AgentRequest) (contractx.AssistantTurn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reqs = append(a.reqs, req)
	if a.err != nil {
		return contractx.AssistantTurn{}, a.err
	}
	if len(a.turns) == 0 {
		if a.repeat != nil {
			return *a.repeat, nil
		}
		return contractx.AssistantTurn{}, errors.New("script exhausted")
	}
	turn := a.turns[0]
	a.turns = a.turns[1:]
	return turn, nil
}

func (a *scriptedAgent) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reqs)
}

type fakeRegistry struct {
	sales   *scriptedAgent
	support *scriptedAgent
}

func (r *fakeRegistry) Sales() contractx.Agent   { return r.sales }
func (r *fakeRegistry) Support() contractx.Agent { return r.support }

type recordingNotifier struct {
	mu      sync.Mutex
	pending []statex.Interrupt
	err     error
}

func (n *recordingNotifier) NotifyApproval(ctx context.Context, conversationID string, pending statex.Interrupt) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, pending)
	return n.err
}

type bananaSearcher struct{}

func (bananaSearcher) SimilaritySearch(ctx context.Context, text string, k int) ([]searchx.ScoredDocument, error) {
	return []searchx.ScoredDocument{{Document: searchx.Document{
		ProductID: 24852, Name: "Banana", Aisle: "fresh fruits", Department: "produce", Text: "Banana",
	}}}, nil
}

type fixture struct {
	orch     *Orchestrator
	store    *statex.MemoryStore
	carts    *cartx.Store
	models   *fakeRegistry
	notifier *recordingNotifier
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	carts := cartx.NewStore()
	gateway, err := toolx.NewGateway(toolx.Deps{
		Catalog: catalogx.New(catalogx.Data{
			Products:    []catalogx.Product{{ID: 24852, Name: "Banana", AisleID: 24, DepartmentID: 4}},
			Aisles:      map[int]string{24: "fresh fruits"},
			Departments: map[int]string{4: "produce"},
		}),
		Carts:    carts,
		Searcher: bananaSearcher{},
	})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	store := statex.NewMemoryStore()
	models := &fakeRegistry{sales: &scriptedAgent{}, support: &scriptedAgent{}}
	notifier := &recordingNotifier{}

	orch, err := New(store, models, gateway, notifier, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{orch: orch, store: store, carts: carts, models: models, notifier: notifier}
}

func toolTurn(id, name string, args map[string]any) contractx.AssistantTurn {
	return contractx.AssistantTurn{ToolCalls: []statex.ToolCall{{ID: id, Name: name, Args: args}}}
}

func textTurn(content string) contractx.AssistantTurn {
	return contractx.AssistantTurn{Content: content}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeRegistry{}, &toolx.Gateway{}, nil, Config{}); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := New(statex.NewMemoryStore(), nil, &toolx.Gateway{}, nil, Config{}); err == nil {
		t.Fatal("expected error for nil registry")
	}
	if _, err := New(statex.NewMemoryStore(), &fakeRegistry{}, nil, nil, Config{}); err == nil {
		t.Fatal("expected error for nil tools")
	}
}

func TestScenarioAddBananasToCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.models.sales.turns = []contractx.AssistantTurn{
		toolTurn("c1", toolx.ToolSearch, map[string]any{"query": "bananas"}),
		toolTurn("c2", toolx.ToolCart, map[string]any{"operation": "add", "product_id": 24852, "quantity": 1}),
		toolTurn("c3", toolx.ToolViewCart, map[string]any{}),
		textTurn("Added Banana (ID: 24852) to your cart."),
	}

	res, err := f.orch.StartOrContinue(context.Background(), "conv-a", "Add bananas")
	if err != nil {
		t.Fatalf("StartOrContinue() error = %v", err)
	}
	if res.PendingApproval != nil {
		t.Fatalf("unexpected pending approval %#v", res.PendingApproval)
	}
	if res.Mode != statex.ModeSales {
		t.Fatalf("mode = %q", res.Mode)
	}

	lines, err := f.carts.View("conv-a")
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if len(lines) != 1 || lines[0].ProductID != 24852 || lines[0].Quantity != 1 {
		t.Fatalf("cart = %#v", lines)
	}

	var viewResult string
	for _, msg := range res.Messages {
		if msg.Kind == statex.KindTool && msg.ToolCallID == "c3" {
			viewResult = msg.Content
		}
	}
	if !strings.Contains(viewResult, "24852") || !strings.Contains(viewResult, "× 1") {
		t.Fatalf("view_cart result = %q", viewResult)
	}

	// 3 tool turns + 3 results + final reply
	if len(res.Messages) != 7 {
		t.Fatalf("messages delta = %d, want 7", len(res.Messages))
	}
	if last := res.Messages[len(res.Messages)-1]; last.Kind != statex.KindAssistant || last.HasToolCalls() {
		t.Fatalf("last message = %#v", last)
	}
}

func TestScenarioRouteToSupport(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.models.sales.turns = []contractx.AssistantTurn{
		toolTurn("r1", toolx.ToolRouteToSupport, map[string]any{"reason": "broken item"}),
	}
	f.models.support.turns = []contractx.AssistantTurn{
		textTurn("I'm sorry your item arrived broken."),
		textTurn("Let me look into it."),
	}

	res, err := f.orch.StartOrContinue(context.Background(), "conv-b", "my blender arrived broken")
	if err != nil {
		t.Fatalf("StartOrContinue() error = %v", err)
	}
	if res.Mode != statex.ModeSupport {
		t.Fatalf("mode = %q, want customer_support", res.Mode)
	}

	st, err := f.orch.Snapshot(context.Background(), "conv-b")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	want := []statex.DialogMode{statex.ModeSales, statex.ModeSupport}
	if fmt.Sprint(st.DialogState) != fmt.Sprint(want) {
		t.Fatalf("dialog state = %v, want %v", st.DialogState, want)
	}
	if f.models.support.calls() != 1 {
		t.Fatalf("support agent calls = %d, want 1", f.models.support.calls())
	}

	// the next user turn starts at the support agent
	if _, err := f.orch.StartOrContinue(context.Background(), "conv-b", "what now?"); err != nil {
		t.Fatalf("StartOrContinue() error = %v", err)
	}
	if f.models.sales.calls() != 1 || f.models.support.calls() != 2 {
		t.Fatalf("calls sales=%d support=%d", f.models.sales.calls(), f.models.support.calls())
	}
}

func TestScenarioEscalationSuspendsAndResumes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.models.sales.turns = []contractx.AssistantTurn{
		toolTurn("r1", toolx.ToolRouteToSupport, map[string]any{"reason": "refund"}),
	}
	f.models.support.turns = []contractx.AssistantTurn{
		toolTurn("e1", toolx.ToolEscalateToHuman, map[string]any{"severity": "high", "summary": "refund request"}),
		textTurn(statex.SupervisorTag + " Your $10 refund was approved."),
	}
	ctx := context.Background()

	res, err := f.orch.StartOrContinue(ctx, "conv-c", "I want a refund")
	if err != nil {
		t.Fatalf("StartOrContinue() error = %v", err)
	}
	if res.PendingApproval == nil {
		t.Fatal("expected pending approval")
	}
	if res.PendingApproval.Severity != statex.SeverityHigh || res.PendingApproval.Summary != "refund request" {
		t.Fatalf("pending = %#v", res.PendingApproval)
	}
	if len(f.notifier.pending) != 1 {
		t.Fatalf("notifier calls = %d, want 1", len(f.notifier.pending))
	}

	if _, err := f.orch.StartOrContinue(ctx, "conv-c", "hello?"); !errors.Is(err, contractx.ErrApprovalPending) {
		t.Fatalf("StartOrContinue() while pending error = %v", err)
	}

	res, err = f.orch.Resume(ctx, "conv-c", "approved, $10 refund")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if res.PendingApproval != nil {
		t.Fatalf("pending after resume = %#v", res.PendingApproval)
	}
	if len(res.Messages) != 2 || !res.Messages[0].Supervisor {
		t.Fatalf("resume messages = %#v", res.Messages)
	}
	if res.Messages[0].Content != statex.SupervisorTag+" approved, $10 refund" {
		t.Fatalf("supervisor message = %q", res.Messages[0].Content)
	}

	st, err := f.orch.Snapshot(ctx, "conv-c")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if st.NeedHumanApproval != nil || st.AwaitingApproval() || st.Pending != nil {
		t.Fatalf("state after resume = %#v", st)
	}
	if st.SupervisorResponse == nil || *st.SupervisorResponse != "approved, $10 refund" {
		t.Fatalf("supervisor response = %v", st.SupervisorResponse)
	}

	if _, err := f.orch.Resume(ctx, "conv-c", "again"); !errors.Is(err, contractx.ErrNothingPending) {
		t.Fatalf("second Resume() error = %v", err)
	}
}

func TestMalformedToolCallsAreAnsweredAndRunContinues(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.models.sales.turns = []contractx.AssistantTurn{
		{ToolCalls: []statex.ToolCall{
			{ID: "s1", Name: toolx.ToolEscalateToHuman, Args: map[string]any{"severity": "high", "summary": "refund"}},
			{ID: "s2", Name: toolx.ToolSearch, RawArgs: `{"query": bananas`},
		}},
		textTurn("Sorry, let me try that again."),
	}

	res, err := f.orch.StartOrContinue(context.Background(), "conv-x", "bananas please")
	if err != nil {
		t.Fatalf("StartOrContinue() error = %v", err)
	}
	if res.PendingApproval != nil {
		t.Fatalf("unexpected pending approval %#v", res.PendingApproval)
	}

	// tool call turn + two error results + final reply
	if len(res.Messages) != 4 {
		t.Fatalf("messages delta = %#v", res.Messages)
	}
	for i, id := range []string{"s1", "s2"} {
		msg := res.Messages[i+1]
		if msg.Kind != statex.KindTool || !msg.IsError || msg.ToolCallID != id {
			t.Fatalf("result %d = %#v", i, msg)
		}
	}
	if f.models.sales.calls() != 2 {
		t.Fatalf("sales agent calls = %d, want 2", f.models.sales.calls())
	}
}

func TestProtocolErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()

	if _, err := f.orch.Resume(ctx, "missing", "ok"); !errors.Is(err, contractx.ErrUnknownConversation) {
		t.Fatalf("Resume(unknown) error = %v", err)
	}
	if _, err := f.orch.Snapshot(ctx, "missing"); !errors.Is(err, contractx.ErrUnknownConversation) {
		t.Fatalf("Snapshot(unknown) error = %v", err)
	}
	if _, err := f.orch.StartOrContinue(ctx, " ", "hi"); !errors.Is(err, contractx.ErrInvalidSession) {
		t.Fatalf("StartOrContinue(empty id) error = %v", err)
	}
	if _, err := f.orch.StartOrContinue(ctx, "conv", "  "); !errors.Is(err, contractx.ErrInvalidMessage) {
		t.Fatalf("StartOrContinue(empty text) error = %v", err)
	}
}

func TestGenerationFailureIsRecordedAndRecoverable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.models.sales.err = fmt.Errorf("%w: upstream 503", contractx.ErrModelInvoke)
	ctx := context.Background()

	if _, err := f.orch.StartOrContinue(ctx, "conv-e", "hi"); !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("StartOrContinue() error = %v", err)
	}
	st, err := f.orch.Snapshot(ctx, "conv-e")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if st.LastError == "" || len(st.Messages) != 1 {
		t.Fatalf("state after failure = %#v", st)
	}

	f.models.sales.mu.Lock()
	f.models.sales.err = nil
	f.models.sales.turns = []contractx.AssistantTurn{textTurn("back online")}
	f.models.sales.mu.Unlock()

	res, err := f.orch.StartOrContinue(ctx, "conv-e", "hi again")
	if err != nil {
		t.Fatalf("StartOrContinue() error = %v", err)
	}
	if len(res.Messages) != 1 || res.Messages[0].Content != "back online" {
		t.Fatalf("messages = %#v", res.Messages)
	}
	st, _ = f.orch.Snapshot(ctx, "conv-e")
	if st.LastError != "" {
		t.Fatalf("last error not cleared: %q", st.LastError)
	}
}

func TestMaxStepsStopsLoopingAgent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{MaxSteps: 4})
	looping := toolTurn("v", toolx.ToolViewCart, nil)
	f.models.sales.repeat = &looping

	_, err := f.orch.StartOrContinue(context.Background(), "conv-m", "loop")
	if !errors.Is(err, contractx.ErrMaxSteps) {
		t.Fatalf("StartOrContinue() error = %v, want ErrMaxSteps", err)
	}

	st, err := f.orch.Snapshot(context.Background(), "conv-m")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	last, _ := st.LastMessage()
	if last.Kind != statex.KindTool || !last.IsError || last.ToolCallID != "v" {
		t.Fatalf("transcript must end on a tool result, got %#v", last)
	}
	if f.models.sales.calls() != 2 {
		t.Fatalf("sales agent calls = %d, want 2", f.models.sales.calls())
	}
}

func TestUserBinding(t *testing.T) {
	t.Parallel()

	defaultUser := 7
	f := newFixture(t, Config{DefaultUserID: &defaultUser})
	f.models.sales.repeat = &contractx.AssistantTurn{Content: "ok"}
	ctx := context.Background()

	if _, err := f.orch.StartOrContinue(ctx, "conv-u1", "hi"); err != nil {
		t.Fatalf("StartOrContinue() error = %v", err)
	}
	st, _ := f.orch.Snapshot(ctx, "conv-u1")
	if st.UserID == nil || *st.UserID != 7 {
		t.Fatalf("user id = %v, want default 7", st.UserID)
	}

	if _, err := f.orch.StartOrContinue(ctx, "conv-u2", "hi", WithUserID(3)); err != nil {
		t.Fatalf("StartOrContinue() error = %v", err)
	}
	if _, err := f.orch.StartOrContinue(ctx, "conv-u2", "again"); err != nil {
		t.Fatalf("StartOrContinue() error = %v", err)
	}
	st, _ = f.orch.Snapshot(ctx, "conv-u2")
	if st.UserID == nil || *st.UserID != 3 {
		t.Fatalf("user id = %v, want 3", st.UserID)
	}
}

func TestSameConversationRunsAreSerialized(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.models.sales.repeat = &contractx.AssistantTurn{Content: "ok"}

	const turns = 20
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv := "shared"
			if i%2 == 1 {
				conv = fmt.Sprintf("solo-%d", i)
			}
			if _, err := f.orch.StartOrContinue(context.Background(), conv, fmt.Sprintf("msg %d", i)); err != nil {
				t.Errorf("StartOrContinue(%s) error = %v", conv, err)
			}
		}(i)
	}
	wg.Wait()

	st, err := f.orch.Snapshot(context.Background(), "shared")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(st.Messages) != turns {
		t.Fatalf("shared conversation has %d messages, want %d", len(st.Messages), turns)
	}
}

func TestDialogGraphRejectsUnknownTarget(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	nodes := f.orch.dialogNodes()
	for i := range nodes {
		if nodes[i].name == nodex.HumanApproval {
			nodes[i].targets = []string{"nowhere"}
		}
	}

	if _, err := f.orch.compileDialogGraph(context.Background(), nodes); err == nil {
		t.Fatal("expected compile error for unknown target")
	}
	if _, err := f.orch.compileDialogGraph(context.Background(), f.orch.dialogNodes()); err != nil {
		t.Fatalf("compileDialogGraph() error = %v", err)
	}
}

func TestDialogGraphRejectsUndeclaredRoute(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.models.sales.repeat = &contractx.AssistantTurn{Content: "ok"}

	nodes := f.orch.dialogNodes()
	for i := range nodes {
		if nodes[i].name == nodex.SalesAgent {
			nodes[i].route = func(*statex.ConversationState) string { return nodex.HumanApproval }
		}
	}
	graph, err := f.orch.compileDialogGraph(context.Background(), nodes)
	if err != nil {
		t.Fatalf("compileDialogGraph() error = %v", err)
	}
	f.orch.graph = graph

	if _, err := f.orch.StartOrContinue(context.Background(), "conv-g", "hi"); err == nil {
		t.Fatal("expected error for a route outside the declared targets")
	}
}

func TestResumeWithCancelledContextStaysResumable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.models.sales.turns = []contractx.AssistantTurn{
		toolTurn("r1", toolx.ToolRouteToSupport, map[string]any{"reason": "refund"}),
	}
	f.models.support.turns = []contractx.AssistantTurn{
		toolTurn("e1", toolx.ToolEscalateToHuman, map[string]any{"severity": "medium", "summary": "refund request"}),
		textTurn(statex.SupervisorTag + " Refund approved."),
	}
	ctx := context.Background()

	res, err := f.orch.StartOrContinue(ctx, "conv-f", "I want a refund")
	if err != nil {
		t.Fatalf("StartOrContinue() error = %v", err)
	}
	if res.PendingApproval == nil {
		t.Fatal("expected pending approval")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := f.orch.Resume(cancelled, "conv-f", "approved"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Resume(cancelled) error = %v, want context.Canceled", err)
	}

	st, err := f.orch.Snapshot(ctx, "conv-f")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if !st.AwaitingApproval() || st.Pending == nil || st.NeedHumanApproval == nil {
		t.Fatalf("state after failed resume = %#v", st)
	}
	if st.Pending.Summary != "refund request" || st.Pending.ToolCallID != "e1" {
		t.Fatalf("pending = %#v", st.Pending)
	}
	if st.LastError == "" {
		t.Fatal("expected last error to be recorded")
	}

	res, err = f.orch.Resume(ctx, "conv-f", "approved")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if len(res.Messages) != 2 || !res.Messages[0].Supervisor {
		t.Fatalf("resume messages = %#v", res.Messages)
	}
	st, _ = f.orch.Snapshot(ctx, "conv-f")
	if st.AwaitingApproval() || st.NeedHumanApproval != nil || st.LastError != "" {
		t.Fatalf("state after resume = %#v", st)
	}
}
