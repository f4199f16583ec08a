package nodes

import (
	"time"

	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
)

const (
	SalesAgent       = "sales_agent"
	SupportAgent     = "support_agent"
	SalesTools       = "sales_tools"
	SupportTools     = "support_tools"
	AfterSalesTool   = "after_sales_tool"
	AfterSupportTool = "after_support_tool"
	HumanApproval    = "human_approval"

	// End terminates the run for this invocation.
	End = "__end__"
)

// ApprovalQuestion is surfaced to the caller when a run suspends.
const ApprovalQuestion = "Supervisor input required"

// Input is the read-only view a node works on. Nodes never mutate State;
// they return a Delta that the runtime merges.
type Input struct {
	State *statex.ConversationState
	Scope contractx.Scope
	Now   time.Time

	// Resume carries the supervisor decision into human_approval.
	Resume *string
}

// Output is one node step: a single delta, or a suspension.
type Output struct {
	Delta     statex.Delta
	Interrupt *statex.Interrupt
}
