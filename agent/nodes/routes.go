package nodes

import statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"

// RouteStart picks the entry agent from the top of the dialog stack.
func RouteStart(st *statex.ConversationState) string {
	if st.Mode() == statex.ModeSupport {
		return SupportAgent
	}
	return SalesAgent
}

// RouteAfterSalesAgent runs the sales tools when the last reply requested any.
func RouteAfterSalesAgent(st *statex.ConversationState) string {
	if last, ok := st.LastMessage(); ok && last.HasToolCalls() {
		return SalesTools
	}
	return End
}

// RouteAfterSupportAgent runs the support tools when the last reply requested any.
func RouteAfterSupportAgent(st *statex.ConversationState) string {
	if last, ok := st.LastMessage(); ok && last.HasToolCalls() {
		return SupportTools
	}
	return End
}

// RouteAfterSalesTools always hands the tool results to after_sales_tool.
func RouteAfterSalesTools(*statex.ConversationState) string {
	return AfterSalesTool
}

// RouteAfterSupportTools always hands the tool results to after_support_tool.
func RouteAfterSupportTools(*statex.ConversationState) string {
	return AfterSupportTool
}

// RouteAfterSalesTool follows a handoff to support, otherwise returns to sales.
func RouteAfterSalesTool(st *statex.ConversationState) string {
	if top, ok := st.TopDialog(); ok && top == statex.ModeSupport {
		return SupportAgent
	}
	return SalesAgent
}

// RouteAfterSupportTool sends an open escalation to the approval gate and a
// relayed supervisor decision back to the support agent.
func RouteAfterSupportTool(st *statex.ConversationState) string {
	if st.NeedHumanApproval != nil {
		return HumanApproval
	}
	if last, ok := st.LastMessage(); ok && last.IsSupervisorAck() {
		return SupportAgent
	}
	return End
}

// RouteAfterHumanApproval returns to the support agent with the decision.
func RouteAfterHumanApproval(*statex.ConversationState) string {
	return SupportAgent
}
