package nodes

import (
	"strings"

	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
)

// RunHumanApproval is the only suspension point. With no approval pending it
// passes through; with one pending and no resume value it interrupts; on
// resume it records the supervisor decision and clears the request.
func RunHumanApproval(in Input) Output {
	req := in.State.NeedHumanApproval
	if req == nil {
		return Output{}
	}

	if in.Resume == nil {
		return Output{Interrupt: &statex.Interrupt{
			Node:       HumanApproval,
			Question:   ApprovalQuestion,
			Severity:   req.Severity,
			Summary:    req.Summary,
			ToolCallID: req.ToolCallID,
		}}
	}

	decision := strings.TrimSpace(*in.Resume)
	return Output{Delta: statex.Delta{
		Messages:           []statex.Message{statex.SupervisorMessage(decision)},
		SetApproval:        true,
		Approval:           nil,
		SupervisorResponse: &decision,
	}}
}
