package nodes

import (
	"regexp"
	"strings"

	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
)

const (
	routeToolName    = "route_to_support"
	escalateToolName = "escalate_to_human"

	defaultSeverity = "unknown"
	defaultSummary  = "No summary provided"
)

var (
	severityPattern = regexp.MustCompile(`severity='([^']*)'`)
	summaryPattern  = regexp.MustCompile(`summary='(.*)'`)
)

// latestToolResults returns the tool messages appended after the last
// assistant message.
func latestToolResults(st *statex.ConversationState) []statex.Message {
	if st == nil {
		return nil
	}
	i := len(st.Messages)
	for i > 0 && st.Messages[i-1].Kind == statex.KindTool {
		i--
	}
	return st.Messages[i:]
}

// RunAfterSalesTool switches the dialog to support when route_to_support
// succeeded in the latest tool batch.
func RunAfterSalesTool(in Input) Output {
	for _, msg := range latestToolResults(in.State) {
		if msg.ToolName == routeToolName && !msg.IsError {
			return Output{Delta: statex.PushDialog(statex.ModeSupport)}
		}
	}
	return Output{}
}

// RunAfterSupportTool raises an approval request from the latest successful
// escalate_to_human result.
func RunAfterSupportTool(in Input) Output {
	results := latestToolResults(in.State)
	for i := len(results) - 1; i >= 0; i-- {
		msg := results[i]
		if msg.ToolName != escalateToolName || msg.IsError {
			continue
		}
		severity, summary := parseEscalation(msg.Content)
		return Output{Delta: statex.Delta{
			SetApproval: true,
			Approval: &statex.EscalationRequest{
				ToolCallID: msg.ToolCallID,
				Severity:   statex.ParseSeverity(severity),
				Summary:    summary,
			},
		}}
	}
	return Output{}
}

func parseEscalation(content string) (severity, summary string) {
	severity, summary = defaultSeverity, defaultSummary
	if m := severityPattern.FindStringSubmatch(content); m != nil {
		severity = m[1]
	}
	if m := summaryPattern.FindStringSubmatch(content); m != nil {
		summary = m[1]
	}
	return severity, strings.TrimSpace(summary)
}
