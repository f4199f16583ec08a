package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
)

const maxStepsNotice = "Error: the run stopped before this tool call was executed."

// run invokes the compiled dialog graph over st. The graph yields at the
// approval gate by routing to END once the conversation awaits approval;
// a resume value re-enters the graph at human_approval.
func (o *Orchestrator) run(ctx context.Context, st *statex.ConversationState, resume *string) error {
	rs := &runState{
		st:     st,
		scope:  contractx.Scope{ConversationID: st.ConversationID, UserID: st.UserID},
		resume: resume,
	}

	_, err := o.graph.Invoke(withRunState(ctx, rs), &step{})
	if err == nil {
		return nil
	}
	if errors.Is(err, compose.ErrExceedMaxSteps) {
		closeOpenToolCalls(st)
		return fmt.Errorf("%w: limit=%d", contractx.ErrMaxSteps, o.maxSteps)
	}
	return err
}

// closeOpenToolCalls answers tool calls left without results when the step
// cap cut the run between an agent and its tools.
func closeOpenToolCalls(st *statex.ConversationState) {
	last, ok := st.LastMessage()
	if !ok || !last.HasToolCalls() {
		return
	}
	msgs := make([]statex.Message, 0, len(last.ToolCalls))
	for _, call := range last.ToolCalls {
		msgs = append(msgs, statex.ToolErrorMessage(call.ID, call.Name, maxStepsNotice))
	}
	_ = st.Apply(statex.AppendMessages(msgs...))
}
