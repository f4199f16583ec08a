package specialist

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
)

func toSchemaMessages(msgs []statex.Message) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(msgs))
	for i, msg := range msgs {
		switch msg.Kind {
		case statex.KindUser:
			out = append(out, schema.UserMessage(msg.Content))
		case statex.KindAssistant:
			calls, err := toSchemaToolCalls(msg.ToolCalls)
			if err != nil {
				return nil, err
			}
			out = append(out, schema.AssistantMessage(msg.Content, calls))
		case statex.KindTool:
			out = append(out, schema.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			return nil, fmt.Errorf("%w: message %d has kind %q", contractx.ErrInvalidMessage, i, msg.Kind)
		}
	}
	return out, nil
}

func toSchemaToolCalls(calls []statex.ToolCall) ([]schema.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]schema.ToolCall, 0, len(calls))
	for _, call := range calls {
		args := "{}"
		switch {
		case call.RawArgs != "":
			args = call.RawArgs
		case len(call.Args) > 0:
			raw, err := json.Marshal(call.Args)
			if err != nil {
				return nil, fmt.Errorf("%w: encode args of tool=%s: %v", contractx.ErrInvalidMessage, call.Name, err)
			}
			args = string(raw)
		}
		out = append(out, schema.ToolCall{
			ID:   call.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      call.Name,
				Arguments: args,
			},
		})
	}
	return out, nil
}

// toTurn maps a model reply onto an assistant turn. Tool names and arguments
// are passed through as sent; the tool gateway answers calls it cannot run.
func toTurn(msg *schema.Message) (contractx.AssistantTurn, error) {
	if msg == nil {
		return contractx.AssistantTurn{}, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
	}

	turn := contractx.AssistantTurn{Content: msg.Content}
	for _, call := range msg.ToolCalls {
		tc := statex.ToolCall{
			ID:   strings.TrimSpace(call.ID),
			Name: strings.TrimSpace(call.Function.Name),
		}
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}

		args := map[string]any{}
		raw := strings.TrimSpace(call.Function.Arguments)
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				args = nil
				tc.RawArgs = raw
			}
		}
		tc.Args = args
		turn.ToolCalls = append(turn.ToolCalls, tc)
	}
	return turn, nil
}
