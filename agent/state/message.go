package state

import "strings"

type MessageKind string

const (
	KindUser      MessageKind = "user"
	KindAssistant MessageKind = "assistant"
	KindTool      MessageKind = "tool"
)

// SupervisorTag marks human supervisor decisions inside the transcript.
const SupervisorTag = "[SUPERVISOR RESPONSE]"

type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`

	// RawArgs keeps arguments the model sent that are not a JSON object.
	RawArgs string `json:"raw_args,omitempty"`
}

// Message is a tagged union over Kind. Only the fields of the active kind
// are populated. Messages are never mutated once appended.
type Message struct {
	Kind    MessageKind `json:"kind"`
	Content string      `json:"content"`

	// user
	Supervisor bool `json:"supervisor,omitempty"`

	// assistant
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// tool
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

func UserMessage(content string) Message {
	return Message{Kind: KindUser, Content: content}
}

func SupervisorMessage(decision string) Message {
	return Message{
		Kind:       KindUser,
		Content:    SupervisorTag + " " + decision,
		Supervisor: true,
	}
}

func AssistantMessage(content string, calls ...ToolCall) Message {
	msg := Message{Kind: KindAssistant, Content: content}
	if len(calls) > 0 {
		msg.ToolCalls = append([]ToolCall(nil), calls...)
	}
	return msg
}

func ToolMessage(callID, toolName, content string) Message {
	return Message{
		Kind:       KindTool,
		Content:    content,
		ToolCallID: callID,
		ToolName:   toolName,
	}
}

func ToolErrorMessage(callID, toolName, content string) Message {
	msg := ToolMessage(callID, toolName, content)
	msg.IsError = true
	return msg
}

func (m Message) HasToolCalls() bool {
	return m.Kind == KindAssistant && len(m.ToolCalls) > 0
}

// IsSupervisorAck reports whether an assistant message relays a supervisor decision.
func (m Message) IsSupervisorAck() bool {
	return m.Kind == KindAssistant && strings.Contains(m.Content, SupervisorTag)
}

func (m Message) clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			out.ToolCalls[i] = call
			if call.Args != nil {
				out.ToolCalls[i].Args = cloneArgs(call.Args)
			}
		}
	}
	return out
}

func cloneArgs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch tv := v.(type) {
		case map[string]any:
			out[k] = cloneArgs(tv)
		case []any:
			out[k] = append([]any(nil), tv...)
		default:
			out[k] = v
		}
	}
	return out
}
