package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConversationState is the source of truth for one conversation.
// - Messages: append-only transcript
// - DialogState: LIFO stack of dialog modes, top is the active agent
// - NeedHumanApproval: pending escalation consumed by the approval gate
type ConversationState struct {
	ConversationID string `json:"conversation_id"`
	UserID         *int   `json:"user_id,omitempty"`

	Messages           []Message          `json:"messages"`
	DialogState        []DialogMode       `json:"dialog_state"`
	NeedHumanApproval  *EscalationRequest `json:"need_human_approval,omitempty"`
	SupervisorResponse *string            `json:"supervisor_response,omitempty"`

	// Run bookkeeping
	Status    RunStatus  `json:"status"`
	Pending   *Interrupt `json:"pending,omitempty"`
	LastError string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DialogMode string

const (
	ModeSales   DialogMode = "sales_rep"
	ModeSupport DialogMode = "customer_support"
)

// DialogPop is the stack directive that removes the top mode.
const DialogPop = "pop"

func (m DialogMode) Valid() bool {
	return m == ModeSales || m == ModeSupport
}

type Severity string

const (
	SeverityLow     Severity = "low"
	SeverityMedium  Severity = "medium"
	SeverityHigh    Severity = "high"
	SeverityUnknown Severity = "unknown"
)

func ParseSeverity(raw string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityLow:
		return SeverityLow
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	default:
		return SeverityUnknown
	}
}

type EscalationRequest struct {
	ToolCallID string   `json:"tool_call_id"`
	Severity   Severity `json:"severity"`
	Summary    string   `json:"summary"`
}

type RunStatus string

const (
	StatusIdle             RunStatus = "idle"
	StatusAwaitingApproval RunStatus = "awaiting_approval"
)

// Interrupt is what a suspended run surfaces to the caller.
type Interrupt struct {
	Node       string   `json:"node"`
	Question   string   `json:"question"`
	Severity   Severity `json:"severity"`
	Summary    string   `json:"summary"`
	ToolCallID string   `json:"tool_call_id,omitempty"`
}

var (
	ErrNilState          = errors.New("conversation state is nil")
	ErrInvalidDialogMode = errors.New("invalid dialog mode")
	ErrStateCorrupt      = errors.New("conversation state corrupt")
)

func NewConversationState(conversationID string, now time.Time) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		Messages:       make([]Message, 0, 8),
		DialogState:    make([]DialogMode, 0, 2),
		Status:         StatusIdle,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
}

func (s *ConversationState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

/* ------------------------------- Delta merge ------------------------------ */

// Delta is the partial update a node produces. Zero-valued fields leave the
// corresponding state untouched.
type Delta struct {
	Messages []Message

	// Dialog is a mode label to push, DialogPop, or empty for no change.
	Dialog string

	// SetApproval applies Approval with last-write-wins; a nil Approval clears it.
	SetApproval bool
	Approval    *EscalationRequest

	SupervisorResponse *string
}

func (d Delta) IsEmpty() bool {
	return len(d.Messages) == 0 && d.Dialog == "" && !d.SetApproval && d.SupervisorResponse == nil
}

func PushDialog(mode DialogMode) Delta {
	return Delta{Dialog: string(mode)}
}

func PopDialog() Delta {
	return Delta{Dialog: DialogPop}
}

func AppendMessages(msgs ...Message) Delta {
	return Delta{Messages: msgs}
}

// Apply merges a delta through the per-field reducers. It validates before
// mutating so a rejected delta leaves the state unchanged.
func (s *ConversationState) Apply(d Delta) error {
	if s == nil {
		return ErrNilState
	}

	dialog := strings.TrimSpace(d.Dialog)
	if dialog != "" && dialog != DialogPop && !DialogMode(dialog).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDialogMode, dialog)
	}

	for _, msg := range d.Messages {
		s.Messages = append(s.Messages, msg.clone())
	}

	switch {
	case dialog == "":
	case dialog == DialogPop:
		// popping an empty stack is a no-op
		if n := len(s.DialogState); n > 0 {
			s.DialogState = s.DialogState[:n-1]
		}
	default:
		s.DialogState = append(s.DialogState, DialogMode(dialog))
	}

	if d.SetApproval {
		if d.Approval == nil {
			s.NeedHumanApproval = nil
		} else {
			approval := *d.Approval
			s.NeedHumanApproval = &approval
		}
	}

	if d.SupervisorResponse != nil {
		resp := *d.SupervisorResponse
		s.SupervisorResponse = &resp
	}
	return nil
}

/* --------------------------------- Queries -------------------------------- */

// TopDialog peeks at the top of the dialog stack.
func (s *ConversationState) TopDialog() (DialogMode, bool) {
	if s == nil || len(s.DialogState) == 0 {
		return "", false
	}
	return s.DialogState[len(s.DialogState)-1], true
}

// Mode is the active dialog mode; an empty stack means sales.
func (s *ConversationState) Mode() DialogMode {
	if top, ok := s.TopDialog(); ok {
		return top
	}
	return ModeSales
}

func (s *ConversationState) LastMessage() (Message, bool) {
	if s == nil || len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func (s *ConversationState) AwaitingApproval() bool {
	return s != nil && s.Status == StatusAwaitingApproval
}

// Clone returns a deep copy safe to hand to callers.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	if s.UserID != nil {
		uid := *s.UserID
		out.UserID = &uid
	}
	out.Messages = make([]Message, len(s.Messages))
	for i, msg := range s.Messages {
		out.Messages[i] = msg.clone()
	}
	out.DialogState = append(make([]DialogMode, 0, len(s.DialogState)), s.DialogState...)
	if s.NeedHumanApproval != nil {
		approval := *s.NeedHumanApproval
		out.NeedHumanApproval = &approval
	}
	if s.SupervisorResponse != nil {
		resp := *s.SupervisorResponse
		out.SupervisorResponse = &resp
	}
	if s.Pending != nil {
		pending := *s.Pending
		out.Pending = &pending
	}
	return &out
}

func (s *ConversationState) Validate() error {
	if s == nil {
		return ErrNilState
	}
	if strings.TrimSpace(s.ConversationID) == "" {
		return ErrInvalidSession
	}
	for _, mode := range s.DialogState {
		if !mode.Valid() {
			return fmt.Errorf("%w: dialog stack has %q", ErrStateCorrupt, mode)
		}
	}
	switch s.Status {
	case StatusIdle, "":
		if s.Pending != nil {
			return fmt.Errorf("%w: idle conversation has a pending interrupt", ErrStateCorrupt)
		}
	case StatusAwaitingApproval:
		if s.Pending == nil {
			return fmt.Errorf("%w: awaiting approval without a pending interrupt", ErrStateCorrupt)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrStateCorrupt, s.Status)
	}
	for i, msg := range s.Messages {
		switch msg.Kind {
		case KindUser, KindAssistant:
		case KindTool:
			if strings.TrimSpace(msg.ToolCallID) == "" {
				return fmt.Errorf("%w: tool message %d has no call id", ErrStateCorrupt, i)
			}
		default:
			return fmt.Errorf("%w: message %d has kind %q", ErrStateCorrupt, i, msg.Kind)
		}
	}
	return nil
}
