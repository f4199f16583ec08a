package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
	logx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/logger"
)

type Config struct {
	// Destination receives approval requests through QStash. Empty disables
	// notification.
	Destination string `split_words:"true"`
}

// Publisher is the subset of the QStash client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload any) (string, error)
}

// Request is the payload delivered to the supervisor endpoint.
type Request struct {
	ConversationID string          `json:"conversation_id"`
	Question       string          `json:"question"`
	Severity       statex.Severity `json:"severity"`
	Summary        string          `json:"summary"`
	ToolCallID     string          `json:"tool_call_id,omitempty"`
	RequestedAt    time.Time       `json:"requested_at"`
}

// Decision is what a supervisor endpoint posts back to resume a run.
type Decision struct {
	ConversationID string `json:"conversation_id"`
	Decision       string `json:"decision"`
}

type QStashNotifier struct {
	publisher   Publisher
	destination string
	now         func() time.Time
}

var _ contractx.ApprovalNotifier = (*QStashNotifier)(nil)

func NewQStashNotifier(publisher Publisher, destination string) (*QStashNotifier, error) {
	if publisher == nil {
		return nil, errors.New("qstash publisher is required")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, errors.New("approval destination is required")
	}
	return &QStashNotifier{publisher: publisher, destination: destination, now: time.Now}, nil
}

func (n *QStashNotifier) NotifyApproval(ctx context.Context, conversationID string, pending statex.Interrupt) error {
	messageID, err := n.publisher.Publish(ctx, n.destination, Request{
		ConversationID: conversationID,
		Question:       pending.Question,
		Severity:       pending.Severity,
		Summary:        pending.Summary,
		ToolCallID:     pending.ToolCallID,
		RequestedAt:    n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish approval request: %w", err)
	}

	logx.Info().
		Str("conversation_id", conversationID).
		Str("message_id", messageID).
		Str("severity", string(pending.Severity)).
		Msg("approval request published")
	return nil
}
