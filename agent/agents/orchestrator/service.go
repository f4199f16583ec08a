package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	nodex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/nodes"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
	logx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/logger"
	metricsx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/metrics"
)

const defaultMaxSteps = 25

const (
	runKindTurn   = "turn"
	runKindResume = "resume"

	outcomeCompleted = "completed"
	outcomeSuspended = "suspended"
	outcomeFailed    = "failed"
)

type Config struct {
	// MaxSteps caps the node steps of a single run.
	MaxSteps int

	// DefaultUserID is bound to conversations that never supplied one.
	DefaultUserID *int
}

// TurnResult is what one run hands back to the caller.
type TurnResult struct {
	ConversationID  string            `json:"conversation_id"`
	Messages        []statex.Message  `json:"messages"`
	Mode            statex.DialogMode `json:"mode"`
	PendingApproval *statex.Interrupt `json:"pending_approval,omitempty"`
}

type TurnOption func(*turnOptions)

type turnOptions struct {
	userID *int
}

// WithUserID binds the conversation to a customer for history queries.
func WithUserID(id int) TurnOption {
	return func(o *turnOptions) {
		o.userID = &id
	}
}

type Orchestrator struct {
	store    statex.Store
	models   contractx.Registry
	tools    contractx.ToolGateway
	notifier contractx.ApprovalNotifier

	graph compose.Runnable[*step, *step]
	locks *keyedMutex

	maxSteps      int
	defaultUserID *int

	now func() time.Time
}

func New(
	store statex.Store,
	models contractx.Registry,
	tools contractx.ToolGateway,
	notifier contractx.ApprovalNotifier,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if models == nil {
		return nil, errors.New("model registry is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}

	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	o := &Orchestrator{
		store:    store,
		models:   models,
		tools:    tools,
		notifier: notifier,
		locks:    newKeyedMutex(),
		maxSteps: maxSteps,
		now:      time.Now,
	}
	if cfg.DefaultUserID != nil {
		uid := *cfg.DefaultUserID
		o.defaultUserID = &uid
	}

	graph, err := o.compileDialogGraph(context.Background(), o.dialogNodes())
	if err != nil {
		return nil, fmt.Errorf("compile dialog graph: %w", err)
	}
	o.graph = graph

	return o, nil
}

// StartOrContinue appends a user message and runs the dialog graph until the
// turn ends or the run suspends for approval.
func (o *Orchestrator) StartOrContinue(ctx context.Context, conversationID, text string, opts ...TurnOption) (TurnResult, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return TurnResult{}, contractx.ErrInvalidSession
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, contractx.ErrInvalidMessage
	}

	var options turnOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	unlock := o.locks.Lock(id)
	defer unlock()

	st, err := o.load(ctx, id, true)
	if err != nil {
		return TurnResult{}, err
	}
	if st.AwaitingApproval() {
		return TurnResult{}, fmt.Errorf("%w: conversation=%s", contractx.ErrApprovalPending, id)
	}

	switch {
	case options.userID != nil:
		uid := *options.userID
		st.UserID = &uid
	case st.UserID == nil && o.defaultUserID != nil:
		uid := *o.defaultUserID
		st.UserID = &uid
	}

	if err := st.Apply(statex.AppendMessages(statex.UserMessage(text))); err != nil {
		return TurnResult{}, err
	}
	return o.execute(ctx, runKindTurn, st, nil)
}

// Resume feeds the supervisor decision into a suspended conversation and
// continues the run from the approval gate.
func (o *Orchestrator) Resume(ctx context.Context, conversationID, decision string) (TurnResult, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return TurnResult{}, contractx.ErrInvalidSession
	}
	decision = strings.TrimSpace(decision)
	if decision == "" {
		return TurnResult{}, contractx.ErrInvalidMessage
	}

	unlock := o.locks.Lock(id)
	defer unlock()

	st, err := o.load(ctx, id, false)
	if err != nil {
		return TurnResult{}, err
	}
	if !st.AwaitingApproval() {
		return TurnResult{}, fmt.Errorf("%w: conversation=%s", contractx.ErrNothingPending, id)
	}

	st.Status = statex.StatusIdle
	st.Pending = nil
	return o.execute(ctx, runKindResume, st, &decision)
}

// Snapshot returns a copy of the stored conversation.
func (o *Orchestrator) Snapshot(ctx context.Context, conversationID string) (*statex.ConversationState, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return nil, contractx.ErrInvalidSession
	}
	st, err := o.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

func (o *Orchestrator) load(ctx context.Context, id string, create bool) (*statex.ConversationState, error) {
	st, err := o.store.Load(ctx, id)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, statex.ErrStateNotFound) {
		return nil, fmt.Errorf("load conversation=%s: %w", id, err)
	}
	if !create {
		return nil, fmt.Errorf("%w: %s", contractx.ErrUnknownConversation, id)
	}
	return statex.NewConversationState(id, o.now()), nil
}

func (o *Orchestrator) execute(
	ctx context.Context,
	kind string,
	st *statex.ConversationState,
	resume *string,
) (TurnResult, error) {
	began := time.Now()
	mark := len(st.Messages)

	runErr := o.run(ctx, st, resume)

	outcome := outcomeCompleted
	switch {
	case runErr != nil:
		outcome = outcomeFailed
		st.LastError = runErr.Error()
		reopenApproval(st)
	case st.AwaitingApproval():
		outcome = outcomeSuspended
		st.LastError = ""
	default:
		st.LastError = ""
	}
	st.Touch(o.now())

	// partial progress is kept even when the caller's context is gone
	if err := o.store.Save(context.WithoutCancel(ctx), st); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("save conversation=%s: %w", st.ConversationID, err))
		outcome = outcomeFailed
	}

	metricsx.RunsTotal.WithLabelValues(kind, outcome).Inc()
	metricsx.RunDuration.WithLabelValues(kind).Observe(time.Since(began).Seconds())

	if runErr != nil {
		logx.Error().
			Err(runErr).
			Str("conversation_id", st.ConversationID).
			Str("kind", kind).
			Msg("dialog run failed")
		return TurnResult{}, runErr
	}

	result := TurnResult{
		ConversationID: st.ConversationID,
		Messages:       append([]statex.Message(nil), st.Messages[mark:]...),
		Mode:           st.Mode(),
	}
	if st.Pending != nil {
		pending := *st.Pending
		result.PendingApproval = &pending

		if err := o.notifier.NotifyApproval(ctx, st.ConversationID, pending); err != nil {
			logx.Warn().
				Err(err).
				Str("conversation_id", st.ConversationID).
				Msg("approval notification failed")
		}
	}

	logx.Info().
		Str("conversation_id", st.ConversationID).
		Str("kind", kind).
		Str("outcome", outcome).
		Str("mode", string(result.Mode)).
		Int("new_messages", len(result.Messages)).
		Msg("dialog run finished")

	return result, nil
}

// reopenApproval puts a conversation whose approval request is still open
// back into the suspended status, so a failed resume can be retried.
func reopenApproval(st *statex.ConversationState) {
	if st.AwaitingApproval() || st.NeedHumanApproval == nil {
		return
	}
	out := nodex.RunHumanApproval(nodex.Input{State: st})
	if out.Interrupt == nil {
		return
	}
	pending := *out.Interrupt
	st.Status = statex.StatusAwaitingApproval
	st.Pending = &pending
}

type noopNotifier struct{}

func (noopNotifier) NotifyApproval(context.Context, string, statex.Interrupt) error {
	return nil
}
