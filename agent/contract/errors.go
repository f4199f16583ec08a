package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrUnknownTool = errors.New("unknown tool")
	ErrToolFault   = errors.New("tool execution fault")

	ErrInvalidSession      = errors.New("conversation id is empty")
	ErrInvalidMessage      = errors.New("message is empty")
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrNothingPending      = errors.New("no approval is pending")
	ErrApprovalPending     = errors.New("conversation is awaiting supervisor approval")
	ErrMaxSteps            = errors.New("run exceeded max steps")
)
