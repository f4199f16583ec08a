package api

import (
	"encoding/json"
	"errors"
	"net/http"

	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	logx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Warn().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps session errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, contractx.ErrUnknownConversation):
		return http.StatusNotFound
	case errors.Is(err, contractx.ErrApprovalPending), errors.Is(err, contractx.ErrNothingPending):
		return http.StatusConflict
	case errors.Is(err, contractx.ErrInvalidSession),
		errors.Is(err, contractx.ErrInvalidMessage),
		errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logx.Error().Err(err).Msg("conversation request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
