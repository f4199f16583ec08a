package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
)

// decodeArgs maps the model's JSON arguments onto a typed struct. Malformed
// JSON, unknown fields and type mismatches are validation errors.
func decodeArgs(args string, dst any) error {
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	dec := json.NewDecoder(strings.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid arguments: %v", contractx.ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: invalid arguments: trailing data after JSON object", contractx.ErrValidation)
	}
	return nil
}

// normalizeArguments is the tools node arguments handler.
func normalizeArguments(_ context.Context, _ string, args string) (string, error) {
	if strings.TrimSpace(args) == "" {
		return "{}", nil
	}
	return args, nil
}

func requireString(field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s is required", contractx.ErrValidation, field)
	}
	return trimmed, nil
}
