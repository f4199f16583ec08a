package tool

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
)

type routeArgs struct {
	Reason string `json:"reason"`
}

func runRouteToSupport(ctx context.Context, _ contractx.Scope, args string) (any, error) {
	var in routeArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	reason, err := requireString("reason", in.Reason)
	if err != nil {
		return nil, err
	}
	return "Routing to customer support: " + reason, nil
}

type escalateArgs struct {
	Severity string `json:"severity"`
	Summary  string `json:"summary"`
}

// runEscalateToHuman emits severity='..' summary='..' tokens that the
// after-support step parses back out.
func runEscalateToHuman(ctx context.Context, _ contractx.Scope, args string) (any, error) {
	var in escalateArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	severity, err := requireString("severity", in.Severity)
	if err != nil {
		return nil, err
	}
	summary, err := requireString("summary", in.Summary)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("Escalated to a human supervisor with severity='%s' summary='%s'",
		strings.ToLower(severity), strings.ReplaceAll(summary, "\n", " ")), nil
}
