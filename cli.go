package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	orchestratorx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/agents/orchestrator"
	statex "github.com/tanpawarit/Chative-Shopping-Assistant/agent/state"
)

// turnRunner is the part of the orchestrator the REPL drives.
type turnRunner interface {
	StartOrContinue(ctx context.Context, conversationID, text string, opts ...orchestratorx.TurnOption) (orchestratorx.TurnResult, error)
	Resume(ctx context.Context, conversationID, decision string) (orchestratorx.TurnResult, error)
}

func runCLI(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	return repl(ctx, a.orchestrator, uuid.NewString(), in, out)
}

// repl reads customer lines until EOF or "quit". A suspended run asks for
// the supervisor decision before the customer may continue.
func repl(ctx context.Context, runner turnRunner, conversationID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintf(out, "conversation %s (type \"quit\" to exit)\n", conversationID)

	for {
		fmt.Fprint(out, "you> ")
		line, ok := readLine(scanner)
		if !ok {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			return nil
		}

		res, err := runner.StartOrContinue(ctx, conversationID, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printTurn(out, res)

		for res.PendingApproval != nil {
			p := res.PendingApproval
			fmt.Fprintf(out, "%s (severity=%s): %s\nsupervisor> ", p.Question, p.Severity, p.Summary)
			decision, ok := readLine(scanner)
			if !ok {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			if decision == "" {
				continue
			}
			res, err = runner.Resume(ctx, conversationID, decision)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				if errors.Is(err, context.Canceled) {
					return err
				}
				break
			}
			printTurn(out, res)
		}
	}
}

func readLine(scanner *bufio.Scanner) (string, bool) {
	if !scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(scanner.Text()), true
}

func printTurn(out io.Writer, res orchestratorx.TurnResult) {
	for _, msg := range res.Messages {
		switch msg.Kind {
		case statex.KindAssistant:
			for _, call := range msg.ToolCalls {
				fmt.Fprintf(out, "  [%s] calling %s\n", res.Mode, call.Name)
			}
			if content := strings.TrimSpace(msg.Content); content != "" {
				fmt.Fprintf(out, "%s> %s\n", res.Mode, content)
			}
		case statex.KindTool:
			if msg.IsError {
				fmt.Fprintf(out, "  [%s] %s failed\n", res.Mode, msg.ToolName)
			}
		}
	}
}
