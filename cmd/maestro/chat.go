package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/Laisky/zap"
	"github.com/google/uuid"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

// Chat commands recognized at the prompt.
const (
	chatExit  = "/exit"
	chatReset = "/reset"
	chatTrace = "/trace"
)

// runChat reads utterances line by line and keeps the last exchanges as
// history. A failed turn is reported and left out of the history.
func runChat(ctx context.Context, a *app, args []string, std stdio) int {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(std.err)
	showTrace := fs.Bool("trace", false, "print the call trace after each answer")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	agent, err := a.orchestrator(ctx)
	if err != nil {
		fmt.Fprintf(std.err, "maestro: %v\n", err)
		return exitFailure
	}

	var history domain.History
	scanner := bufio.NewScanner(std.in)
	fmt.Fprintf(std.out, "%s ready. %s clears history, %s toggles traces, %s quits.\n",
		agent.Name(), chatReset, chatTrace, chatExit)

	for {
		fmt.Fprint(std.out, "> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case chatExit:
			return exitOK
		case chatReset:
			history = domain.History{}
			fmt.Fprintln(std.out, "history cleared")
			continue
		case chatTrace:
			*showTrace = !*showTrace
			continue
		}

		result, err := a.turn(ctx, agent, input, history)
		if result != nil && *showTrace {
			fmt.Fprintf(std.out, "trace: %s\n", result.Trace)
		}
		if err != nil {
			if ctx.Err() != nil {
				return exitFailure
			}
			fmt.Fprintf(std.out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(std.out, result.Answer)
		history = history.AppendExchange(input, result.Answer)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(std.err, "maestro: read input: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// runAsk answers the utterance given on the command line.
func runAsk(ctx context.Context, a *app, args []string, std stdio) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(std.err)
	showTrace := fs.Bool("trace", false, "print the call trace")
	asJSON := fs.Bool("json", false, "print the whole turn result as JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	input := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if input == "" {
		fmt.Fprintln(std.err, "usage: maestro ask [-trace] [-json] <utterance>")
		return exitUsage
	}

	agent, err := a.orchestrator(ctx)
	if err != nil {
		fmt.Fprintf(std.err, "maestro: %v\n", err)
		return exitFailure
	}

	result, turnErr := a.turn(ctx, agent, input, domain.History{})
	if *asJSON && result != nil {
		enc := json.NewEncoder(std.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(std.err, "maestro: %v\n", err)
			return exitFailure
		}
	} else if result != nil {
		if *showTrace {
			fmt.Fprintf(std.out, "trace: %s\n", result.Trace)
		}
		if result.Answer != "" {
			fmt.Fprintln(std.out, result.Answer)
		}
	}
	if turnErr != nil {
		fmt.Fprintf(std.err, "maestro: %v\n", turnErr)
		return exitFailure
	}
	return exitOK
}

// turn runs one user turn under the configured deadline.
func (a *app) turn(ctx context.Context, agent ports.Agent, input string, history domain.History) (*domain.TurnResult, error) {
	if a.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.TurnTimeout)
		defer cancel()
	}

	logger := a.logger.With(zap.String("turn_id", uuid.NewString()))
	result, err := agent.Run(ctx, ports.AgentRequest{
		Input:   input,
		History: history,
		Today:   a.today(),
	})

	switch {
	case err == nil:
		logger.Info("turn completed",
			zap.Int("steps", len(result.Trace)),
			zap.Int64("tokens", result.Usage.Tokens),
			zap.Int64("calls", result.Usage.Calls))
	case errors.Is(err, domain.ErrRoundLimitExceeded), errors.Is(err, domain.ErrBudgetExceeded):
		logger.Warn("turn stopped", zap.Error(err))
	default:
		logger.Error("turn failed", zap.Error(err))
	}
	return result, err
}
