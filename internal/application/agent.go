package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Laisky/zap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

var _ ports.Agent = (*Agent)(nil)

// AgentConfig describes one LLM-driven agent: its identity, its system
// prompt and the tools it may call.
type AgentConfig struct {
	Name        string
	Description string
	Prompt      string

	Model ports.ChatModel
	Tools *tools.Registry

	// RoundLimit caps model requests per turn. Zero selects
	// DefaultRoundLimit.
	RoundLimit int

	// MaxDepth is the deepest delegation level at which this agent may
	// still run. Zero selects DefaultMaxDepth.
	MaxDepth int
}

// AgentOption configures optional collaborators of an Agent.
type AgentOption func(*Agent)

// WithLogger sets the logger. The agent logs under a child named "agent".
func WithLogger(logger *zap.Logger) AgentOption {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger.Named("agent").With(zap.String("agent", a.name))
		}
	}
}

// WithMetrics records round, tool and turn metrics into collector.
func WithMetrics(collector ports.MetricsCollector) AgentOption {
	return func(a *Agent) { a.metrics = collector }
}

// WithTemperature pins the sampling temperature of every round.
func WithTemperature(t float64) AgentOption {
	return func(a *Agent) { a.temperature = &t }
}

// WithMaxTokens caps the length of each model reply.
func WithMaxTokens(n int) AgentOption {
	return func(a *Agent) { a.maxTokens = n }
}

// Agent runs the round loop shared by the orchestrator and every
// specialist: ask the model, execute the tools it selects, feed the
// results back, and stop at the first plain-text reply or when the round
// budget is spent. Agents are stateless between turns and safe for
// concurrent use.
type Agent struct {
	name        string
	description string
	prompt      string
	model       ports.ChatModel
	tools       *tools.Registry
	roundLimit  int
	maxDepth    int
	temperature *float64
	maxTokens   int

	logger  *zap.Logger
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewAgent validates cfg and builds an Agent.
func NewAgent(cfg AgentConfig, opts ...AgentOption) (*Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent: %w: name", domain.ErrEmptyValue)
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent %s: model is required", cfg.Name)
	}
	if cfg.Tools == nil {
		cfg.Tools, _ = tools.NewRegistry()
	}
	if cfg.RoundLimit == 0 {
		cfg.RoundLimit = DefaultRoundLimit
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.RoundLimit < 0 || cfg.MaxDepth < 0 {
		return nil, fmt.Errorf("agent %s: %w: negative limit", cfg.Name, domain.ErrInvalidConfiguration)
	}

	a := &Agent{
		name:        cfg.Name,
		description: cfg.Description,
		prompt:      cfg.Prompt,
		model:       cfg.Model,
		tools:       cfg.Tools,
		roundLimit:  cfg.RoundLimit,
		maxDepth:    cfg.MaxDepth,
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("maestro-agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the agent name used in traces.
func (a *Agent) Name() string { return a.name }

// Description returns the one-line summary shown to a parent agent.
func (a *Agent) Description() string { return a.description }

// Run executes one turn. The conversation sent to the model is the
// caller's history followed by req.Input; neither is modified.
//
// A model or transport error ends the turn with that error. Tool failures
// and rejected calls do not: they are fed back to the model as
// {"error": ...} results and cost a round. Exhausting the round budget
// returns the partial result together with a *domain.RoundLimitError.
func (a *Agent) Run(ctx context.Context, req ports.AgentRequest) (*domain.TurnResult, error) {
	ctx, span := a.tracer.Start(ctx, "Agent.Run",
		trace.WithAttributes(
			attribute.String("agent.name", a.name),
			attribute.Int("agent.depth", req.Depth),
			attribute.Int("agent.round_limit", a.roundLimit),
		),
	)
	defer span.End()

	start := time.Now()
	result := &domain.TurnResult{Agent: a.name, Trace: domain.CallTrace{}}

	err := a.run(ctx, req, result)

	span.SetAttributes(
		attribute.Int("agent.rounds", result.Rounds),
		attribute.Int("agent.trace_length", len(result.Trace)),
		attribute.Int64("agent.tokens", result.Usage.Tokens),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	a.recordTurn(result, time.Since(start), err)
	return result, err
}

func (a *Agent) run(ctx context.Context, req ports.AgentRequest, result *domain.TurnResult) error {
	if req.Depth > a.maxDepth {
		return &domain.DepthExceededError{Agent: a.name, Depth: req.Depth, MaxDepth: a.maxDepth}
	}

	messages := append(req.History.Messages(), domain.UserMessage(req.Input))
	chatReq := ports.ChatRequest{
		System:      a.systemPrompt(req.Today),
		Tools:       a.tools.Definitions(),
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	}
	if a.logger.Core().Enabled(zap.DebugLevel) {
		if n, err := a.model.EstimateTokens(chatReq.System + req.Input); err == nil {
			a.logger.Debug("turn prompt estimated", zap.Int("tokens", n), zap.Int("depth", req.Depth))
		}
	}

	guard := RoundGuardFrom(ctx)
	for round := 1; round <= a.roundLimit; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if guard != nil {
			if err := guard.AllowRound(a.name); err != nil {
				return fmt.Errorf("agent %s round %d: %w", a.name, round, err)
			}
		}

		chatReq.Messages = messages
		resp, err := a.model.Chat(ctx, chatReq)
		result.Rounds = round
		if err != nil {
			return fmt.Errorf("agent %s round %d: %w", a.name, round, err)
		}
		result.Usage = result.Usage.Add(resp.Usage())

		reply := resp.Message
		reply.Role = domain.RoleAssistant
		if !reply.HasToolCalls() {
			result.Answer = reply.Content
			result.Status = domain.StatusCompleted
			return nil
		}

		a.logger.Debug("model requested tools",
			zap.Int("round", round),
			zap.Int("depth", req.Depth),
			zap.Strings("tools", callNames(reply.ToolCalls)),
		)

		for i := range reply.ToolCalls {
			if reply.ToolCalls[i].ID == "" {
				reply.ToolCalls[i].ID = fmt.Sprintf("%s_%d_%d", a.name, round, i)
			}
		}

		messages = append(messages, reply)
		for _, call := range reply.ToolCalls {
			content := a.invoke(ctx, call, req, result)
			messages = append(messages, domain.ToolResultMessage(call.ID, call.Name, content))
		}
	}

	result.Status = domain.StatusRoundLimitExceeded
	return domain.NewRoundLimitError(a.name, a.roundLimit)
}

// invoke dispatches one call and records it in the trace. It returns the
// text fed back to the model.
func (a *Agent) invoke(ctx context.Context, call domain.ToolCall, req ports.AgentRequest, result *domain.TurnResult) string {
	ctx, span := a.tracer.Start(ctx, "Agent.Tool",
		trace.WithAttributes(
			attribute.String("agent.name", a.name),
			attribute.String("tool.name", call.Name),
		),
	)
	defer span.End()

	start := time.Now()
	args, decodeErr := call.DecodeArguments()

	out, err := a.tools.Dispatch(ctx, call, ports.ToolInvocation{Depth: req.Depth, Today: req.Today})
	if err == nil && decodeErr != nil {
		err = &domain.ArgumentError{Tool: call.Name, Problems: []string{decodeErr.Error()}}
	}

	if err != nil {
		toolErr := ports.NewToolError(a.name, call.Name, err)
		span.RecordError(toolErr)
		span.SetStatus(codes.Error, toolErr.Error())
		a.logger.Warn("tool call rejected", zap.String("tool", call.Name), zap.Error(err))
		a.recordTool(call.Name, "rejected", time.Since(start))

		result.Trace = append(result.Trace, domain.CallStep{
			Agent:     a.name,
			Tool:      call.Name,
			Arguments: args,
			Error:     err.Error(),
		})
		return tools.Serialize(tools.ErrorResult(err))
	}

	if d, ok := out.(*Delegation); ok {
		a.recordTool(call.Name, d.status(), time.Since(start))
		return a.mergeDelegation(d, result)
	}

	status := "ok"
	if tools.IsErrorResult(out) {
		status = "error"
		span.SetAttributes(attribute.Bool("tool.error_result", true))
	}
	a.recordTool(call.Name, status, time.Since(start))

	content := tools.Serialize(out)
	result.Trace = append(result.Trace, domain.CallStep{
		Agent:     a.name,
		Tool:      call.Name,
		Arguments: args,
		Result:    content,
	})
	return content
}

// mergeDelegation folds a specialist's turn into the parent's result. A
// specialist that executed no tool, either because it answered directly or
// because every call it made was rejected, still leaves one step naming it,
// so agent-level scoring observes the delegation.
func (a *Agent) mergeDelegation(d *Delegation, result *domain.TurnResult) string {
	var sub domain.CallTrace
	if d.Turn != nil {
		sub = d.Turn.Trace
		result.Usage = result.Usage.Add(d.Turn.Usage)
	}

	result.Trace = append(result.Trace, sub...)
	if len(sub.Executed()) == 0 {
		step := domain.CallStep{Agent: d.Agent}
		if d.Err != nil {
			step.Error = d.Err.Error()
		}
		result.Trace = append(result.Trace, step)
	}

	if d.Err != nil {
		a.logger.Warn("specialist failed", zap.String("specialist", d.Agent), zap.Error(d.Err))
		return tools.Serialize(tools.ErrorResult(d.Err))
	}
	if d.Turn == nil {
		return ""
	}
	return d.Turn.Answer
}

func (a *Agent) systemPrompt(today string) string {
	prompt := strings.TrimSpace(a.prompt)
	if today == "" {
		return prompt
	}
	return prompt + "\n\n### Basic Info\n- 오늘 날짜: " + today
}

func (a *Agent) recordTurn(result *domain.TurnResult, elapsed time.Duration, err error) {
	status := string(result.Status)
	if status == "" {
		status = "error"
	}

	fields := []zap.Field{
		zap.String("status", status),
		zap.Int("rounds", result.Rounds),
		zap.Int64("tokens", result.Usage.Tokens),
		zap.Duration("elapsed", elapsed),
		zap.String("trace", result.Trace.String()),
	}
	if err != nil {
		a.logger.Warn("agent turn failed", append(fields, zap.Error(err))...)
	} else {
		a.logger.Info("agent turn completed", fields...)
	}

	if a.metrics == nil {
		return
	}
	labels := map[string]string{"agent": a.name, "status": status}
	a.metrics.RecordCounter("agent_turns_total", 1, labels)
	a.metrics.RecordLatency("agent_turn", elapsed, map[string]string{"agent": a.name})
	a.metrics.RecordHistogram("agent_rounds", float64(result.Rounds), map[string]string{"agent": a.name})
}

func (a *Agent) recordTool(tool, status string, elapsed time.Duration) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordCounter("tool_invocations_total", 1, map[string]string{
		"agent":  a.name,
		"tool":   tool,
		"status": status,
	})
	a.metrics.RecordLatency("tool_invoke", elapsed, map[string]string{"tool": tool})
}

func callNames(calls []domain.ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}
