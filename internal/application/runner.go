package application

import (
	"context"
	"errors"
	"time"

	"github.com/Laisky/zap"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

// CaseResult is the outcome of one evaluation case.
type CaseResult struct {
	Index  int                   `json:"index"`
	Case   domain.EvaluationCase `json:"case"`
	Answer string                `json:"answer"`
	Status domain.TurnStatus     `json:"status"`

	// Trace is the executed call trace the scores were computed from.
	Trace domain.CallTrace `json:"trace"`

	// Error is set when the turn ended with an error. The trace recorded
	// up to that point is still scored.
	Error string `json:"error,omitempty"`

	Strict  domain.ScoreResult `json:"strict"`
	Lenient domain.ScoreResult `json:"lenient"`

	Usage   domain.Usage  `json:"usage"`
	Elapsed time.Duration `json:"elapsed"`
}

// Score returns the result for mode.
func (r CaseResult) Score(mode domain.ScoringMode) domain.ScoreResult {
	if mode == domain.ScoringLenient {
		return r.Lenient
	}
	return r.Strict
}

// Runner replays evaluation cases through an agent, each case in a fresh
// turn with empty history.
type Runner struct {
	agent       ports.Agent
	concurrency int
	turnTimeout time.Duration
	location    *time.Location
	now         func() time.Time
	metrics     ports.MetricsCollector
	logger      *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency runs up to n cases at once. Values below one mean one.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) { r.concurrency = max(n, 1) }
}

// WithTurnTimeout bounds each case's turn.
func WithTurnTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.turnTimeout = d }
}

// WithClock sets the clock and zone the current-date context is derived
// from.
func WithClock(now func() time.Time, loc *time.Location) RunnerOption {
	return func(r *Runner) {
		r.now = now
		if loc != nil {
			r.location = loc
		}
	}
}

// WithRunnerMetrics records per-case counters and run accuracy gauges.
func WithRunnerMetrics(collector ports.MetricsCollector) RunnerOption {
	return func(r *Runner) { r.metrics = collector }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger.Named("eval")
		}
	}
}

// NewRunner creates a Runner driving agent.
func NewRunner(agent ports.Agent, opts ...RunnerOption) *Runner {
	r := &Runner{
		agent:       agent,
		concurrency: 1,
		location:    time.Local,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates cases and returns the report with results in case order.
// A failing turn is recorded in its CaseResult and does not stop the run;
// only cancellation of ctx does.
func (r *Runner) Run(ctx context.Context, cases []domain.EvaluationCase) (*RunReport, error) {
	report := &RunReport{
		ID:        uuid.NewString(),
		StartedAt: r.now(),
		Results:   make([]CaseResult, len(cases)),
	}
	logger := r.logger.With(zap.String("run_id", report.ID))
	logger.Info("evaluation started", zap.Int("cases", len(cases)), zap.Int("concurrency", r.concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, c := range cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Results[i] = r.runCase(gctx, i, c, logger)
			return nil
		})
	}

	err := g.Wait()
	report.Elapsed = time.Since(report.StartedAt)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return report, err
	}

	r.recordRun(report)
	logger.Info("evaluation finished",
		zap.Duration("elapsed", report.Elapsed),
		zap.Float64("strict_function_accuracy", report.Summary(domain.ScoringStrict).FunctionAccuracy),
		zap.Float64("lenient_function_accuracy", report.Summary(domain.ScoringLenient).FunctionAccuracy),
	)
	return report, nil
}

func (r *Runner) runCase(ctx context.Context, index int, c domain.EvaluationCase, logger *zap.Logger) CaseResult {
	if r.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.turnTimeout)
		defer cancel()
	}

	start := time.Now()
	turn, err := r.agent.Run(ctx, ports.AgentRequest{
		Input: c.Query,
		Today: domain.FormatToday(r.now().In(r.location)),
	})

	result := CaseResult{Index: index, Case: c, Elapsed: time.Since(start)}
	if turn != nil {
		result.Answer = turn.Answer
		result.Status = turn.Status
		result.Trace = turn.Trace.Executed()
		result.Usage = turn.Usage
	}
	if err != nil {
		result.Error = err.Error()
	}
	result.Strict = domain.Score(c, result.Trace, domain.ScoringStrict)
	result.Lenient = domain.Score(c, result.Trace, domain.ScoringLenient)

	status := "imperfect"
	switch {
	case err != nil && errors.Is(err, domain.ErrRoundLimitExceeded):
		status = "round_limit"
	case err != nil:
		status = "error"
	case result.Strict.Perfect():
		status = "perfect"
	}
	if r.metrics != nil {
		r.metrics.RecordCounter("eval_cases_total", 1, map[string]string{"status": status})
		r.metrics.RecordLatency("eval_case", result.Elapsed, map[string]string{"status": status})
	}

	fields := []zap.Field{
		zap.Int("case", index),
		zap.String("description", c.Description),
		zap.String("status", status),
		zap.String("strict", result.Strict.String()),
		zap.String("lenient", result.Lenient.String()),
		zap.String("trace", result.Trace.String()),
	}
	if err != nil {
		logger.Warn("case failed", append(fields, zap.Error(err))...)
	} else {
		logger.Info("case scored", fields...)
	}
	return result
}

func (r *Runner) recordRun(report *RunReport) {
	if r.metrics == nil {
		return
	}
	for _, mode := range []domain.ScoringMode{domain.ScoringStrict, domain.ScoringLenient} {
		s := report.Summary(mode)
		r.metrics.RecordGauge("eval_accuracy", s.AgentAccuracy, map[string]string{"mode": string(mode), "level": "agent"})
		r.metrics.RecordGauge("eval_accuracy", s.FunctionAccuracy, map[string]string{"mode": string(mode), "level": "function"})
	}
}
