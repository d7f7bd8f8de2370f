package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

var _ BudgetObserver = (*OTelBudgetObserver)(nil)

// Usage fractions at which a span event is recorded.
const (
	warningThreshold  = 0.8
	criticalThreshold = 0.9
)

// OTelBudgetObserver traces budgeted turns and reports their usage to a
// metrics collector. It keeps no per-turn state, so one observer serves
// concurrent turns of many agents.
type OTelBudgetObserver struct {
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewOTelBudgetObserver creates an observer. metrics may be nil.
func NewOTelBudgetObserver(metrics ports.MetricsCollector) *OTelBudgetObserver {
	return &OTelBudgetObserver{
		metrics: metrics,
		tracer:  otel.Tracer("budget-manager"),
	}
}

// PreCheck starts the "BudgetManager.Run" span and returns a context
// carrying it.
func (o *OTelBudgetObserver) PreCheck(ctx context.Context, agent string, budget Budget) context.Context {
	ctx, span := o.tracer.Start(ctx, "BudgetManager.Run",
		trace.WithAttributes(attribute.String("budget.agent", agent)),
	)
	if budget.MaxTokens > 0 {
		span.SetAttributes(attribute.Int64("budget.max_tokens", budget.MaxTokens))
	}
	if budget.MaxCalls > 0 {
		span.SetAttributes(attribute.Int64("budget.max_calls", budget.MaxCalls))
	}
	return ctx
}

// PostCheck records the turn's usage on the span started by PreCheck,
// ends it and updates the budget metrics.
func (o *OTelBudgetObserver) PostCheck(
	ctx context.Context,
	agent string,
	usage domain.Usage,
	budget Budget,
	elapsed time.Duration,
	err error,
) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(
		attribute.Int64("budget.tokens_used", usage.Tokens),
		attribute.Int64("budget.calls_made", usage.Calls),
	)
	if budget.MaxTokens > 0 {
		span.SetAttributes(attribute.Int64("budget.remaining_tokens", budget.MaxTokens-usage.Tokens))
	}
	if budget.MaxCalls > 0 {
		span.SetAttributes(attribute.Int64("budget.remaining_calls", budget.MaxCalls-usage.Calls))
	}
	thresholdEvent(span, "tokens", usage.Tokens, budget.MaxTokens)
	thresholdEvent(span, "calls", usage.Calls, budget.MaxCalls)

	labels := map[string]string{"agent": agent, "budget_limit": limitLabel(budget)}
	if o.metrics != nil {
		o.metrics.RecordLatency("budget_manager_execution", elapsed, labels)
		o.metrics.RecordCounter("budget_tokens_used", float64(usage.Tokens), labels)
		o.metrics.RecordCounter("budget_calls_used", float64(usage.Calls), labels)
	}

	var budgetErr *domain.BudgetExceededError
	switch {
	case errors.As(err, &budgetErr):
		span.AddEvent("budget.exceeded", trace.WithAttributes(
			attribute.String("limit_type", budgetErr.LimitType),
			attribute.Int64("limit_value", budgetErr.Limit),
			attribute.Int64("used_value", budgetErr.Used),
		))
		span.SetStatus(codes.Error, "Budget limit exceeded")
		if o.metrics != nil {
			o.metrics.RecordCounter("budget_exceeded_total", 1, map[string]string{
				"agent":      agent,
				"limit_type": budgetErr.LimitType,
			})
		}
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.SetStatus(codes.Ok, "")
	}
}

// thresholdEvent adds a warning or critical event when used approaches
// limit.
func thresholdEvent(span trace.Span, resource string, used, limit int64) {
	if limit <= 0 {
		return
	}
	fraction := float64(used) / float64(limit)
	var name string
	switch {
	case fraction >= criticalThreshold:
		name = "budget.threshold.critical"
	case fraction >= warningThreshold:
		name = "budget.threshold.warning"
	default:
		return
	}
	span.AddEvent(name, trace.WithAttributes(
		attribute.String("resource_type", resource),
		attribute.Float64("usage_percentage", fraction*100),
	))
}

func limitLabel(budget Budget) string {
	switch {
	case budget.MaxTokens > 0 && budget.MaxCalls > 0:
		return "tokens_and_calls"
	case budget.MaxTokens > 0:
		return "tokens_only"
	case budget.MaxCalls > 0:
		return "calls_only"
	default:
		return "unlimited"
	}
}
