package middleware

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-maestro/internal/application"
	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

// Budget defines the resource limits of one agent turn. A turn's usage
// includes the usage of every specialist it delegated to.
type Budget struct {
	// MaxTokens limits input plus output tokens. Zero means unlimited.
	MaxTokens int64

	// MaxCalls limits model requests. Zero means unlimited.
	MaxCalls int64
}

// BudgetObserver provides observability hooks for budget checks. PreCheck
// returns the context the turn runs under, so an implementation can carry
// a span or similar request-scoped state to PostCheck.
type BudgetObserver interface {
	PreCheck(ctx context.Context, agent string, budget Budget) context.Context
	PostCheck(ctx context.Context, agent string, usage domain.Usage, budget Budget, elapsed time.Duration, err error)
}

// BudgetManager wraps an agent and rejects turns whose usage breaks the
// budget. The call limit is enforced before each model round through an
// application.RoundGuard, so no request, and no tool call it would
// trigger, is made past MaxCalls. Token usage is only known after a round,
// so the token limit is checked when the wrapped turn returns: the result
// is kept and the error is replaced by a *domain.BudgetExceededError.
// Wrapped around a specialist, either error reaches the parent as a tool
// error and the parent decides how to continue.
type BudgetManager struct {
	budget   Budget
	next     ports.Agent
	observer BudgetObserver
}

var _ ports.Agent = (*BudgetManager)(nil)

// NewBudgetManager wraps next. observer may be nil.
func NewBudgetManager(budget Budget, next ports.Agent, observer BudgetObserver) *BudgetManager {
	if next == nil {
		panic("budget manager: next agent is required")
	}
	return &BudgetManager{
		budget:   budget,
		next:     next,
		observer: observer,
	}
}

// Name returns the wrapped agent's name.
func (bm *BudgetManager) Name() string { return bm.next.Name() }

// Description returns the wrapped agent's description.
func (bm *BudgetManager) Description() string { return bm.next.Description() }

// Run executes the wrapped turn and checks its usage.
func (bm *BudgetManager) Run(ctx context.Context, req ports.AgentRequest) (*domain.TurnResult, error) {
	if bm.observer != nil {
		ctx = bm.observer.PreCheck(ctx, bm.next.Name(), bm.budget)
	}

	if bm.budget.MaxCalls > 0 {
		ctx = application.WithRoundGuard(ctx, &callMeter{
			parent: application.RoundGuardFrom(ctx),
			limit:  bm.budget.MaxCalls,
			agent:  bm.next.Name(),
		})
	}

	start := time.Now()
	result, err := bm.next.Run(ctx, req)
	elapsed := time.Since(start)

	var usage domain.Usage
	if result != nil {
		usage = result.Usage
	}
	// A turn that already failed keeps its own error; exceeding the budget
	// on the way does not hide the original cause.
	if err == nil {
		err = bm.check(usage)
	}

	if bm.observer != nil {
		bm.observer.PostCheck(ctx, bm.next.Name(), usage, bm.budget, elapsed, err)
	}
	return result, err
}

// Validate checks that the limits are not negative.
func (bm *BudgetManager) Validate() error {
	if bm.budget.MaxTokens < 0 {
		return fmt.Errorf("budget manager: max_tokens cannot be negative, got %d", bm.budget.MaxTokens)
	}
	if bm.budget.MaxCalls < 0 {
		return fmt.Errorf("budget manager: max_calls cannot be negative, got %d", bm.budget.MaxCalls)
	}
	return nil
}

func (bm *BudgetManager) check(usage domain.Usage) error {
	if bm.budget.MaxTokens > 0 && usage.Tokens > bm.budget.MaxTokens {
		return domain.NewBudgetExceededError("tokens", bm.budget.MaxTokens, usage.Tokens, bm.next.Name())
	}
	if bm.budget.MaxCalls > 0 && usage.Calls > bm.budget.MaxCalls {
		return domain.NewBudgetExceededError("calls", bm.budget.MaxCalls, usage.Calls, bm.next.Name())
	}
	return nil
}

// callMeter counts the model rounds of one guarded turn. Rounds of nested
// turns are charged to every enclosing meter through parent.
type callMeter struct {
	parent application.RoundGuard
	limit  int64
	agent  string
	used   atomic.Int64
}

func (m *callMeter) AllowRound(agent string) error {
	if used := m.used.Load(); used >= m.limit {
		return domain.NewBudgetExceededError("calls", m.limit, used, m.agent)
	}
	if m.parent != nil {
		if err := m.parent.AllowRound(agent); err != nil {
			return err
		}
	}
	m.used.Add(1)
	return nil
}

// BudgetFromConfig converts the loaded budget section.
func BudgetFromConfig(config application.BudgetConfig) Budget {
	return Budget{
		MaxTokens: config.MaxTokens,
		MaxCalls:  config.MaxCalls,
	}
}

// BudgetWrapper returns a function that guards every agent with budget,
// for use as application.BuildOptions.Wrap.
func BudgetWrapper(budget Budget, metrics ports.MetricsCollector) func(ports.Agent) ports.Agent {
	observer := NewOTelBudgetObserver(metrics)
	return func(a ports.Agent) ports.Agent {
		return NewBudgetManager(budget, a, observer)
	}
}
