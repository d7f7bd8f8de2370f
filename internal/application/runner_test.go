package application

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
	"github.com/ahrav/go-maestro/internal/testutils"
)

// scriptedAgent answers each query from a fixed table, standing in for an
// orchestrator in runner tests.
type scriptedAgent struct {
	turns map[string]func(ctx context.Context, req ports.AgentRequest) (*domain.TurnResult, error)
	seen  atomic.Int32
	today atomic.Value
}

func (a *scriptedAgent) Name() string        { return "super_agent" }
func (a *scriptedAgent) Description() string { return "" }

func (a *scriptedAgent) Run(ctx context.Context, req ports.AgentRequest) (*domain.TurnResult, error) {
	a.seen.Add(1)
	a.today.Store(req.Today)
	turn, ok := a.turns[req.Input]
	if !ok {
		return nil, errors.New("unexpected query " + req.Input)
	}
	return turn(ctx, req)
}

func answer(trace ...domain.CallStep) func(context.Context, ports.AgentRequest) (*domain.TurnResult, error) {
	return func(context.Context, ports.AgentRequest) (*domain.TurnResult, error) {
		return &domain.TurnResult{
			Agent:  "super_agent",
			Answer: "ok",
			Status: domain.StatusCompleted,
			Trace:  trace,
			Usage:  domain.Usage{Tokens: 10, Calls: 1},
		}, nil
	}
}

func evalCases(t *testing.T) []domain.EvaluationCase {
	t.Helper()
	loader, err := NewCaseLoader()
	require.NoError(t, err)
	cases, err := loader.LoadFromReader(context.Background(), strings.NewReader(`
cases:
  - description: direct
    query: q-direct
    expected_tool_calls: []
  - description: search then draft
    query: q-draft
    expected_tool_calls:
      - agent_name: search_agent
        function_name: tech_news_search
        argument_checks:
          query: {contains_all: [AI, TechCrunch]}
      - agent_name: mail_agent
        function_name: draft_mail
  - description: wrong argument
    query: q-args
    expected_tool_calls:
      - agent_name: place_agent
        function_name: search_naver_place
        argument_checks:
          query: {contains: 강남}
`))
	require.NoError(t, err)
	return cases
}

func TestRunner_Run(t *testing.T) {
	// Given an agent with one perfect, one perfect multi-step and one
	// argument-mismatched answer
	agent := &scriptedAgent{turns: map[string]func(context.Context, ports.AgentRequest) (*domain.TurnResult, error){
		"q-direct": answer(),
		"q-draft": answer(
			domain.CallStep{Agent: "search_agent", Tool: "tech_news_search", Arguments: map[string]any{"query": "AI TechCrunch"}},
			domain.CallStep{Agent: "mail_agent", Tool: "draft_mail", Arguments: map[string]any{"recipient": "x"}},
		),
		"q-args": answer(
			domain.CallStep{Agent: "place_agent", Tool: "search_naver_place", Arguments: map[string]any{"query": "홍대 술집"}},
		),
	}}
	metrics := newRecordingMetrics()
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	fixed := time.Date(2025, 8, 14, 1, 0, 0, 0, time.UTC)

	runner := NewRunner(agent,
		WithConcurrency(3),
		WithClock(func() time.Time { return fixed }, seoul),
		WithRunnerMetrics(metrics),
	)

	// When the battery runs
	report, err := runner.Run(context.Background(), evalCases(t))

	// Then every case is scored in order
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, fixed, report.StartedAt)
	assert.Equal(t, "2025-08-14 (목)", agent.today.Load())

	for i, res := range report.Results {
		assert.Equal(t, i, res.Index)
	}
	assert.True(t, report.Results[0].Strict.Perfect())
	assert.True(t, report.Results[1].Strict.Perfect())
	assert.False(t, report.Results[2].Strict.Perfect())
	assert.True(t, report.Results[2].Lenient.Perfect(), "lenient ignores argument checks")
	require.Len(t, report.Results[2].Strict.ArgumentFailures, 1)

	// And the accuracy gauges reflect the macro mean
	assert.InDelta(t, 2.0/3, metrics.gauge("eval_accuracy|mode=strict|level=function"), 1e-9)
	assert.InDelta(t, 1.0, metrics.gauge("eval_accuracy|mode=lenient|level=function"), 1e-9)
	assert.InDelta(t, 1.0, metrics.gauge("eval_accuracy|mode=lenient|level=agent"), 1e-9)
	assert.Equal(t, 2.0, metrics.counter("eval_cases_total|status=perfect"))
	assert.Equal(t, 1.0, metrics.counter("eval_cases_total|status=imperfect"))
}

func TestRunner_FailedTurnsAreScoredNotFatal(t *testing.T) {
	partial := domain.CallTrace{
		{Agent: "search_agent", Tool: "tech_news_search", Arguments: map[string]any{"query": "AI TechCrunch"}},
		{Agent: "search_agent", Tool: "bogus", Error: "unknown tool"},
	}
	agent := &scriptedAgent{turns: map[string]func(context.Context, ports.AgentRequest) (*domain.TurnResult, error){
		"q-direct": func(context.Context, ports.AgentRequest) (*domain.TurnResult, error) {
			return &domain.TurnResult{}, ports.NewLLMError("mock", "chat", ports.ErrServiceUnavailable)
		},
		"q-draft": func(context.Context, ports.AgentRequest) (*domain.TurnResult, error) {
			return &domain.TurnResult{Status: domain.StatusRoundLimitExceeded, Trace: partial}, domain.NewRoundLimitError("super_agent", 8)
		},
		"q-args": func(context.Context, ports.AgentRequest) (*domain.TurnResult, error) {
			return nil, errors.New("boom")
		},
	}}
	metrics := newRecordingMetrics()

	report, err := NewRunner(agent, WithRunnerMetrics(metrics)).Run(context.Background(), evalCases(t))

	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	assert.Contains(t, report.Results[0].Error, "service unavailable")
	assert.True(t, report.Results[0].Strict.Perfect(), "an empty trace matches an empty expectation")

	draft := report.Results[1]
	assert.Equal(t, domain.StatusRoundLimitExceeded, draft.Status)
	assert.Len(t, draft.Trace, 1, "rejected calls are not scored")
	assert.Equal(t, 1, draft.Strict.FunctionLevelMatches)
	assert.False(t, draft.Strict.Perfect())

	assert.Equal(t, "boom", report.Results[2].Error)
	assert.Empty(t, report.Results[2].Trace)

	assert.Equal(t, 1.0, metrics.counter("eval_cases_total|status=round_limit"))
	assert.Equal(t, 2.0, metrics.counter("eval_cases_total|status=error"))
}

func TestRunner_TurnTimeout(t *testing.T) {
	agent := &scriptedAgent{turns: map[string]func(context.Context, ports.AgentRequest) (*domain.TurnResult, error){
		"q": func(ctx context.Context, _ ports.AgentRequest) (*domain.TurnResult, error) {
			<-ctx.Done()
			return &domain.TurnResult{}, ctx.Err()
		},
	}}
	cases := []domain.EvaluationCase{{Description: "slow", Query: "q", ExpectedToolCalls: []domain.ExpectedCall{}}}

	report, err := NewRunner(agent, WithTurnTimeout(20*time.Millisecond)).Run(context.Background(), cases)

	require.NoError(t, err, "a per-case timeout does not abort the run")
	assert.Contains(t, report.Results[0].Error, context.DeadlineExceeded.Error())
}

func TestRunner_CancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	agent := &scriptedAgent{turns: map[string]func(context.Context, ports.AgentRequest) (*domain.TurnResult, error){
		"q": func(context.Context, ports.AgentRequest) (*domain.TurnResult, error) {
			cancel()
			return &domain.TurnResult{}, nil
		},
	}}
	cases := []domain.EvaluationCase{
		{Description: "a", Query: "q"},
		{Description: "b", Query: "q"},
		{Description: "c", Query: "q"},
	}

	report, err := NewRunner(agent).Run(ctx, cases)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, int32(1), agent.seen.Load(), "no case starts after cancellation")
}

func TestRunner_WithAgentTree(t *testing.T) {
	// Given a real agent tree over a scripted model
	o := newOrchestration(t)
	o.model.
		On("ROLE:orchestrator",
			testutils.Text("어린왕자는 ..."),
			testutils.Call("search_agent", `{"instruction":"TechCrunch AI 뉴스"}`),
			testutils.Call("mail_agent", `{"instruction":"초안"}`),
			testutils.Text("완료"),
		).
		On("ROLE:search",
			testutils.Call("tech_news_search", `{"query":"AI news TechCrunch"}`),
			testutils.Text("요약"),
		).
		On("ROLE:mail",
			testutils.Call("draft_mail", `{"recipient":"dev_team@mycompany.com","subject":"AI","body":"..."}`),
			testutils.Text("작성"),
		)
	cases := evalCases(t)[:2]

	// When the cases run one at a time
	report, err := NewRunner(o.orchestrator, WithConcurrency(1)).Run(context.Background(), cases)

	// Then both score perfectly in both modes
	require.NoError(t, err)
	for _, mode := range []domain.ScoringMode{domain.ScoringStrict, domain.ScoringLenient} {
		s := report.Summary(mode)
		assert.Equal(t, 2, s.PerfectCases, mode)
		assert.InDelta(t, 1.0, s.FunctionAccuracy, 1e-9)
	}
	assert.Equal(t, int64(15), report.Results[0].Usage.Tokens)
	assert.Equal(t, 0, o.model.Remaining())
}
