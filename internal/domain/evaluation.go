package domain

import (
	"fmt"
	"sort"
)

// Predicate decides whether an actual argument value satisfies an
// expectation. Implementations must be safe for concurrent use.
type Predicate interface {
	// Check reports whether value satisfies the predicate. value is the
	// decoded JSON argument, or nil when the argument was absent.
	Check(value any) bool

	// String describes the predicate for reports.
	String() string
}

// ExpectedCall is one expected step of an evaluation case.
type ExpectedCall struct {
	AgentName    string `json:"agent_name"`
	FunctionName string `json:"function_name"`

	// ArgumentChecks maps a parameter name to the predicate its actual value
	// must satisfy. Parameters without a check are not inspected.
	ArgumentChecks map[string]Predicate `json:"-"`
}

// EvaluationCase pairs a query with the ordered tool calls it should produce.
// Order is significant: it encodes dependencies such as search before draft.
type EvaluationCase struct {
	Description       string         `json:"description"`
	Query             string         `json:"query"`
	ExpectedToolCalls []ExpectedCall `json:"expected_tool_calls"`
}

// ScoringMode selects how argument checks influence the match counters.
type ScoringMode string

const (
	// ScoringStrict counts a step only when its names match and every
	// declared argument check passes.
	ScoringStrict ScoringMode = "strict"

	// ScoringLenient counts a step on name equality alone. Argument check
	// failures are still reported.
	ScoringLenient ScoringMode = "lenient"
)

// Valid reports whether m is a known scoring mode.
func (m ScoringMode) Valid() bool {
	return m == ScoringStrict || m == ScoringLenient
}

// ArgumentFailure describes one argument check that did not pass.
type ArgumentFailure struct {
	Step      int    `json:"step"`
	Parameter string `json:"parameter"`
	Predicate string `json:"predicate"`
	Actual    any    `json:"actual,omitempty"`
	Missing   bool   `json:"missing,omitempty"`
}

// ScoreResult is the positional comparison of a call trace against an
// evaluation case.
type ScoreResult struct {
	AgentLevelMatches    int               `json:"agent_level_matches"`
	FunctionLevelMatches int               `json:"function_level_matches"`
	TotalExpectedSteps   int               `json:"total_expected_steps"`
	ArgumentFailures     []ArgumentFailure `json:"argument_failures,omitempty"`

	// ExtraSteps counts actual steps beyond the expected sequence.
	ExtraSteps int `json:"extra_steps"`
}

// AgentAccuracy returns the fraction of expected steps whose agent matched.
// A case with no expected steps is accurate iff no extra steps occurred.
func (r ScoreResult) AgentAccuracy() float64 {
	return r.accuracy(r.AgentLevelMatches)
}

// FunctionAccuracy returns the fraction of expected steps whose tool matched.
func (r ScoreResult) FunctionAccuracy() float64 {
	return r.accuracy(r.FunctionLevelMatches)
}

func (r ScoreResult) accuracy(matches int) float64 {
	if r.TotalExpectedSteps == 0 {
		if r.ExtraSteps == 0 {
			return 1
		}
		return 0
	}
	return float64(matches) / float64(r.TotalExpectedSteps)
}

// Perfect reports whether every expected step matched at both levels and
// the trace contained nothing else.
func (r ScoreResult) Perfect() bool {
	return r.AgentLevelMatches == r.TotalExpectedSteps &&
		r.FunctionLevelMatches == r.TotalExpectedSteps &&
		r.ExtraSteps == 0
}

// String formats the result the way the run report prints it.
func (r ScoreResult) String() string {
	return fmt.Sprintf("agent %d/%d, function %d/%d",
		r.AgentLevelMatches, r.TotalExpectedSteps,
		r.FunctionLevelMatches, r.TotalExpectedSteps)
}

// Score compares trace against the expected calls of c position by position.
// Step i of the trace is compared with expected step i only; no alignment is
// attempted, so an inserted or omitted step shifts every later comparison.
// Expected indices beyond the end of the trace count as misses.
func Score(c EvaluationCase, trace CallTrace, mode ScoringMode) ScoreResult {
	result := ScoreResult{TotalExpectedSteps: len(c.ExpectedToolCalls)}
	if extra := len(trace) - len(c.ExpectedToolCalls); extra > 0 {
		result.ExtraSteps = extra
	}

	for i, expected := range c.ExpectedToolCalls {
		actual, ok := trace.At(i)
		if !ok {
			continue
		}

		failures := checkArguments(i, expected, actual)
		result.ArgumentFailures = append(result.ArgumentFailures, failures...)

		argsOK := len(failures) == 0 || mode == ScoringLenient
		if expected.AgentName == actual.Agent && argsOK {
			result.AgentLevelMatches++
		}
		if expected.FunctionName == actual.Tool && argsOK {
			result.FunctionLevelMatches++
		}
	}

	return result
}

// checkArguments evaluates every declared check of expected against the
// arguments of actual. Parameters are visited in sorted order so failures
// are reported deterministically.
func checkArguments(step int, expected ExpectedCall, actual CallStep) []ArgumentFailure {
	if len(expected.ArgumentChecks) == 0 {
		return nil
	}

	params := make([]string, 0, len(expected.ArgumentChecks))
	for p := range expected.ArgumentChecks {
		params = append(params, p)
	}
	sort.Strings(params)

	var failures []ArgumentFailure
	for _, param := range params {
		pred := expected.ArgumentChecks[param]
		value, present := actual.Arguments[param]
		if present && pred.Check(value) {
			continue
		}
		failures = append(failures, ArgumentFailure{
			Step:      step,
			Parameter: param,
			Predicate: pred.String(),
			Actual:    value,
			Missing:   !present,
		})
	}
	return failures
}
