package application

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/ahrav/go-maestro/internal/domain"
)

// RunReport aggregates the results of one evaluation run.
type RunReport struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Results   []CaseResult  `json:"results"`
}

// ModeSummary is the per-mode aggregate of a run. Accuracies are the mean
// of the per-case accuracies, so a case with no expected calls weighs the
// same as any other case.
type ModeSummary struct {
	Mode             domain.ScoringMode `json:"mode"`
	Cases            int                `json:"cases"`
	PerfectCases     int                `json:"perfect_cases"`
	AgentMatches     int                `json:"agent_matches"`
	FunctionMatches  int                `json:"function_matches"`
	ExpectedSteps    int                `json:"expected_steps"`
	AgentAccuracy    float64            `json:"agent_accuracy"`
	FunctionAccuracy float64            `json:"function_accuracy"`
}

// Summary aggregates the report for mode.
func (r *RunReport) Summary(mode domain.ScoringMode) ModeSummary {
	s := ModeSummary{Mode: mode, Cases: len(r.Results)}
	if len(r.Results) == 0 {
		return s
	}

	var agentSum, functionSum float64
	for _, res := range r.Results {
		score := res.Score(mode)
		s.AgentMatches += score.AgentLevelMatches
		s.FunctionMatches += score.FunctionLevelMatches
		s.ExpectedSteps += score.TotalExpectedSteps
		agentSum += score.AgentAccuracy()
		functionSum += score.FunctionAccuracy()
		if score.Perfect() {
			s.PerfectCases++
		}
	}
	s.AgentAccuracy = agentSum / float64(len(r.Results))
	s.FunctionAccuracy = functionSum / float64(len(r.Results))
	return s
}

// Failed returns the results that are not perfect under mode.
func (r *RunReport) Failed(mode domain.ScoringMode) []CaseResult {
	var out []CaseResult
	for _, res := range r.Results {
		if !res.Score(mode).Perfect() || res.Error != "" {
			out = append(out, res)
		}
	}
	return out
}

// Render writes the per-case table followed by the per-mode summary.
// Verbose adds the executed trace and every argument failure.
func (r *RunReport) Render(w io.Writer, verbose bool) {
	table := tablewriter.NewWriter(w)
	header := []string{"#", "Case", "Strict", "Lenient", "Status"}
	if verbose {
		header = append(header, "Trace")
	}
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, res := range r.Results {
		status := string(res.Status)
		if res.Error != "" && status == "" {
			status = "error"
		}
		row := []string{
			strconv.Itoa(res.Index + 1),
			res.Case.Description,
			res.Strict.String(),
			res.Lenient.String(),
			status,
		}
		if verbose {
			row = append(row, res.Trace.String())
		}
		table.Append(row)
	}
	table.Render()

	fmt.Fprintf(w, "\nrun %s: %d cases in %s\n", r.ID, len(r.Results), r.Elapsed.Round(time.Millisecond))
	for _, mode := range []domain.ScoringMode{domain.ScoringStrict, domain.ScoringLenient} {
		s := r.Summary(mode)
		fmt.Fprintf(w, "%-8s agent %.1f%% (%d/%d)  function %.1f%% (%d/%d)  perfect %d/%d\n",
			mode,
			s.AgentAccuracy*100, s.AgentMatches, s.ExpectedSteps,
			s.FunctionAccuracy*100, s.FunctionMatches, s.ExpectedSteps,
			s.PerfectCases, s.Cases,
		)
	}

	if !verbose {
		return
	}
	for _, res := range r.Results {
		if res.Error != "" {
			fmt.Fprintf(w, "\ncase %d error: %s\n", res.Index+1, res.Error)
		}
		for _, f := range res.Strict.ArgumentFailures {
			actual := Stringify(f.Actual)
			if f.Missing {
				actual = "<missing>"
			}
			fmt.Fprintf(w, "case %d step %d: %s %s got %q\n", res.Index+1, f.Step+1, f.Parameter, f.Predicate, actual)
		}
	}
}
