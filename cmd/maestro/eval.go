package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Laisky/zap"

	"github.com/ahrav/go-maestro/infrastructure/tools/document"
	"github.com/ahrav/go-maestro/internal/application"
	"github.com/ahrav/go-maestro/internal/domain"
)

// runEval scores the agent tree against the case battery. It exits with
// exitFailure when any case is not perfect under the selected modes, so it
// can gate CI.
func runEval(ctx context.Context, a *app, args []string, std stdio) int {
	cfg := a.cfg.Eval
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(std.err)
	casesPath := fs.String("cases", cfg.Cases, "evaluation case file")
	concurrency := fs.Int("concurrency", cfg.Concurrency, "cases evaluated at once")
	mode := fs.String("mode", cfg.Mode, "modes that gate the exit code: strict, lenient or both")
	verbose := fs.Bool("v", false, "print traces and argument failures")
	jsonOut := fs.String("json", "", "also write the report as JSON to this file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	modes, err := scoringModes(*mode)
	if err != nil {
		fmt.Fprintf(std.err, "maestro: %v\n", err)
		return exitUsage
	}
	if *casesPath == "" {
		fmt.Fprintln(std.err, "maestro: no case file; set eval.cases or pass -cases")
		return exitUsage
	}

	loader, err := application.NewCaseLoader()
	if err != nil {
		fmt.Fprintf(std.err, "maestro: %v\n", err)
		return exitFailure
	}
	cases, err := loader.LoadFromFile(ctx, *casesPath)
	if err != nil {
		fmt.Fprintf(std.err, "maestro: %v\n", err)
		return exitFailure
	}

	agent, err := a.orchestrator(ctx)
	if err != nil {
		fmt.Fprintf(std.err, "maestro: %v\n", err)
		return exitFailure
	}

	runner := application.NewRunner(agent,
		application.WithConcurrency(*concurrency),
		application.WithTurnTimeout(a.cfg.TurnTimeout),
		application.WithClock(time.Now, a.location),
		application.WithRunnerMetrics(a.metrics),
		application.WithRunnerLogger(a.logger),
	)
	report, err := runner.Run(ctx, cases)
	if err != nil {
		fmt.Fprintf(std.err, "maestro: %v\n", err)
		return exitFailure
	}

	report.Render(std.out, *verbose)
	if a.results != nil {
		a.logger.Debug("tool cache after evaluation", zap.Int("entries", a.results.Len()))
	}
	if *jsonOut != "" {
		if err := writeReport(*jsonOut, report); err != nil {
			fmt.Fprintf(std.err, "maestro: %v\n", err)
			return exitFailure
		}
	}

	failed := 0
	for _, m := range modes {
		failed = max(failed, len(report.Failed(m)))
	}
	if failed > 0 {
		a.logger.Info("evaluation has imperfect cases", zap.Int("cases", failed), zap.String("mode", *mode))
		return exitFailure
	}
	return exitOK
}

func scoringModes(mode string) ([]domain.ScoringMode, error) {
	switch mode {
	case "strict":
		return []domain.ScoringMode{domain.ScoringStrict}, nil
	case "lenient":
		return []domain.ScoringMode{domain.ScoringLenient}, nil
	case "both", "":
		return []domain.ScoringMode{domain.ScoringStrict, domain.ScoringLenient}, nil
	default:
		return nil, fmt.Errorf("unknown scoring mode %q", mode)
	}
}

func writeReport(path string, report *application.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(filepath.Clean(path), data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// runImportDocs loads each CSV file into the document store searched by
// get_document.
func runImportDocs(ctx context.Context, a *app, args []string, std stdio) int {
	fs := flag.NewFlagSet("import-docs", flag.ContinueOnError)
	fs.SetOutput(std.err)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(std.err, "usage: maestro import-docs <file.csv>...")
		return exitUsage
	}

	docs, err := document.NewStore(a.db)
	if err != nil {
		fmt.Fprintf(std.err, "maestro: %v\n", err)
		return exitFailure
	}

	total := 0
	for _, path := range fs.Args() {
		n, err := importFile(ctx, docs, path)
		if err != nil {
			fmt.Fprintf(std.err, "maestro: %v\n", err)
			return exitFailure
		}
		a.logger.Info("documents imported", zap.String("file", path), zap.Int("rows", n))
		fmt.Fprintf(std.out, "%s: %d documents\n", path, n)
		total += n
	}

	count, err := docs.Count(ctx)
	if err != nil {
		fmt.Fprintf(std.err, "maestro: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(std.out, "imported %d documents, %d in store\n", total, count)
	return exitOK
}

func importFile(ctx context.Context, docs *document.Store, path string) (int, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return docs.ImportCSV(ctx, f, filepath.Base(path))
}
