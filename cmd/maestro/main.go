// Command maestro runs the multi-agent assistant interactively or scores
// it against an evaluation battery.
//
// Usage:
//
//	maestro [global flags] chat
//	maestro [global flags] ask [-trace] [-json] <utterance>
//	maestro [global flags] eval [-cases file] [-concurrency n] [-mode strict|lenient|both] [-v] [-json file]
//	maestro [global flags] import-docs <file.csv>...
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type globalOptions struct {
	configPath  string
	envFiles    []string
	metricsAddr string
	verbose     bool
}

// command is one subcommand. It receives the arguments after its name.
type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string, std stdio) int
}

type stdio struct {
	in       io.Reader
	out, err io.Writer
}

var commands = map[string]command{
	"chat":        {summary: "interactive conversation with the orchestrator", run: runChat},
	"ask":         {summary: "answer one utterance and exit", run: runAsk},
	"eval":        {summary: "score the agent tree against an evaluation battery", run: runEval},
	"import-docs": {summary: "load CSV rows into the document store", run: runImportDocs},
}

var commandOrder = []string{"chat", "ask", "eval", "import-docs"}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], stdio{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, std stdio) int {
	fs := flag.NewFlagSet("maestro", flag.ContinueOnError)
	fs.SetOutput(std.err)
	var (
		opts     globalOptions
		envFiles string
	)
	fs.StringVar(&opts.configPath, "config", "maestro.yaml", "configuration file")
	fs.StringVar(&envFiles, "env", ".env", "comma-separated .env files loaded before the configuration")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	fs.BoolVar(&opts.verbose, "debug", false, "log at debug level")
	fs.Usage = func() { usage(std.err, fs) }

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		usage(std.err, fs)
		return exitUsage
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(std.err, "maestro: unknown command %q\n\n", name)
		usage(std.err, fs)
		return exitUsage
	}
	for _, f := range strings.Split(envFiles, ",") {
		if f = strings.TrimSpace(f); f != "" {
			opts.envFiles = append(opts.envFiles, f)
		}
	}

	a, err := newApp(opts)
	if err != nil {
		fmt.Fprintf(std.err, "maestro: %v\n", err)
		return exitFailure
	}
	defer a.Close()

	return cmd.run(ctx, a, fs.Args()[1:], std)
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: maestro [global flags] <command> [command flags]")
	fmt.Fprintln(w, "\ncommands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w, "\nglobal flags:")
	fs.PrintDefaults()
}
