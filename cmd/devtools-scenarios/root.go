package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/guregu/null.v3"

	"github.com/grafana/devtools-scenarios/browserprocess"
	"github.com/grafana/devtools-scenarios/harness"
	"github.com/grafana/devtools-scenarios/log"
	"github.com/grafana/devtools-scenarios/otel"
	"github.com/grafana/devtools-scenarios/scenarios"
	"github.com/grafana/devtools-scenarios/storage"
	"github.com/grafana/devtools-scenarios/trace"
)

const traceShutdownTimeout = 5 * time.Second

var errScenariosFailed = errors.New("scenarios failed")

type rootFlags struct {
	list       bool
	run        string
	headless   bool
	executable string
	artifacts  string
	trace      string
	logLevel   string
	targets    string
}

func newRootCommand(stdout, stderr io.Writer, lookup log.LookupFunc) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "devtools-scenarios",
		Short: "Run browser scenarios over the DevTools protocol",
		Long: `Runs each selected scenario in a browser of its own: the browser is
launched, a DevTools session is attached to a fresh page, the scenario
drives it and checks what the browser reports, then the browser is shut
down. The command exits with status 1 when a scenario fails.

The DEVTOOLS_* environment variables configure the browser, the timeouts
and the logs. Flags take precedence over them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, flags, stdout, stderr, lookup)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&flags.list, "list", false, "list the scenarios and exit")
	f.StringVar(&flags.run, "run", "", "run only the scenarios whose name matches this regexp")
	f.BoolVar(&flags.headless, "headless", true, "run the browser without a window")
	f.StringVar(&flags.executable, "executable", "", "path of the browser executable")
	f.StringVar(&flags.artifacts, "artifacts", "", "write a JSON result per scenario to this directory")
	f.StringVar(&flags.trace, "trace", otel.ExporterNone, `trace exporter, "none" or "stdout"`)
	f.StringVar(&flags.logLevel, "log", "", "log level (trace, debug, info, warn, error)")
	f.StringVar(&flags.targets, "targets", "", "YAML file overriding the pages and elements of the scenarios")

	return cmd
}

func run(cmd *cobra.Command, flags *rootFlags, stdout, stderr io.Writer, lookup log.LookupFunc) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logger, err := log.NewFromEnv(ctx, stderr, lookup)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		if err := logger.SetLevel(flags.logLevel); err != nil {
			return fmt.Errorf("parsing --log: %w", err)
		}
	}

	targets := scenarios.DefaultTargets()
	if flags.targets != "" {
		if targets, err = scenarios.LoadTargets(afero.NewOsFs(), flags.targets); err != nil {
			return err
		}
	}
	catalog := scenarios.Catalog(targets)

	if flags.list {
		for _, sc := range catalog {
			fmt.Fprintf(stdout, "%-22s %s\n", sc.Name, sc.Description)
		}
		return nil
	}

	selected, err := scenarios.Match(catalog, flags.run)
	if err != nil {
		return err
	}

	cfg := harness.NewConfig()
	if err := cfg.ParseEnv(lookup); err != nil {
		return err
	}
	if cmd.Flags().Changed("headless") {
		cfg.Launch.Headless = null.BoolFrom(flags.headless)
	}
	if flags.executable != "" {
		cfg.Launch.ExecutablePath = flags.executable
	}

	tp, err := otel.NewTraceProvider(flags.trace, stderr)
	if err != nil {
		return fmt.Errorf("parsing --trace: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), traceShutdownTimeout)
		defer scancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warnf("main", "shutting down tracing: %v", err)
		}
	}()

	hostname, _ := os.Hostname()
	runner := &scenarios.Runner{
		Config: cfg,
		Logger: logger,
		Tracer: trace.NewTracer(logger, tp, map[string]string{"host.name": hostname}),
	}
	if flags.artifacts != "" {
		runner.Persister = storage.NewLocalFilePersister(flags.artifacts)
	}

	stopSignals := handleInterrupt(ctx, cancel, logger)
	defer stopSignals()

	results := runner.Run(ctx, selected...)

	return report(stdout, results)
}

// handleInterrupt kills the running browsers and stops the run on SIGINT
// or SIGTERM.
func handleInterrupt(ctx context.Context, cancel context.CancelFunc, logger *log.Logger) func() {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigC:
			logger.Warnf("main", "received %s, shutting down browsers", sig)
			browserprocess.ForceProcessShutdown(context.Background())
			cancel()
		case <-ctx.Done():
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigC)
		close(done)
	}
}

func report(w io.Writer, results []scenarios.Result) error {
	pass := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()

	var failed int
	for _, res := range results {
		if res.Passed {
			fmt.Fprintf(w, "%s %-22s %s\n", pass("PASS"), res.Name, res.Duration.Round(time.Millisecond))
			continue
		}
		failed++
		fmt.Fprintf(w, "%s %-22s %s\n     %s\n", fail("FAIL"), res.Name, res.Duration.Round(time.Millisecond), res.Error)
	}
	fmt.Fprintf(w, "\n%d passed, %d failed\n", len(results)-failed, failed)

	if failed > 0 {
		return fmt.Errorf("%d of %d %w", failed, len(results), errScenariosFailed)
	}

	return nil
}
