// Command crosslab records Mendelian cross experiments, compares observed
// offspring counts against expected ratios, and exports reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"crosslab/internal/adapters/reports"
	"crosslab/internal/blob"
	"crosslab/internal/config"
	"crosslab/internal/core"
)

var exitFunc = os.Exit

const usage = `usage: crosslab <command> [flags]

commands:
  create    create experiments from flags or a YAML definition file
  observe   record observed offspring counts (label=count ...)
  analyze   run the chi-square goodness-of-fit test
  show      print one experiment
  list      list all experiments
  search    find experiments by field and term
  delete    delete an experiment
  export    write reports to blob storage
  reports   list, print or link stored reports
  cross     print the Punnett square of two genotypes
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		_, _ = fmt.Fprint(stderr, usage)
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	a, cleanup, err := newApp(ctx, cfg, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup: %v\n", err)
		return 1
	}
	defer cleanup()
	return a.run(ctx, args)
}

// app wires the service, report exporter and output streams for one process.
type app struct {
	svc      *core.Service
	blobs    blob.Store
	exporter *reports.Exporter
	logger   *slog.Logger
	stdout   io.Writer
	stderr   io.Writer
}

func newApp(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) (*app, func(), error) {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*app, func(), error) {
		cleanup()
		return nil, nil, err
	}

	store, err := core.OpenPersistentStore(ctx, cfg, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}
	closers = append(closers, func() {
		if closer, ok := store.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Warn("close store", "error", err)
			}
		}
	})

	metrics, err := core.NewMetricsRecorder(cfg)
	if err != nil {
		return fail(err)
	}
	if cfg.MetricsFile != "" {
		dumper, ok := metrics.(core.MetricsDumper)
		if !ok {
			return fail(fmt.Errorf("metrics exporter %s cannot write %s", cfg.Metrics, cfg.MetricsFile))
		}
		closers = append(closers, func() {
			if err := dumper.DumpMetrics(cfg.MetricsFile); err != nil {
				logger.Warn("write metrics file", "path", cfg.MetricsFile, "error", err)
			}
		})
	}

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(core.NewLogAuditRecorder(logger)),
		core.WithAlpha(cfg.Alpha),
		core.WithMaxGenePairs(cfg.MaxGenePairs),
	}
	if cfg.TraceFile != "" {
		f, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fail(fmt.Errorf("open trace file: %w", err))
		}
		closers = append(closers, func() {
			if err := f.Close(); err != nil {
				logger.Warn("close trace file", "error", err)
			}
		})
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}

	blobs, err := blob.Open(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("open %s blob store: %w", cfg.BlobDriver, err))
	}
	exporter, err := reports.NewExporter(blobs)
	if err != nil {
		return fail(err)
	}

	svc := core.NewService(store, opts...)
	logger.Debug("crosslab ready",
		"storage", cfg.StorageDriver,
		"blob", cfg.BlobDriver,
		"metrics", cfg.Metrics,
		"trace_file", cfg.TraceFile,
	)
	return &app{
		svc:      svc,
		blobs:    blobs,
		exporter: exporter,
		logger:   logger,
		stdout:   stdout,
		stderr:   stderr,
	}, cleanup, nil
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"create":  runCreate,
	"observe": runObserve,
	"analyze": runAnalyze,
	"show":    runShow,
	"list":    runList,
	"search":  runSearch,
	"delete":  runDelete,
	"export":  runExport,
	"reports": runReports,
	"cross":   runCross,
}

func (a *app) run(ctx context.Context, args []string) int {
	cmd, ok := commands[args[0]]
	if !ok {
		_, _ = fmt.Fprintf(a.stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err := cmd(ctx, a, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		var usageErr usageError
		if errors.As(err, &usageErr) {
			_, _ = fmt.Fprintf(a.stderr, "%s: %v\n", args[0], err)
			return 2
		}
		_, _ = fmt.Fprintf(a.stderr, "%s failed: %v\n", args[0], err)
		return 1
	}
	return 0
}

// usageError marks bad invocations, which exit with status 2.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{msg: err.Error()}
	}
	return nil
}
