package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/procprobe/internal/catalog"
	"github.com/roach88/procprobe/internal/config"
	"github.com/roach88/procprobe/internal/executor"
	"github.com/roach88/procprobe/internal/fixture"
	"github.com/roach88/procprobe/internal/harness"
	"github.com/roach88/procprobe/internal/infer"
	"github.com/roach88/procprobe/internal/ir"
	"github.com/roach88/procprobe/internal/metrics"
	"github.com/roach88/procprobe/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Filter      string // display-name glob
	History     string // run history database path
	MetricsFile string // Prometheus textfile path
	Cleanup     bool
	Seed        uint64
	Workers     int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <path>",
		Short: "Smoke-test every statement under path",
		Long: `Smoke-test statements loaded from a directory of .sql files, a single
.sql file, or a YAML catalog.

Fixtures are resolved once before any statement runs. Every statement then
executes in its own transaction, which is always rolled back.

Exit codes:
  0 - No statement failed (skips do not count)
  1 - One or more statements failed
  2 - Command error (bad config, database unreachable, fixture setup failed)

Examples:
  procprobe run ./sql
  procprobe run ./sql --filter "get_*" --workers 8
  procprobe run ./catalog.yaml --seed 42 --history ./probe.db
  procprobe run ./sql --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter statements by glob on display name")
	cmd.Flags().StringVar(&opts.History, "history", "", "record the run in this SQLite database")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	cmd.Flags().BoolVar(&opts.Cleanup, "cleanup", false, "delete fixtures created by this run")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "value generator seed (0 derives one from the clock)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent statements (default from config)")

	return cmd
}

// applyFlags overrides config values with explicitly set flags.
func (o *RunOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("history") {
		cfg.History.Path = o.History
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Textfile = o.MetricsFile
	}
	if flags.Changed("cleanup") {
		cfg.Run.Cleanup = o.Cleanup
	}
	if flags.Changed("seed") {
		cfg.Run.Seed = o.Seed
	}
	if flags.Changed("workers") {
		cfg.Run.Workers = o.Workers
	}
	return cfg.Validate()
}

func runProbe(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, log, err := loadConfig(opts.RootOptions, formatter, cmd)
	if err != nil {
		return err
	}
	defer syncLog(log)

	if err := opts.applyFlags(cmd, cfg); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid flags", err)
	}

	statements, err := loadStatements(path, opts.Filter, formatter)
	if err != nil {
		return err
	}
	if len(statements) == 0 {
		return formatter.Success(emptySummary(formatter))
	}
	formatter.VerboseLog("Loaded %d statement(s) from %s", len(statements), path)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Run.Timeout)
	defer cancel()

	db, err := connect(ctx, cfg, formatter)
	if err != nil {
		return err
	}
	defer db.Close()

	seed := cfg.Seed(time.Now())
	gen := infer.NewGenerator(seed, time.Now)
	engine := infer.NewEngine(cfg.Rules(), log)

	resolver, err := fixture.New(db, cfg.FixtureDefinitions(), gen, log)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid fixture definitions", err)
	}

	m := metrics.New()
	h := harness.New(engine, gen, resolver, executor.New(db, cfg.ExecutorOptions(), log), m, log, harness.Options{
		Workers:       cfg.Run.Workers,
		TenantSetting: cfg.Session.TenantSetting,
		UserSetting:   cfg.Session.UserSetting,
		Cleanup:       cfg.Run.Cleanup,
	})

	summary, err := h.Run(ctx, statements)
	if err != nil {
		var setupErr *harness.SetupError
		if errors.As(err, &setupErr) {
			return formatter.Fail(ExitCommandError, ErrCodeSetup, "fixture setup failed", setupErr.Err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "run failed", err)
	}

	// The run outcome is already decided; persistence failures are logged.
	if cfg.History.Path != "" {
		if err := recordRun(context.WithoutCancel(ctx), cfg.History.Path, summary); err != nil {
			log.Error("failed to record run history", zap.String("path", cfg.History.Path), zap.Error(err))
		}
	}
	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Error("failed to write metrics", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
		}
	}

	if err := outputSummary(formatter, summary); err != nil {
		return err
	}
	if summary.ExitCode() != ExitSuccess {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d statements failed", summary.Failed, summary.Total))
	}
	return nil
}

// loadStatements reads statements, mapping load errors to command errors.
func loadStatements(path, filter string, f *OutputFormatter) ([]ir.Statement, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("path not found: %s", path), nil)
		}
		return nil, f.Fail(ExitCommandError, ErrCodeLoad, "cannot read statements", err)
	}
	statements, err := catalog.Load(path, filter)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeLoad, "failed to load statements", err)
	}
	return statements, nil
}

func recordRun(ctx context.Context, path string, summary *ir.RunSummary) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.WriteRun(ctx, summary)
}

func emptySummary(f *OutputFormatter) any {
	if f.JSON() {
		return ir.RunSummary{
			SchemaVersion: ir.SchemaVersion,
			ByCategory:    map[string]ir.Counts{},
			Results:       []ir.CallResult{},
		}
	}
	return "No statements found."
}

func outputSummary(f *OutputFormatter, summary *ir.RunSummary) error {
	if f.JSON() {
		return f.Success(summary)
	}
	harness.RenderText(f.Writer, summary)
	return nil
}
