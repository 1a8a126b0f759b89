package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/procprobe/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database  string
	RunID     string // show one run
	Statement string // show one statement across runs
	Limit     int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `Show runs recorded with "procprobe run --history".

Without flags, lists recent runs newest first. --run shows one run in full;
--statement shows one statement's outcome across runs.

Examples:
  procprobe history --db ./probe.db
  procprobe history --db ./probe.db --run 0190a4b2-...
  procprobe history --db ./probe.db --statement get_assets --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to run history database (default history.path)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show one run")
	cmd.Flags().StringVar(&opts.Statement, "statement", "", "show one statement across runs")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum rows (0 for all)")
	cmd.MarkFlagsMutuallyExclusive("run", "statement")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	path := opts.Database
	if path == "" {
		cfg, log, err := loadConfig(opts.RootOptions, formatter, cmd)
		if err != nil {
			return err
		}
		syncLog(log)
		path = cfg.History.Path
	}
	if path == "" {
		return formatter.Fail(ExitCommandError, ErrCodeHistory, "no history database: pass --db or set history.path", nil)
	}

	st, err := store.Open(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to open history database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	switch {
	case opts.RunID != "":
		summary, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			return formatter.Fail(ExitCommandError, ErrCodeRunNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to read run", err)
		}
		return outputSummary(formatter, summary)

	case opts.Statement != "":
		runs, err := st.StatementHistory(ctx, opts.Statement, opts.Limit)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to read statement history", err)
		}
		if formatter.JSON() {
			return formatter.Success(runs)
		}
		renderStatementHistory(formatter.Writer, opts.Statement, runs)
		return nil

	default:
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to list runs", err)
		}
		if formatter.JSON() {
			return formatter.Success(runs)
		}
		renderRuns(formatter.Writer, runs)
		return nil
	}
}

func renderRuns(w io.Writer, runs []store.RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Run", "Started", "Seed", "Total", "Passed", "Failed", "Skipped", "Suspect", "Elapsed"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID,
			r.StartedAt.UTC().Format(time.RFC3339),
			r.Seed,
			r.Total, r.Passed, r.Failed, r.Skipped, r.Suspect,
			r.Elapsed.Round(time.Millisecond),
		})
	}
	t.Render()
}

func renderStatementHistory(w io.Writer, name string, runs []store.StatementRun) {
	if len(runs) == 0 {
		fmt.Fprintf(w, "No recorded runs of %s.\n", name)
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(name)
	t.AppendHeader(table.Row{"Run", "Started", "Status", "Class", "Elapsed", "Detail"})
	for _, r := range runs {
		detail := r.Message
		if r.SkipReason != "" {
			detail = r.SkipReason
		}
		detail, _, _ = strings.Cut(detail, "\n")
		t.AppendRow(table.Row{
			r.RunID,
			r.StartedAt.UTC().Format(time.RFC3339),
			r.Status,
			r.ErrorClass,
			r.Elapsed.Round(time.Millisecond),
			detail,
		})
	}
	t.Render()
}
