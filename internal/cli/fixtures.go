package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/procprobe/internal/config"
	"github.com/roach88/procprobe/internal/fixture"
	"github.com/roach88/procprobe/internal/infer"
	"github.com/roach88/procprobe/internal/ir"
)

// PurgeResult is the JSON payload of fixtures cleanup.
type PurgeResult struct {
	Deleted int `json:"deleted"`
}

// NewFixturesCommand creates the fixtures command group.
func NewFixturesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Manage the shared fixture rows",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Find or create every fixture and print the set",
		Long: `Find or create every configured fixture in dependency order and print
the resolved set. Fixtures that cannot be resolved are listed with a reason.

Exit codes:
  0 - Every required fixture resolved
  2 - A required fixture is missing, or the database is unreachable`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixturesEnsure(rootOpts, cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete fixture rows, dependents first",
		Long: `Look up every insertable fixture and delete the rows found, dependents
first. Lookup-only reference data is never deleted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixturesCleanup(rootOpts, cmd)
		},
	})

	return cmd
}

// withResolver loads config, connects and hands a Resolver to fn.
func withResolver(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, r *fixture.Resolver, f *OutputFormatter) error) error {
	formatter := newFormatter(opts, cmd)

	cfg, log, err := loadConfig(opts, formatter, cmd)
	if err != nil {
		return err
	}
	defer syncLog(log)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Run.Timeout)
	defer cancel()

	db, err := connect(ctx, cfg, formatter)
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := newResolver(cfg, db, log)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid fixture definitions", err)
	}
	return fn(ctx, r, formatter)
}

func newResolver(cfg *config.Config, db *sql.DB, log *zap.Logger) (*fixture.Resolver, error) {
	gen := infer.NewGenerator(cfg.Seed(time.Now()), time.Now)
	return fixture.New(db, cfg.FixtureDefinitions(), gen, log)
}

func runFixturesEnsure(opts *RootOptions, cmd *cobra.Command) error {
	return withResolver(opts, cmd, func(ctx context.Context, r *fixture.Resolver, f *OutputFormatter) error {
		set, err := r.EnsureAll(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeSetup, "fixture setup failed", err)
		}
		if f.JSON() {
			return f.Success(set)
		}
		renderFixtures(f.Writer, set)
		return nil
	})
}

func runFixturesCleanup(opts *RootOptions, cmd *cobra.Command) error {
	return withResolver(opts, cmd, func(ctx context.Context, r *fixture.Resolver, f *OutputFormatter) error {
		deleted, err := r.Purge(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric,
				fmt.Sprintf("fixture cleanup incomplete (%d deleted)", deleted), err)
		}
		if f.JSON() {
			return f.Success(PurgeResult{Deleted: deleted})
		}
		return f.Success(fmt.Sprintf("Deleted %d fixture row(s).", deleted))
	})
}

func renderFixtures(w io.Writer, set *ir.FixtureSet) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Role", "ID", "Numeric ID", "Created"})
	for _, fx := range set.Fixtures() {
		numeric := ""
		if fx.HasNumeric {
			numeric = strconv.FormatInt(fx.NumericID, 10)
		}
		t.AppendRow(table.Row{fx.Role, fx.ID, numeric, fx.Created})
	}
	t.Render()

	missing := set.Missing()
	if len(missing) == 0 {
		return
	}
	roles := make([]string, 0, len(missing))
	for role := range missing {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)
	fmt.Fprintf(w, "Missing (%d):\n", len(missing))
	for _, role := range roles {
		fmt.Fprintf(w, "  %s: %s\n", role, missing[ir.FixtureRole(role)])
	}
}
