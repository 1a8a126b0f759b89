package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/procprobe/internal/harness"
	"github.com/roach88/procprobe/internal/infer"
	"github.com/roach88/procprobe/internal/ir"
)

// InferOptions holds flags for the infer command.
type InferOptions struct {
	*RootOptions
	Filter string
}

// InferResult is the JSON payload of the infer command.
type InferResult struct {
	Statements []ir.Statement `json:"statements"`
	Fallbacks  int            `json:"fallbacks"`
	Failed     int            `json:"failed"`
}

// NewInferCommand creates the infer command.
func NewInferCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InferOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "infer <path>",
		Short: "Show inferred parameters without touching a database",
		Long: `Run parameter inference over every statement and print the result:
type class, semantic role and where it came from, value strategy, and
whether a fallback path was taken.

Exit codes:
  0 - Inference succeeded for every statement
  1 - Inference failed for at least one statement
  2 - Command error

Examples:
  procprobe infer ./sql
  procprobe infer ./catalog.yaml --filter "create_*" --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfer(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter statements by glob on display name")

	return cmd
}

func runInfer(opts *InferOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, log, err := loadConfig(opts.RootOptions, formatter, cmd)
	if err != nil {
		return err
	}
	defer syncLog(log)

	statements, err := loadStatements(path, opts.Filter, formatter)
	if err != nil {
		return err
	}

	result := InferResult{Statements: harness.Infer(infer.NewEngine(cfg.Rules(), log), statements)}
	for _, stmt := range result.Statements {
		if stmt.InferError != "" {
			result.Failed++
		}
		result.Fallbacks += len(stmt.FallbackIndexes())
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		renderInference(formatter.Writer, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("inference failed for %d statement(s)", result.Failed))
	}
	return nil
}

func renderInference(w io.Writer, result InferResult) {
	if len(result.Statements) == 0 {
		fmt.Fprintln(w, "No statements found.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Statement", "Param", "Type", "Role", "Source", "Strategy", "Fallback"})
	for _, stmt := range result.Statements {
		if stmt.InferError != "" {
			t.AppendRow(table.Row{stmt.Name, "-", "-", "-", "-", "-", "error: " + stmt.InferError})
			continue
		}
		if len(stmt.Params) == 0 {
			t.AppendRow(table.Row{stmt.Name, "-", "-", "-", "-", "-", ""})
			continue
		}
		for _, p := range stmt.Params {
			strategy := ""
			if p.Strategy != nil {
				strategy = p.Strategy.Describe()
			}
			t.AppendRow(table.Row{
				stmt.Name,
				"$" + strconv.Itoa(p.Index),
				string(p.Type),
				p.Role,
				string(p.RoleSource),
				strategy,
				p.FallbackReason,
			})
		}
		t.AppendSeparator()
	}
	t.Render()

	fmt.Fprintf(w, "%d statement(s), %d fallback parameter(s), %d inference failure(s)\n",
		len(result.Statements), result.Fallbacks, result.Failed)
}
