package harness

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/roach88/procprobe/internal/ir"
)

// RenderText writes a human-readable report: counts per category, then
// failures and skips in run order.
func RenderText(w io.Writer, s *ir.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Category", "Total", "Passed", "Failed", "Suspect", "Skipped"})
	for _, cat := range s.Categories() {
		c := s.ByCategory[cat]
		t.AppendRow(table.Row{cat, c.Total, c.Passed, c.Failed, c.Suspect, c.Skipped})
	}
	t.AppendFooter(table.Row{"all", s.Total, s.Passed, s.Failed, s.Suspect, s.Skipped})
	t.Render()

	if failures := s.Failures(); len(failures) > 0 {
		fmt.Fprintln(w)
		ft := table.NewWriter()
		ft.SetOutputMirror(w)
		ft.SetStyle(table.StyleRounded)
		ft.AppendHeader(table.Row{"Statement", "Outcome", "Class", "SQLSTATE", "Message"})
		for _, r := range failures {
			ft.AppendRow(table.Row{r.Name, outcome(r), r.ErrorClass, r.SQLState, firstLine(r.Message)})
		}
		ft.Render()
	}

	var skipped []ir.CallResult
	for _, r := range s.Results {
		if r.Status == ir.StatusSkipped {
			skipped = append(skipped, r)
		}
	}
	if len(skipped) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Skipped (%d):\n", len(skipped))
		for _, r := range skipped {
			fmt.Fprintf(w, "  - %s: %s\n", r.Name, r.SkipReason)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run %s (seed %d): %d passed, %d failed, %d skipped in %s\n",
		s.RunID, s.Seed, s.Passed, s.Failed, s.Skipped, s.Elapsed.Round(time.Millisecond))
}

// outcome labels a failure, separating guessed-argument failures.
func outcome(r ir.CallResult) string {
	if r.Suspect() {
		return "failed (inferred args)"
	}
	return string(r.Status)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
