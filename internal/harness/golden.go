package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/procprobe/internal/ir"
)

// Snapshot returns the parts of a summary that are stable across runs
// with the same seed: counts and per-statement outcomes. Run id, timing and
// driver messages are left out.
func Snapshot(s *ir.RunSummary) map[string]any {
	results := make([]any, len(s.Results))
	for i, r := range s.Results {
		m := map[string]any{
			"seq":      int64(r.Seq),
			"name":     r.Name,
			"category": r.Category,
			"status":   string(r.Status),
		}
		if r.ErrorClass != "" {
			m["error_class"] = string(r.ErrorClass)
		}
		if r.SQLState != "" {
			m["sqlstate"] = r.SQLState
		}
		if r.SkipReason != "" {
			m["skip_reason"] = r.SkipReason
		}
		if len(r.Fallbacks) > 0 {
			idx := make([]any, len(r.Fallbacks))
			for j, f := range r.Fallbacks {
				idx[j] = int64(f)
			}
			m["fallbacks"] = idx
		}
		results[i] = m
	}

	byCategory := make(map[string]any, len(s.ByCategory))
	for cat, c := range s.ByCategory {
		byCategory[cat] = countsMap(c)
	}

	return map[string]any{
		"schema_version": s.SchemaVersion,
		"counts":         countsMap(s.Counts),
		"by_category":    byCategory,
		"results":        results,
	}
}

func countsMap(c ir.Counts) map[string]any {
	return map[string]any{
		"total":   int64(c.Total),
		"passed":  int64(c.Passed),
		"failed":  int64(c.Failed),
		"skipped": int64(c.Skipped),
		"suspect": int64(c.Suspect),
	}
}

// AssertGolden compares the summary snapshot against
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, s *ir.RunSummary) {
	t.Helper()

	data, err := ir.MarshalCanonical(Snapshot(s))
	if err != nil {
		t.Fatalf("failed to marshal snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
