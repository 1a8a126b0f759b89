package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/procprobe/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSummary builds a summary with one result per status.
func createTestSummary(runID string, startedAt time.Time, failedStatus ir.Status) *ir.RunSummary {
	results := []ir.CallResult{
		{StatementID: "sid-get", Seq: 0, Name: "get_assets", Category: "assets", Status: ir.StatusPassed,
			Elapsed: 3 * time.Millisecond, Rows: 2, Columns: 4, Attempts: 1},
		{StatementID: "sid-touch", Seq: 1, Name: "touch_widget", Category: "assets", Status: failedStatus,
			ErrorClass: ir.ErrTypeMismatch, SQLState: "42804", Message: "datatype mismatch", Attempts: 1, Fallbacks: []int{1, 3}},
		{StatementID: "sid-plan", Seq: 2, Name: "get_plan", Category: "billing", Status: ir.StatusSkipped,
			SkipReason: "fixture plan unavailable: no row in plans"},
		{StatementID: "sid-create", Seq: 3, Name: "create_asset", Category: "assets", Status: ir.StatusPassed,
			Rows: 1, Columns: 2, Attempts: 1, Output: map[string]any{"p_asset_id": "a-1", "p_status": "created"}},
	}
	if failedStatus != ir.StatusFailed {
		results[1].ErrorClass, results[1].SQLState, results[1].Message = "", "", ""
	}

	s := &ir.RunSummary{
		SchemaVersion: ir.SchemaVersion,
		RunID:         runID,
		Seed:          18446744073709551615,
		StartedAt:     startedAt,
		Elapsed:       2 * time.Second,
		ByCategory:    map[string]ir.Counts{},
		Results:       results,
	}
	for _, r := range results {
		s.Counts.Add(r)
		c := s.ByCategory[r.Category]
		c.Add(r)
		s.ByCategory[r.Category] = c
	}
	digest, err := ir.SummaryDigest(results)
	if err != nil {
		panic(err)
	}
	s.Digest = digest
	return s
}
