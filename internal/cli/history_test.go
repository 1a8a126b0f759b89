package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procprobe/internal/ir"
	"github.com/roach88/procprobe/internal/store"
)

var started = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func summaryFixture(t *testing.T, runID string, at time.Time) *ir.RunSummary {
	t.Helper()
	results := []ir.CallResult{
		{StatementID: "sid-get", Seq: 0, Name: "get_assets", Category: "assets", Status: ir.StatusPassed,
			Elapsed: 4 * time.Millisecond, Rows: 3, Columns: 5, Attempts: 1},
		{StatementID: "sid-touch", Seq: 1, Name: "touch_widget", Category: "assets", Status: ir.StatusFailed,
			ErrorClass: ir.ErrTypeMismatch, SQLState: "42804", Message: "datatype mismatch\nDETAIL: uuid vs text",
			Attempts: 1, Fallbacks: []int{1}},
	}
	s := &ir.RunSummary{
		SchemaVersion: ir.SchemaVersion,
		RunID:         runID,
		Seed:          42,
		StartedAt:     at,
		Elapsed:       1500 * time.Millisecond,
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
	require.NoError(t, err)
	s.Digest = digest
	return s
}

func historyDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.WriteRun(ctx, summaryFixture(t, "run-old", started)))
	require.NoError(t, st.WriteRun(ctx, summaryFixture(t, "run-new", started.Add(time.Hour))))
	return path
}

func TestHistoryListRuns(t *testing.T) {
	out, _, err := execute(t, "history", "--db", historyDB(t))
	require.NoError(t, err)

	assert.Contains(t, out, "run-old")
	assert.Contains(t, out, "run-new")
	assert.Less(t, strings.Index(out, "run-new"), strings.Index(out, "run-old"), "newest run first")
}

func TestHistoryListRunsJSON(t *testing.T) {
	out, _, err := execute(t, "history", "--db", historyDB(t), "--limit", "1", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			ID     string `json:"id"`
			Seed   uint64 `json:"seed"`
			Failed int    `json:"failed"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "run-new", resp.Data[0].ID)
	assert.Equal(t, uint64(42), resp.Data[0].Seed)
	assert.Equal(t, 1, resp.Data[0].Failed)
}

func TestHistoryShowRun(t *testing.T) {
	out, _, err := execute(t, "history", "--db", historyDB(t), "--run", "run-old")
	require.NoError(t, err)

	assert.Contains(t, out, "Run run-old (seed 42): 1 passed, 1 failed, 0 skipped")
	assert.Contains(t, out, "failed (inferred args)")
}

func TestHistoryRunNotFound(t *testing.T) {
	out, _, err := execute(t, "history", "--db", historyDB(t), "--run", "missing", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRunNotFound, resp.Error.Code)
}

func TestHistoryStatement(t *testing.T) {
	out, _, err := execute(t, "history", "--db", historyDB(t), "--statement", "touch_widget")
	require.NoError(t, err)

	assert.Contains(t, out, "touch_widget")
	assert.Contains(t, out, "datatype mismatch")
	assert.NotContains(t, out, "uuid vs text", "only the first line of a message is shown")
}

func TestHistoryRunAndStatementExclusive(t *testing.T) {
	_, _, err := execute(t, "history", "--db", historyDB(t), "--run", "run-old", "--statement", "touch_widget")
	require.Error(t, err)
}

func TestHistoryWithoutDatabase(t *testing.T) {
	t.Setenv("PROCPROBE_HISTORY_PATH", "")

	_, _, err := execute(t, "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no history database")
}
