package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/procprobe/internal/ir"
)

// WriteRun records a summary and its results in one transaction.
// Uses ON CONFLICT DO NOTHING for idempotency: writing the same run id
// again leaves the first copy untouched.
func (s *Store) WriteRun(ctx context.Context, summary *ir.RunSummary) error {
	if summary == nil || summary.RunID == "" {
		return fmt.Errorf("write run: summary has no run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, schema_version, tool_version, seed, started_at, elapsed_ns,
		 total, passed, failed, skipped, suspect, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		summary.RunID,
		summary.SchemaVersion,
		ir.ToolVersion,
		strconv.FormatUint(summary.Seed, 10),
		summary.StartedAt.UTC().Format(time.RFC3339Nano),
		int64(summary.Elapsed),
		summary.Total,
		summary.Passed,
		summary.Failed,
		summary.Skipped,
		summary.Suspect,
		summary.Digest,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already recorded.
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results
		(run_id, seq, statement_id, name, category, status, elapsed_ns,
		 row_count, column_count, error_class, sqlstate, message, skip_reason,
		 attempts, fallbacks, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write run: prepare results: %w", err)
	}
	defer stmt.Close()

	for _, r := range summary.Results {
		fallbacks, err := marshalFallbacks(r.Fallbacks)
		if err != nil {
			return fmt.Errorf("write run: result %d: %w", r.Seq, err)
		}
		output, err := marshalOutput(r.Output)
		if err != nil {
			return fmt.Errorf("write run: result %d: %w", r.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx,
			summary.RunID,
			r.Seq,
			r.StatementID,
			r.Name,
			r.Category,
			string(r.Status),
			int64(r.Elapsed),
			r.Rows,
			r.Columns,
			string(r.ErrorClass),
			r.SQLState,
			r.Message,
			r.SkipReason,
			r.Attempts,
			fallbacks,
			output,
		); err != nil {
			return fmt.Errorf("write run: result %d: %w", r.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}
	return nil
}

func marshalFallbacks(idx []int) (string, error) {
	if len(idx) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return "", fmt.Errorf("marshal fallbacks: %w", err)
	}
	return string(data), nil
}

// marshalOutput stores a CALL's output row as JSON, or "" when there is none.
func marshalOutput(out map[string]any) (string, error) {
	if len(out) == 0 {
		return "", nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal output: %w", err)
	}
	return string(data), nil
}
