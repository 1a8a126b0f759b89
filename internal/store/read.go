package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/procprobe/internal/ir"
)

// ErrRunNotFound is returned when a run id is not in the history.
var ErrRunNotFound = errors.New("run not found")

// RunInfo is one row of the run list.
type RunInfo struct {
	ID          string        `json:"id"`
	ToolVersion string        `json:"tool_version"`
	Seed        uint64        `json:"seed"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	ir.Counts
	Digest string `json:"digest"`
}

// StatementRun is one statement's outcome in one run.
type StatementRun struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	ir.CallResult
}

const runColumns = `id, tool_version, seed, started_at, elapsed_ns,
	total, passed, failed, skipped, suspect, digest`

// ListRuns returns up to limit runs, newest first. A limit of 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun rebuilds the summary of one run. ByCategory is recomputed from
// the stored results.
func (s *Store) ReadRun(ctx context.Context, runID string) (*ir.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	info, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	results, err := s.ReadResults(ctx, runID)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string]ir.Counts)
	for _, r := range results {
		c := byCategory[r.Category]
		c.Add(r)
		byCategory[r.Category] = c
	}

	return &ir.RunSummary{
		SchemaVersion: ir.SchemaVersion,
		RunID:         info.ID,
		Seed:          info.Seed,
		StartedAt:     info.StartedAt,
		Elapsed:       info.Elapsed,
		Counts:        info.Counts,
		ByCategory:    byCategory,
		Results:       results,
		Digest:        info.Digest,
	}, nil
}

const resultColumns = `seq, statement_id, name, category, status, elapsed_ns,
	row_count, column_count, error_class, sqlstate, message, skip_reason,
	attempts, fallbacks, output`

// ReadResults returns a run's results ordered by seq.
func (s *Store) ReadResults(ctx context.Context, runID string) ([]ir.CallResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resultColumns+`
		FROM results
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []ir.CallResult{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// StatementHistory returns the outcomes of every statement named name,
// newest run first.
func (s *Store) StatementHistory(ctx context.Context, name string, limit int) ([]StatementRun, error) {
	query := `
		SELECT r.id, r.started_at, ` + prefixed("x", resultColumns) + `
		FROM results x
		JOIN runs r ON r.id = x.run_id
		WHERE x.name = ?
		ORDER BY r.started_at DESC, r.id ASC, x.seq ASC`
	args := []any{name}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query statement history: %w", err)
	}
	defer rows.Close()

	history := []StatementRun{}
	for rows.Next() {
		var (
			h       StatementRun
			started string
		)
		r, err := scanResult(rows, &h.RunID, &started)
		if err != nil {
			return nil, err
		}
		if h.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		h.CallResult = r
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statement history: %w", err)
	}
	return history, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunInfo, error) {
	var (
		info    RunInfo
		seed    string
		started string
		elapsed int64
	)
	err := row.Scan(&info.ID, &info.ToolVersion, &seed, &started, &elapsed,
		&info.Total, &info.Passed, &info.Failed, &info.Skipped, &info.Suspect, &info.Digest)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, err
	}
	if err != nil {
		return RunInfo{}, fmt.Errorf("scan run: %w", err)
	}
	if info.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return RunInfo{}, fmt.Errorf("parse seed: %w", err)
	}
	if info.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return RunInfo{}, fmt.Errorf("parse started_at: %w", err)
	}
	info.Elapsed = time.Duration(elapsed)
	return info, nil
}

// scanResult scans result columns, after any leading destinations.
func scanResult(row scanner, leading ...any) (ir.CallResult, error) {
	var (
		r         ir.CallResult
		status    string
		class     string
		elapsed   int64
		fallbacks string
		output    string
	)
	dest := append(leading,
		&r.Seq, &r.StatementID, &r.Name, &r.Category, &status, &elapsed,
		&r.Rows, &r.Columns, &class, &r.SQLState, &r.Message, &r.SkipReason,
		&r.Attempts, &fallbacks, &output)
	if err := row.Scan(dest...); err != nil {
		return ir.CallResult{}, fmt.Errorf("scan result: %w", err)
	}
	r.Status = ir.Status(status)
	r.ErrorClass = ir.ErrorClass(class)
	r.Elapsed = time.Duration(elapsed)
	if err := json.Unmarshal([]byte(fallbacks), &r.Fallbacks); err != nil {
		return ir.CallResult{}, fmt.Errorf("unmarshal fallbacks: %w", err)
	}
	if len(r.Fallbacks) == 0 {
		r.Fallbacks = nil
	}
	if output != "" {
		if err := json.Unmarshal([]byte(output), &r.Output); err != nil {
			return ir.CallResult{}, fmt.Errorf("unmarshal output: %w", err)
		}
	}
	return r, nil
}

func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
