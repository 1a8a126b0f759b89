// Package executor runs one statement per isolated, always-rolled-back
// transaction.
//
// Execute owns a dedicated connection for its duration. Ambient identity is
// applied as transaction-local settings through a parameterized call, the
// statement runs, and the transaction is rolled back before the connection
// goes back to the pool. If rollback fails or the call was cancelled, the
// connection is discarded instead. RunCommitted is the only code path that
// commits, and it exists for fixture creation.
package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/roach88/procprobe/internal/ir"
)

// DefaultSetSQL applies one ambient setting with transaction-local scope.
const DefaultSetSQL = "SELECT set_config($1, $2, true)"

// Options configures an Executor.
type Options struct {
	// Timeout bounds each attempt. Zero means no per-attempt bound.
	Timeout time.Duration

	// Retries is the number of retries for transient failures (0 or 1).
	Retries int

	// RetryDelay is the minimum wait before a retry.
	RetryDelay time.Duration

	// SetSQL applies one setting; it receives name and value as $1 and $2.
	SetSQL string

	// Now overrides the clock used for elapsed time.
	Now func() time.Time
}

// Executor runs statements in isolated transactions.
// Safe for concurrent use; each call takes its own connection.
type Executor struct {
	db   *sql.DB
	opts Options
	log  *zap.Logger

	savepoints atomic.Int64
}

// New creates an Executor. A nil logger disables logging.
func New(db *sql.DB, opts Options, log *zap.Logger) *Executor {
	if opts.SetSQL == "" {
		opts.SetSQL = DefaultSetSQL
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Retries > 1 {
		opts.Retries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{db: db, opts: opts, log: log}
}

// querier is satisfied by *sql.Tx and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execute runs stmt with args inside a transaction that is always rolled
// back. It never returns an error; every outcome is in the CallResult.
// Transient failures (timeout, connection, conflict) are retried at most once.
func (e *Executor) Execute(ctx context.Context, stmt ir.Statement, args []ir.Value, ambient ir.Ambient) ir.CallResult {
	res := newResult(stmt)
	start := e.opts.Now()

	driverArgs, err := ir.Args(args)
	if err != nil {
		res.Status = ir.StatusFailed
		res.ErrorClass = ir.ErrInference
		res.Message = err.Error()
		res.Elapsed = e.opts.Now().Sub(start)
		return res
	}

	b := &backoff.Backoff{
		Min:    e.opts.RetryDelay,
		Max:    10 * e.opts.RetryDelay,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 1; ; attempt++ {
		out := e.attempt(ctx, stmt, driverArgs, ambient)
		out.applyTo(&res)
		res.Attempts = attempt

		if !out.retryable() || attempt > e.opts.Retries || ctx.Err() != nil {
			break
		}
		e.log.Debug("retrying transient failure",
			zap.String("statement", stmt.Name),
			zap.String("class", string(out.class)),
			zap.Int("attempt", attempt))
		if err := sleep(ctx, b.Duration()); err != nil {
			break
		}
	}

	res.Elapsed = e.opts.Now().Sub(start)
	return res
}

// ExecuteInTx runs stmt inside an open transaction under a savepoint that
// is always rolled back. The caller keeps ownership of tx.
func (e *Executor) ExecuteInTx(ctx context.Context, tx *sql.Tx, stmt ir.Statement, args []ir.Value, ambient ir.Ambient) ir.CallResult {
	res := newResult(stmt)
	res.Attempts = 1
	start := e.opts.Now()

	driverArgs, err := ir.Args(args)
	if err != nil {
		res.Status = ir.StatusFailed
		res.ErrorClass = ir.ErrInference
		res.Message = err.Error()
	} else {
		e.inSavepoint(ctx, tx, stmt, driverArgs, ambient).applyTo(&res)
	}

	res.Elapsed = e.opts.Now().Sub(start)
	return res
}

func (e *Executor) inSavepoint(ctx context.Context, tx *sql.Tx, stmt ir.Statement, args []any, ambient ir.Ambient) outcome {
	name := fmt.Sprintf("procprobe_sp_%d", e.savepoints.Add(1))
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return failed(err)
	}

	out := e.run(ctx, tx, stmt, args, ambient)

	// Rollback uses a context that outlives cancellation of ctx.
	rbCtx := context.WithoutCancel(ctx)
	if _, err := tx.ExecContext(rbCtx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		e.log.Warn("savepoint rollback failed", zap.String("statement", stmt.Name), zap.Error(err))
		if out.err == nil {
			out = failed(fmt.Errorf("rollback to savepoint: %w", err))
		}
		return out
	}
	if _, err := tx.ExecContext(rbCtx, "RELEASE SAVEPOINT "+name); err != nil {
		e.log.Warn("savepoint release failed", zap.String("statement", stmt.Name), zap.Error(err))
	}
	return out
}

func newResult(stmt ir.Statement) ir.CallResult {
	return ir.CallResult{
		StatementID: stmt.ID,
		Name:        stmt.Name,
		Category:    stmt.Category,
		Fallbacks:   stmt.FallbackIndexes(),
	}
}

// attempt performs one isolated execution on a dedicated connection.
func (e *Executor) attempt(ctx context.Context, stmt ir.Statement, args []any, ambient ir.Ambient) outcome {
	actx, cancel := e.attemptContext(ctx)
	defer cancel()

	conn, err := e.db.Conn(actx)
	if err != nil {
		return e.failedIn(actx, err)
	}

	discard := false
	defer func() {
		if discard {
			// Returning ErrBadConn from Raw closes the driver connection
			// instead of pooling it.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		_ = conn.Close()
	}()

	// The transaction's own context is never cancelled so rollback is always
	// issued explicitly on this connection. Statements use actx.
	tx, err := conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		discard = true
		return e.failedIn(actx, err)
	}

	out := e.run(actx, tx, stmt, args, ambient)

	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		e.log.Warn("rollback failed; discarding connection",
			zap.String("statement", stmt.Name), zap.Error(err))
		discard = true
		if out.err == nil {
			out = failed(fmt.Errorf("rollback: %w", err))
		}
	}
	if actx.Err() != nil {
		discard = true
		if out.err != nil {
			out = e.failedIn(actx, out.err)
		}
	}
	return out
}

func (e *Executor) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.Timeout > 0 {
		return context.WithTimeout(ctx, e.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// run applies ambient settings and executes the statement.
func (e *Executor) run(ctx context.Context, q querier, stmt ir.Statement, args []any, ambient ir.Ambient) outcome {
	for _, s := range ambient.Settings {
		if _, err := q.ExecContext(ctx, e.opts.SetSQL, s.Name, s.Value); err != nil {
			return failed(fmt.Errorf("set %s: %w", s.Name, err))
		}
	}

	rows, err := q.QueryContext(ctx, stmt.SQL, args...)
	if err != nil {
		return failed(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return failed(err)
	}
	var (
		n      int64
		output map[string]any
	)
	for rows.Next() {
		if n == 0 && stmt.Kind == ir.KindCall && len(cols) > 0 {
			if output, err = scanOutput(rows, cols); err != nil {
				return failed(err)
			}
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return failed(err)
	}
	if err := rows.Close(); err != nil {
		return failed(err)
	}
	return outcome{rows: n, columns: len(cols), output: output}
}

// scanOutput reads the current row into a column-keyed map. Text the
// driver hands back as bytes is kept as a string.
func scanOutput(rows *sql.Rows, cols []string) (map[string]any, error) {
	vals := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan output: %w", err)
	}
	out := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			out[c] = string(b)
			continue
		}
		out[c] = vals[i]
	}
	return out, nil
}

// failedIn classifies err, reporting the attempt deadline as a timeout when
// the parent context is still live.
func (e *Executor) failedIn(actx context.Context, err error) outcome {
	out := failed(err)
	if errors.Is(actx.Err(), context.DeadlineExceeded) {
		out.class = ir.ErrTimeout
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// outcome is the result of one attempt before it is folded into a CallResult.
type outcome struct {
	rows     int64
	columns  int
	output   map[string]any
	err      error
	class    ir.ErrorClass
	sqlstate string
}

func failed(err error) outcome {
	class, state := Classify(err)
	return outcome{err: err, class: class, sqlstate: state}
}

func (o outcome) retryable() bool {
	return o.err != nil && o.class.Transient()
}

func (o outcome) applyTo(res *ir.CallResult) {
	if o.err == nil {
		res.Status = ir.StatusPassed
		res.Rows, res.Columns, res.Output = o.rows, o.columns, o.output
		res.ErrorClass, res.SQLState, res.Message = "", "", ""
		return
	}
	res.Status = ir.StatusFailed
	res.Rows, res.Columns, res.Output = 0, 0, nil
	res.ErrorClass = o.class
	res.SQLState = o.sqlstate
	res.Message = errorMessage(o.err)
}
