package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/procprobe/internal/infer"
	"github.com/roach88/procprobe/internal/ir"
	"github.com/roach88/procprobe/internal/metrics"
)

// Fixtures resolves the baseline entities a run depends on.
// *fixture.Resolver implements it.
type Fixtures interface {
	EnsureAll(ctx context.Context) (*ir.FixtureSet, error)
	Created() []ir.Fixture
	Cleanup(ctx context.Context) error
}

// Executor runs one bound statement in isolation.
// *executor.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, stmt ir.Statement, args []ir.Value, ambient ir.Ambient) ir.CallResult
}

// SetupError reports a failed fixture barrier. It is the only error Run returns.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("fixture setup failed: %v", e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Options configures a Harness.
type Options struct {
	// Workers bounds concurrent statements. Values below 1 mean 1.
	Workers int

	// TenantSetting and UserSetting name the session settings that carry
	// the tenant and user fixture ids. Empty names are not set.
	TenantSetting string
	UserSetting   string

	// Cleanup removes created fixtures after the run.
	Cleanup bool

	// Now overrides the clock used for run timing.
	Now func() time.Time

	// RunID overrides run id generation.
	RunID func() string
}

// Harness wires inference, fixtures and execution into a run.
type Harness struct {
	engine   *infer.Engine
	gen      *infer.Generator
	fixtures Fixtures
	exec     Executor
	metrics  *metrics.Metrics
	log      *zap.Logger
	opts     Options
}

// New creates a Harness. A nil metrics or logger disables them.
func New(engine *infer.Engine, gen *infer.Generator, fixtures Fixtures, exec Executor, m *metrics.Metrics, log *zap.Logger, opts Options) *Harness {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RunID == nil {
		opts.RunID = newRunID
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Harness{
		engine:   engine,
		gen:      gen,
		fixtures: fixtures,
		exec:     exec,
		metrics:  m,
		log:      log.Named("harness"),
		opts:     opts,
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Run tests every statement and returns the summary. Statement failures are
// results, not errors; Run returns a *SetupError only when the fixture
// barrier fails, and then no statement has been executed.
func (h *Harness) Run(ctx context.Context, statements []ir.Statement) (*ir.RunSummary, error) {
	start := h.opts.Now()
	runID := h.opts.RunID()
	log := h.log.With(zap.String("run_id", runID), zap.Uint64("seed", h.gen.Seed()))

	log.Info("resolving fixtures")
	set, err := h.fixtures.EnsureAll(ctx)
	if err != nil {
		log.Error("fixture setup failed", zap.Error(err))
		return nil, &SetupError{Err: err}
	}
	if h.metrics != nil {
		for _, f := range h.fixtures.Created() {
			h.metrics.ObserveFixture(f)
		}
	}
	for role, reason := range set.Missing() {
		log.Warn("fixture missing; dependent statements will be skipped",
			zap.String("role", string(role)),
			zap.String("reason", reason))
	}

	ambient := h.ambient(set)
	agg := NewAggregator()

	log.Info("testing statements",
		zap.Int("statements", len(statements)),
		zap.Int("workers", h.opts.Workers))

	var g errgroup.Group
	g.SetLimit(h.opts.Workers)
	for i, stmt := range statements {
		g.Go(func() error {
			agg.Add(h.test(ctx, i, stmt, set, ambient))
			return nil
		})
	}
	_ = g.Wait()

	if h.opts.Cleanup {
		// Results are already collected; a failed cleanup only gets logged.
		if err := h.fixtures.Cleanup(context.WithoutCancel(ctx)); err != nil {
			log.Warn("fixture cleanup incomplete", zap.Error(err))
		}
	}

	end := h.opts.Now()
	summary, err := agg.Summary(runID, h.gen.Seed(), start, end.Sub(start))
	if err != nil {
		// Only reachable through a canonical-JSON defect; report it as a
		// setup failure rather than returning a summary without a digest.
		return nil, &SetupError{Err: err}
	}
	if h.metrics != nil {
		h.metrics.MarkRun(end)
	}

	log.Info("run complete",
		zap.Int("total", summary.Total),
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("suspect", summary.Suspect),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// ambient builds the session identity from the tenant and user fixtures.
func (h *Harness) ambient(set *ir.FixtureSet) ir.Ambient {
	var a ir.Ambient
	add := func(setting string, role ir.FixtureRole) {
		if setting == "" {
			return
		}
		if id, err := set.ID(role); err == nil {
			a.Settings = append(a.Settings, ir.Setting{Name: setting, Value: id})
		}
	}
	add(h.opts.TenantSetting, ir.FixtureTenant)
	add(h.opts.UserSetting, ir.FixtureUser)
	return a
}

// test runs one statement through infer, bind and execute.
func (h *Harness) test(ctx context.Context, seq int, stmt ir.Statement, set *ir.FixtureSet, ambient ir.Ambient) ir.CallResult {
	res := h.check(ctx, seq, stmt, set, ambient)
	res.Seq = seq
	if h.metrics != nil {
		h.metrics.ObserveCall(res)
	}

	fields := []zap.Field{
		zap.String("statement", stmt.Name),
		zap.String("status", string(res.Status)),
	}
	switch res.Status {
	case ir.StatusFailed:
		h.log.Info("statement failed", append(fields,
			zap.String("class", string(res.ErrorClass)),
			zap.String("sqlstate", res.SQLState),
			zap.Bool("suspect", res.Suspect()),
			zap.String("message", res.Message))...)
	case ir.StatusSkipped:
		h.log.Info("statement skipped", append(fields, zap.String("reason", res.SkipReason))...)
	default:
		h.log.Debug("statement passed", append(fields, zap.Duration("elapsed", res.Elapsed))...)
	}
	return res
}

func (h *Harness) check(ctx context.Context, seq int, stmt ir.Statement, set *ir.FixtureSet, ambient ir.Ambient) ir.CallResult {
	res := ir.CallResult{
		StatementID: stmt.ID,
		Seq:         seq,
		Name:        stmt.Name,
		Category:    stmt.Category,
	}

	// A statement cut off by the run timeout or an interrupt never ran, so
	// it cannot count as a skip.
	if ctx.Err() != nil {
		res.Status = ir.StatusFailed
		res.ErrorClass = ir.ErrTimeout
		res.Message = "run cancelled"
		return res
	}

	if stmt.InferError != "" {
		return inferenceFailure(res, stmt.InferError)
	}
	if stmt.Params == nil {
		specs, err := h.engine.Infer(stmt.SQL, stmt.Name)
		if err != nil {
			return inferenceFailure(res, err.Error())
		}
		stmt.Params = specs
	}
	res.Fallbacks = stmt.FallbackIndexes()
	if h.metrics != nil {
		for _, p := range stmt.Params {
			if p.Fallback {
				h.metrics.ObserveFallback(p)
			}
		}
	}

	values, err := h.gen.For(stmt.ID).Bind(stmt.Params, set)
	if err != nil {
		var missing *ir.MissingFixtureError
		if errors.As(err, &missing) {
			res.Status = ir.StatusSkipped
			res.SkipReason = missing.Error()
			return res
		}
		return inferenceFailure(res, err.Error())
	}

	out := h.exec.Execute(ctx, stmt, values, ambient)
	out.Seq = seq
	return out
}

func inferenceFailure(res ir.CallResult, msg string) ir.CallResult {
	res.Status = ir.StatusFailed
	res.ErrorClass = ir.ErrInference
	res.Message = msg
	return res
}

// Infer runs inference over statements without touching a database. A
// statement whose inference fails keeps the error in InferError.
func Infer(engine *infer.Engine, statements []ir.Statement) []ir.Statement {
	out := make([]ir.Statement, len(statements))
	for i, stmt := range statements {
		specs, err := engine.Infer(stmt.SQL, stmt.Name)
		if err != nil {
			stmt.InferError = err.Error()
		} else {
			stmt.Params = specs
		}
		out[i] = stmt
	}
	return out
}
