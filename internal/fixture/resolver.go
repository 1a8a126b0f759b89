package fixture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/roach88/procprobe/internal/executor"
	"github.com/roach88/procprobe/internal/infer"
	"github.com/roach88/procprobe/internal/ir"
)

// MissingError reports a fixture that could not be found or created.
// Statements that need it are skipped.
type MissingError = ir.MissingFixtureError

// Resolver finds or creates fixtures in dependency order.
//
// Every write goes through executor.RunCommitted, one transaction per
// fixture, so a fixture is visible to other connections as soon as Ensure
// returns. Lookups run before inserts and inserts tolerate conflicts, so
// running a Resolver against a database seeded by an earlier run reuses
// the existing rows.
type Resolver struct {
	db   *sql.DB
	defs map[ir.FixtureRole]Definition
	seq  []Definition
	gen  *infer.Generator
	log  *zap.Logger

	mu       sync.Mutex
	resolved map[ir.FixtureRole]ir.Fixture
	missing  map[ir.FixtureRole]string
	created  []ir.Fixture
}

// New validates defs and returns a Resolver. A nil gen uses seed 0.
func New(db *sql.DB, defs []Definition, gen *infer.Generator, log *zap.Logger) (*Resolver, error) {
	seq, err := order(defs)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		gen = infer.NewGenerator(0, nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	byRole := make(map[ir.FixtureRole]Definition, len(seq))
	for _, d := range seq {
		byRole[d.Role] = d
	}
	return &Resolver{
		db:       db,
		defs:     byRole,
		seq:      seq,
		gen:      gen.For("fixtures"),
		log:      log.Named("fixture"),
		resolved: make(map[ir.FixtureRole]ir.Fixture),
		missing:  make(map[ir.FixtureRole]string),
	}, nil
}

// Ensure returns the fixture for role, creating it and its dependencies if
// needed. A fixture that cannot be found or created yields *MissingError.
// Any other error is fatal: the connection failed or ctx ended.
func (r *Resolver) Ensure(ctx context.Context, role ir.FixtureRole) (ir.Fixture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensure(ctx, role)
}

// EnsureAll resolves every defined fixture and returns the resulting set.
// It fails when a Required fixture is missing.
func (r *Resolver) EnsureAll(ctx context.Context) (*ir.FixtureSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.seq {
		_, err := r.ensure(ctx, d.Role)
		var missing *MissingError
		switch {
		case err == nil:
		case errors.As(err, &missing):
			if d.Required {
				return nil, fmt.Errorf("required fixture: %w", err)
			}
		default:
			return nil, err
		}
	}
	return r.snapshot(), nil
}

// Set returns the fixtures resolved so far.
func (r *Resolver) Set() *ir.FixtureSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Created returns the fixtures this Resolver inserted, in creation order.
func (r *Resolver) Created() []ir.Fixture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.Fixture(nil), r.created...)
}

func (r *Resolver) snapshot() *ir.FixtureSet {
	fixtures := make([]ir.Fixture, 0, len(r.resolved))
	for _, d := range r.seq {
		if f, ok := r.resolved[d.Role]; ok {
			fixtures = append(fixtures, f)
		}
	}
	return ir.NewFixtureSet(fixtures, r.missing)
}

func (r *Resolver) ensure(ctx context.Context, role ir.FixtureRole) (ir.Fixture, error) {
	if f, ok := r.resolved[role]; ok {
		return f, nil
	}
	if reason, ok := r.missing[role]; ok {
		return ir.Fixture{}, &MissingError{Role: role, Reason: reason}
	}
	d, ok := r.defs[role]
	if !ok {
		return ir.Fixture{}, r.markMissing(role, "no fixture definition")
	}

	// Definitions are acyclic (checked by order), so recursion terminates.
	for _, dep := range d.dependencies() {
		if _, err := r.ensure(ctx, dep); err != nil {
			var missing *MissingError
			if errors.As(err, &missing) {
				return ir.Fixture{}, r.markMissing(role, fmt.Sprintf("depends on %s: %s", dep, missing.Reason))
			}
			return ir.Fixture{}, err
		}
	}

	var f ir.Fixture
	found := false
	err := executor.RunCommitted(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		f, found, err = r.findOrCreate(ctx, tx, d)
		return err
	})
	if err != nil {
		if fatal(ctx, err) {
			return ir.Fixture{}, fmt.Errorf("fixture %s: %w", role, err)
		}
		r.log.Warn("fixture unavailable",
			zap.String("role", string(role)),
			zap.String("table", d.Table),
			zap.Error(err))
		return ir.Fixture{}, r.markMissing(role, err.Error())
	}
	if !found {
		reason := fmt.Sprintf("no row in %s", d.Table)
		r.log.Warn("fixture unavailable",
			zap.String("role", string(role)),
			zap.String("reason", reason))
		return ir.Fixture{}, r.markMissing(role, reason)
	}

	r.resolved[role] = f
	if f.Created {
		r.created = append(r.created, f)
		r.log.Info("fixture created",
			zap.String("role", string(role)),
			zap.String("id", f.ID))
	} else {
		r.log.Debug("fixture found",
			zap.String("role", string(role)),
			zap.String("id", f.ID))
	}
	return f, nil
}

func (r *Resolver) markMissing(role ir.FixtureRole, reason string) error {
	r.missing[role] = reason
	return &MissingError{Role: role, Reason: reason}
}

// findOrCreate looks the row up, inserts it when absent, and looks it up
// again when the insert lost a conflict to a concurrent run.
func (r *Resolver) findOrCreate(ctx context.Context, tx *sql.Tx, d Definition) (ir.Fixture, bool, error) {
	f, found, err := r.lookup(ctx, tx, d)
	if err != nil || found || d.LookupOnly {
		return f, found, err
	}

	query, cols := insertSQL(d)
	values := d.insertColumns()
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i], err = r.arg(values[c])
		if err != nil {
			return ir.Fixture{}, false, fmt.Errorf("column %s: %w", c, err)
		}
	}

	f, found, err = scanFixture(tx.QueryRowContext(ctx, query, args...), d)
	if err != nil {
		return ir.Fixture{}, false, fmt.Errorf("insert into %s: %w", d.Table, err)
	}
	if found {
		f.Created = true
		return f, true, nil
	}
	return r.lookup(ctx, tx, d)
}

func (r *Resolver) lookup(ctx context.Context, tx *sql.Tx, d Definition) (ir.Fixture, bool, error) {
	query, cols := lookupSQL(d)
	args := make([]any, len(cols))
	for i, c := range cols {
		a, err := r.arg(d.Match[c])
		if err != nil {
			return ir.Fixture{}, false, fmt.Errorf("match %s: %w", c, err)
		}
		args[i] = a
	}
	f, found, err := scanFixture(tx.QueryRowContext(ctx, query, args...), d)
	if err != nil {
		return ir.Fixture{}, false, fmt.Errorf("lookup in %s: %w", d.Table, err)
	}
	return f, found, nil
}

func scanFixture(row *sql.Row, d Definition) (ir.Fixture, bool, error) {
	f := ir.Fixture{Role: d.Role}
	var err error
	if d.NumericColumn != "" {
		var n sql.NullInt64
		err = row.Scan(&f.ID, &n)
		f.NumericID, f.HasNumeric = n.Int64, n.Valid
	} else {
		err = row.Scan(&f.ID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Fixture{}, false, nil
	}
	if err != nil {
		return ir.Fixture{}, false, err
	}
	return f, true, nil
}

// arg evaluates one Match/Values expression.
func (r *Resolver) arg(raw string) (any, error) {
	e := parseExpr(raw)
	switch e.kind {
	case exprRef:
		f, ok := r.resolved[e.role]
		if !ok {
			return nil, &MissingError{Role: e.role, Reason: "not resolved"}
		}
		if e.numeric {
			if !f.HasNumeric {
				return nil, &MissingError{Role: e.role, Reason: "no numeric id"}
			}
			return f.NumericID, nil
		}
		return f.ID, nil
	case exprGenerated:
		if e.uuid {
			return uuid.NewString(), nil
		}
		v, err := r.gen.Value(e.strategy, nil)
		if err != nil {
			return nil, err
		}
		return v.Arg(), nil
	default:
		return e.literal, nil
	}
}

// fatal reports whether err means the database cannot be used at all.
func fatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	class, _ := executor.Classify(err)
	return class == ir.ErrConnection
}

// Cleanup deletes the fixtures this Resolver created, dependents first.
// Each delete commits on its own so one failure does not keep the others.
func (r *Resolver) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result *multierror.Error
	kept := r.created[:0:0]
	for i := len(r.created) - 1; i >= 0; i-- {
		f := r.created[i]
		if err := r.remove(ctx, f); err != nil {
			r.log.Warn("fixture cleanup failed",
				zap.String("role", string(f.Role)),
				zap.String("id", f.ID),
				zap.Error(err))
			result = multierror.Append(result, fmt.Errorf("%s %s: %w", f.Role, f.ID, err))
			kept = append([]ir.Fixture{f}, kept...)
			continue
		}
		delete(r.resolved, f.Role)
		r.log.Info("fixture removed",
			zap.String("role", string(f.Role)),
			zap.String("id", f.ID))
	}
	r.created = kept
	return result.ErrorOrNil()
}

// Purge deletes every insertable fixture that a lookup finds, dependents
// first, whether or not this Resolver created it. Lookup-only reference
// data is never deleted.
func (r *Resolver) Purge(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := make(map[ir.FixtureRole]ir.Fixture)
	for _, d := range r.seq {
		if f, ok := r.resolved[d.Role]; ok {
			found[d.Role] = f
			continue
		}
		var (
			f  ir.Fixture
			ok bool
		)
		err := executor.RunCommitted(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
			var err error
			f, ok, err = r.lookup(ctx, tx, d)
			return err
		})
		var missing *MissingError
		switch {
		case errors.As(err, &missing):
			continue
		case err != nil:
			return 0, fmt.Errorf("fixture %s: %w", d.Role, err)
		}
		if ok {
			r.resolved[d.Role] = f
			found[d.Role] = f
		}
	}

	var result *multierror.Error
	removed := 0
	for i := len(r.seq) - 1; i >= 0; i-- {
		d := r.seq[i]
		f, ok := found[d.Role]
		if !ok || d.LookupOnly {
			continue
		}
		if err := r.remove(ctx, f); err != nil {
			r.log.Warn("fixture purge failed",
				zap.String("role", string(f.Role)),
				zap.String("id", f.ID),
				zap.Error(err))
			result = multierror.Append(result, fmt.Errorf("%s %s: %w", f.Role, f.ID, err))
			continue
		}
		delete(r.resolved, d.Role)
		removed++
	}
	r.created = nil
	return removed, result.ErrorOrNil()
}

func (r *Resolver) remove(ctx context.Context, f ir.Fixture) error {
	d := r.defs[f.Role]
	return executor.RunCommitted(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, deleteSQL(d), f.ID)
		return err
	})
}
