//go:build integration

package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procprobe/internal/ir"
	"github.com/roach88/procprobe/internal/testutil"
)

const widgetSchema = `
CREATE TABLE widgets (
	id    uuid PRIMARY KEY,
	name  text NOT NULL UNIQUE,
	owner text
);

CREATE PROCEDURE add_widget(p_id uuid, p_name text)
LANGUAGE sql AS $$
	INSERT INTO widgets (id, name, owner)
	VALUES (p_id, p_name, current_setting('app.current_user_id', true))
$$;

INSERT INTO widgets (id, name) VALUES ('00000000-0000-4000-8000-000000000001', 'existing');
`

func widgetCount(t *testing.T, e *Executor) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRowContext(context.Background(), `SELECT count(*) FROM widgets`).Scan(&n))
	return n
}

func TestPostgresIsolation(t *testing.T) {
	db := testutil.StartPostgres(t, widgetSchema)
	e := New(db, Options{Timeout: 5 * time.Second, Retries: 1, RetryDelay: 10 * time.Millisecond}, nil)
	ctx := context.Background()
	ambient := ir.Ambient{Settings: []ir.Setting{{Name: "app.current_user_id", Value: "probe-user"}}}

	addWidget := testutil.Statement("add_widget", "widgets", "CALL add_widget($1::uuid, $2::text)")

	t.Run("successful call leaves no rows behind", func(t *testing.T) {
		res := e.Execute(ctx, addWidget, []ir.Value{ir.UUID(uuid.New()), ir.String("fresh")}, ambient)

		assert.Equal(t, ir.StatusPassed, res.Status, res.Message)
		assert.Equal(t, 1, widgetCount(t, e))
	})

	t.Run("concurrent calls on the same key do not interfere", func(t *testing.T) {
		const workers = 6
		results := make([]ir.CallResult, workers)
		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = e.Execute(ctx, addWidget, []ir.Value{ir.UUID(uuid.New()), ir.String("shared")}, ambient)
			}()
		}
		wg.Wait()

		for _, res := range results {
			assert.Equal(t, ir.StatusPassed, res.Status, res.Message)
		}
		assert.Equal(t, 1, widgetCount(t, e))
	})

	t.Run("constraint violation is classified", func(t *testing.T) {
		res := e.Execute(ctx, addWidget, []ir.Value{ir.UUID(uuid.New()), ir.String("existing")}, ambient)

		assert.Equal(t, ir.StatusFailed, res.Status)
		assert.Equal(t, ir.ErrConstraint, res.ErrorClass)
		assert.Equal(t, "23505", res.SQLState)
		assert.Equal(t, 1, res.Attempts)
	})

	t.Run("missing function is classified", func(t *testing.T) {
		stmt := testutil.Statement("no_such_fn", "widgets", "SELECT * FROM no_such_fn($1::int)")
		res := e.Execute(ctx, stmt, []ir.Value{ir.Int(1)}, ir.Ambient{})

		assert.Equal(t, ir.StatusFailed, res.Status)
		assert.Equal(t, ir.ErrMissingFunction, res.ErrorClass)
		assert.Equal(t, "42883", res.SQLState)
	})

	t.Run("ambient settings are transaction local", func(t *testing.T) {
		stmt := testutil.Statement("whoami", "widgets",
			"SELECT 1 WHERE current_setting('app.current_user_id', true) = 'probe-user'")

		with := e.Execute(ctx, stmt, nil, ambient)
		require.Equal(t, ir.StatusPassed, with.Status, with.Message)
		assert.Equal(t, int64(1), with.Rows)

		without := e.Execute(ctx, stmt, nil, ir.Ambient{})
		require.Equal(t, ir.StatusPassed, without.Status, without.Message)
		assert.Equal(t, int64(0), without.Rows)
	})

	t.Run("timeout is retried once", func(t *testing.T) {
		slow := New(db, Options{Timeout: 100 * time.Millisecond, Retries: 1, RetryDelay: 10 * time.Millisecond}, nil)
		stmt := testutil.Statement("sleepy", "widgets", "SELECT pg_sleep(2)")

		res := slow.Execute(ctx, stmt, nil, ir.Ambient{})

		assert.Equal(t, ir.StatusFailed, res.Status)
		assert.Equal(t, ir.ErrTimeout, res.ErrorClass)
		assert.Equal(t, 2, res.Attempts)
	})

	t.Run("savepoint path leaves the outer transaction usable", func(t *testing.T) {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		defer tx.Rollback() //nolint:errcheck

		bad := e.ExecuteInTx(ctx, tx, addWidget, []ir.Value{ir.UUID(uuid.New()), ir.String("existing")}, ambient)
		assert.Equal(t, ir.ErrConstraint, bad.ErrorClass)

		good := e.ExecuteInTx(ctx, tx, addWidget, []ir.Value{ir.UUID(uuid.New()), ir.String("inner")}, ambient)
		assert.Equal(t, ir.StatusPassed, good.Status, good.Message)

		var n int
		require.NoError(t, tx.QueryRowContext(ctx, `SELECT count(*) FROM widgets`).Scan(&n))
		assert.Equal(t, 1, n, "savepoints roll back even successful calls")
	})
}
