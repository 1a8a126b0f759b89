//go:build integration

package fixture

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/procprobe/internal/infer"
	"github.com/roach88/procprobe/internal/ir"
	"github.com/roach88/procprobe/internal/testutil"
)

const fixtureSchema = `
CREATE TABLE tenants (
	id   uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	seq  bigserial NOT NULL,
	name text NOT NULL UNIQUE
);

CREATE TABLE users (
	id        uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id uuid NOT NULL REFERENCES tenants (id),
	email     text NOT NULL UNIQUE
);

CREATE TABLE asset_categories (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid()
);
`

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), `SELECT count(*) FROM `+table).Scan(&n))
	return n
}

func newPostgresResolver(t *testing.T, db *sql.DB) *Resolver {
	t.Helper()
	r, err := New(db, testDefinitions(), infer.NewGenerator(11, nil), zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestPostgresFixtureLifecycle(t *testing.T) {
	db := testutil.StartPostgres(t, fixtureSchema)
	ctx := context.Background()

	first := newPostgresResolver(t, db)
	set, err := first.EnsureAll(ctx)
	require.NoError(t, err)

	tenant, ok := set.Lookup(ir.FixtureTenant)
	require.True(t, ok)
	assert.True(t, tenant.Created)
	assert.True(t, tenant.HasNumeric)
	user, ok := set.Lookup(ir.FixtureUser)
	require.True(t, ok)
	assert.Contains(t, set.Missing(), ir.FixtureCategory, "lookup-only fixture with no rows is missing")

	var owner string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT tenant_id FROM users WHERE id = $1`, user.ID).Scan(&owner))
	assert.Equal(t, tenant.ID, owner)

	// A second resolver reuses existing rows instead of inserting.
	second := newPostgresResolver(t, db)
	again, err := second.EnsureAll(ctx)
	require.NoError(t, err)
	reused, _ := again.Lookup(ir.FixtureTenant)
	assert.Equal(t, tenant.ID, reused.ID)
	assert.False(t, reused.Created)
	assert.Empty(t, second.Created())

	// Cleanup only touches rows the resolver itself created.
	require.NoError(t, second.Cleanup(ctx))
	assert.Equal(t, 1, count(t, db, "tenants"))
	assert.Equal(t, 1, count(t, db, "users"))

	require.NoError(t, first.Cleanup(ctx))
	assert.Zero(t, count(t, db, "users"))
	assert.Zero(t, count(t, db, "tenants"))
}

func TestPostgresPurgeDeletesDependentsFirst(t *testing.T) {
	db := testutil.StartPostgres(t, fixtureSchema)
	ctx := context.Background()

	_, err := newPostgresResolver(t, db).EnsureAll(ctx)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO asset_categories DEFAULT VALUES`)
	require.NoError(t, err)

	removed, err := newPostgresResolver(t, db).Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Zero(t, count(t, db, "users"))
	assert.Zero(t, count(t, db, "tenants"))
	assert.Equal(t, 1, count(t, db, "asset_categories"), "lookup-only rows are never purged")
}
