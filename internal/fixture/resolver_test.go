package fixture

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/procprobe/internal/infer"
	"github.com/roach88/procprobe/internal/ir"
	"github.com/roach88/procprobe/internal/logging"
	"github.com/roach88/procprobe/internal/testutil"
)

const (
	tenantLookup   = `SELECT "id", "seq" FROM "tenants" ORDER BY "id" LIMIT 1`
	tenantInsert   = `INSERT INTO "tenants" ("name") VALUES ($1) ON CONFLICT DO NOTHING RETURNING "id", "seq"`
	userLookup     = `SELECT "id" FROM "users" WHERE "tenant_id" = $1 ORDER BY "id" LIMIT 1`
	userInsert     = `INSERT INTO "users" ("email", "tenant_id") VALUES ($1, $2) ON CONFLICT ("email") DO NOTHING RETURNING "id"`
	categoryLookup = `SELECT "id" FROM "asset_categories" ORDER BY "id" LIMIT 1`
)

func testDefinitions() []Definition {
	return []Definition{
		// Declared out of dependency order on purpose.
		{
			Role:            ir.FixtureUser,
			Table:           "users",
			Match:           map[string]string{"tenant_id": "ref:tenant"},
			Values:          map[string]string{"email": "$email"},
			ConflictColumns: []string{"email"},
		},
		{
			Role:          ir.FixtureTenant,
			Table:         "tenants",
			NumericColumn: "seq",
			Values:        map[string]string{"name": "procprobe"},
			Required:      true,
		},
		{Role: ir.FixtureCategory, Table: "asset_categories", LookupOnly: true},
	}
}

func newTestResolver(t *testing.T, defs []Definition) (*Resolver, sqlmock.Sqlmock, *logging.TestLogger) {
	t.Helper()
	db, mock := testutil.NewMockDB(t)
	log := logging.NewTest()
	r, err := New(db, defs, infer.NewGenerator(7, nil), log.Logger)
	require.NoError(t, err)
	return r, mock, log
}

func TestEnsureAllCreatesInDependencyOrder(t *testing.T) {
	r, mock, log := newTestResolver(t, testDefinitions())

	mock.ExpectBegin()
	mock.ExpectQuery(tenantLookup).WillReturnRows(sqlmock.NewRows([]string{"id", "seq"}))
	mock.ExpectQuery(tenantInsert).WithArgs("procprobe").
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq"}).AddRow("t-1", 42))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(userLookup).WithArgs("t-1").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(userInsert).WithArgs(sqlmock.AnyArg(), "t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-1"))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(categoryLookup).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	set, err := r.EnsureAll(context.Background())
	require.NoError(t, err)

	tenantID, err := set.NumericID(ir.FixtureTenant)
	require.NoError(t, err)
	assert.Equal(t, int64(42), tenantID)

	userID, err := set.ID(ir.FixtureUser)
	require.NoError(t, err)
	assert.Equal(t, "u-1", userID)

	_, err = set.ID(ir.FixtureCategory)
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "no row in asset_categories", missing.Reason)

	created := r.Created()
	require.Len(t, created, 2)
	assert.Equal(t, ir.FixtureTenant, created[0].Role)
	assert.Equal(t, ir.FixtureUser, created[1].Role)

	log.AssertLogged(t, zapcore.InfoLevel, "fixture created")
	log.AssertLogged(t, zapcore.WarnLevel, "fixture unavailable")
}

func TestEnsureAllReusesExistingRows(t *testing.T) {
	r, mock, log := newTestResolver(t, testDefinitions())

	// No INSERT expectations: any insert fails the test.
	mock.ExpectBegin()
	mock.ExpectQuery(tenantLookup).WillReturnRows(sqlmock.NewRows([]string{"id", "seq"}).AddRow("t-1", 42))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(userLookup).WithArgs("t-1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-1"))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(categoryLookup).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c-1"))
	mock.ExpectCommit()

	set, err := r.EnsureAll(context.Background())
	require.NoError(t, err)

	assert.Empty(t, r.Created())
	assert.Len(t, set.Fixtures(), 3)
	assert.Empty(t, set.Missing())
	log.AssertNotLogged(t, zapcore.InfoLevel, "fixture created")
}

func TestEnsureAllIsIdempotentWithinResolver(t *testing.T) {
	r, mock, _ := newTestResolver(t, testDefinitions())

	mock.ExpectBegin()
	mock.ExpectQuery(tenantLookup).WillReturnRows(sqlmock.NewRows([]string{"id", "seq"}).AddRow("t-1", 42))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(userLookup).WithArgs("t-1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-1"))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(categoryLookup).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	first, err := r.EnsureAll(context.Background())
	require.NoError(t, err)

	// Resolved and missing roles are both remembered; no further queries.
	second, err := r.EnsureAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Fixtures(), second.Fixtures())
	assert.Equal(t, first.Missing(), second.Missing())
}

func TestEnsureRelooksUpAfterInsertConflict(t *testing.T) {
	r, mock, _ := newTestResolver(t, testDefinitions())

	mock.ExpectBegin()
	mock.ExpectQuery(tenantLookup).WillReturnRows(sqlmock.NewRows([]string{"id", "seq"}))
	mock.ExpectQuery(tenantInsert).WithArgs("procprobe").WillReturnRows(sqlmock.NewRows([]string{"id", "seq"}))
	mock.ExpectQuery(tenantLookup).WillReturnRows(sqlmock.NewRows([]string{"id", "seq"}).AddRow("t-9", 9))
	mock.ExpectCommit()

	f, err := r.Ensure(context.Background(), ir.FixtureTenant)
	require.NoError(t, err)
	assert.Equal(t, "t-9", f.ID)
	assert.False(t, f.Created)
	assert.Empty(t, r.Created())
}

func TestEnsureAllFailsWhenRequiredFixtureMissing(t *testing.T) {
	defs := []Definition{{Role: ir.FixtureTenant, Table: "tenants", LookupOnly: true, Required: true}}
	r, mock, _ := newTestResolver(t, defs)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "id" FROM "tenants" ORDER BY "id" LIMIT 1`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	set, err := r.EnsureAll(context.Background())
	assert.Nil(t, set)
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, ir.FixtureTenant, missing.Role)
}

func TestEnsureMarksDependentsMissing(t *testing.T) {
	defs := testDefinitions()
	defs[1].Required = false
	r, mock, _ := newTestResolver(t, defs)

	mock.ExpectBegin()
	mock.ExpectQuery(tenantLookup).WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "tenants" does not exist`})
	mock.ExpectRollback()

	_, err := r.Ensure(context.Background(), ir.FixtureUser)
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, ir.FixtureUser, missing.Role)
	assert.Contains(t, missing.Reason, "depends on tenant")

	set := r.Set()
	assert.Contains(t, set.Missing(), ir.FixtureTenant)
	assert.Contains(t, set.Missing(), ir.FixtureUser)
}

func TestEnsureCanceledContextIsFatal(t *testing.T) {
	r, _, _ := newTestResolver(t, testDefinitions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.EnsureAll(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	var missing *MissingError
	assert.False(t, errors.As(err, &missing))
}

func TestCleanupRemovesCreatedInReverseOrder(t *testing.T) {
	r, mock, log := newTestResolver(t, testDefinitions())

	mock.ExpectBegin()
	mock.ExpectQuery(tenantLookup).WillReturnRows(sqlmock.NewRows([]string{"id", "seq"}))
	mock.ExpectQuery(tenantInsert).WithArgs("procprobe").
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq"}).AddRow("t-1", 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(userLookup).WithArgs("t-1").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(userInsert).WithArgs(sqlmock.AnyArg(), "t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-1"))
	mock.ExpectCommit()

	_, err := r.Ensure(context.Background(), ir.FixtureUser)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "users" WHERE "id" = $1`).WithArgs("u-1").
		WillReturnError(errors.New("still referenced"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "tenants" WHERE "id" = $1`).WithArgs("t-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = r.Cleanup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still referenced")

	// The failed user delete is kept for a later attempt.
	created := r.Created()
	require.Len(t, created, 1)
	assert.Equal(t, ir.FixtureUser, created[0].Role)
	log.AssertLogged(t, zapcore.WarnLevel, "fixture cleanup failed")
}

func TestPurgeSkipsLookupOnly(t *testing.T) {
	r, mock, _ := newTestResolver(t, testDefinitions())

	mock.ExpectBegin()
	mock.ExpectQuery(tenantLookup).WillReturnRows(sqlmock.NewRows([]string{"id", "seq"}).AddRow("t-1", 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(userLookup).WithArgs("t-1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-1"))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(categoryLookup).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c-1"))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "users" WHERE "id" = $1`).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "tenants" WHERE "id" = $1`).WithArgs("t-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := r.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
