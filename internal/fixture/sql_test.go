package fixture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupSQL(t *testing.T) {
	d := Definition{
		Table:         "app.personas",
		NumericColumn: "seq",
		Match:         map[string]string{"user_id": "ref:user", "tenant_id": "ref:tenant"},
	}

	sql, cols := lookupSQL(d)

	assert.Equal(t, `SELECT "id", "seq" FROM "app"."personas" WHERE "tenant_id" = $1 AND "user_id" = $2 ORDER BY "id" LIMIT 1`, sql)
	assert.Equal(t, []string{"tenant_id", "user_id"}, cols)
}

func TestLookupSQLAnyRow(t *testing.T) {
	sql, cols := lookupSQL(Definition{Table: "tenants", IDColumn: "tenant_uuid"})

	assert.Equal(t, `SELECT "tenant_uuid" FROM "tenants" ORDER BY "tenant_uuid" LIMIT 1`, sql)
	assert.Empty(t, cols)
}

func TestInsertSQL(t *testing.T) {
	d := Definition{
		Table:           "users",
		Match:           map[string]string{"tenant_id": "ref:tenant"},
		Values:          map[string]string{"email": "a@example.test", "tenant_id": "ref:tenant"},
		ConflictColumns: []string{"email"},
	}

	sql, cols := insertSQL(d)

	assert.Equal(t, `INSERT INTO "users" ("email", "tenant_id") VALUES ($1, $2) ON CONFLICT ("email") DO NOTHING RETURNING "id"`, sql)
	assert.Equal(t, []string{"email", "tenant_id"}, cols)

	// Values never appear in the SQL text.
	assert.NotContains(t, sql, "a@example.test")
}

func TestInsertSQLAnyConflict(t *testing.T) {
	sql, _ := insertSQL(Definition{Table: "tenants", Values: map[string]string{"name": "procprobe"}})
	assert.Equal(t, `INSERT INTO "tenants" ("name") VALUES ($1) ON CONFLICT DO NOTHING RETURNING "id"`, sql)
}

func TestDeleteSQL(t *testing.T) {
	assert.Equal(t, `DELETE FROM "assets" WHERE "id" = $1`, deleteSQL(Definition{Table: "assets"}))
}
