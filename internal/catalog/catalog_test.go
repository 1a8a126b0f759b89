package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procprobe/internal/ir"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "assets", "get_assets.sql"), "-- $1: p_tenant_id UUID - tenant\nSELECT * FROM get_assets($1::uuid);\n")
	writeFile(t, filepath.Join(dir, "assets", "nested", "close_asset.sql"), "CALL close_asset($1::uuid)")
	writeFile(t, filepath.Join(dir, "ping.sql"), "SELECT 1")
	writeFile(t, filepath.Join(dir, "README.md"), "not sql")

	stmts, err := LoadDir(dir, "")
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	byName := make(map[string]ir.Statement)
	for _, s := range stmts {
		byName[s.Name] = s
	}

	get := byName["get_assets"]
	assert.Equal(t, "assets", get.Category)
	assert.Equal(t, ir.KindQuery, get.Kind)
	assert.Equal(t, ir.MustStatementID("get_assets", get.SQL), get.ID)
	assert.Empty(t, get.Params)

	closeAsset := byName["close_asset"]
	assert.Equal(t, "assets", closeAsset.Category)
	assert.Equal(t, ir.KindCall, closeAsset.Kind)

	assert.Equal(t, DefaultCategory, byName["ping"].Category)
}

func TestLoadDirFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "get_assets.sql"), "SELECT 1")
	writeFile(t, filepath.Join(dir, "get_users.sql"), "SELECT 2")
	writeFile(t, filepath.Join(dir, "delete_asset.sql"), "SELECT 3")

	stmts, err := LoadDir(dir, "get_*")
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "get_assets", stmts[0].Name)
	assert.Equal(t, "get_users", stmts[1].Name)

	_, err = LoadDir(dir, "[")
	assert.ErrorContains(t, err, "invalid filter pattern")
}

func TestLoadDirRejectsCommentOnlyFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "empty.sql"), "-- nothing here\n")

	_, err := LoadDir(dir, "")
	assert.ErrorContains(t, err, "no executable SQL")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ir.KindCall, Classify("-- header\n  call do_it($1)"))
	assert.Equal(t, ir.KindCall, Classify("CALL x()"))
	assert.Equal(t, ir.KindQuery, Classify("SELECT * FROM callers"))
	assert.Equal(t, ir.KindQuery, Classify(""))
}

const catalogYAML = `
statements:
  - name: ping
    sql: SELECT 1
  - name: close_invoice
    category: billing
    schema: billing
    kind: call
    args:
      - name: p_tenant_id
        type: UUID
        description: owning tenant
      - name: p_amount
        type: numeric(10,2)
  - name: list_assets
    category: assets
    kind: function
    args:
      - name: p_owner_persona_id
        type: uuid
`

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	writeFile(t, path, catalogYAML)

	stmts, err := LoadCatalog(path, "")
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	assert.Equal(t, DefaultCategory, stmts[0].Category)
	assert.Equal(t, "SELECT 1", stmts[0].SQL)

	assert.Equal(t, "billing", stmts[1].Category)
	assert.Equal(t, ir.KindCall, stmts[1].Kind)
	assert.Equal(t,
		"-- $1: p_tenant_id uuid - owning tenant\n"+
			"-- $2: p_amount numeric(10,2)\n"+
			"CALL billing.close_invoice($1::uuid, $2::numeric(10,2))",
		stmts[1].SQL)

	assert.Equal(t, ir.KindQuery, stmts[2].Kind)
	assert.Equal(t, "-- $1: p_owner_persona_id uuid\nSELECT * FROM list_assets($1::uuid)", stmts[2].SQL)
}

func TestLoadCatalogFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	writeFile(t, path, catalogYAML)

	stmts, err := LoadCatalog(path, "*_invoice")
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, "close_invoice", stmts[0].Name)
}

func TestLoadCatalogRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "statements:\n  - name: a\n    sql: SELECT 1\n    sqll: x\n", "failed to parse YAML"},
		{"missing name", "statements:\n  - sql: SELECT 1\n", "name is required"},
		{"duplicate", "statements:\n  - name: a\n    sql: SELECT 1\n  - name: a\n    sql: SELECT 2\n", "duplicate name"},
		{"mixed", "statements:\n  - name: a\n    sql: SELECT 1\n    kind: call\n", "mutually exclusive"},
		{"no kind", "statements:\n  - name: a\n", "sql or kind is required"},
		{"bad kind", "statements:\n  - name: a\n    kind: trigger\n", "unknown kind"},
		{"bad type", "statements:\n  - name: a\n    kind: call\n    args:\n      - name: p\n        type: \"uuid); drop\"\n", "invalid type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "catalog.yaml")
			writeFile(t, path, tt.yaml)
			_, err := LoadCatalog(path, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDispatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sql", "a.sql"), "SELECT 1")
	writeFile(t, filepath.Join(dir, "catalog.yml"), catalogYAML)

	fromDir, err := Load(filepath.Join(dir, "sql"), "")
	require.NoError(t, err)
	assert.Len(t, fromDir, 1)

	fromFile, err := Load(filepath.Join(dir, "sql", "a.sql"), "")
	require.NoError(t, err)
	require.Len(t, fromFile, 1)
	assert.Equal(t, DefaultCategory, fromFile[0].Category)

	fromCatalog, err := Load(filepath.Join(dir, "catalog.yml"), "")
	require.NoError(t, err)
	assert.Len(t, fromCatalog, 3)

	_, err = Load(filepath.Join(dir, "missing"), "")
	assert.Error(t, err)
}
