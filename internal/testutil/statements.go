package testutil

import "github.com/roach88/procprobe/internal/ir"

// Statement builds a statement with its content-addressed ID set.
func Statement(name, category, sql string, params ...ir.ParameterSpec) ir.Statement {
	kind := ir.KindQuery
	if len(sql) >= 4 && (sql[:4] == "CALL" || sql[:4] == "call") {
		kind = ir.KindCall
	}
	return ir.Statement{
		ID:       ir.MustStatementID(name, sql),
		Name:     name,
		Category: category,
		SQL:      sql,
		Kind:     kind,
		Params:   params,
	}
}
