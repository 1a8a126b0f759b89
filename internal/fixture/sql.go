package fixture

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// SQL for fixtures is generated from Definitions. Identifiers are validated
// and quoted; values are always positional parameters, never interpolated.
// Lookups always carry ORDER BY so repeated runs pick the same row.

func quoteTable(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func quoteIdent(col string) string {
	return pgx.Identifier{col}.Sanitize()
}

func sortedColumns(m map[string]string) []string {
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// returning lists the id column and, when configured, the numeric column.
func returning(d Definition) string {
	s := quoteIdent(d.idColumn())
	if d.NumericColumn != "" {
		s += ", " + quoteIdent(d.NumericColumn)
	}
	return s
}

// lookupSQL selects the first matching row. It returns the match columns in
// parameter order.
func lookupSQL(d Definition) (string, []string) {
	cols := sortedColumns(d.Match)

	var where string
	if len(cols) > 0 {
		conds := make([]string, len(cols))
		for i, c := range cols {
			conds[i] = fmt.Sprintf("%s = $%d", quoteIdent(c), i+1)
		}
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	return fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT 1",
		returning(d),
		quoteTable(d.Table),
		where,
		quoteIdent(d.idColumn())), cols
}

// insertSQL inserts one row, tolerating conflicts. A conflict returns no
// row; the caller then looks the row up again.
func insertSQL(d Definition) (string, []string) {
	values := d.insertColumns()
	cols := sortedColumns(values)

	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	conflict := " ON CONFLICT DO NOTHING"
	if len(d.ConflictColumns) > 0 {
		target := make([]string, len(d.ConflictColumns))
		for i, c := range d.ConflictColumns {
			target[i] = quoteIdent(c)
		}
		conflict = fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(target, ", "))
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)%s RETURNING %s",
		quoteTable(d.Table),
		strings.Join(quoted, ", "),
		strings.Join(params, ", "),
		conflict,
		returning(d)), cols
}

// deleteSQL removes one fixture row by id.
func deleteSQL(d Definition) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		quoteTable(d.Table),
		quoteIdent(d.idColumn()))
}
