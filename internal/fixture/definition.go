package fixture

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/procprobe/internal/ir"
)

// Definition describes how to find or create one fixture.
//
// Expressions in Match and Values are either literals or one of:
//
//	ref:<role>          id of another fixture (creates a dependency)
//	ref:<role>.numeric  integer id of another fixture
//	$uuid $word $email $phone $name $now
type Definition struct {
	Role ir.FixtureRole `koanf:"role"`

	// Table may be schema-qualified.
	Table string `koanf:"table"`

	// IDColumn defaults to "id".
	IDColumn string `koanf:"id_column"`

	// NumericColumn, when set, is read as the fixture's integer id.
	NumericColumn string `koanf:"numeric_column"`

	// Match filters the lookup; an empty Match reuses any row.
	Match map[string]string `koanf:"match"`

	// Values are inserted when no row matches. Match columns are included.
	Values map[string]string `koanf:"values"`

	// ConflictColumns names the ON CONFLICT target; empty means any conflict.
	ConflictColumns []string `koanf:"conflict_columns"`

	// LookupOnly fixtures are reference data: never inserted, only found.
	LookupOnly bool `koanf:"lookup_only"`

	// Required fixtures abort the run when they cannot be resolved.
	Required bool `koanf:"required"`
}

func (d Definition) idColumn() string {
	if d.IDColumn == "" {
		return "id"
	}
	return d.IDColumn
}

// insertColumns merges Match and Values, Values winning.
func (d Definition) insertColumns() map[string]string {
	cols := make(map[string]string, len(d.Match)+len(d.Values))
	for k, v := range d.Match {
		cols[k] = v
	}
	for k, v := range d.Values {
		cols[k] = v
	}
	return cols
}

// dependencies returns referenced roles in sorted order.
func (d Definition) dependencies() []ir.FixtureRole {
	seen := make(map[ir.FixtureRole]bool)
	for _, exprs := range []map[string]string{d.Match, d.Values} {
		for _, raw := range exprs {
			if e := parseExpr(raw); e.kind == exprRef {
				seen[e.role] = true
			}
		}
	}
	deps := make([]ir.FixtureRole, 0, len(seen))
	for r := range seen {
		deps = append(deps, r)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return deps
}

type exprKind int

const (
	exprLiteral exprKind = iota
	exprRef
	exprGenerated
)

// expr is a parsed Match/Values expression.
type expr struct {
	kind     exprKind
	literal  string
	role     ir.FixtureRole
	numeric  bool
	strategy ir.Strategy
	uuid     bool
}

var generated = map[string]ir.Strategy{
	"$word":  ir.RandomWord{},
	"$email": ir.RandomEmail{},
	"$phone": ir.RandomPhone{},
	"$name":  ir.RandomPersonName{},
	"$now":   ir.Timestamp{},
}

func parseExpr(raw string) expr {
	if strings.HasPrefix(raw, "ref:") {
		ref := strings.TrimPrefix(raw, "ref:")
		numeric := false
		if strings.HasSuffix(ref, ".numeric") {
			ref = strings.TrimSuffix(ref, ".numeric")
			numeric = true
		}
		return expr{kind: exprRef, role: ir.FixtureRole(ref), numeric: numeric}
	}
	if raw == "$uuid" {
		return expr{kind: exprGenerated, uuid: true}
	}
	if s, ok := generated[raw]; ok {
		return expr{kind: exprGenerated, strategy: s}
	}
	return expr{kind: exprLiteral, literal: raw}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(s string) bool {
	return identRe.MatchString(s)
}

func validTable(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if !validIdent(p) {
			return false
		}
	}
	return true
}

// order validates definitions and returns them in dependency order.
// Ties keep declaration order.
func order(defs []Definition) ([]Definition, error) {
	byRole := make(map[ir.FixtureRole]Definition, len(defs))
	for _, d := range defs {
		if d.Role == "" {
			return nil, fmt.Errorf("fixture definition for table %q has no role", d.Table)
		}
		if _, dup := byRole[d.Role]; dup {
			return nil, fmt.Errorf("fixture %s defined twice", d.Role)
		}
		if err := validate(d); err != nil {
			return nil, fmt.Errorf("fixture %s: %w", d.Role, err)
		}
		byRole[d.Role] = d
	}
	for _, d := range defs {
		for _, dep := range d.dependencies() {
			if _, ok := byRole[dep]; !ok {
				return nil, fmt.Errorf("fixture %s references undefined fixture %s", d.Role, dep)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[ir.FixtureRole]int, len(defs))
	sorted := make([]Definition, 0, len(defs))
	var visit func(d Definition, path []ir.FixtureRole) error
	visit = func(d Definition, path []ir.FixtureRole) error {
		switch state[d.Role] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("fixture dependency cycle: %v", append(path, d.Role))
		}
		state[d.Role] = visiting
		for _, dep := range d.dependencies() {
			if err := visit(byRole[dep], append(path, d.Role)); err != nil {
				return err
			}
		}
		state[d.Role] = done
		sorted = append(sorted, d)
		return nil
	}
	for _, d := range defs {
		if err := visit(d, nil); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

func validate(d Definition) error {
	if !validTable(d.Table) {
		return fmt.Errorf("invalid table name %q", d.Table)
	}
	if !validIdent(d.idColumn()) {
		return fmt.Errorf("invalid id column %q", d.IDColumn)
	}
	if d.NumericColumn != "" && !validIdent(d.NumericColumn) {
		return fmt.Errorf("invalid numeric column %q", d.NumericColumn)
	}
	for col := range d.insertColumns() {
		if !validIdent(col) {
			return fmt.Errorf("invalid column %q", col)
		}
	}
	for _, col := range d.ConflictColumns {
		if !validIdent(col) {
			return fmt.Errorf("invalid conflict column %q", col)
		}
	}
	if !d.LookupOnly && len(d.insertColumns()) == 0 {
		return fmt.Errorf("insertable fixture needs values")
	}
	return nil
}

// DefaultDefinitions returns fixtures for the conventional schema: tenants
// own users, users own personas, personas own family groups (ffcs) and
// assets, and assets belong to a category. Categories, plans and the
// remaining roles are reference data and are only looked up.
func DefaultDefinitions() []Definition {
	tenantScoped := func(role ir.FixtureRole, table string) Definition {
		return Definition{
			Role:       role,
			Table:      table,
			Match:      map[string]string{"tenant_id": "ref:tenant"},
			LookupOnly: true,
		}
	}
	return []Definition{
		{
			Role:     ir.FixtureTenant,
			Table:    "tenants",
			Values:   map[string]string{"name": "procprobe"},
			Required: true,
		},
		{
			Role:  ir.FixtureUser,
			Table: "users",
			Match: map[string]string{"tenant_id": "ref:tenant"},
			Values: map[string]string{
				"email":      "procprobe@example.test",
				"first_name": "Probe",
				"last_name":  "User",
			},
			ConflictColumns: []string{"email"},
		},
		{
			Role:  ir.FixturePersona,
			Table: "personas",
			Match: map[string]string{"user_id": "ref:user"},
			Values: map[string]string{
				"tenant_id":  "ref:tenant",
				"first_name": "Probe",
				"last_name":  "Persona",
			},
		},
		{
			Role:  ir.FixtureFFC,
			Table: "ffcs",
			Match: map[string]string{"owner_persona_id": "ref:persona"},
			Values: map[string]string{
				"tenant_id": "ref:tenant",
				"name":      "procprobe family",
			},
		},
		{
			Role:       ir.FixtureCategory,
			Table:      "asset_categories",
			LookupOnly: true,
		},
		{
			Role:  ir.FixtureAsset,
			Table: "assets",
			Match: map[string]string{"owner_persona_id": "ref:persona"},
			Values: map[string]string{
				"tenant_id":   "ref:tenant",
				"category_id": "ref:category",
				"name":        "procprobe asset",
			},
		},
		{Role: ir.FixturePlan, Table: "plans", LookupOnly: true},
		tenantScoped(ir.FixtureSubscription, "subscriptions"),
		tenantScoped(ir.FixturePaymentMethod, "payment_methods"),
		tenantScoped(ir.FixtureIntegration, "integrations"),
		tenantScoped(ir.FixtureHEIAsset, "hei_assets"),
		tenantScoped(ir.FixturePropertyAsset, "property_assets"),
		tenantScoped(ir.FixtureEmail, "email_addresses"),
		tenantScoped(ir.FixturePhone, "phone_numbers"),
	}
}
