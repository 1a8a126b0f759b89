package infer

import (
	"slices"
	"strings"
	"time"

	"github.com/roach88/procprobe/internal/ir"
)

// Rules is the data that drives inference. Type names and enum literals are
// configuration, not logic, so the engine can target any schema.
type Rules struct {
	// Type names per type class, lowercase without length modifiers.
	IdentifierTypes []string
	IntegerTypes    []string
	DecimalTypes    []string
	BooleanTypes    []string
	TemporalTypes   []string
	JSONTypes       []string
	TextTypes       []string

	// EnumSuffix marks a cast as an enum type (default "_enum").
	EnumSuffix string

	// Enums maps an enum type name to one legal literal.
	Enums map[string]string

	// OptionalArrayFamilies are display-name substrings of statements whose
	// array parameters are optional; those arrays bind to NULL.
	OptionalArrayFamilies []string

	// TextLiterals maps a role to a fixed literal (e.g. a known test table).
	TextLiterals map[string]string

	// JSONPayloads maps a display-name substring to per-index object templates.
	JSONPayloads map[string]map[int]map[string]any

	// ExpiryOffset is added to now for expiry-flavored temporal roles.
	ExpiryOffset time.Duration
}

// SetTextLiteral binds literal to the role name refers to. name may be
// written as a parameter or column ("p_space_id"); it is normalized the way
// inferred roles are, so it matches "space".
func (r *Rules) SetTextLiteral(name, literal string) {
	if r.TextLiterals == nil {
		r.TextLiterals = map[string]string{}
	}
	if role := normalizeRole(name); role != "" {
		r.TextLiterals[role] = literal
	}
}

// DefaultRules returns rules for a Postgres schema with uuid keys.
func DefaultRules() Rules {
	return Rules{
		IdentifierTypes: []string{"uuid"},
		IntegerTypes:    []string{"int", "integer", "int2", "int4", "int8", "smallint", "bigint", "serial", "bigserial"},
		DecimalTypes:    []string{"numeric", "decimal", "money", "real", "double", "float4", "float8"},
		BooleanTypes:    []string{"bool", "boolean"},
		TemporalTypes:   []string{"timestamptz", "timestamp", "date", "time", "timetz"},
		JSONTypes:       []string{"jsonb", "json"},
		TextTypes:       []string{"text", "varchar", "character", "char", "citext", "bpchar", "name"},
		EnumSuffix:      "_enum",
		Enums:           map[string]string{},

		OptionalArrayFamilies: []string{"search", "filter", "list_"},
		TextLiterals:          map[string]string{},
		JSONPayloads:          map[string]map[int]map[string]any{},
		ExpiryOffset:          30 * 24 * time.Hour,
	}
}

// castInfo is a parsed "::type" annotation.
type castInfo struct {
	raw       string // normalized cast text, e.g. "numeric(10,2)"
	base      string // type name without schema, modifiers or brackets
	array     bool
	precision int
	scale     int
	hasPrec   bool
}

// typeRule maps a cast to a type class. Rules are evaluated in order and the
// first match wins.
type typeRule struct {
	class ir.TypeClass
	match func(r *Rules, c castInfo) bool
}

// typeRules is ordered most specific first. Array forms precede their
// scalar element types, and explicit-precision decimals precede generic ones.
var typeRules = []typeRule{
	{ir.TypeEnum, func(r *Rules, c castInfo) bool {
		if c.array {
			return false
		}
		if _, ok := r.Enums[c.base]; ok {
			return true
		}
		return r.EnumSuffix != "" && strings.HasSuffix(c.base, r.EnumSuffix)
	}},
	{ir.TypeIdentifierArray, func(r *Rules, c castInfo) bool {
		return c.array && slices.Contains(r.IdentifierTypes, c.base)
	}},
	{ir.TypeTextArray, func(r *Rules, c castInfo) bool {
		return c.array && slices.Contains(r.TextTypes, c.base)
	}},
	{ir.TypeIdentifier, func(r *Rules, c castInfo) bool {
		return !c.array && slices.Contains(r.IdentifierTypes, c.base)
	}},
	{ir.TypeInteger, func(r *Rules, c castInfo) bool {
		return !c.array && slices.Contains(r.IntegerTypes, c.base)
	}},
	{ir.TypeDecimal, func(r *Rules, c castInfo) bool {
		return !c.array && c.hasPrec && slices.Contains(r.DecimalTypes, c.base)
	}},
	{ir.TypeDecimal, func(r *Rules, c castInfo) bool {
		return !c.array && slices.Contains(r.DecimalTypes, c.base)
	}},
	{ir.TypeBoolean, func(r *Rules, c castInfo) bool {
		return !c.array && slices.Contains(r.BooleanTypes, c.base)
	}},
	{ir.TypeTemporal, func(r *Rules, c castInfo) bool {
		return !c.array && slices.Contains(r.TemporalTypes, c.base)
	}},
	{ir.TypeJSON, func(r *Rules, c castInfo) bool {
		return !c.array && slices.Contains(r.JSONTypes, c.base)
	}},
	{ir.TypeText, func(r *Rules, c castInfo) bool {
		return !c.array && slices.Contains(r.TextTypes, c.base)
	}},
}

// classify returns the index of the first matching rule, or -1.
// A lower index is more specific.
func (r *Rules) classify(c castInfo) int {
	for i, rule := range typeRules {
		if rule.match(r, c) {
			return i
		}
	}
	return -1
}
