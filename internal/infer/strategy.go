package infer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/procprobe/internal/ir"
)

// arrayLen is the element count of generated arrays.
const arrayLen = 2

var genericJSON = map[string]any{"test": true, "data": "$word"}

// chooseStrategy maps (type class, role, display name) to a strategy.
func (e *Engine) chooseStrategy(p *ir.ParameterSpec, cast castInfo, displayName string) {
	name := strings.ToLower(displayName)

	switch p.Type {
	case ir.TypeEnum:
		if lit, ok := e.rules.Enums[cast.base]; ok {
			p.Strategy = ir.Literal{Value: ir.String(lit)}
			return
		}
		p.Strategy = ir.NullValue{}
		fallback(p, fmt.Sprintf("no legal value configured for enum %q; bound NULL", cast.base))

	case ir.TypeIdentifierArray, ir.TypeTextArray:
		if e.optionalArray(name) {
			p.Strategy = ir.NullValue{}
			return
		}
		elem := ir.TypeText
		if p.Type == ir.TypeIdentifierArray {
			elem = ir.TypeIdentifier
		}
		p.Strategy = ir.RandomArray{Elem: elem, Len: arrayLen}

	case ir.TypeIdentifier:
		if f, ok := fixtureForRole(p.Role); ok {
			p.Strategy = ir.FixtureRef{Role: f}
			return
		}
		p.Strategy = ir.FixtureRef{Role: ir.FixtureUser}
		fallback(p, fmt.Sprintf("unrecognized identifier role %q; defaulted to user fixture", p.Role))

	case ir.TypeInteger:
		switch {
		case mentionsTenant(p.Role) || (p.Role == "" && mentionsTenant(displayName)):
			p.Strategy = ir.FixtureRef{Role: ir.FixtureTenant, Numeric: true}
		case isPercentage(p.Role):
			p.Strategy = ir.RandomInt{Min: 1, Max: 100}
		default:
			p.Strategy = ir.RandomInt{Min: 1, Max: 1000}
		}

	case ir.TypeDecimal:
		p.Strategy = decimalStrategy(p, cast, displayName)

	case ir.TypeBoolean:
		p.Strategy = ir.Literal{Value: ir.Bool(true)}

	case ir.TypeTemporal:
		if isExpiry(p.Role) {
			p.Strategy = ir.Timestamp{Offset: e.rules.ExpiryOffset}
			return
		}
		p.Strategy = ir.Timestamp{}

	case ir.TypeJSON:
		if tmpl, ok := e.jsonPayload(name, p.Index); ok {
			p.Strategy = ir.JSONObject{Template: tmpl}
			return
		}
		p.Strategy = ir.JSONObject{Template: genericJSON}
		fallback(p, "no payload template for statement; generic object")

	case ir.TypeText:
		if lit, ok := e.rules.TextLiterals[p.Role]; ok && p.Role != "" {
			p.Strategy = ir.Literal{Value: ir.String(lit)}
			return
		}
		switch textKindFor(p.Role) {
		case textEmail:
			p.Strategy = ir.RandomEmail{}
		case textPhone:
			p.Strategy = ir.RandomPhone{}
		case textPersonName:
			p.Strategy = ir.RandomPersonName{}
		default:
			p.Strategy = ir.RandomWord{}
		}

	default:
		p.Strategy = ir.RandomWord{}
		fallback(p, fmt.Sprintf("no strategy for type class %q", p.Type))
	}
}

func (e *Engine) optionalArray(name string) bool {
	for _, family := range e.rules.OptionalArrayFamilies {
		if family != "" && strings.Contains(name, strings.ToLower(family)) {
			return true
		}
	}
	return false
}

// jsonPayload finds a template for the statement family and index.
// Families are tried in sorted order so overlapping substrings resolve the
// same way every run.
func (e *Engine) jsonPayload(name string, index int) (map[string]any, bool) {
	families := make([]string, 0, len(e.rules.JSONPayloads))
	for f := range e.rules.JSONPayloads {
		families = append(families, f)
	}
	sort.Strings(families)
	for _, f := range families {
		if f == "" || !strings.Contains(name, strings.ToLower(f)) {
			continue
		}
		if tmpl, ok := e.rules.JSONPayloads[f][index]; ok {
			return tmpl, true
		}
	}
	return nil, false
}

var (
	decimalOne      = decimal.NewFromInt(1)
	genericDecimal  = decimal.NewFromInt(1_000_000)
	percentMax      = decimal.NewFromInt(100)
	transferMin     = decimal.RequireFromString("0.01")
	transferMax     = decimal.NewFromInt(5)
	genericDecScale = int32(2)
)

// decimalStrategy bounds values strictly inside what numeric(p,s) can hold:
// magnitude below 10^(p-s), truncated to s digits.
func decimalStrategy(p *ir.ParameterSpec, cast castInfo, displayName string) ir.RandomDecimal {
	scale := genericDecScale
	upper := genericDecimal
	if cast.hasPrec {
		scale = int32(cast.scale)
		upper = decimal.New(1, int32(cast.precision-cast.scale))
	}
	smallest := decimal.New(1, -scale)

	lower := decimalOne
	if isPercentage(p.Role) || isPercentage(displayName) {
		if isTransfer(displayName) {
			lower, upper = transferMin, decimal.Min(upper, transferMax)
		} else {
			upper = decimal.Min(upper, percentMax)
		}
	}
	lower = decimal.Max(lower, smallest)
	if lower.GreaterThanOrEqual(upper) {
		lower = decimal.Zero
	}
	return ir.RandomDecimal{Min: lower, Max: upper, Scale: scale}
}
