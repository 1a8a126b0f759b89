package ir

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Value is a sealed interface representing a bound parameter value.
// Only the value types in this package implement it.
//
// Arg returns the value in a form accepted by database/sql drivers.
// Arrays, decimals, identifiers and JSON are passed as their Postgres
// text representation; the statement's own cast gives them their type.
type Value interface {
	value() // Sealed

	Arg() any
}

// Null represents SQL NULL.
type Null struct{}

func (Null) value() {}

func (Null) Arg() any { return nil }

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a text value.
type String string

func (String) value() {}

func (v String) Arg() any { return string(v) }

// Int represents an integer value.
type Int int64

func (Int) value() {}

func (v Int) Arg() any { return int64(v) }

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

func (v Bool) Arg() any { return bool(v) }

// Decimal represents a fixed-point value.
type Decimal struct {
	decimal.Decimal
}

func (Decimal) value() {}

func (v Decimal) Arg() any { return v.String() }

// Time represents a temporal value.
type Time time.Time

func (Time) value() {}

func (v Time) Arg() any { return time.Time(v) }

// MarshalJSON implements json.Marshaler for Time.
func (v Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(v).UTC().Format(time.RFC3339Nano))
}

// UUID represents a globally unique identifier.
type UUID uuid.UUID

func (UUID) value() {}

func (v UUID) Arg() any { return uuid.UUID(v).String() }

// MarshalJSON implements json.Marshaler for UUID.
func (v UUID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(v).String())
}

// JSON represents a structured document.
type JSON struct {
	Doc map[string]any
}

func (JSON) value() {}

func (v JSON) Arg() any {
	data, err := json.Marshal(v.Doc)
	if err != nil {
		// Doc is built from generator templates of plain values.
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}

// MarshalJSON implements json.Marshaler for JSON.
func (v JSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Doc)
}

// TextArray represents text[].
type TextArray []string

func (TextArray) value() {}

func (v TextArray) Arg() any { return arrayLiteral(v) }

// UUIDArray represents uuid[].
type UUIDArray []uuid.UUID

func (UUIDArray) value() {}

func (v UUIDArray) Arg() any {
	elems := make([]string, len(v))
	for i, id := range v {
		elems[i] = id.String()
	}
	return arrayLiteral(elems)
}

var arrayEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// arrayLiteral renders elements as a Postgres array literal with every
// element double-quoted.
func arrayLiteral(elems []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range elems {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(arrayEscaper.Replace(e))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// Args converts bound values to driver arguments, preserving order.
// Exhaustive over the sealed Value union; an unknown type is a programming error.
func Args(values []Value) ([]any, error) {
	args := make([]any, len(values))
	for i, v := range values {
		switch v.(type) {
		case Null, String, Int, Bool, Decimal, Time, UUID, JSON, TextArray, UUIDArray:
			args[i] = v.Arg()
		case nil:
			return nil, fmt.Errorf("parameter $%d: nil value", i+1)
		default:
			return nil, fmt.Errorf("parameter $%d: unknown value type %T", i+1, v)
		}
	}
	return args, nil
}
