package ir

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Strategy is a sealed interface describing how a parameter value is produced.
// Only the strategy types in this package implement it, so generators can
// switch over them exhaustively.
type Strategy interface {
	strategy() // Sealed

	// Describe returns a short human-readable label.
	Describe() string
}

// FixtureRef resolves the value from the FixtureSet.
// Numeric selects the fixture's integer id instead of its text id.
type FixtureRef struct {
	Role    FixtureRole
	Numeric bool
}

func (FixtureRef) strategy() {}

func (s FixtureRef) Describe() string {
	if s.Numeric {
		return fmt.Sprintf("fixture(%s, numeric)", s.Role)
	}
	return fmt.Sprintf("fixture(%s)", s.Role)
}

// Literal always produces the same value.
type Literal struct {
	Value Value
}

func (Literal) strategy() {}

func (s Literal) Describe() string {
	return fmt.Sprintf("literal(%v)", s.Value.Arg())
}

// RandomInt produces an integer in [Min, Max].
type RandomInt struct {
	Min, Max int64
}

func (RandomInt) strategy() {}

func (s RandomInt) Describe() string {
	return fmt.Sprintf("random_int[%d,%d]", s.Min, s.Max)
}

// RandomDecimal produces a decimal in [Min, Max) rounded to Scale digits.
type RandomDecimal struct {
	Min   decimal.Decimal
	Max   decimal.Decimal
	Scale int32
}

func (RandomDecimal) strategy() {}

func (s RandomDecimal) Describe() string {
	return fmt.Sprintf("random_decimal[%s,%s) scale=%d", s.Min, s.Max, s.Scale)
}

// RandomWord produces a random lowercase word.
type RandomWord struct{}

func (RandomWord) strategy() {}

func (RandomWord) Describe() string { return "random_word" }

// RandomEmail produces a unique address under a reserved domain.
type RandomEmail struct{}

func (RandomEmail) strategy() {}

func (RandomEmail) Describe() string { return "random_email" }

// RandomPhone produces an E.164 number in a fictional range.
type RandomPhone struct{}

func (RandomPhone) strategy() {}

func (RandomPhone) Describe() string { return "random_phone" }

// RandomPersonName produces a capitalised name.
type RandomPersonName struct{}

func (RandomPersonName) strategy() {}

func (RandomPersonName) Describe() string { return "random_person_name" }

// Timestamp produces the bind-time instant plus Offset.
type Timestamp struct {
	Offset time.Duration
}

func (Timestamp) strategy() {}

func (s Timestamp) Describe() string {
	if s.Offset == 0 {
		return "now"
	}
	return fmt.Sprintf("now+%s", s.Offset)
}

// RandomArray produces Len random elements of Elem
// (TypeIdentifier or TypeText).
type RandomArray struct {
	Elem TypeClass
	Len  int
}

func (RandomArray) strategy() {}

func (s RandomArray) Describe() string {
	return fmt.Sprintf("random_array(%s x%d)", s.Elem, s.Len)
}

// NullValue produces SQL NULL.
type NullValue struct{}

func (NullValue) strategy() {}

func (NullValue) Describe() string { return "null" }

// JSONObject produces a JSON document from Template.
// String leaves equal to "$word", "$uuid" or "$now" are substituted at bind time.
type JSONObject struct {
	Template map[string]any
}

func (JSONObject) strategy() {}

func (s JSONObject) Describe() string {
	return fmt.Sprintf("json_object(%d keys)", len(s.Template))
}
