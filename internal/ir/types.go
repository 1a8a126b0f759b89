package ir

import (
	"encoding/json"
	"fmt"
)

// Kind classifies how a statement is invoked.
type Kind string

const (
	// KindQuery is a plain query (SELECT, INSERT ... RETURNING, SELECT * FROM fn(...)).
	KindQuery Kind = "query"

	// KindCall is a procedure invocation (CALL proc(...)).
	KindCall Kind = "call"
)

// Statement is one parameterized SQL statement under test.
// Immutable once loaded.
type Statement struct {
	// ID is the content-addressed identity (see StatementID).
	ID string `json:"id"`

	// Name is the display name used for heuristics and reporting
	// (file base name or procedure name).
	Name string `json:"name"`

	// Path is the source file, empty for catalog entries.
	Path string `json:"path,omitempty"`

	// Category groups results by operation family.
	Category string `json:"category"`

	// SQL is the raw statement text including comments.
	SQL string `json:"sql"`

	// Kind is query or call.
	Kind Kind `json:"kind"`

	// Params holds one spec per positional placeholder, index 1..N.
	Params []ParameterSpec `json:"params"`

	// InferError is set when inference failed for this statement.
	// The harness reports it as a failure instead of executing.
	InferError string `json:"infer_error,omitempty"`
}

// ParamCount returns the number of positional parameters.
func (s Statement) ParamCount() int {
	return len(s.Params)
}

// HasFallback reports whether any parameter was produced by a fallback path.
func (s Statement) HasFallback() bool {
	for _, p := range s.Params {
		if p.Fallback {
			return true
		}
	}
	return false
}

// FallbackIndexes returns the 1-based indexes of fallback parameters.
func (s Statement) FallbackIndexes() []int {
	var idx []int
	for _, p := range s.Params {
		if p.Fallback {
			idx = append(idx, p.Index)
		}
	}
	return idx
}

// TypeClass is the inferred category of a parameter's database type.
type TypeClass string

const (
	TypeEnum            TypeClass = "enum"
	TypeIdentifierArray TypeClass = "identifier_array"
	TypeTextArray       TypeClass = "text_array"
	TypeIdentifier      TypeClass = "identifier"
	TypeInteger         TypeClass = "integer"
	TypeDecimal         TypeClass = "decimal"
	TypeBoolean         TypeClass = "boolean"
	TypeTemporal        TypeClass = "temporal"
	TypeJSON            TypeClass = "json"
	TypeText            TypeClass = "text"
)

// RoleSource records where a parameter's semantic role came from.
type RoleSource string

const (
	RoleFromComment RoleSource = "comment"
	RoleFromName    RoleSource = "name"
	RoleFromBody    RoleSource = "body"
	RoleNone        RoleSource = ""
)

// ParameterSpec describes one positional parameter.
type ParameterSpec struct {
	// Index is 1-based and matches the $N placeholder.
	Index int `json:"index"`

	// Type is the inferred type class.
	Type TypeClass `json:"type"`

	// Cast is the raw cast text found after the placeholder, lowercased
	// (e.g. "numeric(10,2)", "uuid[]"). Empty when no cast was found.
	Cast string `json:"cast,omitempty"`

	// Precision and Scale are set for decimals with an explicit (p,s).
	Precision int `json:"precision,omitempty"`
	Scale     int `json:"scale,omitempty"`

	// Role is the semantic role, lowercase words separated by spaces
	// (e.g. "owner user"). Empty when unknown.
	Role string `json:"role,omitempty"`

	// RoleSource records how Role was found.
	RoleSource RoleSource `json:"role_source,omitempty"`

	// Strategy produces the concrete value.
	Strategy Strategy `json:"strategy"`

	// Fallback is true when any default path was taken for this parameter.
	Fallback bool `json:"fallback,omitempty"`

	// FallbackReason explains the fallback.
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// String renders a compact one-line description.
func (p ParameterSpec) String() string {
	s := fmt.Sprintf("$%d %s", p.Index, p.Type)
	if p.Role != "" {
		s += fmt.Sprintf(" role=%q", p.Role)
	}
	if p.Strategy != nil {
		s += " via " + p.Strategy.Describe()
	}
	if p.Fallback {
		s += " [fallback: " + p.FallbackReason + "]"
	}
	return s
}

// MarshalJSON renders Strategy by its description.
func (p ParameterSpec) MarshalJSON() ([]byte, error) {
	type alias ParameterSpec
	strategy := ""
	if p.Strategy != nil {
		strategy = p.Strategy.Describe()
	}
	return json.Marshal(struct {
		alias
		Strategy string `json:"strategy"`
	}{alias(p), strategy})
}
