package ir

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FixtureRole is the logical name of a baseline entity.
type FixtureRole string

const (
	FixtureTenant        FixtureRole = "tenant"
	FixtureUser          FixtureRole = "user"
	FixturePersona       FixtureRole = "persona"
	FixtureFFC           FixtureRole = "ffc"
	FixtureCategory      FixtureRole = "category"
	FixtureAsset         FixtureRole = "asset"
	FixtureSubscription  FixtureRole = "subscription"
	FixturePaymentMethod FixtureRole = "payment_method"
	FixturePlan          FixtureRole = "plan"
	FixtureIntegration   FixtureRole = "integration"
	FixtureHEIAsset      FixtureRole = "hei_asset"
	FixturePropertyAsset FixtureRole = "property_asset"
	FixtureEmail         FixtureRole = "email"
	FixturePhone         FixtureRole = "phone"
)

// Fixture is one resolved baseline entity.
type Fixture struct {
	Role FixtureRole `json:"role"`

	// ID is the text form of the primary key (usually a UUID).
	ID string `json:"id"`

	// NumericID is set when the entity also carries an integer key.
	NumericID  int64 `json:"numeric_id,omitempty"`
	HasNumeric bool  `json:"has_numeric,omitempty"`

	// Created is true when this process inserted the row.
	Created bool `json:"created"`
}

// MissingFixtureError reports a prerequisite fixture that could not be
// found or created. Statements depending on it are skipped, not failed.
type MissingFixtureError struct {
	Role   FixtureRole
	Reason string
}

func (e *MissingFixtureError) Error() string {
	return fmt.Sprintf("fixture %s unavailable: %s", e.Role, e.Reason)
}

// FixtureSet maps roles to resolved fixtures.
// Immutable after NewFixtureSet; safe for concurrent readers.
type FixtureSet struct {
	fixtures map[FixtureRole]Fixture
	missing  map[FixtureRole]string
}

// NewFixtureSet builds a FixtureSet, copying its inputs.
func NewFixtureSet(fixtures []Fixture, missing map[FixtureRole]string) *FixtureSet {
	s := &FixtureSet{
		fixtures: make(map[FixtureRole]Fixture, len(fixtures)),
		missing:  make(map[FixtureRole]string, len(missing)),
	}
	for _, f := range fixtures {
		s.fixtures[f.Role] = f
	}
	for role, reason := range missing {
		if _, ok := s.fixtures[role]; !ok {
			s.missing[role] = reason
		}
	}
	return s
}

// Lookup returns the fixture for role.
func (s *FixtureSet) Lookup(role FixtureRole) (Fixture, bool) {
	if s == nil {
		return Fixture{}, false
	}
	f, ok := s.fixtures[role]
	return f, ok
}

// ID returns the text id for role, or a *MissingFixtureError.
func (s *FixtureSet) ID(role FixtureRole) (string, error) {
	f, ok := s.Lookup(role)
	if !ok {
		return "", s.missingError(role)
	}
	return f.ID, nil
}

// NumericID returns the integer id for role, or a *MissingFixtureError
// when the role is missing or has no integer key.
func (s *FixtureSet) NumericID(role FixtureRole) (int64, error) {
	f, ok := s.Lookup(role)
	if !ok {
		return 0, s.missingError(role)
	}
	if !f.HasNumeric {
		return 0, &MissingFixtureError{Role: role, Reason: "no numeric id"}
	}
	return f.NumericID, nil
}

func (s *FixtureSet) missingError(role FixtureRole) error {
	reason := "not resolved"
	if s != nil {
		if r, ok := s.missing[role]; ok {
			reason = r
		}
	}
	return &MissingFixtureError{Role: role, Reason: reason}
}

// Fixtures returns resolved fixtures sorted by role.
func (s *FixtureSet) Fixtures() []Fixture {
	if s == nil {
		return nil
	}
	out := make([]Fixture, 0, len(s.fixtures))
	for _, f := range s.fixtures {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// Missing returns a copy of the unresolved roles and their reasons.
func (s *FixtureSet) Missing() map[FixtureRole]string {
	out := make(map[FixtureRole]string)
	if s == nil {
		return out
	}
	for role, reason := range s.missing {
		out[role] = reason
	}
	return out
}

// MarshalJSON implements json.Marshaler for FixtureSet.
func (s *FixtureSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Fixtures []Fixture             `json:"fixtures"`
		Missing  map[FixtureRole]string `json:"missing,omitempty"`
	}{s.Fixtures(), s.Missing()})
}
