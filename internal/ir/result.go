package ir

import (
	"sort"
	"time"
)

// Status is the outcome of one statement.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ErrorClass categorizes a failure.
type ErrorClass string

const (
	ErrConstraint      ErrorClass = "constraint"
	ErrMissingFunction ErrorClass = "missing_function"
	ErrTypeMismatch    ErrorClass = "type_mismatch"
	ErrPermission      ErrorClass = "permission"
	ErrTimeout         ErrorClass = "timeout"
	ErrConnection      ErrorClass = "connection"
	ErrConflict        ErrorClass = "conflict" // serialization failure or deadlock
	ErrInference       ErrorClass = "inference"
	ErrOther           ErrorClass = "other"
)

// Transient reports whether a failure of this class may succeed on retry.
func (c ErrorClass) Transient() bool {
	return c == ErrTimeout || c == ErrConnection || c == ErrConflict
}

// Ambient is the identity injected as transaction-local settings before
// each call, so row-level security and audit triggers see the test identity.
type Ambient struct {
	Settings []Setting `json:"settings"`
}

// Setting is one name/value pair applied with transaction-local scope.
type Setting struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CallResult is the immutable outcome of one CallAttempt.
type CallResult struct {
	StatementID string `json:"statement_id"`

	// Seq is the statement's position in the run; results are ordered by it.
	Seq int `json:"seq"`

	Name     string        `json:"name"`
	Category string        `json:"category"`
	Status   Status        `json:"status"`
	Elapsed  time.Duration `json:"elapsed_ns"`

	// Rows and Columns summarize a successful query.
	Rows    int64 `json:"rows"`
	Columns int   `json:"columns"`

	// Output holds the first row of a successful CALL, keyed by column:
	// the procedure's OUT and INOUT parameters.
	Output map[string]any `json:"output,omitempty"`

	// Failure details.
	ErrorClass ErrorClass `json:"error_class,omitempty"`
	SQLState   string     `json:"sqlstate,omitempty"`
	Message    string     `json:"message,omitempty"`

	SkipReason string `json:"skip_reason,omitempty"`

	// Attempts counts executions, 2 when a transient failure was retried.
	Attempts int `json:"attempts"`

	// Fallbacks lists 1-based parameter indexes bound through a fallback path.
	Fallbacks []int `json:"fallbacks,omitempty"`
}

// Suspect reports a failure whose arguments were partly guessed.
func (r CallResult) Suspect() bool {
	return r.Status == StatusFailed && len(r.Fallbacks) > 0
}

// Counts tallies outcomes.
type Counts struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Suspect int `json:"suspect"`
}

// Add tallies one result.
func (c *Counts) Add(r CallResult) {
	c.Total++
	switch r.Status {
	case StatusPassed:
		c.Passed++
	case StatusFailed:
		c.Failed++
		if r.Suspect() {
			c.Suspect++
		}
	case StatusSkipped:
		c.Skipped++
	}
}

// RunSummary is the finalized outcome of a run.
type RunSummary struct {
	SchemaVersion string        `json:"schema_version"`
	RunID         string        `json:"run_id"`
	Seed          uint64        `json:"seed"`
	StartedAt     time.Time     `json:"started_at"`
	Elapsed       time.Duration `json:"elapsed_ns"`

	Counts
	ByCategory map[string]Counts `json:"by_category"`

	// Results is ordered by Seq.
	Results []CallResult `json:"results"`

	// Digest hashes the ordered outcome list (see SummaryDigest).
	Digest string `json:"digest"`
}

// ExitCode is 0 iff no statement failed. Skips never affect it.
func (s *RunSummary) ExitCode() int {
	if s.Failed == 0 {
		return 0
	}
	return 1
}

// Categories returns category labels in sorted order.
func (s *RunSummary) Categories() []string {
	cats := make([]string, 0, len(s.ByCategory))
	for c := range s.ByCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Failures returns failed results in run order.
func (s *RunSummary) Failures() []CallResult {
	var out []CallResult
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}
