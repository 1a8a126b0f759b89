package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementIDDeterminism(t *testing.T) {
	id1, err := StatementID("create_asset", "SELECT create_asset($1::uuid)")
	require.NoError(t, err)

	id2, err := StatementID("create_asset", "SELECT create_asset($1::uuid)")
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "StatementID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestStatementIDChangesWithInput(t *testing.T) {
	id1 := MustStatementID("a", "SELECT $1::int")
	id2 := MustStatementID("b", "SELECT $1::int")
	id3 := MustStatementID("a", "SELECT $1::text")

	assert.NotEqual(t, id1, id2, "Different names should produce different IDs")
	assert.NotEqual(t, id1, id3, "Different SQL should produce different IDs")
}

func TestStatementIDBoundary(t *testing.T) {
	// Field separation means moving text between name and sql changes the ID.
	assert.NotEqual(t, MustStatementID("ab", "c"), MustStatementID("a", "bc"))
}

func TestSummaryDigest(t *testing.T) {
	results := []CallResult{
		{StatementID: "s1", Status: StatusPassed},
		{StatementID: "s2", Status: StatusFailed},
	}

	d1, err := SummaryDigest(results)
	require.NoError(t, err)
	d2, err := SummaryDigest(results)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	results[1].Status = StatusPassed
	d3, err := SummaryDigest(results)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3, "outcome drift must change the digest")
}

func TestSummaryDigestIgnoresTiming(t *testing.T) {
	a := []CallResult{{StatementID: "s1", Status: StatusPassed, Elapsed: 5}}
	b := []CallResult{{StatementID: "s1", Status: StatusPassed, Elapsed: 900}}

	da, err := SummaryDigest(a)
	require.NoError(t, err)
	db, err := SummaryDigest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}
