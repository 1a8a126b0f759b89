package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainStatement = "procprobe/statement/v1"
	DomainSummary   = "procprobe/summary/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StatementID computes the content-addressed ID of a statement.
// The same name and text yield the same ID across runs, so history rows line up.
func StatementID(name, sql string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"name": name,
		"sql":  sql,
	})
	if err != nil {
		return "", fmt.Errorf("StatementID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainStatement, canonical), nil
}

// MustStatementID is like StatementID but panics on error.
// Strings always marshal, so this only panics on a programming error.
func MustStatementID(name, sql string) string {
	id, err := StatementID(name, sql)
	if err != nil {
		panic(err)
	}
	return id
}

// SummaryDigest hashes the ordered (statement ID, status) outcome list.
// Two runs with the same digest produced the same outcome for every statement.
func SummaryDigest(results []CallResult) (string, error) {
	outcomes := make([]any, len(results))
	for i, r := range results {
		outcomes[i] = []any{r.StatementID, string(r.Status)}
	}
	canonical, err := MarshalCanonical(map[string]any{
		"schema":   SchemaVersion,
		"outcomes": outcomes,
	})
	if err != nil {
		return "", fmt.Errorf("SummaryDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSummary, canonical), nil
}
