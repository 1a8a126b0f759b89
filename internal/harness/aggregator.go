package harness

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/procprobe/internal/ir"
)

// Aggregator collects CallResults from concurrent workers.
type Aggregator struct {
	mu         sync.Mutex
	results    []ir.CallResult
	counts     ir.Counts
	byCategory map[string]ir.Counts
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byCategory: make(map[string]ir.Counts)}
}

// Add appends one result. Safe for concurrent use.
func (a *Aggregator) Add(r ir.CallResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.results = append(a.results, r)
	a.counts.Add(r)
	c := a.byCategory[r.Category]
	c.Add(r)
	a.byCategory[r.Category] = c
}

// Counts returns the running totals.
func (a *Aggregator) Counts() ir.Counts {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts
}

// Summary finalizes the collected results into a RunSummary ordered by Seq.
func (a *Aggregator) Summary(runID string, seed uint64, startedAt time.Time, elapsed time.Duration) (*ir.RunSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	results := append([]ir.CallResult(nil), a.results...)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Seq < results[j].Seq })

	byCategory := make(map[string]ir.Counts, len(a.byCategory))
	for k, v := range a.byCategory {
		byCategory[k] = v
	}

	digest, err := ir.SummaryDigest(results)
	if err != nil {
		return nil, fmt.Errorf("failed to compute digest: %w", err)
	}

	return &ir.RunSummary{
		SchemaVersion: ir.SchemaVersion,
		RunID:         runID,
		Seed:          seed,
		StartedAt:     startedAt,
		Elapsed:       elapsed,
		Counts:        a.counts,
		ByCategory:    byCategory,
		Results:       results,
		Digest:        digest,
	}, nil
}
