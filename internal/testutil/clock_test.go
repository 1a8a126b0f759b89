package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_StepsPerReading(t *testing.T) {
	clock := NewFakeClock(time.Time{}, time.Millisecond)

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Millisecond), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Millisecond), clock.Peek())
}

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start, 0)

	clock.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), clock.Now())
	assert.Equal(t, start.Add(time.Hour), clock.Now(), "zero step does not move")
}

func TestFakeClock_ConcurrentReadings(t *testing.T) {
	clock := NewFakeClock(time.Time{}, time.Second)
	const n = 100

	var wg sync.WaitGroup
	seen := make(chan time.Time, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- clock.Now()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[time.Time]bool)
	for ts := range seen {
		unique[ts] = true
	}
	assert.Len(t, unique, n, "every reading is distinct")
	assert.Equal(t, Epoch.Add(n*time.Second), clock.Peek())
}
