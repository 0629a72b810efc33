package backfill

import (
	"sync"
	"testing"
	"time"

	"github.com/mkoh/backwalk/shared"
	"github.com/peterldowns/testy/assert"
)

func TestCorrelationTable(t *testing.T) {
	table := NewCorrelationTable()

	pctx := &PageContext{
		Instrument: "AAPL",
		Kind:       shared.TradeTick,
		PageEnd:    time.Date(2025, 6, 13, 16, 0, 0, 0, time.UTC),
		PageLimit:  1000,
	}

	// Ensure registered contexts resolve by their correlation id.
	id := table.Register(pctx)
	got, ok := table.Resolve(id)
	assert.True(t, ok)
	assert.Equal(t, pctx, got)
	assert.Equal(t, 1, table.Outstanding())

	// Ensure correlation ids increase monotonically.
	second := table.Register(pctx)
	assert.True(t, second > id)

	// Ensure resolving an unknown id reports a miss without corrupting state.
	_, ok = table.Resolve(second + 100)
	assert.False(t, ok)
	assert.Equal(t, 2, table.Outstanding())

	// Ensure unregistered ids no longer resolve.
	table.Unregister(id)
	_, ok = table.Resolve(id)
	assert.False(t, ok)
	assert.Equal(t, 1, table.Outstanding())

	// Ensure unregistering an unknown id is a no-op.
	table.Unregister(id)
	assert.Equal(t, 1, table.Outstanding())
}

func TestCorrelationTableConcurrentRegistration(t *testing.T) {
	table := NewCorrelationTable()

	const jobs = 8
	const pagesPerJob = 50

	// Ensure concurrently running jobs never receive colliding ids.
	ids := make(chan uint64, jobs*pagesPerJob)
	var wg sync.WaitGroup
	wg.Add(jobs)
	for range jobs {
		go func() {
			defer wg.Done()
			for range pagesPerJob {
				ids <- table.Register(&PageContext{Instrument: "AAPL"})
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Equal(t, jobs*pagesPerJob, len(seen))
}
