package backfill

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkoh/backwalk/shared"
)

// PageContext describes the context of an outstanding page request.
type PageContext struct {
	// Instrument is the instrument key the page was requested for.
	Instrument string
	// Kind is the kind of market data requested.
	Kind shared.DataKind
	// Interval is the bar aggregation interval, set only for bar pages.
	Interval shared.BarInterval
	// WindowStart is the inclusive start of the originating job's window.
	WindowStart time.Time
	// PageEnd is the backward cursor position the page ends at.
	PageEnd time.Time
	// PageLimit is the maximum number of records expected for the page.
	PageLimit uint32
	// PageIndex is the position of the page within its job.
	PageIndex uint32
}

// CorrelationTable maps outstanding correlation ids to their page request
// contexts. Correlation ids are allocated from a single monotonic counter so
// concurrently running jobs can never collide.
type CorrelationTable struct {
	nextID     atomic.Uint64
	entriesMtx sync.RWMutex
	entries    map[uint64]*PageContext
}

// NewCorrelationTable initializes a new correlation table.
func NewCorrelationTable() *CorrelationTable {
	return &CorrelationTable{
		entries: make(map[uint64]*PageContext),
	}
}

// Register assigns the next correlation id to the provided page context and
// tracks it until the request resolves.
func (t *CorrelationTable) Register(pctx *PageContext) uint64 {
	id := t.nextID.Add(1)

	t.entriesMtx.Lock()
	t.entries[id] = pctx
	t.entriesMtx.Unlock()

	return id
}

// Resolve returns the page context registered for the provided correlation id.
// Unknown ids report false, late or duplicate gateway callbacks resolve to
// nothing rather than corrupting state.
func (t *CorrelationTable) Resolve(id uint64) (*PageContext, bool) {
	t.entriesMtx.RLock()
	pctx, ok := t.entries[id]
	t.entriesMtx.RUnlock()

	return pctx, ok
}

// Unregister removes the entry for the provided correlation id. Unregistering
// an unknown id is a no-op.
func (t *CorrelationTable) Unregister(id uint64) {
	t.entriesMtx.Lock()
	delete(t.entries, id)
	t.entriesMtx.Unlock()
}

// Outstanding returns the number of unresolved page requests.
func (t *CorrelationTable) Outstanding() int {
	t.entriesMtx.RLock()
	defer t.entriesMtx.RUnlock()

	return len(t.entries)
}
