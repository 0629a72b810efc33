package backfill

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mkoh/backwalk/shared"
	"github.com/rs/zerolog"
)

// PageStatus represents the terminal status of a page request.
type PageStatus int

const (
	// PageComplete indicates the page was fully delivered.
	PageComplete PageStatus = iota
	// PageErrored indicates the gateway terminally rejected the request.
	PageErrored
)

// page holds the in-flight record buffer and completion signal for one
// outstanding request.
type page struct {
	records  []shared.Record
	done     chan PageStatus
	resolved bool
}

// AccumulatorConfig represents the page accumulator configuration.
type AccumulatorConfig struct {
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *AccumulatorConfig) Validate() error {
	var errs error

	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Accumulator collects gateway delivered records into per-request page
// buffers, keyed strictly by correlation id. Records and completions for ids
// it does not track are dropped, the gateway may deliver late callbacks after
// a request has been reaped.
type Accumulator struct {
	cfg      *AccumulatorConfig
	pagesMtx sync.Mutex
	pages    map[uint64]*page
}

// NewAccumulator initializes a new page accumulator.
func NewAccumulator(cfg *AccumulatorConfig) (*Accumulator, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating accumulator config: %w", err)
	}

	return &Accumulator{
		cfg:   cfg,
		pages: make(map[uint64]*page),
	}, nil
}

// Track creates a page buffer for the provided correlation id and returns the
// signal its terminal status will be delivered on.
func (a *Accumulator) Track(id uint64) <-chan PageStatus {
	pg := &page{
		records: make([]shared.Record, 0, 64),
		done:    make(chan PageStatus, 1),
	}

	a.pagesMtx.Lock()
	a.pages[id] = pg
	a.pagesMtx.Unlock()

	return pg.done
}

// OnRecord appends the provided record to the in-flight buffer for its
// correlation id.
func (a *Accumulator) OnRecord(id uint64, record shared.Record) {
	a.pagesMtx.Lock()
	defer a.pagesMtx.Unlock()

	pg, ok := a.pages[id]
	if !ok {
		a.cfg.Logger.Debug().Msgf("dropping record for unknown correlation id %d", id)
		return
	}

	pg.records = append(pg.records, record)
}

// OnPageDone marks the page for the provided correlation id complete and
// unblocks its waiter. Duplicate completion markers are no-ops.
func (a *Accumulator) OnPageDone(id uint64) {
	a.resolve(id, PageComplete)
}

// OnPageErrored marks the page for the provided correlation id terminally
// failed and unblocks its waiter early.
func (a *Accumulator) OnPageErrored(id uint64) {
	a.resolve(id, PageErrored)
}

// resolve delivers the terminal status for the provided correlation id once.
func (a *Accumulator) resolve(id uint64, status PageStatus) {
	a.pagesMtx.Lock()
	defer a.pagesMtx.Unlock()

	pg, ok := a.pages[id]
	if !ok {
		a.cfg.Logger.Debug().Msgf("dropping completion for unknown correlation id %d", id)
		return
	}

	if pg.resolved {
		return
	}

	pg.resolved = true
	pg.done <- status
}

// Take removes and returns the records buffered for the provided correlation id.
func (a *Accumulator) Take(id uint64) []shared.Record {
	a.pagesMtx.Lock()
	defer a.pagesMtx.Unlock()

	pg, ok := a.pages[id]
	if !ok {
		return nil
	}

	delete(a.pages, id)

	return pg.records
}

// Discard drops the buffer for the provided correlation id without reading it.
func (a *Accumulator) Discard(id uint64) {
	a.pagesMtx.Lock()
	delete(a.pages, id)
	a.pagesMtx.Unlock()
}
