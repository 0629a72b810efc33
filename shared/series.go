package shared

import (
	"time"
)

// TerminationReason describes why a backfill job stopped issuing page requests.
type TerminationReason int

const (
	// NaturalEnd indicates the gateway returned a short or empty page,
	// meaning no earlier data exists.
	NaturalEnd TerminationReason = iota
	// BoundaryReached indicates the backward cursor crossed the requested
	// window start.
	BoundaryReached
	// RequestTimeout indicates a page request never completed within its
	// allotted wait.
	RequestTimeout
	// RequestErrored indicates the gateway terminally rejected a page request.
	RequestErrored
	// PagesExhausted indicates the page ceiling was reached before the window
	// was covered.
	PagesExhausted
)

// String stringifies the provided termination reason.
func (r TerminationReason) String() string {
	switch r {
	case NaturalEnd:
		return "natural end of data"
	case BoundaryReached:
		return "window boundary reached"
	case RequestTimeout:
		return "request timed out"
	case RequestErrored:
		return "request errored"
	case PagesExhausted:
		return "page ceiling reached"
	default:
		return "unknown"
	}
}

// Complete reports whether the termination reason covers the full requested window.
func (r TerminationReason) Complete() bool {
	return r == NaturalEnd || r == BoundaryReached
}

// Series represents the ordered, deduplicated result of a backfill job for one
// (instrument, data kind, bar interval) tuple. It is frozen once assembled.
type Series struct {
	JobID       string
	Instrument  string
	Kind        DataKind
	Interval    BarInterval
	WindowStart time.Time
	WindowEnd   time.Time
	Records     []Record
	Complete    bool
	Reason      TerminationReason
	PagesIssued uint32
}
