package shared

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultPageLimit is the maximum number of records the upstream returns
	// per tick page request.
	DefaultPageLimit = 1000
	// DefaultTradeMaxPages is the default page ceiling for trade tick jobs.
	DefaultTradeMaxPages = 10
	// DefaultBidAskMaxPages is the default page ceiling for bid/ask tick jobs.
	DefaultBidAskMaxPages = 20
	// DefaultBarMaxPages is the default block ceiling for bar jobs.
	DefaultBarMaxPages = 16
	// DefaultTickTimeout is the maximum wait for a tick page to complete.
	DefaultTickTimeout = time.Second * 20
	// DefaultBarTimeout is the maximum wait for a bar block request to complete.
	DefaultBarTimeout = time.Minute
	// TickPacingDelay is the fixed delay applied between successive tick page requests.
	TickPacingDelay = time.Second * 2
	// BarPacingDelay is the fixed delay applied between successive bar block requests.
	BarPacingDelay = time.Second * 10
	// PacingCooldown is the gateway-wide issue cooldown applied after a
	// pacing violation.
	PacingCooldown = time.Second * 10
	// BarBlockSpan is the maximum window duration the upstream accepts per
	// bar request, requiring longer windows to be split into blocks.
	BarBlockSpan = time.Hour * 24 * 7
	// DefaultCursorStep is the backward cursor decrement applied after each
	// page, matching the upstream's second granularity timestamps.
	DefaultCursorStep = time.Second
)

// BackfillRequest describes one historical series reconstruction job. It is
// immutable once created.
type BackfillRequest struct {
	// Instrument is the instrument key the job collects data for.
	Instrument string
	// Kind is the kind of market data to collect.
	Kind DataKind
	// Interval is the bar aggregation interval, set only for bar jobs.
	Interval BarInterval
	// WindowStart is the inclusive start of the requested window.
	WindowStart time.Time
	// WindowEnd is the inclusive end of the requested window.
	WindowEnd time.Time
	// PageLimit is the maximum number of records per page.
	PageLimit uint32
	// MaxPages is the hard ceiling on issued page requests.
	MaxPages uint32
	// Timeout is the maximum wait for a single page to complete.
	Timeout time.Duration
	// PacingDelay is the fixed delay applied between successive page requests.
	PacingDelay time.Duration
	// CursorStep is the backward cursor decrement applied past the earliest
	// record of a full page.
	CursorStep time.Duration
}

// NewBackfillRequest initializes a new backfill request with kind specific defaults.
func NewBackfillRequest(instrument string, kind DataKind, interval BarInterval, start time.Time, end time.Time) *BackfillRequest {
	req := &BackfillRequest{
		Instrument:  instrument,
		Kind:        kind,
		Interval:    interval,
		WindowStart: start,
		WindowEnd:   end,
		PageLimit:   DefaultPageLimit,
		Timeout:     DefaultTickTimeout,
		PacingDelay: TickPacingDelay,
		CursorStep:  DefaultCursorStep,
	}

	switch kind {
	case TradeTick:
		req.MaxPages = DefaultTradeMaxPages
	case BidAskTick:
		req.MaxPages = DefaultBidAskMaxPages
	case Bar:
		req.MaxPages = DefaultBarMaxPages
		req.Timeout = DefaultBarTimeout
		req.PacingDelay = BarPacingDelay
	}

	return req
}

// Validate asserts the request has sane inputs.
func (r *BackfillRequest) Validate() error {
	var errs error

	if r.Instrument == "" {
		errs = errors.Join(errs, fmt.Errorf("instrument cannot be an empty string"))
	}
	if r.WindowStart.IsZero() || r.WindowEnd.IsZero() {
		errs = errors.Join(errs, fmt.Errorf("window bounds cannot be zero times"))
	}
	if !r.WindowStart.Before(r.WindowEnd) {
		errs = errors.Join(errs, fmt.Errorf("window start must precede window end"))
	}
	if r.PageLimit == 0 {
		errs = errors.Join(errs, fmt.Errorf("page limit cannot be zero"))
	}
	if r.MaxPages == 0 {
		errs = errors.Join(errs, fmt.Errorf("max pages cannot be zero"))
	}
	if r.Timeout <= 0 {
		errs = errors.Join(errs, fmt.Errorf("request timeout must be positive"))
	}
	if r.PacingDelay < 0 {
		errs = errors.Join(errs, fmt.Errorf("pacing delay cannot be negative"))
	}
	if r.CursorStep <= 0 {
		errs = errors.Join(errs, fmt.Errorf("cursor step must be positive"))
	}

	return errs
}
