package backfill

import (
	"context"
	"sync/atomic"
	"time"
)

// Upstream gateway error codes.
const (
	// pacingViolationCode signals a historical data request pacing violation.
	pacingViolationCode = 162
	// noSecurityDefinitionCode signals the requested instrument is unknown.
	noSecurityDefinitionCode = 200
	// notSubscribedCode signals missing market data permissions.
	notSubscribedCode = 354
	// noHeadTimestampCode signals the instrument has no head timestamp.
	noHeadTimestampCode = 10147
	// noDataReturnedCode signals the query returned no data and was rejected.
	noDataReturnedCode = 10148
	// marketDataFarmOkCode signals a market data farm connection is fine.
	marketDataFarmOkCode = 2104
	// historicalDataFarmOkCode signals a historical data farm connection is fine.
	historicalDataFarmOkCode = 2106
	// securityDefinitionFarmOkCode signals a security definition farm connection is fine.
	securityDefinitionFarmOkCode = 2158
)

// ErrorClass categorizes gateway error codes by how the engine reacts to them.
type ErrorClass int

const (
	// RecoverablePacing indicates upstream throttling, absorbed via a global
	// issue cooldown without failing the in-flight request.
	RecoverablePacing ErrorClass = iota
	// TerminalRequestError indicates an unrecoverable rejection of the request.
	TerminalRequestError
	// Informational indicates a status notice requiring no action.
	Informational
)

// String stringifies the provided error class.
func (c ErrorClass) String() string {
	switch c {
	case RecoverablePacing:
		return "recoverable pacing violation"
	case TerminalRequestError:
		return "terminal request error"
	case Informational:
		return "informational"
	default:
		return "unknown"
	}
}

// ClassifyErrorCode categorizes the provided gateway error code.
func ClassifyErrorCode(code int) ErrorClass {
	switch code {
	case pacingViolationCode:
		return RecoverablePacing
	case marketDataFarmOkCode, historicalDataFarmOkCode, securityDefinitionFarmOkCode:
		return Informational
	default:
		return TerminalRequestError
	}
}

// Pacer enforces the gateway-wide issue rate ceiling shared by all running
// jobs. It tracks a single monotonically advancing not-before instant that any
// orchestrator may push forward before issuing its next request. The instant
// only ever moves forward.
type Pacer struct {
	notBefore atomic.Int64
	cooldown  time.Duration
}

// NewPacer initializes a new pacer with the provided pacing violation cooldown.
func NewPacer(cooldown time.Duration) *Pacer {
	return &Pacer{
		cooldown: cooldown,
	}
}

// advance pushes the shared not-before instant forward to the provided time
// using a compare-and-advance discipline.
func (p *Pacer) advance(until time.Time) {
	nanos := until.UnixNano()
	for {
		current := p.notBefore.Load()
		if nanos <= current {
			return
		}
		if p.notBefore.CompareAndSwap(current, nanos) {
			return
		}
	}
}

// Cooldown suspends issuance for the configured cooldown period from now.
func (p *Pacer) Cooldown() {
	p.advance(time.Now().Add(p.cooldown))
}

// NotBefore returns the instant before which no request may be issued.
func (p *Pacer) NotBefore() time.Time {
	return time.Unix(0, p.notBefore.Load())
}

// Wait blocks until the not-before instant has passed or the provided context
// is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	for {
		delay := time.Until(p.NotBefore())
		if delay <= 0 {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check, the instant may have advanced while waiting.
		}
	}
}
