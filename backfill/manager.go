package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mkoh/backwalk/shared"
	"github.com/rs/zerolog"
)

// notificationBufferSize is the buffer size for the gateway notification
// channel, sized to absorb full pages of record deliveries.
const notificationBufferSize = 4096

// notification is the union of gateway notification kinds. Exactly one field
// is set. A single channel carries all notifications so the gateway's
// records-before-completion delivery order is preserved through dispatch.
type notification struct {
	record  *shared.RecordNotification
	done    *shared.PageDoneNotification
	gwError *shared.GatewayErrorNotification
}

// ManagerConfig represents the backfill manager configuration.
type ManagerConfig struct {
	// Requester issues paged historical data requests to the gateway.
	Requester shared.PageRequester
	// SignalSeriesReady relays the provided assembled series to sinks.
	SignalSeriesReady func(series *shared.Series)
	// Cooldown is the gateway-wide issue cooldown applied after a pacing violation.
	Cooldown time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if cfg.Requester == nil {
		errs = errors.Join(errs, fmt.Errorf("page requester cannot be nil"))
	}
	if cfg.SignalSeriesReady == nil {
		errs = errors.Join(errs, fmt.Errorf("signal series ready function cannot be nil"))
	}
	if cfg.Cooldown <= 0 {
		errs = errors.Join(errs, fmt.Errorf("cooldown must be positive"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager owns the backfill machinery shared by all running jobs: the
// correlation table, the page accumulator and the pacer. It receives the
// gateway's asynchronous notifications on its signal channel and dispatches
// them to the accumulators of the outstanding requests, unblocking the job
// orchestrators waiting on page completion.
type Manager struct {
	cfg                 *ManagerConfig
	table               *CorrelationTable
	accumulator         *Accumulator
	pacer               *Pacer
	notificationSignals chan notification
}

// Ensure the manager implements the GatewayNotifier interface.
var _ shared.GatewayNotifier = (*Manager)(nil)

// NewManager initializes a new backfill manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating manager config: %w", err)
	}

	accumulator, err := NewAccumulator(&AccumulatorConfig{Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("creating accumulator: %w", err)
	}

	return &Manager{
		cfg:                 cfg,
		table:               NewCorrelationTable(),
		accumulator:         accumulator,
		pacer:               NewPacer(cfg.Cooldown),
		notificationSignals: make(chan notification, notificationBufferSize),
	}, nil
}

// send queues the provided notification for dispatch.
func (m *Manager) send(n notification) {
	select {
	case m.notificationSignals <- n:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("notification channel at capacity: %d/%d",
			len(m.notificationSignals), notificationBufferSize)
	}
}

// SendRecord relays the provided record notification for processing.
func (m *Manager) SendRecord(n shared.RecordNotification) {
	m.send(notification{record: &n})
}

// SendPageDone relays the provided page completion notification for processing.
func (m *Manager) SendPageDone(n shared.PageDoneNotification) {
	m.send(notification{done: &n})
}

// SendGatewayError relays the provided gateway error notification for processing.
func (m *Manager) SendGatewayError(n shared.GatewayErrorNotification) {
	m.send(notification{gwError: &n})
}

// handleRecord routes the provided record to its page buffer, stamping
// provenance from the registered request context.
func (m *Manager) handleRecord(notification *shared.RecordNotification) {
	pctx, ok := m.table.Resolve(notification.CorrelationID)
	if !ok {
		// Late or duplicate callback for a reaped request.
		m.cfg.Logger.Debug().Msgf("record for unknown correlation id %d dropped",
			notification.CorrelationID)
		return
	}

	record := notification.Record
	record.CorrelationID = notification.CorrelationID
	record.Instrument = pctx.Instrument
	record.Kind = pctx.Kind
	record.Interval = pctx.Interval

	m.accumulator.OnRecord(notification.CorrelationID, record)
}

// handlePageDone marks the page for the provided notification complete.
func (m *Manager) handlePageDone(notification *shared.PageDoneNotification) {
	_, ok := m.table.Resolve(notification.CorrelationID)
	if !ok {
		m.cfg.Logger.Debug().Msgf("page done for unknown correlation id %d dropped",
			notification.CorrelationID)
		return
	}

	m.accumulator.OnPageDone(notification.CorrelationID)
}

// handleGatewayError classifies and reacts to the provided gateway error.
func (m *Manager) handleGatewayError(notification *shared.GatewayErrorNotification) {
	class := ClassifyErrorCode(notification.Code)
	switch class {
	case RecoverablePacing:
		// The in-flight request stays outstanding, the per-request timeout
		// reaps it if the gateway never completes it. Issuance is suspended
		// gateway-wide until the cooldown elapses.
		m.pacer.Cooldown()
		m.cfg.Logger.Warn().Msgf("pacing violation on request %d (%s), issuance suspended until %s",
			notification.CorrelationID, notification.Message,
			m.pacer.NotBefore().Format(time.RFC3339))
	case TerminalRequestError:
		_, ok := m.table.Resolve(notification.CorrelationID)
		if !ok {
			m.cfg.Logger.Debug().Msgf("terminal error for unknown correlation id %d dropped",
				notification.CorrelationID)
			return
		}

		m.cfg.Logger.Error().Msgf("request %d terminally rejected: %d - %s",
			notification.CorrelationID, notification.Code, notification.Message)
		m.accumulator.OnPageErrored(notification.CorrelationID)
	case Informational:
		m.cfg.Logger.Info().Msgf("gateway notice: %d - %s", notification.Code, notification.Message)
	}
}

// Run manages the lifecycle processes of the backfill manager. Notifications
// are dispatched serially, preserving the gateway's per-request delivery order.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-m.notificationSignals:
			switch {
			case n.record != nil:
				m.handleRecord(n.record)
			case n.done != nil:
				m.handlePageDone(n.done)
			case n.gwError != nil:
				m.handleGatewayError(n.gwError)
			}
		}
	}
}

// RunBackfill reconstructs the historical series described by the provided
// request, walking backward from the window end one page at a time. It is
// synchronous from the caller's point of view and safe to call from
// concurrently running jobs. Every outcome short of caller cancellation
// produces a series, routine upstream timeouts, rejections and page ceilings
// are captured in its completeness flag.
func (m *Manager) RunBackfill(ctx context.Context, req *shared.BackfillRequest) (*shared.Series, error) {
	err := req.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating backfill request: %w", err)
	}

	jobID := uuid.New().String()
	logger := m.cfg.Logger.With().Str("job", jobID).Str("instrument", req.Instrument).
		Str("kind", req.Kind.String()).Logger()

	logger.Info().Msgf("backfilling %s from %s to %s", req.Kind.String(),
		req.WindowStart.Format(shared.DateLayout), req.WindowEnd.Format(shared.DateLayout))

	var pages [][]shared.Record
	var reason shared.TerminationReason
	var issued uint32

	switch req.Kind {
	case shared.Bar:
		pages, reason, issued, err = m.collectBlocks(ctx, req, &logger)
	default:
		pages, reason, issued, err = m.collectPages(ctx, req, &logger)
	}
	if err != nil {
		// Caller cancellation aborts the job outright, partial results are
		// discarded.
		return nil, err
	}

	series := Assemble(jobID, req, pages, reason, issued)

	logger.Info().Msgf("backfill done: %d records across %d pages, complete=%t (%s)",
		len(series.Records), series.PagesIssued, series.Complete, series.Reason.String())

	m.cfg.SignalSeriesReady(series)

	return series, nil
}

// issuePage registers, tracks and issues a single page request, returning the
// correlation id and the signal its terminal status arrives on.
func (m *Manager) issuePage(ctx context.Context, pctx *PageContext, span time.Duration) (uint64, <-chan PageStatus, error) {
	id := m.table.Register(pctx)
	done := m.accumulator.Track(id)

	err := m.cfg.Requester.SendPageRequest(ctx, id, pctx.Instrument, pctx.Kind,
		pctx.Interval, pctx.PageEnd, span, pctx.PageLimit)
	if err != nil {
		m.table.Unregister(id)
		m.accumulator.Discard(id)
		return 0, nil, err
	}

	return id, done, nil
}

// pageOutcome represents how a page wait resolved.
type pageOutcome int

const (
	pageCompleted pageOutcome = iota
	pageTimedOut
	pageFailed
)

// awaitPage blocks until the page for the provided correlation id resolves or
// the request timeout elapses, returning the page records on completion.
func (m *Manager) awaitPage(id uint64, done <-chan PageStatus, timeout time.Duration) ([]shared.Record, pageOutcome) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case status := <-done:
		m.table.Unregister(id)
		if status == PageErrored {
			m.accumulator.Discard(id)
			return nil, pageFailed
		}
		return m.accumulator.Take(id), pageCompleted
	case <-timer.C:
		// Reap the request, any late delivery becomes a no-op.
		m.table.Unregister(id)
		m.accumulator.Discard(id)
		return nil, pageTimedOut
	}
}

// pace applies the job's fixed pacing delay, honoring context cancellation.
func pace(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// collectPages drives the backward paging loop for a tick job. The cursor
// starts at the window end and moves one cursor step past the earliest
// timestamp of each full page. Pages spanning past the window start are kept
// whole, the boundary check after the cursor decrement stops the walk.
func (m *Manager) collectPages(ctx context.Context, req *shared.BackfillRequest, logger *zerolog.Logger) ([][]shared.Record, shared.TerminationReason, uint32, error) {
	var pages [][]shared.Record
	var issued uint32

	cursor := req.WindowEnd

	for pageIndex := uint32(0); ; pageIndex++ {
		// Cancellation takes effect at iteration boundaries only, an
		// in-flight request is never forcibly aborted.
		if err := ctx.Err(); err != nil {
			return nil, 0, 0, err
		}

		if pageIndex >= req.MaxPages {
			logger.Warn().Msgf("page ceiling of %d reached, returning partial series", req.MaxPages)
			return pages, shared.PagesExhausted, issued, nil
		}
		if !cursor.After(req.WindowStart) {
			return pages, shared.BoundaryReached, issued, nil
		}

		// Respect the gateway-wide issue suspension before sending.
		if err := m.pacer.Wait(ctx); err != nil {
			return nil, 0, 0, err
		}

		pctx := &PageContext{
			Instrument:  req.Instrument,
			Kind:        req.Kind,
			Interval:    req.Interval,
			WindowStart: req.WindowStart,
			PageEnd:     cursor,
			PageLimit:   req.PageLimit,
			PageIndex:   pageIndex,
		}

		id, done, err := m.issuePage(ctx, pctx, 0)
		if err != nil {
			logger.Error().Msgf("issuing page %d: %v", pageIndex, err)
			return pages, shared.RequestErrored, issued, nil
		}
		issued++

		page, outcome := m.awaitPage(id, done, req.Timeout)
		switch outcome {
		case pageTimedOut:
			logger.Warn().Msgf("page %d (request %d) timed out after %s, returning partial series",
				pageIndex, id, req.Timeout)
			return pages, shared.RequestTimeout, issued, nil
		case pageFailed:
			return pages, shared.RequestErrored, issued, nil
		}

		if len(page) == 0 {
			// An empty completed page means no earlier data exists.
			return pages, shared.NaturalEnd, issued, nil
		}

		pages = append(pages, page)

		if uint32(len(page)) < req.PageLimit {
			logger.Info().Msgf("natural end of data on page %d (%d < %d records)",
				pageIndex, len(page), req.PageLimit)
			return pages, shared.NaturalEnd, issued, nil
		}

		earliest := page[0].Timestamp
		for idx := range page {
			if page[idx].Timestamp.Before(earliest) {
				earliest = page[idx].Timestamp
			}
		}

		cursor = earliest.Add(-req.CursorStep)
		if cursor.Before(req.WindowStart) {
			return pages, shared.BoundaryReached, issued, nil
		}

		pace(ctx, req.PacingDelay)
	}
}

// collectBlocks drives a bar job. The window is split into fixed duration
// blocks ahead of the paging loop because the upstream bar endpoint caps the
// duration covered per request. Each block is a single request resolved by
// the same completion state machine as tick pages. Blocks with no bars, such
// as closed sessions, do not terminate the walk.
func (m *Manager) collectBlocks(ctx context.Context, req *shared.BackfillRequest, logger *zerolog.Logger) ([][]shared.Record, shared.TerminationReason, uint32, error) {
	var pages [][]shared.Record
	var issued uint32

	blockStart := req.WindowStart

	for pageIndex := uint32(0); ; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, 0, err
		}

		if pageIndex >= req.MaxPages {
			logger.Warn().Msgf("block ceiling of %d reached, returning partial series", req.MaxPages)
			return pages, shared.PagesExhausted, issued, nil
		}

		blockEnd := blockStart.Add(shared.BarBlockSpan)
		if blockEnd.After(req.WindowEnd) {
			blockEnd = req.WindowEnd
		}

		if err := m.pacer.Wait(ctx); err != nil {
			return nil, 0, 0, err
		}

		pctx := &PageContext{
			Instrument:  req.Instrument,
			Kind:        req.Kind,
			Interval:    req.Interval,
			WindowStart: req.WindowStart,
			PageEnd:     blockEnd,
			PageLimit:   req.PageLimit,
			PageIndex:   pageIndex,
		}

		id, done, err := m.issuePage(ctx, pctx, blockEnd.Sub(blockStart))
		if err != nil {
			logger.Error().Msgf("issuing block %d: %v", pageIndex, err)
			return pages, shared.RequestErrored, issued, nil
		}
		issued++

		block, outcome := m.awaitPage(id, done, req.Timeout)
		switch outcome {
		case pageTimedOut:
			logger.Warn().Msgf("block %d (request %d) timed out after %s, returning partial series",
				pageIndex, id, req.Timeout)
			return pages, shared.RequestTimeout, issued, nil
		case pageFailed:
			return pages, shared.RequestErrored, issued, nil
		}

		if len(block) > 0 {
			pages = append(pages, block)
		}

		blockStart = blockEnd
		if !blockStart.Before(req.WindowEnd) {
			return pages, shared.BoundaryReached, issued, nil
		}

		pace(ctx, req.PacingDelay)
	}
}
