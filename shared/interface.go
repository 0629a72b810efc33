package shared

import (
	"context"
	"time"
)

// PageRequester defines the requirements for issuing paged historical data
// requests to the upstream gateway. Requests are fire-and-forget, results
// arrive later through the gateway notifier tagged with the correlation id.
type PageRequester interface {
	// SendPageRequest issues a request for up to limit records of the
	// provided kind ending at end. For bar requests span bounds the window
	// covered by the request, it is zero for tick requests.
	SendPageRequest(ctx context.Context, correlationID uint64, instrument string,
		kind DataKind, interval BarInterval, end time.Time, span time.Duration, limit uint32) error
}

// SeriesSink defines the requirements for receiving assembled series.
type SeriesSink interface {
	// OnSeriesReady hands the provided frozen series over for persistence.
	OnSeriesReady(ctx context.Context, series *Series) error
}
