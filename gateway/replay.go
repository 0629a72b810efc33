package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/mkoh/backwalk/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// noSecurityDefinitionCode is the gateway error code for unknown instruments.
	noSecurityDefinitionCode = 200
)

// pageRequest represents a queued page request awaiting delivery.
type pageRequest struct {
	correlationID uint64
	instrument    string
	kind          shared.DataKind
	interval      shared.BarInterval
	end           time.Time
	span          time.Duration
	limit         uint32
}

// ReplayConfig represents the replay gateway configuration.
type ReplayConfig struct {
	// FilePath is the filepath to the recorded market data.
	FilePath string
	// Notifier receives the asynchronous record and completion notifications.
	Notifier shared.GatewayNotifier
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *ReplayConfig) Validate() error {
	var errs error

	if cfg.FilePath == "" {
		errs = errors.Join(errs, fmt.Errorf("file path cannot be an empty string"))
	}
	if cfg.Notifier == nil {
		errs = errors.Join(errs, fmt.Errorf("notifier cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Replay serves recorded market data with the upstream's paged delivery
// semantics: requests are fire-and-forget, responses arrive later on a single
// delivery goroutine as record notifications followed by a completion marker,
// capped at the requested page limit for tick data.
type Replay struct {
	cfg        *ReplayConfig
	instrument string
	trades     []shared.Record
	bidAsks    []shared.Record
	bars       map[shared.BarInterval][]shared.Record
	requests   chan pageRequest
}

// Ensure the replay gateway implements the PageRequester interface.
var _ shared.PageRequester = (*Replay)(nil)

// loadReplayData loads the recorded market data from the provided file path.
func loadReplayData(filepath string) (*gjson.Result, error) {
	readb, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading replay data from file with path '%s': %v", filepath, err)
	}

	b := gjson.ParseBytes(readb)

	return &b, nil
}

// sortAscending orders the provided records by timestamp.
func sortAscending(records []shared.Record) {
	slices.SortStableFunc(records, func(a, b shared.Record) int {
		switch {
		case a.Timestamp.Before(b.Timestamp):
			return -1
		case a.Timestamp.After(b.Timestamp):
			return 1
		default:
			return 0
		}
	})
}

// parseTrades parses trade tick records from the provided json data.
func parseTrades(data []gjson.Result, instrument string, loc *time.Location) ([]shared.Record, error) {
	records := make([]shared.Record, len(data))

	for idx := range data {
		ts, err := time.ParseInLocation(shared.DateLayout, data[idx].Get("time").String(), loc)
		if err != nil {
			return nil, fmt.Errorf("parsing trade timestamp: %w", err)
		}

		records[idx] = shared.Record{
			Timestamp:  ts,
			Instrument: instrument,
			Kind:       shared.TradeTick,
			Price:      data[idx].Get("price").Float(),
			Size:       data[idx].Get("size").Float(),
		}
	}

	sortAscending(records)

	return records, nil
}

// parseBidAsks parses bid/ask tick records from the provided json data.
func parseBidAsks(data []gjson.Result, instrument string, loc *time.Location) ([]shared.Record, error) {
	records := make([]shared.Record, len(data))

	for idx := range data {
		ts, err := time.ParseInLocation(shared.DateLayout, data[idx].Get("time").String(), loc)
		if err != nil {
			return nil, fmt.Errorf("parsing bid/ask timestamp: %w", err)
		}

		records[idx] = shared.Record{
			Timestamp:  ts,
			Instrument: instrument,
			Kind:       shared.BidAskTick,
			BidPrice:   data[idx].Get("bid").Float(),
			AskPrice:   data[idx].Get("ask").Float(),
			BidSize:    data[idx].Get("bidsize").Float(),
			AskSize:    data[idx].Get("asksize").Float(),
		}
	}

	sortAscending(records)

	return records, nil
}

// parseBars parses bar records from the provided json data.
func parseBars(data []gjson.Result, instrument string, interval shared.BarInterval, loc *time.Location) ([]shared.Record, error) {
	records := make([]shared.Record, len(data))

	for idx := range data {
		ts, err := time.ParseInLocation(shared.DateLayout, data[idx].Get("time").String(), loc)
		if err != nil {
			return nil, fmt.Errorf("parsing bar timestamp: %w", err)
		}

		records[idx] = shared.Record{
			Timestamp:  ts,
			Instrument: instrument,
			Kind:       shared.Bar,
			Interval:   interval,
			Open:       data[idx].Get("open").Float(),
			High:       data[idx].Get("high").Float(),
			Low:        data[idx].Get("low").Float(),
			Close:      data[idx].Get("close").Float(),
			Volume:     data[idx].Get("volume").Float(),
			WAP:        data[idx].Get("wap").Float(),
			Count:      uint32(data[idx].Get("count").Uint()),
		}
	}

	sortAscending(records)

	return records, nil
}

// NewReplay initializes a new replay gateway from recorded market data.
func NewReplay(cfg *ReplayConfig) (*Replay, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating replay config: %w", err)
	}

	b, err := loadReplayData(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("loading replay data: %w", err)
	}

	instrument := b.Get("market").String()
	if instrument == "" {
		return nil, fmt.Errorf("replay data has no market")
	}

	loc, err := time.LoadLocation(shared.NewYorkLocation)
	if err != nil {
		return nil, fmt.Errorf("loading new york location: %w", err)
	}

	replay := &Replay{
		cfg:        cfg,
		instrument: instrument,
		bars:       make(map[shared.BarInterval][]shared.Record),
		requests:   make(chan pageRequest, bufferSize),
	}

	replay.trades, err = parseTrades(b.Get("trades").Array(), instrument, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing trades: %w", err)
	}

	replay.bidAsks, err = parseBidAsks(b.Get("bidasks").Array(), instrument, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing bid/asks: %w", err)
	}

	intervals := []shared.BarInterval{shared.OneSecond, shared.OneMinute, shared.FiveMinute,
		shared.FifteenMinute, shared.OneHour, shared.OneDay}
	for idx := range intervals {
		interval := intervals[idx]

		data := b.Get("bars").Get(interval.String()).Array()
		if len(data) == 0 {
			continue
		}

		bars, err := parseBars(data, instrument, interval, loc)
		if err != nil {
			return nil, fmt.Errorf("parsing %s bars: %w", interval.String(), err)
		}

		replay.bars[interval] = bars
	}

	return replay, nil
}

// FetchInstrument returns the instrument key of the recorded market data.
func (g *Replay) FetchInstrument() string {
	return g.instrument
}

// SendPageRequest queues a page request for asynchronous delivery.
func (g *Replay) SendPageRequest(ctx context.Context, correlationID uint64, instrument string,
	kind shared.DataKind, interval shared.BarInterval, end time.Time, span time.Duration, limit uint32) error {
	req := pageRequest{
		correlationID: correlationID,
		instrument:    instrument,
		kind:          kind,
		interval:      interval,
		end:           end,
		span:          span,
		limit:         limit,
	}

	select {
	case g.requests <- req:
		return nil
	default:
		return fmt.Errorf("replay request channel at capacity: %d/%d", len(g.requests), bufferSize)
	}
}

// dataset returns the recorded records matching the provided request.
func (g *Replay) dataset(req *pageRequest) []shared.Record {
	switch req.kind {
	case shared.TradeTick:
		return g.trades
	case shared.BidAskTick:
		return g.bidAsks
	case shared.Bar:
		return g.bars[req.interval]
	default:
		return nil
	}
}

// serve delivers the response for the provided page request: zero or more
// records in ascending order followed by exactly one page done marker, or a
// gateway error for unknown instruments.
func (g *Replay) serve(req *pageRequest) {
	if req.instrument != g.instrument {
		g.cfg.Logger.Error().Msgf("request %d for unknown instrument %s rejected",
			req.correlationID, req.instrument)
		g.cfg.Notifier.SendGatewayError(shared.GatewayErrorNotification{
			CorrelationID: req.correlationID,
			Code:          noSecurityDefinitionCode,
			Message:       fmt.Sprintf("no security definition found for %s", req.instrument),
		})
		return
	}

	records := g.dataset(req)

	// Find the last record at or before the requested end.
	idx := sort.Search(len(records), func(i int) bool {
		return records[i].Timestamp.After(req.end)
	})

	page := records[:idx]
	switch req.kind {
	case shared.Bar:
		// Bar requests cover a bounded span rather than a record count.
		blockStart := req.end.Add(-req.span)
		first := sort.Search(len(page), func(i int) bool {
			return page[i].Timestamp.After(blockStart)
		})
		page = page[first:]
	default:
		if uint32(len(page)) > req.limit {
			page = page[uint32(len(page))-req.limit:]
		}
	}

	for idx := range page {
		g.cfg.Notifier.SendRecord(shared.RecordNotification{
			CorrelationID: req.correlationID,
			Record:        page[idx],
		})
	}

	g.cfg.Notifier.SendPageDone(shared.PageDoneNotification{
		CorrelationID: req.correlationID,
	})
}

// Run manages the lifecycle processes of the replay gateway. All responses
// are delivered from this single goroutine, mirroring the upstream's one
// notification thread for every outstanding request.
func (g *Replay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-g.requests:
			g.serve(&req)
		}
	}
}
