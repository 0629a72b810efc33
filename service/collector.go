package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"

	"github.com/mkoh/backwalk/backfill"
	"github.com/mkoh/backwalk/gateway"
	"github.com/mkoh/backwalk/shared"
	"github.com/mkoh/backwalk/sink"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// maxWorkers is the maximum number of concurrent sink workers.
	maxWorkers = 4
	// collectionTime is the new york wall clock time daily collections run at.
	collectionTime = "17:30"
	// sinkTimeout is the maximum wait for a sink to persist a series.
	sinkTimeout = time.Minute
)

// CollectorConfig represents the configuration struct for the collector service.
type CollectorConfig struct {
	// DataFilepath is the filepath to the recorded market data served by the
	// replay gateway.
	DataFilepath string
	// DBEndpoint represents the series database endpoint, persistence is
	// skipped when empty.
	DBEndpoint string
	// DBUser is the series database user.
	DBUser string
	// DBPass is the series database user pass.
	DBPass string
	// ExportDir is the directory assembled series are exported to as csv.
	ExportDir string
	// TickWindowDays is the number of days of tick data collected per run.
	TickWindowDays int
	// BarWindowDays is the number of days of bar data collected per run.
	BarWindowDays int
	// RunOnce indicates the service should collect once and terminate rather
	// than schedule daily collections.
	RunOnce bool
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config has sane inputs.
func (cfg *CollectorConfig) Validate() error {
	var errs error

	if cfg.DataFilepath == "" {
		errs = errors.Join(errs, fmt.Errorf("data filepath cannot be an empty string"))
	}
	if cfg.ExportDir == "" {
		errs = errors.Join(errs, fmt.Errorf("export directory cannot be an empty string"))
	}
	if cfg.TickWindowDays <= 0 {
		errs = errors.Join(errs, fmt.Errorf("tick window days must be positive"))
	}
	if cfg.BarWindowDays <= 0 {
		errs = errors.Join(errs, fmt.Errorf("bar window days must be positive"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// Collector represents the historical market data collection service.
type Collector struct {
	cfg             *CollectorConfig
	gateway         *gateway.Replay
	backfillManager *backfill.Manager
	sinks           []shared.SeriesSink
	jobScheduler    *gocron.Scheduler
	seriesSignals   chan *shared.Series
	workers         chan struct{}
	logger          *zerolog.Logger
	wg              sync.WaitGroup
}

// NewCollector initializes a new collector service.
func NewCollector(ctx context.Context, cfg *CollectorConfig) (*Collector, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating collector config: %w", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "collector").Logger()

	collector := &Collector{
		cfg:           cfg,
		seriesSignals: make(chan *shared.Series, bufferSize),
		workers:       make(chan struct{}, maxWorkers),
		logger:        &logger,
	}

	var backfillMgr *backfill.Manager

	// The gateway delivers notifications to the backfill manager created
	// after it.
	notifier := &notifierFuncs{
		record:   func(n shared.RecordNotification) { backfillMgr.SendRecord(n) },
		pageDone: func(n shared.PageDoneNotification) { backfillMgr.SendPageDone(n) },
		gwError:  func(n shared.GatewayErrorNotification) { backfillMgr.SendGatewayError(n) },
	}

	gatewayLogger := logger.With().Str("component", "replaygateway").Logger()
	replay, err := gateway.NewReplay(&gateway.ReplayConfig{
		FilePath: cfg.DataFilepath,
		Notifier: notifier,
		Logger:   &gatewayLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating replay gateway: %w", err)
	}
	collector.gateway = replay

	backfillLogger := logger.With().Str("component", "backfillmanager").Logger()
	backfillMgr, err = backfill.NewManager(&backfill.ManagerConfig{
		Requester:         replay,
		SignalSeriesReady: collector.SendSeriesReady,
		Cooldown:          shared.PacingCooldown,
		Logger:            &backfillLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating backfill manager: %w", err)
	}
	collector.backfillManager = backfillMgr

	exportLogger := logger.With().Str("component", "csvsink").Logger()
	csvSink, err := sink.NewCSV(&sink.CSVConfig{
		Dir:    cfg.ExportDir,
		Logger: &exportLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating csv sink: %w", err)
	}
	collector.sinks = append(collector.sinks, csvSink)

	if cfg.DBEndpoint != "" {
		dbLogger := logger.With().Str("component", "database").Logger()
		db, err := sink.NewDatabase(ctx, &sink.DatabaseConfig{
			Endpoint: cfg.DBEndpoint,
			User:     cfg.DBUser,
			Pass:     cfg.DBPass,
			Logger:   &dbLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating database sink: %w", err)
		}
		collector.sinks = append(collector.sinks, db)
	}

	_, loc, err := shared.NewYorkTime()
	if err != nil {
		return nil, fmt.Errorf("fetching new york time: %w", err)
	}

	collector.jobScheduler = gocron.NewScheduler(loc)

	return collector, nil
}

// notifierFuncs adapts function collaborators to the gateway notifier interface.
type notifierFuncs struct {
	record   func(notification shared.RecordNotification)
	pageDone func(notification shared.PageDoneNotification)
	gwError  func(notification shared.GatewayErrorNotification)
}

// Ensure notifierFuncs implements the GatewayNotifier interface.
var _ shared.GatewayNotifier = (*notifierFuncs)(nil)

// SendRecord relays the provided record notification for processing.
func (n *notifierFuncs) SendRecord(notification shared.RecordNotification) {
	n.record(notification)
}

// SendPageDone relays the provided page completion notification for processing.
func (n *notifierFuncs) SendPageDone(notification shared.PageDoneNotification) {
	n.pageDone(notification)
}

// SendGatewayError relays the provided gateway error notification for processing.
func (n *notifierFuncs) SendGatewayError(notification shared.GatewayErrorNotification) {
	n.gwError(notification)
}

// SendSeriesReady relays the provided assembled series for persistence.
func (c *Collector) SendSeriesReady(series *shared.Series) {
	select {
	case c.seriesSignals <- series:
		// do nothing.
	default:
		c.logger.Error().Msgf("series signal channel at capacity: %d/%d",
			len(c.seriesSignals), bufferSize)
	}
}

// handleSeriesReady persists the provided series through every configured sink.
func (c *Collector) handleSeriesReady(series *shared.Series) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	for idx := range c.sinks {
		err := c.sinks[idx].OnSeriesReady(ctx, series)
		if err != nil {
			c.logger.Error().Msgf("persisting %s %s series: %v", series.Instrument,
				series.Kind.String(), err)
		}
	}
}

// collectionRequests forms the backfill requests for one collection run,
// covering trade ticks, bid/ask ticks and minute and daily bars over their
// configured windows.
func (c *Collector) collectionRequests(end time.Time) []*shared.BackfillRequest {
	tickStart := end.AddDate(0, 0, -c.cfg.TickWindowDays)
	barStart := end.AddDate(0, 0, -c.cfg.BarWindowDays)
	instrument := c.gateway.FetchInstrument()

	return []*shared.BackfillRequest{
		shared.NewBackfillRequest(instrument, shared.TradeTick, 0, tickStart, end),
		shared.NewBackfillRequest(instrument, shared.BidAskTick, 0, tickStart, end),
		shared.NewBackfillRequest(instrument, shared.Bar, shared.OneMinute, barStart, end),
		shared.NewBackfillRequest(instrument, shared.Bar, shared.OneDay, barStart, end),
	}
}

// collect runs one full collection pass and logs its summary.
func (c *Collector) collect(ctx context.Context, end time.Time) {
	requests := c.collectionRequests(end)

	totals := make(map[string]int, len(requests))
	for idx := range requests {
		req := requests[idx]

		series, err := c.backfillManager.RunBackfill(ctx, req)
		if err != nil {
			c.logger.Error().Msgf("backfilling %s %s: %v", req.Instrument, req.Kind.String(), err)
			return
		}

		key := req.Kind.String()
		if req.Kind == shared.Bar {
			key = fmt.Sprintf("%s %s", req.Interval.String(), key)
		}
		totals[key] = len(series.Records)
	}

	var total int
	for key, count := range totals {
		c.logger.Info().Msgf("collected %d %s records", count, key)
		total += count
	}
	c.logger.Info().Msgf("collection run done, %d data points total", total)
}

// Run handles the lifecycle processes of the collector service.
func (c *Collector) Run(ctx context.Context) {
	c.wg.Add(2)

	go func() {
		c.gateway.Run(ctx)
		c.wg.Done()
	}()

	go func() {
		c.backfillManager.Run(ctx)
		c.wg.Done()
	}()

	switch {
	case c.cfg.RunOnce:
		go func() {
			// wait briefly for initialization.
			time.Sleep(time.Second * 1)

			now, _, err := shared.NewYorkTime()
			if err != nil {
				c.logger.Error().Msgf("fetching new york time: %v", err)
				c.cfg.Cancel()
				return
			}

			c.collect(ctx, now)
			c.logger.Info().Msg("single collection run done, review exports")
			c.cfg.Cancel()
		}()
	default:
		_, err := c.jobScheduler.Every(1).Day().At(collectionTime).Do(func() {
			now, _, err := shared.NewYorkTime()
			if err != nil {
				c.logger.Error().Msgf("fetching new york time: %v", err)
				return
			}

			c.collect(ctx, now)
		})
		if err != nil {
			c.logger.Error().Msgf("scheduling daily collection: %v", err)
		}

		c.jobScheduler.StartAsync()
	}

	for {
		select {
		case <-ctx.Done():
			c.jobScheduler.Stop()

			// Persist series still buffered at shutdown before waiting out
			// the in-flight workers, a collection run may cancel immediately
			// after signaling its last series.
			for {
				select {
				case series := <-c.seriesSignals:
					c.handleSeriesReady(series)
				default:
					c.wg.Wait()
					return
				}
			}
		case series := <-c.seriesSignals:
			// use workers to persist series concurrently.
			c.workers <- struct{}{}
			c.wg.Add(1)
			go func(series *shared.Series) {
				c.handleSeriesReady(series)
				<-c.workers
				c.wg.Done()
			}(series)
		}
	}
}
