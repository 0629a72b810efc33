package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/mkoh/backwalk/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// insertBatchSize is the number of record inserts per execute call.
	insertBatchSize = 256

	// SQL statements.
	createSeriesTableSQL = "CREATE TABLE IF NOT EXISTS series (jobid TEXT PRIMARY KEY, instrument TEXT, kind TEXT, interval TEXT, windowstart INTEGER, windowend INTEGER, records INTEGER, complete INTEGER, reason TEXT, pages INTEGER, createdon INTEGER)"
	createRecordTableSQL = "CREATE TABLE IF NOT EXISTS record (jobid TEXT, instrument TEXT, kind TEXT, interval TEXT, timestamp INTEGER, price REAL, size REAL, bid REAL, ask REAL, bidsize REAL, asksize REAL, open REAL, high REAL, low REAL, close REAL, volume REAL, wap REAL, count INTEGER, correlationid INTEGER)"
	persistSeriesSQL     = "INSERT INTO series(jobid, instrument, kind, interval, windowstart, windowend, records, complete, reason, pages, createdon) VALUES(?,?,?,?,?,?,?,?,?,?,?)"
	persistRecordSQL     = "INSERT INTO record(jobid, instrument, kind, interval, timestamp, price, size, bid, ask, bidsize, asksize, open, high, low, close, volume, wap, count, correlationid) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"
)

// DatabaseConfig is the configuration for the series database sink.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("endpoint cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Database persists assembled series to rqlite.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
}

// Ensure the database implements the SeriesSink interface.
var _ shared.SeriesSink = (*Database)(nil)

// NewDatabase initializes a new series database sink.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// bootstrap initializes the database schema.
func (db *Database) bootstrap(ctx context.Context) error {
	_, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createSeriesTableSQL},
		{SQL: createRecordTableSQL},
	}, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	return nil
}

// recordStatement forms the insert statement for the provided record.
func recordStatement(series *shared.Series, record *shared.Record) *rqlitehttp.SQLStatement {
	return &rqlitehttp.SQLStatement{
		SQL: persistRecordSQL,
		PositionalParams: []any{series.JobID, record.Instrument, record.Kind.String(),
			record.Interval.String(), record.Timestamp.Unix(), record.Price, record.Size,
			record.BidPrice, record.AskPrice, record.BidSize, record.AskSize,
			record.Open, record.High, record.Low, record.Close, record.Volume,
			record.WAP, record.Count, record.CorrelationID},
	}
}

// OnSeriesReady persists the provided frozen series and its records.
func (db *Database) OnSeriesReady(ctx context.Context, series *shared.Series) error {
	now, _, err := shared.NewYorkTime()
	if err != nil {
		return err
	}

	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: persistSeriesSQL,
			PositionalParams: []any{series.JobID, series.Instrument, series.Kind.String(),
				series.Interval.String(), series.WindowStart.Unix(), series.WindowEnd.Unix(),
				len(series.Records), series.Complete, series.Reason.String(),
				series.PagesIssued, now.Unix()},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}
	has, idx, errStr := resp.HasError()
	if has {
		db.cfg.Logger.Error().Msgf("unexpected series insert failure: %s", spew.Sdump(series))
		return fmt.Errorf("persisting series %s: %d -> %s", series.JobID, idx, errStr)
	}

	for start := 0; start < len(series.Records); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(series.Records) {
			end = len(series.Records)
		}

		statements := make(rqlitehttp.SQLStatements, 0, end-start)
		for idx := start; idx < end; idx++ {
			statements = append(statements, recordStatement(series, &series.Records[idx]))
		}

		resp, err := db.client.Execute(ctx, statements, &rqlitehttp.ExecuteOptions{
			Transaction: true,
			Timings:     true,
		})
		if err != nil {
			return err
		}
		has, idx, errStr := resp.HasError()
		if has {
			return fmt.Errorf("persisting records for series %s: %d -> %s", series.JobID, idx, errStr)
		}
	}

	return nil
}
