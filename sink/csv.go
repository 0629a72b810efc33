package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mkoh/backwalk/shared"
	"github.com/rs/zerolog"
)

const (
	// exportFileMode is the permission mode for exported csv files.
	exportFileMode = 0o644
	// exportDateLayout is the date component of exported file names.
	exportDateLayout = "20060102"
)

// CSVConfig represents the csv export sink configuration.
type CSVConfig struct {
	// Dir is the directory exported series files are written to.
	Dir string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *CSVConfig) Validate() error {
	var errs error

	if cfg.Dir == "" {
		errs = errors.Join(errs, fmt.Errorf("export directory cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// CSV exports assembled series to tabular csv files, one file per series.
type CSV struct {
	cfg *CSVConfig
}

// Ensure the csv sink implements the SeriesSink interface.
var _ shared.SeriesSink = (*CSV)(nil)

// NewCSV initializes a new csv export sink.
func NewCSV(cfg *CSVConfig) (*CSV, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating csv config: %w", err)
	}

	err = os.MkdirAll(cfg.Dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	return &CSV{
		cfg: cfg,
	}, nil
}

// exportName forms the export file name for the provided series.
func exportName(series *shared.Series) string {
	name := fmt.Sprintf("%s_%s_%s.csv", series.Instrument, series.Kind.String(),
		series.WindowEnd.Format(exportDateLayout))
	if series.Kind == shared.Bar {
		name = fmt.Sprintf("%s_%s_%s_%s.csv", series.Instrument, series.Kind.String(),
			series.Interval.String(), series.WindowEnd.Format(exportDateLayout))
	}

	return name
}

// header returns the csv header for the provided data kind.
func header(kind shared.DataKind) []string {
	switch kind {
	case shared.TradeTick:
		return []string{"time", "price", "size"}
	case shared.BidAskTick:
		return []string{"time", "bid", "ask", "bidsize", "asksize"}
	default:
		return []string{"time", "open", "high", "low", "close", "volume", "wap", "count"}
	}
}

// row forms the csv row for the provided record.
func row(record *shared.Record) []string {
	ts := record.Timestamp.Format(shared.DateLayout)

	switch record.Kind {
	case shared.TradeTick:
		return []string{ts,
			strconv.FormatFloat(record.Price, 'f', -1, 64),
			strconv.FormatFloat(record.Size, 'f', -1, 64)}
	case shared.BidAskTick:
		return []string{ts,
			strconv.FormatFloat(record.BidPrice, 'f', -1, 64),
			strconv.FormatFloat(record.AskPrice, 'f', -1, 64),
			strconv.FormatFloat(record.BidSize, 'f', -1, 64),
			strconv.FormatFloat(record.AskSize, 'f', -1, 64)}
	default:
		return []string{ts,
			strconv.FormatFloat(record.Open, 'f', -1, 64),
			strconv.FormatFloat(record.High, 'f', -1, 64),
			strconv.FormatFloat(record.Low, 'f', -1, 64),
			strconv.FormatFloat(record.Close, 'f', -1, 64),
			strconv.FormatFloat(record.Volume, 'f', -1, 64),
			strconv.FormatFloat(record.WAP, 'f', -1, 64),
			strconv.FormatUint(uint64(record.Count), 10)}
	}
}

// OnSeriesReady writes the provided frozen series to a csv file.
func (c *CSV) OnSeriesReady(ctx context.Context, series *shared.Series) error {
	path := filepath.Join(c.cfg.Dir, exportName(series))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, exportFileMode)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	err = writer.Write(header(series.Kind))
	if err != nil {
		return fmt.Errorf("writing export header: %w", err)
	}

	for idx := range series.Records {
		err = writer.Write(row(&series.Records[idx]))
		if err != nil {
			return fmt.Errorf("writing export row: %w", err)
		}
	}

	writer.Flush()
	err = writer.Error()
	if err != nil {
		return fmt.Errorf("flushing export file: %w", err)
	}

	c.cfg.Logger.Info().Msgf("exported %d records to %s", len(series.Records), path)

	return nil
}
