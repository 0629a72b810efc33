package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mkoh/backwalk/shared"
	"github.com/peterldowns/testy/assert"
)

func TestCollectorConfigValidate(t *testing.T) {
	cancel := context.CancelFunc(func() {})

	tests := []struct {
		name        string
		cfg         *CollectorConfig
		errContains string
	}{
		{
			name: "valid config",
			cfg: &CollectorConfig{
				DataFilepath:   "/tmp/replay.json",
				ExportDir:      "/tmp/exports",
				TickWindowDays: 1,
				BarWindowDays:  30,
				Cancel:         cancel,
			},
		},
		{
			name: "missing data filepath",
			cfg: &CollectorConfig{
				ExportDir:      "/tmp/exports",
				TickWindowDays: 1,
				BarWindowDays:  30,
				Cancel:         cancel,
			},
			errContains: "data filepath cannot be an empty string",
		},
		{
			name: "missing export directory",
			cfg: &CollectorConfig{
				DataFilepath:   "/tmp/replay.json",
				TickWindowDays: 1,
				BarWindowDays:  30,
				Cancel:         cancel,
			},
			errContains: "export directory cannot be an empty string",
		},
		{
			name: "missing tick window",
			cfg: &CollectorConfig{
				DataFilepath:  "/tmp/replay.json",
				ExportDir:     "/tmp/exports",
				BarWindowDays: 30,
				Cancel:        cancel,
			},
			errContains: "tick window days must be positive",
		},
		{
			name: "missing bar window",
			cfg: &CollectorConfig{
				DataFilepath:   "/tmp/replay.json",
				ExportDir:      "/tmp/exports",
				TickWindowDays: 1,
				Cancel:         cancel,
			},
			errContains: "bar window days must be positive",
		},
		{
			name: "missing cancel function",
			cfg: &CollectorConfig{
				DataFilepath:   "/tmp/replay.json",
				ExportDir:      "/tmp/exports",
				TickWindowDays: 1,
				BarWindowDays:  30,
			},
			errContains: "context cancellation function cannot be nil",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.cfg.Validate()
			if test.errContains == "" {
				assert.NoError(t, err)
				return
			}

			assert.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), test.errContains))
		})
	}
}

// writeCollectionFixture writes replay data with records landing inside the
// collection windows of a run ending at the provided new york time.
func writeCollectionFixture(t *testing.T, end time.Time) string {
	t.Helper()

	stamp := func(ts time.Time) string {
		return ts.Format(shared.DateLayout)
	}

	var trades, bidAsks, minuteBars, dayBars []string
	for idx := range 5 {
		offset := time.Duration(5-idx) * time.Minute
		trades = append(trades, fmt.Sprintf(`{"time": %q, "price": %d, "size": 1}`,
			stamp(end.Add(-offset)), 100+idx))
		bidAsks = append(bidAsks, fmt.Sprintf(`{"time": %q, "bid": %d, "ask": %d, "bidsize": 2, "asksize": 3}`,
			stamp(end.Add(-offset)), 99+idx, 101+idx))
		minuteBars = append(minuteBars, fmt.Sprintf(`{"time": %q, "open": 100, "high": 101, "low": 99, "close": 100, "volume": 500, "wap": 100.1, "count": 40}`,
			stamp(end.Add(-offset))))
	}
	for idx := range 3 {
		dayBars = append(dayBars, fmt.Sprintf(`{"time": %q, "open": 100, "high": 102, "low": 98, "close": 101, "volume": 5000, "wap": 100.5, "count": 400}`,
			stamp(end.AddDate(0, 0, idx-3))))
	}

	fixture := fmt.Sprintf(`{
		"market": "AAPL",
		"trades": [%s],
		"bidasks": [%s],
		"bars": {
			"1m": [%s],
			"1D": [%s]
		}
	}`, strings.Join(trades, ","), strings.Join(bidAsks, ","),
		strings.Join(minuteBars, ","), strings.Join(dayBars, ","))

	path := filepath.Join(t.TempDir(), "replay.json")
	assert.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	return path
}

func TestCollectorRunOnce(t *testing.T) {
	now, _, err := shared.NewYorkTime()
	assert.NoError(t, err)
	end := now.Truncate(time.Second)

	exportDir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector, err := NewCollector(ctx, &CollectorConfig{
		DataFilepath:   writeCollectionFixture(t, end),
		ExportDir:      exportDir,
		TickWindowDays: 1,
		BarWindowDays:  7,
		RunOnce:        true,
		Cancel:         cancel,
	})
	assert.NoError(t, err)

	// Ensure a single collection run persists every assembled series before
	// the service returns, including series signaled right before shutdown.
	done := make(chan struct{})
	go func() {
		collector.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second * 30):
		t.Fatal("timed out awaiting single collection run")
	}

	entries, err := os.ReadDir(exportDir)
	assert.NoError(t, err)
	assert.Equal(t, 4, len(entries))
}

func TestCollectorCollect(t *testing.T) {
	now, _, err := shared.NewYorkTime()
	assert.NoError(t, err)
	end := now.Truncate(time.Second)

	exportDir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector, err := NewCollector(ctx, &CollectorConfig{
		DataFilepath:   writeCollectionFixture(t, end),
		ExportDir:      exportDir,
		TickWindowDays: 1,
		BarWindowDays:  7,
		RunOnce:        true,
		Cancel:         cancel,
	})
	assert.NoError(t, err)

	go collector.gateway.Run(ctx)
	go collector.backfillManager.Run(ctx)

	// Ensure one collection pass covers all four request kinds.
	requests := collector.collectionRequests(end)
	assert.Equal(t, 4, len(requests))
	assert.Equal(t, "AAPL", requests[0].Instrument)

	collector.collect(ctx, end)

	// Ensure every assembled series was signaled and persists cleanly.
	for range requests {
		select {
		case series := <-collector.seriesSignals:
			collector.handleSeriesReady(series)
		case <-time.After(time.Second * 5):
			t.Fatal("timed out awaiting assembled series")
		}
	}

	entries, err := os.ReadDir(exportDir)
	assert.NoError(t, err)
	assert.Equal(t, 4, len(entries))

	date := end.Format("20060102")
	for _, name := range []string{
		fmt.Sprintf("AAPL_trades_%s.csv", date),
		fmt.Sprintf("AAPL_bidask_%s.csv", date),
		fmt.Sprintf("AAPL_bars_1m_%s.csv", date),
		fmt.Sprintf("AAPL_bars_1D_%s.csv", date),
	} {
		_, err := os.Stat(filepath.Join(exportDir, name))
		assert.NoError(t, err)
	}
}
