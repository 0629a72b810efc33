package sink

import (
	"strings"
	"testing"
	"time"

	"github.com/mkoh/backwalk/shared"
	"github.com/peterldowns/testy/assert"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog/log"
)

func TestDatabaseConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *DatabaseConfig
		errContains string
	}{
		{
			name: "valid config",
			cfg: &DatabaseConfig{
				Endpoint: "http://localhost:4001",
				Logger:   &log.Logger,
			},
		},
		{
			name: "missing endpoint",
			cfg: &DatabaseConfig{
				Logger: &log.Logger,
			},
			errContains: "endpoint cannot be an empty string",
		},
		{
			name: "missing logger",
			cfg: &DatabaseConfig{
				Endpoint: "http://localhost:4001",
			},
			errContains: "logger cannot be nil",
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

func TestRecordStatement(t *testing.T) {
	series := &shared.Series{
		JobID:      "job-1",
		Instrument: "AAPL",
		Kind:       shared.TradeTick,
	}
	record := &shared.Record{
		Timestamp:     time.Date(2025, 6, 13, 15, 59, 59, 0, time.UTC),
		Instrument:    "AAPL",
		Kind:          shared.TradeTick,
		Price:         201.5,
		Size:          100,
		CorrelationID: 7,
	}

	// Ensure record statements batch into the client's statement slice with
	// one positional parameter per record column.
	statements := make(rqlitehttp.SQLStatements, 0, 1)
	statements = append(statements, recordStatement(series, record))

	assert.Equal(t, 1, len(statements))
	assert.Equal(t, persistRecordSQL, statements[0].SQL)
	assert.Equal(t, 19, len(statements[0].PositionalParams))
	assert.Equal(t, any("job-1"), statements[0].PositionalParams[0])
	assert.Equal(t, any(record.Timestamp.Unix()), statements[0].PositionalParams[4])
	assert.Equal(t, any(201.5), statements[0].PositionalParams[5])
}
