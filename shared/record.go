package shared

import (
	"time"
)

// DataKind represents the kind of market data sample.
type DataKind int

const (
	TradeTick DataKind = iota
	BidAskTick
	Bar
)

// String stringifies the provided data kind.
func (k DataKind) String() string {
	switch k {
	case TradeTick:
		return "trades"
	case BidAskTick:
		return "bidask"
	case Bar:
		return "bars"
	default:
		return "unknown"
	}
}

// BarInterval represents the aggregation interval of a bar.
type BarInterval int

const (
	OneSecond BarInterval = iota
	OneMinute
	FiveMinute
	FifteenMinute
	OneHour
	OneDay
)

// String stringifies the provided bar interval.
func (b BarInterval) String() string {
	switch b {
	case OneSecond:
		return "1s"
	case OneMinute:
		return "1m"
	case FiveMinute:
		return "5m"
	case FifteenMinute:
		return "15m"
	case OneHour:
		return "1H"
	case OneDay:
		return "1D"
	default:
		return "unknown"
	}
}

// Duration returns the time span covered by a single bar of the interval.
func (b BarInterval) Duration() time.Duration {
	switch b {
	case OneSecond:
		return time.Second
	case OneMinute:
		return time.Minute
	case FiveMinute:
		return time.Minute * 5
	case FifteenMinute:
		return time.Minute * 15
	case OneHour:
		return time.Hour
	case OneDay:
		return time.Hour * 24
	default:
		return 0
	}
}

// Record represents a unit market data sample for an instrument. Only the
// field group matching its kind is populated.
type Record struct {
	Timestamp  time.Time
	Instrument string
	Kind       DataKind

	// Trade tick fields.
	Price float64
	Size  float64

	// Bid/ask tick fields.
	BidPrice float64
	AskPrice float64
	BidSize  float64
	AskSize  float64

	// Bar fields.
	Interval BarInterval
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	WAP      float64
	Count    uint32

	// CorrelationID ties the record to the page request that delivered it.
	CorrelationID uint64
}
