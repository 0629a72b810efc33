package shared

import (
	"fmt"
	"time"
)

const (
	// NewYorkLocation is the name of the new york timezone.
	NewYorkLocation = "America/New_York"
	// DateLayout is the format layout for parsing record timestamps.
	DateLayout = "2006-01-02 15:04:05"
)

// NewYorkTime returns the current time in new york (EST/EDT adjusted automatically).
func NewYorkTime() (time.Time, *time.Location, error) {
	loc, err := time.LoadLocation(NewYorkLocation)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("loading new york timezone: %w", err)
	}

	now := time.Now().In(loc)
	return now, loc, nil
}
