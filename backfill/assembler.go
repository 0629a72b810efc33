package backfill

import (
	"slices"

	"github.com/mkoh/backwalk/shared"
)

// Assemble merges the provided arrival-ordered pages into one ascending,
// deduplicated series for the originating request. Pages arrive time
// descending by construction of the backward walk, records within a page are
// sorted ascending. Exact duplicate (timestamp, instrument, kind) entries can
// occur at page boundaries when the cursor decrement causes a one-step
// overlap and are removed. The paging loop keeps pages whole even when they
// span past the window start, so records outside the requested window are
// excluded here to uphold the series window invariant.
func Assemble(jobID string, req *shared.BackfillRequest, pages [][]shared.Record,
	reason shared.TerminationReason, issued uint32) *shared.Series {
	var size int
	for idx := range pages {
		size += len(pages[idx])
	}

	records := make([]shared.Record, 0, size)
	for idx := len(pages) - 1; idx >= 0; idx-- {
		for jdx := range pages[idx] {
			ts := pages[idx][jdx].Timestamp
			if ts.Before(req.WindowStart) || ts.After(req.WindowEnd) {
				continue
			}
			records = append(records, pages[idx][jdx])
		}
	}

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

	deduped := make([]shared.Record, 0, len(records))
	for idx := range records {
		if len(deduped) > 0 {
			prev := &deduped[len(deduped)-1]
			if records[idx].Timestamp.Equal(prev.Timestamp) &&
				records[idx].Instrument == prev.Instrument &&
				records[idx].Kind == prev.Kind {
				continue
			}
		}
		deduped = append(deduped, records[idx])
	}

	return &shared.Series{
		JobID:       jobID,
		Instrument:  req.Instrument,
		Kind:        req.Kind,
		Interval:    req.Interval,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		Records:     deduped,
		Complete:    reason.Complete(),
		Reason:      reason,
		PagesIssued: issued,
	}
}
