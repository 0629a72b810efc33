package shared

import (
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestTerminationReasonComplete(t *testing.T) {
	tests := []struct {
		reason TerminationReason
		want   bool
	}{
		{NaturalEnd, true},
		{BoundaryReached, true},
		{RequestTimeout, false},
		{RequestErrored, false},
		{PagesExhausted, false},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, test.reason.Complete())
	}
}

func TestTerminationReasonString(t *testing.T) {
	reasons := []TerminationReason{NaturalEnd, BoundaryReached, RequestTimeout,
		RequestErrored, PagesExhausted}
	for _, reason := range reasons {
		assert.NotEqual(t, "unknown", reason.String())
	}

	assert.Equal(t, "unknown", TerminationReason(99).String())
}
