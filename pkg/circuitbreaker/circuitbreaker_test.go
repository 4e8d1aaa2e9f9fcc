package circuitbreaker_test

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/pkg/circuitbreaker"
)

func TestReadyToTrip(t *testing.T) {
	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{"no_requests", gobreaker.Counts{}, false},
		{"few_requests", gobreaker.Counts{Requests: 10, TotalFailures: 10}, false},
		{"low_ratio", gobreaker.Counts{Requests: 20, TotalFailures: 11}, false},
		{"trip", gobreaker.Counts{Requests: 20, TotalFailures: 12}, true},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, circuitbreaker.ReadyToTrip(tt.counts))
		})
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	cb := circuitbreaker.NewCircuitBreaker("test")
	failure := errors.New("failure")
	for i := 0; i <= circuitbreaker.MaxNumOfFailingRequests; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, failure })
		require.ErrorIs(t, err, failure)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return nil, nil })
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}
