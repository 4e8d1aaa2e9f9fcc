package stats_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/pkg/stats"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := stats.NewMetrics(reg)

	m.PacketProcessed("TransactionHold")
	m.PacketProcessed("TransactionHold")
	m.PacketDropped("TransactionInit", "bad_address")
	m.SwapTerminated("Finished")
	m.RPCFailed("BTC", "getrawtransaction")

	require.Equal(t, 2.0, testutil.ToFloat64(m.PacketsProcessed.WithLabelValues("TransactionHold")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PacketsDropped.WithLabelValues("TransactionInit", "bad_address")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SwapsTerminated.WithLabelValues("Finished")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RPCFailures.WithLabelValues("BTC", "getrawtransaction")))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 4)
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *stats.Metrics
	require.NotPanics(t, func() {
		m.PacketProcessed("x")
		m.PacketDropped("x", "y")
		m.SwapTerminated("x")
		m.RPCFailed("x", "y")
	})
}
