package stats

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects the counters of a running node.
type Metrics struct {
	PacketsProcessed *prometheus.CounterVec
	PacketsDropped   *prometheus.CounterVec
	SwapsTerminated  *prometheus.CounterVec
	RPCFailures      *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xbridge",
			Name:      "packets_processed_total",
			Help:      "Packets processed by command.",
		}, []string{"command"}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xbridge",
			Name:      "packets_dropped_total",
			Help:      "Packets dropped by command and reason.",
		}, []string{"command", "reason"}),
		SwapsTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xbridge",
			Name:      "swaps_terminated_total",
			Help:      "Swaps that reached a terminal state.",
		}, []string{"state"}),
		RPCFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xbridge",
			Name:      "wallet_rpc_failures_total",
			Help:      "Failed wallet rpc calls by currency and method.",
		}, []string{"currency", "method"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.PacketsProcessed, m.PacketsDropped, m.SwapsTerminated, m.RPCFailures,
		)
	}
	return m
}

func (m *Metrics) PacketProcessed(command string) {
	if m == nil {
		return
	}
	m.PacketsProcessed.WithLabelValues(command).Inc()
}

func (m *Metrics) PacketDropped(command, reason string) {
	if m == nil {
		return
	}
	m.PacketsDropped.WithLabelValues(command, reason).Inc()
}

func (m *Metrics) SwapTerminated(state string) {
	if m == nil {
		return
	}
	m.SwapsTerminated.WithLabelValues(state).Inc()
}

func (m *Metrics) RPCFailed(currency, method string) {
	if m == nil {
		return
	}
	m.RPCFailures.WithLabelValues(currency, method).Inc()
}
