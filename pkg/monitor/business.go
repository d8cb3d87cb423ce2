package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 交易流水线业务指标。未调用 Init 时指标照常计数，只是不会被导出。
var (
	BroadcastTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_broadcast_total",
		Help: "Broadcast attempts by outcome (success, failed, unknown).",
	}, []string{"network", "status"})

	BroadcastDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_broadcast_duration_seconds",
		Help:    "Time spent submitting a signed transaction to the node.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8},
	}, []string{"network"})

	NonceSourceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_nonce_source_total",
		Help: "Where the next nonce came from (node, gap, cache).",
	}, []string{"source"})

	PolicyBlockedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_policy_blocked_total",
		Help: "Confirmations blocked by policy, by reason.",
	}, []string{"reason"})

	FeeMicroSTX = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_fee_micro_stx",
		Help:    "Resolved transaction fees in micro-STX.",
		Buckets: prometheus.ExponentialBuckets(100, 4, 8),
	}, []string{"kind"})

	RelayTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_origin_relay_total",
		Help: "Outcomes relayed back to the originating app, by result.",
	}, []string{"result"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wallet_active_sessions",
		Help: "Signing sessions currently open.",
	})
)

func pipelineCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		BroadcastTotal, BroadcastDuration, NonceSourceTotal,
		PolicyBlockedTotal, FeeMicroSTX, RelayTotal, ActiveSessions,
	}
}
