package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds every series exported on /metrics.
type PrometheusMetrics struct {
	TxTotal       *prometheus.CounterVec
	RPCTotal      *prometheus.CounterVec
	GasUsedTotal  prometheus.Counter
	TxLatency     prometheus.Histogram
	RPCLatency    *prometheus.HistogramVec

	CurrentTPS     prometheus.Gauge
	CurrentRPS     prometheus.Gauge
	CurrentMGas    prometheus.Gauge
	FailureRate    prometheus.Gauge
	TargetTPS      prometheus.Gauge
	BlockNumber    prometheus.Gauge
	BlockTime      prometheus.Gauge
	BlockTxs       prometheus.Gauge
	BlockGasUsed   prometheus.Gauge
	BlockMonitorUp prometheus.Gauge
}

// NewPrometheusMetrics creates and registers the probe's metric series.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		TxTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_transactions_total",
				Help: "Submitted transactions by outcome",
			},
			[]string{"status"},
		),

		RPCTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_rpc_requests_total",
				Help: "JSON-RPC calls by method and outcome, failures included",
			},
			[]string{"method", "status"},
		),

		GasUsedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "probe_gas_used_total",
				Help: "Cumulative gas credited to successful submissions",
			},
		),

		TxLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "probe_tx_latency_seconds",
				Help:    "Submission round-trip latency in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),

		RPCLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probe_rpc_latency_seconds",
				Help:    "RPC call latency by method",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"method"},
		),

		CurrentTPS: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probe_current_tps",
				Help: "Successful transactions per second over the last window",
			},
		),

		CurrentRPS: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probe_current_rps",
				Help: "RPC calls per second over the last window",
			},
		),

		CurrentMGas: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probe_current_mgas_per_second",
				Help: "Millions of gas per second over the last window",
			},
		),

		FailureRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probe_failure_rate",
				Help: "Fraction of submissions that failed over the last window",
			},
		),

		TargetTPS: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probe_target_tps",
				Help: "Configured submission rate",
			},
		),

		BlockNumber: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probe_block_number",
				Help: "Highest block number observed so far",
			},
		),

		BlockTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probe_block_time_seconds",
				Help: "Wall time between the last two head advances",
			},
		),

		BlockTxs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probe_block_transactions",
				Help: "Transaction count of the last observed block",
			},
		),

		BlockGasUsed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probe_block_gas_used",
				Help: "Gas used by the last observed block",
			},
		),

		BlockMonitorUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probe_block_monitor_up",
				Help: "1 while the block monitor has fresh data, 0 once stale",
			},
		),
	}
}

// knownMethods bounds the method label to prevent cardinality growth.
var knownMethods = map[string]bool{
	"eth_sendRawTransaction":  true,
	"eth_getTransactionCount": true,
	"eth_blockNumber":         true,
	"eth_getBlockByNumber":    true,
	"eth_getBalance":          true,
	"eth_chainId":             true,
}

func boundedMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}
