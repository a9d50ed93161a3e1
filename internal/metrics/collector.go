// Package metrics aggregates transaction outcomes and RPC traffic into
// lifetime counters, per-window rates, and Prometheus series.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gateway-fm/txprobe/pkg/types"
)

// Collector is the run-wide aggregator. Workers, the RPC client, and the
// block monitor all feed it; the tick loop and the HTTP API read from it.
//
// Lifetime counters only ever increase. Per-window rates are derived from
// counter deltas on each Tick, so a missed tick folds into the next window
// instead of losing samples.
type Collector struct {
	submitted atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	rpcCalls  atomic.Uint64
	gasUsed   atomic.Uint64

	// Last observed head. Written by the monitor goroutine, read by the tick
	// loop; a window closing concurrently with a head advance may be labeled
	// with either block number, which is acceptable for trend data.
	blockNumber atomic.Uint64
	monitorUp   atomic.Bool

	latency *StreamingLatencyStats
	prom    *PrometheusMetrics

	// Recorders hold the read side while bumping their counter group; Tick
	// holds the write side, so a window never splits one outcome across two
	// snapshots (a failed delta can never exceed the submitted delta).
	mu        sync.RWMutex
	lastTick  time.Time
	lastTotal windowTotals

	rates   types.DerivedRates
	ratesMu sync.RWMutex
}

type windowTotals struct {
	submitted uint64
	succeeded uint64
	failed    uint64
	rpcCalls  uint64
	gasUsed   uint64
}

// NewCollector creates a collector backed by the given Prometheus metrics.
func NewCollector(prom *PrometheusMetrics) *Collector {
	c := &Collector{
		latency:  NewStreamingLatencyStats(),
		prom:     prom,
		lastTick: time.Now(),
	}
	c.monitorUp.Store(true)
	return c
}

// RecordOutcome ingests one submission result. Called once per transaction.
func (c *Collector) RecordOutcome(out types.TransactionOutcome) {
	c.mu.RLock()
	c.submitted.Add(1)
	if out.Success {
		c.succeeded.Add(1)
		c.gasUsed.Add(out.GasUsed)
	} else {
		c.failed.Add(1)
	}
	c.mu.RUnlock()

	// A zero latency means the submission never reached the wire (a build or
	// signing failure); it carries no timing information.
	if out.Latency > 0 {
		latencySec := out.Latency.Seconds()
		c.latency.Add(latencySec * 1000)
		c.prom.TxLatency.Observe(latencySec)
	}

	if out.Success {
		c.prom.TxTotal.WithLabelValues("success").Inc()
		c.prom.GasUsedTotal.Add(float64(out.GasUsed))
		return
	}
	c.prom.TxTotal.WithLabelValues(string(out.Kind)).Inc()
}

// ObserveRPCCall implements the RPC client observer. Every call counts,
// failed ones included.
func (c *Collector) ObserveRPCCall(method string, ok bool, latency time.Duration) {
	c.mu.RLock()
	c.rpcCalls.Add(1)
	c.mu.RUnlock()

	status := "success"
	if !ok {
		status = "error"
	}
	method = boundedMethod(method)
	c.prom.RPCTotal.WithLabelValues(method, status).Inc()
	c.prom.RPCLatency.WithLabelValues(method).Observe(latency.Seconds())
}

// ObserveBlock ingests a head advance from the block monitor.
func (c *Collector) ObserveBlock(obs types.BlockObservation) {
	c.blockNumber.Store(obs.Number)
	c.monitorUp.Store(true)

	c.prom.BlockNumber.Set(float64(obs.Number))
	c.prom.BlockTxs.Set(float64(obs.TxCount))
	c.prom.BlockGasUsed.Set(float64(obs.GasUsed))
	c.prom.BlockMonitorUp.Set(1)
	if obs.SinceLast > 0 {
		c.prom.BlockTime.Set(obs.SinceLast.Seconds())
	}
}

// SetMonitorUp records block monitor health. The monitor flips it to false
// after persistent poll failures and back to true on the next success, even
// when the head has not advanced.
func (c *Collector) SetMonitorUp(up bool) {
	c.monitorUp.Store(up)
	if up {
		c.prom.BlockMonitorUp.Set(1)
	} else {
		c.prom.BlockMonitorUp.Set(0)
	}
}

// MonitorUp reports whether head data is fresh.
func (c *Collector) MonitorUp() bool {
	return c.monitorUp.Load()
}

// BlockNumber returns the highest head observed so far.
func (c *Collector) BlockNumber() uint64 {
	return c.blockNumber.Load()
}

// Totals returns the lifetime counters.
func (c *Collector) Totals() (submitted, succeeded, failed, rpcCalls, gasUsed uint64) {
	return c.submitted.Load(), c.succeeded.Load(), c.failed.Load(), c.rpcCalls.Load(), c.gasUsed.Load()
}

// Latency returns the lifetime latency distribution, nil before any sample.
func (c *Collector) Latency() *types.LatencyStats {
	return c.latency.Snapshot()
}

// Rates returns the gauges computed by the most recent Tick.
func (c *Collector) Rates() types.DerivedRates {
	c.ratesMu.RLock()
	defer c.ratesMu.RUnlock()
	return c.rates
}

// Tick closes the current window: it derives rates from counter deltas,
// updates the gauges, and returns the window for persistence.
func (c *Collector) Tick(now time.Time) types.WindowSample {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := windowTotals{
		submitted: c.submitted.Load(),
		succeeded: c.succeeded.Load(),
		failed:    c.failed.Load(),
		rpcCalls:  c.rpcCalls.Load(),
		gasUsed:   c.gasUsed.Load(),
	}

	elapsed := now.Sub(c.lastTick).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	dSubmitted := total.submitted - c.lastTotal.submitted
	dFailed := total.failed - c.lastTotal.failed
	dRPC := total.rpcCalls - c.lastTotal.rpcCalls
	dGas := total.gasUsed - c.lastTotal.gasUsed

	// TPS counts submission attempts; failures degrade the failure rate, not
	// the throughput gauge.
	rates := types.DerivedRates{
		TPS:        float64(dSubmitted) / elapsed,
		RPS:        float64(dRPC) / elapsed,
		MGasPerSec: float64(dGas) / elapsed / 1e6,
	}
	if dSubmitted > 0 {
		rates.FailureRate = float64(dFailed) / float64(dSubmitted)
	}

	c.lastTick = now
	c.lastTotal = total

	c.ratesMu.Lock()
	c.rates = rates
	c.ratesMu.Unlock()

	c.prom.CurrentTPS.Set(rates.TPS)
	c.prom.CurrentRPS.Set(rates.RPS)
	c.prom.CurrentMGas.Set(rates.MGasPerSec)
	c.prom.FailureRate.Set(rates.FailureRate)

	return types.WindowSample{
		TimestampMS: now.UnixMilli(),
		BlockNumber: c.blockNumber.Load(),
		Submitted:   dSubmitted,
		Failed:      dFailed,
		RPCCalls:    dRPC,
		GasUsed:     dGas,
		TPS:         rates.TPS,
		RPS:         rates.RPS,
		MGasPerSec:  rates.MGasPerSec,
		FailureRate: rates.FailureRate,
	}
}
