// Package probe ties the collector, monitor, and storage together behind the
// API surface served over HTTP and WebSocket.
package probe

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gateway-fm/txprobe/internal/account"
	"github.com/gateway-fm/txprobe/internal/config"
	"github.com/gateway-fm/txprobe/internal/metrics"
	"github.com/gateway-fm/txprobe/internal/monitor"
	"github.com/gateway-fm/txprobe/internal/storage"
	"github.com/gateway-fm/txprobe/pkg/types"
)

// Probe is the run orchestrator. It implements transport.ProbeAPI and
// monitor.Sink: head observations pass through to the collector and are
// persisted alongside the per-window samples.
type Probe struct {
	cfg       *config.Config
	runID     string
	startTime time.Time

	acc       *account.Account
	collector *metrics.Collector
	store     *storage.SQLiteStorage
	logger    *slog.Logger

	// Set via SetMonitor once the monitor exists; the monitor needs the
	// probe as its sink first.
	mon *monitor.Monitor

	ready atomic.Bool
}

// New creates a Probe for one run.
func New(cfg *config.Config, runID string, acc *account.Account, collector *metrics.Collector, store *storage.SQLiteStorage, logger *slog.Logger) *Probe {
	return &Probe{
		cfg:       cfg,
		runID:     runID,
		startTime: time.Now(),
		acc:       acc,
		collector: collector,
		store:     store,
		logger:    logger,
	}
}

// SetMonitor attaches the block monitor. Must happen before serving requests.
func (p *Probe) SetMonitor(m *monitor.Monitor) {
	p.mon = m
}

// SetReady flips the readiness gate once startup checks have passed.
func (p *Probe) SetReady(ready bool) {
	p.ready.Store(ready)
}

// RunID returns this run's identifier.
func (p *Probe) RunID() string {
	return p.runID
}

// ObserveBlock implements monitor.Sink.
func (p *Probe) ObserveBlock(obs types.BlockObservation) {
	p.collector.ObserveBlock(obs)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.store.SaveBlockObservation(ctx, p.runID, obs); err != nil {
		p.logger.Warn("persist block observation", slog.String("error", err.Error()))
	}
}

// SetMonitorUp implements monitor.Sink.
func (p *Probe) SetMonitorUp(up bool) {
	p.collector.SetMonitorUp(up)
}

// RunTickLoop closes a metrics window every tick and persists it. Returns
// when the context is cancelled, after flushing one final window.
func (p *Probe) RunTickLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.MetricsTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.closeWindow(context.Background())
			return
		case <-ticker.C:
			p.closeWindow(ctx)
		}
	}
}

func (p *Probe) closeWindow(ctx context.Context) {
	w := p.collector.Tick(time.Now())

	saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.store.SaveWindow(saveCtx, p.runID, w); err != nil {
		p.logger.Warn("persist window sample", slog.String("error", err.Error()))
	}
}

// Status implements transport.ProbeAPI.
func (p *Probe) Status() types.Status {
	submitted, succeeded, failed, rpcCalls, gasUsed := p.collector.Totals()

	var block types.BlockInfo
	if p.mon != nil {
		block = p.mon.Head()
	}
	block.Stale = !p.collector.MonitorUp()

	return types.Status{
		RunID:       p.runID,
		Address:     p.acc.Address.Hex(),
		TargetTPS:   p.cfg.TargetTPS,
		Concurrency: p.cfg.Concurrency,
		UptimeSec:   time.Since(p.startTime).Seconds(),
		Submitted:   submitted,
		Succeeded:   succeeded,
		Failed:      failed,
		RPCCalls:    rpcCalls,
		GasUsed:     gasUsed,
		Rates:       p.collector.Rates(),
		Latency:     p.collector.Latency(),
		Block:       block,
	}
}

// RecentWindows implements transport.ProbeAPI.
func (p *Probe) RecentWindows(limit int) ([]types.WindowSample, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.store.RecentWindows(ctx, p.runID, limit)
}

// BlockObservations implements transport.ProbeAPI.
func (p *Probe) BlockObservations(limit int) ([]types.BlockObservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.store.BlockObservations(ctx, p.runID, limit)
}

// Ready implements transport.ProbeAPI.
func (p *Probe) Ready() bool {
	return p.ready.Load()
}

// Totals snapshots the lifetime counters for the final run row.
func (p *Probe) Totals() storage.RunTotals {
	submitted, succeeded, failed, rpcCalls, gasUsed := p.collector.Totals()
	return storage.RunTotals{
		Submitted: submitted,
		Succeeded: succeeded,
		Failed:    failed,
		RPCCalls:  rpcCalls,
		GasUsed:   gasUsed,
	}
}
