// Package monitor polls the chain head and reports block advances.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gateway-fm/txprobe/internal/rpc"
	"github.com/gateway-fm/txprobe/pkg/types"
)

// Sink receives head observations and monitor health transitions.
type Sink interface {
	ObserveBlock(types.BlockObservation)
	SetMonitorUp(up bool)
}

// DefaultPollInterval between head polls.
const DefaultPollInterval = time.Second

// DefaultStaleAfter is the number of consecutive poll failures before head
// data is reported as unknown.
const DefaultStaleAfter = 5

// Config for a Monitor.
type Config struct {
	PollInterval time.Duration
	StaleAfter   int // consecutive failures before degrading, <=0 means DefaultStaleAfter
}

// Monitor tracks the highest block number seen. The baseline only ever
// increases: a node answering with an older head (a lagging replica behind a
// load balancer, a short reorg) produces no observation and never lowers it.
type Monitor struct {
	client rpc.Client
	sink   Sink
	logger *slog.Logger

	pollInterval time.Duration
	staleAfter   int

	mu          sync.RWMutex
	last        types.BlockInfo
	lastSeen    time.Time
	failures    int
	everScanned bool
}

// New creates a Monitor. The sink is typically the metrics collector.
func New(client rpc.Client, sink Sink, logger *slog.Logger, cfg Config) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &Monitor{
		client:       client,
		sink:         sink,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		staleAfter:   cfg.StaleAfter,
	}
}

// Run polls until the context is cancelled. Poll failures are tolerated;
// the loop never exits on error.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll fetches the head once and feeds the sink if it advanced.
func (m *Monitor) Poll(ctx context.Context) {
	block, err := m.client.LatestBlock(ctx)
	if err != nil {
		m.recordFailure(err)
		return
	}
	m.recordSuccess(block)
}

func (m *Monitor) recordFailure(err error) {
	m.mu.Lock()
	m.failures++
	failures := m.failures
	m.mu.Unlock()

	if failures == m.staleAfter {
		m.logger.Warn("block monitor degraded, head data is stale",
			slog.Int("consecutive_failures", failures),
			slog.String("error", err.Error()))
		m.markStale()
		m.sink.SetMonitorUp(false)
		return
	}
	m.logger.Debug("head poll failed", slog.String("error", err.Error()))
}

func (m *Monitor) recordSuccess(block *rpc.Block) {
	now := time.Now()

	m.mu.Lock()
	wasStale := m.failures >= m.staleAfter
	m.failures = 0

	var obs *types.BlockObservation
	switch {
	case !m.everScanned:
		// First successful poll only establishes the baseline. The first
		// observation fires on the advance past it, when a block time can
		// actually be measured.
		m.last = types.BlockInfo{Number: block.Number, TxCount: block.TxCount, GasUsed: block.GasUsed}
		m.lastSeen = now
		m.everScanned = true
	case block.Number > m.last.Number:
		sinceLast := now.Sub(m.lastSeen)
		m.last = types.BlockInfo{
			Number:       block.Number,
			BlockTimeSec: sinceLast.Seconds(),
			TxCount:      block.TxCount,
			GasUsed:      block.GasUsed,
		}
		m.lastSeen = now
		obs = &types.BlockObservation{
			Number:    block.Number,
			Timestamp: block.Timestamp,
			TxCount:   block.TxCount,
			GasUsed:   block.GasUsed,
			SinceLast: sinceLast,
		}
	case block.Number < m.last.Number:
		// Keep the baseline. The head never moves backwards here.
		m.logger.Debug("node reported older head",
			slog.Uint64("reported", block.Number),
			slog.Uint64("baseline", m.last.Number))
	}
	m.last.Stale = false
	m.mu.Unlock()

	if wasStale {
		m.logger.Info("block monitor recovered", slog.Uint64("head", block.Number))
	}
	m.sink.SetMonitorUp(true)

	if obs != nil {
		m.sink.ObserveBlock(*obs)
	}
}

func (m *Monitor) markStale() {
	m.mu.Lock()
	m.last.Stale = true
	m.mu.Unlock()
}

// Head returns the monitor's view of the chain head for the status API.
func (m *Monitor) Head() types.BlockInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
