package probe

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gateway-fm/txprobe/internal/account"
	"github.com/gateway-fm/txprobe/internal/config"
	"github.com/gateway-fm/txprobe/internal/metrics"
	"github.com/gateway-fm/txprobe/internal/storage"
	"github.com/gateway-fm/txprobe/pkg/types"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestProbe(t *testing.T) *Probe {
	t.Helper()

	acc, err := account.NewFromHex(testKeyHex)
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "probe.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		TargetTPS:   50,
		Concurrency: 10,
		MetricsTick: 10 * time.Millisecond,
	}
	collector := metrics.NewCollector(metrics.NewPrometheusMetrics(prometheus.NewRegistry()))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := New(cfg, "run-test", acc, collector, store, logger)
	if err := store.CreateRun(context.Background(), &storage.Run{
		ID:          "run-test",
		StartedAt:   time.Now(),
		Address:     acc.Address.Hex(),
		TargetTPS:   cfg.TargetTPS,
		Concurrency: cfg.Concurrency,
	}); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestStatusReflectsCollector(t *testing.T) {
	p := newTestProbe(t)

	p.collector.RecordOutcome(types.TransactionOutcome{Success: true, GasUsed: 21000, Latency: 5 * time.Millisecond})
	p.collector.RecordOutcome(types.TransactionOutcome{Kind: types.FailureTimeout, Latency: 2 * time.Second})

	st := p.Status()
	if st.RunID != "run-test" {
		t.Errorf("RunID = %q", st.RunID)
	}
	if st.Submitted != 2 || st.Succeeded != 1 || st.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", st.Submitted, st.Succeeded, st.Failed)
	}
	if st.Latency == nil || st.Latency.Count != 2 {
		t.Errorf("Latency = %+v, want 2 samples", st.Latency)
	}
	if st.Address == "" {
		t.Error("Address empty")
	}
}

func TestStatusIsIdempotent(t *testing.T) {
	p := newTestProbe(t)
	p.collector.RecordOutcome(types.TransactionOutcome{Success: true, GasUsed: 21000})

	first := p.Status()
	second := p.Status()
	if first.Submitted != second.Submitted || first.Succeeded != second.Succeeded {
		t.Errorf("reading status changed the counters: %+v vs %+v", first, second)
	}
}

func TestObserveBlockPersists(t *testing.T) {
	p := newTestProbe(t)

	p.ObserveBlock(types.BlockObservation{
		Number:    9,
		Timestamp: time.Unix(1700000000, 0),
		TxCount:   4,
		GasUsed:   84000,
		SinceLast: time.Second,
	})

	observations, err := p.BlockObservations(10)
	if err != nil {
		t.Fatalf("BlockObservations() error = %v", err)
	}
	if len(observations) != 1 || observations[0].Number != 9 {
		t.Errorf("observations = %+v, want one with Number 9", observations)
	}
	if p.collector.BlockNumber() != 9 {
		t.Errorf("collector BlockNumber = %d, want 9", p.collector.BlockNumber())
	}
}

func TestTickLoopPersistsWindows(t *testing.T) {
	p := newTestProbe(t)
	p.collector.RecordOutcome(types.TransactionOutcome{Success: true, GasUsed: 21000})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.RunTickLoop(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick loop did not stop")
	}

	windows, err := p.RecentWindows(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(windows) < 2 {
		t.Errorf("got %d windows, want several (10ms tick over 50ms plus final flush)", len(windows))
	}

	var submitted uint64
	for _, w := range windows {
		submitted += w.Submitted
	}
	if submitted != 1 {
		t.Errorf("window deltas sum to %d submissions, want 1", submitted)
	}
}

func TestReadiness(t *testing.T) {
	p := newTestProbe(t)
	if p.Ready() {
		t.Error("probe ready before startup checks")
	}
	p.SetReady(true)
	if !p.Ready() {
		t.Error("probe not ready after SetReady(true)")
	}
}

func TestStaleBlockSurfacesInStatus(t *testing.T) {
	p := newTestProbe(t)

	p.SetMonitorUp(false)
	if st := p.Status(); !st.Block.Stale {
		t.Error("Block.Stale = false after monitor went down")
	}

	p.SetMonitorUp(true)
	if st := p.Status(); st.Block.Stale {
		t.Error("Block.Stale = true after monitor recovered")
	}
}
