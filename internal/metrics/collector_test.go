package metrics

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gateway-fm/txprobe/pkg/types"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(NewPrometheusMetrics(prometheus.NewRegistry()))
}

func TestRecordOutcomeCounters(t *testing.T) {
	c := newTestCollector(t)

	c.RecordOutcome(types.TransactionOutcome{Success: true, GasUsed: 21000, Latency: 10 * time.Millisecond})
	c.RecordOutcome(types.TransactionOutcome{Success: true, GasUsed: 21000, Latency: 12 * time.Millisecond})
	c.RecordOutcome(types.TransactionOutcome{Kind: types.FailureNodeError, Latency: 5 * time.Millisecond})

	submitted, succeeded, failed, _, gasUsed := c.Totals()
	if submitted != 3 {
		t.Errorf("submitted = %d, want 3", submitted)
	}
	if succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", succeeded)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if gasUsed != 42000 {
		t.Errorf("gasUsed = %d, want 42000 (no gas credited to failures)", gasUsed)
	}
}

func TestObserveRPCCallCountsFailures(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveRPCCall("eth_sendRawTransaction", true, time.Millisecond)
	c.ObserveRPCCall("eth_sendRawTransaction", false, time.Millisecond)
	c.ObserveRPCCall("eth_blockNumber", false, time.Millisecond)

	_, _, _, rpcCalls, _ := c.Totals()
	if rpcCalls != 3 {
		t.Errorf("rpcCalls = %d, want 3 (failures count)", rpcCalls)
	}
}

func TestTickDerivesRatesFromDeltas(t *testing.T) {
	c := newTestCollector(t)
	base := time.Now()
	c.lastTick = base

	for range 10 {
		c.RecordOutcome(types.TransactionOutcome{Success: true, GasUsed: 21000, Latency: time.Millisecond})
	}
	for range 2 {
		c.RecordOutcome(types.TransactionOutcome{Kind: types.FailureTimeout, Latency: 2 * time.Second})
	}
	for range 30 {
		c.ObserveRPCCall("eth_sendRawTransaction", true, time.Millisecond)
	}

	w := c.Tick(base.Add(2 * time.Second))

	if math.Abs(w.TPS-6) > 0.001 {
		t.Errorf("TPS = %v, want 6 (12 submissions / 2s)", w.TPS)
	}
	if math.Abs(w.RPS-15) > 0.001 {
		t.Errorf("RPS = %v, want 15", w.RPS)
	}
	wantMGas := 10 * 21000.0 / 2 / 1e6
	if math.Abs(w.MGasPerSec-wantMGas) > 1e-9 {
		t.Errorf("MGasPerSec = %v, want %v", w.MGasPerSec, wantMGas)
	}
	if math.Abs(w.FailureRate-2.0/12.0) > 0.001 {
		t.Errorf("FailureRate = %v, want %v", w.FailureRate, 2.0/12.0)
	}
	if w.Submitted != 12 || w.Failed != 2 || w.RPCCalls != 30 {
		t.Errorf("window deltas = %d/%d/%d, want 12/2/30", w.Submitted, w.Failed, w.RPCCalls)
	}
}

func TestTickTPSCountsFailedSubmissions(t *testing.T) {
	c := newTestCollector(t)
	base := time.Now()
	c.lastTick = base

	for range 10 {
		c.RecordOutcome(types.TransactionOutcome{Kind: types.FailureNodeError, Latency: time.Millisecond})
	}
	w := c.Tick(base.Add(time.Second))

	// A rejecting node still receives 10 submissions per second; the damage
	// shows up in the failure rate, not as a throughput collapse.
	if math.Abs(w.TPS-10) > 0.001 {
		t.Errorf("TPS = %v, want 10", w.TPS)
	}
	if math.Abs(w.FailureRate-1) > 0.001 {
		t.Errorf("FailureRate = %v, want 1", w.FailureRate)
	}
}

func TestTickEmptyWindow(t *testing.T) {
	c := newTestCollector(t)
	base := time.Now()
	c.lastTick = base

	w := c.Tick(base.Add(time.Second))
	if w.TPS != 0 || w.RPS != 0 || w.MGasPerSec != 0 || w.FailureRate != 0 {
		t.Errorf("empty window rates = %+v, want all zero", w)
	}
}

func TestTickWindowsAreIndependent(t *testing.T) {
	c := newTestCollector(t)
	base := time.Now()
	c.lastTick = base

	for range 5 {
		c.RecordOutcome(types.TransactionOutcome{Success: true, GasUsed: 21000, Latency: time.Millisecond})
	}
	first := c.Tick(base.Add(time.Second))
	second := c.Tick(base.Add(2 * time.Second))

	if first.Submitted != 5 {
		t.Errorf("first window submitted = %d, want 5", first.Submitted)
	}
	if second.Submitted != 0 {
		t.Errorf("second window submitted = %d, want 0 (deltas reset)", second.Submitted)
	}
	// Lifetime counters keep the full history.
	submitted, _, _, _, _ := c.Totals()
	if submitted != 5 {
		t.Errorf("lifetime submitted = %d, want 5", submitted)
	}
}

func TestConcurrentRecordingLosesNothing(t *testing.T) {
	c := newTestCollector(t)

	const goroutines = 8
	const perGoroutine = 500

	var wg sync.WaitGroup
	for g := range goroutines {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range perGoroutine {
				out := types.TransactionOutcome{Success: i%4 != 0, Latency: time.Millisecond}
				if out.Success {
					out.GasUsed = 21000
				} else {
					out.Kind = types.FailureNodeError
				}
				c.RecordOutcome(out)
				c.ObserveRPCCall("eth_sendRawTransaction", out.Success, time.Millisecond)
			}
		}(g)
	}
	wg.Wait()

	submitted, succeeded, failed, rpcCalls, _ := c.Totals()
	if submitted != goroutines*perGoroutine {
		t.Errorf("submitted = %d, want %d", submitted, goroutines*perGoroutine)
	}
	if succeeded+failed != submitted {
		t.Errorf("succeeded+failed = %d, want %d", succeeded+failed, submitted)
	}
	if rpcCalls != goroutines*perGoroutine {
		t.Errorf("rpcCalls = %d, want %d", rpcCalls, goroutines*perGoroutine)
	}
}

func TestTickSnapshotIsConsistentUnderLoad(t *testing.T) {
	c := newTestCollector(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					c.RecordOutcome(types.TransactionOutcome{Kind: types.FailureTimeout, Latency: time.Millisecond})
				}
			}
		}()
	}

	// Every window must see each outcome's counter group whole: a failure
	// never lands in a window whose submission does not.
	for i := range 200 {
		w := c.Tick(time.Now().Add(time.Duration(i) * time.Millisecond))
		if w.Failed > w.Submitted {
			t.Fatalf("window %d: Failed = %d > Submitted = %d", i, w.Failed, w.Submitted)
		}
		if w.Submitted > 0 && w.FailureRate != 1 {
			t.Fatalf("window %d: FailureRate = %v with only failures recorded", i, w.FailureRate)
		}
	}
	close(stop)
	wg.Wait()
}

func TestZeroLatencyOutcomeLeavesNoSample(t *testing.T) {
	c := newTestCollector(t)

	// A signing failure never reaches the wire; it must not pin the latency
	// distribution's minimum at zero.
	c.RecordOutcome(types.TransactionOutcome{Kind: types.FailureMalformed})
	if stats := c.Latency(); stats != nil {
		t.Fatalf("Latency() = %+v after a wire-less failure, want nil", stats)
	}

	c.RecordOutcome(types.TransactionOutcome{Success: true, GasUsed: 21000, Latency: 8 * time.Millisecond})
	stats := c.Latency()
	if stats == nil {
		t.Fatal("Latency() = nil after a timed sample")
	}
	if stats.Count != 1 {
		t.Errorf("Count = %d, want 1", stats.Count)
	}
	if stats.Min != 8 {
		t.Errorf("Min = %v, want 8", stats.Min)
	}

	submitted, _, failed, _, _ := c.Totals()
	if submitted != 2 || failed != 1 {
		t.Errorf("totals = %d submitted / %d failed, want 2/1", submitted, failed)
	}
}

func TestObserveBlockAndStaleness(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveBlock(types.BlockObservation{Number: 100, TxCount: 3, GasUsed: 63000, SinceLast: 2 * time.Second})
	if c.BlockNumber() != 100 {
		t.Errorf("BlockNumber() = %d, want 100", c.BlockNumber())
	}
	if !c.MonitorUp() {
		t.Error("MonitorUp() = false after a fresh observation")
	}

	c.SetMonitorUp(false)
	if c.MonitorUp() {
		t.Error("MonitorUp() = true after SetMonitorUp(false)")
	}

	// Recovery: a later observation clears staleness.
	c.ObserveBlock(types.BlockObservation{Number: 101})
	if !c.MonitorUp() {
		t.Error("MonitorUp() = false after recovery")
	}
}

func TestWindowCarriesBlockNumber(t *testing.T) {
	c := newTestCollector(t)
	base := time.Now()
	c.lastTick = base

	c.ObserveBlock(types.BlockObservation{Number: 77})
	w := c.Tick(base.Add(time.Second))
	if w.BlockNumber != 77 {
		t.Errorf("window BlockNumber = %d, want 77", w.BlockNumber)
	}
}
