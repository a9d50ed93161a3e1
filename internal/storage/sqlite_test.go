package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gateway-fm/txprobe/pkg/types"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "probe.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun() *Run {
	return &Run{
		ID:          "run-1",
		StartedAt:   time.Now().Truncate(time.Second),
		Address:     "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		TargetTPS:   50,
		Concurrency: 10,
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.CreateRun(ctx, testRun()); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	run, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != "running" {
		t.Errorf("Status = %q, want running", run.Status)
	}
	if run.CompletedAt != nil {
		t.Error("CompletedAt set on a running run")
	}

	totals := RunTotals{Submitted: 100, Succeeded: 95, Failed: 5, RPCCalls: 160, GasUsed: 95 * 21000}
	if err := s.CompleteRun(ctx, "run-1", totals, "completed"); err != nil {
		t.Fatalf("CompleteRun() error = %v", err)
	}

	run, err = s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() after completion error = %v", err)
	}
	if run.Status != "completed" {
		t.Errorf("Status = %q, want completed", run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if run.Totals != totals {
		t.Errorf("Totals = %+v, want %+v", run.Totals, totals)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.GetRun(context.Background(), "missing"); err == nil {
		t.Fatal("GetRun() on missing id should error")
	}
}

func TestWindowSamplesNewestFirst(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	if err := s.CreateRun(ctx, testRun()); err != nil {
		t.Fatal(err)
	}

	base := time.Now().UnixMilli()
	for i := range 5 {
		w := types.WindowSample{
			TimestampMS: base + int64(i)*1000,
			BlockNumber: uint64(100 + i),
			Submitted:   uint64(10 + i),
			TPS:         float64(10 + i),
		}
		if err := s.SaveWindow(ctx, "run-1", w); err != nil {
			t.Fatalf("SaveWindow() error = %v", err)
		}
	}

	samples, err := s.RecentWindows(ctx, "run-1", 3)
	if err != nil {
		t.Fatalf("RecentWindows() error = %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	if samples[0].BlockNumber != 104 {
		t.Errorf("newest sample BlockNumber = %d, want 104", samples[0].BlockNumber)
	}
	if samples[2].BlockNumber != 102 {
		t.Errorf("oldest returned sample BlockNumber = %d, want 102", samples[2].BlockNumber)
	}
}

func TestBlockObservationsRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	if err := s.CreateRun(ctx, testRun()); err != nil {
		t.Fatal(err)
	}

	obs := types.BlockObservation{
		Number:    42,
		Timestamp: time.Unix(1700000000, 0),
		TxCount:   7,
		GasUsed:   147000,
		SinceLast: 2100 * time.Millisecond,
	}
	if err := s.SaveBlockObservation(ctx, "run-1", obs); err != nil {
		t.Fatalf("SaveBlockObservation() error = %v", err)
	}

	got, err := s.BlockObservations(ctx, "run-1", 10)
	if err != nil {
		t.Fatalf("BlockObservations() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d observations, want 1", len(got))
	}
	if got[0].Number != 42 || got[0].TxCount != 7 || got[0].GasUsed != 147000 {
		t.Errorf("observation = %+v, want %+v", got[0], obs)
	}
	if !got[0].Timestamp.Equal(obs.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got[0].Timestamp, obs.Timestamp)
	}
	if got[0].SinceLast != obs.SinceLast {
		t.Errorf("SinceLast = %v, want %v", got[0].SinceLast, obs.SinceLast)
	}
}

func TestWindowsScopedToRun(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, id := range []string{"run-a", "run-b"} {
		run := testRun()
		run.ID = id
		if err := s.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SaveWindow(ctx, "run-a", types.WindowSample{TimestampMS: 1}); err != nil {
		t.Fatal(err)
	}

	samples, err := s.RecentWindows(ctx, "run-b", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 0 {
		t.Errorf("run-b has %d samples, want 0", len(samples))
	}
}
