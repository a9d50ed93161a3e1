package metrics

import (
	"math"
	"testing"
)

func TestLatencyEmpty(t *testing.T) {
	s := NewStreamingLatencyStats()
	if got := s.Snapshot(); got != nil {
		t.Errorf("Snapshot() on empty stats = %+v, want nil", got)
	}
	if s.Count() != 0 {
		t.Errorf("Count() = %d, want 0", s.Count())
	}
}

func TestLatencySingleSample(t *testing.T) {
	s := NewStreamingLatencyStats()
	s.Add(42.0)

	stats := s.Snapshot()
	if stats == nil {
		t.Fatal("Snapshot() = nil")
	}
	if stats.Count != 1 {
		t.Errorf("Count = %d, want 1", stats.Count)
	}
	for name, got := range map[string]float64{
		"Min": stats.Min, "Max": stats.Max, "Avg": stats.Avg,
		"P50": stats.P50, "P99": stats.P99,
	} {
		if got != 42.0 {
			t.Errorf("%s = %v, want 42.0", name, got)
		}
	}
}

func TestLatencyUniformDistribution(t *testing.T) {
	s := NewStreamingLatencyStats()
	for i := 1; i <= 1000; i++ {
		s.Add(float64(i))
	}

	stats := s.Snapshot()
	if stats.Count != 1000 {
		t.Fatalf("Count = %d, want 1000", stats.Count)
	}
	if stats.Min != 1 || stats.Max != 1000 {
		t.Errorf("Min/Max = %v/%v, want 1/1000", stats.Min, stats.Max)
	}
	if math.Abs(stats.Avg-500.5) > 0.001 {
		t.Errorf("Avg = %v, want 500.5", stats.Avg)
	}
	// Reservoir holds every sample at this size, so percentiles are exact
	// up to interpolation.
	if math.Abs(stats.P50-500.5) > 1 {
		t.Errorf("P50 = %v, want ~500.5", stats.P50)
	}
	if math.Abs(stats.P99-990) > 2 {
		t.Errorf("P99 = %v, want ~990", stats.P99)
	}
}

func TestLatencyReservoirOverflow(t *testing.T) {
	s := NewStreamingLatencyStats()
	const n = 3 * DefaultReservoirSize
	for i := range n {
		s.Add(float64(i))
	}

	stats := s.Snapshot()
	if stats.Count != n {
		t.Errorf("Count = %d, want %d", stats.Count, n)
	}
	if len(s.reservoir) != DefaultReservoirSize {
		t.Errorf("reservoir size = %d, want %d", len(s.reservoir), DefaultReservoirSize)
	}
	// Sampled percentiles should land near the true values.
	if math.Abs(stats.P50-float64(n)/2) > float64(n)*0.05 {
		t.Errorf("P50 = %v, want within 5%% of %v", stats.P50, float64(n)/2)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}

	tests := []struct {
		p    float64
		want float64
	}{
		{0.0, 10},
		{0.5, 25},
		{1.0, 40},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); math.Abs(got-tt.want) > 0.001 {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}
