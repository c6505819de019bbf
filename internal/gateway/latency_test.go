package gateway

import (
	"math"
	"testing"
)

func TestLatencyTracker_Empty(t *testing.T) {
	lt := NewLatencyTracker(100)
	p := lt.Percentiles()
	if p != (LatencyPercentiles{}) {
		t.Errorf("empty tracker: expected zero value, got %+v", p)
	}
}

func TestLatencyTracker_SingleSample(t *testing.T) {
	lt := NewLatencyTracker(100)
	lt.Record(42.5)

	p := lt.Percentiles()
	if p.P50 != 42.5 || p.P95 != 42.5 || p.P99 != 42.5 {
		t.Errorf("single sample: got %+v, want all 42.5", p)
	}
	if p.Count != 1 {
		t.Errorf("count: got %d, want 1", p.Count)
	}
}

func TestLatencyTracker_Percentiles(t *testing.T) {
	lt := NewLatencyTracker(10000)

	for i := 1; i <= 100; i++ {
		lt.Record(float64(i))
	}

	p := lt.Percentiles()
	if math.Abs(p.P50-50.5) > 1.0 {
		t.Errorf("p50: got %f, expected ~50.5", p.P50)
	}
	if math.Abs(p.P95-95.05) > 1.0 {
		t.Errorf("p95: got %f, expected ~95.05", p.P95)
	}
	if math.Abs(p.P99-99.01) > 1.0 {
		t.Errorf("p99: got %f, expected ~99.01", p.P99)
	}
	if p.Count != 100 {
		t.Errorf("count: got %d, want 100", p.Count)
	}
}

func TestLatencyTracker_Wraparound(t *testing.T) {
	lt := NewLatencyTracker(10)

	for i := 1; i <= 20; i++ {
		lt.Record(float64(i))
	}

	if lt.Count() != 10 {
		t.Fatalf("Count() = %d, want 10", lt.Count())
	}

	// 11..20 remain
	p := lt.Percentiles()
	if math.Abs(p.P50-15.5) > 1e-9 {
		t.Errorf("p50 after wraparound: got %f, want 15.5", p.P50)
	}
	if p.P99 > 20 {
		t.Errorf("p99 after wraparound: got %f, want <= 20", p.P99)
	}
}

func TestLatencyTracker_Count(t *testing.T) {
	lt := NewLatencyTracker(100)

	if lt.Count() != 0 {
		t.Errorf("initial count: got %d, want 0", lt.Count())
	}

	for i := 0; i < 5; i++ {
		lt.Record(float64(i))
	}
	if lt.Count() != 5 {
		t.Errorf("after 5 records: got %d, want 5", lt.Count())
	}
}
