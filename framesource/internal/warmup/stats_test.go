package warmup

import (
	"testing"
	"time"
)

func evenTimestamps(n int, intervalMs int64) []int64 {
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = int64(i) * intervalMs
	}
	return ts
}

func TestCalculateFPSStats_Steady(t *testing.T) {
	// 30 frames at 100ms spacing observed over 3s → 10 fps.
	stats := CalculateFPSStats(evenTimestamps(30, 100), 3*time.Second)

	if stats.FramesReceived != 30 {
		t.Errorf("FramesReceived = %d, want 30", stats.FramesReceived)
	}
	if stats.FPSMean < 9.9 || stats.FPSMean > 10.1 {
		t.Errorf("FPSMean = %.2f, want ~10", stats.FPSMean)
	}
	if stats.FPSMin < 9.99 || stats.FPSMax > 10.01 {
		t.Errorf("FPS range = %.2f-%.2f, want 10-10", stats.FPSMin, stats.FPSMax)
	}
	if !stats.IsStable {
		t.Errorf("steady stream reported unstable: %+v", stats)
	}
}

func TestCalculateFPSStats_Bursty(t *testing.T) {
	// Alternating 10ms and 190ms gaps: same mean, huge variance.
	ts := []int64{0}
	for i := 0; i < 20; i++ {
		gap := int64(10)
		if i%2 == 1 {
			gap = 190
		}
		ts = append(ts, ts[len(ts)-1]+gap)
	}
	stats := CalculateFPSStats(ts, 2100*time.Millisecond)
	if stats.IsStable {
		t.Errorf("bursty stream reported stable: %+v", stats)
	}
	if stats.JitterMax <= 0 {
		t.Error("expected non-zero jitter")
	}
}

func TestCalculateFPSStats_Edges(t *testing.T) {
	if s := CalculateFPSStats(nil, time.Second); s.FramesReceived != 0 || s.IsStable {
		t.Errorf("empty input: %+v", s)
	}
	if s := CalculateFPSStats([]int64{5, 5, 5}, time.Second); s.FPSMin != 0 || s.IsStable {
		t.Errorf("zero intervals: %+v", s)
	}
	if s := CalculateFPSStats([]int64{1, 2}, 0); s.FPSMean != 0 {
		t.Errorf("zero duration: %+v", s)
	}
}
