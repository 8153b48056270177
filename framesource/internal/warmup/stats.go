// Package warmup computes capture-rate stability from frame timestamps.
package warmup

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold: stable if stddev < 15% of mean FPS.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold: stable if mean jitter < 20% of the expected interval.
	jitterStabilityThreshold = 0.20
)

// Stats mirrors framesource.WarmupStats.
type Stats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64
	FPSMax         float64
	IsStable       bool
	JitterMean     float64
	JitterStdDev   float64
	JitterMax      float64
}

// CalculateFPSStats derives rate statistics from monotonic frame timestamps
// in milliseconds, observed over totalDuration.
//
// Jitter is the absolute deviation of each inter-frame interval from the
// interval implied by the mean rate, in seconds.
func CalculateFPSStats(timestampsMs []int64, totalDuration time.Duration) Stats {
	n := len(timestampsMs)
	stats := Stats{FramesReceived: n, Duration: totalDuration}
	if n == 0 || totalDuration <= 0 {
		return stats
	}

	stats.FPSMean = float64(n) / totalDuration.Seconds()

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if d := float64(timestampsMs[i]-timestampsMs[i-1]) / 1000.0; d > 0 {
			intervals = append(intervals, d)
		}
	}
	if len(intervals) == 0 {
		return stats
	}

	inst := make([]float64, len(intervals))
	for i, d := range intervals {
		inst[i] = 1.0 / d
	}
	stats.FPSMin, stats.FPSMax = minMax(inst)
	stats.FPSStdDev = stddevAround(inst, stats.FPSMean)

	expected := 1.0 / stats.FPSMean
	jitters := make([]float64, len(intervals))
	for i, d := range intervals {
		jitters[i] = math.Abs(d - expected)
	}
	stats.JitterMean = mean(jitters)
	_, stats.JitterMax = minMax(jitters)
	stats.JitterStdDev = stddevAround(jitters, stats.JitterMean)

	stats.IsStable = stats.FPSStdDev < stats.FPSMean*fpsStabilityThreshold &&
		stats.JitterMean < expected*jitterStabilityThreshold

	return stats
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevAround(xs []float64, center float64) float64 {
	var sq float64
	for _, x := range xs {
		d := x - center
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

func minMax(xs []float64) (lo, hi float64) {
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}
