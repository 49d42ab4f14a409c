package logic

import (
	"math"
	"time"
)

// RunningStats accumulates Welford's online moments for one (run, stage)
// pair. Grounded on original_source/src/fsm_logic.py's
// _update_stage_stats/_finalize_stage, generalized to track first/last
// sample time for RunRecord reporting.
type RunningStats struct {
	n      int
	mean   float64
	m2     float64
	min    float64
	max    float64
	firstT time.Time
	lastT  time.Time
}

// StatsSnapshot is a point-in-time, immutable view of RunningStats.
type StatsSnapshot struct {
	N      int
	Mean   float64
	Variance float64
	Stddev float64
	Min    float64
	Max    float64
	FirstT time.Time
	LastT  time.Time
}

// Update folds one valid sample into the running moments.
func (s *RunningStats) Update(x float64, t time.Time) {
	if s.n == 0 {
		s.min = x
		s.max = x
		s.firstT = t
	} else {
		if x < s.min {
			s.min = x
		}
		if x > s.max {
			s.max = x
		}
	}
	s.n++
	delta := x - s.mean
	s.mean += delta / float64(s.n)
	delta2 := x - s.mean
	s.m2 += delta * delta2
	s.lastT = t
}

// Snapshot returns the current moments. With n == 0 the statistical fields
// are NaN per spec.md §4.2.
func (s RunningStats) Snapshot() StatsSnapshot {
	if s.n == 0 {
		return StatsSnapshot{
			Mean:     math.NaN(),
			Variance: math.NaN(),
			Stddev:   math.NaN(),
			Min:      math.NaN(),
			Max:      math.NaN(),
		}
	}
	variance := 0.0
	if s.n >= 2 {
		variance = s.m2 / float64(s.n-1)
	}
	return StatsSnapshot{
		N:        s.n,
		Mean:     s.mean,
		Variance: variance,
		Stddev:   math.Sqrt(variance),
		Min:      s.min,
		Max:      s.max,
		FirstT:   s.firstT,
		LastT:    s.lastT,
	}
}

// N reports the number of valid samples folded in so far.
func (s RunningStats) N() int { return s.n }

// RunningStatsRaw is the serializable form of RunningStats, used by the
// State Sink to persist and restore Welford moments exactly across a
// restart (spec.md §4.5's recovery guarantee).
type RunningStatsRaw struct {
	N      int
	Mean   float64
	M2     float64
	Min    float64
	Max    float64
	FirstT time.Time
	LastT  time.Time
}

// Raw exports the moments for persistence.
func (s RunningStats) Raw() RunningStatsRaw {
	return RunningStatsRaw{
		N: s.n, Mean: s.mean, M2: s.m2, Min: s.min, Max: s.max,
		FirstT: s.firstT, LastT: s.lastT,
	}
}

// RestoreStats rebuilds a RunningStats from a previously exported snapshot.
func RestoreStats(r RunningStatsRaw) RunningStats {
	return RunningStats{n: r.N, mean: r.Mean, m2: r.M2, min: r.Min, max: r.Max, firstT: r.FirstT, lastT: r.LastT}
}

// linearSlope fits a least-squares line through (t, y) pairs, expressed in
// y-units per minute. Requires at least 3 points; with fewer it returns 0,
// matching spec.md §4.1's slope-computation rule.
func linearSlope(ts []time.Time, ys []float64) float64 {
	n := len(ts)
	if n < 3 {
		return 0
	}
	t0 := ts[0]
	var sumX, sumY, sumXY, sumXX float64
	for i := 0; i < n; i++ {
		x := ts[i].Sub(t0).Seconds()
		y := ys[i]
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slopePerSec := (fn*sumXY - sumX*sumY) / denom
	return slopePerSec * 60
}
