package qci

import (
	"math"

	"CallScorer/internal/config"
)

// plateau scores x against a band: full inside [Low, High], linear fall-off
// towards the fall-off edges, zero beyond them.
func plateau(x float64, r config.PlateauRule) float64 {
	switch {
	case x >= r.Low && x <= r.High:
		return r.Max
	case x < r.Low:
		if x <= r.LowFalloff || r.Low == r.LowFalloff {
			return 0
		}
		return r.Max * (x - r.LowFalloff) / (r.Low - r.LowFalloff)
	default:
		if x >= r.HighFalloff || r.HighFalloff == r.High {
			return 0
		}
		return r.Max * (r.HighFalloff - x) / (r.HighFalloff - r.High)
	}
}

// latency scores an optional event time. Not observed scores zero.
func latency(t *float64, r config.LatencyRule) float64 {
	if t == nil {
		return 0
	}
	if *t <= r.TargetSeconds {
		return r.Max
	}
	steps := math.Ceil((*t - r.TargetSeconds) / r.IncrementSeconds)
	return floor0(r.Max - steps*r.PenaltyPerStep)
}

func floor0(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
