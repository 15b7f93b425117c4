// Package warning generates tiered flood-warning points from an ensemble
// of routed forecasts and a region's historical return-period thresholds
// (spec §4.5).
package warning

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ReachSeries is one reach's full-horizon discharge series across every
// ensemble member that reached it, laid out member-major:
// Values[member][timeStep].
type ReachSeries struct {
	Rivid  int64
	Lat    float64
	Lon    float64
	Values [][]float64
}

// DailyPeaks collapses a reach's concatenated per-member series into one
// daily-max series per member, using dayBoundaries as the time-step index
// where each calendar day begins (dayBoundaries[i] <= t < dayBoundaries[i+1]
// belongs to day i; the final day runs to the end of the series).
func DailyPeaks(values []float64, dayBoundaries []int) []float64 {
	peaks := make([]float64, len(dayBoundaries))
	for i, start := range dayBoundaries {
		end := len(values)
		if i+1 < len(dayBoundaries) {
			end = dayBoundaries[i+1]
		}
		if start >= end || start >= len(values) {
			peaks[i] = 0
			continue
		}
		if end > len(values) {
			end = len(values)
		}
		peaks[i] = floats.Max(values[start:end])
	}
	return peaks
}

// EnsembleStats computes, for one reach's daily-peak series across
// members (laid out memberDailyPeaks[member][day]), the per-day ensemble
// mean and an "upper" envelope equal to mean+stddev clamped to the
// ensemble's observed maximum for that day -- mean+stddev can otherwise
// exceed the wettest member actually simulated, which overstates the
// envelope (spec §4.5).
func EnsembleStats(memberDailyPeaks [][]float64) (mean, upper []float64) {
	if len(memberDailyPeaks) == 0 {
		return nil, nil
	}
	nDays := len(memberDailyPeaks[0])
	mean = make([]float64, nDays)
	upper = make([]float64, nDays)
	for d := 0; d < nDays; d++ {
		col := make([]float64, len(memberDailyPeaks))
		for m := range memberDailyPeaks {
			col[m] = memberDailyPeaks[m][d]
		}
		mu := stat.Mean(col, nil)
		sigma := stat.StdDev(col, nil)
		maxVal := floats.Max(col)
		mean[d] = mu
		upper[d] = math.Min(mu+sigma, maxVal)
	}
	return mean, upper
}

// Tier is a flood-warning severity bucket keyed to a return period.
type Tier int

const (
	TierNone Tier = iota
	TierReturn2
	TierReturn10
	TierReturn20
)

// Classify returns the highest tier peak exceeds, given the reach's three
// return-period flow thresholds (spec §4.5's floor rule: a value exceeding
// return_20 is always Return20, never silently folded into a lower tier).
func Classify(peak, return2, return10, return20 float64) Tier {
	switch {
	case peak > return20:
		return TierReturn20
	case peak > return10:
		return TierReturn10
	case peak > return2:
		return TierReturn2
	default:
		return TierNone
	}
}

// Point is one warning-map marker: a reach/day exceeding its tier
// threshold, carrying the GeoJSON "size" convention from spec §9(ii) --
// 1 for a mean-based exceedance, 0 for an upper-envelope-only exceedance
// (a softer warning the mean forecast itself does not cross).
type Point struct {
	Rivid int64
	Lat   float64
	Lon   float64
	Tier  Tier
	Size  int
}

// GeneratePoints classifies a reach's mean and upper daily-peak series
// against its return-period thresholds and returns every day/series that
// crosses at least Return2.
func GeneratePoints(rivid int64, lat, lon float64, mean, upper []float64, return2, return10, return20 float64) []Point {
	var points []Point
	for _, peak := range mean {
		if t := Classify(peak, return2, return10, return20); t != TierNone {
			points = append(points, Point{Rivid: rivid, Lat: lat, Lon: lon, Tier: t, Size: 1})
		}
	}
	for _, peak := range upper {
		if t := Classify(peak, return2, return10, return20); t != TierNone {
			points = append(points, Point{Rivid: rivid, Lat: lat, Lon: lon, Tier: t, Size: 0})
		}
	}
	return points
}
