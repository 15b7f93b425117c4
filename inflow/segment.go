package inflow

import "github.com/erdc/rapidflow/cycle"

// Segment identifies which composition rule of spec §4.1 to apply when
// converting a grid's cumulative runoff into a per-reach InflowSeries.
type Segment int

const (
	// SegDefault is "default-6hr": whatever 6h-cadence composition applies
	// to the grid's resolution class.
	SegDefault Segment = iota
	Seg1hr
	Seg3hr
	Seg3hrSubset
	Seg6hr
	Seg6hrSubset
)

func (s Segment) String() string {
	switch s {
	case Seg1hr:
		return "1hr"
	case Seg3hr:
		return "3hr"
	case Seg3hrSubset:
		return "3hr_subset"
	case Seg6hr:
		return "6hr"
	case Seg6hrSubset:
		return "6hr_subset"
	default:
		return "default-6hr"
	}
}

// ExpectedOutputLength returns the number of per-reach time steps a
// successful build with resolution r and segment s produces, per the
// table in spec §4.1. A zero return means the combination is unsupported
// ("—" in the table).
func ExpectedOutputLength(r cycle.Resolution, s Segment) int {
	switch r {
	case cycle.HighRes:
		switch s {
		case Seg1hr:
			return 90
		case Seg3hr:
			return 48
		case Seg3hrSubset:
			return 18
		case Seg6hr, SegDefault:
			return 40
		case Seg6hrSubset:
			return 16
		}
	case cycle.LowResFull:
		switch s {
		case Seg3hrSubset:
			return 48
		case Seg6hrSubset:
			return 36
		case SegDefault:
			return 60
		}
	case cycle.LowRes:
		switch s {
		case SegDefault, Seg6hrSubset:
			return 60
		}
	}
	return 0
}

// diffConsecutive returns the n-1 differences between consecutive
// elements of vals (vals[i]-vals[i-1]).
func diffConsecutive(vals []float64) []float64 {
	if len(vals) == 0 {
		return nil
	}
	out := make([]float64, len(vals)-1)
	for i := 1; i < len(vals); i++ {
		out[i-1] = vals[i] - vals[i-1]
	}
	return out
}

// diffWithAnchor returns len(vals) differences, treating anchor as the
// cumulative value immediately preceding vals[0].
func diffWithAnchor(anchor float64, vals []float64) []float64 {
	out := make([]float64, len(vals))
	prev := anchor
	for i, v := range vals {
		out[i] = v - prev
		prev = v
	}
	return out
}

// pickEvery returns every stride-th element of vals starting at offset,
// e.g. pickEvery(vals, 0, 3) samples a 1h cumulative series at 3h cadence.
func pickEvery(vals []float64, offset, stride int) []float64 {
	var out []float64
	for i := offset; i < len(vals); i += stride {
		out = append(out, vals[i])
	}
	return out
}

// incrementalSeries converts one cell's cumulative runoff series (already
// clamped for noise) into the incremental series for segment s, given the
// grid's resolution class. The cumulative array's length must equal
// r.ExpectedTimeLength().
//
// The three resolution classes lay out their raw cumulative points as
// contiguous blocks by native cadence (spec §3's GridForecast description);
// block boundaries below are derived from spec §4.1's worked segment
// lengths (see DESIGN.md for the derivation):
//
//	HighRes:     hourly[0:91]   threeHourly[91:109]  sixHourly[109:125]
//	LowResFull:                 threeHourly[0:49]    sixHourly[49:85]
//	LowRes:                                          sixHourly[0:61]
func incrementalSeries(cum []float64, r cycle.Resolution, s Segment) []float64 {
	switch r {
	case cycle.HighRes:
		hourly := cum[0:91]
		threeHourly := cum[91:109]
		sixHourly := cum[109:125]
		switch resolveDefault(r, s) {
		case Seg1hr:
			return diffConsecutive(hourly)
		case Seg3hrSubset:
			return diffWithAnchor(hourly[len(hourly)-1], threeHourly)
		case Seg3hr:
			resampled := pickEvery(hourly, 0, 3)
			out := diffConsecutive(resampled)
			out = append(out, diffWithAnchor(hourly[len(hourly)-1], threeHourly)...)
			return out
		case Seg6hrSubset:
			return diffWithAnchor(threeHourly[len(threeHourly)-1], sixHourly)
		case Seg6hr:
			fromHourly := diffConsecutive(pickEvery(hourly, 0, 6))
			picked3h := pickEvery(threeHourly, 1, 2) // every other native 3h point = 6h cadence
			fromThreeHourly := diffWithAnchor(hourly[len(hourly)-1], picked3h)
			fromSixHourly := diffWithAnchor(threeHourly[len(threeHourly)-1], sixHourly)
			out := append(append(fromHourly, fromThreeHourly...), fromSixHourly...)
			return out
		}
	case cycle.LowResFull:
		threeHourly := cum[0:49]
		sixHourly := cum[49:85]
		switch resolveDefault(r, s) {
		case Seg3hrSubset:
			return diffConsecutive(threeHourly)
		case Seg6hrSubset:
			return diffWithAnchor(threeHourly[len(threeHourly)-1], sixHourly)
		case Seg6hr: // "default" 6h composition for LowResFull
			picked := pickEvery(threeHourly, 0, 2)
			fromThreeHourly := diffConsecutive(picked)
			fromSixHourly := diffWithAnchor(threeHourly[len(threeHourly)-1], sixHourly)
			return append(fromThreeHourly, fromSixHourly...)
		}
	case cycle.LowRes:
		sixHourly := cum[0:61]
		return diffConsecutive(sixHourly)
	}
	return nil
}

// clampNegative zeroes out negative increments in place, the effect of
// ECMWF's evaporation-driven occasional negative cumulative steps (spec
// §4.1 step 3: inflow volumes can never be negative).
func clampNegative(vals []float64) []float64 {
	for i, v := range vals {
		if v < 0 {
			vals[i] = 0
		}
	}
	return vals
}

// resolveDefault maps SegDefault to the concrete segment the resolution
// class uses for its "default-6hr" selector (spec §4.1 table).
func resolveDefault(r cycle.Resolution, s Segment) Segment {
	if s != SegDefault {
		return s
	}
	switch r {
	case cycle.HighRes:
		return Seg6hr
	case cycle.LowResFull:
		return Seg6hr
	case cycle.LowRes:
		return Seg6hrSubset
	}
	return s
}
