package inflow

import (
	"testing"

	"github.com/erdc/rapidflow/cycle"
)

func TestClampNegativeZeroesOnlyNegatives(t *testing.T) {
	vals := []float64{-3, 0, 5, -0.001, 12}
	got := clampNegative(append([]float64(nil), vals...))
	want := []float64{0, 0, 5, 0, 12}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("clampNegative(%v) = %v, want %v", vals, got, want)
		}
	}
}

// TestIncrementalSeriesNeverNegativeAfterClamp exercises testable property
// 5: m3_riv values are never negative, even when the underlying cumulative
// runoff series dips (evaporation-dominated steps).
func TestIncrementalSeriesNeverNegativeAfterClamp(t *testing.T) {
	r := cycle.LowRes
	cum := make([]float64, r.ExpectedTimeLength())
	for i := range cum {
		cum[i] = float64(i)
	}
	// Introduce a dip partway through.
	cum[30] = cum[29] - 5

	out := clampNegative(incrementalSeries(cum, r, SegDefault))
	for i, v := range out {
		if v < 0 {
			t.Fatalf("index %d: got negative inflow %v after clamping", i, v)
		}
	}
}

func TestNewBuilderDefaultsCatalog(t *testing.T) {
	b := NewBuilder(nil, nil)
	if b.Grids == nil {
		t.Fatal("expected default grid catalog when nil is passed")
	}
	if !b.Grids.NewGeneration("tco639") {
		t.Error("expected default catalog loaded with tco639 marked new-generation")
	}
}
