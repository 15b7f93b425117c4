package inflow

import (
	"testing"

	"github.com/erdc/rapidflow/cycle"
)

func TestExpectedOutputLengthTable(t *testing.T) {
	cases := []struct {
		r    cycle.Resolution
		s    Segment
		want int
	}{
		{cycle.HighRes, Seg1hr, 90},
		{cycle.HighRes, Seg3hr, 48},
		{cycle.HighRes, Seg3hrSubset, 18},
		{cycle.HighRes, Seg6hr, 40},
		{cycle.HighRes, Seg6hrSubset, 16},
		{cycle.LowResFull, Seg3hrSubset, 48},
		{cycle.LowResFull, Seg6hrSubset, 36},
		{cycle.LowResFull, SegDefault, 60},
		{cycle.LowRes, SegDefault, 60},
	}
	for _, c := range cases {
		got := ExpectedOutputLength(c.r, c.s)
		if got != c.want {
			t.Errorf("ExpectedOutputLength(%s,%s) = %d, want %d", c.r, c.s, got, c.want)
		}
	}
}

func TestIncrementalSeriesLengthsMatchTable(t *testing.T) {
	cases := []struct {
		r cycle.Resolution
		s Segment
	}{
		{cycle.HighRes, Seg1hr},
		{cycle.HighRes, Seg3hr},
		{cycle.HighRes, Seg3hrSubset},
		{cycle.HighRes, Seg6hr},
		{cycle.HighRes, Seg6hrSubset},
		{cycle.LowResFull, Seg3hrSubset},
		{cycle.LowResFull, Seg6hrSubset},
		{cycle.LowResFull, SegDefault},
		{cycle.LowRes, SegDefault},
	}
	for _, c := range cases {
		cum := make([]float64, c.r.ExpectedTimeLength())
		for i := range cum {
			cum[i] = float64(i) // strictly increasing cumulative runoff
		}
		out := incrementalSeries(cum, c.r, c.s)
		want := ExpectedOutputLength(c.r, resolveDefault(c.r, c.s))
		if want == 0 {
			want = ExpectedOutputLength(c.r, c.s)
		}
		if len(out) != want {
			t.Errorf("incrementalSeries(%s,%s) produced %d points, want %d", c.r, c.s, len(out), want)
		}
	}
}

func TestDiffConsecutiveAndAnchor(t *testing.T) {
	vals := []float64{1, 3, 6, 10}
	got := diffConsecutive(vals)
	want := []float64{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("diffConsecutive = %v, want %v", got, want)
		}
	}

	got2 := diffWithAnchor(10, []float64{12, 15, 21})
	want2 := []float64{2, 3, 6}
	for i := range want2 {
		if got2[i] != want2[i] {
			t.Fatalf("diffWithAnchor = %v, want %v", got2, want2)
		}
	}
}

// TestIncrementalSeriesLowResFullDefaultSixHourValues pins the actual
// values of LowResFull's "default" 6h composition against a linear
// cumulative series, catching the offset/anchor divergence a
// length-only check would miss.
func TestIncrementalSeriesLowResFullDefaultSixHourValues(t *testing.T) {
	cum := make([]float64, cycle.LowResFull.ExpectedTimeLength())
	for i := range cum {
		cum[i] = float64(i)
	}
	out := incrementalSeries(cum, cycle.LowResFull, Seg6hr)
	if len(out) != 60 {
		t.Fatalf("len(out) = %d, want 60", len(out))
	}
	for i := 0; i < 24; i++ {
		if out[i] != 2 {
			t.Errorf("out[%d] = %v, want 2 (3h-derived portion)", i, out[i])
		}
	}
	for i := 24; i < 60; i++ {
		if out[i] != 1 {
			t.Errorf("out[%d] = %v, want 1 (6h-derived portion)", i, out[i])
		}
	}
}

func TestPickEvery(t *testing.T) {
	vals := []float64{0, 1, 2, 3, 4, 5, 6}
	got := pickEvery(vals, 0, 3)
	want := []float64{0, 3, 6}
	if len(got) != len(want) {
		t.Fatalf("pickEvery length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pickEvery = %v, want %v", got, want)
		}
	}
}
