package assimilate

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/erdc/rapidflow/ncutil"
)

func TestMemberPredictionSample(t *testing.T) {
	cases := []struct {
		member, timeLength, want int
	}{
		{52, 125, 12},
		{52, 61, 2},
		{7, 85, 4},
		{7, 61, 2},
	}
	for _, c := range cases {
		if got := MemberPredictionSample(c.member, c.timeLength); got != c.want {
			t.Errorf("MemberPredictionSample(%d,%d) = %d, want %d", c.member, c.timeLength, got, c.want)
		}
	}
}

func TestDayOfYearIndexLeapShift(t *testing.T) {
	// March 1 in a leap year is day 61 (1-based), index 60; shifted back
	// to 59 because the seasonal file has no Feb-29 column.
	leap := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	if got := DayOfYearIndex(leap); got != 59 {
		t.Errorf("leap-year March 1 index = %d, want 59", got)
	}
	nonLeap := time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)
	if got := DayOfYearIndex(nonLeap); got != 59 {
		t.Errorf("non-leap March 1 index = %d, want 59", got)
	}
	jan1 := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	if got := DayOfYearIndex(jan1); got != 0 {
		t.Errorf("Jan 1 index = %d, want 0", got)
	}
}

func TestEnsembleMeanAveragesAcrossMembers(t *testing.T) {
	dir := t.TempDir()
	network := NewNetwork([]int64{1, 2}, []int64{0, 1}, [][]int64{nil, {1}})

	paths := make([]StrategyAInputs, 0, 2)
	for i, member := range []int{52, 7} {
		path := filepath.Join(dir, "member.nc")
		if i == 1 {
			path = filepath.Join(dir, "member2.nc")
		}
		w := &ncutil.QoutWriter{Rivid: []int32{1, 2}}
		nTime := 125
		if member != 52 {
			nTime = 85
		}
		timeSecs := make([]int32, nTime)
		qout := make([]float32, 2*nTime)
		for t := 0; t < nTime; t++ {
			qout[0*nTime+t] = 10
			qout[1*nTime+t] = 20
		}
		if err := w.Write(path, timeSecs, qout); err != nil {
			t.Fatalf("writing fixture %d: %v", i, err)
		}
		paths = append(paths, StrategyAInputs{Member: member, QoutPath: path})
	}

	mean, warnings := EnsembleMean(network, paths)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if mean[1] != 10 || mean[2] != 20 {
		t.Errorf("mean = %v, want rivid1=10 rivid2=20", mean)
	}
}

func TestWriteQinitPreservesOrderAndDefaultsZero(t *testing.T) {
	network := NewNetwork([]int64{10, 20, 30}, []int64{0, 10, 20}, [][]int64{{20}, {30}, nil})
	path := filepath.Join(t.TempDir(), "Qinit.csv")
	flows := map[int64]float64{10: 1.5, 30: 3.5}
	if err := WriteQinit(path, network, flows); err != nil {
		t.Fatalf("WriteQinit: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening written Qinit: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "1.5" || lines[1] != "0" || lines[2] != "3.5" {
		t.Errorf("lines = %v, want [1.5 0 3.5]", lines)
	}
}

func TestReadQinitRoundTripsWriteQinit(t *testing.T) {
	network := NewNetwork([]int64{10, 20, 30}, []int64{0, 10, 20}, [][]int64{{20}, {30}, nil})
	path := filepath.Join(t.TempDir(), "Qinit.csv")
	flows := map[int64]float64{10: 1.5, 30: 3.5}
	if err := WriteQinit(path, network, flows); err != nil {
		t.Fatalf("WriteQinit: %v", err)
	}

	got, err := ReadQinit(path, network)
	if err != nil {
		t.Fatalf("ReadQinit: %v", err)
	}
	if got[10] != 1.5 || got[20] != 0 || got[30] != 3.5 {
		t.Errorf("ReadQinit = %v, want {10:1.5 20:0 30:3.5}", got)
	}
}

func TestReadQinitMissingFileReturnsEmptyMap(t *testing.T) {
	network := NewNetwork([]int64{1, 2}, []int64{0, 1}, [][]int64{{2}, nil})
	got, err := ReadQinit(filepath.Join(t.TempDir(), "missing.csv"), network)
	if err != nil {
		t.Fatalf("ReadQinit: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadQinit on missing file = %v, want empty map", got)
	}
}

func TestCorrectorAppliesGageAndPropagates(t *testing.T) {
	// 1 -> 2 -> 3 (rivid 1 is upstream of 2, which is upstream of 3)
	network := NewNetwork(
		[]int64{1, 2, 3},
		[]int64{2, 3, 0},
		[][]int64{nil, {1}, {2}},
	)
	c := NewCorrector(network)
	flows := map[int64]float64{1: 5, 2: 8, 3: 12}
	observations := []GageObservation{{Rivid: 2, StationFlow: 20}}

	c.Apply(flows, observations)

	if flows[2] != 20 {
		t.Errorf("gaged reach flow = %v, want 20 (raw override)", flows[2])
	}
	// Neighbors with unknown natural flow fall back to the flat
	// station-flow carry-through.
	if flows[1] != 20 {
		t.Errorf("upstream neighbor flow = %v, want 20", flows[1])
	}
	if flows[3] != 20 {
		t.Errorf("downstream neighbor flow = %v, want 20", flows[3])
	}
}

// TestCorrectorPropagatesScaledByNaturalFlow exercises spec §8's S5
// scenario: reach A (gaged, natural=100, station_flow=50, init=30) has
// upstream neighbors B (natural=40, init=20) and C (no natural flow,
// init=10). B's correction should scale by natural-flow ratio; C falls
// back to the raw station flow.
func TestCorrectorPropagatesScaledByNaturalFlow(t *testing.T) {
	network := NewNetwork(
		[]int64{1, 2, 3}, // A=1, B=2, C=3
		[]int64{0, 1, 1},
		[][]int64{{2, 3}, nil, nil},
	)
	network.NaturalFlow = map[int64]float64{2: 40}

	c := NewCorrector(network)
	flows := map[int64]float64{1: 30, 2: 20, 3: 10}
	observations := []GageObservation{{Rivid: 1, StationFlow: 50, NaturalFlow: 100}}

	c.Apply(flows, observations)

	if flows[1] != 50 {
		t.Errorf("gaged reach A = %v, want 50", flows[1])
	}
	if flows[2] != 28 {
		t.Errorf("upstream neighbor B = %v, want 28 (20 + (50-30)*40/100)", flows[2])
	}
	if flows[3] != 50 {
		t.Errorf("upstream neighbor C = %v, want 50 (fallback to measured)", flows[3])
	}
}

func TestCorrectorNeverOverwritesAnotherGage(t *testing.T) {
	network := NewNetwork(
		[]int64{1, 2, 3},
		[]int64{2, 3, 0},
		[][]int64{nil, {1}, {2}},
	)
	c := NewCorrector(network)
	flows := map[int64]float64{1: 5, 2: 8, 3: 12}
	observations := []GageObservation{
		{Rivid: 1, StationFlow: 50},
		{Rivid: 2, StationFlow: 20},
	}

	c.Apply(flows, observations)

	if flows[1] != 50 {
		t.Errorf("reach 1 (gaged) = %v, want 50", flows[1])
	}
	if flows[2] != 20 {
		t.Errorf("reach 2 (gaged) = %v, want 20 (not overwritten by reach 1's propagation)", flows[2])
	}
}
