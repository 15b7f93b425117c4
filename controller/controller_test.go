package controller

import (
	"archive/tar"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/erdc/rapidflow/assimilate"
	"github.com/erdc/rapidflow/cycle"
	"github.com/erdc/rapidflow/measure"
	"github.com/erdc/rapidflow/ncutil"
)

func TestStateString(t *testing.T) {
	cases := []struct {
		s    State
		want string
	}{
		{Idle, "Idle"},
		{Locked, "Locked"},
		{Processing, "Processing"},
		{Advancing, "Advancing"},
		{State(99), "Unknown"},
	}
	for _, c := range cases {
		if got := c.s.String(); got != c.want {
			t.Errorf("State(%d).String() = %q, want %q", c.s, got, c.want)
		}
	}
}

func TestEnsembleNumberFromForecastNewLayout(t *testing.T) {
	n, ok := ensembleNumberFromForecast("52.Runoff.nc")
	if !ok || n != 52 {
		t.Errorf("ensembleNumberFromForecast(52.Runoff.nc) = (%d,%v), want (52,true)", n, ok)
	}
}

func TestEnsembleNumberFromForecastLegacyLayout(t *testing.T) {
	n, ok := ensembleNumberFromForecast("20151112.00.7.205.runoff.grib.runoff.netcdf")
	if !ok || n != 7 {
		t.Errorf("ensembleNumberFromForecast(legacy) = (%d,%v), want (7,true)", n, ok)
	}
}

func TestEnsembleNumberFromForecastRejectsUnrelatedFiles(t *testing.T) {
	if _, ok := ensembleNumberFromForecast("readme.txt"); ok {
		t.Error("expected readme.txt to be rejected")
	}
	if _, ok := ensembleNumberFromForecast("99.Runoff.nc"); ok {
		t.Error("expected out-of-range member 99 to be rejected")
	}
}

func TestExtractReleaseMembersUnpacksTar(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "Runoff.20200101.00.ensemble.netcdf.tar")
	buildTarFixture(t, archivePath, map[string]string{
		"52.Runoff.nc": "high-res payload",
		"7.Runoff.nc":  "perturbed member payload, longer than the other one",
		"notes.txt":    "not a member file",
	})

	members, err := extractReleaseMembers(archivePath, filepath.Join(dir, "extracted"))
	if err != nil {
		t.Fatalf("extractReleaseMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2 (notes.txt must be skipped)", len(members))
	}
	byMember := map[int]memberGridFile{}
	for _, m := range members {
		byMember[int(m.Member)] = m
	}
	if _, ok := byMember[52]; !ok {
		t.Error("expected member 52 extracted")
	}
	if _, ok := byMember[7]; !ok {
		t.Error("expected member 7 extracted")
	}
}

func buildTarFixture(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating archive: %v", err)
	}
	defer f.Close()
	tw := tar.NewWriter(f)
	defer tw.Close()
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing tar header for %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("writing tar body for %s: %v", name, err)
		}
	}
}

func TestDailyBoundaries(t *testing.T) {
	hours := []float64{0, 6, 12, 18, 24, 30, 36, 42, 48}
	got := dailyBoundaries(hours)
	want := []int{0, 4, 8}
	if len(got) != len(want) {
		t.Fatalf("dailyBoundaries(%v) = %v, want %v", hours, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dailyBoundaries(%v)[%d] = %d, want %d", hours, i, got[i], want[i])
		}
	}
}

func TestTierName(t *testing.T) {
	if got := tierName(0); got != "none" {
		t.Errorf("tierName(TierNone) = %q, want %q", got, "none")
	}
}

func TestApplyCorrectorSeedsFromExistingQinit(t *testing.T) {
	network := assimilate.NewNetwork([]int64{1, 2, 3}, []int64{0, 1, 1}, [][]int64{{2, 3}, nil, nil})
	network.NaturalFlow = map[int64]float64{2: 40}
	rc := RegionConfig{Network: network}

	path := filepath.Join(t.TempDir(), "Qinit_current.csv")
	if err := assimilate.WriteQinit(path, network, map[int64]float64{1: 30, 2: 20, 3: 10}); err != nil {
		t.Fatalf("seeding Qinit: %v", err)
	}

	observations := []assimilate.GageObservation{{Rivid: 1, StationFlow: 50, NaturalFlow: 100}}
	if err := applyCorrector(path, rc, observations); err != nil {
		t.Fatalf("applyCorrector: %v", err)
	}

	got, err := assimilate.ReadQinit(path, network)
	if err != nil {
		t.Fatalf("ReadQinit: %v", err)
	}
	if got[1] != 50 {
		t.Errorf("reach 1 = %v, want 50", got[1])
	}
	if got[2] != 28 {
		t.Errorf("reach 2 = %v, want 28 (seeded from 20, not 0)", got[2])
	}
}

func TestApplyCorrectorNoopOnMissingQinit(t *testing.T) {
	network := assimilate.NewNetwork([]int64{1}, []int64{0}, [][]int64{nil})
	rc := RegionConfig{Network: network}
	path := filepath.Join(t.TempDir(), "Qinit_current.csv")

	if err := applyCorrector(path, rc, []assimilate.GageObservation{{Rivid: 1, StationFlow: 50}}); err != nil {
		t.Fatalf("applyCorrector on missing Qinit should be a no-op, got: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("applyCorrector should not create a Qinit file when none existed")
	}
}

func TestFetchGageObservationsSkipsFailedFetches(t *testing.T) {
	target := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site := r.URL.Query().Get("sites")
		if site == "bad-site" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"value":{"timeSeries":[{"values":[{"value":[{"value":"35.3146667","dateTime":"%s"}]}]}]}}`, target.Format(time.RFC3339))
	}))
	defer srv.Close()

	client, err := measure.NewClient(filepath.Join(t.TempDir(), "measure.db"))
	if err != nil {
		t.Fatalf("measure.NewClient: %v", err)
	}
	defer client.Close()
	client.BaseURL = srv.URL
	client.HTTPClient = srv.Client()

	network := assimilate.NewNetwork([]int64{1, 2}, []int64{0, 0}, [][]int64{nil, nil})
	network.NaturalFlow = map[int64]float64{1: 100}
	rc := RegionConfig{
		Network: network,
		GageStations: []assimilate.GageStation{
			{Rivid: 1, StationID: "good-site"},
			{Rivid: 2, StationID: "bad-site"},
		},
	}
	ctrl := New(Config{Measure: client})
	cyc := cycle.Cycle{Date: target, Hour: 0}
	log := logrus.NewEntry(logrus.New())

	observations := ctrl.fetchGageObservations(context.Background(), cyc, rc, log)
	if len(observations) != 1 {
		t.Fatalf("got %d observations, want 1 (bad-site fetch should be skipped)", len(observations))
	}
	if observations[0].Rivid != 1 {
		t.Errorf("observation rivid = %d, want 1", observations[0].Rivid)
	}
	if observations[0].StationFlow < 0.99 || observations[0].StationFlow > 1.01 {
		t.Errorf("observation flow = %v, want ~1.0 m3/s", observations[0].StationFlow)
	}
	if observations[0].NaturalFlow != 100 {
		t.Errorf("observation natural flow = %v, want 100", observations[0].NaturalFlow)
	}
}

func TestReadMemberSeriesAggregatesPerRivid(t *testing.T) {
	dir := t.TempDir()
	nTime := 5
	timeSecs := make([]int32, nTime)
	for i := range timeSecs {
		timeSecs[i] = int32(i * 3600)
	}

	path1 := filepath.Join(dir, "Qout_1.nc")
	w1 := &ncutil.QoutWriter{Rivid: []int32{10, 20}}
	qout1 := []float32{1, 2, 3, 4, 5, 10, 20, 30, 40, 50}
	if err := w1.Write(path1, timeSecs, qout1); err != nil {
		t.Fatalf("writing fixture 1: %v", err)
	}

	path2 := filepath.Join(dir, "Qout_2.nc")
	w2 := &ncutil.QoutWriter{Rivid: []int32{10, 20}}
	qout2 := []float32{2, 3, 4, 5, 6, 20, 30, 40, 50, 60}
	if err := w2.Write(path2, timeSecs, qout2); err != nil {
		t.Fatalf("writing fixture 2: %v", err)
	}

	series, hours, err := readMemberSeries([]string{path1, path2})
	if err != nil {
		t.Fatalf("readMemberSeries: %v", err)
	}
	if len(hours) != nTime {
		t.Fatalf("got %d hours, want %d", len(hours), nTime)
	}
	if len(series[10]) != 2 || len(series[20]) != 2 {
		t.Fatalf("expected 2 members per rivid, got rivid10=%d rivid20=%d", len(series[10]), len(series[20]))
	}
	if series[10][0][0] != 1 || series[10][1][0] != 2 {
		t.Errorf("rivid 10 series = %v, want first values [1 2]", series[10])
	}
}
