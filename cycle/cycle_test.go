package cycle

import (
	"testing"
	"time"
)

func TestParseRegion(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"nfie-texas_gulf_region", false},
		{"r-s", false},
		{"noHyphen", true},
		{"too-many-hyphens", true},
		{"Upper-Case", true},
	}
	for _, c := range cases {
		_, err := ParseRegion(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseRegion(%q) err=%v, wantErr=%v", c.name, err, c.wantErr)
		}
	}
}

func TestParseRelease(t *testing.T) {
	date, hour, err := ParseRelease("Runoff.20200101.00.ensemble.netcdf.tar.gz")
	if err != nil {
		t.Fatal(err)
	}
	if hour != 0 || date.Format("20060102") != "20200101" {
		t.Errorf("got date=%v hour=%d", date, hour)
	}
	if _, _, err := ParseRelease("garbage.txt"); err == nil {
		t.Error("expected error for unrecognized release name")
	}
}

func TestCycleNextIsTwelveHours(t *testing.T) {
	r, _ := ParseRegion("r-s")
	c := Cycle{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Hour: 0, Region: r}
	n := c.Next()
	if n.Hour != 12 || !n.Date.Equal(c.Date) {
		t.Fatalf("expected same day hour 12, got %v", n)
	}
	n2 := n.Next()
	if n2.Hour != 0 || n2.Date.Sub(c.Date) != 24*time.Hour {
		t.Fatalf("expected next day hour 0, got %v", n2)
	}
}

func TestWatermarkComparison(t *testing.T) {
	r, _ := ParseRegion("r-s")
	c := Cycle{Date: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), Hour: 0, Region: r}
	after, err := c.AfterWatermark(ZeroWatermark)
	if err != nil {
		t.Fatal(err)
	}
	if !after {
		t.Error("expected cycle after zero watermark")
	}
	w := FromCycle(c)
	canon, err := w.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	if canon != c.Canonical() {
		t.Errorf("watermark canonical %q != cycle canonical %q", canon, c.Canonical())
	}
}

func TestClassifyDeltas(t *testing.T) {
	r, err := ClassifyDeltas([]float64{1, 1, 1, 3, 3, 6, 6})
	if err != nil || r != HighRes {
		t.Errorf("expected HighRes, got %v err=%v", r, err)
	}
	r, err = ClassifyDeltas([]float64{3, 3, 6})
	if err != nil || r != LowResFull {
		t.Errorf("expected LowResFull, got %v err=%v", r, err)
	}
	r, err = ClassifyDeltas([]float64{6, 6, 6})
	if err != nil || r != LowRes {
		t.Errorf("expected LowRes, got %v err=%v", r, err)
	}
	if _, err := ClassifyDeltas([]float64{2, 4}); err == nil {
		t.Error("expected error for unrecognized deltas")
	}
}
