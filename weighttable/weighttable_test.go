package weighttable

import (
	"errors"
	"strings"
	"testing"

	"github.com/erdc/rapidflow/rferrors"
)

const validCSV = `StreamID,area_sqm,lon_index,lat_index,npoints
1,100.0,5,10,2
1,200.0,6,10,2
2,50.0,5,11,1
`

func TestParseValid(t *testing.T) {
	tbl, err := Parse(strings.NewReader(validCSV))
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(tbl.Groups))
	}
	if tbl.Groups[0].StreamID != 1 || len(tbl.Groups[0].Cells) != 2 {
		t.Errorf("unexpected first group: %+v", tbl.Groups[0])
	}
	if tbl.Groups[1].StreamID != 2 || len(tbl.Groups[1].Cells) != 1 {
		t.Errorf("unexpected second group: %+v", tbl.Groups[1])
	}
}

func TestParseNpointsMismatch(t *testing.T) {
	csv := `StreamID,area_sqm,lon_index,lat_index,npoints
1,100.0,5,10,3
1,200.0,6,10,3
`
	_, err := Parse(strings.NewReader(csv))
	if !errors.Is(err, rferrors.ErrWeightTableMalformed) {
		t.Fatalf("expected ErrWeightTableMalformed, got %v", err)
	}
}

func TestParseNonContiguousGroup(t *testing.T) {
	csv := `StreamID,area_sqm,lon_index,lat_index,npoints
1,100.0,5,10,1
2,50.0,5,11,1
1,200.0,6,10,1
`
	_, err := Parse(strings.NewReader(csv))
	if !errors.Is(err, rferrors.ErrGroupStreamIDInconsistent) {
		t.Fatalf("expected ErrGroupStreamIDInconsistent, got %v", err)
	}
}

func TestBoundingBox(t *testing.T) {
	tbl, err := Parse(strings.NewReader(validCSV))
	if err != nil {
		t.Fatal(err)
	}
	lonMin, lonMax, latMin, latMax := tbl.BoundingBox()
	if lonMin != 5 || lonMax != 6 || latMin != 10 || latMax != 11 {
		t.Errorf("got (%d,%d,%d,%d)", lonMin, lonMax, latMin, latMax)
	}
}

func TestParseRowReshuffleWithinGroupCommutes(t *testing.T) {
	// Testable property 4 (spec §8): area sum commutes under reshuffling
	// within a group.
	a, err := Parse(strings.NewReader(validCSV))
	if err != nil {
		t.Fatal(err)
	}
	shuffled := `StreamID,area_sqm,lon_index,lat_index,npoints
1,200.0,6,10,2
1,100.0,5,10,2
2,50.0,5,11,1
`
	b, err := Parse(strings.NewReader(shuffled))
	if err != nil {
		t.Fatal(err)
	}
	sum := func(g Group) float64 {
		s := 0.0
		for _, c := range g.Cells {
			s += c.AreaSqM
		}
		return s
	}
	if sum(a.Groups[0]) != sum(b.Groups[0]) {
		t.Errorf("area sum should commute under in-group reshuffling")
	}
}
