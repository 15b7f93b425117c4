// Package weighttable parses and validates the area-weight CSVs described
// in spec §3 ("WeightTable") and §4.1: a precomputed mapping from grid
// cells to reaches with per-cell areal weights, grouped contiguously by
// StreamID.
package weighttable

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/erdc/rapidflow/rferrors"
)

// Cell is one grid-cell contribution to a reach's lateral inflow.
type Cell struct {
	AreaSqM  float64
	LonIndex int
	LatIndex int
}

// Group is the set of grid cells contributing to one reach (StreamID),
// in the order they appeared in the CSV.
type Group struct {
	StreamID int64
	Cells    []Cell
}

// Table is a parsed weight table: groups in file order, one per reach,
// with rivid order preserved (testable property 4 in spec §8).
type Table struct {
	Groups []Group
}

const header = "StreamID,area_sqm,lon_index,lat_index,npoints"

// Load parses a weight table CSV from path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rapidflow: opening weight table %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse parses a weight table CSV from r, validating the invariants from
// spec §3: rows of a single group are contiguous, and group size equals
// the npoints column.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	headerRow, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", rferrors.ErrWeightTableMalformed, err)
	}
	if len(headerRow) < 5 {
		return nil, fmt.Errorf("%w: header has %d columns, want 5", rferrors.ErrWeightTableMalformed, len(headerRow))
	}

	var (
		t          Table
		curID      int64
		curNpoints int
		haveGroup  bool
	)

	flush := func() error {
		if !haveGroup {
			return nil
		}
		g := &t.Groups[len(t.Groups)-1]
		if len(g.Cells) != curNpoints {
			return fmt.Errorf("%w: stream id %d declares npoints=%d but has %d rows", rferrors.ErrWeightTableMalformed, curID, curNpoints, len(g.Cells))
		}
		return nil
	}

	seen := map[int64]bool{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", rferrors.ErrWeightTableMalformed, err)
		}
		if len(row) < 5 {
			return nil, fmt.Errorf("%w: short row %v", rferrors.ErrWeightTableMalformed, row)
		}
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: StreamID %q: %v", rferrors.ErrWeightTableMalformed, row[0], err)
		}
		area, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: area_sqm %q: %v", rferrors.ErrWeightTableMalformed, row[1], err)
		}
		lon, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("%w: lon_index %q: %v", rferrors.ErrWeightTableMalformed, row[2], err)
		}
		lat, err := strconv.Atoi(row[3])
		if err != nil {
			return nil, fmt.Errorf("%w: lat_index %q: %v", rferrors.ErrWeightTableMalformed, row[3], err)
		}
		npoints, err := strconv.Atoi(row[4])
		if err != nil {
			return nil, fmt.Errorf("%w: npoints %q: %v", rferrors.ErrWeightTableMalformed, row[4], err)
		}

		if !haveGroup || id != curID {
			if haveGroup {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			if seen[id] {
				return nil, fmt.Errorf("%w: stream id %d rows are not contiguous", rferrors.ErrGroupStreamIDInconsistent, id)
			}
			seen[id] = true
			t.Groups = append(t.Groups, Group{StreamID: id})
			curID = id
			curNpoints = npoints
			haveGroup = true
		} else if npoints != curNpoints {
			return nil, fmt.Errorf("%w: stream id %d has inconsistent npoints within its group", rferrors.ErrWeightTableMalformed, id)
		}

		g := &t.Groups[len(t.Groups)-1]
		g.Cells = append(g.Cells, Cell{AreaSqM: area, LonIndex: lon, LatIndex: lat})
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(t.Groups) == 0 {
		return nil, fmt.Errorf("%w: no data rows", rferrors.ErrWeightTableMalformed)
	}
	return &t, nil
}

// BoundingBox returns the inclusive [lonMin,lonMax] x [latMin,latMax] index
// range spanning every cell referenced by the table, used to read a single
// rectangular slab of the grid's runoff variable (spec §4.1 step 2).
func (t *Table) BoundingBox() (lonMin, lonMax, latMin, latMax int) {
	first := true
	for _, g := range t.Groups {
		for _, c := range g.Cells {
			if first {
				lonMin, lonMax = c.LonIndex, c.LonIndex
				latMin, latMax = c.LatIndex, c.LatIndex
				first = false
				continue
			}
			if c.LonIndex < lonMin {
				lonMin = c.LonIndex
			}
			if c.LonIndex > lonMax {
				lonMax = c.LonIndex
			}
			if c.LatIndex < latMin {
				latMin = c.LatIndex
			}
			if c.LatIndex > latMax {
				latMax = c.LatIndex
			}
		}
	}
	return
}
