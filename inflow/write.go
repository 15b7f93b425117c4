package inflow

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
)

// Write emits s as a NetCDF file at path with dimensions (Time, rivid) and
// a single m3_riv variable, the input format the routing kernel expects
// for lateral inflow forcing.
func (s *InflowSeries) Write(path string) error {
	nRivid := len(s.Rivid)
	if nRivid == 0 {
		return fmt.Errorf("rapidflow: refusing to write empty inflow series to %s", path)
	}
	nTime := len(s.Values[0])
	for i, v := range s.Values {
		if len(v) != nTime {
			return fmt.Errorf("rapidflow: inflow series for rivid %d has %d steps, want %d", s.Rivid[i], len(v), nTime)
		}
	}

	h := cdf.NewHeader(
		[]string{"Time", "rivid"},
		[]int{nTime, nRivid},
	)
	h.AddVariable("rivid", []string{"rivid"}, []int32{0})
	h.AddAttribute("rivid", "long_name", "river reach ID")
	h.AddVariable("m3_riv", []string{"Time", "rivid"}, []float32{0})
	h.AddAttribute("m3_riv", "long_name", "incremental lateral inflow volume")
	h.AddAttribute("m3_riv", "units", "m3")
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("rapidflow: defining inflow header for %s: %v", path, err)
	}

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rapidflow: creating %s: %w", path, err)
	}
	defer ff.Close()

	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("rapidflow: initializing %s: %w", path, err)
	}

	rivid32 := make([]int32, nRivid)
	for i, v := range s.Rivid {
		rivid32[i] = int32(v)
	}
	rw := f.Writer("rivid", []int{0}, []int{nRivid})
	if _, err := rw.Write(rivid32); err != nil {
		return fmt.Errorf("rapidflow: writing rivid: %w", err)
	}

	flat := make([]float32, nTime*nRivid)
	for t := 0; t < nTime; t++ {
		for i := 0; i < nRivid; i++ {
			flat[t*nRivid+i] = float32(s.Values[i][t])
		}
	}
	mw := f.Writer("m3_riv", []int{0, 0}, []int{nTime, nRivid})
	if _, err := mw.Write(flat); err != nil {
		return fmt.Errorf("rapidflow: writing m3_riv: %w", err)
	}
	return cdf.UpdateNumRecs(ff)
}
