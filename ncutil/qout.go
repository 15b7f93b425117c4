package ncutil

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
)

// QoutWriter produces the canonical CF-compliant Qout NetCDF described in
// spec §6: dimensions (rivid, time), rivid/time/lat/lon/z/Qout variables,
// a scalar crs variable with EPSG:4269 attributes, and CF global
// attributes. The variable layout and Header/Writer call sequence follow
// _examples/other_examples/*sr-sr.go.go's createOrOpenOutputFile.
type QoutWriter struct {
	Rivid []int32
	Lat   []float64
	Lon   []float64
	Z     []float64
}

// Write creates (overwriting) a Qout file at path with the given time axis
// (seconds since 1970-01-01 UTC, strictly increasing per spec §3) and
// per-(rivid,time) discharge in m3/s, row-major as qout[rividIndex*ntime+t].
func (w *QoutWriter) Write(path string, timeSecs []int32, qout []float32) error {
	nRivid := len(w.Rivid)
	nTime := len(timeSecs)
	if len(qout) != nRivid*nTime {
		return fmt.Errorf("rapidflow: Qout data length %d != rivid(%d)*time(%d)", len(qout), nRivid, nTime)
	}

	h := cdf.NewHeader(
		[]string{"rivid", "time"},
		[]int{nRivid, nTime},
	)
	h.AddVariable("rivid", []string{"rivid"}, []int32{0})
	h.AddAttribute("rivid", "long_name", "river reach ID")
	h.AddAttribute("rivid", "cf_role", "timeseries_id")

	h.AddVariable("time", []string{"time"}, []int32{0})
	h.AddAttribute("time", "long_name", "time")
	h.AddAttribute("time", "standard_name", "time")
	h.AddAttribute("time", "units", "seconds since 1970-01-01 00:00:00 UTC")
	h.AddAttribute("time", "axis", "T")

	h.AddVariable("lat", []string{"rivid"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"rivid"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddVariable("z", []string{"rivid"}, []float64{0})
	h.AddAttribute("z", "units", "m")

	h.AddVariable("Qout", []string{"rivid", "time"}, []float32{0})
	h.AddAttribute("Qout", "long_name", "discharge")
	h.AddAttribute("Qout", "units", "m3 s-1")
	h.AddAttribute("Qout", "coordinates", "lon lat z")

	h.AddVariable("crs", []string{}, []int32{0})
	h.AddAttribute("crs", "grid_mapping_name", "latitude_longitude")
	h.AddAttribute("crs", "epsg_code", "EPSG:4269")

	h.AddAttribute("", "Conventions", "CF-1.6")
	h.AddAttribute("", "featureType", "timeSeries")
	if nTime > 0 {
		h.AddAttribute("", "time_coverage_start", timeSecs[0])
		h.AddAttribute("", "time_coverage_end", timeSecs[nTime-1])
	}

	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("rapidflow: defining Qout header for %s: %v", path, err)
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

	if err := writeAll(f, "rivid", w.Rivid); err != nil {
		return err
	}
	if err := writeAll(f, "time", timeSecs); err != nil {
		return err
	}
	lat, lon, z := w.Lat, w.Lon, w.Z
	if lat == nil {
		lat = zeros(nRivid)
	}
	if lon == nil {
		lon = zeros(nRivid)
	}
	if z == nil {
		z = zeros(nRivid)
	}
	if err := writeAll(f, "lat", lat); err != nil {
		return err
	}
	if err := writeAll(f, "lon", lon); err != nil {
		return err
	}
	if err := writeAll(f, "z", z); err != nil {
		return err
	}
	if err := writeAll(f, "Qout", qout); err != nil {
		return err
	}
	return cdf.UpdateNumRecs(ff)
}

func zeros(n int) []float64 { return make([]float64, n) }

func writeAll(f *cdf.File, name string, data interface{}) error {
	n := sliceLen(data)
	w := f.Writer(name, []int{0}, []int{n})
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("rapidflow: writing %q: %w", name, err)
	}
	return nil
}

func sliceLen(data interface{}) int {
	switch v := data.(type) {
	case []int32:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	default:
		return 0
	}
}
