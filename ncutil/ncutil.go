// Package ncutil wraps github.com/ctessum/cdf with the handful of
// operations rapidflow needs repeatedamente: validating a grid forecast's
// dimensions/variables, reading a single rectangular slab of a gridded
// variable, and writing the CF-1.6 "timeSeries" Qout convention described
// in spec §6. The read/write call shapes mirror
// _examples/other_examples/*lib.aim-framework.go.go and *sr-sr.go.go, the
// two places in the pack that exercise github.com/ctessum/cdf directly.
package ncutil

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
)

// Open opens a NetCDF file for reading and returns both the raw *os.File
// (which the caller must Close) and the parsed *cdf.File header/reader.
func Open(path string) (*os.File, *cdf.File, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("rapidflow: opening %s: %w", path, err)
	}
	f, err := cdf.Open(ff)
	if err != nil {
		ff.Close()
		return nil, nil, fmt.Errorf("rapidflow: reading netcdf header of %s: %w", path, err)
	}
	return ff, f, nil
}

// HasVariable reports whether f declares a variable named name, without
// panicking if the underlying header doesn't recognize it.
func HasVariable(f *cdf.File, name string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	f.Header.Lengths(name)
	return true
}

// Lengths returns the per-dimension lengths of variable name, or an error
// if the variable isn't declared.
func Lengths(f *cdf.File, name string) (lens []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rapidflow: variable %q not found: %v", name, r)
		}
	}()
	return f.Header.Lengths(name), nil
}

// ReadFloat32 reads count[i] values starting at start[i] (per-dimension)
// of variable name into a flat []float32 slice in row-major order.
func ReadFloat32(f *cdf.File, name string, start, count []int) ([]float32, error) {
	n := 1
	for _, c := range count {
		n *= c
	}
	buf := make([]float32, n)
	r := f.Reader(name, start, count)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("rapidflow: reading %q: %w", name, err)
	}
	return buf, nil
}

// ReadFloat64 is the float64 counterpart of ReadFloat32, used for
// lat/lon/time-like coordinate variables stored in double precision.
func ReadFloat64(f *cdf.File, name string, start, count []int) ([]float64, error) {
	n := 1
	for _, c := range count {
		n *= c
	}
	buf := make([]float64, n)
	r := f.Reader(name, start, count)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("rapidflow: reading %q: %w", name, err)
	}
	return buf, nil
}

// ReadInt32 is the int32 counterpart, used for rivid and second-since-epoch
// time variables.
func ReadInt32(f *cdf.File, name string, start, count []int) ([]int32, error) {
	n := 1
	for _, c := range count {
		n *= c
	}
	buf := make([]int32, n)
	r := f.Reader(name, start, count)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("rapidflow: reading %q: %w", name, err)
	}
	return buf, nil
}

// GlobalAttr returns the value of a global ("") attribute, or nil if unset.
func GlobalAttr(f *cdf.File, name string) (v interface{}) {
	defer func() { recover() }()
	return f.Header.GetAttribute("", name)
}
