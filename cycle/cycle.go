// Package cycle holds the core domain types shared by every other package
// in rapidflow: regions, forecast cycles, ensemble members, and the grid
// resolution classes ECMWF emits.
package cycle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Region is a hydrologic modeling domain named "<watershed>-<subbasin>".
type Region struct {
	Watershed string
	Subbasin  string
}

var regionPattern = regexp.MustCompile(`^[a-z0-9_]+-[a-z0-9_]+$`)

// ParseRegion validates and splits a region name of the form
// "<watershed>-<subbasin>". Names are expected to already be lowercased.
func ParseRegion(name string) (Region, error) {
	if !regionPattern.MatchString(name) {
		return Region{}, fmt.Errorf("rapidflow: invalid region name %q", name)
	}
	parts := strings.SplitN(name, "-", 2)
	return Region{Watershed: parts[0], Subbasin: parts[1]}, nil
}

// String renders the canonical "<watershed>-<subbasin>" name.
func (r Region) String() string {
	return r.Watershed + "-" + r.Subbasin
}

// Cycle identifies one forecast issuance: a date, an hour (0 or 12), and
// the region being processed.
type Cycle struct {
	Date   time.Time // UTC midnight of the issue date
	Hour   int       // 0 or 12
	Region Region
}

// Canonical renders a cycle's (date, hour) as "YYYYMMDD.H", the textual
// form used in lockfiles and output directory names.
func (c Cycle) Canonical() string {
	return fmt.Sprintf("%s.%d", c.Date.Format("20060102"), c.Hour)
}

// releasePattern matches upstream release folder names, e.g.
// "Runoff.20200101.00.ensemble.netcdf.tar.gz".
var releasePattern = regexp.MustCompile(`^Runoff\.(\d{8})\.(\d{2})(?:\..+)?\.netcdf\.tar(?:\.gz)?$`)

// ParseRelease extracts the (date, hour) identified by an upstream release
// folder/archive name. The hour is normalized to 0 or 12.
func ParseRelease(name string) (time.Time, int, error) {
	m := releasePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, 0, fmt.Errorf("rapidflow: release name %q does not match Runoff.YYYYMMDD.HH...netcdf.tar[.gz]", name)
	}
	date, err := time.Parse("20060102", m[1])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("rapidflow: release date: %w", err)
	}
	hh, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("rapidflow: release hour: %w", err)
	}
	hour := 0
	if hh >= 12 {
		hour = 12
	}
	return date, hour, nil
}

// Before reports whether c precedes other in chronological (date, hour)
// order.
func (c Cycle) Before(other Cycle) bool {
	if !c.Date.Equal(other.Date) {
		return c.Date.Before(other.Date)
	}
	return c.Hour < other.Hour
}

// Next returns the cycle exactly +12 hours after c, in the same region.
func (c Cycle) Next() Cycle {
	if c.Hour == 0 {
		return Cycle{Date: c.Date, Hour: 12, Region: c.Region}
	}
	return Cycle{Date: c.Date.AddDate(0, 0, 1), Hour: 0, Region: c.Region}
}

// Watermark is the textual "last_forecast_date" stored in the lockfile,
// format "YYYYMMDDHH".
type Watermark string

// ZeroWatermark is the watermark implied by an absent lockfile.
const ZeroWatermark Watermark = "1970010100"

// ParseWatermark turns a "YYYYMMDDHH" string into a comparable cycle-like
// (date, hour) pair. The region is irrelevant to watermark comparisons.
func ParseWatermark(w Watermark) (time.Time, int, error) {
	s := string(w)
	if len(s) != 10 {
		return time.Time{}, 0, fmt.Errorf("rapidflow: malformed watermark %q", s)
	}
	date, err := time.Parse("2006010215", s)
	if err != nil {
		// time.Parse with layout "2006010215" expects the hour in the last
		// two digits; reparse date and hour separately for robustness.
		date, err = time.Parse("20060102", s[:8])
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("rapidflow: malformed watermark date %q: %w", s, err)
		}
		hh, herr := strconv.Atoi(s[8:])
		if herr != nil {
			return time.Time{}, 0, fmt.Errorf("rapidflow: malformed watermark hour %q: %w", s, herr)
		}
		return date, hh, nil
	}
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC), date.Hour(), nil
}

// Canonical renders a watermark as "YYYYMMDD.H" for comparison against
// Cycle.Canonical.
func (w Watermark) Canonical() (string, error) {
	date, hour, err := ParseWatermark(w)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%d", date.Format("20060102"), hour), nil
}

// FromCycle renders a cycle as a "YYYYMMDDHH" watermark.
func FromCycle(c Cycle) Watermark {
	return Watermark(fmt.Sprintf("%s%02d", c.Date.Format("20060102"), c.Hour))
}

// AfterWatermark reports whether c is strictly newer than watermark w.
func (c Cycle) AfterWatermark(w Watermark) (bool, error) {
	date, hour, err := ParseWatermark(w)
	if err != nil {
		return false, err
	}
	if !c.Date.Equal(date) {
		return c.Date.After(date), nil
	}
	return c.Hour > hour, nil
}

// EnsembleMember is an integer ensemble index in [1,52]. 52 is the
// high-resolution deterministic member; 1-51 are low-resolution.
type EnsembleMember int

// IsHighRes reports whether m is the deterministic high-resolution member.
func (m EnsembleMember) IsHighRes() bool { return m == 52 }

// Valid reports whether m is within the supported ensemble range.
func (m EnsembleMember) Valid() bool { return m >= 1 && m <= 52 }

// Resolution is one of the three temporal resolution classes ECMWF emits,
// distinguished by the unique set of successive time-step deltas.
type Resolution int

const (
	// ResolutionUnknown is the zero value; never a valid grid.
	ResolutionUnknown Resolution = iota
	// HighRes has deltas {1,3,6}h and 125 total time points.
	HighRes
	// LowResFull has deltas {3,6}h and 85 total time points.
	LowResFull
	// LowRes has a single 6h delta and 61 total time points.
	LowRes
)

func (r Resolution) String() string {
	switch r {
	case HighRes:
		return "HighRes"
	case LowResFull:
		return "LowResFull"
	case LowRes:
		return "LowRes"
	default:
		return "Unknown"
	}
}

// ExpectedTimeLength is the number of time points a grid of resolution r
// must have.
func (r Resolution) ExpectedTimeLength() int {
	switch r {
	case HighRes:
		return 125
	case LowResFull:
		return 85
	case LowRes:
		return 61
	default:
		return 0
	}
}

// ClassifyDeltas determines the resolution class implied by a sequence of
// successive time-step deltas expressed in hours. An error is returned if
// the deltas do not match any supported class.
func ClassifyDeltas(deltaHours []float64) (Resolution, error) {
	set := map[int]bool{}
	for _, d := range deltaHours {
		set[int(d+0.5)] = true
	}
	switch {
	case keysEqual(set, 1, 3, 6):
		return HighRes, nil
	case keysEqual(set, 3, 6):
		return LowResFull, nil
	case keysEqual(set, 6):
		return LowRes, nil
	default:
		return ResolutionUnknown, fmt.Errorf("rapidflow: unrecognized time-delta set %v", set)
	}
}

func keysEqual(set map[int]bool, keys ...int) bool {
	if len(set) != len(keys) {
		return false
	}
	for _, k := range keys {
		if !set[k] {
			return false
		}
	}
	return true
}
