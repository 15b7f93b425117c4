// Package assimilate computes the Qinit (initial flow) file that seeds a
// region's next forecast cycle, by one of two strategies, and applies
// gage-based error correction on top of either (spec §4.4).
package assimilate

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/erdc/rapidflow/ncutil"
	"github.com/erdc/rapidflow/rferrors"
)

// Network is the routing topology a region assimilates flows over:
// per-reach downstream id and upstream ids, from the RAPID connectivity
// file, indexed the same way as Qinit output (file row order).
type Network struct {
	Rivid       []int64
	DownID      []int64
	UpIDs       [][]int64
	NaturalFlow map[int64]float64 // rivid -> long-term natural (unregulated) flow, where known
	indexOf     map[int64]int
}

// NewNetwork indexes rivid for fast lookups used by the Corrector.
func NewNetwork(rivid, downID []int64, upIDs [][]int64) *Network {
	idx := make(map[int64]int, len(rivid))
	for i, id := range rivid {
		idx[id] = i
	}
	return &Network{Rivid: rivid, DownID: downID, UpIDs: upIDs, indexOf: idx}
}

func (n *Network) indexFor(id int64) (int, bool) {
	i, ok := n.indexOf[id]
	return i, ok
}

// MemberPredictionSample describes which time index to pull from one
// member's already-merged Qout when averaging initial flows (spec §4.4
// Strategy A): the high-resolution member samples a different index than
// the 51 perturbed members, and both depend on whether the Qout carries
// the CF "time=0 padding" added during the merge.
func MemberPredictionSample(member int, timeLength int) int {
	if member == 52 {
		if timeLength == 125 {
			return 12
		}
		return 2
	}
	if timeLength == 85 {
		return 4
	}
	return 2
}

// StrategyAInputs is one ensemble member's merged Qout path plus its
// member index, used by EnsembleMean.
type StrategyAInputs struct {
	Member   int
	QoutPath string
}

// EnsembleMean computes Strategy A: the per-reach mean, across all
// supplied members, of each member's Qout at its resolution-appropriate
// sample time index. Members whose file can't be read are skipped with a
// warning rather than aborting the whole average, matching the original's
// best-effort per-file try/except.
func EnsembleMean(network *Network, members []StrategyAInputs) (map[int64]float64, []error) {
	sums := make(map[int64]float64, len(network.Rivid))
	counts := make(map[int64]int, len(network.Rivid))
	var warnings []error

	for _, m := range members {
		vals, err := readMemberSample(network, m)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("member %d: %w", m.Member, err))
			continue
		}
		for id, v := range vals {
			sums[id] += v
			counts[id]++
		}
	}

	out := make(map[int64]float64, len(network.Rivid))
	for _, id := range network.Rivid {
		if counts[id] > 0 {
			out[id] = sums[id] / float64(counts[id])
		} else {
			out[id] = 0
		}
	}
	return out, warnings
}

func readMemberSample(network *Network, m StrategyAInputs) (map[int64]float64, error) {
	ff, f, err := ncutil.Open(m.QoutPath)
	if err != nil {
		return nil, err
	}
	defer ff.Close()

	lens, err := ncutil.Lengths(f, "Qout")
	if err != nil {
		return nil, err
	}
	nRivid, nTime := lens[0], lens[1]
	sampleT := MemberPredictionSample(m.Member, nTime)
	if sampleT >= nTime {
		return nil, fmt.Errorf("sample index %d out of range for time length %d", sampleT, nTime)
	}

	rivid, err := ncutil.ReadInt32(f, "rivid", []int{0}, []int{nRivid})
	if err != nil {
		return nil, err
	}
	col, err := ncutil.ReadFloat32(f, "Qout", []int{0, sampleT}, []int{nRivid, 1})
	if err != nil {
		return nil, err
	}

	out := make(map[int64]float64, nRivid)
	for i, id := range rivid {
		out[int64(id)] = float64(col[i])
	}
	return out, nil
}

// DayOfYearIndex returns the 0-based seasonal-average column index for t,
// adjusting for the leap-day shift the seasonal average file encodes:
// post-Feb-29 indices in a leap year are shifted back by one so a
// 365-column average file lines up with both leap and non-leap years
// (spec §4.4 Strategy B).
func DayOfYearIndex(t time.Time) int {
	yday := t.YearDay() - 1
	if isLeap(t.Year()) && yday > 59 {
		yday--
	}
	return yday
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// SeasonalAverage computes Strategy B: for each reach, the seasonal
// average_flow value at t's day-of-year column in the seasonal average
// NetCDF at path. The file's average_flow variable has shape
// (rivid, day_of_year); a file built with a singleton time dimension
// instead is squeezed on read.
func SeasonalAverage(path string, t time.Time, network *Network) (map[int64]float64, error) {
	ff, f, err := ncutil.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rferrors.ErrAssimilationMissingInputs, err)
	}
	defer ff.Close()

	lens, err := ncutil.Lengths(f, "average_flow")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rferrors.ErrAssimilationMissingInputs, err)
	}
	if len(lens) == 3 && lens[1] == 1 {
		// (rivid, time=1, day_of_year): squeeze the singleton time axis.
		lens = []int{lens[0], lens[2]}
	}
	if len(lens) != 2 {
		return nil, fmt.Errorf("%w: average_flow in %s has unexpected shape %v", rferrors.ErrAssimilationMissingInputs, path, lens)
	}
	nRivid, nDays := lens[0], lens[1]
	dayIdx := DayOfYearIndex(t)
	if dayIdx >= nDays {
		dayIdx = nDays - 1
	}

	rivid, err := ncutil.ReadInt32(f, "rivid", []int{0}, []int{nRivid})
	if err != nil {
		return nil, err
	}
	col, err := ncutil.ReadFloat32(f, "average_flow", []int{0, dayIdx}, []int{nRivid, 1})
	if err != nil {
		return nil, err
	}

	out := make(map[int64]float64, len(network.Rivid))
	for i, id := range rivid {
		out[int64(id)] = float64(col[i])
	}
	return out, nil
}

// ReadQinit reads a plain-text Qinit file written by WriteQinit back into a
// rivid-keyed map, in network.Rivid order. A missing or empty file returns
// an empty map rather than an error, since a region's first cycle has no
// prior Qinit to read.
func ReadQinit(path string, network *Network) (map[int64]float64, error) {
	out := make(map[int64]float64, len(network.Rivid))
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rapidflow: opening %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for i := 0; sc.Scan() && i < len(network.Rivid); i++ {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("rapidflow: %s line %d: %w", path, i+1, err)
		}
		out[network.Rivid[i]] = v
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("rapidflow: reading %s: %w", path, err)
	}
	return out, nil
}

// WriteQinit writes flows (keyed by rivid, defaulting to 0 for any reach
// missing from the map) to a plain-text Qinit file, one value per line in
// network.Rivid order -- the format RAPID's BS_opt_Qinit reads. The write
// goes to a temp file in the same directory and is renamed into place so
// a crash mid-write never leaves a half-written Qinit behind.
func WriteQinit(path string, network *Network, flows map[int64]float64) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("rapidflow: creating %s: %w", tmp, err)
	}
	for _, id := range network.Rivid {
		v := flows[id]
		if _, err := f.WriteString(strconv.FormatFloat(v, 'g', -1, 64) + "\n"); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("rapidflow: writing %s: %w", tmp, err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rapidflow: closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rapidflow: renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}
