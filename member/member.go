// Package member runs one ensemble member through the full per-cycle
// pipeline: inflow build, routing (segment by segment for HighRes and
// LowResFull members), and final CF-compliant Qout merge (spec §4.3).
package member

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/erdc/rapidflow/cycle"
	"github.com/erdc/rapidflow/inflow"
	"github.com/erdc/rapidflow/ncutil"
	"github.com/erdc/rapidflow/routing"
	"github.com/erdc/rapidflow/scratch"
)

// State is a point in the member worker's lifecycle (spec §4.3).
type State int

const (
	Pending State = iota
	PreparingInflow
	Routing
	Merging
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case PreparingInflow:
		return "PreparingInflow"
	case Routing:
		return "Routing"
	case Merging:
		return "Merging"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// segmentPlan is the ordered list of (segment, cadence hours) a member of
// resolution r must route through, chaining each segment's final Qout as
// the next segment's Qinit (spec §4.3).
func segmentPlan(r cycle.Resolution) []struct {
	Segment inflow.Segment
	Cadence int
} {
	switch r {
	case cycle.HighRes:
		return []struct {
			Segment inflow.Segment
			Cadence int
		}{
			{inflow.Seg1hr, 1},
			{inflow.Seg3hrSubset, 3},
			{inflow.Seg6hrSubset, 6},
		}
	case cycle.LowResFull:
		return []struct {
			Segment inflow.Segment
			Cadence int
		}{
			{inflow.Seg3hrSubset, 3},
			{inflow.Seg6hrSubset, 6},
		}
	case cycle.LowRes:
		return []struct {
			Segment inflow.Segment
			Cadence int
		}{
			{inflow.SegDefault, 6},
		}
	default:
		return nil
	}
}

// Inputs bundles everything a Worker needs to process one member.
type Inputs struct {
	Cycle          cycle.Cycle
	Member         cycle.EnsembleMember
	Resolution     cycle.Resolution
	GridPath       string
	GridTag        string
	Builder        *inflow.Builder
	Shared         routing.SharedInputs
	Forcing        routing.ForcingSet
	KernelPath     string
	InitialQinit   string // prior plain-text Qinit file, or "" for a zero-initialized run
	WorkDir        string // scratch directory for this member, caller-owned
	OutputQoutPath string // final merged Qout.nc destination
	ComidLatLonZ   map[int64][3]float64 // optional comid -> (lat, lon, z) geolocation lookup
	RunKernel      func(ctx context.Context, inv routing.Invocation, log *logrus.Entry) error
}

// Worker processes one ensemble member through its full segment pipeline.
type Worker struct {
	in    Inputs
	log   *logrus.Entry
	state State
}

// NewWorker constructs a Worker for in, logging under log with member/cycle
// fields attached.
func NewWorker(in Inputs, log *logrus.Entry) *Worker {
	if in.RunKernel == nil {
		in.RunKernel = routing.Run
	}
	return &Worker{
		in:  in,
		log: log.WithFields(logrus.Fields{"cycle": in.Cycle.Canonical(), "region": in.Cycle.Region.String(), "member": int(in.Member), "resolution": in.Resolution.String()}),
		state: Pending,
	}
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State { return w.state }

// Run drives the member through PreparingInflow -> Routing (per segment)
// -> Merging -> Done, registering every intermediate file with reg so the
// caller can clean them up regardless of outcome. On any failure the
// worker transitions to Failed and returns the error; it never panics or
// silently swallows a segment failure (spec §4.6: a single member's
// failure never aborts its siblings, but it must be visible to the
// caller).
func (w *Worker) Run(ctx context.Context, reg *scratch.Registry) error {
	plan := segmentPlan(w.in.Resolution)
	if plan == nil {
		w.state = Failed
		return fmt.Errorf("rapidflow: no segment plan for resolution %s", w.in.Resolution)
	}

	w.state = PreparingInflow
	qinit := w.in.InitialQinit
	var segments []qoutSegment

	for _, step := range plan {
		inflowPath := filepath.Join(w.in.WorkDir, fmt.Sprintf("m3_riv_%s.nc", step.Segment))
		w.log.WithField("segment", step.Segment.String()).Debug("building inflow segment")

		series, err := w.in.Builder.Build(w.in.GridPath, w.in.GridTag, w.in.Resolution, step.Segment)
		if err != nil {
			w.state = Failed
			return fmt.Errorf("rapidflow: member %d segment %s inflow build: %w", w.in.Member, step.Segment, err)
		}
		if err := series.Write(inflowPath); err != nil {
			w.state = Failed
			return fmt.Errorf("rapidflow: member %d segment %s inflow write: %w", w.in.Member, step.Segment, err)
		}
		reg.Add(inflowPath, scratchRemove(inflowPath))

		w.state = Routing
		qoutPath := filepath.Join(w.in.WorkDir, fmt.Sprintf("Qout_%s.nc", step.Segment))
		namelistPath := filepath.Join(w.in.WorkDir, fmt.Sprintf("rapid_namelist_%s", step.Segment))
		nSteps := inflow.ExpectedOutputLength(w.in.Resolution, step.Segment)

		params := routing.ParamsFor(w.in.Resolution, step.Cadence, nSteps, w.in.Shared, qinit, inflowPath, qoutPath, w.in.Forcing)
		if err := routing.RenderNamelist(namelistPath, params); err != nil {
			w.state = Failed
			return fmt.Errorf("rapidflow: member %d segment %s namelist: %w", w.in.Member, step.Segment, err)
		}
		reg.Add(namelistPath, scratchRemove(namelistPath))

		inv := routing.Invocation{ExecutablePath: w.in.KernelPath, NamelistPath: namelistPath, WorkDir: w.in.WorkDir}
		if err := w.in.RunKernel(ctx, inv, w.log); err != nil {
			w.state = Failed
			return fmt.Errorf("rapidflow: member %d segment %s routing: %w", w.in.Member, step.Segment, err)
		}
		reg.Add(qoutPath, scratchRemove(qoutPath))

		qinit = qoutPath // chain this segment's outflow as the next segment's Qinit
		segments = append(segments, qoutSegment{Path: qoutPath, CadenceHours: step.Cadence})
	}

	w.state = Merging
	if err := mergeQout(segments, w.in.Cycle, w.in.ComidLatLonZ, w.in.OutputQoutPath); err != nil {
		w.state = Failed
		return fmt.Errorf("rapidflow: member %d merge: %w", w.in.Member, err)
	}

	w.state = Done
	return nil
}

// qoutSegment names one routed segment's output file and the inflow
// cadence it was routed at, so mergeQout can reconstruct an absolute
// time axis across segments.
type qoutSegment struct {
	Path         string
	CadenceHours int
}

// segmentQout holds one segment's Qout payload after it has been read
// back from disk, ready to be spliced into the merged time axis.
type segmentQout struct {
	nTime        int
	qout         []float32 // row-major [rividIdx*nTime+t]
	cadenceHours int
}

// mergeQout concatenates each routed segment's Qout along the time axis
// and attaches lat/lon/z from the optional comid lookup (spec §4.3 step
// 6). Every segment is assumed to share the same rivid set and ordering
// -- they were all routed from the same region's connectivity/weight
// inputs -- so only the first segment's rivid list is read back. Each
// segment's own time variable reflects a routing run that started its
// internal clock at zero, so the merged axis is reconstructed from the
// cycle's issue time and each segment's cadence rather than trusting
// the segments' raw time values to already be contiguous.
func mergeQout(segments []qoutSegment, cyc cycle.Cycle, comidLatLonZ map[int64][3]float64, dst string) error {
	if len(segments) == 0 {
		return fmt.Errorf("rapidflow: no routed segments to merge into %s", dst)
	}

	var rivid []int32
	var segs []segmentQout
	nRivid := 0

	for i, seg := range segments {
		ff, f, err := ncutil.Open(seg.Path)
		if err != nil {
			return fmt.Errorf("opening routed Qout %s: %w", seg.Path, err)
		}
		if !ncutil.HasVariable(f, "Qout") {
			ff.Close()
			return fmt.Errorf("routed output %s has no Qout variable", seg.Path)
		}
		lens, err := ncutil.Lengths(f, "Qout")
		if err != nil {
			ff.Close()
			return err
		}
		if len(lens) != 2 {
			ff.Close()
			return fmt.Errorf("Qout in %s has %d dims, want 2", seg.Path, len(lens))
		}
		nR, nT := lens[0], lens[1]
		if i == 0 {
			nRivid = nR
			rivid, err = ncutil.ReadInt32(f, "rivid", []int{0}, []int{nR})
			if err != nil {
				ff.Close()
				return err
			}
		} else if nR != nRivid {
			ff.Close()
			return fmt.Errorf("segment %s has %d reaches, want %d from first segment", seg.Path, nR, nRivid)
		}
		qout, err := ncutil.ReadFloat32(f, "Qout", []int{0, 0}, []int{nR, nT})
		ff.Close()
		if err != nil {
			return err
		}
		segs = append(segs, segmentQout{nTime: nT, qout: qout, cadenceHours: seg.CadenceHours})
	}

	totalTime := 0
	for _, sd := range segs {
		totalTime += sd.nTime
	}

	merged := make([]float32, nRivid*totalTime)
	for r := 0; r < nRivid; r++ {
		col := 0
		for _, sd := range segs {
			for t := 0; t < sd.nTime; t++ {
				merged[r*totalTime+col] = sd.qout[r*sd.nTime+t]
				col++
			}
		}
	}

	startSecs := cyc.Date.Unix() + int64(cyc.Hour)*3600
	var elapsed int64
	mergedTime := make([]int32, 0, totalTime)
	for _, sd := range segs {
		cadenceSecs := int64(sd.cadenceHours) * 3600
		for t := 0; t < sd.nTime; t++ {
			elapsed += cadenceSecs
			mergedTime = append(mergedTime, int32(startSecs+elapsed))
		}
	}

	lat := make([]float64, nRivid)
	lon := make([]float64, nRivid)
	z := make([]float64, nRivid)
	for i, id := range rivid {
		if v, ok := comidLatLonZ[int64(id)]; ok {
			lat[i], lon[i], z[i] = v[0], v[1], v[2]
		}
	}

	w := &ncutil.QoutWriter{Rivid: rivid, Lat: lat, Lon: lon, Z: z}
	return w.Write(dst, mergedTime, merged)
}

func scratchRemove(path string) func() {
	return func() {
		removeIfExists(path)
	}
}

func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).WithField("path", path).Warn("failed to clean up scratch file")
	}
}
