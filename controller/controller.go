// Package controller implements the Forecast-Cycle Controller (spec
// §4.6): the top-level state machine that discovers pending upstream
// cycles, fans each one out across regions and ensemble members via a
// Dispatcher, assimilates the next cycle's initial flows, generates
// warnings, and durably advances the watermark.
package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/erdc/rapidflow/assimilate"
	"github.com/erdc/rapidflow/cycle"
	"github.com/erdc/rapidflow/diagnostics"
	"github.com/erdc/rapidflow/dispatch"
	"github.com/erdc/rapidflow/gridcatalog"
	"github.com/erdc/rapidflow/inflow"
	"github.com/erdc/rapidflow/lockfile"
	"github.com/erdc/rapidflow/measure"
	"github.com/erdc/rapidflow/member"
	"github.com/erdc/rapidflow/objectstore"
	"github.com/erdc/rapidflow/rferrors"
	"github.com/erdc/rapidflow/routing"
	"github.com/erdc/rapidflow/scratch"
	"github.com/erdc/rapidflow/warning"
	"github.com/erdc/rapidflow/weighttable"
)

// State is a point in the controller's lifecycle (spec §4.6).
type State int

const (
	Idle State = iota
	Locked
	Processing
	Advancing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Locked:
		return "Locked"
	case Processing:
		return "Processing"
	case Advancing:
		return "Advancing"
	default:
		return "Unknown"
	}
}

// ReturnPeriod holds one reach's three warning thresholds (spec §4.5).
type ReturnPeriod struct {
	Return2, Return10, Return20 float64
}

// RegionConfig is one region's fixed per-cycle inputs: everything the
// controller needs to build inflow, route, assimilate, and warn for that
// region, independent of which cycle is being processed.
type RegionConfig struct {
	Region          cycle.Region
	GridTag         string
	Shared          routing.SharedInputs
	Network         *assimilate.Network
	Weights         *weighttable.Table
	RividLatLon     map[int64][2]float64 // rivid -> (lat, lon), for warning-point geometry
	ComidLatLonZ    map[int64][3]float64 // comid -> (lat, lon, z), for the merged Qout's geolocation attributes
	SeasonalAverage string               // path to the historical seasonal-average NetCDF, or "" if unavailable
	ReturnPeriods   map[int64]ReturnPeriod
	GageStations    []assimilate.GageStation // reaches to fetch live flow for and correct (spec §4.4, §6)
	WorkDir         string
	OutputDir       string
}

// Config bundles everything one controller invocation needs.
type Config struct {
	LockfilePath string
	Source       objectstore.Source
	KernelPath   string
	Regions      []RegionConfig
	Dispatcher   dispatch.Backend
	Catalog      *gridcatalog.Catalog
	DownloadDir  string
	// OutputBucket optionally mirrors each cycle's published artifacts
	// (Qout, warning GeoJSON, diagnostic plots) to remote object storage;
	// nil disables mirroring and leaves artifacts only in RegionConfig.OutputDir.
	OutputBucket *objectstore.Bucket
	// Measure fetches each gage station's current flow for correction; nil
	// disables gage correction entirely even if regions declare stations.
	Measure *measure.Client
	Log     *logrus.Entry
}

// Controller drives exactly one call to Run through the state machine.
type Controller struct {
	cfg   Config
	state State
}

// New builds a Controller for cfg.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg, state: Idle}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State { return c.state }

// Run executes the full invocation protocol of spec §4.6: acquire the
// lock, discover pending cycles, process each in chronological order, and
// release the lock. ErrLockHeld is returned (not wrapped further) when
// another instance already owns the lockfile -- callers should treat that
// as a clean, non-fatal exit, per step 1 of the protocol.
func (c *Controller) Run(ctx context.Context) error {
	info, err := lockfile.Acquire(c.cfg.LockfilePath)
	if err != nil {
		return err
	}
	c.state = Locked
	watermark := info.LastForecastDate
	released := false
	release := func(w cycle.Watermark) {
		if released {
			return
		}
		if err := lockfile.Release(c.cfg.LockfilePath, w); err != nil {
			c.cfg.Log.WithError(err).Error("failed to release lockfile")
		}
		released = true
		c.state = Idle
	}
	defer func() { release(watermark) }()

	releases, err := c.cfg.Source.List(ctx)
	if err != nil {
		return err
	}

	var pending []objectstore.Release
	for _, r := range releases {
		date, hour, err := cycle.ParseRelease(r.Name)
		if err != nil {
			c.cfg.Log.WithField("release", r.Name).Warn("ignoring release with unparseable name")
			continue
		}
		cyc := cycle.Cycle{Date: date, Hour: hour}
		after, err := cyc.AfterWatermark(watermark)
		if err != nil {
			return err
		}
		if after {
			pending = append(pending, r)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Name < pending[j].Name })

	if len(pending) == 0 {
		c.cfg.Log.Debug("no cycles newer than watermark; nothing to do")
		return nil
	}

	if err := c.seasonalInit(pending[0]); err != nil {
		c.cfg.Log.WithError(err).Warn("seasonal init preamble failed; regions without a prior Qinit start from zero")
	}

	for _, rel := range pending {
		date, hour, _ := cycle.ParseRelease(rel.Name)
		cyc := cycle.Cycle{Date: date, Hour: hour}
		c.state = Processing
		log := c.cfg.Log.WithField("cycle", cyc.Canonical())

		if err := c.processCycle(ctx, cyc, rel, log); err != nil {
			log.WithError(err).Error("cycle processing failed; watermark will not advance past the last completed cycle")
			break
		}

		c.state = Advancing
		watermark = cycle.FromCycle(cyc)
		if err := lockfile.Write(c.cfg.LockfilePath, lockfile.Info{Running: true, LastForecastDate: watermark}); err != nil {
			log.WithError(err).Error("failed to persist advancing watermark")
			break
		}
		log.Info("cycle complete")
	}

	return nil
}

// seasonalInit runs Strategy B for any region that has no Qinit yet ahead
// of the earliest pending cycle (spec §4.6 step 4).
func (c *Controller) seasonalInit(first objectstore.Release) error {
	date, _, err := cycle.ParseRelease(first.Name)
	if err != nil {
		return err
	}
	for _, rc := range c.cfg.Regions {
		qinitPath := filepath.Join(rc.WorkDir, "Qinit_current.csv")
		if info, err := os.Stat(qinitPath); err == nil && info.Size() > 0 {
			continue
		}
		if rc.SeasonalAverage == "" {
			continue
		}
		flows, err := assimilate.SeasonalAverage(rc.SeasonalAverage, date, rc.Network)
		if err != nil {
			c.cfg.Log.WithError(err).WithField("region", rc.Region.String()).Warn("seasonal init unavailable for region")
			continue
		}
		if err := assimilate.WriteQinit(qinitPath, rc.Network, flows); err != nil {
			return err
		}
	}
	return nil
}

// processCycle runs steps 5a-5d of the invocation protocol for one cycle:
// download+extract, per-region member dispatch, warning generation, and
// next-cycle Qinit assimilation.
func (c *Controller) processCycle(ctx context.Context, cyc cycle.Cycle, rel objectstore.Release, log *logrus.Entry) error {
	archivePath := filepath.Join(c.cfg.DownloadDir, rel.Name)
	if err := c.cfg.Source.Download(ctx, rel, archivePath); err != nil {
		return err
	}
	extractDir := filepath.Join(c.cfg.DownloadDir, cyc.Canonical())
	members, err := extractReleaseMembers(archivePath, extractDir)
	if err != nil {
		return fmt.Errorf("%w: extracting %s: %v", rferrors.ErrUpstreamUnavailable, archivePath, err)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Size > members[j].Size })

	for _, rc := range c.cfg.Regions {
		regionCyc := cyc
		regionCyc.Region = rc.Region
		if err := c.processRegion(ctx, regionCyc, rc, members, log.WithField("region", rc.Region.String())); err != nil {
			log.WithError(err).WithField("region", rc.Region.String()).Warn("region failed; continuing with remaining regions")
			continue
		}
	}
	return nil
}

func (c *Controller) processRegion(ctx context.Context, cyc cycle.Cycle, rc RegionConfig, members []memberGridFile, log *logrus.Entry) error {
	builder := inflow.NewBuilder(rc.Weights, c.cfg.Catalog)
	qinitPath := filepath.Join(rc.WorkDir, "Qinit_current.csv")

	if len(rc.GageStations) > 0 && c.cfg.Measure != nil {
		observations := c.fetchGageObservations(ctx, cyc, rc, log)
		if len(observations) > 0 {
			if err := applyCorrector(qinitPath, rc, observations); err != nil {
				log.WithError(err).Warn("gage correction skipped")
			}
		}
	}

	reg := scratch.New()
	defer reg.CleanupAll()

	jobs := make([]dispatch.Job, 0, len(members))
	qoutPaths := make([]string, len(members))
	for i, mf := range members {
		i, mf := i, mf
		outPath := filepath.Join(rc.OutputDir, fmt.Sprintf("Qout_%s_%d.nc", cyc.Canonical(), mf.Member))
		qoutPaths[i] = outPath
		jobs = append(jobs, dispatch.Job{
			Name: fmt.Sprintf("%s-m%d", cyc.Canonical(), mf.Member),
			Run: func(ctx context.Context) error {
				resolution, rerr := classifyMemberGrid(mf.Path)
				if rerr != nil {
					return rerr
				}
				in := member.Inputs{
					Cycle:          cyc,
					Member:         mf.Member,
					Resolution:     resolution,
					GridPath:       mf.Path,
					GridTag:        rc.GridTag,
					Builder:        builder,
					Shared:         rc.Shared,
					InitialQinit:   qinitPath,
					WorkDir:        filepath.Join(rc.WorkDir, fmt.Sprintf("member_%d", mf.Member)),
					OutputQoutPath: outPath,
					ComidLatLonZ:   rc.ComidLatLonZ,
					KernelPath:     c.cfg.KernelPath,
				}
				w := member.NewWorker(in, log)
				return w.Run(ctx, reg)
			},
		})
	}

	outcomes, err := c.cfg.Dispatcher.Dispatch(ctx, jobs)
	if err != nil {
		return fmt.Errorf("rapidflow: dispatching region %s: %w", rc.Region.String(), err)
	}

	stats := dispatch.NewStats()
	stats.RecordAll(outcomes)
	mean, stddev, max := stats.Summary()
	log.WithFields(logrus.Fields{"mean_s": mean, "stddev_s": stddev, "max_s": max}).Info("member dispatch complete")

	var successfulMembers []assimilate.StrategyAInputs
	var successfulQout []string
	for i, o := range outcomes {
		if o.Err != nil {
			log.WithError(o.Err).WithField("job", o.Name).Warn("member job failed; skipping")
			continue
		}
		successfulQout = append(successfulQout, qoutPaths[i])
		successfulMembers = append(successfulMembers, assimilate.StrategyAInputs{Member: int(members[i].Member), QoutPath: qoutPaths[i]})
	}

	if c.cfg.OutputBucket != nil {
		for _, path := range successfulQout {
			c.mirrorToBucket(ctx, rc.Region, path, log)
		}
	}

	if len(rc.ReturnPeriods) > 0 && len(successfulQout) > 0 {
		written, err := generateWarnings(successfulQout, rc, cyc, log)
		if err != nil {
			log.WithError(err).Warn("warning generation failed")
		}
		if c.cfg.OutputBucket != nil {
			for _, path := range written {
				c.mirrorToBucket(ctx, rc.Region, path, log)
			}
		}
	}

	if len(successfulMembers) > 0 {
		nextQinit, warnings := assimilate.EnsembleMean(rc.Network, successfulMembers)
		for _, w := range warnings {
			log.WithError(w).Debug("member excluded from ensemble-mean Qinit")
		}
		if err := assimilate.WriteQinit(qinitPath, rc.Network, nextQinit); err != nil {
			log.WithError(err).Error("failed to write next-cycle Qinit")
		}
	}

	return nil
}

// applyCorrector overlays gage observations onto the region's current
// Qinit (spec §4.6 step 5c, "If gage correction is enabled and a
// prior-cycle Qinit exists"). The prior Qinit is read back into the flows
// map the corrector mutates, so a gaged reach's neighbors are nudged from
// their actual carried-over initial flow rather than from zero.
func applyCorrector(qinitPath string, rc RegionConfig, observations []assimilate.GageObservation) error {
	info, err := os.Stat(qinitPath)
	if err != nil || info.Size() == 0 {
		return nil // nothing to correct yet
	}
	flows, err := assimilate.ReadQinit(qinitPath, rc.Network)
	if err != nil {
		return err
	}
	corrector := assimilate.NewCorrector(rc.Network)
	corrector.Apply(flows, observations)
	return assimilate.WriteQinit(qinitPath, rc.Network, flows)
}

// fetchGageObservations resolves rc.GageStations into live GageObservations
// by querying c.cfg.Measure for each station's current flow (spec §4.4,
// §6). A station whose fetch fails is logged and skipped rather than
// aborting the whole region's correction.
func (c *Controller) fetchGageObservations(ctx context.Context, cyc cycle.Cycle, rc RegionConfig, log *logrus.Entry) []assimilate.GageObservation {
	cycleStart := cyc.Date.Add(time.Duration(cyc.Hour) * time.Hour)
	observations := make([]assimilate.GageObservation, 0, len(rc.GageStations))
	for _, station := range rc.GageStations {
		flow, err := c.cfg.Measure.Flow(ctx, station.StationID, cycleStart)
		if err != nil {
			log.WithError(err).WithField("station", station.StationID).Warn("failed to fetch gage flow; reach excluded from correction")
			continue
		}
		observations = append(observations, assimilate.GageObservation{
			Rivid:       station.Rivid,
			StationFlow: flow,
			NaturalFlow: rc.Network.NaturalFlow[station.Rivid],
		})
	}
	return observations
}

// generateWarnings reads back each member's merged Qout, collapses it to
// daily peaks, computes the ensemble mean/upper envelope per reach, and
// emits one GeoJSON file per tier plus a best-effort hydrograph plot
// (spec §4.5, §4.6 "4.6 Addition": diagnostics.Render after warning
// generation).
func generateWarnings(qoutPaths []string, rc RegionConfig, cyc cycle.Cycle, log *logrus.Entry) ([]string, error) {
	seriesByRivid, hours, err := readMemberSeries(qoutPaths)
	if err != nil {
		return nil, err
	}
	var written []string

	var allPoints []warning.Point
	var sample *warning.ReachSeries
	for rivid, memberSeries := range seriesByRivid {
		rp, ok := rc.ReturnPeriods[rivid]
		if !ok {
			continue
		}
		latLon := rc.RividLatLon[rivid]
		dayBoundaries := dailyBoundaries(hours)
		dailyPeaks := make([][]float64, len(memberSeries))
		for m, s := range memberSeries {
			dailyPeaks[m] = warning.DailyPeaks(s, dayBoundaries)
		}
		mean, upper := warning.EnsembleStats(dailyPeaks)
		points := warning.GeneratePoints(rivid, latLon[0], latLon[1], mean, upper, rp.Return2, rp.Return10, rp.Return20)
		allPoints = append(allPoints, points...)

		if sample == nil {
			sample = &warning.ReachSeries{Rivid: rivid, Lat: latLon[0], Lon: latLon[1], Values: memberSeries}
		}
	}

	for _, tier := range []warning.Tier{warning.TierReturn2, warning.TierReturn10, warning.TierReturn20} {
		outPath := filepath.Join(rc.OutputDir, fmt.Sprintf("warnings_%s_%s.geojson", cyc.Canonical(), tierName(tier)))
		if err := warning.WriteGeoJSON(outPath, allPoints, tier); err != nil {
			log.WithError(err).WithField("tier", tierName(tier)).Warn("failed to write warning tier")
			continue
		}
		written = append(written, outPath)
	}

	if sample != nil {
		mean, upper := warning.EnsembleStats(sample.Values)
		hydroPath := filepath.Join(rc.OutputDir, fmt.Sprintf("hydrograph_%s.png", cyc.Canonical()))
		diagnostics.Render(diagnostics.Hydrograph{
			Rivid:      sample.Rivid,
			Hours:      hours,
			Mean:       mean,
			UpperBound: upper,
		}, hydroPath, log)
		written = append(written, hydroPath)
	}
	return written, nil
}

// mirrorToBucket uploads a local output artifact to the configured output
// bucket under "<region>/<basename>", logging rather than failing the
// cycle on an upload error -- publishing is best-effort, same as
// diagnostics.Render's hydrograph rendering.
func (c *Controller) mirrorToBucket(ctx context.Context, region cycle.Region, localPath string, log *logrus.Entry) {
	key := region.String() + "/" + filepath.Base(localPath)
	if err := c.cfg.OutputBucket.UploadFile(ctx, key, localPath); err != nil {
		log.WithError(err).WithField("key", key).Warn("failed to mirror output artifact to output bucket")
	}
}

func tierName(t warning.Tier) string {
	switch t {
	case warning.TierReturn2:
		return "return2"
	case warning.TierReturn10:
		return "return10"
	case warning.TierReturn20:
		return "return20"
	default:
		return "none"
	}
}

// dailyBoundaries buckets an hourly time axis into calendar-day start
// indices for warning.DailyPeaks (24 forecast hours per day).
func dailyBoundaries(hours []float64) []int {
	var bounds []int
	for i, h := range hours {
		if i == 0 || int(h)%24 == 0 {
			bounds = append(bounds, i)
		}
	}
	if len(bounds) == 0 {
		bounds = []int{0}
	}
	return bounds
}
