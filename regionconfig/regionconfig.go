// Package regionconfig loads the operator-supplied region manifest: a
// TOML file naming, per region, the RAPID input files (connectivity,
// weight table, river ID list) and the optional historical/observation
// inputs the Initial-Flow Assimilator and Warning-Point Generator use.
// It is checked-in deployment configuration, decoded the same way
// gridcatalog decodes its own static table.
package regionconfig

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/erdc/rapidflow/assimilate"
	"github.com/erdc/rapidflow/controller"
	"github.com/erdc/rapidflow/cycle"
	"github.com/erdc/rapidflow/routing"
	"github.com/erdc/rapidflow/weighttable"
)

type fileFormat struct {
	Region []regionEntry `toml:"region"`
}

type regionEntry struct {
	Watershed        string  `toml:"watershed"`
	Subbasin         string  `toml:"subbasin"`
	GridTag          string  `toml:"grid_tag"`
	ConnectivityFile string  `toml:"connectivity_file"`
	WeightTableFile  string  `toml:"weight_table_file"`
	RiverIDFile      string  `toml:"river_id_file"`
	SeasonalAverage  string  `toml:"seasonal_average_file"`
	ReturnPeriodFile string  `toml:"return_period_file"`
	LatLonFile       string  `toml:"lat_lon_file"`
	ComidLatLonZFile string  `toml:"comid_lat_lon_z_file"`
	GageFile         string  `toml:"gage_file"`
	WorkDir          string  `toml:"work_dir"`
	OutputDir        string  `toml:"output_dir"`
}

// Load decodes a region manifest at path and builds one fully-populated
// controller.RegionConfig per declared region.
func Load(path string) ([]controller.RegionConfig, error) {
	var ff fileFormat
	if _, err := toml.DecodeFile(path, &ff); err != nil {
		return nil, fmt.Errorf("rapidflow: decoding region manifest %s: %w", path, err)
	}

	var out []controller.RegionConfig
	for _, e := range ff.Region {
		region, err := cycle.ParseRegion(e.Watershed + "-" + e.Subbasin)
		if err != nil {
			return nil, fmt.Errorf("rapidflow: region manifest entry %q/%q: %w", e.Watershed, e.Subbasin, err)
		}

		network, err := loadConnectivity(e.ConnectivityFile)
		if err != nil {
			return nil, fmt.Errorf("rapidflow: region %s: %w", region.String(), err)
		}

		weights, err := weighttable.Load(e.WeightTableFile)
		if err != nil {
			return nil, fmt.Errorf("rapidflow: region %s: %w", region.String(), err)
		}

		var gageStations []assimilate.GageStation
		if e.GageFile != "" {
			naturalFlow, stations, err := loadGageStations(e.GageFile)
			if err != nil {
				return nil, fmt.Errorf("rapidflow: region %s: %w", region.String(), err)
			}
			network.NaturalFlow = naturalFlow
			gageStations = stations
		}

		latLon := map[int64][2]float64{}
		if e.LatLonFile != "" {
			latLon, err = loadLatLon(e.LatLonFile)
			if err != nil {
				return nil, fmt.Errorf("rapidflow: region %s: %w", region.String(), err)
			}
		}

		comidLatLonZ := map[int64][3]float64{}
		if e.ComidLatLonZFile != "" {
			comidLatLonZ, err = loadComidLatLonZ(e.ComidLatLonZFile)
			if err != nil {
				return nil, fmt.Errorf("rapidflow: region %s: %w", region.String(), err)
			}
		}

		returnPeriods := map[int64]controller.ReturnPeriod{}
		if e.ReturnPeriodFile != "" {
			returnPeriods, err = loadReturnPeriods(e.ReturnPeriodFile)
			if err != nil {
				return nil, fmt.Errorf("rapidflow: region %s: %w", region.String(), err)
			}
		}

		out = append(out, controller.RegionConfig{
			Region:  region,
			GridTag: e.GridTag,
			Shared: routing.SharedInputs{
				ConnectivityFile: e.ConnectivityFile,
				WeightTableFile:  e.WeightTableFile,
				RiverIDFile:      e.RiverIDFile,
			},
			Network:         network,
			Weights:         weights,
			RividLatLon:     latLon,
			ComidLatLonZ:    comidLatLonZ,
			SeasonalAverage: e.SeasonalAverage,
			ReturnPeriods:   returnPeriods,
			GageStations:    gageStations,
			WorkDir:         e.WorkDir,
			OutputDir:       e.OutputDir,
		})
	}
	return out, nil
}

// loadConnectivity parses a RAPID rapid_connect.csv: columns are
// COMID, NextDownID, CountUpstreamID, UpstreamID1..UpstreamIDN (zero
// padded to a fixed column count), grounded on
// original_source/imports/assimilate_stream_gage.py's StreamNetworkInitializer.
func loadConnectivity(path string) (*assimilate.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening connectivity file %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	var rivid, downID []int64
	var upIDs [][]int64
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if len(row) < 3 {
			return nil, fmt.Errorf("%s: short row %v", path, row)
		}
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: COMID %q: %w", path, row[0], err)
		}
		down, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: NextDownID %q: %w", path, row[1], err)
		}
		count, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("%s: CountUpstreamID %q: %w", path, row[2], err)
		}
		ups := make([]int64, 0, count)
		for i := 0; i < count && 3+i < len(row); i++ {
			up, err := strconv.ParseInt(row[3+i], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: UpstreamID %q: %w", path, row[3+i], err)
			}
			if up != 0 {
				ups = append(ups, up)
			}
		}
		rivid = append(rivid, id)
		downID = append(downID, down)
		upIDs = append(upIDs, ups)
	}
	if len(rivid) == 0 {
		return nil, fmt.Errorf("%s: no rows", path)
	}
	return assimilate.NewNetwork(rivid, downID, upIDs), nil
}

// loadLatLon parses a simple "rivid,lat,lon" CSV used to geolocate
// warning points.
func loadLatLon(path string) (map[int64][2]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening lat/lon file %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	out := map[int64][2]float64{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if len(row) < 3 {
			continue
		}
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		lat, err1 := strconv.ParseFloat(row[1], 64)
		lon, err2 := strconv.ParseFloat(row[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out[id] = [2]float64{lat, lon}
	}
	return out, nil
}

// loadComidLatLonZ parses a "comid,lat,lon,z" CSV, the optional geolocation
// lookup spec §6 names alongside the other per-region input files. Its
// entries are attached to each member's merged Qout (spec §4.3 step 6).
func loadComidLatLonZ(path string) (map[int64][3]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening comid lat/lon/z file %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	out := map[int64][3]float64{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if len(row) < 4 {
			continue
		}
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		lat, e1 := strconv.ParseFloat(row[1], 64)
		lon, e2 := strconv.ParseFloat(row[2], 64)
		z, e3 := strconv.ParseFloat(row[3], 64)
		if e1 != nil || e2 != nil || e3 != nil {
			continue
		}
		out[id] = [3]float64{lat, lon, z}
	}
	return out, nil
}

// loadGageStations parses usgs_gages.csv (header row skipped; columns
// stream_id/comid, natural_flow, station_id), grounded on
// original_source/imports/assimilate_stream_gage.py's StreamSegment model.
// Every row contributes its natural flow to the returned network-wide
// table; only rows with a non-empty station_id also become a GageStation,
// since a reach can carry a known natural flow without itself being gaged.
func loadGageStations(path string) (map[int64]float64, []assimilate.GageStation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening gage file %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	naturalFlow := map[int64]float64{}
	var stations []assimilate.GageStation
	first := true
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if first {
			first = false
			continue // header row
		}
		if len(row) < 3 {
			continue
		}
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		if natural, err := strconv.ParseFloat(row[1], 64); err == nil && natural > 0 {
			naturalFlow[id] = natural
		}
		stationID := row[2]
		if stationID != "" {
			stations = append(stations, assimilate.GageStation{Rivid: id, StationID: stationID})
		}
	}
	return naturalFlow, stations, nil
}

// loadReturnPeriods parses a "rivid,return_2,return_10,return_20" CSV.
func loadReturnPeriods(path string) (map[int64]controller.ReturnPeriod, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening return period file %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	out := map[int64]controller.ReturnPeriod{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if len(row) < 4 {
			continue
		}
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		r2, e1 := strconv.ParseFloat(row[1], 64)
		r10, e2 := strconv.ParseFloat(row[2], 64)
		r20, e3 := strconv.ParseFloat(row[3], 64)
		if e1 != nil || e2 != nil || e3 != nil {
			continue
		}
		out[id] = controller.ReturnPeriod{Return2: r2, Return10: r10, Return20: r20}
	}
	return out, nil
}
