package controller

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/erdc/rapidflow/cycle"
	"github.com/erdc/rapidflow/ncutil"
)

// memberGridFile is one discovered member's grid input, after extracting
// the cycle's upstream release.
type memberGridFile struct {
	Member cycle.EnsembleMember
	Path   string
	Size   int64
}

// extractReleaseMembers unpacks a release archive (tar or tar.gz) into
// destDir and returns one memberGridFile per "<member>.Runoff.nc"-style
// entry found inside, largest-first ordering left to the caller (spec
// §4.6 step 5b).
func extractReleaseMembers(archivePath, destDir string) ([]memberGridFile, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating extraction directory %s: %w", destDir, err)
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", archivePath, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(archivePath, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream of %s: %w", archivePath, err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	var members []memberGridFile
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar entries of %s: %w", archivePath, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Base(hdr.Name)
		m, ok := ensembleNumberFromForecast(name)
		if !ok {
			continue
		}
		destPath := filepath.Join(destDir, name)
		out, err := os.Create(destPath)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", destPath, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return nil, fmt.Errorf("extracting %s: %w", destPath, err)
		}
		out.Close()
		members = append(members, memberGridFile{Member: cycle.EnsembleMember(m), Path: destPath, Size: hdr.Size})
	}
	return members, nil
}

// ensembleNumberFromForecast extracts the ensemble member number encoded
// in a grid forecast file name, supporting both the legacy
// "20151112.00.1.205.runoff.grib.runoff.netcdf" layout and the current
// "52.Runoff.nc" layout (grounded on
// original_source/imports/helper_functions.go's get_ensemble_number_from_forecast).
func ensembleNumberFromForecast(name string) (int, bool) {
	parts := strings.Split(name, ".")
	if len(parts) == 0 {
		return 0, false
	}
	var field string
	if strings.HasSuffix(name, ".205.runoff.grib.runoff.netcdf") && len(parts) > 2 {
		field = parts[2]
	} else {
		field = parts[0]
	}
	n, err := strconv.Atoi(field)
	if err != nil || n < 1 || n > 52 {
		return 0, false
	}
	return n, true
}

// classifyMemberGrid opens a member's grid file just long enough to read
// its time coordinate and classify its resolution class from the
// successive time-step deltas (spec §3's GridForecast.Resolution).
func classifyMemberGrid(path string) (cycle.Resolution, error) {
	ff, f, err := ncutil.Open(path)
	if err != nil {
		return cycle.ResolutionUnknown, err
	}
	defer ff.Close()

	lens, err := ncutil.Lengths(f, "time")
	if err != nil {
		return cycle.ResolutionUnknown, fmt.Errorf("reading time dimension of %s: %w", path, err)
	}
	if len(lens) != 1 || lens[0] < 2 {
		return cycle.ResolutionUnknown, fmt.Errorf("grid %s has an unusable time axis", path)
	}
	times, err := ncutil.ReadFloat64(f, "time", []int{0}, []int{lens[0]})
	if err != nil {
		return cycle.ResolutionUnknown, err
	}
	deltas := make([]float64, len(times)-1)
	for i := 1; i < len(times); i++ {
		deltas[i-1] = (times[i] - times[i-1]) / 3600.0
	}
	return cycle.ClassifyDeltas(deltas)
}

// readMemberSeries reads back every member's merged Qout and returns, per
// rivid, the discharge series for each member (member-major, matching
// warning.ReachSeries.Values), plus the shared forecast-hour time axis.
func readMemberSeries(qoutPaths []string) (map[int64][][]float64, []float64, error) {
	seriesByRivid := map[int64][][]float64{}
	var hours []float64

	for _, path := range qoutPaths {
		ff, f, err := ncutil.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", path, err)
		}
		lens, err := ncutil.Lengths(f, "Qout")
		if err != nil {
			ff.Close()
			return nil, nil, err
		}
		nRivid, nTime := lens[0], lens[1]

		rivid, err := ncutil.ReadInt32(f, "rivid", []int{0}, []int{nRivid})
		if err != nil {
			ff.Close()
			return nil, nil, err
		}
		qout, err := ncutil.ReadFloat32(f, "Qout", []int{0, 0}, []int{nRivid, nTime})
		if err != nil {
			ff.Close()
			return nil, nil, err
		}

		if hours == nil {
			timeSecs, err := ncutil.ReadInt32(f, "time", []int{0}, []int{nTime})
			if err == nil {
				hours = make([]float64, nTime)
				base := timeSecs[0]
				for i, t := range timeSecs {
					hours[i] = float64(t-base) / 3600.0
				}
			}
		}
		ff.Close()

		for i, id := range rivid {
			row := make([]float64, nTime)
			for t := 0; t < nTime; t++ {
				row[t] = float64(qout[i*nTime+t])
			}
			seriesByRivid[int64(id)] = append(seriesByRivid[int64(id)], row)
		}
	}
	return seriesByRivid, hours, nil
}
