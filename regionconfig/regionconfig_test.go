package regionconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLoadConnectivityParsesUpstreamPadding(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rapid_connect.csv")
	writeFile(t, path, "1,2,0,0,0\n2,3,1,1,0\n3,0,1,2,0\n")

	network, err := loadConnectivity(path)
	if err != nil {
		t.Fatalf("loadConnectivity: %v", err)
	}
	if len(network.Rivid) != 3 {
		t.Fatalf("got %d reaches, want 3", len(network.Rivid))
	}
	if network.DownID[0] != 2 || network.DownID[2] != 0 {
		t.Errorf("DownID = %v, want [2 3 0]", network.DownID)
	}
	if len(network.UpIDs[1]) != 1 || network.UpIDs[1][0] != 1 {
		t.Errorf("UpIDs[1] = %v, want [1] (zero padding stripped)", network.UpIDs[1])
	}
}

func TestLoadLatLonSkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latlon.csv")
	writeFile(t, path, "1,30.5,-97.2\nbad,row\n2,31.0,-98.0\n")

	out, err := loadLatLon(path)
	if err != nil {
		t.Fatalf("loadLatLon: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2 (malformed row skipped)", len(out))
	}
	if out[1][0] != 30.5 || out[1][1] != -97.2 {
		t.Errorf("out[1] = %v, want [30.5 -97.2]", out[1])
	}
}

func TestLoadReturnPeriodsParsesThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "return_periods.csv")
	writeFile(t, path, "1,100,250,400\n2,50,120,200\n")

	out, err := loadReturnPeriods(path)
	if err != nil {
		t.Fatalf("loadReturnPeriods: %v", err)
	}
	if out[1].Return2 != 100 || out[1].Return10 != 250 || out[1].Return20 != 400 {
		t.Errorf("out[1] = %+v, want {100 250 400}", out[1])
	}
}

func TestLoadGageStationsSeparatesNaturalFlowFromStations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usgs_gages.csv")
	writeFile(t, path, "stream_id,natural_flow,station_id\n1,100,08158000\n2,40,\n3,,\n")

	naturalFlow, stations, err := loadGageStations(path)
	if err != nil {
		t.Fatalf("loadGageStations: %v", err)
	}
	if len(naturalFlow) != 2 || naturalFlow[1] != 100 || naturalFlow[2] != 40 {
		t.Errorf("naturalFlow = %v, want {1:100 2:40}", naturalFlow)
	}
	if len(stations) != 1 || stations[0].Rivid != 1 || stations[0].StationID != "08158000" {
		t.Errorf("stations = %v, want [{1 08158000}] (reach 2 has a natural flow but no station)", stations)
	}
}

func TestLoadRegionManifest(t *testing.T) {
	dir := t.TempDir()
	connectPath := filepath.Join(dir, "rapid_connect.csv")
	writeFile(t, connectPath, "1,0,0,0,0\n")
	weightPath := filepath.Join(dir, "weight.csv")
	writeFile(t, weightPath, "StreamID,area_sqm,lon_index,lat_index,npoints\n1,1000,2,3,1\n")

	manifestPath := filepath.Join(dir, "regions.toml")
	writeFile(t, manifestPath, `
[[region]]
watershed = "nfie"
subbasin = "huc2_12"
grid_tag = "tco639"
connectivity_file = "`+connectPath+`"
weight_table_file = "`+weightPath+`"
work_dir = "/tmp/rapidflow/nfie"
output_dir = "/tmp/rapidflow/nfie/output"
`)

	regions, err := Load(manifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	if regions[0].Region.String() != "nfie-huc2_12" {
		t.Errorf("region = %s, want nfie-huc2_12", regions[0].Region.String())
	}
	if regions[0].GridTag != "tco639" {
		t.Errorf("grid tag = %s, want tco639", regions[0].GridTag)
	}
}
