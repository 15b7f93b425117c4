package warning

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
)

// WriteGeoJSON emits every point of tier t as a GeoJSON FeatureCollection
// of Point features at path, carrying rivid and the spec §9(ii) "size"
// convention (1 for a mean-based exceedance, 0 for upper-envelope-only) as
// feature properties.
func WriteGeoJSON(path string, points []Point, t Tier) error {
	fc := geojson.NewFeatureCollection()
	for _, p := range points {
		if p.Tier != t {
			continue
		}
		g, err := geojson.NewGeometry(geom.Point{X: p.Lon, Y: p.Lat})
		if err != nil {
			return fmt.Errorf("rapidflow: encoding warning point geometry for rivid %d: %w", p.Rivid, err)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: g,
			Properties: map[string]interface{}{
				"rivid": p.Rivid,
				"size":  p.Size,
			},
		})
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("rapidflow: marshaling warning points geojson: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("rapidflow: writing %s: %w", path, err)
	}
	return nil
}
