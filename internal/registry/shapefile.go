package registry

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// LoadAOIFromShapefile reads the first polygon shape from a .shp file and
// returns its outer ring as a lon/lat AOI polygon. Shapefiles let operators
// analyze study areas beyond the built-in city registry.
func LoadAOIFromShapefile(path string) (*geom.Polygon, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: open shapefile")
	}
	defer func() { _ = reader.Close() }()

	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly.NumParts == 0 || len(poly.Points) == 0 {
			continue
		}
		return polygonOuterRing(poly)
	}
	return nil, eris.New("registry: shapefile contains no polygon shapes")
}

// polygonOuterRing converts the first part of a shapefile polygon to a
// geom.Polygon. Shapefile outer rings are stored clockwise and already
// closed.
func polygonOuterRing(poly *shp.Polygon) (*geom.Polygon, error) {
	end := len(poly.Points)
	if poly.NumParts > 1 {
		end = int(poly.Parts[1])
	}
	ring := poly.Points[int(poly.Parts[0]):end]
	if len(ring) < 4 {
		return nil, eris.Errorf("registry: shapefile ring has %d vertices, need at least 4", len(ring))
	}

	flat := make([]float64, 0, len(ring)*2)
	for _, p := range ring {
		flat = append(flat, p.X, p.Y)
	}
	if flat[0] != flat[len(flat)-2] || flat[1] != flat[len(flat)-1] {
		flat = append(flat, flat[0], flat[1])
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326), nil
}
