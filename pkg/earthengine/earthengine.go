// Package earthengine provides a narrow client surface for a remote raster
// algebra engine. Per-pixel operations build a lazy expression graph on the
// client (see Image and Collection); only Engine calls leave the process.
package earthengine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Reducer names a region aggregation function.
type Reducer string

const (
	ReducerMin    Reducer = "min"
	ReducerMax    Reducer = "max"
	ReducerMean   Reducer = "mean"
	ReducerStdDev Reducer = "stdDev"
)

// VisParams controls how an image is stretched and colored when tiled.
type VisParams struct {
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Palette []string `json:"palette"`
}

// ErrBudgetExceeded is returned by ReduceRegion when the engine refuses a
// reduction because it would touch more pixels than maxPixels allows.
var ErrBudgetExceeded = eris.New("earthengine: reduction exceeded pixel budget")

// Engine is the blocking I/O surface of the raster platform. Everything else
// in this package is pure, client-side graph construction.
type Engine interface {
	// FilterCollection returns a handle to the named image collection
	// restricted to scenes acquired in [start, end) whose footprint
	// intersects region.
	FilterCollection(ctx context.Context, id string, region *geom.Polygon, start, end time.Time) (Collection, error)

	// Size reports how many scenes remain in a filtered collection.
	Size(ctx context.Context, c Collection) (int, error)

	// ReduceRegion collapses a single-band image over region with the given
	// reducer at the given ground sample distance (meters), returning one
	// scalar. maxPixels caps how many pixels the engine may process;
	// exceeding it yields ErrBudgetExceeded.
	ReduceRegion(ctx context.Context, img Image, region *geom.Polygon, r Reducer, scale float64, maxPixels int64) (float64, error)

	// MapTiles materializes a tile endpoint for the image rendered with vis
	// and returns its URL template ({z}/{x}/{y} placeholders).
	MapTiles(ctx context.Context, img Image, vis VisParams) (string, error)
}

// PolygonCoordinates flattens a lon/lat polygon into GeoJSON-shaped nested
// coordinate slices for wire encoding.
func PolygonCoordinates(p *geom.Polygon) [][][]float64 {
	if p == nil {
		return nil
	}
	rings := make([][][]float64, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		coords := make([][]float64, 0, ring.NumCoords())
		for j := 0; j < ring.NumCoords(); j++ {
			c := ring.Coord(j)
			coords = append(coords, []float64{c.X(), c.Y()})
		}
		rings = append(rings, coords)
	}
	return rings
}
