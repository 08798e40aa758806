// Package registry holds the built-in city study areas and loaders for
// operator-supplied registries and ad-hoc AOI shapefiles.
package registry

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// City is one registered study area: a map center and the bounding ring used
// as the area of interest.
type City struct {
	Name   string      `json:"name" yaml:"name"`
	Center []float64   `json:"center" yaml:"center"`
	BBox   [][]float64 `json:"bbox" yaml:"bbox"`
}

// AOI builds the city's area-of-interest polygon from its bounding ring,
// closing the ring if the registry stored it open.
func (c City) AOI() (*geom.Polygon, error) {
	return PolygonFromRing(c.BBox)
}

// PolygonFromRing builds a lon/lat polygon from an ordered vertex ring.
func PolygonFromRing(ring [][]float64) (*geom.Polygon, error) {
	if len(ring) < 4 {
		return nil, eris.Errorf("registry: ring has %d vertices, need at least 4", len(ring))
	}
	flat := make([]float64, 0, (len(ring)+1)*2)
	for _, v := range ring {
		if len(v) != 2 {
			return nil, eris.Errorf("registry: ring vertex has %d coordinates, want 2", len(v))
		}
		flat = append(flat, v[0], v[1])
	}
	// Close the ring.
	if flat[0] != flat[len(flat)-2] || flat[1] != flat[len(flat)-1] {
		flat = append(flat, flat[0], flat[1])
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326), nil
}

// Registry maps city names to their study areas.
type Registry map[string]City

// Lookup returns the named city.
func (r Registry) Lookup(name string) (City, bool) {
	c, ok := r[name]
	return c, ok
}

// Names returns the registered city names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns the default city registry.
func Builtin() Registry {
	reg := make(Registry, len(builtinCities))
	for _, c := range builtinCities {
		reg[c.Name] = c
	}
	return reg
}

var builtinCities = []City{
	{
		Name:   "San Francisco",
		Center: []float64{-122.4194, 37.7749},
		BBox: [][]float64{
			{-122.5194, 37.8749},
			{-122.5194, 37.6749},
			{-122.3194, 37.6749},
			{-122.3194, 37.8749},
		},
	},
	{
		Name:   "Belgrade",
		Center: []float64{20.4489, 44.7866},
		BBox: [][]float64{
			{20.3489, 44.8866},
			{20.3489, 44.6866},
			{20.5489, 44.6866},
			{20.5489, 44.8866},
		},
	},
	{
		Name:   "Zagreb",
		Center: []float64{15.9819, 45.8150},
		BBox: [][]float64{
			{15.8819, 45.9150},
			{15.8819, 45.7150},
			{16.0819, 45.7150},
			{16.0819, 45.9150},
		},
	},
	{
		Name:   "Sarajevo",
		Center: []float64{18.4131, 43.8563},
		BBox: [][]float64{
			{18.2131, 43.9563},
			{18.2131, 43.7563},
			{18.5131, 43.7563},
			{18.5131, 43.9563},
		},
	},
	{
		Name:   "Podgorica",
		Center: []float64{19.2594, 42.4304},
		BBox: [][]float64{
			{19.1594, 42.5304},
			{19.1594, 42.3304},
			{19.3594, 42.3304},
			{19.3594, 42.5304},
		},
	},
	{
		Name:   "Skopje",
		Center: []float64{21.4254, 41.9981},
		BBox: [][]float64{
			{21.3254, 42.0981},
			{21.3254, 41.8981},
			{21.5254, 41.8981},
			{21.5254, 42.0981},
		},
	},
	{
		Name:   "Tirana",
		Center: []float64{19.8189, 41.3275},
		BBox: [][]float64{
			{19.7189, 41.4275},
			{19.7189, 41.2275},
			{19.9189, 41.2275},
			{19.9189, 41.4275},
		},
	},
	{
		Name:   "Pristina",
		Center: []float64{21.1655, 42.6629},
		BBox: [][]float64{
			{21.0655, 42.7629},
			{21.0655, 42.5629},
			{21.2655, 42.5629},
			{21.2655, 42.7629},
		},
	},
	{
		Name:   "Novi Sad",
		Center: []float64{19.8444, 45.2671},
		BBox: [][]float64{
			{19.7444, 45.3671},
			{19.7444, 45.1671},
			{19.9444, 45.1671},
			{19.9444, 45.3671},
		},
	},
	{
		Name:   "Banja Luka",
		Center: []float64{17.1876, 44.7750},
		BBox: [][]float64{
			{17.0876, 44.8750},
			{17.0876, 44.6750},
			{17.2876, 44.6750},
			{17.2876, 44.8750},
		},
	},
}
