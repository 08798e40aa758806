package model

// Index names the four derived layers. Values double as boundary map keys.
type Index string

const (
	IndexNDVI  Index = "ndvi"
	IndexLST   Index = "lst"
	IndexUHI   Index = "uhi"
	IndexUTFVI Index = "utfvi"
)

// Indices lists the four index names in chain order.
func Indices() []Index {
	return []Index{IndexNDVI, IndexLST, IndexUHI, IndexUTFVI}
}

// Visualization is the display contract for one layer: a fixed stretch range
// and an ordered hex color ramp, independent of per-request statistics.
type Visualization struct {
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Palette []string `json:"palette"`
}

// Layer is the rendering contract for one derived index.
type Layer struct {
	TileURL       string        `json:"tile_url"`
	Visualization Visualization `json:"visualization"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
}

// Statistics holds the scalar region reductions that parameterized the chain.
type Statistics struct {
	LSTMean float64 `json:"lst_mean"`
	LSTStd  float64 `json:"lst_std"`
	NDVIMin float64 `json:"ndvi_min"`
	NDVIMax float64 `json:"ndvi_max"`
}

// AnalysisResult is the pipeline's output record for one request.
type AnalysisResult struct {
	RunID      string          `json:"run_id"`
	City       string          `json:"city,omitempty"`
	StartDate  string          `json:"start_date"`
	EndDate    string          `json:"end_date"`
	Layers     map[Index]Layer `json:"layers"`
	Statistics Statistics      `json:"statistics"`
	AOIBounds  [][]float64     `json:"aoi_bounds"`
}
