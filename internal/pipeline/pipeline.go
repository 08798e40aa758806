package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/gravitas-eo/urbanheat-cli/internal/config"
	"github.com/gravitas-eo/urbanheat-cli/internal/model"
	"github.com/gravitas-eo/urbanheat-cli/pkg/earthengine"
)

// Request describes one analysis: an AOI and a date window. City is carried
// through to the result for display; AOI and the window arrive validated by
// the caller (registry ring topology, start < end).
type Request struct {
	City  string
	AOI   *geom.Polygon
	Start time.Time
	End   time.Time
}

// Pipeline derives the four thermal/vegetation index layers for a request.
// It is request-scoped and synchronous: every raster handle and scalar is
// local to one Run and discarded with the result. Identical requests
// recompute from scratch.
type Pipeline struct {
	cfg    *config.Config
	engine earthengine.Engine
}

// New creates a Pipeline backed by the given engine.
func New(cfg *config.Config, eng earthengine.Engine) *Pipeline {
	return &Pipeline{cfg: cfg, engine: eng}
}

// Run executes composite → index chain → layer assembly for one request. The
// first faulting stage aborts the rest and its tagged error is surfaced
// verbatim; no partial or degraded result is ever returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (*model.AnalysisResult, error) {
	if req.AOI == nil {
		return nil, eris.New("pipeline: request has no area of interest")
	}

	runID := uuid.NewString()
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("city", req.City),
		zap.String("start", req.Start.Format("2006-01-02")),
		zap.String("end", req.End.Format("2006-01-02")),
	)
	log.Info("pipeline: starting analysis")

	composite, err := BuildComposite(ctx, p.engine, p.cfg.Pipeline.Collection, req.AOI, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline: composite built", zap.String("collection", p.cfg.Pipeline.Collection))

	chain, err := DeriveIndices(ctx, p.engine, composite, req.AOI, p.cfg.Pipeline.Scale, p.cfg.Pipeline.MaxPixels)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline: indices derived",
		zap.Float64("ndvi_min", chain.Stats.NDVIMin),
		zap.Float64("ndvi_max", chain.Stats.NDVIMax),
		zap.Float64("lst_mean", chain.Stats.LSTMean),
		zap.Float64("lst_std", chain.Stats.LSTStd),
	)

	layers, err := AssembleLayers(ctx, p.engine, chain.Indexed())
	if err != nil {
		return nil, err
	}
	log.Info("pipeline: layers assembled", zap.Int("layers", len(layers)))

	return &model.AnalysisResult{
		RunID:      runID,
		City:       req.City,
		StartDate:  req.Start.Format("2006-01-02"),
		EndDate:    req.End.Format("2006-01-02"),
		Layers:     layers,
		Statistics: chain.Stats,
		AOIBounds:  aoiBounds(req.AOI),
	}, nil
}

// aoiBounds flattens the AOI's outer ring for the boundary record, dropping
// the closing vertex the registry added.
func aoiBounds(aoi *geom.Polygon) [][]float64 {
	if aoi.NumLinearRings() == 0 {
		return nil
	}
	ring := aoi.LinearRing(0)
	n := ring.NumCoords()
	if n > 1 {
		first, last := ring.Coord(0), ring.Coord(n-1)
		if first.X() == last.X() && first.Y() == last.Y() {
			n--
		}
	}
	bounds := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		c := ring.Coord(i)
		bounds = append(bounds, []float64{c.X(), c.Y()})
	}
	return bounds
}
