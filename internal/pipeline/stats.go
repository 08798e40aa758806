package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/gravitas-eo/urbanheat-cli/pkg/earthengine"
)

// reduceRegion wraps the engine's region reduction with the pipeline's
// failure contract: a pixel-budget refusal becomes
// KindReductionBudgetExceeded, any other engine fault becomes
// KindStatisticsFailure carrying the reducer. Transient-fault retries live in
// the engine client; an error arriving here is final.
func reduceRegion(ctx context.Context, eng earthengine.Engine, img earthengine.Image, aoi *geom.Polygon, r earthengine.Reducer, scale float64, maxPixels int64) (float64, error) {
	value, err := eng.ReduceRegion(ctx, img, aoi, r, scale, maxPixels)
	if err != nil {
		kind := KindStatisticsFailure
		if eris.Is(err, earthengine.ErrBudgetExceeded) {
			kind = KindReductionBudgetExceeded
		}
		return 0, &Error{Kind: kind, Reducer: r, err: err}
	}
	return value, nil
}
