package pipeline

import (
	"context"

	"github.com/twpayne/go-geom"
	"golang.org/x/sync/errgroup"

	"github.com/gravitas-eo/urbanheat-cli/internal/model"
	"github.com/gravitas-eo/urbanheat-cli/pkg/earthengine"
)

// Landsat 8 band assignments for the index chain.
const (
	nirBand     = "SR_B5"
	redBand     = "SR_B4"
	thermalBand = "ST_B10"
)

// Emissivity and land surface temperature constants.
const (
	fvExponent      = 2
	emMultiplier    = 0.004
	emOffset        = 0.986
	lstWavelength   = 11.5
	lstConstant     = 14380
	kelvinToCelsius = 273.15
)

// ChainResult is the output record of the index derivation chain: the four
// index rasters plus the scalar statistics that parameterized them.
type ChainResult struct {
	NDVI  earthengine.Image
	LST   earthengine.Image
	UHI   earthengine.Image
	UTFVI earthengine.Image
	Stats model.Statistics
}

// Indexed returns the chain's rasters keyed by index name, the shape the
// layer assembler consumes.
func (r *ChainResult) Indexed() map[model.Index]earthengine.Image {
	return map[model.Index]earthengine.Image{
		model.IndexNDVI:  r.NDVI,
		model.IndexLST:   r.LST,
		model.IndexUHI:   r.UHI,
		model.IndexUTFVI: r.UTFVI,
	}
}

// DeriveIndices runs the chain NDVI → FV → EM → LST → UHI/UTFVI over a
// composite. The chain is serial by construction: the NDVI min/max reductions
// anchor FV, and the LST mean/stdDev reductions anchor UHI and UTFVI. Each
// reduction pair runs concurrently; a failure in either aborts the chain with
// no partial result.
func DeriveIndices(ctx context.Context, eng earthengine.Engine, composite earthengine.Image, aoi *geom.Polygon, scale float64, maxPixels int64) (*ChainResult, error) {
	ndviImg := ndvi(composite)

	ndviMin, ndviMax, err := reducePair(ctx, eng, ndviImg, aoi, earthengine.ReducerMin, earthengine.ReducerMax, scale, maxPixels)
	if err != nil {
		return nil, err
	}

	// Per-request normalization anchors, not the fixed display range. When
	// the AOI is degenerate (uniform NDVI) the FV division propagates
	// per-pixel no-data instead of failing the request.
	fv := fractionalVegetation(ndviImg, ndviMin, ndviMax)
	em := emissivity(fv)
	lstImg := lst(composite, em)

	lstMean, lstStd, err := reducePair(ctx, eng, lstImg, aoi, earthengine.ReducerMean, earthengine.ReducerStdDev, scale, maxPixels)
	if err != nil {
		return nil, err
	}

	return &ChainResult{
		NDVI:  ndviImg,
		LST:   lstImg,
		UHI:   uhi(lstImg, lstMean, lstStd),
		UTFVI: utfvi(lstImg, lstMean),
		Stats: model.Statistics{
			LSTMean: lstMean,
			LSTStd:  lstStd,
			NDVIMin: ndviMin,
			NDVIMax: ndviMax,
		},
	}, nil
}

// reducePair dispatches two reductions over the same image concurrently. The
// two are logically independent; the pair as a whole gates the next stage.
func reducePair(ctx context.Context, eng earthengine.Engine, img earthengine.Image, aoi *geom.Polygon, a, b earthengine.Reducer, scale float64, maxPixels int64) (float64, float64, error) {
	var first, second float64

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := reduceRegion(gCtx, eng, img, aoi, a, scale, maxPixels)
		if err != nil {
			return err
		}
		first = v
		return nil
	})
	g.Go(func() error {
		v, err := reduceRegion(gCtx, eng, img, aoi, b, scale, maxPixels)
		if err != nil {
			return err
		}
		second = v
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	return first, second, nil
}

// ndvi computes (NIR - Red) / (NIR + Red). Pixels where NIR + Red is zero
// become no-data.
func ndvi(img earthengine.Image) earthengine.Image {
	return img.NormalizedDifference(nirBand, redBand).Rename("NDVI")
}

// fractionalVegetation computes ((NDVI - min) / (max - min))^2.
func fractionalVegetation(ndviImg earthengine.Image, ndviMin, ndviMax float64) earthengine.Image {
	return ndviImg.
		Subtract(earthengine.Constant(ndviMin)).
		Divide(earthengine.Constant(ndviMax - ndviMin)).
		Pow(earthengine.Constant(fvExponent)).
		Rename("FV")
}

// emissivity maps fractional vegetation into the physical emissivity range
// near 1.0: EM = FV * 0.004 + 0.986.
func emissivity(fv earthengine.Image) earthengine.Image {
	return fv.
		Multiply(earthengine.Constant(emMultiplier)).
		Add(earthengine.Constant(emOffset)).
		Rename("EM")
}

// lst computes land surface temperature in degrees Celsius from the corrected
// thermal brightness temperature and per-pixel emissivity:
//
//	LST = TB / (1 + (λ·TB/c₂)·ln(EM)) - 273.15
func lst(composite, em earthengine.Image) earthengine.Image {
	tb := composite.Select(thermalBand)
	denominator := earthengine.Constant(1).Add(
		earthengine.Constant(lstWavelength).
			Multiply(tb.Divide(earthengine.Constant(lstConstant))).
			Multiply(em.Log()),
	)
	return tb.Divide(denominator).
		Subtract(earthengine.Constant(kelvinToCelsius)).
		Rename("LST")
}

// uhi computes the per-region temperature z-score (LST - mean) / std. A zero
// std propagates no-data, not a fault.
func uhi(lstImg earthengine.Image, mean, std float64) earthengine.Image {
	return lstImg.
		Subtract(earthengine.Constant(mean)).
		Divide(earthengine.Constant(std)).
		Rename("UHI")
}

// utfvi computes (LST - mean) / LST. Pixels at exactly 0 °C propagate
// no-data.
func utfvi(lstImg earthengine.Image, mean float64) earthengine.Image {
	return lstImg.
		Subtract(earthengine.Constant(mean)).
		Divide(lstImg).
		Rename("UTFVI")
}
