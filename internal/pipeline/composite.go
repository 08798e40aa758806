package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/gravitas-eo/urbanheat-cli/pkg/earthengine"
)

// Landsat 8 Collection 2 Level 2 scale factors.
const (
	opticalBandsMultiplier = 0.0000275
	opticalBandsOffset     = -0.2
	thermalBandsMultiplier = 0.00341802
	thermalBandsOffset     = 149.0
)

// QA_PIXEL bits that must both be clear for a pixel to survive masking.
const (
	cloudShadowBitMask = 1 << 3
	cloudsBitMask      = 1 << 5
)

const (
	opticalBandPattern = "SR_B.*"
	thermalBandPattern = "ST_B.*"
	qaBand             = "QA_PIXEL"
)

// BuildComposite collapses the collection, restricted to scenes acquired in
// [start, end) that intersect aoi, into one cloud-free median composite with
// radiometrically corrected bands. An empty filtered collection is a hard
// KindNoImageryFound failure, checked before any reduction is attempted.
func BuildComposite(ctx context.Context, eng earthengine.Engine, collection string, aoi *geom.Polygon, start, end time.Time) (earthengine.Image, error) {
	filtered, err := eng.FilterCollection(ctx, collection, aoi, start, end)
	if err != nil {
		return earthengine.Image{}, eris.Wrap(err, "composite: filter collection")
	}

	count, err := eng.Size(ctx, filtered)
	if err != nil {
		return earthengine.Image{}, eris.Wrap(err, "composite: collection size")
	}
	if count == 0 {
		return earthengine.Image{}, &Error{
			Kind: KindNoImageryFound,
			err:  eris.Errorf("no %s scenes between %s and %s intersect the area", collection, start.Format("2006-01-02"), end.Format("2006-01-02")),
		}
	}

	corrected := filtered.Map(applyScaleFactors).Map(maskClouds)
	return corrected.Median(), nil
}

// applyScaleFactors rescales optical bands to reflectance units and the
// thermal bands to kelvin, replacing the originals in place. Other bands,
// QA_PIXEL included, pass through untouched.
func applyScaleFactors(img earthengine.Image) earthengine.Image {
	optical := img.Select(opticalBandPattern).
		Multiply(earthengine.Constant(opticalBandsMultiplier)).
		Add(earthengine.Constant(opticalBandsOffset))
	thermal := img.Select(thermalBandPattern).
		Multiply(earthengine.Constant(thermalBandsMultiplier)).
		Add(earthengine.Constant(thermalBandsOffset))

	return img.AddBands(optical, true).AddBands(thermal, true)
}

// maskClouds drops pixels flagged as cloud or cloud shadow. Both QA bits must
// be zero for a pixel to remain valid in every band of the scene.
func maskClouds(img earthengine.Image) earthengine.Image {
	qa := img.Select(qaBand)
	clear := qa.BitwiseAnd(earthengine.Constant(cloudShadowBitMask)).Eq(earthengine.Constant(0)).
		And(qa.BitwiseAnd(earthengine.Constant(cloudsBitMask)).Eq(earthengine.Constant(0)))

	return img.UpdateMask(clear)
}
