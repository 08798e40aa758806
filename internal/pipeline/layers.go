package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/gravitas-eo/urbanheat-cli/internal/model"
	"github.com/gravitas-eo/urbanheat-cli/pkg/earthengine"
)

// visSpecs are the fixed display ranges and color ramps per index. These are
// rendering contracts, independent of the per-request statistics the chain
// computes: NDVI always displays on [-1, 1] no matter the AOI's actual range.
var visSpecs = map[model.Index]model.Visualization{
	model.IndexNDVI: {
		Min: -1, Max: 1,
		Palette: []string{"blue", "white", "green"},
	},
	model.IndexLST: {
		Min: 7, Max: 50,
		Palette: []string{
			"040274", "040281", "0502a3", "0502b8", "0502ce", "0502e6",
			"0602ff", "235cb1", "307ef3", "269db1", "30c8e2", "32d3ef",
			"3be285", "3ff38f", "86e26f", "3ae237", "b5e22e", "d6e21f",
			"fff705", "ffd611", "ffb613", "ff8b13", "ff6e08", "ff500d",
			"ff0000", "de0101", "c21301", "a71001", "911003",
		},
	},
	model.IndexUHI: {
		Min: -4, Max: 4,
		Palette: []string{
			"313695", "74add1", "fed976", "feb24c",
			"fd8d3c", "fc4e2a", "e31a1c", "b10026",
		},
	},
	model.IndexUTFVI: {
		Min: -1, Max: 0.3,
		Palette: []string{
			"313695", "74add1", "fed976", "feb24c",
			"fd8d3c", "fc4e2a", "e31a1c", "b10026",
		},
	},
}

// layerInfo holds the static display name and description per index.
var layerInfo = map[model.Index]struct {
	name        string
	description string
}{
	model.IndexNDVI: {
		name:        "NDVI",
		description: "Vegetation health and density. Higher values (green) indicate healthier vegetation.",
	},
	model.IndexLST: {
		name:        "Land Surface Temperature",
		description: "Surface temperature in degrees Celsius. Cooler areas are blue, warmer areas are red.",
	},
	model.IndexUHI: {
		name:        "Urban Heat Index",
		description: "Relative heat concentration compared to city average. Shows urban heat island effects.",
	},
	model.IndexUTFVI: {
		name:        "Urban Thermal Field Variance Index",
		description: "Temperature comfort level classification for urban areas.",
	},
}

// AssembleLayers turns the chain's rasters into renderable layer descriptors.
// All four indices must be present up front (KindMissingIndex otherwise, with
// no tile call issued); the four tile requests then run concurrently and a
// failure in any of them fails the whole set (KindTileGenerationFailure
// naming the index). Partial layer sets are never returned.
func AssembleLayers(ctx context.Context, eng earthengine.Engine, indices map[model.Index]earthengine.Image) (map[model.Index]model.Layer, error) {
	for _, idx := range model.Indices() {
		if img, ok := indices[idx]; !ok || img.IsZero() {
			return nil, &Error{Kind: KindMissingIndex, Index: idx, err: eris.New("index absent from chain output")}
		}
	}

	layers := make(map[model.Index]model.Layer, len(indices))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	for _, idx := range model.Indices() {
		idx := idx
		g.Go(func() error {
			layer, err := assembleLayer(gCtx, eng, idx, indices[idx])
			if err != nil {
				return err
			}
			mu.Lock()
			layers[idx] = layer
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return layers, nil
}

// assembleLayer materializes one tile endpoint and attaches the static
// visualization and display metadata.
func assembleLayer(ctx context.Context, eng earthengine.Engine, idx model.Index, img earthengine.Image) (model.Layer, error) {
	vis := visSpecs[idx]
	info := layerInfo[idx]

	tileURL, err := eng.MapTiles(ctx, img, earthengine.VisParams{
		Min:     vis.Min,
		Max:     vis.Max,
		Palette: vis.Palette,
	})
	if err != nil {
		return model.Layer{}, &Error{Kind: KindTileGenerationFailure, Index: idx, err: err}
	}
	if tileURL == "" {
		return model.Layer{}, &Error{Kind: KindTileGenerationFailure, Index: idx, err: eris.New("engine returned empty tile url")}
	}

	return model.Layer{
		TileURL:       tileURL,
		Visualization: vis,
		Name:          info.name,
		Description:   info.description,
	}, nil
}
