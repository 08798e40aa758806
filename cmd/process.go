package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/gravitas-eo/urbanheat-cli/internal/pipeline"
	"github.com/gravitas-eo/urbanheat-cli/internal/registry"
	"github.com/gravitas-eo/urbanheat-cli/pkg/earthengine"
)

var (
	processCity      string
	processStart     string
	processEnd       string
	processShapefile string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Derive the four index layers for a city and date window",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("process"); err != nil {
			return err
		}

		req, err := buildRequest()
		if err != nil {
			return err
		}

		eng := newEngineClient()
		p := pipeline.New(cfg, eng)

		result, err := p.Run(cmd.Context(), *req)
		if err != nil {
			return eris.Wrap(err, "process")
		}

		zap.L().Info("analysis complete",
			zap.String("run_id", result.RunID),
			zap.String("city", result.City),
			zap.Float64("lst_mean", result.Statistics.LSTMean),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// buildRequest validates the boundary inputs the pipeline trusts: date
// parsing, start < end, and AOI resolution from the registry or a shapefile.
func buildRequest() (*pipeline.Request, error) {
	start, err := time.Parse("2006-01-02", processStart)
	if err != nil {
		return nil, eris.Wrap(err, "parse --start")
	}
	end, err := time.Parse("2006-01-02", processEnd)
	if err != nil {
		return nil, eris.Wrap(err, "parse --end")
	}
	if !start.Before(end) {
		return nil, eris.New("--start must be before --end")
	}

	var aoi *geom.Polygon
	city := processCity
	switch {
	case processShapefile != "":
		aoi, err = registry.LoadAOIFromShapefile(processShapefile)
		if err != nil {
			return nil, err
		}
	case city != "":
		reg, regErr := loadRegistry()
		if regErr != nil {
			return nil, regErr
		}
		c, ok := reg.Lookup(city)
		if !ok {
			return nil, eris.Errorf("city %q not found; run 'urbanheat cities' for the registry", city)
		}
		aoi, err = c.AOI()
		if err != nil {
			return nil, err
		}
	default:
		return nil, eris.New("either --city or --shapefile is required")
	}

	return &pipeline.Request{City: city, AOI: aoi, Start: start, End: end}, nil
}

// newEngineClient builds the REST engine client from config.
func newEngineClient() *earthengine.Client {
	opts := []earthengine.Option{
		earthengine.WithBaseURL(cfg.Engine.BaseURL),
		earthengine.WithRateLimit(cfg.Engine.RequestsPerSecond),
		earthengine.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Engine.TimeoutSecs) * time.Second}),
	}
	if token := cfg.Engine.Token; token != "" {
		opts = append(opts, earthengine.WithTokenSource(func(ctx context.Context) (string, error) {
			return token, nil
		}))
	}
	return earthengine.NewClient(cfg.Engine.Project, opts...)
}

func init() {
	processCmd.Flags().StringVar(&processCity, "city", "", "registered city name")
	processCmd.Flags().StringVar(&processShapefile, "shapefile", "", "path to a polygon shapefile AOI (overrides --city)")
	processCmd.Flags().StringVar(&processStart, "start", "", "window start date, YYYY-MM-DD (required)")
	processCmd.Flags().StringVar(&processEnd, "end", "", "window end date, YYYY-MM-DD (required)")
	_ = processCmd.MarkFlagRequired("start")
	_ = processCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(processCmd)
}
