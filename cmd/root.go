package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gravitas-eo/urbanheat-cli/internal/config"
	"github.com/gravitas-eo/urbanheat-cli/internal/registry"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "urbanheat",
	Short: "Urban heat analysis from satellite imagery",
	Long:  "Builds cloud-free Landsat composites over a city and derives NDVI, LST, UHI and UTFVI map layers with region statistics.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// loadRegistry returns the configured city registry, falling back to the
// built-in one.
func loadRegistry() (registry.Registry, error) {
	if cfg.Registry.CitiesFile != "" {
		return registry.LoadCitiesFromFile(cfg.Registry.CitiesFile)
	}
	return registry.Builtin(), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
