package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Engine   EngineConfig   `yaml:"engine" mapstructure:"engine"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// EngineConfig configures the raster engine client.
type EngineConfig struct {
	Project           string  `yaml:"project" mapstructure:"project"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Token             string  `yaml:"token" mapstructure:"token"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig fixes the radiometric source and the reduction budget. The
// physical constants of the index chain are not configurable; only the
// collection and the statistics sampling are.
type PipelineConfig struct {
	Collection string  `yaml:"collection" mapstructure:"collection"`
	Scale      float64 `yaml:"scale" mapstructure:"scale"`
	MaxPixels  int64   `yaml:"max_pixels" mapstructure:"max_pixels"`
}

// RegistryConfig points at an optional operator-supplied city registry.
type RegistryConfig struct {
	CitiesFile string `yaml:"cities_file" mapstructure:"cities_file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("URBANHEAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("engine.base_url", "https://rasterengine.googleapis.com/v1")
	v.SetDefault("engine.requests_per_second", 10)
	v.SetDefault("engine.timeout_secs", 120)
	v.SetDefault("pipeline.collection", "LANDSAT/LC08/C02/T1_L2")
	v.SetDefault("pipeline.scale", 30)
	v.SetDefault("pipeline.max_pixels", int64(1_000_000_000))

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields the given command mode depends on.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "process":
		if c.Engine.Project == "" {
			problems = append(problems, "engine.project is required")
		}
		if c.Engine.BaseURL == "" {
			problems = append(problems, "engine.base_url is required")
		}
		if c.Engine.RequestsPerSecond <= 0 {
			problems = append(problems, "engine.requests_per_second must be > 0")
		}
		if c.Pipeline.Collection == "" {
			problems = append(problems, "pipeline.collection is required")
		}
		if c.Pipeline.Scale <= 0 {
			problems = append(problems, "pipeline.scale must be > 0")
		}
		if c.Pipeline.MaxPixels <= 0 {
			problems = append(problems, "pipeline.max_pixels must be > 0")
		}
	case "cities":
		// The registry listing needs no engine access.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
