package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	PostGIS  PostGISConfig  `yaml:"postgis" mapstructure:"postgis"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PipelineConfig configures the screening steps.
type PipelineConfig struct {
	PrefixLength    int    `yaml:"prefix_length" mapstructure:"prefix_length"`
	KeyField        string `yaml:"key_field" mapstructure:"key_field"`
	NormalizedField string `yaml:"normalized_field" mapstructure:"normalized_field"`
	EvalField       string `yaml:"eval_field" mapstructure:"eval_field"`
	EvalWidth       int    `yaml:"eval_width" mapstructure:"eval_width"`
	EvalDecimals    int    `yaml:"eval_decimals" mapstructure:"eval_decimals"`
	// Encoding of DBF and CSV text. Empty means UTF-8 or the shapefile's .cpg.
	Encoding string `yaml:"encoding" mapstructure:"encoding"`
}

// OutputConfig selects the formats output layers are written in.
type OutputConfig struct {
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// FetchConfig configures downloads of remote inputs.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// PostGISConfig configures publication of output layers.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	SRID        int    `yaml:"srid" mapstructure:"srid"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SUPERFUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.prefix_length", 7)
	v.SetDefault("pipeline.key_field", "GEOID")
	v.SetDefault("pipeline.normalized_field", "GEOID_TRUE")
	v.SetDefault("pipeline.eval_field", "EVAL")
	v.SetDefault("pipeline.eval_width", 18)
	v.SetDefault("pipeline.eval_decimals", 6)
	v.SetDefault("pipeline.encoding", "")
	v.SetDefault("output.formats", []string{"shp"})
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("postgis.database_url", "")
	v.SetDefault("postgis.schema", "superfund")
	v.SetDefault("postgis.srid", 4269)
	v.SetDefault("metrics.textfile", "")

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

// Validate checks the settings a command needs. mode is "run", "publish" or
// "run+publish".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run", "run+publish":
		if c.Pipeline.PrefixLength < 0 {
			errs = append(errs, "pipeline.prefix_length must be >= 0")
		}
		names := []struct{ key, value string }{
			{"pipeline.key_field", c.Pipeline.KeyField},
			{"pipeline.normalized_field", c.Pipeline.NormalizedField},
			{"pipeline.eval_field", c.Pipeline.EvalField},
		}
		for _, n := range names {
			if strings.TrimSpace(n.value) == "" {
				errs = append(errs, n.key+" is required")
			}
		}
		if c.Pipeline.EvalWidth < 1 || c.Pipeline.EvalWidth > 20 {
			errs = append(errs, "pipeline.eval_width must be between 1 and 20")
		}
		if c.Pipeline.EvalDecimals < 0 || c.Pipeline.EvalDecimals >= c.Pipeline.EvalWidth {
			errs = append(errs, "pipeline.eval_decimals must be >= 0 and < eval_width")
		}
		if len(c.Output.Formats) == 0 {
			errs = append(errs, "output.formats must not be empty")
		}
		for _, f := range c.Output.Formats {
			if f != "shp" && f != "geojson" {
				errs = append(errs, fmt.Sprintf("output.formats: unknown format %q", f))
			}
		}
		if c.Fetch.MaxRetries < 0 {
			errs = append(errs, "fetch.max_retries must be >= 0")
		}
		if mode == "run+publish" {
			errs = append(errs, c.postgisErrors()...)
		}
	case "publish":
		errs = append(errs, c.postgisErrors()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) postgisErrors() []string {
	var errs []string
	if c.PostGIS.DatabaseURL == "" {
		errs = append(errs, "postgis.database_url is required")
	}
	if strings.TrimSpace(c.PostGIS.Schema) == "" {
		errs = append(errs, "postgis.schema is required")
	}
	if c.PostGIS.SRID <= 0 {
		errs = append(errs, "postgis.srid must be > 0")
	}
	return errs
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
