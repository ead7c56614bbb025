// Package config loads process configuration from defaults, an optional
// YAML file, a .env file and ANPR_-prefixed environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ironsheep/anpr-parking/internal/detection"
	"github.com/ironsheep/anpr-parking/internal/logging"
	"github.com/ironsheep/anpr-parking/internal/ocr/tesseract"
	"github.com/ironsheep/anpr-parking/internal/server"
	"github.com/ironsheep/anpr-parking/internal/service"
	"github.com/ironsheep/anpr-parking/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. ANPR_SERVER_ADDR.
const EnvPrefix = "ANPR"

// Config is the complete process configuration.
type Config struct {
	Server      server.Config  `mapstructure:"server"`
	Log         logging.Config `mapstructure:"log"`
	Detector    DetectorConfig `mapstructure:"detector"`
	OCR         OCRConfig      `mapstructure:"ocr"`
	Recognition service.Config `mapstructure:"recognition"`
	Parking     ParkingConfig  `mapstructure:"parking"`
	Store       store.Config   `mapstructure:"store"`
	Ingest      IngestConfig   `mapstructure:"ingest"`
}

// DetectorConfig selects the object detector.
type DetectorConfig struct {
	// Kind is "roboflow" or "heuristic".
	Kind string `mapstructure:"kind"`
	// Plates is the plate model. With Kind "roboflow" its endpoint is required.
	Plates detection.RoboflowConfig `mapstructure:"plates"`
	// Spots is an optional second model for free and occupied spots.
	Spots detection.RoboflowConfig `mapstructure:"spots"`
}

// OCRConfig configures the OCR engine.
type OCRConfig struct {
	tesseract.Config `mapstructure:",squash"`
	// Concurrency bounds parallel engine runs per plate; 0 uses all CPUs.
	Concurrency int `mapstructure:"concurrency"`
}

// ParkingConfig configures the allocator.
type ParkingConfig struct {
	GridSize int `mapstructure:"grid_size"`
}

// IngestConfig configures the background frame loop.
type IngestConfig struct {
	// Dir is a directory of frames; empty disables ingestion.
	Dir string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	rec := service.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.max_upload_bytes", 16<<20)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("detector.kind", "heuristic")
	v.SetDefault("detector.plates.endpoint", "")
	v.SetDefault("detector.plates.api_key", "")
	v.SetDefault("detector.plates.confidence", detection.DefaultMinConfidence*100)
	v.SetDefault("detector.plates.timeout", 15*time.Second)
	v.SetDefault("detector.spots.endpoint", "")
	v.SetDefault("detector.spots.api_key", "")
	v.SetDefault("detector.spots.confidence", detection.DefaultMinConfidence*100)
	v.SetDefault("detector.spots.timeout", 15*time.Second)

	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.tessdata_prefix", "")
	v.SetDefault("ocr.concurrency", 0)

	v.SetDefault("recognition.min_confidence", rec.MinConfidence)
	v.SetDefault("recognition.dedup_window", rec.DedupWindow)
	v.SetDefault("recognition.frame_interval", rec.FrameInterval)
	v.SetDefault("recognition.loop", rec.Loop)
	v.SetDefault("recognition.preprocess.canonical_width", rec.Preprocess.CanonicalWidth)
	v.SetDefault("recognition.preprocess.bilateral_diameter", rec.Preprocess.BilateralDiameter)
	v.SetDefault("recognition.preprocess.sigma_color", rec.Preprocess.SigmaColor)
	v.SetDefault("recognition.preprocess.sigma_space", rec.Preprocess.SigmaSpace)
	v.SetDefault("recognition.preprocess.clip_limit", rec.Preprocess.ClipLimit)
	v.SetDefault("recognition.preprocess.tiles", rec.Preprocess.Tiles)
	v.SetDefault("recognition.preprocess.adaptive_block", rec.Preprocess.AdaptiveBlock)
	v.SetDefault("recognition.preprocess.adaptive_offset", rec.Preprocess.AdaptiveOffset)

	v.SetDefault("parking.grid_size", 25)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "anpr.db")

	v.SetDefault("ingest.dir", "")
}

// Load reads configuration. path names a YAML file; when empty, anpr.yaml
// in the working directory is used if present. A .env file in the working
// directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("anpr")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the process cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Detector.Kind) {
	case "heuristic":
	case "roboflow":
		if c.Detector.Plates.Endpoint == "" {
			return errors.New("detector.plates.endpoint is required for the roboflow detector")
		}
	default:
		return fmt.Errorf("unknown detector kind %q", c.Detector.Kind)
	}

	switch strings.ToLower(c.Store.Driver) {
	case "memory":
	case "sqlite", "postgres", "postgresql":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Recognition.MinConfidence < 0 || c.Recognition.MinConfidence > 1 {
		return fmt.Errorf("recognition.min_confidence must be in [0,1], got %v", c.Recognition.MinConfidence)
	}
	if err := c.Recognition.Preprocess.Validate(); err != nil {
		return fmt.Errorf("invalid preprocess settings: %w", err)
	}
	return nil
}
