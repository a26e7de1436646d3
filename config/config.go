// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all evaluation run configuration.
type Config struct {
	// RGBTileDir is the directory holding the raw RGB tiles the
	// annotations reference
	RGBTileDir string `envconfig:"CROWNEVAL_RGB_TILE_DIR" yaml:"rgb_tile_dir"`

	// EvaluationTileDir is the directory holding the field survey plot
	// imagery.  Its base name identifies the site
	EvaluationTileDir string `envconfig:"CROWNEVAL_EVALUATION_TILE_DIR" yaml:"evaluation_tile_dir"`

	// TrainingCSVs is a glob pattern matching the hand annotated CSV
	// files
	TrainingCSVs string `envconfig:"CROWNEVAL_TRAINING_CSVS" yaml:"training_csvs"`

	// RGBRes is the ground resolution of the imagery, annotation
	// coordinates are divided by it to map into pixels
	RGBRes float64 `envconfig:"CROWNEVAL_RGB_RES" yaml:"rgb_res"`

	// SingleTile selects the within tile train/test split used when the
	// annotations cover only one tile
	SingleTile bool `envconfig:"CROWNEVAL_SINGLE_TILE" yaml:"single_tile"`

	// FieldPolygons is the path to the field collected plot ground
	// truth JSON
	FieldPolygons string `envconfig:"CROWNEVAL_FIELD_POLYGONS" yaml:"field_polygons"`

	// LabelFont is an optional TTF font file used to title saved plot
	// images with the plot name
	LabelFont string `envconfig:"CROWNEVAL_LABEL_FONT" yaml:"label_font"`

	// Tile dimensions in pixels
	TileWidth  int `envconfig:"CROWNEVAL_TILE_WIDTH" yaml:"tile_width"`
	TileHeight int `envconfig:"CROWNEVAL_TILE_HEIGHT" yaml:"tile_height"`

	// WindowSize is the square crop size windows are sliced at
	WindowSize int `envconfig:"CROWNEVAL_WINDOW_SIZE" yaml:"window_size"`

	// WindowOverlap is the fractional overlap between adjacent windows
	WindowOverlap float32 `envconfig:"CROWNEVAL_WINDOW_OVERLAP" yaml:"window_overlap"`

	// Preprocess holds the annotation cleaning settings
	Preprocess PreprocessConfig `yaml:"preprocess"`

	// Tracking holds the experiment tracking settings
	Tracking TrackingConfig `yaml:"tracking"`
}

// PreprocessConfig holds annotation cleaning settings.
type PreprocessConfig struct {
	// ZeroArea drops annotations whose box has no area
	ZeroArea bool `envconfig:"CROWNEVAL_PREPROCESS_ZERO_AREA" yaml:"zero_area"`
}

// TrackingConfig holds experiment tracking settings.
type TrackingConfig struct {
	BaseURL string `envconfig:"CROWNEVAL_TRACKING_BASE_URL" yaml:"base_url"`
	APIKey  string `envconfig:"CROWNEVAL_TRACKING_API_KEY" yaml:"api_key"`
	Project string `envconfig:"CROWNEVAL_TRACKING_PROJECT" yaml:"project"`
	// Disabled swaps the tracking client for a no-op, for offline runs
	Disabled bool `envconfig:"CROWNEVAL_TRACKING_DISABLED" yaml:"disabled"`
}

// Load loads configuration from the YAML file at configPath, then
// applies environment variable overrides, then validates.  The returned
// value is treated as immutable by every consumer.
func Load(configPath string) (*Config, error) {

	cfg := &Config{}

	setDefaults(cfg)

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// environment variables take highest priority
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {

	data, err := os.ReadFile(path)

	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {

	cfg.RGBRes = 0.1
	cfg.TileWidth = 10000
	cfg.TileHeight = 10000
	cfg.WindowSize = 400
	cfg.WindowOverlap = 0.05

	cfg.Preprocess = PreprocessConfig{
		ZeroArea: true,
	}

	cfg.Tracking = TrackingConfig{
		Project: "crowneval",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {

	var errs []string

	if c.RGBTileDir == "" {
		errs = append(errs, "rgb_tile_dir must be set")
	}

	if c.EvaluationTileDir == "" {
		errs = append(errs, "evaluation_tile_dir must be set")
	}

	if c.RGBRes <= 0 {
		errs = append(errs, "rgb_res must be positive")
	}

	if c.TileWidth < 1 || c.TileHeight < 1 {
		errs = append(errs, "tile dimensions must be positive")
	}

	if c.WindowSize < 1 {
		errs = append(errs, "window_size must be positive")
	}

	if c.WindowOverlap < 0 || c.WindowOverlap >= 1 {
		errs = append(errs, "window_overlap must be in [0, 1)")
	}

	if !c.Tracking.Disabled {
		if c.Tracking.BaseURL == "" {
			errs = append(errs, "tracking base_url must be set unless tracking is disabled")
		}
		if c.Tracking.APIKey == "" {
			errs = append(errs, "tracking api_key must be set unless tracking is disabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Site derives the site identifier from the evaluation imagery
// directory name
func (c *Config) Site() string {
	return filepath.Base(strings.TrimRight(c.EvaluationTileDir, "/"))
}

// Params returns the configuration as a flat map for experiment
// parameter logging.  The tracking API key is withheld
func (c *Config) Params() map[string]any {
	return map[string]any{
		"rgb_tile_dir":         c.RGBTileDir,
		"evaluation_tile_dir":  c.EvaluationTileDir,
		"training_csvs":        c.TrainingCSVs,
		"rgb_res":              c.RGBRes,
		"single_tile":          c.SingleTile,
		"field_polygons":       c.FieldPolygons,
		"label_font":           c.LabelFont,
		"tile_width":           c.TileWidth,
		"tile_height":          c.TileHeight,
		"window_size":          c.WindowSize,
		"window_overlap":       c.WindowOverlap,
		"preprocess.zero_area": c.Preprocess.ZeroArea,
	}
}
