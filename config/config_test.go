package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {

	t.Helper()

	path := filepath.Join(t.TempDir(), "deepforest.yml")

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	return path
}

const validConfig = `
rgb_tile_dir: "/data/tiles"
evaluation_tile_dir: "/data/eval/OSBS"
training_csvs: "/data/annotations/*.csv"
rgb_res: 0.1
single_tile: false
field_polygons: "/data/field/plots.json"
tile_width: 10000
tile_height: 10000
window_size: 400
window_overlap: 0.05
preprocess:
  zero_area: true
tracking:
  base_url: "https://tracking.example.com"
  api_key: "secret"
  project: "crowns"
`

func TestLoadFromFile(t *testing.T) {

	path := writeConfig(t, validConfig)

	cfg, err := Load(path)

	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RGBTileDir != "/data/tiles" {
		t.Errorf("RGBTileDir = %s, want /data/tiles", cfg.RGBTileDir)
	}

	if cfg.RGBRes != 0.1 {
		t.Errorf("RGBRes = %f, want 0.1", cfg.RGBRes)
	}

	if cfg.Tracking.Project != "crowns" {
		t.Errorf("Tracking.Project = %s, want crowns", cfg.Tracking.Project)
	}

	if !cfg.Preprocess.ZeroArea {
		t.Error("Preprocess.ZeroArea = false, want true")
	}
}

func TestEnvOverrides(t *testing.T) {

	path := writeConfig(t, validConfig)

	os.Setenv("CROWNEVAL_RGB_RES", "0.25")
	os.Setenv("CROWNEVAL_TRACKING_API_KEY", "from-env")
	defer func() {
		os.Unsetenv("CROWNEVAL_RGB_RES")
		os.Unsetenv("CROWNEVAL_TRACKING_API_KEY")
	}()

	cfg, err := Load(path)

	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RGBRes != 0.25 {
		t.Errorf("RGBRes = %f, want env override 0.25", cfg.RGBRes)
	}

	if cfg.Tracking.APIKey != "from-env" {
		t.Errorf("Tracking.APIKey = %s, want from-env", cfg.Tracking.APIKey)
	}
}

func TestValidation(t *testing.T) {

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "missing tile dir",
			modify: func(c *Config) {
				c.RGBTileDir = ""
			},
			wantErr: true,
		},
		{
			name: "missing evaluation dir",
			modify: func(c *Config) {
				c.EvaluationTileDir = ""
			},
			wantErr: true,
		},
		{
			name: "bad resolution",
			modify: func(c *Config) {
				c.RGBRes = 0
			},
			wantErr: true,
		},
		{
			name: "bad overlap",
			modify: func(c *Config) {
				c.WindowOverlap = 1.0
			},
			wantErr: true,
		},
		{
			name: "tracking key not needed when disabled",
			modify: func(c *Config) {
				c.Tracking = TrackingConfig{Disabled: true}
			},
			wantErr: false,
		},
		{
			name: "tracking key required when enabled",
			modify: func(c *Config) {
				c.Tracking.APIKey = ""
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			cfg := &Config{}
			setDefaults(cfg)
			cfg.RGBTileDir = "/data/tiles"
			cfg.EvaluationTileDir = "/data/eval/OSBS"
			cfg.Tracking.BaseURL = "https://tracking.example.com"
			cfg.Tracking.APIKey = "secret"

			tc.modify(cfg)

			err := cfg.Validate()

			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSite(t *testing.T) {

	cfg := &Config{EvaluationTileDir: "/data/eval/OSBS/"}

	if got := cfg.Site(); got != "OSBS" {
		t.Errorf("Site() = %s, want OSBS", got)
	}
}

func TestParamsWithholdsAPIKey(t *testing.T) {

	cfg := &Config{Tracking: TrackingConfig{APIKey: "secret"}}

	for name := range cfg.Params() {
		if strings.Contains(name, "api_key") {
			t.Errorf("Params() leaks %s", name)
		}
	}
}
