// Package config loads settings from an optional YAML file with environment
// overrides. Every field has a working default so the binary runs with no
// config at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "168h" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Source   SourceConfig   `yaml:"source"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// SourceConfig identifies the site being crawled.
type SourceConfig struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	StartPath string `yaml:"start_path"`
	Country   string `yaml:"country"`
}

type CrawlConfig struct {
	MaxBrands         int      `yaml:"max_brands"`
	MaxModelsPerBrand int      `yaml:"max_models_per_brand"`
	MaxPagesPerModel  int      `yaml:"max_pages_per_model"`
	DetailConcurrency int      `yaml:"detail_concurrency"`
	StaleAfter        Duration `yaml:"stale_after"`
	TargetBrands      []string `yaml:"target_brands"`
	GeocodeRegions    int      `yaml:"geocode_regions"`
	Schedule          string   `yaml:"schedule"` // cron expression
}

type FetchConfig struct {
	Retries       int      `yaml:"retries"`
	RetryDelay    Duration `yaml:"retry_delay"`
	Timeout       Duration `yaml:"timeout"`
	RatePerSecond float64  `yaml:"rate_per_second"`
	CachePath     string   `yaml:"cache_path"`
	CacheTTL      Duration `yaml:"cache_ttl"`
	DebugDir      string   `yaml:"debug_dir"`
	UseBrowser    bool     `yaml:"use_browser"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "data/carmarket.db"},
		Server:   ServerConfig{Port: 8080},
		Source: SourceConfig{
			Name:      "ss.lv",
			BaseURL:   "https://www.ss.lv",
			StartPath: "/lv/transport/cars/",
			Country:   "Latvia",
		},
		Crawl: CrawlConfig{
			MaxPagesPerModel:  3,
			DetailConcurrency: 3,
			StaleAfter:        Duration(14 * 24 * time.Hour),
			GeocodeRegions:    10,
			Schedule:          "0 3 * * *",
		},
		Fetch: FetchConfig{
			Retries:       3,
			RetryDelay:    Duration(time.Second),
			Timeout:       Duration(10 * time.Second),
			RatePerSecond: 2,
			CachePath:     "data/fetch-cache.db",
			CacheTTL:      Duration(time.Hour),
		},
		Log: LogConfig{Level: "info", Pretty: true},
	}
}

// Load builds the config: defaults, then the YAML file when path is non-empty
// or ./config.yaml exists, then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overrides the fields deployments most often need to vary.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CARMARKET_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CARMARKET_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("CARMARKET_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("CARMARKET_START_PATH"); v != "" {
		cfg.Source.StartPath = v
	}
	if v := os.Getenv("CARMARKET_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CARMARKET_SCHEDULE"); v != "" {
		cfg.Crawl.Schedule = v
	}
	if v := os.Getenv("CARMARKET_DEBUG_DIR"); v != "" {
		cfg.Fetch.DebugDir = v
	}
}
