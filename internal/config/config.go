// Package config centralizes runtime configuration. Defaults are declared
// in code, optionally overridden by a YAML file, then by SCOUT_* environment
// variables (SCOUT_WORKER_POLL_INTERVAL maps to worker.poll_interval).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "SCOUT_CONFIG"

// defaultConfigPaths are tried in order; the first file found wins.
var defaultConfigPaths = []string{
	"barcodescout.yaml",
	"barcodescout.yml",
	"/etc/barcodescout/config.yaml",
}

// Config is the full runtime configuration tree.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Scraper ScraperConfig `koanf:"scraper"`
	Worker  WorkerConfig  `koanf:"worker"`
	Log     LogConfig     `koanf:"log"`
}

// ServerConfig controls the HTTP control API.
type ServerConfig struct {
	Address string `koanf:"address"`
}

// StoreConfig controls the embedded document store.
type StoreConfig struct {
	// Dir is the badger data directory. Empty means in-memory, which is
	// only useful for tests.
	Dir string `koanf:"dir"`
}

// ScraperConfig controls the browser fetch path and its HTTP fallback.
type ScraperConfig struct {
	// Host is the product-lookup site; the canonical URL for a barcode is
	// https://<host>/01/<barcode>.
	Host       string `koanf:"host"`
	UserAgent  string `koanf:"user_agent"`
	BrowserBin string `koanf:"browser_bin"`
	Headless   bool   `koanf:"headless"`

	PageTimeout time.Duration `koanf:"page_timeout"`

	// Post-navigation human-mimicry delay, drawn uniformly from the range.
	NavigateDelayMin time.Duration `koanf:"navigate_delay_min"`
	NavigateDelayMax time.Duration `koanf:"navigate_delay_max"`
	// Extra settle time for lazy-loaded images before extraction.
	ImageSettleWait time.Duration `koanf:"image_settle_wait"`

	FallbackAttempts int           `koanf:"fallback_attempts"`
	FallbackTimeout  time.Duration `koanf:"fallback_timeout"`
}

// WorkerConfig controls the background processing loop.
type WorkerConfig struct {
	// PollInterval is the sleep between queue polls when the queue is empty.
	PollInterval time.Duration `koanf:"poll_interval"`
	// ErrorCooldown is the sleep after an error escapes the batch logic.
	ErrorCooldown time.Duration `koanf:"error_cooldown"`

	// Inter-item pacing range. One request every few seconds keeps the
	// scraping footprint close to a human browsing the site.
	ItemDelayMin time.Duration `koanf:"item_delay_min"`
	ItemDelayMax time.Duration `koanf:"item_delay_max"`
	// Occasionally a longer pause is taken instead; LongDelayOdds is the
	// 1-in-N chance of it (0 disables).
	LongDelayMin  time.Duration `koanf:"long_delay_min"`
	LongDelayMax  time.Duration `koanf:"long_delay_max"`
	LongDelayOdds int           `koanf:"long_delay_odds"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address: ":8080",
		},
		Store: StoreConfig{
			Dir: "data/barcodescout",
		},
		Scraper: ScraperConfig{
			Host:             "smartconsumer-beta.org",
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			BrowserBin:       "",
			Headless:         true,
			PageTimeout:      30 * time.Second,
			NavigateDelayMin: 2 * time.Second,
			NavigateDelayMax: 4 * time.Second,
			ImageSettleWait:  3 * time.Second,
			FallbackAttempts: 3,
			FallbackTimeout:  15 * time.Second,
		},
		Worker: WorkerConfig{
			PollInterval:  30 * time.Second,
			ErrorCooldown: 60 * time.Second,
			ItemDelayMin:  2 * time.Second,
			ItemDelayMax:  6 * time.Second,
			LongDelayMin:  8 * time.Second,
			LongDelayMax:  15 * time.Second,
			LongDelayOdds: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// SCOUT_* environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider("SCOUT_", ".", envTransformFunc), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects ranges the worker could not run with.
func (c *Config) Validate() error {
	if c.Scraper.Host == "" {
		return fmt.Errorf("scraper.host must not be empty")
	}
	if c.Scraper.NavigateDelayMax < c.Scraper.NavigateDelayMin {
		return fmt.Errorf("scraper.navigate_delay_max below navigate_delay_min")
	}
	if c.Worker.ItemDelayMax < c.Worker.ItemDelayMin {
		return fmt.Errorf("worker.item_delay_max below item_delay_min")
	}
	if c.Worker.ItemDelayMin < 0 {
		return fmt.Errorf("worker.item_delay_min must not be negative")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive")
	}
	if c.Scraper.FallbackAttempts <= 0 {
		c.Scraper.FallbackAttempts = 1
	}
	return nil
}

// envTransformFunc maps SCOUT_WORKER_POLL_INTERVAL to worker.poll_interval:
// the first underscore separates the section, the rest stays snake_case.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "SCOUT_"))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
