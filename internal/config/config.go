package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "ratesync.yaml"

// Config holds all ratesync configuration.
type Config struct {
	// Input files
	Dataset string `yaml:"dataset" toml:"dataset"`
	Target  string `yaml:"target" toml:"target"`

	Patch   PatchConfig   `yaml:"patch" toml:"patch"`
	Report  ReportConfig  `yaml:"report" toml:"report"`
	Check   CheckConfig   `yaml:"check" toml:"check"`
	Watch   WatchConfig   `yaml:"watch" toml:"watch"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// PatchConfig configures the patcher.
type PatchConfig struct {
	SplitTolerance int  `yaml:"split_tolerance" toml:"split_tolerance"` // entering/exiting difference that is still "insignificant"
	ExtendedFields bool `yaml:"extended_fields" toml:"extended_fields"` // also patch r_squared, sample_size, weekday
	KeepGoing      bool `yaml:"keep_going" toml:"keep_going"`           // skip malformed codes instead of aborting
}

// ReportConfig configures the significant-change report.
type ReportConfig struct {
	Limit int `yaml:"limit" toml:"limit"` // notes printed before "... and N more"
}

// CheckConfig configures the discrepancy check.
type CheckConfig struct {
	RateTolerancePct float64 `yaml:"rate_tolerance_pct" toml:"rate_tolerance_pct"`
	SplitTolerance   int     `yaml:"split_tolerance" toml:"split_tolerance"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	Debounce string `yaml:"debounce" toml:"debounce"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // console, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Dataset: filepath.Join("data", "ite_11th_primary.json"),
		Target:  filepath.Join("assets", "js", "ite-database.js"),
		Patch: PatchConfig{
			SplitTolerance: 5,
		},
		Report: ReportConfig{
			Limit: 20,
		},
		Check: CheckConfig{
			RateTolerancePct: 10,
			SplitTolerance:   10,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML or TOML file (chosen by extension).
// A missing file yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML or TOML (chosen by extension).
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RATESYNC_DATASET"); v != "" {
		c.Dataset = v
	}
	if v := os.Getenv("RATESYNC_TARGET"); v != "" {
		c.Target = v
	}
	if v := os.Getenv("RATESYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// GetDebounce returns the watch debounce as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Dataset) == "" {
		return fmt.Errorf("dataset path not configured")
	}
	if strings.TrimSpace(c.Target) == "" {
		return fmt.Errorf("target path not configured")
	}
	if c.Patch.SplitTolerance < 0 {
		return fmt.Errorf("patch.split_tolerance must be >= 0, got %d", c.Patch.SplitTolerance)
	}
	if c.Report.Limit <= 0 {
		return fmt.Errorf("report.limit must be > 0, got %d", c.Report.Limit)
	}
	if c.Check.RateTolerancePct <= 0 {
		return fmt.Errorf("check.rate_tolerance_pct must be > 0, got %g", c.Check.RateTolerancePct)
	}
	if c.Check.SplitTolerance <= 0 {
		return fmt.Errorf("check.split_tolerance must be > 0, got %d", c.Check.SplitTolerance)
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("invalid watch.debounce %q: %w", c.Watch.Debounce, err)
		}
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s (valid: console, json)", c.Logging.Format)
	}
	return nil
}
