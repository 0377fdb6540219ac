// Package config provides configuration types and defaults for depscope.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/depscope/internal/flags"
	"github.com/zjrosen/depscope/internal/log"
	"github.com/zjrosen/depscope/internal/tracing"
)

// Config holds all configuration options for depscope.
type Config struct {
	Log     LogConfig       `mapstructure:"log"`
	Tracing tracing.Config  `mapstructure:"tracing"`
	Cache   CacheConfig     `mapstructure:"cache"`
	Watch   WatchConfig     `mapstructure:"watch"`
	Output  OutputConfig    `mapstructure:"output"`
	Flags   map[string]bool `mapstructure:"flags"`
}

// LogConfig controls the category logger.
type LogConfig struct {
	// Level is the minimum level written: debug, info, warn or error.
	Level string `mapstructure:"level"`
	// File is the log destination. Logging is off when empty and --debug is
	// not given.
	File string `mapstructure:"file"`
}

// CacheConfig controls the scope query cache.
type CacheConfig struct {
	// TTL bounds how long a cached lookup survives without a membership
	// change. Zero keeps entries until the next change.
	TTL time.Duration `mapstructure:"ttl"`
}

// WatchConfig controls `depscope watch`.
type WatchConfig struct {
	// Debounce is how long to wait after the last file event before
	// re-running the manifest.
	Debounce time.Duration `mapstructure:"debounce"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	// Format is "text" (default) or "json".
	Format string `mapstructure:"format"`
	// Color enables styled text output.
	Color bool `mapstructure:"color"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	tc := tracing.DefaultConfig()
	tc.FilePath = DefaultTracesFilePath()
	return Config{
		Log:     LogConfig{Level: "info"},
		Tracing: tc,
		Cache:   CacheConfig{TTL: 0},
		Watch:   WatchConfig{Debounce: 200 * time.Millisecond},
		Output:  OutputConfig{Format: "text", Color: true},
		Flags:   flags.Defaults(),
	}
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/depscope/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "depscope", "traces", "traces.jsonl")
}

// Validate checks every section and returns the first problem found.
func (c Config) Validate() error {
	if err := ValidateLog(c.Log); err != nil {
		return err
	}
	if err := ValidateTracing(c.Tracing); err != nil {
		return err
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %s", c.Cache.TTL)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	return ValidateOutput(c.Output)
}

// ValidateLog checks the log section.
func ValidateLog(lc LogConfig) error {
	switch lc.Level {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", lc.Level)
	}
}

// ValidateOutput checks the output section. An empty format means text.
func ValidateOutput(oc OutputConfig) error {
	switch oc.Format {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("output.format must be \"text\" or \"json\", got %q", oc.Format)
	}
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}

	if tc.Exporter != "" {
		switch tc.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
		}
	}

	// Path requirements only matter when tracing is on.
	if tc.Enabled {
		if tc.Exporter == "file" && tc.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tc.Exporter == "otlp" && tc.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// FlagRegistry builds the flag registry, filling unset flags from defaults.
func (c Config) FlagRegistry() *flags.Registry {
	merged := flags.Defaults()
	for name, v := range c.Flags {
		merged[name] = v
	}
	return flags.New(merged)
}

// DefaultConfigTemplate returns the config written by `depscope config init`.
func DefaultConfigTemplate() string {
	return `# depscope configuration

# Logging
log:
  level: info          # debug, info, warn, error
  # file: depscope.log # log destination; --log-file overrides

# Report rendering
output:
  format: text         # text or json
  color: true

# Lookup cache used by scope finders. Entries are dropped on every
# membership change; ttl additionally bounds their age (0 = no bound).
cache:
  ttl: 0s

# Debounce for 'depscope watch'
watch:
  debounce: 200ms

# Feature flags
flags:
  query-cache: false     # memoize lookups by descriptor
  publish-events: true   # include membership changes in run reports
  vet-logging: false     # log every strict-occupancy check on removal

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # none, file, stdout, otlp (default: file)
#   file_path: ~/.config/depscope/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
