// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. NETCARVE_LOG_LEVEL.
const EnvPrefix = "NETCARVE"

// Config is the top-level configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Capture CaptureConfig `mapstructure:"capture"`
	Extract ExtractConfig `mapstructure:"extract"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Feed    FeedConfig    `mapstructure:"feed"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`   // trace / debug / info / warn / error
	Pattern string           `mapstructure:"pattern"` // %time %level %field %msg %caller %func %goroutine %n
	Time    string           `mapstructure:"time"`    // Go reference-time layout
	File    FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Capture ───

// CaptureConfig controls live capture handles.
type CaptureConfig struct {
	SnapLen     int           `mapstructure:"snap_len"`
	Promiscuous bool          `mapstructure:"promiscuous"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	QueueSize   int           `mapstructure:"queue_size"` // Bounded hand-off queue to consumers
	BPFFilter   string        `mapstructure:"bpf_filter"`
}

// ─── Extraction ───

// ExtractConfig controls where carved files are written.
type ExtractConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Manifest  string `mapstructure:"manifest"` // File name inside OutputDir
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Live feed ───

// FeedConfig configures the websocket packet feed.
type FeedConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Listen       string `mapstructure:"listen"`
	Path         string `mapstructure:"path"`
	ClientBuffer int    `mapstructure:"client_buffer"` // Per-client send queue; full queues drop
}

// ─── Loading ───

// Load loads configuration from path. An empty path yields defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Key "log.level" maps to env NETCARVE_LOG_LEVEL.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// Defaults always validate; only a bad env override lands here.
		panic(err)
	}
	return cfg
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pattern", "%time [%level] %msg %field%n")
	v.SetDefault("log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "netcarve.log")
	v.SetDefault("log.file.rotation.max_size_mb", 100)
	v.SetDefault("log.file.rotation.max_age_days", 30)
	v.SetDefault("log.file.rotation.max_backups", 5)
	v.SetDefault("log.file.rotation.compress", true)

	// Capture defaults
	v.SetDefault("capture.snap_len", 65535)
	v.SetDefault("capture.promiscuous", true)
	v.SetDefault("capture.read_timeout", "100ms")
	v.SetDefault("capture.queue_size", 1000)
	v.SetDefault("capture.bpf_filter", "")

	// Extraction defaults
	v.SetDefault("extract.output_dir", "extracted")
	v.SetDefault("extract.manifest", "manifest.yaml")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9091")
	v.SetDefault("metrics.path", "/metrics")

	// Feed defaults
	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.listen", ":8765")
	v.SetDefault("feed.path", "/ws")
	v.SetDefault("feed.client_buffer", 256)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("log.file.path is required when log.file.enabled=true")
	}

	// ── Capture validation ──
	if cfg.Capture.SnapLen <= 0 {
		return fmt.Errorf("capture.snap_len must be positive, got %d", cfg.Capture.SnapLen)
	}
	if cfg.Capture.QueueSize <= 0 {
		return fmt.Errorf("capture.queue_size must be positive, got %d", cfg.Capture.QueueSize)
	}
	if cfg.Capture.ReadTimeout <= 0 {
		cfg.Capture.ReadTimeout = 100 * time.Millisecond
	}

	// ── Extraction ──
	if cfg.Extract.OutputDir == "" {
		cfg.Extract.OutputDir = "extracted"
	}
	if cfg.Extract.Manifest == "" {
		cfg.Extract.Manifest = "manifest.yaml"
	}

	// ── Feed ──
	if cfg.Feed.ClientBuffer <= 0 {
		cfg.Feed.ClientBuffer = 256
	}

	return nil
}
