// Package config handles configuration loading, validation, and management for arrowtail.
package config

import (
	"os"
	"strconv"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Source configuration for the watched file source.
	Source SourceConfig `toml:"source" json:"source" yaml:"source"`

	// Watch configuration for change detection.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// Engine configuration for the query engine.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// View configuration for the trace/metric view.
	View ViewConfig `toml:"view" json:"view" yaml:"view"`

	// Dashboard configuration for the HTTP server.
	Dashboard DashboardConfig `toml:"dashboard" json:"dashboard" yaml:"dashboard"`

	// Metrics configuration for the Prometheus endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// SourceConfig selects and configures the file source.
type SourceConfig struct {
	// Type is the source type: "dir" or "s3".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the watched directory (for dir sources).
	Path string `toml:"path" json:"path" yaml:"path"`

	// S3 holds bucket settings (for s3 sources).
	S3 S3Config `toml:"s3" json:"s3" yaml:"s3"`
}

// S3Config holds S3/MinIO bucket settings.
type S3Config struct {
	Endpoint  string `toml:"endpoint" json:"endpoint" yaml:"endpoint"`
	Bucket    string `toml:"bucket" json:"bucket" yaml:"bucket"`
	Prefix    string `toml:"prefix" json:"prefix" yaml:"prefix"`
	Region    string `toml:"region" json:"region" yaml:"region"`
	AccessKey string `toml:"access_key" json:"access_key" yaml:"access_key"`
	SecretKey string `toml:"secret_key" json:"secret_key" yaml:"secret_key"`
}

// WatchConfig holds change detection configuration.
type WatchConfig struct {
	// PollIntervalMs is the detection pass interval in milliseconds.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`

	// SettleDelayMs is the fixed delay before reading a changed file,
	// reducing the chance of catching a torn write.
	SettleDelayMs int `toml:"settle_delay_ms" json:"settle_delay_ms" yaml:"settle_delay_ms"`

	// MaxFileSize is the soft size ceiling in bytes. Oversize files are
	// still read in full; a warning is logged.
	MaxFileSize int64 `toml:"max_file_size" json:"max_file_size" yaml:"max_file_size"`

	// IncludePatterns are glob patterns for files to watch.
	// If empty, all files are watched.
	IncludePatterns []string `toml:"include_patterns" json:"include_patterns" yaml:"include_patterns"`

	// FsHints enables fsnotify wake hints for directory sources.
	// Polling remains the source of truth either way.
	FsHints bool `toml:"fs_hints" json:"fs_hints" yaml:"fs_hints"`
}

// EngineConfig holds query engine configuration.
type EngineConfig struct {
	// Path is the sqlite database path. Empty means in-memory.
	Path string `toml:"path" json:"path" yaml:"path"`

	// MaxLoadedTables is the ceiling on concurrently registered tables.
	MaxLoadedTables int `toml:"max_loaded_tables" json:"max_loaded_tables" yaml:"max_loaded_tables"`
}

// ViewConfig holds view-layer configuration.
type ViewConfig struct {
	// LiveTail appends new data to the view instead of replacing it.
	LiveTail bool `toml:"live_tail" json:"live_tail" yaml:"live_tail"`

	// MaxTraces is the ceiling on trace rows held in the view.
	MaxTraces int `toml:"max_traces" json:"max_traces" yaml:"max_traces"`

	// MaxGraphPoints is the ceiling on metric points held in the view.
	MaxGraphPoints int `toml:"max_graph_points" json:"max_graph_points" yaml:"max_graph_points"`

	// RefreshIntervalMs is the periodic live-tail refresh interval.
	// Zero disables the timer; refreshes then only follow ingestion.
	// Note: append delivery skips rows timestamped at or below the newest
	// row already in view, and only a replace cycle picks those up. Keep
	// the timer enabled when producers emit out-of-order rows.
	RefreshIntervalMs int `toml:"refresh_interval_ms" json:"refresh_interval_ms" yaml:"refresh_interval_ms"`

	// ServiceFilter restricts trace queries to one service name.
	ServiceFilter string `toml:"service_filter" json:"service_filter" yaml:"service_filter"`
}

// DashboardConfig holds HTTP dashboard configuration.
type DashboardConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Listen is the host:port the dashboard binds to.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`

	// StaticDir is the directory of dashboard assets to serve.
	StaticDir string `toml:"static_dir" json:"static_dir" yaml:"static_dir"`
}

// MetricsConfig holds Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Listen is the host:port the metrics endpoint binds to.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `toml:"level" json:"level" yaml:"level"`
	Format   string `toml:"format" json:"format" yaml:"format"`
	Output   string `toml:"output" json:"output" yaml:"output"`
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Source: SourceConfig{
			Type: "dir",
			Path: ".",
		},
		Watch: WatchConfig{
			PollIntervalMs:  1000,
			SettleDelayMs:   150,
			MaxFileSize:     256 << 20, // 256 MB
			IncludePatterns: []string{"*.arrow", "*.arrows"},
			FsHints:         true,
		},
		Engine: EngineConfig{
			Path:            "", // in-memory
			MaxLoadedTables: 32,
		},
		View: ViewConfig{
			LiveTail:          true,
			MaxTraces:         5000,
			MaxGraphPoints:    2000,
			RefreshIntervalMs: 2000,
		},
		Dashboard: DashboardConfig{
			Enabled:   true,
			Listen:    "127.0.0.1:8787",
			StaticDir: "dashboard",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// PollInterval returns the polling interval as a duration.
func (w *WatchConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMs) * time.Millisecond
}

// SettleDelay returns the pre-read settle delay as a duration.
func (w *WatchConfig) SettleDelay() time.Duration {
	return time.Duration(w.SettleDelayMs) * time.Millisecond
}

// RefreshInterval returns the periodic refresh interval as a duration.
func (v *ViewConfig) RefreshInterval() time.Duration {
	return time.Duration(v.RefreshIntervalMs) * time.Millisecond
}

// ApplyEnvOverrides applies ARROWTAIL_* environment overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ARROWTAIL_SOURCE_PATH"); v != "" {
		c.Source.Path = v
	}
	if v := os.Getenv("ARROWTAIL_SOURCE_TYPE"); v != "" {
		c.Source.Type = v
	}
	if v := os.Getenv("ARROWTAIL_S3_BUCKET"); v != "" {
		c.Source.S3.Bucket = v
	}
	if v := os.Getenv("ARROWTAIL_S3_ENDPOINT"); v != "" {
		c.Source.S3.Endpoint = v
	}
	if v := os.Getenv("ARROWTAIL_S3_ACCESS_KEY"); v != "" {
		c.Source.S3.AccessKey = v
	}
	if v := os.Getenv("ARROWTAIL_S3_SECRET_KEY"); v != "" {
		c.Source.S3.SecretKey = v
	}
	if v := os.Getenv("ARROWTAIL_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Watch.PollIntervalMs = n
		}
	}
	if v := os.Getenv("ARROWTAIL_ENGINE_PATH"); v != "" {
		c.Engine.Path = v
	}
	if v := os.Getenv("ARROWTAIL_DASHBOARD_LISTEN"); v != "" {
		c.Dashboard.Listen = v
	}
	if v := os.Getenv("ARROWTAIL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}
