// Package config handles configuration loading and validation for arrowtail.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateSource(&c.Source)...)
	errs = append(errs, validateWatch(&c.Watch)...)
	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateView(&c.View)...)
	errs = append(errs, validateListen("dashboard.listen", c.Dashboard.Listen, c.Dashboard.Enabled)...)
	errs = append(errs, validateListen("metrics.listen", c.Metrics.Listen, c.Metrics.Enabled)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateSource(s *SourceConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case "dir":
		if s.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "source.path",
				Message: "required for dir sources",
			})
		}
	case "s3":
		if s.S3.Bucket == "" {
			errs = append(errs, ValidationError{
				Field:   "source.s3.bucket",
				Message: "required for s3 sources",
			})
		}
		if s.S3.Region == "" && s.S3.Endpoint == "" {
			errs = append(errs, ValidationError{
				Field:   "source.s3.region",
				Message: "either region or endpoint must be set",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "source.type",
			Message: fmt.Sprintf("unknown source type %q (want dir or s3)", s.Type),
		})
	}

	return errs
}

func validateWatch(w *WatchConfig) ValidationErrors {
	var errs ValidationErrors

	if w.PollIntervalMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.poll_interval_ms",
			Message: "must be positive",
		})
	}
	if w.SettleDelayMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.settle_delay_ms",
			Message: "must not be negative",
		})
	}
	if w.MaxFileSize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.max_file_size",
			Message: "must be positive",
		})
	}
	for _, pat := range w.IncludePatterns {
		if _, err := filepath.Match(pat, "probe"); err != nil {
			errs = append(errs, ValidationError{
				Field:   "watch.include_patterns",
				Message: fmt.Sprintf("invalid pattern %q: %v", pat, err),
			})
		}
	}

	return errs
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if e.MaxLoadedTables <= 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.max_loaded_tables",
			Message: "must be positive",
		})
	}

	return errs
}

func validateView(v *ViewConfig) ValidationErrors {
	var errs ValidationErrors

	if v.MaxTraces <= 0 {
		errs = append(errs, ValidationError{
			Field:   "view.max_traces",
			Message: "must be positive",
		})
	}
	if v.MaxGraphPoints <= 0 {
		errs = append(errs, ValidationError{
			Field:   "view.max_graph_points",
			Message: "must be positive",
		})
	}
	if v.RefreshIntervalMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "view.refresh_interval_ms",
			Message: "must not be negative",
		})
	}

	return errs
}

func validateListen(field, listen string, enabled bool) ValidationErrors {
	if !enabled {
		return nil
	}
	if listen == "" {
		return ValidationErrors{{Field: field, Message: "required when enabled"}}
	}
	if _, _, err := net.SplitHostPort(listen); err != nil {
		return ValidationErrors{{
			Field:   field,
			Message: fmt.Sprintf("invalid listen address %q: %v", listen, err),
		}}
	}
	return nil
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", l.Level),
		})
	}
	switch strings.ToLower(l.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q", l.Format),
		})
	}
	switch strings.ToLower(l.Output) {
	case "", "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("required for output %q", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("unknown output %q", l.Output),
		})
	}

	return errs
}
