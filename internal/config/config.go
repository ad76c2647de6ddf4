// Package config loads the aggregated Config struct for pi-exthost: one
// sub-config per component (runtime worker, manager, VFS, session store,
// event dispatcher, observability, HTTP control surface), loaded from a
// JSON or YAML file plus environment variable overrides, in the style of
// internal/config/config.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig holds JS runtime worker settings.
type RuntimeConfig struct {
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout"` // per-dispatch watchdog timeout
	QueueDepth     int           `json:"queue_depth" yaml:"queue_depth"`         // loaded but not read by the runtime worker, whose job channel is unbuffered
}

// ManagerConfig holds extension-manager settings.
type ManagerConfig struct {
	DefaultActiveTools []string `json:"default_active_tools" yaml:"default_active_tools"` // nil/empty means all tools active
}

// VFSConfig holds virtual filesystem shim settings.
type VFSConfig struct {
	ExtensionRoot     string   `json:"extension_root" yaml:"extension_root"`         // host directory extensions may read through the text-asset fallback
	TextAssetExtensions []string `json:"text_asset_extensions" yaml:"text_asset_extensions"` // e.g. ".md", ".txt", ".json"
}

// SessionStoreConfig holds session-store settings.
type SessionStoreConfig struct {
	Dir            string `json:"dir" yaml:"dir"`
	MaxSegmentBytes int64 `json:"max_segment_bytes" yaml:"max_segment_bytes"`
}

// DispatcherConfig holds event-dispatcher settings.
type DispatcherConfig struct {
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Exporter    string  `json:"exporter" yaml:"exporter"` // otlp-http, stdout
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled          bool      `json:"enabled" yaml:"enabled"`
	Namespace        string    `json:"namespace" yaml:"namespace"`
	HistogramBuckets []float64 `json:"histogram_buckets" yaml:"histogram_buckets"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level          string `json:"level" yaml:"level"` // debug, info, warn, error
	Format         string `json:"format" yaml:"format"` // text, json (applies to logging.Op() only; logging.Default() is always JSONL)
	IncludeTraceID bool   `json:"include_trace_id" yaml:"include_trace_id"`
	EventLogPath   string `json:"event_log_path" yaml:"event_log_path"` // JSONL destination for logging.Default()
}

// ObservabilityConfig aggregates tracing/metrics/logging settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// HTTPConfig holds the control-surface HTTP server settings.
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Config is the central configuration struct aggregating every component's
// sub-config.
type Config struct {
	Runtime       RuntimeConfig       `json:"runtime" yaml:"runtime"`
	Manager       ManagerConfig       `json:"manager" yaml:"manager"`
	VFS           VFSConfig           `json:"vfs" yaml:"vfs"`
	SessionStore  SessionStoreConfig  `json:"session_store" yaml:"session_store"`
	Dispatcher    DispatcherConfig    `json:"dispatcher" yaml:"dispatcher"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	HTTP          HTTPConfig          `json:"http" yaml:"http"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			DefaultTimeout: 5 * time.Second,
			QueueDepth:     32,
		},
		Manager: ManagerConfig{
			DefaultActiveTools: nil,
		},
		VFS: VFSConfig{
			ExtensionRoot:       "",
			TextAssetExtensions: []string{".md", ".txt", ".json", ".yaml", ".yml"},
		},
		SessionStore: SessionStoreConfig{
			Dir:             "/tmp/pi-exthost/sessions",
			MaxSegmentBytes: 16 << 20,
		},
		Dispatcher: DispatcherConfig{
			DefaultTimeout: 5 * time.Second,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "pi-exthost",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:          true,
				Namespace:        "pi_exthost",
				HistogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			Logging: LoggingConfig{
				Level:          "info",
				Format:         "text",
				IncludeTraceID: true,
				EventLogPath:   "/tmp/pi-exthost/events.jsonl",
			},
		},
		HTTP: HTTPConfig{
			Addr: ":8741",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, deciding the
// decoder by file extension (.json vs .yaml/.yml).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml %s: %w", path, err)
		}
	case ".json", "":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse json %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config: unrecognized config extension %q", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config, using a
// PREFIX_SECTION_FIELD naming convention.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PI_EXTHOST_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	if v := os.Getenv("PI_EXTHOST_RUNTIME_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Runtime.DefaultTimeout = d
		}
	}
	if v := os.Getenv("PI_EXTHOST_RUNTIME_QUEUE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runtime.QueueDepth = n
		}
	}

	if v := os.Getenv("PI_EXTHOST_VFS_EXTENSION_ROOT"); v != "" {
		cfg.VFS.ExtensionRoot = v
	}
	if v := os.Getenv("PI_EXTHOST_VFS_TEXT_ASSET_EXTENSIONS"); v != "" {
		cfg.VFS.TextAssetExtensions = strings.Split(v, ",")
	}

	if v := os.Getenv("PI_EXTHOST_SESSION_STORE_DIR"); v != "" {
		cfg.SessionStore.Dir = v
	}
	if v := os.Getenv("PI_EXTHOST_SESSION_STORE_MAX_SEGMENT_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.SessionStore.MaxSegmentBytes = n
		}
	}

	if v := os.Getenv("PI_EXTHOST_DISPATCHER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dispatcher.DefaultTimeout = d
		}
	}

	if v := os.Getenv("PI_EXTHOST_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("PI_EXTHOST_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("PI_EXTHOST_TRACING_EXPORTER"); v != "" {
		cfg.Observability.Tracing.Exporter = v
	}
	if v := os.Getenv("PI_EXTHOST_TRACING_SERVICE_NAME"); v != "" {
		cfg.Observability.Tracing.ServiceName = v
	}
	if v := os.Getenv("PI_EXTHOST_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = f
		}
	}

	if v := os.Getenv("PI_EXTHOST_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("PI_EXTHOST_METRICS_NAMESPACE"); v != "" {
		cfg.Observability.Metrics.Namespace = v
	}

	if v := os.Getenv("PI_EXTHOST_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("PI_EXTHOST_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("PI_EXTHOST_LOG_INCLUDE_TRACE_ID"); v != "" {
		cfg.Observability.Logging.IncludeTraceID = parseBool(v)
	}
	if v := os.Getenv("PI_EXTHOST_EVENT_LOG_PATH"); v != "" {
		cfg.Observability.Logging.EventLogPath = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
