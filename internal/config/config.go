package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Config holds application configuration.
type Config struct {
	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// LogLevel is a zerolog level name: debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is "console" (human readable, stderr) or "json".
	LogFormat string `json:"log_format,omitempty"`

	// SourceTimeoutMs bounds each health, location, calendar and battery read.
	SourceTimeoutMs int `json:"source_timeout_ms,omitempty"`

	// EnvironmentTimeoutMs bounds the environment lookup that follows a location fix.
	EnvironmentTimeoutMs int `json:"environment_timeout_ms,omitempty"`

	// RunBudgetSeconds bounds one background run. Must stay below the
	// platform's own execution budget so partial results are persisted.
	RunBudgetSeconds int `json:"run_budget_seconds,omitempty"`

	// InferenceTimeoutSeconds is the router's global per-call timeout.
	InferenceTimeoutSeconds int `json:"inference_timeout_seconds,omitempty"`

	// PlatformMinIntervalMinutes is the floor applied to the capture interval.
	PlatformMinIntervalMinutes int `json:"platform_min_interval_minutes,omitempty"`

	// BackoffBaseMinutes is the first retry delay after a failed run.
	BackoffBaseMinutes int `json:"backoff_base_minutes,omitempty"`

	// BackoffMaxMinutes caps the exponential retry delay.
	BackoffMaxMinutes int `json:"backoff_max_minutes,omitempty"`

	// MaxRetryAttempts caps consecutive retries of one slot before the
	// platform waits for the next period.
	MaxRetryAttempts int `json:"max_retry_attempts,omitempty"`

	// AnnotateQueueSize bounds pending annotation work.
	AnnotateQueueSize int `json:"annotate_queue_size,omitempty"`

	// RemoteBaseURL is an OpenAI-compatible API root (".../v1").
	RemoteBaseURL string `json:"remote_base_url,omitempty"`

	// RemoteModel is the model name sent to the remote backend.
	RemoteModel string `json:"remote_model,omitempty"`

	// RemoteAPIKeyEnv names the environment variable holding the remote API key.
	RemoteAPIKeyEnv string `json:"remote_api_key_env,omitempty"`

	// LocalRuntimeURL is the on-device runtime endpoint.
	LocalRuntimeURL string `json:"local_runtime_url,omitempty"`

	// LocalModel is the model reference the local runtime pulls and loads.
	LocalModel string `json:"local_model,omitempty"`

	// WeatherBaseURL and AirQualityBaseURL point at Open-Meteo compatible APIs.
	WeatherBaseURL    string `json:"weather_base_url,omitempty"`
	AirQualityBaseURL string `json:"air_quality_base_url,omitempty"`

	// HomeLatitude/HomeLongitude/HomePlace describe a fixed location fix.
	// Without coordinates the location source is unavailable.
	HomeLatitude  *float64 `json:"home_latitude,omitempty"`
	HomeLongitude *float64 `json:"home_longitude,omitempty"`
	HomePlace     string   `json:"home_place,omitempty"`

	// HealthFile and CalendarFile are JSON exports written by a companion sync.
	HealthFile   string `json:"health_file,omitempty"`
	CalendarFile string `json:"calendar_file,omitempty"`

	// SourceMaxAgeMinutes marks file exports older than this as unavailable.
	SourceMaxAgeMinutes int `json:"source_max_age_minutes,omitempty"`

	// BatteryPath is a sysfs power_supply directory. Empty means auto-detect.
	BatteryPath string `json:"battery_path,omitempty"`

	// AllowedPaths is an allowlist of directories for exports.
	// Paths outside ~/.bodypress/exports require being in this list or AllowUnsafePaths=true.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for exports
	// (symlink and extension checks still apply).
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type names ("capture", "journal", "ai", "schedule", "annotate").
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// WebBind and WebPort configure the read-only journal view.
	WebBind string `json:"web_bind,omitempty"`
	WebPort int    `json:"web_port,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:                   "info",
		LogFormat:                  "console",
		SourceTimeoutMs:            5000,
		EnvironmentTimeoutMs:       8000,
		RunBudgetSeconds:           25,
		InferenceTimeoutSeconds:    120,
		PlatformMinIntervalMinutes: 15,
		BackoffBaseMinutes:         15,
		BackoffMaxMinutes:          300,
		MaxRetryAttempts:           5,
		AnnotateQueueSize:          64,
		RemoteBaseURL:              "https://api.openai.com/v1",
		RemoteModel:                "gpt-4o-mini",
		RemoteAPIKeyEnv:            "BODYPRESS_API_KEY",
		LocalRuntimeURL:            "http://127.0.0.1:11434",
		LocalModel:                 "gemma3:1b",
		WeatherBaseURL:             "https://api.open-meteo.com/v1/forecast",
		AirQualityBaseURL:          "https://air-quality-api.open-meteo.com/v1/air-quality",
		SourceMaxAgeMinutes:        24 * 60,
		WebBind:                    "127.0.0.1",
		WebPort:                    8765,
	}
}

// Durations derived from the millisecond/second/minute fields.

func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutMs) * time.Millisecond
}

func (c *Config) EnvironmentTimeout() time.Duration {
	return time.Duration(c.EnvironmentTimeoutMs) * time.Millisecond
}

func (c *Config) RunBudget() time.Duration {
	return time.Duration(c.RunBudgetSeconds) * time.Second
}

func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutSeconds) * time.Second
}

func (c *Config) PlatformMinInterval() time.Duration {
	return time.Duration(c.PlatformMinIntervalMinutes) * time.Minute
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMinutes) * time.Minute
}

func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMinutes) * time.Minute
}

func (c *Config) SourceMaxAge() time.Duration {
	return time.Duration(c.SourceMaxAgeMinutes) * time.Minute
}

// RemoteAPIKey reads the remote API key from the configured environment variable.
func (c *Config) RemoteAPIKey() string {
	if c.RemoteAPIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.RemoteAPIKeyEnv))
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.bodypress.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)
	result.LogFormat = pickString(overlay.LogFormat, base.LogFormat)
	result.SourceTimeoutMs = pickInt(overlay.SourceTimeoutMs, base.SourceTimeoutMs)
	result.EnvironmentTimeoutMs = pickInt(overlay.EnvironmentTimeoutMs, base.EnvironmentTimeoutMs)
	result.RunBudgetSeconds = pickInt(overlay.RunBudgetSeconds, base.RunBudgetSeconds)
	result.InferenceTimeoutSeconds = pickInt(overlay.InferenceTimeoutSeconds, base.InferenceTimeoutSeconds)
	result.PlatformMinIntervalMinutes = pickInt(overlay.PlatformMinIntervalMinutes, base.PlatformMinIntervalMinutes)
	result.BackoffBaseMinutes = pickInt(overlay.BackoffBaseMinutes, base.BackoffBaseMinutes)
	result.BackoffMaxMinutes = pickInt(overlay.BackoffMaxMinutes, base.BackoffMaxMinutes)
	result.MaxRetryAttempts = pickInt(overlay.MaxRetryAttempts, base.MaxRetryAttempts)
	result.AnnotateQueueSize = pickInt(overlay.AnnotateQueueSize, base.AnnotateQueueSize)
	result.RemoteBaseURL = pickString(overlay.RemoteBaseURL, base.RemoteBaseURL)
	result.RemoteModel = pickString(overlay.RemoteModel, base.RemoteModel)
	result.RemoteAPIKeyEnv = pickString(overlay.RemoteAPIKeyEnv, base.RemoteAPIKeyEnv)
	result.LocalRuntimeURL = pickString(overlay.LocalRuntimeURL, base.LocalRuntimeURL)
	result.LocalModel = pickString(overlay.LocalModel, base.LocalModel)
	result.WeatherBaseURL = pickString(overlay.WeatherBaseURL, base.WeatherBaseURL)
	result.AirQualityBaseURL = pickString(overlay.AirQualityBaseURL, base.AirQualityBaseURL)
	result.HomePlace = pickString(overlay.HomePlace, base.HomePlace)
	result.HealthFile = pickString(overlay.HealthFile, base.HealthFile)
	result.CalendarFile = pickString(overlay.CalendarFile, base.CalendarFile)
	result.SourceMaxAgeMinutes = pickInt(overlay.SourceMaxAgeMinutes, base.SourceMaxAgeMinutes)
	result.BatteryPath = pickString(overlay.BatteryPath, base.BatteryPath)
	result.WebBind = pickString(overlay.WebBind, base.WebBind)
	result.WebPort = pickInt(overlay.WebPort, base.WebPort)

	// Pointers: overlay wins if set (0.0 is a valid coordinate)
	result.HomeLatitude = base.HomeLatitude
	if overlay.HomeLatitude != nil {
		result.HomeLatitude = overlay.HomeLatitude
	}
	result.HomeLongitude = base.HomeLongitude
	if overlay.HomeLongitude != nil {
		result.HomeLongitude = overlay.HomeLongitude
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
