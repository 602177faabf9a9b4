// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
)

// Supported store drivers and fetch modes.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	FetchModeConcurrent = "concurrent"
	FetchModeSequential = "sequential"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Harvest HarvestConfig `mapstructure:"harvest"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Server  ServerConfig  `mapstructure:"server"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// HarvestConfig governs the pipeline.
type HarvestConfig struct {
	GiaTypes               []string `mapstructure:"gia_types"`
	Subjects               []string `mapstructure:"subjects"`
	FetchMode              string   `mapstructure:"fetch_mode"`
	FetchConcurrency       int      `mapstructure:"fetch_concurrency"`
	DiscoveryConcurrency   int      `mapstructure:"discovery_concurrency"`
	RequestsPerSecond      float64  `mapstructure:"requests_per_second"`
	PacingMinMs            int      `mapstructure:"pacing_min_ms"`
	PacingMaxMs            int      `mapstructure:"pacing_max_ms"`
	ContinueOnSubjectError bool     `mapstructure:"continue_on_subject_error"`
	HostTemplate           string   `mapstructure:"host_template"`
}

// HTTPConfig configures the fetcher and its retry policy.
type HTTPConfig struct {
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	UserAgent          string `mapstructure:"user_agent"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	RetryMinMs         int    `mapstructure:"retry_min_ms"`
	RetryMaxMs         int    `mapstructure:"retry_max_ms"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// DBConfig selects and configures the problem store.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ServerConfig controls the API server.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// PubSubConfig holds metadata for batch notifications. An empty topic
// disables them.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from an optional file plus FIPIBANK_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FIPIBANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.gia_types", []string{string(bank.GiaEGE)})
	v.SetDefault("harvest.subjects", []string{})
	v.SetDefault("harvest.fetch_mode", FetchModeSequential)
	v.SetDefault("harvest.fetch_concurrency", 4)
	v.SetDefault("harvest.discovery_concurrency", 4)
	v.SetDefault("harvest.requests_per_second", 2.0)
	v.SetDefault("harvest.pacing_min_ms", 1000)
	v.SetDefault("harvest.pacing_max_ms", 3000)
	v.SetDefault("harvest.continue_on_subject_error", false)
	v.SetDefault("harvest.host_template", bank.DefaultHostTemplate)
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.user_agent", "fipibank-harvester/1.0")
	v.SetDefault("http.max_attempts", bank.DefaultMaxAttempts)
	v.SetDefault("http.retry_min_ms", bank.DefaultRetryMinDelay.Milliseconds())
	v.SetDefault("http.retry_max_ms", bank.DefaultRetryMaxDelay.Milliseconds())
	v.SetDefault("http.insecure_skip_verify", true)
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.dsn", "fipibank.db")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("server.port", 3636)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Harvest.GiaTypes) == 0 {
		return fmt.Errorf("harvest.gia_types must not be empty")
	}
	for _, raw := range c.Harvest.GiaTypes {
		if _, err := bank.ParseGiaType(raw); err != nil {
			return fmt.Errorf("harvest.gia_types: %w", err)
		}
	}
	switch c.Harvest.FetchMode {
	case FetchModeConcurrent, FetchModeSequential:
	default:
		return fmt.Errorf("harvest.fetch_mode must be %q or %q, got %q",
			FetchModeConcurrent, FetchModeSequential, c.Harvest.FetchMode)
	}
	if c.Harvest.FetchConcurrency <= 0 {
		return fmt.Errorf("harvest.fetch_concurrency must be > 0")
	}
	if c.Harvest.DiscoveryConcurrency <= 0 {
		return fmt.Errorf("harvest.discovery_concurrency must be > 0")
	}
	if c.Harvest.RequestsPerSecond < 0 {
		return fmt.Errorf("harvest.requests_per_second must be >= 0")
	}
	if c.Harvest.PacingMinMs < 0 || c.Harvest.PacingMaxMs < c.Harvest.PacingMinMs {
		return fmt.Errorf("harvest.pacing_max_ms must be >= harvest.pacing_min_ms >= 0")
	}
	if !strings.Contains(c.Harvest.HostTemplate, "%s") {
		return fmt.Errorf("harvest.host_template must contain %%s for the gia type")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts < 0 {
		return fmt.Errorf("http.max_attempts must be >= 0 (0 retries forever)")
	}
	if c.HTTP.RetryMinMs < 0 || c.HTTP.RetryMaxMs < c.HTTP.RetryMinMs {
		return fmt.Errorf("http.retry_max_ms must be >= http.retry_min_ms >= 0")
	}
	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DB.Driver)
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// GiaTypes returns the parsed gia types. Validate has already vetted them.
func (c Config) GiaTypes() []bank.GiaType {
	out := make([]bank.GiaType, 0, len(c.Harvest.GiaTypes))
	for _, raw := range c.Harvest.GiaTypes {
		if g, err := bank.ParseGiaType(raw); err == nil {
			out = append(out, g)
		}
	}
	return out
}

// RequestTimeout returns the per-request fetch timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryBounds returns the retry delay window.
func (c Config) RetryBounds() (time.Duration, time.Duration) {
	return time.Duration(c.HTTP.RetryMinMs) * time.Millisecond, time.Duration(c.HTTP.RetryMaxMs) * time.Millisecond
}

// PacingBounds returns the sequential-mode pause window.
func (c Config) PacingBounds() (time.Duration, time.Duration) {
	return time.Duration(c.Harvest.PacingMinMs) * time.Millisecond, time.Duration(c.Harvest.PacingMaxMs) * time.Millisecond
}
