// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"
	// Embeds the zone database so report.timezone resolves on minimal images.
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/JakeFAU/area-listing-scraper/internal/scraper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Classify ClassifyConfig `mapstructure:"classify"`
	Cancel   CancelConfig   `mapstructure:"cancel"`
	Areas    AreasConfig    `mapstructure:"areas"`
	Report   ReportConfig   `mapstructure:"report"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScraperConfig governs fetching and fan-out.
type ScraperConfig struct {
	MaxWorkers            int     `mapstructure:"max_workers"`
	RequestWaitSeconds    float64 `mapstructure:"request_wait_seconds"`
	RetryCount            int     `mapstructure:"retry_count"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	UserAgent             string  `mapstructure:"user_agent"`
	RespectRobots         bool    `mapstructure:"respect_robots"`
	RateLimitRPS          float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst        int     `mapstructure:"rate_limit_burst"`
	ThrottleSeconds       float64 `mapstructure:"throttle_seconds"`
	SelectorsFile         string  `mapstructure:"selectors_file"`
}

// ClassifyConfig holds exclusion rule parameters.
type ClassifyConfig struct {
	ExcludedCategorySegment string `mapstructure:"excluded_category_segment"`
}

// CancelConfig selects and tunes the cancellation signal store.
type CancelConfig struct {
	Backend        string      `mapstructure:"backend"`
	Dir            string      `mapstructure:"dir"`
	TimeoutSeconds int         `mapstructure:"timeout_seconds"`
	RetentionHours int         `mapstructure:"retention_hours"`
	Redis          RedisConfig `mapstructure:"redis"`
}

// RedisConfig addresses the shared Redis signal store.
type RedisConfig struct {
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`
}

// AreasConfig selects the area metadata store.
type AreasConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	DSN        string `mapstructure:"dsn"`
	Table      string `mapstructure:"table"`
	MaxConns   int32  `mapstructure:"max_conns"`
	CSVPath    string `mapstructure:"csv_path"`
}

// ReportConfig selects where generated workbooks are stored.
type ReportConfig struct {
	Backend   string `mapstructure:"backend"`
	OutputDir string `mapstructure:"output_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	// Timezone names the IANA location used for file name dates.
	Timezone string `mapstructure:"timezone"`
}

// PubSubConfig holds metadata for job completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("scraper.max_workers", 5)
	v.SetDefault("scraper.request_wait_seconds", 1)
	v.SetDefault("scraper.retry_count", 3)
	v.SetDefault("scraper.request_timeout_seconds", 20)
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (compatible; area-listing-scraper/0.1)")
	v.SetDefault("scraper.respect_robots", false)
	v.SetDefault("scraper.rate_limit_rps", 0)
	v.SetDefault("scraper.rate_limit_burst", 1)
	v.SetDefault("scraper.throttle_seconds", 30)
	v.SetDefault("scraper.selectors_file", "")
	v.SetDefault("classify.excluded_category_segment", "/kr/")
	v.SetDefault("cancel.backend", "file")
	v.SetDefault("cancel.dir", "cancel_signals")
	v.SetDefault("cancel.timeout_seconds", 300)
	v.SetDefault("cancel.retention_hours", 24)
	v.SetDefault("cancel.redis.addr", "")
	v.SetDefault("cancel.redis.prefix", "scraper:cancel:")
	v.SetDefault("areas.backend", "sqlite")
	v.SetDefault("areas.sqlite_path", "data/areas.db")
	v.SetDefault("areas.dsn", "")
	v.SetDefault("areas.table", "areas")
	v.SetDefault("areas.max_conns", 4)
	v.SetDefault("areas.csv_path", "")
	v.SetDefault("report.backend", "local")
	v.SetDefault("report.output_dir", "output")
	v.SetDefault("report.gcs_bucket", "")
	v.SetDefault("report.prefix", "reports")
	v.SetDefault("report.timezone", "Asia/Tokyo")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.MaxWorkers <= 0 {
		return fmt.Errorf("scraper.max_workers must be > 0")
	}
	if c.Scraper.RetryCount <= 0 {
		return fmt.Errorf("scraper.retry_count must be > 0")
	}
	if c.Scraper.RequestWaitSeconds < 0 {
		return fmt.Errorf("scraper.request_wait_seconds must be >= 0")
	}
	if c.Scraper.ThrottleSeconds < 0 {
		return fmt.Errorf("scraper.throttle_seconds must be >= 0")
	}
	if c.Scraper.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.request_timeout_seconds must be > 0")
	}
	if c.Cancel.TimeoutSeconds <= 0 {
		return fmt.Errorf("cancel.timeout_seconds must be > 0")
	}
	switch c.Cancel.Backend {
	case "file":
		if c.Cancel.Dir == "" {
			return fmt.Errorf("cancel.dir is required for the file backend")
		}
	case "redis":
		if c.Cancel.Redis.Addr == "" {
			return fmt.Errorf("cancel.redis.addr is required for the redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown cancel.backend %q", c.Cancel.Backend)
	}
	switch c.Areas.Backend {
	case "sqlite":
		if c.Areas.SQLitePath == "" {
			return fmt.Errorf("areas.sqlite_path is required for the sqlite backend")
		}
	case "postgres":
		if c.Areas.DSN == "" {
			return fmt.Errorf("areas.dsn is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown areas.backend %q", c.Areas.Backend)
	}
	switch c.Report.Backend {
	case "local":
		if c.Report.OutputDir == "" {
			return fmt.Errorf("report.output_dir is required for the local backend")
		}
	case "gcs":
		if c.Report.GCSBucket == "" {
			return fmt.Errorf("report.gcs_bucket is required for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown report.backend %q", c.Report.Backend)
	}
	if _, err := c.ReportLocation(); err != nil {
		return err
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// RequestWait converts the pacing delay into a duration.
func (c Config) RequestWait() time.Duration {
	return time.Duration(c.Scraper.RequestWaitSeconds * float64(time.Second))
}

// Throttle is how long a host is paused after it answers 429 or 503.
func (c Config) Throttle() time.Duration {
	return time.Duration(c.Scraper.ThrottleSeconds * float64(time.Second))
}

// RequestTimeout converts the per-GET timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Scraper.RequestTimeoutSeconds) * time.Second
}

// CancelWindow is the freshness window of cancellation signals.
func (c Config) CancelWindow() time.Duration {
	return time.Duration(c.Cancel.TimeoutSeconds) * time.Second
}

// CancelRetention is the age past which sweeps remove signals.
func (c Config) CancelRetention() time.Duration {
	return time.Duration(c.Cancel.RetentionHours) * time.Hour
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// ReportLocation resolves report.timezone. Empty means UTC.
func (c Config) ReportLocation() (*time.Location, error) {
	if c.Report.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return nil, fmt.Errorf("report.timezone: %w", err)
	}
	return loc, nil
}

// LoadSelectors reads a selectors document (JSON or YAML, by extension) and
// fills missing keys from scraper.DefaultSelectors. An empty path yields the
// defaults.
func LoadSelectors(path string) (scraper.Selectors, error) {
	if path == "" {
		return scraper.DefaultSelectors(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return scraper.Selectors{}, fmt.Errorf("read selectors: %w", err)
	}
	var sel scraper.Selectors
	if err := v.Unmarshal(&sel); err != nil {
		return scraper.Selectors{}, fmt.Errorf("unmarshal selectors: %w", err)
	}
	return sel.WithDefaults(), nil
}
