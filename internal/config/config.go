// Package config defines the top-level configuration for betsim and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Valid run modes.
const (
	ModeReplay  = "replay"
	ModeCapture = "capture"
	ModeLive    = "live"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BETSIM_* environment
// variables.
type Config struct {
	Replay   ReplayConfig   `toml:"replay"`
	Capture  CaptureConfig  `toml:"capture"`
	Venue    VenueConfig    `toml:"venue"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ReplayConfig holds parameters for a simulation run over recorded
// history.
type ReplayConfig struct {
	// HistoryDir is the root of the local history store.
	HistoryDir string `toml:"history_dir"`

	// Date selects the capture day to replay, formatted 2006-01-02.
	Date string `toml:"date"`

	// Markets restricts the replay to the listed market ids. Empty means
	// every market recorded for the date.
	Markets []string `toml:"markets"`

	// TraceDir enables the CSV trade trace when non-empty.
	TraceDir string `toml:"trace_dir"`
}

// ParseDate returns the replay date.
func (c ReplayConfig) ParseDate() (time.Time, error) {
	return time.Parse("2006-01-02", c.Date)
}

// CaptureConfig holds parameters for recording live streams.
type CaptureConfig struct {
	// HistoryDir is the root of the local history store.
	HistoryDir string `toml:"history_dir"`

	// Markets lists the market ids to record.
	Markets []string `toml:"markets"`

	// ArchiveToS3 uploads the day's files to blob storage on shutdown.
	ArchiveToS3 bool `toml:"archive_to_s3"`
}

// VenueConfig holds the live venue stream parameters.
type VenueConfig struct {
	// WsURL is the venue websocket endpoint delivering normalized
	// observations.
	WsURL string `toml:"ws_url"`

	// Markets lists the market ids to follow in live mode.
	Markets []string `toml:"markets"`
}

// PostgresConfig holds PostgreSQL connection parameters for simulated
// order persistence.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for change publishing.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for capture
// archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Defaults returns the built-in configuration baseline.
func Defaults() Config {
	return Config{
		Replay: ReplayConfig{
			HistoryDir: "data/history",
		},
		Capture: CaptureConfig{
			HistoryDir: "data/history",
		},
		Postgres: PostgresConfig{
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   8,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Mode:     ModeReplay,
		LogLevel: "info",
	}
}

// Validate checks the configuration for the selected mode and returns a
// single error listing every problem found.
func (c *Config) Validate() error {
	var problems []string

	switch c.Mode {
	case ModeReplay:
		if c.Replay.HistoryDir == "" {
			problems = append(problems, "replay.history_dir is required")
		}
		if c.Replay.Date == "" {
			problems = append(problems, "replay.date is required")
		} else if _, err := c.Replay.ParseDate(); err != nil {
			problems = append(problems, fmt.Sprintf("replay.date %q is not a valid 2006-01-02 date", c.Replay.Date))
		}
	case ModeCapture:
		if c.Capture.HistoryDir == "" {
			problems = append(problems, "capture.history_dir is required")
		}
		if len(c.Capture.Markets) == 0 {
			problems = append(problems, "capture.markets must list at least one market id")
		}
		if c.Venue.WsURL == "" {
			problems = append(problems, "venue.ws_url is required in capture mode")
		}
		if c.Capture.ArchiveToS3 {
			if c.S3.Bucket == "" {
				problems = append(problems, "s3.bucket is required when capture.archive_to_s3 is set")
			}
			if c.S3.Region == "" {
				problems = append(problems, "s3.region is required when capture.archive_to_s3 is set")
			}
		}
	case ModeLive:
		if c.Venue.WsURL == "" {
			problems = append(problems, "venue.ws_url is required in live mode")
		}
		if len(c.Venue.Markets) == 0 {
			problems = append(problems, "venue.markets must list at least one market id in live mode")
		}
	default:
		problems = append(problems, fmt.Sprintf("mode %q must be one of replay, capture, live", c.Mode))
	}

	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		if c.Postgres.Host == "" {
			problems = append(problems, "postgres.host or postgres.dsn is required when postgres.enabled is set")
		}
		if c.Postgres.Database == "" {
			problems = append(problems, "postgres.database is required when postgres.enabled is set")
		}
		if c.Postgres.User == "" {
			problems = append(problems, "postgres.user is required when postgres.enabled is set")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when redis.enabled is set")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error", "":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
