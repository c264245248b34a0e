package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BETSIM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load. An empty path
// skips the file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BETSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Replay ──
	setStr(&cfg.Replay.HistoryDir, "BETSIM_REPLAY_HISTORY_DIR")
	setStr(&cfg.Replay.Date, "BETSIM_REPLAY_DATE")
	setStringSlice(&cfg.Replay.Markets, "BETSIM_REPLAY_MARKETS")
	setStr(&cfg.Replay.TraceDir, "BETSIM_REPLAY_TRACE_DIR")

	// ── Capture ──
	setStr(&cfg.Capture.HistoryDir, "BETSIM_CAPTURE_HISTORY_DIR")
	setStringSlice(&cfg.Capture.Markets, "BETSIM_CAPTURE_MARKETS")
	setBool(&cfg.Capture.ArchiveToS3, "BETSIM_CAPTURE_ARCHIVE_TO_S3")

	// ── Venue ──
	setStr(&cfg.Venue.WsURL, "BETSIM_VENUE_WS_URL")
	setStringSlice(&cfg.Venue.Markets, "BETSIM_VENUE_MARKETS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "BETSIM_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "BETSIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BETSIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BETSIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BETSIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BETSIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BETSIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BETSIM_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BETSIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BETSIM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BETSIM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BETSIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BETSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BETSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BETSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BETSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BETSIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BETSIM_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BETSIM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BETSIM_S3_REGION")
	setStr(&cfg.S3.Bucket, "BETSIM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BETSIM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BETSIM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BETSIM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BETSIM_S3_FORCE_PATH_STYLE")

	// ── Top-level ──
	setStr(&cfg.Mode, "BETSIM_MODE")
	setStr(&cfg.LogLevel, "BETSIM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
