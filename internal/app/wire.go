package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/calside/betsim/internal/blob/s3"
	"github.com/calside/betsim/internal/cache/redis"
	"github.com/calside/betsim/internal/config"
	"github.com/calside/betsim/internal/domain"
	"github.com/calside/betsim/internal/store/postgres"
)

// Dependencies bundles the external-infrastructure dependencies that the
// application modes need to operate. Every field is optional; modes check
// for nil and skip the corresponding feature. Dependencies is constructed
// by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// OrderStore persists simulated orders when Postgres is enabled.
	OrderStore domain.OrderStore

	// BookCache and SignalBus carry ladder snapshots and change events
	// when Redis is enabled.
	BookCache domain.BookCache
	SignalBus domain.SignalBus

	// BlobWriter uploads capture archives when S3 is configured.
	BlobWriter domain.BlobWriter

	// BlobReader fetches archived capture days for replay when S3 is
	// configured.
	BlobReader domain.BlobReader
}

// needsS3 returns true for modes that use object storage: capture uploads
// archives, replay downloads them when the day is missing locally.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case config.ModeCapture:
		return cfg.Capture.ArchiveToS3
	case config.ModeReplay:
		return cfg.S3.Bucket != ""
	default:
		return false
	}
}

// Wire constructs concrete implementations of the enabled external
// dependencies from the given configuration and returns them together with
// a cleanup function that should be called on shutdown to release
// resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (simulated order persistence) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.OrderStore = postgres.NewOrderStore(pgClient.Pool())
		logger.InfoContext(ctx, "postgres order store wired")
	}

	// --- Redis (book snapshots and change publication) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.BookCache = redis.NewBookCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		logger.InfoContext(ctx, "redis book cache and signal bus wired")
	}

	// --- S3 blob storage (capture archival, replay restore) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		logger.InfoContext(ctx, "s3 blob storage wired",
			slog.String("bucket", cfg.S3.Bucket))
	}

	return deps, cleanup, nil
}
