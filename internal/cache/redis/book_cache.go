package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calside/betsim/internal/domain"
)

// snapshotTTL expires stale book snapshots; a market that stops updating
// disappears from the cache instead of serving hours-old ladders.
const snapshotTTL = 24 * time.Hour

// BookCache implements domain.BookCache using one JSON value per
// (market, outcome) at key "book:{marketID}:{outcomeID}".
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func bookKey(marketID, outcomeID string) string {
	return "book:" + marketID + ":" + outcomeID
}

// SetSnapshot stores the latest book snapshot for an outcome.
func (bc *BookCache) SetSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot %s/%s: %w", snap.MarketID, snap.OutcomeID, err)
	}
	key := bookKey(snap.MarketID, snap.OutcomeID)
	if err := bc.rdb.Set(ctx, key, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", key, err)
	}
	return nil
}

// GetSnapshot retrieves the latest book snapshot for an outcome. It
// returns domain.ErrNotFound when no snapshot is cached.
func (bc *BookCache) GetSnapshot(ctx context.Context, marketID, outcomeID string) (domain.BookSnapshot, error) {
	key := bookKey(marketID, outcomeID)
	data, err := bc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BookSnapshot{}, domain.ErrNotFound
		}
		return domain.BookSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", key, err)
	}

	var snap domain.BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: decode snapshot %s: %w", key, err)
	}
	return snap, nil
}

var _ domain.BookCache = (*BookCache)(nil)
