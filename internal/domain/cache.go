package domain

import (
	"context"
	"time"
)

// BookSnapshot is the cached point-in-time ladder state for one outcome, as
// published for external consumers. A late subscriber reads this instead of
// replaying history.
type BookSnapshot struct {
	MarketID  string       `json:"market_id"`
	OutcomeID string       `json:"outcome_id"`
	ToBack    []PriceLevel `json:"to_back,omitempty"`
	ToLay     []PriceLevel `json:"to_lay,omitempty"`
	Traded    []PriceLevel `json:"traded,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// BookCache stores the latest book snapshot per (market, outcome).
type BookCache interface {
	SetSnapshot(ctx context.Context, snap BookSnapshot) error
	GetSnapshot(ctx context.Context, marketID, outcomeID string) (BookSnapshot, error)
}

// SignalBus provides pub/sub delivery of serialized change events to
// consumers outside the process.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
