package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/calside/betsim/internal/domain"
	"github.com/calside/betsim/internal/market"
)

// ChangePublisher pushes a market's normalized change stream to external
// consumers: the latest per-outcome book snapshot goes to the cache, every
// change event to the signal bus. Cache failures stop the publisher; bus
// failures are logged and skipped, a consumer catches up from the cache.
type ChangePublisher struct {
	cache  domain.BookCache
	bus    domain.SignalBus
	logger *slog.Logger
}

func NewChangePublisher(cache domain.BookCache, bus domain.SignalBus, logger *slog.Logger) *ChangePublisher {
	return &ChangePublisher{
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "change_publisher")),
	}
}

// ChangeChannel returns the bus channel carrying a market's change events.
func ChangeChannel(marketID string) string {
	return "changes:" + marketID
}

// Run consumes the market's change stream until it closes or ctx is
// cancelled.
func (p *ChangePublisher) Run(ctx context.Context, m *market.Market) error {
	ch, cancel := m.SubscribeChanges(0)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-ch:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, m, change); err != nil {
				return err
			}
		}
	}
}

func (p *ChangePublisher) publish(ctx context.Context, m *market.Market, change domain.MarketChange) error {
	for _, oc := range change.Outcomes {
		if oc.OrderBook == nil || oc.OrderBook.Empty() {
			continue
		}
		outcome, ok := m.Outcome(oc.ID)
		if !ok {
			continue
		}
		book := outcome.Snapshot()
		snap := domain.BookSnapshot{
			MarketID:  m.ID(),
			OutcomeID: oc.ID,
			ToBack:    book.ToBack(),
			ToLay:     book.ToLay(),
			Traded:    book.Traded(),
			Timestamp: oc.Timestamp,
		}
		if err := p.cache.SetSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("caching book snapshot for %s/%s: %w", m.ID(), oc.ID, err)
		}
	}

	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encoding change for %s: %w", m.ID(), err)
	}
	if err := p.bus.Publish(ctx, ChangeChannel(m.ID()), payload); err != nil {
		p.logger.Warn("change publish failed",
			slog.String("market_id", m.ID()),
			slog.String("error", err.Error()))
	}
	return nil
}
