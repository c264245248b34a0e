package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/calside/betsim/internal/domain"
)

// OrderRecorder persists the order lifecycle carried by an observation
// stream: the first sighting of an order id creates a row, later sightings
// update status and filled size. Feeding it the coordinator's merged
// stream captures every simulated placement, fill, and cancellation.
type OrderRecorder struct {
	store  domain.OrderStore
	runID  string
	logger *slog.Logger

	seen map[string]struct{}
}

func NewOrderRecorder(store domain.OrderStore, runID string, logger *slog.Logger) *OrderRecorder {
	return &OrderRecorder{
		store:  store,
		runID:  runID,
		logger: logger.With(slog.String("component", "order_recorder"), slog.String("run_id", runID)),
		seen:   make(map[string]struct{}),
	}
}

// Run consumes observations until the channel closes or ctx is cancelled.
func (r *OrderRecorder) Run(ctx context.Context, ch <-chan domain.MarketObservation) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case obs, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.record(ctx, obs); err != nil {
				return err
			}
		}
	}
}

func (r *OrderRecorder) record(ctx context.Context, obs domain.MarketObservation) error {
	for _, oo := range obs.Outcomes {
		for _, order := range oo.Orders {
			if _, ok := r.seen[order.ID]; !ok {
				if err := r.store.Create(ctx, r.runID, order); err != nil {
					return fmt.Errorf("persisting order %s: %w", order.ID, err)
				}
				r.seen[order.ID] = struct{}{}
				if order.Status == domain.OrderStatusOpen {
					continue
				}
			}
			if err := r.store.UpdateStatus(ctx, order.ID, order.Status, order.SizeFilled); err != nil {
				return fmt.Errorf("updating order %s: %w", order.ID, err)
			}
		}
	}
	return nil
}
