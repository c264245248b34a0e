package domain

import "context"

// MarketDataSource is the capability a strategy needs from any venue session:
// a per-market observation stream plus order mutation. The live and replay
// implementations expose identical semantics, so strategy code cannot tell a
// simulated fill from a live acknowledgement.
type MarketDataSource interface {
	// Subscribe returns a channel of observations for one market together
	// with a cancel function that releases the subscription. The channel is
	// closed when the source terminates or the subscription is cancelled.
	Subscribe(marketID string) (<-chan MarketObservation, func(), error)

	// HasStream reports whether the source can deliver observations for the
	// given market.
	HasStream(marketID string) bool

	// PlaceOrders submits order requests. Acknowledgements are delivered
	// asynchronously through the observation stream, never as return values.
	PlaceOrders(ctx context.Context, requests []OrderRequest) error

	// CancelOrders requests cancellation of previously placed orders.
	CancelOrders(ctx context.Context, orders []Order) error
}
