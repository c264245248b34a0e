package domain

import "time"

// OrderBookChange is the set of ladder diffs produced by applying one
// OrderBookObservation to an order book.
type OrderBookChange struct {
	ToLay  []LevelDiff `json:"to_lay,omitempty"`
	ToBack []LevelDiff `json:"to_back,omitempty"`
	Traded []LevelDiff `json:"traded,omitempty"`
}

// Empty reports whether the change carries no diffs on any ladder.
func (c OrderBookChange) Empty() bool {
	return len(c.ToLay) == 0 && len(c.ToBack) == 0 && len(c.Traded) == 0
}

// OutcomeChange is the normalized event emitted after an observation has been
// applied to an outcome: the ladder diffs, the orders carried by the
// observation, and the outcome's current (cumulative) status.
type OutcomeChange struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Status    OutcomeStatus    `json:"status"`
	OrderBook *OrderBookChange `json:"order_book,omitempty"`
	Orders    []Order          `json:"orders,omitempty"`
}

// MarketChange is the normalized event emitted after a market observation has
// been applied: the market's current status plus the per-outcome changes.
type MarketChange struct {
	Timestamp time.Time       `json:"timestamp"`
	Status    MarketStatus    `json:"status"`
	Outcomes  []OutcomeChange `json:"outcomes,omitempty"`
}
