package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusSuspended MarketStatus = "suspended"
	MarketStatusClosed    MarketStatus = "closed"
)

// OutcomeStatus represents the lifecycle state of a single outcome.
type OutcomeStatus string

const (
	OutcomeStatusActive  OutcomeStatus = "active"
	OutcomeStatusWinner  OutcomeStatus = "winner"
	OutcomeStatusLoser   OutcomeStatus = "loser"
	OutcomeStatusRemoved OutcomeStatus = "removed"
)

// OrderBookObservation is a snapshot or delta of the three price ladders for
// one outcome, as delivered by a venue adapter. When FullSnap is set the
// observation is authoritative: any stored price absent from it must be
// removed.
type OrderBookObservation struct {
	ToLay    []PriceLevel     `json:"to_lay,omitempty"`
	ToBack   []PriceLevel     `json:"to_back,omitempty"`
	Traded   []PriceLevel     `json:"traded,omitempty"`
	Volume   *decimal.Decimal `json:"volume,omitempty"`
	FullSnap bool             `json:"full_snap,omitempty"`
}

// OutcomeObservation is an externally produced, possibly partial view of one
// outcome: a ladder delta, a set of order updates, and/or a status change.
type OutcomeObservation struct {
	ID        string                `json:"id"`
	Timestamp time.Time             `json:"timestamp"`
	Name      string                `json:"name,omitempty"`
	Status    *OutcomeStatus        `json:"status,omitempty"`
	OrderBook *OrderBookObservation `json:"order_book,omitempty"`
	Orders    []Order               `json:"orders,omitempty"`
	Handicap  *decimal.Decimal      `json:"handicap,omitempty"`
	FullSnap  bool                  `json:"full_snap,omitempty"`
}

// MarketObservation is the unit delivered by every source, live or replayed.
// It is the sole input to the reconstruction layer.
type MarketObservation struct {
	ID        string               `json:"id"`
	Start     *time.Time           `json:"start,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Name      string               `json:"name,omitempty"`
	Status    *MarketStatus        `json:"status,omitempty"`
	Type      string               `json:"type,omitempty"`
	Volume    *decimal.Decimal     `json:"volume,omitempty"`
	Outcomes  []OutcomeObservation `json:"outcomes,omitempty"`
}

// TimestampedObservation pairs a market observation with its original capture
// timestamp, the unit buffered and replayed by the scheduler and stored in
// history files.
type TimestampedObservation struct {
	Timestamp   time.Time         `json:"timestamp"`
	Observation MarketObservation `json:"observation"`
}

// OrdersToObservation wraps a batch of order updates for one market into a
// MarketObservation, grouping the orders by outcome. It is how simulated
// order acknowledgements re-enter the observation stream so that a strategy
// receives them through the same channel as venue-observed changes.
func OrdersToObservation(marketID string, ts time.Time, orders []Order) MarketObservation {
	byOutcome := make(map[string][]Order)
	var outcomeIDs []string
	for _, o := range orders {
		if o.MarketID != marketID {
			continue
		}
		if _, seen := byOutcome[o.OutcomeID]; !seen {
			outcomeIDs = append(outcomeIDs, o.OutcomeID)
		}
		byOutcome[o.OutcomeID] = append(byOutcome[o.OutcomeID], o)
	}

	outcomes := make([]OutcomeObservation, 0, len(outcomeIDs))
	for _, id := range outcomeIDs {
		outcomes = append(outcomes, OutcomeObservation{
			ID:        id,
			Timestamp: ts,
			Orders:    byOutcome[id],
		})
	}

	return MarketObservation{
		ID:        marketID,
		Timestamp: ts,
		Outcomes:  outcomes,
	}
}
