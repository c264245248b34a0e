package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calside/betsim/internal/domain"
	"github.com/calside/betsim/internal/stream"
)

// Outcome is the stateful aggregate for a single runner/selection: one order
// book, the set of known orders, current status, and last-update time.
// ApplyObservation is the only path that mutates it.
type Outcome struct {
	id   string
	name string

	mu         sync.Mutex
	book       *OrderBook
	orders     map[string]domain.Order
	status     domain.OutcomeStatus
	lastUpdate time.Time

	changes *stream.Stream[domain.OutcomeChange]
}

// OutcomeFromObservation builds an Outcome from its first observation.
func OutcomeFromObservation(obs domain.OutcomeObservation) *Outcome {
	status := domain.OutcomeStatusActive
	if obs.Status != nil {
		status = *obs.Status
	}
	book := NewOrderBook()
	if obs.OrderBook != nil {
		book = BookFromObservation(*obs.OrderBook)
	}
	o := &Outcome{
		id:         obs.ID,
		name:       obs.Name,
		book:       book,
		orders:     make(map[string]domain.Order, len(obs.Orders)),
		status:     status,
		lastUpdate: obs.Timestamp,
		changes:    stream.New[domain.OutcomeChange](),
	}
	for _, order := range obs.Orders {
		o.orders[order.ID] = order
	}
	return o
}

// ID returns the outcome id.
func (o *Outcome) ID() string { return o.id }

// Name returns the outcome display name.
func (o *Outcome) Name() string { return o.name }

// Status returns the current outcome status.
func (o *Outcome) Status() domain.OutcomeStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// LastUpdate returns the timestamp of the most recently applied observation.
func (o *Outcome) LastUpdate() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastUpdate
}

// Snapshot returns an independent point-in-time copy of the outcome's book.
func (o *Outcome) Snapshot() *OrderBook {
	return o.book.Snapshot()
}

// Orders returns a copy of the order map.
func (o *Outcome) Orders() map[string]domain.Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]domain.Order, len(o.orders))
	for id, order := range o.orders {
		out[id] = order
	}
	return out
}

// SubscribeChanges registers a subscriber on the outcome's change stream. A
// late subscriber sees only future changes; current state is available via
// Snapshot and Orders.
func (o *Outcome) SubscribeChanges(buffer int) (<-chan domain.OutcomeChange, func()) {
	return o.changes.Subscribe(buffer)
}

// ApplyObservation merges an observation into the outcome's state and
// publishes the resulting change. An order update for an order already in a
// terminal state is ignored; feeds deliver out of order and a stale update
// must not resurrect a filled or cancelled order.
func (o *Outcome) ApplyObservation(obs domain.OutcomeObservation) domain.OutcomeChange {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.lastUpdate = obs.Timestamp

	if obs.FullSnap {
		o.orders = make(map[string]domain.Order)
	}
	for _, order := range obs.Orders {
		existing, ok := o.orders[order.ID]
		if !ok || existing.Status == domain.OrderStatusOpen {
			o.orders[order.ID] = order
		}
	}

	if obs.Status != nil {
		o.status = *obs.Status
	}

	var bookChange *domain.OrderBookChange
	if obs.OrderBook != nil {
		bc := o.book.Update(*obs.OrderBook)
		bookChange = &bc
	}

	change := domain.OutcomeChange{
		ID:        obs.ID,
		Timestamp: obs.Timestamp,
		Status:    o.status,
		OrderBook: bookChange,
		Orders:    obs.Orders,
	}
	o.changes.Publish(change)
	return change
}

// CalculatePnl marks the filled orders against the two candidate best prices
// and returns the lower of the two valuations. The conservative minimum is
// deliberate: a mid-price mark materially overstates open positions near
// expiry.
func (o *Outcome) CalculatePnl(bestToBack, bestToLay decimal.Decimal) decimal.Decimal {
	o.mu.Lock()
	orders := make([]domain.Order, 0, len(o.orders))
	for _, order := range o.orders {
		orders = append(orders, order)
	}
	o.mu.Unlock()

	one := decimal.NewFromInt(1)
	atBack := decimal.Zero
	atLay := decimal.Zero
	for _, order := range orders {
		if order.Status != domain.OrderStatusFilled {
			continue
		}
		switch order.Side {
		case domain.OrderSideBack:
			atBack = atBack.Add(order.SizeFilled.Mul(order.Price.Div(bestToBack).Sub(one)))
			atLay = atLay.Add(order.SizeFilled.Mul(order.Price.Div(bestToLay).Sub(one)))
		case domain.OrderSideLay:
			atBack = atBack.Add(order.SizeFilled.Mul(one.Sub(order.Price.Div(bestToBack))))
			atLay = atLay.Add(order.SizeFilled.Mul(one.Sub(order.Price.Div(bestToLay))))
		}
	}

	if atBack.LessThan(atLay) {
		return atBack
	}
	return atLay
}

// Close terminates the outcome's change stream.
func (o *Outcome) Close() {
	o.changes.Close()
}
