package sim

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calside/betsim/internal/domain"
	"github.com/calside/betsim/internal/market"
)

// queuedOrder is a resting simulated order together with its estimated
// position in the venue's matching queue at its price.
type queuedOrder struct {
	order         domain.Order
	queuePosition decimal.Decimal
}

// OrderUpdate pairs an order state transition with the queue estimate at
// the time of the transition, for tracing.
type OrderUpdate struct {
	Order         domain.Order
	QueuePosition decimal.Decimal
}

// TradingState simulates execution for one market/outcome pair against the
// reconstructed order book.
//
// The fill model: an order placed at a price already quoted on its own
// side of the book is marketable and fills on the next book update.
// Otherwise it rests behind the volume already quoted on the opposite
// side at its price; while the opposite side keeps quoting the price,
// that queue estimate decays by the traded-volume delta observed at the
// price on each update, and the order fills when the estimate reaches
// zero. A price quoted on neither ladder yields no market evidence and
// leaves the order untouched. Fills are always for the full size.
type TradingState struct {
	marketID  string
	outcomeID string

	mu      sync.Mutex
	prev    *market.OrderBook
	resting []*queuedOrder
	cancels []string
	done    []domain.Order
}

func NewTradingState(marketID, outcomeID string) *TradingState {
	return &TradingState{marketID: marketID, outcomeID: outcomeID}
}

// Place enqueues open orders into the simulated queue. The queue estimate
// is taken from the opposite-side volume at the order's price in the book
// seen on the last update; with no book seen yet the estimate is zero.
func (s *TradingState) Place(orders []domain.Order) []OrderUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	updates := make([]OrderUpdate, 0, len(orders))
	for _, order := range orders {
		pos := decimal.Zero
		if s.prev != nil {
			switch order.Side {
			case domain.OrderSideBack:
				if size, ok := s.prev.LaySize(order.Price); ok {
					pos = size
				}
			case domain.OrderSideLay:
				if size, ok := s.prev.BackSize(order.Price); ok {
					pos = size
				}
			}
		}
		s.resting = append(s.resting, &queuedOrder{order: order, queuePosition: pos})
		updates = append(updates, OrderUpdate{Order: order, QueuePosition: pos})
	}
	return updates
}

// Cancel queues order ids for cancellation. The cancellation takes effect
// on the next book update, mirroring venue round-trip latency.
func (s *TradingState) Cancel(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels = append(s.cancels, ids...)
}

// Update advances the simulation to a new book snapshot. Queued
// cancellations are drained first, then every resting order is checked for
// a fill. The returned updates carry the orders that changed state.
func (s *TradingState) Update(ts time.Time, book *market.OrderBook) []OrderUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updates []OrderUpdate

	for _, id := range s.cancels {
		for i, qo := range s.resting {
			if qo.order.ID != id {
				continue
			}
			qo.order.Status = domain.OrderStatusCancelled
			s.done = append(s.done, qo.order)
			updates = append(updates, OrderUpdate{Order: qo.order, QueuePosition: qo.queuePosition})
			s.resting = append(s.resting[:i], s.resting[i+1:]...)
			break
		}
	}
	s.cancels = nil

	kept := s.resting[:0]
	for _, qo := range s.resting {
		filled := false
		if s.marketable(qo.order, book) {
			qo.queuePosition = decimal.Zero
			filled = true
		} else if s.prev != nil && s.opposing(qo.order, book) {
			delta := book.TradedSize(qo.order.Price).Sub(s.prev.TradedSize(qo.order.Price))
			qo.queuePosition = qo.queuePosition.Sub(delta)
			filled = !qo.queuePosition.IsPositive()
		}
		if filled {
			if qo.queuePosition.IsNegative() {
				qo.queuePosition = decimal.Zero
			}
			qo.order.Status = domain.OrderStatusFilled
			qo.order.SizeFilled = qo.order.Size
			s.done = append(s.done, qo.order)
			updates = append(updates, OrderUpdate{Order: qo.order, QueuePosition: qo.queuePosition})
			continue
		}
		kept = append(kept, qo)
	}
	s.resting = kept
	s.prev = book

	return updates
}

// marketable reports whether the order's price is quoted on its own side
// of the book, meaning the order could be matched immediately.
func (s *TradingState) marketable(order domain.Order, book *market.OrderBook) bool {
	switch order.Side {
	case domain.OrderSideBack:
		_, ok := book.BackSize(order.Price)
		return ok
	case domain.OrderSideLay:
		_, ok := book.LaySize(order.Price)
		return ok
	default:
		return false
	}
}

// opposing reports whether the opposing ladder quotes the order's price.
// Only then can traded volume at the price be attributed to the queue
// ahead of the order.
func (s *TradingState) opposing(order domain.Order, book *market.OrderBook) bool {
	switch order.Side {
	case domain.OrderSideBack:
		_, ok := book.LaySize(order.Price)
		return ok
	case domain.OrderSideLay:
		_, ok := book.BackSize(order.Price)
		return ok
	default:
		return false
	}
}

// Seed primes the previous book snapshot used for queue estimation, for
// states created after observations were already applied to the market.
func (s *TradingState) Seed(book *market.OrderBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prev == nil {
		s.prev = book
	}
}

// Orders returns every order the state has seen, resting and completed.
func (s *TradingState) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, 0, len(s.done)+len(s.resting))
	out = append(out, s.done...)
	for _, qo := range s.resting {
		out = append(out, qo.order)
	}
	return out
}

// Position returns the net filled size, lay minus back. A positive
// position means net liability against the outcome occurring.
func (s *TradingState) Position() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := decimal.Zero
	for _, order := range s.done {
		if order.Status != domain.OrderStatusFilled {
			continue
		}
		switch order.Side {
		case domain.OrderSideLay:
			pos = pos.Add(order.SizeFilled)
		case domain.OrderSideBack:
			pos = pos.Sub(order.SizeFilled)
		}
	}
	return pos
}

// Pnl marks the filled simulated orders against the current touch and
// returns the sum over all fills: a lay filled at price p contributes
// size*(1 - bestToBack/p), a back filled at p contributes
// size*(bestToLay/p - 1).
func (s *TradingState) Pnl(bestToBack, bestToLay decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	one := decimal.NewFromInt(1)
	pnl := decimal.Zero
	for _, order := range s.done {
		if order.Status != domain.OrderStatusFilled {
			continue
		}
		switch order.Side {
		case domain.OrderSideBack:
			pnl = pnl.Add(order.SizeFilled.Mul(bestToLay.Div(order.Price).Sub(one)))
		case domain.OrderSideLay:
			pnl = pnl.Add(order.SizeFilled.Mul(one.Sub(bestToBack.Div(order.Price))))
		}
	}
	return pnl
}
