// Package market implements the reconstruction layer: the three-ladder order
// book and the Outcome/Market aggregates that apply observation streams and
// republish normalized change events.
package market

import (
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/calside/betsim/internal/domain"
)

// priceKey renders a price in canonical form so that "2.5" and "2.50"
// address the same ladder level regardless of the exponent the source used.
func priceKey(p decimal.Decimal) string {
	s := p.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

// ladder maps canonical price keys to their level. A price with size zero is
// never stored.
type ladder map[string]domain.PriceLevel

func (l ladder) clone() ladder {
	out := make(ladder, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// levels returns the ladder contents sorted ascending by price.
func (l ladder) levels() []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(l))
	for _, lvl := range l {
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// applyDiff reconciles incoming levels against the ladder, emitting one
// LevelDiff per changed price. With fullSnap set, any stored price absent
// from the incoming set is removed with a diff to zero.
func (l ladder) applyDiff(changes []domain.PriceLevel, fullSnap bool) []domain.LevelDiff {
	var diffs []domain.LevelDiff
	for _, change := range changes {
		key := priceKey(change.Price)
		existing := decimal.Zero
		if lvl, ok := l[key]; ok {
			existing = lvl.Size
		}
		if existing.Equal(change.Size) {
			continue
		}
		if change.Size.IsZero() {
			delete(l, key)
		} else {
			l[key] = domain.PriceLevel{Price: change.Price, Size: change.Size}
		}
		diffs = append(diffs, domain.LevelDiff{Price: change.Price, OldSize: existing, NewSize: change.Size})
	}

	if fullSnap {
		seen := make(map[string]struct{}, len(changes))
		for _, change := range changes {
			seen[priceKey(change.Price)] = struct{}{}
		}
		for key, lvl := range l {
			if _, ok := seen[key]; ok {
				continue
			}
			delete(l, key)
			diffs = append(diffs, domain.LevelDiff{Price: lvl.Price, OldSize: lvl.Size, NewSize: decimal.Zero})
		}
	}

	return diffs
}

// OrderBook holds the three ladders for one outcome: available-to-lay,
// available-to-back, and cumulative traded volume per price. Mutation is
// exclusively owned by the Outcome holding the book; every other reader gets
// an independent copy via Snapshot.
type OrderBook struct {
	mu     sync.Mutex
	toLay  ladder
	toBack ladder
	traded ladder
}

// NewOrderBook creates an empty book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		toLay:  make(ladder),
		toBack: make(ladder),
		traded: make(ladder),
	}
}

// BookFromObservation builds a book pre-populated from an observation,
// discarding the diffs.
func BookFromObservation(obs domain.OrderBookObservation) *OrderBook {
	b := NewOrderBook()
	b.toLay.applyDiff(obs.ToLay, false)
	b.toBack.applyDiff(obs.ToBack, false)
	b.traded.applyDiff(obs.Traded, false)
	return b
}

// Update applies an observation to all three ladders under one lock and
// returns the combined diffs. Live feeds send incremental deltas; recovery
// paths send authoritative full snapshots, signalled by obs.FullSnap.
func (b *OrderBook) Update(obs domain.OrderBookObservation) domain.OrderBookChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.OrderBookChange{
		ToLay:  b.toLay.applyDiff(obs.ToLay, obs.FullSnap),
		ToBack: b.toBack.applyDiff(obs.ToBack, obs.FullSnap),
		Traded: b.traded.applyDiff(obs.Traded, obs.FullSnap),
	}
}

// Snapshot returns an independent point-in-time copy of the book, taken under
// the same lock used for mutation so a reader never sees a torn state.
func (b *OrderBook) Snapshot() *OrderBook {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &OrderBook{
		toLay:  b.toLay.clone(),
		toBack: b.toBack.clone(),
		traded: b.traded.clone(),
	}
}

// ToLay returns the available-to-lay levels sorted ascending by price
// (best-to-lay first).
func (b *OrderBook) ToLay() []domain.PriceLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.toLay.levels()
}

// ToBack returns the available-to-back levels sorted descending by price
// (best-to-back first).
func (b *OrderBook) ToBack() []domain.PriceLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	lvls := b.toBack.levels()
	for i, j := 0, len(lvls)-1; i < j; i, j = i+1, j-1 {
		lvls[i], lvls[j] = lvls[j], lvls[i]
	}
	return lvls
}

// Traded returns the cumulative traded volume per price, ascending by price.
func (b *OrderBook) Traded() []domain.PriceLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.traded.levels()
}

// LaySize returns the available-to-lay size at an exact price.
func (b *OrderBook) LaySize(price decimal.Decimal) (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lvl, ok := b.toLay[priceKey(price)]
	return lvl.Size, ok
}

// BackSize returns the available-to-back size at an exact price.
func (b *OrderBook) BackSize(price decimal.Decimal) (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lvl, ok := b.toBack[priceKey(price)]
	return lvl.Size, ok
}

// TradedSize returns the cumulative traded volume at an exact price. Missing
// prices report zero volume.
func (b *OrderBook) TradedSize(price decimal.Decimal) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	if lvl, ok := b.traded[priceKey(price)]; ok {
		return lvl.Size
	}
	return decimal.Zero
}

// BestToBack returns the highest available-to-back price, if any.
func (b *OrderBook) BestToBack() (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	best, found := decimal.Zero, false
	for _, lvl := range b.toBack {
		if !found || lvl.Price.GreaterThan(best) {
			best, found = lvl.Price, true
		}
	}
	return best, found
}

// BestToLay returns the lowest available-to-lay price, if any.
func (b *OrderBook) BestToLay() (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	best, found := decimal.Zero, false
	for _, lvl := range b.toLay {
		if !found || lvl.Price.LessThan(best) {
			best, found = lvl.Price, true
		}
	}
	return best, found
}
