package sim

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calside/betsim/internal/domain"
	"github.com/calside/betsim/internal/market"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lvl(price, size string) domain.PriceLevel {
	return domain.PriceLevel{Price: dec(price), Size: dec(size)}
}

func book(obs domain.OrderBookObservation) *market.OrderBook {
	return market.BookFromObservation(obs)
}

func openOrder(id string, side domain.OrderSide, price, size string) domain.Order {
	return domain.Order{
		ID:        id,
		MarketID:  "1.m",
		OutcomeID: "runner",
		Side:      side,
		Status:    domain.OrderStatusOpen,
		Price:     dec(price),
		Size:      dec(size),
	}
}

func TestQueuePositionDecaysWithTradedVolume(t *testing.T) {
	s := NewTradingState("1.m", "runner")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Seed the previous snapshot: 20 resting to back at 2.5, 50 already
	// traded there. A lay at 2.5 is not marketable (nothing to lay).
	s.Update(ts, book(domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.5", "20")},
		Traded: []domain.PriceLevel{lvl("2.5", "50")},
	}))

	placed := s.Place([]domain.Order{openOrder("ord-1", domain.OrderSideLay, "2.5", "5")})
	require.Len(t, placed, 1)
	assert.True(t, placed[0].QueuePosition.Equal(dec("20")))

	// 12 more traded: queue drops to 8, order still resting.
	updates := s.Update(ts.Add(time.Second), book(domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.5", "20")},
		Traded: []domain.PriceLevel{lvl("2.5", "62")},
	}))
	assert.Empty(t, updates)

	// 9 more traded: queue reaches -1, order fills in full.
	updates = s.Update(ts.Add(2*time.Second), book(domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.5", "20")},
		Traded: []domain.PriceLevel{lvl("2.5", "71")},
	}))
	require.Len(t, updates, 1)
	assert.Equal(t, domain.OrderStatusFilled, updates[0].Order.Status)
	assert.True(t, updates[0].Order.SizeFilled.Equal(dec("5")))
	assert.True(t, updates[0].QueuePosition.IsZero())
}

func TestMarketableOrderFillsOnNextUpdate(t *testing.T) {
	s := NewTradingState("1.m", "runner")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Place([]domain.Order{openOrder("ord-1", domain.OrderSideBack, "3.0", "10")})

	// The price is quoted on the back side, so the order is marketable.
	updates := s.Update(ts, book(domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("3.0", "15")},
	}))
	require.Len(t, updates, 1)
	assert.Equal(t, domain.OrderStatusFilled, updates[0].Order.Status)
	assert.True(t, updates[0].Order.SizeFilled.Equal(dec("10")))
}

func TestTradedVolumeAtNewPriceCountsFromZero(t *testing.T) {
	s := NewTradingState("1.m", "runner")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Previous snapshot has no traded volume at 2.5 at all.
	s.Update(ts, book(domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.5", "4")},
	}))
	s.Place([]domain.Order{openOrder("ord-1", domain.OrderSideLay, "2.5", "5")})

	// First trades at the price: the whole cumulative volume is the delta.
	updates := s.Update(ts.Add(time.Second), book(domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.5", "4")},
		Traded: []domain.PriceLevel{lvl("2.5", "6")},
	}))
	require.Len(t, updates, 1)
	assert.Equal(t, domain.OrderStatusFilled, updates[0].Order.Status)
}

func TestCancellationTakesEffectOnNextUpdate(t *testing.T) {
	s := NewTradingState("1.m", "runner")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Update(ts, book(domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.5", "20")},
	}))
	s.Place([]domain.Order{openOrder("ord-1", domain.OrderSideLay, "2.5", "5")})
	s.Cancel([]string{"ord-1"})

	// Still resting until the next update delivers the cancellation.
	orders := s.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderStatusOpen, orders[0].Status)

	updates := s.Update(ts.Add(time.Second), book(domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.5", "20")},
	}))
	require.Len(t, updates, 1)
	assert.Equal(t, domain.OrderStatusCancelled, updates[0].Order.Status)
	assert.True(t, updates[0].Order.SizeFilled.IsZero())

	// No further acknowledgements for the same order.
	assert.Empty(t, s.Update(ts.Add(2*time.Second), book(domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.5", "20")},
	})))
}

func TestPositionIsNetFilledLayMinusBack(t *testing.T) {
	s := NewTradingState("1.m", "runner")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Place([]domain.Order{
		openOrder("ord-1", domain.OrderSideLay, "2.0", "10"),
		openOrder("ord-2", domain.OrderSideBack, "3.0", "4"),
	})
	// Both marketable: quoted on their own sides.
	updates := s.Update(ts, book(domain.OrderBookObservation{
		ToLay:  []domain.PriceLevel{lvl("2.0", "30")},
		ToBack: []domain.PriceLevel{lvl("3.0", "12")},
	}))
	require.Len(t, updates, 2)

	assert.True(t, s.Position().Equal(dec("6")))
}

func TestPnlMarksFillsAgainstTouch(t *testing.T) {
	s := NewTradingState("1.m", "runner")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Marketable lay at 2.0 for 10, filled on the first update.
	s.Place([]domain.Order{openOrder("ord-1", domain.OrderSideLay, "2.0", "10")})
	updates := s.Update(ts, book(domain.OrderBookObservation{
		ToLay: []domain.PriceLevel{lvl("2.0", "30")},
	}))
	require.Len(t, updates, 1)
	require.Equal(t, domain.OrderStatusFilled, updates[0].Order.Status)

	// With bestToBack drifting out the lay is under water:
	// 10*(1 - 2.5/2.0) = -2.5. The bestToLay argument is irrelevant to a
	// lay fill.
	got := s.Pnl(dec("2.5"), dec("2.0"))
	assert.True(t, got.Equal(dec("-2.5")), "got %s", got)

	// With bestToBack shorter than the fill price the lay is in profit:
	// 10*(1 - 1.6/2.0) = 2.
	got = s.Pnl(dec("1.6"), dec("2.0"))
	assert.True(t, got.Equal(dec("2")), "got %s", got)

	// A marketable back at 2.0 for 4 adds 4*(bestToLay/2.0 - 1).
	s.Place([]domain.Order{openOrder("ord-2", domain.OrderSideBack, "2.0", "4")})
	updates = s.Update(ts.Add(time.Second), book(domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.0", "12")},
	}))
	require.Len(t, updates, 1)

	// -2.5 from the lay plus 4*(2.5/2.0 - 1) = 1 from the back.
	got = s.Pnl(dec("2.5"), dec("2.5"))
	assert.True(t, got.Equal(dec("-1.5")), "got %s", got)
}

func TestOrderWithoutLadderEvidenceStaysOpen(t *testing.T) {
	s := NewTradingState("1.m", "runner")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Update(ts, book(domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.0", "20")},
		Traded: []domain.PriceLevel{lvl("2.0", "50")},
	}))

	// A lay at 5.0 while neither ladder quotes that price: no queue ahead,
	// but also no evidence of trading through it.
	placed := s.Place([]domain.Order{openOrder("ord-1", domain.OrderSideLay, "5.0", "5")})
	require.Len(t, placed, 1)
	assert.True(t, placed[0].QueuePosition.IsZero())

	for i := 1; i <= 2; i++ {
		updates := s.Update(ts.Add(time.Duration(i)*time.Second), book(domain.OrderBookObservation{
			ToBack: []domain.PriceLevel{lvl("2.0", "20")},
			Traded: []domain.PriceLevel{lvl("2.0", "50")},
		}))
		assert.Empty(t, updates)
	}

	orders := s.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderStatusOpen, orders[0].Status)
}
