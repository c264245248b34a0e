package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calside/betsim/internal/domain"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func lvl(price, size float64) domain.PriceLevel {
	return domain.PriceLevel{Price: dec(price), Size: dec(size)}
}

func TestUpdateEmitsDiffOnlyOnChange(t *testing.T) {
	b := NewOrderBook()

	first := b.Update(domain.OrderBookObservation{ToLay: []domain.PriceLevel{lvl(5, 10)}})
	require.Len(t, first.ToLay, 1)
	assert.True(t, first.ToLay[0].OldSize.IsZero())
	assert.True(t, first.ToLay[0].NewSize.Equal(dec(10)))

	// Re-applying the identical level is a no-op.
	second := b.Update(domain.OrderBookObservation{ToLay: []domain.PriceLevel{lvl(5, 10)}})
	assert.True(t, second.Empty())
}

func TestZeroSizeRemovesLevel(t *testing.T) {
	b := NewOrderBook()
	b.Update(domain.OrderBookObservation{ToLay: []domain.PriceLevel{lvl(5, 10)}})

	change := b.Update(domain.OrderBookObservation{ToLay: []domain.PriceLevel{lvl(5, 0)}})
	require.Len(t, change.ToLay, 1)
	assert.True(t, change.ToLay[0].OldSize.Equal(dec(10)))
	assert.True(t, change.ToLay[0].NewSize.IsZero())

	_, present := b.LaySize(dec(5))
	assert.False(t, present, "zero-size level must not be stored")
	assert.Empty(t, b.ToLay())
}

func TestFullSnapshotRemovesAbsentPrices(t *testing.T) {
	b := NewOrderBook()
	b.Update(domain.OrderBookObservation{ToBack: []domain.PriceLevel{lvl(3, 5), lvl(4, 2)}})

	change := b.Update(domain.OrderBookObservation{
		ToBack:   []domain.PriceLevel{lvl(3, 5)},
		FullSnap: true,
	})
	require.Len(t, change.ToBack, 1)
	assert.True(t, change.ToBack[0].Price.Equal(dec(4)))
	assert.True(t, change.ToBack[0].OldSize.Equal(dec(2)))
	assert.True(t, change.ToBack[0].NewSize.IsZero())

	levels := b.ToBack()
	require.Len(t, levels, 1)
	assert.True(t, levels[0].Price.Equal(dec(3)))
}

func TestSnapshotIsolation(t *testing.T) {
	b := NewOrderBook()
	b.Update(domain.OrderBookObservation{ToLay: []domain.PriceLevel{lvl(2, 7)}})

	snap := b.Snapshot()
	b.Update(domain.OrderBookObservation{ToLay: []domain.PriceLevel{lvl(2, 99), lvl(3, 1)}})

	size, ok := snap.LaySize(dec(2))
	require.True(t, ok)
	assert.True(t, size.Equal(dec(7)), "snapshot must not observe later mutation")
	_, ok = snap.LaySize(dec(3))
	assert.False(t, ok)
}

func TestPriceKeyNormalisesExponent(t *testing.T) {
	b := NewOrderBook()
	b.Update(domain.OrderBookObservation{ToLay: []domain.PriceLevel{
		{Price: decimal.New(250, -2), Size: dec(10)}, // 2.50
	}})

	// Same price delivered as 2.5 must address the same level.
	change := b.Update(domain.OrderBookObservation{ToLay: []domain.PriceLevel{
		{Price: decimal.New(25, -1), Size: dec(10)}, // 2.5
	}})
	assert.True(t, change.Empty())
	assert.Len(t, b.ToLay(), 1)
}

func TestLadderOrdering(t *testing.T) {
	b := NewOrderBook()
	b.Update(domain.OrderBookObservation{
		ToLay:  []domain.PriceLevel{lvl(3.0, 1), lvl(2.5, 1), lvl(4.2, 1)},
		ToBack: []domain.PriceLevel{lvl(2.4, 1), lvl(2.0, 1), lvl(2.2, 1)},
	})

	toLay := b.ToLay()
	require.Len(t, toLay, 3)
	assert.True(t, toLay[0].Price.Equal(dec(2.5)), "toLay ascending: best-to-lay first")

	toBack := b.ToBack()
	require.Len(t, toBack, 3)
	assert.True(t, toBack[0].Price.Equal(dec(2.4)), "toBack descending: best-to-back first")
}

func TestBestPrices(t *testing.T) {
	b := NewOrderBook()

	_, ok := b.BestToBack()
	assert.False(t, ok)

	b.Update(domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl(2.0, 1), lvl(2.4, 1)},
		ToLay:  []domain.PriceLevel{lvl(2.6, 1), lvl(3.0, 1)},
	})

	back, ok := b.BestToBack()
	require.True(t, ok)
	assert.True(t, back.Equal(dec(2.4)))

	lay, ok := b.BestToLay()
	require.True(t, ok)
	assert.True(t, lay.Equal(dec(2.6)))
}
