package market

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calside/betsim/internal/domain"
)

func marketStatus(s domain.MarketStatus) *domain.MarketStatus { return &s }

func newTestMarket(t *testing.T) *Market {
	t.Helper()
	start := time.Date(2019, 10, 10, 15, 30, 0, 0, time.UTC)
	return FromObservation(domain.MarketObservation{
		ID:        "1.163414874",
		Timestamp: start.Add(-time.Hour),
		Start:     &start,
		Name:      "Test Market",
		Status:    marketStatus(domain.MarketStatusOpen),
		Outcomes: []domain.OutcomeObservation{
			{ID: "A", Timestamp: start.Add(-time.Hour), OrderBook: &domain.OrderBookObservation{}},
			{ID: "B", Timestamp: start.Add(-time.Hour), OrderBook: &domain.OrderBookObservation{}},
		},
	}, slog.Default())
}

func TestUnknownOutcomeDropped(t *testing.T) {
	m := newTestMarket(t)

	change := m.ApplyObservation(domain.MarketObservation{
		ID:        m.ID(),
		Timestamp: time.Now(),
		Outcomes: []domain.OutcomeObservation{
			{ID: "C", Timestamp: time.Now(), OrderBook: &domain.OrderBookObservation{ToLay: []domain.PriceLevel{lvl(2, 1)}}},
		},
	})

	assert.Empty(t, change.Outcomes, "observation for an outcome unknown at construction is dropped")
	_, ok := m.Outcome("C")
	assert.False(t, ok, "outcomes are never created dynamically")
}

func TestOutcomeLookupIsCaseInsensitive(t *testing.T) {
	m := newTestMarket(t)
	_, ok := m.Outcome("a")
	assert.True(t, ok)
	_, ok = m.Outcome("A")
	assert.True(t, ok)
}

func TestStatusAndTimestampTracked(t *testing.T) {
	m := newTestMarket(t)
	ts := time.Now()

	m.ApplyObservation(domain.MarketObservation{
		ID:        m.ID(),
		Timestamp: ts,
		Status:    marketStatus(domain.MarketStatusSuspended),
	})

	assert.Equal(t, domain.MarketStatusSuspended, m.Status())
	assert.Equal(t, ts, m.LastUpdate())
}

func TestPerOutcomeChangesCarryCumulativeState(t *testing.T) {
	m := newTestMarket(t)
	ch, cancel := m.SubscribeChanges(8)
	defer cancel()

	t1 := time.Date(2019, 10, 10, 15, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	// Two observations arriving from independent readers at T1 < T2, each
	// touching a different outcome of the same market.
	m.ApplyObservation(domain.MarketObservation{
		ID: m.ID(), Timestamp: t1,
		Outcomes: []domain.OutcomeObservation{
			{ID: "A", Timestamp: t1, OrderBook: &domain.OrderBookObservation{ToBack: []domain.PriceLevel{lvl(2.0, 5)}}},
		},
	})
	m.ApplyObservation(domain.MarketObservation{
		ID: m.ID(), Timestamp: t2,
		Outcomes: []domain.OutcomeObservation{
			{ID: "B", Timestamp: t2, OrderBook: &domain.OrderBookObservation{ToBack: []domain.PriceLevel{lvl(3.0, 7)}}},
		},
	})

	first := <-ch
	require.Len(t, first.Outcomes, 1)
	assert.Equal(t, "A", first.Outcomes[0].ID)
	assert.Equal(t, t1, first.Timestamp)

	second := <-ch
	require.Len(t, second.Outcomes, 1)
	assert.Equal(t, "B", second.Outcomes[0].ID)
	assert.Equal(t, t2, second.Timestamp)

	// A consumer that only saw the second change can still read correct
	// cumulative state for outcome A via its snapshot.
	a, _ := m.Outcome("A")
	size, ok := a.Snapshot().BackSize(dec(2.0))
	require.True(t, ok)
	assert.True(t, size.Equal(dec(5)))
}
