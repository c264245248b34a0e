package sim

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calside/betsim/internal/domain"
)

type scriptedSource struct {
	ch chan domain.MarketObservation
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{ch: make(chan domain.MarketObservation, 16)}
}

func (s *scriptedSource) Subscribe(marketID string) (<-chan domain.MarketObservation, func(), error) {
	return s.ch, func() {}, nil
}

func (s *scriptedSource) HasStream(marketID string) bool { return true }

func (s *scriptedSource) PlaceOrders(ctx context.Context, requests []domain.OrderRequest) error {
	return domain.ErrNotSupported
}

func (s *scriptedSource) CancelOrders(ctx context.Context, orders []domain.Order) error {
	return domain.ErrNotSupported
}

func recv(t *testing.T, ch <-chan domain.MarketObservation) domain.MarketObservation {
	t.Helper()
	select {
	case obs, ok := <-ch:
		require.True(t, ok, "stream closed early")
		return obs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for observation")
		return domain.MarketObservation{}
	}
}

func bookObs(marketID, outcomeID string, ts time.Time, book domain.OrderBookObservation) domain.MarketObservation {
	return domain.MarketObservation{
		ID:        marketID,
		Timestamp: ts,
		Outcomes: []domain.OutcomeObservation{{
			ID:        outcomeID,
			Timestamp: ts,
			OrderBook: &book,
		}},
	}
}

func TestCoordinatorAcknowledgesThroughObservationStream(t *testing.T) {
	src := newScriptedSource()
	coord := NewCoordinator(src, slog.New(slog.DiscardHandler))
	defer coord.Close()

	ch, cancel, err := coord.Subscribe("1.m")
	require.NoError(t, err)
	defer cancel()

	t1 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	src.ch <- bookObs("1.m", "runner", t1, domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.5", "20")},
		Traded: []domain.PriceLevel{lvl("2.5", "50")},
	})
	assert.Equal(t, t1, recv(t, ch).Timestamp)

	// Placement is acknowledged immediately as an open order carried by
	// an observation, stamped with the market's replay clock.
	require.NoError(t, coord.PlaceOrders(context.Background(),
		[]domain.OrderRequest{domain.NewOrderRequest("1.m", "runner", domain.OrderSideLay, dec("2.5"), dec("5"))}))

	ack := recv(t, ch)
	require.Len(t, ack.Outcomes, 1)
	require.Len(t, ack.Outcomes[0].Orders, 1)
	placed := ack.Outcomes[0].Orders[0]
	assert.Equal(t, domain.OrderStatusOpen, placed.Status)
	assert.Equal(t, t1, placed.CreatedOn)
	assert.Equal(t, "runner", placed.OutcomeID)

	// Not enough traded volume: the source observation passes through
	// with no acknowledgement behind it.
	t2 := t1.Add(time.Second)
	src.ch <- bookObs("1.m", "runner", t2, domain.OrderBookObservation{
		Traded: []domain.PriceLevel{lvl("2.5", "62")},
	})
	passthrough := recv(t, ch)
	assert.Equal(t, t2, passthrough.Timestamp)
	assert.Empty(t, passthrough.Outcomes[0].Orders)

	// Queue exhausted: the fill follows the triggering observation.
	t3 := t1.Add(2 * time.Second)
	src.ch <- bookObs("1.m", "runner", t3, domain.OrderBookObservation{
		Traded: []domain.PriceLevel{lvl("2.5", "71")},
	})
	recv(t, ch)
	fill := recv(t, ch)
	require.Len(t, fill.Outcomes, 1)
	require.Len(t, fill.Outcomes[0].Orders, 1)
	filled := fill.Outcomes[0].Orders[0]
	assert.Equal(t, placed.ID, filled.ID)
	assert.Equal(t, domain.OrderStatusFilled, filled.Status)
	assert.True(t, filled.SizeFilled.Equal(dec("5")))

	orders := coord.Orders("1.m")
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderStatusFilled, orders[0].Status)
}

func TestCoordinatorCancellation(t *testing.T) {
	src := newScriptedSource()
	coord := NewCoordinator(src, slog.New(slog.DiscardHandler))
	defer coord.Close()

	ch, cancel, err := coord.Subscribe("1.m")
	require.NoError(t, err)
	defer cancel()

	t1 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	src.ch <- bookObs("1.m", "runner", t1, domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.5", "20")},
	})
	recv(t, ch)

	require.NoError(t, coord.PlaceOrders(context.Background(),
		[]domain.OrderRequest{domain.NewOrderRequest("1.m", "runner", domain.OrderSideLay, dec("2.5"), dec("5"))}))
	ack := recv(t, ch)
	placed := ack.Outcomes[0].Orders[0]

	require.NoError(t, coord.CancelOrders(context.Background(), []domain.Order{placed}))

	src.ch <- bookObs("1.m", "runner", t1.Add(time.Second), domain.OrderBookObservation{
		ToBack: []domain.PriceLevel{lvl("2.5", "20")},
	})
	recv(t, ch)
	cancelAck := recv(t, ch)
	require.Len(t, cancelAck.Outcomes[0].Orders, 1)
	assert.Equal(t, domain.OrderStatusCancelled, cancelAck.Outcomes[0].Orders[0].Status)
}

func TestCoordinatorCancelUnknownMarket(t *testing.T) {
	coord := NewCoordinator(newScriptedSource(), slog.New(slog.DiscardHandler))
	defer coord.Close()

	err := coord.CancelOrders(context.Background(), []domain.Order{{ID: "x", MarketID: "1.unknown"}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderIDsAreRunScopedAndUnique(t *testing.T) {
	g := newIDGenerator()
	a, b := g.Next(), g.Next()
	assert.NotEqual(t, a, b)
	assert.Equal(t, a[:8], b[:8])
}
