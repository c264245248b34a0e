package sim

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calside/betsim/internal/domain"
	"github.com/calside/betsim/internal/market"
	"github.com/calside/betsim/internal/stream"
)

// Coordinator wraps a market data source with simulated order execution.
// It implements domain.MarketDataSource: observations from the underlying
// source pass through unchanged, simulated acknowledgements are injected
// into the same per-market stream, and PlaceOrders/CancelOrders drive the
// per-outcome trading states instead of a venue.
type Coordinator struct {
	source domain.MarketDataSource
	logger *slog.Logger
	ids    *idGenerator
	trace  *TradeTrace
	clock  func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTrace enables the CSV trade trace.
func WithTrace(trace *TradeTrace) Option {
	return func(c *Coordinator) { c.trace = trace }
}

// WithClock overrides the wall clock used when no observation timestamp
// has been seen yet for a market.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) { c.clock = clock }
}

func NewCoordinator(source domain.MarketDataSource, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		source:   source,
		logger:   logger.With(slog.String("component", "sim_coordinator")),
		ids:      newIDGenerator(),
		clock:    time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// session owns the simulation state for one market: the reconstructed
// per-outcome books, the trading states, and the merged output stream.
type session struct {
	marketID  string
	out       *stream.Stream[domain.MarketObservation]
	cancelSrc func()

	mu     sync.Mutex
	books  map[string]*market.OrderBook
	states map[string]*TradingState
	lastTS time.Time
}

// Subscribe returns the merged observation stream for a market: source
// observations interleaved with simulated order acknowledgements.
func (c *Coordinator) Subscribe(marketID string) (<-chan domain.MarketObservation, func(), error) {
	sess, err := c.getSession(marketID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := sess.out.Subscribe(0)
	return ch, cancel, nil
}

// HasStream reports whether the underlying source can deliver the market.
func (c *Coordinator) HasStream(marketID string) bool {
	return c.source.HasStream(marketID)
}

// PlaceOrders simulates order placement. Each request becomes an open
// order acknowledged through the market's observation stream; fills and
// cancellations follow on later book updates.
func (c *Coordinator) PlaceOrders(ctx context.Context, requests []domain.OrderRequest) error {
	byMarket := groupRequests(requests)
	for _, group := range byMarket {
		sess, err := c.getSession(group.marketID)
		if err != nil {
			return fmt.Errorf("placing orders on market %s: %w", group.marketID, err)
		}
		ts := sess.timestamp(c.clock)

		var acks []domain.Order
		for _, og := range group.byOutcome {
			orders := make([]domain.Order, 0, len(og.requests))
			for _, req := range og.requests {
				orders = append(orders, domain.Order{
					ID:        c.ids.Next(),
					MarketID:  req.MarketID,
					OutcomeID: req.OutcomeID,
					CreatedOn: ts,
					Side:      req.Side,
					Status:    domain.OrderStatusOpen,
					Price:     req.Price,
					Size:      req.Size,
				})
			}
			updates := sess.state(group.marketID, og.outcomeID).Place(orders)
			for _, u := range updates {
				c.record(ts, u, TraceActionPlaced)
				acks = append(acks, u.Order)
			}
		}

		ackObs := domain.OrdersToObservation(group.marketID, ts, acks)
		if err := sess.out.PublishBlocking(ctx, ackObs); err != nil {
			return err
		}
	}
	return nil
}

// CancelOrders queues the orders for simulated cancellation. The
// cancellation acknowledgement arrives with the market's next book update.
func (c *Coordinator) CancelOrders(ctx context.Context, orders []domain.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, order := range orders {
		sess, ok := c.sessions[order.MarketID]
		if !ok {
			return fmt.Errorf("cancelling order %s: market %s: %w", order.ID, order.MarketID, domain.ErrNotFound)
		}
		sess.state(order.MarketID, order.OutcomeID).Cancel([]string{order.ID})
	}
	return nil
}

// Orders returns every simulated order for a market, resting and
// completed, across all outcomes.
func (c *Coordinator) Orders(marketID string) []domain.Order {
	c.mu.Lock()
	sess, ok := c.sessions[marketID]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	states := make([]*TradingState, 0, len(sess.states))
	for _, st := range sess.states {
		states = append(states, st)
	}
	sess.mu.Unlock()

	var out []domain.Order
	for _, st := range states {
		out = append(out, st.Orders()...)
	}
	return out
}

// Pnl marks the filled simulated orders for one outcome against its
// current best prices. Returns zero when the outcome has no book yet.
func (c *Coordinator) Pnl(marketID, outcomeID string) decimal.Decimal {
	c.mu.Lock()
	sess, ok := c.sessions[marketID]
	c.mu.Unlock()
	if !ok {
		return decimal.Zero
	}

	sess.mu.Lock()
	book := sess.books[strings.ToLower(outcomeID)]
	st := sess.states[strings.ToLower(outcomeID)]
	sess.mu.Unlock()
	if book == nil || st == nil {
		return decimal.Zero
	}

	bestToBack, okBack := book.BestToBack()
	bestToLay, okLay := book.BestToLay()
	if !okBack || !okLay {
		return decimal.Zero
	}
	return st.Pnl(bestToBack, bestToLay)
}

// Close releases every market subscription held on the underlying source.
// Per-market output streams close once their source streams drain.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sess := range c.sessions {
		sess.cancelSrc()
	}
}

func (c *Coordinator) getSession(marketID string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess, ok := c.sessions[marketID]; ok {
		return sess, nil
	}

	ch, cancel, err := c.source.Subscribe(marketID)
	if err != nil {
		return nil, err
	}
	sess := &session{
		marketID:  marketID,
		out:       stream.New[domain.MarketObservation](),
		cancelSrc: cancel,
		books:     make(map[string]*market.OrderBook),
		states:    make(map[string]*TradingState),
	}
	c.sessions[marketID] = sess
	go c.run(sess, ch)
	return sess, nil
}

// run forwards source observations and injects acknowledgement
// observations produced by the trading states.
func (c *Coordinator) run(sess *session, ch <-chan domain.MarketObservation) {
	defer sess.out.Close()
	for obs := range ch {
		acks := sess.apply(obs, c)
		if err := sess.out.PublishBlocking(context.Background(), obs); err != nil {
			return
		}
		if len(acks) > 0 {
			ackObs := domain.OrdersToObservation(sess.marketID, obs.Timestamp, acks)
			if err := sess.out.PublishBlocking(context.Background(), ackObs); err != nil {
				return
			}
		}
	}
}

// apply merges one observation into the session's reconstructed books and
// advances the trading states of the outcomes whose books changed.
func (sess *session) apply(obs domain.MarketObservation, c *Coordinator) []domain.Order {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.lastTS = obs.Timestamp

	var acks []domain.Order
	for _, oo := range obs.Outcomes {
		if oo.OrderBook == nil {
			continue
		}
		key := strings.ToLower(oo.ID)
		book, ok := sess.books[key]
		if !ok {
			book = market.NewOrderBook()
			sess.books[key] = book
		}
		book.Update(*oo.OrderBook)

		st, ok := sess.states[key]
		if !ok {
			continue
		}
		for _, u := range st.Update(obs.Timestamp, book.Snapshot()) {
			switch u.Order.Status {
			case domain.OrderStatusFilled:
				c.record(obs.Timestamp, u, TraceActionFilled)
			case domain.OrderStatusCancelled:
				c.record(obs.Timestamp, u, TraceActionCancelled)
			}
			acks = append(acks, u.Order)
		}
	}
	return acks
}

// state returns the trading state for an outcome, creating it on first
// use.
func (sess *session) state(marketID, outcomeID string) *TradingState {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	key := strings.ToLower(outcomeID)
	st, ok := sess.states[key]
	if !ok {
		st = NewTradingState(marketID, outcomeID)
		if book, ok := sess.books[key]; ok {
			st.Seed(book.Snapshot())
		}
		sess.states[key] = st
	}
	return st
}

// timestamp returns the simulation clock for the market: the timestamp of
// the last observation, or the wall clock before any observation arrives.
func (sess *session) timestamp(clock func() time.Time) time.Time {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.lastTS.IsZero() {
		return clock()
	}
	return sess.lastTS
}

func (c *Coordinator) record(ts time.Time, u OrderUpdate, action string) {
	if c.trace == nil {
		return
	}
	if err := c.trace.Record(u.Order.MarketID, u.Order.OutcomeID, ts, u.Order, action, u.QueuePosition); err != nil {
		c.logger.Warn("trade trace write failed",
			slog.String("order_id", u.Order.ID),
			slog.String("error", err.Error()))
	}
}

// marketGroup preserves request order while batching by market and
// outcome.
type marketGroup struct {
	marketID  string
	byOutcome []*outcomeGroup
}

type outcomeGroup struct {
	outcomeID string
	requests  []domain.OrderRequest
}

func groupRequests(requests []domain.OrderRequest) []*marketGroup {
	var groups []*marketGroup
	index := make(map[string]*marketGroup)
	for _, req := range requests {
		mg, ok := index[req.MarketID]
		if !ok {
			mg = &marketGroup{marketID: req.MarketID}
			index[req.MarketID] = mg
			groups = append(groups, mg)
		}
		var og *outcomeGroup
		for _, existing := range mg.byOutcome {
			if strings.EqualFold(existing.outcomeID, req.OutcomeID) {
				og = existing
				break
			}
		}
		if og == nil {
			og = &outcomeGroup{outcomeID: req.OutcomeID}
			mg.byOutcome = append(mg.byOutcome, og)
		}
		og.requests = append(og.requests, req)
	}
	return groups
}

var _ domain.MarketDataSource = (*Coordinator)(nil)
