package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calside/betsim/internal/domain"
	"github.com/calside/betsim/internal/stream"
)

// routeBuffer sizes the channel between the scheduler and the routing
// goroutine. The scheduler blocks when it fills, so replay slows down
// rather than dropping history.
const routeBuffer = 256

// Source replays recorded observation streams through the same interface a
// live venue session exposes. Prepare loads recorded streams into the
// scheduler, Run drives the merged replay, and Subscribe hands out
// per-market observation channels. Order mutation is not supported here;
// the simulation coordinator wraps a Source to add simulated execution.
type Source struct {
	reader domain.HistoryReader
	sched  *Scheduler
	logger *slog.Logger

	mu      sync.Mutex
	streams map[string]*stream.Stream[domain.MarketObservation]
}

func NewSource(reader domain.HistoryReader, sched *Scheduler, logger *slog.Logger) *Source {
	return &Source{
		reader:  reader,
		sched:   sched,
		logger:  logger.With(slog.String("component", "replay_source")),
		streams: make(map[string]*stream.Stream[domain.MarketObservation]),
	}
}

// Prepare enqueues the recorded streams for the capture date into the
// scheduler. When marketIDs is empty every recorded market for the date is
// loaded, otherwise only the named markets.
func (s *Source) Prepare(date time.Time, marketIDs ...string) error {
	if len(marketIDs) == 0 {
		ids, err := s.reader.Markets(date)
		if err != nil {
			return fmt.Errorf("listing recorded markets: %w", err)
		}
		marketIDs = ids
	}
	for _, id := range marketIDs {
		msgs, err := s.reader.ReadMessages(id)
		if err != nil {
			return fmt.Errorf("reading recorded stream for market %s: %w", id, err)
		}
		if err := s.sched.Enqueue(msgs); err != nil {
			return fmt.Errorf("enqueueing market %s: %w", id, err)
		}
		s.logger.Debug("recorded stream loaded",
			slog.String("market_id", id),
			slog.Int("messages", len(msgs)))
	}
	return nil
}

// Run drives the replay to completion, routing each emitted observation to
// the subscribers of its market. It blocks until the scheduler drains or
// ctx is cancelled; on return every per-market stream is closed.
func (s *Source) Run(ctx context.Context) error {
	ch, cancel := s.sched.Subscribe(routeBuffer)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.sched.Run(ctx)
	})
	g.Go(func() error {
		defer s.closeStreams()
		for item := range ch {
			st := s.marketStream(item.Observation.ID)
			if err := st.PublishBlocking(ctx, item.Observation); err != nil {
				return err
			}
		}
		return nil
	})
	return g.Wait()
}

// Subscribe returns an observation channel for one recorded market. The
// channel closes when the replay run ends or the subscription is
// cancelled.
func (s *Source) Subscribe(marketID string) (<-chan domain.MarketObservation, func(), error) {
	if !s.reader.HasStream(marketID) {
		return nil, nil, fmt.Errorf("market %s: %w", marketID, domain.ErrNoStream)
	}
	ch, cancel := s.marketStream(marketID).Subscribe(routeBuffer)
	return ch, cancel, nil
}

// HasStream reports whether a recorded stream exists for the market.
func (s *Source) HasStream(marketID string) bool {
	return s.reader.HasStream(marketID)
}

// PlaceOrders is not supported on a bare replay source. Simulated
// execution is layered on top by the simulation coordinator.
func (s *Source) PlaceOrders(ctx context.Context, requests []domain.OrderRequest) error {
	return fmt.Errorf("placing orders on replay source: %w", domain.ErrNotSupported)
}

// CancelOrders is not supported on a bare replay source.
func (s *Source) CancelOrders(ctx context.Context, orders []domain.Order) error {
	return fmt.Errorf("cancelling orders on replay source: %w", domain.ErrNotSupported)
}

func (s *Source) marketStream(marketID string) *stream.Stream[domain.MarketObservation] {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[marketID]
	if !ok {
		st = stream.New[domain.MarketObservation]()
		s.streams[marketID] = st
	}
	return st
}

func (s *Source) closeStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.streams {
		st.Close()
	}
}

var _ domain.MarketDataSource = (*Source)(nil)
