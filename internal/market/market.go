package market

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/calside/betsim/internal/domain"
	"github.com/calside/betsim/internal/stream"
)

// Market composes the outcomes of one exchange market. It delegates all
// per-outcome mutation to the owning Outcome and tracks only market-level
// status and timestamps itself. Outcome ids are matched case-insensitively.
// Outcomes are fixed at construction; an observation for an unknown outcome
// id is dropped as stale rather than creating one dynamically.
type Market struct {
	id     string
	name   string
	start  time.Time
	logger *slog.Logger

	mu         sync.Mutex
	status     domain.MarketStatus
	lastUpdate time.Time
	outcomes   map[string]*Outcome

	changes *stream.Stream[domain.MarketChange]
}

// FromObservation builds a Market and its Outcomes from the first observation
// of a stream.
func FromObservation(obs domain.MarketObservation, logger *slog.Logger) *Market {
	status := domain.MarketStatusOpen
	if obs.Status != nil {
		status = *obs.Status
	}
	var start time.Time
	if obs.Start != nil {
		start = *obs.Start
	}

	m := &Market{
		id:         obs.ID,
		name:       obs.Name,
		start:      start,
		logger:     logger.With(slog.String("component", "market"), slog.String("market_id", obs.ID)),
		status:     status,
		lastUpdate: obs.Timestamp,
		outcomes:   make(map[string]*Outcome, len(obs.Outcomes)),
		changes:    stream.New[domain.MarketChange](),
	}
	for _, oo := range obs.Outcomes {
		m.outcomes[strings.ToLower(oo.ID)] = OutcomeFromObservation(oo)
	}
	return m
}

// ID returns the market id.
func (m *Market) ID() string { return m.id }

// Name returns the market display name.
func (m *Market) Name() string { return m.name }

// Start returns the scheduled market start time.
func (m *Market) Start() time.Time { return m.start }

// Status returns the current market status.
func (m *Market) Status() domain.MarketStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastUpdate returns the timestamp of the most recently applied observation.
func (m *Market) LastUpdate() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUpdate
}

// Outcome looks up an outcome by id, case-insensitively.
func (m *Market) Outcome(id string) (*Outcome, bool) {
	o, ok := m.outcomes[strings.ToLower(id)]
	return o, ok
}

// Outcomes returns all outcomes sorted by id.
func (m *Market) Outcomes() []*Outcome {
	out := make([]*Outcome, 0, len(m.outcomes))
	for _, o := range m.outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// SubscribeChanges registers a subscriber on the market's change stream.
func (m *Market) SubscribeChanges(buffer int) (<-chan domain.MarketChange, func()) {
	return m.changes.Subscribe(buffer)
}

// ApplyObservation applies a market observation: market-level status and
// timestamp first, then each contained outcome observation delegated to its
// Outcome. Outcomes within one observation are processed sequentially, so
// the per-outcome change order matches the order of application.
func (m *Market) ApplyObservation(obs domain.MarketObservation) domain.MarketChange {
	m.mu.Lock()
	defer m.mu.Unlock()

	if obs.Status != nil {
		m.status = *obs.Status
	}
	m.lastUpdate = obs.Timestamp

	outcomeChanges := make([]domain.OutcomeChange, 0, len(obs.Outcomes))
	for _, oo := range obs.Outcomes {
		outcome, ok := m.outcomes[strings.ToLower(oo.ID)]
		if !ok {
			m.logger.Debug("dropping observation for unknown outcome",
				slog.String("outcome_id", oo.ID),
			)
			continue
		}
		outcomeChanges = append(outcomeChanges, outcome.ApplyObservation(oo))
	}

	change := domain.MarketChange{
		Timestamp: obs.Timestamp,
		Status:    m.status,
		Outcomes:  outcomeChanges,
	}
	m.changes.Publish(change)
	return change
}

// Consume applies every observation received on ch until the channel closes
// or the context is cancelled. It is the bridge between a source subscription
// and the aggregate.
func (m *Market) Consume(ctx context.Context, ch <-chan domain.MarketObservation) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case obs, ok := <-ch:
			if !ok {
				return nil
			}
			m.ApplyObservation(obs)
		}
	}
}

// Close terminates the market's change stream and every outcome stream.
func (m *Market) Close() {
	for _, o := range m.outcomes {
		o.Close()
	}
	m.changes.Close()
}
