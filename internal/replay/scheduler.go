// Package replay replays recorded market history against the live
// consumption path. The scheduler merges observations from any number of
// recorded streams into a single timestamp-ordered sequence, and the
// source exposes that sequence through the same interface a live venue
// connection would.
package replay

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/calside/betsim/internal/domain"
	"github.com/calside/betsim/internal/stream"
)

// SchedulerState tracks the lifecycle of a replay run.
type SchedulerState int

const (
	SchedulerIdle SchedulerState = iota
	SchedulerRunning
	SchedulerCompleted
	SchedulerCancelled
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerIdle:
		return "idle"
	case SchedulerRunning:
		return "running"
	case SchedulerCompleted:
		return "completed"
	case SchedulerCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Scheduler buffers timestamped observations from one or more recorded
// streams and emits them in global timestamp order. A scheduler runs at
// most once per lifecycle: after a run completes or is cancelled it must
// be Reset before it can accept new items or run again.
type Scheduler struct {
	logger *slog.Logger

	mu    sync.Mutex
	state SchedulerState
	items []domain.TimestampedObservation
	out   *stream.Stream[domain.TimestampedObservation]
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With(slog.String("component", "replay_scheduler")),
		out:    stream.New[domain.TimestampedObservation](),
	}
}

// Enqueue adds a batch of observations to the pending buffer and re-sorts
// the buffer by timestamp. The sort is stable, so items that share a
// timestamp keep the order in which they were enqueued. Enqueue is
// rejected unless the scheduler is idle.
func (s *Scheduler) Enqueue(items []domain.TimestampedObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SchedulerIdle {
		if s.state == SchedulerRunning {
			return domain.ErrSchedulerRunning
		}
		return domain.ErrSchedulerNotIdle
	}
	s.items = append(s.items, items...)
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].Timestamp.Before(s.items[j].Timestamp)
	})
	return nil
}

// Subscribe returns a channel of emitted observations and a cancel
// function. Subscriptions are bound to the current lifecycle: Reset swaps
// the output stream, so subscribers must re-subscribe after a reset.
func (s *Scheduler) Subscribe(buffer int) (<-chan domain.TimestampedObservation, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Subscribe(buffer)
}

// State reports the current lifecycle state.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending reports how many buffered observations have not been emitted.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Run emits every buffered observation in timestamp order, blocking until
// the buffer is drained or ctx is cancelled. Cancellation is checked
// before each item; delivery of an item already in flight to a slow
// subscriber is not interrupted. On return the output stream is closed and
// the scheduler is Completed or Cancelled. Run is rejected unless the
// scheduler is idle, so a second Run without an intervening Reset fails.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != SchedulerIdle {
		defer s.mu.Unlock()
		if s.state == SchedulerRunning {
			return domain.ErrSchedulerRunning
		}
		return domain.ErrSchedulerNotIdle
	}
	s.state = SchedulerRunning
	items := s.items
	s.items = nil
	out := s.out
	s.mu.Unlock()

	s.logger.Info("replay run started", slog.Int("items", len(items)))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			s.finish(SchedulerCancelled, out)
			s.logger.Info("replay run cancelled", slog.Int("emitted", i), slog.Int("remaining", len(items)-i))
			return err
		}
		if err := out.PublishBlocking(ctx, item); err != nil {
			s.finish(SchedulerCancelled, out)
			s.logger.Info("replay run cancelled", slog.Int("emitted", i), slog.Int("remaining", len(items)-i))
			return err
		}
	}

	s.finish(SchedulerCompleted, out)
	s.logger.Info("replay run completed", slog.Int("items", len(items)))
	return nil
}

func (s *Scheduler) finish(state SchedulerState, out *stream.Stream[domain.TimestampedObservation]) {
	out.Close()
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Reset returns the scheduler to idle so a new run can be prepared. The
// pending buffer is cleared and the output stream is replaced; existing
// subscribers see end-of-stream and must re-subscribe. Reset is rejected
// while a run is in progress.
func (s *Scheduler) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SchedulerRunning {
		return domain.ErrSchedulerRunning
	}
	s.out.Close()
	s.out = stream.New[domain.TimestampedObservation]()
	s.items = nil
	s.state = SchedulerIdle
	return nil
}
