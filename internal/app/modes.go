package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calside/betsim/internal/capture"
	"github.com/calside/betsim/internal/domain"
	"github.com/calside/betsim/internal/feed"
	"github.com/calside/betsim/internal/history"
	"github.com/calside/betsim/internal/market"
	"github.com/calside/betsim/internal/replay"
	"github.com/calside/betsim/internal/service"
	"github.com/calside/betsim/internal/sim"
)

// ReplayMode replays one recorded capture day through the deterministic
// scheduler, reconstructs per-market aggregates, and runs the simulation
// coordinator so strategies (and the order recorder) see simulated order
// acknowledgements on the same observation streams.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	date, err := a.cfg.Replay.ParseDate()
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}
	a.logger.InfoContext(ctx, "starting replay mode",
		slog.String("history_dir", a.cfg.Replay.HistoryDir),
		slog.Time("date", date),
	)

	store := history.NewFileStore(a.cfg.Replay.HistoryDir, date, a.logger)
	defer func() { _ = store.Close() }()

	marketIDs := a.cfg.Replay.Markets
	if len(marketIDs) == 0 {
		marketIDs, err = store.Markets(date)
		if err != nil {
			return fmt.Errorf("replay mode: list recorded markets: %w", err)
		}
	}
	if len(marketIDs) == 0 && deps.BlobReader != nil {
		// Nothing recorded locally for the day: pull the archived capture
		// from blob storage before giving up.
		n, rerr := history.Restore(ctx, deps.BlobReader, a.cfg.Replay.HistoryDir, date, a.logger)
		if rerr != nil {
			return fmt.Errorf("replay mode: restore archived day: %w", rerr)
		}
		if n > 0 {
			marketIDs, err = store.Markets(date)
			if err != nil {
				return fmt.Errorf("replay mode: list recorded markets: %w", err)
			}
		}
	}
	if len(marketIDs) == 0 {
		return fmt.Errorf("replay mode: no recorded markets for %s", date.Format("2006-01-02"))
	}

	sched := replay.NewScheduler(a.logger)
	src := replay.NewSource(store, sched, a.logger)
	if err := src.Prepare(date, marketIDs...); err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}

	var opts []sim.Option
	if a.cfg.Replay.TraceDir != "" {
		trace, terr := sim.NewTradeTrace(a.cfg.Replay.TraceDir)
		if terr != nil {
			return fmt.Errorf("replay mode: open trade trace: %w", terr)
		}
		defer func() { _ = trace.Close() }()
		opts = append(opts, sim.WithTrace(trace))
	}
	coord := sim.NewCoordinator(src, a.logger, opts...)
	defer coord.Close()

	runID := uuid.NewString()
	a.logger.InfoContext(ctx, "replay run prepared",
		slog.String("run_id", runID),
		slog.Int("markets", len(marketIDs)),
		slog.Int("pending", sched.Pending()),
	)

	g, gctx := errgroup.WithContext(ctx)

	for _, id := range marketIDs {
		ch, cancel, serr := coord.Subscribe(id)
		if serr != nil {
			return fmt.Errorf("replay mode: subscribe market %s: %w", id, serr)
		}
		defer cancel()
		g.Go(func() error {
			return a.runAggregate(gctx, ch, deps)
		})

		if deps.OrderStore != nil {
			rch, rcancel, rerr := coord.Subscribe(id)
			if rerr != nil {
				return fmt.Errorf("replay mode: subscribe market %s: %w", id, rerr)
			}
			defer rcancel()
			rec := service.NewOrderRecorder(deps.OrderStore, runID, a.logger)
			g.Go(func() error {
				return rec.Run(gctx, rch)
			})
		}
	}

	g.Go(func() error {
		return src.Run(gctx)
	})

	err = g.Wait()
	a.logReplaySummary(coord, marketIDs)
	return err
}

// CaptureMode records live venue streams into the local history store and
// optionally archives the day directory to blob storage on shutdown.
func (a *App) CaptureMode(ctx context.Context, deps *Dependencies) error {
	date := time.Now().UTC()
	a.logger.InfoContext(ctx, "starting capture mode",
		slog.String("history_dir", a.cfg.Capture.HistoryDir),
		slog.Int("markets", len(a.cfg.Capture.Markets)),
	)

	writer := history.NewFileStore(a.cfg.Capture.HistoryDir, date, a.logger)
	live := feed.NewLiveSource(a.cfg.Venue.WsURL, a.logger)
	defer live.Close()

	rec := capture.NewRecorder(live, writer, a.logger)
	if a.cfg.Capture.ArchiveToS3 && deps.BlobWriter != nil {
		rec = rec.WithArchive(deps.BlobWriter, a.cfg.Capture.HistoryDir, date)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return live.Run(gctx)
	})
	g.Go(func() error {
		return rec.Run(gctx, a.cfg.Capture.Markets)
	})
	err := g.Wait()

	// Flush every stream file before archiving.
	if cerr := writer.Close(); cerr != nil && err == nil {
		err = cerr
	}

	if a.cfg.Capture.ArchiveToS3 && deps.BlobWriter != nil {
		actx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if aerr := rec.Archive(actx); aerr != nil {
			a.logger.Error("capture archive failed", slog.String("error", aerr.Error()))
			if err == nil || err == context.Canceled {
				err = aerr
			}
		}
	}

	return err
}

// LiveMode follows live venue streams and maintains per-market aggregates,
// publishing ladder snapshots and change events when Redis is wired. No
// orders are placed.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode",
		slog.String("ws_url", a.cfg.Venue.WsURL),
		slog.Int("markets", len(a.cfg.Venue.Markets)),
	)

	live := feed.NewLiveSource(a.cfg.Venue.WsURL, a.logger)
	defer live.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return live.Run(gctx)
	})

	for _, id := range a.cfg.Venue.Markets {
		ch, cancel, err := live.Subscribe(id)
		if err != nil {
			return fmt.Errorf("live mode: subscribe market %s: %w", id, err)
		}
		defer cancel()
		g.Go(func() error {
			return a.runAggregate(gctx, ch, deps)
		})
	}

	return g.Wait()
}

// runAggregate builds a market aggregate from the first observation on ch
// and keeps it current until the channel closes or the context is
// cancelled. When the book cache and signal bus are wired, every change is
// published through a ChangePublisher.
func (a *App) runAggregate(ctx context.Context, ch <-chan domain.MarketObservation, deps *Dependencies) error {
	var first domain.MarketObservation
	select {
	case <-ctx.Done():
		return ctx.Err()
	case obs, ok := <-ch:
		if !ok {
			return nil
		}
		first = obs
	}

	m := market.FromObservation(first, a.logger)
	a.logger.Info("market aggregate started",
		slog.String("market_id", m.ID()),
		slog.Int("outcomes", len(m.Outcomes())),
	)

	if deps.BookCache != nil && deps.SignalBus != nil {
		pub := service.NewChangePublisher(deps.BookCache, deps.SignalBus, a.logger)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return pub.Run(gctx, m)
		})
		g.Go(func() error {
			defer m.Close()
			return m.Consume(gctx, ch)
		})
		return g.Wait()
	}

	defer m.Close()
	return m.Consume(ctx, ch)
}

// logReplaySummary reports the simulated order activity per market after a
// replay run completes.
func (a *App) logReplaySummary(coord *sim.Coordinator, marketIDs []string) {
	for _, id := range marketIDs {
		orders := coord.Orders(id)
		if len(orders) == 0 {
			continue
		}
		var filled, open int
		for _, o := range orders {
			switch {
			case o.Status == domain.OrderStatusFilled:
				filled++
			case o.Status == domain.OrderStatusOpen:
				open++
			}
		}
		a.logger.Info("replay order summary",
			slog.String("market_id", id),
			slog.Int("orders", len(orders)),
			slog.Int("filled", filled),
			slog.Int("open", open),
		)
	}
}
