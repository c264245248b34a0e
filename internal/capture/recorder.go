// Package capture records live observation streams into the history store
// and archives the day's files to object storage.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calside/betsim/internal/domain"
)

// Recorder subscribes to a source for a set of markets and appends every
// observation to the history writer. One goroutine per market; a failure
// on any market stops the whole recording run.
type Recorder struct {
	source domain.MarketDataSource
	writer domain.HistoryWriter
	logger *slog.Logger

	blob domain.BlobWriter
	root string
	date time.Time
}

func NewRecorder(source domain.MarketDataSource, writer domain.HistoryWriter, logger *slog.Logger) *Recorder {
	return &Recorder{
		source: source,
		writer: writer,
		logger: logger.With(slog.String("component", "capture_recorder")),
	}
}

// WithArchive configures archival of the recorded day directory to blob
// storage. root and date must match the history store's layout.
func (r *Recorder) WithArchive(blob domain.BlobWriter, root string, date time.Time) *Recorder {
	r.blob = blob
	r.root = root
	r.date = date
	return r
}

// Run records the given markets until ctx is cancelled or every stream
// ends. The recording persists through the history writer's background
// queue; callers close the writer after Run returns.
func (r *Recorder) Run(ctx context.Context, marketIDs []string) error {
	if len(marketIDs) == 0 {
		r.logger.Info("no markets to record")
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, marketID := range marketIDs {
		ch, cancel, err := r.source.Subscribe(marketID)
		if err != nil {
			return fmt.Errorf("subscribing to market %s: %w", marketID, err)
		}
		g.Go(func() error {
			defer cancel()
			return r.record(ctx, marketID, ch)
		})
	}
	return g.Wait()
}

func (r *Recorder) record(ctx context.Context, marketID string, ch <-chan domain.MarketObservation) error {
	count := 0
	defer func() {
		r.logger.Info("recording stopped",
			slog.String("market_id", marketID),
			slog.Int("observations", count))
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case obs, ok := <-ch:
			if !ok {
				return nil
			}
			msg := domain.TimestampedObservation{Timestamp: obs.Timestamp, Observation: obs}
			if err := r.writer.Append(marketID, msg); err != nil {
				return fmt.Errorf("recording market %s: %w", marketID, err)
			}
			count++
		}
	}
}

// Archive uploads every stream file of the recorder's capture date to
// blob storage, keyed by the same relative path used on disk. No-op when
// no archive target is configured.
func (r *Recorder) Archive(ctx context.Context) error {
	if r.blob == nil {
		return nil
	}

	day := r.date.UTC().Format("20060102")
	dir := filepath.Join(r.root, day, "marketstreams")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("listing capture directory: %w", err)
	}

	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("opening %s for archive: %w", entry.Name(), err)
		}
		key := path.Join(day, "marketstreams", entry.Name())
		err = r.blob.Put(ctx, key, f, "application/json")
		f.Close()
		if err != nil {
			return fmt.Errorf("archiving %s: %w", entry.Name(), err)
		}
		uploaded++
	}

	r.logger.Info("capture archived", slog.String("day", day), slog.Int("files", uploaded))
	return nil
}
