package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/calside/betsim/internal/domain"
)

// Restore downloads the archived observation streams for a capture date
// into the local history root, so a replay can run against a day that was
// captured on another host. Streams already present locally are kept.
// Returns the number of files downloaded.
func Restore(ctx context.Context, blob domain.BlobReader, root string, date time.Time, logger *slog.Logger) (int, error) {
	log := logger.With(slog.String("component", "history_restore"))

	day := date.UTC().Format(dateLayout)
	prefix := path.Join(day, streamsDir) + "/"
	infos, err := blob.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("listing archived streams: %w", err)
	}
	if len(infos) == 0 {
		return 0, nil
	}

	dir := filepath.Join(root, day, streamsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating stream directory: %w", err)
	}

	downloaded := 0
	for _, info := range infos {
		name := path.Base(info.Path)
		if !strings.HasSuffix(name, streamExt) {
			continue
		}
		local := filepath.Join(dir, name)
		if _, err := os.Stat(local); err == nil {
			continue
		}
		if err := download(ctx, blob, info.Path, local); err != nil {
			return downloaded, err
		}
		downloaded++
	}

	log.Info("archive restored", slog.String("day", day), slog.Int("files", downloaded))
	return downloaded, nil
}

func download(ctx context.Context, blob domain.BlobReader, key, local string) error {
	body, err := blob.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("fetching archived stream %s: %w", key, err)
	}
	defer body.Close()

	// Write through a temp file so an interrupted download never leaves a
	// truncated stream behind.
	tmp := local + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", local, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", local, err)
	}
	if err := os.Rename(tmp, local); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("moving %s into place: %w", local, err)
	}
	return nil
}
