// Package history stores recorded observation streams on disk, one JSONL
// file per market per capture date:
//
//	<root>/<yyyymmdd>/marketstreams/<marketID>.json
//
// Each line is one timestamped observation in capture order.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/calside/betsim/internal/domain"
)

const (
	dateLayout = "20060102"
	streamsDir = "marketstreams"
	streamExt  = ".json"
)

// maxLineBytes bounds a single recorded observation. Full market
// snapshots for large markets can run to hundreds of kilobytes.
const maxLineBytes = 16 << 20

// FileStore reads and appends per-market observation streams for one
// capture date. Appends are handed to a background goroutine so the
// capture path never blocks on disk; Close drains pending writes.
type FileStore struct {
	root   string
	date   time.Time
	logger *slog.Logger

	appendCh chan appendReq
	done     chan struct{}

	closeMu sync.RWMutex
	closed  bool

	errMu sync.Mutex
	err   error
}

type appendReq struct {
	marketID string
	msg      domain.TimestampedObservation
}

func NewFileStore(root string, date time.Time, logger *slog.Logger) *FileStore {
	s := &FileStore{
		root:     root,
		date:     date,
		logger:   logger.With(slog.String("component", "history_store")),
		appendCh: make(chan appendReq, 1024),
		done:     make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Markets lists the market ids with a recorded stream for the date.
func (s *FileStore) Markets(date time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.dayDir(date))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing recorded streams: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, streamExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, streamExt))
	}
	return ids, nil
}

// ReadMessages returns every recorded observation for the market in
// capture order.
func (s *FileStore) ReadMessages(marketID string) ([]domain.TimestampedObservation, error) {
	f, err := os.Open(s.streamPath(marketID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("market %s: %w", marketID, domain.ErrNoStream)
		}
		return nil, fmt.Errorf("opening recorded stream for %s: %w", marketID, err)
	}
	defer f.Close()

	var msgs []domain.TimestampedObservation
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var msg domain.TimestampedObservation
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("decoding %s line %d: %w", marketID, line, err)
		}
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading recorded stream for %s: %w", marketID, err)
	}
	return msgs, nil
}

// HasStream reports whether a recorded stream exists for the market.
func (s *FileStore) HasStream(marketID string) bool {
	_, err := os.Stat(s.streamPath(marketID))
	return err == nil
}

// Append queues an observation for the market's stream file. The write
// happens on the background goroutine; write failures surface from Close.
func (s *FileStore) Append(marketID string, msg domain.TimestampedObservation) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return fmt.Errorf("appending to closed history store")
	}
	s.appendCh <- appendReq{marketID: marketID, msg: msg}
	return nil
}

// Close drains pending appends, closes every stream file, and reports the
// first write error encountered.
func (s *FileStore) Close() error {
	s.closeMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.appendCh)
	}
	s.closeMu.Unlock()

	<-s.done

	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *FileStore) writeLoop() {
	defer close(s.done)

	files := make(map[string]*os.File)
	defer func() {
		for _, f := range files {
			if err := f.Close(); err != nil {
				s.setErr(err)
			}
		}
	}()

	for req := range s.appendCh {
		f, ok := files[req.marketID]
		if !ok {
			var err error
			f, err = s.openStream(req.marketID)
			if err != nil {
				s.logger.Error("opening stream file failed",
					slog.String("market_id", req.marketID),
					slog.String("error", err.Error()))
				s.setErr(err)
				continue
			}
			files[req.marketID] = f
		}

		line, err := json.Marshal(req.msg)
		if err != nil {
			s.setErr(fmt.Errorf("encoding observation for %s: %w", req.marketID, err))
			continue
		}
		line = append(line, '\n')
		if _, err := f.Write(line); err != nil {
			s.logger.Error("stream append failed",
				slog.String("market_id", req.marketID),
				slog.String("error", err.Error()))
			s.setErr(err)
		}
	}
}

func (s *FileStore) openStream(marketID string) (*os.File, error) {
	dir := s.dayDir(s.date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating stream directory: %w", err)
	}
	return os.OpenFile(filepath.Join(dir, marketID+streamExt), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func (s *FileStore) dayDir(date time.Time) string {
	return filepath.Join(s.root, date.UTC().Format(dateLayout), streamsDir)
}

func (s *FileStore) streamPath(marketID string) string {
	return filepath.Join(s.dayDir(s.date), marketID+streamExt)
}

func (s *FileStore) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

var (
	_ domain.HistoryReader = (*FileStore)(nil)
	_ domain.HistoryWriter = (*FileStore)(nil)
)
