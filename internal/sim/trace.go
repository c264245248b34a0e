package sim

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calside/betsim/internal/domain"
)

// Trace action labels.
const (
	TraceActionPlaced    = "placed"
	TraceActionFilled    = "filled"
	TraceActionCancelled = "cancelled"
)

var traceHeader = []string{"timestamp", "orderId", "side", "price", "size", "action", "estQueuePosition"}

// TradeTrace writes a CSV audit trail of simulated order activity, one
// file per market/outcome pair under the trace directory. Safe for
// concurrent use.
type TradeTrace struct {
	dir string

	mu    sync.Mutex
	files map[string]*traceFile
}

type traceFile struct {
	f *os.File
	w *csv.Writer
}

func NewTradeTrace(dir string) (*TradeTrace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}
	return &TradeTrace{dir: dir, files: make(map[string]*traceFile)}, nil
}

// Record appends one row for an order state transition.
func (t *TradeTrace) Record(marketID, outcomeID string, ts time.Time, order domain.Order, action string, queuePosition decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tf, err := t.file(marketID, outcomeID)
	if err != nil {
		return err
	}
	row := []string{
		ts.UTC().Format(time.RFC3339Nano),
		order.ID,
		string(order.Side),
		order.Price.String(),
		order.Size.String(),
		action,
		queuePosition.String(),
	}
	if err := tf.w.Write(row); err != nil {
		return fmt.Errorf("writing trace row: %w", err)
	}
	tf.w.Flush()
	return tf.w.Error()
}

func (t *TradeTrace) file(marketID, outcomeID string) (*traceFile, error) {
	key := marketID + "_" + outcomeID
	if tf, ok := t.files[key]; ok {
		return tf, nil
	}
	f, err := os.Create(filepath.Join(t.dir, key+".csv"))
	if err != nil {
		return nil, fmt.Errorf("creating trace file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(traceHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing trace header: %w", err)
	}
	tf := &traceFile{f: f, w: w}
	t.files[key] = tf
	return tf, nil
}

// Close flushes and closes every open trace file.
func (t *TradeTrace) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for key, tf := range t.files {
		tf.w.Flush()
		if err := tf.w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := tf.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.files, key)
	}
	return firstErr
}
