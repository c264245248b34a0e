package sim

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calside/betsim/internal/domain"
)

func TestTradeTraceWritesOneFilePerOutcome(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTradeTrace(dir)
	require.NoError(t, err)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	order := openOrder("ord-1", domain.OrderSideLay, "2.5", "5")

	require.NoError(t, tr.Record("1.m", "runner", ts, order, TraceActionPlaced, dec("20")))
	order.Status = domain.OrderStatusFilled
	order.SizeFilled = order.Size
	require.NoError(t, tr.Record("1.m", "runner", ts.Add(time.Second), order, TraceActionFilled, decimal.Zero))
	require.NoError(t, tr.Close())

	f, err := os.Open(filepath.Join(dir, "1.m_runner.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"timestamp", "orderId", "side", "price", "size", "action", "estQueuePosition"}, rows[0])
	assert.Equal(t, []string{"2024-03-01T12:00:00Z", "ord-1", "lay", "2.5", "5", "placed", "20"}, rows[1])
	assert.Equal(t, "filled", rows[2][5])
	assert.Equal(t, "0", rows[2][6])
}
