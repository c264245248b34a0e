package history

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calside/betsim/internal/domain"
)

func msgAt(marketID string, ts time.Time, price, size string) domain.TimestampedObservation {
	return domain.TimestampedObservation{
		Timestamp: ts,
		Observation: domain.MarketObservation{
			ID:        marketID,
			Timestamp: ts,
			Outcomes: []domain.OutcomeObservation{{
				ID:        "runner",
				Timestamp: ts,
				OrderBook: &domain.OrderBookObservation{
					ToBack: []domain.PriceLevel{{
						Price: decimal.RequireFromString(price),
						Size:  decimal.RequireFromString(size),
					}},
				},
			}},
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	logger := slog.New(slog.DiscardHandler)

	writer := NewFileStore(t.TempDir(), date, logger)
	root := writer.root

	t1 := date.Add(12 * time.Hour)
	require.NoError(t, writer.Append("1.a", msgAt("1.a", t1, "2.5", "20")))
	require.NoError(t, writer.Append("1.a", msgAt("1.a", t1.Add(time.Second), "2.5", "18")))
	require.NoError(t, writer.Append("1.b", msgAt("1.b", t1, "3.0", "7")))
	require.NoError(t, writer.Close())

	reader := NewFileStore(root, date, logger)
	defer reader.Close()

	ids, err := reader.Markets(date)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.a", "1.b"}, ids)

	assert.True(t, reader.HasStream("1.a"))
	assert.False(t, reader.HasStream("1.c"))

	msgs, err := reader.ReadMessages("1.a")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, t1, msgs[0].Timestamp)
	assert.True(t, msgs[1].Timestamp.After(msgs[0].Timestamp))
	require.Len(t, msgs[0].Observation.Outcomes, 1)
	back := msgs[0].Observation.Outcomes[0].OrderBook.ToBack
	require.Len(t, back, 1)
	assert.True(t, back[0].Size.Equal(decimal.RequireFromString("20")))
}

func TestReadMessagesMissingMarket(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewFileStore(t.TempDir(), date, slog.New(slog.DiscardHandler))
	defer s.Close()

	_, err := s.ReadMessages("1.missing")
	assert.ErrorIs(t, err, domain.ErrNoStream)
}

func TestMarketsEmptyWhenDateNotRecorded(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewFileStore(t.TempDir(), date, slog.New(slog.DiscardHandler))
	defer s.Close()

	ids, err := s.Markets(date)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAppendAfterCloseFails(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewFileStore(t.TempDir(), date, slog.New(slog.DiscardHandler))
	require.NoError(t, s.Close())

	assert.Error(t, s.Append("1.a", domain.TimestampedObservation{}))
}
