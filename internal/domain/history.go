package domain

import "time"

// HistoryReader reads recorded per-market observation streams for a capture
// date. Implementations own the on-disk format; the core only requires a
// time-ordered sequence of observations per market.
type HistoryReader interface {
	// Markets lists the market ids that have a recorded stream for the date.
	Markets(date time.Time) ([]string, error)

	// ReadMessages returns every recorded observation for the market in
	// capture order. Returns ErrNoStream when the market was not recorded.
	ReadMessages(marketID string) ([]TimestampedObservation, error)

	// HasStream reports whether a recorded stream exists for the market.
	HasStream(marketID string) bool
}

// HistoryWriter appends observations to a per-market recorded stream.
type HistoryWriter interface {
	Append(marketID string, msg TimestampedObservation) error
	Close() error
}
