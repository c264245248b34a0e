// Package sim layers simulated order execution over any market data
// source. A coordinator wraps a source, keeps one trading state per
// market/outcome pair, and feeds simulated acknowledgements back through
// the observation stream so downstream consumers cannot tell a simulated
// fill from a venue acknowledgement.
package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// idGenerator issues order ids unique within one simulation run: a random
// run prefix plus a monotonic counter, so ids stay short enough to read in
// traces while never colliding across concurrent runs.
type idGenerator struct {
	prefix string
	n      atomic.Uint64
}

func newIDGenerator() *idGenerator {
	return &idGenerator{prefix: uuid.NewString()[:8]}
}

func (g *idGenerator) Next() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
