// Package feed connects the core to a live venue stream. The wire format
// is the normalized observation itself, JSON-encoded, one message per
// market update; venue-specific protocols are adapted outside this
// module.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/calside/betsim/internal/domain"
	"github.com/calside/betsim/internal/stream"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	handshakeTimeout = 15 * time.Second
)

// wsCommand is the outbound subscription control message.
type wsCommand struct {
	Op        string   `json:"op"`
	MarketIDs []string `json:"market_ids,omitempty"`
}

// LiveSource is a market data source backed by a venue websocket stream.
// It reconnects with exponential backoff and restores subscriptions after
// a reconnect. Order mutation against the venue is outside this module;
// both mutation methods fail at the boundary.
type LiveSource struct {
	wsURL  string
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	streams map[string]*stream.Stream[domain.MarketObservation]

	closeOnce sync.Once
	done      chan struct{}
}

func NewLiveSource(wsURL string, logger *slog.Logger) *LiveSource {
	return &LiveSource{
		wsURL:   wsURL,
		logger:  logger.With(slog.String("component", "live_source")),
		streams: make(map[string]*stream.Stream[domain.MarketObservation]),
		done:    make(chan struct{}),
	}
}

// Run connects and consumes the stream until ctx is cancelled or Close is
// called, reconnecting with exponential backoff on disconnect.
func (s *LiveSource) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		err := s.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-s.done:
			return nil
		default:
		}

		s.logger.Warn("venue stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (s *LiveSource) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	conn, _, err := dialer.DialContext(dialCtx, s.wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.mu.Lock()
	s.conn = conn
	ids := make([]string, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	// Restore subscriptions after a reconnect.
	if len(ids) > 0 {
		if err := s.send(conn, wsCommand{Op: "subscribe", MarketIDs: ids}); err != nil {
			return fmt.Errorf("restore subscriptions: %w", err)
		}
	}
	s.logger.Info("venue stream connected", slog.Int("markets", len(ids)))

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.pingLoop(conn, pingDone)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWSDisconnect, err)
		}
		s.handleMessage(message)
	}
}

func (s *LiveSource) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-s.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *LiveSource) handleMessage(raw []byte) {
	var obs domain.MarketObservation
	if err := json.Unmarshal(raw, &obs); err != nil {
		// Drop unparseable messages; a full snapshot follows on resubscribe.
		s.logger.Debug("dropping unparseable message", slog.String("error", err.Error()))
		return
	}
	if obs.ID == "" {
		return
	}

	s.mu.Lock()
	st := s.streams[strings.ToLower(obs.ID)]
	s.mu.Unlock()
	if st != nil {
		st.Publish(obs)
	}
}

// Subscribe registers interest in a market and returns its observation
// channel. The subscription survives reconnects.
func (s *LiveSource) Subscribe(marketID string) (<-chan domain.MarketObservation, func(), error) {
	key := strings.ToLower(marketID)

	s.mu.Lock()
	st, known := s.streams[key]
	if !known {
		st = stream.New[domain.MarketObservation]()
		s.streams[key] = st
	}
	conn := s.conn
	s.mu.Unlock()

	if !known && conn != nil {
		if err := s.send(conn, wsCommand{Op: "subscribe", MarketIDs: []string{marketID}}); err != nil {
			return nil, nil, fmt.Errorf("subscribing to market %s: %w", marketID, err)
		}
	}

	ch, cancel := st.Subscribe(0)
	return ch, cancel, nil
}

// HasStream always reports true: the venue accepts a subscription for any
// market id and the stream simply stays empty for an unknown one.
func (s *LiveSource) HasStream(marketID string) bool {
	return true
}

// PlaceOrders fails: venue order routing is not part of this module.
func (s *LiveSource) PlaceOrders(ctx context.Context, requests []domain.OrderRequest) error {
	return fmt.Errorf("placing orders on live source: %w", domain.ErrNotSupported)
}

// CancelOrders fails: venue order routing is not part of this module.
func (s *LiveSource) CancelOrders(ctx context.Context, orders []domain.Order) error {
	return fmt.Errorf("cancelling orders on live source: %w", domain.ErrNotSupported)
}

// Close stops the source and terminates every market stream.
func (s *LiveSource) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.conn != nil {
			_ = s.conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			_ = s.conn.Close()
		}
		for _, st := range s.streams {
			st.Close()
		}
	})
}

func (s *LiveSource) send(conn *websocket.Conn, cmd wsCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

var _ domain.MarketDataSource = (*LiveSource)(nil)
