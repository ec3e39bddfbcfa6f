package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

const (
	streamWriteWait         = 10 * time.Second
	streamPongWait          = 30 * time.Second
	streamPingPeriod        = (streamPongWait * 9) / 10
	streamReconnectDelay    = 2 * time.Second
	streamMaxReconnectDelay = 60 * time.Second
)

// Stream subscribes to last-trade prices over a websocket and writes every
// trade into the price cache. It reconnects with exponential backoff and
// restores the subscription after each reconnect.
type Stream struct {
	url    string
	signer *Signer
	cache  domain.PriceCache
	logger *slog.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	instruments []domain.Instrument
}

// NewStream creates a price stream. signer may be nil for unauthenticated
// feeds.
func NewStream(url string, signer *Signer, cache domain.PriceCache, logger *slog.Logger) *Stream {
	return &Stream{
		url:    url,
		signer: signer,
		cache:  cache,
		logger: logger.With(slog.String("component", "broker_stream")),
	}
}

// Subscribe replaces the set of streamed instruments. It takes effect
// immediately when connected and on the next connect otherwise.
func (s *Stream) Subscribe(insts []domain.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments = append([]domain.Instrument(nil), insts...)
	if s.conn == nil {
		return nil
	}
	return s.sendSubscribeLocked()
}

// Run connects and consumes trades until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	delay := streamReconnectDelay
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			delay = streamReconnectDelay
		}
		s.logger.WarnContext(ctx, "price stream disconnected",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay *= 2
		if delay > streamMaxReconnectDelay {
			delay = streamMaxReconnectDelay
		}
	}
}

// session runs one connection until it fails. connected reports whether the
// dial succeeded.
func (s *Stream) session(ctx context.Context) (connected bool, err error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.conn = conn
	err = s.sendSubscribeLocked()
	s.mu.Unlock()
	if err != nil {
		s.closeConn(conn)
		return true, fmt.Errorf("subscribe: %w", err)
	}
	s.logger.InfoContext(ctx, "price stream connected", slog.String("url", s.url))

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(sessCtx, conn)
	go func() {
		<-sessCtx.Done()
		s.closeConn(conn)
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("%w: %v", domain.ErrStreamDisconnect, err)
		}
		s.handleMessage(ctx, msg)
	}
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	header := http.Header{}
	if s.signer != nil {
		for k, v := range s.signer.Headers(http.MethodGet, "/v1/stream", "") {
			header.Set(k, v)
		}
	}
	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return nil, fmt.Errorf("broker/stream: connect: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	return conn, nil
}

// sendSubscribeLocked writes the subscription. Caller holds s.mu.
func (s *Stream) sendSubscribeLocked() error {
	if len(s.instruments) == 0 {
		return nil
	}
	ids := make([]string, len(s.instruments))
	for i, inst := range s.instruments {
		ids[i] = inst.String()
	}
	data, err := json.Marshal(apiSubscribe{Action: "subscribe", Instruments: ids})
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// closeConn closes conn and clears it if it is still the current one.
func (s *Stream) closeConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
}

// handleMessage decodes one frame, which is either a single trade or an
// array of trades.
func (s *Stream) handleMessage(ctx context.Context, raw []byte) {
	var trades []apiTrade
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &trades); err != nil {
			return
		}
	} else {
		var t apiTrade
		if err := json.Unmarshal(raw, &t); err != nil {
			return
		}
		trades = append(trades, t)
	}

	for _, t := range trades {
		if t.Type != "trade" || t.Instrument == "" {
			continue
		}
		ts := t.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		inst := domain.Instrument(t.Instrument)
		if err := s.cache.SetPrice(ctx, inst, t.Price.InexactFloat64(), ts); err != nil {
			s.logger.WarnContext(ctx, "price cache write failed",
				slog.String("instrument", inst.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
