package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

type memPriceCache struct {
	mu     sync.Mutex
	prices map[domain.Instrument]float64
	got    chan struct{}
	once   sync.Once
}

func (m *memPriceCache) SetPrice(_ context.Context, inst domain.Instrument, price float64, _ time.Time) error {
	m.mu.Lock()
	m.prices[inst] = price
	n := len(m.prices)
	m.mu.Unlock()
	if n == 2 {
		m.once.Do(func() { close(m.got) })
	}
	return nil
}

func (m *memPriceCache) GetPrice(_ context.Context, inst domain.Instrument) (float64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[inst]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Now(), nil
}

func (m *memPriceCache) GetPrices(context.Context, []domain.Instrument) (map[domain.Instrument]float64, error) {
	return nil, nil
}

func TestStreamWritesTradesToCache(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub apiSubscribe
		if err := conn.ReadJSON(&sub); err != nil || sub.Action != "subscribe" {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"trade","instrument":"AAPL","price":"187.5","t":"2026-03-02T15:00:00Z"}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"type":"heartbeat"},{"type":"trade","instrument":"MSFT","price":402.1}]`))
		// Hold the connection open until the client goes away.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	cache := &memPriceCache{prices: map[domain.Instrument]float64{}, got: make(chan struct{})}
	s := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), nil, cache, discardLogger())
	if err := s.Subscribe([]domain.Instrument{"AAPL", "MSFT"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-cache.got:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for trades")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if p, _, _ := cache.GetPrice(context.Background(), "AAPL"); p != 187.5 {
		t.Errorf("AAPL = %v", p)
	}
	if p, _, _ := cache.GetPrice(context.Background(), "MSFT"); p != 402.1 {
		t.Errorf("MSFT = %v", p)
	}
}
