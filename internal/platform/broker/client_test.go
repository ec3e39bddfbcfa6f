package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:   srv.URL,
		ApiKey:    "key-1",
		ApiSecret: "secret-1",
		Timeout:   5 * time.Second,
	}, discardLogger())
}

func TestSignerDeterministic(t *testing.T) {
	s := &Signer{Key: "k", Secret: "s"}
	h1 := s.HeadersAt("GET", "/v1/positions", "", 1700000000)
	h2 := s.HeadersAt("GET", "/v1/positions", "", 1700000000)
	if h1[HeaderSignature] != h2[HeaderSignature] {
		t.Fatal("signature not deterministic")
	}
	if h1[HeaderTimestamp] != "1700000000" || h1[HeaderAPIKey] != "k" {
		t.Fatalf("headers = %v", h1)
	}
	h3 := s.HeadersAt("POST", "/v1/positions", "", 1700000000)
	if h3[HeaderSignature] == h1[HeaderSignature] {
		t.Fatal("method not covered by signature")
	}
	if s.String() != "Signer{key=****, secret=****}" {
		t.Fatalf("String() = %q", s.String())
	}
}

func TestRequestsAreSigned(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		ts := r.Header.Get(HeaderTimestamp)
		want := Sign("secret-1", ts+r.Method+r.URL.RequestURI())
		if r.Header.Get(HeaderAPIKey) != "key-1" || r.Header.Get(HeaderSignature) != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"positions":[]}`))
	})
	if _, err := c.Positions(context.Background()); err != nil {
		t.Fatalf("Positions: %v", err)
	}
}

func TestHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/instruments/AAPL/bars" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("window") != "3" || r.URL.Query().Get("unit") != "1d" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"instrument":"AAPL","unit":"1d","bars":[
			{"t":"2026-02-26T21:00:00Z","c":"99.5","v":"1000"},
			{"t":"2026-02-27T21:00:00Z","c":"100","v":"2000"},
			{"t":"2026-03-02T21:00:00Z","c":101.25,"v":1500},
			{"t":"2026-03-03T21:00:00Z","c":"102","v":"1200"}
		]}`))
	})

	bars, err := c.History(context.Background(), "AAPL", 3, domain.BarDaily)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("len = %d, want 3", len(bars))
	}
	if bars[0].Price != 100 || bars[1].Price != 101.25 || bars[2].Volume != 1200 {
		t.Fatalf("bars = %+v", bars)
	}
}

func TestHistoryInsufficient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bars":[{"t":"2026-03-02T21:00:00Z","c":"1","v":"1"}]}`))
	})
	_, err := c.History(context.Background(), "AAPL", 15, domain.BarDaily)
	if !errors.Is(err, domain.ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
	if _, err := c.History(context.Background(), "AAPL", 0, domain.BarDaily); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestFundamentalsMissingROE(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"instrument":"XYZ","shares_outstanding":"1500000","roe":null}`))
	})
	f, err := c.Fundamentals(context.Background(), "XYZ")
	if err != nil {
		t.Fatalf("Fundamentals: %v", err)
	}
	if f.SharesOutstanding != 1_500_000 || !math.IsNaN(f.ROE) {
		t.Fatalf("fundamentals = %+v", f)
	}
}

func TestHasOpenOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "open" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("instrument") == "AAPL" {
			_, _ = w.Write([]byte(`{"orders":[{"id":"o1","instrument":"AAPL","status":"open"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"orders":[]}`))
	})
	ctx := context.Background()
	if open, err := c.HasOpenOrder(ctx, "AAPL"); err != nil || !open {
		t.Fatalf("AAPL: open=%v err=%v", open, err)
	}
	if open, err := c.HasOpenOrder(ctx, "MSFT"); err != nil || open {
		t.Fatalf("MSFT: open=%v err=%v", open, err)
	}
}

func TestSubmitTargetValue(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders/target" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"order_id":"ord-9","status":"open"}`))
	})

	res, err := c.SubmitTargetValue(context.Background(), "AAPL", -500000, "intent-1")
	if err != nil {
		t.Fatalf("SubmitTargetValue: %v", err)
	}
	if !res.Success || res.OrderID != "ord-9" || res.Status != domain.OrderStatusOpen {
		t.Fatalf("result = %+v", res)
	}
	if got["kind"] != "value" || got["target"] != "-500000" || got["client_order_id"] != "intent-1" {
		t.Fatalf("request body = %v", got)
	}
}

func TestSubmitTargetPercentRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order_id":"","status":"rejected","message":"market closed"}`))
	})
	res, err := c.SubmitTargetPercent(context.Background(), "AAPL", 0, "intent-2")
	if err == nil {
		t.Fatal("expected rejection error")
	}
	if res.Success || res.Status != domain.OrderStatusRejected {
		t.Fatalf("result = %+v", res)
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
	}
	for _, tt := range tests {
		if err := checkStatus(tt.code, nil); !errors.Is(err, tt.want) {
			t.Errorf("checkStatus(%d) = %v, want %v", tt.code, err, tt.want)
		}
	}
	if err := checkStatus(http.StatusInternalServerError, []byte("boom")); err == nil {
		t.Error("checkStatus(500) = nil")
	}
	if err := checkStatus(http.StatusOK, nil); err != nil {
		t.Errorf("checkStatus(200) = %v", err)
	}
}

type countingLimiter struct {
	waits int
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (l *countingLimiter) Wait(context.Context, string, int, time.Duration) error {
	l.waits++
	return nil
}

func TestRateLimiterConsulted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"instruments":["AAA","BBB"]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, RateLimit: 10, RateWindow: time.Second}, discardLogger())
	rl := &countingLimiter{}
	c.SetRateLimiter(rl)

	insts, err := c.ListInstruments(context.Background())
	if err != nil {
		t.Fatalf("ListInstruments: %v", err)
	}
	if len(insts) != 2 || insts[1] != "BBB" {
		t.Fatalf("instruments = %v", insts)
	}
	if rl.waits != 1 {
		t.Fatalf("limiter waits = %d, want 1", rl.waits)
	}
}
