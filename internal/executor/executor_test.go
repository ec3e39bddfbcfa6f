package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGateway struct {
	mu        sync.Mutex
	open      map[domain.Instrument]bool
	openErr   error
	submitErr error
	values    []float64
	percents  []float64
	clientIDs []string
}

func (g *fakeGateway) HasOpenOrder(_ context.Context, inst domain.Instrument) (bool, error) {
	if g.openErr != nil {
		return false, g.openErr
	}
	return g.open[inst], nil
}

func (g *fakeGateway) SubmitTargetValue(_ context.Context, _ domain.Instrument, target float64, id string) (domain.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return domain.OrderResult{}, g.submitErr
	}
	g.values = append(g.values, target)
	g.clientIDs = append(g.clientIDs, id)
	return domain.OrderResult{Success: true, OrderID: "ord-" + id, Status: domain.OrderStatusOpen}, nil
}

func (g *fakeGateway) SubmitTargetPercent(_ context.Context, _ domain.Instrument, target float64, id string) (domain.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.percents = append(g.percents, target)
	g.clientIDs = append(g.clientIDs, id)
	return domain.OrderResult{Success: true, OrderID: "ord-" + id, Status: domain.OrderStatusOpen}, nil
}

type memIntentStore struct {
	domain.IntentStore
	mu      sync.Mutex
	created map[string]domain.OrderIntent
	results map[string]domain.OrderResult
}

func newMemIntentStore() *memIntentStore {
	return &memIntentStore{created: map[string]domain.OrderIntent{}, results: map[string]domain.OrderResult{}}
}

func (m *memIntentStore) Create(_ context.Context, in domain.OrderIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.created[in.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.created[in.ID] = in
	return nil
}

func (m *memIntentStore) UpdateResult(_ context.Context, id string, res domain.OrderResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[id] = res
	return nil
}

type countingPublisher struct {
	mu      sync.Mutex
	intents []domain.IntentEvent
}

func (p *countingPublisher) PublishIntent(_ context.Context, in domain.OrderIntent, res domain.OrderResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents = append(p.intents, domain.NewIntentEvent(in, res))
	return nil
}

func (p *countingPublisher) PublishRanking(context.Context, domain.RankedUniverse) error { return nil }

type countingNotifier struct{ n int }

func (c *countingNotifier) NotifyIntent(context.Context, domain.OrderIntent, domain.OrderResult) error {
	c.n++
	return nil
}

func entry(id string, target float64) domain.OrderIntent {
	return domain.OrderIntent{ID: id, Instrument: "AAPL", Kind: domain.TargetValue, Target: target, Reason: domain.ReasonLongEntry}
}

func TestProcessSubmitsAndRecords(t *testing.T) {
	gw := &fakeGateway{}
	store := newMemIntentStore()
	pub := &countingPublisher{}
	notif := &countingNotifier{}
	e := NewExecutor(nil, gw, true, discardLogger())
	e.SetStore(store)
	e.AddPublisher(pub)
	e.SetNotifier(notif)

	res := e.Process(context.Background(), entry("i-1", 500000))
	if !res.Success || res.OrderID != "ord-i-1" {
		t.Fatalf("result = %+v", res)
	}
	if len(gw.values) != 1 || gw.values[0] != 500000 || gw.clientIDs[0] != "i-1" {
		t.Fatalf("gateway values=%v ids=%v", gw.values, gw.clientIDs)
	}
	if store.results["i-1"].Status != domain.OrderStatusOpen {
		t.Fatalf("stored result = %+v", store.results["i-1"])
	}
	if len(pub.intents) != 1 || notif.n != 1 {
		t.Fatalf("published=%d notified=%d", len(pub.intents), notif.n)
	}
}

func TestProcessPercentExit(t *testing.T) {
	gw := &fakeGateway{}
	e := NewExecutor(nil, gw, true, discardLogger())
	exit := domain.OrderIntent{ID: "x-1", Instrument: "MSFT", Kind: domain.TargetPercent, Target: 0, Reason: domain.ReasonMaxHolding}
	if res := e.Process(context.Background(), exit); !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(gw.percents) != 1 || gw.percents[0] != 0 || len(gw.values) != 0 {
		t.Fatalf("percents=%v values=%v", gw.percents, gw.values)
	}
}

func TestProcessDuplicate(t *testing.T) {
	gw := &fakeGateway{}
	e := NewExecutor(nil, gw, true, discardLogger())
	e.Process(context.Background(), entry("i-1", 500000))
	res := e.Process(context.Background(), entry("i-1", 500000))
	if res.Status != domain.OrderStatusSkipped {
		t.Fatalf("second result = %+v", res)
	}
	if len(gw.values) != 1 {
		t.Fatalf("submitted %d times", len(gw.values))
	}
}

func TestProcessDuplicateAcrossReplicas(t *testing.T) {
	gw := &fakeGateway{}
	store := newMemIntentStore()
	_ = store.Create(context.Background(), entry("i-9", 1))

	e := NewExecutor(nil, gw, true, discardLogger())
	e.SetStore(store)
	if res := e.Process(context.Background(), entry("i-9", 1)); res.Status != domain.OrderStatusSkipped {
		t.Fatalf("result = %+v", res)
	}
	if len(gw.values) != 0 {
		t.Fatal("duplicate intent was submitted")
	}
}

func TestProcessOpenOrderGuard(t *testing.T) {
	tests := []struct {
		name string
		gw   *fakeGateway
	}{
		{"open order", &fakeGateway{open: map[domain.Instrument]bool{"AAPL": true}}},
		{"lookup failure", &fakeGateway{openErr: errors.New("timeout")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(nil, tt.gw, true, discardLogger())
			res := e.Process(context.Background(), entry("i-2", 500000))
			if res.Status != domain.OrderStatusSkipped || res.Success {
				t.Fatalf("result = %+v", res)
			}
			if len(tt.gw.values) != 0 {
				t.Fatal("order submitted despite guard")
			}
		})
	}
}

func TestProcessSubmitErrorNotRetried(t *testing.T) {
	gw := &fakeGateway{submitErr: errors.New("broker down")}
	store := newMemIntentStore()
	e := NewExecutor(nil, gw, true, discardLogger())
	e.SetStore(store)

	res := e.Process(context.Background(), entry("i-3", 500000))
	if res.Success || res.Status != domain.OrderStatusRejected || res.Message != "broker down" {
		t.Fatalf("result = %+v", res)
	}
	if store.results["i-3"].Status != domain.OrderStatusRejected {
		t.Fatalf("stored = %+v", store.results["i-3"])
	}
}

func TestSignalModeNeverSubmits(t *testing.T) {
	gw := &fakeGateway{}
	pub := &countingPublisher{}
	e := NewExecutor(nil, gw, false, discardLogger())
	e.AddPublisher(pub)

	res := e.Process(context.Background(), entry("i-4", 500000))
	if res.Status != domain.OrderStatusSkipped || len(gw.values) != 0 {
		t.Fatalf("result=%+v submitted=%d", res, len(gw.values))
	}
	if len(pub.intents) != 1 {
		t.Fatal("signal mode must still publish")
	}
}

func TestRunDrainsOnClose(t *testing.T) {
	ch := make(chan domain.OrderIntent, 3)
	gw := &fakeGateway{}
	e := NewExecutor(ch, gw, true, discardLogger())
	ch <- entry("a", 1)
	ch <- entry("b", 2)
	close(ch)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after channel close")
	}
	if len(gw.values) != 2 {
		t.Fatalf("processed %d intents, want 2", len(gw.values))
	}
}

func TestDedupExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }
	if d.IsDuplicate("x") {
		t.Fatal("first sighting reported duplicate")
	}
	if !d.IsDuplicate("x") {
		t.Fatal("second sighting not reported")
	}
	now = now.Add(2 * time.Minute)
	d.Cleanup()
	if d.Len() != 0 {
		t.Fatalf("Len = %d after cleanup", d.Len())
	}
	if d.IsDuplicate("x") {
		t.Fatal("expired id still duplicate")
	}
}
