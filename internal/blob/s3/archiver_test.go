package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

type memWriter struct {
	objects   map[string][]byte
	multipart map[string]bool
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, multipart: map[string]bool{}}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	w.multipart[path] = true
	return w.Put(ctx, path, data, "")
}

type pagedIntents struct {
	domain.IntentStore
	records []domain.IntentRecord
	calls   int
}

func (p *pagedIntents) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.IntentRecord, error) {
	p.calls++
	if opts.Offset >= len(p.records) {
		return nil, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(p.records) {
		end = len(p.records)
	}
	return p.records[opts.Offset:end], nil
}

type memAudit struct {
	domain.AuditStore
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func TestArchiveUniverse(t *testing.T) {
	w := newMemWriter()
	audit := &memAudit{}
	a := NewArchiver(w, nil, audit)

	u := domain.RankedUniverse{
		Session: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Candidates: []domain.FactorScore{
			{Instrument: "AAA", Quality: math.NaN()},
		},
		LongLeg: []domain.Instrument{"AAA"},
	}
	path, err := a.ArchiveUniverse(context.Background(), u)
	if err != nil {
		t.Fatalf("ArchiveUniverse: %v", err)
	}
	if path != "universe/2026-03-02.json" {
		t.Fatalf("path = %q", path)
	}
	var got domain.RankedUniverse
	if err := json.Unmarshal(w.objects[path], &got); err != nil {
		t.Fatalf("decode archived universe: %v", err)
	}
	if len(got.Candidates) != 1 || !math.IsNaN(got.Candidates[0].Quality) {
		t.Fatalf("candidates = %+v", got.Candidates)
	}
	if len(audit.events) != 1 || audit.events[0] != "archive.universe" {
		t.Fatalf("audit events = %v", audit.events)
	}
}

func TestArchiveIntentsPaginates(t *testing.T) {
	records := make([]domain.IntentRecord, archivePageSize+3)
	for i := range records {
		records[i] = domain.IntentRecord{
			Intent: domain.OrderIntent{ID: "id", Instrument: "AAA"},
			Status: domain.OrderStatusFilled,
		}
	}
	store := &pagedIntents{records: records}
	w := newMemWriter()
	a := NewArchiver(w, store, nil)

	n, err := a.ArchiveIntents(context.Background(), time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ArchiveIntents: %v", err)
	}
	if n != len(records) {
		t.Fatalf("archived %d, want %d", n, len(records))
	}
	if store.calls != 2 {
		t.Fatalf("store queried %d times, want 2", store.calls)
	}

	body, ok := w.objects["intents/2026-03-02.jsonl"]
	if !ok {
		t.Fatalf("objects = %v", w.objects)
	}
	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		lines++
	}
	if lines != len(records) {
		t.Fatalf("jsonl lines = %d, want %d", lines, len(records))
	}
}

func TestArchiveIntentsEmpty(t *testing.T) {
	w := newMemWriter()
	a := NewArchiver(w, &pagedIntents{}, nil)
	n, err := a.ArchiveIntents(context.Background(), time.Now())
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if len(w.objects) != 0 {
		t.Fatalf("unexpected upload: %v", w.objects)
	}
}

func TestJoinKey(t *testing.T) {
	tests := []struct{ prefix, path, want string }{
		{"", "universe/a.json", "universe/a.json"},
		{"equitybot/prod", "/universe/a.json", "equitybot/prod/universe/a.json"},
	}
	for _, tt := range tests {
		if got := joinKey(tt.prefix, tt.path); got != tt.want {
			t.Errorf("joinKey(%q, %q) = %q, want %q", tt.prefix, tt.path, got, tt.want)
		}
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"minio:9000", false, "http://minio:9000"},
		{"minio:9000", true, "https://minio:9000"},
		{"localhost", false, "http://localhost"},
		{"s3.us-east-1.amazonaws.com", true, "https://s3.us-east-1.amazonaws.com"},
		{"http://minio:9000", true, "http://minio:9000"},
		{"https://storage.example.com/", false, "https://storage.example.com/"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.endpoint, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.endpoint, tt.useSSL, got, tt.want)
		}
	}
}
