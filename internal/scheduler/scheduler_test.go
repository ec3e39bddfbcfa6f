package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func testCalendar(t *testing.T, holidays ...string) *Calendar {
	t.Helper()
	cal, err := NewCalendar(Config{
		Location:           newYork(t),
		MarketOpen:         "09:30",
		SessionMinutes:     390,
		DecisionInterval:   5 * time.Minute,
		PreMarketLead:      45 * time.Minute,
		HoldingCheckOffset: 60 * time.Minute,
		Holidays:           holidays,
	})
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	return cal
}

func TestPlanTradingDay(t *testing.T) {
	cal := testCalendar(t)
	loc := cal.Location()
	day := time.Date(2026, 3, 2, 12, 0, 0, 0, loc) // Monday

	plan := cal.Plan(day)
	counts := map[Kind]int{}
	for _, ev := range plan {
		counts[ev.Kind]++
	}
	if counts[PreMarket] != 1 || counts[HoldingCheck] != 1 || counts[DecisionCycle] != 77 {
		t.Fatalf("counts = %v", counts)
	}

	first := plan[0]
	if first.Kind != PreMarket || first.At.Hour() != 8 || first.At.Minute() != 45 {
		t.Fatalf("first event = %v at %v", first.Kind, first.At)
	}
	if !first.Session.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, loc)) {
		t.Fatalf("session = %v", first.Session)
	}

	var firstCycle, lastCycle time.Time
	for _, ev := range plan {
		if ev.Kind != DecisionCycle {
			continue
		}
		if firstCycle.IsZero() {
			firstCycle = ev.At
		}
		lastCycle = ev.At
	}
	if firstCycle.Format("15:04") != "09:35" || lastCycle.Format("15:04") != "15:55" {
		t.Fatalf("cycles %s..%s, want 09:35..15:55", firstCycle.Format("15:04"), lastCycle.Format("15:04"))
	}

	for i := 1; i < len(plan); i++ {
		if plan[i].At.Before(plan[i-1].At) {
			t.Fatalf("plan not sorted at %d", i)
		}
		if plan[i].At.Equal(plan[i-1].At) && plan[i].Kind == HoldingCheck {
			t.Fatal("holding check scheduled after a decision cycle at the same time")
		}
	}
}

func TestPlanClosedDays(t *testing.T) {
	cal := testCalendar(t, "2026-04-03")
	loc := cal.Location()
	tests := []struct {
		name string
		day  time.Time
	}{
		{"saturday", time.Date(2026, 3, 7, 12, 0, 0, 0, loc)},
		{"sunday", time.Date(2026, 3, 8, 12, 0, 0, 0, loc)},
		{"holiday", time.Date(2026, 4, 3, 12, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		if plan := cal.Plan(tt.day); len(plan) != 0 {
			t.Errorf("%s: %d events planned", tt.name, len(plan))
		}
	}
}

func TestPlanAcrossDST(t *testing.T) {
	cal := testCalendar(t)
	loc := cal.Location()
	before := cal.Open(time.Date(2026, 3, 6, 12, 0, 0, 0, loc))
	after := cal.Open(time.Date(2026, 3, 9, 12, 0, 0, 0, loc))
	if before.UTC().Hour() != 14 || after.UTC().Hour() != 13 {
		t.Fatalf("open UTC hours %d and %d, want 14 and 13", before.UTC().Hour(), after.UTC().Hour())
	}
	if after.In(loc).Format("15:04") != "09:30" {
		t.Fatalf("local open after DST = %s", after.In(loc).Format("15:04"))
	}
}

func TestNextSkipsWeekend(t *testing.T) {
	cal := testCalendar(t)
	loc := cal.Location()
	fridayEvening := time.Date(2026, 3, 6, 18, 0, 0, 0, loc)
	ev, ok := cal.Next(fridayEvening)
	if !ok {
		t.Fatal("no next event")
	}
	want := time.Date(2026, 3, 9, 8, 45, 0, 0, loc)
	if ev.Kind != PreMarket || !ev.At.Equal(want) {
		t.Fatalf("next = %v at %v, want pre_market at %v", ev.Kind, ev.At, want)
	}
}

func TestFollowingKeepsCoincidingCycle(t *testing.T) {
	cal := testCalendar(t)
	loc := cal.Location()
	at := time.Date(2026, 3, 2, 10, 30, 0, 0, loc)
	hold := Event{Kind: HoldingCheck, At: at, Session: cal.SessionDate(at)}

	ev, ok := cal.Following(hold)
	if !ok || ev.Kind != DecisionCycle || !ev.At.Equal(at) {
		t.Fatalf("after holding check = %v at %v, want decision_cycle at %v", ev.Kind, ev.At, at)
	}
	ev, ok = cal.Following(ev)
	if !ok || ev.Kind != DecisionCycle || !ev.At.Equal(at.Add(5*time.Minute)) {
		t.Fatalf("after 10:30 cycle = %v at %v", ev.Kind, ev.At)
	}

	last := Event{Kind: DecisionCycle, At: time.Date(2026, 3, 2, 15, 55, 0, 0, loc)}
	ev, ok = cal.Following(last)
	if !ok || ev.Kind != PreMarket || !ev.At.Equal(time.Date(2026, 3, 3, 8, 45, 0, 0, loc)) {
		t.Fatalf("after last cycle = %v at %v", ev.Kind, ev.At)
	}
}

func TestNewCalendarRejectsBadConfig(t *testing.T) {
	bad := []Config{
		{MarketOpen: "9h30", SessionMinutes: 390, DecisionInterval: time.Minute},
		{MarketOpen: "09:30", SessionMinutes: 0, DecisionInterval: time.Minute},
		{MarketOpen: "09:30", SessionMinutes: 390, DecisionInterval: time.Second},
		{MarketOpen: "09:30", SessionMinutes: 390, DecisionInterval: time.Minute, Holidays: []string{"03/04/2026"}},
	}
	for i, cfg := range bad {
		if _, err := NewCalendar(cfg); err == nil {
			t.Errorf("config %d accepted", i)
		}
	}
}

// fakeClock jumps straight to the requested time on every After.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	kind Kind
	at   time.Time
}

func TestRunFullDay(t *testing.T) {
	cal := testCalendar(t)
	loc := cal.Location()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 7, 0, 0, 0, loc)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls []call
	var errorsSeen int
	sessions := 0
	funcs := Funcs{
		SessionStart: func(_ context.Context, session time.Time) error {
			sessions++
			calls = append(calls, call{PreMarket, clock.Now()})
			if sessions == 2 {
				cancel()
			}
			return nil
		},
		HoldingCheck: func(context.Context) error {
			calls = append(calls, call{HoldingCheck, clock.Now()})
			return nil
		},
		DecisionCycle: func(context.Context) error {
			calls = append(calls, call{DecisionCycle, clock.Now()})
			return errors.New("no universe")
		},
		OnError: func(context.Context, Kind, error) { errorsSeen++ },
	}
	s := New(cal, funcs, discardLogger())
	s.SetClock(clock)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	counts := map[Kind]int{}
	for _, c := range calls {
		counts[c.kind]++
	}
	if counts[PreMarket] != 2 || counts[HoldingCheck] != 1 || counts[DecisionCycle] != 77 {
		t.Fatalf("counts = %v", counts)
	}
	if errorsSeen != 77 {
		t.Fatalf("errors reported = %d, want 77", errorsSeen)
	}
	last := calls[len(calls)-1]
	if !last.at.Equal(time.Date(2026, 3, 3, 8, 45, 0, 0, loc)) {
		t.Fatalf("second session start at %v", last.at)
	}
}

func TestRunStartsMidSession(t *testing.T) {
	cal := testCalendar(t)
	loc := cal.Location()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 11, 2, 0, 0, loc)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var kinds []Kind
	var firstCycle time.Time
	s := New(cal, Funcs{
		SessionStart: func(_ context.Context, session time.Time) error {
			kinds = append(kinds, PreMarket)
			return nil
		},
		DecisionCycle: func(context.Context) error {
			kinds = append(kinds, DecisionCycle)
			firstCycle = clock.Now()
			cancel()
			return nil
		},
	}, discardLogger())
	s.SetClock(clock)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != PreMarket || kinds[1] != DecisionCycle {
		t.Fatalf("kinds = %v", kinds)
	}
	if firstCycle.Format("15:04") != "11:05" {
		t.Fatalf("first cycle at %s, want 11:05", firstCycle.Format("15:04"))
	}
}

func TestRunSlowHoldingCheckStillRunsCoincidingCycle(t *testing.T) {
	cal := testCalendar(t)
	loc := cal.Location()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 10, 27, 0, 0, loc)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	record := func(k Kind) {
		got = append(got, k.String()+" "+clock.Now().Format("15:04:05"))
	}
	s := New(cal, Funcs{
		HoldingCheck: func(context.Context) error {
			record(HoldingCheck)
			clock.mu.Lock()
			clock.now = clock.now.Add(20 * time.Second)
			clock.mu.Unlock()
			return nil
		},
		DecisionCycle: func(context.Context) error {
			record(DecisionCycle)
			if len(got) == 3 {
				cancel()
			}
			return nil
		},
	}, discardLogger())
	s.SetClock(clock)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{
		"holding_check 10:30:00",
		"decision_cycle 10:30:20",
		"decision_cycle 10:35:00",
	}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}
