// Package scheduler drives the strategy callbacks on the exchange session
// calendar: a pre-market callback, one holding-period check and a decision
// cycle at a fixed interval through the session.
package scheduler

import (
	"fmt"
	"sort"
	"time"
)

// Kind identifies a scheduled callback.
type Kind int

const (
	PreMarket Kind = iota
	HoldingCheck
	DecisionCycle
)

func (k Kind) String() string {
	switch k {
	case PreMarket:
		return "pre_market"
	case HoldingCheck:
		return "holding_check"
	case DecisionCycle:
		return "decision_cycle"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one planned callback. Session is the trading day it belongs to,
// at midnight in the exchange time zone.
type Event struct {
	Kind    Kind
	At      time.Time
	Session time.Time
}

// Config describes the session calendar.
type Config struct {
	Location           *time.Location
	MarketOpen         string // HH:MM
	SessionMinutes     int
	DecisionInterval   time.Duration
	PreMarketLead      time.Duration
	HoldingCheckOffset time.Duration
	Holidays           []string // YYYY-MM-DD
}

// Calendar plans the callbacks of each trading day. Weekends and listed
// holidays have no events.
type Calendar struct {
	loc        *time.Location
	openOffset time.Duration
	session    time.Duration
	interval   time.Duration
	preLead    time.Duration
	holdOffset time.Duration
	holidays   map[string]bool
}

// NewCalendar validates cfg and returns a Calendar.
func NewCalendar(cfg Config) (*Calendar, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	open, err := time.Parse("15:04", cfg.MarketOpen)
	if err != nil {
		return nil, fmt.Errorf("scheduler: market open %q: %w", cfg.MarketOpen, err)
	}
	if cfg.SessionMinutes < 1 {
		return nil, fmt.Errorf("scheduler: session minutes must be >= 1")
	}
	if cfg.DecisionInterval < time.Minute {
		return nil, fmt.Errorf("scheduler: decision interval must be >= 1m")
	}
	holidays := make(map[string]bool, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		if _, err := time.Parse(time.DateOnly, h); err != nil {
			return nil, fmt.Errorf("scheduler: holiday %q: %w", h, err)
		}
		holidays[h] = true
	}
	return &Calendar{
		loc:        loc,
		openOffset: time.Duration(open.Hour())*time.Hour + time.Duration(open.Minute())*time.Minute,
		session:    time.Duration(cfg.SessionMinutes) * time.Minute,
		interval:   cfg.DecisionInterval,
		preLead:    cfg.PreMarketLead,
		holdOffset: cfg.HoldingCheckOffset,
		holidays:   holidays,
	}, nil
}

// Location returns the exchange time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// SessionDate returns midnight of t's exchange-local day.
func (c *Calendar) SessionDate(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// IsTradingDay reports whether day is a weekday that is not a holiday.
func (c *Calendar) IsTradingDay(day time.Time) bool {
	day = day.In(c.loc)
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[day.Format(time.DateOnly)]
}

// Open returns the market open of day's session.
func (c *Calendar) Open(day time.Time) time.Time {
	return c.at(c.SessionDate(day), c.openOffset)
}

// Close returns the market close of day's session.
func (c *Calendar) Close(day time.Time) time.Time {
	return c.Open(day).Add(c.session)
}

// at adds a wall-clock offset to midnight so DST transitions keep the local
// time fixed.
func (c *Calendar) at(midnight time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	s := int((offset % time.Minute) / time.Second)
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), h, m, s, 0, c.loc)
}

// Plan returns day's events in execution order. Decision cycles run every
// interval strictly inside the session; a holding check that coincides with
// a decision cycle runs first.
func (c *Calendar) Plan(day time.Time) []Event {
	if !c.IsTradingDay(day) {
		return nil
	}
	session := c.SessionDate(day)
	open := c.Open(day)

	events := []Event{
		{Kind: PreMarket, At: open.Add(-c.preLead), Session: session},
		{Kind: HoldingCheck, At: open.Add(c.holdOffset), Session: session},
	}
	for off := c.interval; off < c.session; off += c.interval {
		events = append(events, Event{Kind: DecisionCycle, At: open.Add(off), Session: session})
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].At.Equal(events[j].At) {
			return events[i].Kind < events[j].Kind
		}
		return events[i].At.Before(events[j].At)
	})
	return events
}

// maxLookahead bounds the search for the next trading day.
const maxLookahead = 31

// Next returns the first event strictly after t.
func (c *Calendar) Next(t time.Time) (Event, bool) {
	day := c.SessionDate(t)
	for i := 0; i < maxLookahead; i++ {
		for _, ev := range c.Plan(day) {
			if ev.At.After(t) {
				return ev, true
			}
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, c.loc)
	}
	return Event{}, false
}

// Following returns the event planned after prev. Events sharing prev's
// time but ordered after it in the plan are returned before later times.
func (c *Calendar) Following(prev Event) (Event, bool) {
	for _, ev := range c.Plan(prev.At) {
		if ev.At.Equal(prev.At) && ev.Kind > prev.Kind {
			return ev, true
		}
	}
	return c.Next(prev.At)
}

// InSession reports whether t falls between day's pre-market callback and
// the market close of a trading day.
func (c *Calendar) InSession(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	return !t.Before(c.Open(t).Add(-c.preLead)) && t.Before(c.Close(t))
}
