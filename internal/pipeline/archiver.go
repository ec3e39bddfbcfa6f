// Package pipeline runs the housekeeping jobs that sit outside the trading
// session, such as the nightly cold-storage archive.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// IntentArchiver copies one day's order intents to cold storage.
type IntentArchiver interface {
	ArchiveIntents(ctx context.Context, day time.Time) (int, error)
}

// ArchiveJob archives the previous day's intents on a cron schedule.
type ArchiveJob struct {
	archiver IntentArchiver
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewArchiveJob creates an ArchiveJob. Cron expressions and "previous day"
// are evaluated in loc.
func NewArchiveJob(archiver IntentArchiver, loc *time.Location, logger *slog.Logger) *ArchiveJob {
	if loc == nil {
		loc = time.UTC
	}
	return &ArchiveJob{
		archiver: archiver,
		loc:      loc,
		logger:   logger.With(slog.String("component", "archive_job")),
		now:      time.Now,
	}
}

// Run archives the intents of the day before now.
func (j *ArchiveJob) Run(ctx context.Context) error {
	now := j.now().In(j.loc)
	day := time.Date(now.Year(), now.Month(), now.Day()-1, 0, 0, 0, 0, time.UTC)

	n, err := j.archiver.ArchiveIntents(ctx, day)
	if err != nil {
		return fmt.Errorf("pipeline: archive intents for %s: %w", day.Format(time.DateOnly), err)
	}
	j.logger.InfoContext(ctx, "intent archive complete",
		slog.String("day", day.Format(time.DateOnly)),
		slog.Int("intents", n),
	)
	return nil
}

// RunCron runs the job on a 5-field cron schedule
// ("minute hour day-of-month month day-of-week") until ctx is cancelled.
// A failed run is logged and the next trigger is awaited.
func (j *ArchiveJob) RunCron(ctx context.Context, expr string) error {
	cron, err := parseCron(expr)
	if err != nil {
		return fmt.Errorf("pipeline: cron %q: %w", expr, err)
	}
	j.logger.InfoContext(ctx, "archive cron started", slog.String("cron", expr))

	for {
		next, err := cron.next(j.now().In(j.loc))
		if err != nil {
			return fmt.Errorf("pipeline: cron %q: %w", expr, err)
		}
		wait := time.Until(next)
		j.logger.DebugContext(ctx, "archive waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if err := j.Run(ctx); err != nil {
				j.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField matches one field of a cron expression.
type cronField struct {
	all    bool
	values map[int]bool
}

func (f cronField) matches(v int) bool {
	return f.all || f.values[v]
}

// parseCronField accepts "*", "*/step", single values, "a-b" ranges,
// "a-b/step" and comma-separated lists of those within [lo, hi].
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{all: true}, nil
	}
	f := cronField{values: make(map[int]bool)}
	for _, part := range strings.Split(field, ",") {
		step := 1
		if rng, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				return cronField{}, fmt.Errorf("invalid step %q", part)
			}
			step, part = n, rng
		}

		from, to := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err1, err2 error
			from, err1 = strconv.Atoi(a)
			to, err2 = strconv.Atoi(b)
			if err1 != nil || err2 != nil {
				return cronField{}, fmt.Errorf("invalid range %q", part)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid value %q", part)
			}
			from, to = v, v
		}
		if from < lo || to > hi || from > to {
			return cronField{}, fmt.Errorf("%q outside [%d, %d]", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			f.values[v] = true
		}
	}
	return f, nil
}

type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSchedule{}, fmt.Errorf("want 5 fields, got %d", len(fields))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}
	var parsed [5]cronField
	for i, field := range fields {
		f, err := parseCronField(field, bounds[i][0], bounds[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("%s: %w", names[i], err)
		}
		parsed[i] = f
	}
	return cronSchedule{
		minute: parsed[0],
		hour:   parsed[1],
		dom:    parsed[2],
		month:  parsed[3],
		dow:    parsed[4],
	}, nil
}

func (c cronSchedule) matches(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dom.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dow.matches(int(t.Weekday()))
}

// next returns the first minute strictly after t that matches, searching at
// most one year ahead.
func (c cronSchedule) next(t time.Time) (time.Time, error) {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(1, 0, 1)
	for candidate.Before(limit) {
		if c.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no match within a year")
}
