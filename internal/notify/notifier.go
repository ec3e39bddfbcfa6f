// Package notify sends operator alerts for emitted intents, session rankings
// and errors to Telegram and Discord. Each alert carries an event type and
// only configured event types are delivered.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// Event types accepted by the notify.events filter.
const (
	EventEntry   = "entry"
	EventExit    = "exit"
	EventRanking = "ranking"
	EventError   = "error"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to every Sender whose event type passes the
// filter. An empty filter passes everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event would be delivered.
func (n *Notifier) Enabled(event string) bool {
	if len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[event]
}

// Notify sends title and message if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyIntent reports a handled intent. Rejected submissions are sent as
// errors, exits as exit events and everything else as entries.
func (n *Notifier) NotifyIntent(ctx context.Context, in domain.OrderIntent, res domain.OrderResult) error {
	event := EventEntry
	switch {
	case res.Status == domain.OrderStatusRejected:
		event = EventError
	case in.Reason.IsExit():
		event = EventExit
	}
	title := fmt.Sprintf("%s %s", in.Instrument, in.Reason)
	var b strings.Builder
	fmt.Fprintf(&b, "target: %s %g\n", in.Kind, in.Target)
	fmt.Fprintf(&b, "status: %s", res.Status)
	if res.OrderID != "" {
		fmt.Fprintf(&b, "\norder: %s", res.OrderID)
	}
	if res.Message != "" {
		fmt.Fprintf(&b, "\nmessage: %s", res.Message)
	}
	return n.Notify(ctx, event, title, b.String())
}

// NotifyRanking summarizes a session's ranked universe.
func (n *Notifier) NotifyRanking(ctx context.Context, u domain.RankedUniverse) error {
	title := "Universe " + u.Session.Format("2006-01-02")
	msg := fmt.Sprintf("candidates: %d\nlong leg: %s\nshort leg: %s",
		u.Len(), preview(u.LongLeg, 5), preview(u.ShortLeg, 5))
	return n.Notify(ctx, EventRanking, title, msg)
}

// NotifyError reports a failed scheduled callback.
func (n *Notifier) NotifyError(ctx context.Context, source string, err error) error {
	return n.Notify(ctx, EventError, "Error in "+source, err.Error())
}

func preview(insts []domain.Instrument, limit int) string {
	if len(insts) == 0 {
		return "-"
	}
	parts := make([]string, 0, limit)
	for i, inst := range insts {
		if i == limit {
			parts = append(parts, fmt.Sprintf("... (+%d)", len(insts)-limit))
			break
		}
		parts = append(parts, inst.String())
	}
	return strings.Join(parts, ", ")
}

// dispatch sends to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
