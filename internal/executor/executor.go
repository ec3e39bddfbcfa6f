// Package executor turns emitted order intents into broker orders and fans
// the outcome out to the store, the event buses and the operator alerts.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// IntentNotifier alerts operators about handled intents.
type IntentNotifier interface {
	NotifyIntent(ctx context.Context, in domain.OrderIntent, res domain.OrderResult) error
}

// Executor reads intents from a channel and, for each one: drops duplicates,
// records it, re-checks the open-order guard, submits the target order,
// records the result, publishes it and notifies. Failed submissions are not
// retried; the next decision cycle re-evaluates the instrument.
type Executor struct {
	intentCh <-chan domain.OrderIntent
	gateway  domain.OrderGateway
	submit   bool
	dedup    *Dedup
	logger   *slog.Logger

	store      domain.IntentStore
	publishers []domain.IntentPublisher
	notifier   IntentNotifier

	cleanupInterval time.Duration
}

// NewExecutor creates an Executor. When submit is false (signal mode) intents
// are recorded and published but never sent to the broker.
func NewExecutor(intentCh <-chan domain.OrderIntent, gateway domain.OrderGateway, submit bool, logger *slog.Logger) *Executor {
	return &Executor{
		intentCh:        intentCh,
		gateway:         gateway,
		submit:          submit,
		dedup:           NewDedup(24 * time.Hour),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 5 * time.Minute,
	}
}

// SetStore records every intent and its result.
func (e *Executor) SetStore(s domain.IntentStore) { e.store = s }

// AddPublisher publishes every handled intent to p.
func (e *Executor) AddPublisher(p domain.IntentPublisher) {
	e.publishers = append(e.publishers, p)
}

// SetNotifier alerts on every handled intent.
func (e *Executor) SetNotifier(n IntentNotifier) { e.notifier = n }

// SetDedupTTL replaces the dedup window.
func (e *Executor) SetDedupTTL(ttl time.Duration) { e.dedup = NewDedup(ttl) }

// Run processes intents until ctx is cancelled or the channel is closed.
// Intents already buffered at cancellation are still handled.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started", slog.Bool("submit", e.submit))
	defer e.logger.Info("executor stopped")

	cleanup := time.NewTicker(e.cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return nil
		case in, ok := <-e.intentCh:
			if !ok {
				return nil
			}
			e.Process(ctx, in)
		case <-cleanup.C:
			e.dedup.Cleanup()
		}
	}
}

// Process handles one intent and returns its outcome.
func (e *Executor) Process(ctx context.Context, in domain.OrderIntent) domain.OrderResult {
	log := e.logger.With(
		slog.String("intent_id", in.ID),
		slog.String("instrument", in.Instrument.String()),
		slog.String("reason", string(in.Reason)),
	)

	if e.dedup.IsDuplicate(in.ID) {
		log.Debug("intent deduplicated")
		return domain.OrderResult{Status: domain.OrderStatusSkipped, Message: "duplicate"}
	}
	if e.store != nil {
		if err := e.store.Create(ctx, in); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				log.Debug("intent already recorded by another replica")
				return domain.OrderResult{Status: domain.OrderStatusSkipped, Message: "duplicate"}
			}
			log.Error("intent record failed", slog.String("error", err.Error()))
		}
	}

	res := e.execute(ctx, in, log)

	if e.store != nil {
		if err := e.store.UpdateResult(ctx, in.ID, res); err != nil {
			log.Error("intent result update failed", slog.String("error", err.Error()))
		}
	}
	for _, p := range e.publishers {
		if err := p.PublishIntent(ctx, in, res); err != nil {
			log.Warn("intent publish failed", slog.String("error", err.Error()))
		}
	}
	if e.notifier != nil {
		if err := e.notifier.NotifyIntent(ctx, in, res); err != nil {
			log.Warn("intent notification failed", slog.String("error", err.Error()))
		}
	}
	return res
}

func (e *Executor) execute(ctx context.Context, in domain.OrderIntent, log *slog.Logger) domain.OrderResult {
	if !e.submit {
		return domain.OrderResult{Success: true, Status: domain.OrderStatusSkipped, Message: "signal mode"}
	}

	// Another order may have been placed since the engine decided.
	open, err := e.gateway.HasOpenOrder(ctx, in.Instrument)
	if err != nil {
		log.Warn("open-order check failed, skipping", slog.String("error", err.Error()))
		return domain.OrderResult{Status: domain.OrderStatusSkipped, Message: "open-order check failed"}
	}
	if open {
		log.Info("open order exists, skipping")
		return domain.OrderResult{Status: domain.OrderStatusSkipped, Message: domain.ErrOpenOrder.Error()}
	}

	var res domain.OrderResult
	switch in.Kind {
	case domain.TargetValue:
		res, err = e.gateway.SubmitTargetValue(ctx, in.Instrument, in.Target, in.ID)
	case domain.TargetPercent:
		res, err = e.gateway.SubmitTargetPercent(ctx, in.Instrument, in.Target, in.ID)
	default:
		err = fmt.Errorf("unknown target kind %q", in.Kind)
	}
	if err != nil {
		log.Error("order submission failed", slog.String("error", err.Error()))
		res.Success = false
		res.Status = domain.OrderStatusRejected
		if res.Message == "" {
			res.Message = err.Error()
		}
		return res
	}

	log.Info("order submitted",
		slog.String("order_id", res.OrderID),
		slog.String("status", string(res.Status)),
		slog.String("kind", string(in.Kind)),
		slog.Float64("target", in.Target),
	)
	return res
}

// drain handles intents still buffered after shutdown with a short timeout
// each.
func (e *Executor) drain() {
	for {
		select {
		case in, ok := <-e.intentCh:
			if !ok {
				return
			}
			e.logger.Warn("draining intent after shutdown", slog.String("intent_id", in.ID))
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.Process(ctx, in)
			cancel()
		default:
			return
		}
	}
}
