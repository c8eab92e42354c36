// Package worker delivers queued victim notifications from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/opensource-finance/casewatch/internal/domain"
	"github.com/opensource-finance/casewatch/internal/metrics"
	"github.com/opensource-finance/casewatch/internal/notify"
)

// Worker consumes notification requests, sends them through the configured
// sender and records the outcome. Delivery is keyed by notification id, so
// a request for an already SENT notification is dropped.
type Worker struct {
	bus    domain.EventBus
	store  notify.Store
	sender domain.NotificationSender
	cfg    Config

	sem           chan struct{}
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Concurrency bounds in-flight deliveries.
	Concurrency int

	// MaxAttempts bounds send attempts per notification.
	MaxAttempts int

	// RetryDelay is the first backoff interval. It doubles per attempt.
	RetryDelay time.Duration

	// MaxRetryDelay caps a single backoff interval.
	MaxRetryDelay time.Duration
}

// NewWorker creates a new delivery worker.
func NewWorker(bus domain.EventBus, store notify.Store, sender domain.NotificationSender, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		store:  store,
		sender: sender,
		cfg:    cfg,
		sem:    make(chan struct{}, cfg.Concurrency),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to notification requests.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicNotificationRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("notification worker started",
		"topic", domain.TopicNotificationRequested,
		"concurrency", w.cfg.Concurrency,
		"max_attempts", w.cfg.MaxAttempts,
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req notify.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse notification request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return w.ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()

		if err := w.Deliver(w.ctx, req.NotificationID); err != nil {
			slog.Error("notification delivery failed",
				"notification_id", req.NotificationID,
				"error", err,
			)
		}
	}()
	return nil
}

// Deliver sends one notification with retries and stores the result.
func (w *Worker) Deliver(ctx context.Context, id string) error {
	start := time.Now()

	n, err := w.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.Status == domain.DeliverySent {
		slog.Debug("notification already sent", "notification_id", id)
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = w.cfg.RetryDelay
	eb.MaxInterval = w.cfg.MaxRetryDelay

	attempts := 0
	ref, sendErr := backoff.Retry(ctx, func() (string, error) {
		attempts++
		ref, err := w.sender.Send(ctx, n.Channel, n.Recipient, n.Subject, n.Body)
		if errors.Is(err, notify.ErrNoSender) {
			return "", backoff.Permanent(err)
		}
		return ref, err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(w.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("notification send failed, retrying",
				"notification_id", n.ID,
				"channel", n.Channel,
				"recipient", notify.Mask(n.Recipient),
				"retry_in", next,
				"error", err,
			)
		}),
	)

	if sendErr != nil && ctx.Err() != nil {
		// Shutting down: leave the row QUEUED for the next delivery request.
		return sendErr
	}

	n.Attempts += attempts
	result := "sent"
	if sendErr != nil {
		result = "failed"
		n.Status = domain.DeliveryFailed
		n.LastError = sendErr.Error()
	} else {
		n.Status = domain.DeliverySent
		n.ProviderRef = ref
		n.LastError = ""
	}

	metrics.NotificationDeliveries.WithLabelValues(string(n.Channel), result).Inc()
	metrics.NotificationAttempts.WithLabelValues(string(n.Channel), result).Observe(float64(attempts))

	if err := w.store.UpdateNotificationStatus(ctx, n); err != nil {
		return err
	}

	slog.Info("notification processed",
		"notification_id", n.ID,
		"complaint_id", n.ComplaintID,
		"channel", n.Channel,
		"recipient", notify.Mask(n.Recipient),
		"status", n.Status,
		"attempts", attempts,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sendErr
}

// Stop unsubscribes and waits for in-flight deliveries.
func (w *Worker) Stop() error {
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.cancel()
	w.wg.Wait()

	slog.Info("notification worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	InFlight          int      `json:"inFlight"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		InFlight:          len(w.sem),
	}
}
