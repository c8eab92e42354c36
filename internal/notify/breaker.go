package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opensource-finance/casewatch/internal/domain"
	"github.com/opensource-finance/casewatch/internal/metrics"
)

// ErrSenderUnavailable is returned while a sender's breaker is open.
var ErrSenderUnavailable = errors.New("sender unavailable")

// BreakerSender stops calling a failing provider until it has had time to
// recover. Calls made while open fail fast with ErrSenderUnavailable.
type BreakerSender struct {
	next    Sender
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerSender wraps next. The breaker opens after failures consecutive
// errors and half-opens after timeout.
func NewBreakerSender(ch domain.Channel, next Sender, failures uint32, timeout time.Duration) *BreakerSender {
	if failures == 0 {
		failures = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	gauge := metrics.SenderBreakerState.WithLabelValues(string(ch))
	gauge.Set(0)

	return &BreakerSender{
		next: next,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    string(ch),
			Timeout: timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				gauge.Set(stateValue(to))
				slog.Warn("sender breaker state change",
					"channel", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		}),
	}
}

// Send forwards to the wrapped sender through the breaker.
func (b *BreakerSender) Send(ctx context.Context, recipient, subject, body string) (string, error) {
	ref, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Send(ctx, recipient, subject, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %s: %v", ErrSenderUnavailable, b.breaker.Name(), err)
	}
	if err != nil {
		return "", err
	}
	s, _ := ref.(string)
	return s, nil
}

// State returns the breaker state.
func (b *BreakerSender) State() gobreaker.State { return b.breaker.State() }

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
