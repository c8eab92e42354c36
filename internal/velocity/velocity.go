// Package velocity limits how fast complaints are filed from one phone number.
package velocity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/casewatch/internal/cache"
	"github.com/opensource-finance/casewatch/internal/domain"
)

// Counter counts complaints already stored for a phone.
type Counter interface {
	CountComplaintsByPhone(ctx context.Context, phone string, since time.Time) (int64, error)
}

// Service enforces the intake limit. The cache counter is authoritative; the
// store count is used when the cache is unavailable.
type Service struct {
	cache   domain.Cache
	counter Counter
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewService creates a limiter. A non-positive max disables the limit.
func NewService(c domain.Cache, counter Counter, cfg domain.IntakeConfig) *Service {
	window := cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Service{
		cache:   c,
		counter: counter,
		max:     cfg.MaxPerPhone,
		window:  window,
		now:     time.Now,
	}
}

// Check reserves one filing for phone and returns a *domain.ThrottledError
// once the limit for the current window is reached. A throttled attempt
// does not count. Call Release if the reserved filing is never stored.
func (s *Service) Check(ctx context.Context, phone string) error {
	if s.max <= 0 {
		return nil
	}
	if phone == "" {
		return fmt.Errorf("%w: phone is required", domain.ErrValidation)
	}

	count, counted, err := s.count(ctx, phone)
	if err != nil {
		return fmt.Errorf("%w: intake limit: %v", domain.ErrDependency, err)
	}

	if count > int64(s.max) {
		if counted {
			s.release(ctx, phone)
		}
		return &domain.ThrottledError{
			Reason:     fmt.Sprintf("at most %d complaints per %s from one phone", s.max, s.window),
			RetryAfter: s.window,
		}
	}
	return nil
}

// Release gives back a filing reserved by Check.
func (s *Service) Release(ctx context.Context, phone string) {
	if s.max <= 0 || phone == "" {
		return
	}
	s.release(ctx, phone)
}

func (s *Service) release(ctx context.Context, phone string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DecrementCounter(ctx, cache.ThrottleKey(phone)); err != nil {
		slog.WarnContext(ctx, "intake counter not released", "error", err)
	}
}

// count reports whether the attempt was recorded in the cache counter.
func (s *Service) count(ctx context.Context, phone string) (int64, bool, error) {
	if s.cache != nil {
		n, err := s.cache.IncrementCounter(ctx, cache.ThrottleKey(phone), s.window)
		if err == nil {
			return n, true, nil
		}
		slog.WarnContext(ctx, "intake counter unavailable, falling back to store", "error", err)
	}

	if s.counter == nil {
		return 0, false, fmt.Errorf("no data source available")
	}

	// The store has not seen the current attempt yet.
	n, err := s.counter.CountComplaintsByPhone(ctx, phone, s.now().Add(-s.window))
	if err != nil {
		return 0, false, fmt.Errorf("failed to count complaints: %w", err)
	}
	return n + 1, false, nil
}
