// Package dashboard computes case-load statistics for officers.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/casewatch/internal/cache"
	"github.com/opensource-finance/casewatch/internal/domain"
)

// Aggregator reads group-by totals from the store.
type Aggregator interface {
	Aggregates(ctx context.Context) (*domain.Aggregates, error)
}

// Service serves dashboard statistics, cached for a short TTL.
type Service struct {
	store Aggregator
	cache domain.Cache
	ttl   time.Duration
	now   func() time.Time

	mu   sync.Mutex
	subs []domain.Subscription
}

// Option configures a Service.
type Option func(*Service)

// WithCache caches computed stats for ttl.
func WithCache(c domain.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a dashboard service.
func NewService(store Aggregator, opts ...Option) *Service {
	s := &Service{store: store, ttl: 30 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the current dashboard statistics.
func (s *Service) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	if s.cache != nil {
		var cached domain.DashboardStats
		ok, err := cache.GetJSON(ctx, s.cache, cache.StatsKey, &cached)
		if err != nil {
			slog.DebugContext(ctx, "stats cache read failed", "error", err)
		}
		if ok {
			return &cached, nil
		}
	}

	agg, err := s.store.Aggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregates: %v", domain.ErrDependency, err)
	}

	stats := Compute(agg, s.now().UTC())

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, cache.StatsKey, stats, s.ttl); err != nil {
			slog.DebugContext(ctx, "stats cache write failed", "error", err)
		}
	}
	return stats, nil
}

// Compute derives dashboard statistics from raw aggregates. Amounts frozen
// cover cases whose money is held by a bank but not yet returned.
func Compute(agg *domain.Aggregates, at time.Time) *domain.DashboardStats {
	stats := &domain.DashboardStats{
		ByStatus:    []domain.StatusCount{},
		ByFraudType: []domain.FraudTypeCount{},
		ByPriority:  []domain.PriorityCount{},
		GeneratedAt: at,
	}
	if agg == nil {
		return stats
	}

	var progressSum int64
	for _, sc := range agg.ByStatus {
		stats.TotalComplaints += sc.Count
		stats.AmountReported += sc.Amount
		if !sc.Status.Terminal() {
			stats.OpenComplaints += sc.Count
		}
		switch sc.Status {
		case domain.StatusFundsFrozen, domain.StatusRefundProcessing:
			stats.AmountFrozen += sc.Amount
		case domain.StatusRefunded:
			stats.AmountRefunded += sc.Amount
		}
		progressSum += int64(sc.Status.ProgressPercent()) * sc.Count
	}

	if stats.TotalComplaints > 0 {
		stats.AverageProgress = round2(float64(progressSum) / float64(stats.TotalComplaints))
	}
	if stats.AmountReported > 0 {
		stats.RecoveryRate = round2(stats.AmountRefunded / stats.AmountReported * 100)
	}

	stats.ByStatus = byStatus(agg.ByStatus)
	stats.ByFraudType = append(stats.ByFraudType, agg.ByFraudType...)
	sort.Slice(stats.ByFraudType, func(i, j int) bool {
		if stats.ByFraudType[i].Count != stats.ByFraudType[j].Count {
			return stats.ByFraudType[i].Count > stats.ByFraudType[j].Count
		}
		return stats.ByFraudType[i].FraudType < stats.ByFraudType[j].FraudType
	})
	stats.ByPriority = byPriority(agg.ByPriority)
	return stats
}

// byStatus lists every status in progress order, including empty ones.
func byStatus(rows []domain.StatusCount) []domain.StatusCount {
	index := make(map[domain.Status]domain.StatusCount, len(rows))
	for _, r := range rows {
		index[r.Status] = r
	}
	out := make([]domain.StatusCount, 0, len(domain.AllStatuses()))
	for _, st := range domain.AllStatuses() {
		r := index[st]
		r.Status = st
		out = append(out, r)
	}
	return out
}

func byPriority(rows []domain.PriorityCount) []domain.PriorityCount {
	index := make(map[domain.Priority]int64, len(rows))
	for _, r := range rows {
		index[r.Priority] = r.Count
	}
	out := make([]domain.PriorityCount, 0, len(domain.AllPriorities()))
	for _, p := range domain.AllPriorities() {
		out = append(out, domain.PriorityCount{Priority: p, Count: index[p]})
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Invalidate drops the cached stats.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.StatsKey); err != nil {
		slog.WarnContext(ctx, "stats invalidation failed", "error", err)
	}
}

// Watch invalidates the cached stats whenever a complaint is filed or
// transitioned on b. Call Close to stop watching.
func (s *Service) Watch(ctx context.Context, b domain.EventBus) error {
	handler := func(ctx context.Context, msg *domain.Message) error {
		s.Invalidate(ctx)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, topic := range []string{domain.TopicComplaintFiled, domain.TopicComplaintTransitioned} {
		sub, err := b.SubscribeAll(ctx, topic, handler)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

// Close stops watching the event bus.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	s.subs = nil
	return nil
}
