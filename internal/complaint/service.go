// Package complaint handles victim intake and complaint reads.
package complaint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/casewatch/internal/cache"
	"github.com/opensource-finance/casewatch/internal/domain"
	"github.com/opensource-finance/casewatch/internal/metrics"
	"github.com/opensource-finance/casewatch/internal/notify"
)

var tracer = otel.Tracer("casewatch-complaint")

// Store is the persistence the service needs.
type Store interface {
	CreateComplaint(ctx context.Context, c *domain.Complaint, initial *domain.CaseUpdate) error
	GetComplaint(ctx context.Context, id string) (*domain.Complaint, error)
	ListComplaints(ctx context.Context, filter domain.ComplaintFilter) ([]*domain.Complaint, error)
	ListCaseUpdates(ctx context.Context, complaintID string) ([]*domain.CaseUpdate, error)
}

// Throttle limits filings per victim phone.
type Throttle interface {
	Check(ctx context.Context, phone string) error
	Release(ctx context.Context, phone string)
}

// Acknowledger queues the "complaint registered" notification.
type Acknowledger interface {
	Registered(ctx context.Context, c *domain.Complaint, u *domain.CaseUpdate) (*domain.Notification, error)
}

// Filed is published on TopicComplaintFiled.
type Filed struct {
	ComplaintID string           `json:"complaintId"`
	FraudType   domain.FraudType `json:"fraudType"`
	Priority    domain.Priority  `json:"priority"`
	Amount      float64          `json:"amount"`
	At          time.Time        `json:"at"`
}

// Tracking is what a victim sees when looking up their complaint.
type Tracking struct {
	Complaint   *domain.Complaint    `json:"complaint"`
	Updates     []*domain.CaseUpdate `json:"updates"`
	StatusLabel string               `json:"statusLabel"`
	StatusColor string               `json:"statusColor"`
	Progress    int                  `json:"progress"`
}

// Service files and reads complaints.
type Service struct {
	store    Store
	throttle Throttle
	ack      Acknowledger
	cache    domain.Cache
	ttl      time.Duration
	bus      domain.EventBus
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithThrottle enables the per-phone intake limit.
func WithThrottle(t Throttle) Option { return func(s *Service) { s.throttle = t } }

// WithAcknowledger sends a notification for every new complaint.
func WithAcknowledger(a Acknowledger) Option { return func(s *Service) { s.ack = a } }

// WithCache caches complaint and case update reads for ttl.
func WithCache(c domain.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithEventBus publishes a Filed event for every new complaint.
func WithEventBus(b domain.EventBus) Option { return func(s *Service) { s.bus = b } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a complaint service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, ttl: 2 * time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates and files a new complaint. The complaint always starts
// PENDING with a "Complaint Registered" case update.
func (s *Service) Submit(ctx context.Context, req domain.ComplaintRequest) (*domain.Complaint, error) {
	ctx, span := tracer.Start(ctx, "complaint.Submit")
	defer span.End()

	normalize(&req)
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	if s.throttle != nil {
		if err := s.throttle.Check(ctx, req.Victim.Phone); err != nil {
			if errors.Is(err, domain.ErrThrottled) {
				metrics.IntakeThrottled.Inc()
			}
			return nil, err
		}
	}

	fraudType, _ := domain.ParseFraudType(req.FraudType)
	priority := domain.PriorityForAmount(req.Amount)
	if req.Priority != "" {
		priority, _ = domain.ParsePriority(req.Priority)
	}

	now := s.now().UTC()
	c := &domain.Complaint{
		Victim:      req.Victim,
		FraudType:   fraudType,
		Amount:      req.Amount,
		FraudDate:   req.FraudDate.UTC(),
		Description: req.Description,
		Bank:        req.Bank,
		Status:      domain.StatusPending,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	initial := &domain.CaseUpdate{
		ID:          uuid.NewString(),
		Title:       "Complaint Registered",
		Description: "Your complaint has been registered and is awaiting review.",
		Status:      domain.StatusPending,
		ActorID:     domain.SystemActor,
		CreatedAt:   now,
	}

	if err := s.store.CreateComplaint(ctx, c, initial); err != nil {
		if s.throttle != nil {
			s.throttle.Release(ctx, req.Victim.Phone)
		}
		return nil, storeError("new", err)
	}
	span.SetAttributes(attribute.String("complaint.id", c.ID))
	metrics.ComplaintsFiled.WithLabelValues(string(c.FraudType), string(c.Priority)).Inc()

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.StatsKey); err != nil {
			slog.WarnContext(ctx, "cache invalidation failed", "key", cache.StatsKey, "error", err)
		}
	}
	s.publish(ctx, Filed{
		ComplaintID: c.ID,
		FraudType:   c.FraudType,
		Priority:    c.Priority,
		Amount:      c.Amount,
		At:          now,
	})

	if s.ack != nil {
		if _, err := s.ack.Registered(ctx, c, initial); err != nil {
			slog.WarnContext(ctx, "acknowledgement not queued",
				"complaint_id", c.ID,
				"error", err,
			)
		}
	}

	slog.InfoContext(ctx, "complaint filed",
		"complaint_id", c.ID,
		"fraud_type", c.FraudType,
		"priority", c.Priority,
		"phone", notify.Mask(c.Victim.Phone),
	)
	return c, nil
}

// Get returns a complaint by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Complaint, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return nil, fmt.Errorf("%w: complaint id is required", domain.ErrValidation)
	}

	var c domain.Complaint
	if s.cached(ctx, cache.ComplaintKey(id), &c) {
		return &c, nil
	}

	got, err := s.store.GetComplaint(ctx, id)
	if err != nil {
		return nil, storeError(id, err)
	}
	s.fill(ctx, cache.ComplaintKey(id), got)
	return got, nil
}

// Updates returns the case updates of a complaint, oldest first.
func (s *Service) Updates(ctx context.Context, id string) ([]*domain.CaseUpdate, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var updates []*domain.CaseUpdate
	if s.cached(ctx, cache.UpdatesKey(c.ID), &updates) {
		return updates, nil
	}

	updates, err = s.store.ListCaseUpdates(ctx, c.ID)
	if err != nil {
		return nil, storeError(c.ID, err)
	}
	s.fill(ctx, cache.UpdatesKey(c.ID), updates)
	return updates, nil
}

// Track is the victim's lookup. The phone must match the one on file; a
// mismatch is reported as not found so complaint IDs cannot be probed.
func (s *Service) Track(ctx context.Context, id, phone string) (*Tracking, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, fmt.Errorf("%w: phone is required", domain.ErrValidation)
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Victim.Phone != phone {
		return nil, fmt.Errorf("%w: complaint %s", domain.ErrNotFound, c.ID)
	}

	updates, err := s.Updates(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &Tracking{
		Complaint:   c,
		Updates:     updates,
		StatusLabel: c.Status.Label(),
		StatusColor: c.Status.Color(),
		Progress:    c.Progress(),
	}, nil
}

// List returns complaints matching filter, newest first.
func (s *Service) List(ctx context.Context, filter domain.ComplaintFilter) ([]*domain.Complaint, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", domain.ErrValidation)
	}
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Phone != "" {
		filter.Phone = NormalizePhone(filter.Phone)
	}

	out, err := s.store.ListComplaints(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDependency, err)
	}
	if out == nil {
		out = []*domain.Complaint{}
	}
	return out, nil
}

func (s *Service) cached(ctx context.Context, key string, v any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := cache.GetJSON(ctx, s.cache, key, v)
	if err != nil {
		slog.DebugContext(ctx, "cache read failed", "key", key, "error", err)
		return false
	}
	return ok
}

func (s *Service) fill(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, key, v, s.ttl); err != nil {
		slog.DebugContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, ev Filed) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err == nil {
		err = s.bus.Publish(ctx, domain.TopicComplaintFiled, payload)
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to publish filed event", "complaint_id", ev.ComplaintID, "error", err)
	}
}

func storeError(id string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("%w: complaint %s", domain.ErrNotFound, id)
	case errors.Is(err, domain.ErrValidation):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrDependency, err)
	}
}
