// Package lifecycle applies complaint status transitions: it validates the
// request, writes the new status and its case update atomically, then queues
// exactly one victim notification.
package lifecycle

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
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/casewatch/internal/cache"
	"github.com/opensource-finance/casewatch/internal/domain"
	"github.com/opensource-finance/casewatch/internal/metrics"
	"github.com/opensource-finance/casewatch/internal/notify"
	"github.com/opensource-finance/casewatch/internal/policy"
)

var tracer = otel.Tracer("casewatch-lifecycle")

// Store is the persistence the manager needs.
type Store interface {
	GetComplaint(ctx context.Context, id string) (*domain.Complaint, error)
	ApplyStatusChange(ctx context.Context, change domain.StatusChange) (*domain.Complaint, domain.Status, error)
}

// Notifier queues the victim notification for a case update.
type Notifier interface {
	StatusChanged(ctx context.Context, c *domain.Complaint, u *domain.CaseUpdate) (*domain.Notification, error)
}

// Request asks for one status transition.
type Request struct {
	ComplaintID string             `json:"complaintId"`
	Status      string             `json:"status"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	ActorID     string             `json:"actorId"`
	ActorRole   domain.Role        `json:"actorRole,omitempty"`
	FIR         *domain.FIRDetails `json:"fir,omitempty"`
}

// Result is the state after a successful transition.
type Result struct {
	Complaint    *domain.Complaint    `json:"complaint"`
	CaseUpdate   *domain.CaseUpdate   `json:"caseUpdate"`
	Notification *domain.Notification `json:"notification,omitempty"`
}

// Event is published on TopicComplaintTransitioned after commit.
type Event struct {
	ComplaintID  string        `json:"complaintId"`
	From         domain.Status `json:"from"`
	To           domain.Status `json:"to"`
	CaseUpdateID string        `json:"caseUpdateId"`
	ActorID      string        `json:"actorId"`
	At           time.Time     `json:"at"`
}

// Manager owns the status lifecycle.
type Manager struct {
	store    Store
	notifier Notifier
	policy   policy.Policy
	cache    domain.Cache
	bus      domain.EventBus
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithPolicy replaces the default permissive policy.
func WithPolicy(p policy.Policy) Option { return func(m *Manager) { m.policy = p } }

// WithCache invalidates cached complaint reads and stats after each transition.
func WithCache(c domain.Cache) Option { return func(m *Manager) { m.cache = c } }

// WithEventBus publishes an Event after each transition.
func WithEventBus(b domain.EventBus) Option { return func(m *Manager) { m.bus = b } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager creates a manager.
func NewManager(store Store, notifier Notifier, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		notifier: notifier,
		policy:   policy.Permissive{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ProgressPercent returns the progress bar value for a status.
func (m *Manager) ProgressPercent(s domain.Status) int {
	return s.ProgressPercent()
}

// Transition validates and applies req. On success the complaint status and
// exactly one case update are committed together, then one notification is
// queued. Notification failures are logged and never returned.
//
// Errors wrap domain.ErrValidation, domain.ErrNotFound or domain.ErrDependency.
func (m *Manager) Transition(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	status, err := validate(&req)
	if err != nil {
		metrics.Transitions.WithLabelValues("invalid", "rejected").Inc()
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "lifecycle.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("complaint.id", req.ComplaintID),
		attribute.String("complaint.status", string(status)),
	)

	result, from, err := m.apply(ctx, req, status)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.Transitions.WithLabelValues(string(status), outcome(err)).Inc()
		return nil, err
	}

	m.invalidate(ctx, req.ComplaintID)

	note, err := m.notifier.StatusChanged(ctx, result.Complaint, result.CaseUpdate)
	channel := "none"
	if note != nil {
		channel = string(note.Channel)
		result.Notification = note
	}
	if err != nil {
		metrics.NotificationsDispatched.WithLabelValues(channel, "failed").Inc()
		slog.WarnContext(ctx, "victim notification not queued",
			"complaint_id", req.ComplaintID,
			"case_update_id", result.CaseUpdate.ID,
			"channel", channel,
			"error", err,
		)
	} else {
		metrics.NotificationsDispatched.WithLabelValues(channel, "queued").Inc()
	}

	m.publish(ctx, Event{
		ComplaintID:  req.ComplaintID,
		From:         from,
		To:           status,
		CaseUpdateID: result.CaseUpdate.ID,
		ActorID:      req.ActorID,
		At:           result.CaseUpdate.CreatedAt,
	})

	metrics.Transitions.WithLabelValues(string(status), "ok").Inc()
	metrics.TransitionDuration.Observe(time.Since(start).Seconds())

	slog.InfoContext(ctx, "complaint transitioned",
		"complaint_id", req.ComplaintID,
		"from", from,
		"status", status,
		"actor_id", req.ActorID,
		"case_update_id", result.CaseUpdate.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (m *Manager) apply(ctx context.Context, req Request, status domain.Status) (*Result, domain.Status, error) {
	current, err := m.store.GetComplaint(ctx, req.ComplaintID)
	if err != nil {
		return nil, "", storeError(req.ComplaintID, err)
	}

	err = m.policy.Allow(ctx, policy.Check{
		From:      current.Status,
		To:        status,
		ActorRole: req.ActorRole,
		Priority:  current.Priority,
		Amount:    current.Amount,
	})
	if err != nil {
		return nil, current.Status, err
	}

	update := &domain.CaseUpdate{
		ID:          uuid.NewString(),
		ComplaintID: req.ComplaintID,
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		ActorID:     req.ActorID,
	}

	updated, from, err := m.store.ApplyStatusChange(ctx, domain.StatusChange{
		ComplaintID: req.ComplaintID,
		Status:      status,
		FIR:         req.FIR,
		Update:      update,
		Clock:       m.now,
	})
	if err != nil {
		return nil, current.Status, storeError(req.ComplaintID, err)
	}

	return &Result{Complaint: updated, CaseUpdate: update}, from, nil
}

func validate(req *Request) (domain.Status, error) {
	req.ComplaintID = strings.TrimSpace(req.ComplaintID)
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.ActorID = strings.TrimSpace(req.ActorID)

	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return "", err
	}

	var missing []string
	if req.ComplaintID == "" {
		missing = append(missing, "complaint id")
	}
	if req.Title == "" {
		missing = append(missing, "title")
	}
	if req.Description == "" {
		missing = append(missing, "description")
	}
	if req.ActorID == "" {
		missing = append(missing, "actor id")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s required", domain.ErrValidation, strings.Join(missing, ", "))
	}
	if req.FIR != nil && strings.TrimSpace(req.FIR.Number) == "" {
		return "", fmt.Errorf("%w: FIR number required when FIR details are given", domain.ErrValidation)
	}
	return status, nil
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

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "rejected"
	default:
		return "error"
	}
}

func (m *Manager) invalidate(ctx context.Context, id string) {
	if m.cache == nil {
		return
	}
	for _, key := range []string{cache.ComplaintKey(id), cache.UpdatesKey(id), cache.StatsKey} {
		if err := m.cache.Delete(ctx, key); err != nil {
			slog.WarnContext(ctx, "cache invalidation failed", "key", key, "error", err)
		}
	}
}

func (m *Manager) publish(ctx context.Context, ev Event) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err == nil {
		err = m.bus.Publish(ctx, domain.TopicComplaintTransitioned, payload)
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to publish transition event",
			"complaint_id", ev.ComplaintID,
			"error", err,
		)
	}
}

// Compile-time check that the notify package satisfies Notifier.
var _ Notifier = (*notify.Notifier)(nil)
