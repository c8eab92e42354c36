package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/casewatch/internal/domain"
)

// Store persists notification delivery state.
type Store interface {
	SaveNotification(ctx context.Context, n *domain.Notification) error
	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	UpdateNotificationStatus(ctx context.Context, n *domain.Notification) error
}

// Request is the bus payload asking a worker to deliver a notification.
type Request struct {
	NotificationID string `json:"notificationId"`
}

// BusDispatcher records a notification as QUEUED and publishes its id for
// the delivery worker. It never calls a provider itself.
type BusDispatcher struct {
	store Store
	bus   domain.EventBus
}

// NewBusDispatcher creates a dispatcher.
func NewBusDispatcher(store Store, bus domain.EventBus) *BusDispatcher {
	return &BusDispatcher{store: store, bus: bus}
}

// Dispatch persists n and publishes a delivery request.
func (d *BusDispatcher) Dispatch(ctx context.Context, n *domain.Notification) error {
	n.Status = domain.DeliveryQueued
	if err := d.store.SaveNotification(ctx, n); err != nil {
		return fmt.Errorf("save notification: %w", err)
	}

	payload, err := json.Marshal(Request{NotificationID: n.ID})
	if err != nil {
		return err
	}
	if err := d.bus.Publish(ctx, domain.TopicNotificationRequested, payload); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
