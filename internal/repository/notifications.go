package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/casewatch/internal/domain"
)

const notificationColumns = `
	id, complaint_id, case_update_id, channel, recipient, subject, body,
	status, attempts, last_error, provider_ref, created_at, updated_at`

// SaveNotification records a queued notification.
func (r *SQLRepository) SaveNotification(ctx context.Context, n *domain.Notification) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("%w: notification id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	query := `INSERT INTO notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		n.ID, n.ComplaintID, n.CaseUpdateID, string(n.Channel), n.Recipient, n.Subject, n.Body,
		string(n.Status), n.Attempts, n.LastError, n.ProviderRef, n.CreatedAt, n.UpdatedAt,
	)
	return err
}

// GetNotification retrieves a notification by ID.
func (r *SQLRepository) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`

	n, err := scanNotification(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

// UpdateNotificationStatus stores the delivery outcome of a notification.
func (r *SQLRepository) UpdateNotificationStatus(ctx context.Context, n *domain.Notification) error {
	n.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE notifications
		SET status = ?, attempts = ?, last_error = ?, provider_ref = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(n.Status), n.Attempts, n.LastError, n.ProviderRef, n.UpdatedAt, n.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNotifications returns the notifications sent for a complaint, oldest first.
func (r *SQLRepository) ListNotifications(ctx context.Context, complaintID string) ([]*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE complaint_id = ? ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var n domain.Notification
	var caseUpdateID, lastError, providerRef sql.NullString
	var channel, status string

	err := row.Scan(
		&n.ID, &n.ComplaintID, &caseUpdateID, &channel, &n.Recipient, &n.Subject, &n.Body,
		&status, &n.Attempts, &lastError, &providerRef, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.CaseUpdateID = caseUpdateID.String
	n.Channel = domain.Channel(channel)
	n.Status = domain.DeliveryStatus(status)
	n.LastError = lastError.String
	n.ProviderRef = providerRef.String
	return &n, nil
}
