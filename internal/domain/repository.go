// Package domain defines the core interfaces and types for Casewatch.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Complaint operations
	CreateComplaint(ctx context.Context, c *Complaint, initial *CaseUpdate) error
	GetComplaint(ctx context.Context, id string) (*Complaint, error)
	ListComplaints(ctx context.Context, filter ComplaintFilter) ([]*Complaint, error)
	CountComplaintsByPhone(ctx context.Context, phone string, since time.Time) (int64, error)

	// ApplyStatusChange updates the complaint status and appends the case
	// update in a single transaction. It returns the updated complaint and
	// the status read inside that transaction before the write. Nothing is
	// written when it fails.
	ApplyStatusChange(ctx context.Context, change StatusChange) (*Complaint, Status, error)
	ListCaseUpdates(ctx context.Context, complaintID string) ([]*CaseUpdate, error)

	// Dashboard
	Aggregates(ctx context.Context) (*Aggregates, error)

	// Notification delivery tracking
	SaveNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id string) (*Notification, error)
	UpdateNotificationStatus(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, complaintID string) ([]*Notification, error)

	// Officers
	CreateOfficer(ctx context.Context, o *Officer) error
	GetOfficerByUsername(ctx context.Context, username string) (*Officer, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `env:"DRIVER"`

	// SQLite specific
	SQLitePath string `env:"SQLITE_PATH"`

	// PostgreSQL specific
	PostgresHost     string `env:"POSTGRES_HOST"`
	PostgresPort     int    `env:"POSTGRES_PORT"`
	PostgresUser     string `env:"POSTGRES_USER"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME"`
}
