package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Channel is a notification transport.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
)

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case ChannelSMS, ChannelEmail, ChannelPush:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown channel %q", ErrValidation, s)
}

// DeliveryStatus tracks a notification through the queue.
type DeliveryStatus string

const (
	DeliveryQueued DeliveryStatus = "QUEUED"
	DeliverySent   DeliveryStatus = "SENT"
	DeliveryFailed DeliveryStatus = "FAILED"
)

// Notification is one outbound message to a victim.
type Notification struct {
	ID           string         `json:"id"`
	ComplaintID  string         `json:"complaintId"`
	CaseUpdateID string         `json:"caseUpdateId,omitempty"`
	Channel      Channel        `json:"channel"`
	Recipient    string         `json:"recipient"`
	Subject      string         `json:"subject"`
	Body         string         `json:"body"`
	Status       DeliveryStatus `json:"status"`
	Attempts     int            `json:"attempts"`
	LastError    string         `json:"lastError,omitempty"`
	ProviderRef  string         `json:"providerRef,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// NotificationSender delivers a message on a single channel. Implementations
// return a provider reference (message SID, FCM id) when one is available.
type NotificationSender interface {
	Send(ctx context.Context, channel Channel, recipient string, subject string, body string) (string, error)
}

// Dispatcher hands a notification off for delivery. It must not block on the
// delivery itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *Notification) error
}

// NotificationConfig selects and configures the senders.
type NotificationConfig struct {
	// Sender is "log" (simulation) or "live".
	Sender string `env:"SENDER"`

	// Preferred channels, tried in order against the victim's contact fields.
	Channels []string `env:"CHANNELS" envSeparator:","`

	MaxAttempts int           `env:"MAX_ATTEMPTS"`
	RetryDelay  time.Duration `env:"RETRY_DELAY"`

	// Live senders trip open after BreakerFailures consecutive errors and
	// probe again after BreakerTimeout.
	BreakerFailures uint32        `env:"BREAKER_FAILURES"`
	BreakerTimeout  time.Duration `env:"BREAKER_TIMEOUT"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	FromEmail    string `env:"FROM_EMAIL"`
	FromName     string `env:"FROM_NAME"`

	FirebaseCredentialsPath string `env:"FIREBASE_CREDENTIALS"`
}
