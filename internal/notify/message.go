package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/casewatch/internal/domain"
)

// DefaultChannels is the preference order when none is configured.
var DefaultChannels = []domain.Channel{domain.ChannelSMS, domain.ChannelEmail, domain.ChannelPush}

// SelectRecipient returns the first channel in order for which the victim
// has a contact on file.
func SelectRecipient(v domain.Victim, order []domain.Channel) (domain.Channel, string, bool) {
	if len(order) == 0 {
		order = DefaultChannels
	}
	for _, ch := range order {
		var to string
		switch ch {
		case domain.ChannelSMS:
			to = v.Phone
		case domain.ChannelEmail:
			to = v.Email
		case domain.ChannelPush:
			to = v.DeviceToken
		}
		if strings.TrimSpace(to) != "" {
			return ch, to, true
		}
	}
	return "", "", false
}

// StatusChangeMessage renders the victim message for a case update.
func StatusChangeMessage(c *domain.Complaint, u *domain.CaseUpdate) (subject, body string) {
	subject = fmt.Sprintf("Complaint %s: %s", c.ID, u.Title)
	body = fmt.Sprintf("Your complaint %s has been updated: %s. Current status: %s (%d%% complete).",
		c.ID, u.Title, u.Status.Label(), u.Status.ProgressPercent())
	return subject, body
}

// RegisteredMessage renders the acknowledgement sent after intake.
func RegisteredMessage(c *domain.Complaint) (subject, body string) {
	subject = fmt.Sprintf("Complaint %s registered", c.ID)
	body = fmt.Sprintf("Your cyber fraud complaint %s has been registered. Current status: %s. Keep this ID to track your case.",
		c.ID, c.Status.Label())
	return subject, body
}

// Mask hides all but the last four characters of a phone number or token.
// Email addresses keep their domain.
func Mask(recipient string) string {
	if at := strings.LastIndex(recipient, "@"); at > 0 {
		return recipient[:1] + "***" + recipient[at:]
	}
	if len(recipient) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(recipient)-4) + recipient[len(recipient)-4:]
}

// Notifier turns case events into queued notifications.
type Notifier struct {
	dispatcher domain.Dispatcher
	channels   []domain.Channel
	now        func() time.Time
}

// NewNotifier creates a notifier that tries channels in order.
func NewNotifier(d domain.Dispatcher, channels []domain.Channel) *Notifier {
	if len(channels) == 0 {
		channels = DefaultChannels
	}
	return &Notifier{dispatcher: d, channels: channels, now: time.Now}
}

// ParseChannels converts configured channel names.
func ParseChannels(names []string) ([]domain.Channel, error) {
	out := make([]domain.Channel, 0, len(names))
	for _, n := range names {
		ch, err := domain.ParseChannel(n)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// StatusChanged queues exactly one notification about u to the victim of c.
func (n *Notifier) StatusChanged(ctx context.Context, c *domain.Complaint, u *domain.CaseUpdate) (*domain.Notification, error) {
	subject, body := StatusChangeMessage(c, u)
	return n.send(ctx, c, u.ID, subject, body)
}

// Registered queues the intake acknowledgement.
func (n *Notifier) Registered(ctx context.Context, c *domain.Complaint, u *domain.CaseUpdate) (*domain.Notification, error) {
	subject, body := RegisteredMessage(c)
	var updateID string
	if u != nil {
		updateID = u.ID
	}
	return n.send(ctx, c, updateID, subject, body)
}

func (n *Notifier) send(ctx context.Context, c *domain.Complaint, updateID, subject, body string) (*domain.Notification, error) {
	ch, to, ok := SelectRecipient(c.Victim, n.channels)
	if !ok {
		return nil, fmt.Errorf("%w: complaint %s has no contact for channels %v", domain.ErrValidation, c.ID, n.channels)
	}

	now := n.now().UTC()
	note := &domain.Notification{
		ID:           uuid.NewString(),
		ComplaintID:  c.ID,
		CaseUpdateID: updateID,
		Channel:      ch,
		Recipient:    to,
		Subject:      subject,
		Body:         body,
		Status:       domain.DeliveryQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := n.dispatcher.Dispatch(ctx, note); err != nil {
		return note, err
	}
	return note, nil
}
