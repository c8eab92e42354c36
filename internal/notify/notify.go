// Package notify builds victim notifications and delivers them over SMS,
// email and push.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/casewatch/internal/domain"
)

// ErrNoSender is returned when no sender is registered for a channel.
var ErrNoSender = errors.New("no sender for channel")

// Sender delivers a message on one channel and returns a provider reference.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) (string, error)
}

// Router implements domain.NotificationSender by picking the sender
// registered for the notification's channel.
type Router struct {
	senders map[domain.Channel]Sender
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{senders: make(map[domain.Channel]Sender)}
}

// Register sets the sender for a channel.
func (r *Router) Register(ch domain.Channel, s Sender) *Router {
	r.senders[ch] = s
	return r
}

// Send routes to the channel's sender.
func (r *Router) Send(ctx context.Context, ch domain.Channel, recipient, subject, body string) (string, error) {
	s, ok := r.senders[ch]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSender, ch)
	}
	return s.Send(ctx, recipient, subject, body)
}

// NewRouterFromConfig registers a sender per channel. In "log" mode every
// channel is simulated. In "live" mode a channel without credentials falls
// back to the log sender with a warning. Live senders sit behind a circuit
// breaker.
func NewRouterFromConfig(ctx context.Context, cfg domain.NotificationConfig) (*Router, error) {
	r := NewRouter()
	logSender := NewLogSender(slog.Default())

	for _, ch := range []domain.Channel{domain.ChannelSMS, domain.ChannelEmail, domain.ChannelPush} {
		r.Register(ch, logSender)
	}
	if cfg.Sender != "live" {
		return r, nil
	}

	if cfg.TwilioAccountSID != "" {
		sms := NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		r.Register(domain.ChannelSMS, NewBreakerSender(domain.ChannelSMS, sms, cfg.BreakerFailures, cfg.BreakerTimeout))
	} else {
		slog.Warn("twilio credentials missing, SMS will be simulated")
	}

	if cfg.SMTPHost != "" {
		email := NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.FromEmail, cfg.FromName)
		r.Register(domain.ChannelEmail, NewBreakerSender(domain.ChannelEmail, email, cfg.BreakerFailures, cfg.BreakerTimeout))
	} else {
		slog.Warn("smtp host missing, email will be simulated")
	}

	if cfg.FirebaseCredentialsPath != "" {
		push, err := NewFirebaseSender(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			return nil, err
		}
		r.Register(domain.ChannelPush, NewBreakerSender(domain.ChannelPush, push, cfg.BreakerFailures, cfg.BreakerTimeout))
	} else {
		slog.Warn("firebase credentials missing, push will be simulated")
	}

	return r, nil
}
