package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogSender simulates delivery by writing the message to the log.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a simulated sender. A nil logger uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message and returns a synthetic reference.
func (l *LogSender) Send(ctx context.Context, recipient, subject, body string) (string, error) {
	ref := "sim-" + uuid.NewString()
	l.logger.InfoContext(ctx, "notification simulated",
		"recipient", Mask(recipient),
		"subject", subject,
		"body", body,
		"provider_ref", ref,
	)
	return ref, nil
}
