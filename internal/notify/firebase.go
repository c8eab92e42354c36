package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type pushClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FirebaseSender sends push notifications through Firebase Cloud Messaging.
type FirebaseSender struct {
	client pushClient
}

// NewFirebaseSender initialises FCM from a service account file.
func NewFirebaseSender(ctx context.Context, credentialsPath string) (*FirebaseSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}

	return &FirebaseSender{client: client}, nil
}

// Send pushes the message to a device token.
func (f *FirebaseSender) Send(ctx context.Context, token, subject, body string) (string, error) {
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: subject,
			Body:  body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}

	id, err := f.client.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send push notification: %w", err)
	}
	return id, nil
}
