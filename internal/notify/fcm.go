// Package notify dispatches push notifications through Firebase Cloud
// Messaging.
package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FCMSender sends pushes via the firebase admin SDK.
type FCMSender struct {
	client *messaging.Client
	log    *zap.Logger
}

// NewFCMSender initializes the firebase app from a service-account
// credentials file. An empty path falls back to application default
// credentials.
func NewFCMSender(ctx context.Context, credentialsFile string, log *zap.Logger) (*FCMSender, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init fcm client: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}
	return &FCMSender{client: client, log: log}, nil
}

// Send targets one device with a notification plus a data payload.
func (s *FCMSender) Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	id, err := s.client.Send(ctx, &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("send fcm message: %w", err)
	}
	s.log.Debug("push notification sent", zap.String("fcm_id", id))
	return nil
}
