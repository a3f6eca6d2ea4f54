package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// FCM sends pushes through Firebase Cloud Messaging.
type FCM struct {
	client *messaging.Client
	logger *zap.Logger
}

// NewFCM creates an FCM-backed notifier.
func NewFCM(ctx context.Context, app *firebase.App, logger *zap.Logger) (*FCM, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("create messaging client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FCM{client: client, logger: logger}, nil
}

func (f *FCM) SendPush(ctx context.Context, token, title, body string, data map[string]string) error {
	id, err := f.client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	f.logger.Debug("push sent", zap.String("message_id", id))
	return nil
}
