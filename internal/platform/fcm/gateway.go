// Package fcm sends notifications through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/dinder-app/push-relay/pkg/relay"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type Gateway struct {
	client MessagingClient
	logger *slog.Logger
}

// NewGateway accepts the concrete client but stores it as the interface.
// Note: *messaging.Client automatically satisfies this interface.
func NewGateway(client MessagingClient, logger *slog.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logger.With("component", "FCMGateway"),
	}
}

// Send delivers one notification to one device token and returns the FCM
// message id.
func (g *Gateway) Send(ctx context.Context, target relay.DispatchTarget, payload relay.NotificationPayload) (string, error) {
	msg := &messaging.Message{
		Token: target.Token,
		Data:  payload.Data,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
	}

	messageID, err := g.client.Send(ctx, msg)
	if err != nil {
		// A dead registration is the token's fault, not the batch's: flag it
		// so the dispatcher can clean up the stored device.
		if messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsInvalidArgument(err) {
			return "", fmt.Errorf("fcm rejected token: %w (%s)", relay.ErrStaleToken, err)
		}
		return "", fmt.Errorf("fcm transport failed: %w", err)
	}
	return messageID, nil
}
