// Package apns provides the client for the Apple Push Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/dinder-app/push-relay/pkg/relay"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file.
	P8KeyContent string
}

type Gateway struct {
	client APNSClient
	topic  string // the app bundle id
	logger *slog.Logger
}

// NewGateway creates a configured APNs gateway. It parses the P8 key
// immediately to fail fast on startup if credentials are bad.
func NewGateway(cfg Config, logger *slog.Logger) (*Gateway, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})

	return &Gateway{
		client: client,
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSGateway"),
	}, nil
}

// Send delivers one notification over the unary APNs HTTP/2 API. The apns-id
// response header is returned as the delivery id.
func (g *Gateway) Send(_ context.Context, target relay.DispatchTarget, p relay.NotificationPayload) (string, error) {
	builder := payload.NewPayload().
		AlertTitle(p.Title).
		AlertBody(p.Body).
		Sound("default")
	for k, v := range p.Data {
		builder.Custom(k, v)
	}

	res, err := g.client.Push(&apns2.Notification{
		DeviceToken: target.Token,
		Topic:       g.topic,
		Payload:     builder,
	})
	if err != nil {
		return "", fmt.Errorf("apns transport failed: %w", err)
	}

	if !res.Sent() {
		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
			return "", fmt.Errorf("apns rejected token: %w (%s)", relay.ErrStaleToken, res.Reason)
		default:
			// Other rejections (TopicDisallowed, PayloadEmpty) mean our
			// configuration is wrong, not that the token is dead.
			return "", fmt.Errorf("apns rejected notification: %s (status %d)", res.Reason, res.StatusCode)
		}
	}
	return res.ApnsID, nil
}
