// Package web delivers notifications over VAPID web push.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"

	"github.com/dinder-app/push-relay/pkg/relay"
)

// Config holds the VAPID signing material.
type Config struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

type Gateway struct {
	subscriber string
	privateKey string
	publicKey  string
	logger     *slog.Logger
	httpClient *http.Client
}

func NewGateway(cfg Config, logger *slog.Logger) *Gateway {
	return &Gateway{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		logger:     logger.With("component", "WebPushGateway"),
		httpClient: &http.Client{},
	}
}

// Send pushes one notification to one web subscription. The target's
// delivery token is the JSON-serialized subscription (endpoint + keys), as
// stored by device registration.
func (g *Gateway) Send(_ context.Context, target relay.DispatchTarget, p relay.NotificationPayload) (string, error) {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(target.Token), &sub); err != nil || sub.Endpoint == "" {
		return "", fmt.Errorf("undecodable web subscription: %w (%v)", relay.ErrStaleToken, err)
	}

	body, err := json.Marshal(map[string]any{
		"notification": map[string]string{
			"title": p.Title,
			"body":  p.Body,
		},
		"data": p.Data,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := webpush.SendNotification(body, &sub, &webpush.Options{
		Subscriber:      g.subscriber,
		VAPIDPublicKey:  g.publicKey,
		VAPIDPrivateKey: g.privateKey,
		TTL:             60,
		HTTPClient:      g.httpClient,
	})
	if err != nil {
		return "", fmt.Errorf("webpush transport failed: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", err
	}

	// Push services return no message id; mint a local receipt.
	return "webpush-" + uuid.NewString(), nil
}

// classifyStatus maps the push service response code. 404/410 mean the
// subscription is gone and should be removed from the store.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusCreated || code == http.StatusOK:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("subscription gone: %w (status %d)", relay.ErrStaleToken, code)
	default:
		return fmt.Errorf("push service rejected notification (status %d)", code)
	}
}
