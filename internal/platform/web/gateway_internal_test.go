package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinder-app/push-relay/pkg/relay"
)

func newTestGateway() *Gateway {
	return NewGateway(Config{
		PublicKey:       "test-pub",
		PrivateKey:      "test-priv",
		SubscriberEmail: "mailto:ops@dinder.app",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSend_TokenDecoding(t *testing.T) {
	gateway := newTestGateway()
	payload := relay.NotificationPayload{Title: "Hi"}

	t.Run("Garbage token flagged stale", func(t *testing.T) {
		target := relay.DispatchTarget{RecipientID: "u1", Platform: relay.PlatformWeb, Token: "not-json"}

		_, err := gateway.Send(context.Background(), target, payload)

		require.Error(t, err)
		assert.ErrorIs(t, err, relay.ErrStaleToken)
	})

	t.Run("Missing endpoint flagged stale", func(t *testing.T) {
		target := relay.DispatchTarget{RecipientID: "u1", Platform: relay.PlatformWeb, Token: `{"keys":{}}`}

		_, err := gateway.Send(context.Background(), target, payload)

		require.Error(t, err)
		assert.ErrorIs(t, err, relay.ErrStaleToken)
	})
}

func TestClassifyStatus(t *testing.T) {
	assert.NoError(t, classifyStatus(http.StatusCreated))
	assert.NoError(t, classifyStatus(http.StatusOK))

	assert.ErrorIs(t, classifyStatus(http.StatusGone), relay.ErrStaleToken)
	assert.ErrorIs(t, classifyStatus(http.StatusNotFound), relay.ErrStaleToken)

	err := classifyStatus(http.StatusTooManyRequests)
	require.Error(t, err)
	assert.NotErrorIs(t, err, relay.ErrStaleToken)

	// The end-to-end encryption path needs real ECDH subscription keys and is
	// covered by the browser integration suite, not unit tests.
}
