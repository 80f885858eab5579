package apns

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dinder-app/push-relay/pkg/relay"
)

// MockAPNSClient definition repeated here for internal test visibility.
type MockAPNSClient struct {
	mock.Mock
}

func (m *MockAPNSClient) Push(n *apns2.Notification) (*apns2.Response, error) {
	args := m.Called(n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apns2.Response), args.Error(1)
}

func newTestGateway(client APNSClient) *Gateway {
	return &Gateway{
		client: client,
		topic:  "com.dinder.app",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSend_Internal(t *testing.T) {
	ctx := context.Background()
	target := relay.DispatchTarget{RecipientID: "u2", Platform: relay.PlatformAPNS, Token: "ios-token-1"}
	payload := relay.NotificationPayload{Title: "Hello iOS", Data: map[string]string{"chatId": "c1"}}

	t.Run("Happy path returns apns id", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		gateway := newTestGateway(mockClient)

		mockClient.On("Push", mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "ios-token-1" && n.Topic == "com.dinder.app"
		})).Return(&apns2.Response{StatusCode: http.StatusOK, ApnsID: "apns-1"}, nil)

		id, err := gateway.Send(ctx, target, payload)

		require.NoError(t, err)
		assert.Equal(t, "apns-1", id)
		mockClient.AssertExpectations(t)
	})

	t.Run("Bad device token flagged stale", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		gateway := newTestGateway(mockClient)

		mockClient.On("Push", mock.Anything).Return(&apns2.Response{
			StatusCode: http.StatusBadRequest,
			Reason:     apns2.ReasonBadDeviceToken,
		}, nil)

		_, err := gateway.Send(ctx, target, payload)

		require.Error(t, err)
		assert.ErrorIs(t, err, relay.ErrStaleToken)
	})

	t.Run("Configuration rejection is not stale", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		gateway := newTestGateway(mockClient)

		mockClient.On("Push", mock.Anything).Return(&apns2.Response{
			StatusCode: http.StatusBadRequest,
			Reason:     apns2.ReasonTopicDisallowed,
		}, nil)

		_, err := gateway.Send(ctx, target, payload)

		require.Error(t, err)
		assert.NotErrorIs(t, err, relay.ErrStaleToken)
	})

	t.Run("Transport failure", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		gateway := newTestGateway(mockClient)

		mockClient.On("Push", mock.Anything).Return(nil, errors.New("connection reset"))

		_, err := gateway.Send(ctx, target, payload)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport failed")
	})
}
