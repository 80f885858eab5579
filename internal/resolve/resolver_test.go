package resolve_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dinder-app/push-relay/internal/resolve"
	"github.com/dinder-app/push-relay/pkg/relay"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) User(ctx context.Context, id string) (*relay.UserProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relay.UserProfile), args.Error(1)
}

func (m *MockStore) Conversation(ctx context.Context, id string) (*relay.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relay.Conversation), args.Error(1)
}

func (m *MockStore) Devices(ctx context.Context, userID string) ([]relay.Device, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]relay.Device), args.Error(1)
}

func (m *MockStore) RegisterDevice(ctx context.Context, userID string, d relay.Device) error {
	return m.Called(ctx, userID, d).Error(0)
}

func (m *MockStore) UnregisterDevice(ctx context.Context, userID string, d relay.Device) error {
	return m.Called(ctx, userID, d).Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newResolver(store relay.Store) *resolve.Resolver {
	return resolve.NewResolver(store, 4, newTestLogger())
}

func TestResolveFriendRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("Happy path yields one target and sender name", func(t *testing.T) {
		store := new(MockStore)
		store.On("User", ctx, "u2").Return(&relay.UserProfile{ID: "u2", DisplayName: "Beth", FCMToken: "tok-u2"}, nil)
		store.On("Devices", ctx, "u2").Return([]relay.Device{}, nil)
		store.On("User", ctx, "u1").Return(&relay.UserProfile{ID: "u1", DisplayName: "Alice"}, nil)

		res, err := newResolver(store).ResolveFriendRequest(ctx, "u1", "u2")

		require.NoError(t, err)
		assert.Equal(t, "Alice", res.SenderName)
		require.Len(t, res.Targets, 1)
		assert.Equal(t, relay.DispatchTarget{RecipientID: "u2", Platform: relay.PlatformFCM, Token: "tok-u2"}, res.Targets[0])
	})

	t.Run("Registered devices union legacy token", func(t *testing.T) {
		store := new(MockStore)
		store.On("User", ctx, "u2").Return(&relay.UserProfile{ID: "u2", FCMToken: "tok-legacy"}, nil)
		store.On("Devices", ctx, "u2").Return([]relay.Device{
			{Platform: relay.PlatformAPNS, Token: "tok-ios"},
			{Platform: relay.PlatformFCM, Token: "tok-legacy"}, // same token re-registered
		}, nil)
		store.On("User", ctx, "u1").Return(nil, relay.ErrNotFound)

		res, err := newResolver(store).ResolveFriendRequest(ctx, "u1", "u2")

		require.NoError(t, err)
		require.Len(t, res.Targets, 2)
		assert.Equal(t, "tok-ios", res.Targets[0].Token)
		assert.Equal(t, "tok-legacy", res.Targets[1].Token)
	})

	t.Run("Missing receiver is TargetNotFound", func(t *testing.T) {
		store := new(MockStore)
		store.On("User", ctx, "ghost").Return(nil, relay.ErrNotFound)

		_, err := newResolver(store).ResolveFriendRequest(ctx, "u1", "ghost")

		assert.ErrorIs(t, err, resolve.ErrTargetNotFound)
	})

	t.Run("Tokenless receiver is NoDeliveryToken", func(t *testing.T) {
		store := new(MockStore)
		store.On("User", ctx, "u2").Return(&relay.UserProfile{ID: "u2", DisplayName: "Beth"}, nil)
		store.On("Devices", ctx, "u2").Return([]relay.Device{}, nil)

		_, err := newResolver(store).ResolveFriendRequest(ctx, "u1", "u2")

		assert.ErrorIs(t, err, resolve.ErrNoDeliveryToken)
	})

	t.Run("Missing sender falls back to placeholder name", func(t *testing.T) {
		store := new(MockStore)
		store.On("User", ctx, "u2").Return(&relay.UserProfile{ID: "u2", FCMToken: "tok"}, nil)
		store.On("Devices", ctx, "u2").Return([]relay.Device{}, nil)
		store.On("User", ctx, "u1").Return(nil, relay.ErrNotFound)

		res, err := newResolver(store).ResolveFriendRequest(ctx, "u1", "u2")

		require.NoError(t, err)
		assert.Equal(t, "Someone", res.SenderName)
	})
}

func TestResolveChatMessage(t *testing.T) {
	ctx := context.Background()

	groupChat := &relay.Conversation{
		ID:      "c1",
		Name:    "Weekend Plans",
		Type:    relay.ConversationGroup,
		Members: []string{"u1", "u2", "u3", "u4"},
	}

	t.Run("Sender excluded, stale members skipped", func(t *testing.T) {
		store := new(MockStore)
		store.On("Conversation", ctx, "c1").Return(groupChat, nil)
		store.On("User", ctx, "u1").Return(&relay.UserProfile{ID: "u1", DisplayName: "Alice"}, nil)
		store.On("User", ctx, "u2").Return(&relay.UserProfile{ID: "u2", FCMToken: "tok-u2"}, nil)
		store.On("User", ctx, "u3").Return(&relay.UserProfile{ID: "u3"}, nil) // no token
		store.On("User", ctx, "u4").Return(nil, relay.ErrNotFound)            // deleted account
		store.On("Devices", ctx, "u2").Return([]relay.Device{}, nil)
		store.On("Devices", ctx, "u3").Return([]relay.Device{}, nil)

		res, err := newResolver(store).ResolveChatMessage(ctx, "c1", "u1")

		require.NoError(t, err)
		assert.Equal(t, "Alice", res.SenderName)
		require.Len(t, res.Targets, 1)
		assert.Equal(t, "u2", res.Targets[0].RecipientID)
		for _, target := range res.Targets {
			assert.NotEqual(t, "u1", target.RecipientID)
			assert.NotEmpty(t, target.Token)
		}
	})

	t.Run("Missing chat is TargetNotFound", func(t *testing.T) {
		store := new(MockStore)
		store.On("Conversation", ctx, "nope").Return(nil, relay.ErrNotFound)

		_, err := newResolver(store).ResolveChatMessage(ctx, "nope", "u1")

		assert.ErrorIs(t, err, resolve.ErrTargetNotFound)
	})

	t.Run("Nil member list is InvalidSourceData", func(t *testing.T) {
		store := new(MockStore)
		store.On("Conversation", ctx, "c2").Return(&relay.Conversation{ID: "c2"}, nil)

		_, err := newResolver(store).ResolveChatMessage(ctx, "c2", "u1")

		assert.ErrorIs(t, err, resolve.ErrInvalidSourceData)
	})

	t.Run("Non-member sender is rejected", func(t *testing.T) {
		store := new(MockStore)
		store.On("Conversation", ctx, "c1").Return(groupChat, nil)

		_, err := newResolver(store).ResolveChatMessage(ctx, "c1", "intruder")

		assert.ErrorIs(t, err, resolve.ErrSenderNotMember)
	})

	t.Run("Nobody reachable degrades to zero targets", func(t *testing.T) {
		store := new(MockStore)
		store.On("Conversation", ctx, "c3").Return(&relay.Conversation{
			ID: "c3", Type: relay.ConversationDirect, Members: []string{"u1", "u2"},
		}, nil)
		store.On("User", ctx, "u1").Return(&relay.UserProfile{ID: "u1", DisplayName: "Alice"}, nil)
		store.On("User", ctx, "u2").Return(&relay.UserProfile{ID: "u2"}, nil)
		store.On("Devices", ctx, "u2").Return([]relay.Device{}, nil)

		res, err := newResolver(store).ResolveChatMessage(ctx, "c3", "u1")

		require.NoError(t, err)
		assert.Empty(t, res.Targets)
	})

	t.Run("Store read failure on a member only skips that member", func(t *testing.T) {
		store := new(MockStore)
		store.On("Conversation", ctx, "c1").Return(groupChat, nil)
		store.On("User", ctx, "u1").Return(&relay.UserProfile{ID: "u1", DisplayName: "Alice"}, nil)
		store.On("User", ctx, "u2").Return(nil, errors.New("rpc unavailable"))
		store.On("User", ctx, "u3").Return(&relay.UserProfile{ID: "u3", FCMToken: "tok-u3"}, nil)
		store.On("User", ctx, "u4").Return(nil, relay.ErrNotFound)
		store.On("Devices", ctx, "u3").Return([]relay.Device{}, nil)

		res, err := newResolver(store).ResolveChatMessage(ctx, "c1", "u1")

		require.NoError(t, err)
		require.Len(t, res.Targets, 1)
		assert.Equal(t, "u3", res.Targets[0].RecipientID)
	})
}
