package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dinder-app/push-relay/internal/storage/cache"
	"github.com/dinder-app/push-relay/pkg/relay"
)

// --- Mocks ---

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}
func (m *MockCache) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type MockRealStore struct {
	mock.Mock
}

func (m *MockRealStore) User(ctx context.Context, id string) (*relay.UserProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relay.UserProfile), args.Error(1)
}
func (m *MockRealStore) Conversation(ctx context.Context, id string) (*relay.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relay.Conversation), args.Error(1)
}
func (m *MockRealStore) Devices(ctx context.Context, userID string) ([]relay.Device, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]relay.Device), args.Error(1)
}
func (m *MockRealStore) RegisterDevice(ctx context.Context, userID string, d relay.Device) error {
	return m.Called(ctx, userID, d).Error(0)
}
func (m *MockRealStore) UnregisterDevice(ctx context.Context, userID string, d relay.Device) error {
	return m.Called(ctx, userID, d).Error(0)
}

func TestCachedStore_ReadAside(t *testing.T) {
	ctx := context.Background()

	t.Run("Cache miss populates from real store", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour)

		profile := &relay.UserProfile{ID: "u1", DisplayName: "Alice"}
		mockCache.On("Get", ctx, "relay:user:u1", mock.Anything).Return(assert.AnError) // error implies miss
		mockDB.On("User", ctx, "u1").Return(profile, nil)
		mockCache.On("Set", ctx, "relay:user:u1", profile, 1*time.Hour).Return(nil)

		got, err := store.User(ctx, "u1")

		require.NoError(t, err)
		assert.Equal(t, "Alice", got.DisplayName)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Cache hit never touches real store", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour)

		mockCache.On("Get", ctx, "relay:devices:u1", mock.Anything).Return(nil)

		_, err := store.Devices(ctx, "u1")

		require.NoError(t, err)
		mockDB.AssertNotCalled(t, "Devices")
	})

	t.Run("NotFound passes through uncached", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour)

		mockCache.On("Get", ctx, "relay:user:ghost", mock.Anything).Return(assert.AnError)
		mockDB.On("User", ctx, "ghost").Return(nil, relay.ErrNotFound)

		_, err := store.User(ctx, "ghost")

		assert.ErrorIs(t, err, relay.ErrNotFound)
		mockCache.AssertNotCalled(t, "Set")
	})

	t.Run("Conversations bypass the cache", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour)

		mockDB.On("Conversation", ctx, "c1").Return(&relay.Conversation{ID: "c1"}, nil)

		_, err := store.Conversation(ctx, "c1")

		require.NoError(t, err)
		mockCache.AssertNotCalled(t, "Get")
	})
}

func TestCachedStore_ImmediateInvalidation(t *testing.T) {
	ctx := context.Background()
	device := relay.Device{Platform: relay.PlatformFCM, Token: "tok-1"}

	t.Run("Unregister invalidates cache immediately", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour)

		mockDB.On("UnregisterDevice", ctx, "u1", device).Return(nil)
		mockCache.On("Del", ctx, "relay:devices:u1").Return(nil)

		err := store.UnregisterDevice(ctx, "u1", device)

		require.NoError(t, err)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Register invalidates too", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour)

		mockDB.On("RegisterDevice", ctx, "u1", device).Return(nil)
		mockCache.On("Del", ctx, "relay:devices:u1").Return(nil)

		err := store.RegisterDevice(ctx, "u1", device)

		require.NoError(t, err)
		mockCache.AssertExpectations(t)
	})

	t.Run("DB failure skips invalidation", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour)

		mockDB.On("RegisterDevice", ctx, "u1", device).Return(assert.AnError)

		err := store.RegisterDevice(ctx, "u1", device)

		require.Error(t, err)
		mockCache.AssertNotCalled(t, "Del")
	})
}
