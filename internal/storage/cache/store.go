// Package cache adds a Redis read-aside layer in front of the document
// store's hot reads.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dinder-app/push-relay/pkg/relay"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or a specific error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedStore is a decorator that adds read-aside caching to any
// relay.Store. Profile and device reads are cached; conversations are not,
// because membership changes must take effect immediately and each request
// reads a conversation at most once.
type CachedStore struct {
	realStore relay.Store
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedStore(realStore relay.Store, cache CacheClient, ttl time.Duration) *CachedStore {
	return &CachedStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- Read paths (read-aside) ---

func (s *CachedStore) User(ctx context.Context, id string) (*relay.UserProfile, error) {
	key := userKey(id)

	var cached relay.UserProfile
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	fresh, err := s.realStore.User(ctx, id)
	if err != nil {
		// Misses are not cached: a user created moments from now must be
		// resolvable immediately.
		return nil, err
	}

	// Caching is an optimization, not a transaction. If Redis is down we
	// just serve from the document store.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)
	return fresh, nil
}

func (s *CachedStore) Devices(ctx context.Context, userID string) ([]relay.Device, error) {
	key := devicesKey(userID)

	var cached []relay.Device
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.Devices(ctx, userID)
	if err != nil {
		return nil, err
	}

	_ = s.cache.Set(ctx, key, fresh, s.ttl)
	return fresh, nil
}

func (s *CachedStore) Conversation(ctx context.Context, id string) (*relay.Conversation, error) {
	return s.realStore.Conversation(ctx, id)
}

// --- Write paths (invalidate-on-write) ---

func (s *CachedStore) RegisterDevice(ctx context.Context, userID string, d relay.Device) error {
	if err := s.realStore.RegisterDevice(ctx, userID, d); err != nil {
		return err
	}
	return s.invalidateDevices(ctx, userID)
}

// UnregisterDevice must clear the cache even though the DB write already
// succeeded: a "disable notifications" action has to stop sends immediately,
// not after TTL expiry.
func (s *CachedStore) UnregisterDevice(ctx context.Context, userID string, d relay.Device) error {
	if err := s.realStore.UnregisterDevice(ctx, userID, d); err != nil {
		return err
	}
	return s.invalidateDevices(ctx, userID)
}

// --- Helpers ---

func (s *CachedStore) invalidateDevices(ctx context.Context, userID string) error {
	err := s.cache.Del(ctx, devicesKey(userID))
	if err != nil {
		return errors.Join(fmt.Errorf("invalidate devices of %s", userID), err)
	}
	return nil
}

func userKey(id string) string {
	return "relay:user:" + id
}

func devicesKey(id string) string {
	return "relay:devices:" + id
}
