// Package firestore implements the document store over Google Cloud
// Firestore.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dinder-app/push-relay/pkg/relay"
)

const (
	usersCollection   = "users"
	chatsCollection   = "chats"
	devicesCollection = "devices"
)

// Store implements relay.Store using Google Cloud Firestore.
type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

// userDoc mirrors the user document written by the main app. The field
// names are the app's, not ours.
type userDoc struct {
	Username string `firestore:"username"`
	FCMToken string `firestore:"fcmToken"`
}

type chatDoc struct {
	Name    string   `firestore:"name"`
	Type    string   `firestore:"type"`
	Members []string `firestore:"members"`
}

// deviceRecord is the internal DB representation of a registered device.
type deviceRecord struct {
	Platform  string    `firestore:"platform"`
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (s *Store) User(ctx context.Context, id string) (*relay.UserProfile, error) {
	snap, err := s.client.Collection(usersCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, relay.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &relay.UserProfile{
		ID:          id,
		DisplayName: doc.Username,
		FCMToken:    doc.FCMToken,
	}, nil
}

func (s *Store) Conversation(ctx context.Context, id string) (*relay.Conversation, error) {
	snap, err := s.client.Collection(chatsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, relay.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", id, err)
	}

	var doc chatDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode chat %s: %w", id, err)
	}
	return &relay.Conversation{
		ID:      id,
		Name:    doc.Name,
		Type:    relay.ConversationType(doc.Type),
		Members: doc.Members,
	}, nil
}

func (s *Store) Devices(ctx context.Context, userID string) ([]relay.Device, error) {
	iter := s.devicesRef(userID).Documents(ctx)
	defer iter.Stop()

	devices := make([]relay.Device, 0, 4)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate devices of %s: %w", userID, err)
		}

		var record deviceRecord
		if err := snap.DataTo(&record); err != nil {
			// A corrupt row must not take down the whole fan-out.
			continue
		}
		if record.Token == "" {
			continue
		}
		devices = append(devices, relay.Device{
			Platform: relay.Platform(record.Platform),
			Token:    record.Token,
		})
	}
	return devices, nil
}

func (s *Store) RegisterDevice(ctx context.Context, userID string, d relay.Device) error {
	record := deviceRecord{
		Platform:  string(d.Platform),
		Token:     d.Token,
		UpdatedAt: time.Now(),
	}
	// Hash of token as doc id keeps registration idempotent and avoids
	// hot-spotting on sequential ids.
	_, err := s.devicesRef(userID).Doc(hashToken(d.Token)).Set(ctx, record)
	if err != nil {
		return fmt.Errorf("register device for %s: %w", userID, err)
	}
	return nil
}

func (s *Store) UnregisterDevice(ctx context.Context, userID string, d relay.Device) error {
	// Delete is idempotent in Firestore; deleting an absent doc succeeds.
	_, err := s.devicesRef(userID).Doc(hashToken(d.Token)).Delete(ctx)
	if err != nil {
		return fmt.Errorf("unregister device for %s: %w", userID, err)
	}
	return nil
}

// devicesRef: users/{userID}/devices/{tokenHash}
func (s *Store) devicesRef(userID string) *firestore.CollectionRef {
	return s.client.Collection(usersCollection).Doc(userID).Collection(devicesCollection)
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
