// Package resolve turns caller-supplied identifiers into concrete dispatch
// targets by reading the document store.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dinder-app/push-relay/pkg/relay"
)

// fallbackSenderName is used when the sender's profile is missing or has no
// display name. Sender lookup failures never fail the request.
const fallbackSenderName = "Someone"

// Resolution failure taxonomy.
var (
	ErrTargetNotFound    = errors.New("target not found")
	ErrNoDeliveryToken   = errors.New("target has no delivery token")
	ErrInvalidSourceData = errors.New("conversation has no member list")
	ErrSenderNotMember   = errors.New("sender is not a conversation member")
)

// Resolver reads the store to produce dispatch targets. lookupWidth bounds
// the concurrent member lookups during multi-target resolution.
type Resolver struct {
	store       relay.Store
	lookupWidth int
	logger      *slog.Logger
}

func NewResolver(store relay.Store, lookupWidth int, logger *slog.Logger) *Resolver {
	if lookupWidth <= 0 {
		lookupWidth = 1
	}
	return &Resolver{
		store:       store,
		lookupWidth: lookupWidth,
		logger:      logger.With("component", "RecipientResolver"),
	}
}

// FriendRequestResolution is the single-target mode result: the receiver's
// delivery set (at least one target) plus the sender's display name.
type FriendRequestResolution struct {
	SenderName string
	Targets    []relay.DispatchTarget
}

// ResolveFriendRequest resolves exactly one receiver. A missing receiver and
// a receiver without any deliverable token are loud failures: the one
// intended recipient is unreachable and the caller should know.
func (r *Resolver) ResolveFriendRequest(ctx context.Context, senderID, receiverID string) (*FriendRequestResolution, error) {
	receiver, err := r.store.User(ctx, receiverID)
	if errors.Is(err, relay.ErrNotFound) {
		return nil, fmt.Errorf("receiver %s: %w", receiverID, ErrTargetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch receiver %s: %w", receiverID, err)
	}

	targets, err := r.deliverySet(ctx, receiver)
	if err != nil {
		return nil, fmt.Errorf("fetch receiver devices %s: %w", receiverID, err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("receiver %s: %w", receiverID, ErrNoDeliveryToken)
	}

	return &FriendRequestResolution{
		SenderName: r.senderName(ctx, senderID),
		Targets:    targets,
	}, nil
}

// ChatResolution is the multi-target mode result. Targets may be empty: a
// chat where nobody else is reachable degrades to a zero-recipient dispatch.
type ChatResolution struct {
	Chat       *relay.Conversation
	SenderName string
	Targets    []relay.DispatchTarget
}

// ResolveChatMessage resolves every conversation member except the sender.
// Individual members that are missing or tokenless are skipped silently; a
// group chat with one stale member must not block everyone else.
func (r *Resolver) ResolveChatMessage(ctx context.Context, chatID, senderID string) (*ChatResolution, error) {
	chat, err := r.store.Conversation(ctx, chatID)
	if errors.Is(err, relay.ErrNotFound) {
		return nil, fmt.Errorf("chat %s: %w", chatID, ErrTargetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch chat %s: %w", chatID, err)
	}
	if len(chat.Members) == 0 {
		return nil, fmt.Errorf("chat %s: %w", chatID, ErrInvalidSourceData)
	}

	isMember := false
	recipients := make([]string, 0, len(chat.Members)-1)
	for _, member := range chat.Members {
		if member == senderID {
			isMember = true
			continue
		}
		recipients = append(recipients, member)
	}
	if !isMember {
		return nil, fmt.Errorf("sender %s in chat %s: %w", senderID, chatID, ErrSenderNotMember)
	}

	return &ChatResolution{
		Chat:       chat,
		SenderName: r.senderName(ctx, senderID),
		Targets:    r.resolveMembers(ctx, recipients),
	}, nil
}

// resolveMembers fetches recipient delivery sets with bounded concurrency.
// Each goroutine writes only its own slot, so the flattened result keeps
// member order without locking.
func (r *Resolver) resolveMembers(ctx context.Context, recipients []string) []relay.DispatchTarget {
	perMember := make([][]relay.DispatchTarget, len(recipients))
	sem := make(chan struct{}, r.lookupWidth)
	var wg sync.WaitGroup

	for i, id := range recipients {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			profile, err := r.store.User(ctx, id)
			if err != nil {
				if !errors.Is(err, relay.ErrNotFound) {
					r.logger.Warn("skipping unresolvable member", "member_id", id, "err", err)
				}
				return
			}
			targets, err := r.deliverySet(ctx, profile)
			if err != nil {
				r.logger.Warn("skipping member with unreadable devices", "member_id", id, "err", err)
				return
			}
			perMember[i] = targets
		}(i, id)
	}
	wg.Wait()

	var flat []relay.DispatchTarget
	for _, targets := range perMember {
		flat = append(flat, targets...)
	}
	return flat
}

// deliverySet is the union of a user's registered devices and the legacy
// fcmToken profile field, deduplicated by token.
func (r *Resolver) deliverySet(ctx context.Context, profile *relay.UserProfile) ([]relay.DispatchTarget, error) {
	devices, err := r.store.Devices(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(devices)+1)
	targets := make([]relay.DispatchTarget, 0, len(devices)+1)
	for _, d := range devices {
		if d.Token == "" {
			continue
		}
		if _, dup := seen[d.Token]; dup {
			continue
		}
		seen[d.Token] = struct{}{}
		targets = append(targets, relay.DispatchTarget{
			RecipientID: profile.ID,
			Platform:    d.Platform,
			Token:       d.Token,
		})
	}

	if profile.FCMToken != "" {
		if _, dup := seen[profile.FCMToken]; !dup {
			targets = append(targets, relay.DispatchTarget{
				RecipientID: profile.ID,
				Platform:    relay.PlatformFCM,
				Token:       profile.FCMToken,
			})
		}
	}
	return targets, nil
}

func (r *Resolver) senderName(ctx context.Context, senderID string) string {
	sender, err := r.store.User(ctx, senderID)
	if err != nil || sender.DisplayName == "" {
		if err != nil && !errors.Is(err, relay.ErrNotFound) {
			r.logger.Warn("sender profile lookup failed", "sender_id", senderID, "err", err)
		}
		return fallbackSenderName
	}
	return sender.DisplayName
}
