// Package relay contains the public interfaces and domain models for the
// push relay service.
package relay

import "time"

// Platform identifies the delivery transport a device token belongs to.
type Platform string

const (
	PlatformFCM  Platform = "fcm"
	PlatformAPNS Platform = "apns"
	PlatformWeb  Platform = "web"
)

// KnownPlatform reports whether p is a platform this service can route to.
func KnownPlatform(p Platform) bool {
	switch p {
	case PlatformFCM, PlatformAPNS, PlatformWeb:
		return true
	}
	return false
}

// Principal is the authenticated caller derived from a verified bearer
// credential. It lives for one request and is never persisted.
type Principal struct {
	UID       string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// UserProfile is the request-scoped copy of a user document.
// FCMToken is the legacy single-token field written by the mobile app;
// newer clients register Devices instead.
type UserProfile struct {
	ID          string
	DisplayName string
	FCMToken    string
}

// ConversationType tags a conversation as one-to-one or group.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Conversation is the request-scoped copy of a chat document.
type Conversation struct {
	ID      string
	Name    string
	Type    ConversationType
	Members []string
}

// Device is a registered delivery endpoint for a user. For web push the
// token is the JSON-serialized subscription (endpoint + keys).
type Device struct {
	Platform Platform
	Token    string
}

// DispatchTarget is one resolved (recipient, token) pair. Token is always
// non-empty: recipients without a deliverable token are filtered out before
// a target is ever constructed.
type DispatchTarget struct {
	RecipientID string
	Platform    Platform
	Token       string
}

// Kind tags a notification so the client app can route the tap action.
type Kind string

const (
	KindFriendRequest Kind = "friend_request"
	KindChatMessage   Kind = "chat_message"
)

// NotificationPayload is the content addressed to a single target.
// It is built fresh per target and never mutated after construction.
type NotificationPayload struct {
	Title string
	Body  string
	Kind  Kind
	Data  map[string]string
}

// DispatchOutcome records the result of one send attempt.
type DispatchOutcome struct {
	Target     DispatchTarget
	DeliveryID string
	Err        error
}

// Delivered reports whether the send for this target succeeded.
func (o DispatchOutcome) Delivered() bool { return o.Err == nil }

// DispatchReport aggregates the per-target outcomes of one fan-out.
// Sent+Failed always equals len(Outcomes).
type DispatchReport struct {
	Sent     int
	Failed   int
	Outcomes []DispatchOutcome
}

// FirstDeliveryID returns the delivery id of the first successful outcome,
// or "" if nothing was delivered.
func (r DispatchReport) FirstDeliveryID() string {
	for _, o := range r.Outcomes {
		if o.Delivered() {
			return o.DeliveryID
		}
	}
	return ""
}
