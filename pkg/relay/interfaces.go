package relay

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store implementations when the requested
// document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrStaleToken is returned by Gateway implementations when the transport
// reports the delivery token as dead (unregistered device, expired web
// subscription). The dispatcher uses it to clean up the stored device.
var ErrStaleToken = errors.New("stale delivery token")

// Verifier authenticates the bearer credential presented on a request.
type Verifier interface {
	// VerifyRequest validates the raw Authorization header value and
	// returns the authenticated principal. Failures are classified into
	// the credential error taxonomy of the identity package.
	VerifyRequest(ctx context.Context, authorization string) (Principal, error)
}

// Store is the document-store view this service needs: key-based reads of
// user and conversation records, plus the per-user device registry.
type Store interface {
	// User fetches one user profile, or ErrNotFound.
	User(ctx context.Context, id string) (*UserProfile, error)

	// Conversation fetches one chat record, or ErrNotFound.
	Conversation(ctx context.Context, id string) (*Conversation, error)

	// Devices lists the registered delivery endpoints for a user.
	// A user with no devices yields an empty slice, not an error.
	Devices(ctx context.Context, userID string) ([]Device, error)

	// RegisterDevice adds or refreshes a device (upsert).
	RegisterDevice(ctx context.Context, userID string, d Device) error

	// UnregisterDevice removes a device. Removing an absent device is not
	// an error.
	UnregisterDevice(ctx context.Context, userID string, d Device) error
}

// Gateway sends one addressed notification and reports a delivery id or a
// typed failure.
type Gateway interface {
	Send(ctx context.Context, target DispatchTarget, payload NotificationPayload) (string, error)
}
