// Package identity verifies bearer credentials against Firebase Auth.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"

	"github.com/dinder-app/push-relay/pkg/relay"
)

// Credential failure taxonomy. Every verification failure wraps exactly one
// of these, so callers can dispatch with errors.Is.
var (
	ErrMissingCredential = errors.New("missing bearer credential")
	ErrExpiredCredential = errors.New("bearer credential expired")
	ErrRevokedCredential = errors.New("bearer credential revoked")
	ErrInvalidCredential = errors.New("bearer credential invalid")
)

// TokenVerifier is the subset of the Firebase Auth client API we use.
// *auth.Client satisfies it; the interface exists so tests can mock the
// provider call.
type TokenVerifier interface {
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*auth.Token, error)
}

// Verifier validates Authorization headers and produces Principals.
type Verifier struct {
	client TokenVerifier
	logger *slog.Logger
}

func NewVerifier(client TokenVerifier, logger *slog.Logger) *Verifier {
	return &Verifier{
		client: client,
		logger: logger.With("component", "IdentityVerifier"),
	}
}

// VerifyRequest validates the raw Authorization header value. A missing or
// malformed Bearer scheme is rejected before the token ever reaches the
// identity provider.
func (v *Verifier) VerifyRequest(ctx context.Context, authorization string) (relay.Principal, error) {
	raw, found := strings.CutPrefix(authorization, "Bearer ")
	if !found || strings.TrimSpace(raw) == "" {
		return relay.Principal{}, ErrMissingCredential
	}

	token, err := v.client.VerifyIDTokenAndCheckRevoked(ctx, raw)
	if err != nil {
		v.logger.Debug("credential rejected", "err", err)
		return relay.Principal{}, classify(err)
	}

	return relay.Principal{
		UID:       token.UID,
		ExpiresAt: time.Unix(token.Expires, 0),
		IssuedAt:  time.Unix(token.IssuedAt, 0),
	}, nil
}

// classify maps a provider error onto the credential taxonomy. Anything the
// SDK does not recognize as expired or revoked is an invalid credential.
func classify(err error) error {
	switch {
	case auth.IsIDTokenExpired(err):
		return fmt.Errorf("%w: %s", ErrExpiredCredential, err)
	case auth.IsIDTokenRevoked(err):
		return fmt.Errorf("%w: %s", ErrRevokedCredential, err)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidCredential, err)
	}
}
