package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dinder-app/push-relay/pkg/relay"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	requestIDKey contextKey = "request_id"
)

const requestIDHeader = "X-Request-ID"

// PrincipalFromContext returns the authenticated caller injected by
// RequireAuth.
func PrincipalFromContext(ctx context.Context) (relay.Principal, bool) {
	p, ok := ctx.Value(principalKey).(relay.Principal)
	return p, ok
}

// RequestIDFromContext returns the correlation id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestID assigns a correlation id to every request, honoring one supplied
// by the caller.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequireAuth verifies the bearer credential before the handler runs and
// injects the resulting principal. No store read happens before this gate.
func RequireAuth(verifier relay.Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := verifier.VerifyRequest(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				logger.Info("request rejected",
					"request_id", RequestIDFromContext(r.Context()),
					"err", err,
				)
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, "invalid or missing credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, principal)))
		})
	}
}

// Recoverer converts a handler panic into a 500 envelope. Diagnostics go to
// operator logs only; the client sees a generic message.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panicked",
						"request_id", RequestIDFromContext(r.Context()),
						"path", r.URL.Path,
						"panic", rec,
					)
					writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
