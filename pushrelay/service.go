// Package pushrelay assembles the notification relay service: the HTTP API,
// the optional Pub/Sub ingestion consumer, and their shared pipeline.
package pushrelay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/dinder-app/push-relay/internal/api"
	"github.com/dinder-app/push-relay/internal/dispatch"
	"github.com/dinder-app/push-relay/internal/ingest"
	"github.com/dinder-app/push-relay/internal/resolve"
	"github.com/dinder-app/push-relay/pkg/relay"
	"github.com/dinder-app/push-relay/pushrelay/config"
)

// Service owns the HTTP server and the ingestion consumer.
type Service struct {
	server   *http.Server
	consumer *ingest.Consumer
	logger   *slog.Logger
}

// New assembles the service. receiver may be nil for HTTP-only deployments.
func New(
	cfg *config.Config,
	verifier relay.Verifier,
	store relay.Store,
	gateways map[relay.Platform]relay.Gateway,
	receiver ingest.Receiver,
	logger *slog.Logger,
) *Service {
	resolver := resolve.NewResolver(store, cfg.FanoutWidth, logger)
	coordinator := dispatch.NewCoordinator(gateways, store, cfg.FanoutWidth, logger)
	notifyAPI := api.NewNotifyAPI(resolver, coordinator, logger)
	deviceAPI := api.NewDeviceAPI(store, logger)

	router := chi.NewRouter()
	router.Use(api.RequestID)
	router.Use(api.Recoverer(logger))
	if len(cfg.Cors.AllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Cors.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/", notifyAPI.Health)

	router.Group(func(r chi.Router) {
		r.Use(api.RequireAuth(verifier, logger))
		r.Post("/send_friend_request", notifyAPI.SendFriendRequest)
		r.Post("/send_chat_message", notifyAPI.SendChatMessage)
		r.Post("/api/v1/devices/register", deviceAPI.Register)
		r.Post("/api/v1/devices/unregister", deviceAPI.Unregister)
	})

	svc := &Service{
		server: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "Service"),
	}
	if receiver != nil {
		svc.consumer = ingest.NewConsumer(receiver, notifyAPI, logger)
	}
	return svc
}

// Start runs the consumer (if configured) and blocks serving HTTP until
// Shutdown is called.
func (s *Service) Start(ctx context.Context) error {
	if s.consumer != nil {
		s.consumer.Start(ctx)
	}
	s.logger.Info("HTTP server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the consumer first so no new dispatches start, then drains
// the HTTP server.
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down service components...")
	if s.consumer != nil {
		s.consumer.Stop()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown failed.", "err", err)
		return err
	}
	s.logger.Info("Service shutdown complete.")
	return nil
}
