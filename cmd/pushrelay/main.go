package main

import (
	"context"
	_ "embed"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	firebase "firebase.google.com/go/v4"
	"gopkg.in/yaml.v3"

	"github.com/dinder-app/push-relay/internal/identity"
	"github.com/dinder-app/push-relay/internal/ingest"
	"github.com/dinder-app/push-relay/internal/platform/apns"
	"github.com/dinder-app/push-relay/internal/platform/fcm"
	"github.com/dinder-app/push-relay/internal/platform/web"
	"github.com/dinder-app/push-relay/internal/storage/cache"
	fsStore "github.com/dinder-app/push-relay/internal/storage/firestore"
	"github.com/dinder-app/push-relay/pkg/relay"
	"github.com/dinder-app/push-relay/pushrelay"
	"github.com/dinder-app/push-relay/pushrelay/config"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "push-relay")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
	if err != nil {
		logger.Error("Failed to initialize Firebase App", "err", err)
		os.Exit(1)
	}
	authClient, err := fbApp.Auth(ctx)
	if err != nil {
		logger.Error("Failed to create Firebase auth client", "err", err)
		os.Exit(1)
	}
	messagingClient, err := fbApp.Messaging(ctx)
	if err != nil {
		logger.Error("Failed to create FCM messaging client", "err", err)
		os.Exit(1)
	}

	// --- Store (Decorated) ---
	var store relay.Store = fsStore.NewStore(fsClient)
	logger.Info("Store initialized", "type", "firestore")

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		store = cache.NewCachedStore(store, redisClient, cfg.CacheTTL)
		logger.Info("Store upgraded", "type", "redis_cached_firestore")
	}

	// --- Auth ---
	verifier := identity.NewVerifier(authClient, logger)

	// --- Gateways ---
	gateways := map[relay.Platform]relay.Gateway{
		relay.PlatformFCM: fcm.NewGateway(messagingClient, logger),
	}

	if cfg.APNS.P8Key != "" {
		apnsGateway, err := apns.NewGateway(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: cfg.APNS.P8Key,
		}, logger)
		if err != nil {
			logger.Error("Failed to create APNs gateway", "err", err)
			os.Exit(1)
		}
		gateways[relay.PlatformAPNS] = apnsGateway
		logger.Info("APNs gateway enabled", "bundle_id", cfg.APNS.BundleID)
	}

	if cfg.Vapid.PublicKey != "" && cfg.Vapid.PrivateKey != "" {
		gateways[relay.PlatformWeb] = web.NewGateway(web.Config{
			PublicKey:       cfg.Vapid.PublicKey,
			PrivateKey:      cfg.Vapid.PrivateKey,
			SubscriberEmail: cfg.Vapid.SubscriberEmail,
		}, logger)
		logger.Info("Web push gateway enabled", "public_key", cfg.Vapid.PublicKey)
	}

	// --- Ingestion (optional) ---
	var receiver ingest.Receiver
	if cfg.IngestEnabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer psClient.Close()

		subName, err := ingest.EnsureSubscription(ctx, psClient,
			cfg.ProjectID, cfg.SubscriptionID, cfg.TopicID, cfg.SubscriptionDLQTopicID, logger)
		if err != nil {
			logger.Error("Subscription setup failed", "err", err)
			os.Exit(1)
		}
		receiver = psClient.Subscriber(subName)
		logger.Info("Ingestion enabled", "subscription", subName)
	}

	service := pushrelay.New(cfg, verifier, store, gateways, receiver, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting service...")
		errCh <- service.Start(ctx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("Signal received, shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := service.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "err", err)
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("Service shutdown with error", "err", err)
			os.Exit(1)
		}
	}
}
