// Package main is the entry point for the genui bridge service.
package main

import (
	"context"
	"io"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/oremus-labs/genui-bridge/config"
	"github.com/oremus-labs/genui-bridge/internal/api"
	"github.com/oremus-labs/genui-bridge/internal/events"
	"github.com/oremus-labs/genui-bridge/internal/graphqlapi"
	"github.com/oremus-labs/genui-bridge/internal/handlers"
	"github.com/oremus-labs/genui-bridge/internal/logutil"
	"github.com/oremus-labs/genui-bridge/internal/queue"
	"github.com/oremus-labs/genui-bridge/internal/redisx"
	"github.com/oremus-labs/genui-bridge/internal/registry"
	"github.com/oremus-labs/genui-bridge/internal/sessions"
	"github.com/oremus-labs/genui-bridge/internal/snapcache"
	"github.com/oremus-labs/genui-bridge/internal/store"
	"github.com/oremus-labs/genui-bridge/internal/upstream"
	"github.com/oremus-labs/genui-bridge/internal/validator"
)

const (
	version         = "0.1.0-go"
	shutdownTimeout = 10 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting genui bridge v%s", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logutil.SetLevel(cfg.LogLevel)
	logutil.Info("server_bootstrap", map[string]interface{}{
		"version":         version,
		"port":            cfg.ServerPort,
		"datastoreDriver": cfg.DataStoreDriver,
		"redisAddr":       cfg.RedisAddr,
		"upstream":        cfg.UpstreamURL,
		"authEnabled":     cfg.APIToken != "",
	})

	stateStore, err := store.Open(cfg.DataStoreDSN, cfg.DataStoreDriver)
	if err != nil {
		log.Fatalf("Failed to initialize state store: %v", err)
	}
	defer stateStore.Close()

	redisClient, err := redisx.NewClient(redisx.Config{
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		TLSEnabled:  cfg.RedisTLSEnabled,
		TLSInsecure: cfg.RedisTLSInsecure,
	})
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		log.Println("Redis disabled (REDIS_ADDR not set): events stay local, sessions run in-process")
	}

	eventBus := events.NewBus(events.Options{
		Client:  redisClient,
		Logger:  logutil.Logger("events"),
		Channel: cfg.EventsChannel,
		Buffer:  cfg.EventsBuffer,
	})
	defer eventBus.Close()

	reg := registry.Default()
	if cfg.ComponentCatalogPath != "" {
		n, err := reg.LoadCatalog(cfg.ComponentCatalogPath)
		if err != nil {
			log.Fatalf("Failed to load component catalog: %v", err)
		}
		log.Printf("Loaded %d components from %s", n, cfg.ComponentCatalogPath)
	}

	treeValidator, err := validator.New(validator.Options{
		Registry:       reg,
		TreeSchemaPath: cfg.TreeSchemaPath,
		Strict:         cfg.StrictValidation,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tree validator: %v", err)
	}

	var model *upstream.Client
	if cfg.UpstreamURL != "" {
		model = upstream.New(cfg.UpstreamURL, cfg.UpstreamToken, cfg.UpstreamHeaderTimeout)
	} else {
		log.Println("Upstream disabled (UPSTREAM_URL not set): only /render is available")
	}

	manager := sessions.New(sessions.Options{
		Store:          stateStore,
		Upstream:       upstreamOpener(model),
		EventPublisher: eventBus,
		Cache:          snapcache.New(redisClient, cfg.RedisKeyPrefix, cfg.SnapshotTTL),
		ChunkSize:      cfg.StreamChunkSize,
		SessionTimeout: cfg.SessionTimeout,
		Logger:         logutil.Logger("sessions"),
	})

	stopCancels := manager.FollowCancels(eventBus)
	defer stopCancels()

	h := handlers.New(manager, reg, treeValidator, eventBus, queue.NewProducer(redisClient, cfg.RedisJobStream), handlers.Options{
		Version:        version,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	gqlHandler, err := graphqlapi.NewHandler(graphqlapi.Config{
		Sessions: manager,
		Registry: reg,
	})
	if err != nil {
		log.Fatalf("Failed to build GraphQL schema: %v", err)
	}

	startAutomation(ctx, automationOptions{
		Store:      stateStore,
		Interval:   cfg.RetentionInterval,
		SessionTTL: cfg.SessionTTL,
		HistoryTTL: cfg.HistoryTTL,
	})

	server := api.NewServer(h, api.Options{
		APIToken:       cfg.APIToken,
		GraphQLHandler: gqlHandler,
	})
	srv := server.Start(":" + cfg.ServerPort)
	log.Printf("Server listening on :%s", cfg.ServerPort)

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// upstreamOpener keeps a nil client from becoming a non-nil interface.
func upstreamOpener(c *upstream.Client) interface {
	Open(context.Context, upstream.Request) (io.ReadCloser, error)
} {
	if c == nil {
		return nil
	}
	return c
}
