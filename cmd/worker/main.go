// Package main bootstraps the background worker that runs queued sessions
// against the upstream model.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oremus-labs/genui-bridge/config"
	"github.com/oremus-labs/genui-bridge/internal/events"
	"github.com/oremus-labs/genui-bridge/internal/logutil"
	"github.com/oremus-labs/genui-bridge/internal/queue"
	"github.com/oremus-labs/genui-bridge/internal/redisx"
	"github.com/oremus-labs/genui-bridge/internal/sessions"
	"github.com/oremus-labs/genui-bridge/internal/snapcache"
	"github.com/oremus-labs/genui-bridge/internal/store"
	"github.com/oremus-labs/genui-bridge/internal/upstream"
	"github.com/oremus-labs/genui-bridge/internal/worker"
)

const workerVersion = "0.1.0-go"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting genui worker v%s", workerVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logutil.SetLevel(cfg.LogLevel)
	logutil.Info("worker_bootstrap", map[string]interface{}{
		"version":        workerVersion,
		"redisAddr":      cfg.RedisAddr,
		"redisJobStream": cfg.RedisJobStream,
		"redisJobGroup":  cfg.RedisJobGroup,
		"upstream":       cfg.UpstreamURL,
	})
	if cfg.UpstreamURL == "" {
		log.Fatalf("worker: UPSTREAM_URL is required")
	}

	stateStore, err := store.Open(cfg.DataStoreDSN, cfg.DataStoreDriver)
	if err != nil {
		log.Fatalf("worker: failed to open datastore: %v", err)
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
		log.Fatalf("worker: failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	eventBus := events.NewBus(events.Options{
		Client:  redisClient,
		Logger:  logutil.Logger("events"),
		Channel: cfg.EventsChannel,
		Buffer:  cfg.EventsBuffer,
	})
	defer eventBus.Close()

	manager := sessions.New(sessions.Options{
		Store:          stateStore,
		Upstream:       upstream.New(cfg.UpstreamURL, cfg.UpstreamToken, cfg.UpstreamHeaderTimeout),
		EventPublisher: eventBus,
		Cache:          snapcache.New(redisClient, cfg.RedisKeyPrefix, cfg.SnapshotTTL),
		ChunkSize:      cfg.StreamChunkSize,
		SessionTimeout: cfg.SessionTimeout,
		Logger:         logutil.Logger("sessions"),
	})

	stopCancels := manager.FollowCancels(eventBus)
	defer stopCancels()

	var sessionQueue *queue.Consumer
	if redisClient != nil {
		host, _ := os.Hostname()
		consumerName := fmt.Sprintf("%s-%d", host, time.Now().UnixNano())
		sessionQueue = queue.NewConsumer(redisClient, cfg.RedisJobStream, cfg.RedisJobGroup, consumerName)
	} else {
		log.Println("worker: REDIS_ADDR not set, nothing to consume")
	}

	opts := worker.Options{
		Sessions: manager,
		Logger:   logutil.Logger("worker"),
	}
	if sessionQueue != nil {
		opts.Queue = sessionQueue
	}
	runner := worker.New(opts)

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
	log.Println("worker exited cleanly")
}
