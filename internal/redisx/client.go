// Package redisx builds the shared Redis client used by the event bus,
// snapshot cache and job queue.
package redisx

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the bridge writes.
const DefaultPrefix = "genui"

// Config configures the Redis client.
type Config struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	TLSEnabled  bool
	TLSInsecure bool
	DialTimeout time.Duration
}

// NewClient returns a configured Redis client or nil when no address is provided.
func NewClient(cfg Config) (redis.UniversalClient, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dial,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecure, // #nosec G402 – opt-in via REDIS_TLS_INSECURE_SKIP_VERIFY
		}
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), dial)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Key joins parts under prefix with ':' separators, skipping empty parts.
func Key(prefix string, parts ...string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	out := []string{prefix}
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}
