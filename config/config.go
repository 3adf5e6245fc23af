// Package config provides application configuration management.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	ServerPort string
	APIToken   string
	LogLevel   string

	// Component catalog and validation
	ComponentCatalogPath string
	TreeSchemaPath       string
	StrictValidation     bool

	// Upstream model endpoint
	UpstreamURL           string
	UpstreamToken         string
	UpstreamHeaderTimeout time.Duration

	// Stream processing
	StreamChunkSize int
	SessionTimeout  time.Duration
	MaxUploadBytes  int64

	// Persistence + cache configuration
	StatePath       string
	DataStoreDriver string
	DataStoreDSN    string
	SnapshotTTL     time.Duration

	// Retention
	RetentionInterval time.Duration
	SessionTTL        time.Duration
	HistoryTTL        time.Duration

	// Redis / events configuration
	RedisAddr        string
	RedisUsername    string
	RedisPassword    string
	RedisDB          int
	RedisTLSEnabled  bool
	RedisTLSInsecure bool
	RedisKeyPrefix   string
	EventsChannel    string
	EventsBuffer     int
	RedisJobStream   string
	RedisJobGroup    string
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	statePath := getEnv("STATE_PATH", "/app/state")
	dataStoreDriver := getEnv("DATASTORE_DRIVER", "sqlite")
	dataStoreDSN := getEnv("DATASTORE_DSN", "")
	if dataStoreDSN == "" {
		switch dataStoreDriver {
		case "postgres":
			dataStoreDSN = os.Getenv("POSTGRES_DSN")
		case "mysql":
			dataStoreDSN = os.Getenv("MYSQL_DSN")
		default:
			dataStoreDSN = filepath.Join(statePath, "genui.db")
		}
	}
	return &Config{
		ServerPort:            getEnv("SERVER_PORT", "8080"),
		APIToken:              os.Getenv("GENUI_API_TOKEN"),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		ComponentCatalogPath:  getEnv("COMPONENT_CATALOG_PATH", ""),
		TreeSchemaPath:        getEnv("TREE_SCHEMA_PATH", ""),
		StrictValidation:      getEnvBool("STRICT_VALIDATION", false),
		UpstreamURL:           getEnv("UPSTREAM_URL", ""),
		UpstreamToken:         os.Getenv("UPSTREAM_TOKEN"),
		UpstreamHeaderTimeout: getEnvDuration("UPSTREAM_HEADER_TIMEOUT", 30*time.Second),
		StreamChunkSize:       getEnvInt("STREAM_CHUNK_SIZE", 4096),
		SessionTimeout:        getEnvDuration("SESSION_TIMEOUT", 10*time.Minute),
		MaxUploadBytes:        int64(getEnvInt("MAX_UPLOAD_BYTES", 8<<20)),
		StatePath:             statePath,
		DataStoreDriver:       dataStoreDriver,
		DataStoreDSN:          dataStoreDSN,
		SnapshotTTL:           getEnvDuration("SNAPSHOT_TTL", 24*time.Hour),
		RetentionInterval:     getEnvDuration("RETENTION_INTERVAL", time.Hour),
		SessionTTL:            getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		HistoryTTL:            getEnvDuration("HISTORY_TTL", 30*24*time.Hour),
		RedisAddr:             getEnv("REDIS_ADDR", ""),
		RedisUsername:         getEnv("REDIS_USERNAME", ""),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		RedisTLSEnabled:       getEnvBool("REDIS_TLS_ENABLED", false),
		RedisTLSInsecure:      getEnvBool("REDIS_TLS_INSECURE_SKIP_VERIFY", false),
		RedisKeyPrefix:        getEnv("REDIS_KEY_PREFIX", "genui"),
		EventsChannel:         getEnv("EVENTS_CHANNEL", "genui-events"),
		EventsBuffer:          getEnvInt("EVENTS_BUFFER", 64),
		RedisJobStream:        getEnv("REDIS_JOB_STREAM", "genui:sessions"),
		RedisJobGroup:         getEnv("REDIS_JOB_GROUP", "genui-workers"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s: %s, using default %s", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Printf("Invalid int for %s: %s, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "y":
			return true
		case "0", "false", "no", "n":
			return false
		default:
			log.Printf("Invalid bool for %s: %s, using default %t", key, value, defaultValue)
		}
	}
	return defaultValue
}
