package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STATE_PATH", "/tmp/genui-state")
	t.Setenv("DATASTORE_DRIVER", "")
	t.Setenv("DATASTORE_DSN", "")

	cfg := Load()
	if cfg.ServerPort != "8080" {
		t.Fatalf("unexpected port %s", cfg.ServerPort)
	}
	if cfg.DataStoreDriver != "sqlite" || cfg.DataStoreDSN != filepath.Join("/tmp/genui-state", "genui.db") {
		t.Fatalf("unexpected datastore %s %s", cfg.DataStoreDriver, cfg.DataStoreDSN)
	}
	if cfg.StreamChunkSize != 4096 || cfg.SessionTimeout != 10*time.Minute {
		t.Fatalf("unexpected stream defaults %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATASTORE_DRIVER", "postgres")
	t.Setenv("DATASTORE_DSN", "")
	t.Setenv("POSTGRES_DSN", "postgres://genui@db/genui")
	t.Setenv("SESSION_TIMEOUT", "90s")
	t.Setenv("STREAM_CHUNK_SIZE", "not-a-number")
	t.Setenv("STRICT_VALIDATION", "yes")

	cfg := Load()
	if cfg.DataStoreDSN != "postgres://genui@db/genui" {
		t.Fatalf("expected postgres dsn fallback, got %q", cfg.DataStoreDSN)
	}
	if cfg.SessionTimeout != 90*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.SessionTimeout)
	}
	if cfg.StreamChunkSize != 4096 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.StreamChunkSize)
	}
	if !cfg.StrictValidation {
		t.Fatalf("expected strict validation")
	}
}
