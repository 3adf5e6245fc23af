package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/oremus-labs/genui-bridge/internal/store"
)

func TestRunAutomationSweep(t *testing.T) {
	t.Parallel()

	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"), "sqlite")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	for _, sess := range []*store.Session{
		{ID: "done", Source: "upload", Status: store.SessionDone},
		{ID: "live", Source: "upstream", Status: store.SessionRunning},
	} {
		if err := st.CreateSession(sess); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}
	if err := st.AppendHistory(&store.HistoryEntry{Event: "state_changed", SessionID: "live"}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	opts := automationOptions{Store: st, SessionTTL: time.Hour, HistoryTTL: time.Hour}

	res, err := runAutomationSweep(opts, time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Sessions != 0 || res.History != 0 {
		t.Fatalf("fresh records should survive, got %+v", res)
	}

	res, err = runAutomationSweep(opts, time.Now().UTC().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Sessions != 1 || res.History != 1 {
		t.Fatalf("expected 1 session and 1 history entry purged, got %+v", res)
	}
	if _, err := st.GetSession("live"); err != nil {
		t.Fatalf("running session must survive: %v", err)
	}
}
