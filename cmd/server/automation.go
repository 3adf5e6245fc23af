package main

import (
	"context"
	"time"

	"github.com/oremus-labs/genui-bridge/internal/logutil"
	"github.com/oremus-labs/genui-bridge/internal/store"
)

type automationOptions struct {
	Store      *store.Store
	Interval   time.Duration
	SessionTTL time.Duration
	HistoryTTL time.Duration
}

type sweepResult struct {
	Sessions int64
	History  int64
}

// startAutomation runs the retention sweep on a ticker until ctx ends.
func startAutomation(ctx context.Context, opts automationOptions) {
	if opts.Store == nil || opts.Interval <= 0 {
		return
	}
	logutil.Info("retention_started", map[string]interface{}{
		"interval":   opts.Interval.String(),
		"sessionTTL": opts.SessionTTL.String(),
		"historyTTL": opts.HistoryTTL.String(),
	})
	ticker := time.NewTicker(opts.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := runAutomationSweep(opts, time.Now().UTC())
				if err != nil {
					logutil.Error("retention_sweep_failed", err, nil)
					continue
				}
				if res.Sessions > 0 || res.History > 0 {
					logutil.Info("retention_sweep", map[string]interface{}{
						"sessions": res.Sessions,
						"history":  res.History,
					})
				}
			}
		}
	}()
}

// runAutomationSweep purges finished sessions last updated before
// now-SessionTTL, then history entries older than now-HistoryTTL. Live
// sessions are never removed.
func runAutomationSweep(opts automationOptions, now time.Time) (sweepResult, error) {
	var res sweepResult
	if opts.SessionTTL > 0 {
		n, err := opts.Store.CleanupSessionsBefore(now.Add(-opts.SessionTTL),
			store.SessionDone, store.SessionFailed, store.SessionCancelled)
		if err != nil {
			return res, err
		}
		res.Sessions = n
	}
	if opts.HistoryTTL > 0 {
		n, err := opts.Store.CleanupHistoryBefore(now.Add(-opts.HistoryTTL))
		if err != nil {
			return res, err
		}
		res.History = n
	}
	return res, nil
}
