package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path for changes and calls apply with the newly loaded
// Config each time the file is written. Escalation and notification tunables
// take effect live; the server section is fixed at startup, so a change
// there is logged as restart-required and still passed through. Watch runs
// until ctx is cancelled.
//
// If a reload fails (e.g., invalid YAML), the error is logged and the
// previous config remains active — apply is not called.
func Watch(ctx context.Context, path string, apply func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	var prev *Config
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Only reload on write or create events. Editors often write via
			// rename (atomic save), so also catch fsnotify.Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed — keeping previous config",
					"path", path, "err", err)
				continue
			}

			slog.Info("config: reloaded escalation tunables",
				"path", path,
				"sentiment_threshold", cfg.Escalation.SentimentThreshold,
				"high_value_threshold", cfg.Escalation.HighValueThreshold,
				"derived_value_threshold", cfg.Escalation.DerivedValueThreshold,
				"min_session_duration", cfg.Escalation.MinSessionDuration,
				"negative_keywords", len(cfg.Escalation.NegativeKeywords),
				"idle_timeout", cfg.Escalation.IdleTimeout,
			)
			if prev != nil && cfg.Server != prev.Server {
				slog.Warn("config: server section changed; restart required to apply",
					"path", path)
			}
			prev = cfg
			apply(cfg)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
