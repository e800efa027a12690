package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Change records one configuration key transition.
type Change struct {
	Old any `json:"oldValue"`
	New any `json:"newValue"`
}

// ChangeCallback receives the reloaded configuration and the set of changed
// keys. Keys are dot-separated YAML paths (e.g. "logseq.graph_name").
type ChangeCallback[T any] func(next *T, changes map[string]Change)

// Watch watches filename with fsnotify and reloads it on change, diffing the
// new configuration against the previous one and invoking cb with the changed
// keys. Reloads are debounced because editors typically emit several events
// per save (write, chmod, rename-replace).
//
// fresh constructs the value each reload is parsed into, so a file that sets
// only some keys inherits the same defaults it did at startup. A nil fresh
// reloads into a zero value.
//
// The parent directory is watched rather than the file itself so that
// atomic-rename saves keep being observed. Watch blocks until ctx is
// cancelled.
func Watch[T any](ctx context.Context, filename string, initial *T, fresh func() *T, logger *slog.Logger, cb ChangeCallback[T]) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(filename)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	current, err := flatten(initial)
	if err != nil {
		return err
	}

	logger.Info("config watcher: started", slog.String("file", filename))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("config watcher: stopped")
			return nil

		case <-reloadCh:
			next := new(T)
			if fresh != nil {
				next = fresh()
			}
			if err := Load(filename, next); err != nil {
				logger.Warn("config watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			flat, err := flatten(next)
			if err != nil {
				logger.Warn("config watcher: flatten failed", slog.String("error", err.Error()))
				continue
			}
			changes := Diff(current, flat)
			current = flat
			if len(changes) == 0 {
				continue
			}
			logger.Info("config watcher: configuration changed", slog.Int("keys", len(changes)))
			if cb != nil {
				cb(next, changes)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(filename) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// Diff returns the keys whose values differ between two flattened configs.
// Keys present on only one side appear with a nil counterpart.
func Diff(old, next map[string]any) map[string]Change {
	changes := make(map[string]Change)
	for k, ov := range old {
		nv, ok := next[k]
		if !ok {
			changes[k] = Change{Old: ov, New: nil}
			continue
		}
		if fmt.Sprint(ov) != fmt.Sprint(nv) {
			changes[k] = Change{Old: ov, New: nv}
		}
	}
	for k, nv := range next {
		if _, ok := old[k]; !ok {
			changes[k] = Change{Old: nil, New: nv}
		}
	}
	return changes
}

// flatten converts a config struct into a map of dot-separated YAML paths to
// leaf values, by round-tripping through the YAML representation.
func flatten[T any](cfg *T) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	flat := make(map[string]any)
	flattenInto(flat, "", tree)
	return flat, nil
}

func flattenInto(flat map[string]any, prefix string, node map[string]any) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flattenInto(flat, key, child)
			continue
		}
		flat[key] = v
	}
}
