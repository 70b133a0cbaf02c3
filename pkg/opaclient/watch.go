package opaclient

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// LoadModulesDir reads every .rego file in dir (non-recursive) into a module
// map keyed by file name.
func LoadModulesDir(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read policy dir: %w", err)
	}

	modules := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read policy module %s: %w", entry.Name(), err)
		}
		modules[entry.Name()] = string(src)
	}

	if len(modules) == 0 {
		return nil, fmt.Errorf("no .rego modules in %s", dir)
	}
	return modules, nil
}

// WatchModules reloads e from dir whenever its .rego files change, blocking
// until ctx is done. A failed reload keeps the previous modules active and
// is logged, never fatal.
func WatchModules(ctx context.Context, dir string, e *Embedded, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var pending *time.Timer
	var pendingC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".rego") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// Editors fire several events per save; coalesce them.
			if pending == nil {
				pending = time.NewTimer(reloadDebounce)
				pendingC = pending.C
			} else {
				pending.Reset(reloadDebounce)
			}

		case <-pendingC:
			pending = nil
			pendingC = nil

			modules, err := LoadModulesDir(dir)
			if err != nil {
				logger.Error("policy reload skipped", "dir", dir, "error", err)
				continue
			}
			if err := e.Reload(modules); err != nil {
				logger.Error("policy reload failed", "dir", dir, "error", err)
				continue
			}
			logger.Info("policy modules reloaded", "dir", dir, "count", len(modules))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("policy watcher error", "dir", dir, "error", err)
		}
	}
}
