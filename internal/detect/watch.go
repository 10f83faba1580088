package detect

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"clawav/internal/logger"
)

// WatchRules refreshes p whenever the rule path changes. Bursts of events within debounce
// collapse into one refresh. It blocks until ctx is done.
func WatchRules(ctx context.Context, path string, p RuleProvider, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = time.Second
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	targets, err := watchTargets(path)
	if err != nil {
		return err
	}
	for _, dir := range targets {
		if err := w.Add(dir); err != nil {
			return err
		}
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 && !isYAMLFile(path) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					addTree(w, ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("Rule watcher error: %v", err)
		case <-fire:
			fire = nil
			n, err := p.Refresh()
			if err != nil {
				logger.Warnf("Rule refresh failed for %s: %v", p.ProviderID(), err)
				continue
			}
			logger.Infof("Rules refreshed for %s: active=%d", p.ProviderID(), n)
		}
	}
}

// watchTargets lists every directory under a rule directory, or the parent of a single rule
// file so that editors that replace files atomically are still observed.
func watchTargets(path string) ([]string, error) {
	if isYAMLFile(path) {
		return []string{filepath.Dir(path)}, nil
	}
	var dirs []string
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, p)
		}
		return nil
	})
	return dirs, err
}

func addTree(w *fsnotify.Watcher, root string) {
	dirs, err := watchTargets(root)
	if err != nil {
		logger.Warnf("Rule watcher cannot walk %s: %v", root, err)
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			logger.Warnf("Rule watcher cannot watch %s: %v", dir, err)
		}
	}
}
