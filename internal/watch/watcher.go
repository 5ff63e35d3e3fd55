package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultIgnore contains default patterns to ignore.
var DefaultIgnore = []string{
	".git",
	"node_modules",
	"*.tmp",
	"*.swp",
	"*~",
	".DS_Store",
}

// Config configures a Watcher.
type Config struct {
	// Root is the site directory.
	Root string

	// Debounce is the quiet period before changes are reported.
	// Default: 100ms.
	Debounce time.Duration

	// Ignore lists directory names or base-name globs to skip.
	// Default: DefaultIgnore.
	Ignore []string

	// Logger receives watcher diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// Change is one changed site file.
type Change struct {
	// File is the path relative to Root, slash separated.
	File string

	// Route is the page path served by File, or "" for non-page files.
	Route string

	// Removed reports that the file no longer exists.
	Removed bool
}

// Watcher monitors a site directory.
type Watcher struct {
	cfg      Config
	mu       sync.Mutex
	onChange func([]Change)
	pending  map[string]Change
	running  bool
}

// New creates a watcher.
func New(cfg Config) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 100 * time.Millisecond
	}
	if cfg.Ignore == nil {
		cfg.Ignore = DefaultIgnore
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{cfg: cfg, pending: make(map[string]Change)}
}

// OnChange sets the callback for debounced batches of changes.
func (w *Watcher) OnChange(fn func([]Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// IsRunning returns whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Run watches Root until ctx is cancelled. Directories created later are
// added as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addDirs(fw, w.cfg.Root); err != nil {
		return err
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	log := w.cfg.Logger
	log.Info("watcher: started", slog.String("root", w.cfg.Root))

	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("watcher: stopped")
			return nil

		case <-timer.C:
			w.flush()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.ignored(ev.Name) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := w.addDirs(fw, ev.Name); addErr != nil {
						log.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			rel, relErr := filepath.Rel(w.cfg.Root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			route, _ := RouteFor(rel)
			w.mu.Lock()
			w.pending[rel] = Change{
				File:    rel,
				Route:   route,
				Removed: ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0,
			}
			w.mu.Unlock()
			timer.Reset(w.cfg.Debounce)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// flush reports pending changes in file order.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	changes := make([]Change, 0, len(w.pending))
	for _, c := range w.pending {
		changes = append(changes, c)
	}
	w.pending = make(map[string]Change)
	callback := w.onChange
	w.mu.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].File < changes[j].File })
	w.cfg.Logger.Debug("watcher: changes", slog.Int("count", len(changes)))
	if callback != nil {
		callback(changes)
	}
}

func (w *Watcher) addDirs(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && w.ignored(p) {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}

// ignored matches patterns against the base name and, for plain names,
// against every path segment.
func (w *Watcher) ignored(p string) bool {
	name := filepath.Base(p)
	for _, pattern := range w.cfg.Ignore {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if strings.ContainsAny(pattern, "*?[") {
			if matched, _ := filepath.Match(pattern, name); matched {
				return true
			}
			continue
		}
		for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
			if seg == pattern {
				return true
			}
		}
	}
	return false
}

// RouteFor maps a slash-separated file path relative to the site root to
// the page path it serves. It reports false for non-page files.
func RouteFor(rel string) (string, bool) {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if !strings.EqualFold(path.Ext(rel), ".html") {
		return "", false
	}
	base := strings.TrimSuffix(rel, path.Ext(rel))
	if path.Base(base) == "index" {
		base = path.Dir(base)
		if base == "." {
			return "/", true
		}
	}
	return "/" + base, true
}
