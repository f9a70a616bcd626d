package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/presto/internal/logfields"
	"git.home.luguber.info/inful/presto/internal/source"
)

// DefaultDebounce is the quiet period awaited after the last change.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors the source tree, the template and the partials and
// republishes after a burst of changes has settled.
type Watcher struct {
	runner   *Runner
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	trees   []string
	files   map[string]bool
	ignored []string

	changes chan struct{}
}

// NewWatcher creates a watcher that republishes through runner.
func NewWatcher(runner *Runner, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		runner:   runner,
		watcher:  fw,
		debounce: debounce,
		logger:   slog.Default(),
		files:    map[string]bool{},
		changes:  make(chan struct{}, 1),
	}, nil
}

// WithLogger sets the structured logger.
func (w *Watcher) WithLogger(l *slog.Logger) *Watcher {
	if l != nil {
		w.logger = l
	}
	return w
}

// AddTree watches dir and every directory below it. Directories created
// later are picked up as they appear.
func (w *Watcher) AddTree(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	w.mu.Lock()
	w.trees = append(w.trees, abs)
	w.mu.Unlock()
	return w.addRecursive(abs)
}

// AddFile watches a single file. Its parent directory is watched because
// editors commonly replace files by rename.
func (w *Watcher) AddFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	w.mu.Lock()
	w.files[abs] = true
	w.mu.Unlock()
	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return nil
}

// Ignore excludes path and everything below it from triggering runs. The
// output directory and cache file are ignored when they live inside a
// watched tree.
func (w *Watcher) Ignore(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.ignored = append(w.ignored, abs)
	w.mu.Unlock()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (source.Ignored(d.Name()) || w.isIgnored(path)) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run blocks, republishing after changes, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.publishLoop(ctx)
	}()

	w.logger.Info("Watching for changes", slog.Int("paths", len(w.watcher.WatchList())))
	w.watchLoop(ctx)
	<-done
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || !w.relevant(event.Name) {
		return
	}
	if event.Op.Has(fsnotify.Create) && source.IsDir(event.Name) && w.inTree(event.Name) {
		if err := w.addRecursive(event.Name); err != nil {
			w.logger.Warn("Cannot watch new directory", logfields.Dir(event.Name), logfields.Error(err))
		}
	}
	w.logger.Debug("Change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

// relevant reports whether a change to name should cause a run.
func (w *Watcher) relevant(name string) bool {
	if source.Ignored(filepath.Base(name)) || w.isIgnored(name) {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[name] {
		return true
	}
	return w.inTreeLocked(name)
}

func (w *Watcher) inTree(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inTreeLocked(name)
}

func (w *Watcher) inTreeLocked(name string) bool {
	for _, t := range w.trees {
		if within(t, name) {
			return true
		}
	}
	return false
}

func (w *Watcher) isIgnored(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ig := range w.ignored {
		if within(ig, name) {
			return true
		}
	}
	return false
}

func within(root, name string) bool {
	return name == root || strings.HasPrefix(name, root+string(filepath.Separator))
}

// publishLoop waits for the debounce period to pass without further
// changes and then performs one run.
func (w *Watcher) publishLoop(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.changes:
			timer.Reset(w.debounce)
		case <-timer.C:
			_ = w.runner.Run(ctx, TriggerChange)
		}
	}
}
