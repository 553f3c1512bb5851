package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher triggers a dataset check as soon as a dataset file changes.
// Collectors usually replace files by rename, so the parent directories are
// watched and events are filtered by file name. Bursts of events are
// debounced into one trigger.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	dirs     []string
	debounce *Debouncer
	logger   *slog.Logger
}

// NewFileWatcher creates a watcher over the directories of datasets.
func NewFileWatcher(datasets []Descriptor, debounce time.Duration, logger *slog.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:  w,
		files:    make(map[string]bool),
		debounce: NewDebouncer(debounce),
		logger:   logger.With("component", "watchdog"),
	}

	dirs := make(map[string]bool)
	for _, d := range datasets {
		abs, err := filepath.Abs(d.Path)
		if err != nil {
			abs = filepath.Clean(d.Path)
		}
		fw.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		fw.dirs = append(fw.dirs, dir)
	}
	sort.Strings(fw.dirs)

	return fw, nil
}

// Watch adds the dataset directories and calls onChange, debounced, for every
// write, create or rename of a dataset file. Directories that do not exist yet
// are skipped with a warning. Watch blocks until ctx is cancelled and then
// closes the watcher.
func (fw *FileWatcher) Watch(ctx context.Context, onChange func()) error {
	defer fw.close()

	added := 0
	for _, dir := range fw.dirs {
		if err := fw.watcher.Add(dir); err != nil {
			fw.logger.Warn("cannot watch dataset directory", "path", dir, "error", err)
			continue
		}
		added++
		fw.logger.Debug("watching dataset directory", "path", dir)
	}
	if added == 0 && len(fw.dirs) > 0 {
		return errors.New("no dataset directory could be watched")
	}

	fw.logger.Info("dataset watcher started", "directories", added, "debounce", fw.debounce.interval)

	for {
		select {
		case <-ctx.Done():
			fw.logger.Info("dataset watcher stopped")
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !fw.relevant(event) {
				continue
			}
			fw.logger.Debug("dataset file event", "path", event.Name, "op", event.Op.String())
			fw.debounce.Trigger(onChange)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			fw.logger.Error("dataset watcher error", "error", err)
		}
	}
}

func (fw *FileWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	return fw.files[filepath.Clean(event.Name)]
}

func (fw *FileWatcher) close() {
	fw.debounce.Stop()
	if err := fw.watcher.Close(); err != nil {
		fw.logger.Warn("failed to close dataset watcher", "error", err)
	}
}

// Debouncer coalesces rapid events and runs the latest callback once a quiet
// period has passed.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback after the quiet period, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
