package nickname

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a [Directory] when its file is edited by hand. File system
// notifications on the file's parent directory trigger an immediate check;
// a polling tick covers platforms and mounts where notifications are
// unavailable. A check only reads the file when its modification time moved,
// and writes made through [Directory.Add] are recognised by content hash and
// skipped.
type Watcher struct {
	dir      *Directory
	interval time.Duration
	onReload func(keys int)
	fsw      *fsnotify.Watcher

	mu        sync.Mutex
	lastMtime time.Time

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOnReload registers a callback invoked after each successful reload
// with the new key count.
func WithOnReload(fn func(keys int)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher starts watching d's file in a background goroutine. Call
// [Watcher.Stop] to end it.
func NewWatcher(d *Directory, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:      d,
		interval: 5 * time.Second,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if info, err := os.Stat(d.path); err == nil {
		w.lastMtime = info.ModTime()
	}
	w.fsw = notifier(d.path)

	go w.poll()
	return w
}

// Stop stops polling and waits for the goroutine to exit. Safe to call more
// than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	<-w.stopped
}

// notifier watches the directory holding path, since editors often replace
// the file instead of writing it in place. It returns nil when notifications
// are unavailable.
func notifier(path string) *fsnotify.Watcher {
	if path == "" {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("nickname watcher: notifications unavailable, polling only", "err", err)
		return nil
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		slog.Debug("nickname watcher: cannot watch directory, polling only", "path", path, "err", err)
		return nil
	}
	return fsw
}

func (w *Watcher) poll() {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.fsw != nil {
		defer w.fsw.Close()
		events, errs = w.fsw.Events, w.fsw.Errors
	}
	name := filepath.Base(w.dir.path)

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(ev.Name) == name && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.check()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Debug("nickname watcher: notification error", "err", err)
		}
	}
}

// check reloads the directory if the file's mtime moved and its content
// differs from the last known state.
func (w *Watcher) check() {
	info, err := os.Stat(w.dir.path)
	if err != nil {
		slog.Debug("nickname watcher: cannot stat file", "path", w.dir.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.lastMtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	data, err := os.ReadFile(w.dir.path)
	if err != nil {
		slog.Warn("nickname watcher: cannot read file", "path", w.dir.path, "err", err)
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		// Truncated by an in-place write that has not finished yet.
		return
	}
	changed, err := w.dir.replace(data)
	if err != nil {
		// Keep the previous mtime so a fixed file is picked up next tick.
		slog.Warn("nickname watcher: invalid file, keeping previous directory", "path", w.dir.path, "err", err)
		return
	}

	w.mu.Lock()
	w.lastMtime = info.ModTime()
	w.mu.Unlock()

	if !changed {
		return
	}
	keys := w.dir.Len()
	slog.Info("nickname watcher: directory reloaded", "path", w.dir.path, "keys", keys)
	if w.onReload != nil {
		w.onReload(keys)
	}
}
