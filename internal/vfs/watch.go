package vfs

import (
	"context"
	"sync"
	"time"
)

// PollingWatcher is a polling-based watcher portable across OSes. It is the
// fallback when OS-native notifications are unavailable.
type PollingWatcher struct {
	fs       FileSystem
	interval time.Duration

	mu    sync.Mutex
	paths map[string]time.Time
	evCh  chan Event
	erCh  chan error
	stop  context.CancelFunc
}

func NewPollingWatcher(fs FileSystem, interval time.Duration) *PollingWatcher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &PollingWatcher{
		fs:       fs,
		interval: interval,
		paths:    make(map[string]time.Time),
		evCh:     make(chan Event, 64),
		erCh:     make(chan error, 1),
	}
}

func (w *PollingWatcher) Events() <-chan Event { return w.evCh }
func (w *PollingWatcher) Errors() <-chan error { return w.erCh }

// Add starts tracking name. For a directory, the newest modification time of
// the directory and its direct entries is tracked.
func (w *PollingWatcher) Add(name string) error {
	mod, err := w.latest(name)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.paths[name] = mod
	w.mu.Unlock()
	return nil
}

func (w *PollingWatcher) Remove(name string) error {
	w.mu.Lock()
	delete(w.paths, name)
	w.mu.Unlock()
	return nil
}

func (w *PollingWatcher) Close() error {
	if w.stop != nil {
		w.stop()
	}
	return nil
}

// Start begins polling every tracked path until ctx is done or Close is called.
func (w *PollingWatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.stop = cancel
	go func() {
		defer close(w.evCh)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll(ctx)
			}
		}
	}()
}

func (w *PollingWatcher) poll(ctx context.Context) {
	w.mu.Lock()
	names := make([]string, 0, len(w.paths))
	for name := range w.paths {
		names = append(names, name)
	}
	w.mu.Unlock()

	for _, name := range names {
		mod, err := w.latest(name)
		if err != nil {
			select {
			case w.erCh <- err:
			default:
			}
			continue
		}
		w.mu.Lock()
		last, tracked := w.paths[name]
		changed := tracked && mod.After(last)
		if changed {
			w.paths[name] = mod
		}
		w.mu.Unlock()
		if changed {
			select {
			case w.evCh <- Event{Path: name, Op: OpWrite, Time: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *PollingWatcher) latest(name string) (time.Time, error) {
	info, err := w.fs.Stat(name)
	if err != nil {
		return time.Time{}, err
	}
	mod := info.ModTime()
	if !info.IsDir() {
		return mod, nil
	}
	entries, err := w.fs.ReadDir(name)
	if err != nil {
		return time.Time{}, err
	}
	for _, e := range entries {
		ei, err := e.Info()
		if err != nil {
			continue
		}
		if ei.ModTime().After(mod) {
			mod = ei.ModTime()
		}
	}
	return mod, nil
}
