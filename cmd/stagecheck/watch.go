package main

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pascalc/stagecheck/internal/cli"
	"github.com/pascalc/stagecheck/internal/harness"
	"github.com/pascalc/stagecheck/internal/vfs"
)

// runWatch verifies once, then again whenever a fixture, a golden file or
// the compiler changes, until ctx is done. Passes never overlap: the event
// pump only signals, and the pass loop runs one pass at a time.
func runWatch(ctx context.Context, s *settings, stdout io.Writer, log *cli.Logger) error {
	w, polling, err := openWatcher(ctx, s, log)
	if err != nil {
		return err
	}
	defer w.Close()

	targets := watchTargets(s.cfg, polling)
	for _, t := range targets {
		if err := w.Add(t); err != nil {
			return err
		}
		log.Debug("watching %s", t)
	}

	f := newEventFilter(s)
	triggers := make(chan struct{}, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pumpEvents(gctx, w, f, triggers, log) })
	g.Go(func() error {
		for {
			f.begin()
			if _, err := pass(gctx, s, stdout, log); err != nil && gctx.Err() == nil {
				log.Error("%v", err)
			}
			if polling {
				// The pass itself touched the watched directories.
				for _, t := range targets {
					_ = w.Add(t)
				}
			}
			f.end(time.Now())
			log.Info("waiting for changes")

			if !settle(gctx, triggers, s.debounce) {
				return nil
			}
		}
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func openWatcher(ctx context.Context, s *settings, log *cli.Logger) (vfs.Watcher, bool, error) {
	if s.poll <= 0 {
		w, err := vfs.NewFSWatcher()
		if err == nil {
			return w, false, nil
		}
		log.Warn("file notifications unavailable, polling instead: %v", err)
	}
	pw := vfs.NewPollingWatcher(vfs.NewOS(), s.poll)
	pw.Start(ctx)
	return pw, true, nil
}

// watchTargets lists the fixture directory and the compiler. Notifications
// are taken on the compiler's directory, since builds usually replace the
// file; the poller watches the file itself.
func watchTargets(cfg *cli.Config, polling bool) []string {
	targets := []string{cfg.FixtureDir}
	if strings.ContainsRune(cfg.Tool, filepath.Separator) || strings.ContainsRune(cfg.Tool, '/') {
		tool := cfg.Tool
		if !polling {
			tool = filepath.Dir(tool)
		}
		if filepath.Clean(tool) != filepath.Clean(cfg.FixtureDir) {
			targets = append(targets, tool)
		}
	}
	return targets
}

// settle waits for a trigger and then for a quiet period of d without
// further triggers. It returns false when ctx ends first.
func settle(ctx context.Context, triggers <-chan struct{}, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-triggers:
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-triggers:
			timer.Reset(d)
		case <-timer.C:
			return true
		}
	}
}

func pumpEvents(ctx context.Context, w vfs.Watcher, f *eventFilter, triggers chan<- struct{}, log *cli.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("file watcher stopped")
			}
			if !f.relevant(ev) {
				continue
			}
			log.Debug("changed: %s", ev.Path)
			select {
			case triggers <- struct{}{}:
			default:
			}
		case err := <-w.Errors():
			log.Warn("watch: %v", err)
		}
	}
}

// eventFilter decides which filesystem events call for a new pass. Files
// the harness writes itself (scratch output, failure files, reports) never
// do. Directory-level events, which only say that something in the
// directory changed, count only when they happen between passes.
type eventFilter struct {
	fixtureDir string
	tool       string
	exts       map[string]bool
	scratch    map[string]bool
	ignored    map[string]bool

	mu      sync.Mutex
	running bool
	lastEnd time.Time
}

func newEventFilter(s *settings) *eventFilter {
	f := &eventFilter{
		fixtureDir: absPath(s.cfg.FixtureDir),
		exts:       map[string]bool{harness.InputExt: true},
		scratch:    make(map[string]bool),
		ignored:    make(map[string]bool),
	}
	if strings.ContainsRune(s.cfg.Tool, filepath.Separator) || strings.ContainsRune(s.cfg.Tool, '/') {
		f.tool = absPath(s.cfg.Tool)
	}
	for _, a := range s.mode.Artifacts {
		f.exts["."+a.Ext] = true
	}
	for _, name := range s.mode.ScratchFiles() {
		f.scratch[name] = true
	}
	for _, p := range []string{s.cfg.JSONReport, s.cfg.JUnitReport, s.cfg.FailuresArchive} {
		if p != "" {
			f.ignored[absPath(p)] = true
		}
	}
	return f
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func (f *eventFilter) begin() {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
}

func (f *eventFilter) end(t time.Time) {
	f.mu.Lock()
	f.running = false
	f.lastEnd = t
	f.mu.Unlock()
}

func (f *eventFilter) relevant(ev vfs.Event) bool {
	if ev.Op == vfs.OpChmod {
		return false
	}
	p := absPath(ev.Path)
	switch {
	case f.ignored[p]:
		return false
	case f.tool != "" && p == f.tool:
		return true
	case p == f.fixtureDir:
		f.mu.Lock()
		defer f.mu.Unlock()
		return !f.running && ev.Time.After(f.lastEnd)
	case filepath.Dir(p) != f.fixtureDir:
		return false
	}
	base := filepath.Base(p)
	if f.scratch[base] || strings.Contains(base, "_failed.") {
		return false
	}
	return f.exts[filepath.Ext(base)]
}
