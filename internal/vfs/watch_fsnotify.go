package vfs

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSNotifyWatcher implements Watcher on top of OS-native notifications.
// Events carry the path of the changed entry, not of the watched directory.
type FSNotifyWatcher struct {
	w      *fsnotify.Watcher
	events chan Event
	errs   chan error
	done   chan struct{}
}

// NewFSWatcher starts a watcher with no paths registered.
func NewFSWatcher() (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &FSNotifyWatcher{
		w:      w,
		events: make(chan Event, 128),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go fw.forward()
	return fw, nil
}

var opTable = []struct {
	from fsnotify.Op
	to   WatchOp
}{
	{fsnotify.Create, OpCreate},
	{fsnotify.Write, OpWrite},
	{fsnotify.Remove, OpRemove},
	{fsnotify.Rename, OpRename},
	{fsnotify.Chmod, OpChmod},
}

func translate(ev fsnotify.Event) Event {
	out := Event{Path: ev.Name, Time: time.Now()}
	for _, m := range opTable {
		if ev.Has(m.from) {
			out.Op |= m.to
		}
	}
	return out
}

// forward relays fsnotify's channels until Close. Errors are dropped while
// an earlier one is still unread.
func (fw *FSNotifyWatcher) forward() {
	defer close(fw.events)
	for {
		select {
		case <-fw.done:
			return
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			select {
			case fw.errs <- err:
			default:
			}
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			select {
			case fw.events <- translate(ev):
			case <-fw.done:
				return
			}
		}
	}
}

func (fw *FSNotifyWatcher) Events() <-chan Event     { return fw.events }
func (fw *FSNotifyWatcher) Errors() <-chan error     { return fw.errs }
func (fw *FSNotifyWatcher) Add(name string) error    { return fw.w.Add(name) }
func (fw *FSNotifyWatcher) Remove(name string) error { return fw.w.Remove(name) }

// Close stops the watcher. It is safe to call more than once.
func (fw *FSNotifyWatcher) Close() error {
	select {
	case <-fw.done:
		return nil
	default:
	}
	close(fw.done)
	return fw.w.Close()
}
