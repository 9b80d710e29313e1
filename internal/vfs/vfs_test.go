package vfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOSFS_ReadWriteRemove(t *testing.T) {
	fsys := NewOS()
	p := filepath.Join(t.TempDir(), "a.txt")
	if err := WriteFile(fsys, p, []byte("hello\r\n")); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(fsys, p)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello\r\n" {
		t.Fatalf("got %q", got)
	}
	if err := RemoveIfExists(fsys, p); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(fsys, p); err != nil {
		t.Fatalf("second removal should be tolerated: %v", err)
	}
	if err := fsys.Remove(p); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("plain Remove should report ErrNotExist, got %v", err)
	}
}

func TestMemFS_ReadDirIsSortedAndShallow(t *testing.T) {
	m := NewMem()
	for _, name := range []string{"/fx/b.in", "/fx/a.in", "/fx/sub/c.in", "/other.in"} {
		if err := WriteFile(m, name, []byte(name)); err != nil {
			t.Fatal(err)
		}
	}
	ents, err := m.ReadDir("/fx")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range ents {
		names = append(names, e.Name())
	}
	want := []string{"a.in", "b.in", "sub"}
	if len(names) != len(want) {
		t.Fatalf("got %v want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v want %v", names, want)
		}
	}
	if !ents[2].IsDir() {
		t.Fatal("sub should be a directory")
	}
	if _, err := m.ReadDir("/missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestMemFS_TracksOpenHandles(t *testing.T) {
	m := NewMem()
	if err := WriteFile(m, "x.txt", []byte("1")); err != nil {
		t.Fatal(err)
	}
	f, err := m.Open("x.txt")
	if err != nil {
		t.Fatal(err)
	}
	if m.OpenHandles() != 1 {
		t.Fatalf("open handles = %d", m.OpenHandles())
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if m.OpenHandles() != 0 {
		t.Fatalf("open handles = %d", m.OpenHandles())
	}
	if err := f.Close(); !errors.Is(err, fs.ErrClosed) {
		t.Fatalf("double close should fail, got %v", err)
	}
	if _, err := ReadFile(m, "x.txt"); err != nil {
		t.Fatal(err)
	}
	if m.OpenHandles() != 0 {
		t.Fatal("ReadFile leaked a handle")
	}
}

func TestMemFS_RemoveMissing(t *testing.T) {
	m := NewMem()
	if err := m.Remove("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("got %v", err)
	}
	if err := RemoveIfExists(m, "nope"); err != nil {
		t.Fatal(err)
	}
}

func TestPollingWatcher_DetectsNewFile(t *testing.T) {
	fsys := NewOS()
	dir := t.TempDir()
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(dir, old, old); err != nil {
		t.Fatal(err)
	}
	w := NewPollingWatcher(fsys, 20*time.Millisecond)
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "new.in"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-w.Events():
		if ev.Path != dir {
			t.Fatalf("event path = %q", ev.Path)
		}
	case <-ctx.Done():
		t.Fatal("timeout")
	}
}

func TestWatcher_FSNotify(t *testing.T) {
	fw, err := NewFSWatcher()
	if err != nil {
		t.Skip("fsnotify not supported: ", err)
	}
	defer fw.Close()
	dir := t.TempDir()
	if err := fw.Add(dir); err != nil {
		t.Fatal(err)
	}
	go func() { _ = os.WriteFile(filepath.Join(dir, "f.in"), []byte("x"), 0o644) }()
	select {
	case ev := <-fw.Events():
		if ev.Path == "" {
			t.Fatal("empty path")
		}
		if ev.Op&(OpCreate|OpWrite) == 0 {
			t.Fatalf("unexpected op %v", ev.Op)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for fsnotify event")
	}
}
