package vfs

import (
	"bytes"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// memFile is an open handle. Reads see the content at Open time; writes
// are committed to the owning MemFS on Close.
type memFile struct {
	fsys *MemFS
	name string
	rd   *bytes.Reader
	wbuf *bytes.Buffer
	mod  time.Time
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.rd == nil {
		return 0, &fs.PathError{Op: "read", Path: f.name, Err: fs.ErrInvalid}
	}
	return f.rd.Read(p)
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.wbuf == nil {
		return 0, &fs.PathError{Op: "write", Path: f.name, Err: fs.ErrInvalid}
	}
	return f.wbuf.Write(p)
}

func (f *memFile) Close() error {
	if f.fsys == nil {
		return &fs.PathError{Op: "close", Path: f.name, Err: fs.ErrClosed}
	}
	if f.wbuf != nil {
		f.fsys.commit(f.name, f.wbuf.Bytes())
	}
	f.fsys.release(f.name)
	f.fsys = nil
	return nil
}

func (f *memFile) Stat() (fs.FileInfo, error) {
	size := int64(0)
	switch {
	case f.rd != nil:
		size = f.rd.Size()
	case f.wbuf != nil:
		size = int64(f.wbuf.Len())
	}
	return fileInfo{name: path.Base(f.name), size: size, mod: f.mod}, nil
}

type fileInfo struct {
	name string
	size int64
	mode fs.FileMode
	mod  time.Time
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi fileInfo) ModTime() time.Time { return fi.mod }
func (fi fileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi fileInfo) Sys() any           { return nil }

type memEnt struct {
	data []byte
	dir  bool
	mod  time.Time
}

// MemFS is an in-memory FileSystem. It also counts open handles per path,
// which lets tests assert that every file opened was closed again.
type MemFS struct {
	mu   sync.RWMutex
	ents map[string]*memEnt
	open map[string]int
}

func NewMem() *MemFS {
	return &MemFS{ents: map[string]*memEnt{"": {dir: true}}, open: make(map[string]int)}
}

func norm(p string) string {
	q := path.Clean(filepath.ToSlash(p))
	q = strings.TrimPrefix(q, "/")
	if q == "." {
		return ""
	}
	return q
}

func (m *MemFS) ensureDir(p string) {
	cur := ""
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." {
			continue
		}
		cur = path.Join(cur, part)
		if _, ok := m.ents[cur]; !ok {
			m.ents[cur] = &memEnt{dir: true, mod: time.Now()}
		}
	}
}

func (m *MemFS) commit(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := norm(name)
	m.ensureDir(path.Dir(key))
	m.ents[key] = &memEnt{data: append([]byte(nil), data...), mod: time.Now()}
}

func (m *MemFS) release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := norm(name)
	if m.open[key]--; m.open[key] <= 0 {
		delete(m.open, key)
	}
}

func (m *MemFS) Open(name string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := norm(name)
	e := m.ents[key]
	if e == nil || e.dir {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	m.open[key]++
	return &memFile{fsys: m, name: name, rd: bytes.NewReader(e.data), mod: e.mod}, nil
}

func (m *MemFS) Create(name string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := norm(name)
	if e := m.ents[key]; e != nil && e.dir {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	}
	m.ensureDir(path.Dir(key))
	m.ents[key] = &memEnt{mod: time.Now()}
	m.open[key]++
	return &memFile{fsys: m, name: name, wbuf: new(bytes.Buffer), mod: time.Now()}, nil
}

// MkdirAll creates name and any missing parents.
func (m *MemFS) MkdirAll(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureDir(norm(name))
}

func (m *MemFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := norm(name)
	if _, ok := m.ents[key]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(m.ents, key)
	return nil
}

func (m *MemFS) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := norm(name)
	e := m.ents[key]
	if e == nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	if e.dir {
		return fileInfo{name: path.Base(key), mode: fs.ModeDir | 0o755, mod: e.mod}, nil
	}
	return fileInfo{name: path.Base(key), size: int64(len(e.data)), mode: 0o644, mod: e.mod}, nil
}

// ReadDir lists the direct children of name in lexical order.
func (m *MemFS) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := norm(name)
	if e := m.ents[prefix]; e == nil || !e.dir {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	base := prefix
	if base != "" {
		base += "/"
	}
	var out []fs.DirEntry
	for p, e := range m.ents {
		if p == prefix || !strings.HasPrefix(p, base) {
			continue
		}
		rest := strings.TrimPrefix(p, base)
		if strings.Contains(rest, "/") {
			continue
		}
		info := fileInfo{name: rest, size: int64(len(e.data)), mode: 0o644, mod: e.mod}
		if e.dir {
			info.mode = fs.ModeDir | 0o755
		}
		out = append(out, fs.FileInfoToDirEntry(info))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// OpenHandles reports how many handles are currently open, across all paths.
func (m *MemFS) OpenHandles() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.open {
		n += c
	}
	return n
}
