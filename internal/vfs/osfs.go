package vfs

import (
	"io/fs"
	"os"
)

// OSFS is the FileSystem backed by the host disk.
type OSFS struct{}

func NewOS() *OSFS { return &OSFS{} }

func (fsys *OSFS) Open(name string) (File, error)             { return os.Open(name) }
func (fsys *OSFS) Create(name string) (File, error)           { return os.Create(name) }
func (fsys *OSFS) Remove(name string) error                   { return os.Remove(name) }
func (fsys *OSFS) Stat(name string) (fs.FileInfo, error)      { return os.Stat(name) }
func (fsys *OSFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }
