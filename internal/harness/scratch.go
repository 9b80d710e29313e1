package harness

import (
	"errors"
	"fmt"
	"path/filepath"

	herrors "github.com/pascalc/stagecheck/internal/errors"
	"github.com/pascalc/stagecheck/internal/vfs"
)

// Slot owns the shared scratch files of one mode in one directory.
//
// The tool writes every fixture's output to the same fixed names, so at
// most one invocation's output may be live at a time. Each fixture goes
// through Acquire, the invocation, Drain for every artifact, and Release
// before the next fixture may Acquire. Cleanup runs once after the pass.
type Slot struct {
	fsys vfs.FileSystem
	dir  string
	mode Mode
	log  Logger

	held bool
}

// NewSlot creates the scratch slot for mode in dir.
func NewSlot(fsys vfs.FileSystem, dir string, mode Mode, log Logger) *Slot {
	return &Slot{fsys: fsys, dir: dir, mode: mode, log: logger(log)}
}

// Path returns the location of a scratch file.
func (s *Slot) Path(scratch string) string { return filepath.Join(s.dir, scratch) }

// Acquire claims the slot for the next invocation. Leftover scratch files,
// from an earlier crashed run or a tool that did not overwrite them, are
// removed so that a later Drain can only see output of this invocation.
func (s *Slot) Acquire() error {
	if s.held {
		return errors.New("scratch slot already held")
	}
	for _, name := range s.mode.ScratchFiles() {
		p := s.Path(name)
		if _, err := s.fsys.Stat(p); err == nil {
			s.log.Debug("removing stale scratch file %s", p)
		}
		if err := vfs.RemoveIfExists(s.fsys, p); err != nil {
			return herrors.CleanupFailed(p, err)
		}
	}
	s.held = true
	return nil
}

// Drain reads the scratch file of a fully, closes it and removes it. A file
// the tool did not write is reported as MISSING_SCRATCH.
func (s *Slot) Drain(a Artifact) ([]byte, error) {
	if !s.held {
		return nil, fmt.Errorf("drain %s: scratch slot not held", a.Scratch)
	}
	p := s.Path(a.Scratch)
	data, err := vfs.ReadFile(s.fsys, p)
	if err != nil {
		return nil, herrors.MissingScratch(p, err)
	}
	if err := vfs.RemoveIfExists(s.fsys, p); err != nil {
		return nil, herrors.CleanupFailed(p, err)
	}
	return data, nil
}

// Release frees the slot. Scratch files not drained, for example because an
// earlier artifact of the same fixture failed, are removed here.
func (s *Slot) Release() {
	if !s.held {
		return
	}
	for _, name := range s.mode.ScratchFiles() {
		p := s.Path(name)
		if err := vfs.RemoveIfExists(s.fsys, p); err != nil {
			s.log.Warn("%v", herrors.CleanupFailed(p, err))
		}
	}
	s.held = false
}

// Cleanup removes every scratch file of the mode if present. It is
// idempotent and never fails the run; problems are returned for logging.
func (s *Slot) Cleanup() []error {
	s.held = false
	var errs []error
	for _, name := range s.mode.ScratchFiles() {
		p := s.Path(name)
		if err := vfs.RemoveIfExists(s.fsys, p); err != nil {
			errs = append(errs, herrors.CleanupFailed(p, err))
		}
	}
	return errs
}
