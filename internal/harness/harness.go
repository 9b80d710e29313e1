// Package harness drives an external compiler over a directory of input
// fixtures and archives or verifies the text each pipeline stage produces.
//
// A run is strictly sequential. The compiler writes every fixture's output
// to the same scratch file names, so each fixture is invoked, drained and
// released before the next one starts (see Slot).
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pascalc/stagecheck/internal/vfs"
)

// Logger is the subset of cli.Logger the harness uses.
type Logger interface {
	Info(format string, args ...interface{})
	Debug(format string, args ...interface{})
	Warn(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}

func logger(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

// Options control a harness run.
type Options struct {
	Mode   Mode
	Action Action
	// FixtureDir holds the <name>.in inputs and their golden files.
	FixtureDir string
	// ScratchDir is the tool's working directory. Defaults to FixtureDir.
	ScratchDir string
	// Filter keeps only fixtures whose name matches.
	Filter  *regexp.Regexp
	Invoker Invoker
	// FS defaults to the host filesystem. It must see the same files the
	// Invoker's tool writes.
	FS     vfs.FileSystem
	Logger Logger
	// Out receives one line per fixture. Nil discards them.
	Out   io.Writer
	Color bool
	// ShowDiff prints the line diff under each failed fixture.
	ShowDiff bool
}

// Harness runs one mode and action over a fixture directory.
type Harness struct {
	opts Options
	log  Logger
}

// New validates opts and fills in defaults.
func New(opts Options) (*Harness, error) {
	if opts.Invoker == nil {
		return nil, errors.New("harness: no invoker configured")
	}
	if len(opts.Mode.Artifacts) == 0 {
		return nil, errors.New("harness: mode has no artifacts")
	}
	if err := opts.Mode.validate(); err != nil {
		return nil, err
	}
	if opts.Action != ActionGenerate && opts.Action != ActionVerify {
		return nil, fmt.Errorf("harness: unknown action %v", opts.Action)
	}
	if opts.FixtureDir == "" {
		opts.FixtureDir = "."
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = opts.FixtureDir
	}
	if opts.FS == nil {
		opts.FS = vfs.NewOS()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Harness{opts: opts, log: logger(opts.Logger)}, nil
}

// Run performs one full discovery pass. Per-fixture problems are recorded in
// the report and never stop the pass; only a fixture directory that cannot
// be listed, or cancellation of ctx, ends it early. The mode's scratch files
// are removed before Run returns in every case.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		Mode:    h.opts.Mode.Name,
		Action:  h.opts.Action.String(),
		Started: time.Now(),
	}
	defer func() { report.Duration = time.Since(report.Started) }()

	fixtures, err := Discover(h.opts.FS, h.opts.FixtureDir, h.opts.Filter)
	if err != nil {
		return report, err
	}
	h.log.Info("%s %s: %d fixture(s) in %s", h.opts.Action, h.opts.Mode.Name, len(fixtures), h.opts.FixtureDir)

	slot := NewSlot(h.opts.FS, h.opts.ScratchDir, h.opts.Mode, h.log)
	defer func() {
		for _, err := range slot.Cleanup() {
			h.log.Warn("%v", err)
		}
	}()

	for _, f := range fixtures {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := h.runFixture(ctx, slot, f)
		if res.Err != nil && ctx.Err() != nil && errors.Is(res.Err, ctx.Err()) {
			return report, res.Err
		}
		report.Add(res)
		h.print(res)
	}
	return report, nil
}

func (h *Harness) runFixture(ctx context.Context, slot *Slot, f Fixture) (res Result) {
	res = Result{Fixture: f}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	fail := func(err error) Result {
		res.Status = StatusError
		res.Err = err
		return res
	}

	if err := slot.Acquire(); err != nil {
		return fail(err)
	}
	defer slot.Release()

	inv := Invocation{Flag: h.opts.Mode.Flag, Input: h.toolInput(f), Dir: h.opts.ScratchDir}
	if err := h.opts.Invoker.Invoke(ctx, inv); err != nil {
		return fail(err)
	}

	captured := make([][]byte, len(h.opts.Mode.Artifacts))
	for i, a := range h.opts.Mode.Artifacts {
		data, err := slot.Drain(a)
		if err != nil {
			return fail(err)
		}
		captured[i] = data
	}
	slot.Release()

	switch h.opts.Action {
	case ActionGenerate:
		for i, a := range h.opts.Mode.Artifacts {
			p, err := Archive(h.opts.FS, f, a, captured[i])
			if err != nil {
				return fail(err)
			}
			res.Artifacts = append(res.Artifacts, p)
		}
		res.Status = StatusGenerated
	case ActionVerify:
		res.Status = StatusPassed
		for i, a := range h.opts.Mode.Artifacts {
			c, err := Compare(h.opts.FS, f, a, captured[i])
			if err != nil {
				return fail(err)
			}
			res.Comparisons = append(res.Comparisons, c)
			if !c.Equal {
				res.Status = StatusFailed
				res.Artifacts = append(res.Artifacts, c.FailurePath)
			}
		}
	}
	return res
}

// toolInput is the input path as the tool should see it from its working
// directory: the bare file name when fixtures and scratch share a directory.
func (h *Harness) toolInput(f Fixture) string {
	if rel, err := filepath.Rel(h.opts.ScratchDir, f.InputPath()); err == nil {
		return rel
	}
	if abs, err := filepath.Abs(f.InputPath()); err == nil {
		return abs
	}
	return f.InputPath()
}

func (h *Harness) print(res Result) {
	w := h.opts.Out
	switch res.Status {
	case StatusPassed:
		fmt.Fprintln(w, h.paint(green, fmt.Sprintf("Test \"%s\" passed", res.Fixture.InputFile())))
	case StatusFailed:
		fmt.Fprintln(w, h.paint(red, fmt.Sprintf("Test \"%s\" failed", res.Fixture.InputFile())))
		for _, c := range res.Comparisons {
			if c.Equal {
				continue
			}
			h.log.Info("%s: actual output kept in %s", res.Fixture.InputFile(), c.FailurePath)
			if h.opts.ShowDiff && c.Diff != "" {
				fmt.Fprintf(w, "  %s (-%s +%s):\n", c.Artifact.Kind, filepath.Base(res.Fixture.ArtifactPath(c.Artifact.Ext)), filepath.Base(c.FailurePath))
				for _, line := range strings.Split(strings.TrimRight(c.Diff, "\n"), "\n") {
					fmt.Fprintf(w, "  %s\n", line)
				}
			}
		}
	case StatusError:
		fmt.Fprintln(w, h.paint(yellow, fmt.Sprintf("Test \"%s\" error: %v", res.Fixture.InputFile(), res.Err)))
	case StatusGenerated:
		names := make([]string, len(res.Artifacts))
		for i, p := range res.Artifacts {
			names[i] = filepath.Base(p)
		}
		h.log.Info("%s -> %s", res.Fixture.InputFile(), strings.Join(names, ", "))
	}
}

const (
	green  = "\x1b[32m"
	red    = "\x1b[31m"
	yellow = "\x1b[33m"
	bold   = "\x1b[1m"
	reset  = "\x1b[0m"
)

func (h *Harness) paint(color, s string) string {
	if !h.opts.Color {
		return s
	}
	return color + s + reset
}
