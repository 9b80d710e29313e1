package harness

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	herrors "github.com/pascalc/stagecheck/internal/errors"
)

// Invocation is one run of the compiler on one fixture with one mode flag.
type Invocation struct {
	Flag  string
	Input string // input path as passed to the tool, relative to Dir when possible
	Dir   string // working directory; the tool writes its scratch files here
}

// Invoker runs the external compiler. Invoke blocks until the tool exits.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) error
}

// ProcessInvoker runs the compiler as a child process.
type ProcessInvoker struct {
	Tool string
	// Timeout bounds one invocation; zero means no limit.
	Timeout time.Duration
	// LenientExit ignores the exit status, so a crashed or failing tool is
	// treated as a successful run and whatever scratch output exists is used.
	LenientExit bool
	// Env is appended to the parent environment.
	Env    []string
	Logger Logger
}

// Invoke runs `<Tool> <Flag> <Input>` in inv.Dir.
//
// Errors are *errors.StandardError of category TOOL_INVOCATION, except when
// ctx itself is cancelled, in which case ctx.Err() is returned.
func (p *ProcessInvoker) Invoke(ctx context.Context, inv Invocation) error {
	runCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, p.toolPath(), inv.Flag, inv.Input)
	cmd.Dir = inv.Dir
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	logger(p.Logger).Debug("%s %s %s: %v in %s", p.Tool, inv.Flag, inv.Input, exitSummary(err), time.Since(start).Round(time.Millisecond))
	if out := strings.TrimSpace(stdout.String()); out != "" {
		logger(p.Logger).Debug("tool stdout: %s", out)
	}
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return herrors.ToolTimedOut(p.Tool, runCtx.Err())
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return herrors.ToolStartFailed(p.Tool, err)
	}
	if p.LenientExit {
		logger(p.Logger).Debug("ignoring tool exit status: %v", err)
		return nil
	}
	msg := strings.TrimSpace(stderr.String())
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return herrors.ToolKilled(p.Tool, herrors.SignalName(ws.Signal()), msg)
	}
	return herrors.ToolExited(p.Tool, exitErr.ExitCode(), msg)
}

// toolPath anchors a relative tool path such as ./bin/pc to the current
// directory. exec would otherwise look for it under inv.Dir.
func (p *ProcessInvoker) toolPath() string {
	if filepath.IsAbs(p.Tool) || !strings.ContainsAny(p.Tool, "/"+string(filepath.Separator)) {
		return p.Tool
	}
	if abs, err := filepath.Abs(p.Tool); err == nil {
		return abs
	}
	return p.Tool
}

func exitSummary(err error) string {
	if err == nil {
		return "exit 0"
	}
	return err.Error()
}
