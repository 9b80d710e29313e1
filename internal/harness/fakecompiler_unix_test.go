//go:build unix

package harness

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/pascalc/stagecheck/internal/errors"
)

func killSelf() {
	_ = syscall.Kill(os.Getpid(), syscall.SIGKILL)
	time.Sleep(time.Minute)
}

func TestVerify_SignalDeathIsNamed(t *testing.T) {
	dir := fixtureDir(t, `
-- boom.in --
signal
`)
	rep, _ := runHarness(t, ModeExpr, ActionVerify, dir, nil)
	require.Len(t, rep.Results, 1)
	res := rep.Results[0]
	assert.Equal(t, StatusError, res.Status)
	assert.True(t, errors.Is(res.Err, &herrors.StandardError{Category: herrors.CategoryToolInvocation, Code: "KILLED"}))
	assert.Contains(t, res.Err.Error(), "SIGKILL")
}

func TestInvoker_RelativeToolWithSeparateFixtureDir(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	t.Chdir(t.TempDir())
	require.NoError(t, os.Mkdir("bin", 0o755))
	require.NoError(t, os.Symlink(exe, filepath.Join("bin", "pc")))
	require.NoError(t, os.Mkdir("fx", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("fx", "add.in"), []byte("3"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join("fx", "add.out"), []byte("3"), 0o644))

	rep, out := runHarness(t, ModeExpr, ActionVerify, "fx", func(o *Options) {
		o.Invoker = &ProcessInvoker{Tool: "./bin/pc", Env: []string{fakeCompilerEnv + "=1"}}
	})
	require.Len(t, rep.Results, 1)
	assert.NoError(t, rep.Results[0].Err)
	assert.Equal(t, "Test \"add.in\" passed\n", out)
}
