package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/pascalc/stagecheck/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, DefaultConfigFile)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfig_MissingImplicitFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), DefaultConfigFile), false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_MissingExplicitFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"), true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, herrors.ErrConfig))
}

func TestLoadConfig_ParsesAndResolves(t *testing.T) {
	p := writeConfig(t, `{
		"requires": ">=0.1.0",
		"tool": "./bin/pc",
		"fixture_dir": "Test/Parser",
		"timeout": "1m30s",
		"lenient_exit": true,
		"modes": {"expr": {"flag": "--expr", "scratch": {"output": "out.txt"}}}
	}`)
	cfg, err := LoadConfig(p, true)
	require.NoError(t, err)

	base := filepath.Dir(p)
	assert.Equal(t, filepath.Join(base, "bin/pc"), cfg.Tool)
	assert.Equal(t, filepath.Join(base, "Test/Parser"), cfg.FixtureDir)
	assert.Equal(t, "", cfg.ScratchDir)
	assert.Equal(t, 90*time.Second, time.Duration(cfg.Timeout))
	assert.True(t, cfg.LenientExit)
	assert.Equal(t, "--expr", cfg.Modes["expr"].Flag)
	assert.Equal(t, "out.txt", cfg.Modes["expr"].Scratch["output"])
}

func TestLoadConfig_ToolOnPathIsNotResolved(t *testing.T) {
	p := writeConfig(t, `{"tool": "pascalc"}`)
	cfg, err := LoadConfig(p, true)
	require.NoError(t, err)
	assert.Equal(t, "pascalc", cfg.Tool)
}

func TestLoadConfig_RejectsUnsatisfiedVersion(t *testing.T) {
	p := writeConfig(t, `{"requires": ">=99.0.0"}`)
	_, err := LoadConfig(p, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, herrors.ErrConfig))
	assert.Contains(t, err.Error(), Version)
}

func TestLoadConfig_RejectsBadInput(t *testing.T) {
	for name, body := range map[string]string{
		"json":       `{`,
		"duration":   `{"timeout": "soon"}`,
		"negative":   `{"timeout": "-1s"}`,
		"constraint": `{"requires": "not a constraint"}`,
		"color":      `{"color": "sometimes"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body), true)
			require.Error(t, err)
		})
	}
}

func TestDuration_MarshalsAsString(t *testing.T) {
	raw, err := json.Marshal(DefaultConfig())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "timeout")

	cfg := DefaultConfig()
	cfg.Timeout = Duration(5 * time.Second)
	raw, err = json.Marshal(cfg)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "5s", m["timeout"])
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintVersion(&buf, "stagecheck", false))
	assert.True(t, strings.HasPrefix(buf.String(), "stagecheck v"+Version+"\n"))

	buf.Reset()
	require.NoError(t, PrintVersion(&buf, "stagecheck", true))
	var out struct {
		Tool string      `json:"tool"`
		Info VersionInfo `json:"version_info"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "stagecheck", out.Tool)
	assert.Equal(t, Version, out.Info.Version)
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, false, false)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	l.Info("hidden")
	l.Debug("hidden")
	l.Warn("scratch %s left behind", "output.txt")
	assert.Equal(t, "[WARN] 03:04:05: scratch output.txt left behind\n", buf.String())

	buf.Reset()
	l.Verbose = true
	l.Info("shown")
	l.Debug("still hidden")
	assert.Equal(t, "[INFO] 03:04:05: shown\n", buf.String())

	buf.Reset()
	l.Color = true
	l.Error("boom")
	assert.Equal(t, "\x1b[31m[ERROR]\x1b[0m 03:04:05: boom\n", buf.String())
}

func TestParseColorMode(t *testing.T) {
	m, err := ParseColorMode("")
	require.NoError(t, err)
	assert.Equal(t, ColorAuto, m)
	_, err = ParseColorMode("rainbow")
	assert.Error(t, err)
	assert.True(t, UseColor(ColorAlways, nil))
	assert.False(t, UseColor(ColorNever, os.Stdout))
	assert.False(t, UseColor(ColorAuto, nil))
}
