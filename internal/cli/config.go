package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	semver "github.com/Masterminds/semver/v3"

	herrors "github.com/pascalc/stagecheck/internal/errors"
)

// DefaultConfigFile is looked up in the working directory when -config is not given.
const DefaultConfigFile = "stagecheck.json"

// Duration is a time.Duration that reads and writes as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// ModeOverride replaces the tool flag and scratch file names of one mode.
// Scratch is keyed by artifact kind ("tree", "asm", "output").
type ModeOverride struct {
	Flag    string            `json:"flag,omitempty"`
	Scratch map[string]string `json:"scratch,omitempty"`
}

// Config is the harness configuration file. Command-line flags override it.
type Config struct {
	// Requires is a semver constraint on the stagecheck version, e.g. ">=0.3".
	Requires        string                  `json:"requires,omitempty"`
	Tool            string                  `json:"tool"`
	FixtureDir      string                  `json:"fixture_dir"`
	ScratchDir      string                  `json:"scratch_dir,omitempty"`
	Mode            string                  `json:"mode,omitempty"`
	Run             string                  `json:"run,omitempty"`
	Timeout         Duration                `json:"timeout,omitempty"`
	LenientExit     bool                    `json:"lenient_exit,omitempty"`
	JSONReport      string                  `json:"json_report,omitempty"`
	JUnitReport     string                  `json:"junit_report,omitempty"`
	FailuresArchive string                  `json:"failures_archive,omitempty"`
	Color           string                  `json:"color,omitempty"`
	Verbose         bool                    `json:"verbose,omitempty"`
	Debug           bool                    `json:"debug,omitempty"`
	Modes           map[string]ModeOverride `json:"modes,omitempty"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		FixtureDir: ".",
		Color:      string(ColorAuto),
	}
}

// LoadConfig loads configuration from file. A missing file yields the
// defaults unless the path was given explicitly.
func LoadConfig(configPath string, explicit bool) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return config, nil
		}
		return nil, herrors.InvalidConfig(fmt.Sprintf("failed to read config file %s", configPath), err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, herrors.InvalidConfig(fmt.Sprintf("failed to parse config file %s", configPath), err)
	}

	config.resolvePaths(filepath.Dir(configPath))
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the version constraint and the scalar settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Requires) != "" {
		if err := CheckVersion(c.Requires); err != nil {
			return err
		}
	}
	if c.Timeout < 0 {
		return herrors.InvalidConfig("timeout must not be negative", nil)
	}
	if _, err := ParseColorMode(c.Color); err != nil {
		return herrors.InvalidConfig("invalid color setting", err)
	}
	return nil
}

// CheckVersion verifies that this build satisfies the semver constraint.
func CheckVersion(constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return herrors.InvalidConfig(fmt.Sprintf("invalid version constraint %q", constraint), err)
	}
	v, err := semver.NewVersion(Version)
	if err != nil {
		return herrors.InvalidConfig("invalid build version", err)
	}
	if ok, errs := c.Validate(v); !ok {
		msg := fmt.Sprintf("stagecheck %s does not satisfy %q", Version, constraint)
		if len(errs) > 0 {
			return herrors.InvalidConfig(msg, errs[0])
		}
		return herrors.InvalidConfig(msg, nil)
	}
	return nil
}

// resolvePaths makes relative directories (and a tool given as a relative
// path) relative to the directory holding the config file.
func (c *Config) resolvePaths(base string) {
	if base == "" || base == "." {
		return
	}
	join := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.FixtureDir = join(c.FixtureDir)
	c.ScratchDir = join(c.ScratchDir)
	if strings.ContainsRune(c.Tool, '/') || strings.ContainsRune(c.Tool, filepath.Separator) {
		c.Tool = join(c.Tool)
	}
}
