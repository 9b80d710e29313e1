// Command stagecheck archives and verifies the text output of a compiler's
// pipeline stages against golden files kept next to each input fixture.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/pascalc/stagecheck/internal/cli"
	"github.com/pascalc/stagecheck/internal/harness"
)

const toolName = "stagecheck"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return cli.ExitUsage
	}

	sub, args := args[0], args[1:]
	switch sub {
	case "help", "-h", "--help":
		usage(stdout)
		return cli.ExitOK
	case "version", "-version", "--version":
		fs := flag.NewFlagSet("version", flag.ContinueOnError)
		fs.SetOutput(stderr)
		jsonOut := fs.Bool("json", false, "print version information as JSON")
		if err := fs.Parse(args); err != nil {
			return cli.ExitUsage
		}
		if err := cli.PrintVersion(stdout, toolName, *jsonOut); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return cli.ExitFailure
		}
		return cli.ExitOK
	case "generate":
		return runOnce(ctx, sub, harness.ActionGenerate, args, stdout, stderr)
	case "verify":
		return runOnce(ctx, sub, harness.ActionVerify, args, stdout, stderr)
	case "watch":
		s, log, code := setup(sub, harness.ActionVerify, args, stdout, stderr)
		if s == nil {
			return code
		}
		if err := runWatch(ctx, s, stdout, log); err != nil {
			log.Error("%v", err)
			return cli.ExitFailure
		}
		return cli.ExitOK
	}

	fmt.Fprintf(stderr, "unknown command %q\n\n", sub)
	usage(stderr)
	return cli.ExitUsage
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `Usage: %s <command> [flags]

Commands:
  generate   run the compiler over every fixture and archive its output as golden files
  verify     run the compiler over every fixture and compare its output with the golden files
  watch      verify, then verify again whenever a fixture, golden file or the compiler changes
  version    print version information (-json for JSON)

Modes (-mode):
  %s

Run '%s <command> -h' for the flags of a command.
`, toolName, strings.Join(harness.ModeNames(), ", "), toolName)
}

// usageError marks problems with the command line itself.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...interface{}) error {
	return usageError{fmt.Errorf(format, args...)}
}

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		return cli.ExitUsage
	}
	return cli.ExitFailure
}

// settings is the resolved configuration of one command: the config file
// with the explicitly given flags applied on top.
type settings struct {
	cfg    *cli.Config
	action harness.Action
	mode   harness.Mode
	filter *regexp.Regexp
	color  bool

	// watch only
	debounce time.Duration
	poll     time.Duration
}

type flagValues struct {
	config     string
	mode       string
	tool       string
	dir        string
	scratchDir string
	run        string
	timeout    time.Duration
	lenient    bool
	jsonReport string
	junit      string
	failures   string
	color      string
	verbose    bool
	debug      bool
	debounce   time.Duration
	poll       time.Duration
}

func loadSettings(name string, action harness.Action, args []string, stdout, stderr io.Writer) (*settings, error) {
	var f flagValues
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", "", "configuration file (default ./"+cli.DefaultConfigFile+" if present)")
	fs.StringVar(&f.mode, "mode", "", "compiler mode: "+strings.Join(harness.ModeNames(), ", ")+" (default "+defaultMode(action)+")")
	fs.StringVar(&f.tool, "tool", "", "path of the compiler under test")
	fs.StringVar(&f.dir, "dir", "", "fixture directory (default .)")
	fs.StringVar(&f.scratchDir, "scratch-dir", "", "working directory of the compiler (default: the fixture directory)")
	fs.StringVar(&f.run, "run", "", "regexp selecting fixtures by base name")
	fs.DurationVar(&f.timeout, "timeout", 0, "limit for one compiler invocation (e.g. 30s; 0 = none)")
	fs.BoolVar(&f.lenient, "lenient-exit", false, "ignore the compiler's exit status")
	fs.StringVar(&f.jsonReport, "json", "", "write a JSON summary to this file")
	fs.StringVar(&f.junit, "junit", "", "write a JUnit XML report to this file")
	fs.StringVar(&f.failures, "failures-archive", "", "write expected and actual text of every mismatch to this txtar file")
	fs.StringVar(&f.color, "color", "", "colorize output: auto, always or never")
	fs.BoolVar(&f.verbose, "v", false, "verbose output, including diffs of failed fixtures")
	fs.BoolVar(&f.debug, "debug", false, "debug output, including every compiler invocation")
	if name == "watch" {
		fs.DurationVar(&f.debounce, "debounce", 200*time.Millisecond, "quiet period after a change before verifying again")
		fs.DurationVar(&f.poll, "poll", 0, "poll for changes at this interval instead of using OS notifications")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, usageError{err}
	}
	if fs.NArg() > 0 {
		return nil, usagef("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfgPath, explicit := f.config, f.config != ""
	if !explicit {
		cfgPath = cli.DefaultConfigFile
	}
	cfg, err := cli.LoadConfig(cfgPath, explicit)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "mode":
			cfg.Mode = f.mode
		case "tool":
			cfg.Tool = f.tool
		case "dir":
			cfg.FixtureDir = f.dir
		case "scratch-dir":
			cfg.ScratchDir = f.scratchDir
		case "run":
			cfg.Run = f.run
		case "timeout":
			cfg.Timeout = cli.Duration(f.timeout)
		case "lenient-exit":
			cfg.LenientExit = f.lenient
		case "json":
			cfg.JSONReport = f.jsonReport
		case "junit":
			cfg.JUnitReport = f.junit
		case "failures-archive":
			cfg.FailuresArchive = f.failures
		case "color":
			cfg.Color = f.color
		case "v":
			cfg.Verbose = f.verbose
		case "debug":
			cfg.Debug = f.debug
		}
	})

	colorMode, err := cli.ParseColorMode(cfg.Color)
	if err != nil {
		return nil, usageError{err}
	}
	if f.timeout < 0 {
		return nil, usagef("-timeout must not be negative")
	}
	if strings.TrimSpace(cfg.Tool) == "" {
		return nil, usagef("no compiler given: use -tool or set \"tool\" in %s", cli.DefaultConfigFile)
	}

	if cfg.Mode == "" {
		cfg.Mode = defaultMode(action)
	}
	mode, err := harness.LookupMode(cfg.Mode)
	if err != nil {
		return nil, usageError{err}
	}
	if ov, ok := cfg.Modes[mode.Name]; ok {
		if mode, err = mode.WithOverrides(ov.Flag, ov.Scratch); err != nil {
			return nil, err
		}
	}

	s := &settings{
		cfg:      cfg,
		action:   action,
		mode:     mode,
		color:    cli.UseColor(colorMode, asFile(stdout)),
		debounce: f.debounce,
		poll:     f.poll,
	}
	if cfg.Run != "" {
		if s.filter, err = regexp.Compile(cfg.Run); err != nil {
			return nil, usagef("invalid -run pattern: %v", err)
		}
	}
	return s, nil
}

// defaultMode pairs each action with the mode it historically ran in.
func defaultMode(action harness.Action) string {
	if action == harness.ActionGenerate {
		return harness.ModeCodegen.Name
	}
	return harness.ModeExpr.Name
}

func asFile(w io.Writer) *os.File {
	f, _ := w.(*os.File)
	return f
}

// setup resolves the settings and the logger of a command. A nil settings
// means the command is over and code is its exit status.
func setup(name string, action harness.Action, args []string, stdout, stderr io.Writer) (*settings, *cli.Logger, int) {
	s, err := loadSettings(name, action, args, stdout, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil, cli.ExitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, nil, exitCode(err)
	}
	log := cli.NewLoggerTo(stderr, s.cfg.Verbose, s.cfg.Debug)
	colorMode, _ := cli.ParseColorMode(s.cfg.Color)
	log.Color = cli.UseColor(colorMode, asFile(stderr))
	log.Debug("config: tool=%s mode=%s flag=%s fixtures=%s", s.cfg.Tool, s.mode.Name, s.mode.Flag, s.cfg.FixtureDir)
	return s, log, cli.ExitOK
}

func runOnce(ctx context.Context, name string, action harness.Action, args []string, stdout, stderr io.Writer) int {
	s, log, code := setup(name, action, args, stdout, stderr)
	if s == nil {
		return code
	}
	rep, err := pass(ctx, s, stdout, log)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("interrupted")
		} else {
			log.Error("%v", err)
		}
		return cli.ExitFailure
	}
	if !rep.OK() {
		return cli.ExitFailure
	}
	return cli.ExitOK
}

func newHarness(s *settings, stdout io.Writer, log *cli.Logger) (*harness.Harness, error) {
	inv := &harness.ProcessInvoker{
		Tool:        s.cfg.Tool,
		Timeout:     time.Duration(s.cfg.Timeout),
		LenientExit: s.cfg.LenientExit,
		Logger:      log,
	}
	return harness.New(harness.Options{
		Mode:       s.mode,
		Action:     s.action,
		FixtureDir: s.cfg.FixtureDir,
		ScratchDir: s.cfg.ScratchDir,
		Filter:     s.filter,
		Invoker:    inv,
		Logger:     log,
		Out:        stdout,
		Color:      s.color,
		ShowDiff:   s.cfg.Verbose,
	})
}

// pass runs the harness once, prints the summary and writes the requested
// report files. A report that cannot be written fails the pass.
func pass(ctx context.Context, s *settings, stdout io.Writer, log *cli.Logger) (*harness.Report, error) {
	h, err := newHarness(s, stdout, log)
	if err != nil {
		return nil, err
	}
	rep, err := h.Run(ctx)
	if err != nil {
		return rep, err
	}
	rep.WriteSummary(stdout, s.color)

	reports := []struct {
		path  string
		write func(io.Writer) error
	}{
		{s.cfg.JSONReport, rep.WriteJSON},
		{s.cfg.JUnitReport, rep.WriteJUnit},
		{s.cfg.FailuresArchive, rep.WriteFailureArchive},
	}
	for _, r := range reports {
		if r.path == "" {
			continue
		}
		if err := harness.WriteFile(r.path, r.write); err != nil {
			return rep, fmt.Errorf("write report %s: %w", r.path, err)
		}
		log.Info("wrote %s", r.path)
	}
	return rep, nil
}
