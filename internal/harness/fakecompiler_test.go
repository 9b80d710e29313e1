package harness

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

const fakeCompilerEnv = "STAGECHECK_FAKE_COMPILER"

func TestMain(m *testing.M) {
	if os.Getenv(fakeCompilerEnv) == "1" {
		os.Exit(fakeCompiler(os.Args[1:]))
	}
	os.Exit(m.Run())
}

// fakeCompiler stands in for the real compiler. It echoes the input into the
// scratch files of the requested mode. Inputs starting with a directive
// change its behavior:
//
//	crash             exit 3 without writing anything
//	fail-after-write  write output, then exit 1
//	partial           -g only: write the tree but no assembly
//	sleep             hang for 10s
//	signal            die from SIGKILL (unix)
//
// It refuses to run while any scratch file from a previous invocation is
// still present.
func fakeCompiler(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: fake <flag> <file>")
		return 2
	}
	flag, input := args[0], args[1]
	for _, s := range []string{ScratchOutput, ScratchTree, ScratchAsm, "custom_out.txt"} {
		if _, err := os.Stat(s); err == nil {
			fmt.Fprintf(os.Stderr, "stale scratch file %s\n", s)
			return 9
		}
	}
	src, err := os.ReadFile(input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	text := string(src)

	switch {
	case strings.HasPrefix(text, "crash"):
		fmt.Fprintln(os.Stderr, "internal compiler error")
		return 3
	case strings.HasPrefix(text, "sleep"):
		time.Sleep(10 * time.Second)
	case strings.HasPrefix(text, "signal"):
		killSelf()
	}

	write := func(name, data string) {
		if err := os.WriteFile(name, []byte(data), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	switch flag {
	case "-exp", "-l":
		write(ScratchOutput, text)
	case "--expr":
		write("custom_out.txt", text)
	case "-g":
		write(ScratchTree, "tree:"+text)
		if !strings.HasPrefix(text, "partial") {
			write(ScratchAsm, "asm:"+text)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown flag %s\n", flag)
		return 2
	}
	if strings.HasPrefix(text, "fail-after-write") {
		return 1
	}
	return 0
}
