package harness

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLookupMode(t *testing.T) {
	for _, tc := range []struct {
		name    string
		flag    string
		scratch []string
		exts    []string
	}{
		{"codegen", "-g", []string{"syntax_tree.txt", "asm_code.txt"}, []string{"tree", "asm"}},
		{"lexer", "-l", []string{"output.txt"}, []string{"out"}},
		{"expr", "-exp", []string{"output.txt"}, []string{"out"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m, err := LookupMode(tc.name)
			if err != nil {
				t.Fatal(err)
			}
			if m.Flag != tc.flag {
				t.Errorf("flag = %q", m.Flag)
			}
			if diff := cmp.Diff(tc.scratch, m.ScratchFiles()); diff != "" {
				t.Errorf("scratch (-want +got):\n%s", diff)
			}
			var exts []string
			for _, a := range m.Artifacts {
				exts = append(exts, a.Ext)
			}
			if diff := cmp.Diff(tc.exts, exts); diff != "" {
				t.Errorf("exts (-want +got):\n%s", diff)
			}
		})
	}
	if _, err := LookupMode("optimizer"); err == nil {
		t.Fatal("expected unknown mode error")
	}
}

func TestWithOverrides(t *testing.T) {
	m, err := ModeCodegen.WithOverrides("", map[string]string{"asm": "code.s"})
	if err != nil {
		t.Fatal(err)
	}
	if m.Flag != "-g" {
		t.Fatalf("flag changed to %q", m.Flag)
	}
	if diff := cmp.Diff([]string{"syntax_tree.txt", "code.s"}, m.ScratchFiles()); diff != "" {
		t.Fatalf("scratch (-want +got):\n%s", diff)
	}
	if ModeCodegen.Artifacts[1].Scratch != ScratchAsm {
		t.Fatal("override leaked into the built-in mode")
	}

	for name, scratch := range map[string]map[string]string{
		"unknown kind": {"output": "x.txt"},
		"path":         {"tree": "../tree.txt"},
		"shared":       {"tree": "asm_code.txt"},
	} {
		if _, err := ModeCodegen.WithOverrides("", scratch); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestActionString(t *testing.T) {
	if ActionGenerate.String() != "generate" || ActionVerify.String() != "verify" {
		t.Fatal("unexpected action names")
	}
}
