package harness

import (
	"fmt"
	"sort"
	"strings"
)

// ArtifactKind names one kind of stage output the tool writes to a scratch file.
type ArtifactKind string

const (
	KindTree   ArtifactKind = "tree"
	KindAsm    ArtifactKind = "asm"
	KindOutput ArtifactKind = "output"
)

// Default scratch file names written by the compiler into its working directory.
const (
	ScratchTree   = "syntax_tree.txt"
	ScratchAsm    = "asm_code.txt"
	ScratchOutput = "output.txt"
)

// Artifact binds a kind of output to the scratch file the tool writes it to
// and to the extension of the fixture file it is archived or compared as.
type Artifact struct {
	Kind    ArtifactKind
	Scratch string
	Ext     string
}

// Mode is one way of running the compiler over a fixture.
type Mode struct {
	Name      string
	Flag      string
	Artifacts []Artifact
}

// Built-in modes.
var (
	// ModeCodegen runs the full parse and code generation.
	ModeCodegen = Mode{
		Name: "codegen",
		Flag: "-g",
		Artifacts: []Artifact{
			{Kind: KindTree, Scratch: ScratchTree, Ext: "tree"},
			{Kind: KindAsm, Scratch: ScratchAsm, Ext: "asm"},
		},
	}
	// ModeLexer runs the tokenizer only.
	ModeLexer = Mode{
		Name:      "lexer",
		Flag:      "-l",
		Artifacts: []Artifact{{Kind: KindOutput, Scratch: ScratchOutput, Ext: "out"}},
	}
	// ModeExpr runs the expression subset of the parser.
	ModeExpr = Mode{
		Name:      "expr",
		Flag:      "-exp",
		Artifacts: []Artifact{{Kind: KindOutput, Scratch: ScratchOutput, Ext: "out"}},
	}
)

var modes = map[string]Mode{
	ModeCodegen.Name: ModeCodegen,
	ModeLexer.Name:   ModeLexer,
	ModeExpr.Name:    ModeExpr,
}

// ModeNames lists the built-in mode names in lexical order.
func ModeNames() []string {
	names := make([]string, 0, len(modes))
	for n := range modes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupMode returns a copy of the named built-in mode.
func LookupMode(name string) (Mode, error) {
	m, ok := modes[name]
	if !ok {
		return Mode{}, fmt.Errorf("unknown mode %q (want one of %s)", name, strings.Join(ModeNames(), ", "))
	}
	return m.clone(), nil
}

func (m Mode) clone() Mode {
	m.Artifacts = append([]Artifact(nil), m.Artifacts...)
	return m
}

// WithOverrides returns m with the tool flag and the scratch names replaced.
// Empty values keep the defaults; scratch is keyed by artifact kind.
func (m Mode) WithOverrides(flag string, scratch map[string]string) (Mode, error) {
	out := m.clone()
	if flag != "" {
		out.Flag = flag
	}
	for kind, name := range scratch {
		found := false
		for i := range out.Artifacts {
			if string(out.Artifacts[i].Kind) == kind {
				if name != "" {
					out.Artifacts[i].Scratch = name
				}
				found = true
			}
		}
		if !found {
			return Mode{}, fmt.Errorf("mode %s has no %q artifact", m.Name, kind)
		}
	}
	if err := out.validate(); err != nil {
		return Mode{}, err
	}
	return out, nil
}

// ScratchFiles returns the distinct scratch file names the mode uses.
func (m Mode) ScratchFiles() []string {
	seen := make(map[string]bool, len(m.Artifacts))
	out := make([]string, 0, len(m.Artifacts))
	for _, a := range m.Artifacts {
		if !seen[a.Scratch] {
			seen[a.Scratch] = true
			out = append(out, a.Scratch)
		}
	}
	return out
}

func (m Mode) validate() error {
	seen := make(map[string]ArtifactKind, len(m.Artifacts))
	for _, a := range m.Artifacts {
		if a.Scratch == "" || strings.ContainsAny(a.Scratch, `/\`) {
			return fmt.Errorf("mode %s: scratch name %q must be a plain file name", m.Name, a.Scratch)
		}
		if prev, dup := seen[a.Scratch]; dup {
			return fmt.Errorf("mode %s: %s and %s share scratch file %s", m.Name, prev, a.Kind, a.Scratch)
		}
		seen[a.Scratch] = a.Kind
	}
	return nil
}

// Action selects what happens to captured output.
type Action int

const (
	// ActionGenerate archives the output as the new golden reference.
	ActionGenerate Action = iota
	// ActionVerify compares the output with the archived golden reference.
	ActionVerify
)

func (a Action) String() string {
	switch a {
	case ActionGenerate:
		return "generate"
	case ActionVerify:
		return "verify"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}
