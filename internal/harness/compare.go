package harness

import (
	"bytes"
	"strings"

	"github.com/google/go-cmp/cmp"

	herrors "github.com/pascalc/stagecheck/internal/errors"
	"github.com/pascalc/stagecheck/internal/vfs"
)

// Comparison is the outcome of comparing one artifact with its golden file.
type Comparison struct {
	Artifact Artifact
	Equal    bool
	// FailurePath holds the actual output when Equal is false.
	FailurePath string
	// Diff is a line diff (-expected +actual) when Equal is false.
	Diff string
	// Expected and Actual are kept for mismatches only.
	Expected []byte
	Actual   []byte
}

// Compare checks actual against the fixture's golden file for a, byte for
// byte with no normalization of line endings or whitespace.
//
// On a mismatch the actual bytes are written to <name>_failed.<ext>. On a
// match a failure file left by an earlier run is removed. A golden file
// that cannot be read is a MISSING_EXPECTED error.
func Compare(fsys vfs.FileSystem, f Fixture, a Artifact, actual []byte) (Comparison, error) {
	expectedPath := f.ArtifactPath(a.Ext)
	expected, err := vfs.ReadFile(fsys, expectedPath)
	if err != nil {
		return Comparison{}, herrors.MissingExpected(expectedPath, err)
	}

	c := Comparison{Artifact: a, Equal: bytes.Equal(expected, actual)}
	failurePath := f.FailurePath(a.Ext)
	if c.Equal {
		if err := vfs.RemoveIfExists(fsys, failurePath); err != nil {
			return Comparison{}, err
		}
		return c, nil
	}

	if err := vfs.WriteFile(fsys, failurePath, actual); err != nil {
		return Comparison{}, err
	}
	c.FailurePath = failurePath
	c.Diff = LineDiff(expected, actual)
	c.Expected = expected
	c.Actual = actual
	return c, nil
}

// LineDiff renders the difference between two texts line by line. Line
// terminators are kept so that CRLF and missing final newlines show up.
func LineDiff(expected, actual []byte) string {
	return cmp.Diff(splitLines(expected), splitLines(actual))
}

func splitLines(b []byte) []string {
	if len(b) == 0 {
		return []string{}
	}
	return strings.SplitAfter(string(b), "\n")
}
