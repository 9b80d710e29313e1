package harness

import (
	"github.com/pascalc/stagecheck/internal/vfs"
)

// Archive writes data verbatim to the fixture's golden file for a and
// returns the path written.
func Archive(fsys vfs.FileSystem, f Fixture, a Artifact, data []byte) (string, error) {
	p := f.ArtifactPath(a.Ext)
	if err := vfs.WriteFile(fsys, p, data); err != nil {
		return "", err
	}
	return p, nil
}
