package harness

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	herrors "github.com/pascalc/stagecheck/internal/errors"
	"github.com/pascalc/stagecheck/internal/vfs"
)

// InputExt is the extension of fixture input files.
const InputExt = ".in"

// Fixture is one named test case: <Name>.in plus its golden files in Dir.
type Fixture struct {
	Name string
	Dir  string
}

// InputFile is the base name of the input, e.g. "add.in".
func (f Fixture) InputFile() string { return f.Name + InputExt }

// InputPath is the path of the input file.
func (f Fixture) InputPath() string { return filepath.Join(f.Dir, f.InputFile()) }

// ArtifactPath is the golden file for ext, e.g. <Dir>/add.out.
func (f Fixture) ArtifactPath(ext string) string {
	return filepath.Join(f.Dir, f.Name+"."+ext)
}

// FailurePath is where a mismatching output for ext is kept, e.g. <Dir>/add_failed.out.
func (f Fixture) FailurePath(ext string) string {
	return filepath.Join(f.Dir, f.Name+"_failed."+ext)
}

// Discover lists the fixtures in dir: one per regular file named <base>.in
// with a non-empty base. Other entries are ignored. Fixtures are returned
// sorted by name. A non-nil filter keeps only names it matches.
func Discover(fsys vfs.FileSystem, dir string, filter *regexp.Regexp) ([]Fixture, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, herrors.DiscoveryFailed(dir, err)
	}
	var out []Fixture
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), InputExt)
		if !ok || name == "" {
			continue
		}
		if filter != nil && !filter.MatchString(name) {
			continue
		}
		out = append(out, Fixture{Name: name, Dir: dir})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
