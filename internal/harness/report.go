package harness

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/tools/txtar"

	herrors "github.com/pascalc/stagecheck/internal/errors"
)

// Status is the outcome of one fixture.
type Status string

const (
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusError     Status = "error"
	StatusGenerated Status = "generated"
)

// Result is the outcome of one fixture in one run.
type Result struct {
	Fixture Fixture
	Status  Status
	// Artifacts lists archived golden files (generate) or failure files (verify).
	Artifacts   []string
	Comparisons []Comparison
	Err         error
	Duration    time.Duration
}

// Report aggregates the results of one run, in fixture order.
type Report struct {
	Mode      string
	Action    string
	Started   time.Time
	Duration  time.Duration
	Results   []Result
	Passed    int
	Failed    int
	Errored   int
	Generated int
}

// Add records a result.
func (r *Report) Add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Status {
	case StatusPassed:
		r.Passed++
	case StatusFailed:
		r.Failed++
	case StatusError:
		r.Errored++
	case StatusGenerated:
		r.Generated++
	}
}

// Total is the number of fixtures processed.
func (r *Report) Total() int { return len(r.Results) }

// OK reports whether no fixture failed or errored.
func (r *Report) OK() bool { return r.Failed == 0 && r.Errored == 0 }

// Classification maps fixture names to their status; two runs over the same
// fixtures with the same tool produce equal classifications.
func (r *Report) Classification() map[string]Status {
	out := make(map[string]Status, len(r.Results))
	for _, res := range r.Results {
		out[res.Fixture.Name] = res.Status
	}
	return out
}

// WriteSummary prints the closing summary line.
func (r *Report) WriteSummary(w io.Writer, color bool) {
	paint := func(c, s string) string {
		if color {
			return c + s + reset
		}
		return s
	}
	if r.Action == ActionGenerate.String() {
		fmt.Fprintf(w, "\n%s %d fixtures, %s %d, %s %d in %.2fs\n",
			paint(bold, "SUMMARY:"), r.Total(),
			paint(green, "generated:"), r.Generated,
			paint(yellow, "errors:"), r.Errored,
			r.Duration.Seconds())
		return
	}
	fmt.Fprintf(w, "\n%s %d fixtures, %s %d, %s %d, %s %d in %.2fs\n",
		paint(bold, "SUMMARY:"), r.Total(),
		paint(green, "passed:"), r.Passed,
		paint(red, "failed:"), r.Failed,
		paint(yellow, "errors:"), r.Errored,
		r.Duration.Seconds())
}

type jsonFixture struct {
	Name       string   `json:"name"`
	Input      string   `json:"input"`
	Status     Status   `json:"status"`
	DurationMs int64    `json:"duration_ms"`
	Artifacts  []string `json:"artifacts,omitempty"`
	Error      string   `json:"error,omitempty"`
	ErrorKind  string   `json:"error_kind,omitempty"`
}

type jsonSummary struct {
	Mode       string        `json:"mode"`
	Action     string        `json:"action"`
	Total      int           `json:"total"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Errors     int           `json:"errors"`
	Generated  int           `json:"generated"`
	DurationMs int64         `json:"duration_ms"`
	Fixtures   []jsonFixture `json:"fixtures"`
}

// WriteJSON writes a machine-readable summary.
func (r *Report) WriteJSON(w io.Writer) error {
	sm := jsonSummary{
		Mode: r.Mode, Action: r.Action,
		Total: r.Total(), Passed: r.Passed, Failed: r.Failed, Errors: r.Errored, Generated: r.Generated,
		DurationMs: r.Duration.Milliseconds(),
		Fixtures:   make([]jsonFixture, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		jf := jsonFixture{
			Name:       res.Fixture.Name,
			Input:      res.Fixture.InputFile(),
			Status:     res.Status,
			DurationMs: res.Duration.Milliseconds(),
			Artifacts:  res.Artifacts,
		}
		if res.Err != nil {
			jf.Error = res.Err.Error()
			if cat, ok := herrors.CategoryOf(res.Err); ok {
				jf.ErrorKind = string(cat)
			}
		}
		sm.Fixtures = append(sm.Fixtures, jf)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sm)
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Error     *junitFailure `xml:"error,omitempty"`
}

type junitSuite struct {
	XMLName  xml.Name    `xml:"testsuite"`
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Errors   int         `xml:"errors,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

// WriteJUnit writes a JUnit XML test suite for CI consumption.
func (r *Report) WriteJUnit(w io.Writer) error {
	suite := junitSuite{
		Name:     "stagecheck." + r.Mode,
		Tests:    r.Total(),
		Failures: r.Failed,
		Errors:   r.Errored,
		Time:     fmt.Sprintf("%.3f", r.Duration.Seconds()),
	}
	for _, res := range r.Results {
		tc := junitCase{
			Name:      res.Fixture.InputFile(),
			Classname: "stagecheck." + r.Mode,
			Time:      fmt.Sprintf("%.3f", res.Duration.Seconds()),
		}
		switch res.Status {
		case StatusFailed:
			f := &junitFailure{Message: "output differs from golden reference", Type: "mismatch"}
			for _, c := range res.Comparisons {
				if !c.Equal {
					f.Content += fmt.Sprintf("%s -> %s\n%s", c.Artifact.Kind, c.FailurePath, c.Diff)
				}
			}
			tc.Failure = f
		case StatusError:
			kind := "error"
			if cat, ok := herrors.CategoryOf(res.Err); ok {
				kind = string(cat)
			}
			tc.Error = &junitFailure{Message: res.Err.Error(), Type: kind}
		}
		suite.Cases = append(suite.Cases, tc)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(suite); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// FailureArchive bundles the expected and actual text of every mismatch into
// one txtar archive, as <name>.<ext> and <name>_failed.<ext> entries.
//
// txtar ends every non-empty file with a newline. Entries whose text lacks
// one are listed in the archive comment, so the on-disk files stay the
// byte-exact reference.
func (r *Report) FailureArchive() *txtar.Archive {
	a := &txtar.Archive{}
	var unterminated []string
	add := func(name string, data []byte) {
		if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
			unterminated = append(unterminated, name)
		}
		a.Files = append(a.Files, txtar.File{Name: name, Data: data})
	}
	for _, res := range r.Results {
		for _, c := range res.Comparisons {
			if c.Equal {
				continue
			}
			add(filepath.Base(res.Fixture.ArtifactPath(c.Artifact.Ext)), c.Expected)
			add(filepath.Base(c.FailurePath), c.Actual)
		}
	}
	comment := fmt.Sprintf("stagecheck %s %s: %d failed of %d\n", r.Action, r.Mode, r.Failed, r.Total())
	if len(unterminated) > 0 {
		comment += fmt.Sprintf("no final newline in: %s\n", strings.Join(unterminated, ", "))
	}
	a.Comment = []byte(comment)
	return a
}

// WriteFile creates path and writes one of the report encodings to it.
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteFailureArchive writes FailureArchive to w.
func (r *Report) WriteFailureArchive(w io.Writer) error {
	_, err := w.Write(txtar.Format(r.FailureArchive()))
	return err
}
