package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apitest/packages/core/runner"
	"gopkg.in/yaml.v3"
)

// TAPFormatter formats test results in TAP (Test Anything Protocol) format
type TAPFormatter struct {
	writer    io.Writer
	testCount int
	results   []tapResult
}

type tapResult struct {
	number     int
	name       string
	passed     bool
	skipped    bool
	skipReason string
	diagnostic *tapDiagnostic
}

// tapDiagnostic is the YAML block emitted under a failing test.
type tapDiagnostic struct {
	Message  string       `yaml:"message"`
	Severity string       `yaml:"severity"`
	At       string       `yaml:"at,omitempty"`
	Failures []tapFailure `yaml:"failures,omitempty"`
}

type tapFailure struct {
	Subject  string `yaml:"subject"`
	Operator string `yaml:"operator"`
	Expected string `yaml:"expected"`
	Actual   string `yaml:"actual"`
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{
		writer:  os.Stdout,
		results: make([]tapResult, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		f.writer = w
	}
}

func (f *TAPFormatter) FormatResult(result *runner.RunResult) {
	for _, r := range result.Results {
		if r.SkipReason == runner.SkipFiltered {
			continue
		}

		f.testCount++
		tr := tapResult{
			number:     f.testCount,
			name:       r.Name,
			passed:     r.Passed,
			skipped:    r.Skipped,
			skipReason: r.SkipReason,
		}

		at := ""
		if r.Line > 0 {
			at = fmt.Sprintf("%s:%d", result.File, r.Line)
		}

		switch {
		case r.Skipped:
		case r.Error != nil:
			tr.diagnostic = &tapDiagnostic{
				Message:  r.Error.Error(),
				Severity: "error",
				At:       at,
			}
		case !r.Passed:
			d := &tapDiagnostic{Severity: "fail", At: at}
			for _, a := range r.Assertions {
				if a.Passed {
					continue
				}
				if d.Message == "" {
					d.Message = a.Message
				}
				d.Failures = append(d.Failures, tapFailure{
					Subject:  a.Subject,
					Operator: a.Operator,
					Expected: formatValue(a.Expected, 200),
					Actual:   formatValue(a.Actual, 200),
				})
			}
			tr.diagnostic = d
		}

		f.results = append(f.results, tr)
	}
}

func (f *TAPFormatter) FormatError(err error) {
	// Errors are included in individual test results
}

func (f *TAPFormatter) FormatHeader(version string) {
	// Header is written in Flush
}

// Flush writes the accumulated TAP output
func (f *TAPFormatter) Flush(totalDuration time.Duration) error {
	fmt.Fprintf(f.writer, "TAP version 13\n")
	fmt.Fprintf(f.writer, "1..%d\n", f.testCount)

	for _, r := range f.results {
		if r.skipped {
			reason := r.skipReason
			if reason == "" {
				reason = "SKIP"
			}
			fmt.Fprintf(f.writer, "ok %d - %s # SKIP %s\n", r.number, r.name, reason)
			continue
		}

		if r.passed {
			fmt.Fprintf(f.writer, "ok %d - %s\n", r.number, r.name)
			continue
		}

		fmt.Fprintf(f.writer, "not ok %d - %s\n", r.number, r.name)
		if r.diagnostic != nil {
			if err := f.writeDiagnostic(r.diagnostic); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(f.writer, "# time %dms\n", totalDuration.Milliseconds())
	return nil
}

func (f *TAPFormatter) writeDiagnostic(d *tapDiagnostic) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding diagnostic: %w", err)
	}

	fmt.Fprintf(f.writer, "  ---\n")
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		fmt.Fprintf(f.writer, "  %s\n", line)
	}
	fmt.Fprintf(f.writer, "  ...\n")
	return nil
}
