package framework

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

type TestResult struct {
	TestID  TestID
	Errors  []error
	Skipped bool
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// Counts returns the number of tests that passed, failed, and were skipped by the test itself.
// A test that failed before skipping counts as failed. Tests excluded by filters never produce
// a result.
func (r Results) Counts() (passed, failed, skipped int) {
	for _, t := range r.Tests {
		if t.Skipped {
			skipped++
		}
	}
	failed = len(r.Failures)
	passed = len(r.Tests) - failed - skipped
	return
}

type TestID struct {
	Path []string
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

// PrintResults writes a summary of the test run.
func PrintResults(out io.Writer, results Results) {
	passed, failed, skipped := results.Counts()
	if results.OK() {
		fmt.Fprintf(out, "%s (%d passed, %d skipped)\n", color.GreenString("All tests passed"), passed, skipped)
		return
	}
	fmt.Fprintf(out, "%s (%d passed, %d failed, %d skipped)\n",
		color.RedString("FAILED TESTS:"), passed, failed, skipped)
	for _, f := range results.Failures {
		fmt.Fprintf(out, "  * %s\n", f.TestID)
		for _, e := range f.Errors {
			for _, line := range strings.Split(reformatError(e).Error(), "\n") {
				fmt.Fprintf(out, "      %s\n", line)
			}
		}
	}
}
