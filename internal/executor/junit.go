package executor

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/juanibiapina/testrun/internal/runstore"
)

// junitSuite matches both a <testsuite> root and the <testsuite> children of
// a <testsuites> root.
type junitSuite struct {
	XMLName  xml.Name
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Errors   int          `xml:"errors,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

// ParseJUnit reads a JUnit XML report into run counters.
//
// A <testsuite> root is read directly; a <testsuites> root sums its direct
// <testsuite> children. Errors count as failures and passed is whatever is
// neither failed nor skipped.
func ParseJUnit(path string) (runstore.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runstore.Summary{}, fmt.Errorf("failed to read junit report: %w", err)
	}

	var root junitSuite
	if err := xml.Unmarshal(data, &root); err != nil {
		return runstore.Summary{}, fmt.Errorf("failed to parse junit report: %w", err)
	}

	var tests, failures, errs, skipped int
	switch root.XMLName.Local {
	case "testsuite":
		tests, failures, errs, skipped = root.Tests, root.Failures, root.Errors, root.Skipped
	case "testsuites":
		for _, suite := range root.Suites {
			tests += suite.Tests
			failures += suite.Failures
			errs += suite.Errors
			skipped += suite.Skipped
		}
	default:
		return runstore.Summary{}, fmt.Errorf("unexpected junit root element <%s>", root.XMLName.Local)
	}

	failed := failures + errs
	return runstore.Summary{
		Total:   tests,
		Passed:  max(0, tests-failed-skipped),
		Failed:  failed,
		Skipped: skipped,
	}, nil
}
