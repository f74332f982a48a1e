package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

// JUnitTestSuites is the document root. One execution renders as a single
// suite.
type JUnitTestSuites struct {
	XMLName xml.Name `xml:"testsuites"`
	Name    string   `xml:"name,attr,omitempty"`
	JUnitTally
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTally holds the counters shared by the root and each suite.
type JUnitTally struct {
	Tests     int     `xml:"tests,attr"`
	Failures  int     `xml:"failures,attr"`
	Errors    int     `xml:"errors,attr"`
	Time      float64 `xml:"time,attr"`
	Timestamp string  `xml:"timestamp,attr,omitempty"`
}

type JUnitTestSuite struct {
	Name string `xml:"name,attr"`
	JUnitTally
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
	SystemOut  string          `xml:"system-out,omitempty"`
}

type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitProblem `xml:"failure,omitempty"`
	Error     *JUnitProblem `xml:"error,omitempty"`
}

// JUnitProblem is the body of a <failure> or <error> element.
type JUnitProblem struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitFormatter writes a report as JUnit XML for CI systems. Assertion
// failures map to <failure> and transport errors to <error>.
type JUnitFormatter struct {
	writer io.Writer
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) Format(r *Report) error {
	suite := junitSuite(r)
	doc := JUnitTestSuites{
		Name:       "hitrun",
		JUnitTally: suite.JUnitTally,
		TestSuites: []JUnitTestSuite{suite},
	}

	if _, err := io.WriteString(f.writer, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f.writer)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(f.writer, "\n")
	return err
}

func junitSuite(r *Report) JUnitTestSuite {
	exec := r.Execution
	suite := JUnitTestSuite{
		Name: exec.Name,
		JUnitTally: JUnitTally{
			Tests:     len(r.Details),
			Time:      exec.Duration().Seconds(),
			Timestamp: exec.StartedAt.UTC().Format(time.RFC3339),
		},
		Properties: []JUnitProperty{
			{Name: "execution_id", Value: strconv.FormatInt(exec.ID, 10)},
			{Name: "executor", Value: exec.Executor},
			{Name: "status", Value: string(exec.Status)},
		},
		TestCases: make([]JUnitTestCase, 0, len(r.Details)),
	}
	if r.Environment != "" {
		suite.Properties = append(suite.Properties, JUnitProperty{Name: "environment", Value: r.Environment})
	}

	// classname groups cases by scope and environment in CI dashboards.
	class := string(exec.Scope)
	if r.Environment != "" {
		class += "." + r.Environment
	}

	for _, d := range r.Details {
		tc := JUnitTestCase{
			Name:      r.CaseName(d.TestCaseID),
			ClassName: class,
			Time:      float64(d.DurationMs) / 1000,
		}
		switch msg := detailError(d); {
		case msg != "":
			suite.Errors++
			tc.Error = &JUnitProblem{Message: msg, Type: "TransportError"}
		case d.Status == model.DetailFailed:
			suite.Failures++
			tc.Failure = &JUnitProblem{
				Message: "Assertion failed",
				Type:    "AssertionError",
				Content: failedAssertions(d.Assertions),
			}
		}
		suite.TestCases = append(suite.TestCases, tc)
	}

	var out strings.Builder
	for _, l := range r.Logs {
		fmt.Fprintf(&out, "[%s] %s\n", l.Level, l.Message)
	}
	suite.SystemOut = out.String()
	return suite
}

// failedAssertions lists one line per failed assertion.
func failedAssertions(o *model.Outcome) string {
	if o == nil {
		return ""
	}
	var b strings.Builder
	for _, a := range o.Results {
		if a.Passed {
			continue
		}
		fmt.Fprintf(&b, "%s %s: expected %v, got %v", a.Type, a.Operator, a.Expected, a.Actual)
		if a.Message != "" {
			b.WriteString(". " + a.Message)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
