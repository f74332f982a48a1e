package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// maxValueWidth bounds expected/actual values printed under a failed
// assertion.
const maxValueWidth = 100

// ConsoleFormatter prints a human-readable report.
type ConsoleFormatter struct {
	w       io.Writer
	verbose bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{w: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.w = w
	}
}

// WithVerbose adds response status codes and the execution log.
func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

// WithNoColor disables ANSI colors process-wide.
func WithNoColor(nc bool) ConsoleOption {
	return func(*ConsoleFormatter) {
		if nc {
			color.NoColor = true
		}
	}
}

func (f *ConsoleFormatter) Format(r *Report) error {
	exec := r.Execution
	fmt.Fprintf(f.w, "\n%s\n", bold(fmt.Sprintf("Execution #%d: %s", exec.ID, exec.Name)))
	if r.Environment != "" {
		fmt.Fprintf(f.w, "Environment: %s\n", r.Environment)
	}
	fmt.Fprintln(f.w)

	for _, d := range r.Details {
		f.detail(r.CaseName(d.TestCaseID), d)
	}
	if f.verbose && len(r.Logs) > 0 {
		f.logs(r.Logs)
	}
	f.footer(r)
	return nil
}

func (f *ConsoleFormatter) detail(name string, d *model.ExecutionDetail) {
	if msg := detailError(d); msg != "" {
		fmt.Fprintf(f.w, "  %s %s %s\n", red("x"), name, red("("+msg+")"))
		return
	}

	mark := green("✓")
	if d.Status == model.DetailFailed {
		mark = red("✗")
	}
	fmt.Fprintf(f.w, "  %s %s %s\n", mark, name, cyan(fmt.Sprintf("(%dms)", d.DurationMs)))
	if f.verbose && d.Response != nil {
		fmt.Fprintf(f.w, "    Status: %v\n", d.Response["status_code"])
	}
	if d.Status != model.DetailFailed || d.Assertions == nil {
		return
	}
	for _, a := range d.Assertions.Results {
		if a.Passed {
			continue
		}
		fmt.Fprintf(f.w, "    %s %s %s\n", red("→"), a.Type, a.Operator)
		fmt.Fprintf(f.w, "      Expected: %s\n", summarize(a.Expected))
		fmt.Fprintf(f.w, "      Actual:   %s\n", summarize(a.Actual))
		if a.Message != "" {
			fmt.Fprintf(f.w, "      %s\n", a.Message)
		}
	}
}

func (f *ConsoleFormatter) logs(logs []*model.ExecutionLog) {
	fmt.Fprintf(f.w, "\nLog:\n")
	for _, l := range logs {
		level := string(l.Level)
		switch l.Level {
		case model.LevelWarn:
			level = yellow(level)
		case model.LevelError:
			level = red(level)
		}
		fmt.Fprintf(f.w, "  %s %-5s %s\n", l.CreatedAt.Format(time.TimeOnly), level, l.Message)
	}
}

func (f *ConsoleFormatter) footer(r *Report) {
	exec := r.Execution
	fmt.Fprint(f.w, "\nCases:   ")
	if exec.Passed > 0 {
		fmt.Fprintf(f.w, "%s, ", green(fmt.Sprintf("%d passed", exec.Passed)))
	}
	if exec.Failed > 0 {
		fmt.Fprintf(f.w, "%s, ", red(fmt.Sprintf("%d failed", exec.Failed)))
	}
	fmt.Fprintf(f.w, "%d total\n", exec.Progress.Total)
	fmt.Fprintf(f.w, "Status:  %s\n", paintStatus(exec.Status))
	if exec.ErrorMessage != "" {
		fmt.Fprintf(f.w, "Error:   %s\n", red(exec.ErrorMessage))
	}
	if l := r.Latency; l.Count > 0 {
		fmt.Fprintf(f.w, "Latency: p50 %s, p95 %s, p99 %s, max %s\n",
			l.P50.Round(time.Millisecond), l.P95.Round(time.Millisecond),
			l.P99.Round(time.Millisecond), l.Max.Round(time.Millisecond))
	}
	fmt.Fprintf(f.w, "Time:    %dms\n\n", exec.Duration().Milliseconds())
}

// FormatExecutions prints one line per execution, in the order given.
func (f *ConsoleFormatter) FormatExecutions(execs []*model.Execution) {
	for _, e := range execs {
		fmt.Fprintf(f.w, "#%-5d %-8s %-8s %d/%d passed  %s  %s\n",
			e.ID, e.Scope, paintStatus(e.Status), e.Passed, e.Progress.Total,
			e.StartedAt.Format(time.DateTime), e.Name)
	}
}

func paintStatus(s model.Status) string {
	switch {
	case s == model.StatusSuccess:
		return green(string(s))
	case s == model.StatusFailed:
		return red(string(s))
	case !s.IsTerminal():
		return yellow(string(s))
	}
	return string(s)
}

// summarize prints scalars and collapses containers to their size.
func summarize(v any) string {
	switch val := v.(type) {
	case nil:
		return "<none>"
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case map[string]string:
		return fmt.Sprintf("{map with %d entries}", len(val))
	}
	s := fmt.Sprint(v)
	if len(s) > maxValueWidth {
		return s[:maxValueWidth] + "..."
	}
	return s
}
