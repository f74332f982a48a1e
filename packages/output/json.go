package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Execution *model.Execution `json:"execution"`
	Summary   JSONSummary      `json:"summary"`
	Cases     []JSONCase       `json:"cases"`
	Logs      []JSONLog        `json:"logs,omitempty"`
	Latency   JSONLatency      `json:"latency"`
	Duration  float64          `json:"duration"`
	Time      string           `json:"time"`
}

// JSONSummary represents the case tally
type JSONSummary struct {
	Total       int    `json:"total"`
	Passed      int    `json:"passed"`
	Failed      int    `json:"failed"`
	Status      string `json:"status"`
	Environment string `json:"environment,omitempty"`
}

// JSONCase represents the outcome of a single case
type JSONCase struct {
	ID         int64                    `json:"id"`
	Name       string                   `json:"name"`
	Passed     bool                     `json:"passed"`
	Duration   float64                  `json:"duration"`
	Error      string                   `json:"error,omitempty"`
	Request    map[string]any           `json:"request,omitempty"`
	Response   map[string]any           `json:"response,omitempty"`
	Assertions []*model.AssertionResult `json:"assertions,omitempty"`
}

// JSONLog represents one execution log entry
type JSONLog struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// JSONLatency holds latency percentiles in milliseconds
type JSONLatency struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// JSONFormatter formats executions as JSON
type JSONFormatter struct {
	writer io.Writer
	now    func() time.Time
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (f *JSONFormatter) Format(r *Report) error {
	exec := r.Execution
	output := JSONOutput{
		Execution: exec,
		Summary: JSONSummary{
			Total:       exec.Progress.Total,
			Passed:      exec.Passed,
			Failed:      exec.Failed,
			Status:      string(exec.Status),
			Environment: r.Environment,
		},
		Cases: make([]JSONCase, 0, len(r.Details)),
		Latency: JSONLatency{
			Count: r.Latency.Count,
			Min:   ms(r.Latency.Min),
			Max:   ms(r.Latency.Max),
			Mean:  ms(r.Latency.Mean),
			P50:   ms(r.Latency.P50),
			P90:   ms(r.Latency.P90),
			P95:   ms(r.Latency.P95),
			P99:   ms(r.Latency.P99),
		},
		Duration: float64(exec.Duration().Milliseconds()),
		Time:     f.now().Format(time.RFC3339),
	}

	for _, d := range r.Details {
		c := JSONCase{
			ID:       d.TestCaseID,
			Name:     r.CaseName(d.TestCaseID),
			Passed:   d.Status == model.DetailSuccess,
			Duration: float64(d.DurationMs),
			Error:    detailError(d),
			Request:  d.Request,
		}
		if c.Error == "" {
			c.Response = d.Response
		}
		if d.Assertions != nil {
			c.Assertions = d.Assertions.Results
		}
		output.Cases = append(output.Cases, c)
	}

	for _, l := range r.Logs {
		output.Logs = append(output.Logs, JSONLog{
			Level:   string(l.Level),
			Message: l.Message,
			Time:    l.CreatedAt.Format(time.RFC3339),
		})
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
