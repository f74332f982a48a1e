package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/hitrun/packages/model"
	"github.com/abdul-hamid-achik/hitrun/packages/store"
)

// Formatter renders a report.
type Formatter interface {
	Format(r *Report) error
}

// New returns the formatter for format: console, json or junit.
func New(format string, w io.Writer, verbose bool) (Formatter, error) {
	switch format {
	case "", "console":
		return NewConsoleFormatter(WithWriter(w), WithVerbose(verbose)), nil
	case "json":
		return NewJSONFormatter(JSONWithWriter(w)), nil
	case "junit":
		return NewJUnitFormatter(JUnitWithWriter(w)), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// Source is the read side of the store a report is loaded from.
type Source interface {
	GetExecution(ctx context.Context, id int64) (*model.Execution, error)
	ListDetails(ctx context.Context, executionID int64) ([]*model.ExecutionDetail, error)
	ListLogs(ctx context.Context, executionID int64) ([]*model.ExecutionLog, error)
	GetTestCase(ctx context.Context, id int64) (*model.TestCase, error)
	GetEnvironment(ctx context.Context, id int64) (*model.Environment, error)
}

// Report is everything a formatter needs about one execution.
type Report struct {
	Execution   *model.Execution
	Environment string
	Details     []*model.ExecutionDetail
	Logs        []*model.ExecutionLog
	CaseNames   map[int64]string
	Latency     LatencyStats
}

// Load reads an execution and everything attached to it. Cases deleted since
// the run are reported by id.
func Load(ctx context.Context, src Source, executionID int64) (*Report, error) {
	exec, err := src.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	details, err := src.ListDetails(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("listing details: %w", err)
	}
	logs, err := src.ListLogs(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("listing logs: %w", err)
	}

	r := &Report{
		Execution: exec,
		Details:   details,
		Logs:      logs,
		CaseNames: make(map[int64]string, len(details)),
		Latency:   NewLatencyStats(details),
	}

	if env, err := src.GetEnvironment(ctx, exec.EnvironmentID); err == nil {
		r.Environment = env.Name
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	for _, d := range details {
		if _, ok := r.CaseNames[d.TestCaseID]; ok {
			continue
		}
		tc, err := src.GetTestCase(ctx, d.TestCaseID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		r.CaseNames[d.TestCaseID] = tc.DisplayName()
	}
	return r, nil
}

// CaseName returns the display name of a case, or "case <id>".
func (r *Report) CaseName(id int64) string {
	if name := r.CaseNames[id]; name != "" {
		return name
	}
	return fmt.Sprintf("case %d", id)
}

// detailError returns the transport error recorded on a failed detail.
func detailError(d *model.ExecutionDetail) string {
	if d.Response == nil {
		return ""
	}
	msg, _ := d.Response["error"].(string)
	return msg
}

// maxLatency caps recorded latencies at one minute, in microseconds.
const maxLatency = 60_000_000

// LatencyStats summarises per-case durations.
type LatencyStats struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P90   time.Duration `json:"p90"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// NewLatencyStats records each detail's duration in an HDR histogram.
func NewLatencyStats(details []*model.ExecutionDetail) LatencyStats {
	if len(details) == 0 {
		return LatencyStats{}
	}

	// Histogram: 1us to 60s range, 3 significant digits
	h := hdrhistogram.New(1, maxLatency, 3)
	for _, d := range details {
		us := d.DurationMs * 1000
		if us < 1 {
			us = 1
		}
		if us > maxLatency {
			us = maxLatency
		}
		_ = h.RecordValue(us)
	}

	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return LatencyStats{
		Count: int(h.TotalCount()),
		Min:   us(h.Min()),
		Max:   us(h.Max()),
		Mean:  time.Duration(h.Mean() * float64(time.Microsecond)),
		P50:   us(h.ValueAtQuantile(50)),
		P90:   us(h.ValueAtQuantile(90)),
		P95:   us(h.ValueAtQuantile(95)),
		P99:   us(h.ValueAtQuantile(99)),
	}
}
