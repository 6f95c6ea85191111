package reporting

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-suite/result"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

const (
	FlakeShakeJSONFileName = "flake-shake-report.json"
	FlakeShakeHTMLFileName = "flake-shake-report.html"

	// maxFailureLogs bounds the failure messages kept per test
	maxFailureLogs = 5
)

// Stability is the verdict on a test after repeated runs
type Stability string

const (
	StabilityStable   Stability = "STABLE"
	StabilityUnstable Stability = "UNSTABLE"
	StabilitySkipped  Stability = "SKIPPED"
)

// FlakeShakeResult aggregates one test across every iteration
type FlakeShakeResult struct {
	TestName       string        `json:"test_name"`
	FullName       string        `json:"full_name"`
	TotalRuns      int           `json:"total_runs"`
	Passes         int           `json:"passes"`
	Failures       int           `json:"failures"`
	Skipped        int           `json:"skipped"`
	PassRate       float64       `json:"pass_rate"`
	AvgDuration    time.Duration `json:"avg_duration"`
	MinDuration    time.Duration `json:"min_duration"`
	MaxDuration    time.Duration `json:"max_duration"`
	FailureLogs    []string      `json:"failure_logs,omitempty"`
	LastFailure    *time.Time    `json:"last_failure,omitempty"`
	Recommendation Stability     `json:"recommendation"`
}

// FlakeShakeReport is the stability analysis of a repeated run
type FlakeShakeReport struct {
	Date        string             `json:"date"`
	Gate        string             `json:"gate"`
	RunID       string             `json:"run_id"`
	Iterations  int                `json:"iterations"`
	TotalRuns   int                `json:"total_runs"`
	Tests       []FlakeShakeResult `json:"tests"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Unstable returns the tests that did not pass every non-skipped run
func (r *FlakeShakeReport) Unstable() []FlakeShakeResult {
	var out []FlakeShakeResult
	for _, test := range r.Tests {
		if test.Recommendation == StabilityUnstable {
			out = append(out, test)
		}
	}
	return out
}

// FlakeShake collects the leaf results of repeated runs of the same tree
type FlakeShake struct {
	iterations int
	order      []string
	tests      map[string]*FlakeShakeResult
	durations  map[string]time.Duration
}

func NewFlakeShake(iterations int) *FlakeShake {
	return &FlakeShake{
		iterations: iterations,
		tests:      make(map[string]*FlakeShakeResult),
		durations:  make(map[string]time.Duration),
	}
}

// Add records every test of one iteration. Tests are keyed by full name, so the
// first iteration fixes the report order.
func (f *FlakeShake) Add(root *result.Result) {
	if root == nil {
		return
	}
	root.Walk(func(res *result.Result, depth int) bool {
		if depth == 0 || res.IsSuite() {
			return true
		}
		f.add(res)
		return false
	})
}

func (f *FlakeShake) add(res *result.Result) {
	test, ok := f.tests[res.FullName()]
	if !ok {
		test = &FlakeShakeResult{TestName: res.Name(), FullName: res.FullName()}
		f.tests[res.FullName()] = test
		f.order = append(f.order, res.FullName())
	}

	test.TotalRuns++
	switch status := res.Status(); status {
	case types.TestStatusPass:
		test.Passes++
	case types.TestStatusSkip, types.TestStatusIgnored:
		test.Skipped++
		return
	default:
		test.Failures++
		if len(test.FailureLogs) < maxFailureLogs {
			test.FailureLogs = append(test.FailureLogs, fmt.Sprintf("%s: %s", statusText(status), res.Message()))
		}
		end := res.EndTime()
		test.LastFailure = &end
	}

	d := res.Duration()
	f.durations[res.FullName()] += d
	if test.MinDuration == 0 || d < test.MinDuration {
		test.MinDuration = d
	}
	if d > test.MaxDuration {
		test.MaxDuration = d
	}
}

// Report summarizes everything added so far
func (f *FlakeShake) Report(runID, gate string) *FlakeShakeReport {
	now := time.Now()
	report := &FlakeShakeReport{
		Date:        now.Format("2006-01-02"),
		Gate:        gate,
		RunID:       runID,
		Iterations:  f.iterations,
		GeneratedAt: now,
	}
	for _, name := range f.order {
		test := *f.tests[name]
		executed := test.TotalRuns - test.Skipped
		switch {
		case executed == 0:
			test.Recommendation = StabilitySkipped
		default:
			test.AvgDuration = f.durations[name] / time.Duration(executed)
			test.PassRate = float64(test.Passes) / float64(executed) * 100
			if test.Passes == executed {
				test.Recommendation = StabilityStable
			} else {
				test.Recommendation = StabilityUnstable
			}
		}
		report.Tests = append(report.Tests, test)
		report.TotalRuns += test.TotalRuns
	}
	return report
}

// FormatFlakeShake renders the report as a table, one row per test
func FormatFlakeShake(report *FlakeShakeReport) string {
	var buf bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(fmt.Sprintf("Flake-shake (%d iterations)", report.Iterations))
	t.AppendHeader(table.Row{"TEST", "RUNS", "PASSED", "FAILED", "SKIPPED", "PASS RATE", "AVG", "RESULT"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "TEST", WidthMax: 120, WidthMaxEnforcer: text.WrapSoft},
		{Name: "RUNS", Align: text.AlignRight},
		{Name: "PASSED", Align: text.AlignRight},
		{Name: "FAILED", Align: text.AlignRight},
		{Name: "SKIPPED", Align: text.AlignRight},
		{Name: "PASS RATE", Align: text.AlignRight},
		{Name: "AVG", Align: text.AlignRight},
	})
	for _, test := range report.Tests {
		t.AppendRow(table.Row{
			test.FullName,
			test.TotalRuns,
			test.Passes,
			test.Failures,
			test.Skipped,
			fmt.Sprintf("%.1f%%", test.PassRate),
			formatDuration(test.AvgDuration),
			string(test.Recommendation),
		})
	}
	if len(report.Unstable()) > 0 {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	t.Render()
	return buf.String()
}

// SaveFlakeShakeReport writes the report as JSON and HTML into dir. The paths written
// so far are returned even when one format fails.
func SaveFlakeShakeReport(report *FlakeShakeReport, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	var saved []string
	var errs []error

	jsonPath := filepath.Join(dir, FlakeShakeJSONFileName)
	data, err := json.MarshalIndent(report, "", "  ")
	if err == nil {
		err = os.WriteFile(jsonPath, data, 0644)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to write JSON report: %w", err))
	} else {
		saved = append(saved, jsonPath)
	}

	htmlPath := filepath.Join(dir, FlakeShakeHTMLFileName)
	if err := saveFlakeShakeHTML(report, htmlPath); err != nil {
		errs = append(errs, fmt.Errorf("failed to write HTML report: %w", err))
	} else {
		saved = append(saved, htmlPath)
	}

	return saved, errors.Join(errs...)
}

var flakeShakeTemplate = template.Must(template.New("flake-shake").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Flake-Shake Report - {{.Date}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .summary { background: #f5f5f5; padding: 15px; border-radius: 5px; margin: 20px 0; }
        table { border-collapse: collapse; width: 100%; }
        th, td { border: 1px solid #ddd; padding: 12px; text-align: left; }
        th { background: #4CAF50; color: white; }
        .STABLE { color: #4CAF50; font-weight: bold; }
        .UNSTABLE { color: #f44336; font-weight: bold; }
        .SKIPPED { color: #9e9e9e; }
        .failure-log { background: #ffebee; padding: 10px; margin: 5px 0; font-family: monospace; font-size: 12px; white-space: pre-wrap; }
    </style>
</head>
<body>
    <h1>Flake-Shake Report</h1>
    <div class="summary">
        <p><strong>Date:</strong> {{.Date}}</p>
        <p><strong>Gate:</strong> {{if .Gate}}{{.Gate}}{{else}}all{{end}}</p>
        <p><strong>Iterations:</strong> {{.Iterations}}</p>
        <p><strong>Run ID:</strong> {{.RunID}}</p>
    </div>
    <table>
        <tr><th>Test</th><th>Runs</th><th>Pass Rate</th><th>Avg Duration</th><th>Result</th><th>Failures</th></tr>
        {{range .Tests}}
        <tr>
            <td>{{.FullName}}</td>
            <td>{{.TotalRuns}}</td>
            <td>{{printf "%.1f" .PassRate}}%</td>
            <td>{{.AvgDuration}}</td>
            <td class="{{.Recommendation}}">{{.Recommendation}}</td>
            <td>
                {{if gt .Failures 0}}
                <details>
                    <summary>{{.Failures}} failure(s)</summary>
                    {{range .FailureLogs}}<div class="failure-log">{{.}}</div>{{end}}
                </details>
                {{end}}
            </td>
        </tr>
        {{end}}
    </table>
</body>
</html>`))

func saveFlakeShakeHTML(report *FlakeShakeReport, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	return flakeShakeTemplate.Execute(file, report)
}
