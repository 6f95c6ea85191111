package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/op-suite/result"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// ResultsFileName is the name of the per-run results file
const ResultsFileName = "results.json"

// RunJSON is the on-disk form of a completed run
type RunJSON struct {
	RunID     string           `json:"runId"`
	Plan      string           `json:"plan,omitempty"`
	Gate      string           `json:"gate,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Duration  time.Duration    `json:"duration"`
	Status    types.TestStatus `json:"status"`
	Stats     StatsJSON        `json:"stats"`
	Root      NodeJSON         `json:"root"`
}

// StatsJSON mirrors result.Counts
type StatsJSON struct {
	Total        int     `json:"total"`
	Passed       int     `json:"passed"`
	Failed       int     `json:"failed"`
	Errored      int     `json:"errored"`
	Skipped      int     `json:"skipped"`
	Ignored      int     `json:"ignored"`
	Inconclusive int     `json:"inconclusive"`
	Cancelled    int     `json:"cancelled"`
	PassRate     float64 `json:"passRate"`
}

// NodeJSON is one result node
type NodeJSON struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	FullName    string            `json:"fullName"`
	Suite       bool              `json:"suite"`
	Status      types.TestStatus  `json:"status"`
	Site        types.FailureSite `json:"site,omitempty"`
	Message     string            `json:"message,omitempty"`
	Trace       string            `json:"trace,omitempty"`
	AssertCount int               `json:"assertCount,omitempty"`
	StartTime   time.Time         `json:"startTime"`
	Duration    time.Duration     `json:"duration"`
	Children    []NodeJSON        `json:"children,omitempty"`
}

// NewRunJSON converts a run into its JSON form
func NewRunJSON(run Run) RunJSON {
	out := RunJSON{
		RunID:     run.ID,
		Plan:      run.Plan,
		Gate:      run.Gate,
		Timestamp: run.Started,
		Duration:  run.Duration,
		Status:    run.Status(),
	}
	if run.Root != nil {
		c := run.Root.Counts()
		out.Stats = StatsJSON{
			Total:        c.Total,
			Passed:       c.Passed,
			Failed:       c.Failed,
			Errored:      c.Errored,
			Skipped:      c.Skipped,
			Ignored:      c.Ignored,
			Inconclusive: c.Inconclusive,
			Cancelled:    c.Cancelled,
			PassRate:     c.PassRate(),
		}
		out.Root = newNodeJSON(run.Root)
	}
	return out
}

func newNodeJSON(res *result.Result) NodeJSON {
	node := NodeJSON{
		ID:          res.ID(),
		Name:        res.Name(),
		FullName:    res.FullName(),
		Suite:       res.IsSuite(),
		Status:      res.Status(),
		Site:        res.Site(),
		Message:     res.Message(),
		Trace:       res.Trace(),
		AssertCount: res.AssertCount(),
		StartTime:   res.StartTime(),
		Duration:    res.Duration(),
	}
	for _, child := range res.SortedChildren() {
		node.Children = append(node.Children, newNodeJSON(child))
	}
	return node
}

// WriteJSON writes the run to <dir>/<run id>/results.json and returns the file path
func WriteJSON(dir string, run Run) (string, error) {
	if run.ID == "" {
		return "", fmt.Errorf("run has no ID")
	}
	runDir := filepath.Join(dir, run.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	data, err := json.MarshalIndent(NewRunJSON(run), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}

	path := filepath.Join(runDir, ResultsFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write results file: %w", err)
	}
	return path, nil
}
