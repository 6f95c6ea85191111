package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-suite/result"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

func timedLeaf(name string, index int, status types.TestStatus, msg string, d time.Duration) *result.Result {
	r := leaf(name, "g", index, status, msg)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.Start(start)
	r.Finish(start.Add(d))
	return r
}

// iteration builds plan -> g -> {stable, flaky, skipped} for one run
func iteration(flakyStatus types.TestStatus, flakyDuration time.Duration) *result.Result {
	g := suite("g", "", 0,
		timedLeaf("stable", 0, types.TestStatusPass, "", 100*time.Millisecond),
		timedLeaf("flaky", 1, flakyStatus, "race detected", flakyDuration),
		timedLeaf("skipped", 2, types.TestStatusSkip, "later", 0),
	)
	return suite("plan", "", 0, g)
}

func TestFlakeShakeReport(t *testing.T) {
	fs := NewFlakeShake(4)
	fs.Add(iteration(types.TestStatusPass, 100*time.Millisecond))
	fs.Add(iteration(types.TestStatusFail, 300*time.Millisecond))
	fs.Add(iteration(types.TestStatusPass, 200*time.Millisecond))
	fs.Add(iteration(types.TestStatusError, 400*time.Millisecond))
	fs.Add(nil)

	report := fs.Report("run-1", "g")
	assert.Equal(t, 4, report.Iterations)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 12, report.TotalRuns)
	require.Len(t, report.Tests, 3)

	stable, flaky, skipped := report.Tests[0], report.Tests[1], report.Tests[2]

	assert.Equal(t, "g/stable", stable.FullName)
	assert.Equal(t, StabilityStable, stable.Recommendation)
	assert.Equal(t, 100.0, stable.PassRate)
	assert.Equal(t, 100*time.Millisecond, stable.AvgDuration)
	assert.Nil(t, stable.LastFailure)

	assert.Equal(t, "flaky", flaky.TestName)
	assert.Equal(t, StabilityUnstable, flaky.Recommendation)
	assert.Equal(t, 4, flaky.TotalRuns)
	assert.Equal(t, 2, flaky.Passes)
	assert.Equal(t, 2, flaky.Failures)
	assert.Equal(t, 50.0, flaky.PassRate)
	assert.Equal(t, 100*time.Millisecond, flaky.MinDuration)
	assert.Equal(t, 400*time.Millisecond, flaky.MaxDuration)
	assert.Equal(t, 250*time.Millisecond, flaky.AvgDuration)
	assert.Equal(t, []string{"FAIL: race detected", "ERROR: race detected"}, flaky.FailureLogs)
	assert.NotNil(t, flaky.LastFailure)

	assert.Equal(t, StabilitySkipped, skipped.Recommendation)
	assert.Equal(t, 4, skipped.Skipped)
	assert.Zero(t, skipped.PassRate)

	unstable := report.Unstable()
	require.Len(t, unstable, 1)
	assert.Equal(t, "g/flaky", unstable[0].FullName)
}

func TestFlakeShakeKeepsFewFailureLogs(t *testing.T) {
	fs := NewFlakeShake(maxFailureLogs + 3)
	for range maxFailureLogs + 3 {
		fs.Add(iteration(types.TestStatusFail, time.Millisecond))
	}
	report := fs.Report("run-1", "")
	assert.Len(t, report.Tests[1].FailureLogs, maxFailureLogs)
	assert.Equal(t, maxFailureLogs+3, report.Tests[1].Failures)
}

func TestFormatFlakeShake(t *testing.T) {
	fs := NewFlakeShake(2)
	fs.Add(iteration(types.TestStatusPass, time.Millisecond))
	fs.Add(iteration(types.TestStatusFail, time.Millisecond))

	out := FormatFlakeShake(fs.Report("run-1", "g"))
	assert.Contains(t, out, "Flake-shake (2 iterations)")
	assert.Contains(t, out, "PASS RATE")
	assert.Contains(t, out, "g/flaky")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "UNSTABLE")
	assert.Contains(t, out, "SKIPPED")
}

func TestSaveFlakeShakeReport(t *testing.T) {
	fs := NewFlakeShake(2)
	fs.Add(iteration(types.TestStatusPass, time.Millisecond))
	fs.Add(iteration(types.TestStatusFail, time.Millisecond))
	report := fs.Report("run-1", "g")

	dir := filepath.Join(t.TempDir(), "run-1")
	paths, err := SaveFlakeShakeReport(report, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, FlakeShakeJSONFileName),
		filepath.Join(dir, FlakeShakeHTMLFileName),
	}, paths)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	var decoded FlakeShakeReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "g", decoded.Gate)
	assert.Len(t, decoded.Unstable(), 1)

	html, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Contains(t, string(html), "<td>g/flaky</td>")
	assert.Contains(t, string(html), `class="UNSTABLE"`)
	assert.Contains(t, string(html), "race detected")
}
