package runner

import (
	"bufio"
	"encoding/json"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

// test2json actions
const (
	ActionStart  = "start"
	ActionRun    = "run"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

const timeoutPanic = "panic: test timed out after"

// TestEvent represents a test event from go test -json output
type TestEvent struct {
	Time    time.Time
	Action  string
	Package string
	Test    string
	Elapsed float64
	Output  string
}

// Outcome is the parsed result of one go test run
type Outcome struct {
	// Status is TestStatusInconclusive when the test never reported a result
	Status   types.TestStatus
	Output   string
	Duration time.Duration
	TimedOut bool
	// FailedSubTests lists failing subtests in the order they finished
	FailedSubTests []string
}

// OutputParser handles parsing test output
type OutputParser interface {
	Parse(output io.Reader, testName string) *Outcome
}

type outputParser struct{}

// NewOutputParser creates a new output parser
func NewOutputParser() OutputParser {
	return &outputParser{}
}

// Parse reads test2json events for testName. Output lines of the test and its subtests
// are collected, lines of other tests are dropped.
func (p *outputParser) Parse(output io.Reader, testName string) *Outcome {
	out := &Outcome{Status: types.TestStatusInconclusive}

	var testStart, testEnd time.Time
	var msg strings.Builder

	scanner := bufio.NewScanner(output)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		event, err := parseTestEvent(scanner.Bytes())
		if err != nil {
			continue
		}
		if event.Action == ActionOutput && strings.Contains(event.Output, timeoutPanic) {
			out.TimedOut = true
		}
		if !belongsTo(event.Test, testName) {
			continue
		}

		isMain := event.Test == testName
		switch event.Action {
		case ActionStart, ActionRun:
			if isMain {
				testStart = event.Time
			}
		case ActionPass:
			if isMain {
				testEnd = event.Time
				out.Status = types.TestStatusPass
			}
		case ActionFail:
			if isMain {
				testEnd = event.Time
				out.Status = types.TestStatusFail
			} else if !slices.Contains(out.FailedSubTests, event.Test) {
				out.FailedSubTests = append(out.FailedSubTests, event.Test)
			}
		case ActionSkip:
			if isMain {
				testEnd = event.Time
				out.Status = types.TestStatusSkip
			}
		case ActionOutput:
			line := strings.TrimRight(event.Output, "\n")
			if strings.TrimSpace(line) == "" || isFrameLine(line) {
				continue
			}
			if msg.Len() > 0 {
				msg.WriteString("\n")
			}
			msg.WriteString(line)
		}
	}

	out.Duration = calculateTestDuration(testStart, testEnd)
	out.Output = msg.String()
	if out.TimedOut && out.Status != types.TestStatusPass {
		out.Status = types.TestStatusFail
	}
	return out
}

func parseTestEvent(line []byte) (TestEvent, error) {
	var event TestEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return event, err
	}
	return event, nil
}

// belongsTo reports whether an event of test belongs to testName or one of its subtests
func belongsTo(test, testName string) bool {
	return test == testName || strings.HasPrefix(test, testName+"/")
}

// isFrameLine matches the "=== RUN" style lines go test prints around every test
func isFrameLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- PASS:"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func calculateTestDuration(start, end time.Time) time.Duration {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	duration := end.Sub(start)
	if duration < 0 {
		return 0
	}
	return duration
}
