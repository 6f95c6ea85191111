package reporting

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/op-suite/result"
	"github.com/ethereum-optimism/infra/op-suite/ui"
)

// TreeTextFormatter prints the result tree with box drawing connectors
type TreeTextFormatter struct {
	includeDetails bool
}

// NewTreeTextFormatter creates a tree formatter. With includeDetails the message of
// every failing node is printed underneath it.
func NewTreeTextFormatter(includeDetails bool) *TreeTextFormatter {
	return &TreeTextFormatter{includeDetails: includeDetails}
}

// Format formats the run as plain text
func (f *TreeTextFormatter) Format(run Run) (string, error) {
	if run.Root == nil {
		return "", fmt.Errorf("run %s has no result", run.ID)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s (%s)\n", statusChar(run.Root.Status()), run.Root.Name(), formatDuration(run.Duration))

	children := run.Root.SortedChildren()
	for i, child := range children {
		f.writeNode(&buf, child, 1, i == len(children)-1, nil)
	}
	return buf.String(), nil
}

func (f *TreeTextFormatter) writeNode(buf *bytes.Buffer, res *result.Result, depth int, isLast bool, parentIsLast []bool) {
	prefix := ui.BuildTreePrefix(depth, isLast, parentIsLast)
	line := fmt.Sprintf("%s%s %s", prefix, statusChar(res.Status()), res.Name())

	if res.IsSuite() {
		c := res.Counts()
		line += fmt.Sprintf(" [%d tests, %d passed, %d failed]", c.Total, c.Passed, c.Failed+c.Errored)
	} else {
		line += fmt.Sprintf(" (%s)", formatDuration(res.Duration()))
	}
	buf.WriteString(line + "\n")

	if f.includeDetails && (isFailureOrigin(res) || isNotRun(res)) && res.Message() != "" {
		indent := ui.ChildIndent(depth, isLast, parentIsLast) + "  "
		for _, msgLine := range strings.Split(res.Message(), "\n") {
			buf.WriteString(indent + msgLine + "\n")
		}
	}

	children := res.SortedChildren()
	if len(children) == 0 {
		return
	}
	chain := append(append([]bool{}, parentIsLast...), isLast)
	for i, child := range children {
		f.writeNode(buf, child, depth+1, i == len(children)-1, chain)
	}
}
