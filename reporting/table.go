package reporting

import (
	"bytes"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-suite/result"
	"github.com/ethereum-optimism/infra/op-suite/types"
	"github.com/ethereum-optimism/infra/op-suite/ui"
)

// TableFormatter formats a run as an ASCII table with one row per node
type TableFormatter struct {
	title     string
	showTests bool
}

// NewTableFormatter creates a table formatter. Without showTests only gates and suites
// get a row.
func NewTableFormatter(title string, showTests bool) *TableFormatter {
	return &TableFormatter{title: title, showTests: showTests}
}

// Format formats the run as an ASCII table
func (f *TableFormatter) Format(run Run) (string, error) {
	if run.Root == nil {
		return "", fmt.Errorf("run %s has no result", run.ID)
	}

	var buf bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(fmt.Sprintf("%s (%s)", f.title, formatDuration(run.Duration)))

	t.AppendHeader(table.Row{"TYPE", "ID", "DURATION", "TESTS", "PASSED", "FAILED", "SKIPPED", "STATUS"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "TYPE", AutoMerge: true},
		{Name: "ID", WidthMax: 120, WidthMaxEnforcer: text.WrapSoft},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "TESTS", Align: text.AlignRight},
		{Name: "PASSED", Align: text.AlignRight},
		{Name: "FAILED", Align: text.AlignRight},
		{Name: "SKIPPED", Align: text.AlignRight},
	})

	children := run.Root.SortedChildren()
	for i, child := range children {
		f.addRows(t, child, 1, i == len(children)-1, nil)
	}

	switch run.Status() {
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.TestStatusFail, types.TestStatusError, types.TestStatusCancelled:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	}

	c := run.Root.Counts()
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(run.Duration),
		c.Total,
		c.Passed,
		c.Failed + c.Errored,
		c.Skipped + c.Ignored,
		statusText(run.Status()),
	})

	t.Render()
	return buf.String(), nil
}

func (f *TableFormatter) addRows(t table.Writer, res *result.Result, depth int, isLast bool, parentIsLast []bool) {
	if !res.IsSuite() && !f.showTests {
		return
	}

	c := res.Counts()
	t.AppendRow(table.Row{
		nodeType(res, depth),
		ui.BuildTreePrefix(depth-1, isLast, parentIsLast) + res.Name(),
		formatDuration(res.Duration()),
		c.Total,
		c.Passed,
		c.Failed + c.Errored,
		c.Skipped + c.Ignored,
		statusText(res.Status()),
	})

	children := res.SortedChildren()
	var chain []bool
	if depth > 1 {
		chain = append(append(chain, parentIsLast...), isLast)
	}
	for i, child := range children {
		f.addRows(t, child, depth+1, i == len(children)-1, chain)
	}
}
