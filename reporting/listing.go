package reporting

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/op-suite/result"
	"github.com/ethereum-optimism/infra/op-suite/types"
	"github.com/ethereum-optimism/infra/op-suite/ui"
)

const listingWidth = 80

// FailureFormatter lists every node where a failure originated, with its message and
// optionally its trace
type FailureFormatter struct {
	showTrace bool
}

func NewFailureFormatter(showTrace bool) *FailureFormatter {
	return &FailureFormatter{showTrace: showTrace}
}

// Format returns an empty string when nothing failed
func (f *FailureFormatter) Format(run Run) (string, error) {
	failed := collect(run.Root, isFailureOrigin)
	if len(failed) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	buf.WriteString(ui.BuildBoxHeader(fmt.Sprintf("Failures (%d)", len(failed)), listingWidth))
	for _, res := range failed {
		buf.WriteString(ui.BuildBoxLine(fmt.Sprintf("%s %s [%s]", statusText(res.Status()), res.FullName(), siteText(res.Site())), listingWidth))
	}
	buf.WriteString(ui.BuildBoxFooter(listingWidth))

	for _, res := range failed {
		fmt.Fprintf(&buf, "\n%s %s\n", statusChar(res.Status()), res.FullName())
		writeIndented(&buf, res.Message())
		if f.showTrace && res.Trace() != "" {
			buf.WriteString("    trace:\n")
			writeIndented(&buf, res.Trace())
		}
	}
	return buf.String(), nil
}

// NotRunFormatter lists skipped, ignored, cancelled and inconclusive nodes with their
// reasons
type NotRunFormatter struct{}

func NewNotRunFormatter() *NotRunFormatter {
	return &NotRunFormatter{}
}

// Format returns an empty string when every node produced a verdict
func (f *NotRunFormatter) Format(run Run) (string, error) {
	notRun := collect(run.Root, isNotRun)
	if len(notRun) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	buf.WriteString(ui.BuildBoxHeader(fmt.Sprintf("Not run (%d)", len(notRun)), listingWidth))
	for _, res := range notRun {
		line := fmt.Sprintf("%s %s", statusText(res.Status()), res.FullName())
		if msg := firstLine(res.Message()); msg != "" {
			line += ": " + msg
		}
		buf.WriteString(ui.BuildBoxLine(line, listingWidth))
	}
	buf.WriteString(ui.BuildBoxFooter(listingWidth))
	return buf.String(), nil
}

// collect returns the matching results in declaration order
func collect(root *result.Result, match func(*result.Result) bool) []*result.Result {
	if root == nil {
		return nil
	}
	var out []*result.Result
	root.Walk(func(res *result.Result, _ int) bool {
		if match(res) {
			out = append(out, res)
		}
		return true
	})
	return out
}

func siteText(site types.FailureSite) string {
	if site == types.FailureSiteNone {
		return string(types.FailureSiteTest)
	}
	return string(site)
}

func writeIndented(buf *bytes.Buffer, s string) {
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		buf.WriteString("    " + line + "\n")
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
