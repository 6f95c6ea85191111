package ui

import (
	"strings"
	"unicode/utf8"
)

// Tree hierarchy symbols using box drawing characters
const (
	TreeBranch     = "├── "
	TreeLastBranch = "└── "
	TreeContinue   = "│   "
	TreeIndent     = "    "

	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxVertical    = "│"
	BoxHorizontal  = "─"
	BoxTeeRight    = "├"
	BoxTeeLeft     = "┤"
)

// BuildTreePrefix returns the connector drawn before a node at the given depth.
// parentIsLast holds, for every ancestor below the top level, whether it was the last
// of its siblings; those ancestors get no vertical line.
func BuildTreePrefix(depth int, isLast bool, parentIsLast []bool) string {
	if depth <= 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < depth-1; i++ {
		if i < len(parentIsLast) && parentIsLast[i] {
			b.WriteString(TreeIndent)
		} else {
			b.WriteString(TreeContinue)
		}
	}
	if isLast {
		b.WriteString(TreeLastBranch)
	} else {
		b.WriteString(TreeBranch)
	}
	return b.String()
}

// ChildIndent is the prefix for lines printed underneath a node, such as its error
// message, so that they line up with the node's own tree lines.
func ChildIndent(depth int, isLast bool, parentIsLast []bool) string {
	if depth <= 0 {
		return ""
	}
	next := append(append([]bool{}, parentIsLast...), isLast)
	var b strings.Builder
	for i := 0; i < depth; i++ {
		if i < len(next) && next[i] {
			b.WriteString(TreeIndent)
		} else {
			b.WriteString(TreeContinue)
		}
	}
	return b.String()
}

// BuildBoxHeader creates a box header with the given title and width
func BuildBoxHeader(title string, width int) string {
	titleLen := utf8.RuneCountInString(title)
	if width < titleLen+4 {
		width = titleLen + 4
	}
	padding := width - 4 - titleLen

	return BoxTopLeft + strings.Repeat(BoxHorizontal, width-2) + BoxTopRight + "\n" +
		BoxVertical + " " + title + strings.Repeat(" ", padding+1) + BoxVertical + "\n" +
		BoxTeeRight + strings.Repeat(BoxHorizontal, width-2) + BoxTeeLeft + "\n"
}

// BuildBoxLine creates a content line within a box, truncating by runes
func BuildBoxLine(content string, width int) string {
	maxLen := width - 4
	if maxLen < 4 {
		maxLen = 4
	}
	if utf8.RuneCountInString(content) > maxLen {
		runes := []rune(content)
		content = string(runes[:maxLen-3]) + "..."
	}
	padding := maxLen - utf8.RuneCountInString(content)
	return BoxVertical + " " + content + strings.Repeat(" ", padding+1) + BoxVertical + "\n"
}

// BuildBoxFooter creates a box footer with the given width
func BuildBoxFooter(width int) string {
	if width < 2 {
		width = 2
	}
	return BoxBottomLeft + strings.Repeat(BoxHorizontal, width-2) + BoxBottomRight + "\n"
}
