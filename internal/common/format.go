package common

import (
	"fmt"
	"io"
	"strings"
)

const (
	ReportWidth     = 80
	WideReportWidth = 100
)

// Report renders the boxed plain-text summaries printed by the operator commands.
type Report struct {
	w     io.Writer
	width int
}

func NewReport(w io.Writer, width int) *Report {
	return &Report{w: w, width: width}
}

func (r *Report) rule(char string) string {
	return strings.Repeat(char, r.width)
}

// Title opens a report.
func (r *Report) Title(title string) {
	fmt.Fprintf(r.w, "\n%s\n%s\n%s\n", r.rule("="), title, r.rule("="))
}

// Close ends a report with a summary line.
func (r *Report) Close(summary string) {
	fmt.Fprintf(r.w, "\n%s\n%s\n%s\n\n", r.rule("="), summary, r.rule("="))
}

func (r *Report) Rule() {
	fmt.Fprintln(r.w, r.rule("="))
}

func (r *Report) Field(label string, value any) {
	fmt.Fprintf(r.w, "%-18s %v\n", label+":", value)
}

// Group starts a boxed section: a heading, its facts, then a divider.
func (r *Report) Group(heading string, facts ...string) {
	fmt.Fprintf(r.w, "\n┌─ %s\n", heading)
	for _, f := range facts {
		fmt.Fprintf(r.w, "│  %s\n", f)
	}
	fmt.Fprintln(r.w, "├"+strings.Repeat("─", r.width-2))
}

// Item prints one entry of a group. The last entry closes the box.
func (r *Report) Item(isLast bool, line string, details ...string) {
	head, indent := "│  ", "│  "
	if isLast {
		head, indent = "└  ", "   "
	}
	fmt.Fprintf(r.w, "%s %s\n", head, line)
	for _, d := range details {
		fmt.Fprintf(r.w, "%s   %s\n", indent, d)
	}
}
