package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Reporter formats diagnostics with Rust-style caret-pointed source
// context, exactly as the teacher's ErrorReporter did for compiler errors.
// It is source-aware when a Location names a file whose text was supplied
// to NewReporter, and falls back to an address-only rendering otherwise
// (the common case for CFG/cache/IPET diagnostics, which have no source
// file at all).
type Reporter struct {
	filename string
	lines    []string
}

// NewReporter creates a reporter over the given file's source text. Pass an
// empty source when the diagnostics it will render have no associated text
// (e.g. binary-address diagnostics); FormatDiagnostic degrades gracefully.
func NewReporter(filename, source string) *Reporter {
	var lines []string
	if source != "" {
		lines = strings.Split(source, "\n")
	}
	return &Reporter{filename: filename, lines: lines}
}

// FormatDiagnostic renders d the way the teacher rendered CompilerError:
// a colored header, a --> location line, a snippet with a caret marker when
// source is available, followed by suggestions, notes and help text.
func (r *Reporter) FormatDiagnostic(d *Diagnostic) string {
	var out strings.Builder
	levelColor := r.levelColor(d.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if d.Code != "" {
		out.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor(string(d.Level)), d.Code, d.Message))
	} else {
		out.WriteString(fmt.Sprintf("%s: %s\n", levelColor(string(d.Level)), d.Message))
	}

	width := lineNumberWidth(d.Location.Line)
	indent := strings.Repeat(" ", width)
	out.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("-->"), d.Location))
	out.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))

	if r.hasSource(d.Location.Line) {
		if d.Location.Line > 1 {
			out.WriteString(fmt.Sprintf("%s %s %s\n",
				dim(fmt.Sprintf("%*d", width, d.Location.Line-1)), dim("│"), r.lines[d.Location.Line-2]))
		}
		out.WriteString(fmt.Sprintf("%s %s %s\n",
			bold(fmt.Sprintf("%*d", width, d.Location.Line)), dim("│"), r.lines[d.Location.Line-1]))
		out.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("│"), r.marker(d.Location.Column, d.Level)))
		if d.Location.Line < len(r.lines) {
			out.WriteString(fmt.Sprintf("%s %s %s\n",
				dim(fmt.Sprintf("%*d", width, d.Location.Line+1)), dim("│"), r.lines[d.Location.Line]))
		}
	}

	if len(d.Suggestions) > 0 {
		out.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))
		cyan := color.New(color.FgCyan).SprintFunc()
		for i, s := range d.Suggestions {
			if i == 0 {
				out.WriteString(fmt.Sprintf("%s %s %s: %s\n", indent, cyan("help"), cyan("try"), s.Message))
			} else {
				out.WriteString(fmt.Sprintf("%s     %s\n", indent, s.Message))
			}
			if s.Replacement != "" {
				out.WriteString(fmt.Sprintf("%s %s %s\n", indent, cyan("│"), cyan(s.Replacement)))
			}
		}
	}

	for _, note := range d.Notes {
		blue := color.New(color.FgBlue).SprintFunc()
		out.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), blue("note:"), note))
	}

	if d.Help != "" {
		green := color.New(color.FgGreen).SprintFunc()
		out.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), green("help:"), d.Help))
	}

	out.WriteString("\n")
	return out.String()
}

func (r *Reporter) hasSource(line int) bool {
	return line > 0 && line <= len(r.lines)
}

func (r *Reporter) levelColor(level Level) func(...interface{}) string {
	switch level {
	case Error:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func (r *Reporter) marker(column int, level Level) string {
	spaces := strings.Repeat(" ", max0(column-1))
	markerColor := color.New(color.FgRed, color.Bold).SprintFunc()
	if level == Warning {
		markerColor = color.New(color.FgYellow, color.Bold).SprintFunc()
	}
	return spaces + markerColor("^")
}

func lineNumberWidth(line int) int {
	w := len(fmt.Sprintf("%d", line))
	if w < 3 {
		w = 3
	}
	return w
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
