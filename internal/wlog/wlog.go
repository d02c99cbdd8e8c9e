// Package wlog is the small leveled logger used by the CLI and the
// analysis pipeline's --log channels. It follows the teacher's own idiom
// on its CLI surface: colorized fmt output, no structured-logging
// dependency, because the teacher never reached for one there either.
package wlog

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Channel names a --log verbosity channel from the CLI surface.
type Channel string

const (
	ChanProc Channel = "proc" // processor scheduling decisions
	ChanDeps Channel = "deps" // feature require/provide wiring
	ChanCFG  Channel = "cfg"  // CFG construction/transformation
	ChanBB   Channel = "bb"   // per-basic-block detail
	ChanInst Channel = "inst" // per-instruction detail
)

var allChannels = []Channel{ChanProc, ChanDeps, ChanCFG, ChanBB, ChanInst}

// ParseChannels parses a comma-separated --log flag value into a channel
// set. An unrecognised name is returned as an error so the CLI can report
// it immediately rather than silently logging nothing.
func ParseChannels(spec string) (map[Channel]bool, error) {
	enabled := make(map[Channel]bool)
	if strings.TrimSpace(spec) == "" {
		return enabled, nil
	}
	valid := make(map[Channel]bool, len(allChannels))
	for _, c := range allChannels {
		valid[c] = true
	}
	for _, part := range strings.Split(spec, ",") {
		c := Channel(strings.TrimSpace(part))
		if !valid[c] {
			names := make([]string, 0, len(allChannels))
			for _, v := range allChannels {
				names = append(names, string(v))
			}
			sort.Strings(names)
			return nil, fmt.Errorf("unknown --log channel %q (known: %s)", c, strings.Join(names, ", "))
		}
		enabled[c] = true
	}
	return enabled, nil
}

// Logger writes colorized, channel-gated progress messages. It carries no
// state beyond which channels are active and where to write, matching the
// teacher's stateless color.* call style.
type Logger struct {
	enabled map[Channel]bool
	out     io.Writer
}

// New creates a Logger writing to w with the given enabled channel set (as
// returned by ParseChannels).
func New(w io.Writer, enabled map[Channel]bool) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{enabled: enabled, out: w}
}

// Discard is a Logger with every channel disabled, for callers (e.g. tests)
// that don't want pipeline progress output.
func Discard() *Logger {
	return New(io.Discard, nil)
}

// Enabled reports whether channel c is active.
func (l *Logger) Enabled(c Channel) bool {
	return l.enabled[c]
}

// Logf writes a channel-tagged message when c is enabled.
func (l *Logger) Logf(c Channel, format string, args ...interface{}) {
	if !l.Enabled(c) {
		return
	}
	tag := color.New(color.FgCyan).Sprintf("[%s]", c)
	fmt.Fprintf(l.out, "%s %s\n", tag, fmt.Sprintf(format, args...))
}

// Fatalf writes a red-colored fatal line unconditionally. The caller is
// still responsible for returning the underlying error / exiting.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	fmt.Fprintln(l.out, color.New(color.FgRed, color.Bold).Sprintf("error: "+format, args...))
}

// Successf writes a green-colored success banner, mirroring the teacher's
// "✅ Successfully processed %s" CLI output.
func (l *Logger) Successf(format string, args ...interface{}) {
	fmt.Fprintln(l.out, color.New(color.FgGreen).Sprintf("✅ "+format, args...))
}
