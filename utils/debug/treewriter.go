// Package debug renders indented plain text dumps for debug reports.
package debug

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/maruel/natural"
)

// TreeWriter accumulates indented lines. Zero indentation unit is two spaces.
type TreeWriter struct {
	w *strings.Builder
}

func NewTreeWriter() *TreeWriter {
	return &TreeWriter{
		w: &strings.Builder{},
	}
}

func (tw TreeWriter) String() string {
	return tw.w.String()
}

func (tw TreeWriter) indent(depth int) {
	for range depth {
		tw.w.WriteString("  ")
	}
}

func (tw TreeWriter) Line(depth int, format string, args ...any) {
	tw.indent(depth)
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

// TextBlock writes label with quoted value on a single line.
func (tw TreeWriter) TextBlock(depth int, label, value string) {
	tw.indent(depth)
	tw.w.WriteString(label)
	tw.w.WriteString(": ")
	tw.w.WriteString(encodeText(value))
	tw.w.WriteByte('\n')
}

// Map writes one TextBlock per key, keys in natural order ("m2" before "m10")
// and labels padded to the same width.
func (tw TreeWriter) Map(depth int, m map[string]string) {
	keys := make([]string, 0, len(m))
	width := 0
	for k := range m {
		keys = append(keys, k)
		width = max(width, len(k))
	}
	sort.Sort(natural.StringSlice(keys))
	for _, k := range keys {
		tw.TextBlock(depth, k+strings.Repeat(" ", width-len(k)), m[k])
	}
}

// Verbatim writes multi line text as is, every line indented. Trailing
// empty lines are dropped.
func (tw TreeWriter) Verbatim(depth int, text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	for line := range strings.SplitSeq(text, "\n") {
		if line != "" {
			tw.indent(depth)
		}
		tw.w.WriteString(line)
		tw.w.WriteByte('\n')
	}
}

func encodeText(raw string) string {
	if raw == "" {
		return raw
	}
	return strconv.Quote(raw)
}
