//go:build !windows

package config

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// CleanPathSegment makes one segment of an output path safe to create under
// destination directory.
func CleanPathSegment(segment string) string {
	return guardSegment(strings.Map(func(sym rune) rune {
		if sym == 0 || sym == os.PathSeparator || sym == os.PathListSeparator {
			return -1
		}
		return sym
	}, segment))
}

func colorTerminal(stream *os.File) bool {
	return term.IsTerminal(int(stream.Fd()))
}
