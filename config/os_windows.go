//go:build windows

package config

import (
	"os"
	"strings"

	"golang.org/x/sys/windows"
	"golang.org/x/term"
)

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// CleanPathSegment makes one segment of an output path safe to create under
// destination directory. Windows strips trailing dots and spaces and
// reserves device names, so "nul.css" would never reach the disk.
func CleanPathSegment(segment string) string {
	out := strings.Map(func(sym rune) rune {
		if sym < 0x20 || strings.ContainsRune(`<>":/\|?*`, sym) {
			return -1
		}
		return sym
	}, segment)
	if out != "." && out != ".." {
		out = strings.TrimRight(out, ". ")
	}
	if base, _, _ := strings.Cut(out, "."); reservedNames[strings.ToUpper(base)] {
		out = "_" + out
	}
	return guardSegment(out)
}

// colorTerminal reports whether stream is a console able to process VT100
// sequences, switching it to that mode when needed (Windows 10 and later).
func colorTerminal(stream *os.File) bool {
	if windows.RtlGetVersion().MajorVersion < 10 || !term.IsTerminal(int(stream.Fd())) {
		return false
	}
	var mode uint32
	h := windows.Handle(stream.Fd())
	if err := windows.GetConsoleMode(h, &mode); err != nil {
		return false
	}
	return windows.SetConsoleMode(h, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING) == nil
}
