// Package misc keeps program identity: name, version and source revision.
package misc

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

// set by linker flags during release builds
var (
	appName = ""
	version = ""
	gitHash = ""
)

// GetAppName returns the program name used for logs, reports and panic files.
func GetAppName() string {
	if appName != "" {
		return appName
	}
	name := filepath.Base(os.Args[0])
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" || strings.HasSuffix(name, ".test") {
		return "cssmc"
	}
	return name
}

// GetVersion returns the program version.
func GetVersion() string {
	if version != "" {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return "dev"
}

// GetGitHash returns the source revision the program was built from.
func GetGitHash() string {
	if gitHash != "" {
		return gitHash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
