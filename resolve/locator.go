package resolve

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"cssmc/graph"
)

// Locator maps import requests to module IDs within a source tree.
type Locator struct {
	fsys         fs.FS
	includePaths []string
}

// NewLocator creates locator over fsys. Include paths are slash separated
// and relative to the root of fsys.
func NewLocator(fsys fs.FS, includePaths []string) *Locator {
	var inc []string
	for _, p := range includePaths {
		p = path.Clean(strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/"))
		if p != "" {
			inc = append(inc, p)
		}
	}
	return &Locator{fsys: fsys, includePaths: inc}
}

// Locate finds module for request made by importer:
//
//	"./x.css", "../x.css"  relative to importer
//	"/x.css"               relative to root
//	"~pkg/x.css", "x.css"  first match in include paths, then relative to root
func (l *Locator) Locate(importer graph.ID, request string) (graph.ID, error) {
	if request == "" {
		return "", fmt.Errorf("empty import request in %s", importer)
	}
	if strings.Contains(request, "://") || strings.HasPrefix(request, "//") {
		return "", fmt.Errorf("%s: remote import %q is not supported", importer, request)
	}

	var candidates []string
	switch {
	case strings.HasPrefix(request, "./") || strings.HasPrefix(request, "../"):
		candidates = append(candidates, path.Join(path.Dir(string(importer)), request))
	case strings.HasPrefix(request, "/"):
		candidates = append(candidates, path.Clean(strings.TrimPrefix(request, "/")))
	default:
		bare := path.Clean(strings.TrimPrefix(request, "~"))
		for _, inc := range l.includePaths {
			candidates = append(candidates, path.Join(inc, bare))
		}
		candidates = append(candidates, bare)
	}

	for _, c := range candidates {
		if !fs.ValidPath(c) {
			return "", fmt.Errorf("%s: import %q points outside of source root", importer, request)
		}
		fi, err := fs.Stat(l.fsys, c)
		if err == nil && !fi.IsDir() {
			return graph.ID(c), nil
		}
	}
	return "", fmt.Errorf("%s: unable to locate %q: %w", importer, request, fs.ErrNotExist)
}
