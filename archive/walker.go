// Package archive gives uniform read access to stylesheet sources kept either
// in a directory or in a zip archive.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/natural"
)

// DefaultPattern selects files processed when no entries are given.
const DefaultPattern = "*.css"

// WalkFunc is the type of the function called for each file visited by
// Walk. The name argument is slash separated path of the file relative to
// source root. If an error is returned, processing stops.
type WalkFunc func(name string) error

// Sources is an opened source tree.
type Sources struct {
	FS   fs.FS
	Path string

	closer io.Closer
}

// Open opens directory or zip archive at path. Archives with entries which
// could escape extraction directory are rejected as a whole.
func Open(p string) (*Sources, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return &Sources{FS: os.DirFS(p), Path: p}, nil
	}

	r, err := zip.OpenReader(p)
	if err != nil {
		if r != nil {
			r.Close()
		}
		return nil, fmt.Errorf("unable to open sources %q: %w", p, err)
	}
	for _, f := range r.File {
		if !isSafePath(f.Name) {
			r.Close()
			return nil, fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", f.Name)
		}
	}
	return &Sources{FS: r, Path: p, closer: r}, nil
}

// Close releases archive, it is a no-op for directories.
func (s *Sources) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Entries returns files whose base name matches pattern in natural order.
func (s *Sources) Entries(pattern string) ([]string, error) {
	var out []string
	err := Walk(s.FS, pattern, func(name string) error {
		out = append(out, name)
		return nil
	})
	return out, err
}

// Walk calls walkFn for every regular file in fsys whose base name matches
// pattern (see path.Match), in natural order of paths. Hidden directories
// are skipped. An empty pattern selects DefaultPattern.
func Walk(fsys fs.FS, pattern string, walkFn WalkFunc) error {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("bad pattern %q: %w", pattern, err)
	}

	var names []string
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			// ignore links, sockets, etc.
			return nil
		}
		if ok, _ := path.Match(pattern, d.Name()); ok {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Sort(natural.StringSlice(names))
	for _, name := range names {
		if err := walkFn(name); err != nil {
			return err
		}
	}
	return nil
}

// Rel converts path given on command line to a name inside sources. Names
// already relative to source root are returned cleaned.
func (s *Sources) Rel(p string) (string, error) {
	if filepath.IsAbs(p) {
		base, err := filepath.Abs(s.Path)
		if err != nil {
			return "", err
		}
		if p, err = filepath.Rel(base, p); err != nil {
			return "", err
		}
	}
	name := path.Clean(filepath.ToSlash(p))
	if !fs.ValidPath(name) || !isSafePath(name) {
		return "", fmt.Errorf("entry %q is outside of sources", p)
	}
	if _, err := fs.Stat(s.FS, name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("entry %q not found in %s: %w", name, s.Path, err)
		}
		return "", err
	}
	return name, nil
}

// isSafePath returns false for paths that could escape the extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
