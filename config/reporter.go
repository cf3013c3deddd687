package config

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/maruel/natural"

	"cssmc/misc"
)

type ReporterConfig struct {
	Destination string `yaml:"destination" sanitize:"path_clean,assure_dir_exists_for_file" validate:"required,filepath"`
}

// Prepare creates empty report. When destination cannot be created report
// goes to a temporary file, see Name.
func (conf *ReporterConfig) Prepare() (*Report, error) {

	r := &Report{entries: make(map[string]entry)}

	if f, err := os.Create(conf.Destination); err == nil {
		r.file = f
	} else if f, err = os.CreateTemp("", misc.GetAppName()+"-report.*.zip"); err == nil {
		r.file = f
	} else {
		return nil, fmt.Errorf("unable to create report: %w", err)
	}
	return r, nil
}

// entry is either a reference to a file or directory on disk, read when
// report is written, or data captured at the time of the call.
type entry struct {
	path  string
	data  []byte
	stamp time.Time
}

func (e entry) origin() string {
	if e.path != "" {
		return e.path
	}
	return fmt.Sprintf("<%d bytes>", len(e.data))
}

// Report collects build diagnostics: configuration, logs, module graph and
// symbol dumps, snapshots of source stylesheets and written outputs. Nothing
// is written until Close. All methods are no-ops on nil Report and are safe
// for concurrent use.
type Report struct {
	mu      sync.Mutex
	entries map[string]entry
	file    *os.File
}

// Close writes the archive.
func (r *Report) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	defer r.file.Close()
	return r.writeArchive()
}

// Name returns name of the archive file.
func (r *Report) Name() string {
	if r == nil || r.file == nil {
		return ""
	}
	if n, err := filepath.Abs(r.file.Name()); err == nil {
		return n
	}
	return r.file.Name()
}

// Store references file or directory at path. Its content is read when the
// report is closed, so files still being written (logs) end up complete.
func (r *Report) Store(name, path string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, err := filepath.Abs(path); err == nil {
		path = p
	}
	if old, exists := r.entries[name]; exists && old.path != path {
		panic(fmt.Sprintf("report entry [%s] already refers to %s, not %s", name, old.origin(), path))
	}
	r.entries[name] = entry{path: path}
}

// StoreData puts data into the report under name.
func (r *Report) StoreData(name string, data []byte) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("report entry [%s] already exists", name))
	}
	r.entries[name] = entry{data: data, stamp: time.Now()}
}

// StoreSources captures current content of stylesheets from fsys under
// prefix. Repeated snapshots with the same prefix get a numbered prefix.
func (r *Report) StoreSources(prefix string, fsys fs.FS, names []string) error {
	if r == nil {
		return nil
	}

	captured := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("unable to snapshot %s: %w", name, err)
		}
		captured[name] = data
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	base := prefix
	for n := 1; r.hasPrefix(base + "/"); n++ {
		base = fmt.Sprintf("%s-%d", prefix, n)
	}
	stamp := time.Now()
	for name, data := range captured {
		r.entries[path.Join(base, name)] = entry{data: data, stamp: stamp}
	}
	return nil
}

func (r *Report) hasPrefix(prefix string) bool {
	for name := range r.entries {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// writeArchive stores MANIFEST followed by all entries in its order.
func (r *Report) writeArchive() error {

	arc := zip.NewWriter(r.file)
	defer arc.Close()

	names, manifest := prepareManifest(r.entries)
	if err := saveFile(arc, "MANIFEST", time.Now(), manifest); err != nil {
		return err
	}

	for _, name := range names {
		e := r.entries[name]
		if e.path == "" {
			if err := saveFile(arc, name, e.stamp, bytes.NewReader(e.data)); err != nil {
				return err
			}
			continue
		}

		// referenced files which never appeared are skipped
		info, err := os.Stat(e.path)
		if err != nil {
			continue
		}
		switch {
		case info.Mode().IsRegular():
			if err := saveOnDisk(arc, name, e.path, info.ModTime()); err != nil {
				return err
			}
		case info.IsDir():
			if err := saveDir(arc, name, e.path); err != nil {
				return err
			}
		}
	}
	return nil
}

func prepareManifest(entries map[string]entry) ([]string, *bytes.Buffer) {

	buf := new(bytes.Buffer)
	if len(entries) == 0 {
		return nil, buf
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Sort(natural.StringSlice(keys))

	for _, k := range keys {
		e := entries[k]
		stamp := "-"
		if !e.stamp.IsZero() {
			stamp = e.stamp.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(buf, "%s\t%s\t%s\n", k, stamp, e.origin())
	}
	return keys, buf
}

func saveFile(dst *zip.Writer, name string, t time.Time, src io.Reader) error {
	w, err := dst.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: t})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func saveOnDisk(dst *zip.Writer, name, path string, t time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return saveFile(dst, name, t, f)
}

func saveDir(dst *zip.Writer, name, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			// links, sockets and directories themselves
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return saveOnDisk(dst, path.Join(name, filepath.ToSlash(rel)), p, info.ModTime())
	})
}
