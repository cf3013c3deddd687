package resolve_test

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"cssmc/graph"
	"cssmc/resolve"
)

func TestLocator(t *testing.T) {
	fsys := fstest.MapFS{
		"index.css":                  {Data: []byte("")},
		"components/button.css":      {Data: []byte("")},
		"components/theme.css":       {Data: []byte("")},
		"shared/colors.css":          {Data: []byte("")},
		"vendor/kit/colors.css":      {Data: []byte("")},
		"node_modules/kit/reset.css": {Data: []byte("")},
	}
	l := resolve.NewLocator(fsys, []string{"node_modules", "/vendor/"})

	tests := []struct {
		importer string
		request  string
		want     graph.ID
	}{
		{"components/button.css", "./theme.css", "components/theme.css"},
		{"components/button.css", "../shared/colors.css", "shared/colors.css"},
		{"components/button.css", "/index.css", "index.css"},
		{"index.css", "~kit/reset.css", "node_modules/kit/reset.css"},
		{"index.css", "kit/colors.css", "vendor/kit/colors.css"},
		{"components/button.css", "shared/colors.css", "shared/colors.css"},
	}
	for _, tt := range tests {
		got, err := l.Locate(graph.ID(tt.importer), tt.request)
		if err != nil {
			t.Errorf("Locate(%s, %s) error = %v", tt.importer, tt.request, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Locate(%s, %s) = %s, want %s", tt.importer, tt.request, got, tt.want)
		}
	}
}

func TestLocatorErrors(t *testing.T) {
	fsys := fstest.MapFS{"index.css": {Data: []byte("")}}
	l := resolve.NewLocator(fsys, nil)

	if _, err := l.Locate("index.css", "./missing.css"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
	for _, req := range []string{"../outside.css", "https://example.com/a.css", ""} {
		if _, err := l.Locate("index.css", req); err == nil {
			t.Errorf("Locate(%q) expected error", req)
		}
	}
}
