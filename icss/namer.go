package icss

import (
	"bytes"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"github.com/cespare/xxhash/v2"
	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/gosimple/slug"
	"golang.org/x/text/unicode/norm"
)

// DefaultScopedNameTemplate produces identifiers like "index_foo__1a2b3c4d".
const DefaultScopedNameTemplate = `{{ .Name }}_{{ .Local }}__{{ .Hash | trunc 8 }}`

// NameValues holds variables available to scoped name templates.
type NameValues struct {
	Name        string // Slug of module file name without extension
	Dir         string // Slug of module directory
	Path        string // Slug of full module path
	Local       string // Local name, characters not allowed in identifiers hex encoded
	Original    string // Local name as defined
	Hash        string // Hex hash of (module, local[, content hash])
	ContentHash string // Hex hash of module source, empty when content hashing is off
}

var identPattern = regexp.MustCompile(`^-?[_a-zA-Z\x{0080}-\x{10FFFF}][-_a-zA-Z0-9\x{0080}-\x{10FFFF}]*$`)

// Namer derives scoped identifiers. It is safe for concurrent use. Every
// identifier issued during a build is remembered, so two different
// (module, name) pairs can never share one.
type Namer struct {
	tmpl *template.Template

	mu     sync.Mutex
	issued map[string]string // identifier -> module + "\x00" + local
}

// NewNamer parses the scoped name template. An empty template selects
// DefaultScopedNameTemplate.
func NewNamer(tmpl string) (*Namer, error) {
	if tmpl == "" {
		tmpl = DefaultScopedNameTemplate
	}
	t, err := template.New("scoped_name_template").Funcs(sprig.FuncMap()).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("unable to parse scoped name template: %w", err)
	}
	n := &Namer{tmpl: t, issued: make(map[string]string)}

	// make sure template produces usable identifiers before any file is processed
	if _, err := n.render(n.values("sample/sample.css", "sample", "")); err != nil {
		return nil, err
	}
	return n, nil
}

// ContentHash returns hash of module source suitable for Scope.
func ContentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Scope returns scoped identifier for local name defined in module.
func (n *Namer) Scope(module, local, contentHash string) (string, error) {
	ident, err := n.render(n.values(module, local, contentHash))
	if err != nil {
		return "", err
	}

	key := norm.NFC.String(module) + "\x00" + norm.NFC.String(local)

	n.mu.Lock()
	defer n.mu.Unlock()
	if prev, ok := n.issued[ident]; ok && prev != key {
		pm, pl, _ := strings.Cut(prev, "\x00")
		return "", fmt.Errorf("scoped identifier %q collides: issued for %q in %s and %q in %s", ident, pl, pm, local, module)
	}
	n.issued[ident] = key
	return ident, nil
}

func (n *Namer) values(module, local, contentHash string) NameValues {
	module = norm.NFC.String(module)
	local = norm.NFC.String(local)

	base := path.Base(module)
	base = strings.TrimSuffix(base, path.Ext(base))
	if strings.HasSuffix(strings.ToLower(base), ".module") {
		base = base[:len(base)-len(".module")]
	}

	key := module + "\x00" + local
	if contentHash != "" {
		key += "\x00" + contentHash
	}

	return NameValues{
		Name:        slug.Make(base),
		Dir:         slug.Make(path.Dir(module)),
		Path:        slug.Make(strings.TrimSuffix(module, path.Ext(module))),
		Local:       identSafe(local),
		Original:    local,
		Hash:        fmt.Sprintf("%016x", xxhash.Sum64String(key)),
		ContentHash: contentHash,
	}
}

// identSafe replaces characters which need escaping in an identifier with
// their hex code: "sm:flex" becomes "sm_3a_flex".
func identSafe(local string) string {
	var sb strings.Builder
	for _, r := range local {
		switch {
		case r == '-' || r == '_' || r >= 0x80,
			'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
			sb.WriteRune(r)
		default:
			fmt.Fprintf(&sb, "_%x_", r)
		}
	}
	return sb.String()
}

func (n *Namer) render(v NameValues) (string, error) {
	buf := new(bytes.Buffer)
	if err := n.tmpl.Execute(buf, v); err != nil {
		return "", fmt.Errorf("unable to expand scoped name template: %w", err)
	}
	ident := strings.TrimSpace(buf.String())
	if !identPattern.MatchString(ident) {
		return "", fmt.Errorf("scoped name template produced invalid identifier %q for %q", ident, v.Original)
	}
	return ident, nil
}
