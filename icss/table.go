// Package icss compiles CSS Modules syntax (@value, composes, :global/:local
// scoping) into Interoperable CSS: a stylesheet with scoped identifiers plus
// an explicit :import/:export symbol table.
package icss

import (
	"fmt"
	"strings"

	"cssmc/css"
)

// Import is a reference to a symbol exported by another module.
type Import struct {
	Local   string // Name used inside the importing module
	Remote  string // Name exported by the referenced module
	Request string // Module request as written (e.g. "./sizes.css")
	Line    int
}

// Export is a symbol visible to importers. Before resolution Value may
// still reference import locals, afterwards it is a literal or a list of
// scoped identifiers.
type Export struct {
	Name  string
	Value string
}

// Table is the symbol table of a single module.
type Table struct {
	Imports []Import
	Exports []Export
}

// Export returns value of the named export.
func (t *Table) Export(name string) (string, bool) {
	for _, e := range t.Exports {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

// ExportMap returns exports as a map.
func (t *Table) ExportMap() map[string]string {
	m := make(map[string]string, len(t.Exports))
	for _, e := range t.Exports {
		m[e.Name] = e.Value
	}
	return m
}

// Requests returns distinct import requests in order of first appearance.
func (t *Table) Requests() []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, imp := range t.Imports {
		if !seen[imp.Request] {
			seen[imp.Request] = true
			out = append(out, imp.Request)
		}
	}
	return out
}

// ImportsFrom returns imports referencing the given request.
func (t *Table) ImportsFrom(request string) []Import {
	var out []Import
	for _, imp := range t.Imports {
		if imp.Request == request {
			out = append(out, imp)
		}
	}
	return out
}

// Clone returns a copy of the table.
func (t Table) Clone() Table {
	out := Table{}
	if t.Imports != nil {
		out.Imports = append([]Import(nil), t.Imports...)
	}
	if t.Exports != nil {
		out.Exports = append([]Export(nil), t.Exports...)
	}
	return out
}

// Module is a compiled stylesheet with its symbol table.
type Module struct {
	ID      string
	Sheet   *css.Stylesheet
	Symbols Table
}

// ICSS renders canonical ICSS for the module: one :import rule per
// request, a single :export rule, followed by the module body.
func (m *Module) ICSS() *css.Stylesheet {
	out := &css.Stylesheet{Source: m.ID}
	for _, req := range m.Symbols.Requests() {
		rule := &css.Rule{Selector: fmt.Sprintf(":import(%s)", css.Quote(req))}
		for _, imp := range m.Symbols.ImportsFrom(req) {
			rule.Declarations = append(rule.Declarations, css.Declaration{Property: imp.Local, Value: css.EscapeIdent(imp.Remote), Line: imp.Line})
		}
		out.Items = append(out.Items, css.Item{Rule: rule})
	}
	if len(m.Symbols.Exports) > 0 {
		rule := &css.Rule{Selector: ":export"}
		for _, e := range m.Symbols.Exports {
			rule.Declarations = append(rule.Declarations, css.Declaration{Property: css.EscapeIdent(e.Name), Value: e.Value})
		}
		out.Items = append(out.Items, css.Item{Rule: rule})
	}
	if m.Sheet != nil {
		out.Items = append(out.Items, m.Sheet.Clone().Items...)
	}
	return out
}

// importRequest returns request of ":import(...)" selector.
func importRequest(selector string) (string, bool) {
	s := strings.TrimSpace(selector)
	if !strings.HasPrefix(strings.ToLower(s), ":import(") || !strings.HasSuffix(s, ")") {
		return "", false
	}
	req := css.Unquote(s[len(":import(") : len(s)-1])
	return req, req != ""
}

// extract removes authored ICSS rules from the top level of sheet and
// returns their content.
func extract(sheet *css.Stylesheet) (Table, error) {
	var (
		table Table
		kept  = sheet.Items[:0]
	)
	for _, item := range sheet.Items {
		if item.Rule == nil {
			kept = append(kept, item)
			continue
		}
		sel := strings.TrimSpace(item.Rule.Selector)
		switch {
		case strings.EqualFold(sel, ":export"):
			for _, d := range item.Rule.Declarations {
				table.Exports = append(table.Exports, Export{Name: css.UnescapeIdent(d.Property), Value: d.Value})
			}
		case strings.HasPrefix(strings.ToLower(sel), ":import"):
			req, ok := importRequest(sel)
			if !ok {
				return Table{}, css.NewSyntaxError(sheet.Source, item.Rule.Line, 0, "malformed import selector %q", sel)
			}
			for _, d := range item.Rule.Declarations {
				table.Imports = append(table.Imports, Import{Local: d.Property, Remote: css.UnescapeIdent(strings.TrimSpace(d.Value)), Request: req, Line: d.Line})
			}
		default:
			kept = append(kept, item)
		}
	}
	sheet.Items = kept
	return table, nil
}
