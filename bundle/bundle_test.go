package bundle_test

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"cssmc/bundle"
	"cssmc/css"
)

func parse(t *testing.T, name, src string) *css.Stylesheet {
	t.Helper()
	sheet, err := css.NewParser(zap.NewNop()).Parse(name, []byte(src))
	if err != nil {
		t.Fatalf("Parse(%s) error = %v", name, err)
	}
	return sheet
}

func selectors(s *css.Stylesheet) string {
	var out []string
	for _, item := range s.Items {
		switch {
		case item.Rule != nil:
			out = append(out, item.Rule.Selector)
		case item.AtRule != nil:
			out = append(out, "@"+item.AtRule.Name)
		}
	}
	return strings.Join(out, " ")
}

func TestMergePreservesOrder(t *testing.T) {
	a := parse(t, "a.css", `.x { color: red; } .y { color: red; }`)
	b := parse(t, "b.css", `.x { color: blue; } @media print { .z { color: red; } }`)

	out := bundle.Merge("bundle.css", a, b)
	if out.Source != "bundle.css" {
		t.Errorf("Source = %q", out.Source)
	}
	if got := selectors(out); got != ".x .y .x @media" {
		t.Errorf("order = %s", got)
	}
	// no dedup, later rule wins by cascade
	if d, _ := out.Items[2].Rule.Declaration("color"); d.Value != "blue" {
		t.Errorf("second .x = %q", d.Value)
	}
}

func TestMergeHoistsCharsetAndImports(t *testing.T) {
	a := parse(t, "a.css", `@charset "utf-8"; @import url("one.css"); .a { color: red; }`)
	b := parse(t, "b.css", `@charset "latin1"; .b { color: red; } @import url("two.css");`)

	out := bundle.Merge("bundle.css", a, nil, b)
	if got := selectors(out); got != "@charset @import @import .a .b" {
		t.Errorf("order = %s", got)
	}
	if out.Items[0].AtRule.Prelude != `"utf-8"` {
		t.Errorf("charset = %s", out.Items[0].AtRule.Prelude)
	}
	if got := strings.Join(out.Imports(), ","); got != "one.css,two.css" {
		t.Errorf("imports = %s", got)
	}
}

func TestMergeEmpty(t *testing.T) {
	if out := bundle.Merge("bundle.css"); len(out.Items) != 0 {
		t.Errorf("expected empty bundle, got %d items", len(out.Items))
	}
}
