package plugins_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"cssmc/css"
	"cssmc/plugin"
	"cssmc/plugins"
)

func parse(t *testing.T, src string) *css.Stylesheet {
	t.Helper()
	sheet, err := css.NewParser(zap.NewNop()).Parse("test.css", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return sheet
}

func transform(t *testing.T, name string, stage plugin.Stage, options map[string]string, src string) *css.Stylesheet {
	t.Helper()
	descs, err := plugins.NewCatalog(zaptest.NewLogger(t)).Descriptors([]plugins.Spec{{Name: name, Stages: []string{stage.String()}, Options: options}})
	if err != nil {
		t.Fatalf("Descriptors() error = %v", err)
	}
	out, err := descs[0].Transform(context.Background(), stage, parse(t, src))
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	return out
}

func TestCatalogDescriptors(t *testing.T) {
	c := plugins.NewCatalog(zap.NewNop())
	if got := strings.Join(c.Names(), ","); got != "banner,calc,each,rewrite-urls" {
		t.Errorf("Names() = %s", got)
	}

	descs, err := c.Descriptors([]plugins.Spec{
		{Name: "each", Stages: []string{"pre-compile"}},
		{Name: "calc", Stages: []string{"post-resolve", "post-bundle"}},
	})
	if err != nil {
		t.Fatalf("Descriptors() error = %v", err)
	}
	if len(descs) != 2 || descs[0].Name != "each" || !descs[1].Stages.Has(plugin.StagePostBundle) {
		t.Errorf("unexpected descriptors %+v", descs)
	}
}

func TestCatalogRejects(t *testing.T) {
	tests := []struct {
		name string
		spec plugins.Spec
		want string
	}{
		{"unknown plugin", plugins.Spec{Name: "autoprefixer", Stages: []string{"post-resolve"}}, "unknown plugin"},
		{"calc before resolution", plugins.Spec{Name: "calc", Stages: []string{"pre-compile"}}, "cannot run at pre-compile"},
		{"each after compilation", plugins.Spec{Name: "each", Stages: []string{"post-resolve"}}, "cannot run at post-resolve"},
		{"banner per module", plugins.Spec{Name: "banner", Stages: []string{"post-resolve"}, Options: map[string]string{"text": "x"}}, "cannot run at post-resolve"},
		{"no stages", plugins.Spec{Name: "calc"}, "no stages"},
		{"unknown stage", plugins.Spec{Name: "calc", Stages: []string{"post-compile"}}, "unknown stage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := plugins.NewCatalog(zap.NewNop()).Descriptors([]plugins.Spec{tt.spec})
			var se *plugin.StageError
			if !errors.As(err, &se) {
				t.Fatalf("expected *plugin.StageError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want %q", err, tt.want)
			}
		})
	}
}

func TestCatalogOptions(t *testing.T) {
	_, err := plugins.NewCatalog(zap.NewNop()).Descriptors([]plugins.Spec{
		{Name: "banner", Stages: []string{"post-bundle"}},
		{Name: "rewrite-urls", Stages: []string{"post-resolve"}, Options: map[string]string{"prefix": "/x", "other": "y"}},
		{Name: "calc", Stages: []string{"post-resolve"}, Options: map[string]string{"precision": "many"}},
	})
	if n := len(multierr.Errors(err)); n != 3 {
		t.Errorf("expected 3 errors, got %d: %v", n, err)
	}
}

func TestEach(t *testing.T) {
	out := transform(t, "each", plugin.StagePreCompile, nil, `
.base { margin: 0; }
@each $color in red, green, blue {
  .text-$color { color: $color; }
}
`)
	var selectors []string
	for _, r := range out.Rules() {
		selectors = append(selectors, r.Selector)
	}
	if got := strings.Join(selectors, " "); got != ".base .text-red .text-green .text-blue" {
		t.Errorf("selectors = %s", got)
	}
	if d, _ := out.Rules()[2].Declaration("color"); d.Value != "green" {
		t.Errorf("color = %q", d.Value)
	}
}

func TestEachNested(t *testing.T) {
	out := transform(t, "each", plugin.StagePreCompile, nil, `
@media print {
  @each $size in (s, "l") {
    @each $side in top, left {
      .m-$size .m-$side { margin: $side; }
    }
  }
}
`)
	media := out.Items[0].AtRule
	var got []string
	for _, item := range media.Items {
		got = append(got, item.Rule.Selector+"/"+item.Rule.Declarations[0].Value)
	}
	if strings.Join(got, ",") != ".m-s .m-top/top,.m-s .m-left/left,.m-l .m-top/top,.m-l .m-left/left" {
		t.Errorf("expanded = %v", got)
	}
}

func TestEachMalformed(t *testing.T) {
	descs, err := plugins.NewCatalog(zap.NewNop()).Descriptors([]plugins.Spec{{Name: "each", Stages: []string{"pre-compile"}}})
	if err != nil {
		t.Fatal(err)
	}
	for _, src := range []string{`@each color in red { .a { color: red; } }`, `@each $c in { .a { color: red; } }`, `@each $c in a,, b { .a { color: red; } }`} {
		_, err := descs[0].Transform(context.Background(), plugin.StagePreCompile, parse(t, src))
		var se *css.SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("%s: expected *css.SyntaxError, got %v", src, err)
		}
	}
}

func TestCalc(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"calc(2 * 8px)", "16px"},
		{"calc(8px * 2)", "16px"},
		{"calc(10px + 2px * 3)", "16px"},
		{"calc((10px + 2px) * 3)", "36px"},
		{"calc(100% / 3)", "33.33333%"},
		{"calc(1rem - calc(0.25rem * 2))", "0.5rem"},
		{"0 calc(2 * 4px) auto", "0 8px auto"},
		{"calc(100% - 10px)", "calc(100% - 10px)"},
		{"calc(2 * size_m)", "calc(2 * size_m)"},
		{"calc(var(--gap) * 2)", "calc(var(--gap) * 2)"},
		{"calc(4px / 0)", "calc(4px / 0)"},
		{"calc(2px * 3px)", "calc(2px * 3px)"},
		{"red", "red"},
	}
	for _, tt := range tests {
		out := transform(t, "calc", plugin.StagePostResolve, nil, ".a { width: "+tt.in+"; }")
		if d, _ := out.Rules()[0].Declaration("width"); d.Value != tt.want {
			t.Errorf("calc %q = %q, want %q", tt.in, d.Value, tt.want)
		}
	}
}

func TestCalcPrecision(t *testing.T) {
	out := transform(t, "calc", plugin.StagePostBundle, map[string]string{"precision": "2"}, ".a { width: calc(10px / 3); }")
	if d, _ := out.Rules()[0].Declaration("width"); d.Value != "3.33px" {
		t.Errorf("width = %q", d.Value)
	}
}

func TestRewriteURLs(t *testing.T) {
	out := transform(t, "rewrite-urls", plugin.StagePostResolve, map[string]string{"prefix": "https://cdn.example.com/assets/"}, `
@import "./theme.css";
.a { background: url(img/a.png); }
.b { background: url("/abs.png"), url(data:image/png;base64,AAAA), url(https://x.org/y.png); }
`)
	text := out.String()
	for _, want := range []string{
		`@import url("https://cdn.example.com/assets/theme.css");`,
		`url("https://cdn.example.com/assets/img/a.png")`,
		`url("/abs.png")`,
		`url("https://x.org/y.png")`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestBanner(t *testing.T) {
	out := transform(t, "banner", plugin.StagePostBundle, map[string]string{"text": `build "42"`}, `
@charset "utf-8";
@import url("a.css");
.a { color: red; }
`)
	if len(out.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(out.Items))
	}
	rule := out.Items[2].Rule
	if rule == nil || rule.Selector != ":root" {
		t.Fatalf("banner is not placed after imports: %+v", out.Items)
	}
	if d, _ := rule.Declaration(plugins.BannerProperty); d.Value != `"build \"42\""` {
		t.Errorf("banner value = %q", d.Value)
	}
}
