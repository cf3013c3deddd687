package pipeline_test

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"cssmc/css"
	"cssmc/graph"
	"cssmc/icss"
	"cssmc/pipeline"
	"cssmc/plugin"
	"cssmc/plugins"
	"cssmc/resolve"
)

func files(sources map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, src := range sources {
		fsys[name] = &fstest.MapFile{Data: []byte(src)}
	}
	return fsys
}

func newLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1)))
}

func catalog(t *testing.T, specs ...plugins.Spec) []plugin.Descriptor {
	t.Helper()
	descs, err := plugins.NewCatalog(zap.NewNop()).Descriptors(specs)
	if err != nil {
		t.Fatalf("Descriptors() error = %v", err)
	}
	return descs
}

func run(t *testing.T, fsys fs.FS, opts pipeline.Options, descs []plugin.Descriptor, entries ...string) (*pipeline.Result, error) {
	t.Helper()
	log := newLogger(t)
	runner, err := plugin.NewRunner(log, descs...)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	p, err := pipeline.New(log, fsys, runner, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p.Build(context.Background(), entries...)
}

func artifact(t *testing.T, res *pipeline.Result, id graph.ID) pipeline.Artifact {
	t.Helper()
	for _, a := range res.Modules {
		if a.ID == id {
			return a
		}
	}
	t.Fatalf("module %s not in result", id)
	return pipeline.Artifact{}
}

var sizes = files(map[string]string{
	"sizes.css": `@value size_m: 8px;`,
	"index.css": `@value size_m from "./sizes.css";
.foo { width: calc(2 * size_m); }`,
})

func TestBuildCalcAfterResolution(t *testing.T) {
	descs := catalog(t, plugins.Spec{Name: "calc", Stages: []string{"post-resolve"}})
	res, err := run(t, sizes, pipeline.Options{Mode: icss.ModeGlobal}, descs, "index.css")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := artifact(t, res, "index.css").Sheet.String(); got != ".foo {\n  width: 16px;\n}\n" {
		t.Errorf("index.css =\n%s", got)
	}
	if got := res.Exports()["index.css"]["size_m"]; got != "8px" {
		t.Errorf("size_m export = %q", got)
	}
}

func TestBuildCalcBeforeCompilation(t *testing.T) {
	var seen string
	calc := plugins.NewCalcTransform(zap.NewNop())
	descs := []plugin.Descriptor{{
		Name:   "calc",
		Stages: plugin.NewStageSet(plugin.StagePreCompile),
		Transform: func(ctx context.Context, stage plugin.Stage, sheet *css.Stylesheet) (*css.Stylesheet, error) {
			out, err := calc(ctx, stage, sheet)
			if err == nil && sheet.Source == "index.css" {
				seen = out.String()
			}
			return out, err
		},
	}}

	res, err := run(t, sizes, pipeline.Options{Mode: icss.ModeGlobal}, descs, "index.css")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	// arithmetic saw the symbol, not its value
	if !strings.Contains(seen, "calc(2 * size_m)") {
		t.Errorf("pre-compile output:\n%s", seen)
	}
	d, _ := artifact(t, res, "index.css").Sheet.Rules()[0].Declaration("width")
	if d.Value == "16px" || d.Value != "calc(2 * 8px)" {
		t.Errorf("width = %q", d.Value)
	}
}

var loop = files(map[string]string{
	"index.css": `@each $color in red, green, blue {
  .text-$color { color: $color; }
}`,
})

func TestBuildEachBeforeCompilation(t *testing.T) {
	descs := catalog(t, plugins.Spec{Name: "each", Stages: []string{"pre-compile"}})
	res, err := run(t, loop, pipeline.Options{}, descs, "index.css")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	exports := res.Exports()["index.css"]
	if len(exports) != 3 {
		t.Fatalf("exports = %v", exports)
	}
	distinct := make(map[string]bool)
	for _, color := range []string{"red", "green", "blue"} {
		scoped, ok := exports["text-"+color]
		if !ok {
			t.Fatalf("no export for text-%s: %v", color, exports)
		}
		distinct[scoped] = true
	}
	if len(distinct) != 3 {
		t.Errorf("scoped identifiers are not distinct: %v", exports)
	}
	if rules := artifact(t, res, "index.css").Sheet.Rules(); len(rules) != 3 {
		t.Errorf("expected 3 rules, got %d", len(rules))
	}
}

func TestBuildEachTooLate(t *testing.T) {
	// scheduling each after compilation is refused by the catalog
	_, err := plugins.NewCatalog(zap.NewNop()).Descriptors([]plugins.Spec{{Name: "each", Stages: []string{"post-resolve"}}})
	var se *plugin.StageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *plugin.StageError, got %v", err)
	}

	// unexpanded loop reaching the compiler fails the build
	res, err := run(t, loop, pipeline.Options{}, nil, "index.css")
	if res != nil {
		t.Error("partial result returned")
	}
	var syn *css.SyntaxError
	if !errors.As(err, &syn) || !strings.Contains(syn.Message, "@each") {
		t.Fatalf("expected syntax error about @each, got %v", err)
	}
}

func TestBuildPostBundleWithoutBundle(t *testing.T) {
	descs := catalog(t,
		plugins.Spec{Name: "banner", Stages: []string{"post-bundle"}, Options: map[string]string{"text": "v1"}},
		plugins.Spec{Name: "calc", Stages: []string{"post-resolve", "post-bundle"}},
	)
	runner, err := plugin.NewRunner(zap.NewNop(), descs...)
	if err != nil {
		t.Fatal(err)
	}
	_, err = pipeline.New(zap.NewNop(), sizes, runner, pipeline.Options{Bundle: false})
	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", n, err)
	}
	var se *plugin.StageError
	if !errors.As(multierr.Errors(err)[0], &se) || se.Plugin != "banner" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestBuildInvalidTemplate(t *testing.T) {
	if _, err := pipeline.New(zap.NewNop(), sizes, nil, pipeline.Options{ScopedNameTemplate: "{{ .Nope"}); err == nil {
		t.Error("expected template error")
	}
}

func TestBuildBundle(t *testing.T) {
	fsys := files(map[string]string{
		"base.css":   `@charset "utf-8"; @value gap: 4px; .reset { margin: 0; }`,
		"button.css": `@value gap from "./base.css"; .btn { padding: gap; }`,
		"app.css":    `@import url("fonts.css"); .app { composes: btn from "./button.css"; color: red; }`,
		"page.css":   `.page { color: blue; } .app { color: green; }`,
	})
	descs := catalog(t,
		plugins.Spec{Name: "banner", Stages: []string{"post-bundle"}, Options: map[string]string{"text": "v1"}},
	)
	res, err := run(t, fsys, pipeline.Options{Bundle: true, BundleName: "site.css", Parallelism: 2}, descs, "app.css", "page.css")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var order []string
	for _, a := range res.Modules {
		order = append(order, string(a.ID))
	}
	if got := strings.Join(order, " "); got != "base.css button.css app.css page.css" {
		t.Errorf("module order = %s", got)
	}

	// map scoped selectors back to local names
	local := make(map[string]string)
	for _, a := range res.Modules {
		for _, e := range a.Symbols.Exports {
			if fields := strings.Fields(e.Value); len(fields) > 0 {
				local["."+fields[0]] = "." + e.Name
			}
		}
	}

	if res.Bundle == nil || res.Bundle.Source != "site.css" {
		t.Fatalf("unexpected bundle %+v", res.Bundle)
	}
	var items []string
	for _, item := range res.Bundle.Items {
		switch {
		case item.Rule != nil && local[item.Rule.Selector] != "":
			items = append(items, local[item.Rule.Selector])
		case item.Rule != nil:
			items = append(items, item.Rule.Selector)
		default:
			items = append(items, "@"+item.AtRule.Name)
		}
	}
	if got := strings.Join(items, " "); got != "@charset @import :root .reset .btn .app .page .app" {
		t.Errorf("bundle order = %s", got)
	}

	exports := res.Exports()
	app := strings.Fields(exports["app.css"]["app"])
	if len(app) != 2 || app[1] != exports["button.css"]["btn"] {
		t.Errorf("app export = %v, btn = %q", app, exports["button.css"]["btn"])
	}
	if exports["page.css"]["app"] == exports["app.css"]["app"] {
		t.Error("same local name in two modules produced one identifier")
	}
	// module artifacts are not affected by post-bundle plugins
	for _, a := range res.Modules {
		if strings.Contains(a.Sheet.String(), plugins.BannerProperty) {
			t.Errorf("banner leaked into %s", a.ID)
		}
	}
}

func TestBuildIncludePaths(t *testing.T) {
	fsys := files(map[string]string{
		"src/index.css":                 `@value primary from "~theme/colors.css"; .a { color: primary; }`,
		"node_modules/theme/colors.css": `@value primary: #123456;`,
	})
	res, err := run(t, fsys, pipeline.Options{IncludePaths: []string{"node_modules"}}, nil, "src/index.css")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	d, _ := artifact(t, res, "src/index.css").Sheet.Rules()[0].Declaration("color")
	if d.Value != "#123456" {
		t.Errorf("color = %q", d.Value)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		sources map[string]string
		check   func(t *testing.T, err error)
	}{
		{
			name: "cycle",
			sources: map[string]string{
				"a.css": `@value x from "./b.css"; .a { color: x; }`,
				"b.css": `@value y from "./a.css"; @value x: red;`,
			},
			check: func(t *testing.T, err error) {
				var ce *graph.CycleError
				if !errors.As(err, &ce) || !strings.Contains(err.Error(), "a.css -> b.css -> a.css") {
					t.Errorf("expected cycle error, got %v", err)
				}
			},
		},
		{
			name: "unresolved",
			sources: map[string]string{
				"a.css": `@value x from "./b.css";`,
				"b.css": `@value y: red;`,
			},
			check: func(t *testing.T, err error) {
				var ue *resolve.UnresolvedImportError
				if !errors.As(err, &ue) || ue.Symbol != "x" || ue.Importer != "a.css" || ue.Exporter != "b.css" {
					t.Errorf("expected unresolved import error, got %v", err)
				}
			},
		},
		{
			name:    "missing file",
			sources: map[string]string{"a.css": `@value x from "./missing.css";`},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, fs.ErrNotExist) {
					t.Errorf("expected fs.ErrNotExist, got %v", err)
				}
			},
		},
		{
			name:    "syntax",
			sources: map[string]string{"a.css": `.a { color: red;`},
			check: func(t *testing.T, err error) {
				var se *css.SyntaxError
				if !errors.As(err, &se) || se.Module != "a.css" {
					t.Errorf("expected syntax error in a.css, got %v", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := run(t, files(tt.sources), pipeline.Options{}, nil, "a.css")
			if res != nil {
				t.Error("partial result returned")
			}
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestBuildPluginRuntimeError(t *testing.T) {
	boom := errors.New("boom")
	descs := []plugin.Descriptor{{
		Name:   "broken",
		Stages: plugin.NewStageSet(plugin.StagePostResolve),
		Transform: func(context.Context, plugin.Stage, *css.Stylesheet) (*css.Stylesheet, error) {
			return nil, boom
		},
	}}
	res, err := run(t, sizes, pipeline.Options{}, descs, "index.css")
	var re *plugin.RuntimeError
	if res != nil || !errors.As(err, &re) || re.Plugin != "broken" || re.Stage != plugin.StagePostResolve || !errors.Is(err, boom) {
		t.Errorf("expected runtime error, got %v", err)
	}
}

func TestBuildDeterministic(t *testing.T) {
	fsys := files(map[string]string{
		"a.css": `@value c from "./c.css"; .a { color: c; }`,
		"b.css": `@value c from "./c.css"; .b { composes: a from "./a.css"; color: c; }`,
		"c.css": `@value c: red; .cc { color: c; }`,
	})
	render := func(parallelism int) string {
		res, err := run(t, fsys, pipeline.Options{Bundle: true, HashContent: true, Parallelism: parallelism}, nil, "b.css", "a.css")
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		return res.Bundle.String()
	}
	want := render(1)
	for range 5 {
		if got := render(0); got != want {
			t.Fatalf("non deterministic output:\n%s\n---\n%s", got, want)
		}
	}
}

func TestBuildEscapedClassNames(t *testing.T) {
	fsys := files(map[string]string{
		"utils.css": `.sm\:flex { display: flex; } .w-1\/2 { width: 50%; }`,
		"card.css":  `.card { composes: sm\:flex w-1\/2 from "./utils.css"; }`,
	})
	res, err := run(t, fsys, pipeline.Options{Bundle: true}, nil, "card.css")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	exports := res.Exports()
	flex, half := exports["utils.css"]["sm:flex"], exports["utils.css"]["w-1/2"]
	if flex == "" || half == "" {
		t.Fatalf("escaped classes not exported: %v", exports["utils.css"])
	}
	card := strings.Fields(exports["card.css"]["card"])
	if len(card) != 3 || card[1] != flex || card[2] != half {
		t.Errorf("card = %v, want composition of %s and %s", card, flex, half)
	}
	if !strings.Contains(res.Bundle.String(), "."+flex+" {") {
		t.Errorf("bundle lacks scoped selector %s:\n%s", flex, res.Bundle)
	}
}

func TestBuildEntries(t *testing.T) {
	res, err := run(t, sizes, pipeline.Options{}, nil, "/index.css", "index.css", "sizes.css")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(res.Modules) != 2 || res.Modules[0].ID != "sizes.css" {
		t.Errorf("unexpected modules %+v", res.Modules)
	}
	if _, err := run(t, sizes, pipeline.Options{}, nil, "../index.css"); err == nil {
		t.Error("expected error for entry outside of root")
	}
	if _, err := run(t, sizes, pipeline.Options{}, nil); err == nil {
		t.Error("expected error for empty entry list")
	}
}
