// Package pipeline runs a complete CSS Modules build: discovery and
// compilation, graph construction, value resolution, plugin stages and
// bundling.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cssmc/bundle"
	"cssmc/css"
	"cssmc/graph"
	"cssmc/icss"
	"cssmc/plugin"
	"cssmc/resolve"
)

// DefaultBundleName is used when Options.BundleName is empty.
const DefaultBundleName = "bundle.css"

// Options control a build.
type Options struct {
	Mode               icss.Mode
	ScopedNameTemplate string
	HashContent        bool
	Bundle             bool
	BundleName         string
	// Parallelism limits concurrently processed modules, 0 means no limit.
	Parallelism  int
	IncludePaths []string
}

// Artifact is a fully processed module.
type Artifact struct {
	ID      graph.ID
	Sheet *css.Stylesheet
	// Symbols holds resolved exports, imports are always empty.
	Symbols icss.Table
}

// Result of a successful build.
type Result struct {
	BuildID uuid.UUID
	// Modules in emit order: dependencies before dependents, entries in
	// input order.
	Modules []Artifact
	// Bundle is nil unless bundling is enabled.
	Bundle *css.Stylesheet
	// Graph holds compiled (unresolved) modules, for diagnostics.
	Graph *graph.Graph
}

// Exports returns export maps of all modules keyed by module ID.
func (r *Result) Exports() map[string]map[string]string {
	out := make(map[string]map[string]string, len(r.Modules))
	for _, a := range r.Modules {
		out[string(a.ID)] = a.Symbols.ExportMap()
	}
	return out
}

// Pipeline is configured once and may run any number of builds.
type Pipeline struct {
	log    *zap.Logger
	fsys   fs.FS
	runner *plugin.Runner
	parser *css.Parser
	opts   Options
}

// New validates configuration. Every scheduling problem is reported here,
// before any file is read.
func New(log *zap.Logger, fsys fs.FS, runner *plugin.Runner, opts Options) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if runner == nil {
		var err error
		if runner, err = plugin.NewRunner(log); err != nil {
			return nil, err
		}
	}
	if opts.BundleName == "" {
		opts.BundleName = DefaultBundleName
	}
	if opts.Parallelism < 0 {
		opts.Parallelism = 0
	}

	var errs error
	if !opts.Bundle {
		for _, name := range runner.Scheduled(plugin.StagePostBundle) {
			errs = multierr.Append(errs, &plugin.StageError{
				Plugin: name,
				Stages: plugin.NewStageSet(plugin.StagePostBundle),
				Reason: "post-bundle stage never runs when bundling is disabled",
			})
		}
	}
	if _, err := icss.NewNamer(opts.ScopedNameTemplate); err != nil {
		errs = multierr.Append(errs, err)
	}
	if errs != nil {
		return nil, errs
	}

	log = log.Named("pipeline")
	log.Debug("Pipeline configured", zap.Stringer("mode", opts.Mode), zap.Bool("bundle", opts.Bundle), zap.Stringer("plugin stages", runner.Stages()))

	return &Pipeline{
		log:    log,
		fsys:   fsys,
		runner: runner,
		parser: css.NewParser(log),
		opts:   opts,
	}, nil
}

// build is the state of a single Build call.
type build struct {
	*Pipeline
	log      *zap.Logger
	compiler *icss.Compiler
	locator  *resolve.Locator
}

// unit is a module travelling through discovery.
type unit struct {
	id       graph.ID
	data     []byte
	sheet    *css.Stylesheet
	mod      *icss.Module
	requests map[string]graph.ID
}

// Build processes entries (paths relative to the root of the source file
// system) and everything they import. On error no result is returned.
func (p *Pipeline) Build(ctx context.Context, entries ...string) (*Result, error) {
	start := time.Now()
	id := uuid.New()
	log := p.log.With(zap.Stringer("build", id))

	if len(entries) == 0 {
		return nil, fmt.Errorf("nothing to build")
	}
	ids, err := entryIDs(entries)
	if err != nil {
		return nil, err
	}

	namer, err := icss.NewNamer(p.opts.ScopedNameTemplate)
	if err != nil {
		return nil, err
	}
	b := &build{
		Pipeline: p,
		log:      log,
		compiler: icss.NewCompiler(log, namer, p.opts.Mode),
		locator:  resolve.NewLocator(p.fsys, p.opts.IncludePaths),
	}
	log.Info("Build starting", zap.Int("entries", len(ids)), zap.Stringer("mode", p.opts.Mode), zap.Bool("bundle", p.opts.Bundle))

	g, err := b.discover(ctx, ids)
	if err != nil {
		return nil, err
	}
	order, err := g.EmitOrder()
	if err != nil {
		return nil, err
	}

	resolved, err := resolve.New(log, p.opts.Parallelism).Resolve(ctx, g)
	if err != nil {
		return nil, err
	}

	res := &Result{BuildID: id, Graph: g, Modules: make([]Artifact, 0, len(order))}
	for _, mid := range order {
		mod := resolved[mid]
		sheet, err := p.runner.Apply(ctx, plugin.StagePostResolve, string(mid), mod.Sheet.Clone())
		if err != nil {
			return nil, err
		}
		res.Modules = append(res.Modules, Artifact{ID: mid, Sheet: sheet, Symbols: mod.Symbols.Clone()})
	}

	if p.opts.Bundle {
		sheets := make([]*css.Stylesheet, 0, len(res.Modules))
		for _, a := range res.Modules {
			sheets = append(sheets, a.Sheet.Clone())
		}
		merged := bundle.Merge(p.opts.BundleName, sheets...)
		if res.Bundle, err = p.runner.Apply(ctx, plugin.StagePostBundle, p.opts.BundleName, merged); err != nil {
			return nil, err
		}
	}

	log.Info("Build completed", zap.Int("modules", len(res.Modules)), zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func entryIDs(entries []string) ([]graph.ID, error) {
	var (
		out  []graph.ID
		seen = make(map[graph.ID]bool)
	)
	for _, e := range entries {
		p := path.Clean(strings.TrimPrefix(strings.ReplaceAll(e, "\\", "/"), "/"))
		if !fs.ValidPath(p) || p == "." {
			return nil, fmt.Errorf("invalid entry %q", e)
		}
		if id := graph.ID(p); !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// discover compiles entries and every module reachable from them, wave by
// wave. Within a wave files are read, parsed and compiled concurrently,
// pre-compile plugins run sequentially in wave order.
func (b *build) discover(ctx context.Context, entries []graph.ID) (*graph.Graph, error) {
	g := graph.New()
	seen := make(map[graph.ID]bool)
	isEntry := make(map[graph.ID]bool)
	for _, id := range entries {
		seen[id], isEntry[id] = true, true
	}

	wave := entries
	for n := 0; len(wave) > 0; n++ {
		b.log.Debug("Compiling wave", zap.Int("wave", n), zap.Int("modules", len(wave)))

		units := make([]*unit, len(wave))
		for i, id := range wave {
			units[i] = &unit{id: id}
		}
		if err := b.each(ctx, units, b.load); err != nil {
			return nil, err
		}
		for _, u := range units {
			sheet, err := b.runner.Apply(ctx, plugin.StagePreCompile, string(u.id), u.sheet)
			if err != nil {
				return nil, err
			}
			sheet.Source = string(u.id)
			u.sheet = sheet
		}
		if err := b.each(ctx, units, b.compile); err != nil {
			return nil, err
		}

		var next []graph.ID
		for _, u := range units {
			if err := g.Add(u.id, u.mod, u.requests, isEntry[u.id]); err != nil {
				return nil, err
			}
			for _, req := range u.mod.Symbols.Requests() {
				if dep := u.requests[req]; !seen[dep] {
					seen[dep] = true
					next = append(next, dep)
				}
			}
		}
		wave = next
	}
	return g, nil
}

// each runs fn for all units with bounded parallelism, stopping at the
// first error.
func (b *build) each(ctx context.Context, units []*unit, fn func(*unit) error) error {
	eg, egCtx := errgroup.WithContext(ctx)
	if b.opts.Parallelism > 0 {
		eg.SetLimit(b.opts.Parallelism)
	}
	for _, u := range units {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			return fn(u)
		})
	}
	return eg.Wait()
}

func (b *build) load(u *unit) error {
	data, err := fs.ReadFile(b.fsys, string(u.id))
	if err != nil {
		return fmt.Errorf("unable to read module %s: %w", u.id, err)
	}
	sheet, err := b.parser.Parse(string(u.id), data)
	if err != nil {
		return err
	}
	u.data, u.sheet = data, sheet
	return nil
}

func (b *build) compile(u *unit) error {
	var hash string
	if b.opts.HashContent {
		hash = icss.ContentHash(u.data)
	}
	mod, err := b.compiler.Compile(u.sheet, hash)
	if err != nil {
		return err
	}
	u.requests = make(map[string]graph.ID)
	for _, req := range mod.Symbols.Requests() {
		dep, err := b.locator.Locate(u.id, req)
		if err != nil {
			return err
		}
		u.requests[req] = dep
	}
	u.mod, u.data = mod, nil
	return nil
}
