// Package resolve substitutes imported ICSS symbols with the values
// exported by their modules.
package resolve

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cssmc/css"
	"cssmc/graph"
	"cssmc/icss"
)

// UnresolvedImportError reports a symbol which is not exported by the
// module it is imported from.
type UnresolvedImportError struct {
	Importer graph.ID
	Exporter graph.ID
	Symbol   string
}

func (e *UnresolvedImportError) Error() string {
	return fmt.Sprintf("unresolved import: %s imports %q from %s which does not export it", e.Importer, e.Symbol, e.Exporter)
}

// Resolver resolves modules of a graph level by level.
type Resolver struct {
	log         *zap.Logger
	parallelism int
}

// New creates resolver. parallelism limits number of modules resolved at
// the same time, values below 1 mean no limit.
func New(log *zap.Logger, parallelism int) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log.Named("resolver"), parallelism: parallelism}
}

// Resolve returns resolved copies of all modules of g. Modules in g are not
// modified. Resolved modules have no imports left and their exports hold
// literal values or scoped identifiers only. The first failure cancels the
// remaining work and is returned.
func (r *Resolver) Resolve(ctx context.Context, g *graph.Graph) (map[graph.ID]*icss.Module, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}

	published := make(map[graph.ID]*icss.Module, g.Len())
	for depth, level := range levels {
		r.log.Debug("Resolving level", zap.Int("level", depth), zap.Int("modules", len(level)))

		results := make([]*icss.Module, len(level))
		eg, egCtx := errgroup.WithContext(ctx)
		if r.parallelism > 0 {
			eg.SetLimit(r.parallelism)
		}
		for i, id := range level {
			node, _ := g.Node(id)
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				mod, err := resolveModule(node, published)
				if err != nil {
					return err
				}
				results[i] = mod
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
		// publish only after the whole level is done, readers above never
		// see a map being written to
		for i, id := range level {
			published[id] = results[i]
		}
	}
	return published, nil
}

func resolveModule(node *graph.Node, published map[graph.ID]*icss.Module) (*icss.Module, error) {
	src := node.Module
	lookup := make(map[string]string, len(src.Symbols.Imports))
	for _, imp := range src.Symbols.Imports {
		dep := node.Requests[imp.Request]
		exporter, ok := published[dep]
		if !ok {
			return nil, fmt.Errorf("module %s resolved before its dependency %s", node.ID, dep)
		}
		v, ok := exporter.Symbols.Export(imp.Remote)
		if !ok {
			return nil, &UnresolvedImportError{Importer: node.ID, Exporter: dep, Symbol: imp.Remote}
		}
		lookup[imp.Local] = v
	}

	mod := &icss.Module{ID: src.ID, Sheet: src.Sheet.Clone()}
	if mod.Sheet == nil {
		mod.Sheet = &css.Stylesheet{Source: src.ID}
	}
	for _, e := range src.Symbols.Exports {
		mod.Symbols.Exports = append(mod.Symbols.Exports, icss.Export{Name: e.Name, Value: Substitute(e.Value, lookup)})
	}
	if len(lookup) == 0 {
		return mod, nil
	}

	mod.Sheet.Walk(func(rule *css.Rule, at *css.AtRule) error { //nolint:errcheck
		var decls []css.Declaration
		if rule != nil {
			decls = rule.Declarations
		} else {
			decls = at.Declarations
			if at.Name != "import" && at.Name != "charset" {
				at.Prelude = Substitute(at.Prelude, lookup)
			}
		}
		for i := range decls {
			decls[i].Value = Substitute(decls[i].Value, lookup)
		}
		return nil
	})
	return mod, nil
}

// Substitute replaces identifiers of value found in symbols.
func Substitute(value string, symbols map[string]string) string {
	if len(symbols) == 0 {
		return value
	}
	return css.MapIdents(value, func(ident string) (string, bool) {
		v, ok := symbols[ident]
		return v, ok
	})
}
