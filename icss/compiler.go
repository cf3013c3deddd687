package icss

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	tcss "github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"

	"cssmc/css"
)

// templating at-rules which must be expanded before compilation
var templatingRules = map[string]bool{
	"each":    true,
	"for":     true,
	"if":      true,
	"else":    true,
	"while":   true,
	"mixin":   true,
	"include": true,
}

var animationProperties = map[string]bool{
	"animation":              true,
	"animation-name":         true,
	"-webkit-animation":      true,
	"-webkit-animation-name": true,
}

var nonIdentChars = regexp.MustCompile(`[^-_a-zA-Z0-9]`)

// Compiler turns parsed CSS Modules into ICSS modules.
type Compiler struct {
	log   *zap.Logger
	namer *Namer
	mode  Mode
}

// NewCompiler creates compiler. All modules of a single build must share
// the same namer.
func NewCompiler(log *zap.Logger, namer *Namer, mode Mode) *Compiler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Compiler{log: log.Named("icss"), namer: namer, mode: mode}
}

// Compile compiles sheet in place and returns resulting module. The module
// identifier is taken from sheet.Source. contentHash, when not empty,
// participates in scoped names (see ContentHash).
func (c *Compiler) Compile(sheet *css.Stylesheet, contentHash string) (*Module, error) {
	u := &unit{
		c:           c,
		module:      sheet.Source,
		contentHash: contentHash,
		sheet:       sheet,
		values:      make(map[string]string),
		defined:     make(map[string]bool),
		classes:     make(map[string][]string),
		keyframes:   make(map[string]string),
		animations:  make(map[string]string),
		scoped:      make(map[string]string),
	}
	mod, err := u.run()
	if err != nil {
		return nil, err
	}
	c.log.Debug("Module compiled",
		zap.String("module", mod.ID),
		zap.Int("imports", len(mod.Symbols.Imports)),
		zap.Int("exports", len(mod.Symbols.Exports)))
	return mod, nil
}

// unit is compilation state of a single module.
type unit struct {
	c           *Compiler
	module      string
	contentHash string
	sheet       *css.Stylesheet

	imports      []Import
	values       map[string]string // local literal @value definitions
	defined      map[string]bool   // every @value name, literal or imported
	valueExports []Export
	authored     []Export

	classes    map[string][]string // local name -> export tokens
	classOrder []string
	keyframes  map[string]string // local keyframes name -> scoped name
	animations map[string]string // scoped keyframes name -> local name
	scoped     map[string]string
	composeN   int
}

func (u *unit) errorf(line int, format string, args ...any) error {
	return css.NewSyntaxError(u.module, line, 0, format, args...)
}

func (u *unit) run() (*Module, error) {
	authored, err := extract(u.sheet)
	if err != nil {
		return nil, err
	}
	u.imports = authored.Imports
	u.authored = authored.Exports

	if err := u.processValues(); err != nil {
		return nil, err
	}
	if err := u.collectKeyframes(u.sheet.Items); err != nil {
		return nil, err
	}
	items, err := u.processItems(u.sheet.Items, false)
	if err != nil {
		return nil, err
	}
	u.sheet.Items = items

	exports, err := u.exports()
	if err != nil {
		return nil, err
	}
	return &Module{
		ID:      u.module,
		Sheet:   u.sheet,
		Symbols: Table{Imports: u.imports, Exports: exports},
	}, nil
}

func (u *unit) scope(name string) (string, error) {
	if s, ok := u.scoped[name]; ok {
		return s, nil
	}
	s, err := u.c.namer.Scope(u.module, name, u.contentHash)
	if err != nil {
		return "", err
	}
	u.scoped[name] = s
	return s, nil
}

func (u *unit) scopedName(name string) string {
	return u.scoped[name]
}

func (u *unit) define(name, scoped string) {
	if _, ok := u.classes[name]; ok {
		return
	}
	u.classes[name] = []string{scoped}
	u.classOrder = append(u.classOrder, name)
}

func (u *unit) exports() ([]Export, error) {
	var (
		out  []Export
		seen = make(map[string]bool)
	)
	add := func(e Export) error {
		if seen[e.Name] {
			return u.errorf(0, "duplicate export %q", e.Name)
		}
		seen[e.Name] = true
		out = append(out, e)
		return nil
	}
	for _, e := range u.valueExports {
		if err := add(e); err != nil {
			return nil, err
		}
	}
	for _, e := range u.authored {
		if err := add(e); err != nil {
			return nil, err
		}
	}
	for _, name := range u.classOrder {
		if err := add(Export{Name: name, Value: strings.Join(u.classes[name], " ")}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (u *unit) substitute(value string) string {
	if len(u.values) == 0 {
		return value
	}
	return css.MapIdents(value, func(ident string) (string, bool) {
		v, ok := u.values[ident]
		return v, ok
	})
}

// processValues handles top level @value rules and removes them.
func (u *unit) processValues() error {
	kept := u.sheet.Items[:0]
	for _, item := range u.sheet.Items {
		if item.AtRule == nil || item.AtRule.Name != "value" {
			kept = append(kept, item)
			continue
		}
		at := item.AtRule
		if at.Block {
			return u.errorf(at.Line, "@value must not have a block")
		}
		if ph, ok := css.Placeholder(at.Prelude); ok {
			return u.errorf(at.Line, "unexpanded placeholder %s in @value", ph)
		}
		if err := u.value(at); err != nil {
			return err
		}
	}
	u.sheet.Items = kept
	return nil
}

func significant(tokens []css.Token) []css.Token {
	out := make([]css.Token, 0, len(tokens))
	for _, t := range tokens {
		if !t.IsSpace() {
			out = append(out, t)
		}
	}
	return out
}

// fromClause splits "names from source" returning index of "from" in
// significant tokens, or -1.
func fromClause(sig []css.Token) int {
	n := len(sig)
	if n < 3 {
		return -1
	}
	last := sig[n-1]
	if sig[n-2].Type != tcss.IdentToken || !strings.EqualFold(sig[n-2].Data, "from") {
		return -1
	}
	if last.Type != tcss.StringToken && last.Type != tcss.IdentToken {
		return -1
	}
	return n - 2
}

func (u *unit) value(at *css.AtRule) error {
	tokens, err := css.Lex(at.Prelude)
	if err != nil {
		return u.errorf(at.Line, "malformed @value %q", at.Prelude)
	}
	sig := significant(tokens)
	if len(sig) == 0 || sig[0].Type != tcss.IdentToken {
		return u.errorf(at.Line, "malformed @value %q", at.Prelude)
	}

	if idx := fromClause(sig); idx >= 0 {
		return u.valueImport(at, sig[:idx], sig[idx+1])
	}

	name := sig[0].Data
	if u.defined[name] {
		return u.errorf(at.Line, "@value %q is already defined", name)
	}

	// everything after the name and optional colon, original spacing kept
	var rest []css.Token
	for i, t := range tokens {
		if t == sig[0] {
			rest = tokens[i+1:]
			break
		}
	}
	if r := significant(rest); len(r) > 0 && r[0].Type == tcss.ColonToken {
		for i, t := range rest {
			if t == r[0] {
				rest = rest[i+1:]
				break
			}
		}
	}
	value := css.Join(rest)
	if value == "" {
		return u.errorf(at.Line, "@value %q has no value", name)
	}
	value = u.substitute(value)

	u.defined[name] = true
	u.values[name] = value
	u.valueExports = append(u.valueExports, Export{Name: name, Value: value})
	return nil
}

func (u *unit) valueImport(at *css.AtRule, names []css.Token, source css.Token) error {
	var request string
	switch source.Type {
	case tcss.StringToken:
		request = css.Unquote(source.Data)
	default:
		v, ok := u.values[source.Data]
		if !ok || !css.IsQuoted(v) {
			return u.errorf(at.Line, "@value import source %q is neither a string nor a local value holding a path", source.Data)
		}
		request = css.Unquote(v)
	}
	if request == "" {
		return u.errorf(at.Line, "@value import with empty path")
	}

	// split "a, b as c" into groups
	var groups [][]css.Token
	cur := []css.Token{}
	for _, t := range names {
		if t.Type == tcss.CommaToken {
			groups = append(groups, cur)
			cur = []css.Token{}
			continue
		}
		cur = append(cur, t)
	}
	groups = append(groups, cur)

	for _, g := range groups {
		var remote, local string
		switch {
		case len(g) == 1 && g[0].Type == tcss.IdentToken:
			remote, local = g[0].Data, g[0].Data
		case len(g) == 3 && g[0].Type == tcss.IdentToken && g[1].Type == tcss.IdentToken && strings.EqualFold(g[1].Data, "as") && g[2].Type == tcss.IdentToken:
			remote, local = g[0].Data, g[2].Data
		default:
			return u.errorf(at.Line, "malformed @value import %q", at.Prelude)
		}
		if u.defined[local] {
			return u.errorf(at.Line, "@value %q is already defined", local)
		}
		u.defined[local] = true
		u.imports = append(u.imports, Import{Local: local, Remote: remote, Request: request, Line: at.Line})
		u.valueExports = append(u.valueExports, Export{Name: local, Value: local})
	}
	return nil
}

func isKeyframes(name string) bool {
	return name == "keyframes" || strings.HasSuffix(name, "-keyframes")
}

// unwrap returns argument of ":fn(arg)".
func unwrap(s, fn string) (string, bool) {
	prefix := ":" + fn + "("
	if len(s) > len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) && strings.HasSuffix(s, ")") {
		return strings.TrimSpace(s[len(prefix) : len(s)-1]), true
	}
	return s, false
}

// collectKeyframes renames local keyframes everywhere in the tree, so
// animation references can be rewritten regardless of definition order.
func (u *unit) collectKeyframes(items []css.Item) error {
	for _, item := range items {
		at := item.AtRule
		if at == nil {
			continue
		}
		if isKeyframes(at.Name) {
			prelude := strings.TrimSpace(at.Prelude)
			if ph, ok := css.Placeholder(prelude); ok {
				return u.errorf(at.Line, "unexpanded placeholder %s in @%s", ph, at.Name)
			}
			name, local := prelude, u.c.mode != ModeGlobal
			if inner, ok := unwrap(prelude, "global"); ok {
				name, local = inner, false
			} else if inner, ok := unwrap(prelude, "local"); ok {
				name, local = inner, true
			}
			if css.IsQuoted(name) || name == "" {
				local = false
			}
			if local {
				name = css.UnescapeIdent(name)
				scoped, err := u.scope(name)
				if err != nil {
					return err
				}
				u.keyframes[name] = scoped
				u.animations[scoped] = name
				name = scoped
			}
			at.Prelude = name
			continue
		}
		if err := u.collectKeyframes(at.Items); err != nil {
			return err
		}
	}
	return nil
}

func (u *unit) processItems(items []css.Item, inKeyframes bool) ([]css.Item, error) {
	out := items[:0]
	for _, item := range items {
		switch {
		case item.Rule != nil && inKeyframes:
			decls, err := u.processDeclarations(item.Rule.Declarations)
			if err != nil {
				return nil, err
			}
			item.Rule.Declarations = decls
			out = append(out, item)

		case item.Rule != nil:
			keep, err := u.processRule(item.Rule)
			if err != nil {
				return nil, err
			}
			if keep {
				out = append(out, item)
			}

		case item.AtRule != nil:
			if err := u.processAtRule(item.AtRule); err != nil {
				return nil, err
			}
			out = append(out, item)
		}
	}
	return out, nil
}

func (u *unit) processAtRule(at *css.AtRule) error {
	if templatingRules[at.Name] {
		return u.errorf(at.Line, "unexpanded @%s block, templating must run before compilation", at.Name)
	}
	if at.Name == "value" {
		return u.errorf(at.Line, "@value is only allowed at top level")
	}
	if ph, ok := css.Placeholder(at.Prelude); ok {
		return u.errorf(at.Line, "unexpanded placeholder %s in @%s", ph, at.Name)
	}

	inKeyframes := isKeyframes(at.Name)
	switch {
	case inKeyframes:
		if local, ok := u.animations[at.Prelude]; ok {
			u.define(local, at.Prelude)
		}
	case at.Name == "import" || at.Name == "charset" || at.Name == "namespace":
		return nil
	default:
		at.Prelude = u.substitute(at.Prelude)
	}

	decls, err := u.processDeclarations(at.Declarations)
	if err != nil {
		return err
	}
	at.Declarations = decls

	items, err := u.processItems(at.Items, inKeyframes)
	if err != nil {
		return err
	}
	at.Items = items
	return nil
}

func isComposes(property string) bool {
	p := strings.ToLower(property)
	return p == "composes" || p == "compose-with"
}

func (u *unit) processDeclarations(decls []css.Declaration) ([]css.Declaration, error) {
	for i := range decls {
		d := &decls[i]
		if isComposes(d.Property) {
			return nil, u.errorf(d.Line, "composition is not allowed here")
		}
		if err := u.declaration(d); err != nil {
			return nil, err
		}
	}
	return decls, nil
}

func (u *unit) declaration(d *css.Declaration) error {
	if ph, ok := css.Placeholder(d.Value); ok {
		return u.errorf(d.Line, "unexpanded placeholder %s in %q", ph, d.Property)
	}
	d.Value = u.substitute(d.Value)
	if animationProperties[strings.ToLower(d.Property)] && len(u.keyframes) > 0 {
		d.Value = css.MapIdents(d.Value, func(ident string) (string, bool) {
			s, ok := u.keyframes[css.UnescapeIdent(ident)]
			return s, ok
		})
	}
	return nil
}

// processRule scopes rule selector and handles composition. It reports
// whether the rule should stay in the output.
func (u *unit) processRule(r *css.Rule) (bool, error) {
	if ph, ok := css.Placeholder(r.Selector); ok {
		return false, u.errorf(r.Line, "unexpanded placeholder %s in selector %q", ph, r.Selector)
	}
	sel, err := scopeSelector(u.module, r.Line, r.Selector, u.c.mode, u.scope)
	if err != nil {
		return false, err
	}
	original := r.Selector
	r.Selector = sel.text
	for _, name := range sel.locals {
		u.define(name, u.scopedName(name))
	}

	var (
		kept     = r.Declarations[:0]
		composed bool
	)
	for _, d := range r.Declarations {
		if isComposes(d.Property) {
			target, ok := sel.single(u.scopedName)
			if !ok {
				return false, u.errorf(d.Line, "composition is only allowed when selector is a single local class name, not %q", original)
			}
			if err := u.compose(target, d); err != nil {
				return false, err
			}
			composed = true
			continue
		}
		if err := u.declaration(&d); err != nil {
			return false, err
		}
		kept = append(kept, d)
	}
	r.Declarations = kept
	return !composed || len(kept) > 0, nil
}

func (u *unit) compose(target string, d css.Declaration) error {
	tokens, err := css.Lex(d.Value)
	if err != nil {
		return u.errorf(d.Line, "malformed composition %q", d.Value)
	}
	sig := significant(tokens)

	var (
		names  []string
		source *css.Token
	)
	for i := 0; i < len(sig); i++ {
		t := sig[i]
		switch {
		case t.Type == tcss.IdentToken && strings.EqualFold(t.Data, "from") && i == len(sig)-2:
			source = &sig[i+1]
			i++
		case t.Type == tcss.IdentToken:
			names = append(names, css.UnescapeIdent(t.Data))
		case t.Type == tcss.CommaToken:
		default:
			return u.errorf(d.Line, "malformed composition %q", d.Value)
		}
	}
	if len(names) == 0 {
		return u.errorf(d.Line, "composition %q names no classes", d.Value)
	}

	var add []string
	switch {
	case source == nil:
		for _, name := range names {
			tokens, ok := u.classes[name]
			if !ok {
				return u.errorf(d.Line, "composes references class %q which is not defined earlier in the file", name)
			}
			add = append(add, tokens...)
		}

	case source.Type == tcss.IdentToken && strings.EqualFold(source.Data, "global"):
		add = append(add, names...)

	case source.Type == tcss.StringToken:
		request := css.Unquote(source.Data)
		if request == "" {
			return u.errorf(d.Line, "composition with empty path")
		}
		for _, name := range names {
			local := fmt.Sprintf("i__composes_%s_%d", nonIdentChars.ReplaceAllString(name, "_"), u.composeN)
			u.composeN++
			u.imports = append(u.imports, Import{Local: local, Remote: name, Request: request, Line: d.Line})
			add = append(add, local)
		}

	default:
		return u.errorf(d.Line, "composition source must be a quoted path or global, not %q", source.Data)
	}

	list := u.classes[target]
	for _, tok := range add {
		if !slices.Contains(list, tok) {
			list = append(list, tok)
		}
	}
	u.classes[target] = list
	return nil
}
