package css

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// cssEscapeDoubleQuoted escapes a string for use inside CSS double quotes.
// Backslashes and double quotes are escaped per CSS syntax: \" and \\.
func cssEscapeDoubleQuoted(s string) string {
	// Fast path: nothing to escape.
	if !strings.ContainsAny(s, `"\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Quote returns s as a double quoted CSS string.
func Quote(s string) string {
	return `"` + cssEscapeDoubleQuoted(s) + `"`
}

// Declaration is a single "property: value" pair.
type Declaration struct {
	Property string // Property name as written (custom properties keep their case)
	Value    string // Normalized value text, including !important if present
	Line     int    // Line number in source for error reporting
}

// Rule represents a single CSS rule (selector + declarations).
type Rule struct {
	Selector     string        // Selector text, pre- or post-scoping
	Declarations []Declaration // Declarations in source order
	Line         int           // Line number in source for error reporting
}

// Declaration returns the last declaration for a property (cascade order), if present.
func (r *Rule) Declaration(property string) (Declaration, bool) {
	for i := len(r.Declarations) - 1; i >= 0; i-- {
		if r.Declarations[i].Property == property {
			return r.Declarations[i], true
		}
	}
	return Declaration{}, false
}

// AtRule represents an @-rule. Block-less rules (@value, @import) have
// Block == false, block rules may carry nested items (@media, @keyframes)
// and/or declarations (@font-face, @page).
type AtRule struct {
	Name         string        // Lower-cased name without "@" (e.g. "media", "value")
	Prelude      string        // Everything between the name and the block or semicolon
	Block        bool          // true if rule has a {} block
	Items        []Item        // Nested rules and at-rules in source order
	Declarations []Declaration // Declarations directly inside the block
	Line         int           // Line number in source for error reporting
}

// Item is a single entry of a stylesheet or at-rule block.
// Exactly one of Rule or AtRule is non-nil.
type Item struct {
	Rule   *Rule
	AtRule *AtRule
}

// Stylesheet represents a parsed CSS stylesheet.
type Stylesheet struct {
	Source string // Module identifier the stylesheet was parsed from
	Items  []Item // All top-level items in source order
}

// Clone returns a deep copy of the stylesheet. Stages hand over clones
// whenever the same sheet would otherwise be visible to two owners.
func (s *Stylesheet) Clone() *Stylesheet {
	if s == nil {
		return nil
	}
	return &Stylesheet{Source: s.Source, Items: cloneItems(s.Items)}
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, item := range items {
		switch {
		case item.Rule != nil:
			r := *item.Rule
			r.Declarations = cloneDeclarations(item.Rule.Declarations)
			out[i] = Item{Rule: &r}
		case item.AtRule != nil:
			a := *item.AtRule
			a.Items = cloneItems(item.AtRule.Items)
			a.Declarations = cloneDeclarations(item.AtRule.Declarations)
			out[i] = Item{AtRule: &a}
		}
	}
	return out
}

func cloneDeclarations(decls []Declaration) []Declaration {
	if decls == nil {
		return nil
	}
	out := make([]Declaration, len(decls))
	copy(out, decls)
	return out
}

// Visitor is called for every rule and at-rule during Walk. Exactly one of
// rule or at is non-nil. Returning an error stops the walk.
type Visitor func(rule *Rule, at *AtRule) error

// Walk visits all rules and at-rules in source order, depth first.
func (s *Stylesheet) Walk(fn Visitor) error {
	return walkItems(s.Items, fn)
}

func walkItems(items []Item, fn Visitor) error {
	for _, item := range items {
		switch {
		case item.Rule != nil:
			if err := fn(item.Rule, nil); err != nil {
				return err
			}
		case item.AtRule != nil:
			if err := fn(nil, item.AtRule); err != nil {
				return err
			}
			if err := walkItems(item.AtRule.Items, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// MapDeclarations replaces every declaration value in the stylesheet
// (rules and at-rule blocks) with the result of fn.
func (s *Stylesheet) MapDeclarations(fn func(d Declaration) string) {
	s.Walk(func(rule *Rule, at *AtRule) error { //nolint:errcheck
		var decls []Declaration
		if rule != nil {
			decls = rule.Declarations
		} else {
			decls = at.Declarations
		}
		for i := range decls {
			decls[i].Value = fn(decls[i])
		}
		return nil
	})
}

// Rules returns pointers to all rules in source order, including rules
// nested in at-rule blocks.
func (s *Stylesheet) Rules() []*Rule {
	var rules []*Rule
	s.Walk(func(rule *Rule, _ *AtRule) error { //nolint:errcheck
		if rule != nil {
			rules = append(rules, rule)
		}
		return nil
	})
	return rules
}

// RulesBySelector returns all rules (at any depth) matching the given selector string.
func (s *Stylesheet) RulesBySelector(selector string) []*Rule {
	var matches []*Rule
	for _, r := range s.Rules() {
		if r.Selector == selector {
			matches = append(matches, r)
		}
	}
	return matches
}

// Imports returns all @import targets from the top level of the stylesheet in source order.
func (s *Stylesheet) Imports() []string {
	var urls []string
	for _, item := range s.Items {
		if item.AtRule != nil && item.AtRule.Name == "import" {
			if u := importTarget(item.AtRule.Prelude); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// urlRewritePattern matches url() references in CSS values for RewriteURLs.
// Handles: url("path"), url('path'), url(path)
var urlRewritePattern = regexp.MustCompile(`url\s*\(\s*(?:["']([^"']*)["']|([^)"]*))\s*\)`)

// importTargetPattern matches the leading target of @import prelude: either url() or bare string.
var importTargetPattern = regexp.MustCompile(`^\s*(?:url\s*\(\s*(?:["']([^"']*)["']|([^)"]*))\s*\)|["']([^"']*)["'])`)

func importTarget(prelude string) string {
	sub := importTargetPattern.FindStringSubmatch(prelude)
	if sub == nil {
		return ""
	}
	for _, s := range sub[1:] {
		if s != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// WriteTo writes the stylesheet to w in source order, implementing io.WriterTo.
// Declarations keep their source order.
func (s *Stylesheet) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i, item := range s.Items {
		n, err := writeItem(w, item, 0)
		total += int64(n)
		if err != nil {
			return total, err
		}

		// Add blank line between items (except after last)
		if i < len(s.Items)-1 {
			n, err = fmt.Fprint(w, "\n")
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// String returns the CSS text of the stylesheet.
func (s *Stylesheet) String() string {
	var sb strings.Builder
	s.WriteTo(&sb) //nolint:errcheck
	return sb.String()
}

func writeItem(w io.Writer, item Item, depth int) (int, error) {
	switch {
	case item.Rule != nil:
		return writeRule(w, item.Rule, depth)
	case item.AtRule != nil:
		return writeAtRule(w, item.AtRule, depth)
	}
	return 0, nil
}

// writeRule writes a single CSS rule to w.
func writeRule(w io.Writer, rule *Rule, depth int) (int, error) {
	indent := strings.Repeat("  ", depth)
	var total int
	n, err := fmt.Fprintf(w, "%s%s {\n", indent, rule.Selector)
	total += n
	if err != nil {
		return total, err
	}
	n, err = writeDeclarations(w, rule.Declarations, depth+1)
	total += n
	if err != nil {
		return total, err
	}
	n, err = fmt.Fprintf(w, "%s}\n", indent)
	total += n
	return total, err
}

// writeDeclarations writes declarations in source order.
func writeDeclarations(w io.Writer, decls []Declaration, depth int) (int, error) {
	indent := strings.Repeat("  ", depth)
	var total int
	for _, d := range decls {
		n, err := fmt.Fprintf(w, "%s%s: %s;\n", indent, d.Property, d.Value)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// writeAtRule writes an @-rule with its block (if any) to w.
func writeAtRule(w io.Writer, at *AtRule, depth int) (int, error) {
	indent := strings.Repeat("  ", depth)
	head := "@" + at.Name
	if at.Prelude != "" {
		head += " " + at.Prelude
	}

	var total int
	if !at.Block {
		n, err := fmt.Fprintf(w, "%s%s;\n", indent, head)
		return n, err
	}

	n, err := fmt.Fprintf(w, "%s%s {\n", indent, head)
	total += n
	if err != nil {
		return total, err
	}
	n, err = writeDeclarations(w, at.Declarations, depth+1)
	total += n
	if err != nil {
		return total, err
	}
	for i, item := range at.Items {
		// Blank line between nested items (except before first)
		if i > 0 || len(at.Declarations) > 0 {
			n, err = fmt.Fprint(w, "\n")
			total += n
			if err != nil {
				return total, err
			}
		}
		n, err = writeItem(w, item, depth+1)
		total += n
		if err != nil {
			return total, err
		}
	}
	n, err = fmt.Fprintf(w, "%s}\n", indent)
	total += n
	return total, err
}

// RewriteURLs walks all URL references in the stylesheet and applies fn to each.
// This covers @import targets, url() references in declarations at any depth.
func (s *Stylesheet) RewriteURLs(fn func(originalURL string) string) {
	for i := range s.Items {
		item := &s.Items[i]
		if item.AtRule != nil && item.AtRule.Name == "import" {
			if u := importTarget(item.AtRule.Prelude); u != "" {
				rest := importTargetPattern.ReplaceAllString(item.AtRule.Prelude, "")
				item.AtRule.Prelude = strings.TrimSpace(fmt.Sprintf("url(\"%s\") %s", cssEscapeDoubleQuoted(fn(u)), strings.TrimSpace(rest)))
			}
		}
	}
	s.MapDeclarations(func(d Declaration) string {
		if strings.Contains(d.Value, "url(") {
			return rewriteURLsInValue(d.Value, fn)
		}
		return d.Value
	})
}

// rewriteURLsInValue replaces url() references in a CSS value string.
func rewriteURLsInValue(value string, fn func(string) string) string {
	return urlRewritePattern.ReplaceAllStringFunc(value, func(match string) string {
		sub := urlRewritePattern.FindStringSubmatch(match)
		if len(sub) < 3 {
			return match
		}
		// Group 1 is quoted URL, group 2 is unquoted URL
		originalURL := sub[1]
		if originalURL == "" {
			originalURL = sub[2]
		}
		originalURL = strings.TrimSpace(originalURL)
		newURL := fn(originalURL)
		return fmt.Sprintf("url(\"%s\")", cssEscapeDoubleQuoted(newURL))
	})
}
