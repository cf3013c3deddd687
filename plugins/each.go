package plugins

import (
	"context"
	"strings"

	tcss "github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"

	"cssmc/css"
	"cssmc/plugin"
)

var eachEntry = Entry{
	Name:        "each",
	Description: "expands @each $var in a, b, c { ... } loops",
	Stages:      plugin.NewStageSet(plugin.StagePreCompile),
	Factory:     newEach,
}

func newEach(log *zap.Logger, options map[string]string) (plugin.TransformFunc, error) {
	if err := checkOptions(options); err != nil {
		return nil, err
	}
	return func(_ context.Context, _ plugin.Stage, sheet *css.Stylesheet) (*css.Stylesheet, error) {
		items, n, err := expandEach(sheet.Source, sheet.Items)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			log.Debug("Loops expanded", zap.String("module", sheet.Source), zap.Int("loops", n))
		}
		sheet.Items = items
		return sheet, nil
	}, nil
}

// expandEach replaces every @each block in items with copies of its body,
// one per list element, in list order.
func expandEach(module string, items []css.Item) ([]css.Item, int, error) {
	var (
		out   = make([]css.Item, 0, len(items))
		count int
	)
	for _, item := range items {
		at := item.AtRule
		if at == nil {
			out = append(out, item)
			continue
		}
		if at.Name != "each" {
			nested, n, err := expandEach(module, at.Items)
			if err != nil {
				return nil, 0, err
			}
			at.Items, count = nested, count+n
			out = append(out, item)
			continue
		}

		name, values, err := parseEach(module, at)
		if err != nil {
			return nil, 0, err
		}
		if len(at.Declarations) > 0 {
			return nil, 0, css.NewSyntaxError(module, at.Declarations[0].Line, 0, "@each body must contain rules only")
		}
		count++
		for _, v := range values {
			body := (&css.Stylesheet{Items: at.Items}).Clone().Items
			substituteItems(body, name, v)
			// inner loops may depend on the current value
			body, n, err := expandEach(module, body)
			if err != nil {
				return nil, 0, err
			}
			count += n
			out = append(out, body...)
		}
	}
	return out, count, nil
}

// parseEach parses "$name in a, b, c" prelude.
func parseEach(module string, at *css.AtRule) (string, []string, error) {
	bad := func() error {
		return css.NewSyntaxError(module, at.Line, 0, "malformed @each %q, expected \"$name in value, value\"", at.Prelude)
	}
	tokens, err := css.Lex(at.Prelude)
	if err != nil {
		return "", nil, bad()
	}
	var sig []css.Token
	for _, t := range tokens {
		if !t.IsSpace() {
			sig = append(sig, t)
		}
	}
	if len(sig) < 4 || !sig[0].Is(tcss.DelimToken, "$") || sig[1].Type != tcss.IdentToken ||
		sig[2].Type != tcss.IdentToken || !strings.EqualFold(sig[2].Data, "in") {
		return "", nil, bad()
	}
	name := sig[1].Data

	// list starts after "in", optionally wrapped in parentheses
	var rest []css.Token
	for i, t := range tokens {
		if t == sig[2] {
			rest = tokens[i+1:]
			break
		}
	}
	list := css.Join(rest)
	if strings.HasPrefix(list, "(") && strings.HasSuffix(list, ")") {
		list = list[1 : len(list)-1]
	}

	var values []string
	for _, v := range strings.Split(list, ",") {
		v = css.Unquote(strings.TrimSpace(v))
		if v == "" {
			return "", nil, bad()
		}
		values = append(values, v)
	}
	return name, values, nil
}

func substituteItems(items []css.Item, name, value string) {
	for _, item := range items {
		switch {
		case item.Rule != nil:
			item.Rule.Selector = substituteVar(item.Rule.Selector, name, value)
			substituteDeclarations(item.Rule.Declarations, name, value)
		case item.AtRule != nil:
			item.AtRule.Prelude = substituteVar(item.AtRule.Prelude, name, value)
			substituteDeclarations(item.AtRule.Declarations, name, value)
			substituteItems(item.AtRule.Items, name, value)
		}
	}
}

func substituteDeclarations(decls []css.Declaration, name, value string) {
	for i := range decls {
		decls[i].Property = substituteVar(decls[i].Property, name, value)
		decls[i].Value = substituteVar(decls[i].Value, name, value)
	}
}

// substituteVar replaces "$name" in text with value.
func substituteVar(text, name, value string) string {
	if !strings.Contains(text, "$"+name) {
		return text
	}
	tokens, err := css.Lex(text)
	if err != nil {
		return text
	}
	var sb strings.Builder
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.Is(tcss.DelimToken, "$") && i+1 < len(tokens) && tokens[i+1].Is(tcss.IdentToken, name) {
			sb.WriteString(value)
			i++
			continue
		}
		sb.WriteString(t.Data)
	}
	return sb.String()
}
