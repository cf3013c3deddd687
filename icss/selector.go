package icss

import (
	"strings"

	tcss "github.com/tdewolff/parse/v2/css"

	"cssmc/css"
)

// scopedSelector is a selector after :global/:local processing.
type scopedSelector struct {
	text   string
	locals []string // unescaped local class and id names in order of appearance
}

// single returns the class name when selector consists of exactly one local
// class and nothing else.
func (s scopedSelector) single(scoped func(string) string) (string, bool) {
	if len(s.locals) != 1 {
		return "", false
	}
	name := s.locals[0]
	return name, s.text == "."+scoped(name)
}

type frame struct {
	local bool // mode to restore on ')'
	drop  bool // ')' closes :global( or :local( and is not written
}

// scopeSelector rewrites local class names and ids of selector with scope
// and strips :global/:local markers. Bare :global and :local switch mode
// until the end of the current comma separated part.
func scopeSelector(module string, line int, selector string, mode Mode, scope func(string) (string, error)) (scopedSelector, error) {
	tokens, err := css.Lex(selector)
	if err != nil {
		return scopedSelector{}, css.NewSyntaxError(module, line, 0, "malformed selector %q", selector)
	}

	var (
		res          scopedSelector
		sb           strings.Builder
		stack        []frame
		defaultLocal = mode != ModeGlobal
		local        = defaultLocal
		partLocal    bool
	)

	seen := make(map[string]bool)
	addLocal := func(name string) (string, error) {
		scoped, err := scope(name)
		if err != nil {
			return "", err
		}
		if !seen[name] {
			seen[name] = true
			res.locals = append(res.locals, name)
		}
		partLocal = true
		return scoped, nil
	}

	endPart := func() error {
		if mode == ModePure && !partLocal {
			return css.NewSyntaxError(module, line, 0, "selector %q is not pure: it must contain at least one local class or id", strings.TrimSpace(selector))
		}
		partLocal = false
		local = defaultLocal
		return nil
	}

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch t.Type {
		case tcss.DelimToken:
			if t.Data == "." && i+1 < len(tokens) && tokens[i+1].Type == tcss.IdentToken {
				name := tokens[i+1].Data
				i++
				if local {
					scoped, err := addLocal(css.UnescapeIdent(name))
					if err != nil {
						return scopedSelector{}, err
					}
					name = scoped
				}
				sb.WriteString(".")
				sb.WriteString(name)
				continue
			}
			sb.WriteString(t.Data)

		case tcss.HashToken:
			name := strings.TrimPrefix(t.Data, "#")
			if local && name != "" && !(name[0] >= '0' && name[0] <= '9') {
				scoped, err := addLocal(css.UnescapeIdent(name))
				if err != nil {
					return scopedSelector{}, err
				}
				name = scoped
			}
			sb.WriteString("#")
			sb.WriteString(name)

		case tcss.ColonToken:
			if i+1 < len(tokens) {
				next := tokens[i+1]
				switch {
				case next.Type == tcss.FunctionToken && (strings.EqualFold(next.Data, "global(") || strings.EqualFold(next.Data, "local(")):
					stack = append(stack, frame{local: local, drop: true})
					local = strings.EqualFold(next.Data, "local(")
					i++
					continue
				case next.Type == tcss.IdentToken && (strings.EqualFold(next.Data, "global") || strings.EqualFold(next.Data, "local")):
					local = strings.EqualFold(next.Data, "local")
					i++
					if i+1 < len(tokens) && tokens[i+1].Type == tcss.WhitespaceToken {
						i++
					}
					continue
				}
			}
			sb.WriteString(t.Data)

		case tcss.FunctionToken, tcss.LeftParenthesisToken:
			stack = append(stack, frame{local: local})
			sb.WriteString(t.Data)

		case tcss.RightParenthesisToken:
			if len(stack) == 0 {
				return scopedSelector{}, css.NewSyntaxError(module, line, 0, "unbalanced ')' in selector %q", selector)
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			local = f.local
			if !f.drop {
				sb.WriteString(t.Data)
			}

		case tcss.CommaToken:
			if len(stack) == 0 {
				if err := endPart(); err != nil {
					return scopedSelector{}, err
				}
				trimTrailingSpace(&sb)
				sb.WriteString(", ")
				if i+1 < len(tokens) && tokens[i+1].Type == tcss.WhitespaceToken {
					i++
				}
				continue
			}
			sb.WriteString(t.Data)

		case tcss.CommentToken:

		case tcss.WhitespaceToken:
			if sb.Len() > 0 {
				sb.WriteString(" ")
			}

		default:
			sb.WriteString(t.Data)
		}
	}
	if len(stack) > 0 {
		return scopedSelector{}, css.NewSyntaxError(module, line, 0, "unbalanced '(' in selector %q", selector)
	}
	if err := endPart(); err != nil {
		return scopedSelector{}, err
	}

	res.text = strings.TrimSpace(sb.String())
	return res, nil
}

func trimTrailingSpace(sb *strings.Builder) {
	s := sb.String()
	if trimmed := strings.TrimRight(s, " "); len(trimmed) != len(s) {
		sb.Reset()
		sb.WriteString(trimmed)
	}
}
