package css

import (
	"errors"
	"strings"

	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser parses CSS stylesheets into structured rules.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// Parse parses CSS text into a Stylesheet. The source identifies what is
// being parsed and ends up in the stylesheet and in syntax errors.
//
// Block structure is built directly on top of the tokenizer so that every
// block at-rule (including ones unknown to CSS, such as @each) keeps its
// nested rules.
func (p *Parser) Parse(source string, data []byte) (*Stylesheet, error) {
	p.log.Debug("Parsing CSS", zap.String("source", source), zap.Int("bytes", len(data)))

	tokens, err := lex(data, 1)
	if err != nil {
		return nil, withModule(err, source)
	}

	st := &state{source: source, tokens: tokens}
	items, _, err := st.parseList(false)
	if err != nil {
		return nil, err
	}
	sheet := &Stylesheet{Source: source, Items: items}
	p.log.Debug("Parsed CSS", zap.String("source", source), zap.Int("items", len(items)))
	return sheet, nil
}

func withModule(err error, source string) error {
	var se *SyntaxError
	if errors.As(err, &se) && se.Module == "" {
		se.Module = source
	}
	return err
}

// state is a single parsing run over a token slice.
type state struct {
	source string
	tokens []Token
	pos    int
}

var eof = Token{Type: css.ErrorToken}

func (st *state) peek() Token {
	if st.pos < len(st.tokens) {
		return st.tokens[st.pos]
	}
	if len(st.tokens) > 0 {
		last := st.tokens[len(st.tokens)-1]
		return Token{Type: css.ErrorToken, Line: last.Line, Column: last.Column + len(last.Data)}
	}
	return eof
}

func (st *state) next() Token {
	t := st.peek()
	if st.pos < len(st.tokens) {
		st.pos++
	}
	return t
}

func (st *state) errorf(t Token, format string, args ...any) error {
	return NewSyntaxError(st.source, t.Line, t.Column, format, args...)
}

func (st *state) skipSpace(top bool) {
	for {
		t := st.peek()
		switch {
		case t.IsSpace():
		case top && (t.Type == css.CDOToken || t.Type == css.CDCToken):
		default:
			return
		}
		st.pos++
	}
}

// parseList consumes a list of rules (and, inside blocks, declarations)
// until the closing brace of the enclosing block or end of input.
func (st *state) parseList(nested bool) ([]Item, []Declaration, error) {
	var (
		items []Item
		decls []Declaration
	)
	for {
		st.skipSpace(!nested)
		t := st.peek()

		switch {
		case t.Type == css.ErrorToken:
			if nested {
				return nil, nil, st.errorf(t, "unexpected end of input, missing '}'")
			}
			return items, decls, nil

		case t.Type == css.RightBraceToken:
			if !nested {
				return nil, nil, st.errorf(t, "unexpected '}'")
			}
			return items, decls, nil

		case t.Type == css.SemicolonToken:
			st.next()

		case t.Type == css.AtKeywordToken:
			at, err := st.parseAtRule()
			if err != nil {
				return nil, nil, err
			}
			items = append(items, Item{AtRule: at})

		case nested && st.declarationAhead():
			d, err := st.parseDeclaration()
			if err != nil {
				return nil, nil, err
			}
			decls = append(decls, d)

		default:
			r, err := st.parseRule()
			if err != nil {
				return nil, nil, err
			}
			items = append(items, Item{Rule: r})
		}
	}
}

// declarationAhead looks for the first ';', '{' or '}' at nesting level zero.
// Anything followed by a block is a rule, everything else is a declaration.
func (st *state) declarationAhead() bool {
	level := 0
	for i := st.pos; i < len(st.tokens); i++ {
		switch st.tokens[i].Type {
		case css.LeftParenthesisToken, css.FunctionToken, css.LeftBracketToken:
			level++
		case css.RightParenthesisToken, css.RightBracketToken:
			level--
		case css.LeftBraceToken:
			if level <= 0 {
				return false
			}
		case css.SemicolonToken, css.RightBraceToken:
			if level <= 0 {
				return true
			}
		}
	}
	return true
}

// collectPrelude collects tokens up to (not including) ';', '{' or '}' at
// nesting level zero.
func (st *state) collectPrelude() []Token {
	var out []Token
	level := 0
	for {
		t := st.peek()
		switch t.Type {
		case css.ErrorToken:
			return out
		case css.LeftParenthesisToken, css.FunctionToken, css.LeftBracketToken:
			level++
		case css.RightParenthesisToken, css.RightBracketToken:
			if level > 0 {
				level--
			}
		case css.LeftBraceToken, css.SemicolonToken, css.RightBraceToken:
			if level == 0 {
				return out
			}
		}
		out = append(out, st.next())
	}
}

func (st *state) parseAtRule() (*AtRule, error) {
	kw := st.next()
	at := &AtRule{
		Name: strings.ToLower(strings.TrimPrefix(kw.Data, "@")),
		Line: kw.Line,
	}
	at.Prelude = Join(st.collectPrelude())

	t := st.peek()
	switch t.Type {
	case css.SemicolonToken:
		st.next()
		return at, nil
	case css.RightBraceToken, css.ErrorToken:
		// block-less rule terminated by end of enclosing block or input
		return at, nil
	}

	// block
	st.next()
	at.Block = true
	items, decls, err := st.parseList(true)
	if err != nil {
		return nil, err
	}
	st.next() // closing brace
	at.Items, at.Declarations = items, decls
	return at, nil
}

func (st *state) parseRule() (*Rule, error) {
	first := st.peek()
	prelude := st.collectPrelude()
	sel := Join(prelude)

	t := st.peek()
	switch t.Type {
	case css.LeftBraceToken:
	case css.ErrorToken:
		return nil, st.errorf(t, "unexpected end of input, expected '{' after selector %q", sel)
	default:
		return nil, st.errorf(t, "unexpected %q, expected '{' after selector %q", t.Data, sel)
	}
	if sel == "" {
		return nil, st.errorf(t, "rule without selector")
	}
	st.next()

	items, decls, err := st.parseList(true)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		line := 0
		if items[0].Rule != nil {
			line = items[0].Rule.Line
		} else {
			line = items[0].AtRule.Line
		}
		return nil, NewSyntaxError(st.source, line, 0, "nested rules are not supported inside %q", sel)
	}
	st.next() // closing brace
	return &Rule{Selector: sel, Declarations: decls, Line: first.Line}, nil
}

func (st *state) parseDeclaration() (Declaration, error) {
	name := st.next()
	if name.Type != css.IdentToken && name.Type != css.CustomPropertyNameToken {
		return Declaration{}, st.errorf(name, "unexpected %q, expected property name", name.Data)
	}
	st.skipSpace(false)
	if colon := st.next(); colon.Type != css.ColonToken {
		return Declaration{}, st.errorf(colon, "expected ':' after property %q", name.Data)
	}
	value := Join(st.collectPrelude())
	if value == "" && !strings.HasPrefix(name.Data, "--") {
		return Declaration{}, st.errorf(name, "empty value for property %q", name.Data)
	}
	if st.peek().Type == css.SemicolonToken {
		st.next()
	}
	return Declaration{Property: name.Data, Value: value, Line: name.Line}, nil
}
