package css

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Token is a single lexical token with its position.
type Token struct {
	Type   css.TokenType
	Data   string
	Line   int
	Column int
}

// Is reports whether token has the given type and data.
func (t Token) Is(tt css.TokenType, data string) bool {
	return t.Type == tt && t.Data == data
}

// IsSpace reports whether token carries no content (whitespace or comment).
func (t Token) IsSpace() bool {
	return t.Type == css.WhitespaceToken || t.Type == css.CommentToken
}

// Lex splits text into tokens. Positions are counted from line 1, column 1.
func Lex(text string) ([]Token, error) {
	return lex([]byte(text), 1)
}

func lex(data []byte, firstLine int) ([]Token, error) {
	l := css.NewLexer(parse.NewInput(strings.NewReader(string(data))))

	var (
		tokens []Token
		line   = firstLine
		col    = 1
	)
	for {
		tt, raw := l.Next()
		if tt == css.ErrorToken {
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return tokens, &SyntaxError{Line: line, Column: col, Message: err.Error()}
			}
			return tokens, nil
		}
		tok := Token{Type: tt, Data: string(raw), Line: line, Column: col}
		switch tt {
		case css.BadStringToken:
			return tokens, &SyntaxError{Line: line, Column: col, Message: "unterminated string"}
		case css.BadURLToken:
			return tokens, &SyntaxError{Line: line, Column: col, Message: "malformed url()"}
		}
		tokens = append(tokens, tok)

		// advance position
		if n := strings.Count(tok.Data, "\n"); n > 0 {
			line += n
			col = len(tok.Data) - strings.LastIndexByte(tok.Data, '\n')
		} else {
			col += len(tok.Data)
		}
	}
}

// Join builds normalized text from tokens: comments are dropped, every run
// of whitespace becomes a single space, leading and trailing space is trimmed.
func Join(tokens []Token) string {
	var sb strings.Builder
	pendingSpace := false
	for _, t := range tokens {
		switch t.Type {
		case css.CommentToken:
			continue
		case css.WhitespaceToken:
			pendingSpace = sb.Len() > 0
			continue
		}
		if pendingSpace {
			sb.WriteByte(' ')
			pendingSpace = false
		}
		sb.WriteString(t.Data)
	}
	return sb.String()
}

// MapIdents replaces identifier tokens of value for which fn returns true.
// Strings, url() references, numbers and function names are never touched
// and the original spacing is preserved. Values which cannot be tokenized
// are returned unchanged.
func MapIdents(value string, fn func(ident string) (string, bool)) string {
	if value == "" {
		return value
	}
	tokens, err := Lex(value)
	if err != nil {
		return value
	}
	changed := false
	var sb strings.Builder
	sb.Grow(len(value))
	for _, t := range tokens {
		if t.Type == css.IdentToken {
			if repl, ok := fn(t.Data); ok {
				sb.WriteString(repl)
				changed = true
				continue
			}
		}
		sb.WriteString(t.Data)
	}
	if !changed {
		return value
	}
	return sb.String()
}

// UnescapeIdent decodes escapes of an identifier token: `sm\:flex` becomes
// "sm:flex" and `\31 0` becomes "10".
func UnescapeIdent(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		j := i
		for j < len(s) && j-i < 6 && isHex(s[j]) {
			j++
		}
		if j == i {
			// escaped character stands for itself
			sb.WriteByte(s[i])
			continue
		}
		cp, _ := strconv.ParseUint(s[i:j], 16, 32)
		r := rune(cp)
		if r == 0 || !utf8.ValidRune(r) {
			r = utf8.RuneError
		}
		sb.WriteRune(r)
		// single whitespace terminates hex escape
		switch {
		case j+1 < len(s) && s[j] == '\r' && s[j+1] == '\n':
			j += 2
		case j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r' || s[j] == '\f'):
			j++
		}
		i = j - 1
	}
	return sb.String()
}

// EscapeIdent escapes name so it can be written as an identifier, the
// reverse of UnescapeIdent.
func EscapeIdent(name string) string {
	var sb strings.Builder
	for i, r := range name {
		switch {
		case r == '-' || r == '_' || r >= 0x80, 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
			sb.WriteRune(r)
		case '0' <= r && r <= '9' && i > 0:
			sb.WriteRune(r)
		case r < 0x20 || r == 0x7f || '0' <= r && r <= '9':
			sb.WriteString(`\` + strconv.FormatInt(int64(r), 16) + " ")
		default:
			sb.WriteByte('\\')
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// Placeholder returns the first unexpanded template variable ("$name") found
// in text, if any. Such markers are left behind by templating constructs
// which were not expanded before compilation.
func Placeholder(text string) (string, bool) {
	if !strings.Contains(text, "$") {
		return "", false
	}
	tokens, err := Lex(text)
	if err != nil {
		return "", false
	}
	for i, t := range tokens {
		if t.Is(css.DelimToken, "$") && i+1 < len(tokens) && tokens[i+1].Type == css.IdentToken {
			return "$" + tokens[i+1].Data, true
		}
	}
	return "", false
}

// Unquote removes surrounding quotes from a string.
func Unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') ||
		(s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

// IsQuoted reports whether s is a single quoted CSS string.
func IsQuoted(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'')
}
