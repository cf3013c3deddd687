package plugins

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	tcss "github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"

	"cssmc/css"
	"cssmc/plugin"
)

var calcEntry = Entry{
	Name:        "calc",
	Description: "evaluates calc() expressions with literal operands",
	Stages:      plugin.NewStageSet(plugin.StagePostResolve, plugin.StagePostBundle),
	Factory:     newCalc,
}

// NewCalcTransform returns calc transform for use in custom descriptors.
func NewCalcTransform(log *zap.Logger) plugin.TransformFunc {
	fn, _ := newCalc(log, nil)
	return fn
}

func newCalc(log *zap.Logger, options map[string]string) (plugin.TransformFunc, error) {
	if err := checkOptions(options, "precision"); err != nil {
		return nil, err
	}
	precision := 5
	if p, ok := options["precision"]; ok {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 10 {
			return nil, errors.New("option precision must be a number between 0 and 10")
		}
		precision = v
	}
	if log == nil {
		log = zap.NewNop()
	}

	return func(_ context.Context, stage plugin.Stage, sheet *css.Stylesheet) (*css.Stylesheet, error) {
		var evaluated, kept int
		sheet.MapDeclarations(func(d css.Declaration) string {
			value, e, k := evaluateCalc(d.Value, precision)
			evaluated, kept = evaluated+e, kept+k
			return value
		})
		if evaluated+kept > 0 {
			log.Debug("Calc expressions processed",
				zap.String("module", sheet.Source),
				zap.Stringer("stage", stage),
				zap.Int("evaluated", evaluated),
				zap.Int("unchanged", kept))
		}
		return sheet, nil
	}, nil
}

// evaluateCalc replaces top level calc() functions in value which can be
// computed. It returns number of evaluated and of left alone expressions.
func evaluateCalc(value string, precision int) (string, int, int) {
	if !strings.Contains(strings.ToLower(value), "calc(") {
		return value, 0, 0
	}
	tokens, err := css.Lex(value)
	if err != nil {
		return value, 0, 0
	}

	var (
		sb              strings.Builder
		evaluated, kept int
	)
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.Type != tcss.FunctionToken || !strings.EqualFold(t.Data, "calc(") {
			sb.WriteString(t.Data)
			continue
		}
		end := matchingParen(tokens, i)
		if end < 0 {
			sb.WriteString(t.Data)
			continue
		}
		p := &calcParser{tokens: significantTokens(tokens[i+1 : end])}
		q, err := p.parse()
		if err != nil {
			for _, t := range tokens[i : end+1] {
				sb.WriteString(t.Data)
			}
			kept++
		} else {
			sb.WriteString(q.format(precision))
			evaluated++
		}
		i = end
	}
	return sb.String(), evaluated, kept
}

// matchingParen returns index of token closing function or parenthesis at start.
func matchingParen(tokens []css.Token, start int) int {
	level := 0
	for i := start; i < len(tokens); i++ {
		switch tokens[i].Type {
		case tcss.FunctionToken, tcss.LeftParenthesisToken:
			level++
		case tcss.RightParenthesisToken:
			level--
			if level == 0 {
				return i
			}
		}
	}
	return -1
}

func significantTokens(tokens []css.Token) []css.Token {
	out := make([]css.Token, 0, len(tokens))
	for _, t := range tokens {
		if !t.IsSpace() {
			out = append(out, t)
		}
	}
	return out
}

// quantity is a number with optional unit ("%" for percentages).
type quantity struct {
	v    float64
	unit string
}

var numberPrefix = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)

func parseQuantity(t css.Token) (quantity, bool) {
	data := t.Data
	switch t.Type {
	case tcss.NumberToken:
	case tcss.PercentageToken:
		data = strings.TrimSuffix(data, "%")
	case tcss.DimensionToken:
	default:
		return quantity{}, false
	}
	num := numberPrefix.FindString(data)
	if num == "" {
		return quantity{}, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return quantity{}, false
	}
	q := quantity{v: v, unit: strings.ToLower(data[len(num):])}
	if t.Type == tcss.PercentageToken {
		q.unit = "%"
	}
	return q, true
}

func (q quantity) format(precision int) string {
	p := math.Pow(10, float64(precision))
	v := math.Round(q.v*p) / p
	if v == 0 {
		v = 0 // no negative zero
	}
	return strconv.FormatFloat(v, 'f', -1, 64) + q.unit
}

var errNotEvaluable = errors.New("expression cannot be evaluated")

// calcParser is a recursive descent evaluator:
//
//	sum     = product { ("+" | "-") product }
//	product = operand { ("*" | "/") operand }
//	operand = quantity | "(" sum ")" | "calc(" sum ")"
type calcParser struct {
	tokens []css.Token
	pos    int
}

func (p *calcParser) parse() (quantity, error) {
	q, err := p.sum()
	if err != nil {
		return quantity{}, err
	}
	if p.pos != len(p.tokens) {
		return quantity{}, errNotEvaluable
	}
	return q, nil
}

func (p *calcParser) peekDelim() string {
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == tcss.DelimToken {
		return p.tokens[p.pos].Data
	}
	return ""
}

func (p *calcParser) sum() (quantity, error) {
	left, err := p.product()
	if err != nil {
		return quantity{}, err
	}
	for {
		op := p.peekDelim()
		if op != "+" && op != "-" {
			return left, nil
		}
		p.pos++
		right, err := p.product()
		if err != nil {
			return quantity{}, err
		}
		if left.unit != right.unit {
			// mixed units need layout information
			return quantity{}, errNotEvaluable
		}
		if op == "+" {
			left.v += right.v
		} else {
			left.v -= right.v
		}
	}
}

func (p *calcParser) product() (quantity, error) {
	left, err := p.operand()
	if err != nil {
		return quantity{}, err
	}
	for {
		op := p.peekDelim()
		if op != "*" && op != "/" {
			return left, nil
		}
		p.pos++
		right, err := p.operand()
		if err != nil {
			return quantity{}, err
		}
		switch {
		case op == "*" && left.unit == "":
			left = quantity{v: left.v * right.v, unit: right.unit}
		case op == "*" && right.unit == "":
			left.v *= right.v
		case op == "/" && right.unit == "" && right.v != 0:
			left.v /= right.v
		default:
			return quantity{}, errNotEvaluable
		}
	}
}

func (p *calcParser) operand() (quantity, error) {
	if p.pos >= len(p.tokens) {
		return quantity{}, errNotEvaluable
	}
	t := p.tokens[p.pos]
	switch {
	case t.Type == tcss.LeftParenthesisToken,
		t.Type == tcss.FunctionToken && strings.EqualFold(t.Data, "calc("):
		p.pos++
		q, err := p.sum()
		if err != nil {
			return quantity{}, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != tcss.RightParenthesisToken {
			return quantity{}, errNotEvaluable
		}
		p.pos++
		return q, nil
	}
	q, ok := parseQuantity(t)
	if !ok {
		return quantity{}, errNotEvaluable
	}
	p.pos++
	return q, nil
}
