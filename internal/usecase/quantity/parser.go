// Package quantity normalizes free-form quantity strings such as "2x200g"
// or "1 L" into a canonical amount and unit.
package quantity

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pantrylens/backend/internal/domain"
)

// roundingPlaces is the number of decimal digits kept on parsed amounts
const roundingPlaces = 7

// Parser evaluates quantity expressions built from numbers, units,
// multiplication, division and parentheses.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a quantity parser
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger.Named("quantity")}
}

// ParseValue accepts nil (one piece), numbers and strings
func (p *Parser) ParseValue(v any) (domain.Quantity, error) {
	switch t := v.(type) {
	case nil:
		return p.Parse("1")
	case string:
		return p.Parse(t)
	case float64:
		return p.Parse(strconv.FormatFloat(t, 'f', -1, 64))
	case float32:
		return p.Parse(strconv.FormatFloat(float64(t), 'f', -1, 32))
	case int:
		return p.Parse(strconv.Itoa(t))
	case int64:
		return p.Parse(strconv.FormatInt(t, 10))
	default:
		return p.Parse(fmt.Sprint(t))
	}
}

// Parse normalizes a quantity string. Liters become milliliters, kilograms
// become grams and dimensionless results become pieces.
func (p *Parser) Parse(text string) (domain.Quantity, error) {
	q, err := p.parse(text)
	if err != nil {
		p.logger.Error("error processing quantity", zap.String("input", text), zap.Error(err))
		return domain.Quantity{}, err
	}
	return q, nil
}

func (p *Parser) parse(text string) (domain.Quantity, error) {
	expr := strings.ToLower(strings.TrimSpace(text))
	if expr == "" {
		expr = "1"
	}
	if idx := strings.Index(expr, "="); idx != -1 {
		expr = expr[idx+1:]
	}
	expr = strings.ReplaceAll(expr, "x", "*")

	tokens, err := lex(expr)
	if err != nil {
		return domain.Quantity{}, &domain.ParseError{Input: text, Reason: err.Error()}
	}
	ev := &evaluator{tokens: tokens}
	val, err := ev.expression()
	if err == nil && ev.pos < len(ev.tokens) {
		err = fmt.Errorf("unexpected %q", ev.tokens[ev.pos].text)
	}
	if err != nil {
		return domain.Quantity{}, &domain.ParseError{Input: text, Reason: err.Error()}
	}

	unit, err := val.unitName()
	if err != nil {
		return domain.Quantity{}, &domain.ParseError{Input: text, Reason: err.Error()}
	}
	amount := decimal.NewFromFloat(val.magnitude)
	if target, ok := familyTargets[unit]; ok {
		amount = amount.Mul(decimal.NewFromInt(target.factor))
		unit = target.unit
	}
	if amount.IsNegative() {
		return domain.Quantity{}, &domain.ParseError{Input: text, Reason: "negative amount"}
	}
	rounded, _ := amount.Round(roundingPlaces).Float64()
	return domain.Quantity{Amount: rounded, Unit: unit}, nil
}

// ParseUnit returns the canonical name of a bare unit string without
// folding it into its family base unit.
func (p *Parser) ParseUnit(text string) (string, bool) {
	name, ok := unitAliases[strings.ToLower(strings.TrimSpace(text))]
	return name, ok
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokUnit
	tokOp
	tokOpen
	tokClose
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

func lex(s string) ([]token, error) {
	var tokens []token
	runes := []rune(s)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.' || isDecimalComma(runes, i)) {
				i++
			}
			lit := strings.ReplaceAll(string(runes[start:i]), ",", ".")
			n, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", lit)
			}
			tokens = append(tokens, token{kind: tokNumber, text: lit, num: n})
		case unicode.IsLetter(r):
			start := i
			for i < len(runes) && unicode.IsLetter(runes[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokUnit, text: string(runes[start:i])})
		case r == '*' || r == '/' || r == '-':
			tokens = append(tokens, token{kind: tokOp, text: string(r)})
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokOpen, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokClose, text: ")"})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", r)
		}
	}
	return tokens, nil
}

// isDecimalComma accepts "1,5" style decimals
func isDecimalComma(runes []rune, i int) bool {
	return runes[i] == ',' && i > 0 && i+1 < len(runes) &&
		unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1])
}

// value is a magnitude with unit exponents, e.g. {400, gram:1}
type value struct {
	magnitude float64
	units     map[string]int
}

func (v value) mul(o value, sign int) value {
	out := value{units: make(map[string]int, len(v.units)+len(o.units))}
	if sign > 0 {
		out.magnitude = v.magnitude * o.magnitude
	} else {
		out.magnitude = v.magnitude / o.magnitude
	}
	for u, e := range v.units {
		out.units[u] += e
	}
	for u, e := range o.units {
		out.units[u] += sign * e
		if out.units[u] == 0 {
			delete(out.units, u)
		}
	}
	return out
}

func (v value) unitName() (string, error) {
	switch len(v.units) {
	case 0:
		return domain.UnitPiece, nil
	case 1:
		for u, e := range v.units {
			if e == 1 {
				return u, nil
			}
		}
	}
	return "", fmt.Errorf("unsupported compound unit")
}

type evaluator struct {
	tokens []token
	pos    int
}

func (e *evaluator) peek() (token, bool) {
	if e.pos >= len(e.tokens) {
		return token{}, false
	}
	return e.tokens[e.pos], true
}

// expression := factor (('*' | '/')? factor)*
func (e *evaluator) expression() (value, error) {
	left, err := e.factor()
	if err != nil {
		return value{}, err
	}
	for {
		t, ok := e.peek()
		if !ok || t.kind == tokClose {
			return left, nil
		}
		sign := 1
		if t.kind == tokOp {
			switch t.text {
			case "*":
			case "/":
				sign = -1
			default:
				return value{}, fmt.Errorf("unsupported operator %q", t.text)
			}
			e.pos++
		}
		right, err := e.factor()
		if err != nil {
			return value{}, err
		}
		if sign < 0 && right.magnitude == 0 {
			return value{}, fmt.Errorf("division by zero")
		}
		left = left.mul(right, sign)
	}
}

func (e *evaluator) factor() (value, error) {
	t, ok := e.peek()
	if !ok {
		return value{}, fmt.Errorf("unexpected end of input")
	}
	e.pos++
	switch t.kind {
	case tokNumber:
		return value{magnitude: t.num, units: map[string]int{}}, nil
	case tokUnit:
		name, known := unitAliases[t.text]
		if !known {
			return value{}, fmt.Errorf("unknown unit %q", t.text)
		}
		units := map[string]int{}
		if name != domain.UnitPiece {
			units[name] = 1
		}
		return value{magnitude: 1, units: units}, nil
	case tokOp:
		if t.text == "-" {
			inner, err := e.factor()
			if err != nil {
				return value{}, err
			}
			inner.magnitude = -inner.magnitude
			return inner, nil
		}
	case tokOpen:
		inner, err := e.expression()
		if err != nil {
			return value{}, err
		}
		if c, ok := e.peek(); !ok || c.kind != tokClose {
			return value{}, fmt.Errorf("missing closing parenthesis")
		}
		e.pos++
		return inner, nil
	}
	return value{}, fmt.Errorf("unexpected %q", t.text)
}
