// internal/engine/calculator.go
package engine

import (
	"errors"
	"regexp"
	"strings"
)

// Mode selects how player input is validated and priced.
type Mode string

const (
	// ModeNormal validates and evaluates a single expression.
	ModeNormal Mode = "normal"
	// ModeCost evaluates and additionally prices each symbol from a cost table.
	ModeCost Mode = "cost"
	// ModeCombo is display-only: evaluation still runs per line but the
	// structural adjacency rules are relaxed since nothing is executed.
	ModeCombo Mode = "combo"
)

// Classified evaluation failures. The string form doubles as the machine
// code surfaced to clients, so these must stay stable.
var (
	ErrDisallowedSymbol     = errors.New("disallowed_symbol")
	ErrMalformedExpression  = errors.New("malformed_expression")
	ErrIncompleteExpression = errors.New("incomplete_expression")
	ErrEmptyExpression      = errors.New("empty_expression")
	ErrUnknownMode          = errors.New("unknown_mode")
)

// DefaultCosts is the symbol price table used by Analyze when the caller
// does not provide one. Multiplication is deliberately the expensive symbol.
var DefaultCosts = map[rune]int{'1': 1, '+': 1, '*': 2, '(': 1, ')': 1}

var (
	adjacencyRe  = regexp.MustCompile(`\)\(|1\(|\)1`)
	doubledOpRe  = regexp.MustCompile(`[+*]{2,}`)
	openThenOpRe = regexp.MustCompile(`\([+*]`)
	opThenCloseRe = regexp.MustCompile(`[+*]\)`)
)

// Preprocess strips whitespace, rejects characters outside the whitelist
// with ErrDisallowedSymbol, and for evaluating modes rejects structurally
// implied multiplication (")(", "1(", ")1") with ErrMalformedExpression.
func Preprocess(expr string, mode Mode) (string, error) {
	var b strings.Builder
	for _, ch := range expr {
		switch ch {
		case '1', '+', '*', '(', ')':
			b.WriteRune(ch)
		case ' ', '\t', '\r', '\n':
			// whitespace is stripped, never an error
		default:
			return "", ErrDisallowedSymbol
		}
	}
	cleaned := b.String()

	switch mode {
	case ModeNormal, ModeCost:
		if adjacencyRe.MatchString(cleaned) {
			return "", ErrMalformedExpression
		}
	case ModeCombo:
	default:
		return "", ErrUnknownMode
	}
	return cleaned, nil
}

// Calculate evaluates a single restricted expression. It never panics: any
// structural defect comes back as a classified error instead of a value.
func Calculate(expr string, mode Mode) (float64, error) {
	stripped := strings.TrimSpace(expr)
	if stripped == "" {
		return 0, ErrEmptyExpression
	}
	if strings.HasPrefix(stripped, "+") {
		return 0, ErrIncompleteExpression
	}
	if strings.HasSuffix(stripped, "+") || strings.HasSuffix(stripped, "*") {
		return 0, ErrIncompleteExpression
	}
	if doubledOpRe.MatchString(stripped) {
		return 0, ErrIncompleteExpression
	}
	if openThenOpRe.MatchString(stripped) || opThenCloseRe.MatchString(stripped) {
		return 0, ErrIncompleteExpression
	}

	// An empty parenthesis pair anywhere is incomplete, including pairs
	// that only become empty after collapsing nested "()" groups.
	despaced := strings.ReplaceAll(stripped, " ", "")
	collapsed := despaced
	for strings.Contains(collapsed, "()") {
		collapsed = strings.ReplaceAll(collapsed, "()", "")
	}
	if collapsed != despaced {
		return 0, ErrIncompleteExpression
	}

	processed, err := Preprocess(expr, mode)
	if err != nil {
		return 0, err
	}
	if processed == "" {
		return 0, ErrEmptyExpression
	}

	val, err := evalRestricted(processed)
	if err != nil {
		return 0, ErrIncompleteExpression
	}
	return val, nil
}

// evalRestricted is a recursive-descent evaluator over the whitelisted
// symbol set only. Runs of '1' form multi-digit numbers, '*' binds tighter
// than '+'.
func evalRestricted(expr string) (float64, error) {
	p := &exprParser{input: expr}
	val, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.input) {
		return 0, errors.New("trailing input")
	}
	return val, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) peek() (byte, bool) {
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *exprParser) parseSum() (float64, error) {
	val, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		ch, ok := p.peek()
		if !ok || ch != '+' {
			return val, nil
		}
		p.pos++
		rhs, err := p.parseProduct()
		if err != nil {
			return 0, err
		}
		val += rhs
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	val, err := p.parseAtom()
	if err != nil {
		return 0, err
	}
	for {
		ch, ok := p.peek()
		if !ok || ch != '*' {
			return val, nil
		}
		p.pos++
		rhs, err := p.parseAtom()
		if err != nil {
			return 0, err
		}
		val *= rhs
	}
}

func (p *exprParser) parseAtom() (float64, error) {
	ch, ok := p.peek()
	if !ok {
		return 0, errors.New("unexpected end of expression")
	}
	switch ch {
	case '(':
		p.pos++
		val, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		closing, ok := p.peek()
		if !ok || closing != ')' {
			return 0, errors.New("unbalanced parenthesis")
		}
		p.pos++
		return val, nil
	case '1':
		val := 0.0
		for {
			d, ok := p.peek()
			if !ok || d != '1' {
				break
			}
			val = val*10 + 1
			p.pos++
		}
		return val, nil
	default:
		return 0, errors.New("unexpected symbol")
	}
}

// Result is one evaluated line of player input. Exactly one of Value and
// Code is set; Code carries the classified failure for lines that could
// not be reduced to a number.
type Result struct {
	Expr  string   `json:"expr"`
	Value *float64 `json:"value,omitempty"`
	Code  string   `json:"error,omitempty"`
}

// Analysis is the outcome of Analyze over a multi-line input.
type Analysis struct {
	Results   []Result `json:"results"`
	TotalCost int      `json:"total_cost,omitempty"`
	CharCount int      `json:"char_count,omitempty"`
}

// Analyze splits text into independent lines and evaluates each. In cost
// mode a maximal run of consecutive '1' characters is priced as one unit
// (runLength * cost of '1'); every other priced symbol is charged
// individually. Counting modes tally symbol occurrences instead.
func Analyze(text string, mode Mode, costs map[rune]int) Analysis {
	if costs == nil {
		costs = DefaultCosts
	}

	var out Analysis
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}

		if mode == ModeCost {
			out.TotalCost += lineCost(stripped, costs)
		} else {
			for _, ch := range stripped {
				switch ch {
				case '(', ')', '+', '*', '1':
					out.CharCount++
				}
			}
		}

		res := Result{Expr: stripped}
		val, err := Calculate(stripped, mode)
		if err != nil {
			res.Code = err.Error()
		} else {
			res.Value = &val
		}
		out.Results = append(out.Results, res)
	}
	return out
}

func lineCost(line string, costs map[rune]int) int {
	total := 0
	runes := []rune(line)
	for i := 0; i < len(runes); {
		if runes[i] == '1' {
			j := i
			for j < len(runes) && runes[j] == '1' {
				j++
			}
			total += (j - i) * costs['1']
			i = j
			continue
		}
		if price, ok := costs[runes[i]]; ok {
			total += price
		}
		i++
	}
	return total
}
