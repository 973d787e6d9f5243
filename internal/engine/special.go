// internal/engine/special.go
//
// Extended evaluator for the special game mode. The grammar adds unary
// sign and bounded integer exponentiation ("**") on top of the base symbol
// set, and every violation is classified distinctly so the client can tell
// the player exactly why an attempt was rejected. Parsing and evaluation
// run entirely over this whitelisted token set; no host-language eval.
package engine

import (
	"errors"
	"fmt"
)

const (
	// MaxSpecialLength bounds raw input size after whitespace strip.
	MaxSpecialLength = 512
	// MaxExponent bounds the right operand of "**".
	MaxExponent = 8
	// MaxBaseMagnitude bounds the left operand of "**" pre-exponentiation.
	MaxBaseMagnitude = 1_000_000
	// MaxAbsValue bounds the final result magnitude.
	MaxAbsValue = 1_000_000_000
)

// SpecialError is a classified special-mode violation. Code is a stable
// machine string; Message is human-readable.
type SpecialError struct {
	Code    string
	Message string
}

func (e *SpecialError) Error() string { return e.Code }

func specialErr(code, message string) *SpecialError {
	return &SpecialError{Code: code, Message: message}
}

// AsSpecialError unwraps err into a *SpecialError if it is one.
func AsSpecialError(err error) (*SpecialError, bool) {
	var se *SpecialError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// NormalizeSpecialExpression strips all whitespace and enforces the input
// length and character whitelist for the extended grammar.
func NormalizeSpecialExpression(expression string) (string, error) {
	var b []byte
	for i := 0; i < len(expression); i++ {
		switch c := expression[i]; c {
		case ' ', '\t', '\r', '\n':
		case '1', '+', '-', '*', '(', ')':
			b = append(b, c)
		default:
			return "", specialErr("disallowed_symbol", "expression contains a symbol outside 1, +, -, *, ( and )")
		}
	}
	if len(b) == 0 {
		return "", specialErr("empty_expression", "expression is empty")
	}
	if len(b) > MaxSpecialLength {
		return "", specialErr("expression_too_long",
			fmt.Sprintf("expression exceeds the %d character limit", MaxSpecialLength))
	}
	return string(b), nil
}

// CountSymbolUsage counts symbols in a normalized expression, treating the
// power operator "**" as a single token.
func CountSymbolUsage(expression string) (int, error) {
	count := 0
	for i := 0; i < len(expression); {
		if i+1 < len(expression) && expression[i] == '*' && expression[i+1] == '*' {
			count++
			i += 2
			continue
		}
		switch expression[i] {
		case '1', '+', '-', '*', '(', ')':
			count++
			i++
		default:
			return 0, specialErr("disallowed_symbol", "expression contains a symbol outside 1, +, -, *, ( and )")
		}
	}
	return count, nil
}

// EvaluateSpecialExpression parses and evaluates a normalized extended
// expression under hard numeric bounds.
func EvaluateSpecialExpression(expression string) (int64, error) {
	p := &specialParser{input: expression}
	value, err := p.parseAdditive()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.input) {
		return 0, errIncompleteSpecial()
	}
	if abs64(value) > MaxAbsValue {
		return 0, specialErr("value_out_of_range",
			fmt.Sprintf("result magnitude exceeds %d", int64(MaxAbsValue)))
	}
	return value, nil
}

func errIncompleteSpecial() *SpecialError {
	return specialErr("incomplete_expression", "expression cannot be evaluated")
}

func errOverflow() *SpecialError {
	return specialErr("value_out_of_range", "an intermediate value left the representable range")
}

// specialParser is a recursive-descent parser for the extended grammar:
//
//	additive       := multiplicative (("+"|"-") multiplicative)*
//	multiplicative := unary ("*" unary)*
//	unary          := ("+"|"-") unary | power
//	power          := atom ("**" unary)?
//	atom           := number | "(" additive ")"
//
// "**" is right associative and binds tighter than unary sign on its left,
// matching conventional arithmetic (-1**2 is -(1**2)).
type specialParser struct {
	input string
	pos   int
}

func (p *specialParser) peek() (byte, bool) {
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *specialParser) hasPower() bool {
	return p.pos+1 < len(p.input) && p.input[p.pos] == '*' && p.input[p.pos+1] == '*'
}

func (p *specialParser) parseAdditive() (int64, error) {
	val, err := p.parseMultiplicative()
	if err != nil {
		return 0, err
	}
	for {
		ch, ok := p.peek()
		if !ok || (ch != '+' && ch != '-') {
			return val, nil
		}
		p.pos++
		rhs, err := p.parseMultiplicative()
		if err != nil {
			return 0, err
		}
		if ch == '+' {
			val, err = checkedAdd(val, rhs)
		} else {
			val, err = checkedAdd(val, -rhs)
		}
		if err != nil {
			return 0, err
		}
	}
}

func (p *specialParser) parseMultiplicative() (int64, error) {
	val, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		if p.hasPower() {
			return 0, errIncompleteSpecial()
		}
		ch, ok := p.peek()
		if !ok || ch != '*' {
			return val, nil
		}
		p.pos++
		rhs, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		val, err = checkedMul(val, rhs)
		if err != nil {
			return 0, err
		}
	}
}

func (p *specialParser) parseUnary() (int64, error) {
	ch, ok := p.peek()
	if !ok {
		return 0, errIncompleteSpecial()
	}
	if ch == '+' || ch == '-' {
		p.pos++
		val, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if ch == '-' {
			return -val, nil
		}
		return val, nil
	}
	return p.parsePower()
}

func (p *specialParser) parsePower() (int64, error) {
	base, err := p.parseAtom()
	if err != nil {
		return 0, err
	}
	if !p.hasPower() {
		return base, nil
	}
	p.pos += 2
	// The exponent side may carry its own unary sign, e.g. 11 ** -1.
	exp, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	return checkedPow(base, exp)
}

func (p *specialParser) parseAtom() (int64, error) {
	ch, ok := p.peek()
	if !ok {
		return 0, errIncompleteSpecial()
	}
	switch ch {
	case '(':
		p.pos++
		val, err := p.parseAdditive()
		if err != nil {
			return 0, err
		}
		closing, ok := p.peek()
		if !ok || closing != ')' {
			return 0, errIncompleteSpecial()
		}
		p.pos++
		return val, nil
	case '1':
		var val int64
		for {
			d, ok := p.peek()
			if !ok || d != '1' {
				break
			}
			next, err := checkedMul(val, 10)
			if err != nil {
				return 0, err
			}
			val, err = checkedAdd(next, 1)
			if err != nil {
				return 0, err
			}
			p.pos++
		}
		return val, nil
	default:
		return 0, errIncompleteSpecial()
	}
}

func checkedPow(base, exp int64) (int64, error) {
	if exp < 0 {
		return 0, specialErr("negative_exponent", "a power exponent may not be negative")
	}
	if exp > MaxExponent {
		return 0, specialErr("exponent_too_large",
			fmt.Sprintf("power exponents above %d are not allowed", MaxExponent))
	}
	if abs64(base) > MaxBaseMagnitude {
		return 0, specialErr("base_too_large",
			fmt.Sprintf("power base magnitude may not exceed %d", int64(MaxBaseMagnitude)))
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		var err error
		result, err = checkedMul(result, base)
		if err != nil {
			return 0, err
		}
	}
	return result, nil
}

func checkedAdd(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, errOverflow()
	}
	return sum, nil
}

func checkedMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/b != a {
		return 0, errOverflow()
	}
	return product, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
