package filter

import (
	"fmt"

	"github.com/edgevec/edgevec/pkg/metadata"
)

// Parser turns a token stream into an Expr tree, binding tightest-first
// as NOT, AND, OR, with parentheses overriding precedence.
type Parser struct {
	tokens []Token
	pos    int
}

// Parse tokenizes and parses src into an immutable Expr tree.
func Parse(src string) (Expr, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != TokEOF {
		return nil, &SyntaxError{
			Pos:      p.peek().Pos,
			Message:  fmt.Sprintf("unexpected token %q", p.peek().Text),
			Expected: "end of expression",
			Hint:     "check for a missing operator or stray token",
		}
	}
	return expr, nil
}

func (p *Parser) peek() Token { return p.tokens[p.pos] }

func (p *Parser) next() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(kind TokenKind) (Token, error) {
	t := p.peek()
	if t.Kind != kind {
		return Token{}, &SyntaxError{
			Pos:      t.Pos,
			Message:  fmt.Sprintf("unexpected token %q", t.Text),
			Expected: kind.String(),
			Hint:     fmt.Sprintf("insert a %s here", kind),
		}
	}
	return p.next(), nil
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Logical{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = Logical{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.peek().Kind == TokNot {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Logical{Op: OpNot, Left: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.Kind {
	case TokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case TokTrue:
		p.next()
		return Literal{Value: true}, nil
	case TokFalse:
		p.next()
		return Literal{Value: false}, nil
	case TokIdent:
		return p.parseFieldExpr()
	default:
		return nil, &SyntaxError{
			Pos:      t.Pos,
			Message:  fmt.Sprintf("unexpected token %q", t.Text),
			Expected: "field name, literal, or '('",
		}
	}
}

func (p *Parser) parseFieldExpr() (Expr, error) {
	field := p.next().Text

	switch p.peek().Kind {
	case TokEq, TokNeq, TokLt, TokLte, TokGt, TokGte:
		op := p.next().Kind
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return Compare{Field: field, Op: compareOpFromToken(op), Value: val}, nil

	case TokIn:
		p.next()
		values, err := p.parseValueList()
		if err != nil {
			return nil, err
		}
		return InSet{Field: field, Values: values}, nil

	case TokAny:
		p.next()
		values, err := p.parseValueList()
		if err != nil {
			return nil, err
		}
		return ArrayAny{Field: field, Values: values}, nil

	case TokBetween:
		p.next()
		lo, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokAnd); err != nil {
			return nil, err
		}
		hi, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return Between{Field: field, Lo: lo, Hi: hi}, nil

	case TokIs:
		p.next()
		isNull := true
		if p.peek().Kind == TokNot {
			p.next()
			isNull = false
		}
		if _, err := p.expect(TokNull); err != nil {
			return nil, err
		}
		return Null{Field: field, IsNull: isNull}, nil

	default:
		t := p.peek()
		return nil, &SyntaxError{
			Pos:      t.Pos,
			Message:  fmt.Sprintf("unexpected token %q after field %q", t.Text, field),
			Expected: "comparison operator, IN, ANY, BETWEEN, or IS",
		}
	}
}

func compareOpFromToken(k TokenKind) CompareOp {
	switch k {
	case TokEq:
		return OpEq
	case TokNeq:
		return OpNeq
	case TokLt:
		return OpLt
	case TokLte:
		return OpLte
	case TokGt:
		return OpGt
	default:
		return OpGte
	}
}

func (p *Parser) parseValueList() ([]metadata.Value, error) {
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	var values []metadata.Value
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.peek().Kind == TokComma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return values, nil
}

func (p *Parser) parseValue() (metadata.Value, error) {
	t := p.peek()
	switch t.Kind {
	case TokString:
		p.next()
		return metadata.String(t.Text), nil
	case TokInt:
		p.next()
		var n int64
		_, err := fmt.Sscanf(t.Text, "%d", &n)
		if err != nil {
			return metadata.Value{}, &SyntaxError{Pos: t.Pos, Message: "invalid integer literal " + t.Text}
		}
		return metadata.Integer(n), nil
	case TokFloat:
		p.next()
		var f float64
		_, err := fmt.Sscanf(t.Text, "%g", &f)
		if err != nil {
			return metadata.Value{}, &SyntaxError{Pos: t.Pos, Message: "invalid float literal " + t.Text}
		}
		return metadata.Float(f), nil
	case TokTrue:
		p.next()
		return metadata.Boolean(true), nil
	case TokFalse:
		p.next()
		return metadata.Boolean(false), nil
	default:
		return metadata.Value{}, &SyntaxError{
			Pos:      t.Pos,
			Message:  fmt.Sprintf("unexpected token %q", t.Text),
			Expected: "string, integer, float, or boolean literal",
		}
	}
}
