package dsl

import (
	"fmt"
	"net"
	"regexp"
	"strconv"

	"github.com/artpar/selector/domain/expr"
	"github.com/artpar/selector/domain/rumperr"
	"github.com/artpar/selector/domain/schema"
)

// ParseExpression parses a boolean expression against sch, the field
// schema the resulting expression will be evaluated over. Field names and
// their accepted operators are validated against sch at parse time, the
// same type-dispatched-grammar approach the original's field_exprs
// grammar compiler uses.
func ParseExpression(input string, sch *schema.Schema) (expr.Expression, error) {
	toks, err := Lex(input)
	if err != nil {
		return nil, &rumperr.ParseError{Input: input, Reason: err.Error()}
	}
	p := &Parser{tokens: toks, schema: sch, input: input}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != TokEOF {
		return nil, p.errorf(p.peek(), "unexpected trailing input %q", p.peek().Text)
	}
	return e, nil
}

// Parser is a recursive-descent/precedence-climbing parser over a token
// stream, dispatching field grammar on the field's schema.Kind.
type Parser struct {
	tokens []Token
	pos    int
	schema *schema.Schema
	input  string
}

func (p *Parser) peek() Token { return p.tokens[p.pos] }

func (p *Parser) next() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	t := p.peek()
	if t.Type != tt {
		return Token{}, p.errorf(t, "unexpected token %q", t.Text)
	}
	return p.next(), nil
}

// expectStringOrIPLiteral accepts either a quoted string or a bare
// dotted-quad/CIDR literal (client_ip4 in 1.2.3.4/32) as an IP field's
// literal text.
func (p *Parser) expectStringOrIPLiteral() (Token, error) {
	t := p.peek()
	if t.Type != TokString && t.Type != TokIPLiteral {
		return Token{}, p.errorf(t, "unexpected token %q", t.Text)
	}
	return p.next(), nil
}

func (p *Parser) errorf(t Token, format string, args ...interface{}) error {
	return &rumperr.ParseError{Input: p.input, Pos: t.Pos, Reason: fmt.Sprintf(format, args...)}
}

// precedence-climbing: or binds loosest, then and, then unary not, then primary.

func (p *Parser) parseOr() (expr.Expression, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokOr {
		p.next()
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = &expr.Or{LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseAnd() (expr.Expression, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokAnd {
		p.next()
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = &expr.And{LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseUnary() (expr.Expression, error) {
	if p.peek().Type == TokBang {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return inner.Invert(), nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (expr.Expression, error) {
	switch p.peek().Type {
	case TokLParen:
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return e, nil
	case TokString:
		// reversed contains form: "needle" in field
		lit := p.next()
		if _, err := p.expect(TokIn); err != nil {
			return nil, err
		}
		field, subfield, f, err := p.parseFieldRef()
		if err != nil {
			return nil, err
		}
		if f.Kind != schema.KindString && !f.Kind.IsHash() {
			return nil, p.errorf(lit, "field %q does not support contains", field)
		}
		return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpContains, Literal: lit.Text}, nil
	case TokIdent:
		return p.parseFieldExpr()
	default:
		return nil, p.errorf(p.peek(), "unexpected token %q", p.peek().Text)
	}
}

func (p *Parser) parseFieldRef() (field, subfield string, f *schema.Field, err error) {
	tok, err := p.expect(TokIdent)
	if err != nil {
		return "", "", nil, err
	}
	field = tok.Text
	f, err = p.schema.RequireField(field)
	if err != nil {
		return "", "", nil, &rumperr.ParseError{Input: p.input, Pos: tok.Pos, Reason: err.Error()}
	}
	if p.peek().Type == TokDot {
		p.next()
		subTok, err := p.expect(TokIdent)
		if err != nil {
			return "", "", nil, err
		}
		subfield = subTok.Text
	}
	if f.Kind.IsHash() && subfield == "" {
		return "", "", nil, p.errorf(tok, "field %q requires a subfield", field)
	}
	if !f.Kind.IsHash() && subfield != "" {
		return "", "", nil, p.errorf(tok, "field %q is not subfield-addressable", field)
	}
	return field, subfield, f, nil
}

func (p *Parser) parseFieldExpr() (expr.Expression, error) {
	field, subfield, f, err := p.parseFieldRef()
	if err != nil {
		return nil, err
	}

	kind := f.Kind
	if kind.IsHash() {
		// Subfield values always resolve to strings.
		kind = schema.KindString
	}

	switch kind {
	case schema.KindBool:
		return p.parseBoolFieldExpr(field, subfield)
	case schema.KindString:
		return p.parseStringFieldExpr(field, subfield)
	case schema.KindInt:
		return p.parseIntFieldExpr(field, subfield)
	case schema.KindIPAddress:
		return p.parseIPFieldExpr(field, subfield)
	default:
		return nil, p.errorf(p.peek(), "field %q has no expressible grammar", field)
	}
}

func (p *Parser) parseBoolFieldExpr(field, subfield string) (expr.Expression, error) {
	if p.peek().Type != TokEqual {
		return &expr.UnaryField{Field: field, Subfield: subfield}, nil
	}
	p.next()
	lit, err := p.parseBoolOrNull()
	if err != nil {
		return nil, err
	}
	return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpEqual, Literal: lit}, nil
}

func (p *Parser) parseStringFieldExpr(field, subfield string) (expr.Expression, error) {
	tok := p.peek()
	switch tok.Type {
	case TokEqual:
		p.next()
		lit, err := p.parseStringOrNull()
		if err != nil {
			return nil, err
		}
		return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpEqual, Literal: lit}, nil
	case TokNotEqual:
		p.next()
		lit, err := p.parseStringOrNull()
		if err != nil {
			return nil, err
		}
		return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpNotEqual, Literal: lit}, nil
	case TokStartsWith:
		p.next()
		lit, err := p.expect(TokString)
		if err != nil {
			return nil, err
		}
		return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpStartsWith, Literal: lit.Text}, nil
	case TokEndsWith:
		p.next()
		lit, err := p.expect(TokString)
		if err != nil {
			return nil, err
		}
		return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpEndsWith, Literal: lit.Text}, nil
	case TokTilde, TokTildeStar:
		ci := tok.Type == TokTildeStar
		p.next()
		lit, err := p.expect(TokString)
		if err != nil {
			return nil, err
		}
		pattern := lit.Text
		if ci {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, p.errorf(lit, "invalid regex %q: %v", lit.Text, err)
		}
		return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpMatch, Literal: re, CaseInsensitive: ci}, nil
	case TokIn:
		p.next()
		items, err := p.parseStringList()
		if err != nil {
			return nil, err
		}
		return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpIn, Literal: items}, nil
	default:
		return nil, p.errorf(tok, "unexpected token %q in string field expression", tok.Text)
	}
}

func (p *Parser) parseIntFieldExpr(field, subfield string) (expr.Expression, error) {
	tok := p.peek()
	opForToken := map[TokenType]expr.CompareOp{
		TokLess:         expr.OpLessThan,
		TokLessEqual:    expr.OpLessThanEqual,
		TokGreater:      expr.OpGreaterThan,
		TokGreaterEqual: expr.OpGreaterThanEqual,
	}
	switch tok.Type {
	case TokEqual:
		p.next()
		lit, err := p.parseNumberOrNull()
		if err != nil {
			return nil, err
		}
		return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpEqual, Literal: lit}, nil
	case TokLess, TokLessEqual, TokGreater, TokGreaterEqual:
		p.next()
		lit, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		return &expr.FieldOp{Field: field, Subfield: subfield, Op: opForToken[tok.Type], Literal: lit}, nil
	case TokIn:
		p.next()
		items, err := p.parseNumberList()
		if err != nil {
			return nil, err
		}
		return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpIn, Literal: items}, nil
	default:
		return nil, p.errorf(tok, "unexpected token %q in int field expression", tok.Text)
	}
}

func (p *Parser) parseIPFieldExpr(field, subfield string) (expr.Expression, error) {
	tok := p.peek()
	switch tok.Type {
	case TokEqual:
		p.next()
		if p.peek().Type == TokNull {
			p.next()
			return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpEqual, Literal: nil}, nil
		}
		lit, err := p.expectStringOrIPLiteral()
		if err != nil {
			return nil, err
		}
		ip, ok := schema.ParseIPAddress(lit.Text)
		if !ok {
			return nil, p.errorf(lit, "invalid IP address %q", lit.Text)
		}
		return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpEqual, Literal: ip}, nil
	case TokIn:
		p.next()
		lit, err := p.expectStringOrIPLiteral()
		if err != nil {
			return nil, err
		}
		_, ipnet, err := net.ParseCIDR(lit.Text)
		if err != nil {
			return nil, p.errorf(lit, "invalid CIDR %q: %v", lit.Text, err)
		}
		return &expr.FieldOp{Field: field, Subfield: subfield, Op: expr.OpIn, Literal: ipnet}, nil
	default:
		return nil, p.errorf(tok, "unexpected token %q in IP field expression", tok.Text)
	}
}

func (p *Parser) parseBoolOrNull() (interface{}, error) {
	tok := p.peek()
	switch tok.Type {
	case TokTrue:
		p.next()
		return true, nil
	case TokFalse:
		p.next()
		return false, nil
	case TokNull:
		p.next()
		return nil, nil
	default:
		return nil, p.errorf(tok, "expected true, false or null, got %q", tok.Text)
	}
}

func (p *Parser) parseStringOrNull() (interface{}, error) {
	tok := p.peek()
	if tok.Type == TokNull {
		p.next()
		return nil, nil
	}
	lit, err := p.expect(TokString)
	if err != nil {
		return nil, err
	}
	return lit.Text, nil
}

func (p *Parser) parseNumber() (int, error) {
	tok, err := p.expect(TokNumber)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(tok.Text)
	if convErr != nil {
		return 0, p.errorf(tok, "invalid integer %q", tok.Text)
	}
	return n, nil
}

func (p *Parser) parseNumberOrNull() (interface{}, error) {
	if p.peek().Type == TokNull {
		p.next()
		return nil, nil
	}
	return p.parseNumber()
}

func (p *Parser) parseStringList() ([]interface{}, error) {
	if _, err := p.expect(TokLBracket); err != nil {
		return nil, err
	}
	var items []interface{}
	if p.peek().Type != TokRBracket {
		lit, err := p.expect(TokString)
		if err != nil {
			return nil, err
		}
		items = append(items, lit.Text)
		for p.peek().Type == TokComma {
			p.next()
			lit, err := p.expect(TokString)
			if err != nil {
				return nil, err
			}
			items = append(items, lit.Text)
		}
	}
	if _, err := p.expect(TokRBracket); err != nil {
		return nil, err
	}
	return items, nil
}

func (p *Parser) parseNumberList() ([]interface{}, error) {
	if _, err := p.expect(TokLBracket); err != nil {
		return nil, err
	}
	var items []interface{}
	if p.peek().Type != TokRBracket {
		n, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		items = append(items, n)
		for p.peek().Type == TokComma {
			p.next()
			n, err := p.parseNumber()
			if err != nil {
				return nil, err
			}
			items = append(items, n)
		}
	}
	if _, err := p.expect(TokRBracket); err != nil {
		return nil, err
	}
	return items, nil
}
