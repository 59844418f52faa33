package asm

import (
	"fmt"
	"strconv"
	"strings"
)

type binaryOp struct {
	text string
	op   Op
	prec int
}

// Longer operators come first so that "<<" wins over "<"
var binaryOps = []binaryOp{
	{">>>", OpSignedShr, 8},
	{"||", OpLogOr, 1},
	{"&&", OpLogAnd, 2},
	{"==", OpEq, 6},
	{"!=", OpNe, 6},
	{"<=", OpLe, 7},
	{">=", OpGe, 7},
	{"<<", OpShl, 8},
	{">>", OpShr, 8},
	{"//", OpSignedDiv, 10},
	{"%%", OpSignedMod, 10},
	{"|", OpOr, 3},
	{"^", OpXor, 4},
	{"&", OpAnd, 5},
	{"<", OpLt, 7},
	{">", OpGt, 7},
	{"+", OpAdd, 9},
	{"-", OpSub, 9},
	{"*", OpMul, 10},
	{"/", OpDiv, 10},
	{"%", OpMod, 10},
}

type exprParser struct {
	s   string
	pos int
}

// ParseExpr parses an expression at the start of s. It stops at the first
// character that cannot continue the expression (like ',') and returns the
// number of bytes consumed.
func ParseExpr(s string) (Expr, int, error) {
	p := &exprParser{s: s}
	e, err := p.parseBinary(1)
	if err != nil {
		return nil, p.pos, err
	}
	p.skipSpaces()
	return e, p.pos, nil
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peekBinary() (binaryOp, bool) {
	p.skipSpaces()
	rest := p.s[p.pos:]
	for _, bo := range binaryOps {
		if strings.HasPrefix(rest, bo.text) {
			return bo, true
		}
	}
	return binaryOp{}, false
}

func (p *exprParser) parseBinary(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		bo, ok := p.peekBinary()
		if !ok || bo.prec < minPrec {
			return left, nil
		}
		p.pos += len(bo.text)
		right, err := p.parseBinary(bo.prec + 1)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: bo.op, Left: left, Right: right}
	}
}

func (p *exprParser) parseUnary() (Expr, error) {
	p.skipSpaces()
	if p.pos >= len(p.s) {
		return nil, fmt.Errorf("expected expression")
	}
	switch p.s[p.pos] {
	case '-':
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: OpNeg, X: x}, nil
	case '~':
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: OpBitNot, X: x}, nil
	case '!':
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: OpLogNot, X: x}, nil
	case '+':
		p.pos++
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (Expr, error) {
	c := p.s[p.pos]
	switch {
	case c == '(':
		p.pos++
		e, err := p.parseBinary(1)
		if err != nil {
			return nil, err
		}
		p.skipSpaces()
		if p.pos >= len(p.s) || p.s[p.pos] != ')' {
			return nil, fmt.Errorf("missing ')'")
		}
		p.pos++
		return e, nil
	case c >= '0' && c <= '9':
		return p.parseNumber()
	case c == '\'':
		if p.pos+2 < len(p.s) && p.s[p.pos+2] == '\'' {
			v := uint64(p.s[p.pos+1])
			p.pos += 3
			return &NumberExpr{Value: v}, nil
		}
		return nil, fmt.Errorf("bad character literal")
	case IsNameStart(c):
		start := p.pos
		for p.pos < len(p.s) && IsNameChar(p.s[p.pos]) {
			p.pos++
		}
		return &SymbolExpr{Name: p.s[start:p.pos]}, nil
	}
	return nil, fmt.Errorf("unexpected character '%c' in expression", c)
}

func (p *exprParser) parseNumber() (Expr, error) {
	start := p.pos
	for p.pos < len(p.s) && isAlnum(p.s[p.pos]) {
		p.pos++
	}
	text := p.s[start:p.pos]
	var (
		v   uint64
		err error
	)
	switch {
	case len(text) > 2 && (text[:2] == "0x" || text[:2] == "0X"):
		v, err = strconv.ParseUint(text[2:], 16, 64)
	case len(text) > 2 && (text[:2] == "0b" || text[:2] == "0B"):
		v, err = strconv.ParseUint(text[2:], 2, 64)
	case len(text) > 1 && text[0] == '0':
		v, err = strconv.ParseUint(text[1:], 8, 64)
	default:
		v, err = strconv.ParseUint(text, 10, 64)
	}
	if err != nil {
		return nil, fmt.Errorf("bad number '%s'", text)
	}
	return &NumberExpr{Value: v}, nil
}

// IsNameStart reports whether c may begin a symbol name
func IsNameStart(c byte) bool {
	return c == '_' || c == '.' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// IsNameChar reports whether c may continue a symbol name
func IsNameChar(c byte) bool {
	return IsNameStart(c) || (c >= '0' && c <= '9')
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
