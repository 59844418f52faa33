package asm

import (
	"errors"
	"fmt"
	"strconv"
)

// Op is an expression operator
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpSignedDiv
	OpMod
	OpSignedMod
	OpShl
	OpShr
	OpSignedShr
	OpAnd
	OpOr
	OpXor
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLogAnd
	OpLogOr
	OpNeg
	OpBitNot
	OpLogNot
)

var opNames = [...]string{
	OpAdd:       "+",
	OpSub:       "-",
	OpMul:       "*",
	OpDiv:       "/",
	OpSignedDiv: "//",
	OpMod:       "%",
	OpSignedMod: "%%",
	OpShl:       "<<",
	OpShr:       ">>",
	OpSignedShr: ">>>",
	OpAnd:       "&",
	OpOr:        "|",
	OpXor:       "^",
	OpEq:        "==",
	OpNe:        "!=",
	OpLt:        "<",
	OpLe:        "<=",
	OpGt:        ">",
	OpGe:        ">=",
	OpLogAnd:    "&&",
	OpLogOr:     "||",
	OpNeg:       "-",
	OpBitNot:    "~",
	OpLogNot:    "!",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "?"
	}
	return opNames[op]
}

// ErrRelative is wrapped by evaluation errors caused by a section-relative
// operand in an operation that needs absolute values.
var ErrRelative = errors.New("expression is not absolute")

// UndefinedSymbolError reports a reference to a symbol without a value
type UndefinedSymbolError struct {
	Name string
}

func (e *UndefinedSymbolError) Error() string {
	return fmt.Sprintf("undefined symbol '%s'", e.Name)
}

// Scope resolves symbol names during evaluation
type Scope interface {
	LookupValue(name string) (value uint64, section SectionID, ok bool)
}

// Expr is a parsed expression tree
type Expr interface {
	// Evaluate returns the value and the section it is relative to
	// (SectionAbs for plain numbers).
	Evaluate(scope Scope) (uint64, SectionID, error)
	String() string
}

// NumberExpr is a literal
type NumberExpr struct {
	Value uint64
}

func (e *NumberExpr) Evaluate(Scope) (uint64, SectionID, error) {
	return e.Value, SectionAbs, nil
}

func (e *NumberExpr) String() string {
	return strconv.FormatUint(e.Value, 10)
}

// SymbolExpr references a symbol by name
type SymbolExpr struct {
	Name string
}

func (e *SymbolExpr) Evaluate(scope Scope) (uint64, SectionID, error) {
	value, section, ok := scope.LookupValue(e.Name)
	if !ok {
		return 0, SectionAbs, &UndefinedSymbolError{Name: e.Name}
	}
	return value, section, nil
}

func (e *SymbolExpr) String() string {
	return e.Name
}

// UnaryExpr applies a prefix operator
type UnaryExpr struct {
	Op Op
	X  Expr
}

func (e *UnaryExpr) Evaluate(scope Scope) (uint64, SectionID, error) {
	v, sect, err := e.X.Evaluate(scope)
	if err != nil {
		return 0, SectionAbs, err
	}
	if sect != SectionAbs {
		return 0, SectionAbs, fmt.Errorf("%w: operator '%s' needs an absolute operand", ErrRelative, e.Op)
	}
	switch e.Op {
	case OpNeg:
		return -v, SectionAbs, nil
	case OpBitNot:
		return ^v, SectionAbs, nil
	case OpLogNot:
		return boolValue(v == 0), SectionAbs, nil
	}
	return 0, SectionAbs, fmt.Errorf("bad unary operator '%s'", e.Op)
}

func (e *UnaryExpr) String() string {
	return e.Op.String() + e.X.String()
}

// BinaryExpr applies an infix operator
type BinaryExpr struct {
	Op          Op
	Left, Right Expr
}

func (e *BinaryExpr) Evaluate(scope Scope) (uint64, SectionID, error) {
	l, ls, err := e.Left.Evaluate(scope)
	if err != nil {
		return 0, SectionAbs, err
	}
	r, rs, err := e.Right.Evaluate(scope)
	if err != nil {
		return 0, SectionAbs, err
	}

	switch e.Op {
	case OpAdd:
		switch {
		case ls == SectionAbs:
			return l + r, rs, nil
		case rs == SectionAbs:
			return l + r, ls, nil
		}
		return 0, SectionAbs, fmt.Errorf("%w: can't add values of two sections", ErrRelative)
	case OpSub:
		switch {
		case rs == SectionAbs:
			return l - r, ls, nil
		case ls == rs:
			return l - r, SectionAbs, nil
		}
		return 0, SectionAbs, fmt.Errorf("%w: can't subtract values of different sections", ErrRelative)
	}

	if ls != SectionAbs || rs != SectionAbs {
		return 0, SectionAbs, fmt.Errorf("%w: operator '%s' needs absolute operands", ErrRelative, e.Op)
	}

	switch e.Op {
	case OpMul:
		return l * r, SectionAbs, nil
	case OpDiv, OpSignedDiv, OpMod, OpSignedMod:
		if r == 0 {
			return 0, SectionAbs, errors.New("division by zero")
		}
		switch e.Op {
		case OpDiv:
			return l / r, SectionAbs, nil
		case OpSignedDiv:
			return uint64(int64(l) / int64(r)), SectionAbs, nil
		case OpMod:
			return l % r, SectionAbs, nil
		default:
			return uint64(int64(l) % int64(r)), SectionAbs, nil
		}
	case OpShl:
		if r >= 64 {
			return 0, SectionAbs, nil
		}
		return l << r, SectionAbs, nil
	case OpShr:
		if r >= 64 {
			return 0, SectionAbs, nil
		}
		return l >> r, SectionAbs, nil
	case OpSignedShr:
		if r >= 64 {
			r = 63
		}
		return uint64(int64(l) >> r), SectionAbs, nil
	case OpAnd:
		return l & r, SectionAbs, nil
	case OpOr:
		return l | r, SectionAbs, nil
	case OpXor:
		return l ^ r, SectionAbs, nil
	case OpEq:
		return boolValue(l == r), SectionAbs, nil
	case OpNe:
		return boolValue(l != r), SectionAbs, nil
	case OpLt:
		return boolValue(l < r), SectionAbs, nil
	case OpLe:
		return boolValue(l <= r), SectionAbs, nil
	case OpGt:
		return boolValue(l > r), SectionAbs, nil
	case OpGe:
		return boolValue(l >= r), SectionAbs, nil
	case OpLogAnd:
		return boolValue(l != 0 && r != 0), SectionAbs, nil
	case OpLogOr:
		return boolValue(l != 0 || r != 0), SectionAbs, nil
	}
	return 0, SectionAbs, fmt.Errorf("bad binary operator '%s'", e.Op)
}

func (e *BinaryExpr) String() string {
	return "(" + e.Left.String() + e.Op.String() + e.Right.String() + ")"
}

// OutermostOp returns the operator applied last when e is evaluated
func OutermostOp(e Expr) (Op, bool) {
	if b, ok := e.(*BinaryExpr); ok {
		return b.Op, true
	}
	return 0, false
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
