// Package symbolic builds expression graphs over late-bound scalar symbols
// and compiles them into fast numeric evaluators.
package symbolic

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Symbol identifies a scalar input of an expression. Symbols are issued by
// whatever registry owns the mapping from symbols to live values; this
// package only cares about their identity.
type Symbol int32

type opKind uint8

const (
	opConst opKind = iota
	opSym
	opAdd
	opSub
	opMul
	opDiv
	opNeg
	opSqrt
	opSin
	opCos
	opTan
	opAsin
	opAcos
	opAtan
	opAtan2
	opTanh
	opFloor
	opAbs
	opMin
	opMax
	opSign
	opIfLE // select(a <= b, then, else); not differentiable
)

var opNames = map[opKind]string{
	opConst: "const", opSym: "sym", opAdd: "add", opSub: "sub", opMul: "mul",
	opDiv: "div", opNeg: "neg", opSqrt: "sqrt", opSin: "sin", opCos: "cos",
	opTan: "tan", opAsin: "asin", opAcos: "acos", opAtan: "atan", opAtan2: "atan2",
	opTanh: "tanh", opFloor: "floor", opAbs: "abs", opMin: "min", opMax: "max",
	opSign: "sign", opIfLE: "ifle",
}

// Expr is one node of an immutable expression DAG. Nodes carry a structural
// hash so that compilation can share common subexpressions.
type Expr struct {
	kind opKind
	val  float64
	sym  Symbol
	args []*Expr
	hash uint64
}

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

func hashNode(kind opKind, val float64, sym Symbol, args []*Expr) uint64 {
	h := uint64(fnvOffset)
	mix := func(x uint64) {
		for i := 0; i < 8; i++ {
			h ^= x & 0xff
			h *= fnvPrime
			x >>= 8
		}
	}
	mix(uint64(kind))
	mix(math.Float64bits(val))
	mix(uint64(uint32(sym)))
	for _, a := range args {
		mix(a.hash)
	}
	return h
}

func newExpr(kind opKind, val float64, sym Symbol, args ...*Expr) *Expr {
	return &Expr{kind: kind, val: val, sym: sym, args: args, hash: hashNode(kind, val, sym, args)}
}

// Const returns a constant expression.
func Const(v float64) *Expr { return newExpr(opConst, v, 0) }

// Sym returns the expression referencing s.
func Sym(s Symbol) *Expr { return newExpr(opSym, 0, s) }

// IsConst reports whether e is a plain constant, returning its value if so.
func (e *Expr) IsConst() (float64, bool) {
	if e.kind == opConst {
		return e.val, true
	}
	return 0, false
}

// FreeSymbols appends every distinct symbol referenced by e to the set.
func (e *Expr) FreeSymbols(set map[Symbol]struct{}) {
	if e.kind == opSym {
		set[e.sym] = struct{}{}
		return
	}
	for _, a := range e.args {
		a.FreeSymbols(set)
	}
}

func (e *Expr) String() string {
	switch e.kind {
	case opConst:
		return fmt.Sprintf("%g", e.val)
	case opSym:
		return fmt.Sprintf("s%d", e.sym)
	default:
		s := opNames[e.kind] + "("
		for i, a := range e.args {
			if i > 0 {
				s += ", "
			}
			s += a.String()
		}
		return s + ")"
	}
}

func binary(kind opKind, x, y *Expr) *Expr {
	xv, xc := x.IsConst()
	yv, yc := y.IsConst()
	if xc && yc {
		return Const(evalOp2(kind, xv, yv))
	}
	switch kind {
	case opAdd:
		if xc && xv == 0 {
			return y
		}
		if yc && yv == 0 {
			return x
		}
	case opSub:
		if yc && yv == 0 {
			return x
		}
		if xc && xv == 0 {
			return Neg(y)
		}
	case opMul:
		if xc && xv == 1 {
			return y
		}
		if yc && yv == 1 {
			return x
		}
		if (xc && xv == 0) || (yc && yv == 0) {
			return Const(0)
		}
	case opDiv:
		if yc && yv == 1 {
			return x
		}
	}
	return newExpr(kind, 0, 0, x, y)
}

func unary(kind opKind, x *Expr) *Expr {
	if v, ok := x.IsConst(); ok {
		return Const(evalOp1(kind, v))
	}
	if kind == opNeg && x.kind == opNeg {
		return x.args[0]
	}
	return newExpr(kind, 0, 0, x)
}

func evalOp1(kind opKind, x float64) float64 {
	switch kind {
	case opNeg:
		return -x
	case opSqrt:
		return math.Sqrt(x)
	case opSin:
		return math.Sin(x)
	case opCos:
		return math.Cos(x)
	case opTan:
		return math.Tan(x)
	case opAsin:
		return math.Asin(x)
	case opAcos:
		return math.Acos(x)
	case opAtan:
		return math.Atan(x)
	case opTanh:
		return math.Tanh(x)
	case opFloor:
		return math.Floor(x)
	case opAbs:
		return math.Abs(x)
	case opSign:
		if x > 0 {
			return 1
		} else if x < 0 {
			return -1
		}
		return 0
	}
	panic("not a unary op")
}

func evalOp2(kind opKind, x, y float64) float64 {
	switch kind {
	case opAdd:
		return x + y
	case opSub:
		return x - y
	case opMul:
		return x * y
	case opDiv:
		return x / y
	case opAtan2:
		return math.Atan2(x, y)
	case opMin:
		return math.Min(x, y)
	case opMax:
		return math.Max(x, y)
	}
	panic("not a binary op")
}

// Add returns x+y.
func Add(x, y *Expr) *Expr { return binary(opAdd, x, y) }

// Sub returns x-y.
func Sub(x, y *Expr) *Expr { return binary(opSub, x, y) }

// Mul returns x*y.
func Mul(x, y *Expr) *Expr { return binary(opMul, x, y) }

// Div returns x/y.
func Div(x, y *Expr) *Expr { return binary(opDiv, x, y) }

// Neg returns -x.
func Neg(x *Expr) *Expr { return unary(opNeg, x) }

// Sqrt returns √x.
func Sqrt(x *Expr) *Expr { return unary(opSqrt, x) }

// Sin returns sin(x).
func Sin(x *Expr) *Expr { return unary(opSin, x) }

// Cos returns cos(x).
func Cos(x *Expr) *Expr { return unary(opCos, x) }

// Tan returns tan(x).
func Tan(x *Expr) *Expr { return unary(opTan, x) }

// Asin returns asin(x).
func Asin(x *Expr) *Expr { return unary(opAsin, x) }

// Acos returns acos(x).
func Acos(x *Expr) *Expr { return unary(opAcos, x) }

// Atan returns atan(x).
func Atan(x *Expr) *Expr { return unary(opAtan, x) }

// Atan2 returns atan2(y, x).
func Atan2(y, x *Expr) *Expr { return binary(opAtan2, y, x) }

// Tanh returns tanh(x).
func Tanh(x *Expr) *Expr { return unary(opTanh, x) }

// Floor returns ⌊x⌋. Not differentiable.
func Floor(x *Expr) *Expr { return unary(opFloor, x) }

// Abs returns |x|. Not differentiable; use AbsD inside expressions that
// feed the Jacobian.
func Abs(x *Expr) *Expr { return unary(opAbs, x) }

// Min returns min(x,y). Not differentiable.
func Min(x, y *Expr) *Expr { return binary(opMin, x, y) }

// Max returns max(x,y). Not differentiable.
func Max(x, y *Expr) *Expr { return binary(opMax, x, y) }

// Sign returns sign(x) ∈ {-1,0,1}. Not differentiable.
func Sign(x *Expr) *Expr { return unary(opSign, x) }

// IfLE returns then if a <= b, els otherwise. Not differentiable.
func IfLE(a, b, then, els *Expr) *Expr {
	av, ac := a.IsConst()
	bv, bc := b.IsConst()
	if ac && bc {
		if av <= bv {
			return then
		}
		return els
	}
	return newExpr(opIfLE, 0, 0, a, b, then, els)
}

// IfGT returns then if a > b, els otherwise. Not differentiable.
func IfGT(a, b, then, els *Expr) *Expr { return IfLE(a, b, els, then) }

// Square returns x².
func Square(x *Expr) *Expr { return Mul(x, x) }

// AbsD is the smooth |x| surrogate √(x²).
func AbsD(x *Expr) *Expr { return Sqrt(Square(x)) }

// SignD is a smooth sign surrogate. Imprecise very close to zero.
func SignD(x *Expr) *Expr { return Tanh(Mul(x, Const(1e5))) }

// MaxD is the smooth max surrogate ((x+y)+|x-y|)/2.
func MaxD(x, y *Expr) *Expr {
	return Div(Add(Add(x, y), AbsD(Sub(x, y))), Const(2))
}

// MinD is the smooth min surrogate ((x+y)-|x-y|)/2.
func MinD(x, y *Expr) *Expr {
	return Div(Sub(Add(x, y), AbsD(Sub(x, y))), Const(2))
}

// IfGreaterZeroD is a smooth select: ifResult when condition > 0, elseResult
// otherwise. Imprecise when condition is very close to but not exactly zero.
func IfGreaterZeroD(condition, ifResult, elseResult *Expr) *Expr {
	c := SignD(condition) // 1 or -1
	ifPart := Mul(MaxD(Const(0), c), ifResult)
	elsePart := Mul(Neg(MinD(Const(0), c)), elseResult)
	zeroPart := Mul(Sub(Const(1), AbsD(c)), elseResult)
	return Add(Add(ifPart, elsePart), zeroPart)
}

// IfGreaterEqZeroD is a smooth select: ifResult when condition >= 0.
func IfGreaterEqZeroD(condition, ifResult, elseResult *Expr) *Expr {
	return IfGreaterZeroD(Neg(condition), elseResult, ifResult)
}

// IfEqZeroD is a smooth select: ifResult when condition == 0.
func IfEqZeroD(condition, ifResult, elseResult *Expr) *Expr {
	c := AbsD(SignD(condition))
	return Add(Mul(Sub(Const(1), c), ifResult), Mul(c, elseResult))
}

// SafeDiv divides nominator by denominator, yielding zero where the
// denominator is zero instead of ±Inf.
func SafeDiv(nominator, denominator *Expr) *Expr {
	safe := IfEqZeroD(denominator, Const(1), denominator)
	return Mul(nominator, IfEqZeroD(denominator, Const(0), Div(Const(1), safe)))
}

// Diff returns ∂e/∂s. Non-smooth operations (abs, min, max, sign, floor,
// piecewise selects) cannot be differentiated; they are only legal in
// bound and weight expressions, which are evaluated but never derived.
func Diff(e *Expr, s Symbol) (*Expr, error) {
	switch e.kind {
	case opConst:
		return Const(0), nil
	case opSym:
		if e.sym == s {
			return Const(1), nil
		}
		return Const(0), nil
	case opAdd, opSub:
		dx, err := Diff(e.args[0], s)
		if err != nil {
			return nil, err
		}
		dy, err := Diff(e.args[1], s)
		if err != nil {
			return nil, err
		}
		return binary(e.kind, dx, dy), nil
	case opMul:
		x, y := e.args[0], e.args[1]
		dx, err := Diff(x, s)
		if err != nil {
			return nil, err
		}
		dy, err := Diff(y, s)
		if err != nil {
			return nil, err
		}
		return Add(Mul(dx, y), Mul(x, dy)), nil
	case opDiv:
		x, y := e.args[0], e.args[1]
		dx, err := Diff(x, s)
		if err != nil {
			return nil, err
		}
		dy, err := Diff(y, s)
		if err != nil {
			return nil, err
		}
		return Div(Sub(Mul(dx, y), Mul(x, dy)), Square(y)), nil
	case opNeg:
		dx, err := Diff(e.args[0], s)
		if err != nil {
			return nil, err
		}
		return Neg(dx), nil
	case opSqrt:
		dx, err := Diff(e.args[0], s)
		if err != nil {
			return nil, err
		}
		return Div(dx, Mul(Const(2), e)), nil
	case opSin:
		dx, err := Diff(e.args[0], s)
		if err != nil {
			return nil, err
		}
		return Mul(Cos(e.args[0]), dx), nil
	case opCos:
		dx, err := Diff(e.args[0], s)
		if err != nil {
			return nil, err
		}
		return Neg(Mul(Sin(e.args[0]), dx)), nil
	case opTan:
		dx, err := Diff(e.args[0], s)
		if err != nil {
			return nil, err
		}
		return Mul(Add(Const(1), Square(Tan(e.args[0]))), dx), nil
	case opAsin:
		dx, err := Diff(e.args[0], s)
		if err != nil {
			return nil, err
		}
		return Div(dx, Sqrt(Sub(Const(1), Square(e.args[0])))), nil
	case opAcos:
		dx, err := Diff(e.args[0], s)
		if err != nil {
			return nil, err
		}
		return Neg(Div(dx, Sqrt(Sub(Const(1), Square(e.args[0]))))), nil
	case opAtan:
		dx, err := Diff(e.args[0], s)
		if err != nil {
			return nil, err
		}
		return Div(dx, Add(Const(1), Square(e.args[0]))), nil
	case opAtan2:
		y, x := e.args[0], e.args[1]
		dy, err := Diff(y, s)
		if err != nil {
			return nil, err
		}
		dx, err := Diff(x, s)
		if err != nil {
			return nil, err
		}
		denom := Add(Square(x), Square(y))
		return Div(Sub(Mul(x, dy), Mul(y, dx)), denom), nil
	case opTanh:
		dx, err := Diff(e.args[0], s)
		if err != nil {
			return nil, err
		}
		return Mul(Sub(Const(1), Square(Tanh(e.args[0]))), dx), nil
	}
	return nil, errors.Wrapf(ErrNotDifferentiable, "operation %q", opNames[e.kind])
}

// Jacobian returns the len(exprs) × len(syms) matrix of partial derivatives.
func Jacobian(exprs []*Expr, syms []Symbol) (Mat, error) {
	jac := NewMat(len(exprs), len(syms))
	for i, e := range exprs {
		for j, s := range syms {
			d, err := Diff(e, s)
			if err != nil {
				return Mat{}, err
			}
			jac.Set(i, j, d)
		}
	}
	return jac, nil
}
