package symbolic

import (
	"math"
)

// inst is one step of a compiled program. Operands index the register file;
// Val carries the literal for constant loads.
type inst struct {
	Kind uint8
	A    int32
	B    int32
	C    int32
	D    int32
	Val  float64
}

// Program is a compiled evaluator: an instruction tape over a flat register
// file whose first len(Syms) registers are the packed input vector. Programs
// are deterministic; evaluating twice with the same inputs yields bitwise
// identical outputs. A Program reuses an internal scratch buffer and must
// not be evaluated concurrently.
type Program struct {
	Syms  []Symbol
	Rows  int
	Cols  int
	Insts []inst
	NRegs int
	Outs  []int32

	regs []float64
}

// OutputLen returns Rows·Cols.
func (p *Program) OutputLen() int { return p.Rows * p.Cols }

type instKey struct {
	kind       uint8
	a, b, c, d int32
	val        float64
}

type compiler struct {
	symIndex map[Symbol]int32
	memo     map[*Expr]int32
	numbered map[instKey]int32
	insts    []inst
	nregs    int32
}

func (cc *compiler) emit(kind uint8, a, b, c, d int32, val float64) int32 {
	key := instKey{kind: kind, a: a, b: b, c: c, d: d, val: val}
	if reg, ok := cc.numbered[key]; ok {
		return reg
	}
	reg := cc.nregs
	cc.nregs++
	cc.insts = append(cc.insts, inst{Kind: kind, A: a, B: b, C: c, D: d, Val: val})
	cc.numbered[key] = reg
	return reg
}

func (cc *compiler) compile(e *Expr) (int32, error) {
	if reg, ok := cc.memo[e]; ok {
		return reg, nil
	}
	var reg int32
	switch e.kind {
	case opConst:
		reg = cc.emit(uint8(opConst), 0, 0, 0, 0, e.val)
	case opSym:
		idx, ok := cc.symIndex[e.sym]
		if !ok {
			return 0, newCompileErrorf("expression references symbol %d, absent from the input list", e.sym)
		}
		reg = idx
	default:
		args := make([]int32, len(e.args))
		for i, a := range e.args {
			r, err := cc.compile(a)
			if err != nil {
				return 0, err
			}
			args[i] = r
		}
		var a, b, c, d int32
		switch len(args) {
		case 1:
			a = args[0]
		case 2:
			a, b = args[0], args[1]
		case 4:
			a, b, c, d = args[0], args[1], args[2], args[3]
		}
		reg = cc.emit(uint8(e.kind), a, b, c, d, 0)
	}
	cc.memo[e] = reg
	return reg, nil
}

// Compile turns an expression matrix into a Program taking the symbols of
// syms, in order, as its packed input vector. Common subexpressions are
// evaluated once. Referencing a symbol not present in syms is a
// CompileError.
func Compile(m Mat, syms []Symbol) (*Program, error) {
	if len(m.Elements()) == 0 {
		return nil, newCompileErrorf("cannot compile an empty matrix")
	}
	cc := &compiler{
		symIndex: make(map[Symbol]int32, len(syms)),
		memo:     make(map[*Expr]int32),
		numbered: make(map[instKey]int32),
		nregs:    int32(len(syms)),
	}
	for i, s := range syms {
		if _, ok := cc.symIndex[s]; ok {
			return nil, newCompileErrorf("symbol %d listed twice in the input list", s)
		}
		cc.symIndex[s] = int32(i)
	}
	outs := make([]int32, len(m.Elements()))
	for i, e := range m.Elements() {
		reg, err := cc.compile(e)
		if err != nil {
			return nil, err
		}
		outs[i] = reg
	}
	rows, cols := m.Dims()
	symsCopy := make([]Symbol, len(syms))
	copy(symsCopy, syms)
	return &Program{
		Syms:  symsCopy,
		Rows:  rows,
		Cols:  cols,
		Insts: cc.insts,
		NRegs: int(cc.nregs),
		Outs:  outs,
		regs:  make([]float64, cc.nregs),
	}, nil
}

// Eval runs the program. in must have len(Syms) entries in symbol order;
// out must have Rows·Cols entries and is filled row major. Numeric issues
// (NaN, Inf) are passed through untouched; callers decide what to do.
func (p *Program) Eval(in, out []float64) error {
	if len(in) != len(p.Syms) {
		return newCompileErrorf("evaluator got %d inputs, wants %d", len(in), len(p.Syms))
	}
	if len(out) != p.OutputLen() {
		return newCompileErrorf("evaluator got an output buffer of %d, wants %d", len(out), p.OutputLen())
	}
	if p.regs == nil {
		p.regs = make([]float64, p.NRegs)
	}
	regs := p.regs
	copy(regs, in)
	base := int32(len(p.Syms))
	for i := range p.Insts {
		ins := &p.Insts[i]
		var v float64
		switch opKind(ins.Kind) {
		case opConst:
			v = ins.Val
		case opAdd:
			v = regs[ins.A] + regs[ins.B]
		case opSub:
			v = regs[ins.A] - regs[ins.B]
		case opMul:
			v = regs[ins.A] * regs[ins.B]
		case opDiv:
			v = regs[ins.A] / regs[ins.B]
		case opNeg:
			v = -regs[ins.A]
		case opSqrt:
			v = math.Sqrt(regs[ins.A])
		case opSin:
			v = math.Sin(regs[ins.A])
		case opCos:
			v = math.Cos(regs[ins.A])
		case opTan:
			v = math.Tan(regs[ins.A])
		case opAsin:
			v = math.Asin(regs[ins.A])
		case opAcos:
			v = math.Acos(regs[ins.A])
		case opAtan:
			v = math.Atan(regs[ins.A])
		case opAtan2:
			v = math.Atan2(regs[ins.A], regs[ins.B])
		case opTanh:
			v = math.Tanh(regs[ins.A])
		case opFloor:
			v = math.Floor(regs[ins.A])
		case opAbs:
			v = math.Abs(regs[ins.A])
		case opMin:
			v = math.Min(regs[ins.A], regs[ins.B])
		case opMax:
			v = math.Max(regs[ins.A], regs[ins.B])
		case opSign:
			x := regs[ins.A]
			if x > 0 {
				v = 1
			} else if x < 0 {
				v = -1
			}
		case opIfLE:
			if regs[ins.A] <= regs[ins.B] {
				v = regs[ins.C]
			} else {
				v = regs[ins.D]
			}
		default:
			return newCompileErrorf("corrupt program: unknown opcode %d", ins.Kind)
		}
		regs[base+int32(i)] = v
	}
	for i, reg := range p.Outs {
		out[i] = regs[reg]
	}
	return nil
}

// StructuralHash returns a stable hash of the expression matrix and input
// list, usable as a disk cache key.
func StructuralHash(m Mat, syms []Symbol) uint64 {
	h := uint64(fnvOffset)
	mix := func(x uint64) {
		for i := 0; i < 8; i++ {
			h ^= x & 0xff
			h *= fnvPrime
			x >>= 8
		}
	}
	rows, cols := m.Dims()
	mix(uint64(rows))
	mix(uint64(cols))
	for _, e := range m.Elements() {
		mix(e.hash)
	}
	for _, s := range syms {
		mix(uint64(uint32(s)))
	}
	return h
}
