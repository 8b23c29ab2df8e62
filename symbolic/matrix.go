package symbolic

// Mat is a dense matrix of expressions, row major.
type Mat struct {
	rows, cols int
	els        []*Expr
}

// NewMat returns a rows × cols matrix filled with zero constants.
func NewMat(rows, cols int) Mat {
	els := make([]*Expr, rows*cols)
	zero := Const(0)
	for i := range els {
		els[i] = zero
	}
	return Mat{rows: rows, cols: cols, els: els}
}

// Identity returns the n × n identity.
func Identity(n int) Mat {
	m := NewMat(n, n)
	one := Const(1)
	for i := 0; i < n; i++ {
		m.Set(i, i, one)
	}
	return m
}

// ColVec returns a column vector holding els.
func ColVec(els ...*Expr) Mat {
	m := Mat{rows: len(els), cols: 1, els: make([]*Expr, len(els))}
	copy(m.els, els)
	return m
}

// Dims returns the matrix dimensions.
func (m Mat) Dims() (int, int) { return m.rows, m.cols }

// At returns the element at row i, column j.
func (m Mat) At(i, j int) *Expr { return m.els[i*m.cols+j] }

// Set assigns the element at row i, column j.
func (m Mat) Set(i, j int, e *Expr) { m.els[i*m.cols+j] = e }

// Elements returns the backing row-major element slice.
func (m Mat) Elements() []*Expr { return m.els }

// T returns the transpose.
func (m Mat) T() Mat {
	t := NewMat(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			t.Set(j, i, m.At(i, j))
		}
	}
	return t
}

// MatMul returns the matrix product a·b.
func MatMul(a, b Mat) Mat {
	if a.cols != b.rows {
		panic("symbolic: dimension mismatch in matrix product")
	}
	out := NewMat(a.rows, b.cols)
	for i := 0; i < a.rows; i++ {
		for j := 0; j < b.cols; j++ {
			sum := Const(0)
			for k := 0; k < a.cols; k++ {
				sum = Add(sum, Mul(a.At(i, k), b.At(k, j)))
			}
			out.Set(i, j, sum)
		}
	}
	return out
}

// MatAdd returns the element-wise sum a+b.
func MatAdd(a, b Mat) Mat {
	if a.rows != b.rows || a.cols != b.cols {
		panic("symbolic: dimension mismatch in matrix sum")
	}
	out := NewMat(a.rows, a.cols)
	for i := range a.els {
		out.els[i] = Add(a.els[i], b.els[i])
	}
	return out
}

// MatSub returns the element-wise difference a-b.
func MatSub(a, b Mat) Mat {
	if a.rows != b.rows || a.cols != b.cols {
		panic("symbolic: dimension mismatch in matrix difference")
	}
	out := NewMat(a.rows, a.cols)
	for i := range a.els {
		out.els[i] = Sub(a.els[i], b.els[i])
	}
	return out
}

// MatScale multiplies every element by s.
func (m Mat) MatScale(s *Expr) Mat {
	out := NewMat(m.rows, m.cols)
	for i := range m.els {
		out.els[i] = Mul(m.els[i], s)
	}
	return out
}

// Col returns column j as a column vector.
func (m Mat) Col(j int) Mat {
	out := NewMat(m.rows, 1)
	for i := 0; i < m.rows; i++ {
		out.Set(i, 0, m.At(i, j))
	}
	return out
}

// Dot returns the inner product of two equal-length vectors (either shape).
func Dot(a, b Mat) *Expr {
	if len(a.els) != len(b.els) {
		panic("symbolic: dimension mismatch in dot product")
	}
	sum := Const(0)
	for i := range a.els {
		sum = Add(sum, Mul(a.els[i], b.els[i]))
	}
	return sum
}

// Norm returns the euclidean norm of a vector.
func Norm(v Mat) *Expr {
	sum := Const(0)
	for _, e := range v.els {
		sum = Add(sum, Square(e))
	}
	return Sqrt(sum)
}

// Scale returns v normalized and multiplied by a; zero vectors stay zero.
func Scale(v Mat, a *Expr) Mat {
	n := Norm(v)
	out := NewMat(v.rows, v.cols)
	for i := range v.els {
		out.els[i] = Mul(SafeDiv(v.els[i], n), a)
	}
	return out
}

// Cross returns the cross product of two 3- or 4-element vectors. For
// 4-element homogeneous vectors the last entry is ignored and zeroed.
func Cross(u, v Mat) Mat {
	if len(u.els) != len(v.els) || (len(u.els) != 3 && len(u.els) != 4) {
		panic("symbolic: cross product needs two vectors of length 3 or 4")
	}
	x := Sub(Mul(u.els[1], v.els[2]), Mul(u.els[2], v.els[1]))
	y := Sub(Mul(u.els[2], v.els[0]), Mul(u.els[0], v.els[2]))
	z := Sub(Mul(u.els[0], v.els[1]), Mul(u.els[1], v.els[0]))
	if len(u.els) == 4 {
		return ColVec(x, y, z, Const(0))
	}
	return ColVec(x, y, z)
}
