// Package scenario holds per-scenario vectors and boolean filters and the
// elementwise algebra the Monte Carlo engines are written in.
package scenario

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Vector holds one value per Monte Carlo scenario.
type Vector []float64

// Const returns a vector of n copies of v.
func Const(n int, v float64) Vector {
	out := make(Vector, n)
	if v != 0 {
		for i := range out {
			out[i] = v
		}
	}
	return out
}

// Zeros returns a zero vector of size n.
func Zeros(n int) Vector { return make(Vector, n) }

func (v Vector) Size() int { return len(v) }

func (v Vector) Clone() Vector { return append(Vector(nil), v...) }

// Mean is the Monte Carlo expectation.
func (v Vector) Mean() float64 {
	if len(v) == 0 {
		return 0
	}
	return stat.Mean(v, nil)
}

// StdErr is the standard error of Mean.
func (v Vector) StdErr() float64 {
	if len(v) < 2 {
		return 0
	}
	return stat.StdDev(v, nil) / math.Sqrt(float64(len(v)))
}

// IsZero reports whether every entry is zero up to tolerance.
func (v Vector) IsZero(tol float64) bool {
	for _, x := range v {
		if math.Abs(x) > tol {
			return false
		}
	}
	return true
}

func mustMatch(op string, a, b int) {
	if a != b {
		panic(fmt.Sprintf("scenario.%s: size mismatch %d vs %d", op, a, b))
	}
}

func Add(a, b Vector) Vector {
	mustMatch("Add", len(a), len(b))
	out := make(Vector, len(a))
	floats.AddTo(out, a, b)
	return out
}

func Sub(a, b Vector) Vector {
	mustMatch("Sub", len(a), len(b))
	out := make(Vector, len(a))
	floats.SubTo(out, a, b)
	return out
}

func Mul(a, b Vector) Vector {
	mustMatch("Mul", len(a), len(b))
	out := make(Vector, len(a))
	floats.MulTo(out, a, b)
	return out
}

func Div(a, b Vector) Vector {
	mustMatch("Div", len(a), len(b))
	out := make(Vector, len(a))
	floats.DivTo(out, a, b)
	return out
}

// Scale returns s·a.
func Scale(s float64, a Vector) Vector {
	out := make(Vector, len(a))
	floats.ScaleTo(out, s, a)
	return out
}

// AddScalar returns a + s.
func AddScalar(a Vector, s float64) Vector {
	out := a.Clone()
	floats.AddConst(s, out)
	return out
}

// Exp applies math.Exp elementwise.
func Exp(a Vector) Vector {
	out := make(Vector, len(a))
	for i, x := range a {
		out[i] = math.Exp(x)
	}
	return out
}

// Pow raises every entry to the power p.
func Pow(a Vector, p float64) Vector {
	out := make(Vector, len(a))
	for i, x := range a {
		out[i] = math.Pow(x, p)
	}
	return out
}

// AddInPlace accumulates b into a.
func (v Vector) AddInPlace(b Vector) {
	mustMatch("AddInPlace", len(v), len(b))
	floats.Add(v, b)
}
