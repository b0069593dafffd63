package regression

import "fmt"

// Family is a one-dimensional polynomial family. Multivariate bases are
// products of family members of total degree at most the order.
type Family string

const (
	Monomial     Family = "Monomial"
	Laguerre     Family = "Laguerre"
	Hermite      Family = "Hermite"
	Legendre     Family = "Legendre"
	Chebyshev    Family = "Chebyshev"
	Chebyshev2nd Family = "Chebyshev2nd"
)

// ParseFamily validates a family name.
func ParseFamily(s string) (Family, error) {
	switch f := Family(s); f {
	case Monomial, Laguerre, Hermite, Legendre, Chebyshev, Chebyshev2nd:
		return f, nil
	}
	return "", fmt.Errorf("unknown polynomial family %q", s)
}

// values writes p_0(x)..p_order(x) into out.
func (f Family) values(order int, x float64, out []float64) {
	out[0] = 1
	if order == 0 {
		return
	}
	switch f {
	case Monomial:
		for n := 1; n <= order; n++ {
			out[n] = out[n-1] * x
		}
	case Laguerre:
		out[1] = 1 - x
		for n := 1; n < order; n++ {
			out[n+1] = ((float64(2*n+1)-x)*out[n] - float64(n)*out[n-1]) / float64(n+1)
		}
	case Hermite:
		out[1] = 2 * x
		for n := 1; n < order; n++ {
			out[n+1] = 2*x*out[n] - float64(2*n)*out[n-1]
		}
	case Legendre:
		out[1] = x
		for n := 1; n < order; n++ {
			out[n+1] = (float64(2*n+1)*x*out[n] - float64(n)*out[n-1]) / float64(n+1)
		}
	case Chebyshev:
		out[1] = x
		for n := 1; n < order; n++ {
			out[n+1] = 2*x*out[n] - out[n-1]
		}
	case Chebyshev2nd:
		out[1] = 2 * x
		for n := 1; n < order; n++ {
			out[n+1] = 2*x*out[n] - out[n-1]
		}
	}
}

// basis is a multivariate polynomial basis; terms[j][v] is the degree of
// variable v in basis function j.
type basis struct {
	family Family
	order  int
	dim    int
	terms  [][]int
}

// newBasis enumerates multi-indices of total degree ≤ order whose support lies
// within a single variable group. The constant comes first, then terms by
// increasing degree.
func newBasis(family Family, order, dim int, groups [][]int) (*basis, error) {
	if _, err := ParseFamily(string(family)); err != nil {
		return nil, err
	}
	if order < 0 {
		return nil, fmt.Errorf("polynomial order must be non-negative, got %d", order)
	}
	b := &basis{family: family, order: order, dim: dim}
	b.terms = append(b.terms, make([]int, dim))
	for _, g := range groups {
		for deg := 1; deg <= order; deg++ {
			for _, alpha := range compositions(deg, len(g)) {
				term := make([]int, dim)
				for k, v := range g {
					term[v] = alpha[k]
				}
				b.terms = append(b.terms, term)
			}
		}
	}
	return b, nil
}

// compositions lists all non-negative integer vectors of length n summing to deg.
func compositions(deg, n int) [][]int {
	if n == 0 {
		return nil
	}
	if n == 1 {
		return [][]int{{deg}}
	}
	var out [][]int
	for first := deg; first >= 0; first-- {
		for _, rest := range compositions(deg-first, n-1) {
			out = append(out, append([]int{first}, rest...))
		}
	}
	return out
}

func (b *basis) size() int { return len(b.terms) }

// evaluator caches the univariate values of one point.
type evaluator struct {
	b     *basis
	table [][]float64
}

func (b *basis) evaluator() *evaluator {
	e := &evaluator{b: b, table: make([][]float64, b.dim)}
	for v := range e.table {
		e.table[v] = make([]float64, b.order+1)
	}
	return e
}

// row writes all basis function values at x into out.
func (e *evaluator) row(x []float64, out []float64) {
	for v, xv := range x {
		e.b.family.values(e.b.order, xv, e.table[v])
	}
	for j, term := range e.b.terms {
		p := 1.0
		for v, d := range term {
			if d != 0 {
				p *= e.table[v][d]
			}
		}
		out[j] = p
	}
}
