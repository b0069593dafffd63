package montecarlo

import (
	"fmt"
	"math/bits"

	"gonum.org/v1/gonum/mathext/prng"
)

const sobolBits = 32

// sobol is a Sobol low discrepancy generator in Gray code order. Dimension 1
// is the van der Corput sequence; dimension d ≥ 2 uses the (d-1)th primitive
// polynomial over GF(2) in increasing degree and value.
type sobol struct {
	dim       int
	direction [][sobolBits]uint32
	x         []uint32
	index     uint64
}

func newSobol(dim int, di DirectionIntegers, seed uint64) (*sobol, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("sobol: dimension must be positive, got %d", dim)
	}
	var src *prng.MT19937
	switch di {
	case DirectionUnit:
	case DirectionRandom:
		src = prng.NewMT19937()
		src.Seed(seed)
	default:
		return nil, fmt.Errorf("sobol: unknown direction integers %q", di)
	}

	s := &sobol{dim: dim, direction: make([][sobolBits]uint32, dim), x: make([]uint32, dim)}
	for k := 0; k < sobolBits; k++ {
		s.direction[0][k] = 1 << (sobolBits - 1 - k)
	}
	polys := primitivePolynomials(dim - 1)
	for d := 1; d < dim; d++ {
		p := polys[d-1]
		deg := bits.Len64(p) - 1
		m := make([]uint64, sobolBits)
		for k := 0; k < deg && k < sobolBits; k++ {
			m[k] = 1
			if src != nil && k > 0 {
				// odd and below 2^(k+1)
				m[k] = (src.Uint64()%(1<<k))<<1 | 1
			}
		}
		for k := deg; k < sobolBits; k++ {
			v := m[k-deg] ^ (m[k-deg] << deg)
			for j := 1; j < deg; j++ {
				if p>>(deg-j)&1 == 1 {
					v ^= m[k-j] << j
				}
			}
			m[k] = v
		}
		for k := 0; k < sobolBits; k++ {
			s.direction[d][k] = uint32(m[k] << (sobolBits - 1 - k))
		}
	}
	return s, nil
}

// skipTo positions the generator so that the next point has index n+1.
func (s *sobol) skipTo(n uint64) {
	g := n ^ (n >> 1)
	for d := range s.x {
		var x uint32
		for k := 0; k < sobolBits; k++ {
			if g>>k&1 == 1 {
				x ^= s.direction[d][k]
			}
		}
		s.x[d] = x
	}
	s.index = n
}

// next writes the next point into u. Points after the origin are never 0.
func (s *sobol) next(u []float64) {
	s.index++
	c := bits.TrailingZeros64(s.index)
	const norm = 1.0 / (1 << sobolBits)
	for d := range s.x {
		s.x[d] ^= s.direction[d][c]
		u[d] = float64(s.x[d]) * norm
	}
}

// primitivePolynomials returns the first n primitive polynomials over GF(2),
// bit i holding the coefficient of x^i.
func primitivePolynomials(n int) []uint64 {
	out := make([]uint64, 0, n)
	for deg := 1; len(out) < n; deg++ {
		factors := primeFactors(1<<deg - 1)
		for p := uint64(1)<<deg | 1; p < 1<<(deg+1) && len(out) < n; p += 2 {
			if isPrimitive(p, deg, factors) {
				out = append(out, p)
			}
		}
	}
	return out
}

// isPrimitive checks that x has multiplicative order 2^deg - 1 modulo p.
func isPrimitive(p uint64, deg int, factors []uint64) bool {
	order := uint64(1)<<deg - 1
	if powMod(2, order, p, deg) != 1 {
		return false
	}
	for _, q := range factors {
		if powMod(2, order/q, p, deg) == 1 {
			return false
		}
	}
	return true
}

func mulMod(a, b, p uint64, deg int) uint64 {
	var r uint64
	for b != 0 {
		if b&1 == 1 {
			r ^= a
		}
		b >>= 1
		a <<= 1
		if a>>deg&1 == 1 {
			a ^= p
		}
	}
	return r
}

func powMod(base, e, p uint64, deg int) uint64 {
	r := uint64(1)
	if base>>deg&1 == 1 {
		base ^= p
	}
	for e != 0 {
		if e&1 == 1 {
			r = mulMod(r, base, p, deg)
		}
		base = mulMod(base, base, p, deg)
		e >>= 1
	}
	return r
}

func primeFactors(n uint64) []uint64 {
	var out []uint64
	for q := uint64(2); q*q <= n; q++ {
		if n%q == 0 {
			out = append(out, q)
			for n%q == 0 {
				n /= q
			}
		}
	}
	if n > 1 {
		out = append(out, n)
	}
	return out
}
