package montecarlo

import (
	"fmt"

	"gonum.org/v1/gonum/mathext/prng"
	"gonum.org/v1/gonum/stat/distuv"
)

// SequenceType selects the driver generator.
type SequenceType string

const (
	MersenneTwister           SequenceType = "MersenneTwister"
	MersenneTwisterAntithetic SequenceType = "MersenneTwisterAntithetic"
	Sobol                     SequenceType = "Sobol"
	SobolBrownianBridge       SequenceType = "SobolBrownianBridge"
)

// Ordering assigns Sobol dimensions to (factor, bridge step) pairs.
type Ordering string

const (
	OrderingFactors  Ordering = "Factors"
	OrderingSteps    Ordering = "Steps"
	OrderingDiagonal Ordering = "Diagonal"
)

// DirectionIntegers selects the Sobol initial direction numbers.
type DirectionIntegers string

const (
	DirectionUnit   DirectionIntegers = "Unit"
	DirectionRandom DirectionIntegers = "Random"
)

// ParseSequenceType validates a sequence type name.
func ParseSequenceType(s string) (SequenceType, error) {
	switch t := SequenceType(s); t {
	case MersenneTwister, MersenneTwisterAntithetic, Sobol, SobolBrownianBridge:
		return t, nil
	}
	return "", fmt.Errorf("unknown sequence type %q", s)
}

// draws fills dst[step][factor] with independent standard normals for one path.
type draws interface {
	next(dst [][]float64)
}

func newDraws(seq SequenceType, seed uint64, ord Ordering, di DirectionIntegers, times []float64, factors int, block int, start uint64) (draws, error) {
	switch seq {
	case MersenneTwister, MersenneTwisterAntithetic:
		src := prng.NewMT19937()
		src.Seed(blockSeed(seed, block))
		d := &mtDraws{normal: distuv.Normal{Mu: 0, Sigma: 1, Src: src}}
		if seq == MersenneTwisterAntithetic {
			return &antitheticDraws{base: d}, nil
		}
		return d, nil
	case Sobol:
		s, err := newSobol(len(times)*factors, di, seed)
		if err != nil {
			return nil, err
		}
		s.skipTo(start)
		return &sobolDraws{gen: s, u: make([]float64, s.dim)}, nil
	case SobolBrownianBridge:
		s, err := newSobol(len(times)*factors, di, seed)
		if err != nil {
			return nil, err
		}
		s.skipTo(start)
		bb, err := newBrownianBridge(times)
		if err != nil {
			return nil, err
		}
		dims, err := bridgeOrdering(ord, factors, len(times))
		if err != nil {
			return nil, err
		}
		return &bridgeDraws{
			gen:   s,
			u:     make([]float64, s.dim),
			dims:  dims,
			z:     make([]float64, len(times)),
			inc:   make([]float64, len(times)),
			path:  make([]float64, len(times)),
			steps: len(times),
			bb:    bb,
		}, nil
	}
	return nil, fmt.Errorf("unknown sequence type %q", seq)
}

// blockSeed derives the generator seed of a path block.
func blockSeed(seed uint64, block int) uint64 {
	return seed + uint64(block)*0x9e3779b97f4a7c15
}

type mtDraws struct {
	normal distuv.Normal
}

func (d *mtDraws) next(dst [][]float64) {
	for _, row := range dst {
		for f := range row {
			row[f] = d.normal.Rand()
		}
	}
}

// antitheticDraws returns each base draw twice, the second time negated.
type antitheticDraws struct {
	base     *mtDraws
	mirror   bool
	previous [][]float64
}

func (d *antitheticDraws) next(dst [][]float64) {
	if d.mirror {
		for s, row := range dst {
			for f := range row {
				row[f] = -d.previous[s][f]
			}
		}
		d.mirror = false
		return
	}
	d.base.next(dst)
	if d.previous == nil {
		d.previous = make([][]float64, len(dst))
		for s := range dst {
			d.previous[s] = make([]float64, len(dst[s]))
		}
	}
	for s := range dst {
		copy(d.previous[s], dst[s])
	}
	d.mirror = true
}

// sobolDraws assigns Sobol dimensions step-major without a bridge.
type sobolDraws struct {
	gen *sobol
	u   []float64
}

func (d *sobolDraws) next(dst [][]float64) {
	d.gen.next(d.u)
	k := 0
	for _, row := range dst {
		for f := range row {
			row[f] = distuv.UnitNormal.Quantile(d.u[k])
			k++
		}
	}
}

type bridgeDraws struct {
	gen   *sobol
	u     []float64
	dims  [][]int // [factor][bridge step] -> sobol dimension
	z     []float64
	inc   []float64
	path  []float64
	steps int
	bb    *brownianBridge
}

func (d *bridgeDraws) next(dst [][]float64) {
	d.gen.next(d.u)
	for f, fd := range d.dims {
		for s := 0; s < d.steps; s++ {
			d.z[s] = distuv.UnitNormal.Quantile(d.u[fd[s]])
		}
		d.bb.transform(d.z, d.inc, d.path)
		for s := 0; s < d.steps; s++ {
			dst[s][f] = d.inc[s]
		}
	}
}

func bridgeOrdering(ord Ordering, factors, steps int) ([][]int, error) {
	dims := make([][]int, factors)
	for f := range dims {
		dims[f] = make([]int, steps)
	}
	switch ord {
	case OrderingFactors:
		for f := 0; f < factors; f++ {
			for s := 0; s < steps; s++ {
				dims[f][s] = f*steps + s
			}
		}
	case OrderingSteps, "":
		for s := 0; s < steps; s++ {
			for f := 0; f < factors; f++ {
				dims[f][s] = s*factors + f
			}
		}
	case OrderingDiagonal:
		k := 0
		for diag := 0; diag < factors+steps-1; diag++ {
			for s := 0; s <= diag; s++ {
				f := diag - s
				if s < steps && f < factors {
					dims[f][s] = k
					k++
				}
			}
		}
	default:
		return nil, fmt.Errorf("unknown ordering %q", ord)
	}
	return dims, nil
}
