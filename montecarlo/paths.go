package montecarlo

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/meenmo/amc/scenario"
	"github.com/meenmo/amc/utils"
)

// Process is a model that can be simulated path by path.
type Process interface {
	Dimension() int
	InitialState() []float64
	// Correlate maps independent normals dw onto the model drivers dz.
	Correlate(dz, dw []float64)
	// Evolve advances state from t0 to t1 in place.
	Evolve(t0, t1 float64, state, dz []float64)
}

// Config holds the generator settings of one path batch.
type Config struct {
	Sequence          SequenceType
	Seed              uint64
	Samples           int
	Ordering          Ordering
	DirectionIntegers DirectionIntegers
	// BlockSize is the number of scenarios per shard; 0 means one shard.
	// Pseudo-random results depend on it, Sobol results do not.
	BlockSize int
	// Workers bounds the concurrent shards; 0 means GOMAXPROCS.
	Workers int
}

// PathBatch holds the simulated states, Values[time][factor][scenario].
type PathBatch struct {
	Times   utils.TimeSet
	Samples int
	Values  [][]scenario.Vector
}

// State returns the vector of factor f at time index i.
func (p *PathBatch) State(i, f int) scenario.Vector { return p.Values[i][f] }

// Generate simulates m on the given times. A first time of 0 is the initial
// state and takes no simulation step.
func Generate(ctx context.Context, m Process, times []float64, cfg Config) (*PathBatch, error) {
	if cfg.Samples <= 0 {
		return nil, fmt.Errorf("Generate: samples must be positive, got %d", cfg.Samples)
	}
	ts := utils.NewTimeSet(times...)
	if len(ts) > 0 && ts[0] < -utils.TinyTime {
		return nil, fmt.Errorf("Generate: negative time %v", ts[0])
	}
	dim := m.Dimension()
	batch := &PathBatch{Times: ts, Samples: cfg.Samples, Values: make([][]scenario.Vector, len(ts))}
	for i := range batch.Values {
		batch.Values[i] = make([]scenario.Vector, dim)
		for f := range batch.Values[i] {
			batch.Values[i][f] = make(scenario.Vector, cfg.Samples)
		}
	}

	offset := 0
	if len(ts) > 0 && ts[0] <= utils.TinyTime {
		offset = 1
		for f, x0 := range m.InitialState() {
			batch.Values[0][f] = scenario.Const(cfg.Samples, x0)
		}
	}
	steps := ts[offset:]
	if len(steps) == 0 {
		return batch, nil
	}

	blockSize := cfg.BlockSize
	if blockSize <= 0 || blockSize > cfg.Samples {
		blockSize = cfg.Samples
	}
	blocks := (cfg.Samples + blockSize - 1) / blockSize
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < blocks; b++ {
		b := b
		begin := b * blockSize
		end := min(begin+blockSize, cfg.Samples)
		g.Go(func() error {
			d, err := newDraws(cfg.Sequence, cfg.Seed, cfg.Ordering, cfg.DirectionIntegers, steps, dim, b, uint64(begin))
			if err != nil {
				return fmt.Errorf("Generate: %w", err)
			}
			return simulateBlock(gctx, m, batch, steps, offset, d, begin, end)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batch, nil
}

func simulateBlock(ctx context.Context, m Process, batch *PathBatch, steps []float64, offset int, d draws, begin, end int) error {
	dim := m.Dimension()
	dw := make([][]float64, len(steps))
	for s := range dw {
		dw[s] = make([]float64, dim)
	}
	dz := make([]float64, dim)
	x0 := m.InitialState()
	state := make([]float64, dim)

	for k := begin; k < end; k++ {
		if (k-begin)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		d.next(dw)
		copy(state, x0)
		t0 := 0.0
		for s, t1 := range steps {
			m.Correlate(dz, dw[s])
			m.Evolve(t0, t1, state, dz)
			row := batch.Values[offset+s]
			for f, x := range state {
				row[f][k] = x
			}
			t0 = t1
		}
	}
	return nil
}
