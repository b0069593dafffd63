// Package montecarlo generates batches of model paths on a time grid with
// pseudo-random or quasi-random drivers.
package montecarlo

import (
	"fmt"
	"math"

	"github.com/meenmo/amc/utils"
)

// NewTimeGrid returns 0 followed by the mandatory times, each interval split
// into equal sub-steps no longer than last/steps. steps <= 0 adds no points.
func NewTimeGrid(mandatory []float64, steps int) ([]float64, error) {
	ts := utils.NewTimeSet(mandatory...)
	if len(ts) > 0 && ts[0] < -utils.TinyTime {
		return nil, fmt.Errorf("NewTimeGrid: negative time %v", ts[0])
	}
	grid := []float64{0}
	if len(ts) == 0 {
		return grid, nil
	}
	if steps <= 0 {
		for _, t := range ts {
			if t > utils.TinyTime {
				grid = append(grid, t)
			}
		}
		return grid, nil
	}

	dtMax := ts.Last() / float64(steps)
	begin := 0.0
	for _, end := range ts {
		if end-begin <= utils.TinyTime {
			continue
		}
		n := max(int(math.Floor((end-begin)/dtMax+0.5)), 1)
		dt := (end - begin) / float64(n)
		for i := 1; i < n; i++ {
			grid = append(grid, begin+float64(i)*dt)
		}
		grid = append(grid, end)
		begin = end
	}
	return grid, nil
}
