package montecarlo

import (
	"fmt"
	"math"
)

// brownianBridge maps standard normals onto normalised Brownian increments
// on a fixed grid, consuming the first variate for the terminal point and
// the following ones for successive midpoints.
type brownianBridge struct {
	size        int
	sqrtDt      []float64
	bridgeIndex []int
	leftIndex   []int
	rightIndex  []int
	leftWeight  []float64
	rightWeight []float64
	stdDev      []float64
}

func newBrownianBridge(times []float64) (*brownianBridge, error) {
	n := len(times)
	if n == 0 {
		return nil, fmt.Errorf("brownian bridge: empty grid")
	}
	b := &brownianBridge{
		size:        n,
		sqrtDt:      make([]float64, n),
		bridgeIndex: make([]int, n),
		leftIndex:   make([]int, n),
		rightIndex:  make([]int, n),
		leftWeight:  make([]float64, n),
		rightWeight: make([]float64, n),
		stdDev:      make([]float64, n),
	}
	prev := 0.0
	for i, t := range times {
		if t <= prev {
			return nil, fmt.Errorf("brownian bridge: times must be positive and increasing")
		}
		b.sqrtDt[i] = math.Sqrt(t - prev)
		prev = t
	}

	filled := make([]int, n)
	filled[n-1] = 1
	b.bridgeIndex[0] = n - 1
	b.stdDev[0] = math.Sqrt(times[n-1])
	j := 0
	for i := 1; i < n; i++ {
		for filled[j] != 0 {
			j++
		}
		k := j
		for filled[k] == 0 {
			k++
		}
		l := j + (k-1-j)/2
		filled[l] = i
		b.bridgeIndex[i] = l
		b.leftIndex[i] = j
		b.rightIndex[i] = k
		if j != 0 {
			span := times[k] - times[j-1]
			b.leftWeight[i] = (times[k] - times[l]) / span
			b.rightWeight[i] = (times[l] - times[j-1]) / span
			b.stdDev[i] = math.Sqrt((times[l] - times[j-1]) * (times[k] - times[l]) / span)
		} else {
			b.leftWeight[i] = (times[k] - times[l]) / times[k]
			b.rightWeight[i] = times[l] / times[k]
			b.stdDev[i] = math.Sqrt(times[l] * (times[k] - times[l]) / times[k])
		}
		j = k + 1
		if j >= n {
			j = 0
		}
	}
	return b, nil
}

// transform fills out with increments (W(t_i) - W(t_{i-1})) / sqrt(dt_i).
// path is scratch of the bridge size.
func (b *brownianBridge) transform(z, out, path []float64) {
	n := b.size
	path[n-1] = b.stdDev[0] * z[0]
	for i := 1; i < n; i++ {
		j, k, l := b.leftIndex[i], b.rightIndex[i], b.bridgeIndex[i]
		if j != 0 {
			path[l] = b.leftWeight[i]*path[j-1] + b.rightWeight[i]*path[k] + b.stdDev[i]*z[i]
		} else {
			path[l] = b.rightWeight[i]*path[k] + b.stdDev[i]*z[i]
		}
	}
	for i := n - 1; i > 0; i-- {
		out[i] = (path[i] - path[i-1]) / b.sqrtDt[i]
	}
	out[0] = path[0] / b.sqrtDt[0]
}
