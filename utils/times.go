package utils

import (
	"math"
	"sort"
)

// TinyTime is the tolerance under which two model times denote the same instant.
const TinyTime = 1e-10

// CloseEnough compares two floats with a relative tolerance of a few ulps,
// falling back to an absolute check around zero.
func CloseEnough(x, y float64) bool {
	if x == y {
		return true
	}
	diff := math.Abs(x - y)
	const tol = 42 * 2.220446049250313e-16
	if x == 0 || y == 0 {
		return diff < tol*tol
	}
	return diff <= tol*math.Abs(x) || diff <= tol*math.Abs(y)
}

// TimeSet is an ascending list of distinct times.
type TimeSet []float64

// NewTimeSet sorts and deduplicates times; entries closer than TinyTime collapse.
func NewTimeSet(times ...float64) TimeSet {
	s := append([]float64(nil), times...)
	sort.Float64s(s)
	out := make(TimeSet, 0, len(s))
	for _, t := range s {
		if n := len(out); n > 0 && math.Abs(t-out[n-1]) <= TinyTime {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Union merges sets into a new TimeSet.
func Union(sets ...TimeSet) TimeSet {
	var all []float64
	for _, s := range sets {
		all = append(all, s...)
	}
	return NewTimeSet(all...)
}

// Index returns the position of t in the set, matching within TinyTime.
func (s TimeSet) Index(t float64) (int, bool) {
	i := sort.SearchFloat64s(s, t-TinyTime)
	if i < len(s) && math.Abs(s[i]-t) <= TinyTime {
		return i, true
	}
	return i, false
}

// Contains reports whether t is a member of the set.
func (s TimeSet) Contains(t float64) bool {
	_, ok := s.Index(t)
	return ok
}

// Last returns the largest time, or 0 for an empty set.
func (s TimeSet) Last() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// UpTo returns the members not later than t.
func (s TimeSet) UpTo(t float64) TimeSet {
	i := sort.SearchFloat64s(s, t+TinyTime)
	return append(TimeSet(nil), s[:i]...)
}

// Interpolate evaluates the piecewise linear function through (xs, ys) at x,
// extrapolating linearly beyond both ends.
func Interpolate(xs, ys []float64, x float64) float64 {
	n := len(xs)
	switch n {
	case 0:
		return 0
	case 1:
		return ys[0]
	}
	i := sort.SearchFloat64s(xs, x)
	switch {
	case i <= 0:
		i = 1
	case i >= n:
		i = n - 1
	}
	x0, x1 := xs[i-1], xs[i]
	if x1 == x0 {
		return ys[i]
	}
	w := (x - x0) / (x1 - x0)
	return ys[i-1] + w*(ys[i]-ys[i-1])
}
