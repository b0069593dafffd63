// Package metrics collects per-calculation timings and counters and exposes
// them to Prometheus.
package metrics

import (
	"sync"
	"time"
)

// Phase is a timed section of a calculation.
type Phase int

const (
	PhasePath Phase = iota
	PhaseCalc
	PhaseOther
)

func (p Phase) String() string {
	switch p {
	case PhasePath:
		return "path"
	case PhaseCalc:
		return "calc"
	case PhaseOther:
		return "other"
	}
	return "unknown"
}

var phases = []Phase{PhasePath, PhaseCalc, PhaseOther}

// Stats accumulates the timings of one or more calculations. A nil *Stats
// records nothing, so callers that do not care can pass nil.
type Stats struct {
	mu          sync.Mutex
	elapsed     [3]time.Duration
	regressions int
	zeroModels  int
	paths       int
}

func NewStats() *Stats { return &Stats{} }

// Track starts timing phase p and returns the function that stops it.
func (s *Stats) Track(p Phase) func() {
	if s == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		d := time.Since(start)
		s.mu.Lock()
		s.elapsed[p] += d
		s.mu.Unlock()
	}
}

// RecordRegression counts one trained regression model.
func (s *Stats) RecordRegression(zero bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.regressions++
	if zero {
		s.zeroModels++
	}
	s.mu.Unlock()
}

// RecordPaths counts simulated scenarios.
func (s *Stats) RecordPaths(n int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.paths += n
	s.mu.Unlock()
}

func (s *Stats) Elapsed(p Phase) time.Duration {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed[p]
}

// Regressions returns the number of trained models and how many of them are
// the zero model.
func (s *Stats) Regressions() (trained, zero int) {
	if s == nil {
		return 0, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regressions, s.zeroModels
}

func (s *Stats) Paths() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paths
}

// Add accumulates the values of o into s.
func (s *Stats) Add(o *Stats) {
	if s == nil || o == nil || s == o {
		return
	}
	o.mu.Lock()
	elapsed, regressions, zero, paths := o.elapsed, o.regressions, o.zeroModels, o.paths
	o.mu.Unlock()

	s.mu.Lock()
	for i := range s.elapsed {
		s.elapsed[i] += elapsed[i]
	}
	s.regressions += regressions
	s.zeroModels += zero
	s.paths += paths
	s.mu.Unlock()
}

// Reset clears all accumulated values.
func (s *Stats) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.elapsed = [3]time.Duration{}
	s.regressions, s.zeroModels, s.paths = 0, 0, 0
	s.mu.Unlock()
}
