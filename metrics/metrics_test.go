package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilStatsIsSafe(t *testing.T) {
	t.Parallel()

	var s *Stats
	s.Track(PhaseCalc)()
	s.RecordRegression(true)
	s.RecordPaths(10)
	if got := s.Elapsed(PhaseCalc); got != 0 {
		t.Fatalf("nil stats elapsed = %v", got)
	}
	if n, z := s.Regressions(); n != 0 || z != 0 {
		t.Fatalf("nil stats regressions = %d, %d", n, z)
	}
}

func TestStatsAccumulates(t *testing.T) {
	t.Parallel()

	s := NewStats()
	stop := s.Track(PhasePath)
	time.Sleep(2 * time.Millisecond)
	stop()
	s.RecordRegression(false)
	s.RecordRegression(true)
	s.RecordPaths(5)
	s.RecordPaths(7)

	if s.Elapsed(PhasePath) <= 0 {
		t.Fatalf("path phase not timed")
	}
	if s.Elapsed(PhaseCalc) != 0 {
		t.Fatalf("calc phase should be untouched, got %v", s.Elapsed(PhaseCalc))
	}
	if n, z := s.Regressions(); n != 2 || z != 1 {
		t.Fatalf("regressions = %d, %d, want 2, 1", n, z)
	}
	if s.Paths() != 12 {
		t.Fatalf("paths = %d, want 12", s.Paths())
	}

	total := NewStats()
	total.Add(s)
	total.Add(s)
	if n, z := total.Regressions(); n != 4 || z != 2 || total.Paths() != 24 {
		t.Fatalf("added stats = %d, %d, %d", n, z, total.Paths())
	}

	s.Reset()
	if n, _ := s.Regressions(); n != 0 || s.Elapsed(PhasePath) != 0 {
		t.Fatalf("reset did not clear stats")
	}
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r := New(reg)

	s := NewStats()
	s.RecordRegression(false)
	s.RecordRegression(false)
	s.RecordRegression(true)
	s.RecordPaths(100)
	r.Observe(s)
	r.RecordCalculation(nil)
	r.RecordCalculation(errors.New("boom"))
	r.RecordEvaluation()

	if got := testutil.ToFloat64(r.regressions.WithLabelValues("fitted")); got != 2 {
		t.Fatalf("fitted regressions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.regressions.WithLabelValues("zero")); got != 1 {
		t.Fatalf("zero regressions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.paths); got != 100 {
		t.Fatalf("paths = %v, want 100", got)
	}
	if got := testutil.ToFloat64(r.calculations.WithLabelValues("error")); got != 1 {
		t.Fatalf("failed calculations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.evaluations); got != 1 {
		t.Fatalf("evaluations = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(r.phaseDuration); n != 3 {
		t.Fatalf("phase histograms = %d, want 3", n)
	}
}
