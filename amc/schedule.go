package amc

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/meenmo/amc/bond"
	"github.com/meenmo/amc/montecarlo"
	"github.com/meenmo/amc/utils"
)

// exercise is one exercise time with at most one call and one put.
type exercise struct {
	Time float64
	Call *bond.Callability
	Put  *bond.Callability
}

// schedule holds the time sets of one calculation.
type schedule struct {
	exercises        []exercise
	xvaTimes         utils.TimeSet
	exerciseXvaTimes utils.TimeSet
	simulationTimes  utils.TimeSet
	hasCalls         bool
	hasPuts          bool
	// closeOutPairs maps a close-out exposure time onto its lagged time.
	closeOutPairs [][2]float64
}

// exerciseSchedule lays the callabilities of b onto the exercise grid: the
// event times refined by stepsPerYear sub-steps per year.
func exerciseSchedule(today time.Time, b *bond.CallableBond, stepsPerYear int) ([]exercise, error) {
	events := bond.NewEvents(today, b)
	times := events.Times()
	if len(times) == 0 {
		return nil, fmt.Errorf("exerciseSchedule: %w: bond has no live events", ErrConfiguration)
	}
	steps := 0
	if stepsPerYear > 0 {
		steps = max(int(math.Round(float64(stepsPerYear)*times[len(times)-1]+0.5)), 1)
	}
	grid, err := montecarlo.NewTimeGrid(times, steps)
	if err != nil {
		return nil, fmt.Errorf("exerciseSchedule: %w", err)
	}
	if err := events.Finalise(grid); err != nil {
		return nil, fmt.Errorf("exerciseSchedule: %w: %w", ErrConfiguration, err)
	}

	var out []exercise
	for i, t := range grid {
		if !events.HasCall(i) && !events.HasPut(i) {
			continue
		}
		ex := exercise{Time: t}
		if events.HasCall(i) {
			c := events.CallData(i)
			ex.Call = &c
		}
		if events.HasPut(i) {
			p := events.PutData(i)
			ex.Put = &p
		}
		out = append(out, ex)
	}
	return out, nil
}

// newSchedule merges cashflow, exercise and exposure times. Exposure times
// are kept on (0, maxTime].
func newSchedule(exercises []exercise, cashflows []CashflowInfo, simulationDates, closeOutDates []time.Time, toTime utils.TimeFunc, recalibrateCloseOut bool) *schedule {
	s := &schedule{exercises: exercises}

	var exTimes, cfTimes []float64
	for _, ex := range exercises {
		exTimes = append(exTimes, ex.Time)
		s.hasCalls = s.hasCalls || ex.Call != nil
		s.hasPuts = s.hasPuts || ex.Put != nil
	}
	for _, c := range cashflows {
		cfTimes = append(cfTimes, c.SimulationTimes...)
		cfTimes = append(cfTimes, c.PayTime)
	}

	maxTime := 0.0
	for _, t := range append(append([]float64(nil), exTimes...), cfTimes...) {
		maxTime = math.Max(maxTime, t)
	}

	var xva []float64
	for i, d := range simulationDates {
		t := toTime(d)
		if t <= utils.TinyTime || t >= maxTime+utils.TinyTime {
			continue
		}
		xva = append(xva, t)
		if recalibrateCloseOut && len(closeOutDates) > 0 {
			s.closeOutPairs = append(s.closeOutPairs, [2]float64{t, toTime(closeOutDates[i])})
		}
	}
	s.xvaTimes = utils.NewTimeSet(xva...)
	s.exerciseXvaTimes = utils.Union(utils.NewTimeSet(exTimes...), s.xvaTimes)
	s.simulationTimes = utils.Union(utils.NewTimeSet(cfTimes...), s.exerciseXvaTimes)
	return s
}

// exerciseAt returns the exercise index at time t.
func (s *schedule) exerciseAt(t float64) (int, bool) {
	for i, ex := range s.exercises {
		if math.Abs(ex.Time-t) <= utils.TinyTime {
			return i, true
		}
	}
	return -1, false
}

// laggedTimes maps every simulation time onto the close-out grid by linear
// interpolation of {0, exposure times} -> {0, close-out times}. It returns nil
// when no close-out recalibration applies.
func (s *schedule) laggedTimes() []float64 {
	if len(s.closeOutPairs) == 0 {
		return nil
	}
	pairs := append([][2]float64(nil), s.closeOutPairs...)
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	xs, ys := []float64{0}, []float64{0}
	for _, p := range pairs {
		if p[0]-xs[len(xs)-1] <= utils.TinyTime {
			continue
		}
		xs = append(xs, p[0])
		ys = append(ys, p[1])
	}
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, len(s.simulationTimes))
	for i, t := range s.simulationTimes {
		out[i] = math.Max(utils.Interpolate(xs, ys, t), 0)
	}
	return out
}
