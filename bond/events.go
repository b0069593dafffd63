package bond

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/meenmo/amc/utils"
)

// Events lays a bond's cashflows and callability schedules onto a time grid.
// Only events strictly after the valuation date are registered.
type Events struct {
	toTime    utils.TimeFunc
	bond      *CallableBond
	cashflows []int
	calls     []Callability
	puts      []Callability

	grid        []float64
	hasCall     []bool
	hasPut      []bool
	callData    []Callability
	putData     []Callability
	cashflowsAt [][]int
}

// NewEvents registers the live events of b as seen from today.
func NewEvents(today time.Time, b *CallableBond) *Events {
	e := &Events{toTime: utils.ModelTime(today), bond: b}
	for i, cf := range b.Cashflows {
		if cf.Date.After(today) {
			e.cashflows = append(e.cashflows, i)
		}
	}
	live := func(in []Callability) []Callability {
		var out []Callability
		for _, c := range in {
			if c.Date.After(today) {
				out = append(out, c)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
		return out
	}
	e.calls = live(b.Calls)
	e.puts = live(b.Puts)
	return e
}

// Times returns the mandatory event times.
func (e *Events) Times() []float64 {
	var out []float64
	for _, i := range e.cashflows {
		out = append(out, e.toTime(e.bond.Cashflows[i].Date))
	}
	for _, c := range e.calls {
		out = append(out, e.toTime(c.Date))
	}
	for _, c := range e.puts {
		out = append(out, e.toTime(c.Date))
	}
	return utils.NewTimeSet(out...)
}

// Finalise maps the registered events onto grid, which must contain all of
// Times. FromThisDateOn entries stay active up to the grid point before the
// next entry of the same side, the last one until the end of the grid.
func (e *Events) Finalise(grid []float64) error {
	n := len(grid)
	e.grid = grid
	e.hasCall = make([]bool, n)
	e.hasPut = make([]bool, n)
	e.callData = make([]Callability, n)
	e.putData = make([]Callability, n)
	e.cashflowsAt = make([][]int, n)

	for _, i := range e.cashflows {
		k := closestIndex(grid, e.toTime(e.bond.Cashflows[i].Date))
		e.cashflowsAt[k] = append(e.cashflowsAt[k], i)
	}
	if err := e.spread(e.calls, e.hasCall, e.callData); err != nil {
		return fmt.Errorf("Events.Finalise: calls: %w", err)
	}
	if err := e.spread(e.puts, e.hasPut, e.putData); err != nil {
		return fmt.Errorf("Events.Finalise: puts: %w", err)
	}
	return nil
}

func (e *Events) spread(in []Callability, has []bool, data []Callability) error {
	for i, c := range in {
		k := closestIndex(e.grid, e.toTime(c.Date))
		if has[k] && data[k].Date.Equal(c.Date) {
			return fmt.Errorf("two entries on %s", utils.FormatDate(c.Date))
		}
		has[k], data[k] = true, c
		if c.ExerciseType != FromThisDateOn {
			continue
		}
		end := len(e.grid) - 1
		if i+1 < len(in) {
			end = closestIndex(e.grid, e.toTime(in[i+1].Date)) - 1
		}
		for j := k + 1; j <= end; j++ {
			has[j], data[j] = true, c
		}
	}
	return nil
}

func closestIndex(grid []float64, t float64) int {
	i := sort.SearchFloat64s(grid, t)
	if i >= len(grid) {
		return len(grid) - 1
	}
	if i > 0 && math.Abs(grid[i-1]-t) < math.Abs(grid[i]-t) {
		return i - 1
	}
	return i
}

// Grid returns the finalised grid.
func (e *Events) Grid() []float64 { return e.grid }

func (e *Events) HasCall(i int) bool { return e.hasCall[i] }

func (e *Events) HasPut(i int) bool { return e.hasPut[i] }

func (e *Events) CallData(i int) Callability { return e.callData[i] }

func (e *Events) PutData(i int) Callability { return e.putData[i] }

// CashflowsAt lists the indices into the bond's cashflows paid at grid point i.
func (e *Events) CashflowsAt(i int) []int { return e.cashflowsAt[i] }

// HasExercise reports whether any call or put is registered.
func (e *Events) HasExercise() bool { return len(e.calls)+len(e.puts) > 0 }
