package bond

import (
	"fmt"
	"time"
)

// PriceType says whether a callability price excludes (clean) or includes
// (dirty) accrued interest.
type PriceType int

const (
	PriceClean PriceType = iota
	PriceDirty
)

func (p PriceType) String() string {
	if p == PriceDirty {
		return "Dirty"
	}
	return "Clean"
}

// ExerciseType is the exercise style of a callability entry.
type ExerciseType int

const (
	// OnThisDate is exercisable on its date only.
	OnThisDate ExerciseType = iota
	// FromThisDateOn is exercisable from its date until the next entry.
	FromThisDateOn
)

func (e ExerciseType) String() string {
	if e == FromThisDateOn {
		return "FromThisDateOn"
	}
	return "OnThisDate"
}

// Callability is one entry of a call or put schedule. Price is a fraction of
// the outstanding notional (1 = par).
type Callability struct {
	Date           time.Time
	ExerciseType   ExerciseType
	Price          float64
	PriceType      PriceType
	IncludeAccrual bool
}

func (c Callability) validate() error {
	if c.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if c.Price < 0 {
		return fmt.Errorf("negative price %v", c.Price)
	}
	return nil
}

// Amount is the cash paid on exercise given the outstanding notional and the
// accrued interest.
func (c Callability) Amount(notional, accrual float64) float64 {
	amt := c.Price * notional
	if c.PriceType == PriceClean {
		amt += accrual
	}
	if !c.IncludeAccrual {
		amt -= accrual
	}
	return amt
}
