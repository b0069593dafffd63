package bonds

import (
	"fmt"
	"time"

	"github.com/meenmo/amc/bond"
	"github.com/meenmo/amc/calendar"
	"github.com/meenmo/amc/utils"
)

// FixedRateParams is the term sheet of a fixed coupon bullet bond with
// optional call and put schedules. Payment dates follow Calendar and
// PaymentConvention, unadjusted by default.
type FixedRateParams struct {
	Currency     string
	IssueDate    time.Time
	MaturityDate time.Time
	// Frequency is the number of coupons per year (1, 2, 4 or 12).
	Frequency int
	Coupon    float64
	Notional  float64
	// DayCount sets the coupon year fraction; empty pays Coupon/Frequency.
	DayCount string
	// Payment dates roll on Calendar under PaymentConvention; accrual
	// periods stay unadjusted.
	Calendar          calendar.CalendarID
	PaymentConvention calendar.Convention

	Call *Schedule
	Put  *Schedule
}

// Schedule describes when an option can be exercised. OnThisDate exercises
// on every coupon date from First on; FromThisDateOn is exercisable on any
// day from First to maturity.
type Schedule struct {
	First          time.Time
	Price          float64
	PriceType      bond.PriceType
	ExerciseType   bond.ExerciseType
	IncludeAccrual bool
}

// FixedRate builds the bond described by p. The schedule rolls backward from
// maturity, leaving a short first period when needed. An OnThisDate schedule
// is exercisable on every payment date from its first date on.
func FixedRate(p FixedRateParams) (*bond.CallableBond, error) {
	switch p.Frequency {
	case 1, 2, 4, 12:
	default:
		return nil, fmt.Errorf("FixedRate: unsupported frequency %d", p.Frequency)
	}
	if !p.MaturityDate.After(p.IssueDate) {
		return nil, fmt.Errorf("FixedRate: maturity %s not after issue %s", utils.FormatDate(p.MaturityDate), utils.FormatDate(p.IssueDate))
	}
	if p.Notional <= 0 {
		return nil, fmt.Errorf("FixedRate: notional must be positive, got %v", p.Notional)
	}

	step := 12 / p.Frequency
	var dates []time.Time
	for k := 0; ; k++ {
		d := utils.AddMonth(p.MaturityDate, -step*k)
		if !d.After(p.IssueDate) {
			break
		}
		dates = append(dates, d)
	}
	utils.SortDates(dates)

	b := &bond.CallableBond{Currency: p.Currency}
	payDates := make([]time.Time, len(dates))
	start := p.IssueDate
	for i, end := range dates {
		coupon := p.Notional * p.Coupon / float64(p.Frequency)
		if p.DayCount != "" {
			coupon = p.Notional * p.Coupon * utils.YearFraction(start, end, p.DayCount)
		} else if i == 0 {
			// short first period pays pro rata of the regular period
			regular := utils.AddMonth(end, -step)
			coupon *= utils.Days(start, end) / utils.Days(regular, end)
		}
		payDates[i] = calendar.Adjust(p.Calendar, p.PaymentConvention, end)
		cf := bond.Cashflow{
			Date:         payDates[i],
			Coupon:       coupon,
			AccrualStart: start,
			AccrualEnd:   end,
			Nominal:      p.Notional,
		}
		if i == len(dates)-1 {
			cf.Principal = p.Notional
		}
		b.Cashflows = append(b.Cashflows, cf)
		start = end
	}

	b.Calls = exerciseSchedule(p.Call, payDates)
	b.Puts = exerciseSchedule(p.Put, payDates)
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("FixedRate: %w", err)
	}
	return b, nil
}

func exerciseSchedule(s *Schedule, couponDates []time.Time) []bond.Callability {
	if s == nil {
		return nil
	}
	entry := func(d time.Time) bond.Callability {
		return bond.Callability{
			Date:           d,
			ExerciseType:   s.ExerciseType,
			Price:          s.Price,
			PriceType:      s.PriceType,
			IncludeAccrual: s.IncludeAccrual,
		}
	}
	if s.ExerciseType == bond.FromThisDateOn {
		return []bond.Callability{entry(s.First)}
	}
	var out []bond.Callability
	for _, d := range couponDates {
		if !d.Before(s.First) {
			out = append(out, entry(d))
		}
	}
	return out
}
