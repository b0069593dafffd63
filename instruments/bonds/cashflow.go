// Package bonds builds bond instruments from term sheets and cashflow feeds.
package bonds

import (
	"time"

	"github.com/meenmo/amc/bond"
)

// CashflowCents mirrors the Bloomberg-style cashflow feed where coupon/principal
// are stored as integer minor units (e.g., cents for EUR).
type CashflowCents struct {
	Date           time.Time
	CouponCents    int64
	PrincipalCents int64
	// AccrualStart is the start of the coupon period; zero for redemptions.
	AccrualStart time.Time
	// NominalCents is the notional the coupon accrues on.
	NominalCents int64
}

func (c CashflowCents) ToCashflow() bond.Cashflow {
	cf := bond.Cashflow{
		Date:      c.Date,
		Coupon:    float64(c.CouponCents) / 100.0,
		Principal: float64(c.PrincipalCents) / 100.0,
	}
	if !c.AccrualStart.IsZero() && c.CouponCents != 0 {
		cf.AccrualStart, cf.AccrualEnd = c.AccrualStart, c.Date
		cf.Nominal = float64(c.NominalCents) / 100.0
	}
	return cf
}

// ToCashflows converts a feed, chaining accrual periods: a coupon without an
// explicit start accrues from the previous coupon date.
func ToCashflows(in []CashflowCents) []bond.Cashflow {
	out := make([]bond.Cashflow, 0, len(in))
	var prev time.Time
	for _, c := range in {
		if c.AccrualStart.IsZero() && c.CouponCents != 0 && !prev.IsZero() {
			c.AccrualStart = prev
		}
		out = append(out, c.ToCashflow())
		if c.CouponCents != 0 {
			prev = c.Date
		}
	}
	return out
}
