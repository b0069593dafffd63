package bond

import (
	"sort"

	"github.com/meenmo/amc/utils"
)

type accruingCoupon struct {
	start, end, pay float64
	nominal         float64
	amount          float64
}

// NotionalAccrual answers outstanding notional and accrued interest at model
// times for a fixed set of cashflows.
type NotionalAccrual struct {
	coupons     []accruingCoupon
	redemptions []struct{ pay, amount float64 }
}

// NewNotionalAccrual indexes the coupons of cashflows. couponAmount returns the
// coupon part of a cashflow (the projected amount for floaters).
func NewNotionalAccrual(toTime utils.TimeFunc, cashflows []Cashflow, couponAmount func(Cashflow) float64) *NotionalAccrual {
	n := &NotionalAccrual{}
	for _, cf := range cashflows {
		if cf.Principal != 0 {
			n.redemptions = append(n.redemptions, struct{ pay, amount float64 }{toTime(cf.Date), cf.Principal})
		}
		if !cf.IsCoupon() {
			continue
		}
		n.coupons = append(n.coupons, accruingCoupon{
			start:   toTime(cf.AccrualStart),
			end:     toTime(cf.AccrualEnd),
			pay:     toTime(cf.Date),
			nominal: cf.Nominal,
			amount:  couponAmount(cf),
		})
	}
	sort.Slice(n.coupons, func(i, j int) bool { return n.coupons[i].pay < n.coupons[j].pay })
	return n
}

// Notional is the nominal of the first coupon still accruing at t; without
// coupons it is the sum of the outstanding redemptions.
func (n *NotionalAccrual) Notional(t float64) float64 {
	if len(n.coupons) == 0 {
		var out float64
		for _, r := range n.redemptions {
			if r.pay > t {
				out += r.amount
			}
		}
		return out
	}
	for _, c := range n.coupons {
		if c.end > t {
			return c.nominal
		}
	}
	return 0
}

// Accrual is the accrued interest at t, linear in time over each period of a
// coupon not yet paid.
func (n *NotionalAccrual) Accrual(t float64) float64 {
	var out float64
	for _, c := range n.coupons {
		if c.pay > t && t > c.start && c.end > c.start {
			out += (t - c.start) / (c.end - c.start) * c.amount
		}
	}
	return out
}
