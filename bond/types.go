// Package bond describes callable and putable bonds: dated cashflows,
// callability schedules, outstanding notional and accrued interest.
package bond

import (
	"errors"
	"fmt"
	"time"

	"github.com/meenmo/amc/utils"
)

// ErrNoCashflows is returned for an instrument without cashflows.
var ErrNoCashflows = errors.New("bond has no cashflows")

// Cashflow is a single dated cash payment for a bond.
//
// Amounts are in currency units (e.g., EUR), not price-per-100. Coupons carry
// their accrual period and nominal; pure redemptions leave them zero.
type Cashflow struct {
	Date      time.Time
	Coupon    float64
	Principal float64
	// Currency overrides the bond currency when set.
	Currency     string
	AccrualStart time.Time
	AccrualEnd   time.Time
	Nominal      float64
	// Floating makes the coupon float over the accrual period; Coupon is then
	// ignored unless the rate is already fixed.
	Floating *FloatingTerms
}

// FloatingTerms describe a coupon paying nominal × τ × (gearing × L + spread),
// L the simple forward rate over the accrual period observed at FixingDate.
type FloatingTerms struct {
	FixingDate time.Time
	Gearing    float64
	Spread     float64
	DayCount   string
	// Fixing is the known rate for coupons fixed on or before the valuation date.
	Fixing *float64
}

func (c Cashflow) Amount() float64 {
	return c.Coupon + c.Principal
}

// IsCoupon reports whether the cashflow accrues over a period.
func (c Cashflow) IsCoupon() bool {
	return !c.AccrualStart.IsZero() && c.AccrualEnd.After(c.AccrualStart)
}

// AccrualPeriod is the coupon year fraction under the floating day count (ACT/360
// by default) or ACT/365F for fixed coupons.
func (c Cashflow) AccrualPeriod() float64 {
	dc := utils.Act365F
	if c.Floating != nil {
		dc = utils.Act360
		if c.Floating.DayCount != "" {
			dc = c.Floating.DayCount
		}
	}
	return utils.YearFraction(c.AccrualStart, c.AccrualEnd, dc)
}

// FloatingAmount returns the coupon paid for a forward rate fwd.
func (c Cashflow) FloatingAmount(fwd float64) float64 {
	f := c.Floating
	return c.Nominal*c.AccrualPeriod()*(f.Gearing*fwd+f.Spread) + c.Principal
}

// CallableBond is a bond with issuer calls and holder puts.
type CallableBond struct {
	Currency string
	// SettlementDate defaults to the valuation date.
	SettlementDate time.Time
	Cashflows      []Cashflow
	Calls          []Callability
	Puts           []Callability
}

// Validate checks the static structure of the bond.
func (b *CallableBond) Validate() error {
	if b == nil || len(b.Cashflows) == 0 {
		return ErrNoCashflows
	}
	if b.Currency == "" {
		return fmt.Errorf("CallableBond: currency is required")
	}
	for i, cf := range b.Cashflows {
		if cf.Date.IsZero() {
			return fmt.Errorf("CallableBond: cashflow %d has no date", i)
		}
		if cf.Floating != nil {
			if !cf.IsCoupon() {
				return fmt.Errorf("CallableBond: floating cashflow %d needs an accrual period", i)
			}
			if cf.Floating.FixingDate.IsZero() {
				return fmt.Errorf("CallableBond: floating cashflow %d has no fixing date", i)
			}
		}
	}
	for _, side := range [][]Callability{b.Calls, b.Puts} {
		for i, c := range side {
			if err := c.validate(); err != nil {
				return fmt.Errorf("CallableBond: callability %d: %w", i, err)
			}
		}
	}
	return nil
}

// PayCurrency returns the currency of cashflow c.
func (b *CallableBond) PayCurrency(c Cashflow) string {
	if c.Currency != "" {
		return c.Currency
	}
	return b.Currency
}
