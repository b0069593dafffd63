package amc

import (
	"fmt"
	"time"

	"github.com/meenmo/amc/bond"
	"github.com/meenmo/amc/model"
	"github.com/meenmo/amc/regression"
	"github.com/meenmo/amc/scenario"
	"github.com/meenmo/amc/utils"
)

// CashflowInfo describes how to compute one live cashflow from simulated
// states. It is built once per calculation; Amount is pure.
type CashflowInfo struct {
	PayTime float64
	// PayCcyIndex is the IR component of the pay currency, 0 for domestic.
	PayCcyIndex int
	Payer       bool
	// SimulationTimes and ModelIndices declare the states Amount reads:
	// states[i][j] is model factor ModelIndices[i][j] at SimulationTimes[i].
	SimulationTimes []float64
	ModelIndices    [][]int
	Amount          func(n int, states [][]scenario.Vector) scenario.Vector
}

func (c CashflowInfo) requirement() regression.Requirement {
	return regression.Requirement{Times: c.SimulationTimes, Indices: c.ModelIndices}
}

// buildCashflowInfo maps cashflow cf of b onto the model. Floating coupons
// fixing after today read the pay currency's IR state at the fixing time.
func buildCashflowInfo(cf bond.Cashflow, b *bond.CallableBond, m *model.CrossAsset, toTime utils.TimeFunc) (CashflowInfo, error) {
	ccy := b.PayCurrency(cf)
	idx, ok := m.CurrencyIndex(ccy)
	if !ok {
		return CashflowInfo{}, fmt.Errorf("buildCashflowInfo: %w: no IR component for currency %s", ErrModelMismatch, ccy)
	}
	info := CashflowInfo{PayTime: toTime(cf.Date), PayCcyIndex: idx}

	if cf.Floating == nil {
		amount := cf.Amount()
		info.Amount = func(n int, _ [][]scenario.Vector) scenario.Vector { return scenario.Const(n, amount) }
		return info, nil
	}

	fixingTime := toTime(cf.Floating.FixingDate)
	if fixingTime <= utils.TinyTime {
		if cf.Floating.Fixing == nil {
			return CashflowInfo{}, fmt.Errorf("buildCashflowInfo: %w: coupon paying %s fixed on %s has no fixing",
				ErrConfiguration, utils.FormatDate(cf.Date), utils.FormatDate(cf.Floating.FixingDate))
		}
		amount := cf.FloatingAmount(*cf.Floating.Fixing)
		info.Amount = func(n int, _ [][]scenario.Vector) scenario.Vector { return scenario.Const(n, amount) }
		return info, nil
	}

	lgm := m.IRModel(idx)
	start := max(toTime(cf.AccrualStart), fixingTime)
	end := toTime(cf.AccrualEnd)
	tau := cf.AccrualPeriod()
	info.SimulationTimes = []float64{fixingTime}
	info.ModelIndices = [][]int{{m.Index(model.IR, idx)}}
	info.Amount = func(n int, states [][]scenario.Vector) scenario.Vector {
		x := states[0][0]
		out := make(scenario.Vector, n)
		for k := range out {
			ps := lgm.DiscountBond(fixingTime, start, x[k], nil)
			pe := lgm.DiscountBond(fixingTime, end, x[k], nil)
			out[k] = cf.FloatingAmount((ps/pe - 1) / tau)
		}
		return out
	}
	return info, nil
}

// couponAmount is the coupon part of cf used for accrued interest. Floating
// coupons not yet fixed are projected on the model curve of today.
func couponAmount(cf bond.Cashflow, m *model.CrossAsset, ccy string, toTime utils.TimeFunc) float64 {
	if cf.Floating == nil {
		return cf.Coupon
	}
	if cf.Floating.Fixing != nil {
		return cf.FloatingAmount(*cf.Floating.Fixing) - cf.Principal
	}
	idx, _ := m.CurrencyIndex(ccy)
	c := m.IRModel(idx).Curve
	tau := cf.AccrualPeriod()
	fwd := (c.Discount(toTime(cf.AccrualStart))/c.Discount(toTime(cf.AccrualEnd)) - 1) / tau
	return cf.FloatingAmount(fwd) - cf.Principal
}

// liveCashflows returns the cashflows of b not yet paid as of today.
func liveCashflows(b *bond.CallableBond, today time.Time, includeToday bool) []bond.Cashflow {
	var out []bond.Cashflow
	for _, cf := range b.Cashflows {
		if cf.Date.Before(today) || (!includeToday && utils.SameDay(cf.Date, today)) {
			continue
		}
		out = append(out, cf)
	}
	return out
}
