package amc

import (
	"github.com/meenmo/amc/bond"
	"github.com/meenmo/amc/scenario"
)

// Result is the outcome of one calculation.
type Result struct {
	UnderlyingNPV float64
	// OptionNPV is the value of the embedded calls and puts; negative when
	// the issuer calls dominate.
	OptionNPV float64
	NPV       float64
	// Settlement values forward the NPVs to the bond settlement date on the
	// income curve.
	UnderlyingSettlementValue float64
	SettlementValue           float64
	// Additional holds diagnostics when Config.GenerateAdditionalResults is set.
	Additional map[string]any
	Calculator Calculator

	pricingRunNPV      float64
	pricingRunStdError float64
	hasPricingRun      bool
}

func additionalResults(res *Result, sched *schedule, accrual *bond.NotionalAccrual, cashflows []CashflowInfo, und, total scenario.Vector, n0 float64) map[string]any {
	times := sched.exerciseXvaTimes
	prices := make([]float64, len(times))
	accruals := make([]float64, len(times))
	notionals := make([]float64, len(times))
	for i, t := range times {
		accruals[i] = accrual.Accrual(t)
		notionals[i] = accrual.Notional(t)
		if e, ok := sched.exerciseAt(t); ok && sched.exercises[e].Call != nil {
			prices[i] = sched.exercises[e].Call.Amount(notionals[i], accruals[i])
		}
	}

	out := map[string]any{
		"exerciseTimes":               append([]float64(nil), times...),
		"callPrices":                  prices,
		"callAccruals":                accruals,
		"callNotionals":               notionals,
		"strippedBondNpv":             res.UnderlyingNPV,
		"strippedBondSettlementValue": res.UnderlyingSettlementValue,
		"callPutValue":                res.UnderlyingSettlementValue - res.SettlementValue,
		"settlementValue":             res.SettlementValue,
		"optionValue":                 res.OptionNPV,
		"underlyingNpvStdError":       und.StdErr() * n0,
		"totalNpvStdError":            total.StdErr() * n0,
	}
	if res.hasPricingRun {
		out["pricingRunTotalNpv"] = res.pricingRunNPV
		out["pricingRunStdError"] = res.pricingRunStdError
	}

	// yields are defined for deterministic amounts only
	var payTimes, amounts []float64
	for _, c := range cashflows {
		if len(c.SimulationTimes) > 0 || c.PayCcyIndex != 0 {
			return out
		}
		payTimes = append(payTimes, c.PayTime)
		a := c.Amount(1, nil)[0]
		if c.Payer {
			a = -a
		}
		amounts = append(amounts, a)
	}
	if y, _, err := bond.Yield(payTimes, amounts, res.UnderlyingNPV); err == nil {
		out["strippedBondYield"] = y
	}
	if y, _, err := bond.Yield(payTimes, amounts, res.NPV); err == nil {
		out["callableBondYield"] = y
	}
	return out
}
