package curve

import "math"

// FlatHazard is a default curve with constant hazard rate.
type FlatHazard struct {
	Rate float64
}

func (c FlatHazard) SurvivalProbability(t float64) float64 {
	return math.Exp(-c.Rate * t)
}

// ZeroSpreaded shifts a base curve by a continuously compounded spread.
type ZeroSpreaded struct {
	Base   YieldCurve
	Spread float64
}

func (c ZeroSpreaded) Discount(t float64) float64 {
	return c.Base.Discount(t) * math.Exp(-c.Spread*t)
}

// EffectiveBondDiscount is the risky bond discount curve
//
//	P_eff(t) = P_ref(t) · S(t)^(1-R) · exp(-spread·t)
//
// A nil Credit curve means no default risk.
type EffectiveBondDiscount struct {
	Reference YieldCurve
	Credit    DefaultCurve
	Spread    float64
	Recovery  float64
}

func (c EffectiveBondDiscount) Discount(t float64) float64 {
	df := c.Reference.Discount(t) * math.Exp(-c.Spread*t)
	if c.Credit != nil {
		df *= math.Pow(c.Credit.SurvivalProbability(t), 1-c.Recovery)
	}
	return df
}
