package utils

import (
	"time"
)

// Day count conventions accepted by YearFraction.
const (
	Act360  = "ACT/360"
	Act365F = "ACT/365F"
	Thirty  = "30E/360"
)

// YearFraction computes year fraction between two dates using the specified day count convention.
// Supported conventions: ACT/360, ACT/365F, 30E/360, 30/360
func YearFraction(start, end time.Time, convention string) float64 {
	switch convention {
	case Act360:
		return Days(start, end) / 360.0
	case Act365F:
		return Days(start, end) / 365.0
	case Thirty, "30/360":
		// D1 and D2 are capped at 30
		d1 := min(start.Day(), 30)
		d2 := min(end.Day(), 30)
		y1, m1 := start.Year(), int(start.Month())
		y2, m2 := end.Year(), int(end.Month())
		return float64(360*(y2-y1)+30*(m2-m1)+(d2-d1)) / 360.0
	default:
		return Days(start, end) / 365.0
	}
}

// TimeFunc maps a date to a model time in years.
type TimeFunc func(d time.Time) float64

// ModelTime returns the ACT/365F year fraction from reference, the clock used by
// curves and models.
func ModelTime(reference time.Time) TimeFunc {
	return func(d time.Time) float64 {
		return YearFraction(reference, d, Act365F)
	}
}
