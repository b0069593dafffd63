// Package calendar adjusts bond schedule dates to business days.
package calendar

import (
	"fmt"
	"time"
)

// CalendarID identifies a holiday calendar.
type CalendarID string

const (
	// Weekends treats Saturdays and Sundays as the only holidays.
	Weekends CalendarID = "WEEKENDS"
	// TARGET is the Euro settlement calendar.
	TARGET CalendarID = "TARGET"
)

// Convention is a business day convention.
type Convention string

const (
	Unadjusted        Convention = "Unadjusted"
	Following         Convention = "Following"
	ModifiedFollowing Convention = "ModifiedFollowing"
	Preceding         Convention = "Preceding"
)

// Parse validates a calendar name; empty means Weekends.
func Parse(s string) (CalendarID, error) {
	switch c := CalendarID(s); c {
	case "":
		return Weekends, nil
	case Weekends, TARGET:
		return c, nil
	}
	return "", fmt.Errorf("unknown calendar %q", s)
}

// ParseConvention validates a convention name; empty means Unadjusted.
func ParseConvention(s string) (Convention, error) {
	switch c := Convention(s); c {
	case "":
		return Unadjusted, nil
	case Unadjusted, Following, ModifiedFollowing, Preceding:
		return c, nil
	}
	return "", fmt.Errorf("unknown business day convention %q", s)
}

func isHoliday(cal CalendarID, t time.Time) bool {
	if cal != TARGET {
		return false
	}
	y, m, d := t.Date()
	switch {
	case m == time.January && d == 1,
		m == time.May && d == 1,
		m == time.December && (d == 25 || d == 26):
		return true
	}
	easter := easterSunday(y)
	return sameDay(t, easter.AddDate(0, 0, -2)) || sameDay(t, easter.AddDate(0, 0, 1))
}

// easterSunday is the Gregorian Easter date (anonymous algorithm).
func easterSunday(y int) time.Time {
	a := y % 19
	b, c := y/100, y%100
	d, e := b/4, b%4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i, k := c/4, c%4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()
	return ya == yb && ma == mb && da == db
}

// IsBusinessDay checks weekends and holiday sets.
func IsBusinessDay(cal CalendarID, t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !isHoliday(cal, t)
}

// Adjust rolls t onto a business day under convention c.
func Adjust(cal CalendarID, c Convention, t time.Time) time.Time {
	switch c {
	case Following:
		return AdjustFollowing(cal, t)
	case ModifiedFollowing:
		return adjustModifiedFollowing(cal, t)
	case Preceding:
		for !IsBusinessDay(cal, t) {
			t = t.AddDate(0, 0, -1)
		}
		return t
	}
	return t
}

func adjustModifiedFollowing(cal CalendarID, t time.Time) time.Time {
	origMonth := t.Month()
	for !IsBusinessDay(cal, t) {
		t = t.AddDate(0, 0, 1)
	}
	if t.Month() != origMonth {
		t = t.AddDate(0, 0, -1)
		for !IsBusinessDay(cal, t) {
			t = t.AddDate(0, 0, -1)
		}
	}
	return t
}

// AdjustFollowing applies a simple Following convention (no month preservation).
func AdjustFollowing(cal CalendarID, t time.Time) time.Time {
	for !IsBusinessDay(cal, t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// AddBusinessDays advances n business days (n can be negative).
func AddBusinessDays(cal CalendarID, t time.Time, n int) time.Time {
	step := 1
	if n < 0 {
		step = -1
	}
	for n != 0 {
		t = t.AddDate(0, 0, step)
		if IsBusinessDay(cal, t) {
			n -= step
		}
	}
	return t
}
