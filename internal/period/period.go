package period

import (
	"fmt"
	"time"
)

// Kind identifies one of the rolling calendar windows a quota is bounded by.
type Kind string

const (
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
)

// Kinds lists all period kinds in enforcement order. The order is load-bearing:
// limit checks report the first exceeded period in this sequence.
var Kinds = []Kind{Daily, Weekly, Monthly}

// Valid reports whether k is a known period kind.
func (k Kind) Valid() bool {
	switch k {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// SameWindow reports whether t1 and t2 fall in the same calendar window for
// the given period kind. Daily windows are UTC calendar dates, weekly windows
// are ISO-8601 weeks (Monday 00:00 UTC start), monthly windows are UTC
// calendar months.
func SameWindow(k Kind, t1, t2 time.Time) bool {
	t1, t2 = t1.UTC(), t2.UTC()
	switch k {
	case Daily:
		y1, m1, d1 := t1.Date()
		y2, m2, d2 := t2.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	case Weekly:
		// ISO week-years differ from Gregorian years near January 1st, so
		// both the week number and the week-year must match.
		wy1, w1 := t1.ISOWeek()
		wy2, w2 := t2.ISOWeek()
		return wy1 == wy2 && w1 == w2
	case Monthly:
		y1, m1, _ := t1.Date()
		y2, m2, _ := t2.Date()
		return y1 == y2 && m1 == m2
	default:
		panic(fmt.Sprintf("period: unknown kind %q", k))
	}
}

// NextBoundary returns the smallest instant strictly after t that starts a new
// window of the given kind: the next UTC midnight, the next Monday 00:00 UTC,
// or the first of the next UTC month.
func NextBoundary(k Kind, t time.Time) time.Time {
	t = t.UTC()
	switch k {
	case Daily:
		y, m, d := t.Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	case Weekly:
		y, m, d := t.Date()
		midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		// time.Weekday numbers Sunday as 0; shift so Monday is 0.
		daysIntoWeek := (int(t.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, 7-daysIntoWeek)
	case Monthly:
		y, m, _ := t.Date()
		// time.Date normalizes month 13 to January of the next year.
		return time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
	default:
		panic(fmt.Sprintf("period: unknown kind %q", k))
	}
}
