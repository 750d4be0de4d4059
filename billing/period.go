package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// YEAR-MONTH - Billing calendar position
// =============================================================================

// YearMonth identifies one billing month. The generation loop walks YearMonth
// values instead of mutating loose year/month counters so no state leaks
// between iterations.
type YearMonth struct {
	Year  int
	Month time.Month
}

func YearMonthOf(d Date) YearMonth {
	return YearMonth{Year: d.Year(), Month: d.Month()}
}

func (ym YearMonth) Next() YearMonth {
	if ym.Month == time.December {
		return YearMonth{Year: ym.Year + 1, Month: time.January}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}

func (ym YearMonth) After(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year > other.Year
	}
	return ym.Month > other.Month
}

func (ym YearMonth) Equal(other YearMonth) bool {
	return ym.Year == other.Year && ym.Month == other.Month
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// =============================================================================
// BILLING PERIOD - One calendar month, inclusive boundaries
// =============================================================================

// BillingPeriod is one invoice period. Start is always the first of the month
// and End the last day; a mid-month move-in does not shift the boundaries, it
// only prorates the amount (see generator.go).
type BillingPeriod struct {
	Start Date
	End   Date
}

func PeriodFor(ym YearMonth) BillingPeriod {
	return BillingPeriod{
		Start: StartOfMonth(ym.Year, ym.Month),
		End:   EndOfMonth(ym.Year, ym.Month),
	}
}

func (p BillingPeriod) TotalDays() int { return p.End.Day() }

func (p BillingPeriod) Contains(d Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p BillingPeriod) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// MONTH RANGE - Bounded month iterator
// =============================================================================

// MonthRange walks calendar months from a start month through an end month
// inclusive. The range is strictly bounded: Next never yields a month past
// the end, so a generation loop terminates by construction.
type MonthRange struct {
	cur  YearMonth
	end  YearMonth
	done bool
}

func NewMonthRange(from, through YearMonth) *MonthRange {
	return &MonthRange{cur: from, end: through, done: from.After(through)}
}

// Next returns the next month in the range, or false when exhausted.
func (r *MonthRange) Next() (YearMonth, bool) {
	if r.done {
		return YearMonth{}, false
	}
	ym := r.cur
	if ym.Equal(r.end) {
		r.done = true
	} else {
		r.cur = ym.Next()
	}
	return ym, true
}
