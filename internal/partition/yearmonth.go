package partition

import (
	"fmt"
	"time"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/calendar"
	"github.com/betedge/edgelake/pkg/exception"
)

// YearMonth is a calendar month in YYYYMM integer form.
type YearMonth int

func NewYearMonth(year int, month time.Month) YearMonth {
	return YearMonth(year*100 + int(month))
}

// MonthOf returns the month a calendar day belongs to.
func MonthOf(d calendar.Date) YearMonth {
	return YearMonth(int(d) / 100)
}

// ParseYearMonth validates a YYYYMM integer.
func ParseYearMonth(v int) (YearMonth, error) {
	ym := YearMonth(v)
	if !ym.valid() {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "year-month %d", v)
	}

	return ym, nil
}

func (ym YearMonth) Year() int         { return int(ym) / 100 }
func (ym YearMonth) Month() time.Month { return time.Month(int(ym) % 100) }

func (ym YearMonth) valid() bool {
	m := int(ym) % 100

	return int(ym) > 0 && m >= 1 && m <= 12
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d/%02d", ym.Year(), ym.Month())
}

// Next returns the following month, carrying December into January.
func (ym YearMonth) Next() YearMonth {
	if ym.Month() == time.December {
		return NewYearMonth(ym.Year()+1, time.January)
	}

	return YearMonth(ym + 1)
}

// First returns the first day of the month.
func (ym YearMonth) First() calendar.Date {
	return calendar.NewDate(ym.Year(), ym.Month(), 1)
}

// Last returns the last day of the month.
func (ym YearMonth) Last() calendar.Date {
	t := time.Date(ym.Year(), ym.Month()+1, 0, 0, 0, 0, 0, time.UTC)

	return calendar.FromTime(t)
}

// Walk lists every month from start to end inclusive, ascending.
func Walk(start, end YearMonth) ([]YearMonth, error) {
	if !start.valid() || !end.valid() {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "walk %d..%d", start, end)
	}

	if end < start {
		return nil, errors.Wrapf(exception.ErrInvalidRange, "end %s before start %s", end, start)
	}

	var months []YearMonth
	for ym := start; ym <= end; ym = ym.Next() {
		months = append(months, ym)
	}

	return months, nil
}
