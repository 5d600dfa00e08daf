package calendar

import (
	"strconv"
	"time"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/pkg/exception"
)

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()

	return wd == time.Saturday || wd == time.Sunday
}

// MarketHolidays returns the US market holidays of a year. Independence Day
// and Christmas shift to the nearest weekday when they land on a weekend;
// New Year's Day does not shift because the observed Friday belongs to the
// prior year's calendar.
func MarketHolidays(year int) []time.Time {
	return []time.Time{
		time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		nthWeekday(year, time.January, time.Monday, 3),
		nthWeekday(year, time.February, time.Monday, 3),
		lastWeekday(year, time.May, time.Monday),
		observed(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC)),
		nthWeekday(year, time.September, time.Monday, 1),
		nthWeekday(year, time.November, time.Thursday, 4),
		observed(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC)),
	}
}

func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7

	return first.AddDate(0, 0, offset+(n-1)*7)
}

func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	offset := (int(last.Weekday()) - int(weekday) + 7) % 7

	return last.AddDate(0, 0, -offset)
}

func observed(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	default:
		return t
	}
}

// IsMarketDay reports whether US equity markets trade on the given day.
func IsMarketDay(t time.Time) bool {
	if IsWeekend(t) {
		return false
	}

	for _, h := range MarketHolidays(t.Year()) {
		if h.Month() == t.Month() && h.Day() == t.Day() {
			return false
		}
	}

	return true
}

// TradingDays lists the market days between start and end inclusive, in
// chronological order.
func TradingDays(start, end Date) ([]Date, error) {
	if !start.valid() || !end.valid() {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "trading days %d..%d", start, end)
	}

	if end < start {
		return nil, errors.Wrapf(exception.ErrInvalidRange, "end %s before start %s", end, start)
	}

	var days []Date
	for t := start.Time(); !t.After(end.Time()); t = t.AddDate(0, 0, 1) {
		if IsMarketDay(t) {
			days = append(days, FromTime(t))
		}
	}

	return days, nil
}

// IntervalString renders a bar interval in the compact form used inside
// object keys: "tick", "30s", "15m", "1h", "1d".
func IntervalString(ms int) string {
	switch {
	case ms == 0:
		return "tick"
	case ms < 60000:
		return strconv.Itoa(ms/1000) + "s"
	case ms < 3600000:
		return strconv.Itoa(ms/60000) + "m"
	case ms < 86400000:
		return strconv.Itoa(ms/3600000) + "h"
	default:
		return strconv.Itoa(ms/86400000) + "d"
	}
}

// ParseInterval is the inverse of IntervalString.
func ParseInterval(s string) (int, error) {
	if s == "tick" {
		return 0, nil
	}

	if len(s) < 2 {
		return 0, errors.Wrapf(exception.ErrInvalidInterval, "parse %q", s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, errors.Wrapf(exception.ErrInvalidInterval, "parse %q", s)
	}

	switch s[len(s)-1] {
	case 's':
		return n * 1000, nil
	case 'm':
		return n * 60000, nil
	case 'h':
		return n * 3600000, nil
	case 'd':
		return n * 86400000, nil
	default:
		return 0, errors.Wrapf(exception.ErrInvalidInterval, "parse %q", s)
	}
}
