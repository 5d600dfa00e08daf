package calendar

import (
	"testing"
	"time"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/pkg/exception"
)

func TestDateRoundTrip(t *testing.T) {
	d, err := ParseDate(20240105)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if d.String() != "20240105" {
		t.Fatalf("string = %s, want 20240105", d.String())
	}

	if d.DashString() != "2024-01-05" {
		t.Fatalf("dash = %s, want 2024-01-05", d.DashString())
	}

	if got := FromTime(d.Time()); got != d {
		t.Fatalf("time round-trip = %v, want %v", got, d)
	}
}

func TestParseDateRejectsImpossibleDay(t *testing.T) {
	if _, err := ParseDate(20240230); !errors.Is(err, exception.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}

	if _, err := ParseDate(20241301); !errors.Is(err, exception.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestMarketHolidays2024(t *testing.T) {
	holidays := MarketHolidays(2024)

	want := []Date{
		20240101, // New Year's Day
		20240115, // MLK, 3rd Monday of January
		20240219, // Presidents Day
		20240527, // Memorial Day, last Monday of May
		20240704, // Independence Day, Thursday
		20240902, // Labor Day
		20241128, // Thanksgiving, 4th Thursday
		20241225, // Christmas, Wednesday
	}

	if len(holidays) != len(want) {
		t.Fatalf("got %d holidays, want %d", len(holidays), len(want))
	}

	for i, h := range holidays {
		if got := FromTime(h); got != want[i] {
			t.Fatalf("holiday %d = %v, want %v", i, got, want[i])
		}
	}
}

func TestIndependenceDayObservedShift(t *testing.T) {
	// July 4 2026 is a Saturday, observed Friday July 3.
	holidays := MarketHolidays(2026)

	var found bool
	for _, h := range holidays {
		if FromTime(h) == 20260703 {
			found = true
		}

		if FromTime(h) == 20260704 {
			t.Fatalf("saturday July 4 listed instead of observed friday")
		}
	}

	if !found {
		t.Fatalf("observed friday July 3 2026 not listed")
	}
}

func TestIsMarketDay(t *testing.T) {
	cases := []struct {
		date Date
		want bool
	}{
		{20240105, true},  // Friday
		{20240106, false}, // Saturday
		{20240107, false}, // Sunday
		{20240115, false}, // MLK day
		{20241128, false}, // Thanksgiving
		{20241129, true},  // Friday after Thanksgiving
	}

	for _, c := range cases {
		if got := IsMarketDay(c.date.Time()); got != c.want {
			t.Fatalf("IsMarketDay(%v) = %v, want %v", c.date, got, c.want)
		}
	}
}

func TestTradingDaysSkipsClosures(t *testing.T) {
	// Jan 12 2024 (Fri) through Jan 16 2024 (Tue) spans a weekend and MLK day.
	days, err := TradingDays(20240112, 20240116)
	if err != nil {
		t.Fatalf("trading days: %v", err)
	}

	want := []Date{20240112, 20240116}
	if len(days) != len(want) {
		t.Fatalf("got %v, want %v", days, want)
	}

	for i := range want {
		if days[i] != want[i] {
			t.Fatalf("got %v, want %v", days, want)
		}
	}
}

func TestTradingDaysRejectsReversedRange(t *testing.T) {
	if _, err := TradingDays(20240116, 20240112); !errors.Is(err, exception.ErrInvalidRange) {
		t.Fatalf("want ErrInvalidRange, got %v", err)
	}
}

func TestTradingDaysEmptyWeekend(t *testing.T) {
	days, err := TradingDays(20240106, 20240107)
	if err != nil {
		t.Fatalf("trading days: %v", err)
	}

	if len(days) != 0 {
		t.Fatalf("weekend yielded %v", days)
	}
}

func TestIntervalString(t *testing.T) {
	cases := []struct {
		ms   int
		want string
	}{
		{0, "tick"},
		{30000, "30s"},
		{900000, "15m"},
		{3600000, "1h"},
		{86400000, "1d"},
	}

	for _, c := range cases {
		if got := IntervalString(c.ms); got != c.want {
			t.Fatalf("IntervalString(%d) = %s, want %s", c.ms, got, c.want)
		}
	}
}

func TestNthWeekdayMatchesKnownDates(t *testing.T) {
	// Labor Day 2025 is Monday September 1.
	if got := nthWeekday(2025, time.September, time.Monday, 1); FromTime(got) != 20250901 {
		t.Fatalf("labor day 2025 = %v", FromTime(got))
	}

	// Memorial Day 2025 is Monday May 26.
	if got := lastWeekday(2025, time.May, time.Monday); FromTime(got) != 20250526 {
		t.Fatalf("memorial day 2025 = %v", FromTime(got))
	}
}
