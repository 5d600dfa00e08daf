package calendar

import (
	"fmt"
	"time"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/pkg/exception"
)

// Date is a calendar day encoded as a YYYYMMDD integer, the same form the
// provider APIs take in query parameters.
type Date int

func NewDate(year int, month time.Month, day int) Date {
	return Date(year*10000 + int(month)*100 + day)
}

func FromTime(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate validates a YYYYMMDD integer. Dates that do not exist on the
// calendar, like 20240230, are rejected.
func ParseDate(v int) (Date, error) {
	d := Date(v)
	if !d.valid() {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "date %d is not a calendar day", v)
	}

	return d, nil
}

func (d Date) Year() int         { return int(d) / 10000 }
func (d Date) Month() time.Month { return time.Month(int(d) / 100 % 100) }
func (d Date) Day() int          { return int(d) % 100 }

func (d Date) Time() time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func (d Date) valid() bool {
	return int(d) > 0 && FromTime(d.Time()) == d
}

func (d Date) String() string {
	return fmt.Sprintf("%08d", int(d))
}

// DashString renders YYYY-MM-DD, the form the earnings calendar endpoint
// takes.
func (d Date) DashString() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year(), d.Month(), d.Day())
}
