package partition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/calendar"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

// objectName is the terminal segment of every partition key.
const objectName = "data.bin"

// Key addresses one month partition of one dataset inside the object store.
// The string rendering is a stable contract: writers and readers must agree
// byte for byte.
//
//	historical-stock/eod/1d/AAPL/2024/01/data.bin
//	historical-options/quote/1h/AAPL/2024/01/data.bin
//	earnings/2024/01/data.bin
type Key struct {
	Dataset  schema.DatasetKind
	Symbol   string
	Interval int
	Month    YearMonth
}

// NewKey builds a normalized key. EOD datasets always store under the 1d
// segment regardless of the requested interval, and earnings keys carry no
// symbol or interval at all.
func NewKey(kind schema.DatasetKind, symbol string, interval int, month YearMonth) (Key, error) {
	switch kind {
	case schema.DatasetEarnings:
		symbol, interval = "", 0
	case schema.DatasetStockEOD, schema.DatasetOptionEOD:
		interval = 86400000
	}

	k := Key{Dataset: kind, Symbol: symbol, Interval: interval, Month: month}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}

	return k, nil
}

func (k Key) Validate() error {
	if !k.Dataset.IsAvailable() {
		return errors.Wrapf(exception.ErrUnknownDataset, "key dataset %d", k.Dataset)
	}

	if !k.Month.valid() {
		return errors.Wrapf(exception.ErrInvalidArgument, "key month %d", k.Month)
	}

	if k.Dataset == schema.DatasetEarnings {
		if k.Symbol != "" || k.Interval != 0 {
			return errors.Wrap(exception.ErrInvalidArgument, "earnings key carries symbol or interval")
		}

		return nil
	}

	if k.Symbol == "" || strings.Contains(k.Symbol, "/") {
		return errors.Wrapf(exception.ErrInvalidArgument, "key symbol %q", k.Symbol)
	}

	if k.Interval < 0 {
		return errors.Wrapf(exception.ErrInvalidInterval, "key interval %d", k.Interval)
	}

	return nil
}

func (k Key) String() string {
	if k.Dataset == schema.DatasetEarnings {
		return fmt.Sprintf("earnings/%04d/%02d/%s", k.Month.Year(), k.Month.Month(), objectName)
	}

	return fmt.Sprintf("%s/%s/%s/%s/%04d/%02d/%s",
		k.Dataset.Family(), k.Dataset.Endpoint(), calendar.IntervalString(k.Interval),
		k.Symbol, k.Month.Year(), k.Month.Month(), objectName)
}

// Parse is the exact inverse of String.
func Parse(s string) (Key, error) {
	parts := strings.Split(s, "/")

	switch {
	case len(parts) == 4 && parts[0] == "earnings":
		month, err := parseMonthParts(parts[1], parts[2])
		if err != nil {
			return Key{}, errors.Wrapf(err, "parse key %q", s)
		}

		if parts[3] != objectName {
			return Key{}, errors.Wrapf(exception.ErrInvalidArgument, "parse key %q: bad object name", s)
		}

		return NewKey(schema.DatasetEarnings, "", 0, month)

	case len(parts) == 7:
		kind, err := kindOf(parts[0], parts[1])
		if err != nil {
			return Key{}, errors.Wrapf(err, "parse key %q", s)
		}

		interval, err := calendar.ParseInterval(parts[2])
		if err != nil {
			return Key{}, errors.Wrapf(err, "parse key %q", s)
		}

		month, err := parseMonthParts(parts[4], parts[5])
		if err != nil {
			return Key{}, errors.Wrapf(err, "parse key %q", s)
		}

		if parts[6] != objectName {
			return Key{}, errors.Wrapf(exception.ErrInvalidArgument, "parse key %q: bad object name", s)
		}

		return NewKey(kind, parts[3], interval, month)

	default:
		return Key{}, errors.Wrapf(exception.ErrInvalidArgument, "parse key %q: bad segment count", s)
	}
}

func kindOf(family, endpoint string) (schema.DatasetKind, error) {
	for k := schema.DatasetStockQuote; k <= schema.DatasetEarnings; k++ {
		if k.Family() == family && k.Endpoint() == endpoint {
			return k, nil
		}
	}

	return 0, errors.Wrapf(exception.ErrUnknownDataset, "family %q endpoint %q", family, endpoint)
}

func parseMonthParts(year, month string) (YearMonth, error) {
	if len(year) != 4 || len(month) != 2 {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "month segments %q/%q", year, month)
	}

	y, err := strconv.Atoi(year)
	if err != nil {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "year segment %q", year)
	}

	m, err := strconv.Atoi(month)
	if err != nil {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "month segment %q", month)
	}

	return ParseYearMonth(y*100 + m)
}

// Keys lists the partition keys of every month from start to end inclusive,
// ascending.
func Keys(kind schema.DatasetKind, symbol string, interval int, start, end YearMonth) ([]Key, error) {
	months, err := Walk(start, end)
	if err != nil {
		return nil, err
	}

	keys := make([]Key, 0, len(months))
	for _, ym := range months {
		k, err := NewKey(kind, symbol, interval, ym)
		if err != nil {
			return nil, err
		}

		keys = append(keys, k)
	}

	return keys, nil
}

// Pattern returns the List prefix covering every month of one dataset, the
// wildcard form retrieval uses when no explicit range is given.
func Pattern(kind schema.DatasetKind, symbol string, interval int) string {
	if kind == schema.DatasetEarnings {
		return "earnings/"
	}

	if kind == schema.DatasetStockEOD || kind == schema.DatasetOptionEOD {
		interval = 86400000
	}

	return fmt.Sprintf("%s/%s/%s/%s/",
		kind.Family(), kind.Endpoint(), calendar.IntervalString(interval), symbol)
}
