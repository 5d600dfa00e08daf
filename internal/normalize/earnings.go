package normalize

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/market"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

// asOfLayout is the calendar header date, e.g. "Mon, Sep 29, 2025".
const asOfLayout = "Mon, Jan 2, 2006"

// normalizeEarnings parses a Nasdaq earnings calendar payload. The calendar
// answers days without earnings with a null data block or an empty rows
// array; both normalize to a zero-row table.
func normalizeEarnings(body []byte, _ market.SubRequest) (*schema.Table, error) {
	spec, err := schema.SpecFor(schema.DatasetEarnings)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return schema.Empty(spec)
	}

	if !gjson.ValidBytes(body) {
		return nil, errors.Wrap(exception.ErrSchemaMismatch, "earnings payload is not json")
	}

	data := gjson.ParseBytes(body).Get("data")
	if !data.Exists() || data.Type == gjson.Null {
		return schema.Empty(spec)
	}

	rows := data.Get("rows").Array()
	if len(rows) == 0 {
		return schema.Empty(spec)
	}

	date, err := transformAsOf(data.Get("asOf").String())
	if err != nil {
		return nil, err
	}

	b, err := schema.NewBuilder(spec)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if err := appendEarningsRow(b, date, row); err != nil {
			return nil, err
		}
	}

	return b.Build()
}

func appendEarningsRow(b *schema.Builder, date string, row gjson.Result) error {
	if err := b.AppendString(0, date); err != nil {
		return err
	}

	if err := b.AppendString(1, strings.TrimSpace(row.Get("symbol").String())); err != nil {
		return err
	}

	if err := b.AppendString(2, strings.TrimSpace(row.Get("name").String())); err != nil {
		return err
	}

	if err := b.AppendString(3, parseReportTime(row.Get("time").String())); err != nil {
		return err
	}

	if err := b.AppendFloat64(4, parseCurrency(row.Get("eps").String())); err != nil {
		return err
	}

	if err := b.AppendFloat64(5, parseCurrency(row.Get("epsForecast").String())); err != nil {
		return err
	}

	if err := b.AppendFloat64(6, parsePercent(row.Get("surprise").String())); err != nil {
		return err
	}

	if err := b.AppendInt64(7, parseMarketCap(row.Get("marketCap").String())); err != nil {
		return err
	}

	if err := b.AppendString(8, strings.TrimSpace(row.Get("fiscalQuarterEnding").String())); err != nil {
		return err
	}

	return b.AppendInt64(9, parseEstimateCount(row.Get("noOfEsts").String()))
}

// transformAsOf converts the calendar header date into the canonical
// YYYY-MM-DD form every row of the table carries.
func transformAsOf(s string) (string, error) {
	t, err := time.Parse(asOfLayout, strings.TrimSpace(s))
	if err != nil {
		return "", errors.Wrapf(exception.ErrSchemaMismatch, "asOf date %q", s)
	}

	return t.Format("2006-01-02"), nil
}

// parseCurrency reads Nasdaq money strings like "$1,234.56" or "($0.43)",
// where parentheses mean negative. Missing or malformed values become zero.
func parseCurrency(s string) float64 {
	s = cleanMoney(s)
	if s == "" {
		return 0
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	if neg {
		return -v
	}

	return v
}

func parsePercent(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") {
		return 0
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	return v
}

// parseMarketCap truncates the dollar figure to whole dollars.
func parseMarketCap(s string) int64 {
	s = cleanMoney(s)
	if s == "" {
		return 0
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	return int64(v)
}

func parseEstimateCount(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") {
		return 0
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return v
}

// parseReportTime keeps the Nasdaq slot labels but drops the placeholder.
func parseReportTime(s string) string {
	s = strings.TrimSpace(s)
	if s == "time-not-supplied" {
		return ""
	}

	return s
}

func cleanMoney(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") {
		return ""
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")

	return strings.TrimSpace(s)
}
