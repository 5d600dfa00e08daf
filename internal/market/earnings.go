package market

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/calendar"
	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

// EarningsRequest ingests the earnings calendar for an inclusive month
// range. One fetch unit per trading day; the calendar endpoint only answers
// per date.
type EarningsRequest struct {
	StartMonth   partition.YearMonth
	EndMonth     partition.YearMonth
	ForceRefresh bool
}

func (r EarningsRequest) Kind() schema.DatasetKind { return schema.DatasetEarnings }
func (r EarningsRequest) Symbol() string           { return "" }
func (r EarningsRequest) Refresh() bool            { return r.ForceRefresh }

func (r EarningsRequest) Validate() error {
	if r.StartMonth == 0 {
		return errors.Wrap(exception.ErrInvalidRange, "missing start month")
	}

	if r.EndMonth == 0 {
		return errors.Wrap(exception.ErrInvalidRange, "missing end month")
	}

	if _, err := partition.ParseYearMonth(int(r.StartMonth)); err != nil {
		return errors.Wrap(err, "start month")
	}

	if _, err := partition.ParseYearMonth(int(r.EndMonth)); err != nil {
		return errors.Wrap(err, "end month")
	}

	if r.EndMonth < r.StartMonth {
		return errors.Wrapf(exception.ErrInvalidRange, "end %s before start %s", r.EndMonth, r.StartMonth)
	}

	return nil
}

func (r EarningsRequest) Plan(ep Endpoints) ([]MonthPlan, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	days, err := calendar.TradingDays(r.StartMonth.First(), r.EndMonth.Last())
	if err != nil {
		return nil, err
	}

	var plans []MonthPlan
	for _, g := range groupByMonth(days) {
		key, err := partition.NewKey(schema.DatasetEarnings, "", 0, g.month)
		if err != nil {
			return nil, err
		}

		subs := make([]SubRequest, 0, len(g.days))
		for _, d := range g.days {
			subs = append(subs, SubRequest{
				URL:      earningsURL(ep.EarningsBaseURL, d),
				Header:   earningsHeader(),
				Encoding: EncodingJSON,
				Kind:     schema.DatasetEarnings,
				Key:      key,
			})
		}

		plans = append(plans, MonthPlan{Key: key, Subs: subs})
	}

	return plans, nil
}

func (r EarningsRequest) String() string {
	return fmt.Sprintf("earnings %s..%s", r.StartMonth, r.EndMonth)
}

func earningsURL(base string, day calendar.Date) string {
	q := url.Values{}
	q.Set("date", day.DashString())

	return base + "?" + q.Encode()
}

// earningsHeader mimics a browser session. The calendar endpoint rejects
// plain client requests.
func earningsHeader() http.Header {
	h := http.Header{}
	h.Set("Authority", "api.nasdaq.com")
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/83.0.4103.116 Safari/537.36")
	h.Set("Origin", "https://www.nasdaq.com")
	h.Set("Sec-Fetch-Site", "same-site")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Referer", "https://www.nasdaq.com/")
	h.Set("Accept-Language", "en-US,en;q=0.9")

	return h
}
