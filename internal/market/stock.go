package market

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/calendar"
	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

// Provider endpoints a historical request can hit.
const (
	EndpointQuote = "quote"
	EndpointEOD   = "eod"
)

// StockRequest ingests historical stock data for one symbol over an
// inclusive date range. Quote requests expand into one fetch unit per
// trading day; EOD requests batch each month into a single unit.
type StockRequest struct {
	Root         string
	Start        calendar.Date
	End          calendar.Date
	Endpoint     string
	Interval     int
	ForceRefresh bool
}

func (r StockRequest) Kind() schema.DatasetKind {
	if r.Endpoint == EndpointEOD {
		return schema.DatasetStockEOD
	}

	return schema.DatasetStockQuote
}

func (r StockRequest) Symbol() string { return r.Root }
func (r StockRequest) Refresh() bool  { return r.ForceRefresh }

func (r StockRequest) Validate() error {
	return validateHistorical(r.Root, r.Start, r.End, r.Endpoint, r.Interval)
}

func (r StockRequest) Plan(ep Endpoints) ([]MonthPlan, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	days, err := calendar.TradingDays(r.Start, r.End)
	if err != nil {
		return nil, err
	}

	var plans []MonthPlan
	for _, g := range groupByMonth(days) {
		key, err := partition.NewKey(r.Kind(), r.Root, r.Interval, g.month)
		if err != nil {
			return nil, err
		}

		var subs []SubRequest
		if r.Endpoint == EndpointEOD {
			subs = append(subs, SubRequest{
				URL:      stockURL(ep.ThetaBaseURL, r.Endpoint, r.Root, r.Interval, g.days[0], g.days[len(g.days)-1]),
				Encoding: EncodingCSV,
				Kind:     r.Kind(),
				Key:      key,
			})
		} else {
			subs = make([]SubRequest, 0, len(g.days))
			for _, d := range g.days {
				subs = append(subs, SubRequest{
					URL:      stockURL(ep.ThetaBaseURL, r.Endpoint, r.Root, r.Interval, d, d),
					Encoding: EncodingCSV,
					Kind:     r.Kind(),
					Key:      key,
				})
			}
		}

		plans = append(plans, MonthPlan{Key: key, Subs: subs})
	}

	return plans, nil
}

func (r StockRequest) String() string {
	return fmt.Sprintf("%s %s %s..%s", r.Kind(), r.Root, r.Start, r.End)
}

func validateHistorical(root string, start, end calendar.Date, endpoint string, interval int) error {
	if root == "" || strings.Contains(root, "/") {
		return errors.Wrapf(exception.ErrInvalidArgument, "root %q", root)
	}

	if endpoint != EndpointQuote && endpoint != EndpointEOD {
		return errors.Wrapf(exception.ErrInvalidArgument, "endpoint %q", endpoint)
	}

	if start == 0 {
		return errors.Wrap(exception.ErrInvalidRange, "missing start date")
	}

	if end == 0 {
		return errors.Wrap(exception.ErrInvalidRange, "missing end date")
	}

	if _, err := calendar.ParseDate(int(start)); err != nil {
		return errors.Wrap(err, "start date")
	}

	if _, err := calendar.ParseDate(int(end)); err != nil {
		return errors.Wrap(err, "end date")
	}

	if end < start {
		return errors.Wrapf(exception.ErrInvalidRange, "end %s before start %s", end, start)
	}

	if interval < 0 {
		return errors.Wrapf(exception.ErrInvalidInterval, "interval %d", interval)
	}

	return nil
}

// stockURL builds the stock history URL for an inclusive date range. EOD
// responses have no bar interval, so the ivl parameter is dropped there.
func stockURL(base, endpoint, root string, interval int, start, end calendar.Date) string {
	q := url.Values{}
	q.Set("root", root)
	q.Set("exp", "0")
	q.Set("use_csv", "true")
	q.Set("start_date", start.String())
	q.Set("end_date", end.String())

	if endpoint != EndpointEOD {
		q.Set("ivl", strconv.Itoa(interval))
	}

	return base + "/hist/stock/" + endpoint + "?" + q.Encode()
}

type monthGroup struct {
	month partition.YearMonth
	days  []calendar.Date
}

// groupByMonth splits an ascending day list into contiguous month runs,
// preserving order.
func groupByMonth(days []calendar.Date) []monthGroup {
	var groups []monthGroup
	for _, d := range days {
		ym := partition.MonthOf(d)
		if len(groups) == 0 || groups[len(groups)-1].month != ym {
			groups = append(groups, monthGroup{month: ym})
		}

		last := &groups[len(groups)-1]
		last.days = append(last.days, d)
	}

	return groups
}
