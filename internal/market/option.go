package market

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/betedge/edgelake/internal/calendar"
	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/schema"
)

// OptionRequest ingests the historical option chain of one underlying over
// an inclusive date range. Every month commits the underlying stock rows
// alongside the option rows. Quote requests expand into a leg pair per
// trading day, the stock leg slotted before that day's bulk option leg;
// EOD requests batch each month into a single leg pair.
type OptionRequest struct {
	Root         string
	Start        calendar.Date
	End          calendar.Date
	Endpoint     string
	Interval     int
	ForceRefresh bool
}

func (r OptionRequest) Kind() schema.DatasetKind {
	if r.Endpoint == EndpointEOD {
		return schema.DatasetOptionEOD
	}

	return schema.DatasetOptionQuote
}

func (r OptionRequest) Symbol() string { return r.Root }
func (r OptionRequest) Refresh() bool  { return r.ForceRefresh }

func (r OptionRequest) Validate() error {
	return validateHistorical(r.Root, r.Start, r.End, r.Endpoint, r.Interval)
}

func (r OptionRequest) Plan(ep Endpoints) ([]MonthPlan, error) {
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

		first, last := g.days[0], g.days[len(g.days)-1]

		var subs []SubRequest
		if r.Endpoint == EndpointEOD {
			subs = append(subs,
				SubRequest{
					URL:        stockURL(ep.ThetaBaseURL, r.Endpoint, r.Root, r.Interval, first, last),
					Encoding:   EncodingCSV,
					Kind:       r.Kind(),
					Key:        key,
					Underlying: true,
				},
				SubRequest{
					URL:      optionURL(ep.ThetaBaseURL, r.Endpoint, r.Root, r.Interval, first, last),
					Encoding: EncodingCSV,
					Kind:     r.Kind(),
					Key:      key,
				},
			)
		} else {
			subs = make([]SubRequest, 0, 2*len(g.days))
			for _, d := range g.days {
				subs = append(subs,
					SubRequest{
						URL:        stockURL(ep.ThetaBaseURL, r.Endpoint, r.Root, r.Interval, d, d),
						Encoding:   EncodingCSV,
						Kind:       r.Kind(),
						Key:        key,
						Underlying: true,
					},
					SubRequest{
						URL:      optionURL(ep.ThetaBaseURL, r.Endpoint, r.Root, r.Interval, d, d),
						Encoding: EncodingCSV,
						Kind:     r.Kind(),
						Key:      key,
					},
				)
			}
		}

		plans = append(plans, MonthPlan{Key: key, Subs: subs})
	}

	return plans, nil
}

func (r OptionRequest) String() string {
	return fmt.Sprintf("%s %s %s..%s", r.Kind(), r.Root, r.Start, r.End)
}

// optionURL builds the bulk option chain URL for an inclusive date range.
// The zero exp selects every expiration at once.
func optionURL(base, endpoint, root string, interval int, start, end calendar.Date) string {
	q := url.Values{}
	q.Set("root", root)
	q.Set("exp", "0")
	q.Set("use_csv", "true")
	q.Set("start_date", start.String())
	q.Set("end_date", end.String())

	if endpoint != EndpointEOD {
		q.Set("ivl", strconv.Itoa(interval))
	}

	return base + "/bulk_hist/option/" + endpoint + "?" + q.Encode()
}
