package market

import (
	"strings"
	"testing"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

func TestStockPlanOneSubPerTradingDay(t *testing.T) {
	req := StockRequest{
		Root:     "SPY",
		Start:    20240112,
		End:      20240116,
		Endpoint: EndpointQuote,
		Interval: 900000,
	}

	plans, err := req.Plan(DefaultEndpoints())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	// Jan 12 (Fri) and Jan 16 (Tue); the weekend and MLK day drop out.
	if len(plans) != 1 {
		t.Fatalf("got %d plans, want 1", len(plans))
	}

	p := plans[0]
	if p.Key.String() != "historical-stock/quote/15m/SPY/2024/01/data.bin" {
		t.Fatalf("key = %s", p.Key)
	}

	if len(p.Subs) != 2 {
		t.Fatalf("got %d subs, want 2", len(p.Subs))
	}

	first := p.Subs[0]
	if !strings.Contains(first.URL, "/hist/stock/quote?") {
		t.Fatalf("url = %s", first.URL)
	}

	for _, want := range []string{"root=SPY", "ivl=900000", "use_csv=true", "start_date=20240112", "end_date=20240112"} {
		if !strings.Contains(first.URL, want) {
			t.Fatalf("url %s missing %s", first.URL, want)
		}
	}

	if first.Encoding != EncodingCSV || first.Kind != schema.DatasetStockQuote {
		t.Fatalf("sub = %+v", first)
	}
}

func TestStockPlanEODDropsInterval(t *testing.T) {
	req := StockRequest{
		Root:     "SPY",
		Start:    20240105,
		End:      20240105,
		Endpoint: EndpointEOD,
		Interval: 900000,
	}

	plans, err := req.Plan(DefaultEndpoints())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if len(plans[0].Subs) != 1 {
		t.Fatalf("got %d subs, want 1", len(plans[0].Subs))
	}

	u := plans[0].Subs[0].URL
	if strings.Contains(u, "ivl=") {
		t.Fatalf("eod url carries ivl: %s", u)
	}

	if !strings.Contains(u, "/hist/stock/eod?") {
		t.Fatalf("url = %s", u)
	}

	if plans[0].Key.String() != "historical-stock/eod/1d/SPY/2024/01/data.bin" {
		t.Fatalf("key = %s", plans[0].Key)
	}
}

func TestStockPlanEODBatchesEachMonth(t *testing.T) {
	req := StockRequest{
		Root:     "SPY",
		Start:    20231228,
		End:      20240103,
		Endpoint: EndpointEOD,
	}

	plans, err := req.Plan(DefaultEndpoints())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if len(plans) != 2 {
		t.Fatalf("got %d plans, want 2", len(plans))
	}

	if plans[0].Key.Month != 202312 || plans[1].Key.Month != 202401 {
		t.Fatalf("months = %v, %v", plans[0].Key.Month, plans[1].Key.Month)
	}

	// One ranged fetch per month covering its trading days: Dec 28..29,
	// then Jan 2..3 after the New Year holiday.
	if len(plans[0].Subs) != 1 || len(plans[1].Subs) != 1 {
		t.Fatalf("sub counts = %d, %d", len(plans[0].Subs), len(plans[1].Subs))
	}

	for _, want := range []string{"start_date=20231228", "end_date=20231229"} {
		if !strings.Contains(plans[0].Subs[0].URL, want) {
			t.Fatalf("dec url %s missing %s", plans[0].Subs[0].URL, want)
		}
	}

	for _, want := range []string{"start_date=20240102", "end_date=20240103"} {
		if !strings.Contains(plans[1].Subs[0].URL, want) {
			t.Fatalf("jan url %s missing %s", plans[1].Subs[0].URL, want)
		}
	}
}

func TestOptionPlanPairsUnderlyingFirst(t *testing.T) {
	req := OptionRequest{
		Root:     "AAPL",
		Start:    20240104,
		End:      20240105,
		Endpoint: EndpointQuote,
		Interval: 3600000,
	}

	plans, err := req.Plan(DefaultEndpoints())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if len(plans) != 1 {
		t.Fatalf("got %d plans, want 1", len(plans))
	}

	subs := plans[0].Subs
	if len(subs) != 4 {
		t.Fatalf("got %d subs, want 4 (two days, two legs)", len(subs))
	}

	// Each day slots its stock leg before its option leg.
	for i := 0; i < len(subs); i += 2 {
		stock, option := subs[i], subs[i+1]
		if !stock.Underlying || !strings.Contains(stock.URL, "/hist/stock/quote?") {
			t.Fatalf("sub %d is not the stock leg: %+v", i, stock)
		}

		if stock.Kind != schema.DatasetOptionQuote {
			t.Fatalf("stock leg keeps option kind, got %v", stock.Kind)
		}

		if option.Underlying || !strings.Contains(option.URL, "/bulk_hist/option/quote?") {
			t.Fatalf("sub %d is not the option leg: %+v", i+1, option)
		}
	}

	day1, day2 := subs[1].URL, subs[3].URL
	if !strings.Contains(day1, "start_date=20240104") || !strings.Contains(day2, "start_date=20240105") {
		t.Fatalf("option legs out of day order: %s, %s", day1, day2)
	}

	if plans[0].Key.String() != "historical-options/quote/1h/AAPL/2024/01/data.bin" {
		t.Fatalf("key = %s", plans[0].Key)
	}
}

func TestOptionPlanEODOneLegPairPerMonth(t *testing.T) {
	req := OptionRequest{
		Root:     "AAPL",
		Start:    20240102,
		End:      20240229,
		Endpoint: EndpointEOD,
	}

	plans, err := req.Plan(DefaultEndpoints())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if len(plans) != 2 {
		t.Fatalf("got %d plans, want 2", len(plans))
	}

	for i, p := range plans {
		if len(p.Subs) != 2 {
			t.Fatalf("month %d: got %d subs, want 2", i, len(p.Subs))
		}

		stock, option := p.Subs[0], p.Subs[1]
		if !stock.Underlying || !strings.Contains(stock.URL, "/hist/stock/eod?") {
			t.Fatalf("month %d stock leg = %+v", i, stock)
		}

		if option.Underlying || !strings.Contains(option.URL, "/bulk_hist/option/eod?") {
			t.Fatalf("month %d option leg = %+v", i, option)
		}

		if stock.Kind != schema.DatasetOptionEOD || option.Kind != schema.DatasetOptionEOD {
			t.Fatalf("month %d kinds = %v, %v", i, stock.Kind, option.Kind)
		}
	}

	for _, want := range []string{"start_date=20240102", "end_date=20240131"} {
		if !strings.Contains(plans[0].Subs[1].URL, want) {
			t.Fatalf("jan url %s missing %s", plans[0].Subs[1].URL, want)
		}
	}

	for _, want := range []string{"start_date=20240201", "end_date=20240229"} {
		if !strings.Contains(plans[1].Subs[1].URL, want) {
			t.Fatalf("feb url %s missing %s", plans[1].Subs[1].URL, want)
		}
	}
}

func TestEarningsPlanCoversWholeEndMonth(t *testing.T) {
	req := EarningsRequest{StartMonth: 202401, EndMonth: 202402}

	plans, err := req.Plan(DefaultEndpoints())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if len(plans) != 2 {
		t.Fatalf("got %d plans, want 2", len(plans))
	}

	// January 2024 has 21 trading days, February 20.
	if len(plans[0].Subs) != 21 || len(plans[1].Subs) != 20 {
		t.Fatalf("sub counts = %d, %d", len(plans[0].Subs), len(plans[1].Subs))
	}

	sub := plans[0].Subs[0]
	if !strings.Contains(sub.URL, "date=2024-01-02") {
		t.Fatalf("first url = %s", sub.URL)
	}

	if sub.Encoding != EncodingJSON {
		t.Fatalf("encoding = %v, want JSON", sub.Encoding)
	}

	if sub.Header.Get("User-Agent") == "" || sub.Header.Get("Origin") != "https://www.nasdaq.com" {
		t.Fatalf("browser header missing: %v", sub.Header)
	}

	if plans[1].Key.String() != "earnings/2024/02/data.bin" {
		t.Fatalf("key = %s", plans[1].Key)
	}
}

func TestValidateRejectsMissingRange(t *testing.T) {
	req := StockRequest{Root: "SPY", Endpoint: EndpointQuote}
	if err := req.Validate(); !errors.Is(err, exception.ErrInvalidRange) {
		t.Fatalf("want ErrInvalidRange, got %v", err)
	}

	req = StockRequest{Root: "SPY", Endpoint: EndpointQuote, Start: 20240105, End: 20240101}
	if err := req.Validate(); !errors.Is(err, exception.ErrInvalidRange) {
		t.Fatalf("reversed range: want ErrInvalidRange, got %v", err)
	}

	earn := EarningsRequest{EndMonth: 202402}
	if err := earn.Validate(); !errors.Is(err, exception.ErrInvalidRange) {
		t.Fatalf("earnings missing start: want ErrInvalidRange, got %v", err)
	}
}

func TestValidateRejectsBadArguments(t *testing.T) {
	cases := []StockRequest{
		{Root: "", Start: 20240105, End: 20240105, Endpoint: EndpointQuote},
		{Root: "SPY", Start: 20240105, End: 20240105, Endpoint: "greeks"},
		{Root: "SP/Y", Start: 20240105, End: 20240105, Endpoint: EndpointQuote},
		{Root: "SPY", Start: 20240230, End: 20240301, Endpoint: EndpointQuote},
	}

	for i, req := range cases {
		if err := req.Validate(); err == nil {
			t.Fatalf("case %d validated, want error", i)
		}
	}
}

func TestPlanWeekendOnlyRangeIsEmpty(t *testing.T) {
	req := StockRequest{
		Root:     "SPY",
		Start:    20240106,
		End:      20240107,
		Endpoint: EndpointQuote,
		Interval: 900000,
	}

	plans, err := req.Plan(DefaultEndpoints())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if len(plans) != 0 {
		t.Fatalf("weekend range produced %d plans", len(plans))
	}
}
