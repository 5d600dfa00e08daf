// Command backfill drives bulk ingests straight through the pipeline,
// bypassing the manager API. One synchronous job per symbol, sequential so
// the upstream terminal never sees more than one job's worth of load.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/calendar"
	"github.com/betedge/edgelake/internal/dispatch"
	"github.com/betedge/edgelake/internal/fetch"
	"github.com/betedge/edgelake/internal/market"
	"github.com/betedge/edgelake/internal/ops"
	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

func main() {
	configFlag := flag.String("config", "", "config file path (JSON); empty runs on defaults")
	datasetFlag := flag.String("dataset", "stock-quote", "dataset kind: stock-quote, stock-eod, option-quote, option-eod, earnings")
	symbolsFlag := flag.String("symbols", "", "comma separated symbols (historical datasets)")
	startFlag := flag.Int("start", 0, "start date yyyymmdd")
	endFlag := flag.Int("end", 0, "end date yyyymmdd")
	intervalFlag := flag.String("interval", "15m", "bar interval, e.g. 30s, 15m, 1h")
	startMonthFlag := flag.Int("start-month", 0, "start month yyyymm (earnings)")
	endMonthFlag := flag.Int("end-month", 0, "end month yyyymm (earnings)")
	forceFlag := flag.Bool("force", false, "refetch partitions that already exist")
	flag.Parse()

	kind, err := schema.ParseDatasetKind(*datasetFlag)
	if err != nil {
		log.Fatalf("bad dataset: %v", err)
	}

	interval, err := calendar.ParseInterval(*intervalFlag)
	if err != nil {
		log.Fatalf("bad interval: %v", err)
	}

	requests, err := buildRequests(kind, *symbolsFlag, *startFlag, *endFlag, interval,
		*startMonthFlag, *endMonthFlag, *forceFlag)
	if err != nil {
		log.Fatalf("bad request: %v", err)
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := ops.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	provider := fetch.New(fetch.Config{
		Timeout:  cfg.Theta.Timeout(),
		Attempts: cfg.Theta.Attempts,
		ProbeURL: cfg.Theta.ProbeURL,
	})

	dispatcher, err := dispatch.New(dispatch.Config{
		Workers:   cfg.Dispatch.Workers,
		QueueSize: cfg.Dispatch.QueueSize,
		Endpoints: market.Endpoints{
			ThetaBaseURL:    cfg.Theta.BaseURL,
			EarningsBaseURL: cfg.Earnings.BaseURL,
		},
		Provider: provider,
		Store:    st,
	})
	if err != nil {
		log.Fatalf("new dispatcher: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	<-dispatcher.Running()

	failed := 0
	for _, req := range requests {
		if ctx.Err() != nil {
			break
		}

		if !ingest(ctx, dispatcher, req) {
			failed++
		}
	}

	stop()
	wg.Wait()

	if failed > 0 {
		log.Fatalf("%d of %d requests failed", failed, len(requests))
	}
}

// ingest submits one request synchronously and reports the outcome. A
// partially failed job still counts as a failure here even though its
// healthy slots committed.
func ingest(ctx context.Context, d *dispatch.Dispatcher, req market.LogicalRequest) bool {
	ticket, err := d.Submit(ctx, req, dispatch.ModeSync)
	if err != nil {
		if errors.Is(err, exception.ErrNothingToFetch) {
			fmt.Printf("%-40s already ingested\n", req)
			return true
		}

		log.Printf("%s: %v", req, err)
		return false
	}

	status, err := d.Poll(ticket.JobID)
	if err != nil {
		log.Printf("%s: poll: %v", req, err)
		return false
	}

	if jobErr := ticket.Err(); jobErr != nil {
		log.Printf("%s: %d/%d slots, %d failed: %v",
			req, status.Completed, status.Total, len(status.Failures), jobErr)
		return false
	}

	fmt.Printf("%-40s %d slots into %d partitions\n", req, status.Total, len(ticket.Keys))
	return true
}

func buildRequests(kind schema.DatasetKind, symbolList string, start, end, interval, startMonth, endMonth int, force bool) ([]market.LogicalRequest, error) {
	if kind == schema.DatasetEarnings {
		return []market.LogicalRequest{market.EarningsRequest{
			StartMonth:   partition.YearMonth(startMonth),
			EndMonth:     partition.YearMonth(endMonth),
			ForceRefresh: force,
		}}, nil
	}

	var symbols []string
	for _, s := range strings.Split(symbolList, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, strings.ToUpper(s))
		}
	}
	if len(symbols) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "no symbols; use -symbols")
	}

	requests := make([]market.LogicalRequest, 0, len(symbols))
	for _, symbol := range symbols {
		switch kind {
		case schema.DatasetStockQuote, schema.DatasetStockEOD:
			requests = append(requests, market.StockRequest{
				Root:         symbol,
				Start:        calendar.Date(start),
				End:          calendar.Date(end),
				Endpoint:     kind.Endpoint(),
				Interval:     interval,
				ForceRefresh: force,
			})
		case schema.DatasetOptionQuote, schema.DatasetOptionEOD:
			requests = append(requests, market.OptionRequest{
				Root:         symbol,
				Start:        calendar.Date(start),
				End:          calendar.Date(end),
				Endpoint:     kind.Endpoint(),
				Interval:     interval,
				ForceRefresh: force,
			})
		}
	}

	return requests, nil
}

func loadConfig(path string) (ops.Config, error) {
	if path == "" {
		return ops.Default(), nil
	}

	return ops.Load(path)
}
