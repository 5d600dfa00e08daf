// Command cleanup removes committed partitions so a range can be
// re-ingested from scratch. Dry run by default; -yes deletes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/calendar"
	"github.com/betedge/edgelake/internal/ops"
	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/internal/store"
	"github.com/betedge/edgelake/pkg/exception"
)

func main() {
	configFlag := flag.String("config", "", "config file path (JSON); empty runs on defaults")
	datasetFlag := flag.String("dataset", "stock-quote", "dataset kind")
	symbolFlag := flag.String("symbol", "", "symbol (empty for earnings)")
	intervalFlag := flag.String("interval", "15m", "bar interval")
	startMonthFlag := flag.Int("start-month", 0, "start month yyyymm")
	endMonthFlag := flag.Int("end-month", 0, "end month yyyymm")
	allFlag := flag.Bool("all", false, "target every committed month")
	yesFlag := flag.Bool("yes", false, "actually delete; without it only print targets")
	flag.Parse()

	kind, err := schema.ParseDatasetKind(*datasetFlag)
	if err != nil {
		log.Fatalf("bad dataset: %v", err)
	}

	interval, err := calendar.ParseInterval(*intervalFlag)
	if err != nil {
		log.Fatalf("bad interval: %v", err)
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

	targets, err := resolveTargets(ctx, st, kind, *symbolFlag, interval,
		*startMonthFlag, *endMonthFlag, *allFlag)
	if err != nil {
		log.Fatalf("resolve targets: %v", err)
	}

	if len(targets) == 0 {
		fmt.Println("nothing to remove")
		return
	}

	removed := 0
	for _, key := range targets {
		exists, err := st.Exists(ctx, key)
		if err != nil {
			log.Fatalf("probe %s: %v", key, err)
		}
		if !exists {
			continue
		}

		if !*yesFlag {
			fmt.Printf("would remove %s\n", key)
			removed++
			continue
		}

		if err := st.Remove(ctx, key); err != nil {
			log.Fatalf("remove %s: %v", key, err)
		}

		fmt.Printf("removed %s\n", key)
		removed++
	}

	if !*yesFlag && removed > 0 {
		fmt.Printf("%d partitions; rerun with -yes to delete\n", removed)
	}
}

func resolveTargets(ctx context.Context, st store.ObjectStore, kind schema.DatasetKind, symbol string, interval, startMonth, endMonth int, all bool) ([]string, error) {
	if all {
		return st.List(ctx, partition.Pattern(kind, symbol, interval))
	}

	if startMonth == 0 || endMonth == 0 {
		return nil, errors.Wrap(exception.ErrInvalidRange, "need -start-month and -end-month, or -all")
	}

	keys, err := partition.Keys(kind, symbol, interval,
		partition.YearMonth(startMonth), partition.YearMonth(endMonth))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, key.String())
	}

	return names, nil
}

func loadConfig(path string) (ops.Config, error) {
	if path == "" {
		return ops.Default(), nil
	}

	return ops.Load(path)
}
