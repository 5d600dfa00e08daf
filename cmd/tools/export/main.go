// Command export reads committed partitions back out of the object store
// and writes the union as CSV, for spreadsheets and ad hoc analysis.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/betedge/edgelake/internal/calendar"
	"github.com/betedge/edgelake/internal/ops"
	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/scan"
	"github.com/betedge/edgelake/internal/schema"
)

func main() {
	configFlag := flag.String("config", "", "config file path (JSON); empty runs on defaults")
	datasetFlag := flag.String("dataset", "stock-quote", "dataset kind")
	symbolFlag := flag.String("symbol", "", "symbol (empty for earnings)")
	intervalFlag := flag.String("interval", "15m", "bar interval")
	startMonthFlag := flag.Int("start-month", 0, "start month yyyymm")
	endMonthFlag := flag.Int("end-month", 0, "end month yyyymm")
	allFlag := flag.Bool("all", false, "export every committed month")
	onMissingFlag := flag.String("on-missing", "skip", "absent partition policy: fail or skip")
	outFlag := flag.String("out", "-", "output file, - for stdout")
	flag.Parse()

	kind, err := schema.ParseDatasetKind(*datasetFlag)
	if err != nil {
		log.Fatalf("bad dataset: %v", err)
	}

	interval, err := calendar.ParseInterval(*intervalFlag)
	if err != nil {
		log.Fatalf("bad interval: %v", err)
	}

	policy, err := scan.ParseMissingPolicy(*onMissingFlag)
	if err != nil {
		log.Fatalf("bad policy: %v", err)
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

	scanner, err := scan.New(st, policy)
	if err != nil {
		log.Fatalf("new scanner: %v", err)
	}

	res, err := scanner.Retrieve(ctx, scan.RetrieveRequest{
		Dataset:    kind,
		Symbol:     *symbolFlag,
		Interval:   interval,
		StartMonth: partition.YearMonth(*startMonthFlag),
		EndMonth:   partition.YearMonth(*endMonthFlag),
		All:        *allFlag,
	})
	if err != nil {
		log.Fatalf("retrieve: %v", err)
	}

	out := io.Writer(os.Stdout)
	if *outFlag != "-" {
		f, err := os.Create(*outFlag)
		if err != nil {
			log.Fatalf("create %s: %v", *outFlag, err)
		}
		defer f.Close()
		out = f
	}

	if err := writeCSV(out, res.Table); err != nil {
		log.Fatalf("write csv: %v", err)
	}

	log.Printf("%d rows from %d partitions, %d missing",
		res.Table.NumRows(), len(res.Found), len(res.Missing))
}

func writeCSV(w io.Writer, table *schema.Table) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(table.Spec().Names()); err != nil {
		return err
	}

	record := make([]string, table.NumCols())
	for row := 0; row < table.NumRows(); row++ {
		for col, spec := range table.Spec().Columns {
			vec := table.Column(col)

			switch spec.Type {
			case schema.ColumnInt16:
				record[col] = strconv.FormatInt(int64(vec.Int16s()[row]), 10)
			case schema.ColumnInt32:
				record[col] = strconv.FormatInt(int64(vec.Int32s()[row]), 10)
			case schema.ColumnInt64:
				record[col] = strconv.FormatInt(vec.Int64s()[row], 10)
			case schema.ColumnFloat64:
				record[col] = strconv.FormatFloat(vec.Float64s()[row], 'f', -1, 64)
			case schema.ColumnString:
				record[col] = vec.Strings()[row]
			}
		}

		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func loadConfig(path string) (ops.Config, error) {
	if path == "" {
		return ops.Default(), nil
	}

	return ops.Load(path)
}
