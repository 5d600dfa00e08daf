package normalize

import (
	"testing"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/market"
	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

const stockQuoteCSV = `ms_of_day,bid_size,bid_exchange,bid,bid_condition,ask_size,ask_exchange,ask,ask_condition,date
34200000,2,1,187.10,50,3,1,187.15,50,20240102
34201000,4,1,187.12,50,1,7,187.18,50,20240102
`

const stockEODCSV = `ms_of_day,ms_of_day_2,open,high,low,close,volume,count,bid_size,bid_exchange,bid,bid_condition,ask_size,ask_exchange,ask,ask_condition,date
0,57600000,187.15,189.11,185.83,188.63,82488674,711520,4,1,188.60,50,2,1,188.65,50,20240102
`

const optionQuoteCSV = `root,expiration,strike,right,ms_of_day,bid_size,bid_exchange,bid,bid_condition,ask_size,ask_exchange,ask,ask_condition,date
AAPL,20240119,190000,C,34200000,120,5,2.31,50,98,5,2.35,50,20240102
AAPL,20240119,190000,P,34200000,45,5,4.10,50,60,5,4.20,50,20240102
`

func stockSub(t *testing.T, kind schema.DatasetKind) market.SubRequest {
	t.Helper()

	key, err := partition.NewKey(kind, "AAPL", 60000, 202401)
	if err != nil {
		t.Fatalf("new key: %+v", err)
	}

	return market.SubRequest{Encoding: market.EncodingCSV, Kind: kind, Key: key}
}

func TestNormalizeStockQuote(t *testing.T) {
	sub := stockSub(t, schema.DatasetStockQuote)

	table, err := Normalize([]byte(stockQuoteCSV), sub)
	if err != nil {
		t.Fatalf("normalize: %+v", err)
	}

	if table.NumRows() != 2 || table.NumCols() != 10 {
		t.Fatalf("got %dx%d, want 2x10", table.NumRows(), table.NumCols())
	}

	if got := table.Column(0).Int64s()[0]; got != 34200000 {
		t.Fatalf("ms_of_day[0] = %d, want 34200000", got)
	}

	if got := table.Column(3).Float64s()[1]; got != 187.12 {
		t.Fatalf("bid[1] = %v, want 187.12", got)
	}

	if got := table.Column(9).Int32s()[0]; got != 20240102 {
		t.Fatalf("date[0] = %d, want 20240102", got)
	}
}

func TestNormalizeStockEOD(t *testing.T) {
	sub := stockSub(t, schema.DatasetStockEOD)

	table, err := Normalize([]byte(stockEODCSV), sub)
	if err != nil {
		t.Fatalf("normalize: %+v", err)
	}

	if table.NumRows() != 1 || table.NumCols() != 17 {
		t.Fatalf("got %dx%d, want 1x17", table.NumRows(), table.NumCols())
	}

	if got := table.Column(5).Float64s()[0]; got != 188.63 {
		t.Fatalf("close = %v, want 188.63", got)
	}

	if got := table.Column(6).Int64s()[0]; got != 82488674 {
		t.Fatalf("volume = %d, want 82488674", got)
	}
}

func TestNormalizeOptionQuote(t *testing.T) {
	sub := stockSub(t, schema.DatasetOptionQuote)

	table, err := Normalize([]byte(optionQuoteCSV), sub)
	if err != nil {
		t.Fatalf("normalize: %+v", err)
	}

	if table.NumRows() != 2 || table.NumCols() != 14 {
		t.Fatalf("got %dx%d, want 2x14", table.NumRows(), table.NumCols())
	}

	if got := table.Column(0).Strings()[0]; got != "AAPL" {
		t.Fatalf("root = %q, want AAPL", got)
	}

	if got := table.Column(3).Strings()[1]; got != "P" {
		t.Fatalf("right[1] = %q, want P", got)
	}

	if got := table.Column(2).Int64s()[0]; got != 190000 {
		t.Fatalf("strike = %d, want 190000", got)
	}
}

func TestNormalizeUnderlyingLeg(t *testing.T) {
	sub := stockSub(t, schema.DatasetOptionQuote)
	sub.Underlying = true

	table, err := Normalize([]byte(stockQuoteCSV), sub)
	if err != nil {
		t.Fatalf("normalize: %+v", err)
	}

	if table.NumRows() != 2 || table.NumCols() != 14 {
		t.Fatalf("got %dx%d, want 2x14", table.NumRows(), table.NumCols())
	}

	roots := table.Column(0).Strings()
	for i, root := range roots {
		if root != "AAPL" {
			t.Fatalf("root[%d] = %q, want AAPL", i, root)
		}
	}

	if got := table.Column(1).Int32s()[0]; got != 0 {
		t.Fatalf("expiration = %d, want 0", got)
	}

	if got := table.Column(2).Int64s()[1]; got != 0 {
		t.Fatalf("strike = %d, want 0", got)
	}

	if got := table.Column(3).Strings()[0]; got != "" {
		t.Fatalf("right = %q, want empty", got)
	}

	if got := table.Column(4).Int64s()[0]; got != 34200000 {
		t.Fatalf("ms_of_day = %d, want 34200000", got)
	}
}

func TestNormalizeEmptyBody(t *testing.T) {
	for _, kind := range []schema.DatasetKind{
		schema.DatasetStockQuote,
		schema.DatasetStockEOD,
		schema.DatasetOptionQuote,
		schema.DatasetOptionEOD,
	} {
		sub := stockSub(t, kind)

		table, err := Normalize([]byte("  \n"), sub)
		if err != nil {
			t.Fatalf("%s: normalize empty: %+v", kind, err)
		}

		if table.NumRows() != 0 {
			t.Fatalf("%s: got %d rows, want 0", kind, table.NumRows())
		}

		spec, err := schema.SpecFor(kind)
		if err != nil {
			t.Fatalf("%s: spec: %+v", kind, err)
		}

		if !table.Spec().Equal(spec) {
			t.Fatalf("%s: empty table lost its spec", kind)
		}
	}
}

func TestNormalizeHeaderOnly(t *testing.T) {
	sub := stockSub(t, schema.DatasetStockQuote)

	header := "ms_of_day,bid_size,bid_exchange,bid,bid_condition,ask_size,ask_exchange,ask,ask_condition,date\n"

	table, err := Normalize([]byte(header), sub)
	if err != nil {
		t.Fatalf("normalize: %+v", err)
	}

	if table.NumRows() != 0 || table.NumCols() != 10 {
		t.Fatalf("got %dx%d, want 0x10", table.NumRows(), table.NumCols())
	}
}

func TestNormalizeHeaderNameMismatch(t *testing.T) {
	sub := stockSub(t, schema.DatasetStockQuote)

	body := `ms_of_day,bid_qty,bid_exchange,bid,bid_condition,ask_size,ask_exchange,ask,ask_condition,date
34200000,2,1,187.10,50,3,1,187.15,50,20240102
`

	_, err := Normalize([]byte(body), sub)
	if !errors.Is(err, exception.ErrSchemaMismatch) {
		t.Fatalf("got %+v, want ErrSchemaMismatch", err)
	}
}

func TestNormalizeHeaderWidthMismatch(t *testing.T) {
	sub := stockSub(t, schema.DatasetStockQuote)

	body := "ms_of_day,bid_size,bid\n34200000,2,187.10\n"

	_, err := Normalize([]byte(body), sub)
	if !errors.Is(err, exception.ErrSchemaMismatch) {
		t.Fatalf("got %+v, want ErrSchemaMismatch", err)
	}
}

func TestNormalizeBadCell(t *testing.T) {
	sub := stockSub(t, schema.DatasetStockQuote)

	body := `ms_of_day,bid_size,bid_exchange,bid,bid_condition,ask_size,ask_exchange,ask,ask_condition,date
34200000,lots,1,187.10,50,3,1,187.15,50,20240102
`

	_, err := Normalize([]byte(body), sub)
	if !errors.Is(err, exception.ErrSchemaMismatch) {
		t.Fatalf("got %+v, want ErrSchemaMismatch", err)
	}
}

func TestNormalizeRaggedRow(t *testing.T) {
	sub := stockSub(t, schema.DatasetStockQuote)

	body := `ms_of_day,bid_size,bid_exchange,bid,bid_condition,ask_size,ask_exchange,ask,ask_condition,date
34200000,2,1,187.10,50
`

	_, err := Normalize([]byte(body), sub)
	if !errors.Is(err, exception.ErrSchemaMismatch) {
		t.Fatalf("got %+v, want ErrSchemaMismatch", err)
	}
}

func TestNormalizeUnknownKind(t *testing.T) {
	sub := market.SubRequest{Kind: schema.DatasetKind(99)}

	_, err := Normalize([]byte("x"), sub)
	if !errors.Is(err, exception.ErrUnknownDataset) {
		t.Fatalf("got %+v, want ErrUnknownDataset", err)
	}
}
