package scan

import (
	"context"
	"strings"
	"testing"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/artifact"
	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/internal/store/memory"
	"github.com/betedge/edgelake/pkg/exception"
)

func quoteKey(t *testing.T, month partition.YearMonth) partition.Key {
	t.Helper()

	key, err := partition.NewKey(schema.DatasetStockQuote, "SPY", 900000, month)
	if err != nil {
		t.Fatalf("key %d: %v", month, err)
	}

	return key
}

func quoteTable(t *testing.T, date int32) *schema.Table {
	t.Helper()

	spec, err := schema.SpecFor(schema.DatasetStockQuote)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}

	b, err := schema.NewBuilder(spec)
	if err != nil {
		t.Fatalf("builder: %v", err)
	}

	steps := []error{
		b.AppendInt64(0, 34200000),
		b.AppendInt32(1, 10),
		b.AppendInt16(2, 1),
		b.AppendFloat64(3, 187.25),
		b.AppendInt16(4, 0),
		b.AppendInt32(5, 12),
		b.AppendInt16(6, 1),
		b.AppendFloat64(7, 187.27),
		b.AppendInt16(8, 0),
		b.AppendInt32(9, date),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	table, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	return table
}

func commit(t *testing.T, st *memory.Store, key partition.Key, table *schema.Table) {
	t.Helper()

	blob, err := artifact.Encode(table)
	if err != nil {
		t.Fatalf("encode %s: %v", key, err)
	}

	if err := st.Put(context.Background(), key.String(), blob); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

func spyRange(start, end partition.YearMonth) RetrieveRequest {
	return RetrieveRequest{
		Dataset:    schema.DatasetStockQuote,
		Symbol:     "SPY",
		Interval:   900000,
		StartMonth: start,
		EndMonth:   end,
	}
}

func TestRetrieveRangeUnionsMonths(t *testing.T) {
	st := memory.New()
	commit(t, st, quoteKey(t, 202401), quoteTable(t, 20240112))
	commit(t, st, quoteKey(t, 202402), quoteTable(t, 20240201))

	s, err := New(st, OnMissingFail)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := s.Retrieve(context.Background(), spyRange(202401, 202402))
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	if res.Table.NumRows() != 2 {
		t.Fatalf("got %d rows, want 2", res.Table.NumRows())
	}

	dates := res.Table.Column(9).Int32s()
	if dates[0] != 20240112 || dates[1] != 20240201 {
		t.Fatalf("dates = %v", dates)
	}

	if len(res.Found) != 2 || len(res.Missing) != 0 {
		t.Fatalf("found=%v missing=%v", res.Found, res.Missing)
	}
}

func TestRetrieveMissingFail(t *testing.T) {
	st := memory.New()
	commit(t, st, quoteKey(t, 202401), quoteTable(t, 20240112))

	s, err := New(st, OnMissingFail)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = s.Retrieve(context.Background(), spyRange(202401, 202403))
	if !errors.Is(err, exception.ErrMissingPartition) {
		t.Fatalf("want ErrMissingPartition, got %v", err)
	}

	if !strings.Contains(err.Error(), "2024/02") {
		t.Fatalf("error does not name the first absent month: %v", err)
	}
}

func TestRetrieveMissingSkip(t *testing.T) {
	st := memory.New()
	commit(t, st, quoteKey(t, 202401), quoteTable(t, 20240112))
	commit(t, st, quoteKey(t, 202403), quoteTable(t, 20240304))

	s, err := New(st, OnMissingSkip)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := s.Retrieve(context.Background(), spyRange(202401, 202403))
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	if res.Table.NumRows() != 2 {
		t.Fatalf("got %d rows, want 2", res.Table.NumRows())
	}

	if len(res.Found) != 2 || len(res.Missing) != 1 {
		t.Fatalf("found=%v missing=%v", res.Found, res.Missing)
	}

	if res.Missing[0].Month != 202402 {
		t.Fatalf("missing month = %v", res.Missing[0].Month)
	}
}

func TestRetrieveSkipNothingFoundYieldsEmptyTable(t *testing.T) {
	s, err := New(memory.New(), OnMissingSkip)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := s.Retrieve(context.Background(), spyRange(202401, 202402))
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	if res.Table.NumRows() != 0 || res.Table.NumCols() != 10 {
		t.Fatalf("table = %d rows, %d cols", res.Table.NumRows(), res.Table.NumCols())
	}

	if len(res.Found) != 0 || len(res.Missing) != 2 {
		t.Fatalf("found=%v missing=%v", res.Found, res.Missing)
	}
}

func TestRetrieveAllListsOnlyMatchingDataset(t *testing.T) {
	st := memory.New()
	for month, date := range map[partition.YearMonth]int32{
		202311: 20231107,
		202401: 20240112,
		202402: 20240201,
	} {
		commit(t, st, quoteKey(t, month), quoteTable(t, date))
	}

	other, err := partition.NewKey(schema.DatasetStockQuote, "QQQ", 900000, 202401)
	if err != nil {
		t.Fatalf("other key: %v", err)
	}
	commit(t, st, other, quoteTable(t, 20240116))

	s, err := New(st, OnMissingFail)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := s.Retrieve(context.Background(), RetrieveRequest{
		Dataset:  schema.DatasetStockQuote,
		Symbol:   "SPY",
		Interval: 900000,
		All:      true,
	})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	if res.Table.NumRows() != 3 {
		t.Fatalf("got %d rows, want 3", res.Table.NumRows())
	}

	// List returns keys in ascending order, so the union walks months
	// oldest first.
	dates := res.Table.Column(9).Int32s()
	if dates[0] != 20231107 || dates[2] != 20240201 {
		t.Fatalf("dates = %v", dates)
	}

	if len(res.Found) != 3 {
		t.Fatalf("found = %v", res.Found)
	}
}

func TestRetrieveAllEmptyStore(t *testing.T) {
	s, err := New(memory.New(), OnMissingFail)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := s.Retrieve(context.Background(), RetrieveRequest{
		Dataset:  schema.DatasetStockQuote,
		Symbol:   "SPY",
		Interval: 900000,
		All:      true,
	})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	if res.Table.NumRows() != 0 || len(res.Found) != 0 || len(res.Missing) != 0 {
		t.Fatalf("res = %+v", res)
	}
}

func TestRetrieveSchemaDriftIsNeverSkippable(t *testing.T) {
	st := memory.New()

	eodSpec, err := schema.SpecFor(schema.DatasetStockEOD)
	if err != nil {
		t.Fatalf("eod spec: %v", err)
	}

	stored, err := schema.Empty(eodSpec)
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	commit(t, st, quoteKey(t, 202401), stored)

	s, err := New(st, OnMissingSkip)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = s.Retrieve(context.Background(), spyRange(202401, 202401))
	if !errors.Is(err, exception.ErrSchemaDrift) {
		t.Fatalf("want ErrSchemaDrift, got %v", err)
	}
}

func TestRetrieveCorruptPartition(t *testing.T) {
	st := memory.New()
	key := quoteKey(t, 202401)
	if err := st.Put(context.Background(), key.String(), []byte("not a container")); err != nil {
		t.Fatalf("put: %v", err)
	}

	s, err := New(st, OnMissingSkip)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = s.Retrieve(context.Background(), spyRange(202401, 202401))
	if !errors.Is(err, exception.ErrCorruptArtifact) {
		t.Fatalf("want ErrCorruptArtifact, got %v", err)
	}
}

func TestRetrieveEarningsNeedsNoSymbol(t *testing.T) {
	st := memory.New()

	key, err := partition.NewKey(schema.DatasetEarnings, "", 0, 202401)
	if err != nil {
		t.Fatalf("earnings key: %v", err)
	}

	spec, err := schema.SpecFor(schema.DatasetEarnings)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}

	table, err := schema.Empty(spec)
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	commit(t, st, key, table)

	s, err := New(st, OnMissingFail)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := s.Retrieve(context.Background(), RetrieveRequest{Dataset: schema.DatasetEarnings, All: true})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	if len(res.Found) != 1 || res.Found[0].String() != "earnings/2024/01/data.bin" {
		t.Fatalf("found = %v", res.Found)
	}
}

func TestRetrieveValidate(t *testing.T) {
	cases := []struct {
		name string
		req  RetrieveRequest
	}{
		{"unknown dataset", RetrieveRequest{Dataset: 99, Symbol: "SPY", StartMonth: 202401, EndMonth: 202402}},
		{"missing symbol", RetrieveRequest{Dataset: schema.DatasetStockQuote, StartMonth: 202401, EndMonth: 202402}},
		{"missing range", RetrieveRequest{Dataset: schema.DatasetStockQuote, Symbol: "SPY"}},
		{"reversed range", RetrieveRequest{Dataset: schema.DatasetStockQuote, Symbol: "SPY", StartMonth: 202402, EndMonth: 202401}},
		{"bad month", RetrieveRequest{Dataset: schema.DatasetStockQuote, Symbol: "SPY", StartMonth: 202413, EndMonth: 202501}},
	}

	s, err := New(memory.New(), OnMissingFail)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for _, tc := range cases {
		if _, err := s.Retrieve(context.Background(), tc.req); err == nil {
			t.Fatalf("%s validated, want error", tc.name)
		}
	}
}

func TestNewRejectsBadInputs(t *testing.T) {
	if _, err := New(nil, OnMissingFail); !errors.Is(err, exception.ErrNilInstance) {
		t.Fatalf("nil store: %v", err)
	}

	if _, err := New(memory.New(), MissingPolicy(99)); !errors.Is(err, exception.ErrInvalidArgument) {
		t.Fatalf("bad policy: %v", err)
	}
}

func TestParseMissingPolicy(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want MissingPolicy
		ok   bool
	}{
		{"", OnMissingFail, true},
		{"fail", OnMissingFail, true},
		{"skip", OnMissingSkip, true},
		{"drop", 0, false},
	} {
		got, err := ParseMissingPolicy(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("ParseMissingPolicy(%q) err = %v", tc.in, err)
		}

		if tc.ok && got != tc.want {
			t.Fatalf("ParseMissingPolicy(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
