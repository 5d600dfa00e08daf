package schema

import (
	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/pkg/exception"
)

// SpecFor returns the canonical column layout for a dataset kind. The
// returned spec owns a fresh slice, so callers may append without
// corrupting the registry.
func SpecFor(kind DatasetKind) (Spec, error) {
	switch kind {
	case DatasetStockQuote:
		return Spec{Columns: quoteColumns()}, nil
	case DatasetStockEOD:
		return Spec{Columns: eodColumns()}, nil
	case DatasetOptionQuote:
		return Spec{Columns: append(contractColumns(), quoteColumns()...)}, nil
	case DatasetOptionEOD:
		return Spec{Columns: append(contractColumns(), eodColumns()...)}, nil
	case DatasetEarnings:
		return Spec{Columns: earningsColumns()}, nil
	default:
		return Spec{}, errors.Wrapf(exception.ErrUnknownDataset, "spec for kind %d", kind)
	}
}

func quoteColumns() []Column {
	return []Column{
		{Name: "ms_of_day", Type: ColumnInt64},
		{Name: "bid_size", Type: ColumnInt32},
		{Name: "bid_exchange", Type: ColumnInt16},
		{Name: "bid", Type: ColumnFloat64},
		{Name: "bid_condition", Type: ColumnInt16},
		{Name: "ask_size", Type: ColumnInt32},
		{Name: "ask_exchange", Type: ColumnInt16},
		{Name: "ask", Type: ColumnFloat64},
		{Name: "ask_condition", Type: ColumnInt16},
		{Name: "date", Type: ColumnInt32},
	}
}

func eodColumns() []Column {
	return []Column{
		{Name: "ms_of_day", Type: ColumnInt64},
		{Name: "ms_of_day_2", Type: ColumnInt64},
		{Name: "open", Type: ColumnFloat64},
		{Name: "high", Type: ColumnFloat64},
		{Name: "low", Type: ColumnFloat64},
		{Name: "close", Type: ColumnFloat64},
		{Name: "volume", Type: ColumnInt64},
		{Name: "count", Type: ColumnInt64},
		{Name: "bid_size", Type: ColumnInt32},
		{Name: "bid_exchange", Type: ColumnInt16},
		{Name: "bid", Type: ColumnFloat64},
		{Name: "bid_condition", Type: ColumnInt16},
		{Name: "ask_size", Type: ColumnInt32},
		{Name: "ask_exchange", Type: ColumnInt16},
		{Name: "ask", Type: ColumnFloat64},
		{Name: "ask_condition", Type: ColumnInt16},
		{Name: "date", Type: ColumnInt32},
	}
}

// contractColumns identify the option contract a row belongs to. Underlying
// stock rows folded into an option dataset carry zero values here, with the
// root set to the underlying symbol.
func contractColumns() []Column {
	return []Column{
		{Name: "root", Type: ColumnString},
		{Name: "expiration", Type: ColumnInt32},
		{Name: "strike", Type: ColumnInt64},
		{Name: "right", Type: ColumnString},
	}
}

func earningsColumns() []Column {
	return []Column{
		{Name: "date", Type: ColumnString},
		{Name: "symbol", Type: ColumnString},
		{Name: "name", Type: ColumnString},
		{Name: "time", Type: ColumnString},
		{Name: "eps", Type: ColumnFloat64},
		{Name: "eps_forecast", Type: ColumnFloat64},
		{Name: "surprise_pct", Type: ColumnFloat64},
		{Name: "market_cap", Type: ColumnInt64},
		{Name: "fiscal_quarter_ending", Type: ColumnString},
		{Name: "num_estimates", Type: ColumnInt64},
	}
}
