package schema

import (
	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/pkg/exception"
)

// DatasetKind identifies one canonical dataset family. Every payload the
// pipeline ingests normalizes into exactly one kind.
type DatasetKind uint8

const (
	_dataset_beg DatasetKind = iota
	DatasetStockQuote
	DatasetStockEOD
	DatasetOptionQuote
	DatasetOptionEOD
	DatasetEarnings
	_dataset_end
)

func (k DatasetKind) IsAvailable() bool {
	return k > _dataset_beg && k < _dataset_end
}

func (k DatasetKind) String() string {
	switch k {
	case DatasetStockQuote:
		return "stock-quote"
	case DatasetStockEOD:
		return "stock-eod"
	case DatasetOptionQuote:
		return "option-quote"
	case DatasetOptionEOD:
		return "option-eod"
	case DatasetEarnings:
		return "earnings"
	default:
		return "unknown"
	}
}

// ParseDatasetKind maps the external dataset name back to its kind.
func ParseDatasetKind(s string) (DatasetKind, error) {
	for k := _dataset_beg + 1; k < _dataset_end; k++ {
		if k.String() == s {
			return k, nil
		}
	}

	return _dataset_beg, errors.Wrapf(exception.ErrUnknownDataset, "parse %q", s)
}

// Family returns the top-level object key segment the kind stores under.
func (k DatasetKind) Family() string {
	switch k {
	case DatasetStockQuote, DatasetStockEOD:
		return "historical-stock"
	case DatasetOptionQuote, DatasetOptionEOD:
		return "historical-options"
	case DatasetEarnings:
		return "earnings"
	default:
		return "unknown"
	}
}

// Endpoint returns the provider endpoint segment, empty for earnings.
func (k DatasetKind) Endpoint() string {
	switch k {
	case DatasetStockQuote, DatasetOptionQuote:
		return "quote"
	case DatasetStockEOD, DatasetOptionEOD:
		return "eod"
	default:
		return ""
	}
}
