// Package normalize turns raw provider payloads into canonical tables. The
// routing table is closed: a dataset kind without a registered normalizer
// is a hard error, never a silent pass-through.
package normalize

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/market"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

type normalizeFunc func(body []byte, sub market.SubRequest) (*schema.Table, error)

var normalizers = map[schema.DatasetKind]normalizeFunc{
	schema.DatasetStockQuote:  normalizeTheta,
	schema.DatasetStockEOD:    normalizeTheta,
	schema.DatasetOptionQuote: normalizeTheta,
	schema.DatasetOptionEOD:   normalizeTheta,
	schema.DatasetEarnings:    normalizeEarnings,
}

// Normalize parses one fetched payload into the canonical table of the
// sub-request's dataset. An empty body is the provider's no-data answer and
// yields a zero-row table carrying the full schema.
func Normalize(body []byte, sub market.SubRequest) (*schema.Table, error) {
	fn, ok := normalizers[sub.Kind]
	if !ok {
		return nil, errors.Wrapf(exception.ErrUnknownDataset, "normalize kind %s", sub.Kind)
	}

	return fn(body, sub)
}

// contractWidth is the number of leading contract columns in the option
// specs. Underlying stock payloads do not carry them and get synthesized
// values instead.
const contractWidth = 4

func normalizeTheta(body []byte, sub market.SubRequest) (*schema.Table, error) {
	spec, err := schema.SpecFor(sub.Kind)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return schema.Empty(spec)
	}

	pad := 0
	if sub.Underlying {
		pad = contractWidth
	}

	return scanTheta(body, spec, pad, sub.Key.Symbol)
}

// scanTheta reads a ThetaData CSV. The header row must match the payload
// section of the spec by name and order; the first pad columns are filled
// with contract padding for underlying stock rows (root set, everything
// else zero).
func scanTheta(body []byte, spec schema.Spec, pad int, root string) (*schema.Table, error) {
	payload := spec.Columns[pad:]

	r := csv.NewReader(bytes.NewReader(body))
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return schema.Empty(spec)
		}

		return nil, errors.Wrap(exception.ErrSchemaMismatch, err.Error())
	}

	if len(header) != len(payload) {
		return nil, errors.Wrapf(exception.ErrSchemaMismatch,
			"header has %d columns, want %d", len(header), len(payload))
	}

	for i, c := range payload {
		if strings.TrimSpace(header[i]) != c.Name {
			return nil, errors.Wrapf(exception.ErrSchemaMismatch,
				"header column %d is %q, want %q", i, header[i], c.Name)
		}
	}

	b, err := schema.NewBuilder(spec)
	if err != nil {
		return nil, err
	}

	for row := 0; ; row++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, errors.Wrapf(exception.ErrSchemaMismatch, "row %d: %s", row, err.Error())
		}

		if pad > 0 {
			if err := appendContractPad(b, root); err != nil {
				return nil, err
			}
		}

		for i, cell := range rec {
			if err := appendCell(b, pad+i, spec.Columns[pad+i], cell, row); err != nil {
				return nil, err
			}
		}
	}

	return b.Build()
}

func appendContractPad(b *schema.Builder, root string) error {
	if err := b.AppendString(0, root); err != nil {
		return err
	}

	if err := b.AppendInt32(1, 0); err != nil {
		return err
	}

	if err := b.AppendInt64(2, 0); err != nil {
		return err
	}

	return b.AppendString(3, "")
}

func appendCell(b *schema.Builder, col int, c schema.Column, cell string, row int) error {
	cell = strings.TrimSpace(cell)

	switch c.Type {
	case schema.ColumnInt16:
		v, err := strconv.ParseInt(cell, 10, 16)
		if err != nil {
			return cellErr(c.Name, cell, row)
		}

		return b.AppendInt16(col, int16(v))
	case schema.ColumnInt32:
		v, err := strconv.ParseInt(cell, 10, 32)
		if err != nil {
			return cellErr(c.Name, cell, row)
		}

		return b.AppendInt32(col, int32(v))
	case schema.ColumnInt64:
		v, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return cellErr(c.Name, cell, row)
		}

		return b.AppendInt64(col, v)
	case schema.ColumnFloat64:
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return cellErr(c.Name, cell, row)
		}

		return b.AppendFloat64(col, v)
	case schema.ColumnString:
		return b.AppendString(col, cell)
	default:
		return errors.Wrapf(exception.ErrInternal, "column type %d", c.Type)
	}
}

func cellErr(name, cell string, row int) error {
	return errors.Wrapf(exception.ErrSchemaMismatch, "row %d column %s: %q", row, name, cell)
}
