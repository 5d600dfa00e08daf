package schema

import (
	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/pkg/exception"
)

// ColumnType is the physical type of a column vector.
type ColumnType uint8

const (
	_column_type_beg ColumnType = iota
	ColumnInt16
	ColumnInt32
	ColumnInt64
	ColumnFloat64
	ColumnString
	_column_type_end
)

func (t ColumnType) IsAvailable() bool {
	return t > _column_type_beg && t < _column_type_end
}

func (t ColumnType) String() string {
	switch t {
	case ColumnInt16:
		return "int16"
	case ColumnInt32:
		return "int32"
	case ColumnInt64:
		return "int64"
	case ColumnFloat64:
		return "float64"
	case ColumnString:
		return "string"
	default:
		return "unknown"
	}
}

// Column is one named, typed column in a dataset spec.
type Column struct {
	Name string
	Type ColumnType
}

// Spec is the ordered column layout of a dataset. Order is part of the
// contract: two specs with the same columns in a different order are not
// equal.
type Spec struct {
	Columns []Column
}

func (s Spec) Validate() error {
	if len(s.Columns) == 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "spec has no columns")
	}

	seen := make(map[string]struct{}, len(s.Columns))
	for i, c := range s.Columns {
		if c.Name == "" {
			return errors.Wrapf(exception.ErrInvalidArgument, "column %d has no name", i)
		}

		if !c.Type.IsAvailable() {
			return errors.Wrapf(exception.ErrInvalidArgument, "column %s has invalid type", c.Name)
		}

		if _, ok := seen[c.Name]; ok {
			return errors.Wrapf(exception.ErrInvalidArgument, "duplicate column %s", c.Name)
		}

		seen[c.Name] = struct{}{}
	}

	return nil
}

func (s Spec) Equal(other Spec) bool {
	if len(s.Columns) != len(other.Columns) {
		return false
	}

	for i, c := range s.Columns {
		if c != other.Columns[i] {
			return false
		}
	}

	return true
}

// Names returns the column names in spec order.
func (s Spec) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}

	return names
}
