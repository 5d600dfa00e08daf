package schema

import (
	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/pkg/exception"
)

// Vector holds the values of one column. Exactly one of the typed slices
// is populated, matching the vector type.
type Vector struct {
	typ      ColumnType
	int16s   []int16
	int32s   []int32
	int64s   []int64
	float64s []float64
	strings  []string
}

func newVector(typ ColumnType) Vector {
	return Vector{typ: typ}
}

func (v *Vector) Type() ColumnType { return v.typ }

func (v *Vector) Len() int {
	switch v.typ {
	case ColumnInt16:
		return len(v.int16s)
	case ColumnInt32:
		return len(v.int32s)
	case ColumnInt64:
		return len(v.int64s)
	case ColumnFloat64:
		return len(v.float64s)
	case ColumnString:
		return len(v.strings)
	default:
		return 0
	}
}

// Int16s returns the backing slice for an int16 vector, nil otherwise.
// The same applies to the other typed accessors. Callers must not mutate
// the returned slice.
func (v *Vector) Int16s() []int16     { return v.int16s }
func (v *Vector) Int32s() []int32     { return v.int32s }
func (v *Vector) Int64s() []int64     { return v.int64s }
func (v *Vector) Float64s() []float64 { return v.float64s }
func (v *Vector) Strings() []string   { return v.strings }

func (v *Vector) appendFrom(other *Vector) {
	v.int16s = append(v.int16s, other.int16s...)
	v.int32s = append(v.int32s, other.int32s...)
	v.int64s = append(v.int64s, other.int64s...)
	v.float64s = append(v.float64s, other.float64s...)
	v.strings = append(v.strings, other.strings...)
}

func (v *Vector) equal(other *Vector) bool {
	if v.typ != other.typ || v.Len() != other.Len() {
		return false
	}

	switch v.typ {
	case ColumnInt16:
		for i, x := range v.int16s {
			if x != other.int16s[i] {
				return false
			}
		}
	case ColumnInt32:
		for i, x := range v.int32s {
			if x != other.int32s[i] {
				return false
			}
		}
	case ColumnInt64:
		for i, x := range v.int64s {
			if x != other.int64s[i] {
				return false
			}
		}
	case ColumnFloat64:
		for i, x := range v.float64s {
			if x != other.float64s[i] {
				return false
			}
		}
	case ColumnString:
		for i, x := range v.strings {
			if x != other.strings[i] {
				return false
			}
		}
	}

	return true
}

// Table is an immutable columnar table. A zero-row table is valid and still
// carries its spec, which is how empty fetch results keep their schema.
type Table struct {
	spec Spec
	rows int
	cols []Vector
}

// Empty builds a zero-row table carrying the given spec.
func Empty(spec Spec) (*Table, error) {
	if err := spec.Validate(); err != nil {
		return nil, errors.Wrap(err, "empty table")
	}

	cols := make([]Vector, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = newVector(c.Type)
	}

	return &Table{spec: spec, cols: cols}, nil
}

func (t *Table) Spec() Spec   { return t.spec }
func (t *Table) NumRows() int { return t.rows }
func (t *Table) NumCols() int { return len(t.cols) }

// Column returns the vector at spec position i.
func (t *Table) Column(i int) *Vector {
	if i < 0 || i >= len(t.cols) {
		return nil
	}

	return &t.cols[i]
}

func (t *Table) Equal(other *Table) bool {
	if other == nil || !t.spec.Equal(other.spec) || t.rows != other.rows {
		return false
	}

	for i := range t.cols {
		if !t.cols[i].equal(&other.cols[i]) {
			return false
		}
	}

	return true
}

// Concat unions tables with identical specs, preserving argument order.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "concat of zero tables")
	}

	for _, t := range tables {
		if t == nil {
			return nil, errors.Wrap(exception.ErrNilInstance, "concat")
		}
	}

	out, err := Empty(tables[0].spec)
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		if !t.spec.Equal(out.spec) {
			return nil, errors.Wrapf(exception.ErrSchemaMismatch, "concat spec differs")
		}

		for i := range out.cols {
			out.cols[i].appendFrom(&t.cols[i])
		}
		out.rows += t.rows
	}

	return out, nil
}

// Builder accumulates rows column by column. Append one value per column
// per row; Build verifies the columns stayed aligned.
type Builder struct {
	spec Spec
	cols []Vector
}

func NewBuilder(spec Spec) (*Builder, error) {
	if err := spec.Validate(); err != nil {
		return nil, errors.Wrap(err, "builder")
	}

	cols := make([]Vector, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = newVector(c.Type)
	}

	return &Builder{spec: spec, cols: cols}, nil
}

func (b *Builder) appendErr(col int, want ColumnType) error {
	if col < 0 || col >= len(b.cols) {
		return errors.Wrapf(exception.ErrInvalidArgument, "column %d out of range", col)
	}

	if b.cols[col].typ != want {
		return errors.Wrapf(exception.ErrInvalidArgument,
			"column %s is %s, appended %s", b.spec.Columns[col].Name, b.cols[col].typ, want)
	}

	return nil
}

func (b *Builder) AppendInt16(col int, v int16) error {
	if err := b.appendErr(col, ColumnInt16); err != nil {
		return err
	}

	b.cols[col].int16s = append(b.cols[col].int16s, v)

	return nil
}

func (b *Builder) AppendInt32(col int, v int32) error {
	if err := b.appendErr(col, ColumnInt32); err != nil {
		return err
	}

	b.cols[col].int32s = append(b.cols[col].int32s, v)

	return nil
}

func (b *Builder) AppendInt64(col int, v int64) error {
	if err := b.appendErr(col, ColumnInt64); err != nil {
		return err
	}

	b.cols[col].int64s = append(b.cols[col].int64s, v)

	return nil
}

func (b *Builder) AppendFloat64(col int, v float64) error {
	if err := b.appendErr(col, ColumnFloat64); err != nil {
		return err
	}

	b.cols[col].float64s = append(b.cols[col].float64s, v)

	return nil
}

func (b *Builder) AppendString(col int, v string) error {
	if err := b.appendErr(col, ColumnString); err != nil {
		return err
	}

	b.cols[col].strings = append(b.cols[col].strings, v)

	return nil
}

// Build finalizes the table. Every column must hold the same number of
// values.
func (b *Builder) Build() (*Table, error) {
	rows := b.cols[0].Len()
	for i := range b.cols {
		if b.cols[i].Len() != rows {
			return nil, errors.Wrapf(exception.ErrInternal,
				"column %s has %d values, want %d", b.spec.Columns[i].Name, b.cols[i].Len(), rows)
		}
	}

	return &Table{spec: b.spec, rows: rows, cols: b.cols}, nil
}
