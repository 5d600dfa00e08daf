// Package artifact encodes tables into the binary container stored under
// each partition key. The container is self describing: the column layout
// rides along with the data, which is what lets retrieval detect schema
// drift on disk.
package artifact

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/pierrec/lz4/v4"
	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

const (
	containerVersion uint16 = 1
	headerSize              = 32

	// flagLZ4 marks a block-compressed body. Incompressible payloads are
	// stored raw.
	flagLZ4 uint8 = 1 << 0

	maxColumns = 4096
)

var containerMagic = [4]byte{'E', 'L', 'K', '1'}

// Encode serializes a table. The header carries an xxhash of the column
// payload, computed before compression, so corruption is caught after
// decompression where it matters.
func Encode(t *schema.Table) ([]byte, error) {
	if t == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "encode table")
	}

	kind, err := kindOf(t.Spec())
	if err != nil {
		return nil, err
	}

	payload, err := encodePayload(t)
	if err != nil {
		return nil, err
	}

	body := payload
	flags := uint8(0)

	var c lz4.Compressor
	compressed := make([]byte, lz4.CompressBlockBound(len(payload)))
	if n, err := c.CompressBlock(payload, compressed); err == nil && n > 0 && n < len(payload) {
		body = compressed[:n]
		flags |= flagLZ4
	}

	out := make([]byte, headerSize, headerSize+len(body))
	copy(out[0:4], containerMagic[:])
	binary.LittleEndian.PutUint16(out[4:6], containerVersion)
	out[6] = byte(kind)
	out[7] = flags
	binary.LittleEndian.PutUint32(out[8:12], uint32(t.NumCols()))
	binary.LittleEndian.PutUint64(out[12:20], uint64(t.NumRows()))
	binary.LittleEndian.PutUint64(out[20:28], xxhash.Sum64(payload))
	binary.LittleEndian.PutUint32(out[28:32], uint32(len(payload)))

	return append(out, body...), nil
}

// Decode parses a container back into a table.
func Decode(data []byte) (*schema.Table, error) {
	if len(data) < headerSize {
		return nil, errors.Wrapf(exception.ErrCorruptArtifact, "container is %d bytes", len(data))
	}

	if !bytes.Equal(data[0:4], containerMagic[:]) {
		return nil, errors.Wrap(exception.ErrCorruptArtifact, "bad magic")
	}

	if ver := binary.LittleEndian.Uint16(data[4:6]); ver != containerVersion {
		return nil, errors.Wrapf(exception.ErrUnsupportedVersion, "version %d", ver)
	}

	kind := schema.DatasetKind(data[6])
	if !kind.IsAvailable() {
		return nil, errors.Wrapf(exception.ErrCorruptArtifact, "dataset kind %d", data[6])
	}

	flags := data[7]
	cols := binary.LittleEndian.Uint32(data[8:12])
	rows := binary.LittleEndian.Uint64(data[12:20])
	sum := binary.LittleEndian.Uint64(data[20:28])
	payloadLen := binary.LittleEndian.Uint32(data[28:32])

	if cols == 0 || cols > maxColumns {
		return nil, errors.Wrapf(exception.ErrCorruptArtifact, "column count %d", cols)
	}

	payload, err := decodeBody(data[headerSize:], flags, payloadLen)
	if err != nil {
		return nil, err
	}

	if got := xxhash.Sum64(payload); got != sum {
		return nil, errors.Wrapf(exception.ErrChecksumMismatch, "got %016x want %016x", got, sum)
	}

	return decodePayload(payload, int(cols), rows)
}

// kindOf reverses the registry: the spec must belong to a known dataset.
func kindOf(spec schema.Spec) (schema.DatasetKind, error) {
	for k := schema.DatasetStockQuote; k <= schema.DatasetEarnings; k++ {
		known, err := schema.SpecFor(k)
		if err != nil {
			return 0, err
		}

		if known.Equal(spec) {
			return k, nil
		}
	}

	return 0, errors.Wrap(exception.ErrUnknownDataset, "encode table spec")
}

func decodeBody(body []byte, flags uint8, payloadLen uint32) ([]byte, error) {
	if flags&flagLZ4 == 0 {
		if uint32(len(body)) != payloadLen {
			return nil, errors.Wrapf(exception.ErrCorruptArtifact, "raw body %d bytes, want %d", len(body), payloadLen)
		}

		return body, nil
	}

	payload := make([]byte, payloadLen)
	n, err := lz4.UncompressBlock(body, payload)
	if err != nil {
		return nil, errors.Wrap(exception.ErrCorruptArtifact, "lz4 block")
	}

	if uint32(n) != payloadLen {
		return nil, errors.Wrapf(exception.ErrCorruptArtifact, "decompressed %d bytes, want %d", n, payloadLen)
	}

	return payload, nil
}

func encodePayload(t *schema.Table) ([]byte, error) {
	spec := t.Spec()

	out := make([]byte, 0, 64*len(spec.Columns)+16*t.NumRows())
	for _, c := range spec.Columns {
		if len(c.Name) > math.MaxUint16 {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "column name %d bytes", len(c.Name))
		}

		out = binary.LittleEndian.AppendUint16(out, uint16(len(c.Name)))
		out = append(out, c.Name...)
		out = append(out, byte(c.Type))
	}

	for i := 0; i < t.NumCols(); i++ {
		vec := t.Column(i)

		switch vec.Type() {
		case schema.ColumnInt16:
			for _, v := range vec.Int16s() {
				out = binary.LittleEndian.AppendUint16(out, uint16(v))
			}
		case schema.ColumnInt32:
			for _, v := range vec.Int32s() {
				out = binary.LittleEndian.AppendUint32(out, uint32(v))
			}
		case schema.ColumnInt64:
			for _, v := range vec.Int64s() {
				out = binary.LittleEndian.AppendUint64(out, uint64(v))
			}
		case schema.ColumnFloat64:
			for _, v := range vec.Float64s() {
				out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
			}
		case schema.ColumnString:
			for _, v := range vec.Strings() {
				out = binary.LittleEndian.AppendUint32(out, uint32(len(v)))
				out = append(out, v...)
			}
		default:
			return nil, errors.Wrapf(exception.ErrInternal, "column type %d", vec.Type())
		}
	}

	return out, nil
}

func decodePayload(payload []byte, cols int, rows uint64) (*schema.Table, error) {
	r := &reader{data: payload}

	columns := make([]schema.Column, 0, cols)
	for i := 0; i < cols; i++ {
		nameLen, err := r.uint16()
		if err != nil {
			return nil, err
		}

		name, err := r.take(uint64(nameLen))
		if err != nil {
			return nil, err
		}

		typ, err := r.byte()
		if err != nil {
			return nil, err
		}

		columns = append(columns, schema.Column{Name: string(name), Type: schema.ColumnType(typ)})
	}

	spec := schema.Spec{Columns: columns}
	if err := spec.Validate(); err != nil {
		return nil, errors.Wrap(exception.ErrCorruptArtifact, err.Error())
	}

	b, err := schema.NewBuilder(spec)
	if err != nil {
		return nil, err
	}

	for col, c := range spec.Columns {
		for row := uint64(0); row < rows; row++ {
			if err := decodeValue(r, b, col, c.Type); err != nil {
				return nil, err
			}
		}
	}

	if !r.empty() {
		return nil, errors.Wrapf(exception.ErrCorruptArtifact, "%d trailing bytes", r.remaining())
	}

	tb, err := b.Build()
	if err != nil {
		return nil, errors.Wrap(exception.ErrCorruptArtifact, err.Error())
	}

	return tb, nil
}

func decodeValue(r *reader, b *schema.Builder, col int, typ schema.ColumnType) error {
	switch typ {
	case schema.ColumnInt16:
		v, err := r.uint16()
		if err != nil {
			return err
		}

		return b.AppendInt16(col, int16(v))
	case schema.ColumnInt32:
		v, err := r.uint32()
		if err != nil {
			return err
		}

		return b.AppendInt32(col, int32(v))
	case schema.ColumnInt64:
		v, err := r.uint64()
		if err != nil {
			return err
		}

		return b.AppendInt64(col, int64(v))
	case schema.ColumnFloat64:
		v, err := r.uint64()
		if err != nil {
			return err
		}

		return b.AppendFloat64(col, math.Float64frombits(v))
	case schema.ColumnString:
		n, err := r.uint32()
		if err != nil {
			return err
		}

		s, err := r.take(uint64(n))
		if err != nil {
			return err
		}

		return b.AppendString(col, string(s))
	default:
		return errors.Wrapf(exception.ErrCorruptArtifact, "column type %d", typ)
	}
}

// reader is a bounds-checked cursor over the payload.
type reader struct {
	data []byte
	off  int
}

func (r *reader) take(n uint64) ([]byte, error) {
	if n > uint64(r.remaining()) {
		return nil, errors.Wrapf(exception.ErrCorruptArtifact, "need %d bytes, have %d", n, r.remaining())
	}

	out := r.data[r.off : r.off+int(n)]
	r.off += int(n)

	return out, nil
}

func (r *reader) byte() (byte, error) {
	out, err := r.take(1)
	if err != nil {
		return 0, err
	}

	return out[0], nil
}

func (r *reader) uint16() (uint16, error) {
	out, err := r.take(2)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(out), nil
}

func (r *reader) uint32() (uint32, error) {
	out, err := r.take(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(out), nil
}

func (r *reader) uint64() (uint64, error) {
	out, err := r.take(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(out), nil
}

func (r *reader) remaining() int { return len(r.data) - r.off }
func (r *reader) empty() bool    { return r.remaining() == 0 }
