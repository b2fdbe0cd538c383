package codec

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/arrowshuffle/shuffle/pkg/archive"
	"github.com/arrowshuffle/shuffle/pkg/shuffleerr"
)

// DecodeRows rebuilds a record batch from an archive produced by EncodeRows.
// The returned record is owned by the caller and must be Release()d.
func DecodeRows(data []byte, schema *arrow.Schema, alloc memory.Allocator) (arrow.Record, error) {
	r := archive.NewReader(data)
	rowCount, err := r.GetInt64()
	if err != nil {
		return nil, fmt.Errorf("decode row count: %w", err)
	}

	bldr := array.NewRecordBuilder(alloc, schema)
	defer bldr.Release()

	for i := 0; i < schema.NumFields(); i++ {
		tag, err := Classify(schema.Field(i).Type)
		if err != nil {
			return nil, err
		}
		if err := decodeColumn(r, tag, rowCount, bldr.Field(i)); err != nil {
			return nil, fmt.Errorf("decode column %q: %w", schema.Field(i).Name, err)
		}
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d bytes left over after %d rows", shuffleerr.ErrDecodeTruncated, r.Remaining(), rowCount)
	}
	return bldr.NewRecord(), nil
}

func decodeColumn(r *archive.Reader, tag Tag, n int64, bldr array.Builder) error {
	if isLargeList(tag) {
		return decodeLargeListColumn(r, tag, n, bldr)
	}
	switch tag {
	case TagFloat64:
		b := bldr.(*array.Float64Builder)
		for i := int64(0); i < n; i++ {
			v, err := r.GetFloat64()
			if err != nil {
				return err
			}
			b.Append(v)
		}
	case TagFloat32:
		b := bldr.(*array.Float32Builder)
		for i := int64(0); i < n; i++ {
			v, err := r.GetFloat32()
			if err != nil {
				return err
			}
			b.Append(v)
		}
	case TagInt64:
		b := bldr.(*array.Int64Builder)
		for i := int64(0); i < n; i++ {
			v, err := r.GetInt64()
			if err != nil {
				return err
			}
			b.Append(v)
		}
	case TagInt32:
		b := bldr.(*array.Int32Builder)
		for i := int64(0); i < n; i++ {
			v, err := r.GetInt32()
			if err != nil {
				return err
			}
			b.Append(v)
		}
	case TagUint64:
		b := bldr.(*array.Uint64Builder)
		for i := int64(0); i < n; i++ {
			v, err := r.GetUint64()
			if err != nil {
				return err
			}
			b.Append(v)
		}
	case TagUint32:
		b := bldr.(*array.Uint32Builder)
		for i := int64(0); i < n; i++ {
			v, err := r.GetUint32()
			if err != nil {
				return err
			}
			b.Append(v)
		}
	case TagLargeUTF8:
		b := bldr.(*array.LargeStringBuilder)
		for i := int64(0); i < n; i++ {
			length, err := r.GetInt64()
			if err != nil {
				return err
			}
			data, err := r.GetBytes(int(length))
			if err != nil {
				return err
			}
			b.Append(string(data))
		}
	case TagNull:
		for i := int64(0); i < n; i++ {
			bldr.AppendNull()
		}
	default:
		return fmt.Errorf("%w: tag %d", shuffleerr.ErrUnsupportedType, tag)
	}
	return nil
}

func decodeLargeListColumn(r *archive.Reader, tag Tag, n int64, bldr array.Builder) error {
	lb := bldr.(*array.LargeListBuilder)
	vb := lb.ValueBuilder()
	childTag := elemTag(tag)

	for i := int64(0); i < n; i++ {
		length, err := r.GetInt64()
		if err != nil {
			return err
		}
		lb.Append(true)
		if err := decodeColumn(r, childTag, length, vb); err != nil {
			return err
		}
	}
	return nil
}
