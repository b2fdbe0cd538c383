// Package rowselect implements the in-memory row selection used for a
// worker's loopback partition: rows that route to the worker's own rank
// never touch the codec or the collective transport, they are just
// gathered directly from the source columns.
package rowselect

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/arrowshuffle/shuffle/pkg/codec"
)

// Select builds a new record containing batch[offsets[0]], batch[offsets[1]],
// ..., in that order, for every column. The returned record is owned by the
// caller and must be Release()d. Select dispatches on the same closed type
// set as the codec, so a column unsupported for network transfer is also
// unsupported for the loopback path — the two never disagree on that.
func Select(alloc memory.Allocator, batch arrow.Record, offsets []int64) (arrow.Record, error) {
	schema := batch.Schema()
	bldr := array.NewRecordBuilder(alloc, schema)
	defer bldr.Release()

	for i := 0; i < int(batch.NumCols()); i++ {
		tag, err := codec.Classify(schema.Field(i).Type)
		if err != nil {
			return nil, err
		}
		if err := selectColumn(bldr.Field(i), tag, batch.Column(i), offsets); err != nil {
			return nil, fmt.Errorf("select column %q: %w", schema.Field(i).Name, err)
		}
	}
	return bldr.NewRecord(), nil
}

func selectColumn(bldr array.Builder, tag codec.Tag, arr arrow.Array, offsets []int64) error {
	switch tag {
	case codec.TagFloat64:
		src := arr.(*array.Float64)
		dst := bldr.(*array.Float64Builder)
		for _, i := range offsets {
			dst.Append(src.Value(int(i)))
		}
	case codec.TagFloat32:
		src := arr.(*array.Float32)
		dst := bldr.(*array.Float32Builder)
		for _, i := range offsets {
			dst.Append(src.Value(int(i)))
		}
	case codec.TagInt64:
		src := arr.(*array.Int64)
		dst := bldr.(*array.Int64Builder)
		for _, i := range offsets {
			dst.Append(src.Value(int(i)))
		}
	case codec.TagInt32:
		src := arr.(*array.Int32)
		dst := bldr.(*array.Int32Builder)
		for _, i := range offsets {
			dst.Append(src.Value(int(i)))
		}
	case codec.TagUint64:
		src := arr.(*array.Uint64)
		dst := bldr.(*array.Uint64Builder)
		for _, i := range offsets {
			dst.Append(src.Value(int(i)))
		}
	case codec.TagUint32:
		src := arr.(*array.Uint32)
		dst := bldr.(*array.Uint32Builder)
		for _, i := range offsets {
			dst.Append(src.Value(int(i)))
		}
	case codec.TagLargeUTF8:
		src := arr.(*array.LargeString)
		dst := bldr.(*array.LargeStringBuilder)
		for _, i := range offsets {
			dst.Append(src.Value(int(i)))
		}
	case codec.TagNull:
		for range offsets {
			bldr.AppendNull()
		}
	case codec.TagLargeListFloat64, codec.TagLargeListFloat32, codec.TagLargeListInt64,
		codec.TagLargeListInt32, codec.TagLargeListUint64, codec.TagLargeListUint32:
		return selectLargeList(bldr, tag, arr, offsets)
	}
	return nil
}

func selectLargeList(bldr array.Builder, tag codec.Tag, arr arrow.Array, offsets []int64) error {
	src := arr.(*array.LargeList)
	dst := bldr.(*array.LargeListBuilder)
	values := src.ListValues()

	for _, i := range offsets {
		start, end := src.ValueOffsets(int(i))
		dst.Append(true)
		if err := appendListValues(dst.ValueBuilder(), values, start, end); err != nil {
			return err
		}
	}
	return nil
}

func appendListValues(vb array.Builder, values arrow.Array, start, end int64) error {
	switch v := values.(type) {
	case *array.Float64:
		b := vb.(*array.Float64Builder)
		for i := start; i < end; i++ {
			b.Append(v.Value(int(i)))
		}
	case *array.Float32:
		b := vb.(*array.Float32Builder)
		for i := start; i < end; i++ {
			b.Append(v.Value(int(i)))
		}
	case *array.Int64:
		b := vb.(*array.Int64Builder)
		for i := start; i < end; i++ {
			b.Append(v.Value(int(i)))
		}
	case *array.Int32:
		b := vb.(*array.Int32Builder)
		for i := start; i < end; i++ {
			b.Append(v.Value(int(i)))
		}
	case *array.Uint64:
		b := vb.(*array.Uint64Builder)
		for i := start; i < end; i++ {
			b.Append(v.Value(int(i)))
		}
	case *array.Uint32:
		b := vb.(*array.Uint32Builder)
		for i := start; i < end; i++ {
			b.Append(v.Value(int(i)))
		}
	default:
		return fmt.Errorf("rowselect: unexpected large_list child array type %T", values)
	}
	return nil
}
