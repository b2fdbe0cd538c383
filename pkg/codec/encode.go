package codec

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/arrowshuffle/shuffle/pkg/archive"
	"github.com/arrowshuffle/shuffle/pkg/shuffleerr"
)

// EncodeRows writes the rows named by offsets, column by column, into a
// freshly allocated archive. The first value in the archive is always the
// row count, so DecodeRows can size its builders before reading any column.
func EncodeRows(batch arrow.Record, offsets []int64) ([]byte, error) {
	w := archive.NewWriter()
	w.PutInt64(int64(len(offsets)))

	schema := batch.Schema()
	for i := 0; i < int(batch.NumCols()); i++ {
		tag, err := Classify(schema.Field(i).Type)
		if err != nil {
			return nil, err
		}
		if err := encodeColumn(w, tag, batch.Column(i), offsets); err != nil {
			return nil, fmt.Errorf("encode column %q: %w", schema.Field(i).Name, err)
		}
	}
	return w.Bytes(), nil
}

// encodeColumn writes arr[offsets[0]], arr[offsets[1]], ... in order.
func encodeColumn(w *archive.Writer, tag Tag, arr arrow.Array, offsets []int64) error {
	if isLargeList(tag) {
		return encodeLargeListColumn(w, tag, arr, offsets)
	}
	switch tag {
	case TagFloat64:
		a := arr.(*array.Float64)
		for _, i := range offsets {
			w.PutFloat64(a.Value(int(i)))
		}
	case TagFloat32:
		a := arr.(*array.Float32)
		for _, i := range offsets {
			w.PutFloat32(a.Value(int(i)))
		}
	case TagInt64:
		a := arr.(*array.Int64)
		for _, i := range offsets {
			w.PutInt64(a.Value(int(i)))
		}
	case TagInt32:
		a := arr.(*array.Int32)
		for _, i := range offsets {
			w.PutInt32(a.Value(int(i)))
		}
	case TagUint64:
		a := arr.(*array.Uint64)
		for _, i := range offsets {
			w.PutUint64(a.Value(int(i)))
		}
	case TagUint32:
		a := arr.(*array.Uint32)
		for _, i := range offsets {
			w.PutUint32(a.Value(int(i)))
		}
	case TagLargeUTF8:
		a := arr.(*array.LargeString)
		for _, i := range offsets {
			s := a.Value(int(i))
			w.PutInt64(int64(len(s)))
			w.PutBytes([]byte(s))
		}
	case TagNull:
		// A null column carries no per-row payload; the row count already
		// written at the top of the archive is enough for the decoder to
		// rebuild it.
	default:
		return fmt.Errorf("%w: tag %d", shuffleerr.ErrUnsupportedType, tag)
	}
	return nil
}

// encodeFullColumn writes every value of arr in index order, with no offset
// indirection. Used for large_list children, which are already sliced down
// to exactly the values belonging to the list entries being selected.
func encodeFullColumn(w *archive.Writer, tag Tag, arr arrow.Array) error {
	n := arr.Len()
	switch tag {
	case TagFloat64:
		a := arr.(*array.Float64)
		for i := 0; i < n; i++ {
			w.PutFloat64(a.Value(i))
		}
	case TagFloat32:
		a := arr.(*array.Float32)
		for i := 0; i < n; i++ {
			w.PutFloat32(a.Value(i))
		}
	case TagInt64:
		a := arr.(*array.Int64)
		for i := 0; i < n; i++ {
			w.PutInt64(a.Value(i))
		}
	case TagInt32:
		a := arr.(*array.Int32)
		for i := 0; i < n; i++ {
			w.PutInt32(a.Value(i))
		}
	case TagUint64:
		a := arr.(*array.Uint64)
		for i := 0; i < n; i++ {
			w.PutUint64(a.Value(i))
		}
	case TagUint32:
		a := arr.(*array.Uint32)
		for i := 0; i < n; i++ {
			w.PutUint32(a.Value(i))
		}
	default:
		return fmt.Errorf("%w: large_list element tag %d", shuffleerr.ErrUnsupportedType, tag)
	}
	return nil
}

// encodeLargeListColumn writes, for each selected row, the list's length
// followed by its child values in order.
func encodeLargeListColumn(w *archive.Writer, tag Tag, arr arrow.Array, offsets []int64) error {
	a := arr.(*array.LargeList)
	values := a.ListValues()
	childTag := elemTag(tag)

	for _, i := range offsets {
		start, end := a.ValueOffsets(int(i))
		length := end - start
		w.PutInt64(length)
		if length == 0 {
			continue
		}
		sub := array.NewSlice(values, start, end)
		err := encodeFullColumn(w, childTag, sub)
		sub.Release()
		if err != nil {
			return err
		}
	}
	return nil
}
