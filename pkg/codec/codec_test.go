package codec

import (
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/arrowshuffle/shuffle/pkg/shuffleerr"
)

func buildRecord(t *testing.T, alloc memory.Allocator, schema *arrow.Schema, fill func(*array.RecordBuilder)) arrow.Record {
	t.Helper()
	bldr := array.NewRecordBuilder(alloc, schema)
	defer bldr.Release()
	fill(bldr)
	return bldr.NewRecord()
}

func TestClassifyUnsupportedType(t *testing.T) {
	_, err := Classify(arrow.BinaryTypes.String)
	if !errors.Is(err, shuffleerr.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestEncodeDecodeScalarColumns(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "f64", Type: arrow.PrimitiveTypes.Float64},
		{Name: "f32", Type: arrow.PrimitiveTypes.Float32},
		{Name: "i64", Type: arrow.PrimitiveTypes.Int64},
		{Name: "i32", Type: arrow.PrimitiveTypes.Int32},
		{Name: "u64", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "u32", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "s", Type: arrow.BinaryTypes.LargeString},
		{Name: "n", Type: arrow.Null},
	}, nil)

	rec := buildRecord(t, alloc, schema, func(b *array.RecordBuilder) {
		b.Field(0).(*array.Float64Builder).AppendValues([]float64{1.5, 2.5, 3.5}, nil)
		b.Field(1).(*array.Float32Builder).AppendValues([]float32{1, 2, 3}, nil)
		b.Field(2).(*array.Int64Builder).AppendValues([]int64{10, 20, 30}, nil)
		b.Field(3).(*array.Int32Builder).AppendValues([]int32{100, 200, 300}, nil)
		b.Field(4).(*array.Uint64Builder).AppendValues([]uint64{1, 2, 3}, nil)
		b.Field(5).(*array.Uint32Builder).AppendValues([]uint32{7, 8, 9}, nil)
		b.Field(6).(*array.LargeStringBuilder).AppendValues([]string{"a", "bb", "ccc"}, nil)
		b.Field(7).(*array.NullBuilder).AppendEmptyValues(3)
	})
	defer rec.Release()

	offsets := []int64{2, 0}
	data, err := EncodeRows(rec, offsets)
	if err != nil {
		t.Fatalf("EncodeRows: %v", err)
	}

	out, err := DecodeRows(data, schema, alloc)
	if err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	defer out.Release()

	if out.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", out.NumRows())
	}

	f64 := out.Column(0).(*array.Float64)
	if f64.Value(0) != 3.5 || f64.Value(1) != 1.5 {
		t.Fatalf("f64 mismatch: %v", f64)
	}
	s := out.Column(6).(*array.LargeString)
	if s.Value(0) != "ccc" || s.Value(1) != "a" {
		t.Fatalf("string mismatch: %v", s)
	}
	n := out.Column(7).(*array.Null)
	if n.Len() != 2 {
		t.Fatalf("null column length mismatch: %d", n.Len())
	}
}

func TestEncodeDecodeLargeList(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	listType := arrow.LargeListOf(arrow.PrimitiveTypes.Int64)
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "edges", Type: listType},
	}, nil)

	rec := buildRecord(t, alloc, schema, func(b *array.RecordBuilder) {
		lb := b.Field(0).(*array.LargeListBuilder)
		vb := lb.ValueBuilder().(*array.Int64Builder)

		lb.Append(true)
		vb.AppendValues([]int64{1, 2, 3}, nil)

		lb.Append(true) // zero-length sub-array

		lb.Append(true)
		vb.AppendValues([]int64{9}, nil)
	})
	defer rec.Release()

	offsets := []int64{1, 2, 0}
	data, err := EncodeRows(rec, offsets)
	if err != nil {
		t.Fatalf("EncodeRows: %v", err)
	}

	out, err := DecodeRows(data, schema, alloc)
	if err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	defer out.Release()

	if out.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", out.NumRows())
	}

	got := out.Column(0).(*array.LargeList)
	values := got.ListValues().(*array.Int64)

	checkRow := func(row int, want []int64) {
		start, end := got.ValueOffsets(row)
		if end-start != int64(len(want)) {
			t.Fatalf("row %d: expected length %d, got %d", row, len(want), end-start)
		}
		for j, w := range want {
			if v := values.Value(int(start) + j); v != w {
				t.Fatalf("row %d[%d]: expected %d, got %d", row, j, w, v)
			}
		}
	}
	checkRow(0, nil)
	checkRow(1, []int64{9})
	checkRow(2, []int64{1, 2, 3})
}

func TestValidateSchemaRejectsUnsupportedType(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "bad", Type: arrow.BinaryTypes.String},
	}, nil)
	if err := ValidateSchema(schema); !errors.Is(err, shuffleerr.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}
