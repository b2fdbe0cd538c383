package rowselect

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func TestSelectReordersAndSubsets(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "label", Type: arrow.BinaryTypes.LargeString},
	}, nil)

	bldr := array.NewRecordBuilder(alloc, schema)
	bldr.Field(0).(*array.Int64Builder).AppendValues([]int64{0, 1, 2, 3}, nil)
	bldr.Field(1).(*array.LargeStringBuilder).AppendValues([]string{"a", "b", "c", "d"}, nil)
	rec := bldr.NewRecord()
	bldr.Release()
	defer rec.Release()

	out, err := Select(alloc, rec, []int64{3, 1})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	defer out.Release()

	if out.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", out.NumRows())
	}
	ids := out.Column(0).(*array.Int64)
	labels := out.Column(1).(*array.LargeString)
	if ids.Value(0) != 3 || ids.Value(1) != 1 {
		t.Fatalf("id mismatch: %v", ids)
	}
	if labels.Value(0) != "d" || labels.Value(1) != "b" {
		t.Fatalf("label mismatch: %v", labels)
	}
}

func TestSelectEmptyOffsetsPreservesSchema(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	}, nil)
	bldr := array.NewRecordBuilder(alloc, schema)
	bldr.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2}, nil)
	rec := bldr.NewRecord()
	bldr.Release()
	defer rec.Release()

	out, err := Select(alloc, rec, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	defer out.Release()

	if out.NumRows() != 0 {
		t.Fatalf("expected 0 rows, got %d", out.NumRows())
	}
	if !out.Schema().Equal(schema) {
		t.Fatalf("schema not preserved: %v", out.Schema())
	}
}
