package partexpr

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func TestArithmetic(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)
	ctx := context.Background()
	ev := NewEvaluator(alloc)

	batch := makeBatch(alloc, []string{"id"},
		[]arrow.Array{
			makeInt64(alloc, []int64{10, 20, 30}),
		})
	defer batch.Release()

	result, err := ev.Eval(ctx, batch, "id * 2")
	if err != nil {
		t.Fatal(err)
	}
	defer result.Release()

	int64Arr := result.(*array.Int64)
	expected := []int64{20, 40, 60}
	for i, exp := range expected {
		if int64Arr.Value(i) != exp {
			t.Errorf("id * 2 [%d]: got %v, want %v", i, int64Arr.Value(i), exp)
		}
	}

	result2, err := ev.Eval(ctx, batch, "id + 5")
	if err != nil {
		t.Fatal(err)
	}
	defer result2.Release()

	int64Arr2 := result2.(*array.Int64)
	expected2 := []int64{15, 25, 35}
	for i, exp := range expected2 {
		if int64Arr2.Value(i) != exp {
			t.Errorf("id + 5 [%d]: got %v, want %v", i, int64Arr2.Value(i), exp)
		}
	}
}

func TestModPartitionExpression(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)
	ctx := context.Background()
	ev := NewEvaluator(alloc)

	batch := makeBatch(alloc, []string{"id"},
		[]arrow.Array{
			makeInt64(alloc, []int64{0, 1, 2, 3, 4, 5, 6, 7}),
		})
	defer batch.Release()

	result, err := ev.Eval(ctx, batch, "id % 4")
	if err != nil {
		t.Fatal(err)
	}
	defer result.Release()

	int64Arr := result.(*array.Int64)
	expected := []int64{0, 1, 2, 3, 0, 1, 2, 3}
	for i, exp := range expected {
		if int64Arr.Value(i) != exp {
			t.Errorf("id %% 4 [%d]: got %v, want %v", i, int64Arr.Value(i), exp)
		}
	}
}

// TestCompoundPartitionExpression exercises the shape a two-endpoint
// partition key actually needs: combining two columns before reducing them
// to a worker index, e.g. distributing edges by the sum of their endpoints.
func TestCompoundPartitionExpression(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)
	ctx := context.Background()
	ev := NewEvaluator(alloc)

	batch := makeBatch(alloc, []string{"src", "dst"},
		[]arrow.Array{
			makeInt64(alloc, []int64{0, 1, 2, 3}),
			makeInt64(alloc, []int64{1, 2, 3, 0}),
		})
	defer batch.Release()

	result, err := ev.Eval(ctx, batch, "(src + dst) % 3")
	if err != nil {
		t.Fatal(err)
	}
	defer result.Release()

	int64Arr := result.(*array.Int64)
	expected := []int64{1, 0, 2, 0}
	for i, exp := range expected {
		if int64Arr.Value(i) != exp {
			t.Errorf("(src + dst) %% 3 [%d]: got %v, want %v", i, int64Arr.Value(i), exp)
		}
	}
}

func TestModByZeroFails(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)
	ctx := context.Background()
	ev := NewEvaluator(alloc)

	batch := makeBatch(alloc, []string{"id"},
		[]arrow.Array{
			makeInt64(alloc, []int64{1}),
		})
	defer batch.Release()

	_, err := ev.Eval(ctx, batch, "id % 0")
	if err == nil {
		t.Fatal("expected error for MOD by zero")
	}
}

func TestUnsupportedColumnFails(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)
	ctx := context.Background()
	ev := NewEvaluator(alloc)

	batch := makeBatch(alloc, []string{"id"},
		[]arrow.Array{
			makeInt64(alloc, []int64{1, 2}),
		})
	defer batch.Release()

	_, err := ev.Eval(ctx, batch, "missing_column % 4")
	if err == nil {
		t.Fatal("expected error for unknown column")
	}
}

// ── Test helpers ────────────────────────────────────────────────────

func makeBatch(alloc memory.Allocator, names []string, arrays []arrow.Array) arrow.Record {
	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: arrays[i].DataType()}
	}
	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, arrays, int64(arrays[0].Len()))
	// NewRecord retains each array, so release our original references.
	for _, a := range arrays {
		a.Release()
	}
	return rec
}

func makeInt64(alloc memory.Allocator, vals []int64) arrow.Array {
	bldr := array.NewInt64Builder(alloc)
	defer bldr.Release()
	bldr.AppendValues(vals, nil)
	return bldr.NewArray()
}
