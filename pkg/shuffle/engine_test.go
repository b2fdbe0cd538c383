package shuffle

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/arrowshuffle/shuffle/pkg/collective"
)

var idSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
}, nil)

func buildIDBatch(alloc memory.Allocator, ids []int64) arrow.Record {
	bldr := array.NewRecordBuilder(alloc, idSchema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).AppendValues(ids, nil)
	return bldr.NewRecord()
}

// offsetsByModulo groups batch's row indices by id % n, one bucket per
// destination worker.
func offsetsByModulo(batch arrow.Record, n int) OffsetLists {
	offsets := make(OffsetLists, n)
	col := batch.Column(0).(*array.Int64)
	for i := 0; i < col.Len(); i++ {
		dst := int(col.Value(i) % int64(n))
		offsets[dst] = append(offsets[dst], int64(i))
	}
	return offsets
}

func TestShuffleConservesRowsAndRoutesByModulo(t *testing.T) {
	const n = 4
	const rowsPerWorker = 5

	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	groups := collective.NewSimGroups(n)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]arrow.Record, n)
	errs := make([]error, n)
	wg.Add(n)
	for w := 0; w < n; w++ {
		go func(id int) {
			defer wg.Done()
			ids := make([]int64, rowsPerWorker)
			for i := range ids {
				ids[i] = int64(id*rowsPerWorker + i)
			}
			batch := buildIDBatch(alloc, ids)
			defer batch.Release()

			offsets := offsetsByModulo(batch, n)
			engine := New(groups[id], alloc)
			out, err := engine.Shuffle(ctx, idSchema, []arrow.Record{batch}, []OffsetLists{offsets})
			results[id] = out
			errs[id] = err
		}(w)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: Shuffle: %v", i, err)
		}
	}

	var allIDs []int64
	for id, rec := range results {
		col := rec.Column(0).(*array.Int64)
		for i := 0; i < col.Len(); i++ {
			v := col.Value(i)
			if v%int64(n) != int64(id) {
				t.Fatalf("worker %d received id %d which should have routed to worker %d", id, v, v%int64(n))
			}
			allIDs = append(allIDs, v)
		}
		rec.Release()
	}

	if len(allIDs) != n*rowsPerWorker {
		t.Fatalf("expected %d total rows conserved, got %d", n*rowsPerWorker, len(allIDs))
	}
	sort.Slice(allIDs, func(i, j int) bool { return allIDs[i] < allIDs[j] })
	for i, v := range allIDs {
		if v != int64(i) {
			t.Fatalf("row %d: expected id %d, got %d (rows not conserved)", i, i, v)
		}
	}
}

func TestShuffleAllRowsLoopback(t *testing.T) {
	const n = 3
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	groups := collective.NewSimGroups(n)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]arrow.Record, n)
	errs := make([]error, n)
	wg.Add(n)
	for w := 0; w < n; w++ {
		go func(id int) {
			defer wg.Done()
			batch := buildIDBatch(alloc, []int64{int64(id), int64(id)})
			defer batch.Release()

			offsets := make(OffsetLists, n)
			offsets[id] = []int64{0, 1}
			engine := New(groups[id], alloc)
			out, err := engine.Shuffle(ctx, idSchema, []arrow.Record{batch}, []OffsetLists{offsets})
			results[id] = out
			errs[id] = err
		}(w)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: Shuffle: %v", i, err)
		}
	}
	for i, rec := range results {
		if rec.NumRows() != 2 {
			t.Fatalf("worker %d: expected 2 loopback rows, got %d", i, rec.NumRows())
		}
		rec.Release()
	}
}
