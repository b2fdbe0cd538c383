package schemacheck

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/arrowshuffle/shuffle/pkg/collective"
	"github.com/arrowshuffle/shuffle/pkg/shuffleerr"
)

func matchingSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "weight", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
}

func TestVerifyAcceptsIdenticalSchemas(t *testing.T) {
	const n = 4
	groups := collective.NewSimGroups(n)
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(id int) {
			defer wg.Done()
			errs[id] = Verify(ctx, groups[id], alloc, matchingSchema())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: Verify: %v", i, err)
		}
	}
}

func TestVerifyRejectsDivergentSchema(t *testing.T) {
	const n = 3
	groups := collective.NewSimGroups(n)
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	oddOneOut := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int32},
	}, nil)

	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(id int) {
			defer wg.Done()
			schema := matchingSchema()
			if id == 1 {
				schema = oddOneOut
			}
			errs[id] = Verify(ctx, groups[id], alloc, schema)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, shuffleerr.ErrSchemaInconsistent) {
			t.Fatalf("worker %d: expected ErrSchemaInconsistent, got %v", i, err)
		}
	}
}

func TestVerifySingleWorkerJustBarriers(t *testing.T) {
	groups := collective.NewSimGroups(1)
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := Verify(ctx, groups[0], alloc, matchingSchema()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}
