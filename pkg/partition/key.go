// Package partition implements the partitioned vertex- and edge-table
// drivers: they compute a destination worker per row and hand the
// resulting offset lists to the shuffle engine.
package partition

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/arrowshuffle/shuffle/pkg/arrowutil"
	"github.com/arrowshuffle/shuffle/pkg/partexpr"
)

// KeyFunc extracts one int64 partition key per row of batch.
type KeyFunc func(batch arrow.Record) ([]int64, error)

// ColumnKey builds a KeyFunc that reads an existing int64 column by name —
// the common case, e.g. partitioning a vertex table by its "id" column.
func ColumnKey(column string) KeyFunc {
	return func(batch arrow.Record) ([]int64, error) {
		idx := arrowutil.ColumnIndex(batch, column)
		if idx < 0 {
			return nil, fmt.Errorf("partition key column %q not found", column)
		}
		arr, ok := batch.Column(idx).(*array.Int64)
		if !ok {
			return nil, fmt.Errorf("partition key column %q must be int64, got %T", column, batch.Column(idx))
		}
		keys := make([]int64, arr.Len())
		for i := range keys {
			keys[i] = arr.Value(i)
		}
		return keys, nil
	}
}

// ExprKey builds a KeyFunc from a SQL expression evaluated once per batch —
// e.g. "id % 4" — giving callers a declarative partition function instead
// of a column that already holds the key.
func ExprKey(alloc memory.Allocator, sqlExpr string) KeyFunc {
	ev := partexpr.NewEvaluator(alloc)
	return func(batch arrow.Record) ([]int64, error) {
		result, err := ev.Eval(context.Background(), batch, sqlExpr)
		if err != nil {
			return nil, fmt.Errorf("partition expression %q: %w", sqlExpr, err)
		}
		defer result.Release()
		arr, ok := result.(*array.Int64)
		if !ok {
			return nil, fmt.Errorf("partition expression %q must produce int64, got %T", sqlExpr, result)
		}
		keys := make([]int64, arr.Len())
		for i := range keys {
			keys[i] = arr.Value(i)
		}
		return keys, nil
	}
}

// Partitioner maps a partition key to a destination worker ID in
// [0, workerCount).
type Partitioner func(key int64, workerCount int) int

// ModuloPartitioner is the default Partitioner: key mod workerCount,
// normalized to stay non-negative for negative keys.
func ModuloPartitioner(key int64, workerCount int) int {
	m := key % int64(workerCount)
	if m < 0 {
		m += int64(workerCount)
	}
	return int(m)
}
