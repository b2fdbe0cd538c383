// Package arrowutil provides convenience functions for working with Arrow
// record batches, used by the partitioned driver package.
package arrowutil

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// ColumnIndex returns the index of a named column, or -1 if not found.
func ColumnIndex(batch arrow.Record, name string) int {
	indices := batch.Schema().FieldIndices(name)
	if len(indices) == 0 {
		return -1
	}
	return indices[0]
}

// SplitTable breaks table into a sequence of record batches of at most
// batchRows rows each, in table order. The caller owns every returned
// record and must Release it. A zero-row table yields zero batches.
func SplitTable(table arrow.Table, batchRows int64) []arrow.Record {
	if batchRows <= 0 {
		batchRows = table.NumRows()
	}
	if table.NumRows() == 0 {
		return nil
	}

	reader := array.NewTableReader(table, batchRows)
	defer reader.Release()

	var batches []arrow.Record
	for reader.Next() {
		rec := reader.Record()
		rec.Retain()
		batches = append(batches, rec)
	}
	return batches
}
