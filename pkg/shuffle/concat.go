package shuffle

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// concatRecords combines the loopback selection and every decoded archive
// into a single record owned by the caller. Every record in records must
// share schema.
func concatRecords(alloc memory.Allocator, schema *arrow.Schema, records []arrow.Record) (arrow.Record, error) {
	totalRows := int64(0)
	for _, rec := range records {
		totalRows += rec.NumRows()
	}
	if totalRows == 0 {
		return emptyRecord(alloc, schema), nil
	}

	table := array.NewTableFromRecords(schema, records)
	defer table.Release()

	cols := make([]arrow.Array, schema.NumFields())
	for i := range cols {
		col, err := array.Concatenate(table.Column(i).Data().Chunks(), alloc)
		if err != nil {
			return nil, fmt.Errorf("shuffle: failed to consolidate %d records into one: %w", len(records), err)
		}
		defer col.Release()
		cols[i] = col
	}
	return array.NewRecord(schema, cols, totalRows), nil
}

func emptyRecord(alloc memory.Allocator, schema *arrow.Schema) arrow.Record {
	cols := make([]arrow.Array, schema.NumFields())
	for i, field := range schema.Fields() {
		bldr := array.NewBuilder(alloc, field.Type)
		cols[i] = bldr.NewArray()
		bldr.Release()
	}
	rec := array.NewRecord(schema, cols, 0)
	for _, col := range cols {
		col.Release()
	}
	return rec
}

// cloneRecord wraps a borrowed record's column data (one still owned by a
// Table or TableReader) in a new record that holds its own references, so it
// outlives the Table or TableReader. The underlying buffers are shared, not
// copied.
func cloneRecord(alloc memory.Allocator, record arrow.Record) arrow.Record {
	schema := record.Schema()
	cols := make([]arrow.Array, record.NumCols())
	for i, col := range record.Columns() {
		cols[i] = array.MakeFromData(col.Data())
	}
	rec := array.NewRecord(schema, cols, record.NumRows())
	for _, col := range cols {
		col.Release()
	}
	return rec
}
