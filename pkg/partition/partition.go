package partition

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/arrowshuffle/shuffle/pkg/arrowutil"
	"github.com/arrowshuffle/shuffle/pkg/codec"
	"github.com/arrowshuffle/shuffle/pkg/shuffle"
)

// defaultBatchRows bounds how many rows of an input table one shuffled
// batch carries, when a driver doesn't set BatchRows itself.
const defaultBatchRows = 8192

func releaseRecords(records []arrow.Record) {
	for _, rec := range records {
		rec.Release()
	}
}

// VertexDriver shuffles a vertex table so that every row ends up on the
// worker its partition key maps to. Every worker in the group must call
// Run for the same logical round, even when its local table has zero rows,
// since the underlying shuffle is a collective operation. The input table
// is split into BatchRows-sized record batches before driving the engine,
// so a worker may bring any number of local batches, including zero.
type VertexDriver struct {
	Engine      *shuffle.Engine
	Key         KeyFunc
	Partitioner Partitioner
	BatchRows   int64
}

// NewVertexDriver builds a VertexDriver with the default modulo partitioner
// and batch size.
func NewVertexDriver(engine *shuffle.Engine, key KeyFunc) *VertexDriver {
	return &VertexDriver{Engine: engine, Key: key, Partitioner: ModuloPartitioner, BatchRows: defaultBatchRows}
}

// Run partitions table by the driver's key function, batch by batch, and
// shuffles it across the group, returning the consolidated set of rows this
// worker now owns. The caller owns the returned table and must Release it.
func (d *VertexDriver) Run(ctx context.Context, table arrow.Table) (arrow.Table, error) {
	if err := codec.ValidateSchema(table.Schema()); err != nil {
		return nil, fmt.Errorf("vertex table schema: %w", err)
	}

	batches := arrowutil.SplitTable(table, d.BatchRows)
	defer releaseRecords(batches)

	workerCount := d.Engine.Group().WorkerCount()
	offsets := make([]shuffle.OffsetLists, len(batches))
	for b, batch := range batches {
		keys, err := d.Key(batch)
		if err != nil {
			return nil, fmt.Errorf("vertex partition key: %w", err)
		}
		if int64(len(keys)) != batch.NumRows() {
			return nil, fmt.Errorf("partition key produced %d values for %d rows", len(keys), batch.NumRows())
		}
		offsets[b] = classifySingle(keys, workerCount, d.Partitioner)
	}

	out, err := d.Engine.Shuffle(ctx, table.Schema(), batches, offsets)
	if err != nil {
		return nil, err
	}
	defer out.Release()
	return array.NewTableFromRecords(table.Schema(), []arrow.Record{out}), nil
}

// EdgeDriver shuffles an edge table so that every edge ends up visible on
// the worker(s) owning its endpoints. When an edge's two endpoints map to
// different destination workers the edge row is duplicated so both owners
// see it. Like VertexDriver, the input table is split into BatchRows-sized
// record batches before driving the engine.
type EdgeDriver struct {
	Engine      *shuffle.Engine
	SrcKey      KeyFunc
	DstKey      KeyFunc
	Partitioner Partitioner
	BatchRows   int64
}

// NewEdgeDriver builds an EdgeDriver with the default modulo partitioner
// and batch size.
func NewEdgeDriver(engine *shuffle.Engine, srcKey, dstKey KeyFunc) *EdgeDriver {
	return &EdgeDriver{Engine: engine, SrcKey: srcKey, DstKey: dstKey, Partitioner: ModuloPartitioner, BatchRows: defaultBatchRows}
}

// Run partitions table by its endpoint keys, batch by batch, and shuffles
// it across the group, duplicating rows whose endpoints land on different
// workers. The caller owns the returned table and must Release it.
func (d *EdgeDriver) Run(ctx context.Context, table arrow.Table) (arrow.Table, error) {
	if err := codec.ValidateSchema(table.Schema()); err != nil {
		return nil, fmt.Errorf("edge table schema: %w", err)
	}

	batches := arrowutil.SplitTable(table, d.BatchRows)
	defer releaseRecords(batches)

	workerCount := d.Engine.Group().WorkerCount()
	offsets := make([]shuffle.OffsetLists, len(batches))
	for b, batch := range batches {
		srcKeys, err := d.SrcKey(batch)
		if err != nil {
			return nil, fmt.Errorf("edge source key: %w", err)
		}
		dstKeys, err := d.DstKey(batch)
		if err != nil {
			return nil, fmt.Errorf("edge destination key: %w", err)
		}
		if int64(len(srcKeys)) != batch.NumRows() || int64(len(dstKeys)) != batch.NumRows() {
			return nil, fmt.Errorf("endpoint keys produced %d/%d values for %d rows", len(srcKeys), len(dstKeys), batch.NumRows())
		}
		offsets[b] = classifyDual(srcKeys, dstKeys, workerCount, d.Partitioner)
	}

	out, err := d.Engine.Shuffle(ctx, table.Schema(), batches, offsets)
	if err != nil {
		return nil, err
	}
	defer out.Release()
	return array.NewTableFromRecords(table.Schema(), []arrow.Record{out}), nil
}
