// Package schemacheck implements the collective schema consistency check:
// every worker must agree its local schema is structurally identical to
// every other worker's before any shuffle traffic is produced.
package schemacheck

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/arrowshuffle/shuffle/pkg/collective"
	"github.com/arrowshuffle/shuffle/pkg/metrics"
	"github.com/arrowshuffle/shuffle/pkg/shuffleerr"
)

// Verify runs the three-step consistency check: an allreduce over a
// per-worker serialization-failure flag, a ring exchange of every worker's
// schema, and a closing barrier. It returns nil only if every peer's schema
// is structurally Equal to the local one.
func Verify(ctx context.Context, group collective.Group, alloc memory.Allocator, schema *arrow.Schema) error {
	id := group.WorkerID()
	n := group.WorkerCount()
	workerLabel := strconv.Itoa(id)

	encoded, encodeErr := serializeSchema(schema)

	localFailed := int64(0)
	if encodeErr != nil {
		localFailed = 1
	}
	failures, err := group.AllreduceSum(ctx, []int64{localFailed})
	if err != nil {
		return fmt.Errorf("%w: schema failure allreduce: %v", shuffleerr.ErrTransportFailed, err)
	}
	if failures[0] > 0 {
		if encodeErr != nil {
			metrics.SchemaCheckFailures.WithLabelValues(workerLabel, "serialize").Inc()
		}
		return shuffleerr.ErrSchemaSerializationFailed
	}

	if n == 1 {
		return group.Barrier(ctx)
	}

	peerSchemas := make([]*arrow.Schema, n)
	peerSchemas[id] = schema

	errCh := make(chan error, 2)
	go func() {
		errCh <- sendRing(ctx, group, id, n, encoded)
	}()
	go func() {
		errCh <- recvRing(ctx, group, alloc, id, n, peerSchemas)
	}()
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			return err
		}
	}

	for src, peer := range peerSchemas {
		if src == id {
			continue
		}
		if !peer.Equal(schema) {
			metrics.SchemaCheckFailures.WithLabelValues(workerLabel, "mismatch").Inc()
			return fmt.Errorf("%w: worker %d schema differs from worker %d", shuffleerr.ErrSchemaInconsistent, src, id)
		}
	}

	if err := group.Barrier(ctx); err != nil {
		return fmt.Errorf("%w: post schema-check barrier: %v", shuffleerr.ErrTransportFailed, err)
	}
	return nil
}

// sendRing sends this worker's encoded schema to every peer, in
// (id+1)%n, (id+2)%n, ... order.
func sendRing(ctx context.Context, group collective.Group, id, n int, encoded []byte) error {
	for i := 1; i < n; i++ {
		dst := (id + i) % n
		if err := group.Send(ctx, dst, collective.TagSchema, encoded); err != nil {
			return fmt.Errorf("%w: send schema to worker %d: %v", shuffleerr.ErrTransportFailed, dst, err)
		}
	}
	return nil
}

// recvRing receives every peer's encoded schema, in reverse ring order:
// (id-1+n)%n, (id-2+n)%n, ... — running concurrently with sendRing so a
// slow peer on one side of the ring doesn't stall delivery to the other.
func recvRing(ctx context.Context, group collective.Group, alloc memory.Allocator, id, n int, out []*arrow.Schema) error {
	for i := 1; i < n; i++ {
		src := ((id-i)%n + n) % n
		payload, err := group.Recv(ctx, src, collective.TagSchema)
		if err != nil {
			return fmt.Errorf("%w: recv schema from worker %d: %v", shuffleerr.ErrTransportFailed, src, err)
		}
		peer, err := deserializeSchema(payload, alloc)
		if err != nil {
			metrics.SchemaCheckFailures.WithLabelValues(strconv.Itoa(id), "decode").Inc()
			return fmt.Errorf("%w: worker %d sent an undecodable schema: %v", shuffleerr.ErrSchemaSerializationFailed, src, err)
		}
		out[src] = peer
	}
	return nil
}

func serializeSchema(schema *arrow.Schema) ([]byte, error) {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deserializeSchema(data []byte, alloc memory.Allocator) (*arrow.Schema, error) {
	r, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(alloc))
	if err != nil {
		return nil, err
	}
	defer r.Release()
	return r.Schema(), nil
}
