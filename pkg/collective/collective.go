// Package collective provides the MPI-like collective runtime the shuffle
// engine coordinates over: point-to-point Send/Recv/Probe plus
// AllreduceSum and Barrier, decoupled from any specific wire transport.
//
// Transport implementations only need to move tagged byte payloads between
// numbered workers; Wrap builds the two collective operations on top of any
// Transport using a star topology rooted at worker 0. SimTransport backs an
// in-process multi-worker test harness; KafkaTransport backs workers running
// as separate OS processes.
package collective

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/arrowshuffle/shuffle/pkg/shuffleerr"
)

// Tag identifies the purpose of a point-to-point message. Application code
// is free to define additional tags at or above TagApplicationBase for its own use (the
// shuffle engine's archive transfers use their own tag space).
type Tag int32

const (
	TagSchema Tag = iota
	TagAllreduce
	TagBarrier
	// TagApplicationBase is the first tag value applications are free to use
	// for their own point-to-point messages.
	TagApplicationBase
)

// Transport moves tagged byte payloads between numbered workers 0..N-1.
// Send/Recv are point-to-point; Probe reports which (src, tag) pair is next
// available without consuming it, mirroring MPI_Probe with ANY_SOURCE.
type Transport interface {
	WorkerID() int
	WorkerCount() int
	// LocalPeerCount reports how many workers in the group, including this
	// one, share this transport's local hardware — the divisor the shuffle
	// engine's thread budget spreads CPU concurrency across.
	LocalPeerCount() int
	Send(ctx context.Context, dst int, tag Tag, payload []byte) error
	Recv(ctx context.Context, src int, tag Tag) ([]byte, error)
	Probe(ctx context.Context) (src int, tag Tag, err error)
	Close() error
}

// Group is a Transport plus the two collective operations the shuffle engine
// needs: an allreduce-sum over a fixed-length vector of int64, and a barrier.
type Group interface {
	Transport
	AllreduceSum(ctx context.Context, values []int64) ([]int64, error)
	Barrier(ctx context.Context) error
}

const rootWorker = 0

type starGroup struct {
	Transport
}

// Wrap builds a Group out of any Transport, implementing AllreduceSum and
// Barrier with a star topology rooted at worker 0. This keeps the collective
// algorithms transport-agnostic: the same implementation runs unmodified
// over SimTransport and KafkaTransport.
func Wrap(t Transport) Group {
	return &starGroup{Transport: t}
}

func encodeInt64s(values []int64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.NativeEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf
}

func decodeInt64s(buf []byte) []int64 {
	out := make([]int64, len(buf)/8)
	for i := range out {
		out[i] = int64(binary.NativeEndian.Uint64(buf[i*8:]))
	}
	return out
}

// AllreduceSum sums values element-wise across every worker in the group and
// returns the same result to all of them.
func (g *starGroup) AllreduceSum(ctx context.Context, values []int64) ([]int64, error) {
	id := g.WorkerID()
	n := g.WorkerCount()

	if id != rootWorker {
		if err := g.Send(ctx, rootWorker, TagAllreduce, encodeInt64s(values)); err != nil {
			return nil, fmt.Errorf("%w: allreduce send to root: %v", shuffleerr.ErrTransportFailed, err)
		}
		payload, err := g.Recv(ctx, rootWorker, TagAllreduce)
		if err != nil {
			return nil, fmt.Errorf("%w: allreduce recv from root: %v", shuffleerr.ErrTransportFailed, err)
		}
		return decodeInt64s(payload), nil
	}

	sum := append([]int64(nil), values...)
	for src := 0; src < n; src++ {
		if src == rootWorker {
			continue
		}
		payload, err := g.Recv(ctx, src, TagAllreduce)
		if err != nil {
			return nil, fmt.Errorf("%w: allreduce recv from %d: %v", shuffleerr.ErrTransportFailed, src, err)
		}
		vals := decodeInt64s(payload)
		if len(vals) != len(sum) {
			return nil, fmt.Errorf("%w: allreduce vector length mismatch from worker %d", shuffleerr.ErrTransportFailed, src)
		}
		for i, v := range vals {
			sum[i] += v
		}
	}

	encoded := encodeInt64s(sum)
	for dst := 0; dst < n; dst++ {
		if dst == rootWorker {
			continue
		}
		if err := g.Send(ctx, dst, TagAllreduce, encoded); err != nil {
			return nil, fmt.Errorf("%w: allreduce send to %d: %v", shuffleerr.ErrTransportFailed, dst, err)
		}
	}
	return sum, nil
}

// Barrier blocks every worker in the group until all of them have called it.
func (g *starGroup) Barrier(ctx context.Context) error {
	id := g.WorkerID()
	n := g.WorkerCount()

	if id != rootWorker {
		if err := g.Send(ctx, rootWorker, TagBarrier, nil); err != nil {
			return fmt.Errorf("%w: barrier send to root: %v", shuffleerr.ErrTransportFailed, err)
		}
		if _, err := g.Recv(ctx, rootWorker, TagBarrier); err != nil {
			return fmt.Errorf("%w: barrier recv from root: %v", shuffleerr.ErrTransportFailed, err)
		}
		return nil
	}

	for src := 0; src < n; src++ {
		if src == rootWorker {
			continue
		}
		if _, err := g.Recv(ctx, src, TagBarrier); err != nil {
			return fmt.Errorf("%w: barrier recv from %d: %v", shuffleerr.ErrTransportFailed, src, err)
		}
	}
	for dst := 0; dst < n; dst++ {
		if dst == rootWorker {
			continue
		}
		if err := g.Send(ctx, dst, TagBarrier, nil); err != nil {
			return fmt.Errorf("%w: barrier send to %d: %v", shuffleerr.ErrTransportFailed, dst, err)
		}
	}
	return nil
}
