package partition

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/arrowshuffle/shuffle/pkg/shuffle"
)

// rowChunkSize bounds how many rows a single classification goroutine claims
// at a time.
const rowChunkSize = 4096

// classifySingle computes, for every row, the one destination it belongs to
// and returns the resulting offset lists. Row ranges are claimed off a
// shared atomic counter so the scan itself runs across the local machine's
// cores before any network traffic starts.
func classifySingle(keys []int64, workerCount int, part Partitioner) shuffle.OffsetLists {
	if part == nil {
		part = ModuloPartitioner
	}
	n := len(keys)
	numChunks := (n + rowChunkSize - 1) / rowChunkSize
	if numChunks == 0 {
		return make(shuffle.OffsetLists, workerCount)
	}

	partials := make([]shuffle.OffsetLists, numChunks)
	var nextChunk atomic.Int64
	workers := runtime.GOMAXPROCS(0)
	if workers > numChunks {
		workers = numChunks
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				c := nextChunk.Add(1) - 1
				if int(c) >= numChunks {
					return nil
				}
				start := int(c) * rowChunkSize
				end := start + rowChunkSize
				if end > n {
					end = n
				}
				local := make(shuffle.OffsetLists, workerCount)
				for i := start; i < end; i++ {
					dst := part(keys[i], workerCount)
					local[dst] = append(local[dst], int64(i))
				}
				partials[c] = local
			}
		})
	}
	_ = g.Wait() // classification never returns an error

	merged := make(shuffle.OffsetLists, workerCount)
	for _, p := range partials {
		for dst, offs := range p {
			merged[dst] = append(merged[dst], offs...)
		}
	}
	return merged
}

// classifyDual is classifySingle's edge-table counterpart: each row is
// routed to the owner of srcKeys[i] and, when different, additionally
// duplicated to the owner of dstKeys[i] so an edge remains visible at both
// of its incident vertices' owning workers.
func classifyDual(srcKeys, dstKeys []int64, workerCount int, part Partitioner) shuffle.OffsetLists {
	if part == nil {
		part = ModuloPartitioner
	}
	n := len(srcKeys)
	numChunks := (n + rowChunkSize - 1) / rowChunkSize
	if numChunks == 0 {
		return make(shuffle.OffsetLists, workerCount)
	}

	partials := make([]shuffle.OffsetLists, numChunks)
	var nextChunk atomic.Int64
	workers := runtime.GOMAXPROCS(0)
	if workers > numChunks {
		workers = numChunks
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				c := nextChunk.Add(1) - 1
				if int(c) >= numChunks {
					return nil
				}
				start := int(c) * rowChunkSize
				end := start + rowChunkSize
				if end > n {
					end = n
				}
				local := make(shuffle.OffsetLists, workerCount)
				for i := start; i < end; i++ {
					srcDst := part(srcKeys[i], workerCount)
					dstDst := part(dstKeys[i], workerCount)
					local[srcDst] = append(local[srcDst], int64(i))
					if dstDst != srcDst {
						local[dstDst] = append(local[dstDst], int64(i))
					}
				}
				partials[c] = local
			}
		})
	}
	_ = g.Wait()

	merged := make(shuffle.OffsetLists, workerCount)
	for _, p := range partials {
		for dst, offs := range p {
			merged[dst] = append(merged[dst], offs...)
		}
	}
	return merged
}
