package shuffle

import "runtime"

// ThreadBudget splits the available CPU parallelism between the serializer
// pool and the deserializer pool of one worker's shuffle pipeline. It
// mirrors the sizing formula the algorithm this engine is modeled on uses:
// spread hardware concurrency evenly across the peers colocated on this
// node, reserve two threads for the sender and receiver loops, and split
// what's left between serialize and deserialize.
type ThreadBudget struct {
	Serialize   int
	Deserialize int
}

// NewThreadBudget computes a ThreadBudget for a worker sharing a machine
// with localPeerCount-1 other workers. Both fields are always at least 1.
func NewThreadBudget(localPeerCount int) ThreadBudget {
	if localPeerCount < 1 {
		localPeerCount = 1
	}
	hw := runtime.GOMAXPROCS(0)
	perWorker := (hw + localPeerCount - 1) / localPeerCount
	if perWorker < 3 {
		perWorker = 3
	}
	pool := perWorker - 2 // sender + receiver loops each take one thread
	serialize := pool / 2
	if serialize < 1 {
		serialize = 1
	}
	deserialize := pool - serialize
	if deserialize < 1 {
		deserialize = 1
	}
	return ThreadBudget{Serialize: serialize, Deserialize: deserialize}
}
