package collective

import (
	"context"
	"fmt"

	"github.com/arrowshuffle/shuffle/pkg/shuffleerr"
)

// simTransport connects N in-process workers over Go channels, letting tests
// drive the full collective + shuffle pipeline without any real network.
type simTransport struct {
	id      int
	n       int
	inboxes []chan message
	router  *router
}

// NewSimGroups builds n Groups connected in-process over shared inbox
// channels, each with its own router, indexed by worker ID. Every worker must run in its own goroutine; Send blocks once a
// peer's inbox (capacity 256) is full.
func NewSimGroups(n int) []Group {
	inboxes := make([]chan message, n)
	for i := range inboxes {
		inboxes[i] = make(chan message, 256)
	}
	groups := make([]Group, n)
	for i := 0; i < n; i++ {
		groups[i] = Wrap(&simTransport{id: i, n: n, inboxes: inboxes, router: newRouter(inboxes[i])})
	}
	return groups
}

func (t *simTransport) WorkerID() int    { return t.id }
func (t *simTransport) WorkerCount() int { return t.n }

// LocalPeerCount is WorkerCount: every simulated worker shares this process,
// and therefore this machine's cores.
func (t *simTransport) LocalPeerCount() int { return t.n }

func (t *simTransport) Send(ctx context.Context, dst int, tag Tag, payload []byte) error {
	if dst < 0 || dst >= t.n {
		return fmt.Errorf("%w: destination worker %d out of range [0,%d)", shuffleerr.ErrTransportFailed, dst, t.n)
	}
	msg := message{src: t.id, dst: dst, tag: tag, payload: payload}
	select {
	case t.inboxes[dst] <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *simTransport) Recv(ctx context.Context, src int, tag Tag) ([]byte, error) {
	return t.router.recv(ctx, src, tag)
}

func (t *simTransport) Probe(ctx context.Context) (int, Tag, error) {
	return t.router.probe(ctx)
}

func (t *simTransport) Close() error { return nil }
