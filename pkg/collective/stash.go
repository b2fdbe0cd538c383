package collective

import (
	"context"
	"sync"
)

// message is the common envelope shape every Transport delivers internally,
// regardless of wire representation.
type message struct {
	src, dst int
	tag      Tag
	payload  []byte
}

// isControlTag reports whether tag belongs to the collective runtime's own
// control traffic (schema exchange, allreduce, barrier) rather than
// application traffic (the shuffle engine's archive transfers). The two are
// routed to separate lanes so the shuffle engine's ANY_SOURCE Probe loop can
// never observe, consume, or silently drop a peer's Barrier or AllreduceSum
// message — the pitfall of a shared inbox when peers finish a round at
// different times.
func isControlTag(tag Tag) bool { return tag < TagApplicationBase }

// inboxStash holds messages read off a transport's inbound channel that
// didn't match the (src, tag) pair a caller was waiting for, or that belong
// to the other lane. recv drains it before blocking on the channel again;
// probe peeks its head first.
type inboxStash struct {
	mu    sync.Mutex
	items []message
}

func (s *inboxStash) takeMatching(src int, tag Tag) (message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.items {
		if m.src == src && m.tag == tag {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return m, true
		}
	}
	return message{}, false
}

func (s *inboxStash) push(m message) {
	s.mu.Lock()
	s.items = append(s.items, m)
	s.mu.Unlock()
}

func (s *inboxStash) peekHead() (message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return message{}, false
	}
	return s.items[0], true
}

// router demultiplexes a transport's single raw inbound channel into a
// control lane (schema/allreduce/barrier, tags below TagApplicationBase)
// and an application lane (everything a shuffle round sends), each with its
// own stash. Recv serves either lane by (src, tag); Probe only ever reports
// application-lane traffic, since the shuffle engine is the only caller
// that probes ANY_SOURCE and it only ever wants archive fragments.
type router struct {
	inbox   <-chan message
	control inboxStash
	app     inboxStash
}

func newRouter(inbox <-chan message) *router {
	return &router{inbox: inbox}
}

func (r *router) lane(tag Tag) *inboxStash {
	if isControlTag(tag) {
		return &r.control
	}
	return &r.app
}

// recv waits for a message matching (src, tag), reading off the raw channel
// and stashing anything else into its own lane until the wanted message
// arrives.
func (r *router) recv(ctx context.Context, src int, tag Tag) ([]byte, error) {
	if m, ok := r.lane(tag).takeMatching(src, tag); ok {
		return m.payload, nil
	}
	for {
		m, err := r.next(ctx)
		if err != nil {
			return nil, err
		}
		if m.src == src && m.tag == tag {
			return m.payload, nil
		}
		r.lane(m.tag).push(m)
	}
}

// probe reports the next available application-lane message without
// consuming it. Control traffic encountered along the way is stashed on its
// own lane rather than returned, so a caller polling ANY_SOURCE for archive
// fragments never sees — and never has the chance to discard — a peer's
// Barrier or AllreduceSum message.
func (r *router) probe(ctx context.Context) (int, Tag, error) {
	if m, ok := r.app.peekHead(); ok {
		return m.src, m.tag, nil
	}
	for {
		m, err := r.next(ctx)
		if err != nil {
			return 0, 0, err
		}
		if isControlTag(m.tag) {
			r.control.push(m)
			continue
		}
		r.app.push(m)
		return m.src, m.tag, nil
	}
}

func (r *router) next(ctx context.Context) (message, error) {
	select {
	case m := <-r.inbox:
		return m, nil
	case <-ctx.Done():
		return message{}, ctx.Err()
	}
}
