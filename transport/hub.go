package transport

import (
	"sort"
	"sync"
)

// Hub is a listener registry for Transport implementations. The zero
// value is ready for use. Dispatch calls listeners outside the lock,
// so a listener may subscribe or cancel from within its own callback.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[EventKind]map[int]Listener
}

// Subscribe registers fn for events of the given kind, implementing
// the Transport subscription contract.
func (h *Hub) Subscribe(kind EventKind, fn Listener) (cancel func()) {
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[EventKind]map[int]Listener)
	}
	if h.subs[kind] == nil {
		h.subs[kind] = make(map[int]Listener)
	}
	id := h.next
	h.next++
	h.subs[kind][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[kind], id)
			h.mu.Unlock()
		})
	}
}

// Dispatch delivers ev to every listener subscribed to ev.Kind, in
// subscription order.
func (h *Hub) Dispatch(ev Event) {
	h.mu.Lock()
	kindSubs := h.subs[ev.Kind]
	ids := make([]int, 0, len(kindSubs))
	for id := range kindSubs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, kindSubs[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Subscribers returns the number of live registrations across all
// event kinds. Intended for tests asserting listener teardown.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.subs {
		n += len(m)
	}
	return n
}
