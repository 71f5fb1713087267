package vulkan

import "sync"

// handles maps the driver's uint64 handles onto native Vulkan objects. Zero is
// never issued so it stays the null handle.
type handles[T any] struct {
	mu    sync.Mutex
	next  uint64
	items map[uint64]T
}

func newHandles[T any]() *handles[T] {
	return &handles[T]{items: make(map[uint64]T)}
}

func (h *handles[T]) put(v T) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.items[h.next] = v
	return h.next
}

func (h *handles[T]) get(id uint64) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.items[id]
	return v, ok
}

// take removes id and returns its object.
func (h *handles[T]) take(id uint64) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.items[id]
	if ok {
		delete(h.items, id)
	}
	return v, ok
}

func (h *handles[T]) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// removeIf drops every object matching fn, for children freed along with
// their parent.
func (h *handles[T]) removeIf(fn func(T) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, v := range h.items {
		if fn(v) {
			delete(h.items, id)
		}
	}
}

// find returns the id of the first object matching fn.
func (h *handles[T]) find(fn func(T) bool) (uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, v := range h.items {
		if fn(v) {
			return id, true
		}
	}
	return 0, false
}
