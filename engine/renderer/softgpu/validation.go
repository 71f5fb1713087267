package softgpu

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type ViolationKind int

const (
	// A buffer or image was destroyed while its memory was still allocated.
	ViolationMemoryStillBound ViolationKind = iota
	// An object was destroyed while objects created from it were alive.
	ViolationParentBeforeChild
	// A handle was used after destruction or was never created.
	ViolationInvalidHandle
	// A submit waited on a semaphore nothing had signaled.
	ViolationUnsignaledWait
	// Non-coherent memory was unmapped or freed with writes never flushed.
	ViolationUnflushedWrite
	// A command or state transition was issued in the wrong state.
	ViolationInvalidUsage
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationMemoryStillBound:
		return "memory-still-bound"
	case ViolationParentBeforeChild:
		return "parent-before-child"
	case ViolationInvalidHandle:
		return "invalid-handle"
	case ViolationUnsignaledWait:
		return "unsignaled-wait"
	case ViolationUnflushedWrite:
		return "unflushed-write"
	case ViolationInvalidUsage:
		return "invalid-usage"
	}
	return fmt.Sprintf("violation(%d)", int(k))
}

type Violation struct {
	Kind   ViolationKind
	Detail string
}

func (v Violation) String() string {
	return v.Kind.String() + ": " + v.Detail
}

type object struct {
	kind    string
	value   interface{}
	parents []uint64
}

// ledger hands out handles and remembers who depends on whom.
type ledger struct {
	mu         sync.Mutex
	next       uint64
	objects    map[uint64]*object
	created    map[string]int
	violations []Violation
}

func newLedger() *ledger {
	return &ledger{
		objects: make(map[uint64]*object),
		created: make(map[string]int),
	}
}

func (l *ledger) add(kind string, value interface{}, parents ...uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	h := l.next
	l.objects[h] = &object{kind: kind, value: value, parents: parents}
	l.created[kind]++
	return h
}

func (l *ledger) violate(kind ViolationKind, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := Violation{Kind: kind, Detail: detail}
	l.violations = append(l.violations, v)
	core.LogWarn("softgpu validation: %s", v)
}

// lookup returns the live object of the given kind behind h.
func lookup[T any](l *ledger, h uint64, kind string) (T, error) {
	var zero T
	l.mu.Lock()
	obj, ok := l.objects[h]
	l.mu.Unlock()
	if !ok || obj.kind != kind {
		l.violate(ViolationInvalidHandle, fmt.Sprintf("%s %d is not alive", kind, h))
		return zero, &gpu.APIError{Op: "lookup " + kind, Result: gpu.ErrorInvalidHandle}
	}
	v, ok := obj.value.(T)
	if !ok {
		return zero, &gpu.APIError{Op: "lookup " + kind, Result: gpu.ErrorInvalidHandle}
	}
	return v, nil
}

func (l *ledger) alive(h uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.objects[h]
	return ok
}

// children returns the live objects that list h as a parent.
func (l *ledger) children(h uint64) []string {
	var out []string
	for ch, obj := range l.objects {
		for _, p := range obj.parents {
			if p == h {
				out = append(out, fmt.Sprintf("%s %d", obj.kind, ch))
			}
		}
	}
	sort.Strings(out)
	return out
}

// destroy removes h, recording a violation for every child still alive. The
// null handle is ignored like in Vulkan.
func (l *ledger) destroy(h uint64, kind string) bool {
	if h == 0 {
		return false
	}
	l.mu.Lock()
	obj, ok := l.objects[h]
	if !ok || obj.kind != kind {
		l.mu.Unlock()
		l.violate(ViolationInvalidHandle, fmt.Sprintf("destroy of %s %d that is not alive", kind, h))
		return false
	}
	children := l.children(h)
	delete(l.objects, h)
	l.mu.Unlock()

	for _, ch := range children {
		l.violate(ViolationParentBeforeChild, fmt.Sprintf("%s %d destroyed before %s", kind, h, ch))
	}
	return true
}

// remove drops h without parent checks; used for objects freed implicitly
// with their pool.
func (l *ledger) remove(h uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.objects, h)
}

func (l *ledger) liveOfKind(kind string) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []uint64
	for h, obj := range l.objects {
		if kind == "" || obj.kind == kind {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (l *ledger) kindOf(h uint64) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if obj, ok := l.objects[h]; ok {
		return obj.kind
	}
	return ""
}

func (l *ledger) createdCount(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if kind != "" {
		return l.created[kind]
	}
	n := 0
	for _, c := range l.created {
		n += c
	}
	return n
}

func (l *ledger) violationsCopy() []Violation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Violation(nil), l.violations...)
}
