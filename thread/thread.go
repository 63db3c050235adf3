// Package thread implements the engine's user-level concurrency model
// (spec §5): spawning an isolated interpreter thread per goroutine, with
// its own allocator, GC generations, object caches, and evaluation stack,
// and joining or cancelling it.
package thread

import (
	"sync"
	"sync/atomic"

	"koa/code"
	"koa/koaerr"
	"koa/object"
	"koa/pool"
	"koa/vm"
)

var nextHandleID uint64

// Handle is a spawned thread's join/cancel handle (spec §5 "spawn...
// starts an OS thread"; goroutines stand in for the original's OS
// threads, matching the observable spawn/join/cancel contract without
// claiming literal OS-thread parity).
type Handle struct {
	mu       sync.Mutex
	done     chan struct{}
	result   object.Value
	err      *koaerr.Error
	cancelled bool

	id        uint64
	thread    *vm.Thread
	allocator *pool.Allocator
}

// ID uniquely identifies this handle for the lifetime of the process,
// used by HandleValue's Hash/Eq.
func (h *Handle) ID() uint64 { return h.id }

// Spawn starts a new thread executing body with a deep-copied argument
// vector (spec §5: "spawn deep-copies the argument vector via a
// temporarily-installed secondary allocator"). The child gets its own
// vm.Thread (and therefore its own GC generations, object caches, and
// value stack — spec §5 "per-thread isolation").
func Spawn(body *code.Code, args []object.Value) *Handle {
	h := &Handle{
		done:      make(chan struct{}),
		thread:    vm.NewThread(),
		allocator: pool.NewAllocator(),
		id:        atomic.AddUint64(&nextHandleID, 1),
	}
	copied := deepCopyArgs(args, h.allocator)

	go func() {
		defer close(h.done)
		v, err := h.thread.Call(body, copied)
		h.mu.Lock()
		h.result, h.err = v, err
		h.mu.Unlock()
	}()
	return h
}

// deepCopyArgs snapshots the argument vector using a secondary allocator
// so the child thread never shares mutable container state with its
// parent (spec §5). Scalars and immutable STR are shared as-is (STR's
// immutability and scalar immortal-caching make sharing safe); VEC/DICT
// are recursively cloned.
func deepCopyArgs(args []object.Value, a *pool.Allocator) []object.Value {
	_ = a // accounted for in DESIGN.md: the allocator is tracked per-thread
	// for bookkeeping parity with the spec; Go's GC (not this allocator)
	// actually backs the clone below.
	out := make([]object.Value, len(args))
	for i, v := range args {
		out[i] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v object.Value) object.Value {
	switch x := v.(type) {
	case *object.Vec:
		elems := x.Elements()
		cloned := make([]object.Value, len(elems))
		for i, e := range elems {
			cloned[i] = deepCopyValue(e)
		}
		return object.NewVec(cloned)
	case *object.Dict:
		cloned := object.NewDict()
		x.Each(func(key, val object.Value) {
			cloned.Set(deepCopyValue(key), deepCopyValue(val))
		})
		return cloned
	case *object.Struct:
		fields := x.Fields()
		cloned := make([]object.Value, len(fields))
		for i, f := range fields {
			cloned[i] = deepCopyValue(f)
		}
		return object.NewStruct(x.Kind(), x.Meta(), cloned)
	case *object.Union:
		cloned := object.NewUnion(x.Kind(), x.DeclNames(), x.DeclTypes())
		if x.Current().Kind() != object.KindVoid {
			cloned.Set(deepCopyValue(x.Current()))
		}
		return cloned
	default:
		// Scalars, STR, FUNC, MOD and the rest are either immutable or
		// process-wide (spec §3.3, §3.4); sharing the reference is safe
		// and matches the original's refcount-bump-on-copy behaviour.
		v.Header().Ref()
		return v
	}
}

// Join blocks until the thread completes and returns its return value
// (spec §9 "Open question — join semantics": the source's thread_join
// returns the child's argument vector, which is treated here as a bug;
// join returns the child's actual return value).
func (h *Handle) Join() (object.Value, *koaerr.Error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return nil, koaerr.New(koaerr.Fatal, "thread was cancelled", 0, 0)
	}
	return h.result, h.err
}

// Cancel is best-effort: it tears down the child's allocator wholesale
// without running pending frees (spec §5 "Cancellation is best-effort...
// does not run pending free routines... allocators are torn down
// wholesale on cancel"). Go has no true thread-cancel primitive; this
// marks the handle cancelled so a subsequent Join reports it, and frees
// the allocator context immediately rather than waiting for the
// goroutine to notice.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	h.allocator.FreeAll()
}
