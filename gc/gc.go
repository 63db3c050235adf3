// Package gc implements the generational cycle collector for container
// ("trackable") objects (spec §4.3). Reference counting alone frees
// acyclic garbage immediately; this collector reclaims the cycles
// refcounting cannot, using the same generation/threshold/gc_ref scheme
// as the original gc.c.
package gc

import (
	"koa/object"
)

// genCount is the number of generations (spec §4.3: "3-generation
// collector").
const genCount = 3

// thresholds mirrors the original's per-generation promotion counts
// exactly: generation 0 collects after 500 tracked objects accumulate,
// generations 1 and 2 after 10 promotions each.
var thresholds = [genCount]int{500, 10, 10}

// Collector is a per-thread cycle collector (spec §5: "each thread owns
// its own... GC generations"). The zero value is not usable; use New.
type Collector struct {
	generations [genCount][]object.Trackable
	opsSinceGC  int
}

func New() *Collector {
	return &Collector{}
}

// Track registers a freshly allocated container object with generation 0
// (spec §4.3 step 0, "gc_track").
func (c *Collector) Track(obj object.Trackable) {
	obj.SetGCGeneration(0)
	obj.SetGCState(object.StateReachable)
	c.generations[0] = append(c.generations[0], obj)
}

// Untrack removes obj from its generation immediately, used when an
// object is torn down by ordinary refcounting before the collector ever
// sees it again (spec §4.3 "gc_untrack").
func (c *Collector) Untrack(obj object.Trackable) {
	gen := obj.GCGeneration()
	list := c.generations[gen]
	for i, o := range list {
		if o == obj {
			c.generations[gen] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Tick is called once per executed opcode; every 1000 calls it runs a
// generation-0 collection if that generation's threshold has been
// reached (spec §4.3 "triggered... every 1000 executed opcodes").
func (c *Collector) Tick() {
	c.opsSinceGC++
	if c.opsSinceGC < 1000 {
		return
	}
	c.opsSinceGC = 0
	if len(c.generations[0]) >= thresholds[0] {
		c.Collect(0)
	}
}

// OnBlockExit runs a generation-0 collection unconditionally, matching
// the original's "collect at every block exit" trigger in addition to
// the opcode-count trigger (spec §4.3).
func (c *Collector) OnBlockExit() {
	if len(c.generations[0]) > 0 {
		c.Collect(0)
	}
}

// Collect runs a full mark-sweep pass over generation gen and, if that
// generation's survivor count still exceeds its threshold, promotes the
// survivors into gen+1 and recurses (spec §4.3 steps 1-6):
//
//  1. merge younger generations into gen
//  2. gc_ref := refcount for every object in gen
//  3. traverse each object's children, decrementing the child's gc_ref
//     (an internal reference does not count toward external reachability)
//  4. objects with gc_ref > 0 are REACHABLE; the rest start UNREACHABLE
//  5. anything reachable from a REACHABLE object is resurrected to
//     REACHABLE (breadth-first over the traversal graph)
//  6. everything still UNREACHABLE has its children unreffed (possibly
//     cascading frees) and is itself freed
func (c *Collector) Collect(gen int) {
	for g := 0; g < gen; g++ {
		c.generations[gen] = append(c.generations[gen], c.generations[g]...)
		c.generations[g] = nil
	}
	list := c.generations[gen]
	if len(list) == 0 {
		return
	}

	index := make(map[object.Trackable]int, len(list))
	for i, o := range list {
		o.SetGCRef(o.Header().Refcount())
		index[o] = i
	}

	for _, o := range list {
		o.Traverse(func(child object.Value) bool {
			if t, ok := child.(object.Trackable); ok {
				if _, inSet := index[t]; inSet {
					t.SetGCRef(t.GCRef() - 1)
				}
			}
			return false
		})
	}

	for _, o := range list {
		if o.GCRef() > 0 {
			o.SetGCState(object.StateReachable)
		} else {
			o.SetGCState(object.StateUnreachable)
		}
	}

	var queue []object.Trackable
	for _, o := range list {
		if o.GCState() == object.StateReachable {
			queue = append(queue, o)
		}
	}
	for len(queue) > 0 {
		o := queue[0]
		queue = queue[1:]
		o.Traverse(func(child object.Value) bool {
			t, ok := child.(object.Trackable)
			if !ok {
				return false
			}
			if t.GCState() == object.StateUnreachable {
				t.SetGCState(object.StateReachable)
				queue = append(queue, t)
			}
			return false
		})
	}

	var survivors []object.Trackable
	var garbage []object.Trackable
	for _, o := range list {
		if o.GCState() == object.StateReachable {
			survivors = append(survivors, o)
		} else {
			garbage = append(garbage, o)
		}
	}

	garbageSet := make(map[object.Trackable]struct{}, len(garbage))
	for _, o := range garbage {
		garbageSet[o] = struct{}{}
	}
	for _, o := range garbage {
		o.Traverse(func(child object.Value) bool {
			if child.Header().Unref() {
				// A child that is itself garbage is torn down by this
				// loop; freeing it here would walk the cycle forever.
				if t, ok := child.(object.Trackable); ok {
					if _, inGarbage := garbageSet[t]; inGarbage {
						return true
					}
				}
				object.Free(child)
			}
			return true // sever the edge (spec §4.3 traversal contract)
		})
	}

	c.generations[gen] = survivors

	if gen+1 < genCount && len(survivors) >= thresholds[gen] {
		for _, o := range survivors {
			o.SetGCGeneration(gen + 1)
		}
		c.generations[gen+1] = append(c.generations[gen+1], survivors...)
		c.generations[gen] = nil
		c.Collect(gen + 1)
	}
}

// ObjectCount reports the total number of tracked objects across all
// generations, used by tests asserting cycle-collection completeness
// (spec §8.1).
func (c *Collector) ObjectCount() int {
	n := 0
	for _, g := range c.generations {
		n += len(g)
	}
	return n
}
