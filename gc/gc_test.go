package gc

import (
	"testing"

	"koa/object"
)

// TestCollectReclaimsSelfCycle builds a VEC that references itself and
// nothing else, the simplest reference cycle refcounting alone can never
// free: the self-reference keeps the refcount above zero forever.
func TestCollectReclaimsSelfCycle(t *testing.T) {
	v := object.NewVec(nil)
	c := New()
	c.Track(v)

	v.Push(object.Value(v)) // self-reference; refcount becomes 1

	if v.Refcount() != 1 {
		t.Fatalf("refcount after self-push = %d, want 1", v.Refcount())
	}

	c.Collect(0)

	if c.ObjectCount() != 0 {
		t.Fatalf("ObjectCount after collecting an unreachable cycle = %d, want 0", c.ObjectCount())
	}
}

// TestCollectKeepsExternallyReferencedObjects makes sure the collector
// does not reclaim a cycle that is still reachable from outside it: v's
// refcount (2) exceeds its internal self-reference (1), so an external
// holder must exist.
func TestCollectKeepsExternallyReferencedObjects(t *testing.T) {
	v := object.NewVec(nil)
	c := New()
	c.Track(v)

	v.Push(object.Value(v)) // internal ref: 1
	v.Header().Ref()        // external ref: 2 total

	c.Collect(0)

	if c.ObjectCount() != 1 {
		t.Fatalf("ObjectCount after collecting a still-externally-reachable cycle = %d, want 1", c.ObjectCount())
	}
}

func TestUntrackRemovesFromGeneration(t *testing.T) {
	v := object.NewVec(nil)
	c := New()
	c.Track(v)
	if c.ObjectCount() != 1 {
		t.Fatalf("ObjectCount after Track = %d, want 1", c.ObjectCount())
	}
	c.Untrack(v)
	if c.ObjectCount() != 0 {
		t.Fatalf("ObjectCount after Untrack = %d, want 0", c.ObjectCount())
	}
}
