package object

import "reflect"

// Free reclaims v immediately after its refcount has dropped to zero
// outside of a GC pass (spec §4.3 unref(o): "on reaching zero, the type's
// free behaviour runs, releasing any owned references in turn"). Scalars
// and STR have no owned children; containers release each child and, if
// that drives the child to zero, free it too — an eager, non-cyclic
// teardown. Reference cycles are never reclaimed this way; only the
// generational collector can break those (spec §4.3).
func Free(v Value) {
	t, ok := v.(Trackable)
	if !ok {
		return
	}
	t.Traverse(func(child Value) bool {
		if child.Header().Unref() {
			Free(child)
		}
		return false
	})
}

// addressHash derives a stable, address-based hash for reference types
// whose identity (not content) defines equality and hash (spec §4.2:
// "VEC/DICT/FUNC/MOD/STRUCT/UNION hash by object address").
func addressHash(v interface{}) uint64 {
	return uint64(reflect.ValueOf(v).Pointer())
}
