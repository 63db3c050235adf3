package object

import "koa/koaerr"

// Vec is an ordered sequence of owned Object references (spec §3.2).
// Resizable; grows by doubling, and halves its capacity when that is above
// 8 and the length is at most a quarter of it.
type Vec struct {
	Header
	GCHeader
	Unsupported
	elems []Value
}

func NewVec(elems []Value) *Vec {
	v := &Vec{elems: elems}
	for _, e := range v.elems {
		e.Header().Ref()
	}
	return v
}

func (v *Vec) Kind() Kind      { return KindVec }
func (v *Vec) Elements() []Value { return v.elems }

func (v *Vec) Len() (int, *koaerr.Error) { return len(v.elems), nil }

// Push appends val, taking a reference, and grows the backing array by
// doubling when full (spec §3.2).
func (v *Vec) Push(val Value) {
	val.Header().Ref()
	if len(v.elems) == cap(v.elems) {
		newCap := cap(v.elems) * 2
		if newCap == 0 {
			newCap = 4
		}
		grown := make([]Value, len(v.elems), newCap)
		copy(grown, v.elems)
		v.elems = grown
	}
	v.elems = append(v.elems, val)
}

// shrinkIfSparse halves capacity once it exceeds 8 and length is at most a quarter of it,
// mirroring the original's load-factor driven shrink (spec §3.2).
func (v *Vec) shrinkIfSparse() {
	if cap(v.elems) > 8 && len(v.elems) <= cap(v.elems)/4 {
		newCap := cap(v.elems) / 2
		shrunk := make([]Value, len(v.elems), newCap)
		copy(shrunk, v.elems)
		v.elems = shrunk
	}
}

// Index returns the element at an integer position, failing out of
// bounds (spec §4.2).
func (v *Vec) Index(key Value) (Value, *koaerr.Error) {
	idx, ok := asNumeric(key)
	if !ok {
		return nil, koaerr.New(koaerr.Type, "vec index must be numeric", 0, 0)
	}
	i := idx.Int64()
	if i < 0 || i >= int64(len(v.elems)) {
		return nil, koaerr.Newf(koaerr.Index, 0, 0, "vec index %d out of bounds (len %d)", i, len(v.elems))
	}
	return v.elems[i], nil
}

// IndexSet refs val, unrefs the previous element, stores val, and returns
// val (spec §4.2 "ipindex(i,v)").
func (v *Vec) IndexSet(key, val Value) (Value, *koaerr.Error) {
	idx, ok := asNumeric(key)
	if !ok {
		return nil, koaerr.New(koaerr.Type, "vec index must be numeric", 0, 0)
	}
	i := idx.Int64()
	if i < 0 || i >= int64(len(v.elems)) {
		return nil, koaerr.Newf(koaerr.Index, 0, 0, "vec index %d out of bounds (len %d)", i, len(v.elems))
	}
	val.Header().Ref()
	prev := v.elems[i]
	v.elems[i] = val
	if prev.Header().Unref() {
		Free(prev)
	}
	return val, nil
}

// RemoveAt deletes the element at i, unreffing it and shifting the tail
// down; used by the remove() builtin.
func (v *Vec) RemoveAt(i int) *koaerr.Error {
	if i < 0 || i >= len(v.elems) {
		return koaerr.Newf(koaerr.Index, 0, 0, "vec index %d out of bounds (len %d)", i, len(v.elems))
	}
	prev := v.elems[i]
	copy(v.elems[i:], v.elems[i+1:])
	v.elems = v.elems[:len(v.elems)-1]
	if prev.Header().Unref() {
		Free(prev)
	}
	v.shrinkIfSparse()
	return nil
}

func (v *Vec) Eq(other Value) (bool, *koaerr.Error) {
	rhs, ok := other.(*Vec)
	if !ok || len(rhs.elems) != len(v.elems) {
		return false, nil
	}
	if rhs == v {
		return true, nil
	}
	for i := range v.elems {
		eq, err := v.elems[i].Eq(rhs.elems[i])
		if err != nil {
			return false, err
		}
		if !eq {
			return false, nil
		}
	}
	return true, nil
}

// Hash: VEC hashes by object address (spec §4.2).
func (v *Vec) Hash() (uint64, *koaerr.Error) { return addressHash(v), nil }

func (v *Vec) Print() string {
	s := "["
	for i, e := range v.elems {
		if i > 0 {
			s += ", "
		}
		s += e.Dump()
	}
	return s + "]"
}
func (v *Vec) Dump() string { return v.Print() }

func (v *Vec) Binary(dst []byte) ([]byte, error) {
	dst = append(dst, byte(KindVec))
	dst = appendUvarint(dst, uint64(len(v.elems)))
	var err error
	for _, e := range v.elems {
		dst, err = e.Binary(dst)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// Traverse invokes fn on every element (spec §4.3: "VEC iterates
// positions").
func (v *Vec) Traverse(fn TraverseFunc) {
	for i, e := range v.elems {
		if fn(e) {
			v.elems[i] = VoidValue()
		}
	}
}
