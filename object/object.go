// Package object implements the engine's polymorphic object model (spec §3,
// §4.2): a single Value interface covering all 23 runtime type variants,
// each backed by a uniform operation table instead of the vtable-struct /
// inheritance pattern the original C source uses.
package object

import "koa/koaerr"

// Kind is the type tag every Value carries. The numeric ordering matters:
// Bigger(a, b) (spec §3.1, the BIGGER(a,b) macro) is defined as max(a, b)
// under this exact ordering, so inserting a kind anywhere except the end
// changes arithmetic-promotion behaviour.
type Kind uint8

const (
	KindVoid Kind = iota
	KindNull
	KindBool
	KindChar
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt
	KindUint
	KindInt64
	KindUint64
	KindLong
	KindUlong
	KindFloat
	KindDouble
	KindStr
	KindVec
	KindDict
	KindFunc
	KindMod
	KindFrame
	KindException
	KindThread
	KindStructBase // dynamic STRUCT tags are allocated starting here
)

// UnionBase offsets dynamically allocated UNION tags away from STRUCT tags;
// a module may declare both struct and union types and each needs its own
// tag space (spec §3.1, "a dynamic range of STRUCT/UNION tags").
const UnionBase = 1 << 16

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindChar:
		return "char"
	case KindInt8:
		return "int8"
	case KindUint8:
		return "uint8"
	case KindInt16:
		return "int16"
	case KindUint16:
		return "uint16"
	case KindInt32:
		return "int32"
	case KindUint32:
		return "uint32"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindLong:
		return "long"
	case KindUlong:
		return "ulong"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindStr:
		return "str"
	case KindVec:
		return "vec"
	case KindDict:
		return "dict"
	case KindFunc:
		return "func"
	case KindMod:
		return "mod"
	case KindFrame:
		return "frame"
	case KindException:
		return "exception"
	case KindThread:
		return "thread"
	default:
		if k >= UnionBase {
			return "union"
		}
		return "struct"
	}
}

// Bigger implements the BIGGER(a,b) promotion rule of spec §3.1 and §4.2:
// the type with the greater tag value wins.
func Bigger(a, b Kind) Kind {
	if a > b {
		return a
	}
	return b
}

// IsNumeric reports whether a kind participates in arithmetic coercion
// (BOOL/CHAR included, per §3.1: "BOOL/CHAR participate as integers").
func (k Kind) IsNumeric() bool {
	return k >= KindBool && k <= KindDouble
}

// IsInteger reports whether a kind is an integral numeric type.
func (k Kind) IsInteger() bool {
	return k >= KindBool && k <= KindUlong
}

// Value is the interface every runtime object satisfies. Instead of the C
// source's function-pointer vtable (spec §4.2: up to 25 operations per
// type, missing ones are nil), each operation is a Go method with a default
// "unsupported" implementation provided by embedding Unsupported.
type Value interface {
	Kind() Kind
	// Header returns the shared refcount/digest bookkeeping block.
	Header() *Header

	// lnot, neg, not: unary operators.
	LogicalNot() (Value, *koaerr.Error)
	Negate() (Value, *koaerr.Error)
	BitNot() (Value, *koaerr.Error)

	// binary arithmetic / bitwise / shift.
	Add(Value) (Value, *koaerr.Error)
	Sub(Value) (Value, *koaerr.Error)
	Mul(Value) (Value, *koaerr.Error)
	Div(Value) (Value, *koaerr.Error)
	Mod(Value) (Value, *koaerr.Error)
	And(Value) (Value, *koaerr.Error)
	Or(Value) (Value, *koaerr.Error)
	Xor(Value) (Value, *koaerr.Error)
	Lshift(Value) (Value, *koaerr.Error)
	Rshift(Value) (Value, *koaerr.Error)
	LogicalAnd(Value) (Value, *koaerr.Error)
	LogicalOr(Value) (Value, *koaerr.Error)

	// comparisons.
	Eq(Value) (bool, *koaerr.Error)
	Cmp(Value) (int, *koaerr.Error)

	// indexing.
	Index(Value) (Value, *koaerr.Error)
	IndexSet(key, val Value) (Value, *koaerr.Error)

	// hash returns the memoized 64-bit digest (spec §4.2 "Hashing").
	Hash() (uint64, *koaerr.Error)

	// Len implements the len() built-in boundary contract (§6.3: its
	// signature is spec'd, the object-level length is ours to define).
	Len() (int, *koaerr.Error)

	// Print / Dump render a value for the print builtin and for
	// diagnostic disassembly respectively.
	Print() string
	Dump() string

	// Call invokes a callable value (FUNC); non-callables report a
	// TypeError, matching the vtable's "missing entry" contract.
	Call(args []Value) (Value, *koaerr.Error)

	// Binary appends this value's serialized form (spec §4.2 "Binary
	// (serialization)") to dst and returns the result.
	Binary(dst []byte) ([]byte, error)
}

// Header is the common object header every Value embeds (spec §3.1): a
// signed refcount, a memoized digest (0 = uncomputed), and an opaque
// userdata slot.
type Header struct {
	refcount int32
	digest   uint64
	digestOK bool
	immortal bool
	// UserData is an opaque slot; no code in this module sets or reads it.
	// Struct keeps its field metadata on the instance instead.
	UserData interface{}
}

func (h *Header) Header() *Header { return h }

// Ref increments the refcount (spec §4.3 ref(o)).
func (h *Header) Ref() {
	if h.immortal {
		return
	}
	h.refcount++
}

// Unref decrements the refcount and reports whether it reached zero, at
// which point the caller must run the type's free behaviour and reclaim
// the cell (spec §4.3 unref(o); invariant §3.7.2: immortal objects are
// never driven to zero by routine unref).
func (h *Header) Unref() bool {
	if h.immortal {
		return false
	}
	h.refcount--
	return h.refcount <= 0
}

// Refcount exposes the raw count, mostly for tests validating invariant
// §8.1.1 (every object's refcount reaches zero exactly once).
func (h *Header) Refcount() int32 { return h.refcount }

// MarkImmortal pins an object's refcount so Unref never frees it (used for
// the NULL/BOOL singletons and per-thread interned/cached scalars, spec
// §3.4).
func (h *Header) MarkImmortal() { h.immortal = true }

func (h *Header) Immortal() bool { return h.immortal }

// CachedDigest returns the memoized digest and whether it has been
// computed yet (spec §3.7.5: the digest, once set, never changes).
func (h *Header) CachedDigest() (uint64, bool) { return h.digest, h.digestOK }

func (h *Header) SetDigest(d uint64) {
	h.digest = d
	h.digestOK = true
}

// Unsupported is embedded by every concrete Value to provide the "missing
// vtable entry" default: a TypeError naming the unsupported operation,
// exactly mirroring the C source's "vtable slot is NULL" contract (§4.2).
type Unsupported struct{}

func unsupported(op string, k Kind) *koaerr.Error {
	return koaerr.Newf(koaerr.Type, 0, 0, "unsupported operation %q for type %s", op, k)
}

func (Unsupported) LogicalNot() (Value, *koaerr.Error)      { return nil, unsupported("lnot", 0) }
func (Unsupported) Negate() (Value, *koaerr.Error)           { return nil, unsupported("neg", 0) }
func (Unsupported) BitNot() (Value, *koaerr.Error)           { return nil, unsupported("not", 0) }
func (Unsupported) Add(Value) (Value, *koaerr.Error)         { return nil, unsupported("add", 0) }
func (Unsupported) Sub(Value) (Value, *koaerr.Error)         { return nil, unsupported("sub", 0) }
func (Unsupported) Mul(Value) (Value, *koaerr.Error)         { return nil, unsupported("mul", 0) }
func (Unsupported) Div(Value) (Value, *koaerr.Error)         { return nil, unsupported("div", 0) }
func (Unsupported) Mod(Value) (Value, *koaerr.Error)         { return nil, unsupported("mod", 0) }
func (Unsupported) And(Value) (Value, *koaerr.Error)         { return nil, unsupported("and", 0) }
func (Unsupported) Or(Value) (Value, *koaerr.Error)          { return nil, unsupported("or", 0) }
func (Unsupported) Xor(Value) (Value, *koaerr.Error)         { return nil, unsupported("xor", 0) }
func (Unsupported) Lshift(Value) (Value, *koaerr.Error)      { return nil, unsupported("lshift", 0) }
func (Unsupported) Rshift(Value) (Value, *koaerr.Error)      { return nil, unsupported("rshift", 0) }
func (Unsupported) LogicalAnd(Value) (Value, *koaerr.Error)  { return nil, unsupported("land", 0) }
func (Unsupported) LogicalOr(Value) (Value, *koaerr.Error)   { return nil, unsupported("lor", 0) }
func (Unsupported) Cmp(Value) (int, *koaerr.Error)           { return 0, unsupported("cmp", 0) }
func (Unsupported) Index(Value) (Value, *koaerr.Error)       { return nil, unsupported("index", 0) }
func (Unsupported) IndexSet(Value, Value) (Value, *koaerr.Error) {
	return nil, unsupported("ipindex", 0)
}
func (Unsupported) Len() (int, *koaerr.Error) { return 0, unsupported("len", 0) }
func (Unsupported) Call(args []Value) (Value, *koaerr.Error) {
	return nil, koaerr.New(koaerr.Type, "value is not callable", 0, 0)
}
