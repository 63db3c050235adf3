package object

import "koa/koaerr"

// Void is the dummy/return-only value (spec §3.1). A single process-wide
// instance is used everywhere; it carries no state.
type Void struct {
	Header
	Unsupported
}

var theVoid = &Void{}

func init() { theVoid.MarkImmortal() }

// VoidValue returns the process-wide VOID singleton.
func VoidValue() *Void { return theVoid }

func (*Void) Kind() Kind                         { return KindVoid }
func (*Void) Eq(other Value) (bool, *koaerr.Error) { _, ok := other.(*Void); return ok, nil }
func (*Void) Cmp(Value) (int, *koaerr.Error) {
	return 0, koaerr.New(koaerr.Type, "void is not comparable", 0, 0)
}
func (*Void) Hash() (uint64, *koaerr.Error) { return 0, nil }
func (*Void) Print() string                 { return "void" }
func (*Void) Dump() string                  { return "void" }
func (*Void) Binary(dst []byte) ([]byte, error) { return append(dst, byte(KindVoid)), nil }

// Null is the process-wide NULL constant object (spec §3.4: "a single,
// process-wide constant object (refcount pinned)").
type Null struct {
	Header
	Unsupported
}

var theNull = &Null{}

func init() { theNull.MarkImmortal() }

// NullValue returns the process-wide NULL singleton.
func NullValue() *Null { return theNull }

func (*Null) Kind() Kind { return KindNull }

// Eq implements spec §4.2: "null == null is true; null == x is false for
// any non-null x."
func (*Null) Eq(other Value) (bool, *koaerr.Error) { _, ok := other.(*Null); return ok, nil }
func (*Null) Cmp(Value) (int, *koaerr.Error) {
	return 0, koaerr.New(koaerr.Type, "null is not ordered", 0, 0)
}
func (*Null) Hash() (uint64, *koaerr.Error) { return 0, nil }
func (*Null) Print() string                 { return "null" }
func (*Null) Dump() string                  { return "null" }
func (*Null) Binary(dst []byte) ([]byte, error) { return append(dst, byte(KindNull)), nil }
