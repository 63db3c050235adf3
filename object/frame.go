package object

import "koa/koaerr"

// Frame is the object-level snapshot of one call stack entry (spec
// §3.6's KindFrame tag is distinct from the VM's internal, mutable frame
// struct): an immutable record exposed to scripts via exception
// tracebacks, naming the function and source line active at the time.
type Frame struct {
	Header
	Unsupported

	funcName string
	line     int
}

func NewFrame(funcName string, line int) *Frame {
	return &Frame{funcName: funcName, line: line}
}

func (f *Frame) Kind() Kind       { return KindFrame }
func (f *Frame) FuncName() string { return f.funcName }
func (f *Frame) Line() int        { return f.line }

func (f *Frame) Hash() (uint64, *koaerr.Error) { return addressHash(f), nil }

func (f *Frame) Eq(other Value) (bool, *koaerr.Error) {
	rhs, ok := other.(*Frame)
	return ok && rhs == f, nil
}

func (f *Frame) Print() string {
	return "<frame " + f.funcName + ">"
}
func (f *Frame) Dump() string { return f.Print() }

func (f *Frame) Binary(dst []byte) ([]byte, error) {
	dst = append(dst, byte(KindFrame))
	dst = appendUvarint(dst, uint64(len(f.funcName)))
	dst = append(dst, f.funcName...)
	return appendUvarint(dst, uint64(f.line)), nil
}
