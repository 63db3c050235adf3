package object

import "koa/koaerr"

// Exception is the object representation of a raised error, carrying the
// information a try/catch handler or print(e) needs (spec §7, E2E
// scenario D). It is what koaerr.Error gets boxed into when it crosses
// into script-visible code.
type Exception struct {
	Header
	GCHeader
	Unsupported

	kind    koaerr.Kind
	message string
	line    int
}

func NewException(err *koaerr.Error) *Exception {
	return &Exception{kind: err.Kind, message: err.Message, line: err.Line}
}

func (e *Exception) Kind() Kind { return KindException }

func (e *Exception) ErrorKind() koaerr.Kind { return e.kind }
func (e *Exception) Message() string        { return e.message }
func (e *Exception) Line() int              { return e.line }

func (e *Exception) Hash() (uint64, *koaerr.Error) { return addressHash(e), nil }

func (e *Exception) Eq(other Value) (bool, *koaerr.Error) {
	rhs, ok := other.(*Exception)
	return ok && rhs == e, nil
}

// Print/Dump render "KindString: message", matching the format the
// division-by-zero E2E scenario expects to see via print(e).
func (e *Exception) Print() string {
	return e.kind.String() + ": " + e.message
}
func (e *Exception) Dump() string { return e.Print() }

func (e *Exception) Binary(dst []byte) ([]byte, error) {
	dst = append(dst, byte(KindException))
	dst = append(dst, byte(e.kind))
	dst = appendUvarint(dst, uint64(len(e.message)))
	return append(dst, e.message...), nil
}
