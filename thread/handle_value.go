package thread

import (
	"koa/koaerr"
	"koa/object"
)

// HandleValue boxes a Handle as a script-visible Value (KindThread) so
// the spawn/join/cancel builtins can hand one back to script code and
// receive it again as an ordinary argument.
type HandleValue struct {
	object.Header
	object.GCHeader
	object.Unsupported

	h *Handle
}

func NewHandleValue(h *Handle) *HandleValue { return &HandleValue{h: h} }

func (h *HandleValue) Kind() object.Kind { return object.KindThread }

func (h *HandleValue) Hash() (uint64, *koaerr.Error) { return h.h.ID(), nil }

// Handle exposes the wrapped Handle for the spawn/join/cancel builtins.
func (h *HandleValue) Handle() *Handle { return h.h }

func (h *HandleValue) Eq(other object.Value) (bool, *koaerr.Error) {
	rhs, ok := other.(*HandleValue)
	return ok && rhs.h == h.h, nil
}

func (h *HandleValue) Print() string { return "thread" }
func (h *HandleValue) Dump() string  { return "thread" }

func (h *HandleValue) Binary(dst []byte) ([]byte, error) {
	return dst, koaerr.New(koaerr.Type, "thread handles are not serializable", 0, 0)
}

func (h *HandleValue) Len() (int, *koaerr.Error) {
	return 0, koaerr.New(koaerr.Type, "unsupported operation \"len\" for type thread", 0, 0)
}
