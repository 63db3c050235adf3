package object

import "koa/koaerr"

// CodeObject is the minimal surface object needs from a compiled unit to
// describe a FUNC's body, without importing the code package (that
// package imports object for its constant pool, so the dependency only
// flows one way). The vm package supplies the concrete *code.Code that
// satisfies this.
type CodeObject interface {
	Name() string
}

// Invoker is implemented by the VM's call machinery (again kept here as
// an interface to avoid an object<->vm import cycle): given a compiled
// body and an argument vector it runs the function to completion.
type Invoker func(body CodeObject, args []Value) (Value, *koaerr.Error)

// BuiltinFn is a native Go implementation of a builtin slot (spec §6.3).
type BuiltinFn func(args []Value) (Value, *koaerr.Error)

// Func is a callable value: either a user-defined function closing over a
// compiled body, or a builtin slot wrapping a native Go function (spec
// §3.2 "FUNC: user function or builtin function value wrapping Code or a
// slot id").
type Func struct {
	Header
	GCHeader
	Unsupported

	name string

	isBuiltin bool
	builtinID int
	builtin   BuiltinFn

	body    CodeObject
	invoke  Invoker
	closure []Value // captured upvalues, traversed for cycle collection
}

func NewUserFunc(name string, body CodeObject, invoke Invoker, closure []Value) *Func {
	f := &Func{name: name, body: body, invoke: invoke, closure: closure}
	for _, c := range closure {
		c.Header().Ref()
	}
	return f
}

func NewBuiltinFunc(name string, id int, fn BuiltinFn) *Func {
	return &Func{name: name, isBuiltin: true, builtinID: id, builtin: fn}
}

func (f *Func) Kind() Kind   { return KindFunc }
func (f *Func) Name() string { return f.name }
func (f *Func) IsBuiltin() bool { return f.isBuiltin }
func (f *Func) BuiltinID() int  { return f.builtinID }
func (f *Func) Body() CodeObject { return f.body }

func (f *Func) Call(args []Value) (Value, *koaerr.Error) {
	if f.isBuiltin {
		return f.builtin(args)
	}
	return f.invoke(f.body, args)
}

func (f *Func) Hash() (uint64, *koaerr.Error) { return addressHash(f), nil }

func (f *Func) Eq(other Value) (bool, *koaerr.Error) {
	rhs, ok := other.(*Func)
	return ok && rhs == f, nil
}

func (f *Func) Print() string { return "<func " + f.name + ">" }
func (f *Func) Dump() string  { return f.Print() }

func (f *Func) Binary(dst []byte) ([]byte, error) {
	dst = append(dst, byte(KindFunc))
	if f.isBuiltin {
		dst = append(dst, 1)
		dst = appendUvarint(dst, uint64(f.builtinID))
		return dst, nil
	}
	dst = append(dst, 0)
	dst = appendUvarint(dst, uint64(len(f.name)))
	return append(dst, f.name...), nil
}

// Traverse visits captured closure values; builtins and bodies without a
// closure have nothing to traverse (spec §4.3: "FUNC/MOD when carrying a
// closure over other trackable objects").
func (f *Func) Traverse(fn TraverseFunc) {
	for i, c := range f.closure {
		if fn(c) {
			f.closure[i] = VoidValue()
		}
	}
}

// Mod wraps a compiled module unit (spec §3.2 "MOD: module object
// wrapping a Code"), exposing its top-level globals as a dict-like
// namespace. The compiler has no import statement that produces one.
type Mod struct {
	Header
	GCHeader
	Unsupported

	name    string
	body    CodeObject
	globals *Dict
}

func NewMod(name string, body CodeObject, globals *Dict) *Mod {
	m := &Mod{name: name, body: body, globals: globals}
	globals.Header().Ref()
	return m
}

func (m *Mod) Kind() Kind       { return KindMod }
func (m *Mod) Name() string     { return m.name }
func (m *Mod) Body() CodeObject { return m.body }
func (m *Mod) Globals() *Dict   { return m.globals }

func (m *Mod) Index(key Value) (Value, *koaerr.Error) { return m.globals.Index(key) }

func (m *Mod) Hash() (uint64, *koaerr.Error) { return addressHash(m), nil }

func (m *Mod) Eq(other Value) (bool, *koaerr.Error) {
	rhs, ok := other.(*Mod)
	return ok && rhs == m, nil
}

func (m *Mod) Print() string { return "<mod " + m.name + ">" }
func (m *Mod) Dump() string  { return m.Print() }

func (m *Mod) Binary(dst []byte) ([]byte, error) {
	dst = append(dst, byte(KindMod))
	dst = appendUvarint(dst, uint64(len(m.name)))
	return append(dst, m.name...), nil
}

// Traverse visits the module's global namespace object.
func (m *Mod) Traverse(fn TraverseFunc) {
	if fn(m.globals) {
		m.globals = NewDict()
	}
}
