// Package builtin implements the engine's builtin function slot table
// (spec §6.3): a fixed array of id/name/native-fn/arity entries the
// compiler resolves call targets against and the VM's CALL_FUNC opcode
// invokes directly for builtin FUNC values.
package builtin

import (
	"fmt"
	"os"

	"koa/koaerr"
	"koa/object"
)

// Slot describes one builtin function's calling contract (spec §6.3:
// "id, name, fn pointer, var-args flag, fixed arg count + per-arg
// declared types incl. ALL").
type Slot struct {
	ID       int
	Name     string
	VarArgs  bool
	ArgTypes []object.Kind // empty/ALL entries accept any type
	Fn       func(args []object.Value) (object.Value, *koaerr.Error)
}

// KindAll marks an argument slot that accepts any type, the ALL sentinel
// from spec §6.3. It is chosen outside the real Kind range so it never
// collides with a genuine tag.
const KindAll object.Kind = 0xff

// Writer lets the host (CLI/REPL/tests) capture print() output instead
// of hardcoding os.Stdout.
var Writer = os.Stdout

// Table is the ordered builtin slot table. Index i's Slot.ID is always
// i; compiled code references slots by this index (spec §6.3).
var Table = []Slot{
	{Name: "print", VarArgs: true, ArgTypes: nil, Fn: biPrint},
	{Name: "len", ArgTypes: []object.Kind{KindAll}, Fn: biLen},
	{Name: "hash", ArgTypes: []object.Kind{KindAll}, Fn: biHash},
	{Name: "append", VarArgs: true, ArgTypes: []object.Kind{object.KindVec, KindAll}, Fn: biAppend},
	{Name: "remove", ArgTypes: []object.Kind{object.KindVec, object.KindInt}, Fn: biRemove},
	{Name: "exit", ArgTypes: []object.Kind{object.KindInt}, Fn: biExit},
}

func init() {
	for i := range Table {
		Table[i].ID = i
	}
}

// ByName resolves a slot by name for the compiler's identifier
// resolution pass.
func ByName(name string) (int, bool) {
	for _, s := range Table {
		if s.Name == name {
			return s.ID, true
		}
	}
	return -1, false
}

// Funcs builds the callable FUNC wrapper for every slot, used to seed a
// thread's global namespace (spec §6.3).
func Funcs() []*object.Func {
	fns := make([]*object.Func, len(Table))
	for i, s := range Table {
		slot := s
		fns[i] = object.NewBuiltinFunc(slot.Name, slot.ID, slot.Fn)
	}
	return fns
}

// FuncsByName is Funcs keyed by slot name, the shape the compiler needs
// to resolve a bare identifier to a callable builtin constant.
func FuncsByName() map[string]*object.Func {
	m := make(map[string]*object.Func, len(Table))
	for _, fn := range Funcs() {
		m[fn.Name()] = fn
	}
	return m
}

func biPrint(args []object.Value) (object.Value, *koaerr.Error) {
	for i, a := range args {
		if i > 0 {
			fmt.Fprint(Writer, " ")
		}
		fmt.Fprint(Writer, a.Print())
	}
	fmt.Fprintln(Writer)
	return object.VoidValue(), nil
}

func biLen(args []object.Value) (object.Value, *koaerr.Error) {
	if len(args) != 1 {
		return nil, koaerr.New(koaerr.Argument, "len expects exactly one argument", 0, 0)
	}
	n, err := args[0].Len()
	if err != nil {
		return nil, err
	}
	return object.NewInt(int64(n)), nil
}

func biHash(args []object.Value) (object.Value, *koaerr.Error) {
	if len(args) != 1 {
		return nil, koaerr.New(koaerr.Argument, "hash expects exactly one argument", 0, 0)
	}
	h, err := args[0].Hash()
	if err != nil {
		return nil, err
	}
	return object.NewUlong(h), nil
}

func biAppend(args []object.Value) (object.Value, *koaerr.Error) {
	if len(args) < 2 {
		return nil, koaerr.New(koaerr.Argument, "append expects a vec and at least one value", 0, 0)
	}
	v, ok := args[0].(*object.Vec)
	if !ok {
		return nil, koaerr.New(koaerr.Type, "append's first argument must be a vec", 0, 0)
	}
	for _, a := range args[1:] {
		v.Push(a)
	}
	return v, nil
}

func biRemove(args []object.Value) (object.Value, *koaerr.Error) {
	if len(args) != 2 {
		return nil, koaerr.New(koaerr.Argument, "remove expects a vec and an index", 0, 0)
	}
	v, ok := args[0].(*object.Vec)
	if !ok {
		return nil, koaerr.New(koaerr.Type, "remove's first argument must be a vec", 0, 0)
	}
	idx, ok := args[1].(*object.Numeric)
	if !ok {
		return nil, koaerr.New(koaerr.Type, "remove's second argument must be numeric", 0, 0)
	}
	if err := v.RemoveAt(int(idx.Int64())); err != nil {
		return nil, err
	}
	return object.VoidValue(), nil
}

// ExitCode is set by biExit and read by the CLI driver after a script
// run completes (spec §6.3 "exit(n)": "exit-code passthrough").
var ExitCode = 0
var ExitCalled = false

func biExit(args []object.Value) (object.Value, *koaerr.Error) {
	code := 0
	if len(args) == 1 {
		if n, ok := args[0].(*object.Numeric); ok {
			code = int(n.Int64())
		}
	}
	ExitCode = code
	ExitCalled = true
	return object.VoidValue(), nil
}
