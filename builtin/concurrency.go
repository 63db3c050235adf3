package builtin

import (
	"koa/code"
	"koa/koaerr"
	"koa/object"
	"koa/thread"
)

// spawn/join/cancel are exposed as builtins rather than dedicated
// opcodes, mirroring how the original engine's thread primitives sit
// outside the core arithmetic/control-flow instruction set (spec §5).
func init() {
	Table = append(Table,
		Slot{Name: "spawn", VarArgs: true, ArgTypes: []object.Kind{object.KindFunc}, Fn: biSpawn},
		Slot{Name: "join", ArgTypes: []object.Kind{object.KindThread}, Fn: biJoin},
		Slot{Name: "cancel", ArgTypes: []object.Kind{object.KindThread}, Fn: biCancel},
	)
	for i := range Table {
		Table[i].ID = i
	}
}

func biSpawn(args []object.Value) (object.Value, *koaerr.Error) {
	if len(args) < 1 {
		return nil, koaerr.New(koaerr.Argument, "spawn expects a function and its arguments", 0, 0)
	}
	fn, ok := args[0].(*object.Func)
	if !ok || fn.IsBuiltin() {
		return nil, koaerr.New(koaerr.Type, "spawn's first argument must be a user-defined function", 0, 0)
	}
	body, ok := fn.Body().(*code.Code)
	if !ok {
		return nil, koaerr.New(koaerr.Fatal, "spawned function has no compiled body", 0, 0)
	}
	h := thread.Spawn(body, args[1:])
	return thread.NewHandleValue(h), nil
}

func biJoin(args []object.Value) (object.Value, *koaerr.Error) {
	if len(args) != 1 {
		return nil, koaerr.New(koaerr.Argument, "join expects exactly one thread handle", 0, 0)
	}
	hv, ok := args[0].(*thread.HandleValue)
	if !ok {
		return nil, koaerr.New(koaerr.Type, "join's argument must be a thread handle", 0, 0)
	}
	return hv.Handle().Join()
}

func biCancel(args []object.Value) (object.Value, *koaerr.Error) {
	if len(args) != 1 {
		return nil, koaerr.New(koaerr.Argument, "cancel expects exactly one thread handle", 0, 0)
	}
	hv, ok := args[0].(*thread.HandleValue)
	if !ok {
		return nil, koaerr.New(koaerr.Type, "cancel's argument must be a thread handle", 0, 0)
	}
	hv.Handle().Cancel()
	return object.VoidValue(), nil
}
