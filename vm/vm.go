package vm

import (
	"fmt"

	"koa/code"
	"koa/gc"
	"koa/koaerr"
	"koa/object"
)

// Thread is one interpreter thread's complete runtime state (spec §5
// "Per-thread resources: allocator context, cycle-collector generations,
// value stack, frame chain, current Code, current exception"). The pool
// allocator is wired in by the thread package at spawn time; the VM
// itself only needs the GC and the object caches.
type Thread struct {
	GC    *gc.Collector
	Cache *object.Cache

	stack []object.Value
	frame *Frame
}

func NewThread() *Thread {
	return &Thread{GC: gc.New(), Cache: object.NewCache()}
}

// push places v on the value stack, taking a reference (spec §3.7.4: the
// stack only ever holds properly-referenced objects). Used for fresh
// opcode results and for duplicate reads (LOAD_CONST, LOAD_VAR) that
// hand out a second owner on top of an existing one.
func (t *Thread) push(v object.Value) {
	v.Header().Ref()
	t.stack = append(t.stack, v)
}

// pushOwned places v back on the stack without taking a new reference.
// It is for opcodes that pop a value and pass it straight through
// unchanged (e.g. the untaken branch of a conditional select): the
// reference an earlier pop handed to the caller is simply handed back
// to the stack instead of being dropped and reacquired.
func (t *Thread) pushOwned(v object.Value) {
	t.stack = append(t.stack, v)
}

// pop removes and returns the top of the stack. The one reference that
// push/pushOwned placed there now belongs to the caller, which must
// either release it (see release) or pass it on via pushOwned, declare,
// or assign.
func (t *Thread) pop() object.Value {
	v := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return v
}

func (t *Thread) popN(n int) []object.Value {
	if n == 0 {
		return nil
	}
	vs := append([]object.Value(nil), t.stack[len(t.stack)-n:]...)
	t.stack = t.stack[:len(t.stack)-n]
	return vs
}

// release drops the one reference a caller holds on a popped value,
// freeing it if that was the last one (spec §3.7.1: a zero refcount
// object is reachable from nothing).
func release(v object.Value) {
	if v == nil {
		return
	}
	if v.Header().Unref() {
		object.Free(v)
	}
}

// rollbackStack discards every stack entry at or above index to,
// releasing each one (spec §4.5: "discard stack entries above the
// block's bottom").
func (t *Thread) rollbackStack(to int) {
	for i := len(t.stack) - 1; i >= to; i-- {
		release(t.stack[i])
	}
	t.stack = t.stack[:to]
}

// Run executes c as a fresh top-level program on this thread (spec §4.6
// "the interpreter instantiates a Frame around root Code"). It returns
// the final popped value (if any remains) or a runtime error.
func (t *Thread) Run(c *code.Code) (object.Value, *koaerr.Error) {
	base := len(t.stack)
	t.frame = t.newFrame(nil, c, base)
	// Errors that escape c entirely are returned to our own caller, which
	// for InReplMode is the REPL driver: it rolls the stack back to base
	// and resumes at the next statement (spec §6.5), rather than this VM
	// modeling that rollback as an in-frame try/catch.
	return t.exec()
}

// RunREPL executes the statement(s) appended to c since fromIP, against
// a Frame that persists across calls (spec §6.5: "each REPL input
// compiles into the same persistent Code; declared variables and
// functions remain visible to later inputs"). The Frame is created on
// first use and reused afterward; on a runtime error the value stack is
// rolled back to its pre-statement depth while declared names survive
// (see raise's top-Frame handling).
func (t *Thread) RunREPL(c *code.Code, fromIP int) (object.Value, *koaerr.Error) {
	if t.frame == nil {
		t.frame = t.newFrame(nil, c, len(t.stack))
	} else {
		t.hoistNested(t.frame, c)
	}
	base := len(t.stack)
	t.frame.ip = fromIP
	v, err := t.exec()
	if err != nil {
		t.rollbackStack(base)
		return nil, err
	}
	return v, nil
}

// Call invokes fn's user-defined body as a nested Frame on this same
// thread (spec §4.6 "CALL_FUNC... spawns a Frame on the same thread").
func (t *Thread) Call(c *code.Code, args []object.Value) (object.Value, *koaerr.Error) {
	base := len(t.stack)
	for _, a := range args {
		t.push(a)
	}
	f := t.newFrame(t.frame, c, base)
	prev := t.frame
	t.frame = f
	bound := t.bindArgs(c, len(args))
	if bound != nil {
		t.frame = prev
		return nil, bound
	}
	v, err := t.exec()
	return v, err
}

func (t *Thread) bindArgs(c *code.Code, n int) *koaerr.Error {
	args := t.popN(n)
	for i := 0; i < n && i < len(c.VarNames); i++ {
		v := args[i]
		if i < len(c.VarTypes) {
			cast, err := castTo(v, c.VarTypes[i])
			if err != nil {
				release(v)
				return err
			}
			if cast != v {
				release(v)
			}
			v = cast
		}
		t.frame.declare(c.VarNames[i], v)
		release(v)
	}
	for i := len(c.VarNames); i < n; i++ {
		release(args[i])
	}
	return nil
}

// invoker adapts Thread.Call to object.Invoker so FUNC values constructed
// elsewhere can call back into this thread without an import cycle.
func (t *Thread) invoker() object.Invoker {
	return func(body object.CodeObject, args []object.Value) (object.Value, *koaerr.Error) {
		c, ok := body.(*code.Code)
		if !ok {
			return nil, koaerr.New(koaerr.Fatal, "invalid function body", 0, 0)
		}
		return t.Call(c, args)
	}
}

// MakeFunc wraps a compiled body as a callable FUNC value bound to this
// thread's call machinery.
func (t *Thread) MakeFunc(name string, body *code.Code, closure []object.Value) *object.Func {
	return object.NewUserFunc(name, body, t.invoker(), closure)
}

// exec is the fetch-decode-execute loop for exactly one Frame (spec
// §4.6). A CALL_FUNC to a user function recurses into a nested exec() for
// the callee's Frame (via Call below); this loop never reaches across
// that boundary directly. An uncaught exception instead propagates as a
// Go error return — see raise and the "re-raise in the caller" comment
// there.
func (t *Thread) exec() (object.Value, *koaerr.Error) {
	for {
		f := t.frame
		if f.ip >= len(f.code.Opcodes) {
			t.GC.OnBlockExit()
			if f.caller != nil {
				f.release()
				t.frame = f.caller
			}
			return object.VoidValue(), nil
		}
		instr := f.code.Opcodes[f.ip]
		op := instr.Op()
		para := instr.Para()
		line := f.code.LineInfo[f.ip]
		f.ip++

		t.GC.Tick()

		result, done, stepErr := t.step(op, para, line)
		if stepErr != nil {
			if stepErr.IsFatal() {
				return nil, stepErr
			}
			if t.raise(stepErr) {
				continue
			}
			// Not caught anywhere in this frame's own block chain:
			// t.frame has already been popped to its caller; propagate.
			return nil, stepErr
		}
		if done {
			t.GC.OnBlockExit()
			if f.caller != nil {
				f.release()
				t.frame = f.caller
			}
			return result, nil
		}
	}
}

// raise performs one frame's worth of exception unwinding (spec §4.5):
// walk blocks innermost to outermost in the *current* frame looking for
// a catching block. If found, the stack and instruction pointer are
// repositioned there and raise reports true. If not, the current frame
// is popped (t.frame becomes its caller) and raise reports false — the
// caller of exec() is expected to surface the error so the next level up
// can call raise() again, continuing the unwind one frame at a time
// (spec: "If no catching block exists in this Frame, pop the Frame and
// re-raise in the caller").
func (t *Thread) raise(err *koaerr.Error) bool {
	exc := object.NewException(err)
	f := t.frame
	for i := len(f.blocks) - 1; i >= 0; i-- {
		b := f.blocks[i]
		if b.catched {
			f.releaseAbove(i)
			t.rollbackStack(b.bottom)
			t.push(exc)
			f.blocks = f.blocks[:i+1]
			f.ip = b.out
			return true
		}
	}
	t.GC.OnBlockExit()
	if f.caller != nil {
		f.release()
		t.frame = f.caller
	} else {
		// The top Frame survives an uncaught error so a REPL driver can
		// roll the value stack back to its base and keep running against
		// the same declared names (spec §6.5); only the transient blocks
		// opened by the failed statement are discarded (and unreffed).
		f.releaseAbove(0)
		f.blocks = f.blocks[:1]
	}
	return false
}

// castTo performs a TYPE_CAST-equivalent coercion used both by the
// opcode and by BIND_ARGS/RETURN's declared-type casts (spec §4.6).
// Grounded on object_cast (object.c): the original only ever converts
// between numeric kinds and otherwise raises "only numberical object
// can be casted" — a same-kind cast is the one exception, since it is
// really just a declared-type check rather than a conversion (e.g. a
// DICT/STRUCT zero-value constructed by its own MAKE_* opcode arriving
// already at the declared kind).
func castTo(v object.Value, k object.Kind) (object.Value, *koaerr.Error) {
	if v.Kind() == k {
		return v, nil
	}
	if n, ok := v.(*object.Numeric); ok && k.IsNumeric() {
		return n.Cast(k), nil
	}
	if k == object.KindVoid {
		return v, nil
	}
	return nil, koaerr.Newf(koaerr.Type, 0, 0, "cannot cast %s to %s", v.Kind(), k)
}

// Traceback renders the current call chain for an uncaught exception
// (spec §7: "each Frame's code name, file, line at its current
// instruction pointer").
func (t *Thread) Traceback() string {
	s := ""
	for f := t.frame; f != nil; f = f.caller {
		line := 0
		if f.ip > 0 && f.ip-1 < len(f.code.LineInfo) {
			line = f.code.LineInfo[f.ip-1]
		}
		s += fmt.Sprintf("  at %s (%s:%d)\n", f.code.Name(), f.code.Filename, line)
	}
	return s
}
