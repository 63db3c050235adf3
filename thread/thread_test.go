package thread

import (
	"testing"

	"koa/code"
	"koa/object"
)

// constBody compiles a trivial function body: return <v>.
func constBody(v object.Value) *code.Code {
	c := code.New("spawned", true, 1)
	idx := c.PushConst(v)
	c.Emit(code.OpLoadConst, int32(idx), 1)
	c.Emit(code.OpReturn, 0, 1)
	return c
}

func TestSpawnJoinReturnsBodyResult(t *testing.T) {
	h := Spawn(constBody(object.NewInt(720)), nil)
	v, err := h.Join()
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	n, ok := v.(*object.Numeric)
	if !ok {
		t.Fatalf("result is not Numeric: %T", v)
	}
	if n.Int64() != 720 {
		t.Fatalf("result = %d, want 720", n.Int64())
	}
}

func TestJoinAfterCancelReportsError(t *testing.T) {
	h := Spawn(constBody(object.NewInt(1)), nil)
	h.Cancel()
	<-h.done
	if _, err := h.Join(); err == nil {
		t.Fatalf("Join after Cancel should report an error")
	}
}

func TestHandlesGetDistinctIDs(t *testing.T) {
	h1 := Spawn(constBody(object.NewInt(1)), nil)
	h2 := Spawn(constBody(object.NewInt(2)), nil)
	h1.Join()
	h2.Join()
	if h1.ID() == h2.ID() {
		t.Fatalf("two spawned handles share an ID: %d", h1.ID())
	}
}

func TestSpawnDeepCopiesVecArguments(t *testing.T) {
	elem := object.NewInt(9)
	v := object.NewVec([]object.Value{elem})

	body := code.New("ident", true, 1)
	body.PushVarname("arg", object.KindVec)
	body.Emit(code.OpLoadVar, 0, 1)
	body.Emit(code.OpReturn, 0, 1)

	h := Spawn(body, []object.Value{v})
	result, err := h.Join()
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	rv, ok := result.(*object.Vec)
	if !ok {
		t.Fatalf("result is not Vec: %T", result)
	}
	if rv == v {
		t.Fatalf("spawn should deep-copy VEC arguments, got the same pointer back")
	}
}

func TestSpawnDeepCopiesDictArguments(t *testing.T) {
	d := object.NewDict()
	d.Set(object.NewStr([]byte("k")), object.NewInt(9))

	body := code.New("ident", true, 1)
	body.PushVarname("arg", object.KindDict)
	body.Emit(code.OpLoadVar, 0, 1)
	body.Emit(code.OpReturn, 0, 1)

	h := Spawn(body, []object.Value{d})
	result, err := h.Join()
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	rd, ok := result.(*object.Dict)
	if !ok {
		t.Fatalf("result is not Dict: %T", result)
	}
	if rd == d {
		t.Fatalf("spawn should deep-copy DICT arguments, got the same pointer back")
	}
	v, err2 := rd.Index(object.NewStr([]byte("k")))
	if err2 != nil {
		t.Fatalf("index: %v", err2)
	}
	n, ok := v.(*object.Numeric)
	if !ok || n.Int64() != 9 {
		t.Fatalf("copied dict missing cloned entry, got %#v", v)
	}
}

func TestSpawnDeepCopiesStructArguments(t *testing.T) {
	meta := object.StructMeta{Name: "point", FieldNames: []string{"x"}}
	s := object.NewStruct(object.KindStructBase, meta, []object.Value{object.NewInt(9)})

	body := code.New("ident", true, 1)
	body.PushVarname("arg", object.KindStructBase)
	body.Emit(code.OpLoadVar, 0, 1)
	body.Emit(code.OpReturn, 0, 1)

	h := Spawn(body, []object.Value{s})
	result, err := h.Join()
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	rs, ok := result.(*object.Struct)
	if !ok {
		t.Fatalf("result is not Struct: %T", result)
	}
	if rs == s {
		t.Fatalf("spawn should deep-copy STRUCT arguments, got the same pointer back")
	}
	v, err2 := rs.FieldByName("x")
	if err2 != nil {
		t.Fatalf("field lookup: %v", err2)
	}
	n, ok := v.(*object.Numeric)
	if !ok || n.Int64() != 9 {
		t.Fatalf("copied struct missing cloned field, got %#v", v)
	}
}

func TestSpawnDeepCopiesUnionArguments(t *testing.T) {
	n := 0 // kept non-constant so the UnionBase+n conversion to Kind truncates at runtime, not compile time
	tag := object.Kind(int(object.UnionBase) + n)
	u := object.NewUnion(tag, []string{"i"}, []object.Kind{object.KindInt})
	u.Set(object.NewInt(9))

	body := code.New("ident", true, 1)
	body.PushVarname("arg", tag)
	body.Emit(code.OpLoadVar, 0, 1)
	body.Emit(code.OpReturn, 0, 1)

	h := Spawn(body, []object.Value{u})
	result, err := h.Join()
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	ru, ok := result.(*object.Union)
	if !ok {
		t.Fatalf("result is not Union: %T", result)
	}
	if ru == u {
		t.Fatalf("spawn should deep-copy UNION arguments, got the same pointer back")
	}
	got, ok := ru.Current().(*object.Numeric)
	if !ok || got.Int64() != 9 {
		t.Fatalf("copied union missing cloned value, got %#v", ru.Current())
	}
}
