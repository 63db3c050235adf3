package code

import (
	"strings"
	"testing"

	"koa/object"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	oc := Pack(OpLoadConst, 17)
	if oc.Op() != OpLoadConst {
		t.Fatalf("Op() = %v, want OpLoadConst", oc.Op())
	}
	if oc.Para() != 17 {
		t.Fatalf("Para() = %d, want 17", oc.Para())
	}
}

func TestParaSignExtension(t *testing.T) {
	oc := Pack(OpJumpForce, -1)
	if oc.Para() != -1 {
		t.Fatalf("negative operand did not round-trip: got %d, want -1", oc.Para())
	}
	oc = Pack(OpJumpForce, -100)
	if oc.Para() != -100 {
		t.Fatalf("negative operand did not round-trip: got %d, want -100", oc.Para())
	}
}

func TestEmitAndPatch(t *testing.T) {
	c := New("main", false, 1)
	ip := c.Emit(OpJumpFalse, 0, 5)
	c.Emit(OpLoadConst, 0, 6)
	c.Patch(ip, 2)
	if c.Opcodes[ip].Op() != OpJumpFalse {
		t.Fatalf("Patch changed the opcode, want it to keep OpJumpFalse")
	}
	if c.Opcodes[ip].Para() != 2 {
		t.Fatalf("Patch(ip, 2) left Para() = %d, want 2", c.Opcodes[ip].Para())
	}
}

func TestTruncateToRollsBackOpcodesAndLineInfo(t *testing.T) {
	c := New("<repl>", false, 1)
	c.Emit(OpLoadConst, 0, 1)
	mark := len(c.Opcodes)
	c.Emit(OpAdd, 0, 2)
	c.Emit(OpCallFunc, 0, 2)
	c.TruncateTo(mark)
	if len(c.Opcodes) != mark {
		t.Fatalf("TruncateTo left %d opcodes, want %d", len(c.Opcodes), mark)
	}
	if len(c.LineInfo) != mark {
		t.Fatalf("TruncateTo left %d line entries, want %d", len(c.LineInfo), mark)
	}
}

func TestPushConstDedupesEqualValues(t *testing.T) {
	c := New("main", false, 1)
	i1 := c.PushConst(object.NewInt(5))
	i2 := c.PushConst(object.NewInt(5))
	if i1 != i2 {
		t.Fatalf("PushConst should dedup equal Int constants, got indices %d and %d", i1, i2)
	}
	i3 := c.PushConst(object.NewDouble(5))
	if i3 == i1 {
		t.Fatalf("PushConst must not dedup across differing Kinds (Int vs Double)")
	}
}

func TestPushVarnameRejectsRedefinition(t *testing.T) {
	c := New("main", false, 1)
	if _, ok := c.PushVarname("x", object.KindInt); !ok {
		t.Fatalf("first declaration of x should succeed")
	}
	if _, ok := c.PushVarname("x", object.KindInt); ok {
		t.Fatalf("redeclaring x in the same Code should fail")
	}
}

func TestIndexOfVar(t *testing.T) {
	c := New("main", false, 1)
	c.PushVarname("a", object.KindInt)
	idx, _ := c.PushVarname("b", object.KindInt)
	if got := c.IndexOfVar("b"); got != idx {
		t.Fatalf("IndexOfVar(b) = %d, want %d", got, idx)
	}
	if got := c.IndexOfVar("missing"); got >= 0 {
		t.Fatalf("IndexOfVar(missing) = %d, want a negative sentinel", got)
	}
}

func TestDisassembleRecursesIntoNested(t *testing.T) {
	outer := New("main", false, 1)
	outer.Emit(OpLoadConst, 0, 1)
	inner := New("f", true, 2)
	inner.Emit(OpReturn, 0, 2)
	outer.AddNested(inner)

	out := outer.Disassemble()
	if !strings.Contains(out, "LOAD_CONST") {
		t.Fatalf("disassembly missing outer opcode name, got:\n%s", out)
	}
	if !strings.Contains(out, "nested") || !strings.Contains(out, "RETURN") {
		t.Fatalf("disassembly did not recurse into nested Code, got:\n%s", out)
	}
}
