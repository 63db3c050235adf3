package object

import "testing"

func TestHeaderRefcount(t *testing.T) {
	v := NewInt(42)
	if v.Refcount() != 0 {
		t.Fatalf("fresh value refcount = %d, want 0", v.Refcount())
	}
	v.Header().Ref()
	v.Header().Ref()
	if v.Refcount() != 2 {
		t.Fatalf("after two Ref, refcount = %d, want 2", v.Refcount())
	}
	if v.Header().Unref() {
		t.Fatalf("Unref reported zero after only one decrement from 2")
	}
	if !v.Header().Unref() {
		t.Fatalf("Unref should report zero reaching the second decrement")
	}
}

func TestImmortalNeverReachesZero(t *testing.T) {
	v := NewInt(1)
	v.Header().MarkImmortal()
	v.Header().Ref()
	if v.Header().Unref() {
		t.Fatalf("immortal object reported refcount reaching zero")
	}
	if v.Refcount() != 0 {
		t.Fatalf("immortal object's refcount should never move, got %d", v.Refcount())
	}
}

func TestNumericFamilyCoercion(t *testing.T) {
	i := NewInt(3)
	d := NewDouble(2.5)
	sum, err := i.Add(d)
	if err != nil {
		t.Fatalf("int + double: %v", err)
	}
	n, ok := sum.(*Numeric)
	if !ok {
		t.Fatalf("sum is not Numeric: %T", sum)
	}
	if n.Kind() != KindDouble {
		t.Fatalf("int + double should widen to double, got %v", n.Kind())
	}
	if n.AsFloat() != 5.5 {
		t.Fatalf("3 + 2.5 = %v, want 5.5", n.AsFloat())
	}
}

func TestNumericOverflowWraps(t *testing.T) {
	max := NewInt(2147483647) // int32 max
	one := NewInt(1)
	sum, err := max.Add(one)
	if err != nil {
		t.Fatalf("overflow add: %v", err)
	}
	n := sum.(*Numeric)
	if n.Int64() != -2147483648 {
		t.Fatalf("int overflow should wrap two's-complement, got %d", n.Int64())
	}
}

func TestStructIndexByNameAndPosition(t *testing.T) {
	meta := StructMeta{Name: "point", FieldNames: []string{"x", "y"}}
	s := NewStruct(KindStructBase, meta, []Value{NewInt(1), NewInt(2)})

	byName, err := s.Index(NewStrFromString("y"))
	if err != nil {
		t.Fatalf("index by name: %v", err)
	}
	if byName.(*Numeric).Int64() != 2 {
		t.Fatalf("s.y = %v, want 2", byName.(*Numeric).Int64())
	}

	byPos, err := s.Index(NewInt(0))
	if err != nil {
		t.Fatalf("index by position: %v", err)
	}
	if byPos.(*Numeric).Int64() != 1 {
		t.Fatalf("s[0] = %v, want 1", byPos.(*Numeric).Int64())
	}

	if _, err := s.IndexSet(NewStrFromString("x"), NewInt(9)); err != nil {
		t.Fatalf("set by name: %v", err)
	}
	v, _ := s.Index(NewStrFromString("x"))
	if v.(*Numeric).Int64() != 9 {
		t.Fatalf("after set, s.x = %v, want 9", v.(*Numeric).Int64())
	}
}

func TestVecRefcountsElementsOnConstruction(t *testing.T) {
	e := NewInt(7)
	v := NewVec([]Value{e})
	if e.Refcount() != 1 {
		t.Fatalf("NewVec should Ref its elements, got refcount %d", e.Refcount())
	}
	_ = v
}

func TestDictMissingKeyIsNotAnError(t *testing.T) {
	d := NewDict()
	if err := d.Set(NewStrFromString("a"), NewInt(1)); err != nil {
		t.Fatalf("set: %v", err)
	}
	has, err := d.Has(NewStrFromString("missing"))
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if has {
		t.Fatalf("Has reported true for a key never set")
	}
}
