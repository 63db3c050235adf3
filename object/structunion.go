package object

import "koa/koaerr"

// Struct is a fixed-length sequence of named fields (spec §3.2: "STRUCT:
// fixed-length field sequence"). Each instance carries its own copy of
// the field-name metadata (meta); Header.UserData is not used.
type Struct struct {
	Header
	GCHeader
	Unsupported
	tag    Kind // dynamic tag allocated at or above KindStructBase
	fields []Value
	meta   StructMeta
}

// StructMeta describes one struct type's field layout: parallel to the
// owning Code's struct-metadata table (spec §4.4 "struct/union metadata
// tables").
type StructMeta struct {
	Name       string
	FieldNames []string
}

func NewStruct(tag Kind, meta StructMeta, fields []Value) *Struct {
	s := &Struct{tag: tag, meta: meta, fields: fields}
	for _, f := range fields {
		f.Header().Ref()
	}
	return s
}

func (s *Struct) Kind() Kind           { return s.tag }
func (s *Struct) Fields() []Value      { return s.fields }
func (s *Struct) Meta() StructMeta     { return s.meta }
func (s *Struct) Len() (int, *koaerr.Error) { return len(s.fields), nil }

func (s *Struct) fieldIndex(name string) int {
	for i, n := range s.meta.FieldNames {
		if n == name {
			return i
		}
	}
	return -1
}

// FieldByName reads a field by its declared name, used by the VM's member
// access opcodes (spec §4.6 member access).
func (s *Struct) FieldByName(name string) (Value, *koaerr.Error) {
	i := s.fieldIndex(name)
	if i < 0 {
		return nil, koaerr.Newf(koaerr.Name, 0, 0, "struct %s has no field %q", s.meta.Name, name)
	}
	return s.fields[i], nil
}

func (s *Struct) SetFieldByName(name string, val Value) *koaerr.Error {
	i := s.fieldIndex(name)
	if i < 0 {
		return koaerr.Newf(koaerr.Name, 0, 0, "struct %s has no field %q", s.meta.Name, name)
	}
	val.Header().Ref()
	prev := s.fields[i]
	s.fields[i] = val
	if prev.Header().Unref() {
		Free(prev)
	}
	return nil
}

// Index/IndexSet expose positional field access so the VM can treat
// struct member opcodes uniformly with vec indexing when the field name
// has already been resolved to a slot number at compile time. A STR key
// is also accepted and resolved by name, since the compiler compiles `.`
// member access against whichever struct type flows through a variable
// at runtime rather than a statically-known slot.
func (s *Struct) Index(key Value) (Value, *koaerr.Error) {
	if str, ok := key.(*Str); ok {
		return s.FieldByName(str.String())
	}
	idx, ok := asNumeric(key)
	if !ok || idx.Int64() < 0 || idx.Int64() >= int64(len(s.fields)) {
		return nil, koaerr.New(koaerr.Index, "struct field index out of bounds", 0, 0)
	}
	return s.fields[idx.Int64()], nil
}

func (s *Struct) IndexSet(key, val Value) (Value, *koaerr.Error) {
	if str, ok := key.(*Str); ok {
		return val, s.SetFieldByName(str.String(), val)
	}
	idx, ok := asNumeric(key)
	if !ok || idx.Int64() < 0 || idx.Int64() >= int64(len(s.fields)) {
		return nil, koaerr.New(koaerr.Index, "struct field index out of bounds", 0, 0)
	}
	val.Header().Ref()
	i := idx.Int64()
	prev := s.fields[i]
	s.fields[i] = val
	if prev.Header().Unref() {
		Free(prev)
	}
	return val, nil
}

func (s *Struct) Hash() (uint64, *koaerr.Error) { return addressHash(s), nil }

func (s *Struct) Eq(other Value) (bool, *koaerr.Error) {
	rhs, ok := other.(*Struct)
	return ok && rhs == s, nil
}

func (s *Struct) Print() string {
	out := s.meta.Name + "{"
	for i, f := range s.fields {
		if i > 0 {
			out += ", "
		}
		out += s.meta.FieldNames[i] + ": " + f.Dump()
	}
	return out + "}"
}
func (s *Struct) Dump() string { return s.Print() }

func (s *Struct) Binary(dst []byte) ([]byte, error) {
	dst = append(dst, byte(KindStructBase))
	dst = appendUvarint(dst, uint64(len(s.fields)))
	var err error
	for _, f := range s.fields {
		dst, err = f.Binary(dst)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// Traverse visits every field in declaration order (spec §4.3: "STRUCT
// and UNION traverse fields in declaration order").
func (s *Struct) Traverse(fn TraverseFunc) {
	for i, f := range s.fields {
		if fn(f) {
			s.fields[i] = VoidValue()
		}
	}
}

// Union holds a single optional owned value; reading it as a declared
// field type performs a lazy cast of the stored value (spec §3.2: "UNION:
// single optional owned Object value... reading as any declared field
// type casts the stored value lazily").
type Union struct {
	Header
	GCHeader
	Unsupported
	tag       Kind
	declTypes []Kind
	declNames []string
	current   Value // VoidValue() when unset
}

func NewUnion(tag Kind, names []string, types []Kind) *Union {
	u := &Union{tag: tag, declNames: names, declTypes: types, current: VoidValue()}
	return u
}

func (u *Union) Kind() Kind { return u.tag }

// DeclNames/DeclTypes/Current expose a union's field declarations and
// currently active value, mirroring Struct's Fields()/Meta() getters;
// used by callers (e.g. thread spawn's deep-copy) that need to rebuild
// an equivalent instance rather than share this one.
func (u *Union) DeclNames() []string { return u.declNames }
func (u *Union) DeclTypes() []Kind   { return u.declTypes }
func (u *Union) Current() Value      { return u.current }

// Set stores val under the union, replacing whatever was previously held.
func (u *Union) Set(val Value) {
	val.Header().Ref()
	prev := u.current
	u.current = val
	if prev.Header().Unref() {
		Free(prev)
	}
}

// As reads the currently stored value cast to the named declared field's
// type. A numeric value read through a numeric field is cast to that
// field's kind; any other kind mismatch raises a TypeError.
func (u *Union) As(name string) (Value, *koaerr.Error) {
	for i, n := range u.declNames {
		if n != name {
			continue
		}
		if u.current.Kind() == KindVoid {
			return nil, koaerr.Newf(koaerr.Type, 0, 0, "union has no active value for field %q", name)
		}
		if num, ok := u.current.(*Numeric); ok && u.declTypes[i].IsNumeric() {
			return num.Cast(u.declTypes[i]), nil
		}
		if u.current.Kind() != u.declTypes[i] {
			return nil, koaerr.Newf(koaerr.Type, 0, 0, "union is active as %s, not %s", u.current.Kind(), u.declTypes[i])
		}
		return u.current, nil
	}
	return nil, koaerr.Newf(koaerr.Name, 0, 0, "union has no field %q", name)
}

func (u *Union) Len() (int, *koaerr.Error) { return 1, nil }

func (u *Union) Hash() (uint64, *koaerr.Error) { return addressHash(u), nil }

func (u *Union) Eq(other Value) (bool, *koaerr.Error) {
	rhs, ok := other.(*Union)
	return ok && rhs == u, nil
}

func (u *Union) Print() string { return "union(" + u.current.Dump() + ")" }
func (u *Union) Dump() string  { return u.Print() }

func (u *Union) Binary(dst []byte) ([]byte, error) {
	dst = append(dst, byte(KindStructBase+UnionBase))
	return u.current.Binary(dst)
}

// Traverse visits the single active field (spec §4.3).
func (u *Union) Traverse(fn TraverseFunc) {
	if fn(u.current) {
		u.current = VoidValue()
	}
}
