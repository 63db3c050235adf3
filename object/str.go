package object

import (
	"sync"
	"time"

	"koa/koaerr"
)

// Str is an immutable byte-string object (spec §3.3).
type Str struct {
	Header
	Unsupported
	data []byte
}

// internThreshold: STR objects at or below this length are interned
// process-wide (spec §3.3: "STR objects ≤ 5 bytes are interned").
const internThreshold = 5

var (
	internSeed     uint64
	internSeedOnce sync.Once

	internMu    sync.Mutex
	internTable = map[string]*Str{}
)

func seed() uint64 {
	internSeedOnce.Do(func() {
		internSeed = uint64(time.Now().UnixNano())
	})
	return internSeed
}

// NewStr constructs (or, for short strings, looks up) a STR object, per
// spec §3.3. Cross-thread access to the interning table is globally
// locked, matching spec §5's "STR additions/removals require a
// process-wide lock on the interned-string hash table".
func NewStr(b []byte) *Str {
	if len(b) > internThreshold {
		return &Str{data: append([]byte(nil), b...)}
	}
	key := string(b)
	internMu.Lock()
	defer internMu.Unlock()
	if s, ok := internTable[key]; ok {
		return s
	}
	s := &Str{data: []byte(key)}
	s.MarkImmortal() // the interning table holds a permanent strong ref
	internTable[key] = s
	return s
}

func NewStrFromString(s string) *Str { return NewStr([]byte(s)) }

func (s *Str) Kind() Kind  { return KindStr }
func (s *Str) Bytes() []byte { return s.data }
func (s *Str) String() string { return string(s.data) }

func (s *Str) Add(other Value) (Value, *koaerr.Error) {
	rhs, ok := other.(*Str)
	if !ok {
		return nil, koaerr.New(koaerr.Type, "can only concatenate str with str", 0, 0)
	}
	buf := make([]byte, 0, len(s.data)+len(rhs.data))
	buf = append(buf, s.data...)
	buf = append(buf, rhs.data...)
	return NewStr(buf), nil
}

func (s *Str) Eq(other Value) (bool, *koaerr.Error) {
	rhs, ok := other.(*Str)
	if !ok {
		return false, nil
	}
	return string(s.data) == string(rhs.data), nil
}

func (s *Str) Cmp(other Value) (int, *koaerr.Error) {
	rhs, ok := other.(*Str)
	if !ok {
		return 0, koaerr.Newf(koaerr.Type, 0, 0, "cannot compare str with %s", other.Kind())
	}
	switch {
	case string(s.data) < string(rhs.data):
		return -1, nil
	case string(s.data) > string(rhs.data):
		return 1, nil
	default:
		return 0, nil
	}
}

// Index returns the byte at an integer position as a CHAR (spec §4.2:
// "STR: index returns the byte at an integer position as a CHAR").
func (s *Str) Index(key Value) (Value, *koaerr.Error) {
	idx, ok := asNumeric(key)
	if !ok {
		return nil, koaerr.New(koaerr.Type, "str index must be numeric", 0, 0)
	}
	i := idx.Int64()
	if i < 0 || i >= int64(len(s.data)) {
		return nil, koaerr.Newf(koaerr.Index, 0, 0, "str index %d out of bounds (len %d)", i, len(s.data))
	}
	return NewChar(int8(s.data[i])), nil
}

// IndexSet: STR is immutable, so ipindex is not provided (spec §4.2).
func (s *Str) IndexSet(Value, Value) (Value, *koaerr.Error) {
	return nil, koaerr.New(koaerr.Type, "str is immutable", 0, 0)
}

func (s *Str) Len() (int, *koaerr.Error) { return len(s.data), nil }

// Hash implements MurmurHash2-64A over the bytes with the process-wide
// random seed (spec §4.2 "Hashing"; §4.4 "per-process random seed chosen
// at startup").
func (s *Str) Hash() (uint64, *koaerr.Error) {
	if d, ok := s.CachedDigest(); ok {
		return d, nil
	}
	d := murmur2_64a(s.data, seed())
	s.SetDigest(d)
	return d, nil
}

func (s *Str) Print() string { return string(s.data) }
func (s *Str) Dump() string  { return "\"" + string(s.data) + "\"" }

func (s *Str) Binary(dst []byte) ([]byte, error) {
	dst = append(dst, byte(KindStr))
	dst = appendUvarint(dst, uint64(len(s.data)))
	return append(dst, s.data...), nil
}

// murmur2_64a is the MurmurHash2 64-bit variant for 64-bit platforms
// ("64A"), used for string digests (spec §3.3). The small-string intern
// table does not use it: it is a Go map keyed by the string's bytes.
func murmur2_64a(data []byte, seed uint64) uint64 {
	const m = 0xc6a4a7935bd1e995
	const r = 47

	h := seed ^ (uint64(len(data)) * m)

	for len(data) >= 8 {
		k := leUint64(data)
		k *= m
		k ^= k >> r
		k *= m

		h ^= k
		h *= m

		data = data[8:]
	}

	switch len(data) {
	case 7:
		h ^= uint64(data[6]) << 48
		fallthrough
	case 6:
		h ^= uint64(data[5]) << 40
		fallthrough
	case 5:
		h ^= uint64(data[4]) << 32
		fallthrough
	case 4:
		h ^= uint64(data[3]) << 24
		fallthrough
	case 3:
		h ^= uint64(data[2]) << 16
		fallthrough
	case 2:
		h ^= uint64(data[1]) << 8
		fallthrough
	case 1:
		h ^= uint64(data[0])
		h *= m
	}

	h ^= h >> r
	h *= m
	h ^= h >> r

	return h
}

func leUint64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

func appendUvarint(dst []byte, v uint64) []byte {
	var buf [10]byte
	n := 0
	for v >= 0x80 {
		buf[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	buf[n] = byte(v)
	n++
	return append(dst, buf[:n]...)
}
