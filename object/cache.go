package object

// CharMin/CharMax bound the per-thread CHAR cache (spec §3.4: "Every CHAR
// value in [CHAR_MIN…CHAR_MAX] is cached per thread").
const (
	CharMin = -128
	CharMax = 127

	// IntCacheMin/IntCacheMax bound the per-thread INT cache (spec §3.4:
	// "Every INT value in [-1000, 10000] is cached per thread").
	IntCacheMin = -1000
	IntCacheMax = 10000
)

// Cache holds the per-thread CHAR/INT singleton tables (spec §3.4, §9
// "Per-thread singletons"). Each user thread owns exactly one Cache; it is
// never shared, so no synchronization is needed on construction.
type Cache struct {
	chars [CharMax - CharMin + 1]*Numeric
	ints  [IntCacheMax - IntCacheMin + 1]*Numeric
}

// NewCache builds a fresh, fully-populated per-thread cache. Populating
// eagerly (rather than lazily) keeps the hot path (Char/Int) allocation
// free and branch free.
func NewCache() *Cache {
	c := &Cache{}
	for i := range c.chars {
		v := NewChar(int8(i + CharMin))
		v.MarkImmortal()
		c.chars[i] = v
	}
	for i := range c.ints {
		v := NewInt(int64(i + IntCacheMin))
		v.MarkImmortal()
		c.ints[i] = v
	}
	return c
}

// Char returns the cached CHAR object for v, or a fresh one if out of
// cache range (chars are a full byte, so this never actually happens for
// the language's 8-bit CHAR, but the fallback keeps the method total).
func (c *Cache) Char(v int8) *Numeric {
	idx := int(v) - CharMin
	if idx >= 0 && idx < len(c.chars) {
		return c.chars[idx]
	}
	return NewChar(v)
}

// Int returns the cached INT object for v if it falls within
// [IntCacheMin, IntCacheMax], else allocates a fresh one.
func (c *Cache) Int(v int64) *Numeric {
	if v >= IntCacheMin && v <= IntCacheMax {
		return c.ints[v-IntCacheMin]
	}
	return NewInt(v)
}
