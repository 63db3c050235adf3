package object

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decode reconstructs a scalar/STR Value from the payload written by its
// Binary method, given the leading type tag (spec §6.1: "constants —
// each starting with its type tag"). Container kinds (VEC/DICT/STRUCT/
// UNION/FUNC/MOD) are not valid compile-time constants and are rejected;
// the constant pool only ever holds literals.
func Decode(kind Kind, payload []byte) (Value, error) {
	switch kind {
	case KindVoid:
		return VoidValue(), nil
	case KindNull:
		return NullValue(), nil
	case KindStr:
		n, sz := decodeUvarint(payload)
		return NewStr(payload[sz : sz+int(n)]), nil
	case KindBool:
		v := int64(binary.LittleEndian.Uint64(payload))
		return NewBool(v != 0), nil
	case KindChar:
		v := int64(binary.LittleEndian.Uint64(payload))
		return NewChar(int8(v)), nil
	case KindFloat:
		bits := binary.LittleEndian.Uint64(payload)
		return NewFloat(float32(math.Float64frombits(bits))), nil
	case KindDouble:
		bits := binary.LittleEndian.Uint64(payload)
		return NewDouble(math.Float64frombits(bits)), nil
	case KindInt8, KindInt16, KindInt32, KindInt, KindInt64, KindLong:
		v := int64(binary.LittleEndian.Uint64(payload))
		return castIntLiteral(kind, v), nil
	case KindUint8, KindUint16, KindUint32, KindUint, KindUint64, KindUlong:
		v := binary.LittleEndian.Uint64(payload)
		return castUintLiteral(kind, v), nil
	default:
		return nil, fmt.Errorf("object: kind %s is not a valid constant-pool literal", kind)
	}
}

func castIntLiteral(k Kind, v int64) Value {
	switch k {
	case KindInt8:
		return NewInt8(int8(v))
	case KindInt16:
		return NewInt16(int16(v))
	case KindInt32:
		return NewInt32(int32(v))
	case KindInt:
		return NewInt(v)
	case KindInt64:
		return NewInt64(v)
	default:
		return NewLong(v)
	}
}

func castUintLiteral(k Kind, v uint64) Value {
	switch k {
	case KindUint8:
		return NewUint8(uint8(v))
	case KindUint16:
		return NewUint16(uint16(v))
	case KindUint32:
		return NewUint32(uint32(v))
	case KindUint:
		return NewUint(v)
	case KindUint64:
		return NewUint64(v)
	default:
		return NewUlong(v)
	}
}

func decodeUvarint(b []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i, byt := range b {
		v |= uint64(byt&0x7f) << shift
		if byt&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return v, len(b)
}
