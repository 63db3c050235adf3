// Package binary implements the `.b` compiled-cache format (spec §6.1):
// a direct serialization of a Code tree, used so a script's Code does not
// need re-parsing on every run. All integers are written little-endian;
// this implementation need only be internally consistent (spec §6.1:
// "implementations MUST remain consistent with themselves").
package binary

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"koa/code"
	"koa/object"
)

// Ext/SourceExt are the cache and source file extensions (spec §6.1,
// §6.4 "koa" CLI surface).
const (
	Ext       = ".b"
	SourceExt = ".k"
)

func putUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func getUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func putString(w io.Writer, s string) error {
	if err := putUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func getString(r io.Reader) (string, error) {
	n, err := getUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Write serializes c and its full nested tree (spec §6.1 field order:
// name, filename, return type, function flag, first line, opcodes,
// line-info, constants, varnames, nested codes, struct metas, union
// metas).
func Write(w io.Writer, c *code.Code) error {
	if err := putString(w, c.Name()); err != nil {
		return err
	}
	if err := putString(w, c.Filename); err != nil {
		return err
	}
	if err := putUint32(w, uint32(c.RetType)); err != nil {
		return err
	}
	fn := uint32(0)
	if c.IsFunc {
		fn = 1
	}
	if err := putUint32(w, fn); err != nil {
		return err
	}
	if err := putUint32(w, uint32(c.Lineno)); err != nil {
		return err
	}

	if err := putUint32(w, uint32(len(c.Opcodes))); err != nil {
		return err
	}
	for _, op := range c.Opcodes {
		if err := putUint32(w, uint32(op)); err != nil {
			return err
		}
	}

	if err := putUint32(w, uint32(len(c.LineInfo))); err != nil {
		return err
	}
	for _, l := range c.LineInfo {
		if err := putUint32(w, uint32(l)); err != nil {
			return err
		}
	}

	if err := putUint32(w, uint32(len(c.Consts))); err != nil {
		return err
	}
	for _, v := range c.Consts {
		dst, err := v.Binary(nil)
		if err != nil {
			return err
		}
		if err := putUint32(w, uint32(len(dst))); err != nil {
			return err
		}
		if _, err := w.Write(dst); err != nil {
			return err
		}
	}

	if err := putUint32(w, uint32(len(c.VarNames))); err != nil {
		return err
	}
	for i, name := range c.VarNames {
		if err := putString(w, name); err != nil {
			return err
		}
		if err := putUint32(w, uint32(c.VarTypes[i])); err != nil {
			return err
		}
	}

	if err := putUint32(w, uint32(len(c.Nested))); err != nil {
		return err
	}
	for _, sub := range c.Nested {
		if err := Write(w, sub); err != nil {
			return err
		}
	}

	if err := putUint32(w, uint32(len(c.Structs))); err != nil {
		return err
	}
	for _, sm := range c.Structs {
		if err := putUint32(w, uint32(sm.Tag)); err != nil {
			return err
		}
		if err := putString(w, sm.Name); err != nil {
			return err
		}
		if err := putUint32(w, uint32(len(sm.FieldNames))); err != nil {
			return err
		}
		for _, fn := range sm.FieldNames {
			if err := putString(w, fn); err != nil {
				return err
			}
		}
	}

	if err := putUint32(w, uint32(len(c.Unions))); err != nil {
		return err
	}
	for _, um := range c.Unions {
		if err := putUint32(w, uint32(um.Tag)); err != nil {
			return err
		}
		if err := putString(w, um.Name); err != nil {
			return err
		}
		if err := putUint32(w, uint32(len(um.FieldNames))); err != nil {
			return err
		}
		for i, fn := range um.FieldNames {
			if err := putString(w, fn); err != nil {
				return err
			}
			if err := putUint32(w, uint32(um.FieldTypes[i])); err != nil {
				return err
			}
		}
	}

	return nil
}

// ConstDecoder lets Read reconstruct constant-pool Values without this
// package needing to duplicate every object kind's decoder; the vm/
// driver supplies it since it already knows how to build each Kind.
type ConstDecoder func(kind object.Kind, payload []byte) (object.Value, error)

// Read deserializes a Code tree written by Write.
func Read(r io.Reader, decodeConst ConstDecoder) (*code.Code, error) {
	name, err := getString(r)
	if err != nil {
		return nil, err
	}
	filename, err := getString(r)
	if err != nil {
		return nil, err
	}
	retType, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	fn, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	lineno, err := getUint32(r)
	if err != nil {
		return nil, err
	}

	c := code.New(name, fn == 1, int(lineno))
	c.Filename = filename
	c.RetType = object.Kind(retType)

	opCount, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	c.Opcodes = make([]code.Opcode, opCount)
	for i := range c.Opcodes {
		v, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		c.Opcodes[i] = code.Opcode(v)
	}

	lineCount, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	c.LineInfo = make([]int, lineCount)
	for i := range c.LineInfo {
		v, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		c.LineInfo[i] = int(v)
	}

	constCount, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	c.Consts = make([]object.Value, constCount)
	for i := range c.Consts {
		n, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		if len(buf) == 0 {
			return nil, fmt.Errorf("binary: empty constant payload")
		}
		v, err := decodeConst(object.Kind(buf[0]), buf[1:])
		if err != nil {
			return nil, err
		}
		c.Consts[i] = v
	}

	varCount, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	c.VarNames = make([]string, varCount)
	c.VarTypes = make([]object.Kind, varCount)
	for i := range c.VarNames {
		name, err := getString(r)
		if err != nil {
			return nil, err
		}
		typ, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		c.VarNames[i] = name
		c.VarTypes[i] = object.Kind(typ)
	}

	nestedCount, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	c.Nested = make([]*code.Code, nestedCount)
	for i := range c.Nested {
		sub, err := Read(r, decodeConst)
		if err != nil {
			return nil, err
		}
		c.Nested[i] = sub
	}

	structCount, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	c.Structs = make([]code.StructMeta, structCount)
	for i := range c.Structs {
		tag, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		name, err := getString(r)
		if err != nil {
			return nil, err
		}
		fieldCount, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		fields := make([]string, fieldCount)
		for j := range fields {
			fields[j], err = getString(r)
			if err != nil {
				return nil, err
			}
		}
		c.Structs[i] = code.StructMeta{Tag: object.Kind(tag), StructMeta: object.StructMeta{Name: name, FieldNames: fields}}
	}

	unionCount, err := getUint32(r)
	if err != nil {
		return nil, err
	}
	c.Unions = make([]code.UnionMeta, unionCount)
	for i := range c.Unions {
		tag, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		name, err := getString(r)
		if err != nil {
			return nil, err
		}
		fieldCount, err := getUint32(r)
		if err != nil {
			return nil, err
		}
		names := make([]string, fieldCount)
		types := make([]object.Kind, fieldCount)
		for j := range names {
			names[j], err = getString(r)
			if err != nil {
				return nil, err
			}
			t, err := getUint32(r)
			if err != nil {
				return nil, err
			}
			types[j] = object.Kind(t)
		}
		c.Unions[i] = code.UnionMeta{Tag: object.Kind(tag), Name: name, FieldNames: names, FieldTypes: types}
	}

	return c, nil
}

// CacheValid reports whether sourcePath's compiled `.b` sibling exists
// and is newer than the source (spec §6.1 "A cached .b is used when it
// exists, is readable/writable, and is newer (mtime) than the .k").
func CacheValid(sourcePath, cachePath string) bool {
	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return false
	}
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	return cacheInfo.ModTime().After(srcInfo.ModTime())
}
