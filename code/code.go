// Package code implements the compiled-unit representation the compiler
// emits and the VM executes (spec §3.5, §4.4): packed 32-bit opcodes, a
// deduplicated constant pool, a locals table, and nested sub-codes for
// function declarations (struct/union layouts live in metadata tables).
package code

import (
	"fmt"
	"strings"

	"koa/object"
)

// ParaBits/ParaMask/Pack/Op/Para mirror the original's 8-bit-op +
// 24-bit-operand instruction packing exactly (spec §3.5 "32-bit packed
// instructions").
const (
	ParaBits = 24
	ParaMask = 0x00ffffff
)

type Opcode uint32

func Pack(op Op, para int32) Opcode {
	return Opcode(uint32(op)<<ParaBits | (uint32(para) & ParaMask))
}

func (c Opcode) Op() Op     { return Op(uint32(c) >> ParaBits) }
func (c Opcode) Para() int32 {
	v := uint32(c) & ParaMask
	// sign-extend a 24-bit field.
	if v&0x00800000 != 0 {
		v |= 0xff000000
	}
	return int32(v)
}

// Op is the opcode enumeration (spec §4.6), ordered as the original op_t
// except that OpMakeDict, OpMakeStruct and OpMakeUnion are inserted after
// OpMakeVec, so every later opcode's number differs from the original's.
type Op uint8

const (
	OpLoadConst Op = iota + 1
	OpStoreLocal
	OpStoreVar
	OpLoadVar
	OpFuncReturn
	OpTypeCast
	OpVarInc
	OpVarDec
	OpVarPoinc
	OpVarPodec
	OpValueNeg
	OpBitNot
	OpLogicNot
	OpPopStack
	OpLoadIndex
	OpStoreIndex
	OpIndexInc
	OpIndexDec
	OpIndexPoinc
	OpIndexPodec
	OpMakeVec
	OpMakeDict
	OpMakeStruct
	OpMakeUnion
	OpCallFunc
	OpBindArgs
	OpConSel
	OpLogicOr
	OpLogicAnd
	OpBitOr
	OpBitXor
	OpBitAnd
	OpEqual
	OpNotEqual
	OpLessThan
	OpLargeThan
	OpLessEqual
	OpLargeEqual
	OpLeftShift
	OpRightShift
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpVarIpmul
	OpVarIpdiv
	OpVarIpmod
	OpVarIpadd
	OpVarIpsub
	OpVarIpls
	OpVarIprs
	OpVarIpand
	OpVarIpxor
	OpVarIpor
	OpIndexIpmul
	OpIndexIpdiv
	OpIndexIpmod
	OpIndexIpadd
	OpIndexIpsub
	OpIndexIpls
	OpIndexIprs
	OpIndexIpand
	OpIndexIpxor
	OpIndexIpor
	OpJumpFalse
	OpJumpForce
	OpEnterBlock
	OpLeaveBlock
	OpJumpContinue
	OpJumpBreak
	OpReturn
	OpPushBlocks
	OpPopBlocks
	OpJumpCase
	OpJumpDefault
	OpJumpTrue
	OpEndProgram
)

// IsJump reports whether op is one of the jump-family opcodes that the
// compiler's emit-then-patch fixup logic must track (spec §4.4).
func (op Op) IsJump() bool {
	switch op {
	case OpJumpFalse, OpJumpForce, OpJumpContinue, OpJumpBreak, OpJumpCase, OpJumpDefault, OpJumpTrue:
		return true
	default:
		return false
	}
}

// StructMeta/UnionMeta mirror object.StructMeta's field-name table but
// also carry the dynamically-assigned type tag, letting a Code describe
// every struct/union type it declares (spec §4.4 "struct/union metadata
// tables").
type StructMeta struct {
	Tag    object.Kind
	object.StructMeta
}

type UnionMeta struct {
	Tag       object.Kind
	Name      string
	FieldNames []string
	FieldTypes []object.Kind
}

// Code is a compiled unit: a function body or a module's top level (spec
// §3.5 "Code: opcodes + line info + constant pool + locals table +
// nested sub-codes + struct/union metadata").
type Code struct {
	Opcodes  []Opcode
	LineInfo []int // parallel to Opcodes

	Consts    []object.Value
	VarNames  []string
	VarTypes  []object.Kind

	Nested  []*Code
	Structs []StructMeta
	Unions  []UnionMeta

	name     string
	Filename string
	IsFunc   bool
	Lineno   int
	RetType  object.Kind
	ParamCount int
}

func New(name string, isFunc bool, lineno int) *Code {
	return &Code{name: name, IsFunc: isFunc, Lineno: lineno}
}

func (c *Code) Name() string { return c.name }

// Emit appends a packed instruction and its source line, returning the
// instruction's index so jump targets can reference it.
func (c *Code) Emit(op Op, para int32, line int) int {
	c.Opcodes = append(c.Opcodes, Pack(op, para))
	c.LineInfo = append(c.LineInfo, line)
	return len(c.Opcodes) - 1
}

// TruncateTo rolls Opcodes/LineInfo back to length n, the REPL's
// parse-error recovery (spec §6.5 "rolling Code back to its
// pre-statement length").
func (c *Code) TruncateTo(n int) {
	c.Opcodes = c.Opcodes[:n]
	c.LineInfo = c.LineInfo[:n]
}

// Patch rewrites the operand of an already-emitted jump instruction, the
// second half of the compiler's emit-then-patch fixup pattern (spec
// §4.4).
func (c *Code) Patch(index int, para int32) {
	op := c.Opcodes[index].Op()
	c.Opcodes[index] = Pack(op, para)
}

// PushConst interns a constant into the pool, deduplicating identical
// values so repeated literals share one slot (spec §4.4 "push_const
// dedup rules"). Equality is by Kind plus Eq; a value whose Eq returns an
// error is never deduplicated and always gets a fresh slot.
func (c *Code) PushConst(v object.Value) int {
	for i, existing := range c.Consts {
		if existing.Kind() != v.Kind() {
			continue
		}
		if eq, err := existing.Eq(v); err == nil && eq {
			return i
		}
	}
	c.Consts = append(c.Consts, v)
	return len(c.Consts) - 1
}

// PushVarname declares a new local slot, rejecting a redefinition within
// the same Code (spec §4.4 "push_varname redefinition-is-error check").
func (c *Code) PushVarname(name string, typ object.Kind) (int, bool) {
	for _, n := range c.VarNames {
		if n == name {
			return -1, false
		}
	}
	c.VarNames = append(c.VarNames, name)
	c.VarTypes = append(c.VarTypes, typ)
	return len(c.VarNames) - 1, true
}

// IndexOfVar returns the slot of an already-declared local, or -1.
func (c *Code) IndexOfVar(name string) int {
	for i, n := range c.VarNames {
		if n == name {
			return i
		}
	}
	return -1
}

var opNames = map[Op]string{
	OpLoadConst: "LOAD_CONST", OpStoreLocal: "STORE_LOCAL", OpStoreVar: "STORE_VAR",
	OpLoadVar: "LOAD_VAR", OpFuncReturn: "FUNC_RETURN", OpTypeCast: "TYPE_CAST",
	OpVarInc: "VAR_INC", OpVarDec: "VAR_DEC", OpVarPoinc: "VAR_POINC", OpVarPodec: "VAR_PODEC",
	OpValueNeg: "VALUE_NEG", OpBitNot: "BIT_NOT", OpLogicNot: "LOGIC_NOT", OpPopStack: "POP_STACK",
	OpLoadIndex: "LOAD_INDEX", OpStoreIndex: "STORE_INDEX",
	OpIndexInc: "INDEX_INC", OpIndexDec: "INDEX_DEC", OpIndexPoinc: "INDEX_POINC", OpIndexPodec: "INDEX_PODEC",
	OpMakeVec: "MAKE_VEC", OpMakeDict: "MAKE_DICT", OpMakeStruct: "MAKE_STRUCT", OpMakeUnion: "MAKE_UNION",
	OpCallFunc: "CALL_FUNC", OpBindArgs: "BIND_ARGS", OpConSel: "CON_SEL",
	OpLogicOr: "LOGIC_OR", OpLogicAnd: "LOGIC_AND", OpBitOr: "BIT_OR", OpBitXor: "BIT_XOR", OpBitAnd: "BIT_AND",
	OpEqual: "EQUAL", OpNotEqual: "NOT_EQUAL", OpLessThan: "LESS_THAN", OpLargeThan: "LARGE_THAN",
	OpLessEqual: "LESS_EQUAL", OpLargeEqual: "LARGE_EQUAL", OpLeftShift: "LEFT_SHIFT", OpRightShift: "RIGHT_SHIFT",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpMod: "MOD",
	OpVarIpmul: "VAR_IPMUL", OpVarIpdiv: "VAR_IPDIV", OpVarIpmod: "VAR_IPMOD", OpVarIpadd: "VAR_IPADD",
	OpVarIpsub: "VAR_IPSUB", OpVarIpls: "VAR_IPLS", OpVarIprs: "VAR_IPRS", OpVarIpand: "VAR_IPAND",
	OpVarIpxor: "VAR_IPXOR", OpVarIpor: "VAR_IPOR",
	OpIndexIpmul: "INDEX_IPMUL", OpIndexIpdiv: "INDEX_IPDIV", OpIndexIpmod: "INDEX_IPMOD", OpIndexIpadd: "INDEX_IPADD",
	OpIndexIpsub: "INDEX_IPSUB", OpIndexIpls: "INDEX_IPLS", OpIndexIprs: "INDEX_IPRS", OpIndexIpand: "INDEX_IPAND",
	OpIndexIpxor: "INDEX_IPXOR", OpIndexIpor: "INDEX_IPOR",
	OpJumpFalse: "JUMP_FALSE", OpJumpForce: "JUMP_FORCE", OpEnterBlock: "ENTER_BLOCK", OpLeaveBlock: "LEAVE_BLOCK",
	OpJumpContinue: "JUMP_CONTINUE", OpJumpBreak: "JUMP_BREAK", OpReturn: "RETURN",
	OpPushBlocks: "PUSH_BLOCKS", OpPopBlocks: "POP_BLOCKS", OpJumpCase: "JUMP_CASE", OpJumpDefault: "JUMP_DEFAULT",
	OpJumpTrue: "JUMP_TRUE", OpEndProgram: "END_PROGRAM",
}

func (op Op) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return fmt.Sprintf("OP(%d)", op)
}

// Disassemble renders c's opcodes, followed recursively by those of its
// nested Codes, as one "ip  OPCODE  operand" line per instruction, the -p/--print CLI
// surface (spec §6.4).
func (c *Code) Disassemble() string {
	var b strings.Builder
	fmt.Fprintf(&b, "; %s (%s)\n", c.name, c.Filename)
	for ip, instr := range c.Opcodes {
		fmt.Fprintf(&b, "%4d  %-14s %d\n", ip, instr.Op(), instr.Para())
	}
	for i, sub := range c.Nested {
		fmt.Fprintf(&b, "\n; nested[%d]\n%s", i, sub.Disassemble())
	}
	return b.String()
}

// AddNested registers a function/module Code declared lexically inside
// this one (spec §3.5 "nested sub-codes").
func (c *Code) AddNested(sub *Code) int {
	c.Nested = append(c.Nested, sub)
	return len(c.Nested) - 1
}
