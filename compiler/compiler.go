// Package compiler implements the recursive-descent compiler (spec
// §4.7): it consumes a lookahead-1 token.Reader directly and emits
// code.Code, with no separate AST pass — each grammar production emits
// its own opcodes as it recognizes them, the same single-pass shape the
// teacher's tree-walking parser takes one level removed (there the
// production builds an ast.Node instead of bytecode).
package compiler

import (
	"fmt"

	"koa/code"
	"koa/koaerr"
	"koa/object"
	"koa/token"
)

// Compiler turns one token stream into one Code. A fresh Compiler is
// created per function body (including the top-level program), sharing
// the token.Reader with its enclosing scope so nested function literals
// see the same stream.
type Compiler struct {
	toks token.Reader
	file string

	code *code.Code

	breakTargets    [][]int // patch list per enclosing loop/switch
	continueTargets [][]int

	builtins map[string]*object.Func // name -> callable builtin wrapper

	lastCaseConst object.Value // set by caseValue, read by switchStatement
}

// New starts a compiler for the top-level program Code. builtins maps
// each builtin slot's name to its already-constructed Func wrapper
// (spec §6.3); the compiler interns these into the constant pool
// wherever script code names them, exactly as it would any other FUNC
// constant.
func New(toks token.Reader, file string, builtins map[string]*object.Func) *Compiler {
	return &Compiler{
		toks:     toks,
		file:     file,
		code:     code.New("<main>", false, 1),
		builtins: builtins,
	}
}

func newNested(parent *Compiler, name string, isFunc bool, lineno int) *Compiler {
	return &Compiler{
		toks:     parent.toks,
		file:     parent.file,
		code:     code.New(name, isFunc, lineno),
		builtins: parent.builtins,
	}
}

// Code returns the Code built so far, used by the REPL driver to know
// the pre-statement length it must roll back to on a parse error (spec
// §6.5).
func (c *Compiler) Code() *code.Code { return c.code }

// Reset points the Compiler at a new token stream while keeping its
// persistent Code, letting a REPL driver feed one freshly scanned line
// at a time through the same Compiler (spec §6.5 "one logical statement
// per input").
func (c *Compiler) Reset(toks token.Reader) { c.toks = toks }

func (c *Compiler) errf(line int, format string, args ...interface{}) *koaerr.Error {
	e := koaerr.Newf(koaerr.Syntax, line, 0, format, args...)
	e.File = c.file
	return e
}

func (c *Compiler) peek() token.Token { return c.toks.Peek() }
func (c *Compiler) next() token.Token { return c.toks.Next() }

func (c *Compiler) expect(typ token.Type, what string) (token.Token, *koaerr.Error) {
	t := c.next()
	if t.Type != typ {
		return t, c.errf(t.Line, "expected %s, got %q", what, t.String())
	}
	return t, nil
}

// Compile parses the entire token stream as a program body (spec §4.6
// "the interpreter instantiates a Frame around root Code").
func Compile(toks token.Reader, file string, builtins map[string]*object.Func) (*code.Code, *koaerr.Error) {
	c := New(toks, file, builtins)
	for c.peek().Type != token.END {
		if err := c.statement(); err != nil {
			return nil, err
		}
	}
	c.code.Emit(code.OpEndProgram, 0, 0)
	return c.code, nil
}

// CompileStatement compiles exactly one top-level statement against an
// existing persistent Code, the REPL's per-input unit (spec §6.5).
func CompileStatement(c *Compiler) *koaerr.Error {
	return c.statement()
}

// ---- type keywords ----

var typeKeywords = map[token.Type]object.Kind{
	token.KwVoid: object.KindVoid, token.KwBool: object.KindBool,
	token.KwChar: object.KindChar, token.KwInt8: object.KindInt8,
	token.KwUint8: object.KindUint8, token.KwInt16: object.KindInt16,
	token.KwUint16: object.KindUint16, token.KwInt32: object.KindInt32,
	token.KwUint32: object.KindUint32, token.KwInt: object.KindInt,
	token.KwUint: object.KindUint, token.KwInt64: object.KindInt64,
	token.KwUint64: object.KindUint64, token.KwLong: object.KindLong,
	token.KwUlong: object.KindUlong, token.KwFloat: object.KindFloat,
	token.KwDouble: object.KindDouble, token.KwStr: object.KindStr,
	token.KwVec: object.KindVec, token.KwDict: object.KindDict,
	token.KwFunc: object.KindFunc,
}

func isTypeKeyword(t token.Type) bool {
	_, ok := typeKeywords[t]
	return ok
}

// ---- statements ----

func (c *Compiler) statement() *koaerr.Error {
	t := c.peek()
	switch {
	case t.Type == token.LBrace:
		return c.blockStatement()
	case t.Type == token.KwIf:
		return c.ifStatement()
	case t.Type == token.KwWhile:
		return c.whileStatement()
	case t.Type == token.KwDo:
		return c.doWhileStatement()
	case t.Type == token.KwFor:
		return c.forStatement()
	case t.Type == token.KwSwitch:
		return c.switchStatement()
	case t.Type == token.KwBreak:
		return c.breakStatement()
	case t.Type == token.KwContinue:
		return c.continueStatement()
	case t.Type == token.KwReturn:
		return c.returnStatement()
	case t.Type == token.KwTry:
		return c.tryStatement()
	case t.Type == token.KwStruct:
		return c.structDecl()
	case t.Type == token.KwUnion:
		return c.unionDecl()
	case isTypeKeyword(t.Type):
		return c.declarationOrFunc()
	case t.Type == token.Semicolon:
		c.next()
		return nil
	default:
		return c.exprStatement()
	}
}

func (c *Compiler) blockStatement() *koaerr.Error {
	if _, err := c.expect(token.LBrace, "'{'"); err != nil {
		return err
	}
	c.code.Emit(code.OpPushBlocks, 0, c.peek().Line)
	for c.peek().Type != token.RBrace && c.peek().Type != token.END {
		if err := c.statement(); err != nil {
			return err
		}
	}
	if _, err := c.expect(token.RBrace, "'}'"); err != nil {
		return err
	}
	c.code.Emit(code.OpPopBlocks, 1, c.peek().Line)
	return nil
}

// declarationOrFunc disambiguates `type name(...) {...}` function decls
// from `type name = expr;` / `type name;` variable declarations — both
// start with a type keyword followed by an identifier (spec §4.7
// "declaration always carries a declared type").
func (c *Compiler) declarationOrFunc() *koaerr.Error {
	typTok := c.next()
	typ := typeKeywords[typTok.Type]
	name, err := c.expect(token.IDENTIFIER, "identifier")
	if err != nil {
		return err
	}
	if c.peek().Type == token.LParen {
		return c.funcDecl(typ, name.String(), typTok.Line)
	}
	return c.varDecl(typ, name.String(), typTok.Line)
}

func (c *Compiler) varDecl(typ object.Kind, name string, line int) *koaerr.Error {
	idx, ok := c.code.PushVarname(name, typ)
	if !ok {
		return c.errf(line, "redefinition of %q", name)
	}
	if c.peek().Type == token.Assign {
		c.next()
		if err := c.expr(); err != nil {
			return err
		}
	} else {
		c.emitZeroValue(typ, line)
	}
	c.code.Emit(code.OpTypeCast, int32(typ), line)
	c.code.Emit(code.OpStoreLocal, int32(idx), line)
	if _, err := c.expect(token.Semicolon, "';'"); err != nil {
		return err
	}
	return nil
}

// emitZeroValue emits the no-initializer default for a declaration (spec
// §4.7 "a declaration with no initializer gets its type's zero value").
// VEC and DICT must each come from their own fresh constructing opcode,
// not the constant pool: PushConst dedups by equality, so a mutable
// container handed out that way would alias the same instance across
// every execution of the declaration instead of starting empty each time.
func (c *Compiler) emitZeroValue(typ object.Kind, line int) {
	switch typ {
	case object.KindVoid:
		idx := c.code.PushConst(object.VoidValue())
		c.code.Emit(code.OpLoadConst, int32(idx), line)
	case object.KindStr:
		idx := c.code.PushConst(object.NewStr(nil))
		c.code.Emit(code.OpLoadConst, int32(idx), line)
	case object.KindVec:
		c.code.Emit(code.OpMakeVec, 0, line)
	case object.KindDict:
		c.code.Emit(code.OpMakeDict, 0, line)
	default:
		idx := c.code.PushConst(object.NewInt(0))
		c.code.Emit(code.OpLoadConst, int32(idx), line)
	}
}

func (c *Compiler) funcDecl(retType object.Kind, name string, line int) *koaerr.Error {
	sub := newNested(c, name, true, line)
	sub.code.RetType = retType
	if _, err := sub.expect(token.LParen, "'('"); err != nil {
		return err
	}
	paramCount := 0
	for sub.peek().Type != token.RParen {
		if paramCount > 0 {
			if _, err := sub.expect(token.Comma, "','"); err != nil {
				return err
			}
		}
		if !isTypeKeyword(sub.peek().Type) {
			return sub.errf(sub.peek().Line, "expected parameter type")
		}
		pt := typeKeywords[sub.next().Type]
		pname, err := sub.expect(token.IDENTIFIER, "parameter name")
		if err != nil {
			return err
		}
		if _, ok := sub.code.PushVarname(pname.String(), pt); !ok {
			return sub.errf(pname.Line, "duplicate parameter %q", pname.String())
		}
		paramCount++
	}
	sub.code.ParamCount = paramCount
	// Declare the function's own name in its body so a recursive call
	// compiles; at run time it resolves to the binding hoisted into the
	// enclosing Frame. A parameter of the same name shadows it.
	sub.code.PushVarname(name, object.KindFunc)
	if _, err := sub.expect(token.RParen, "')'"); err != nil {
		return err
	}
	if _, err := sub.expect(token.LBrace, "'{'"); err != nil {
		return err
	}
	for sub.peek().Type != token.RBrace && sub.peek().Type != token.END {
		if err := sub.statement(); err != nil {
			return err
		}
	}
	if _, err := sub.expect(token.RBrace, "'}'"); err != nil {
		return err
	}
	// fall-through return (spec §4.6): a body that runs off the end
	// returns VOID, which the VM's return-type cast rejects with a
	// ReturnTypeError when the function is declared non-void.
	idx := sub.code.PushConst(object.VoidValue())
	sub.code.Emit(code.OpLoadConst, int32(idx), line)
	sub.code.Emit(code.OpFuncReturn, 0, line)

	c.code.AddNested(sub.code)
	// No opcode materializes a nested Code into a callable value: the VM
	// hoists every IsFunc entry of Nested into its Frame's root block
	// before running a single instruction (vm/frame.go), the same way the
	// name must already be declared for OpLoadVar/OpCallFunc to find it.
	if _, ok := c.code.PushVarname(name, object.KindFunc); !ok {
		return c.errf(line, "redefinition of %q", name)
	}
	return nil
}

// findStruct/findUnion resolve a previously-declared type name to its
// metadata and its slot index in this Code's Structs/Unions table (the
// index a MAKE_STRUCT/MAKE_UNION operand addresses), used by
// struct/union variable declarations to recognize `struct Name ident;`
// as referring to an already-declared type rather than a fresh one.
func (c *Compiler) findStruct(name string) (code.StructMeta, int, bool) {
	for i, s := range c.code.Structs {
		if s.Name == name {
			return s, i, true
		}
	}
	return code.StructMeta{}, -1, false
}

func (c *Compiler) findUnion(name string) (code.UnionMeta, int, bool) {
	for i, u := range c.code.Unions {
		if u.Name == name {
			return u, i, true
		}
	}
	return code.UnionMeta{}, -1, false
}

// structDecl disambiguates `struct Name { fields... };` (a type
// declaration) from `struct Name ident [= expr];` (a variable of an
// already-declared struct type), both of which start identically: the
// keyword, then the type name. The grammar only needs one more token
// of lookahead than Reader gives (whether '{' follows the name), so the
// name is consumed up front and the branch taken from there, mirroring
// the original source's own struct-vs-declaration disambiguation
// (parser.c's parser_token_object_type/parser_external_declaration).
func (c *Compiler) structDecl() *koaerr.Error {
	c.next() // 'struct'
	name, err := c.expect(token.IDENTIFIER, "struct name")
	if err != nil {
		return err
	}
	if c.peek().Type != token.LBrace {
		return c.structVarDecl(name.String(), name.Line)
	}

	c.next() // '{'
	var fields []string
	for c.peek().Type != token.RBrace {
		if !isTypeKeyword(c.peek().Type) {
			return c.errf(c.peek().Line, "expected field type")
		}
		c.next()
		fname, err := c.expect(token.IDENTIFIER, "field name")
		if err != nil {
			return err
		}
		fields = append(fields, fname.String())
		if _, err := c.expect(token.Semicolon, "';'"); err != nil {
			return err
		}
	}
	if _, err := c.expect(token.RBrace, "'}'"); err != nil {
		return err
	}
	tag := object.KindStructBase + object.Kind(len(c.code.Structs))
	c.code.Structs = append(c.code.Structs, code.StructMeta{
		Tag:        tag,
		StructMeta: object.StructMeta{Name: name.String(), FieldNames: fields},
	})
	if _, err := c.expect(token.Semicolon, "';'"); err != nil {
		return err
	}
	return nil
}

// structVarDecl compiles `struct Name ident;` / `struct Name ident =
// expr;`, constructing a fresh instance via MAKE_STRUCT when there is no
// initializer (object.NewStruct, field-by-field NULL, the same
// fresh-per-execution requirement as a bare `dict d;` — spec §4.7).
func (c *Compiler) structVarDecl(typeName string, line int) *koaerr.Error {
	meta, idx, ok := c.findStruct(typeName)
	if !ok {
		return c.errf(line, "undefined struct %q", typeName)
	}
	name, err := c.expect(token.IDENTIFIER, "identifier")
	if err != nil {
		return err
	}
	varIdx, ok := c.code.PushVarname(name.String(), meta.Tag)
	if !ok {
		return c.errf(name.Line, "redefinition of %q", name.String())
	}
	if c.peek().Type == token.Assign {
		c.next()
		if err := c.expr(); err != nil {
			return err
		}
	} else {
		c.code.Emit(code.OpMakeStruct, int32(idx), line)
	}
	c.code.Emit(code.OpTypeCast, int32(meta.Tag), line)
	c.code.Emit(code.OpStoreLocal, int32(varIdx), line)
	if _, err := c.expect(token.Semicolon, "';'"); err != nil {
		return err
	}
	return nil
}

func (c *Compiler) unionDecl() *koaerr.Error {
	c.next() // 'union'
	name, err := c.expect(token.IDENTIFIER, "union name")
	if err != nil {
		return err
	}
	if c.peek().Type != token.LBrace {
		return c.unionVarDecl(name.String(), name.Line)
	}

	c.next() // '{'
	var names []string
	var types []object.Kind
	for c.peek().Type != token.RBrace {
		if !isTypeKeyword(c.peek().Type) {
			return c.errf(c.peek().Line, "expected field type")
		}
		types = append(types, typeKeywords[c.next().Type])
		fname, err := c.expect(token.IDENTIFIER, "field name")
		if err != nil {
			return err
		}
		names = append(names, fname.String())
		if _, err := c.expect(token.Semicolon, "';'"); err != nil {
			return err
		}
	}
	if _, err := c.expect(token.RBrace, "'}'"); err != nil {
		return err
	}
	tag := object.Kind(int(object.UnionBase) + len(c.code.Unions))
	c.code.Unions = append(c.code.Unions, code.UnionMeta{Tag: tag, Name: name.String(), FieldNames: names, FieldTypes: types})
	if _, err := c.expect(token.Semicolon, "';'"); err != nil {
		return err
	}
	return nil
}

// unionVarDecl mirrors structVarDecl: `union Name ident;` constructs a
// fresh, unset-current instance via MAKE_UNION (object.NewUnion).
func (c *Compiler) unionVarDecl(typeName string, line int) *koaerr.Error {
	meta, idx, ok := c.findUnion(typeName)
	if !ok {
		return c.errf(line, "undefined union %q", typeName)
	}
	name, err := c.expect(token.IDENTIFIER, "identifier")
	if err != nil {
		return err
	}
	varIdx, ok := c.code.PushVarname(name.String(), meta.Tag)
	if !ok {
		return c.errf(name.Line, "redefinition of %q", name.String())
	}
	if c.peek().Type == token.Assign {
		c.next()
		if err := c.expr(); err != nil {
			return err
		}
	} else {
		c.code.Emit(code.OpMakeUnion, int32(idx), line)
	}
	c.code.Emit(code.OpTypeCast, int32(meta.Tag), line)
	c.code.Emit(code.OpStoreLocal, int32(varIdx), line)
	if _, err := c.expect(token.Semicolon, "';'"); err != nil {
		return err
	}
	return nil
}

func (c *Compiler) ifStatement() *koaerr.Error {
	line := c.next().Line
	if _, err := c.expect(token.LParen, "'('"); err != nil {
		return err
	}
	if err := c.expr(); err != nil {
		return err
	}
	if _, err := c.expect(token.RParen, "')'"); err != nil {
		return err
	}
	falseJump := c.code.Emit(code.OpJumpFalse, 0, line)
	if err := c.statement(); err != nil {
		return err
	}
	if c.peek().Type == token.KwElse {
		c.next()
		endJump := c.code.Emit(code.OpJumpForce, 0, line)
		c.code.Patch(falseJump, int32(len(c.code.Opcodes)))
		if err := c.statement(); err != nil {
			return err
		}
		c.code.Patch(endJump, int32(len(c.code.Opcodes)))
	} else {
		c.code.Patch(falseJump, int32(len(c.code.Opcodes)))
	}
	return nil
}

func (c *Compiler) pushLoop() {
	c.breakTargets = append(c.breakTargets, nil)
	c.continueTargets = append(c.continueTargets, nil)
}

func (c *Compiler) patchLoop(breakTarget, continueTarget int32) {
	n := len(c.breakTargets) - 1
	for _, idx := range c.breakTargets[n] {
		c.code.Patch(idx, breakTarget)
	}
	for _, idx := range c.continueTargets[n] {
		c.code.Patch(idx, continueTarget)
	}
	c.breakTargets = c.breakTargets[:n]
	c.continueTargets = c.continueTargets[:n]
}

func (c *Compiler) whileStatement() *koaerr.Error {
	line := c.next().Line
	top := int32(len(c.code.Opcodes))
	if _, err := c.expect(token.LParen, "'('"); err != nil {
		return err
	}
	if err := c.expr(); err != nil {
		return err
	}
	if _, err := c.expect(token.RParen, "')'"); err != nil {
		return err
	}
	exitJump := c.code.Emit(code.OpJumpFalse, 0, line)
	c.pushLoop()
	if err := c.statement(); err != nil {
		return err
	}
	c.code.Emit(code.OpJumpForce, top, line)
	end := int32(len(c.code.Opcodes))
	c.code.Patch(exitJump, end)
	c.patchLoop(end, top)
	return nil
}

func (c *Compiler) doWhileStatement() *koaerr.Error {
	line := c.next().Line
	top := int32(len(c.code.Opcodes))
	c.pushLoop()
	if err := c.statement(); err != nil {
		return err
	}
	if _, err := c.expect(token.KwWhile, "'while'"); err != nil {
		return err
	}
	continueTarget := int32(len(c.code.Opcodes))
	if _, err := c.expect(token.LParen, "'('"); err != nil {
		return err
	}
	if err := c.expr(); err != nil {
		return err
	}
	if _, err := c.expect(token.RParen, "')'"); err != nil {
		return err
	}
	if _, err := c.expect(token.Semicolon, "';'"); err != nil {
		return err
	}
	c.code.Emit(code.OpJumpTrue, top, line)
	end := int32(len(c.code.Opcodes))
	c.patchLoop(end, continueTarget)
	return nil
}

func (c *Compiler) forStatement() *koaerr.Error {
	line := c.next().Line
	if _, err := c.expect(token.LParen, "'('"); err != nil {
		return err
	}
	c.code.Emit(code.OpPushBlocks, 0, line)
	if c.peek().Type != token.Semicolon {
		if isTypeKeyword(c.peek().Type) {
			if err := c.declarationOrFunc(); err != nil {
				return err
			}
		} else {
			if err := c.exprStatement(); err != nil {
				return err
			}
		}
	} else {
		c.next()
	}
	top := int32(len(c.code.Opcodes))
	hasCond := c.peek().Type != token.Semicolon
	var exitJump int
	if hasCond {
		if err := c.expr(); err != nil {
			return err
		}
		exitJump = c.code.Emit(code.OpJumpFalse, 0, line)
	}
	if _, err := c.expect(token.Semicolon, "';'"); err != nil {
		return err
	}
	postStart := len(c.code.Opcodes)
	var postOps []code.Opcode
	var postLines []int
	if c.peek().Type != token.RParen {
		// Compile the post-expression into a side buffer and splice it
		// after the body, since it is written before the body but runs
		// after it.
		saved := c.code.Opcodes
		savedLines := c.code.LineInfo
		c.code.Opcodes = nil
		c.code.LineInfo = nil
		if err := c.expr(); err != nil {
			return err
		}
		c.code.Emit(code.OpPopStack, 0, line)
		postOps = c.code.Opcodes
		postLines = c.code.LineInfo
		c.code.Opcodes = saved
		c.code.LineInfo = savedLines
	}
	_ = postStart
	if _, err := c.expect(token.RParen, "')'"); err != nil {
		return err
	}
	c.pushLoop()
	if err := c.statement(); err != nil {
		return err
	}
	continueTarget := int32(len(c.code.Opcodes))
	for i, op := range postOps {
		c.code.Opcodes = append(c.code.Opcodes, op)
		c.code.LineInfo = append(c.code.LineInfo, postLines[i])
	}
	c.code.Emit(code.OpJumpForce, top, line)
	end := int32(len(c.code.Opcodes))
	if hasCond {
		c.code.Patch(exitJump, end)
	}
	c.patchLoop(end, continueTarget)
	c.code.Emit(code.OpPopBlocks, 1, line)
	return nil
}

func (c *Compiler) breakStatement() *koaerr.Error {
	line := c.next().Line
	if len(c.breakTargets) == 0 {
		return c.errf(line, "'break' outside a loop or switch")
	}
	idx := c.code.Emit(code.OpJumpBreak, 0, line)
	n := len(c.breakTargets) - 1
	c.breakTargets[n] = append(c.breakTargets[n], idx)
	_, err := c.expect(token.Semicolon, "';'")
	return err
}

func (c *Compiler) continueStatement() *koaerr.Error {
	line := c.next().Line
	if len(c.continueTargets) == 0 {
		return c.errf(line, "'continue' outside a loop")
	}
	idx := c.code.Emit(code.OpJumpContinue, 0, line)
	n := len(c.continueTargets) - 1
	c.continueTargets[n] = append(c.continueTargets[n], idx)
	_, err := c.expect(token.Semicolon, "';'")
	return err
}

func (c *Compiler) returnStatement() *koaerr.Error {
	line := c.next().Line
	if c.peek().Type == token.Semicolon {
		idx := c.code.PushConst(object.VoidValue())
		c.code.Emit(code.OpLoadConst, int32(idx), line)
	} else {
		if err := c.expr(); err != nil {
			return err
		}
	}
	c.code.Emit(code.OpReturn, 0, line)
	_, err := c.expect(token.Semicolon, "';'")
	return err
}

// tryStatement implements try/catch (spec §4.5): ENTER_BLOCK's operand
// is the catch-jump target, making this block catching; the matching
// LEAVE_BLOCK marks the normal (non-exceptional) exit.
func (c *Compiler) tryStatement() *koaerr.Error {
	line := c.next().Line
	enter := c.code.Emit(code.OpEnterBlock, 0, line)
	if err := c.statement(); err != nil {
		return err
	}
	c.code.Emit(code.OpLeaveBlock, 0, line)
	skipCatch := c.code.Emit(code.OpJumpForce, 0, line)
	c.code.Patch(enter, int32(len(c.code.Opcodes)))

	if _, err := c.expect(token.KwCatch, "'catch'"); err != nil {
		return err
	}
	if _, err := c.expect(token.LParen, "'('"); err != nil {
		return err
	}
	name, err := c.expect(token.IDENTIFIER, "exception binding name")
	if err != nil {
		return err
	}
	if _, err := c.expect(token.RParen, "')'"); err != nil {
		return err
	}
	idx, ok := c.code.PushVarname(name.String(), object.KindException)
	if !ok {
		return c.errf(name.Line, "redefinition of %q", name.String())
	}
	c.code.Emit(code.OpStoreLocal, int32(idx), name.Line)
	if err := c.statement(); err != nil {
		return err
	}
	c.code.Patch(skipCatch, int32(len(c.code.Opcodes)))
	return nil
}

// switchStatement emits the body in source order, then moves each case
// comparison to the front of the switch and chains them with
// JUMP_FORCE, per spec §4.7's documented reordering pass.
func (c *Compiler) switchStatement() *koaerr.Error {
	line := c.next().Line
	if _, err := c.expect(token.LParen, "'('"); err != nil {
		return err
	}
	if err := c.expr(); err != nil {
		return err
	}
	if _, err := c.expect(token.RParen, "')'"); err != nil {
		return err
	}
	subjectIdx, _ := c.code.PushVarname(fmt.Sprintf("$switch%d", len(c.code.Opcodes)), object.KindInt)
	c.code.Emit(code.OpStoreLocal, int32(subjectIdx), line)

	if _, err := c.expect(token.LBrace, "'{'"); err != nil {
		return err
	}
	c.pushLoop()

	bodyStart := len(c.code.Opcodes)
	type caseLabel struct {
		constIdx int
		jumpFrom int // JUMP_CASE index pointing at the case body, emitted in the header
	}
	var cases []caseLabel
	defaultBody := -1

	for c.peek().Type != token.RBrace && c.peek().Type != token.END {
		switch c.peek().Type {
		case token.KwCase:
			c.next()
			if err := c.caseValue(); err != nil {
				return err
			}
			if _, err := c.expect(token.Colon, "':'"); err != nil {
				return err
			}
			constIdx := c.code.PushConst(c.lastCaseConst)
			cases = append(cases, caseLabel{constIdx: constIdx, jumpFrom: len(c.code.Opcodes)})
		case token.KwDefault:
			c.next()
			if _, err := c.expect(token.Colon, "':'"); err != nil {
				return err
			}
			defaultBody = len(c.code.Opcodes)
		default:
			if err := c.statement(); err != nil {
				return err
			}
		}
	}
	if _, err := c.expect(token.RBrace, "'}'"); err != nil {
		return err
	}
	bodyEnd := len(c.code.Opcodes)

	// Build the header: for each case, load subject & const, compare,
	// JUMP_CASE into the body on match; fall through to default/end.
	var header []code.Opcode
	var headerLines []int
	for _, cl := range cases {
		header = append(header, code.Pack(code.OpLoadVar, int32(subjectIdx)))
		header = append(header, code.Pack(code.OpLoadConst, int32(cl.constIdx)))
		header = append(header, code.Pack(code.OpEqual, 0))
		// JUMP_CASE target patched below once we know the header length.
		header = append(header, code.Pack(code.OpJumpCase, 0))
		headerLines = append(headerLines, line, line, line, line)
	}
	defaultJumpPos := len(header)
	header = append(header, code.Pack(code.OpJumpForce, 0))
	headerLines = append(headerLines, line)

	headerLen := len(header)
	bodyShift := int32(headerLen)
	caseIdx := 0
	for i := range header {
		if header[i].Op() == code.OpJumpCase {
			target := int32(cases[caseIdx].jumpFrom) + bodyShift
			header[i] = code.Pack(code.OpJumpCase, target)
			caseIdx++
		}
	}
	if defaultBody >= 0 {
		header[defaultJumpPos] = code.Pack(code.OpJumpForce, int32(defaultBody)+bodyShift)
	} else {
		header[defaultJumpPos] = code.Pack(code.OpJumpForce, int32(bodyEnd)+bodyShift)
	}

	// Splice header before the body and shift every jump that targets
	// into or past the body range (spec: "adjusts every preceding
	// JUMP_FORCE whose target crossed the moved range").
	newOpcodes := make([]code.Opcode, 0, len(c.code.Opcodes)+headerLen)
	newOpcodes = append(newOpcodes, c.code.Opcodes[:bodyStart]...)
	newOpcodes = append(newOpcodes, header...)
	newOpcodes = append(newOpcodes, c.code.Opcodes[bodyStart:]...)
	newLines := make([]int, 0, len(c.code.LineInfo)+headerLen)
	newLines = append(newLines, c.code.LineInfo[:bodyStart]...)
	newLines = append(newLines, headerLines...)
	newLines = append(newLines, c.code.LineInfo[bodyStart:]...)

	for i := range newOpcodes {
		if i >= bodyStart && i < bodyStart+headerLen {
			continue // header jumps already carry their final targets
		}
		op := newOpcodes[i].Op()
		if op.IsJump() {
			target := newOpcodes[i].Para()
			if target >= int32(bodyStart) {
				newOpcodes[i] = code.Pack(op, target+bodyShift)
			}
		}
	}
	c.code.Opcodes = newOpcodes
	c.code.LineInfo = newLines

	// Break/continue sites recorded inside the body moved with it.
	n := len(c.breakTargets) - 1
	for _, sites := range [][]int{c.breakTargets[n], c.continueTargets[n]} {
		for j := range sites {
			if sites[j] >= bodyStart {
				sites[j] += headerLen
			}
		}
	}

	end := int32(len(c.code.Opcodes))
	c.patchLoop(end, end)
	return nil
}

// caseValue parses a case label, which must be a literal (spec §4.7
// switch semantics compare the subject against constant-pool entries).
func (c *Compiler) caseValue() *koaerr.Error {
	t := c.next()
	switch t.Type {
	case token.INTEGER, token.HEXINT, token.LINTEGER:
		v, err := parseIntLiteral(t)
		if err != nil {
			return c.errf(t.Line, "%s", err)
		}
		c.lastCaseConst = v
	case token.CHARACTER:
		c.lastCaseConst = object.NewChar(int8(t.Lexeme[0]))
	case token.STRING:
		c.lastCaseConst = object.NewStr(t.Lexeme)
	case token.KwTrue:
		c.lastCaseConst = object.NewBool(true)
	case token.KwFalse:
		c.lastCaseConst = object.NewBool(false)
	default:
		return c.errf(t.Line, "case label must be a literal, got %q", t.String())
	}
	return nil
}

func (c *Compiler) exprStatement() *koaerr.Error {
	if err := c.expr(); err != nil {
		return err
	}
	c.code.Emit(code.OpPopStack, 0, c.peek().Line)
	_, err := c.expect(token.Semicolon, "';'")
	return err
}
