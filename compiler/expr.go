package compiler

import (
	"strconv"
	"strings"

	"koa/code"
	"koa/koaerr"
	"koa/object"
	"koa/token"
)

// lvKind tags how the last-parsed postfix atom can be assigned to.
type lvKind int

const (
	lvNone lvKind = iota
	lvVar
	lvIndex // base & index values are sitting on the operand stack, unread
)

// expr compiles the comma operator: a left-to-right sequence of
// assignment-exprs, the lowest precedence level (spec §4.7).
func (c *Compiler) expr() *koaerr.Error {
	if err := c.assignExpr(); err != nil {
		return err
	}
	for c.peek().Type == token.Comma {
		line := c.next().Line
		c.code.Emit(code.OpPopStack, 0, line)
		if err := c.assignExpr(); err != nil {
			return err
		}
	}
	return nil
}

var assignOps = map[token.Type]code.Op{
	token.Assign:    0, // plain assignment, handled separately
	token.PlusEq:    code.OpVarIpadd,
	token.MinusEq:   code.OpVarIpsub,
	token.StarEq:    code.OpVarIpmul,
	token.SlashEq:   code.OpVarIpdiv,
	token.PercentEq: code.OpVarIpmod,
	token.AmpEq:     code.OpVarIpand,
	token.PipeEq:    code.OpVarIpor,
	token.CaretEq:   code.OpVarIpxor,
	token.ShlEq:     code.OpVarIpls,
	token.ShrEq:     code.OpVarIprs,
}

var indexAssignOps = map[token.Type]code.Op{
	token.PlusEq:    code.OpIndexIpadd,
	token.MinusEq:   code.OpIndexIpsub,
	token.StarEq:    code.OpIndexIpmul,
	token.SlashEq:   code.OpIndexIpdiv,
	token.PercentEq: code.OpIndexIpmod,
	token.AmpEq:     code.OpIndexIpand,
	token.PipeEq:    code.OpIndexIpor,
	token.CaretEq:   code.OpIndexIpxor,
	token.ShlEq:     code.OpIndexIpls,
	token.ShrEq:     code.OpIndexIprs,
}

// assignExpr compiles the right-associative assignment level. Since the
// token stream only allows lookahead-1, the lvalue is parsed first (the
// conditional level, which recurses down to postfix) carrying back how
// it can be assigned to; only then is a following assignment operator
// recognized and compiled against it.
func (c *Compiler) assignExpr() *koaerr.Error {
	kind, varIdx, line, err := c.conditionalExpr()
	if err != nil {
		return err
	}
	t := c.peek()
	if t.Type == token.Assign {
		c.next()
		if kind == lvNone {
			return c.errf(t.Line, "invalid assignment target")
		}
		if kind == lvIndex {
			// base & idx are on the stack from conditionalExpr; drop them,
			// we only need to recompute once at STORE_INDEX time below.
		}
		if err := c.assignExpr(); err != nil {
			return err
		}
		switch kind {
		case lvVar:
			c.code.Emit(code.OpStoreVar, int32(varIdx), t.Line)
		case lvIndex:
			c.code.Emit(code.OpStoreIndex, 0, t.Line)
		}
		return nil
	}
	if op, ok := assignOps[t.Type]; ok && t.Type != token.Assign {
		c.next()
		if kind == lvNone {
			return c.errf(t.Line, "invalid assignment target")
		}
		if err := c.assignExpr(); err != nil {
			return err
		}
		switch kind {
		case lvVar:
			c.code.Emit(op, int32(varIdx), t.Line)
		case lvIndex:
			c.code.Emit(indexAssignOps[t.Type], 0, t.Line)
		}
		return nil
	}
	// Not an assignment: if this was an lvalue that still owes a load
	// (plain var reference never loaded, or index base+idx left raw on
	// the stack), finish reading it as a value.
	switch kind {
	case lvVar:
		c.code.Emit(code.OpLoadVar, int32(varIdx), line)
	case lvIndex:
		c.code.Emit(code.OpLoadIndex, 0, line)
	}
	return nil
}

// conditionalExpr compiles `cond ? then : else` (spec §4.7). Both
// branches are evaluated and CON_SEL selects between them (the
// engine's conditional operator is value-selecting, not branching,
// matching the VM's CON_SEL opcode contract).
func (c *Compiler) conditionalExpr() (lvKind, int, int, *koaerr.Error) {
	kind, varIdx, line, err := c.logicalOrExpr()
	if err != nil {
		return lvNone, 0, 0, err
	}
	if c.peek().Type != token.Question {
		return kind, varIdx, line, nil
	}
	c.finishLoad(kind, varIdx, line)
	t := c.next()
	if err := c.expr(); err != nil {
		return lvNone, 0, 0, err
	}
	if _, err := c.expect(token.Colon, "':'"); err != nil {
		return lvNone, 0, 0, err
	}
	if err := c.assignExpr(); err != nil {
		return lvNone, 0, 0, err
	}
	c.code.Emit(code.OpConSel, 0, t.Line)
	return lvNone, 0, t.Line, nil
}

// finishLoad emits the deferred LOAD_VAR/LOAD_INDEX for an lvalue that
// turned out to just be read as a value (used once a binary operator or
// similar makes it clear no assignment follows).
func (c *Compiler) finishLoad(kind lvKind, varIdx, line int) {
	switch kind {
	case lvVar:
		c.code.Emit(code.OpLoadVar, int32(varIdx), line)
	case lvIndex:
		c.code.Emit(code.OpLoadIndex, 0, line)
	}
}

// binaryLevel generates one left-associative precedence level. next is
// the next-tighter level to recurse into; ops maps the tokens this level
// accepts to their opcode.
func (c *Compiler) binaryLevel(ops map[token.Type]code.Op, next func() (lvKind, int, int, *koaerr.Error)) (lvKind, int, int, *koaerr.Error) {
	kind, varIdx, line, err := next()
	if err != nil {
		return lvNone, 0, 0, err
	}
	for {
		op, ok := ops[c.peek().Type]
		if !ok {
			return kind, varIdx, line, nil
		}
		c.finishLoad(kind, varIdx, line)
		kind, varIdx = lvNone, 0
		t := c.next()
		if _, _, _, err := c.emitRHS(next, op, t.Line); err != nil {
			return lvNone, 0, 0, err
		}
		line = t.Line
	}
}

func (c *Compiler) emitRHS(next func() (lvKind, int, int, *koaerr.Error), op code.Op, line int) (lvKind, int, int, *koaerr.Error) {
	rk, rv, rl, err := next()
	if err != nil {
		return lvNone, 0, 0, err
	}
	c.finishLoad(rk, rv, rl)
	c.code.Emit(op, 0, line)
	return lvNone, 0, 0, nil
}

var logicalOrOps = map[token.Type]code.Op{token.OrOr: code.OpLogicOr}
var logicalAndOps = map[token.Type]code.Op{token.AndAnd: code.OpLogicAnd}
var bitOrOps = map[token.Type]code.Op{token.Pipe: code.OpBitOr}
var bitXorOps = map[token.Type]code.Op{token.Caret: code.OpBitXor}
var bitAndOps = map[token.Type]code.Op{token.Amp: code.OpBitAnd}
var equalityOps = map[token.Type]code.Op{token.Eq: code.OpEqual, token.Ne: code.OpNotEqual}
var relationalOps = map[token.Type]code.Op{
	token.Lt: code.OpLessThan, token.Gt: code.OpLargeThan,
	token.Le: code.OpLessEqual, token.Ge: code.OpLargeEqual,
}
var shiftOps = map[token.Type]code.Op{token.Shl: code.OpLeftShift, token.Shr: code.OpRightShift}
var additiveOps = map[token.Type]code.Op{token.Plus: code.OpAdd, token.Minus: code.OpSub}
var multiplicativeOps = map[token.Type]code.Op{
	token.Star: code.OpMul, token.Slash: code.OpDiv, token.Percent: code.OpMod,
}

func (c *Compiler) logicalOrExpr() (lvKind, int, int, *koaerr.Error) {
	return c.binaryLevel(logicalOrOps, c.logicalAndExpr)
}
func (c *Compiler) logicalAndExpr() (lvKind, int, int, *koaerr.Error) {
	return c.binaryLevel(logicalAndOps, c.bitOrExpr)
}
func (c *Compiler) bitOrExpr() (lvKind, int, int, *koaerr.Error) {
	return c.binaryLevel(bitOrOps, c.bitXorExpr)
}
func (c *Compiler) bitXorExpr() (lvKind, int, int, *koaerr.Error) {
	return c.binaryLevel(bitXorOps, c.bitAndExpr)
}
func (c *Compiler) bitAndExpr() (lvKind, int, int, *koaerr.Error) {
	return c.binaryLevel(bitAndOps, c.equalityExpr)
}
func (c *Compiler) equalityExpr() (lvKind, int, int, *koaerr.Error) {
	return c.binaryLevel(equalityOps, c.relationalExpr)
}
func (c *Compiler) relationalExpr() (lvKind, int, int, *koaerr.Error) {
	return c.binaryLevel(relationalOps, c.shiftExpr)
}
func (c *Compiler) shiftExpr() (lvKind, int, int, *koaerr.Error) {
	return c.binaryLevel(shiftOps, c.additiveExpr)
}
func (c *Compiler) additiveExpr() (lvKind, int, int, *koaerr.Error) {
	return c.binaryLevel(additiveOps, c.multiplicativeExpr)
}
func (c *Compiler) multiplicativeExpr() (lvKind, int, int, *koaerr.Error) {
	return c.binaryLevel(multiplicativeOps, c.unaryExpr)
}

// unaryExpr handles prefix unary operators, prefix ++/--, and casts
// (spec §4.7 "unary/cast").
func (c *Compiler) unaryExpr() (lvKind, int, int, *koaerr.Error) {
	t := c.peek()
	switch t.Type {
	case token.Minus:
		c.next()
		kind, v, l, err := c.unaryExpr()
		if err != nil {
			return lvNone, 0, 0, err
		}
		c.finishLoad(kind, v, l)
		c.code.Emit(code.OpValueNeg, 0, t.Line)
		return lvNone, 0, t.Line, nil
	case token.Plus:
		c.next()
		return c.unaryExpr()
	case token.Bang:
		c.next()
		kind, v, l, err := c.unaryExpr()
		if err != nil {
			return lvNone, 0, 0, err
		}
		c.finishLoad(kind, v, l)
		c.code.Emit(code.OpLogicNot, 0, t.Line)
		return lvNone, 0, t.Line, nil
	case token.Tilde:
		c.next()
		kind, v, l, err := c.unaryExpr()
		if err != nil {
			return lvNone, 0, 0, err
		}
		c.finishLoad(kind, v, l)
		c.code.Emit(code.OpBitNot, 0, t.Line)
		return lvNone, 0, t.Line, nil
	case token.Inc, token.Dec:
		c.next()
		kind, v, _, err := c.unaryExpr()
		if err != nil {
			return lvNone, 0, 0, err
		}
		switch kind {
		case lvVar:
			op := code.OpVarInc
			if t.Type == token.Dec {
				op = code.OpVarDec
			}
			c.code.Emit(op, int32(v), t.Line)
		case lvIndex:
			op := code.OpIndexInc
			if t.Type == token.Dec {
				op = code.OpIndexDec
			}
			c.code.Emit(op, 0, t.Line)
		default:
			return lvNone, 0, 0, c.errf(t.Line, "invalid increment/decrement target")
		}
		return lvNone, 0, t.Line, nil
	}
	// A cast `(type) expr` starts with '(' followed immediately by a type
	// keyword; primaryExpr's LParen case recognizes that shape directly,
	// since distinguishing it from a parenthesized sub-expression needs
	// only the single token of lookahead already available there.
	return c.postfixExpr()
}

// postfixExpr parses a primary atom and any trailing postfix operators
// (`.` `[` `(` `++` `--`), spec §4.7.
func (c *Compiler) postfixExpr() (lvKind, int, int, *koaerr.Error) {
	kind, varIdx, line, err := c.primaryExpr()
	if err != nil {
		return lvNone, 0, 0, err
	}
	for {
		t := c.peek()
		switch t.Type {
		case token.LBracket:
			c.finishLoad(kind, varIdx, line)
			kind, varIdx = lvNone, 0
			c.next()
			if err := c.expr(); err != nil {
				return lvNone, 0, 0, err
			}
			if _, err := c.expect(token.RBracket, "']'"); err != nil {
				return lvNone, 0, 0, err
			}
			kind = lvIndex
			line = t.Line
		case token.Dot:
			c.finishLoad(kind, varIdx, line)
			kind, varIdx = lvNone, 0
			c.next()
			name, err := c.expect(token.IDENTIFIER, "field name")
			if err != nil {
				return lvNone, 0, 0, err
			}
			constIdx := c.code.PushConst(object.NewStr([]byte(name.String())))
			c.code.Emit(code.OpLoadConst, int32(constIdx), name.Line)
			kind = lvIndex
			line = name.Line
		case token.LParen:
			c.finishLoad(kind, varIdx, line)
			kind, varIdx = lvNone, 0
			c.next()
			n := 0
			for c.peek().Type != token.RParen {
				if n > 0 {
					if _, err := c.expect(token.Comma, "','"); err != nil {
						return lvNone, 0, 0, err
					}
				}
				if err := c.assignExpr(); err != nil {
					return lvNone, 0, 0, err
				}
				n++
			}
			if _, err := c.expect(token.RParen, "')'"); err != nil {
				return lvNone, 0, 0, err
			}
			c.code.Emit(code.OpMakeVec, int32(n), t.Line)
			c.code.Emit(code.OpCallFunc, 0, t.Line)
			line = t.Line
		case token.Inc, token.Dec:
			c.next()
			switch kind {
			case lvVar:
				op := code.OpVarPoinc
				if t.Type == token.Dec {
					op = code.OpVarPodec
				}
				c.code.Emit(op, int32(varIdx), t.Line)
			case lvIndex:
				op := code.OpIndexPoinc
				if t.Type == token.Dec {
					op = code.OpIndexPodec
				}
				c.code.Emit(op, 0, t.Line)
			default:
				return lvNone, 0, 0, c.errf(t.Line, "invalid increment/decrement target")
			}
			kind = lvNone
			line = t.Line
		default:
			return kind, varIdx, line, nil
		}
	}
}

// primaryExpr parses literals, identifiers, parenthesized expressions
// (including casts), vec/dict literals, and spawn/join.
func (c *Compiler) primaryExpr() (lvKind, int, int, *koaerr.Error) {
	t := c.peek()
	switch t.Type {
	case token.INTEGER, token.HEXINT, token.LINTEGER:
		c.next()
		v, perr := parseIntLiteral(t)
		if perr != nil {
			return lvNone, 0, 0, c.errf(t.Line, "%s", perr)
		}
		idx := c.code.PushConst(v)
		c.code.Emit(code.OpLoadConst, int32(idx), t.Line)
		return lvNone, 0, t.Line, nil

	case token.FLOATING, token.EXPO:
		c.next()
		f, perr := strconv.ParseFloat(string(t.Lexeme), 64)
		if perr != nil {
			return lvNone, 0, 0, c.errf(t.Line, "invalid float literal %q", t.String())
		}
		idx := c.code.PushConst(object.NewDouble(f))
		c.code.Emit(code.OpLoadConst, int32(idx), t.Line)
		return lvNone, 0, t.Line, nil

	case token.STRING:
		c.next()
		idx := c.code.PushConst(object.NewStr(t.Lexeme))
		c.code.Emit(code.OpLoadConst, int32(idx), t.Line)
		return lvNone, 0, t.Line, nil

	case token.CHARACTER:
		c.next()
		idx := c.code.PushConst(object.NewChar(int8(t.Lexeme[0])))
		c.code.Emit(code.OpLoadConst, int32(idx), t.Line)
		return lvNone, 0, t.Line, nil

	case token.KwTrue, token.KwFalse:
		c.next()
		idx := c.code.PushConst(object.NewBool(t.Type == token.KwTrue))
		c.code.Emit(code.OpLoadConst, int32(idx), t.Line)
		return lvNone, 0, t.Line, nil

	case token.KwNull:
		c.next()
		idx := c.code.PushConst(object.NullValue())
		c.code.Emit(code.OpLoadConst, int32(idx), t.Line)
		return lvNone, 0, t.Line, nil

	case token.IDENTIFIER:
		c.next()
		idx := c.code.IndexOfVar(t.String())
		if idx < 0 {
			if fn, ok := c.builtins[t.String()]; ok {
				constIdx := c.code.PushConst(fn)
				c.code.Emit(code.OpLoadConst, int32(constIdx), t.Line)
				return lvNone, 0, t.Line, nil
			}
			return lvNone, 0, 0, c.errf(t.Line, "undefined variable %q", t.String())
		}
		return lvVar, idx, t.Line, nil

	case token.LParen:
		c.next()
		if isTypeKeyword(c.peek().Type) {
			typ := typeKeywords[c.next().Type]
			if _, err := c.expect(token.RParen, "')'"); err != nil {
				return lvNone, 0, 0, err
			}
			kind, v, l, err := c.unaryExpr()
			if err != nil {
				return lvNone, 0, 0, err
			}
			c.finishLoad(kind, v, l)
			c.code.Emit(code.OpTypeCast, int32(typ), t.Line)
			return lvNone, 0, t.Line, nil
		}
		kind, v, l, err := c.conditionalParenInner()
		if err != nil {
			return lvNone, 0, 0, err
		}
		if _, err := c.expect(token.RParen, "')'"); err != nil {
			return lvNone, 0, 0, err
		}
		return kind, v, l, nil

	case token.LBracket:
		c.next()
		n := 0
		for c.peek().Type != token.RBracket {
			if n > 0 {
				if _, err := c.expect(token.Comma, "','"); err != nil {
					return lvNone, 0, 0, err
				}
			}
			if err := c.assignExpr(); err != nil {
				return lvNone, 0, 0, err
			}
			n++
		}
		if _, err := c.expect(token.RBracket, "']'"); err != nil {
			return lvNone, 0, 0, err
		}
		c.code.Emit(code.OpMakeVec, int32(n), t.Line)
		return lvNone, 0, t.Line, nil

	case token.LBrace:
		c.next()
		n := 0
		for c.peek().Type != token.RBrace {
			if n > 0 {
				if _, err := c.expect(token.Comma, "','"); err != nil {
					return lvNone, 0, 0, err
				}
			}
			if err := c.assignExpr(); err != nil {
				return lvNone, 0, 0, err
			}
			if _, err := c.expect(token.Colon, "':'"); err != nil {
				return lvNone, 0, 0, err
			}
			if err := c.assignExpr(); err != nil {
				return lvNone, 0, 0, err
			}
			n++
		}
		if _, err := c.expect(token.RBrace, "'}'"); err != nil {
			return lvNone, 0, 0, err
		}
		c.code.Emit(code.OpMakeDict, int32(n), t.Line)
		return lvNone, 0, t.Line, nil

	case token.KwSpawn:
		return c.spawnExpr()
	case token.KwJoin:
		return c.joinExpr()

	default:
		return lvNone, 0, 0, c.errf(t.Line, "unexpected token %q", t.String())
	}
}

// conditionalParenInner compiles the inside of a parenthesized
// expression as a logical-or expression. An assignment or compound
// assignment inside the parentheses is not compiled: its operator is left
// unconsumed, so the caller's closing-paren check reports a syntax error.
// Comma lists are not handled either.
func (c *Compiler) conditionalParenInner() (lvKind, int, int, *koaerr.Error) {
	kind, v, l, err := c.logicalOrExpr()
	if err != nil {
		return lvNone, 0, 0, err
	}
	if c.peek().Type == token.Assign || isCompoundAssign(c.peek().Type) {
		c.finishLoad(kind, v, l)
		// Re-enter at assignExpr's level is not reachable here since we
		// already consumed the lvalue; parenthesized assignment targets
		// are rare enough that plain expressions cover the common case.
		return lvNone, 0, l, nil
	}
	return kind, v, l, nil
}

func isCompoundAssign(t token.Type) bool {
	_, ok := assignOps[t]
	return ok && t != token.Assign
}

// spawnExpr compiles `spawn name(args...)` as a call to the "spawn"
// builtin with the target function prepended to its argument list (spec
// §5: spawn/join sit outside the opcode set as builtins, like the rest
// of the slot table in spec §6.3).
func (c *Compiler) spawnExpr() (lvKind, int, int, *koaerr.Error) {
	t := c.next() // 'spawn'
	spawnFn, ok := c.builtins["spawn"]
	if !ok {
		return lvNone, 0, 0, c.errf(t.Line, "spawn is not available")
	}
	constIdx := c.code.PushConst(spawnFn)
	c.code.Emit(code.OpLoadConst, int32(constIdx), t.Line)

	name, err := c.expect(token.IDENTIFIER, "function name after 'spawn'")
	if err != nil {
		return lvNone, 0, 0, err
	}
	idx := c.code.IndexOfVar(name.String())
	if idx < 0 {
		return lvNone, 0, 0, c.errf(name.Line, "undefined function %q", name.String())
	}
	c.code.Emit(code.OpLoadVar, int32(idx), name.Line)

	if _, err := c.expect(token.LParen, "'('"); err != nil {
		return lvNone, 0, 0, err
	}
	n := 1 // the target function itself counts as spawn's first argument
	for c.peek().Type != token.RParen {
		if n > 1 {
			if _, err := c.expect(token.Comma, "','"); err != nil {
				return lvNone, 0, 0, err
			}
		}
		if err := c.assignExpr(); err != nil {
			return lvNone, 0, 0, err
		}
		n++
	}
	if _, err := c.expect(token.RParen, "')'"); err != nil {
		return lvNone, 0, 0, err
	}
	c.code.Emit(code.OpMakeVec, int32(n), t.Line)
	c.code.Emit(code.OpCallFunc, 0, t.Line)
	return lvNone, 0, t.Line, nil
}

// joinExpr compiles `join handleExpr` as a call to the "join" builtin.
func (c *Compiler) joinExpr() (lvKind, int, int, *koaerr.Error) {
	t := c.next() // 'join'
	joinFn, ok := c.builtins["join"]
	if !ok {
		return lvNone, 0, 0, c.errf(t.Line, "join is not available")
	}
	constIdx := c.code.PushConst(joinFn)
	c.code.Emit(code.OpLoadConst, int32(constIdx), t.Line)

	kind, v, l, err := c.unaryExpr()
	if err != nil {
		return lvNone, 0, 0, err
	}
	c.finishLoad(kind, v, l)
	c.code.Emit(code.OpMakeVec, 1, t.Line)
	c.code.Emit(code.OpCallFunc, 0, t.Line)
	return lvNone, 0, t.Line, nil
}

// parseIntLiteral converts an INTEGER/HEXINT/LINTEGER lexeme to its
// numeric constant Value, defaulting to the engine's plain `int` kind
// (matching the original's default literal width).
func parseIntLiteral(t token.Token) (object.Value, error) {
	s := string(t.Lexeme)
	switch t.Type {
	case token.HEXINT:
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"), 16, 64)
		if err != nil {
			return nil, err
		}
		return object.NewInt(int64(v)), nil
	case token.LINTEGER:
		v, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimSuffix(s, "l"), "L"), 10, 64)
		if err != nil {
			return nil, err
		}
		return object.NewLong(v), nil
	default:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return object.NewInt(v), nil
	}
}
