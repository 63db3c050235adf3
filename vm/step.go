package vm

import (
	"koa/code"
	"koa/koaerr"
	"koa/object"
)

// step executes one opcode. ret reports whether execution of the current
// Frame is complete (RETURN / END_PROGRAM / falling off the end), in
// which case result is the value to push on the caller's stack.
func (t *Thread) step(op code.Op, para int32, line int) (result object.Value, ret bool, err *koaerr.Error) {
	f := t.frame
	c := f.code

	switch op {
	case code.OpLoadConst:
		t.push(c.Consts[para])

	case code.OpStoreLocal:
		v := t.pop()
		f.declare(c.VarNames[para], v)
		release(v)

	case code.OpStoreVar:
		v := t.pop()
		name := c.VarNames[para]
		if !f.assign(name, v) {
			release(v)
			return nil, false, koaerr.Newf(koaerr.Name, line, 0, "undefined variable %q", name)
		}
		t.pushOwned(v)

	case code.OpLoadVar:
		name := c.VarNames[para]
		v, ok := f.lookup(name)
		if !ok {
			return nil, false, koaerr.Newf(koaerr.Name, line, 0, "undefined variable %q", name)
		}
		t.push(v)

	case code.OpFuncReturn, code.OpReturn:
		v := t.pop()
		if c.IsFunc && c.RetType != 0 {
			cast, cerr := castTo(v, c.RetType)
			if cerr != nil {
				release(v)
				cerr.Kind = koaerr.ReturnType
				return nil, false, cerr
			}
			if cast != v {
				release(v)
			}
			v = cast
		}
		return v, true, nil

	case code.OpTypeCast:
		v := t.pop()
		cast, cerr := castTo(v, object.Kind(para))
		if cerr != nil {
			release(v)
			return nil, false, cerr
		}
		// push always takes a fresh reference for the stack slot, whether
		// cast is a newly-built value or v itself passed through
		// unchanged; release always drops the one popN/pop handed to
		// this opcode. Conditioning either on cast == v would either
		// leak v's popped reference (cast == v) or double-free it
		// (cast != v).
		t.push(cast)
		release(v)

	case code.OpVarInc, code.OpVarDec, code.OpVarPoinc, code.OpVarPodec:
		return nil, false, t.varIncDec(op, para, line)

	case code.OpValueNeg:
		v := t.pop()
		r, e := v.Negate()
		release(v)
		if e != nil {
			return nil, false, e
		}
		t.push(r)

	case code.OpBitNot:
		v := t.pop()
		r, e := v.BitNot()
		release(v)
		if e != nil {
			return nil, false, e
		}
		t.push(r)

	case code.OpLogicNot:
		v := t.pop()
		r, e := v.LogicalNot()
		release(v)
		if e != nil {
			return nil, false, e
		}
		t.push(r)

	case code.OpPopStack:
		release(t.pop())

	case code.OpLoadIndex:
		idx := t.pop()
		base := t.pop()
		r, e := base.Index(idx)
		if e != nil {
			release(idx)
			release(base)
			return nil, false, e
		}
		t.push(r)
		release(idx)
		release(base)

	case code.OpStoreIndex:
		val := t.pop()
		idx := t.pop()
		base := t.pop()
		r, e := base.IndexSet(idx, val)
		if e != nil {
			release(val)
			release(idx)
			release(base)
			return nil, false, e
		}
		t.push(r)
		release(val)
		release(idx)
		release(base)

	case code.OpIndexInc, code.OpIndexDec, code.OpIndexPoinc, code.OpIndexPodec:
		return nil, false, t.indexIncDec(op)

	case code.OpMakeVec:
		elems := t.popN(int(para))
		v := object.NewVec(elems) // refs each element on construction
		t.GC.Track(v)
		t.push(v)
		for _, e := range elems {
			release(e) // release the stack's claim, now held by v instead
		}

	case code.OpMakeDict:
		pairs := t.popN(int(para) * 2)
		d := object.NewDict()
		for i := 0; i < len(pairs); i += 2 {
			if e := d.Set(pairs[i], pairs[i+1]); e != nil {
				for _, p := range pairs {
					release(p)
				}
				return nil, false, e
			}
		}
		t.GC.Track(d)
		t.push(d)
		for _, p := range pairs {
			release(p) // release the stack's claim, now held by d instead
		}

	case code.OpMakeStruct:
		meta := c.Structs[para]
		fields := make([]object.Value, len(meta.FieldNames))
		for i := range fields {
			fields[i] = object.NullValue()
		}
		s := object.NewStruct(meta.Tag, meta.StructMeta, fields)
		t.GC.Track(s)
		t.push(s)

	case code.OpMakeUnion:
		meta := c.Unions[para]
		u := object.NewUnion(meta.Tag, meta.FieldNames, meta.FieldTypes)
		t.GC.Track(u)
		t.push(u)

	case code.OpCallFunc:
		args := t.pop()
		fn := t.pop()
		argv, ok := args.(*object.Vec)
		if !ok {
			release(args)
			release(fn)
			return nil, false, koaerr.New(koaerr.Type, "call argument is not a vec", line, 0)
		}
		r, e := fn.Call(argv.Elements())
		if e != nil {
			release(args)
			release(fn)
			return nil, false, e
		}
		t.push(r)
		release(args)
		release(fn)

	case code.OpBindArgs:
		if e := t.bindArgs(c, int(para)); e != nil {
			return nil, false, e
		}

	case code.OpConSel:
		elseV := t.pop()
		thenV := t.pop()
		cond := t.pop()
		n, ok := cond.(*object.Numeric)
		if !ok {
			release(elseV)
			release(thenV)
			release(cond)
			return nil, false, koaerr.New(koaerr.Type, "condition is not numeric", line, 0)
		}
		if n.Bool() {
			t.pushOwned(thenV)
			release(elseV)
		} else {
			t.pushOwned(elseV)
			release(thenV)
		}
		release(cond)

	case code.OpLogicOr, code.OpLogicAnd, code.OpBitOr, code.OpBitXor, code.OpBitAnd,
		code.OpEqual, code.OpNotEqual, code.OpLessThan, code.OpLargeThan,
		code.OpLessEqual, code.OpLargeEqual, code.OpLeftShift, code.OpRightShift,
		code.OpAdd, code.OpSub, code.OpMul, code.OpDiv, code.OpMod:
		rhs := t.pop()
		lhs := t.pop()
		r, e := binaryOp(op, lhs, rhs, line)
		if e != nil {
			release(rhs)
			release(lhs)
			return nil, false, e
		}
		t.push(r)
		release(rhs)
		release(lhs)

	case code.OpVarIpmul, code.OpVarIpdiv, code.OpVarIpmod, code.OpVarIpadd, code.OpVarIpsub,
		code.OpVarIpls, code.OpVarIprs, code.OpVarIpand, code.OpVarIpxor, code.OpVarIpor:
		return nil, false, t.varInplace(op, para, line)

	case code.OpIndexIpmul, code.OpIndexIpdiv, code.OpIndexIpmod, code.OpIndexIpadd, code.OpIndexIpsub,
		code.OpIndexIpls, code.OpIndexIprs, code.OpIndexIpand, code.OpIndexIpxor, code.OpIndexIpor:
		return nil, false, t.indexInplace(op, line)

	case code.OpJumpFalse:
		v := t.pop()
		n, ok := v.(*object.Numeric)
		if ok && !n.Bool() {
			f.ip = int(para)
		}
		release(v)

	case code.OpJumpTrue, code.OpJumpCase:
		v := t.pop()
		n, ok := v.(*object.Numeric)
		if ok && n.Bool() {
			f.ip = int(para)
		}
		release(v)

	case code.OpJumpForce, code.OpJumpDefault:
		f.ip = int(para)

	case code.OpEnterBlock:
		f.pushBlock(len(t.stack), int(para))

	case code.OpLeaveBlock:
		bottom := f.top().bottom
		f.popBlocks(1)
		t.rollbackStack(bottom)
		t.GC.OnBlockExit()

	case code.OpJumpContinue, code.OpJumpBreak:
		f.ip = int(para)

	case code.OpPushBlocks:
		f.pushBlock(len(t.stack), 0)

	case code.OpPopBlocks:
		n := int(para)
		if n > len(f.blocks)-1 {
			n = len(f.blocks) - 1
		}
		var bottom int
		if n > 0 {
			bottom = f.blocks[len(f.blocks)-n].bottom
		} else {
			bottom = len(t.stack)
		}
		f.popBlocks(n)
		t.rollbackStack(bottom)

	case code.OpEndProgram:
		return object.VoidValue(), true, nil

	default:
		return nil, false, koaerr.Newf(koaerr.Fatal, line, 0, "unknown opcode %d", op)
	}
	return nil, false, nil
}

func binaryOp(op code.Op, lhs, rhs object.Value, line int) (object.Value, *koaerr.Error) {
	var v object.Value
	var err *koaerr.Error
	switch op {
	case code.OpAdd:
		v, err = lhs.Add(rhs)
	case code.OpSub:
		v, err = lhs.Sub(rhs)
	case code.OpMul:
		v, err = lhs.Mul(rhs)
	case code.OpDiv:
		v, err = lhs.Div(rhs)
	case code.OpMod:
		v, err = lhs.Mod(rhs)
	case code.OpBitAnd:
		v, err = lhs.And(rhs)
	case code.OpBitOr:
		v, err = lhs.Or(rhs)
	case code.OpBitXor:
		v, err = lhs.Xor(rhs)
	case code.OpLeftShift:
		v, err = lhs.Lshift(rhs)
	case code.OpRightShift:
		v, err = lhs.Rshift(rhs)
	case code.OpLogicAnd:
		v, err = lhs.LogicalAnd(rhs)
	case code.OpLogicOr:
		v, err = lhs.LogicalOr(rhs)
	case code.OpEqual:
		eq, e := lhs.Eq(rhs)
		return object.NewBool(eq), e
	case code.OpNotEqual:
		eq, e := lhs.Eq(rhs)
		return object.NewBool(!eq), e
	case code.OpLessThan, code.OpLargeThan, code.OpLessEqual, code.OpLargeEqual:
		cmp, e := lhs.Cmp(rhs)
		if e != nil {
			return nil, e
		}
		switch op {
		case code.OpLessThan:
			return object.NewBool(cmp < 0), nil
		case code.OpLargeThan:
			return object.NewBool(cmp > 0), nil
		case code.OpLessEqual:
			return object.NewBool(cmp <= 0), nil
		default:
			return object.NewBool(cmp >= 0), nil
		}
	default:
		return nil, koaerr.Newf(koaerr.Fatal, line, 0, "unknown binary opcode %d", op)
	}
	return v, err
}

func (t *Thread) varIncDec(op code.Op, para int32, line int) *koaerr.Error {
	f := t.frame
	name := f.code.VarNames[para]
	v, ok := f.lookup(name)
	if !ok {
		return koaerr.Newf(koaerr.Name, line, 0, "undefined variable %q", name)
	}
	one := object.NewInt(1)
	var nv object.Value
	var err *koaerr.Error
	switch op {
	case code.OpVarInc, code.OpVarPoinc:
		nv, err = v.Add(one)
	default:
		nv, err = v.Sub(one)
	}
	if err != nil {
		return err
	}
	switch op {
	case code.OpVarPoinc, code.OpVarPodec:
		// Acquire a stack reference on the pre-update value before assign
		// can unref (and possibly free) the variable's own reference to it.
		t.push(v)
		f.assign(name, nv)
	default:
		f.assign(name, nv)
		t.push(nv)
	}
	return nil
}

func (t *Thread) indexIncDec(op code.Op) *koaerr.Error {
	idx := t.pop()
	base := t.pop()
	v, err := base.Index(idx)
	if err != nil {
		release(idx)
		release(base)
		return err
	}
	one := object.NewInt(1)
	var nv object.Value
	switch op {
	case code.OpIndexInc, code.OpIndexPoinc:
		nv, err = v.Add(one)
	default:
		nv, err = v.Sub(one)
	}
	if err != nil {
		release(idx)
		release(base)
		return err
	}
	post := op == code.OpIndexPoinc || op == code.OpIndexPodec
	if post {
		// Keep v alive across IndexSet's unref of the container's old
		// slot value, the same way varIncDec guards the post-update case.
		v.Header().Ref()
	}
	if _, err = base.IndexSet(idx, nv); err != nil {
		if post {
			release(v)
		}
		release(idx)
		release(base)
		return err
	}
	if post {
		t.pushOwned(v)
	} else {
		t.push(nv)
	}
	release(idx)
	release(base)
	return nil
}

func (t *Thread) varInplace(op code.Op, para int32, line int) *koaerr.Error {
	f := t.frame
	name := f.code.VarNames[para]
	cur, ok := f.lookup(name)
	if !ok {
		return koaerr.Newf(koaerr.Name, line, 0, "undefined variable %q", name)
	}
	rhs := t.pop()
	nv, err := inplaceApply(op, cur, rhs)
	release(rhs)
	if err != nil {
		return err
	}
	f.assign(name, nv)
	t.push(nv)
	return nil
}

func (t *Thread) indexInplace(op code.Op, line int) *koaerr.Error {
	rhs := t.pop()
	idx := t.pop()
	base := t.pop()
	cur, err := base.Index(idx)
	if err != nil {
		release(rhs)
		release(idx)
		release(base)
		return err
	}
	nv, err := inplaceApply(fromIndexIp(op), cur, rhs)
	release(rhs)
	if err != nil {
		release(idx)
		release(base)
		return err
	}
	if _, err = base.IndexSet(idx, nv); err != nil {
		release(idx)
		release(base)
		return err
	}
	t.push(nv)
	release(idx)
	release(base)
	return nil
}

func fromIndexIp(op code.Op) code.Op {
	switch op {
	case code.OpIndexIpmul:
		return code.OpMul
	case code.OpIndexIpdiv:
		return code.OpDiv
	case code.OpIndexIpmod:
		return code.OpMod
	case code.OpIndexIpadd:
		return code.OpAdd
	case code.OpIndexIpsub:
		return code.OpSub
	case code.OpIndexIpls:
		return code.OpLeftShift
	case code.OpIndexIprs:
		return code.OpRightShift
	case code.OpIndexIpand:
		return code.OpBitAnd
	case code.OpIndexIpxor:
		return code.OpBitXor
	default:
		return code.OpBitOr
	}
}

func inplaceApply(op code.Op, cur, rhs object.Value) (object.Value, *koaerr.Error) {
	switch op {
	case code.OpVarIpmul:
		return cur.Mul(rhs)
	case code.OpVarIpdiv:
		return cur.Div(rhs)
	case code.OpVarIpmod:
		return cur.Mod(rhs)
	case code.OpVarIpadd, code.OpAdd:
		return cur.Add(rhs)
	case code.OpVarIpsub, code.OpSub:
		return cur.Sub(rhs)
	case code.OpVarIpls, code.OpLeftShift:
		return cur.Lshift(rhs)
	case code.OpVarIprs, code.OpRightShift:
		return cur.Rshift(rhs)
	case code.OpVarIpand, code.OpBitAnd:
		return cur.And(rhs)
	case code.OpVarIpxor, code.OpBitXor:
		return cur.Xor(rhs)
	case code.OpVarIpor, code.OpBitOr:
		return cur.Or(rhs)
	case code.OpMul:
		return cur.Mul(rhs)
	case code.OpDiv:
		return cur.Div(rhs)
	case code.OpMod:
		return cur.Mod(rhs)
	default:
		return nil, koaerr.New(koaerr.Fatal, "unknown inplace opcode", 0, 0)
	}
}
