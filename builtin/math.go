package builtin

import (
	"math"
	"time"

	"koa/koaerr"
	"koa/object"
)

// Math/time builtins, adapted from the teacher's libraries package
// (RegisterFMaths/RegisterTime): same function set, reimplemented as
// Slot entries returning Numeric DOUBLE values instead of a
// module-table RuntimeVal, to fit this engine's single flat builtin
// namespace (spec §6.3).
func init() {
	unary := func(name string, f func(float64) float64) Slot {
		return Slot{Name: name, ArgTypes: []object.Kind{KindAll}, Fn: func(args []object.Value) (object.Value, *koaerr.Error) {
			x, err := floatArg(name, args, 0)
			if err != nil {
				return nil, err
			}
			return object.NewDouble(f(x)), nil
		}}
	}

	Table = append(Table,
		Slot{Name: "pow", ArgTypes: []object.Kind{KindAll, KindAll}, Fn: biPow},
		unary("sqrt", math.Sqrt),
		unary("cbrt", math.Cbrt),
		Slot{Name: "log", VarArgs: true, ArgTypes: []object.Kind{KindAll}, Fn: biLog},
		unary("log10", math.Log10),
		unary("log2", math.Log2),
		unary("exp", math.Exp),
		unary("exp2", math.Exp2),
		unary("sin", math.Sin),
		unary("cos", math.Cos),
		unary("tan", math.Tan),
		unary("asin", math.Asin),
		unary("acos", math.Acos),
		unary("atan", math.Atan),
		Slot{Name: "atan2", ArgTypes: []object.Kind{KindAll, KindAll}, Fn: biAtan2},
		unary("sinh", math.Sinh),
		unary("cosh", math.Cosh),
		unary("tanh", math.Tanh),
		unary("abs", math.Abs),
		unary("ceil", math.Ceil),
		unary("floor", math.Floor),
		unary("round", math.Round),
		unary("gamma", math.Gamma),
		Slot{Name: "min", VarArgs: true, ArgTypes: []object.Kind{KindAll}, Fn: biMin},
		Slot{Name: "max", VarArgs: true, ArgTypes: []object.Kind{KindAll}, Fn: biMax},
		Slot{Name: "factorial", ArgTypes: []object.Kind{KindAll}, Fn: biFactorial},
		Slot{Name: "pi", Fn: constSlot(math.Pi)},
		Slot{Name: "e", Fn: constSlot(math.E)},
		Slot{Name: "phi", Fn: constSlot(1.618033988749894)},
		Slot{Name: "sqrt2", Fn: constSlot(math.Sqrt2)},
		Slot{Name: "ln2", Fn: constSlot(math.Ln2)},
		Slot{Name: "ln10", Fn: constSlot(math.Ln10)},
		Slot{Name: "now", Fn: biNow},
		Slot{Name: "millis", Fn: biMillis},
		Slot{Name: "sleep", ArgTypes: []object.Kind{KindAll}, Fn: biSleep},
	)
	for i := range Table {
		Table[i].ID = i
	}
}

// constSlot wraps a math constant as a zero-argument builtin (the
// teacher's fmaths table exposed these as plain values in its function
// map; here every builtin is callable, so pi() rather than pi).
func constSlot(v float64) func(args []object.Value) (object.Value, *koaerr.Error) {
	return func(args []object.Value) (object.Value, *koaerr.Error) {
		return object.NewDouble(v), nil
	}
}

func floatArg(name string, args []object.Value, i int) (float64, *koaerr.Error) {
	if i >= len(args) {
		return 0, koaerr.New(koaerr.Argument, name+" expects a numeric argument", 0, 0)
	}
	n, ok := args[i].(*object.Numeric)
	if !ok {
		return 0, koaerr.New(koaerr.Type, name+" expects a numeric argument", 0, 0)
	}
	return n.AsFloat(), nil
}

func biPow(args []object.Value) (object.Value, *koaerr.Error) {
	x, err := floatArg("pow", args, 0)
	if err != nil {
		return nil, err
	}
	y, err := floatArg("pow", args, 1)
	if err != nil {
		return nil, err
	}
	return object.NewDouble(math.Pow(x, y)), nil
}

func biAtan2(args []object.Value) (object.Value, *koaerr.Error) {
	y, err := floatArg("atan2", args, 0)
	if err != nil {
		return nil, err
	}
	x, err := floatArg("atan2", args, 1)
	if err != nil {
		return nil, err
	}
	return object.NewDouble(math.Atan2(y, x)), nil
}

// biLog is natural log with one argument, log-base-b with two (matching
// the teacher's log(x) plus the separate log10/log2 slots, generalized
// to take an optional base here instead of duplicating a biLogBase).
func biLog(args []object.Value) (object.Value, *koaerr.Error) {
	x, err := floatArg("log", args, 0)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return object.NewDouble(math.Log(x)), nil
	}
	base, err := floatArg("log", args, 1)
	if err != nil {
		return nil, err
	}
	return object.NewDouble(math.Log(x) / math.Log(base)), nil
}

func biMin(args []object.Value) (object.Value, *koaerr.Error) {
	if len(args) == 0 {
		return nil, koaerr.New(koaerr.Argument, "min expects at least one argument", 0, 0)
	}
	best, err := floatArg("min", args, 0)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(args); i++ {
		v, err := floatArg("min", args, i)
		if err != nil {
			return nil, err
		}
		if v < best {
			best = v
		}
	}
	return object.NewDouble(best), nil
}

func biMax(args []object.Value) (object.Value, *koaerr.Error) {
	if len(args) == 0 {
		return nil, koaerr.New(koaerr.Argument, "max expects at least one argument", 0, 0)
	}
	best, err := floatArg("max", args, 0)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(args); i++ {
		v, err := floatArg("max", args, i)
		if err != nil {
			return nil, err
		}
		if v > best {
			best = v
		}
	}
	return object.NewDouble(best), nil
}

func biFactorial(args []object.Value) (object.Value, *koaerr.Error) {
	x, err := floatArg("factorial", args, 0)
	if err != nil {
		return nil, err
	}
	if x < 0 || x != math.Trunc(x) {
		return nil, koaerr.New(koaerr.Argument, "factorial expects a non-negative integer", 0, 0)
	}
	r := 1.0
	for i := 2.0; i <= x; i++ {
		r *= i
	}
	return object.NewDouble(r), nil
}

func biNow(args []object.Value) (object.Value, *koaerr.Error) {
	return object.NewDouble(float64(time.Now().UnixNano()) / 1e9), nil
}

func biMillis(args []object.Value) (object.Value, *koaerr.Error) {
	return object.NewDouble(float64(time.Now().UnixNano()) / 1e6), nil
}

func biSleep(args []object.Value) (object.Value, *koaerr.Error) {
	sec, err := floatArg("sleep", args, 0)
	if err != nil {
		return nil, err
	}
	time.Sleep(time.Duration(sec * float64(time.Second)))
	return object.VoidValue(), nil
}
