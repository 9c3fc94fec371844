package expr

import (
	"context"
	"fmt"
	"math"
)

// DefaultStepBudget bounds the number of nodes a single evaluation visits.
const DefaultStepBudget = 100000

// Env binds free identifiers to values.
type Env map[string]Value

// RuntimeError is an evaluation failure at a source offset.
type RuntimeError struct {
	Pos int
	Msg string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error at offset %d: %s", e.Pos, e.Msg)
}

// Evaluator walks an AST. An Evaluator is not safe for concurrent use; the
// step counter is shared by every Eval call until Reset.
type Evaluator struct {
	// Budget is the step limit; zero means DefaultStepBudget.
	Budget int
	steps  int
}

// Reset clears the step counter.
func (ev *Evaluator) Reset() { ev.steps = 0 }

// Steps returns the number of nodes visited since the last Reset.
func (ev *Evaluator) Steps() int { return ev.steps }

// Eval evaluates n in env. Cancellation of ctx is observed between steps.
func (ev *Evaluator) Eval(ctx context.Context, n Node, env Env) (Value, error) {
	w := &walker{ctx: ctx, ev: ev, env: env}
	return w.eval(n)
}

// Eval evaluates n with a fresh evaluator.
func Eval(ctx context.Context, n Node, env Env) (Value, error) {
	var ev Evaluator
	return ev.Eval(ctx, n, env)
}

type walker struct {
	ctx context.Context
	ev  *Evaluator
	env Env
}

func (w *walker) fail(n Node, format string, args ...any) error {
	return &RuntimeError{Pos: n.Pos(), Msg: fmt.Sprintf(format, args...)}
}

func (w *walker) step(n Node) error {
	w.ev.steps++
	budget := w.ev.Budget
	if budget <= 0 {
		budget = DefaultStepBudget
	}
	if w.ev.steps > budget {
		return w.fail(n, "step budget of %d exceeded", budget)
	}
	if w.ev.steps%256 == 0 {
		if err := w.ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) eval(n Node) (Value, error) {
	if err := w.step(n); err != nil {
		return Undefined, err
	}
	switch v := n.(type) {
	case *NumberLit:
		return NumberValue(v.Value), nil
	case *StringLit:
		return StringValue(v.Value), nil
	case *BoolLit:
		return BoolValue(v.Value), nil
	case *NullLit:
		if v.Undefined {
			return Undefined, nil
		}
		return Null, nil
	case *Ident:
		val, ok := w.env[v.Name]
		if !ok && v.Name == "Math" {
			val, ok = MathObject, true
		}
		if !ok {
			return Undefined, w.fail(v, "%s is not defined", v.Name)
		}
		return val, nil
	case *Member:
		x, err := w.eval(v.X)
		if err != nil {
			return Undefined, err
		}
		return w.get(v, x, StringValue(v.Name))
	case *Index:
		x, err := w.eval(v.X)
		if err != nil {
			return Undefined, err
		}
		key, err := w.eval(v.Index)
		if err != nil {
			return Undefined, err
		}
		return w.get(v, x, key)
	case *Call:
		return w.call(v)
	case *Unary:
		x, err := w.eval(v.X)
		if err != nil {
			return Undefined, err
		}
		switch v.Op {
		case "!":
			return BoolValue(!x.Truthy()), nil
		case "-":
			return NumberValue(-x.ToNumber()), nil
		default:
			return NumberValue(x.ToNumber()), nil
		}
	case *Binary:
		return w.binary(v)
	case *Cond:
		test, err := w.eval(v.Test)
		if err != nil {
			return Undefined, err
		}
		if test.Truthy() {
			return w.eval(v.Then)
		}
		return w.eval(v.Else)
	case *ObjectLit:
		rec := NewRecord()
		for _, f := range v.Fields {
			val, err := w.eval(f.Value)
			if err != nil {
				return Undefined, err
			}
			rec.Set(f.Key, val)
		}
		return ObjectValue(rec), nil
	case *Array:
		elems := make([]Value, len(v.Elems))
		for i, e := range v.Elems {
			val, err := w.eval(e)
			if err != nil {
				return Undefined, err
			}
			elems[i] = val
		}
		return ArrayValue(elems), nil
	}
	return Undefined, w.fail(n, "cannot evaluate %T", n)
}

func (w *walker) get(n Node, x, key Value) (Value, error) {
	switch x.Kind {
	case KindUndefined, KindNull:
		return Undefined, w.fail(n, "cannot read property %q of %s", ToPropertyKey(key), x.Kind)
	case KindArray:
		if key.Kind == KindString && key.Str == "length" {
			return NumberValue(float64(len(x.Arr))), nil
		}
		i := key.ToNumber()
		if i != math.Trunc(i) || i < 0 || int(i) >= len(x.Arr) {
			return Undefined, nil
		}
		return x.Arr[int(i)], nil
	case KindString:
		if key.Kind == KindString && key.Str == "length" {
			return NumberValue(float64(len([]rune(x.Str)))), nil
		}
		return Undefined, nil
	case KindObject, KindFunc:
		if x.Obj == nil {
			return Undefined, nil
		}
		val, err := x.Obj.Get(key)
		if err != nil {
			return Undefined, w.fail(n, "%v", err)
		}
		return val, nil
	}
	return Undefined, nil
}

func (w *walker) call(v *Call) (Value, error) {
	fn, err := w.eval(v.Fn)
	if err != nil {
		return Undefined, err
	}
	if fn.Kind != KindFunc || fn.Fn == nil {
		return Undefined, w.fail(v, "%s is not a function", Print(v.Fn))
	}
	args := make([]Value, len(v.Args))
	for i, a := range v.Args {
		if args[i], err = w.eval(a); err != nil {
			return Undefined, err
		}
	}
	out, err := fn.Fn(args)
	if err != nil {
		return Undefined, w.fail(v, "%s: %v", Print(v.Fn), err)
	}
	return out, nil
}

func (w *walker) binary(v *Binary) (Value, error) {
	x, err := w.eval(v.X)
	if err != nil {
		return Undefined, err
	}
	switch v.Op {
	case "&&":
		if !x.Truthy() {
			return x, nil
		}
		return w.eval(v.Y)
	case "||":
		if x.Truthy() {
			return x, nil
		}
		return w.eval(v.Y)
	case "??":
		if x.Kind != KindUndefined && x.Kind != KindNull {
			return x, nil
		}
		return w.eval(v.Y)
	}
	y, err := w.eval(v.Y)
	if err != nil {
		return Undefined, err
	}
	switch v.Op {
	case "+":
		if (x.Kind == KindString || y.Kind == KindString) && !(x.IsNumeric() && y.IsNumeric()) {
			return StringValue(x.String() + y.String()), nil
		}
		return NumberValue(x.ToNumber() + y.ToNumber()), nil
	case "-":
		return NumberValue(x.ToNumber() - y.ToNumber()), nil
	case "*":
		return NumberValue(x.ToNumber() * y.ToNumber()), nil
	case "/":
		return NumberValue(x.ToNumber() / y.ToNumber()), nil
	case "%":
		return NumberValue(math.Mod(x.ToNumber(), y.ToNumber())), nil
	case "==":
		return BoolValue(looseEqual(x, y)), nil
	case "!=":
		return BoolValue(!looseEqual(x, y)), nil
	case "===":
		return BoolValue(strictEqual(x, y)), nil
	case "!==":
		return BoolValue(!strictEqual(x, y)), nil
	case "<", "<=", ">", ">=":
		return BoolValue(compare(v.Op, x, y)), nil
	}
	return Undefined, w.fail(v, "unsupported operator %s", v.Op)
}

func compare(op string, x, y Value) bool {
	if x.Kind == KindString && y.Kind == KindString {
		switch op {
		case "<":
			return x.Str < y.Str
		case "<=":
			return x.Str <= y.Str
		case ">":
			return x.Str > y.Str
		default:
			return x.Str >= y.Str
		}
	}
	a, b := x.ToNumber(), y.ToNumber()
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	default:
		return a >= b
	}
}

// MathObject is the Math namespace. It is bound by default unless the
// environment shadows it.
var MathObject = ObjectValue(mathNamespace{})

type mathNamespace struct{}

func (mathNamespace) Get(key Value) (Value, error) {
	name := ToPropertyKey(key)
	switch name {
	case "PI":
		return NumberValue(math.Pi), nil
	case "E":
		return NumberValue(math.E), nil
	case "min", "max":
		isMax := name == "max"
		return FuncValue(func(args []Value) (Value, error) {
			out := math.Inf(1)
			if isMax {
				out = math.Inf(-1)
			}
			for _, a := range args {
				f := a.ToNumber()
				switch {
				case math.IsNaN(f):
					return NumberValue(math.NaN()), nil
				case isMax && f > out, !isMax && f < out:
					out = f
				}
			}
			return NumberValue(out), nil
		}, nil), nil
	case "pow":
		return FuncValue(func(args []Value) (Value, error) {
			if len(args) < 2 {
				return NumberValue(math.NaN()), nil
			}
			return NumberValue(math.Pow(args[0].ToNumber(), args[1].ToNumber())), nil
		}, nil), nil
	}
	if f, ok := mathUnary[name]; ok {
		return FuncValue(func(args []Value) (Value, error) {
			if len(args) == 0 {
				return NumberValue(math.NaN()), nil
			}
			return NumberValue(f(args[0].ToNumber())), nil
		}, nil), nil
	}
	return Undefined, nil
}

var mathUnary = map[string]func(float64) float64{
	"abs":   math.Abs,
	"floor": math.Floor,
	"ceil":  math.Ceil,
	"trunc": math.Trunc,
	"sqrt":  math.Sqrt,
	"log":   math.Log,
	"exp":   math.Exp,
	"round": func(f float64) float64 { return math.Floor(f + 0.5) },
	"sign": func(f float64) float64 {
		switch {
		case f > 0:
			return 1
		case f < 0:
			return -1
		}
		return f
	},
}
