package verify

import (
	"fmt"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
)

// statBase holds the synthetic panel value of each attribute. Values are
// in the units the runtime reports: flat for atk/hp/def, percentage
// points for rates.
var statBase = map[string]float64{
	"atk": 2000, "hp": 20000, "def": 1000, "mastery": 200, "recharge": 150,
	"speed": 130, "stance": 100, "effPct": 50, "effDef": 30,
	"cpct": 50, "cdmg": 100, "dmg": 40, "phy": 0, "heal": 20, "shield": 20,
}

const defaultStat = 100

// reactionBase is the synthetic average of one reaction emission.
const reactionBase = 5000

// talentStandIn resolves talent.<block>.
type talentStandIn struct {
	in   *plan.Input
	seed float64
}

func (t talentStandIn) Get(key expr.Value) (expr.Value, error) {
	block := expr.ToPropertyKey(key)
	if _, ok := t.in.Tables[block]; !ok {
		return expr.Undefined, nil
	}
	return expr.ObjectValue(blockStandIn{in: t.in, block: block, seed: t.seed}), nil
}

// blockStandIn resolves talent.<block>[<table>]. Array-sampled tables
// yield an array of the seed; every other table is scalar-only.
type blockStandIn struct {
	in    *plan.Input
	block string
	seed  float64
}

func (b blockStandIn) Get(key expr.Value) (expr.Value, error) {
	name := expr.ToPropertyKey(key)
	if s, ok := b.in.Sample(b.block, name); ok && s.IsArray {
		vals := make([]expr.Value, s.Len())
		for i := range vals {
			vals[i] = expr.NumberValue(b.seed)
		}
		return expr.ArrayValue(vals), nil
	}
	return expr.ObjectValue(scalarTable{name: name, value: b.seed}), nil
}

// scalarTable coerces to its value and refuses numeric indexing, which
// only makes sense on array tables.
type scalarTable struct {
	name  string
	value float64
}

func (s scalarTable) Number() float64 { return s.value }

func (s scalarTable) Get(key expr.Value) (expr.Value, error) {
	if key.Kind == expr.KindNumber {
		return expr.Undefined, fmt.Errorf("table %q is a scalar but was indexed with [%s]", s.name, key)
	}
	return expr.NumberValue(s.value), nil
}

// attrStandIn resolves attr.<stat> to a numeric proxy.
type attrStandIn struct{}

func (attrStandIn) Get(key expr.Value) (expr.Value, error) {
	v, ok := statBase[expr.ToPropertyKey(key)]
	if !ok {
		v = defaultStat
	}
	return expr.ObjectValue(proxy{value: v}), nil
}

// proxy is a transparent numeric stand-in: it coerces to value and every
// property on it is the same proxy.
type proxy struct {
	value float64
}

func (p proxy) Number() float64 { return p.value }

func (p proxy) Get(expr.Value) (expr.Value, error) { return expr.ObjectValue(p), nil }

// paramsStandIn serves the row's own params, then values other rows
// seed for the same key, then 0.
type paramsStandIn struct {
	own   plan.Params
	known plan.Params
}

func (p paramsStandIn) Get(key expr.Value) (expr.Value, error) {
	k := expr.ToPropertyKey(key)
	if v, ok := p.own[k]; ok {
		return v.Value(), nil
	}
	if v, ok := p.known[k]; ok {
		return v.Value(), nil
	}
	return expr.NumberValue(0), nil
}

// result builds the { dmg, avg } record every emission returns.
func result(dmg, avg float64) expr.Value {
	r := expr.NewRecord()
	r.Set("dmg", expr.NumberValue(dmg))
	r.Set("avg", expr.NumberValue(avg))
	return expr.ObjectValue(r)
}

func arg(args []expr.Value, i int) float64 {
	if i >= len(args) {
		return 0
	}
	return args[i].ToNumber()
}

// helpers returns the emission helpers of the synthetic runtime. Damage
// takes the attack panel times the converted multiplier; crits double it
// and the average assumes a 50% rate.
func helpers(toRatio func(float64) float64) map[string]expr.Value {
	emit := func(base float64) expr.Value { return result(base*2, base*1.5) }
	fromPct := expr.FuncValue(func(args []expr.Value) (expr.Value, error) {
		return emit(statBase["atk"] * toRatio(arg(args, 0))), nil
	}, nil)
	modes := expr.NewRecord()
	modes.Set("basic", expr.FuncValue(func(args []expr.Value) (expr.Value, error) {
		return emit(arg(args, 0)), nil
	}, nil))
	modes.Set("ratio", fromPct)
	modes.Set("dynamic", fromPct)

	single := func(args []expr.Value) (expr.Value, error) {
		v := arg(args, 0)
		return result(v, v), nil
	}
	return map[string]expr.Value{
		"dmg":    expr.FuncValue(fromPct.Fn, modes),
		"heal":   expr.FuncValue(single, nil),
		"shield": expr.FuncValue(single, nil),
		"reaction": expr.FuncValue(func(args []expr.Value) (expr.Value, error) {
			if len(args) == 0 || args[0].Kind != expr.KindString {
				return expr.Undefined, fmt.Errorf("reaction id must be a string")
			}
			return result(reactionBase, reactionBase), nil
		}, nil),
	}
}
