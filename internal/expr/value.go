package expr

import (
	"math"
	"reflect"
	"strconv"
	"strings"
)

// ValueKind enumerates the runtime kinds a Value may hold.
type ValueKind int

const (
	KindUndefined ValueKind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindFunc
)

func (k ValueKind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindFunc:
		return "function"
	default:
		return "unknown"
	}
}

// Object is a host or literal object. Get returns undefined for missing
// properties; an error aborts evaluation.
type Object interface {
	Get(key Value) (Value, error)
}

// Numeric is implemented by objects that coerce to a number in arithmetic.
type Numeric interface {
	Number() float64
}

// Func is a callable host function.
type Func func(args []Value) (Value, error)

// Value is the evaluator's runtime carrier. Kind selects the valid field.
// Functions may also carry members in Obj (dmg.basic and friends).
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
	Bool bool
	Arr  []Value
	Obj  Object
	Fn   Func
}

var (
	Undefined = Value{Kind: KindUndefined}
	Null      = Value{Kind: KindNull}
)

func NumberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func ArrayValue(xs []Value) Value { return Value{Kind: KindArray, Arr: xs} }
func ObjectValue(o Object) Value  { return Value{Kind: KindObject, Obj: o} }

// FuncValue wraps fn; members, when non-nil, are reachable with dot access.
func FuncValue(fn Func, members Object) Value {
	return Value{Kind: KindFunc, Fn: fn, Obj: members}
}

// Record is an ordered string-keyed object, produced by object literals.
type Record struct {
	Keys   []string
	Fields map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record { return &Record{Fields: make(map[string]Value)} }

// Set adds or replaces a field, keeping first-insertion order.
func (r *Record) Set(k string, v Value) {
	if _, ok := r.Fields[k]; !ok {
		r.Keys = append(r.Keys, k)
	}
	r.Fields[k] = v
}

// Get implements Object.
func (r *Record) Get(key Value) (Value, error) {
	if v, ok := r.Fields[ToPropertyKey(key)]; ok {
		return v, nil
	}
	return Undefined, nil
}

// Truthy applies the dynamic truthiness rules of the target dialect.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindUndefined, KindNull:
		return false
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0 && !math.IsNaN(v.Num)
	case KindString:
		return v.Str != ""
	default:
		return true
	}
}

// ToNumber coerces v to a number. Non-numeric values yield NaN.
func (v Value) ToNumber() float64 {
	switch v.Kind {
	case KindNull:
		return 0
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	case KindNumber:
		return v.Num
	case KindString:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case KindArray:
		switch len(v.Arr) {
		case 0:
			return 0
		case 1:
			return v.Arr[0].ToNumber()
		}
	case KindObject:
		if n, ok := v.Obj.(Numeric); ok {
			return n.Number()
		}
	}
	return math.NaN()
}

// IsNumeric reports whether v behaves as a number in arithmetic without
// string concatenation.
func (v Value) IsNumeric() bool {
	if v.Kind == KindNumber {
		return true
	}
	if v.Kind == KindObject {
		_, ok := v.Obj.(Numeric)
		return ok
	}
	return false
}

// ToPropertyKey converts an index value into a property name.
func ToPropertyKey(v Value) string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return formatNumber(v.Num)
	}
	return v.String()
}

func (v Value) String() string {
	switch v.Kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNumber:
		switch {
		case math.IsNaN(v.Num):
			return "NaN"
		case math.IsInf(v.Num, 1):
			return "Infinity"
		case math.IsInf(v.Num, -1):
			return "-Infinity"
		}
		return formatNumber(v.Num)
	case KindString:
		return v.Str
	case KindArray:
		parts := make([]string, len(v.Arr))
		for i, e := range v.Arr {
			parts[i] = e.String()
		}
		return strings.Join(parts, ",")
	case KindObject:
		if n, ok := v.Obj.(Numeric); ok {
			return formatNumber(n.Number())
		}
		return "[object Object]"
	case KindFunc:
		return "[function]"
	}
	return ""
}

// looseEqual implements == with the coercions the generated scripts rely
// on: null equals undefined, and mixed number/string/bool compare numerically.
func looseEqual(a, b Value) bool {
	nullish := func(v Value) bool { return v.Kind == KindUndefined || v.Kind == KindNull }
	if nullish(a) || nullish(b) {
		return nullish(a) && nullish(b)
	}
	if a.Kind == b.Kind && a.Kind != KindObject {
		return strictEqual(a, b)
	}
	if a.Kind == KindString && b.Kind == KindString {
		return a.Str == b.Str
	}
	switch a.Kind {
	case KindArray, KindFunc:
		return false
	}
	switch b.Kind {
	case KindArray, KindFunc:
		return false
	}
	return a.ToNumber() == b.ToNumber()
}

func strictEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return a.Num == b.Num
	case KindString:
		return a.Str == b.Str
	case KindObject:
		// Host objects backed by maps or slices are not comparable and
		// never equal anything.
		if a.Obj == nil || b.Obj == nil {
			return a.Obj == nil && b.Obj == nil
		}
		ta, tb := reflect.TypeOf(a.Obj), reflect.TypeOf(b.Obj)
		if ta != tb || !ta.Comparable() {
			return false
		}
		return a.Obj == b.Obj
	}
	// Arrays and functions compare by identity, which literals never share.
	return false
}
