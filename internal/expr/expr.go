package expr

import "encoding/json"

// Expr is a parsed fragment together with its canonical source.
type Expr struct {
	Root Node
	src  string
}

// Parse parses src and returns its canonical form.
func Parse(src string) (*Expr, error) {
	n, err := ParseNode(src)
	if err != nil {
		return nil, err
	}
	return New(n), nil
}

// MustParse is Parse for trusted literals such as built-in rule templates.
func MustParse(src string) *Expr {
	e, err := Parse(src)
	if err != nil {
		panic("expr: " + err.Error())
	}
	return e
}

// New wraps an AST built in code.
func New(n Node) *Expr {
	return &Expr{Root: n, src: Print(n)}
}

// String returns the canonical source.
func (e *Expr) String() string {
	if e == nil {
		return ""
	}
	return e.src
}

// Equal compares canonical source.
func (e *Expr) Equal(o *Expr) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.src == o.src
}

// MarshalJSON encodes the canonical source as a JSON string.
func (e *Expr) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// Constructors used by repair passes to synthesize fragments.

func Num(v float64) Node { return &NumberLit{Value: v} }
func Str(s string) Node { return &StringLit{Value: s} }
func Bool(v bool) Node { return &BoolLit{Value: v} }
func Id(name string) Node { return &Ident{Name: name} }
func Sel(x Node, name string) Node { return &Member{X: x, Name: name} }
func Idx(x, i Node) Node { return &Index{X: x, Index: i} }
func Bin(op string, x, y Node) Node {
	return &Binary{Op: op, X: x, Y: y}
}
func Not(x Node) Node { return &Unary{Op: "!", X: x} }
func CallOf(fn Node, args ...Node) Node {
	return &Call{Fn: fn, Args: args}
}
func If(test, then, els Node) Node { return &Cond{Test: test, Then: then, Else: els} }

// TableRef builds talent.<block>["<name>"].
func TableRef(block, name string) Node {
	return Idx(Sel(Id("talent"), block), Str(name))
}

// ParamRef builds params.<name>.
func ParamRef(name string) Node { return Sel(Id("params"), name) }

// AttrCalc builds calc(attr.<bucket>).
func AttrCalc(bucket string) Node { return CallOf(Id("calc"), Sel(Id("attr"), bucket)) }

// Ratio builds toRatio(x).
func Ratio(x Node) Node { return CallOf(Id("toRatio"), x) }

// And joins guards, skipping nil operands.
func And(a, b Node) Node {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return Bin("&&", a, b)
}

// Obj builds an object literal from alternating key/value pairs.
func Obj(fields ...Field) Node { return &ObjectLit{Fields: fields} }
