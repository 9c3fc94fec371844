// Package expr implements the restricted expression language used for guard
// and value fragments in calc plans. Fragments are parsed into an AST,
// checked against a safety policy, rendered back to canonical source from the
// AST, and evaluated by a small tree-walking interpreter during verification.
package expr

// Node is an expression AST node.
type Node interface {
	Pos() int
	node()
}

type (
	// NumberLit is a numeric literal. Negative values only arise from
	// constructors; the parser produces Unary("-", NumberLit).
	NumberLit struct {
		At    int
		Value float64
	}

	// StringLit is a quoted string literal.
	StringLit struct {
		At    int
		Value string
	}

	// BoolLit is true or false.
	BoolLit struct {
		At    int
		Value bool
	}

	// NullLit is null, or undefined when Undefined is set.
	NullLit struct {
		At        int
		Undefined bool
	}

	// Ident is a free identifier.
	Ident struct {
		At   int
		Name string
	}

	// Member is dotted property access X.Name.
	Member struct {
		At   int
		X    Node
		Name string
	}

	// Index is bracket access X[Index].
	Index struct {
		At    int
		X     Node
		Index Node
	}

	// Call is Fn(Args...).
	Call struct {
		At   int
		Fn   Node
		Args []Node
	}

	// Unary is a prefix operator: "-", "+" or "!".
	Unary struct {
		At int
		Op string
		X  Node
	}

	// Binary is an infix operator including the logical ones.
	Binary struct {
		At   int
		Op   string
		X, Y Node
	}

	// Cond is Test ? Then : Else.
	Cond struct {
		At               int
		Test, Then, Else Node
	}

	// ObjectLit is an object literal. Field order is preserved.
	ObjectLit struct {
		At     int
		Fields []Field
	}

	// Array is an array literal.
	Array struct {
		At    int
		Elems []Node
	}
)

// Field is one key/value pair of an object literal.
type Field struct {
	Key   string
	Value Node
}

func (n *NumberLit) Pos() int { return n.At }
func (n *StringLit) Pos() int { return n.At }
func (n *BoolLit) Pos() int   { return n.At }
func (n *NullLit) Pos() int   { return n.At }
func (n *Ident) Pos() int     { return n.At }
func (n *Member) Pos() int    { return n.At }
func (n *Index) Pos() int     { return n.At }
func (n *Call) Pos() int      { return n.At }
func (n *Unary) Pos() int     { return n.At }
func (n *Binary) Pos() int    { return n.At }
func (n *Cond) Pos() int      { return n.At }
func (n *ObjectLit) Pos() int    { return n.At }
func (n *Array) Pos() int     { return n.At }

func (*NumberLit) node() {}
func (*StringLit) node() {}
func (*BoolLit) node()   {}
func (*NullLit) node()   {}
func (*Ident) node()     {}
func (*Member) node()    {}
func (*Index) node()     {}
func (*Call) node()      {}
func (*Unary) node()     {}
func (*Binary) node()    {}
func (*Cond) node()      {}
func (*ObjectLit) node()    {}
func (*Array) node()     {}

// Walk visits n and its children in pre-order. Returning false from fn
// skips the children of the current node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch v := n.(type) {
	case *Member:
		Walk(v.X, fn)
	case *Index:
		Walk(v.X, fn)
		Walk(v.Index, fn)
	case *Call:
		Walk(v.Fn, fn)
		for _, a := range v.Args {
			Walk(a, fn)
		}
	case *Unary:
		Walk(v.X, fn)
	case *Binary:
		Walk(v.X, fn)
		Walk(v.Y, fn)
	case *Cond:
		Walk(v.Test, fn)
		Walk(v.Then, fn)
		Walk(v.Else, fn)
	case *ObjectLit:
		for _, f := range v.Fields {
			Walk(f.Value, fn)
		}
	case *Array:
		for _, e := range v.Elems {
			Walk(e, fn)
		}
	}
}

// Rewrite rebuilds n bottom-up, replacing every node with fn(node). Nodes
// are never mutated in place; unchanged subtrees are shared.
func Rewrite(n Node, fn func(Node) Node) Node {
	if n == nil {
		return nil
	}
	switch v := n.(type) {
	case *Member:
		if x := Rewrite(v.X, fn); x != v.X {
			n = &Member{At: v.At, X: x, Name: v.Name}
		}
	case *Index:
		x, idx := Rewrite(v.X, fn), Rewrite(v.Index, fn)
		if x != v.X || idx != v.Index {
			n = &Index{At: v.At, X: x, Index: idx}
		}
	case *Call:
		f := Rewrite(v.Fn, fn)
		args, changed := rewriteList(v.Args, fn)
		if f != v.Fn || changed {
			n = &Call{At: v.At, Fn: f, Args: args}
		}
	case *Unary:
		if x := Rewrite(v.X, fn); x != v.X {
			n = &Unary{At: v.At, Op: v.Op, X: x}
		}
	case *Binary:
		x, y := Rewrite(v.X, fn), Rewrite(v.Y, fn)
		if x != v.X || y != v.Y {
			n = &Binary{At: v.At, Op: v.Op, X: x, Y: y}
		}
	case *Cond:
		t, a, b := Rewrite(v.Test, fn), Rewrite(v.Then, fn), Rewrite(v.Else, fn)
		if t != v.Test || a != v.Then || b != v.Else {
			n = &Cond{At: v.At, Test: t, Then: a, Else: b}
		}
	case *ObjectLit:
		fields := make([]Field, len(v.Fields))
		changed := false
		for i, f := range v.Fields {
			val := Rewrite(f.Value, fn)
			changed = changed || val != f.Value
			fields[i] = Field{Key: f.Key, Value: val}
		}
		if changed {
			n = &ObjectLit{At: v.At, Fields: fields}
		}
	case *Array:
		if elems, changed := rewriteList(v.Elems, fn); changed {
			n = &Array{At: v.At, Elems: elems}
		}
	}
	return fn(n)
}

func rewriteList(list []Node, fn func(Node) Node) ([]Node, bool) {
	out := make([]Node, len(list))
	changed := false
	for i, item := range list {
		out[i] = Rewrite(item, fn)
		changed = changed || out[i] != item
	}
	return out, changed
}
