// Package plan defines the calc plan data model: the per-character input the
// pipeline is given, the untrusted plan proposed by the model, and the
// validated plan every later stage works on.
package plan

import (
	"sort"
	"strings"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
)

// Kind is the row kind of a Detail.
type Kind string

const (
	KindDamage   Kind = "damage"
	KindHeal     Kind = "heal"
	KindShield   Kind = "shield"
	KindReaction Kind = "reaction"
)

// ParseKind maps a raw kind to a Kind. Unknown or empty values are damage.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heal", "healing":
		return KindHeal
	case "shield":
		return KindShield
	case "reaction":
		return KindReaction
	default:
		return KindDamage
	}
}

// Role returns the expression role used to check and render rows of kind k.
func (k Kind) Role() expr.Role {
	switch k {
	case KindHeal:
		return expr.RoleHeal
	case KindShield:
		return expr.RoleShield
	case KindReaction:
		return expr.RoleReaction
	default:
		return expr.RoleDamage
	}
}

// Source is what a Detail draws its base value from. It is either a
// TableSource or a ReactionSource.
type Source interface {
	isSource()
}

// TableSource is a named table inside a talent block.
type TableSource struct {
	Talent string
	Table  string
}

// ReactionSource is a canonical reaction id.
type ReactionSource struct {
	ID string
}

func (TableSource) isSource()    {}
func (ReactionSource) isSource() {}

// ScalarType tags the payload of a Scalar.
type ScalarType int

const (
	ScalarNumber ScalarType = iota
	ScalarBool
	ScalarString
)

// Scalar is a JSON primitive stored in a params map.
type Scalar struct {
	Type ScalarType
	Num  float64
	Bool bool
	Str  string
}

func Number(f float64) Scalar { return Scalar{Type: ScalarNumber, Num: f} }
func Flag(b bool) Scalar      { return Scalar{Type: ScalarBool, Bool: b} }
func Text(s string) Scalar    { return Scalar{Type: ScalarString, Str: s} }

// Node returns the literal expression for s.
func (s Scalar) Node() expr.Node {
	switch s.Type {
	case ScalarBool:
		return expr.Bool(s.Bool)
	case ScalarString:
		return expr.Str(s.Str)
	default:
		return expr.Num(s.Num)
	}
}

// Value returns s as an evaluator value.
func (s Scalar) Value() expr.Value {
	switch s.Type {
	case ScalarBool:
		return expr.BoolValue(s.Bool)
	case ScalarString:
		return expr.StringValue(s.Str)
	default:
		return expr.NumberValue(s.Num)
	}
}

// Params is a row's flat state map. Keys are ASCII identifiers.
type Params map[string]Scalar

// Keys returns the sorted keys.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone copies p. A nil map stays nil.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Detail is one showcase row.
type Detail struct {
	Title  string
	Kind   Kind
	Source Source
	// Key is the bucket tag. nil routes by talent block; an empty string
	// suppresses default routing.
	Key     *string
	Ele     string
	Stat    string
	Pick    *int
	Params  Params
	Check   *expr.Expr
	DmgExpr *expr.Expr
	Cons    int
}

// Table returns the table source, if the row has one.
func (d *Detail) Table() (TableSource, bool) {
	ts, ok := d.Source.(TableSource)
	return ts, ok
}

// Reaction returns the reaction source, if the row has one.
func (d *Detail) Reaction() (ReactionSource, bool) {
	rs, ok := d.Source.(ReactionSource)
	return rs, ok
}

// Talent returns the owning talent block, or "" for reaction rows.
func (d *Detail) Talent() string {
	if ts, ok := d.Table(); ok {
		return ts.Talent
	}
	return ""
}

// KeyTags splits Key into its comma-separated tags. The primary tag comes
// first; it may be empty.
func (d *Detail) KeyTags() []string {
	if d.Key == nil {
		return nil
	}
	parts := strings.Split(*d.Key, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// DmgKey is the primary bucket tag the downstream runtime routes by.
func (d *Detail) DmgKey() string {
	if d.Key != nil {
		return d.KeyTags()[0]
	}
	return d.Talent()
}

// SetKey replaces Key.
func (d *Detail) SetKey(k string) { d.Key = &k }

// Clone deep-copies d. Expressions are immutable and shared.
func (d *Detail) Clone() *Detail {
	c := *d
	if d.Key != nil {
		k := *d.Key
		c.Key = &k
	}
	if d.Pick != nil {
		p := *d.Pick
		c.Pick = &p
	}
	c.Params = d.Params.Clone()
	return &c
}

// BuffValue is a buff data entry: a literal number or an expression.
type BuffValue struct {
	Num  float64
	Expr *expr.Expr
}

// Literal builds a numeric buff value.
func Literal(f float64) BuffValue { return BuffValue{Num: f} }

// Computed builds an expression buff value.
func Computed(e *expr.Expr) BuffValue { return BuffValue{Expr: e} }

// IsLiteral reports whether v is a plain number.
func (v BuffValue) IsLiteral() bool { return v.Expr == nil }

// Node returns the expression for v.
func (v BuffValue) Node() expr.Node {
	if v.Expr != nil {
		return v.Expr.Root
	}
	return expr.Num(v.Num)
}

func (v BuffValue) String() string {
	return expr.Print(v.Node())
}

// Buff is a conditional or unconditional modifier. A buff with Canned set is
// an opaque built-in id and carries nothing else.
type Buff struct {
	Canned string
	Title  string
	Sort   int
	Cons   int
	Tree   int
	Check  *expr.Expr
	Data   map[string]BuffValue
}

// DataKeys returns the sorted data keys.
func (b *Buff) DataKeys() []string {
	keys := make([]string, 0, len(b.Data))
	for k := range b.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone deep-copies b.
func (b *Buff) Clone() *Buff {
	c := *b
	if b.Data != nil {
		c.Data = make(map[string]BuffValue, len(b.Data))
		for k, v := range b.Data {
			c.Data[k] = v
		}
	}
	return &c
}

// Plan is the validated calc plan.
type Plan struct {
	MainAttr  string
	DefDmgKey string
	DefParams Params
	Details   []*Detail
	Buffs     []*Buff
}

// Clone deep-copies p.
func (p *Plan) Clone() *Plan {
	c := &Plan{
		MainAttr:  p.MainAttr,
		DefDmgKey: p.DefDmgKey,
		DefParams: p.DefParams.Clone(),
	}
	for _, d := range p.Details {
		c.Details = append(c.Details, d.Clone())
	}
	for _, b := range p.Buffs {
		c.Buffs = append(c.Buffs, b.Clone())
	}
	return c
}

// DmgKeys returns the set of primary bucket tags the details produce.
func (p *Plan) DmgKeys() map[string]bool {
	keys := make(map[string]bool)
	for _, d := range p.Details {
		if k := d.DmgKey(); k != "" {
			keys[k] = true
		}
	}
	return keys
}

// SetParams returns the union of params keys set by any detail or by
// DefParams.
func (p *Plan) SetParams() map[string]bool {
	set := make(map[string]bool)
	for k := range p.DefParams {
		set[k] = true
	}
	for _, d := range p.Details {
		for k := range d.Params {
			set[k] = true
		}
	}
	return set
}
