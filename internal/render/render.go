// Package render compiles a validated plan into a calc module.
//
// A Module carries two views of the same rows: compiled closure bodies
// (expression trees over the fixed runtime context) that the verifier
// evaluates, and the module source text shipped to the damage runtime.
// Both come from the same trees, so what is verified is what ships.
package render

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/logging"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
)

// DefaultCreatedBy is the provenance string used when Options leaves it
// empty.
const DefaultCreatedBy = "calcgen"

// ContextParams is the destructured argument list every closure receives.
var ContextParams = []string{"talent", "attr", "calc", "params", "cons", "weapon", "trees", "element"}

// ErrEmptyPlan is returned for a plan without details.
var ErrEmptyPlan = errors.New("render: plan has no details")

// Options tunes rendering.
type Options struct {
	CreatedBy string
}

// Shape records how a row's computation was derived.
type Shape string

const (
	ShapeExpr     Shape = "expr"     // the plan's own dmgExpr
	ShapeReaction Shape = "reaction" // reaction("id")
	ShapeScalar   Shape = "scalar"   // one table value
	ShapePick     Shape = "pick"     // one chosen array component
	ShapeHits     Shape = "hits"     // per-hit value times hit count
	ShapeSum      Shape = "sum"      // sum of percentage components
	ShapeTwoStat  Shape = "two-stat" // two percentages of two stats
	ShapePctFlat  Shape = "pct-flat" // percentage of a stat plus a flat value
	ShapeFirst    Shape = "first"    // unknown layout, first component
)

// Row is a compiled detail row.
type Row struct {
	Title  string
	Kind   plan.Kind
	Talent string
	DmgKey string
	Cons   int
	Params plan.Params
	Check  *expr.Expr
	Dmg    *expr.Expr
	Shape  Shape
}

// DataEntry is one buff data value, in key order.
type DataEntry struct {
	Key   string
	Value plan.BuffValue
}

// BuffRow is a compiled buff. Canned buffs carry only their id.
type BuffRow struct {
	Canned string
	Title  string
	Sort   int
	Cons   int
	Tree   int
	Check  *expr.Expr
	Data   []DataEntry
}

// Module is a rendered calc module.
type Module struct {
	Game game.Game
	// Scale is the toRatio divisor: 100 for percentage-point tables, 1 for
	// fractional ones.
	Scale     float64
	Details   []Row
	DefDmgIdx int
	DefDmgKey string
	MainAttr  string
	DefParams plan.Params
	Buffs     []BuffRow
	CreatedBy string
	Source    string
}

// ToRatio applies the module's conversion to a raw table value.
func (m *Module) ToRatio(v float64) float64 { return v / m.Scale }

// Digest is the hex sha256 of Source.
func (m *Module) Digest() string {
	sum := sha256.Sum256([]byte(m.Source))
	return hex.EncodeToString(sum[:])
}

// Render compiles p. The renderer never fails on a row it cannot classify;
// it falls back to the first component of an array table.
func Render(in *plan.Input, p *plan.Plan, opts Options) (*Module, error) {
	if p == nil || len(p.Details) == 0 {
		return nil, ErrEmptyPlan
	}
	timer := logging.StartTimer(logging.CategoryRender, "render")
	defer timer.Stop()

	prof := in.Profile()
	r := &renderer{in: in, prof: prof}
	m := &Module{
		Game:      prof.Game,
		Scale:     prof.PercentScale,
		MainAttr:  p.MainAttr,
		DefParams: p.DefParams.Clone(),
		CreatedBy: opts.CreatedBy,
	}
	if m.CreatedBy == "" {
		m.CreatedBy = DefaultCreatedBy
	}

	for i, d := range p.Details {
		row, err := r.detail(d)
		if err != nil {
			return nil, fmt.Errorf("details[%d] %q: %w", i, d.Title, err)
		}
		logging.RenderDebug("details[%d] %q rendered as %s", i, d.Title, row.Shape)
		m.Details = append(m.Details, row)
	}
	m.DefDmgIdx, m.DefDmgKey = defaultRow(p)

	for _, b := range p.Buffs {
		m.Buffs = append(m.Buffs, buffRow(b))
	}

	src, err := writeSource(m)
	if err != nil {
		return nil, err
	}
	m.Source = src
	logging.Render("rendered %d details, %d buffs (%d bytes)", len(m.Details), len(m.Buffs), len(src))
	return m, nil
}

// defaultRow picks the showcase row: the first row producing DefDmgKey,
// else the first damage row, else row 0.
func defaultRow(p *plan.Plan) (int, string) {
	if p.DefDmgKey != "" {
		for i, d := range p.Details {
			if d.DmgKey() == p.DefDmgKey {
				return i, p.DefDmgKey
			}
		}
	}
	for i, d := range p.Details {
		if d.Kind == plan.KindDamage && d.DmgKey() != "" {
			return i, d.DmgKey()
		}
	}
	return 0, p.Details[0].DmgKey()
}

func buffRow(b *plan.Buff) BuffRow {
	if b.Canned != "" {
		return BuffRow{Canned: b.Canned}
	}
	row := BuffRow{
		Title: b.Title,
		Sort:  b.Sort,
		Cons:  b.Cons,
		Tree:  b.Tree,
		Check: b.Check,
	}
	for _, k := range b.DataKeys() {
		row.Data = append(row.Data, DataEntry{Key: k, Value: b.Data[k]})
	}
	return row
}

type renderer struct {
	in   *plan.Input
	prof *game.Profile
}

func (r *renderer) detail(d *plan.Detail) (Row, error) {
	row := Row{
		Title:  d.Title,
		Kind:   d.Kind,
		Talent: d.Talent(),
		DmgKey: d.DmgKey(),
		Cons:   d.Cons,
		Params: d.Params.Clone(),
		Check:  d.Check,
	}
	if d.DmgExpr != nil {
		row.Dmg, row.Shape = d.DmgExpr, ShapeExpr
		return row, nil
	}
	switch src := d.Source.(type) {
	case plan.ReactionSource:
		row.Dmg = expr.New(expr.CallOf(expr.Id("reaction"), expr.Str(src.ID)))
		row.Shape = ShapeReaction
	case plan.TableSource:
		b := r.base(d, src)
		row.Dmg, row.Shape = expr.New(r.emit(d, b)), b.shape
	default:
		return Row{}, errors.New("detail has no source")
	}
	return row, nil
}

// base is a row's value before emission. Exactly one of amount (a raw
// table-scale multiplier) and basic (an already computed value) is set.
type base struct {
	shape  Shape
	stat   string
	amount expr.Node
	basic  expr.Node
}

func (r *renderer) base(d *plan.Detail, ts plan.TableSource) base {
	ref := expr.TableRef(ts.Talent, ts.Table)
	if d.Pick != nil {
		return base{shape: ShapePick, amount: expr.Idx(ref, expr.Num(float64(*d.Pick)))}
	}
	sample, ok := r.in.Sample(ts.Talent, ts.Table)
	if !ok || !sample.IsArray {
		return base{shape: ShapeScalar, amount: ref}
	}
	l := classify(r.prof, d.Kind, sample, r.in.TextSample(ts.Talent, ts.Table), r.in.Unit(ts.Talent, ts.Table))
	elem := func(i int) expr.Node { return expr.Idx(ref, expr.Num(float64(i))) }
	b := base{shape: l.shape}
	if len(l.stats) > 0 {
		b.stat = l.stats[0]
	}
	stat := func(i int) string {
		if i < len(l.stats) && l.stats[i] != "" {
			return l.stats[i]
		}
		return rowStat(d)
	}
	switch l.shape {
	case ShapeHits:
		b.amount = expr.Bin("*", elem(0), elem(1))
	case ShapeSum:
		b.amount = elem(0)
		for i := 1; i < sample.Len(); i++ {
			b.amount = expr.Bin("+", b.amount, elem(i))
		}
	case ShapeTwoStat:
		b.basic = expr.Bin("+",
			expr.Bin("*", expr.AttrCalc(stat(0)), expr.Ratio(elem(0))),
			expr.Bin("*", expr.AttrCalc(stat(1)), expr.Ratio(elem(1))))
	case ShapePctFlat:
		b.basic = expr.Bin("+", expr.Bin("*", expr.AttrCalc(stat(0)), expr.Ratio(elem(0))), elem(1))
	default:
		b.shape = ShapeFirst
		b.amount = elem(0)
	}
	return b
}

// rowStat is the stat a row scales off when nothing more specific is known.
func rowStat(d *plan.Detail) string {
	if d.Stat != "" {
		return d.Stat
	}
	return "atk"
}

// emit wraps a base value in the kind's emission helper.
func (r *renderer) emit(d *plan.Detail, b base) expr.Node {
	stat := b.stat
	if stat == "" {
		stat = rowStat(d)
	}
	value := b.basic
	if value == nil && (d.Kind != plan.KindDamage || stat != "atk") {
		value = expr.Bin("*", expr.AttrCalc(stat), expr.Ratio(b.amount))
	}
	if d.Kind != plan.KindDamage {
		return expr.CallOf(expr.Id(d.Kind.Role().Helper()), value)
	}

	key := d.Talent()
	if d.Key != nil {
		key = *d.Key
	}
	args := []expr.Node{b.amount, expr.Str(key)}
	fn := expr.Id("dmg")
	if value != nil {
		args[0] = value
		fn = expr.Sel(fn, "basic")
	}
	if d.Ele != "" {
		args = append(args, expr.Str(d.Ele))
	}
	return expr.CallOf(fn, args...)
}
