package repair

import (
	"context"
	"regexp"
	"strings"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
)

// stateRouting re-buckets the hits of a block whose description converts
// them into another attack type. A sentence that only says the hit "counts
// as" that type's damage keeps the original bucket.
func stateRouting(_ context.Context, c *Context) error {
	for _, block := range c.Known.Blocks() {
		if block == "a" {
			continue
		}
		key, rows, ok := routeTarget(c, block)
		if !ok {
			continue
		}
		for i, d := range c.Plan.Details {
			ts, ok := d.Table()
			if !ok || ts.Talent != block || d.Kind != plan.KindDamage || d.DmgKey() != block {
				continue
			}
			if rows != nil && !rows.MatchString(ts.Table) && !rows.MatchString(d.Title) {
				continue
			}
			old := keyArg(d)
			tags := d.KeyTags()
			if len(tags) == 0 {
				tags = []string{key}
			} else {
				tags[0] = key
			}
			next := strings.Join(tags, ",")
			target := detailTarget(i, d)
			if d.DmgExpr != nil {
				root, changed := rekeyEmissions(d.DmgExpr.Root, old, next)
				if changed {
					e, ok := c.AcceptResult(target, root, d.Kind)
					if !ok {
						continue
					}
					d.DmgExpr = e
				}
			}
			d.SetKey(next)
			c.Note(target, "routed %s -> %s", block, key)
		}
	}
	return nil
}

// routeTarget returns the attack bucket block's description converts to.
// Two different targets in one description are treated as no evidence.
func routeTarget(c *Context, block string) (string, *regexp.Regexp, bool) {
	var (
		key  string
		rows *regexp.Regexp
	)
	for _, sent := range sentences(c.In.Desc(block)) {
		for _, r := range c.Rules.Routing {
			m := r.re.FindStringSubmatch(sent)
			if m == nil {
				continue
			}
			if r.exclude != nil && r.exclude.MatchString(sent) {
				continue
			}
			k, ok := c.Rules.attackKey(c.In.Game, m[1])
			if !ok || k == block {
				continue
			}
			if key != "" && key != k {
				return "", nil, false
			}
			key, rows = k, r.rows
		}
	}
	return key, rows, key != ""
}

// rekeyEmissions replaces the bucket argument old with next in every
// damage emission of n.
func rekeyEmissions(n expr.Node, old, next string) (expr.Node, bool) {
	changed := false
	out := expr.Rewrite(n, func(n expr.Node) expr.Node {
		call, ok := n.(*expr.Call)
		if !ok || !expr.IsEmission(call, expr.RoleDamage) || len(call.Args) < 2 {
			return n
		}
		s, ok := call.Args[1].(*expr.StringLit)
		if !ok || s.Value != old {
			return n
		}
		args := append([]expr.Node(nil), call.Args...)
		args[1] = &expr.StringLit{At: s.At, Value: next}
		changed = true
		return &expr.Call{At: call.At, Fn: call.Fn, Args: args}
	})
	return out, changed
}

// breakDamage replaces sr rows on a toughness-break ratio table with break
// reaction rows, one per toughness variant.
func breakDamage(_ context.Context, c *Context) error {
	br := c.Rules.Break
	if c.In.Game != game.StarRail || br.table == nil || len(br.Variants) == 0 {
		return nil
	}
	id, ok := game.BreakReaction(c.In.Elem)
	if !ok || !c.Prof.IsTransformative(id) {
		return nil
	}
	room := c.Limits.MaxDetails - len(c.Plan.Details)
	out := make([]*plan.Detail, 0, len(c.Plan.Details))
	for i, d := range c.Plan.Details {
		ts, ok := d.Table()
		if !ok || d.Kind != plan.KindDamage || d.DmgExpr != nil || !br.table.MatchString(ts.Table) ||
			(br.exclude != nil && br.exclude.MatchString(ts.Table)) || room < len(br.Variants)-1 {
			out = append(out, d)
			continue
		}
		rows, ok := breakRows(c, i, d, ts, id)
		if !ok {
			out = append(out, d)
			continue
		}
		out = append(out, rows...)
		room -= len(rows) - 1
		c.Note(detailTarget(i, d), "break reaction %s in %d variant(s)", id, len(rows))
	}
	c.Plan.Details = out
	return nil
}

func breakRows(c *Context, i int, d *plan.Detail, ts plan.TableSource, id string) ([]*plan.Detail, bool) {
	br := c.Rules.Break
	if _, set := d.Params[br.Param]; !set && len(d.Params) >= c.Limits.MaxParams {
		return nil, false
	}
	coeff := expr.Bin("+", expr.Num(0.5), expr.Bin("/", expr.ParamRef(br.Param), expr.Num(40)))
	avg := expr.Sel(expr.CallOf(expr.Id("reaction"), expr.Str(id)), "avg")
	value := expr.Bin("*", expr.Bin("*", avg, expr.Ratio(tableNode(ts))), coeff)
	e, ok := c.AcceptResult(detailTarget(i, d), expr.Obj(
		expr.Field{Key: "dmg", Value: value},
		expr.Field{Key: "avg", Value: value},
	), plan.KindReaction)
	if !ok {
		return nil, false
	}
	rows := make([]*plan.Detail, 0, len(br.Variants))
	for _, v := range br.Variants {
		params := d.Params.Clone()
		if params == nil {
			params = plan.Params{}
		}
		params[br.Param] = plan.Number(v.Toughness)
		rows = append(rows, &plan.Detail{
			Title:   d.Title + v.Suffix,
			Kind:    plan.KindReaction,
			Source:  plan.ReactionSource{ID: id},
			Params:  params,
			Check:   d.Check,
			DmgExpr: e,
			Cons:    d.Cons,
		})
	}
	return rows, true
}
