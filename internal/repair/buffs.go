package repair

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
)

const factorTolerance = 1e-6

// redundantMultiplier drops an inline "* 1.4" from a damage emission when
// a buff already grants the same +40% to the row's bucket.
func redundantMultiplier(_ context.Context, c *Context) error {
	for i, d := range c.Plan.Details {
		if d.DmgExpr == nil || d.Kind != plan.KindDamage {
			continue
		}
		var dropped []string
		root := expr.Rewrite(d.DmgExpr.Root, func(n expr.Node) expr.Node {
			call, ok := n.(*expr.Call)
			if !ok || !expr.IsEmission(call, expr.RoleDamage) || len(call.Args) == 0 {
				return n
			}
			factors := c.bucketFactors(emissionBucket(d, call))
			if len(factors) == 0 {
				return n
			}
			arg, key := stripFactor(call.Args[0], factors)
			if key == "" {
				return n
			}
			dropped = append(dropped, key)
			args := append([]expr.Node(nil), call.Args...)
			args[0] = arg
			return &expr.Call{At: call.At, Fn: call.Fn, Args: args}
		})
		if len(dropped) == 0 {
			continue
		}
		target := detailTarget(i, d)
		if e, ok := c.AcceptResult(target, root, d.Kind); ok {
			d.DmgExpr = e
			c.Note(target, "dropped inline multiplier covered by %s", strings.Join(dropped, ", "))
		}
	}
	return nil
}

// emissionBucket is the primary bucket an emission is routed to: its
// literal key argument when present, else the row's.
func emissionBucket(d *plan.Detail, call *expr.Call) string {
	if len(call.Args) >= 2 {
		if s, ok := call.Args[1].(*expr.StringLit); ok {
			return strings.TrimSpace(strings.SplitN(s.Value, ",", 2)[0])
		}
	}
	return d.DmgKey()
}

// bucketFactors maps 1+v/100 to the buff key granting v% damage to the
// bucket, over every literal dmg and <bucket>Dmg entry.
func (c *Context) bucketFactors(bucket string) map[float64]string {
	keys := []string{"dmg"}
	if bucket != "" {
		keys = append(keys, bucket+"Dmg")
	}
	out := make(map[float64]string)
	for _, b := range c.Plan.Buffs {
		if b.Canned != "" {
			continue
		}
		for _, k := range keys {
			v, ok := b.Data[k]
			if !ok || !v.IsLiteral() || v.Num <= 0 {
				continue
			}
			out[1+v.Num/100] = k
		}
	}
	return out
}

// stripFactor removes the first literal factor matching one of factors
// from a product chain. It returns the key of the matched factor, or "".
func stripFactor(n expr.Node, factors map[float64]string) (expr.Node, string) {
	bin, ok := n.(*expr.Binary)
	if !ok || bin.Op != "*" {
		return n, ""
	}
	if v, ok := bin.Y.(*expr.NumberLit); ok {
		if key := matchFactor(v.Value, factors); key != "" {
			return bin.X, key
		}
	}
	if v, ok := bin.X.(*expr.NumberLit); ok {
		if key := matchFactor(v.Value, factors); key != "" {
			return bin.Y, key
		}
	}
	if x, key := stripFactor(bin.X, factors); key != "" {
		return &expr.Binary{At: bin.At, Op: bin.Op, X: x, Y: bin.Y}, key
	}
	return n, ""
}

// matchFactor ignores integers, which read as hit counts.
func matchFactor(v float64, factors map[float64]string) string {
	if v <= 1 || v == math.Trunc(v) {
		return ""
	}
	for f, key := range factors {
		if math.Abs(f-v) < factorTolerance {
			return key
		}
	}
	return ""
}

// signNormalize flips negative resistance shred and defense ignore
// entries. The runtime subtracts these itself.
func signNormalize(_ context.Context, c *Context) error {
	for bi, b := range c.Plan.Buffs {
		for _, k := range b.DataKeys() {
			if c.Prof.ClassifyKey(k) != game.KeyShred {
				continue
			}
			v := b.Data[k]
			if v.IsLiteral() {
				if v.Num < 0 {
					b.Data[k] = plan.Literal(-v.Num)
					c.Note(buffTarget(bi, b), "%s %v -> %v", k, v.Num, -v.Num)
				}
				continue
			}
			n, ok := flipSign(v.Expr.Root)
			if !ok {
				continue
			}
			if e, ok := c.Accept(buffTarget(bi, b), n, expr.RoleBuff); ok {
				b.Data[k] = plan.Computed(e)
				c.Note(buffTarget(bi, b), "%s %s -> %s", k, v.Expr, e)
			}
		}
	}
	return nil
}

// flipSign negates an expression whose sign comes from a leading minus or
// a negative literal factor.
func flipSign(n expr.Node) (expr.Node, bool) {
	switch v := n.(type) {
	case *expr.Unary:
		if v.Op == "-" {
			return v.X, true
		}
	case *expr.NumberLit:
		if v.Value < 0 {
			return &expr.NumberLit{At: v.At, Value: -v.Value}, true
		}
	case *expr.Binary:
		if v.Op != "*" && v.Op != "/" {
			return n, false
		}
		if lit, ok := literalValue(v.X); ok && lit < 0 {
			return &expr.Binary{At: v.At, Op: v.Op, X: expr.Num(-lit), Y: v.Y}, true
		}
		if lit, ok := literalValue(v.Y); ok && lit < 0 {
			return &expr.Binary{At: v.At, Op: v.Op, X: v.X, Y: expr.Num(-lit)}, true
		}
	}
	return n, false
}

// derivedBuffs reads cons- or tree-marked hints and adds the buffs they
// state but the plan lacks. Unmarked hints are ignored. Trusted upstream
// plans are left as they are.
func derivedBuffs(_ context.Context, c *Context) error {
	if c.In.Trusted() {
		return nil
	}
	for _, hint := range c.In.BuffHints {
		cons, tree, text, ok := c.Rules.tier(hint)
		if !ok || text == "" {
			continue
		}
		data := make(map[string]plan.BuffValue)
		for _, r := range c.Rules.Derived {
			for _, m := range r.re.FindAllStringSubmatchIndex(text, -1) {
				key, v, ok := c.deriveEntry(r, text, m)
				if !ok || hasBuffKey(c.Plan, cons, tree, key) {
					continue
				}
				if _, dup := data[key]; dup {
					continue
				}
				data[key] = v
			}
		}
		if len(data) == 0 {
			continue
		}
		if len(c.Plan.Buffs) >= c.Limits.MaxBuffs {
			return nil
		}
		b := &plan.Buff{Title: text, Cons: cons, Tree: tree, Data: data}
		c.Plan.Buffs = append(c.Plan.Buffs, b)
		keys := b.DataKeys()
		c.Note(buffTarget(len(c.Plan.Buffs)-1, b), "derived %s from hint", strings.Join(keys, ", "))
	}
	return nil
}

// deriveEntry turns one rule match into a buff-data entry.
func (c *Context) deriveEntry(r DerivedRule, text string, m []int) (string, plan.BuffValue, bool) {
	group := func(i int) string {
		if i <= 0 || m[2*i] < 0 {
			return ""
		}
		return text[m[2*i]:m[2*i+1]]
	}
	if r.exclude != nil && r.exclude.MatchString(before(text, m[0], 8)+text[m[0]:m[1]]) {
		return "", plan.BuffValue{}, false
	}
	key := r.Key
	if r.Block > 0 {
		block, ok := c.Rules.attackKey(c.In.Game, group(r.Block))
		if !ok {
			return "", plan.BuffValue{}, false
		}
		key = strings.ReplaceAll(key, "{block}", block)
	}
	if !c.Prof.IsBuffKey(key) {
		return "", plan.BuffValue{}, false
	}
	v, err := strconv.ParseFloat(group(r.Value), 64)
	if err != nil || v <= 0 {
		return "", plan.BuffValue{}, false
	}
	if r.Stack {
		v *= stackCount(text)
	}
	if r.Stat == 0 {
		return key, plan.Literal(v), true
	}
	stat, ok := c.Prof.NormalizeStat(group(r.Stat))
	if !ok {
		return "", plan.BuffValue{}, false
	}
	e, ok := c.Accept("hint "+key, expr.Bin("*", expr.AttrCalc(stat), expr.Num(v/100)), expr.RoleBuff)
	if !ok {
		return "", plan.BuffValue{}, false
	}
	return key, plan.Computed(e), true
}

// hasBuffKey reports whether a non-canned buff at the same tier already
// sets key.
func hasBuffKey(p *plan.Plan, cons, tree int, key string) bool {
	for _, b := range p.Buffs {
		if b.Canned != "" || b.Cons != cons || b.Tree != tree {
			continue
		}
		if _, ok := b.Data[key]; ok {
			return true
		}
	}
	return false
}

// thresholdFlags sets the params flag a resource-threshold title implies,
// so that buffs guarded on that flag apply to the row.
func thresholdFlags(_ context.Context, c *Context) error {
	guards := guardParams(c.Plan)
	for i, d := range c.Plan.Details {
		for _, r := range c.Rules.Thresholds {
			if !r.title.MatchString(d.Title) {
				continue
			}
			var keys []string
			for _, k := range guards {
				if r.params.MatchString(k) {
					keys = append(keys, k)
				}
			}
			if len(keys) == 0 {
				keys = []string{r.Default}
			}
			for _, k := range keys {
				if _, set := d.Params[k]; set {
					continue
				}
				if len(d.Params) >= c.Limits.MaxParams {
					break
				}
				if d.Params == nil {
					d.Params = plan.Params{}
				}
				d.Params[k] = plan.Flag(true)
				c.Note(detailTarget(i, d), "set params.%s from title", k)
			}
		}
	}
	return nil
}

// guardParams lists, sorted, the params keys read by any buff or detail
// check.
func guardParams(p *plan.Plan) []string {
	seen := make(map[string]bool)
	add := func(e *expr.Expr) {
		if e == nil {
			return
		}
		keys, _ := paramRefs(e.Root)
		for _, k := range keys {
			seen[k] = true
		}
	}
	for _, b := range p.Buffs {
		add(b.Check)
	}
	for _, d := range p.Details {
		add(d.Check)
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
