package repair

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
	"github.com/XuF163/metaGenerator-sub000/internal/resolve"
)

func normalizeKeys(_ context.Context, c *Context) error {
	for i, d := range c.Plan.Details {
		if d.Key == nil {
			continue
		}
		tags := d.KeyTags()
		primary := tags[0]
		if low := strings.ToLower(primary); low != primary && c.Prof.IsDmgKey(low) {
			primary = low
		}
		out := []string{primary}
		seen := map[string]bool{primary: true}
		for _, t := range tags[1:] {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
		if key := strings.Join(out, ","); key != *d.Key {
			c.Note(detailTarget(i, d), "key %q -> %q", *d.Key, key)
			d.SetKey(key)
		}
	}
	if k := c.Plan.DefDmgKey; k != "" {
		if low := strings.ToLower(strings.TrimSpace(k)); low != k && c.Prof.IsDmgKey(low) {
			c.Note("defDmgKey", "%q -> %q", k, low)
			c.Plan.DefDmgKey = low
		}
	}
	return nil
}

// keyScope narrows a buff whose keys cover a whole talent block but whose
// title names a single table of that block. The buff gets a params guard
// and the matching rows set the flag.
func keyScope(_ context.Context, c *Context) error {
	for bi, b := range c.Plan.Buffs {
		if b.Canned != "" || b.Title == "" {
			continue
		}
		block := scopedBlock(c.Prof, b)
		if block == "" {
			continue
		}
		rows, table, ok := scopeRows(c, b.Title, block)
		if !ok {
			continue
		}
		ts, _ := rows[0].Table()
		tag := fmt.Sprintf("%sScope%d", block, indexOf(c.In.Tables[ts.Talent], table))
		if b.Check != nil && readsParam(b.Check.Root, tag) {
			continue
		}
		full := false
		for _, d := range rows {
			if _, set := d.Params[tag]; !set && len(d.Params) >= c.Limits.MaxParams {
				full = true
			}
		}
		if full {
			continue
		}
		check, ok := c.Accept(buffTarget(bi, b), expr.And(checkRoot(b.Check), expr.ParamRef(tag)), expr.RoleGuard)
		if !ok {
			continue
		}
		b.Check = check
		for _, d := range rows {
			if _, set := d.Params[tag]; set {
				continue
			}
			if d.Params == nil {
				d.Params = plan.Params{}
			}
			d.Params[tag] = plan.Flag(true)
		}
		c.Note(buffTarget(bi, b), "scoped to %s %q via params.%s (%d row(s))", block, table, tag, len(rows))
	}
	return nil
}

// scopedBlock returns the single damage block every percent or crit key
// of b is prefixed with, or "".
func scopedBlock(prof *game.Profile, b *plan.Buff) string {
	block := ""
	for _, k := range b.DataKeys() {
		prefix, _ := prof.SplitKey(k)
		if prefix == "" || !prof.IsDmgKey(prefix) {
			return ""
		}
		switch prof.ClassifyKey(k) {
		case game.KeyPercent, game.KeyCrit:
		default:
			return ""
		}
		if block != "" && block != prefix {
			return ""
		}
		block = prefix
	}
	return block
}

// scopeRows finds the damage rows of block whose table best matches title.
// The best rows must share one table and at least one row of the block
// must not match at all, otherwise the buff already fits the block.
func scopeRows(c *Context, title, block string) ([]*plan.Detail, string, bool) {
	var (
		rows   []*plan.Detail
		scores []int
		best   int
	)
	for _, d := range c.Plan.Details {
		ts, ok := d.Table()
		if !ok || d.Kind != plan.KindDamage || d.DmgKey() != block {
			continue
		}
		s := resolve.Overlap(title, ts.Table)
		rows = append(rows, d)
		scores = append(scores, s)
		if s > best {
			best = s
		}
	}
	if best < 1 {
		return nil, "", false
	}
	var (
		picked []*plan.Detail
		table  string
		miss   bool
	)
	for i, d := range rows {
		ts, _ := d.Table()
		switch scores[i] {
		case best:
			if table != "" && table != ts.Table {
				return nil, "", false
			}
			table = ts.Table
			picked = append(picked, d)
		case 0:
			miss = true
		}
	}
	if !miss {
		return nil, "", false
	}
	return picked, table, true
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func dedupe(_ context.Context, c *Context) error {
	seen := make(map[string]int)
	details := c.Plan.Details[:0]
	for i, d := range c.Plan.Details {
		sig := detailSignature(d)
		if first, dup := seen[sig]; dup {
			c.Note(detailTarget(i, d), "duplicate of details[%d]", first)
			continue
		}
		seen[sig] = i
		details = append(details, d)
	}
	c.Plan.Details = details

	seen = make(map[string]int)
	buffs := c.Plan.Buffs[:0]
	for i, b := range c.Plan.Buffs {
		sig := buffSignature(b)
		if first, dup := seen[sig]; dup {
			c.Note(buffTarget(i, b), "duplicate of buffs[%d]", first)
			continue
		}
		seen[sig] = i
		buffs = append(buffs, b)
	}
	c.Plan.Buffs = buffs
	return nil
}

// detailSignature covers everything but the title.
func detailSignature(d *plan.Detail) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%#v|", d.Kind, d.Source)
	if d.Key != nil {
		fmt.Fprintf(&sb, "key=%q", *d.Key)
	}
	fmt.Fprintf(&sb, "|%s|%s|", d.Ele, d.Stat)
	if d.Pick != nil {
		fmt.Fprintf(&sb, "pick=%d", *d.Pick)
	}
	sb.WriteString("|")
	for _, k := range d.Params.Keys() {
		fmt.Fprintf(&sb, "%s=%s;", k, expr.Print(d.Params[k].Node()))
	}
	fmt.Fprintf(&sb, "|%s|%s|%d", d.Check, d.DmgExpr, d.Cons)
	return sb.String()
}

// buffSignature covers everything but the title and sort order.
func buffSignature(b *plan.Buff) string {
	if b.Canned != "" {
		return "canned:" + b.Canned
	}
	parts := make([]string, 0, len(b.Data))
	for _, k := range b.DataKeys() {
		parts = append(parts, k+"="+b.Data[k].String())
	}
	sort.Strings(parts)
	return fmt.Sprintf("%d|%d|%s|%s", b.Cons, b.Tree, b.Check, strings.Join(parts, ";"))
}

func defaultKey(_ context.Context, c *Context) error {
	k := c.Plan.DefDmgKey
	if k == "" || c.Plan.DmgKeys()[k] {
		return nil
	}
	for _, d := range c.Plan.Details {
		if d.Kind != plan.KindDamage {
			continue
		}
		if next := d.DmgKey(); next != "" {
			c.Plan.DefDmgKey = next
			c.Note("defDmgKey", "%q no longer produced, using %q", k, next)
			return nil
		}
	}
	c.Plan.DefDmgKey = ""
	c.Note("defDmgKey", "%q no longer produced, cleared", k)
	return nil
}
