package repair

import (
	"context"
	"fmt"
	"strings"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
	"github.com/XuF163/metaGenerator-sub000/internal/resolve"
)

// splitVariants turns a row on a two-part "A/B" table with a two-component
// sample into one row per part.
func splitVariants(_ context.Context, c *Context) error {
	room := c.Limits.MaxDetails - len(c.Plan.Details)
	out := make([]*plan.Detail, 0, len(c.Plan.Details))
	for i, d := range c.Plan.Details {
		parts, ok := variantParts(c, d)
		if !ok || room < 1 {
			out = append(out, d)
			continue
		}
		ts, _ := d.Table()
		for pi, part := range parts {
			nd := d.Clone()
			pick := pi
			nd.Pick = &pick
			nd.Title = variantTitle(d.Title, ts.Table, part)
			out = append(out, nd)
		}
		room--
		c.Note(detailTarget(i, d), "split into %q and %q", parts[0], parts[1])
	}
	c.Plan.Details = out
	return nil
}

func variantParts(c *Context, d *plan.Detail) ([]string, bool) {
	ts, ok := d.Table()
	if !ok || d.Pick != nil || d.DmgExpr != nil {
		return nil, false
	}
	parts := resolve.SlashParts(ts.Table)
	if len(parts) != 2 || resolve.NormalizeName(parts[0]) == resolve.NormalizeName(parts[1]) {
		return nil, false
	}
	s, ok := c.In.Sample(ts.Talent, ts.Table)
	if !ok || !s.IsArray || s.Len() != 2 {
		return nil, false
	}
	// "A+B" and "N*M" texts encode one value in two components.
	if text := c.In.TextSample(ts.Talent, ts.Table); strings.ContainsAny(text, "+*×") {
		return nil, false
	}
	return parts, true
}

func variantTitle(title, table, part string) string {
	if title == "" || resolve.NormalizeName(title) == resolve.NormalizeName(table) {
		return part
	}
	return fmt.Sprintf("%s(%s)", title, part)
}

// scalingStat fills in the stat a table scales with when the row leaves
// it empty. Narrow evidence wins: the unit label, then the text sample,
// then the block default, and only then the block description.
func scalingStat(_ context.Context, c *Context) error {
	for i, d := range c.Plan.Details {
		ts, ok := d.Table()
		if !ok || d.Kind == plan.KindReaction || d.Stat != "" || d.DmgExpr != nil {
			continue
		}
		stat, from := inferStat(c, d.Kind, ts)
		if stat == "" || stat == "atk" || !c.Prof.IsStatBucket(stat) {
			continue
		}
		d.Stat = stat
		c.Note(detailTarget(i, d), "stat %s from %s", stat, from)
	}
	return nil
}

func inferStat(c *Context, kind plan.Kind, ts plan.TableSource) (string, string) {
	if stats := c.statsIn(c.In.Unit(ts.Talent, ts.Table)); len(stats) > 0 {
		return single(stats), "unit"
	}
	if stats := c.statsIn(c.In.TextSample(ts.Talent, ts.Table)); len(stats) > 0 {
		return single(stats), "text sample"
	}
	if ts.Talent == "a" {
		return "", ""
	}
	var found []string
	seen := make(map[string]bool)
	for _, sent := range sentences(c.In.Desc(ts.Talent)) {
		if c.negative(sent, kind) {
			continue
		}
		for _, s := range c.statsIn(sent) {
			if !seen[s] {
				seen[s] = true
				found = append(found, s)
			}
		}
	}
	return single(found), "description"
}

// single returns the only element of stats, or "" for none or a mix.
func single(stats []string) string {
	if len(stats) != 1 {
		return ""
	}
	return stats[0]
}

// statsIn lists the stats s mentions, in rule order.
func (c *Context) statsIn(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, r := range c.Rules.Stats {
		if r.re.MatchString(s) {
			out = append(out, r.Stat)
		}
	}
	return out
}

// negative reports whether sent describes something other than a kind row,
// so its stat mentions must not count.
func (c *Context) negative(sent string, kind plan.Kind) bool {
	for _, r := range c.Rules.Negative {
		if !r.re.MatchString(sent) {
			continue
		}
		except := false
		for _, k := range r.Except {
			except = except || k == string(kind)
		}
		if !except {
			return true
		}
	}
	return false
}

// deltaMultiplier rewrites a "multiplier increase" row to add its base
// table. A row whose base cannot be identified is left alone.
func deltaMultiplier(_ context.Context, c *Context) error {
	for i, d := range c.Plan.Details {
		ts, ok := d.Table()
		if !ok || d.Kind != plan.KindDamage || d.DmgExpr != nil || d.Pick != nil {
			continue
		}
		if !resolve.IsDeltaTable(ts.Table) {
			continue
		}
		base, ok := deltaBase(c, ts, d.Title)
		if !ok {
			continue
		}
		if isArray(c, ts.Talent, base) || isArray(c, ts.Talent, ts.Table) {
			continue
		}
		amount := expr.Bin("+", expr.TableRef(ts.Talent, base), tableNode(ts))
		target := detailTarget(i, d)
		if e, ok := c.AcceptResult(target, emission(d, amount), d.Kind); ok {
			d.DmgExpr = e
			c.Note(target, "added base table %q", base)
		}
	}
	return nil
}

func deltaBase(c *Context, ts plan.TableSource, title string) (string, bool) {
	stem := resolve.DeltaStem(ts.Table)
	titleStem := resolve.DeltaStem(title)
	best, bestScore, tied := "", 0, false
	for _, cand := range c.In.Tables[ts.Talent] {
		if cand == ts.Table || resolve.IsDeltaTable(cand) || resolve.IsHealName(cand) || resolve.IsShieldName(cand) {
			continue
		}
		score := resolve.Overlap(stem, cand) + resolve.Overlap(titleStem, cand)
		switch {
		case score > bestScore:
			best, bestScore, tied = cand, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if bestScore == 0 || tied {
		return "", false
	}
	return best, true
}

func isArray(c *Context, block, table string) bool {
	s, ok := c.In.Sample(block, table)
	return ok && s.IsArray
}

// multiHit multiplies a per-hit table by its hit count on rows titled as a
// total. Tier-gated extra hits from hints become a cons ternary.
func multiHit(_ context.Context, c *Context) error {
	for i, d := range c.Plan.Details {
		ts, ok := d.Table()
		if !ok || d.Kind != plan.KindDamage || d.DmgExpr != nil || d.Pick != nil {
			continue
		}
		if !resolve.IsTotalTitle(d.Title) || resolve.IsPerHitTitle(d.Title) || isArray(c, ts.Talent, ts.Table) {
			continue
		}
		n, from := hitCount(c, ts)
		if n <= 1 {
			continue
		}
		var count expr.Node = expr.Num(float64(n))
		if extra, cons := extraHits(c, ts); extra > 0 {
			bonus := expr.If(expr.Bin(">=", expr.Id("cons"), expr.Num(float64(cons))), expr.Num(float64(extra)), expr.Num(0))
			count = expr.Bin("+", count, bonus)
		}
		target := detailTarget(i, d)
		if e, ok := c.AcceptResult(target, emission(d, expr.Bin("*", tableNode(ts), count)), d.Kind); ok {
			d.DmgExpr = e
			c.Note(target, "x%d hits from %s", n, from)
		}
	}
	return nil
}

// hitCount reads the count from the table's text sample, or from the block
// description when the table itself is named per hit.
func hitCount(c *Context, ts plan.TableSource) (int, string) {
	text := c.In.TextSample(ts.Talent, ts.Table)
	for _, r := range c.Rules.HitCounts {
		if r.Source != "text" || text == "" {
			continue
		}
		if m := r.re.FindStringSubmatch(text); m != nil {
			if n, ok := parseCount(m[r.Count]); ok {
				return n, "text sample"
			}
		}
	}
	if !resolve.IsPerHitTitle(ts.Table) {
		return 0, ""
	}
	desc := c.In.Desc(ts.Talent)
	for _, r := range c.Rules.HitCounts {
		if r.Source != "desc" {
			continue
		}
		if m := r.re.FindStringSubmatch(desc); m != nil {
			if n, ok := parseCount(m[r.Count]); ok {
				return n, "description"
			}
		}
	}
	return 0, ""
}

// extraHits finds a cons-marked hint adding hits to the table's attack.
func extraHits(c *Context, ts plan.TableSource) (extra, cons int) {
	stem := resolve.DeltaStem(ts.Table)
	for _, hint := range c.In.BuffHints {
		tc, _, text, ok := c.Rules.tier(hint)
		if !ok || tc == 0 || resolve.Overlap(text, stem) == 0 {
			continue
		}
		for _, r := range c.Rules.HitCounts {
			if r.Source != "hint" {
				continue
			}
			if m := r.re.FindStringSubmatch(text); m != nil {
				if n, ok := parseCount(m[r.Count]); ok {
					return n, tc
				}
			}
		}
	}
	return 0, 0
}
