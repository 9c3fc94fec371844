package repair

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
	"github.com/XuF163/metaGenerator-sub000/internal/resolve"
)

func detailTarget(i int, d *plan.Detail) string {
	return fmt.Sprintf("details[%d] %q", i, d.Title)
}

func buffTarget(i int, b *plan.Buff) string {
	if b.Canned != "" {
		return fmt.Sprintf("buffs[%d] %s", i, b.Canned)
	}
	return fmt.Sprintf("buffs[%d] %q", i, b.Title)
}

// keyArg is the bucket string a damage emission is called with.
func keyArg(d *plan.Detail) string {
	if d.Key != nil {
		return *d.Key
	}
	return d.Talent()
}

// emission builds the damage call for amount, a raw table-scale value.
// Rows scaling off a stat other than attack use dmg.basic on the computed
// base.
func emission(d *plan.Detail, amount expr.Node) expr.Node {
	args := []expr.Node{amount, expr.Str(keyArg(d))}
	fn := expr.Id("dmg")
	if d.Stat != "" && d.Stat != "atk" {
		args[0] = expr.Bin("*", expr.AttrCalc(d.Stat), expr.Ratio(amount))
		fn = expr.Sel(expr.Id("dmg"), "basic")
	}
	if d.Ele != "" {
		args = append(args, expr.Str(d.Ele))
	}
	return expr.CallOf(fn, args...)
}

func tableNode(ts plan.TableSource) expr.Node {
	return expr.TableRef(ts.Talent, ts.Table)
}

var sentenceSplit = regexp.MustCompile(`[。；;！!？?\n]+|\.\s+`)

// sentences splits free text into sentences, dropping empty ones.
func sentences(s string) []string {
	var out []string
	for _, part := range sentenceSplit.Split(resolve.NormalizeName(s), -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// before returns up to n runes of s ending at byte offset end.
func before(s string, end, n int) string {
	start := end
	for i := 0; i < n && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:start])
		start -= size
	}
	return s[start:end]
}

// paramRefs lists the params keys a node reads and reports whether it
// reads anything else from the runtime context.
func paramRefs(n expr.Node) (keys []string, other bool) {
	seen := make(map[string]bool)
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	expr.Walk(n, func(n expr.Node) bool {
		switch v := n.(type) {
		case *expr.Member:
			if id, ok := v.X.(*expr.Ident); ok && id.Name == "params" {
				add(v.Name)
				return false
			}
		case *expr.Index:
			if id, ok := v.X.(*expr.Ident); ok && id.Name == "params" {
				if s, ok := v.Index.(*expr.StringLit); ok {
					add(s.Value)
					return false
				}
				other = true
				return false
			}
		case *expr.Ident, *expr.Call:
			other = true
		}
		return true
	})
	return keys, other
}

// readsParam reports whether n reads params.<key>.
func readsParam(n expr.Node, key string) bool {
	keys, _ := paramRefs(n)
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func checkRoot(e *expr.Expr) expr.Node {
	if e == nil {
		return nil
	}
	return e.Root
}

// literalValue returns the value of a numeric literal, including a
// negated one.
func literalValue(n expr.Node) (float64, bool) {
	switch v := n.(type) {
	case *expr.NumberLit:
		return v.Value, true
	case *expr.Unary:
		if lit, ok := v.X.(*expr.NumberLit); ok {
			switch v.Op {
			case "-":
				return -lit.Value, true
			case "+":
				return lit.Value, true
			}
		}
	}
	return 0, false
}
