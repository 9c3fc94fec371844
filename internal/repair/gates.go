package repair

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/logging"
	"github.com/XuF163/metaGenerator-sub000/internal/mangle"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
)

//go:embed gates.mg
var gatePolicy string

// gatePolicyProgram is compiled on first use and shared by every plan.
var gatePolicyProgram = sync.OnceValues(func() (*mangle.Program, error) {
	cfg := mangle.DefaultConfig()
	cfg.FactLimit = 5000
	p, err := mangle.Compile(cfg, gatePolicy)
	if err != nil {
		return nil, fmt.Errorf("gate policy: %w", err)
	}
	return p, nil
})

// relaxGates drops the guard of a baseline bonus buff when every params key
// the guard reads is set by no row and no default. Such a buff could never
// apply, which the model almost always intends as unconditional.
func relaxGates(ctx context.Context, c *Context) error {
	facts := gateFacts(c.Prof, c.Plan)
	if len(facts) == 0 {
		return nil
	}
	dead, err := deadGuards(ctx, facts)
	if err != nil {
		return err
	}
	for _, idx := range dead {
		if idx < 0 || idx >= len(c.Plan.Buffs) {
			continue
		}
		b := c.Plan.Buffs[idx]
		c.Note(buffTarget(idx, b), "dropped guard %s: no row sets its params", b.Check)
		b.Check = nil
	}
	return nil
}

// deadGuards returns the indexes of buffs whose guard can never hold, in
// ascending order.
func deadGuards(ctx context.Context, facts []mangle.Fact) ([]int, error) {
	program, err := gatePolicyProgram()
	if err != nil {
		return nil, err
	}
	run := program.NewRun()
	if err := run.Add(facts...); err != nil {
		return nil, fmt.Errorf("gate facts: %w", err)
	}
	answers, err := run.Query(ctx, "dead_guard(B)")
	if err != nil {
		return nil, fmt.Errorf("gate query: %w", err)
	}
	var out []int
	for _, a := range answers {
		if id, ok := a["B"].(int64); ok {
			out = append(out, int(id))
		}
	}
	sort.Ints(out)
	logging.RepairDebug("gate policy: %d facts, %d dead guards", run.Facts(), len(out))
	return out, nil
}

// gateFacts describes the plan's guarded buffs and set params. It returns
// nil when no buff has a params guard.
func gateFacts(prof *game.Profile, p *plan.Plan) []mangle.Fact {
	var facts []mangle.Fact
	guarded := false
	for i, b := range p.Buffs {
		if b.Canned != "" || b.Check == nil {
			continue
		}
		id := int64(i)
		keys, opaque := paramRefs(b.Check.Root)
		for _, k := range keys {
			facts = append(facts, mangle.Fact{Predicate: "guard_param", Args: []interface{}{id, k}})
			guarded = true
		}
		if opaque {
			facts = append(facts, mangle.Fact{Predicate: "guard_opaque", Args: []interface{}{id}})
		}
		if baselineBonus(prof, b) {
			facts = append(facts, mangle.Fact{Predicate: "baseline_bonus", Args: []interface{}{id}})
		}
	}
	if !guarded {
		return nil
	}
	set := p.SetParams()
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		facts = append(facts, mangle.Fact{Predicate: "param_set", Args: []interface{}{k}})
	}
	return facts
}

// baselineBonus reports whether b carries a percent, crit or shred entry,
// the kinds a kit applies at all times.
func baselineBonus(prof *game.Profile, b *plan.Buff) bool {
	for k := range b.Data {
		switch prof.ClassifyKey(k) {
		case game.KeyPercent, game.KeyCrit, game.KeyShred:
			return true
		}
	}
	return false
}
