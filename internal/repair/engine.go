// Package repair applies heuristic fixes to a validated calc plan. Each fix
// is a named Pass; the Engine runs them in declared order and checks the
// declared ordering constraints up front.
//
// Passes are conservative: when a fix cannot be justified from the input's
// tables, text or the plan itself, the pass leaves the plan alone. Any
// expression a pass synthesizes goes back through the validator's checks
// before it is stored.
package repair

import (
	"context"
	"fmt"

	"github.com/XuF163/metaGenerator-sub000/internal/config"
	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/logging"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
	"github.com/XuF163/metaGenerator-sub000/internal/resolve"
	"github.com/XuF163/metaGenerator-sub000/internal/validate"
)

// Pass is one named repair step.
type Pass struct {
	Name string
	Doc  string
	// After lists passes that must run earlier when both are enabled.
	After []string
	Run   func(ctx context.Context, c *Context) error
}

// Change records one edit made by a pass.
type Change struct {
	Pass   string
	Target string
	Msg    string
}

func (c Change) String() string {
	return fmt.Sprintf("[%s] %s: %s", c.Pass, c.Target, c.Msg)
}

// Report lists what the engine changed and what it refused to store.
type Report struct {
	Changes  []Change
	Rejected []Change
}

// Count returns the number of changes made by pass.
func (r *Report) Count(pass string) int {
	n := 0
	for _, c := range r.Changes {
		if c.Pass == pass {
			n++
		}
	}
	return n
}

// Context is the state a pass works on. Plan is mutated in place.
type Context struct {
	In     *plan.Input
	Prof   *game.Profile
	Known  resolve.Known
	Plan   *plan.Plan
	Rules  *Rules
	Limits validate.Limits

	pass   string
	report *Report
}

// Note records a change made by the running pass.
func (c *Context) Note(target, format string, args ...any) {
	ch := Change{Pass: c.pass, Target: target, Msg: fmt.Sprintf(format, args...)}
	c.report.Changes = append(c.report.Changes, ch)
	logging.RepairDebug("%s", ch)
}

// Accept checks a synthesized fragment for role and returns it wrapped.
// A fragment that fails is recorded as rejected and not returned.
func (c *Context) Accept(target string, n expr.Node, role expr.Role) (*expr.Expr, bool) {
	if err := validate.CheckNode(n, role, c.Prof, c.Known); err != nil {
		c.reject(target, expr.Print(n), err)
		return nil, false
	}
	return expr.New(n), true
}

// AcceptResult is Accept for a detail dmgExpr, which must also produce a
// structured result.
func (c *Context) AcceptResult(target string, n expr.Node, kind plan.Kind) (*expr.Expr, bool) {
	role := kind.Role()
	if !expr.IsResultShape(n, role) {
		c.reject(target, expr.Print(n), fmt.Errorf("must call %s() or build {dmg, avg}", role.Helper()))
		return nil, false
	}
	return c.Accept(target, n, role)
}

func (c *Context) reject(target, src string, err error) {
	ch := Change{Pass: c.pass, Target: target, Msg: fmt.Sprintf("rejected %s: %v", src, err)}
	c.report.Rejected = append(c.report.Rejected, ch)
	logging.RepairWarn("%s", ch)
}

// Engine runs an ordered pass list.
type Engine struct {
	passes   []Pass
	rules    *Rules
	limits   validate.Limits
	disabled map[string]bool
}

// NewEngine checks passes and builds an engine. Names must be unique,
// every After entry must name a pass, and it must come earlier in the list.
// Disabled names must exist.
func NewEngine(rules *Rules, passes []Pass, disabled ...string) (*Engine, error) {
	index := make(map[string]int, len(passes))
	for i, p := range passes {
		if p.Name == "" || p.Run == nil {
			return nil, fmt.Errorf("pass %d: missing name or run function", i)
		}
		if _, dup := index[p.Name]; dup {
			return nil, fmt.Errorf("pass %s declared twice", p.Name)
		}
		index[p.Name] = i
	}
	for i, p := range passes {
		for _, dep := range p.After {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("pass %s runs after unknown pass %s", p.Name, dep)
			}
			if j >= i {
				return nil, fmt.Errorf("pass %s must run after %s", p.Name, dep)
			}
		}
	}
	off := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("cannot disable unknown pass %s", name)
		}
		off[name] = true
	}
	return &Engine{passes: passes, rules: rules, limits: validate.DefaultLimits(), disabled: off}, nil
}

// New builds the default engine from the repair config section.
func New(cfg config.RepairConfig, limits config.LimitsConfig) (*Engine, error) {
	rules, err := LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	e, err := NewEngine(rules, DefaultPasses(), cfg.Disabled...)
	if err != nil {
		return nil, err
	}
	e.limits = validate.LimitsFrom(limits)
	return e, nil
}

// Passes returns the pass list in run order.
func (e *Engine) Passes() []Pass { return e.passes }

// Rules returns the registry the engine consults.
func (e *Engine) Rules() *Rules { return e.rules }

// Enabled reports whether the named pass will run.
func (e *Engine) Enabled(name string) bool { return !e.disabled[name] }

// Run applies every enabled pass to p in order.
func (e *Engine) Run(ctx context.Context, in *plan.Input, p *plan.Plan) (*Report, error) {
	timer := logging.StartTimer(logging.CategoryRepair, "Run")
	defer timer.Stop()

	report := &Report{}
	c := &Context{
		In:     in,
		Prof:   in.Profile(),
		Known:  in.Known(),
		Plan:   p,
		Rules:  e.rules,
		Limits: e.limits,
		report: report,
	}
	for _, pass := range e.passes {
		if e.disabled[pass.Name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		c.pass = pass.Name
		before := len(report.Changes)
		if err := pass.Run(ctx, c); err != nil {
			return report, fmt.Errorf("repair pass %s: %w", pass.Name, err)
		}
		if n := len(report.Changes) - before; n > 0 {
			logging.Repair("pass %s: %d change(s)", pass.Name, n)
		}
	}
	return report, nil
}

// DefaultPasses is the production pipeline.
func DefaultPasses() []Pass {
	return []Pass{
		{Name: "showcase", Doc: "replace rows and buffs of fingerprinted kits with a verified set", Run: showcasePass},
		{Name: "normalize-keys", Doc: "trim bucket tags, lowercase block tags, dedupe secondary tags", Run: normalizeKeys},
		{Name: "split-variants", Doc: "split two-part A/B tables into one row per part", Run: splitVariants},
		{Name: "scaling-stat", Doc: "infer the scaling stat from unit, text sample, block default, then description", Run: scalingStat},
		{Name: "delta-multiplier", Doc: "add multiplier-increase tables onto their base table", After: []string{"split-variants"}, Run: deltaMultiplier},
		{Name: "multi-hit", Doc: "multiply per-hit tables by the stated hit count on total rows", After: []string{"delta-multiplier"}, Run: multiHit},
		{Name: "state-routing", Doc: "route converted attacks to the bucket of the attack they count as", After: []string{"normalize-keys"}, Run: stateRouting},
		{Name: "break-damage", Doc: "turn toughness-break ratio rows into break reaction rows", Run: breakDamage},
		{Name: "sign-normalize", Doc: "make resistance shred and defense ignore values non-negative", Run: signNormalize},
		{Name: "derived-buffs", Doc: "synthesize buffs stated in tier-marked hints", After: []string{"sign-normalize"}, Run: derivedBuffs},
		{Name: "redundant-multiplier", Doc: "drop inline multipliers already modeled by a damage buff", After: []string{"derived-buffs", "multi-hit"}, Run: redundantMultiplier},
		{Name: "threshold-flags", Doc: "set the params flag named by a resource-threshold title", Run: thresholdFlags},
		{Name: "key-scope", Doc: "gate block-wide buffs tied to one table to that table's rows", After: []string{"normalize-keys", "state-routing"}, Run: keyScope},
		{Name: "relax-gates", Doc: "drop buff guards that only read params no row sets", After: []string{"threshold-flags", "key-scope"}, Run: relaxGates},
		{Name: "dedupe", Doc: "remove duplicate rows and buffs", After: []string{"split-variants", "break-damage"}, Run: dedupe},
		{Name: "default-key", Doc: "re-derive defDmgKey after bucket changes", After: []string{"state-routing", "dedupe"}, Run: defaultKey},
	}
}
