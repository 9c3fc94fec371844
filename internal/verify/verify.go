// Package verify runs a rendered module against synthetic runtime
// stand-ins and rejects modules that throw or produce implausible numbers.
//
// Every pass evaluates every detail check and computation and every buff
// check and data value. Passes differ in the seed every talent table
// yields: a small ratio-scale value and a moderate percentage-scale value,
// so a unit-conversion mistake that hides at one magnitude shows at the
// other. Odd passes also run at the top cons tier.
package verify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/XuF163/metaGenerator-sub000/internal/config"
	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/logging"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
	"github.com/XuF163/metaGenerator-sub000/internal/render"
)

// ErrVerification is wrapped by every Failure.
var ErrVerification = errors.New("generated calc module invalid")

// maxCons is the cons tier odd passes run at.
const maxCons = 6

// Failure identifies the row or buff and the pass that failed.
type Failure struct {
	Pass   int
	Seed   float64
	Target string
	Msg    string
	// Err is the underlying cause when there is one, such as an evaluator
	// error or a context error.
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s (pass %d, seed %g): %s", ErrVerification, f.Target, f.Pass+1, f.Seed, f.Msg)
}

// Unwrap exposes ErrVerification and the cause.
func (f *Failure) Unwrap() []error {
	if f.Err != nil {
		return []error{ErrVerification, f.Err}
	}
	return []error{ErrVerification}
}

// Bounds are order-of-magnitude plausibility guards, not balance checks.
type Bounds struct {
	DamageCeiling float64
	CritMin       float64
	CritMax       float64
	PercentMin    float64
	PercentMax    float64
	// NegativeFloor flags percent-like values below it.
	NegativeFloor float64
}

// Verifier checks rendered modules. A Verifier is safe for concurrent use.
type Verifier struct {
	Bounds     Bounds
	Seeds      []float64
	Timeout    time.Duration
	StepBudget int
}

// FromConfig builds a Verifier from the verify section of cfg.
func FromConfig(cfg *config.Config) *Verifier {
	v := cfg.Verify
	return &Verifier{
		Bounds: Bounds{
			DamageCeiling: v.DamageCeiling,
			CritMin:       v.CritMin,
			CritMax:       v.CritMax,
			PercentMin:    v.PercentMin,
			PercentMax:    v.PercentMax,
			NegativeFloor: v.NegativeFloor,
		},
		Seeds:      append([]float64(nil), v.Seeds...),
		Timeout:    cfg.GetVerifyTimeout(),
		StepBudget: v.StepBudget,
	}
}

// Default returns a Verifier with the default configuration.
func Default() *Verifier {
	return FromConfig(config.DefaultConfig())
}

// PassReport summarizes one synthetic pass.
type PassReport struct {
	Seed        float64
	Cons        int
	Evaluations int
	Steps       int
	MaxDamage   float64
}

// Report is the result of a successful verification.
type Report struct {
	Passes []PassReport
}

// Verify runs every pass over m. The first failure aborts verification.
// Evaluation runs under the wall-clock guard; a guard or context expiry is
// reported as a Failure whose Err is the context error.
func (v *Verifier) Verify(ctx context.Context, m *render.Module, in *plan.Input) (*Report, error) {
	timer := logging.StartTimer(logging.CategoryVerify, "verify")
	defer timer.Stop()

	timeout := v.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, &Failure{Target: "module", Msg: "not started", Err: err}
	}

	type outcome struct {
		report *Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &Failure{Target: "module", Msg: fmt.Sprintf("evaluation panicked: %v", r)}}
			}
		}()
		r, err := v.run(ctx, m, in)
		done <- outcome{r, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			logging.VerifyWarn("%v", out.err)
			return nil, out.err
		}
		logging.Verify("verified %d details, %d buffs over %d passes", len(m.Details), len(m.Buffs), len(out.report.Passes))
		return out.report, nil
	case <-ctx.Done():
		err := &Failure{Target: "module", Msg: fmt.Sprintf("wall-clock guard of %v exceeded", timeout), Err: ctx.Err()}
		logging.VerifyWarn("%v", err)
		return nil, err
	}
}

func (v *Verifier) run(ctx context.Context, m *render.Module, in *plan.Input) (*Report, error) {
	seeds := v.Seeds
	if len(seeds) == 0 {
		seeds = config.DefaultConfig().Verify.Seeds
	}
	known := knownParams(m)
	report := &Report{}
	for i, seed := range seeds {
		p := &pass{
			v:     v,
			ctx:   ctx,
			m:     m,
			in:    in,
			prof:  game.For(m.Game),
			index: i,
			seed:  seed,
			known: known,
			ev:    &expr.Evaluator{Budget: v.StepBudget},
			out:   PassReport{Seed: seed},
		}
		if i%2 == 1 {
			p.cons = maxCons
		}
		p.out.Cons = p.cons
		if err := p.run(); err != nil {
			return nil, err
		}
		p.out.Steps = p.ev.Steps()
		logging.VerifyDebug("pass %d (seed %g, cons %d): %d evaluations, %d steps", i+1, seed, p.cons, p.out.Evaluations, p.out.Steps)
		report.Passes = append(report.Passes, p.out)
	}
	return report, nil
}

// knownParams maps every params key the module sets to the first value
// set for it: defParams first, then rows in order.
func knownParams(m *render.Module) plan.Params {
	known := m.DefParams.Clone()
	if known == nil {
		known = plan.Params{}
	}
	for _, row := range m.Details {
		for _, k := range row.Params.Keys() {
			if _, ok := known[k]; !ok {
				known[k] = row.Params[k]
			}
		}
	}
	return known
}

// pass is one synthetic-context evaluation of the whole module.
type pass struct {
	v     *Verifier
	ctx   context.Context
	m     *render.Module
	in    *plan.Input
	prof  *game.Profile
	index int
	seed  float64
	cons  int
	known plan.Params
	ev    *expr.Evaluator
	out   PassReport
}

func (p *pass) fail(target, format string, args ...any) error {
	return &Failure{Pass: p.index, Seed: p.seed, Target: target, Msg: fmt.Sprintf(format, args...)}
}

// env builds the runtime context for one closure. helper is the emission
// helper in scope, or "".
func (p *pass) env(own plan.Params, helper string) expr.Env {
	env := expr.Env{
		"talent":  expr.ObjectValue(talentStandIn{in: p.in, seed: p.seed}),
		"attr":    expr.ObjectValue(attrStandIn{}),
		"calc":    expr.FuncValue(func(args []expr.Value) (expr.Value, error) { return expr.NumberValue(arg(args, 0)), nil }, nil),
		"params":  expr.ObjectValue(paramsStandIn{own: own, known: p.known}),
		"cons":    expr.NumberValue(float64(p.cons)),
		"weapon":  expr.ObjectValue(proxy{value: 1}),
		"trees":   expr.ObjectValue(proxy{value: 1}),
		"element": expr.StringValue(p.in.Elem),
		"Math":    expr.MathObject,
		"toRatio": expr.FuncValue(func(args []expr.Value) (expr.Value, error) { return expr.NumberValue(p.m.ToRatio(arg(args, 0))), nil }, nil),
	}
	if helper != "" {
		env[helper] = helpers(p.m.ToRatio)[helper]
	}
	return env
}

func (p *pass) eval(target string, n expr.Node, env expr.Env) (expr.Value, error) {
	p.out.Evaluations++
	v, err := p.ev.Eval(p.ctx, n, env)
	if err != nil {
		return expr.Undefined, &Failure{Pass: p.index, Seed: p.seed, Target: target, Msg: err.Error(), Err: err}
	}
	return v, nil
}

func (p *pass) run() error {
	for i, row := range p.m.Details {
		if err := p.detail(i, row); err != nil {
			return err
		}
	}
	for _, own := range p.paramSets() {
		for i, b := range p.m.Buffs {
			if err := p.buff(i, b, own); err != nil {
				return err
			}
		}
	}
	return nil
}

// rowParams merges defParams under the row's own params.
func (p *pass) rowParams(row render.Row) plan.Params {
	out := p.m.DefParams.Clone()
	if out == nil {
		out = plan.Params{}
	}
	for k, v := range row.Params {
		out[k] = v
	}
	return out
}

// paramSets lists the distinct params maps buffs are evaluated under, one
// per distinct row, in row order.
func (p *pass) paramSets() []plan.Params {
	seen := make(map[string]bool)
	var out []plan.Params
	for _, row := range p.m.Details {
		own := p.rowParams(row)
		sig := fmt.Sprint(own)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, own)
	}
	return out
}

func (p *pass) detail(i int, row render.Row) error {
	target := fmt.Sprintf("details[%d] %q", i, row.Title)
	own := p.rowParams(row)
	if row.Check != nil {
		if _, err := p.eval(target+" check", row.Check.Root, p.env(own, "")); err != nil {
			return err
		}
	}
	if row.Dmg == nil {
		return p.fail(target+" dmg", "row has no computation")
	}
	v, err := p.eval(target+" dmg", row.Dmg.Root, p.env(own, row.Kind.Role().Helper()))
	if err != nil {
		return err
	}
	return p.checkResult(target+" dmg", v)
}

// checkResult accepts a number or a record carrying dmg and/or avg; every
// number must be finite, non-negative and under the ceiling.
func (p *pass) checkResult(target string, v expr.Value) error {
	var nums map[string]float64
	switch {
	case v.IsNumeric():
		nums = map[string]float64{"value": v.ToNumber()}
	case v.Kind == expr.KindObject:
		nums = make(map[string]float64)
		for _, k := range []string{"dmg", "avg"} {
			f, err := v.Obj.Get(expr.StringValue(k))
			if err != nil {
				return p.fail(target, "%v", err)
			}
			if f.Kind != expr.KindUndefined {
				nums[k] = f.ToNumber()
			}
		}
		if len(nums) == 0 {
			return p.fail(target, "result has neither dmg nor avg")
		}
	default:
		return p.fail(target, "returned %s, want a number or { dmg, avg }", v.Kind)
	}
	for _, k := range []string{"value", "dmg", "avg"} {
		f, ok := nums[k]
		if !ok {
			continue
		}
		switch {
		case math.IsNaN(f) || math.IsInf(f, 0):
			return p.fail(target, "%s is not finite (%v)", k, f)
		case f < 0:
			return p.fail(target, "%s is negative (%g)", k, f)
		case f > p.v.Bounds.DamageCeiling:
			return p.fail(target, "%s %g exceeds ceiling %g", k, f, p.v.Bounds.DamageCeiling)
		}
		if f > p.out.MaxDamage {
			p.out.MaxDamage = f
		}
	}
	return nil
}

func (p *pass) buff(i int, b render.BuffRow, own plan.Params) error {
	if b.Canned != "" {
		return nil
	}
	target := fmt.Sprintf("buffs[%d] %q", i, b.Title)
	env := p.env(own, "")
	if b.Check != nil {
		if _, err := p.eval(target+" check", b.Check.Root, env); err != nil {
			return err
		}
	}
	for _, e := range b.Data {
		t := target + " data." + e.Key
		var f float64
		if e.Value.IsLiteral() {
			f = e.Value.Num
		} else {
			v, err := p.eval(t, e.Value.Expr.Root, env)
			if err != nil {
				return err
			}
			if !v.IsNumeric() {
				return p.fail(t, "returned %s, want a number", v.Kind)
			}
			f = v.ToNumber()
		}
		if err := p.checkBuffValue(t, e, f); err != nil {
			return err
		}
	}
	return nil
}

// checkBuffValue bounds a data value by its key class. Values read from
// talent tables carry the synthetic seed, so only their finiteness says
// anything about the module.
func (p *pass) checkBuffValue(target string, e render.DataEntry, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return p.fail(target, "value is not finite (%v)", f)
	}
	if !e.Value.IsLiteral() && readsTalent(e.Value.Expr.Root) {
		return nil
	}
	b := p.v.Bounds
	switch p.prof.ClassifyKey(e.Key) {
	case game.KeyCrit:
		if f < b.CritMin || f > b.CritMax {
			return p.fail(target, "crit value %g outside [%g, %g]", f, b.CritMin, b.CritMax)
		}
	case game.KeyPercent, game.KeyShred:
		if f < b.PercentMin || f > b.PercentMax {
			return p.fail(target, "percent value %g outside [%g, %g]", f, b.PercentMin, b.PercentMax)
		}
		if f < b.NegativeFloor {
			return p.fail(target, "percent value %g below %g reads as a misread penalty", f, b.NegativeFloor)
		}
	}
	return nil
}

func readsTalent(n expr.Node) bool {
	found := false
	expr.Walk(n, func(n expr.Node) bool {
		if id, ok := n.(*expr.Ident); ok && id.Name == "talent" {
			found = true
		}
		return !found
	})
	return found
}
