// Package validate turns an untrusted model plan into a plan.Plan whose
// every field has passed type, vocabulary and expression checks.
//
// Bad fields are dropped and reported as Issues; a bad row or buff is
// dropped as a whole only when the field it cannot live without is bad.
// The two hard failures are ErrNoValidDetails and ErrMissingMainAttr.
package validate

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/XuF163/metaGenerator-sub000/internal/config"
	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/logging"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
	"github.com/XuF163/metaGenerator-sub000/internal/resolve"
)

var (
	// ErrNoValidDetails aborts generation: a plan without rows is useless.
	ErrNoValidDetails = errors.New("no valid details")

	// ErrMissingMainAttr aborts generation: mainAttr is load-bearing.
	ErrMissingMainAttr = errors.New("mainAttr missing")
)

// Issue is a soft, field-level problem. The field or row named by Path was
// dropped or rewritten.
type Issue struct {
	Path string
	Msg  string
}

func (i Issue) String() string { return i.Path + ": " + i.Msg }

// Limits caps plan sizes.
type Limits struct {
	MaxDetails int
	MaxBuffs   int
	MaxParams  int
}

// DefaultLimits returns the production caps.
func DefaultLimits() Limits {
	return Limits{MaxDetails: 20, MaxBuffs: 30, MaxParams: 12}
}

// LimitsFrom converts the config section. Unset caps take the defaults.
func LimitsFrom(c config.LimitsConfig) Limits {
	l := DefaultLimits()
	if c.MaxDetails > 0 {
		l.MaxDetails = c.MaxDetails
	}
	if c.MaxBuffs > 0 {
		l.MaxBuffs = c.MaxBuffs
	}
	if c.MaxParams > 0 {
		l.MaxParams = c.MaxParams
	}
	return l
}

// Validator validates raw plans. The zero value uses DefaultLimits.
type Validator struct {
	Limits Limits
}

// New creates a Validator.
func New(limits Limits) *Validator {
	return &Validator{Limits: limits}
}

func (v *Validator) limits() Limits {
	if v == nil || v.Limits.MaxDetails == 0 {
		return DefaultLimits()
	}
	return v.Limits
}

// session carries the per-call state of one validation.
type session struct {
	in     *plan.Input
	prof   *game.Profile
	known  resolve.Known
	limits Limits
	issues []Issue
}

func (s *session) issue(path, format string, args ...any) {
	is := Issue{Path: path, Msg: fmt.Sprintf(format, args...)}
	s.issues = append(s.issues, is)
	logging.ValidateDebug("%s", is)
}

// Validate checks raw against in. On success the returned plan satisfies
// every structural invariant; issues lists what was dropped on the way.
func (v *Validator) Validate(in *plan.Input, raw *plan.RawPlan) (*plan.Plan, []Issue, error) {
	s := &session{
		in:     in,
		prof:   in.Profile(),
		known:  in.Known(),
		limits: v.limits(),
	}
	timer := logging.StartTimer(logging.CategoryValidate, "validate")
	defer timer.Stop()

	p := &plan.Plan{}
	for i, r := range raw.Details() {
		d := s.detail(fmt.Sprintf("details[%d]", i), r)
		if d == nil {
			continue
		}
		if len(p.Details) == s.limits.MaxDetails {
			s.issue(fmt.Sprintf("details[%d]", i), "dropped: more than %d details", s.limits.MaxDetails)
			continue
		}
		p.Details = append(p.Details, d)
	}
	if len(p.Details) == 0 {
		return nil, s.issues, ErrNoValidDetails
	}

	p.MainAttr = s.mainAttr(raw.Get("mainAttr"))
	if p.MainAttr == "" {
		return nil, s.issues, ErrMissingMainAttr
	}

	for i, r := range raw.Buffs() {
		b := s.buff(fmt.Sprintf("buffs[%d]", i), r)
		if b == nil {
			continue
		}
		if len(p.Buffs) == s.limits.MaxBuffs {
			s.issue(fmt.Sprintf("buffs[%d]", i), "dropped: more than %d buffs", s.limits.MaxBuffs)
			continue
		}
		p.Buffs = append(p.Buffs, b)
	}

	if k := strings.TrimSpace(raw.Get("defDmgKey").String()); k != "" {
		if p.DmgKeys()[k] {
			p.DefDmgKey = k
		} else {
			s.issue("defDmgKey", "%q is not produced by any detail", k)
		}
	}
	p.DefParams = s.params("defParams", raw.Get("defParams"))

	logging.Validate("validated plan: %d details, %d buffs, %d issues", len(p.Details), len(p.Buffs), len(s.issues))
	return p, s.issues, nil
}

func (s *session) detail(path string, r gjson.Result) *plan.Detail {
	if !r.IsObject() {
		s.issue(path, "dropped: not an object")
		return nil
	}
	d := &plan.Detail{
		Title: strings.TrimSpace(r.Get("title").String()),
		Kind:  plan.ParseKind(r.Get("kind").String()),
	}
	reactionName := strings.TrimSpace(r.Get("reaction").String())
	if r.Get("kind").String() == "" && reactionName != "" && r.Get("table").String() == "" {
		d.Kind = plan.KindReaction
	}

	if d.Kind == plan.KindReaction {
		if reactionName == "" {
			reactionName = strings.TrimSpace(r.Get("table").String())
		}
		id, ok := s.prof.CanonicalReaction(reactionName)
		if !ok || !s.prof.IsTransformative(id) {
			s.issue(path, "dropped: unknown reaction %q", reactionName)
			return nil
		}
		d.Source = plan.ReactionSource{ID: id}
		if d.Title == "" {
			d.Title = id
		}
	} else if !s.tableSource(path, d, r) {
		return nil
	}

	if k := r.Get("key"); k.Type == gjson.String {
		d.SetKey(strings.TrimSpace(k.String()))
	}
	if d.Kind != plan.KindReaction {
		d.Ele = s.element(path+".ele", r.Get("ele").String())
	}
	if st := strings.TrimSpace(r.Get("stat").String()); st != "" {
		if id, ok := s.prof.NormalizeStat(st); ok {
			d.Stat = id
		} else {
			s.issue(path+".stat", "dropped: %q is not a stat bucket", st)
		}
	}
	if pk := r.Get("pick"); pk.Exists() {
		d.Pick = s.pick(path+".pick", d, pk)
	}
	d.Params = s.params(path+".params", r.Get("params"))
	d.Cons = tier(r.Get("cons"))

	if src := strings.TrimSpace(r.Get("check").String()); src != "" {
		d.Check = s.expr(path+".check", "detail.check", src, expr.RoleGuard)
	}
	if src := strings.TrimSpace(r.Get("dmgExpr").String()); src != "" {
		role := d.Kind.Role()
		if e := s.expr(path+".dmgExpr", "detail.dmgExpr", src, role); e != nil {
			if expr.IsResultShape(e.Root, role) {
				d.DmgExpr = e
			} else {
				s.issue(path+".dmgExpr", "detail.dmgExpr must call %s() or build {dmg, avg}", role.Helper())
			}
		}
	}
	return d
}

// tableSource resolves talent/table into d.Source, reclassifying heal and
// shield rows and choosing the structured sibling variant.
func (s *session) tableSource(path string, d *plan.Detail, r gjson.Result) bool {
	talent := strings.ToLower(strings.TrimSpace(r.Get("talent").String()))
	table := strings.TrimSpace(r.Get("table").String())
	if table == "" {
		s.issue(path, "dropped: missing table")
		return false
	}
	name, ok := s.known.Resolve(talent, table)
	if !ok {
		block, found, ok := s.known.Find(talent, table)
		if !ok {
			if !s.known.HasBlock(talent) {
				s.issue(path, "dropped: %s %q", resolve.ErrUnsupportedTalentKey, talent)
			} else {
				s.issue(path, "dropped: %s %q", resolve.ErrUnknownTable, table)
			}
			return false
		}
		s.issue(path+".talent", "table %q found in block %q, not %q", found, block, talent)
		talent, name = block, found
	}

	if d.Kind == plan.KindDamage {
		switch {
		case resolve.IsHealName(name) || resolve.IsHealName(d.Title):
			d.Kind = plan.KindHeal
		case resolve.IsShieldName(name) || resolve.IsShieldName(d.Title):
			d.Kind = plan.KindShield
		}
	}

	if !r.Get("dmgExpr").Exists() {
		name = s.preferVariant(talent, name, d.Title)
	}
	d.Source = plan.TableSource{Talent: talent, Table: name}
	if d.Title == "" {
		d.Title = name
	}
	return true
}

// preferVariant picks between a table and its "2"-suffixed sibling. The
// sibling keeps array structure the renderer needs; a per-hit title wants
// the plain aggregate table.
func (s *session) preferVariant(talent, name, title string) string {
	perHit := resolve.IsPerHitTitle(title)
	if base, ok := resolve.SiblingBase(name); ok && perHit {
		if b, ok := s.known.Resolve(talent, base); ok {
			return b
		}
	}
	if perHit {
		return name
	}
	sib, ok := resolve.StructuredSibling(s.known[talent], name)
	if !ok {
		return name
	}
	sibSample, ok := s.in.Sample(talent, sib)
	if !ok || !sibSample.IsArray {
		return name
	}
	if own, ok := s.in.Sample(talent, name); ok && own.IsArray {
		return name
	}
	return sib
}

func (s *session) element(path, raw string) string {
	e := strings.TrimSpace(raw)
	if e == "" {
		return ""
	}
	if id, ok := s.prof.CanonicalReaction(e); ok {
		if s.prof.IsTransformative(id) {
			s.issue(path, "dropped: %q is a reaction, use kind reaction", e)
			return ""
		}
		if s.prof.ValidElement(id) {
			return id
		}
	}
	if low := strings.ToLower(e); s.prof.ValidElement(low) {
		return low
	}
	s.issue(path, "dropped: invalid element %q", e)
	return ""
}

func (s *session) pick(path string, d *plan.Detail, v gjson.Result) *int {
	ts, ok := d.Table()
	if !ok || v.Type != gjson.Number || v.Float() != math.Trunc(v.Float()) {
		s.issue(path, "dropped: pick needs an integer and a table row")
		return nil
	}
	n := int(v.Int())
	parts := resolve.SlashParts(ts.Table)
	sample, ok := s.in.Sample(ts.Talent, ts.Table)
	switch {
	case parts == nil:
		s.issue(path, "dropped: %q is not a multi-variant table", ts.Table)
	case !ok || !sample.IsArray || sample.Len() != len(parts):
		s.issue(path, "dropped: no sample array with %d components", len(parts))
	case n < 0 || n >= len(parts):
		s.issue(path, "dropped: pick %d out of range", n)
	default:
		return &n
	}
	return nil
}

// params keeps ASCII-identifier keys with primitive values, in document
// order, up to the per-row cap.
func (s *session) params(path string, v gjson.Result) plan.Params {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	if !v.IsObject() {
		s.issue(path, "dropped: params must be an object")
		return nil
	}
	out := plan.Params{}
	v.ForEach(func(k, val gjson.Result) bool {
		key := k.String()
		if !expr.IsASCIIIdent(key) {
			s.issue(path, "dropped key %q: not an ASCII identifier", key)
			return true
		}
		if len(out) == s.limits.MaxParams {
			s.issue(path, "dropped key %q: more than %d params", key, s.limits.MaxParams)
			return true
		}
		switch val.Type {
		case gjson.Number:
			out[key] = plan.Number(val.Float())
		case gjson.True, gjson.False:
			out[key] = plan.Flag(val.Bool())
		case gjson.String:
			out[key] = plan.Text(val.String())
		default:
			s.issue(path, "dropped key %q: value must be a number, boolean or string", key)
		}
		return true
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// expr parses and checks a fragment. field names it in diagnostics, e.g.
// "detail.dmgExpr".
func (s *session) expr(path, field, src string, role expr.Role) *expr.Expr {
	e, err := CheckExpr(src, role, s.prof, s.known)
	if err != nil {
		s.issue(path, "dropped: %s", Describe(field, err))
		return nil
	}
	return e
}

func (s *session) buff(path string, r gjson.Result) *plan.Buff {
	if r.Type == gjson.String {
		id, ok := s.prof.CanonicalReaction(r.String())
		if !ok {
			s.issue(path, "dropped: unknown canned buff %q", r.String())
			return nil
		}
		return &plan.Buff{Canned: id}
	}
	if !r.IsObject() {
		s.issue(path, "dropped: not an object")
		return nil
	}
	data := r.Get("data")
	if !data.IsObject() {
		s.issue(path, "dropped: buff.data missing")
		return nil
	}
	b := &plan.Buff{
		Title: strings.TrimSpace(r.Get("title").String()),
		Sort:  int(r.Get("sort").Int()),
		Cons:  tier(r.Get("cons")),
		Tree:  tier(r.Get("tree")),
		Data:  make(map[string]plan.BuffValue),
	}
	if src := strings.TrimSpace(r.Get("check").String()); src != "" {
		b.Check = s.expr(path+".check", "buff.check", src, expr.RoleGuard)
	}
	data.ForEach(func(k, val gjson.Result) bool {
		key := k.String()
		p := path + ".data." + key
		if !s.prof.IsBuffKey(key) {
			s.issue(p, "dropped: %q is not a buff-data key", key)
			return true
		}
		if bv, ok := s.buffValue(p, val); ok {
			b.Data[key] = bv
		}
		return true
	})
	if len(b.Data) == 0 {
		s.issue(path, "dropped: no valid data entries")
		return nil
	}
	return b
}

func (s *session) buffValue(path string, v gjson.Result) (plan.BuffValue, bool) {
	switch v.Type {
	case gjson.Number:
		if f := v.Float(); !math.IsInf(f, 0) && !math.IsNaN(f) {
			return plan.Literal(f), true
		}
	case gjson.String:
		src := strings.TrimSpace(v.String())
		if f, err := strconv.ParseFloat(src, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return plan.Literal(f), true
		}
		if e := s.expr(path, "buff.data", src, expr.RoleBuff); e != nil {
			if lit, ok := e.Root.(*expr.NumberLit); ok {
				return plan.Literal(lit.Value), true
			}
			return plan.Computed(e), true
		}
		return plan.BuffValue{}, false
	}
	s.issue(path, "dropped: value must be a number or expression")
	return plan.BuffValue{}, false
}

// mainAttr accepts "atk,cpct", "atk cpct" or ["atk", "cpct"] and returns
// the deduplicated canonical list.
func (s *session) mainAttr(v gjson.Result) string {
	var tokens []string
	if v.IsArray() {
		v.ForEach(func(_, t gjson.Result) bool {
			tokens = append(tokens, t.String())
			return true
		})
	} else {
		tokens = strings.FieldsFunc(v.String(), func(r rune) bool {
			return r == ',' || r == ' ' || r == '，' || r == '/'
		})
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		id, ok := s.prof.NormalizeMainAttr(t)
		if !ok {
			s.issue("mainAttr", "dropped token %q", t)
			continue
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return strings.Join(out, ",")
}

// tier reads a cons/tree tier in [0, 6]; anything else is 0.
func tier(v gjson.Result) int {
	if v.Type != gjson.Number {
		return 0
	}
	n := v.Int()
	if n < 0 || n > 6 {
		return 0
	}
	return int(n)
}
