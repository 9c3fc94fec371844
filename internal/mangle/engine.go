// Package mangle evaluates small Datalog policies over facts extracted from
// a plan. A Program is parsed and analyzed once and is safe to share; every
// plan gets its own Run with a private fact store.
package mangle

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"github.com/XuF163/metaGenerator-sub000/internal/logging"
)

// Config bounds one run.
type Config struct {
	// FactLimit caps the base facts a run accepts.
	FactLimit int
	// DerivedLimit caps the facts evaluation may create.
	DerivedLimit int
}

// DefaultConfig returns limits sized for one plan.
func DefaultConfig() Config {
	return Config{FactLimit: 10000, DerivedLimit: 50000}
}

// Fact is one ground atom. Args are strings, int64, int, float64 or bool;
// a string starting with "/" is a name constant.
type Fact struct {
	Predicate string
	Args      []any
}

// Binding maps query variables to the values of one answer.
type Binding map[string]any

// Program is an analyzed policy.
type Program struct {
	cfg   Config
	info  *analysis.ProgramInfo
	preds map[string]ast.PredicateSym
}

// Compile parses and analyzes source.
func Compile(cfg Config, source string) (*Program, error) {
	unit, err := parse.Unit(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze policy: %w", err)
	}
	p := &Program{cfg: cfg, info: info, preds: make(map[string]ast.PredicateSym, len(info.Decls))}
	for sym := range info.Decls {
		p.preds[sym.Symbol] = sym
	}
	return p, nil
}

// Run is one evaluation of a Program. A Run is not safe for concurrent use.
type Run struct {
	p         *Program
	store     factstore.SimpleInMemoryStore
	facts     int
	evaluated bool
}

// NewRun starts an empty run.
func (p *Program) NewRun() *Run {
	return &Run{p: p, store: factstore.NewSimpleInMemoryStore()}
}

// Add inserts base facts. Facts added after a query trigger re-evaluation
// on the next one.
func (r *Run) Add(facts ...Fact) error {
	for _, f := range facts {
		if lim := r.p.cfg.FactLimit; lim > 0 && r.facts >= lim {
			return fmt.Errorf("fact limit of %d exceeded", lim)
		}
		atom, err := r.p.atom(f)
		if err != nil {
			return err
		}
		if r.store.Add(atom) {
			r.facts++
			r.evaluated = false
		}
	}
	return nil
}

// Facts returns the number of base facts added.
func (r *Run) Facts() int { return r.facts }

// Query evaluates the policy if needed and returns the answers to query,
// written in Mangle notation such as "dead_guard(B)". Answers are ordered
// by their printed form.
func (r *Run) Query(ctx context.Context, query string) ([]Binding, error) {
	atom, err := parse.Atom(strings.TrimSuffix(strings.TrimSpace(query), "."))
	if err != nil {
		return nil, fmt.Errorf("failed to parse query %q: %w", query, err)
	}
	if _, ok := r.p.info.Decls[atom.Predicate]; !ok {
		return nil, fmt.Errorf("predicate %s/%d is not declared", atom.Predicate.Symbol, atom.Predicate.Arity)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.evaluated {
		var opts []mengine.EvalOption
		if lim := r.p.cfg.DerivedLimit; lim > 0 {
			opts = append(opts, mengine.WithCreatedFactLimit(lim))
		}
		if err := mengine.EvalProgram(r.p.info, r.store, opts...); err != nil {
			return nil, fmt.Errorf("policy evaluation: %w", err)
		}
		r.evaluated = true
	}

	type answer struct {
		key string
		b   Binding
	}
	var out []answer
	err = r.store.GetFacts(atom, func(fact ast.Atom) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := make(Binding)
		for i, arg := range atom.Args {
			if v, ok := arg.(ast.Variable); ok && v.Symbol != "_" {
				b[v.Symbol] = value(fact.Args[i])
			}
		}
		out = append(out, answer{key: fact.String(), b: b})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	logging.KernelDebug("query %s: %d answers over %d facts", query, len(out), r.facts)

	res := make([]Binding, len(out))
	for i, a := range out {
		res[i] = a.b
	}
	return res, nil
}

func (p *Program) atom(f Fact) (ast.Atom, error) {
	sym, ok := p.preds[f.Predicate]
	if !ok {
		return ast.Atom{}, fmt.Errorf("predicate %s is not declared", f.Predicate)
	}
	if len(f.Args) != sym.Arity {
		return ast.Atom{}, fmt.Errorf("predicate %s expects %d args, got %d", f.Predicate, sym.Arity, len(f.Args))
	}
	bounds := p.bounds(sym)
	args := make([]ast.BaseTerm, len(f.Args))
	for i, a := range f.Args {
		bound := ""
		if i < len(bounds) {
			bound = bounds[i]
		}
		t, err := term(a, bound)
		if err != nil {
			return ast.Atom{}, fmt.Errorf("predicate %s arg %d: %w", f.Predicate, i, err)
		}
		args[i] = t
	}
	return ast.Atom{Predicate: sym, Args: args}, nil
}

// bounds returns the first declared type bound of each argument, such as
// "/string", or "" where none is declared.
func (p *Program) bounds(sym ast.PredicateSym) []string {
	decl := p.info.Decls[sym]
	if decl == nil || len(decl.Bounds) == 0 {
		return nil
	}
	out := make([]string, len(decl.Bounds[0].Bounds))
	for i, b := range decl.Bounds[0].Bounds {
		if c, ok := b.(ast.Constant); ok {
			out[i] = c.Symbol
		}
	}
	return out
}

func term(a any, bound string) (ast.BaseTerm, error) {
	switch v := a.(type) {
	case string:
		switch {
		case bound == "/string":
			return ast.String(v), nil
		case strings.HasPrefix(v, "/"):
			return ast.Name(v)
		case bound == "/name":
			return ast.Name("/" + v)
		}
		return ast.String(v), nil
	case int:
		return ast.Number(int64(v)), nil
	case int64:
		return ast.Number(v), nil
	case float64:
		if bound == "/number" && v == math.Trunc(v) {
			return ast.Number(int64(v)), nil
		}
		return ast.Float64(v), nil
	case bool:
		if v {
			return ast.TrueConstant, nil
		}
		return ast.FalseConstant, nil
	}
	return nil, fmt.Errorf("unsupported argument type %T", a)
}

func value(t ast.BaseTerm) any {
	c, ok := t.(ast.Constant)
	if !ok {
		return fmt.Sprint(t)
	}
	switch c.Type {
	case ast.NumberType:
		return c.NumValue
	case ast.Float64Type:
		return math.Float64frombits(uint64(c.NumValue))
	case ast.StringType, ast.NameType:
		return c.Symbol
	}
	return c.String()
}
