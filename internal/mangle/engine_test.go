package mangle

import (
	"context"
	"strings"
	"testing"
)

const gatePolicy = `
Decl param_set(Key) bound [/string].
Decl guard_param(Buff, Key) bound [/number, /string].
Decl live(Buff) bound [/number].
Decl dead(Buff) bound [/number].

live(B) :- guard_param(B, K), param_set(K).
dead(B) :- guard_param(B, _), !live(B).
`

func compile(t *testing.T) *Program {
	t.Helper()
	p, err := Compile(DefaultConfig(), gatePolicy)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return p
}

func TestCompileRejectsGarbage(t *testing.T) {
	if _, err := Compile(DefaultConfig(), `Decl broken(`); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRunUndeclaredPredicate(t *testing.T) {
	err := compile(t).NewRun().Add(Fact{Predicate: "unknown_pred", Args: []any{"x"}})
	if err == nil || !strings.Contains(err.Error(), "not declared") {
		t.Fatalf("Add() error = %v, want not declared", err)
	}
}

func TestRunArityMismatch(t *testing.T) {
	if err := compile(t).NewRun().Add(Fact{Predicate: "guard_param", Args: []any{int64(0)}}); err == nil {
		t.Fatal("expected arity error")
	}
}

func TestRunFactLimit(t *testing.T) {
	p, err := Compile(Config{FactLimit: 1}, gatePolicy)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	run := p.NewRun()
	err = run.Add(
		Fact{Predicate: "param_set", Args: []any{"a"}},
		Fact{Predicate: "param_set", Args: []any{"b"}},
	)
	if err == nil || !strings.Contains(err.Error(), "fact limit") {
		t.Fatalf("Add() error = %v, want fact limit", err)
	}
	if run.Facts() != 1 {
		t.Errorf("Facts() = %d, want 1", run.Facts())
	}
}

func TestRunDerivesNegatedRule(t *testing.T) {
	run := compile(t).NewRun()
	facts := []Fact{
		{Predicate: "param_set", Args: []any{"low"}},
		{Predicate: "guard_param", Args: []any{int64(0), "low"}},
		{Predicate: "guard_param", Args: []any{int64(1), "stacks"}},
		{Predicate: "guard_param", Args: []any{int64(2), "stacks"}},
		{Predicate: "guard_param", Args: []any{int64(2), "low"}},
		{Predicate: "guard_param", Args: []any{3, "flag"}},
	}
	if err := run.Add(facts...); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	dead, err := run.Query(context.Background(), "dead(B)")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(dead) != 2 {
		t.Fatalf("dead = %v, want two answers", dead)
	}
	if dead[0]["B"] != int64(1) || dead[1]["B"] != int64(3) {
		t.Errorf("dead = %v, want buffs 1 and 3", dead)
	}
	if run.Facts() != len(facts) {
		t.Errorf("Facts() = %d, want %d", run.Facts(), len(facts))
	}
}

func TestRunReevaluatesAfterAdd(t *testing.T) {
	ctx := context.Background()
	run := compile(t).NewRun()
	if err := run.Add(Fact{Predicate: "guard_param", Args: []any{int64(4), "flag"}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	dead, err := run.Query(ctx, "dead(B)")
	if err != nil || len(dead) != 1 {
		t.Fatalf("Query() = %v, %v; want one answer", dead, err)
	}

	if err := run.Add(Fact{Predicate: "param_set", Args: []any{"flag"}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	live, err := run.Query(ctx, "live(4)")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(live) != 1 || len(live[0]) != 0 {
		t.Errorf("live(4) = %v, want one empty binding", live)
	}
}

func TestRunsAreIsolated(t *testing.T) {
	p := compile(t)
	first := p.NewRun()
	if err := first.Add(Fact{Predicate: "guard_param", Args: []any{int64(0), "x"}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	dead, err := p.NewRun().Query(context.Background(), "dead(B)")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(dead) != 0 {
		t.Errorf("fresh run sees %v", dead)
	}
}

func TestQueryErrors(t *testing.T) {
	run := compile(t).NewRun()
	if _, err := run.Query(context.Background(), ""); err == nil {
		t.Error("expected error for empty query")
	}
	if _, err := run.Query(context.Background(), "nothing(X)"); err == nil {
		t.Error("expected error for undeclared predicate")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := run.Query(ctx, "dead(B)"); err != context.Canceled {
		t.Errorf("Query() error = %v, want context.Canceled", err)
	}
}
