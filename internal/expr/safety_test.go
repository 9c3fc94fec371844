package expr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statBuckets(name string) bool {
	switch name {
	case "atk", "hp", "def", "mastery":
		return true
	}
	return false
}

func TestSafetyGate(t *testing.T) {
	tests := []struct {
		in    string
		guard bool
		value bool
	}{
		{"params.stacks >= 2", true, true},
		{"cons >= 2 && params.half === true", true, true},
		{`dmg(talent.e["Strike"], "e")`, true, true},
		{"{ dmg: 1, avg: 2 }", false, true},
		{"[1, 2]", false, true},
		{"a; b", false, false},
		{"a // comment", false, false},
		{"`t`", false, false},
		{"() => 1", false, false},
		{"function () { return 1 }", false, false},
		{"process.exit(1)", false, false},
		{"globalThis", false, false},
		{"this.x", false, false},
		{"require('fs')", false, false},
		{"a = 1", false, false},
		{"a == 1", true, true},
		{`talent["constructor"]`, false, false},
		{"x.__proto__", false, false},
		{"{ constructor: 1 }", false, false},
		{"eval('1')", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.guard, IsSafeGuardExpr(tt.in), "guard")
			assert.Equal(t, tt.value, IsSafeValueExpr(tt.in), "value")
		})
	}
}

func TestCheckStructure(t *testing.T) {
	damage := NewScope(RoleDamage, statBuckets)
	tests := []struct {
		name  string
		in    string
		scope Scope
		want  []ViolationType
	}{
		{"emission", `dmg(talent.e["Strike"], "e")`, damage, nil},
		{"basic mode", `dmg.basic(calc(attr.hp) * toRatio(talent.e["Strike"]), "e")`, damage, nil},
		{"math", "Math.max(1, params.n) * Math.PI", damage, nil},
		{"calc compound", "calc(attr.atk + 1)", damage, []ViolationType{ViolationCalcCall}},
		{"calc arity", "calc(attr.atk, 2)", damage, []ViolationType{ViolationCalcCall}},
		{"calc bucket", "calc(attr.speed)", damage, []ViolationType{ViolationCalcCall}},
		{"calc member", "calc.atk", damage, []ViolationType{ViolationHelperMember}},
		{"toRatio member", "toRatio.x", damage, []ViolationType{ViolationHelperMember}},
		{"dotted table", "talent.e.Strike > 1", damage, []ViolationType{ViolationDottedTable}},
		{"params ascii", "params.层数 > 1", damage, []ViolationType{ViolationParamsKey}},
		{"params index", `params["层数"] > 1`, damage, []ViolationType{ViolationParamsKey}},
		{"params computed", "params[cons] > 1", damage, []ViolationType{ViolationParamsKey}},
		{"emit literal tag", `dmg(1, "e", { a: 1 })`, damage, []ViolationType{ViolationEmitCall}},
		{"emit array tag", `dmg(1, "e", ["phy"])`, damage, []ViolationType{ViolationEmitCall}},
		{"emit arity", "dmg(1, 2, 3, 4)", damage, []ViolationType{ViolationEmitCall}},
		{"unexposed", "character.level > 1", damage, []ViolationType{ViolationUnexposedField}},
		{"unknown", "foo > 1", damage, []ViolationType{ViolationUnknownIdent}},
		{"math member", "Math.random()", damage, []ViolationType{ViolationMathMember}},
		{"math constant call", "Math.PI()", damage, []ViolationType{ViolationIllegalCall}},
		{"wrong role helper", "heal(1)", damage, []ViolationType{ViolationUnknownIdent}},
		{"dmg mode", "dmg.foo(1)", damage, []ViolationType{ViolationDmgMember}},
		{"not callable", "attr.atk()", damage, []ViolationType{ViolationIllegalCall}},
		{"heal role", "heal(calc(attr.hp) * 0.1)", NewScope(RoleHeal, statBuckets), nil},
		{"dmg outside damage", "dmg(1)", NewScope(RoleGuard, statBuckets), []ViolationType{ViolationUnknownIdent}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse(tt.in)
			require.NoError(t, err)
			var got []ViolationType
			for _, v := range CheckStructure(e.Root, tt.scope) {
				got = append(got, v.Type)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFirstViolationIsTyped(t *testing.T) {
	e := MustParse("talent.q.Burst")
	err := FirstViolation(e.Root, NewScope(RoleGuard, statBuckets))
	require.Error(t, err)
	var v *Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, ViolationDottedTable, v.Type)
	assert.Contains(t, err.Error(), "dotted_table")
}

func TestIsResultShape(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`dmg(talent.e["A"], "e")`, true},
		{`dmg.basic(100, "e")`, true},
		{"{ dmg: 1, avg: 1 }", true},
		{"{ dmg: 1 }", false},
		{`params.x ? dmg(1, "e") : { dmg: 2, avg: 2 }`, true},
		{`params.x ? dmg(1, "e") : 2`, false},
		{"calc(attr.atk) * 2", false},
	}
	for _, tt := range tests {
		e := MustParse(tt.in)
		assert.Equal(t, tt.want, IsResultShape(e.Root, RoleDamage), tt.in)
	}
	assert.True(t, IsResultShape(MustParse("heal(1)").Root, RoleHeal))
	assert.False(t, IsResultShape(MustParse("heal(1)").Root, RoleDamage))
}
