package expr

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrintCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a+b*c", "a + b * c"},
		{"(a+b)*c", "(a + b) * c"},
		{"a-(b-c)", "a - (b - c)"},
		{"(a-b)-c", "a - b - c"},
		{"-x", "-x"},
		{"!(a&&b)", "!(a && b)"},
		{"talent.e['Strike Damage']", `talent.e["Strike Damage"]`},
		{"a?b:c?d:e", "a ? b : c ? d : e"},
		{"(a?b:c)?d:e", "(a ? b : c) ? d : e"},
		{"1.40", "1.4"},
		{"120", "120"},
		{".5", "0.5"},
		{"calc(attr.atk)*toRatio(talent.a['一段伤害'])", `calc(attr.atk) * toRatio(talent.a["一段伤害"])`},
		{"{dmg:1,avg:2}", "{ dmg: 1, avg: 2 }"},
		{"{'a b':1}", `{ "a b": 1 }`},
		{"[1,2,3]", "[1, 2, 3]"},
		{"params.stacks>=2&&cons>1", "params.stacks >= 2 && cons > 1"},
		{"a||b&&c", "a || b && c"},
		{"(a||b)&&c", "(a || b) && c"},
		{"x === null", "x === null"},
		{"undefined", "undefined"},
		{"f(a, b ? 1 : 2)", "f(a, b ? 1 : 2)"},
		{"a?.5:1", "a ? 0.5 : 1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			e, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.String())

			again, err := Parse(e.String())
			require.NoError(t, err)
			assert.Equal(t, e.String(), again.String(), "printing must be a fixed point")
		})
	}
}

func TestPrintConstructedNodes(t *testing.T) {
	n := Bin("*", AttrCalc("hp"), Ratio(TableRef("e", "技能伤害")))
	assert.Equal(t, `calc(attr.hp) * toRatio(talent.e["技能伤害"])`, Print(n))

	neg := Bin("-", Id("a"), Num(-3))
	assert.Equal(t, "a - -3", Print(neg))

	quoted := Str("say \"hi\"\n")
	assert.Equal(t, `"say \"hi\"\n"`, Print(quoted))

	assert.Equal(t, "a && b", Print(And(Id("a"), Id("b"))))
	assert.Equal(t, "b", Print(And(nil, Id("b"))))
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		reason string
	}{
		{"statement", "a; b", ReasonStatement},
		{"block", "{ a }", ReasonStatement},
		{"line comment", "a // c", ReasonComment},
		{"block comment", "a /* c */", ReasonComment},
		{"template", "`x${a}`", ReasonTemplate},
		{"arrow", "() => 1", ReasonArrow},
		{"arrow ident", "a => a", ReasonArrow},
		{"assign", "a = 1", ReasonAssignment},
		{"compound assign", "a += 1", ReasonAssignment},
		{"increment", "a++", ReasonAssignment},
		{"bitwise", "a & b", ReasonOperator},
		{"exponent", "a ** 2", ReasonOperator},
		{"optional chain", "a?.b", ReasonOperator},
		{"spread", "f(...a)", ReasonOperator},
		{"unterminated", "'abc", ReasonUnterminated},
		{"empty", "   ", ReasonSyntax},
		{"trailing", "a b", ReasonSyntax},
		{"char", "a # b", ReasonCharacter},
		{"too deep", strings.Repeat("(", 100) + "1" + strings.Repeat(")", 100), ReasonTooDeep},
		{"too long", strings.Repeat("1+", MaxSourceLen) + "1", ReasonTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			require.Error(t, err)
			var se *SyntaxError
			require.True(t, errors.As(err, &se), "want SyntaxError, got %T", err)
			assert.Equal(t, tt.reason, se.Reason)
		})
	}
}

func TestComparisonOperatorsAreNotAssignments(t *testing.T) {
	for _, src := range []string{"a == 1", "a === 1", "a != 1", "a !== 1", "a <= 1", "a >= 1"} {
		_, err := Parse(src)
		assert.NoError(t, err, src)
	}
}

func TestRewriteSharesUnchangedSubtrees(t *testing.T) {
	e := MustParse(`dmg(talent.e["A"] * 1.4, "e")`)
	out := Rewrite(e.Root, func(n Node) Node {
		if b, ok := n.(*Binary); ok && b.Op == "*" {
			if num, ok := b.Y.(*NumberLit); ok && num.Value == 1.4 {
				return b.X
			}
		}
		return n
	})
	assert.Equal(t, `dmg(talent.e["A"], "e")`, Print(out))
	assert.Equal(t, `dmg(talent.e["A"] * 1.4, "e")`, e.String(), "original tree is not mutated")
}

func TestExprEqualAndJSON(t *testing.T) {
	a := MustParse("a+1")
	b := MustParse("a + 1")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
	assert.True(t, (*Expr)(nil).Equal(nil))

	raw, err := a.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"a + 1"`, string(raw))
}
