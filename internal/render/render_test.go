package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XuF163/metaGenerator-sub000/internal/plan"
	"github.com/XuF163/metaGenerator-sub000/internal/validate"
)

func parse(t *testing.T, inputJSON, planJSON string) (*plan.Input, *plan.Plan) {
	t.Helper()
	in, err := plan.ParseInput([]byte(inputJSON))
	require.NoError(t, err)
	raw, err := plan.ParseRaw([]byte(planJSON))
	require.NoError(t, err)
	p, issues, err := validate.New(validate.DefaultLimits()).Validate(in, raw)
	require.NoError(t, err)
	require.Empty(t, issues)
	return in, p
}

func renderPlan(t *testing.T, inputJSON, planJSON string) *Module {
	t.Helper()
	in, p := parse(t, inputJSON, planJSON)
	m, err := Render(in, p, Options{})
	require.NoError(t, err)
	return m
}

func TestRenderScalarRows(t *testing.T) {
	m := renderPlan(t, `{"game": "gs", "tables": {"e": ["技能伤害"], "q": ["技能伤害"]}}`,
		`{"mainAttr": "atk", "details": [
			{"talent": "e", "table": "技能伤害"},
			{"talent": "e", "table": "技能伤害", "stat": "hp"},
			{"talent": "e", "table": "技能伤害", "ele": "vaporize"},
			{"talent": "q", "table": "技能伤害", "key": ""},
			{"talent": "q", "table": "技能伤害", "key": "q,nightsoul"},
			{"kind": "reaction", "reaction": "swirl"}
		]}`)

	want := []string{
		`dmg(talent.e["技能伤害"], "e")`,
		`dmg.basic(calc(attr.hp) * toRatio(talent.e["技能伤害"]), "e")`,
		`dmg(talent.e["技能伤害"], "e", "vaporize")`,
		`dmg(talent.q["技能伤害"], "")`,
		`dmg(talent.q["技能伤害"], "q,nightsoul")`,
		`reaction("swirl")`,
	}
	require.Len(t, m.Details, len(want))
	for i, w := range want {
		assert.Equal(t, w, m.Details[i].Dmg.String(), "row %d", i)
	}
	assert.Equal(t, "", m.Details[3].DmgKey)
	assert.Equal(t, "q", m.Details[4].DmgKey)
	assert.Equal(t, ShapeReaction, m.Details[5].Shape)
	assert.Contains(t, m.Source, `}, { reaction }) => reaction("swirl")`)
}

func TestRenderArrayLayouts(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		extra  string // row fields
		sample string
		text   string
		unit   string
		shape  Shape
		want   string
	}{
		{
			name: "hit count", table: "技能伤害", sample: `[60, 3]`, text: `60%*3`, shape: ShapeHits,
			want: `dmg(talent.e["技能伤害"][0] * talent.e["技能伤害"][1], "e")`,
		},
		{
			name: "hit count of a stat", table: "技能伤害", sample: `[60, 2]`, text: `60%防御力×2`, shape: ShapeHits,
			want: `dmg.basic(calc(attr.def) * toRatio(talent.e["技能伤害"][0] * talent.e["技能伤害"][1]), "e")`,
		},
		{
			name: "hit count from unit", table: "技能伤害", sample: `[60, 3]`, unit: `次`, shape: ShapeHits,
			want: `dmg(talent.e["技能伤害"][0] * talent.e["技能伤害"][1], "e")`,
		},
		{
			name: "percentage sum", table: "技能伤害", sample: `[40, 50]`, text: `40%+50%`, shape: ShapeSum,
			want: `dmg(talent.e["技能伤害"][0] + talent.e["技能伤害"][1], "e")`,
		},
		{
			name: "two stats", table: "技能伤害", sample: `[50, 80]`, text: `50%攻击力+80%元素精通`, shape: ShapeTwoStat,
			want: `dmg.basic(calc(attr.atk) * toRatio(talent.e["技能伤害"][0]) + calc(attr.mastery) * toRatio(talent.e["技能伤害"][1]), "e")`,
		},
		{
			name: "percentage plus flat", table: "技能伤害", sample: `[10, 500]`, text: `10%防御力+500`, shape: ShapePctFlat,
			want: `dmg.basic(calc(attr.def) * toRatio(talent.e["技能伤害"][0]) + talent.e["技能伤害"][1], "e")`,
		},
		{
			name: "heal without text", table: "治疗量", extra: `"stat": "hp",`, sample: `[10, 1000]`, shape: ShapePctFlat,
			want: `heal(calc(attr.hp) * toRatio(talent.e["治疗量"][0]) + talent.e["治疗量"][1])`,
		},
		{
			name: "shield from text", table: "护盾吸收量", sample: `[8, 600]`, text: `8%生命值上限+600`, shape: ShapePctFlat,
			want: `shield(calc(attr.hp) * toRatio(talent.e["护盾吸收量"][0]) + talent.e["护盾吸收量"][1])`,
		},
		{
			name: "unknown layout", table: "技能伤害", sample: `[1, 2, 3]`, shape: ShapeFirst,
			want: `dmg(talent.e["技能伤害"][0], "e")`,
		},
		{
			name: "unparsed text", table: "技能伤害", sample: `[40, 50]`, text: `见说明`, shape: ShapeFirst,
			want: `dmg(talent.e["技能伤害"][0], "e")`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := `{"game": "gs", "tables": {"e": ["` + tt.table + `"]},
				"tableSamples": {"e": {"` + tt.table + `": ` + tt.sample + `}},
				"tableTextSamples": {"e": {"` + tt.table + `": "` + tt.text + `"}},
				"tableUnits": {"e": {"` + tt.table + `": "` + tt.unit + `"}}}`
			m := renderPlan(t, input, `{"mainAttr": "atk", "details": [{`+tt.extra+` "talent": "e", "table": "`+tt.table+`"}]}`)
			assert.Equal(t, tt.shape, m.Details[0].Shape)
			assert.Equal(t, tt.want, m.Details[0].Dmg.String())
		})
	}
}

func TestRenderPickedComponent(t *testing.T) {
	m := renderPlan(t, `{"game": "gs", "tables": {"a": ["一段/二段伤害"]},
		"tableSamples": {"a": {"一段/二段伤害": [40, 50]}}}`,
		`{"mainAttr": "atk", "details": [{"talent": "a", "table": "一段/二段伤害", "pick": 1}]}`)
	assert.Equal(t, ShapePick, m.Details[0].Shape)
	assert.Equal(t, `dmg(talent.a["一段/二段伤害"][1], "a")`, m.Details[0].Dmg.String())
}

func TestRenderPrefersStructuredVariant(t *testing.T) {
	input := `{"game": "gs", "tables": {"e": ["Strike Damage", "Strike Damage (2)"]},
		"tableSamples": {"e": {"Strike Damage": 120, "Strike Damage (2)": [120, 2]}},
		"tableTextSamples": {"e": {"Strike Damage (2)": "60%*2"}}}`
	m := renderPlan(t, input, `{"mainAttr": "atk", "details": [
		{"title": "Strike", "talent": "e", "table": "Strike Damage"},
		{"title": "Strike (per hit)", "talent": "e", "table": "Strike Damage (2)"}
	]}`)
	assert.Equal(t, `dmg(talent.e["Strike Damage (2)"][0] * talent.e["Strike Damage (2)"][1], "e")`, m.Details[0].Dmg.String())
	assert.Equal(t, `dmg(talent.e["Strike Damage"], "e")`, m.Details[1].Dmg.String())
}

func TestRenderKeepsPlanExpressions(t *testing.T) {
	m := renderPlan(t, `{"game": "gs", "tables": {"e": ["技能伤害"]}}`,
		`{"mainAttr": "atk", "details": [
			{"talent": "e", "table": "技能伤害", "dmgExpr": "dmg(talent.e['技能伤害'] * 2, 'e')"},
			{"talent": "e", "table": "技能伤害", "dmgExpr": "{ dmg: 1, avg: 1 }"}
		]}`)
	assert.Equal(t, ShapeExpr, m.Details[0].Shape)
	assert.Equal(t, `dmg(talent.e["技能伤害"] * 2, "e")`, m.Details[0].Dmg.String())
	assert.Contains(t, m.Source, `, dmg) => ({ dmg: 1, avg: 1 })`)
}

func TestRenderDefaultRow(t *testing.T) {
	input := `{"game": "gs", "tables": {"e": ["技能伤害", "治疗量"], "q": ["技能伤害"]}}`
	tests := []struct {
		name    string
		plan    string
		wantIdx int
		wantKey string
	}{
		{"declared key", `{"mainAttr": "atk", "defDmgKey": "q", "details": [
			{"talent": "e", "table": "技能伤害"}, {"talent": "q", "table": "技能伤害"}]}`, 1, "q"},
		{"first damage row", `{"mainAttr": "atk", "details": [
			{"talent": "e", "table": "治疗量"}, {"talent": "q", "table": "技能伤害"}]}`, 1, "q"},
		{"no damage rows", `{"mainAttr": "atk", "details": [{"talent": "e", "table": "治疗量"}]}`, 0, "e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := renderPlan(t, input, tt.plan)
			assert.Equal(t, tt.wantIdx, m.DefDmgIdx)
			assert.Equal(t, tt.wantKey, m.DefDmgKey)
		})
	}
}

func TestRenderSource(t *testing.T) {
	m := renderPlan(t, `{"game": "sr", "tables": {"e": ["技能伤害"], "q": ["技能伤害"]}}`,
		`{"mainAttr": "atk,cpct", "defDmgKey": "q", "details": [
			{"title": "战技伤害", "talent": "e", "table": "技能伤害"},
			{"title": "终结技伤害", "talent": "q", "table": "技能伤害", "cons": 2,
			 "params": {"stacks": 3, "burst": true}, "check": "params.burst"}
		], "buffs": [
			{"title": "终结技增伤", "sort": 9, "check": "params.stacks > 1",
			 "data": {"qDmg": 20, "atkPct": "params.stacks * 10"}}
		]}`)

	want := strings.ReplaceAll(`// calcgen
const toRatio = (v) => v

export const details = [
  {
    title: "战技伤害",
    talent: "e",
    dmgKey: "e",
    dmg: (CTX, dmg) => dmg(talent.e["技能伤害"], "e")
  },
  {
    title: "终结技伤害",
    talent: "q",
    dmgKey: "q",
    cons: 2,
    params: { burst: true, stacks: 3 },
    check: (CTX) => params.burst,
    dmg: (CTX, dmg) => dmg(talent.q["技能伤害"], "q")
  }
]

export const defDmgIdx = 1
export const defDmgKey = "q"
export const mainAttr = "atk,cpct"
export const defParams = {}

export const buffs = [
  {
    title: "终结技增伤",
    sort: 9,
    check: (CTX) => params.stacks > 1,
    data: {
      atkPct: (CTX) => params.stacks * 10,
      qDmg: 20
    }
  }
]

export const createdBy = "calcgen"
`, "CTX", "{ talent, attr, calc, params, cons, weapon, trees, element }")
	assert.Equal(t, want, m.Source)
}

func TestRenderToRatioPerGame(t *testing.T) {
	gs := renderPlan(t, `{"game": "gs", "tables": {"e": ["技能伤害"]}}`,
		`{"mainAttr": "atk", "details": [{"talent": "e", "table": "技能伤害"}], "buffs": ["vaporize"]}`)
	assert.Contains(t, gs.Source, "const toRatio = (v) => v / 100\n")
	assert.Equal(t, 1, strings.Count(gs.Source, "const toRatio"))
	assert.Equal(t, 1.2, gs.ToRatio(120))
	assert.Contains(t, gs.Source, "export const buffs = [\n  \"vaporize\"\n]")

	sr := renderPlan(t, `{"game": "sr", "tables": {"e": ["技能伤害"]}}`,
		`{"mainAttr": "atk", "details": [{"talent": "e", "table": "技能伤害"}]}`)
	assert.Contains(t, sr.Source, "const toRatio = (v) => v\n")
	assert.Contains(t, sr.Source, "export const buffs = []\n")
	assert.Equal(t, 1.2, sr.ToRatio(1.2))
}

func TestRenderIsDeterministic(t *testing.T) {
	input := `{"game": "gs", "tables": {"e": ["技能伤害"]}}`
	planJSON := `{"mainAttr": "atk", "defParams": {"z": 1, "a": true, "m": "x"}, "details": [
		{"talent": "e", "table": "技能伤害", "params": {"b": 1, "a": 2, "c": 3}}
	], "buffs": [{"title": "t", "data": {"eDmg": 1, "cpct": 2, "atkPct": 3, "dmg": 4}}]}`
	first := renderPlan(t, input, planJSON)
	for i := 0; i < 5; i++ {
		again := renderPlan(t, input, planJSON)
		require.Equal(t, first.Source, again.Source)
		require.Equal(t, first.Digest(), again.Digest())
	}
	assert.Contains(t, first.Source, `export const defParams = { a: true, m: "x", z: 1 }`)
	assert.Contains(t, first.Source, `params: { a: 2, b: 1, c: 3 }`)
	assert.Len(t, first.Digest(), 64)
}

func TestRenderCreatedBy(t *testing.T) {
	in, p := parse(t, `{"game": "gs", "tables": {"e": ["技能伤害"]}}`,
		`{"mainAttr": "atk", "details": [{"talent": "e", "table": "技能伤害"}]}`)
	m, err := Render(in, p, Options{CreatedBy: "calcgen\nbatch 7"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m.Source, "// calcgen batch 7\n"))
	assert.Contains(t, m.Source, `export const createdBy = "calcgen\nbatch 7"`)
}

func TestRenderEmptyPlan(t *testing.T) {
	in, err := plan.ParseInput([]byte(`{"game": "gs", "tables": {"e": ["技能伤害"]}}`))
	require.NoError(t, err)
	_, err = Render(in, &plan.Plan{MainAttr: "atk"}, Options{})
	assert.ErrorIs(t, err, ErrEmptyPlan)
}
