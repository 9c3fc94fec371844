package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XuF163/metaGenerator-sub000/internal/plan"
)

const routedInput = `{
  "game": "gs",
  "tables": {"a": ["一段伤害"], "e": ["技能伤害", "一段伤害"]},
  "talentDesc": {"e": "施放后进入架势。此状态下，普通攻击转为重击。"}
}`

func keyOf(d *plan.Detail) string {
	if d.Key == nil {
		return "<nil>"
	}
	return *d.Key
}

func TestNormalizeKeys(t *testing.T) {
	in, p := parse(t, gsInput, `{"mainAttr": "atk", "details": [
		{"talent": "e", "table": "技能伤害", "key": " E , nightsoul,,nightsoul"},
		{"talent": "q", "table": "技能伤害", "key": ""},
		{"talent": "q", "table": "剑雨伤害", "key": "Custom"}
	]}`)
	e := only(t, "normalize-keys")
	apply(t, e, in, p)

	assert.Equal(t, "e,nightsoul", keyOf(p.Details[0]))
	assert.Equal(t, "", keyOf(p.Details[1]), "an empty key suppresses routing and stays")
	assert.Equal(t, "Custom", keyOf(p.Details[2]))
	assertFixedPoint(t, e, in, p)
}

func TestStateRouting(t *testing.T) {
	in, p := parse(t, routedInput, `{"mainAttr": "atk", "defDmgKey": "e", "details": [
		{"title": "E技能", "talent": "e", "table": "技能伤害"},
		{"title": "架势一段", "talent": "e", "table": "一段伤害", "key": "e,nightsoul"},
		{"title": "架势一段(表达式)", "talent": "e", "table": "一段伤害", "dmgExpr": "dmg(talent.e['一段伤害'] * 2, 'e')"},
		{"title": "普攻一段", "talent": "a", "table": "一段伤害"}
	]}`)
	e := only(t, "state-routing")
	apply(t, e, in, p)

	assert.Equal(t, "<nil>", keyOf(p.Details[0]))
	assert.Equal(t, "a2,nightsoul", keyOf(p.Details[1]))
	assert.Equal(t, "a2", keyOf(p.Details[2]))
	assert.Equal(t, `dmg(talent.e["一段伤害"] * 2, "a2")`, p.Details[2].DmgExpr.String())
	assert.Equal(t, "<nil>", keyOf(p.Details[3]))
	assertFixedPoint(t, e, in, p)
}

func TestStateRoutingIgnoresCountsAsDamage(t *testing.T) {
	input := `{"game": "gs", "tables": {"e": ["一段伤害"]},
		"talentDesc": {"e": "此状态下的攻击视为重击伤害。"}}`
	in, p := parse(t, input, `{"mainAttr": "atk", "details": [{"talent": "e", "table": "一段伤害"}]}`)
	r := apply(t, only(t, "state-routing"), in, p)
	assert.Nil(t, p.Details[0].Key)
	assert.Empty(t, r.Changes)
}

func TestDefaultKeyFollowsRouting(t *testing.T) {
	in, p := parse(t, routedInput, `{"mainAttr": "atk", "defDmgKey": "e", "details": [
		{"title": "架势一段", "talent": "e", "table": "一段伤害"}
	]}`)
	apply(t, only(t, "state-routing", "default-key"), in, p)
	assert.Equal(t, "a2", p.DefDmgKey)
}

func TestThresholdFlags(t *testing.T) {
	tests := []struct {
		name  string
		buffs string
		want  string
	}{
		{"guard key", `[{"title": "低血增伤", "check": "params.lowHp === true", "data": {"eDmg": 20}}]`, "lowHp"},
		{"other guard key", `[{"title": "低血增伤", "check": "params.halfHp", "data": {"eDmg": 20}}]`, "halfHp"},
		{"default", `[]`, "lowHp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, p := parse(t, gsInput, `{"mainAttr": "atk", "details": [
				{"title": "生命值低于50%时E伤害", "talent": "e", "table": "技能伤害"},
				{"title": "E伤害", "talent": "e", "table": "技能伤害", "params": {"x": 1}}
			], "buffs": `+tt.buffs+`}`)
			e := only(t, "threshold-flags")
			apply(t, e, in, p)
			assert.Equal(t, plan.Params{tt.want: plan.Flag(true)}, p.Details[0].Params)
			assert.Equal(t, plan.Params{"x": plan.Number(1)}, p.Details[1].Params)
			assertFixedPoint(t, e, in, p)
		})
	}
}

func TestKeyScope(t *testing.T) {
	in, p := parse(t, gsInput, `{"mainAttr": "atk", "details": [
		{"title": "驰轮车", "talent": "e", "table": "驰轮车伤害"},
		{"title": "E", "talent": "e", "table": "技能伤害"}
	], "buffs": [
		{"title": "驰轮车伤害提升", "data": {"eDmg": 30}},
		{"title": "元素战技伤害提升", "data": {"eDmg": 10}}
	]}`)
	e := only(t, "key-scope")
	apply(t, e, in, p)

	require.NotNil(t, p.Buffs[0].Check)
	assert.Equal(t, "params.eScope2", p.Buffs[0].Check.String())
	assert.Equal(t, plan.Params{"eScope2": plan.Flag(true)}, p.Details[0].Params)
	assert.Nil(t, p.Details[1].Params)
	assert.Nil(t, p.Buffs[1].Check, "no table matches the title")
	assertFixedPoint(t, e, in, p)
}

func TestKeyScopeKeepsExistingGuard(t *testing.T) {
	in, p := parse(t, gsInput, `{"mainAttr": "atk", "details": [
		{"title": "驰轮车", "talent": "e", "table": "驰轮车伤害"},
		{"title": "E", "talent": "e", "table": "技能伤害"}
	], "buffs": [{"title": "驰轮车伤害提升", "check": "cons >= 1", "data": {"eDmg": 30}}]}`)
	apply(t, only(t, "key-scope"), in, p)
	assert.Equal(t, "cons >= 1 && params.eScope2", p.Buffs[0].Check.String())
}

func TestRelaxGates(t *testing.T) {
	in, p := parse(t, gsInput, `{"mainAttr": "atk", "details": [
		{"talent": "e", "table": "技能伤害", "params": {"stacks": 2}}
	], "buffs": [
		{"title": "爆发", "check": "params.burst === true", "data": {"dmg": 20}},
		{"title": "命座", "check": "cons >= 2 && params.burst", "data": {"dmg": 10}},
		{"title": "攻击", "check": "params.burst", "data": {"atkPlus": 100}},
		{"title": "叠层", "check": "params.stacks > 1", "data": {"cpct": 10}},
		"swirl"
	]}`)
	e := only(t, "relax-gates")
	r := apply(t, e, in, p)

	assert.Nil(t, p.Buffs[0].Check)
	assert.Equal(t, "cons >= 2 && params.burst", p.Buffs[1].Check.String())
	assert.Equal(t, "params.burst", p.Buffs[2].Check.String())
	assert.Equal(t, "params.stacks > 1", p.Buffs[3].Check.String())
	assert.Equal(t, 1, r.Count("relax-gates"))
	assertFixedPoint(t, e, in, p)
}

func TestDedupe(t *testing.T) {
	in, p := parse(t, gsInput, `{"mainAttr": "atk", "details": [
		{"title": "A", "talent": "e", "table": "技能伤害"},
		{"title": "B", "talent": "e", "table": "技能伤害"},
		{"title": "C", "talent": "e", "table": "技能伤害", "params": {"x": 1}}
	], "buffs": [
		{"title": "x", "data": {"dmg": 10}},
		{"title": "y", "data": {"dmg": 10}},
		{"title": "z", "cons": 1, "data": {"dmg": 10}},
		"swirl", "swirl"
	]}`)
	e := only(t, "dedupe")
	apply(t, e, in, p)

	require.Len(t, p.Details, 2)
	assert.Equal(t, "A", p.Details[0].Title)
	assert.Equal(t, "C", p.Details[1].Title)
	require.Len(t, p.Buffs, 3)
	assert.Equal(t, "x", p.Buffs[0].Title)
	assert.Equal(t, "z", p.Buffs[1].Title)
	assert.Equal(t, "swirl", p.Buffs[2].Canned)
	assertFixedPoint(t, e, in, p)
}

func TestShowcase(t *testing.T) {
	input := `{"game": "gs", "tables": {"e": ["驰轮车伤害", "夜魂值上限"], "q": ["爆轰伤害"]}}`
	in, p := parse(t, input, `{"mainAttr": "atk", "details": [{"title": "Q", "talent": "q", "table": "爆轰伤害"}]}`)
	e := only(t, "showcase")
	r := apply(t, e, in, p)

	assert.Equal(t, 1, r.Count("showcase"))
	require.Len(t, p.Details, 3)
	assert.Equal(t, "atk,cpct,cdmg,dmg", p.MainAttr)
	assert.Equal(t, "e", p.DefDmgKey)
	assert.Equal(t, "e,nightsoul", keyOf(p.Details[0]))
	assert.Equal(t, `dmg(talent.e["驰轮车伤害"] * (1 + 0.15 * params.stacks), "e,nightsoul")`, p.Details[1].DmgExpr.String())
	require.Len(t, p.Buffs, 1)
	assert.Equal(t, plan.Literal(30), p.Buffs[0].Data["eDmg"])
	assertFixedPoint(t, e, in, p)
}

func TestShowcaseNeedsFullFingerprint(t *testing.T) {
	input := `{"game": "gs", "tables": {"e": ["驰轮车伤害"], "q": ["爆轰伤害"]}}`
	in, p := parse(t, input, `{"mainAttr": "atk", "details": [{"title": "Q", "talent": "q", "table": "爆轰伤害"}]}`)
	r := apply(t, only(t, "showcase"), in, p)
	assert.Empty(t, r.Changes)
	assert.Len(t, p.Details, 1)
}

func TestFullEngineIsIdempotent(t *testing.T) {
	input := `{
  "game": "gs",
  "tables": {
    "a": ["一段伤害", "一段/二段伤害"],
    "e": ["技能伤害", "技能伤害倍率提升", "驰轮车伤害", "一段伤害"],
    "q": ["剑雨伤害"]
  },
  "tableSamples": {"a": {"一段/二段伤害": [40, 50]}, "q": {"剑雨伤害": 60}},
  "tableTextSamples": {"q": {"剑雨伤害": "60%*3"}},
  "talentDesc": {"e": "此状态下，普通攻击转为重击。伤害基于防御力。"},
  "buffHints": ["1命：元素战技造成的伤害提高40%", "2命：敌人的防御力降低20%"]
}`
	in, p := parse(t, input, `{"mainAttr": "atk", "defDmgKey": "e", "details": [
		{"talent": "a", "table": "一段/二段伤害"},
		{"title": "E", "talent": "e", "table": "技能伤害", "dmgExpr": "dmg(talent.e['技能伤害'] * 1.4, 'e')"},
		{"title": "强化E", "talent": "e", "table": "技能伤害倍率提升"},
		{"title": "架势一段", "talent": "e", "table": "一段伤害"},
		{"title": "剑雨总伤害", "talent": "q", "table": "剑雨伤害"},
		{"title": "生命值低于50%时剑雨", "talent": "q", "table": "剑雨伤害"}
	], "buffs": [
		{"title": "减抗", "data": {"kx": -20}},
		{"title": "驰轮车伤害提升", "check": "params.burst", "data": {"eDmg": 30}}
	]}`)
	e := full(t)
	r := apply(t, e, in, p)
	assert.NotEmpty(t, r.Changes)
	assert.Empty(t, r.Rejected)

	require.Len(t, p.Details, 7)
	assert.Equal(t, "二段伤害", p.Details[1].Title)
	// The cons 1 hint becomes an eDmg 40 buff that covers the inline 1.4.
	assert.Equal(t, `dmg(talent.e["技能伤害"], "e")`, p.Details[2].DmgExpr.String())
	assert.Equal(t, `dmg.basic(calc(attr.def) * toRatio(talent.e["技能伤害"] + talent.e["技能伤害倍率提升"]), "e")`,
		p.Details[3].DmgExpr.String())
	assert.Equal(t, "a2", keyOf(p.Details[4]))
	assert.Equal(t, `dmg(talent.q["剑雨伤害"] * 3, "q")`, p.Details[5].DmgExpr.String())
	assert.Equal(t, plan.Params{"lowHp": plan.Flag(true)}, p.Details[6].Params)

	require.Len(t, p.Buffs, 4)
	assert.Equal(t, plan.Literal(20), p.Buffs[0].Data["kx"])
	assert.Nil(t, p.Buffs[1].Check, "no row sets params.burst")
	assert.Equal(t, plan.Literal(40), p.Buffs[2].Data["eDmg"])
	assert.Equal(t, plan.Literal(20), p.Buffs[3].Data["enemyDef"])
	assertFixedPoint(t, e, in, p)
}
