package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XuF163/metaGenerator-sub000/internal/plan"
)

const gsInput = `{
  "game": "gs",
  "elem": "pyro",
  "tables": {
    "a": ["一段伤害", "一段/二段伤害"],
    "e": ["技能伤害", "技能伤害倍率提升", "驰轮车伤害", "护盾吸收量"],
    "q": ["技能伤害", "剑雨伤害"]
  },
  "tableSamples": {
    "a": {"一段伤害": 50, "一段/二段伤害": [40, 50]},
    "e": {"技能伤害": 120, "技能伤害倍率提升": 30, "驰轮车伤害": 80},
    "q": {"技能伤害": 300, "剑雨伤害": 60}
  },
  "tableTextSamples": {"q": {"剑雨伤害": "60%*3"}},
  "tableUnits": {"q": {"技能伤害": "生命值上限"}},
  "talentDesc": {
    "e": "造成基于防御力的岩元素伤害。护盾吸收量受生命值上限加成。",
    "q": "召唤剑雨。"
  }
}`

func TestSplitVariants(t *testing.T) {
	in, p := parse(t, gsInput, `{"mainAttr": "atk", "details": [
		{"talent": "a", "table": "一段/二段伤害"},
		{"title": "普攻", "talent": "a", "table": "一段/二段伤害", "cons": 2}
	]}`)
	e := only(t, "split-variants")
	apply(t, e, in, p)

	require.Len(t, p.Details, 4)
	var titles []string
	for i, d := range p.Details {
		titles = append(titles, d.Title)
		require.NotNil(t, d.Pick)
		assert.Equal(t, i%2, *d.Pick)
	}
	assert.Equal(t, []string{"一段伤害", "二段伤害", "普攻(一段伤害)", "普攻(二段伤害)"}, titles)
	assert.Equal(t, 2, p.Details[3].Cons)
	assertFixedPoint(t, e, in, p)
}

func TestSplitVariantsKeepsEncodedSums(t *testing.T) {
	input := `{"game": "gs", "tables": {"a": ["一段/二段伤害"]},
		"tableSamples": {"a": {"一段/二段伤害": [40, 50]}},
		"tableTextSamples": {"a": {"一段/二段伤害": "40%+50%"}}}`
	in, p := parse(t, input, `{"mainAttr": "atk", "details": [{"talent": "a", "table": "一段/二段伤害"}]}`)
	apply(t, only(t, "split-variants"), in, p)
	require.Len(t, p.Details, 1)
	assert.Nil(t, p.Details[0].Pick)
}

func TestScalingStat(t *testing.T) {
	in, p := parse(t, gsInput, `{"mainAttr": "atk", "details": [
		{"title": "Q伤害", "talent": "q", "table": "技能伤害"},
		{"title": "E伤害", "talent": "e", "table": "技能伤害"},
		{"title": "护盾", "talent": "e", "table": "护盾吸收量"},
		{"title": "一段", "talent": "a", "table": "一段伤害"},
		{"title": "剑雨", "talent": "q", "table": "剑雨伤害"},
		{"title": "E伤害(攻击)", "talent": "e", "table": "驰轮车伤害", "stat": "atk"}
	]}`)
	e := only(t, "scaling-stat")
	apply(t, e, in, p)

	var stats []string
	for _, d := range p.Details {
		stats = append(stats, d.Stat)
	}
	// unit, description past the shield sentence, mixed evidence, block
	// default, no evidence, explicit.
	assert.Equal(t, []string{"hp", "def", "", "", "", "atk"}, stats)
	assert.Equal(t, plan.KindShield, p.Details[2].Kind)
	assertFixedPoint(t, e, in, p)
}

func TestScalingStatFromTextSample(t *testing.T) {
	input := `{"game": "gs", "tables": {"e": ["技能伤害"]},
		"tableTextSamples": {"e": {"技能伤害": "12%防御力"}},
		"talentDesc": {"e": "基于生命值上限造成伤害。"}}`
	in, p := parse(t, input, `{"mainAttr": "atk", "details": [{"talent": "e", "table": "技能伤害"}]}`)
	apply(t, only(t, "scaling-stat"), in, p)
	assert.Equal(t, "def", p.Details[0].Stat, "text sample outranks the description")
}

func TestDeltaMultiplier(t *testing.T) {
	in, p := parse(t, gsInput, `{"mainAttr": "atk", "details": [
		{"title": "强化技能伤害", "talent": "e", "table": "技能伤害倍率提升"},
		{"title": "强化技能伤害(防御)", "talent": "e", "table": "技能伤害倍率提升", "stat": "def"}
	]}`)
	e := only(t, "delta-multiplier")
	apply(t, e, in, p)

	assert.Equal(t, `dmg(talent.e["技能伤害"] + talent.e["技能伤害倍率提升"], "e")`, p.Details[0].DmgExpr.String())
	assert.Equal(t, `dmg.basic(calc(attr.def) * toRatio(talent.e["技能伤害"] + talent.e["技能伤害倍率提升"]), "e")`,
		p.Details[1].DmgExpr.String())
	assertFixedPoint(t, e, in, p)
}

func TestDeltaMultiplierNeedsUniqueBase(t *testing.T) {
	input := `{"game": "gs", "tables": {"e": ["点按伤害", "长按伤害", "倍率提升"]}}`
	in, p := parse(t, input, `{"mainAttr": "atk", "details": [{"title": "强化", "talent": "e", "table": "倍率提升"}]}`)
	r := apply(t, only(t, "delta-multiplier"), in, p)
	assert.Nil(t, p.Details[0].DmgExpr)
	assert.Empty(t, r.Changes)
}

func TestMultiHit(t *testing.T) {
	in, p := parse(t, gsInput, `{"mainAttr": "atk", "details": [
		{"title": "剑雨总伤害", "talent": "q", "table": "剑雨伤害"},
		{"title": "剑雨伤害", "talent": "q", "table": "剑雨伤害"}
	]}`)
	e := only(t, "multi-hit")
	apply(t, e, in, p)

	assert.Equal(t, `dmg(talent.q["剑雨伤害"] * 3, "q")`, p.Details[0].DmgExpr.String())
	assert.Nil(t, p.Details[1].DmgExpr, "untitled rows keep the per-hit value")
	assertFixedPoint(t, e, in, p)
}

func TestMultiHitWithTierExtraHits(t *testing.T) {
	input := `{"game": "gs", "tables": {"q": ["剑雨伤害"]},
		"tableSamples": {"q": {"剑雨伤害": 60}},
		"tableTextSamples": {"q": {"剑雨伤害": "60%*3"}},
		"buffHints": ["2命：剑雨的攻击次数增加1次"]}`
	in, p := parse(t, input, `{"mainAttr": "atk", "details": [{"title": "剑雨总伤害", "talent": "q", "table": "剑雨伤害"}]}`)
	apply(t, only(t, "multi-hit"), in, p)
	assert.Equal(t, `dmg(talent.q["剑雨伤害"] * (3 + (cons >= 2 ? 1 : 0)), "q")`, p.Details[0].DmgExpr.String())
}

func TestMultiHitFromDescription(t *testing.T) {
	input := `{"game": "gs", "tables": {"e": ["单次伤害"]},
		"talentDesc": {"e": "挥剑连续造成3次雷元素伤害。"}}`
	in, p := parse(t, input, `{"mainAttr": "atk", "details": [{"title": "E完整伤害", "talent": "e", "table": "单次伤害"}]}`)
	apply(t, only(t, "multi-hit"), in, p)
	require.NotNil(t, p.Details[0].DmgExpr)
	assert.Equal(t, `dmg(talent.e["单次伤害"] * 3, "e")`, p.Details[0].DmgExpr.String())
}
