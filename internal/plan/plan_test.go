package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/game"
)

const inputJSON = `{
  "game": "Genshin",
  "elem": "hydro",
  "tables": {
    "a": ["一段伤害", 3, ""],
    "e": ["Strike Damage", "Strike Damage (2)"]
  },
  "tableUnits": {"e": {"Strike Damage": "攻击力"}},
  "tableSamples": {
    "e": {"Strike Damage": 120, "Strike Damage (2)": [60, "2"], "bad": [1, "x"]},
    "a": {"一段伤害": "45.5%"}
  },
  "tableTextSamples": {"e": {"Strike Damage (2)": "60%*2"}},
  "talentDesc": {"e": ["line one", "line two"], "q": "burst"},
  "buffHints": "1命: 攻击力提高20%\n\n2命: 暴击率提高15%",
  "upstream": {"source": "wiki"},
  "upstreamDirect": false
}`

func TestParseInput(t *testing.T) {
	in, err := ParseInput([]byte(inputJSON))
	require.NoError(t, err)

	assert.Equal(t, game.Genshin, in.Game)
	assert.Equal(t, "hydro", in.Elem)
	assert.Equal(t, []string{"一段伤害"}, in.Tables["a"], "non-string and empty names are dropped")
	assert.Equal(t, "攻击力", in.Unit("e", "Strike Damage"))

	s, ok := in.Sample("e", "Strike Damage (2)")
	require.True(t, ok)
	assert.True(t, s.IsArray)
	assert.Equal(t, []float64{60, 2}, s.Values)

	s, ok = in.Sample("a", "一段伤害")
	require.True(t, ok)
	assert.False(t, s.IsArray)
	assert.Equal(t, 45.5, s.First())

	_, ok = in.Sample("e", "bad")
	assert.False(t, ok)

	assert.Equal(t, "line one\nline two", in.Desc("e"))
	assert.Equal(t, []string{"1命: 攻击力提高20%", "2命: 暴击率提高15%"}, in.BuffHints)
	assert.True(t, in.Upstream)
	assert.False(t, in.UpstreamDirect)
	assert.True(t, in.Trusted())
	assert.True(t, in.Known().Has("e", "Strike Damage (2)"))
}

func TestParseInputErrors(t *testing.T) {
	_, err := ParseInput([]byte(`{"game": "gs"`))
	assert.True(t, errors.Is(err, ErrInvalidJSON))

	_, err = ParseInput([]byte(`[1]`))
	assert.True(t, errors.Is(err, ErrInvalidJSON))

	_, err = ParseInput([]byte(`{"game": "lol", "tables": {"a": ["x"]}}`))
	assert.Error(t, err)

	_, err = ParseInput([]byte(`{"game": "sr"}`))
	assert.EqualError(t, err, "input has no tables")
}

func TestParseInputFoldsBlockKeys(t *testing.T) {
	in, err := ParseInput([]byte(`{"game": "gs",
		"tables": {"E": ["技能伤害"], " Q ": ["技能伤害"]},
		"tableSamples": {"E": {"技能伤害": 120}},
		"tableUnits": {"E": {"技能伤害": "攻击力"}}}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"技能伤害"}, in.Tables["e"])
	assert.Equal(t, []string{"技能伤害"}, in.Tables["q"])
	assert.NotContains(t, in.Tables, "E")
	_, ok := in.Sample("e", "技能伤害")
	assert.True(t, ok)
	assert.Equal(t, "攻击力", in.Unit("e", "技能伤害"))
	assert.True(t, in.Known().Has("e", "技能伤害"))
}

func TestUpstreamTruthiness(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`{}`, false},
		{`{"upstream": {}}`, false},
		{`{"upstream": []}`, false},
		{`{"upstream": true}`, true},
		{`{"upstream": 1}`, true},
		{`{"upstream": "false"}`, false},
		{`{"upstream": {"id": 1}}`, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truthy(gjson.Get(tt.raw, "upstream")), tt.raw)
	}
}

func TestParseRaw(t *testing.T) {
	raw, err := ParseRaw([]byte("```json\n{\"result\": {\"mainAttr\": \"atk\", \"details\": [{\"title\": \"E\"}]}}\n```"))
	require.NoError(t, err)
	assert.Equal(t, "atk", raw.Get("mainAttr").String())
	require.Len(t, raw.Details(), 1)
	assert.Nil(t, raw.Buffs())

	_, err = ParseRaw([]byte("not json"))
	assert.True(t, errors.Is(err, ErrInvalidJSON))
}

func TestDetailKeys(t *testing.T) {
	d := &Detail{Kind: KindDamage, Source: TableSource{Talent: "e", Table: "X"}}
	assert.Equal(t, "e", d.DmgKey())

	d.SetKey(" a2 , nightsoul ")
	assert.Equal(t, []string{"a2", "nightsoul"}, d.KeyTags())
	assert.Equal(t, "a2", d.DmgKey())

	d.SetKey("")
	assert.Equal(t, "", d.DmgKey())

	r := &Detail{Kind: KindReaction, Source: ReactionSource{ID: "swirl"}}
	assert.Equal(t, "", r.Talent())
	rs, ok := r.Reaction()
	require.True(t, ok)
	assert.Equal(t, "swirl", rs.ID)
}

func TestPlanClone(t *testing.T) {
	p := &Plan{
		MainAttr: "atk",
		Details: []*Detail{{
			Title:  "E",
			Source: TableSource{Talent: "e", Table: "X"},
			Params: Params{"stacks": Number(3)},
		}},
		Buffs: []*Buff{{Title: "b", Data: map[string]BuffValue{"dmg": Literal(20)}}},
	}
	c := p.Clone()
	c.Details[0].Params["stacks"] = Number(1)
	c.Buffs[0].Data["dmg"] = Literal(1)
	c.Details[0].SetKey("q")

	assert.Equal(t, 3.0, p.Details[0].Params["stacks"].Num)
	assert.Equal(t, 20.0, p.Buffs[0].Data["dmg"].Num)
	assert.Nil(t, p.Details[0].Key)
}

func TestPlanSets(t *testing.T) {
	p := &Plan{
		DefParams: Params{"team": Flag(true)},
		Details: []*Detail{
			{Source: TableSource{Talent: "e", Table: "X"}, Params: Params{"half": Flag(true)}},
			{Source: TableSource{Talent: "q", Table: "Y"}},
		},
	}
	assert.Equal(t, map[string]bool{"e": true, "q": true}, p.DmgKeys())
	assert.Equal(t, map[string]bool{"team": true, "half": true}, p.SetParams())
}

func TestEncode(t *testing.T) {
	key := "e"
	p := &Plan{
		MainAttr:  "atk,cpct,cdmg",
		DefDmgKey: "e",
		Details: []*Detail{
			{
				Title:   "E伤害",
				Kind:    KindDamage,
				Source:  TableSource{Talent: "e", Table: "Strike Damage"},
				Key:     &key,
				Params:  Params{"half": Flag(true)},
				Check:   expr.MustParse("params.half"),
				DmgExpr: expr.MustParse(`dmg(talent.e["Strike Damage"], "e")`),
			},
			{Title: "扩散", Kind: KindReaction, Source: ReactionSource{ID: "swirl"}},
		},
		Buffs: []*Buff{
			{Title: "1命", Cons: 1, Data: map[string]BuffValue{"dmg": Literal(20), "cpct": Computed(expr.MustParse("params.half ? 10 : 0"))}},
			{Canned: "vaporize"},
		},
	}
	out, err := Encode(p)
	require.NoError(t, err)

	doc := gjson.ParseBytes(out)
	assert.Equal(t, "atk,cpct,cdmg", doc.Get("mainAttr").String())
	assert.Equal(t, "Strike Damage", doc.Get("details.0.table").String())
	assert.Equal(t, `dmg(talent.e["Strike Damage"], "e")`, doc.Get("details.0.dmgExpr").String())
	assert.True(t, doc.Get("details.0.params.half").Bool())
	assert.Equal(t, "swirl", doc.Get("details.1.reaction").String())
	assert.False(t, doc.Get("details.1.talent").Exists())
	assert.Equal(t, 20.0, doc.Get("buffs.0.data.dmg").Float())
	assert.Equal(t, "params.half ? 10 : 0", doc.Get("buffs.0.data.cpct").String())
	assert.Equal(t, "vaporize", doc.Get("buffs.1").String())
}
