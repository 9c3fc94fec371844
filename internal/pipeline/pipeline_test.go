package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/XuF163/metaGenerator-sub000/internal/config"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
	"github.com/XuF163/metaGenerator-sub000/internal/render"
	"github.com/XuF163/metaGenerator-sub000/internal/validate"
	"github.com/XuF163/metaGenerator-sub000/internal/verify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const gsInput = `{
  "game": "gs",
  "tables": {"a": ["一段伤害"], "e": ["技能伤害"], "q": ["技能伤害"]}
}`

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(config.DefaultConfig())
	require.NoError(t, err)
	return p
}

func run(t *testing.T, inputJSON, planJSON string) *Result {
	t.Helper()
	res, err := newPipeline(t).RunJSON(context.Background(), []byte(inputJSON), []byte(planJSON))
	require.NoError(t, err)
	require.NotNil(t, res.Module)
	return res
}

func buffByTitle(t *testing.T, m *render.Module, title string) render.BuffRow {
	t.Helper()
	for _, b := range m.Buffs {
		if b.Title == title {
			return b
		}
	}
	t.Fatalf("no buff titled %q", title)
	return render.BuffRow{}
}

func dataOf(b render.BuffRow) map[string]plan.BuffValue {
	out := make(map[string]plan.BuffValue)
	for _, e := range b.Data {
		out[e.Key] = e.Value
	}
	return out
}

func TestStructuredVariantIsRendered(t *testing.T) {
	input := `{
  "game": "gs",
  "tables": {"e": ["Strike Damage", "Strike Damage (2)"]},
  "tableSamples": {"e": {"Strike Damage (2)": [120, 2]}},
  "tableTextSamples": {"e": {"Strike Damage (2)": "60%*2"}}
}`
	res := run(t, input, `{"mainAttr": "atk", "details": [
		{"title": "E伤害", "kind": "damage", "talent": "e", "table": "Strike Damage"},
		{"title": "E单次伤害", "kind": "damage", "talent": "e", "table": "Strike Damage"}
	]}`)
	require.Len(t, res.Module.Details, 2)
	assert.Contains(t, res.Module.Details[0].Dmg.String(), `talent.e["Strike Damage (2)"]`)
	assert.Contains(t, res.Module.Details[1].Dmg.String(), `talent.e["Strike Damage"]`)
	assert.NotContains(t, res.Module.Details[1].Dmg.String(), "(2)")
}

func TestShredSignIsNormalized(t *testing.T) {
	res := run(t, gsInput, `{"mainAttr": "atk", "details": [{"title": "E", "talent": "e", "table": "技能伤害"}],
		"buffs": [{"title": "减抗", "data": {"kx": -30}}]}`)
	assert.Equal(t, plan.Literal(30), dataOf(buffByTitle(t, res.Module, "减抗"))["kx"])
	assert.Contains(t, res.Module.Source, "kx: 30")
}

func TestRedundantMultiplierIsDropped(t *testing.T) {
	res := run(t, gsInput, `{"mainAttr": "atk", "details": [
		{"title": "E伤害", "talent": "e", "table": "技能伤害", "dmgExpr": "dmg(talent.e[\"技能伤害\"] * 1.4, \"e\")"}
	], "buffs": [{"title": "1命", "cons": 1, "data": {"eDmg": 40}}]}`)
	assert.Equal(t, `dmg(talent.e["技能伤害"], "e")`, res.Module.Details[0].Dmg.String())
	assert.Positive(t, res.RepairReport.Count("redundant-multiplier"))
}

func TestNoValidDetailsStopsBeforeRender(t *testing.T) {
	_, err := newPipeline(t).RunJSON(context.Background(), []byte(gsInput), []byte(`{"mainAttr": "atk", "details": [
		{"title": "E", "talent": "e", "table": "不存在的表"},
		{"title": "Q", "talent": "q", "table": "也不存在"}
	]}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, validate.ErrNoValidDetails)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageValidate, se.Stage)
}

func TestDerivedBuffIsSynthesizedOnce(t *testing.T) {
	input := `{"game": "sr", "tables": {"e": ["技能伤害"]}, "buffHints": ["3魂: 攻击命中时, 造成的伤害提高160%"]}`
	planJSON := `{"mainAttr": "atk", "details": [{"title": "E", "talent": "e", "table": "技能伤害"}]}`
	first := run(t, input, planJSON)

	var found []render.BuffRow
	for _, b := range first.Module.Buffs {
		if b.Cons == 3 {
			found = append(found, b)
		}
	}
	require.Len(t, found, 1)
	assert.Equal(t, map[string]plan.BuffValue{"dmg": plan.Literal(160)}, dataOf(found[0]))

	// Feeding the repaired plan back in must not add a second copy.
	repaired, err := plan.Encode(first.Plan)
	require.NoError(t, err)
	second := run(t, input, string(repaired))
	assert.Len(t, second.Module.Buffs, len(first.Module.Buffs))
	assert.Equal(t, first.Digest, second.Digest)
}

func TestThresholdTitleSetsFlag(t *testing.T) {
	res := run(t, gsInput, `{"mainAttr": "atk", "details": [
		{"title": "生命值低于50%时E伤害", "talent": "e", "table": "技能伤害"}
	], "buffs": [{"title": "低血增伤", "check": "params.lowHp === true", "data": {"eDmg": 20}}]}`)
	assert.Equal(t, plan.Params{"lowHp": plan.Flag(true)}, res.Module.Details[0].Params)
	require.NotNil(t, buffByTitle(t, res.Module, "低血增伤").Check)
}

func TestVerifyFailureIsReported(t *testing.T) {
	_, err := newPipeline(t).RunJSON(context.Background(), []byte(gsInput), []byte(`{"mainAttr": "atk", "details": [
		{"title": "E", "talent": "e", "table": "技能伤害", "dmgExpr": "dmg(talent.e['技能伤害'][1], 'e')"}
	]}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, verify.ErrVerification)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageVerify, se.Stage)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestParseErrors(t *testing.T) {
	_, err := newPipeline(t).RunJSON(context.Background(), []byte(`not json`), []byte(`{}`))
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageParse, se.Stage)
}

func TestExpiredContextIsATimeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := newPipeline(t).RunJSON(ctx, []byte(gsInput), []byte(`{"mainAttr": "atk", "details": [
		{"title": "E", "talent": "e", "table": "技能伤害"}
	]}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.False(t, errors.Is(&StageError{Stage: StageRepair, Err: context.Canceled}, ErrTimeout))
}

func TestResultCarriesEveryStage(t *testing.T) {
	res := run(t, gsInput, `{"mainAttr": "atk,cpct", "details": [
		{"title": "E", "talent": "e", "table": "技能伤害", "bogus": 1},
		{"title": "Q", "talent": "q", "table": "技能伤害"}
	]}`)
	assert.NotNil(t, res.Plan)
	assert.NotNil(t, res.RepairReport)
	require.NotNil(t, res.VerifyReport)
	assert.Len(t, res.VerifyReport.Passes, 2)
	assert.Equal(t, res.Module.Digest(), res.Digest)
	assert.Contains(t, res.Module.Source, `export const createdBy = "calcgen"`)
}
