package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/XuF163/metaGenerator-sub000/internal/config"
	"github.com/XuF163/metaGenerator-sub000/internal/ledger"
	"github.com/XuF163/metaGenerator-sub000/internal/pipeline"
	"github.com/XuF163/metaGenerator-sub000/internal/validate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const input = `{"game": "gs", "tables": {"e": ["技能伤害"], "q": ["技能伤害"]}}`

func job(name, planJSON string) Job {
	return Job{Name: name, Input: []byte(input), Plan: []byte(planJSON)}
}

var (
	goodPlan  = `{"mainAttr": "atk", "details": [{"title": "E", "talent": "e", "table": "技能伤害"}]}`
	otherPlan = `{"mainAttr": "atk", "details": [{"title": "Q", "talent": "q", "table": "技能伤害"}]}`
	badPlan   = `{"mainAttr": "atk", "details": [{"title": "X", "talent": "e", "table": "不存在"}]}`
)

func runner(t *testing.T, l *ledger.Ledger) *Runner {
	t.Helper()
	p, err := pipeline.New(config.DefaultConfig())
	require.NoError(t, err)
	return &Runner{Pipeline: p, Concurrency: 2, Ledger: l}
}

func TestRunIsolatesFailures(t *testing.T) {
	jobs := []Job{job("a", goodPlan), job("b", badPlan), job("c", otherPlan), job("d", goodPlan)}
	s, err := runner(t, nil).Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, s.Outcomes, 4)
	assert.Regexp(t, `^run_[0-9a-f]{8}$`, s.RunID)

	for i, name := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, name, s.Outcomes[i].Name)
	}
	assert.NoError(t, s.Outcomes[0].Err)
	assert.ErrorIs(t, s.Outcomes[1].Err, validate.ErrNoValidDetails)
	assert.Nil(t, s.Outcomes[1].Result)
	assert.NoError(t, s.Outcomes[2].Err)
	assert.Equal(t, 1, s.Failed())
	assert.Equal(t, s.Outcomes[0].Result.Digest, s.Outcomes[3].Result.Digest)
	assert.Empty(t, s.Changed)
}

func TestRunRecordsLedger(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.Open(":memory:")
	require.NoError(t, err)
	defer l.Close()
	r := runner(t, l)

	first, err := r.Run(ctx, []Job{job("hutao", goodPlan), job("xiao", goodPlan), job("bad", badPlan)})
	require.NoError(t, err)
	assert.Len(t, first.Changed, 2, "first successful runs count as changes")

	second, err := r.Run(ctx, []Job{job("hutao", goodPlan), job("xiao", otherPlan)})
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	require.Len(t, second.Changed, 1)
	assert.Equal(t, "xiao", second.Changed[0].Character)
	assert.Equal(t, first.Outcomes[1].Result.Digest, second.Changed[0].Previous)

	e, err := l.Last(ctx, "hutao")
	require.NoError(t, err)
	assert.Equal(t, second.RunID, e.RunID)
	assert.Equal(t, "gs", e.Game)
	assert.Equal(t, 1, e.Details)

	entries, err := l.Run(ctx, first.RunID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.False(t, entries[2].OK)
	assert.Contains(t, entries[2].Error, "no valid details")
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner(t, nil).Run(ctx, []Job{job("a", goodPlan), job("b", goodPlan)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	write("xiao.input.json", input)
	write("xiao.plan.json", goodPlan)
	write("hutao.input.json", input)
	write("hutao.plan.json", otherPlan)
	write("notes.txt", "ignored")

	jobs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "hutao", jobs[0].Name)
	assert.Equal(t, otherPlan, string(jobs[0].Plan))
	assert.Equal(t, "xiao", jobs[1].Name)

	write("orphan.input.json", input)
	_, err = LoadDir(dir)
	assert.ErrorContains(t, err, "job orphan has no plan")
}
