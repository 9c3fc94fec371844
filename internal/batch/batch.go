// Package batch runs the pipeline for many characters at once. A failing
// character never stops the others; only context cancellation does.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/XuF163/metaGenerator-sub000/internal/ledger"
	"github.com/XuF163/metaGenerator-sub000/internal/logging"
	"github.com/XuF163/metaGenerator-sub000/internal/pipeline"
)

const (
	inputSuffix = ".input.json"
	planSuffix  = ".plan.json"
)

// Job is one character's input and proposed plan.
type Job struct {
	Name  string
	Input []byte
	Plan  []byte
}

// Outcome is the result of one job. Exactly one of Result and Err is set.
type Outcome struct {
	Name   string
	Result *pipeline.Result
	Err    error
}

// Summary is the result of one batch run.
type Summary struct {
	RunID    string
	Outcomes []Outcome
	// Changed is filled when a ledger is attached.
	Changed []ledger.Change
}

// Failed counts the jobs that did not produce a module.
func (s *Summary) Failed() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Runner runs jobs through one pipeline with bounded parallelism.
type Runner struct {
	Pipeline    *pipeline.Pipeline
	Concurrency int
	// Ledger is optional.
	Ledger *ledger.Ledger
}

// Run executes every job. Outcomes keep the job order. The returned error
// is non-nil only when ctx ends the run or the ledger cannot be written.
func (r *Runner) Run(ctx context.Context, jobs []Job) (*Summary, error) {
	timer := logging.StartTimer(logging.CategoryBatch, "Run")
	defer timer.Stop()

	runID := fmt.Sprintf("run_%s", uuid.New().String()[:8])
	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}
	logging.Batch("%s: %d job(s), concurrency %d", runID, len(jobs), limit)

	outcomes := make([]Outcome, len(jobs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for i, job := range jobs {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			res, err := r.Pipeline.RunJSON(egCtx, job.Input, job.Plan)
			outcomes[i] = Outcome{Name: job.Name, Result: res, Err: err}
			if err != nil {
				logging.BatchWarn("%s: %s failed: %v", runID, job.Name, err)
			} else {
				logging.BatchDebug("%s: %s ok, digest %.12s", runID, job.Name, res.Digest)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := &Summary{RunID: runID, Outcomes: outcomes}
	if r.Ledger != nil {
		if err := r.record(ctx, summary); err != nil {
			return summary, err
		}
	}
	logging.Batch("%s: %d ok, %d failed, %d changed", runID, len(jobs)-summary.Failed(), summary.Failed(), len(summary.Changed))
	return summary, nil
}

func (r *Runner) record(ctx context.Context, s *Summary) error {
	for _, o := range s.Outcomes {
		e := ledger.Entry{RunID: s.RunID, Character: o.Name, OK: o.Err == nil}
		if o.Err != nil {
			e.Error = o.Err.Error()
		} else {
			m := o.Result.Module
			e.Game = string(m.Game)
			e.Digest = o.Result.Digest
			e.Details = len(m.Details)
			e.Buffs = len(m.Buffs)
			e.Repairs = len(o.Result.RepairReport.Changes)
		}
		if err := r.Ledger.Record(ctx, e); err != nil {
			return err
		}
	}
	changed, err := r.Ledger.Changed(ctx, s.RunID)
	if err != nil {
		return err
	}
	s.Changed = changed
	return nil
}

// LoadDir reads every "<name>.input.json" in dir with its matching
// "<name>.plan.json". Jobs are sorted by name.
func LoadDir(dir string) ([]Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read job directory: %w", err)
	}
	var jobs []Job
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), inputSuffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), inputSuffix)
		input, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		p, err := os.ReadFile(filepath.Join(dir, name+planSuffix))
		if err != nil {
			return nil, fmt.Errorf("job %s has no plan: %w", name, err)
		}
		jobs = append(jobs, Job{Name: name, Input: input, Plan: p})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs, nil
}
