// Package pipeline chains the plan stages for one character: validate,
// repair, render, verify. Each hard failure is reported as a StageError
// naming the stage that stopped the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/XuF163/metaGenerator-sub000/internal/config"
	"github.com/XuF163/metaGenerator-sub000/internal/logging"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
	"github.com/XuF163/metaGenerator-sub000/internal/render"
	"github.com/XuF163/metaGenerator-sub000/internal/repair"
	"github.com/XuF163/metaGenerator-sub000/internal/validate"
	"github.com/XuF163/metaGenerator-sub000/internal/verify"
)

// Stage names a pipeline step.
type Stage string

const (
	StageParse    Stage = "parse"
	StageValidate Stage = "validate"
	StageRepair   Stage = "repair"
	StageRender   Stage = "render"
	StageVerify   Stage = "verify"
)

// ErrTimeout is matched by any StageError caused by a context deadline.
var ErrTimeout = errors.New("pipeline timed out")

// StageError is a hard failure in one stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is matches ErrTimeout when the stage ran out of time.
func (e *StageError) Is(target error) bool {
	return target == ErrTimeout && errors.Is(e.Err, context.DeadlineExceeded)
}

// Result is everything one successful run produced.
type Result struct {
	Plan         *plan.Plan
	Module       *render.Module
	Issues       []validate.Issue
	RepairReport *repair.Report
	VerifyReport *verify.Report
	// Digest identifies the rendered source.
	Digest string
}

// Pipeline holds the configured stages. A Pipeline is safe for concurrent
// use; every Run works on its own plan.
type Pipeline struct {
	Validator *validate.Validator
	Repair    *repair.Engine
	Verifier  *verify.Verifier
	Render    render.Options
}

// New builds a pipeline from cfg.
func New(cfg *config.Config) (*Pipeline, error) {
	engine, err := repair.New(cfg.Repair, cfg.Limits)
	if err != nil {
		return nil, fmt.Errorf("failed to build repair engine: %w", err)
	}
	return &Pipeline{
		Validator: validate.New(validate.LimitsFrom(cfg.Limits)),
		Repair:    engine,
		Verifier:  verify.FromConfig(cfg),
		Render:    render.Options{CreatedBy: cfg.CreatedBy},
	}, nil
}

// RunJSON decodes the input and plan documents and runs them.
func (p *Pipeline) RunJSON(ctx context.Context, inputJSON, planJSON []byte) (*Result, error) {
	in, err := plan.ParseInput(inputJSON)
	if err != nil {
		return nil, &StageError{Stage: StageParse, Err: err}
	}
	raw, err := plan.ParseRaw(planJSON)
	if err != nil {
		return nil, &StageError{Stage: StageParse, Err: err}
	}
	return p.Run(ctx, in, raw)
}

// Run takes one proposed plan through every stage. The first hard failure
// stops the run.
func (p *Pipeline) Run(ctx context.Context, in *plan.Input, raw *plan.RawPlan) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "Run")
	defer timer.Stop()

	fail := func(stage Stage, err error) (*Result, error) {
		logging.PipelineWarn("%s stage failed: %v", stage, err)
		return nil, &StageError{Stage: stage, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(StageValidate, err)
	}
	validated, issues, err := p.Validator.Validate(in, raw)
	if err != nil {
		return fail(StageValidate, err)
	}
	logging.PipelineDebug("validated %d details, %d buffs, %d issues", len(validated.Details), len(validated.Buffs), len(issues))

	report, err := p.Repair.Run(ctx, in, validated)
	if err != nil {
		return fail(StageRepair, err)
	}

	m, err := render.Render(in, validated, p.Render)
	if err != nil {
		return fail(StageRender, err)
	}

	vr, err := p.Verifier.Verify(ctx, m, in)
	if err != nil {
		return fail(StageVerify, err)
	}

	res := &Result{
		Plan:         validated,
		Module:       m,
		Issues:       issues,
		RepairReport: report,
		VerifyReport: vr,
		Digest:       m.Digest(),
	}
	logging.Pipeline("%s: %d details, %d buffs, %d repairs, digest %.12s",
		in.Game, len(m.Details), len(m.Buffs), len(report.Changes), res.Digest)
	return res, nil
}
