package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/XuF163/metaGenerator-sub000/internal/pipeline"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
)

var (
	genInput    string
	genPlan     string
	genOut      string
	genEmitPlan string
)

// generateCmd runs one character through the pipeline
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Validate, repair, render and verify one plan",
	Long: `Reads a character input and a proposed plan, runs the full pipeline and
writes the verified module source.

Example:
  calcgen generate --input hutao.input.json --plan hutao.plan.json --out calc.js`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&genInput, "input", "i", "", "Character input JSON (required)")
	generateCmd.Flags().StringVarP(&genPlan, "plan", "p", "", "Proposed plan JSON (required)")
	generateCmd.Flags().StringVarP(&genOut, "out", "o", "", "Module output path (default: stdout)")
	generateCmd.Flags().StringVar(&genEmitPlan, "emit-plan", "", "Also write the repaired plan JSON to this path")
	generateCmd.MarkFlagRequired("input")
	generateCmd.MarkFlagRequired("plan")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	inputJSON, err := os.ReadFile(genInput)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	planJSON, err := os.ReadFile(genPlan)
	if err != nil {
		return fmt.Errorf("failed to read plan: %w", err)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	res, err := p.RunJSON(ctx, inputJSON, planJSON)
	if err != nil {
		logger.Error("Generation failed", zap.String("input", genInput), zap.Error(err))
		return err
	}

	for _, issue := range res.Issues {
		logger.Warn("Plan issue", zap.String("path", issue.Path), zap.String("msg", issue.Msg))
	}
	for _, ch := range res.RepairReport.Changes {
		logger.Debug("Repair", zap.String("pass", ch.Pass), zap.String("target", ch.Target), zap.String("msg", ch.Msg))
	}
	logger.Info("Module verified",
		zap.Int("details", len(res.Module.Details)),
		zap.Int("buffs", len(res.Module.Buffs)),
		zap.Int("repairs", len(res.RepairReport.Changes)),
		zap.String("digest", res.Digest))

	if genEmitPlan != "" {
		data, err := plan.Encode(res.Plan)
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		if err := writeOutput(cmd, genEmitPlan, data); err != nil {
			return err
		}
	}
	return writeOutput(cmd, genOut, []byte(res.Module.Source))
}
