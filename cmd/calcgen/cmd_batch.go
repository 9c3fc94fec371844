package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/XuF163/metaGenerator-sub000/internal/batch"
	"github.com/XuF163/metaGenerator-sub000/internal/ledger"
	"github.com/XuF163/metaGenerator-sub000/internal/pipeline"
)

var (
	batchDir         string
	batchOut         string
	batchLedger      string
	batchConcurrency int
)

// batchCmd runs every job in a directory
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every <name>.input.json / <name>.plan.json pair in a directory",
	Long: `Runs many characters concurrently. A failing character does not stop the
others. With a ledger, characters whose module changed since their previous
successful run are listed.

Example:
  calcgen batch --dir jobs/ --out modules/ --ledger .calcgen/ledger.db`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchDir, "dir", "d", "", "Job directory (required)")
	batchCmd.Flags().StringVarP(&batchOut, "out", "o", "", "Directory for <name>.js modules")
	batchCmd.Flags().StringVar(&batchLedger, "ledger", "", "Ledger database (default: batch.ledger_path from config)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "Parallel jobs (default: batch.concurrency from config)")
	batchCmd.MarkFlagRequired("dir")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	jobs, err := batch.LoadDir(batchDir)
	if err != nil {
		return err
	}
	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	r := &batch.Runner{Pipeline: p, Concurrency: cfg.Batch.Concurrency}
	if batchConcurrency > 0 {
		r.Concurrency = batchConcurrency
	}
	ledgerPath := cfg.Batch.LedgerPath
	if batchLedger != "" {
		ledgerPath = batchLedger
	}
	if ledgerPath != "" {
		l, err := ledger.Open(ledgerPath)
		if err != nil {
			return err
		}
		defer l.Close()
		r.Ledger = l
	}

	summary, err := r.Run(ctx, jobs)
	if err != nil {
		return err
	}

	if batchOut != "" {
		if err := os.MkdirAll(batchOut, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	out := cmd.OutOrStdout()
	for _, o := range summary.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", o.Name, o.Err)
			continue
		}
		fmt.Fprintf(out, "ok   %s %.12s\n", o.Name, o.Result.Digest)
		if batchOut != "" {
			path := filepath.Join(batchOut, o.Name+".js")
			if err := os.WriteFile(path, []byte(o.Result.Module.Source), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
		}
	}
	for _, c := range summary.Changed {
		fmt.Fprintf(out, "changed %s %.12s -> %.12s\n", c.Character, c.Previous, c.Current)
	}
	logger.Info("Batch finished",
		zap.String("run", summary.RunID),
		zap.Int("jobs", len(jobs)),
		zap.Int("failed", summary.Failed()),
		zap.Int("changed", len(summary.Changed)))

	if n := summary.Failed(); n > 0 {
		return fmt.Errorf("%d of %d jobs failed", n, len(jobs))
	}
	return nil
}
