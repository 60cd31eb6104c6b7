package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/evalbench/services/evaluator/metrics"
	"github.com/AleutianAI/evalbench/services/evaluator/storage"
)

func newCompareCmd() *cobra.Command {
	var (
		dbPath     string
		currentID  string
		baselineID string
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare two stored reports and flag regressions",
		Long: `Compare loads two reports from the report database and diffs their
metrics. The command exits non-zero when regressions are detected, so
it can gate CI pipelines.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := storage.Open(storage.DefaultConfig(dbPath))
			if err != nil {
				return fmt.Errorf("open report database: %w", err)
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			current, err := store.GetReport(ctx, currentID)
			if err != nil {
				return fmt.Errorf("load current report: %w", err)
			}
			baseline, err := store.GetReport(ctx, baselineID)
			if err != nil {
				return fmt.Errorf("load baseline report: %w", err)
			}

			cmp := metrics.Compare(current.Metrics, baseline.Metrics)
			printComparison(cmp, baseline.ID)
			if cmp.HasRegressions() {
				return fmt.Errorf("%d regression(s) detected", len(cmp.Regressions))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Report database directory (required)")
	cmd.Flags().StringVar(&currentID, "current", "", "Report ID of the current run (required)")
	cmd.Flags().StringVar(&baselineID, "baseline", "", "Report ID of the baseline run (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("current")
	_ = cmd.MarkFlagRequired("baseline")
	return cmd
}
