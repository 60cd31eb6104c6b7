package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/evalbench/pkg/logging"
	"github.com/AleutianAI/evalbench/services/evaluator/datasets"
	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
	"github.com/AleutianAI/evalbench/services/evaluator/jobs"
	"github.com/AleutianAI/evalbench/services/evaluator/metrics"
	"github.com/AleutianAI/evalbench/services/evaluator/runners"
	"github.com/AleutianAI/evalbench/services/evaluator/storage"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		baselineID string
		export     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an evaluation scenario",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScenario(cmd.Context(), configPath, baselineID, export)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Scenario YAML file (required)")
	cmd.Flags().StringVar(&baselineID, "baseline", "", "Report ID to compare this run against")
	cmd.Flags().BoolVar(&export, "export", false, "Export run metrics to InfluxDB")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runScenario(ctx context.Context, configPath, baselineID string, export bool) error {
	scenario, err := loadScenario(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Service: "evalbench",
		Quiet:   true,
		LogDir:  "~/.evalbench/logs",
	})
	defer func() { _ = logger.Close() }()
	slogger := logger.Slog()

	var store *storage.ReportStore
	if scenario.Database != "" {
		store, err = storage.Open(storage.DefaultConfig(scenario.Database))
		if err != nil {
			return fmt.Errorf("open report database: %w", err)
		}
		defer func() { _ = store.Close() }()
	}
	if baselineID != "" && store == nil {
		return fmt.Errorf("--baseline requires a database in the scenario file")
	}

	deps := jobs.Deps{
		Datasets: datasets.NewFileLoader(scenario.DatasetDir),
		Runners:  runners.DefaultRegistry(scenario.Runners, slogger),
		Logger:   slogger,
	}
	if store != nil {
		deps.Reports = store
	}

	orch, err := jobs.NewOrchestrator(jobs.Config{}, deps)
	if err != nil {
		return err
	}

	job, err := orch.CreateJob(ctx, scenario.Job)
	if err != nil {
		return err
	}

	fmt.Printf("\nStarting evaluation: %s\n", scenario.Job.Name)
	fmt.Printf("   Dataset:    %s (%d test cases)\n", scenario.Job.DatasetID, job.TotalTestCases)
	fmt.Printf("   Agent:      %s\n", scenario.Job.AgentType)
	fmt.Printf("   Model:      %s/%s\n", scenario.Job.ModelConfig.Provider, scenario.Job.ModelConfig.Model)
	fmt.Println("---------------------------------------------------")

	orch.OnJobProgress(job.ID, func(_ *datatypes.EvalJob, completed, total int) {
		fmt.Printf("\r   Progress: %d/%d", completed, total)
	})

	// WaitForJob rejects failed and cancelled runs with the job's own
	// error message.
	_, err = orch.WaitForJob(ctx, job.ID, 200*time.Millisecond)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("evaluation did not complete: %w", err)
	}

	report, ok := orch.GetReport(job.ID)
	if !ok {
		return fmt.Errorf("no report produced for job %s", job.ID)
	}
	printReport(report)

	if export {
		exporter, err := storage.NewMetricsExporter()
		if err != nil {
			return err
		}
		defer exporter.Close()
		if err := exporter.ExportReport(ctx, report); err != nil {
			return err
		}
		fmt.Println("\nMetrics exported to InfluxDB.")
	}

	if baselineID != "" {
		baseline, err := store.GetReport(ctx, baselineID)
		if err != nil {
			return fmt.Errorf("load baseline: %w", err)
		}
		cmp := metrics.Compare(report.Metrics, baseline.Metrics)
		printComparison(cmp, baseline.ID)
		if cmp.HasRegressions() {
			return fmt.Errorf("%d regression(s) detected against baseline %s", len(cmp.Regressions), baseline.ID)
		}
	}
	return nil
}

// printReport renders the run summary.
func printReport(report *datatypes.Report) {
	m := report.Metrics
	fmt.Printf("\nEvaluation complete. Report: %s\n", report.ID)
	fmt.Printf("   Tests:      %d total, %d passed, %d failed\n",
		m.TotalTests, m.PassedTests, m.FailedTests)
	fmt.Printf("   Pass rate:  %.1f%%\n", m.PassRate*100)
	fmt.Printf("   Mean score: %.3f (95%% CI %.3f-%.3f)\n",
		m.Scores.Mean, m.Scores.CI95.Lower, m.Scores.CI95.Upper)
	fmt.Printf("   Latency:    %.0f ms avg\n", m.AverageLatencyMs)
	fmt.Printf("   Tokens:     %d\n", m.Tokens.Total)
	fmt.Printf("   Cost:       $%.4f\n", m.TotalCost)

	if len(m.Categories) > 0 {
		fmt.Println("\n   By category:")
		names := make([]string, 0, len(m.Categories))
		for name := range m.Categories {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cat := m.Categories[name]
			fmt.Printf("     %-20s %d/%d passed (%.1f%%)\n",
				name, cat.Passed, cat.Total, cat.PassRate*100)
		}
	}
}

// printComparison renders deltas and regressions against a baseline.
func printComparison(cmp datatypes.MetricsComparison, baselineID string) {
	fmt.Printf("\nComparison against baseline %s:\n", baselineID)
	fmt.Printf("   Pass rate delta:  %+.3f\n", cmp.PassRateDelta)
	fmt.Printf("   Mean score delta: %+.3f\n", cmp.AverageScoreDelta)
	fmt.Printf("   Latency delta:    %+.0f ms\n", cmp.LatencyDelta)
	fmt.Printf("   Cost delta:       $%+.4f\n", cmp.CostDelta)

	if !cmp.HasRegressions() {
		fmt.Println("   No regressions detected.")
		return
	}
	fmt.Printf("\n   Regressions (%d):\n", len(cmp.Regressions))
	for _, r := range cmp.Regressions {
		fmt.Printf("     [%s] %s: %.3f -> %.3f (delta %+.3f)\n",
			r.Severity, r.Metric, r.Baseline, r.Current, r.Delta)
	}
}
