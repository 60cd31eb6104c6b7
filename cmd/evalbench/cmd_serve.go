package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/evalbench/pkg/logging"
	"github.com/AleutianAI/evalbench/services/evaluator/api"
	"github.com/AleutianAI/evalbench/services/evaluator/datasets"
	"github.com/AleutianAI/evalbench/services/evaluator/jobs"
	"github.com/AleutianAI/evalbench/services/evaluator/observability"
	"github.com/AleutianAI/evalbench/services/evaluator/runners"
	"github.com/AleutianAI/evalbench/services/evaluator/storage"
)

func newServeCmd() *cobra.Command {
	var (
		addr          string
		datasetDir    string
		dbPath        string
		ollamaHost    string
		maxConcurrent int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation job API",
		Long: `Serve starts the HTTP status server: job submission and inspection
under /v1, Prometheus metrics under /metrics.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := logging.New(logging.Config{
				Service: "evalbench-api",
				LogDir:  "~/.evalbench/logs",
			})
			defer func() { _ = logger.Close() }()
			slogger := logger.Slog()

			reg := prometheus.NewRegistry()

			deps := jobs.Deps{
				Datasets: datasets.NewFileLoader(datasetDir),
				Runners:  runners.DefaultRegistry(runners.Config{OllamaHost: ollamaHost}, slogger),
				Observer: observability.NewMetrics(reg),
				Logger:   slogger,
			}

			opts := []api.Option{
				api.WithMetrics(reg),
				api.WithLogger(slogger),
			}
			if dbPath != "" {
				store, err := storage.Open(storage.DefaultConfig(dbPath))
				if err != nil {
					return fmt.Errorf("open report database: %w", err)
				}
				defer func() { _ = store.Close() }()
				deps.Reports = store
				opts = append(opts, api.WithReportStore(store))
			}

			orch, err := jobs.NewOrchestrator(jobs.Config{
				MaxConcurrentJobs: maxConcurrent,
			}, deps)
			if err != nil {
				return err
			}

			return api.NewServer(orch, opts...).Run(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&datasetDir, "dataset-dir", "./datasets", "Directory containing dataset files")
	cmd.Flags().StringVar(&dbPath, "db", "", "Report database directory (empty disables persistence)")
	cmd.Flags().StringVar(&ollamaHost, "ollama-host", "", "Ollama server URL override")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent-jobs", 1, "Jobs allowed to run simultaneously")
	return cmd
}
