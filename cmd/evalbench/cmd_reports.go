package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/evalbench/services/evaluator/storage"
)

func newReportsCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List stored evaluation reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := storage.Open(storage.DefaultConfig(dbPath))
			if err != nil {
				return fmt.Errorf("open report database: %w", err)
			}
			defer func() { _ = store.Close() }()

			reports, err := store.ListReports(cmd.Context())
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Println("No reports stored.")
				return nil
			}

			fmt.Printf("%-38s %-20s %-24s %-10s %s\n",
				"REPORT", "DATASET", "MODEL", "PASS RATE", "CREATED")
			for _, r := range reports {
				fmt.Printf("%-38s %-20s %-24s %-10s %s\n",
					r.ID,
					r.DatasetID,
					r.Model.Provider+"/"+r.Model.Model,
					fmt.Sprintf("%.1f%%", r.Metrics.PassRate*100),
					r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Report database directory (required)")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
