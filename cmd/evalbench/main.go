// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// evalbench is the command line interface for the evaluation engine:
// run scenarios, compare runs against baselines, and serve the status
// API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "evalbench",
		Short: "Run model evaluations and track their results",
		Long: `evalbench executes evaluation datasets against model backends,
aggregates scores into reports, and detects regressions between runs.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCompareCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newReportsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
