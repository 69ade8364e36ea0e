package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "reviewd",
		Short: "PR Review Orchestrator - automated pull request review",
		Long: `PR Review Orchestrator reviews pull requests with an LLM backend.
It splits large PRs into chunks, reviews them concurrently with
rate-limit-aware retries, aggregates the findings into a report,
and publishes the result as a PR comment and a notification.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
