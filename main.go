package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Task lifecycle service",
	Long: `Task lifecycle service built on the mono framework.

Tasks move between NOT_DONE, DONE and PAST_DUE. Overdue tasks are demoted
lazily on read and in bulk by the status sweep.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (default $TASKS_CONFIG)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
