package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// runCmd is a convenience wrapper chaining update then rank, the
// common way this tool is invoked in practice.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run update followed by rank",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := updateCmd.RunE(cmd, args); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		if err := rankCmd.RunE(cmd, args); err != nil {
			return fmt.Errorf("rank: %w", err)
		}
		return nil
	},
}
