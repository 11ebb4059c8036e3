package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Erase all memory for the user",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			exitErr("open engine", err)
		}
		defer eng.close()

		if eng.agg.Clear(context.Background(), eng.mctx) {
			fmt.Printf("cleared all memory for %q\n", userID)
		} else {
			fmt.Printf("cleared in-memory tiers for %q; store clear failed\n", userID)
		}
	},
}

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete long-term memories older than a cutoff",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			exitErr("open engine", err)
		}
		defer eng.close()

		removed, err := eng.agg.Cleanup(context.Background(), eng.mctx, cleanupDays)
		if err != nil {
			exitErr("cleanup", err)
		}
		fmt.Printf("removed %d memories older than %d days\n", removed, cleanupDays)
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 90, "Delete memories older than this many days")
	RootCmd.AddCommand(clearCmd)
	RootCmd.AddCommand(cleanupCmd)
}
