package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo-go/memory"
)

var (
	searchLevels []string
	searchMax    int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memory tiers for a query",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			exitErr("open engine", err)
		}
		defer eng.close()

		var levels []memory.Level
		for _, name := range searchLevels {
			levels = append(levels, memory.Level(name))
		}

		query := strings.Join(args, " ")
		hits, err := eng.agg.SearchAll(context.Background(), eng.mctx, query, levels, searchMax)
		if err != nil {
			exitErr("search", err)
		}
		if len(hits) == 0 {
			fmt.Println("no results")
			return
		}
		for _, hit := range hits {
			fmt.Printf("[%s] %.3f  %s\n", hit.Level, hit.Score, hit.Content)
		}
	},
}

func init() {
	searchCmd.Flags().StringSliceVarP(&searchLevels, "levels", "l", nil, "Levels to search (default: all)")
	searchCmd.Flags().IntVarP(&searchMax, "max", "n", 10, "Maximum results")
	RootCmd.AddCommand(searchCmd)
}
