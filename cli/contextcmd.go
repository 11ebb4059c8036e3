package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var contextCmd = &cobra.Command{
	Use:   "context [query]",
	Short: "Show the prompt context the engine would produce",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			exitErr("open engine", err)
		}
		defer eng.close()

		query := strings.Join(args, " ")
		pc := eng.agg.ContextForPrompt(context.Background(), eng.mctx, query)

		fmt.Println("=== Recent ===")
		fmt.Println(pc.RecentSummary)
		if pc.LongTermFacts != "" {
			fmt.Println("\n=== Long-term facts ===")
			fmt.Println(pc.LongTermFacts)
		}
		if pc.SemanticContext != "" {
			fmt.Println("\n=== Semantic matches ===")
			fmt.Println(pc.SemanticContext)
		}
	},
}

func init() {
	RootCmd.AddCommand(contextCmd)
}
