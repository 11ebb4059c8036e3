package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory stats for the user and the store",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			exitErr("open engine", err)
		}
		defer eng.close()

		us := eng.agg.UserStats(eng.mctx)
		counts, err := eng.store.Stats(context.Background())
		if err != nil {
			exitErr("store stats", err)
		}

		if statsJSON {
			out := map[string]any{"user": us, "store": counts}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(out)
			return
		}

		fmt.Printf("user:        %s (%s)\n", us.UserID, us.State)
		fmt.Printf("messages:    %d\n", us.MessageCount)
		fmt.Printf("window:      %d/%d\n", us.WindowLen, us.WindowSize)
		fmt.Printf("lt writes:   %d\n", us.LongTermWrites)
		if us.Episodes > 0 || us.Summaries > 0 {
			fmt.Printf("episodes:    %d\n", us.Episodes)
			fmt.Printf("summaries:   %d\n", us.Summaries)
		}
		fmt.Println("store:")
		for id, n := range counts {
			fmt.Printf("  %s: %d memories\n", id, n)
		}
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Emit stats as JSON")
	RootCmd.AddCommand(statsCmd)
}
