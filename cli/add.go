package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo-go/memory"
)

var addRole string

var addCmd = &cobra.Command{
	Use:   "add [message]",
	Short: "Feed a message into the memory engine",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			exitErr("open engine", err)
		}
		defer eng.close()

		role := memory.RoleUser
		if addRole == "assistant" {
			role = memory.RoleAssistant
		}

		content := strings.Join(args, " ")
		res, err := eng.agg.AddMessage(context.Background(), eng.mctx, role, content, memory.Metadata{Source: "cli"}, time.Now())
		if err != nil {
			exitErr("add message", err)
		}

		fmt.Printf("short-term: %v\n", res.ShortTermOK)
		fmt.Printf("long-term:  %v\n", res.LongTermOK)
	},
}

func init() {
	addCmd.Flags().StringVarP(&addRole, "role", "r", "user", "Message role (user or assistant)")
	RootCmd.AddCommand(addCmd)
}
