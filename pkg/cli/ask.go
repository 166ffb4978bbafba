package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/pokedex/pkg/agent"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		showTools bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openReadOnly(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(db)

			ag, err := a.newAgent(ctx, db)
			if err != nil {
				return err
			}

			ans, err := ag.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				b, _ := json.MarshalIndent(ans, "", "  ")
				fmt.Fprintln(out, string(b))
			} else {
				renderAnswer(out, ans, showTools)
			}
			if ans.State == agent.StateAborted {
				return ans.Err
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showTools, "show-tools", "t", false, "Print each tool call and its result")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer and tool calls as JSON")
	return cmd
}
