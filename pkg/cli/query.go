package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newQueryCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run one read-only SELECT against the mirror",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openReadOnly(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(db)

			res, err := a.newGateway(db).RunQuery(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				b, _ := json.MarshalIndent(res, "", "  ")
				fmt.Fprintln(out, string(b))
				return nil
			}
			renderResult(out, res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [table]",
		Short: "List mirror tables, or the columns of one table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openReadOnly(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(db)

			gw := a.newGateway(db)
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				cols, err := gw.TableInfo(ctx, args[0])
				if err != nil {
					return err
				}
				renderColumns(out, args[0], cols)
				return nil
			}
			return printSchema(ctx, out, gw)
		},
	}
}
