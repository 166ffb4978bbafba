package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ekaya-inc/pokedex/pkg/agent"
	"github.com/ekaya-inc/pokedex/pkg/database"
	"github.com/ekaya-inc/pokedex/pkg/gateway"
	"github.com/ekaya-inc/pokedex/pkg/logging"
	"github.com/ekaya-inc/pokedex/pkg/tools"
)

const maxShownResult = 300

// renderAnswer prints the answer and, when showTools is set, the tool
// transcript that produced it.
func renderAnswer(out io.Writer, ans *agent.Answer, showTools bool) {
	if showTools {
		for i, inv := range ans.Invocations {
			status := "ok"
			if inv.Failed() {
				status = string(inv.ErrorKind)
			}
			fmt.Fprintf(out, "[%d] %s %s (%s, %s)\n", i+1, inv.Name, inv.Arguments, status, inv.Duration.Round(1e6))
			fmt.Fprintf(out, "    → %s\n", logging.TruncateString(inv.Result, maxShownResult))
		}
		if len(ans.Invocations) > 0 {
			fmt.Fprintln(out)
		}
	}
	fmt.Fprintln(out, strings.TrimSpace(ans.Text))
}

// renderResult prints a query result as an aligned table.
func renderResult(out io.Writer, res *gateway.QueryResult) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()

	suffix := ""
	if res.Truncated {
		suffix = " (truncated)"
	}
	fmt.Fprintf(out, "(%d rows%s)\n", res.RowCount, suffix)
}

// renderColumns prints one table's columns.
func renderColumns(out io.Writer, table string, cols []database.ColumnInfo) {
	fmt.Fprintf(out, "%s\n", table)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range cols {
		flags := ""
		if c.PrimaryKey {
			flags = "PK"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", c.Name, strings.ToLower(c.Type), flags)
	}
	_ = tw.Flush()
}

// printSchema prints every mirror table with its columns.
func printSchema(ctx context.Context, out io.Writer, inspector tools.SchemaInspector) error {
	tables, err := inspector.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		cols, err := inspector.TableInfo(ctx, t)
		if err != nil {
			return err
		}
		renderColumns(out, t, cols)
	}
	return nil
}
